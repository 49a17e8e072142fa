package engine

import (
	"github.com/cockroachdb/errors"
	vk "github.com/vulkan-go/vulkan"
)

// Error kinds. Every error returned by the engine is marked with at most one
// of them, test for them with errors.Is.
var (
	// ErrInitialization marks failures while bootstrapping the context,
	// device, swapchain or pipelines. Nothing has been rendered yet.
	ErrInitialization = errors.New("initialization failed")

	// ErrNoSuitableDevice is returned when no physical device satisfies the
	// engine's requirements.
	ErrNoSuitableDevice = errors.New("no suitable device")

	// ErrSwapchainOutOfDate means the swapchain no longer matches the
	// surface and must be rebuilt. The engine recovers from it on its own.
	ErrSwapchainOutOfDate = errors.New("swapchain out of date")

	// ErrDeviceLost is fatal.
	ErrDeviceLost = errors.New("device lost")

	// ErrTimeout is returned when a fence wait or an image acquisition did
	// not finish within the configured timeout.
	ErrTimeout = errors.New("timeout")

	// ErrResourceExhausted covers host, device and descriptor pool memory
	// exhaustion. Callers may shed load and retry.
	ErrResourceExhausted = errors.New("resource exhausted")
)

// errFrameAbandoned marks failures after a swapchain image was acquired. The
// frame slot is left with an unsignaled fence and a signaled semaphore, so
// no further frame can be drawn whatever the underlying kind.
var errFrameAbandoned = errors.New("frame abandoned after acquire")

func abandonFrame(err error) error {
	if err == nil {
		return nil
	}
	return errors.Mark(err, errFrameAbandoned)
}

// vkResult converts a Vulkan result into an error marked with the matching
// kind. It returns nil for vk.Success and vk.Suboptimal; callers which care
// about suboptimal swapchains check for it before calling vkResult.
func vkResult(res vk.Result, op string) error {
	switch res {
	case vk.Success, vk.Suboptimal:
		return nil
	}

	base := vk.Error(res)
	if base == nil {
		base = errors.Newf("vulkan result %d", res)
	}

	err := errors.Wrapf(base, "%s", op)
	if kind := resultKind(res); kind != nil {
		return errors.Mark(err, kind)
	}
	return err
}

func resultKind(res vk.Result) error {
	switch res {
	case vk.ErrorOutOfDate:
		return ErrSwapchainOutOfDate
	case vk.ErrorDeviceLost, vk.ErrorSurfaceLost:
		return ErrDeviceLost
	case vk.Timeout, vk.NotReady:
		return ErrTimeout
	case vk.ErrorOutOfHostMemory, vk.ErrorOutOfDeviceMemory,
		vk.ErrorOutOfPoolMemory, vk.ErrorFragmentedPool, vk.ErrorTooManyObjects:
		return ErrResourceExhausted
	}
	return nil
}

// initError marks err as an initialization failure, keeping any more
// specific kind it already carries.
func initError(err error, step string) error {
	if err == nil {
		return nil
	}
	wrapped := errors.Wrap(err, step)
	if errors.Is(err, ErrNoSuitableDevice) || errors.Is(err, ErrResourceExhausted) {
		return wrapped
	}
	return errors.Mark(wrapped, ErrInitialization)
}
