package engine

import (
	"math"

	"github.com/cockroachdb/errors"
	"github.com/sirupsen/logrus"
	"github.com/xlab/linmath"
	vk "github.com/vulkan-go/vulkan"
)

// drawLayouts are the layouts the draw image goes through every frame: the
// compute shader writes it, then it is blitted from. The image is never
// discarded between frames, so the first transition of a frame waits for
// the blit of the previous one.
var drawLayouts = [...]vk.ImageLayout{
	vk.ImageLayoutGeneral,
	vk.ImageLayoutTransferSrcOptimal,
}

// workgroupSize is the local size of the background shader in both
// dimensions.
const workgroupSize = 16

// groupCounts returns how many workgroups cover extent.
func groupCounts(extent vk.Extent2D) (x, y uint32) {
	x = (extent.Width + workgroupSize - 1) / workgroupSize
	y = (extent.Height + workgroupSize - 1) / workgroupSize
	return x, y
}

// flashIntensity pulses between 0 and 1 over roughly 377 frames.
func flashIntensity(frame uint64) float32 {
	return float32(math.Abs(math.Sin(float64(frame) / 120)))
}

// backgroundConstants returns the shader inputs for the given frame: a
// vertical gradient whose blue channel flashes.
func backgroundConstants(frame uint64) PushConstants {
	flash := flashIntensity(frame)
	return PushConstants{
		Top:    linmath.Vec4{0, 0, flash, 1},
		Bottom: linmath.Vec4{0, 0, flash / 4, 1},
		Flash:  linmath.Vec4{1, 1, 1, 0},
	}
}

// Draw renders and presents one frame. It waits for the frame slot's
// previous work, acquires a swapchain image, records and submits the frame
// and presents it.
//
// An out of date swapchain is rebuilt and the frame skipped, which is not
// an error. Timeouts are reported as ErrTimeout and device loss as
// ErrDeviceLost. Any failure after an image was acquired is fatal, see
// IsFatal.
func (e *Engine) Draw() error {
	if e.swapchain == nil {
		if err := e.rebuildSwapchain(); err != nil {
			return err
		}
		if e.swapchain == nil {
			return nil
		}
	}

	slot := e.frames.Current()
	if err := e.waitForSlot(slot); err != nil {
		return err
	}
	slot.Deletions.Flush(e.destroyer)

	imageIndex, suboptimal, err := e.acquire(slot)
	if errors.Is(err, ErrSwapchainOutOfDate) {
		e.log.Debug("Swapchain out of date on acquire")
		return e.rebuildSwapchain()
	}
	if err != nil {
		return err
	}

	// From here on the image semaphore is signaled and the fence gets reset,
	// neither can be rolled back. Every failure abandons the frame slot.
	if err := e.render(slot, imageIndex); err != nil {
		return abandonFrame(err)
	}

	outdated, err := e.present(slot, imageIndex)
	if err != nil {
		return abandonFrame(err)
	}

	e.lastImage = imageIndex
	e.frameNumber++
	e.frames.advance()

	if outdated || suboptimal || e.resized {
		e.log.WithFields(logrus.Fields{
			"outdated":   outdated,
			"suboptimal": suboptimal,
			"resized":    e.resized,
		}).Debug("Rebuilding swapchain after present")
		return e.rebuildSwapchain()
	}

	return nil
}

// render resets the slot's fence, records the frame and submits it.
func (e *Engine) render(slot *FrameSlot, imageIndex uint32) error {
	fences := []vk.Fence{slot.RenderFence}
	if err := vkResult(vk.ResetFences(e.device.Handle, 1, fences), "vkResetFences"); err != nil {
		return err
	}
	res := vk.ResetCommandBuffer(slot.CommandBuffer, 0)
	if err := vkResult(res, "vkResetCommandBuffer"); err != nil {
		return err
	}

	if err := e.record(slot.CommandBuffer, imageIndex); err != nil {
		return errors.Wrap(err, "recording frame")
	}

	return e.submit(slot)
}

func (e *Engine) waitForSlot(slot *FrameSlot) error {
	res := vk.WaitForFences(
		e.device.Handle,
		1, []vk.Fence{slot.RenderFence},
		vk.True,
		uint64(e.cfg.FenceTimeout.Nanoseconds()),
	)
	if err := vkResult(res, "vkWaitForFences"); err != nil {
		return errors.Wrapf(err, "waiting for frame slot %d", e.frames.Index())
	}
	return nil
}

func (e *Engine) acquire(slot *FrameSlot) (index uint32, suboptimal bool, err error) {
	res := vk.AcquireNextImage(
		e.device.Handle,
		e.swapchain.Handle,
		uint64(e.cfg.FenceTimeout.Nanoseconds()),
		slot.ImageAcquired,
		vk.NullFence,
		&index,
	)
	if err := vkResult(res, "vkAcquireNextImage"); err != nil {
		return 0, false, err
	}
	if int(index) >= len(e.swapchain.Images) {
		return 0, false, errors.Newf("acquired image %d out of %d swapchain images",
			index, len(e.swapchain.Images))
	}
	return index, res == vk.Suboptimal, nil
}

func (e *Engine) record(cmd vk.CommandBuffer, imageIndex uint32) error {
	beginInfo := vk.CommandBufferBeginInfo{
		SType: vk.StructureTypeCommandBufferBeginInfo,
		Flags: vk.CommandBufferUsageFlags(vk.CommandBufferUsageOneTimeSubmitBit),
	}

	res := vk.BeginCommandBuffer(cmd, &beginInfo)
	if err := vkResult(res, "vkBeginCommandBuffer"); err != nil {
		return err
	}

	if err := e.draw.Transition(cmd, drawLayouts[0]); err != nil {
		return err
	}

	e.drawBackground(cmd)

	if err := e.draw.Transition(cmd, drawLayouts[1]); err != nil {
		return err
	}

	e.swapchain.Discard(imageIndex)
	if err := e.swapchain.Transition(cmd, imageIndex, vk.ImageLayoutTransferDstOptimal); err != nil {
		return err
	}

	recordBlit(
		cmd,
		e.draw.Image, e.swapchain.Images[imageIndex],
		e.draw.Extent, e.swapchain.Extent,
	)

	if err := e.swapchain.Transition(cmd, imageIndex, vk.ImageLayoutPresentSrc); err != nil {
		return err
	}

	return vkResult(vk.EndCommandBuffer(cmd), "vkEndCommandBuffer")
}

func (e *Engine) drawBackground(cmd vk.CommandBuffer) {
	pc := backgroundConstants(e.frameNumber)

	e.pipeline.Bind(cmd, e.drawSet)
	e.pipeline.Push(cmd, &pc)

	x, y := groupCounts(e.draw.Extent)
	vk.CmdDispatch(cmd, x, y, 1)
}

func (e *Engine) submit(slot *FrameSlot) error {
	signalSemaphores := []vk.Semaphore{
		slot.RenderComplete,
	}

	submitInfo := vk.SubmitInfo{
		SType:              vk.StructureTypeSubmitInfo,
		WaitSemaphoreCount: 1,
		PWaitSemaphores:    []vk.Semaphore{slot.ImageAcquired},
		PWaitDstStageMask: []vk.PipelineStageFlags{
			vk.PipelineStageFlags(vk.PipelineStageAllCommandsBit),
		},
		CommandBufferCount:   1,
		PCommandBuffers:      []vk.CommandBuffer{slot.CommandBuffer},
		PSignalSemaphores:    signalSemaphores,
		SignalSemaphoreCount: uint32(len(signalSemaphores)),
	}

	res := vk.QueueSubmit(
		e.device.GraphicsQueue,
		1,
		[]vk.SubmitInfo{submitInfo},
		slot.RenderFence,
	)
	return vkResult(res, "vkQueueSubmit")
}

// present queues the image for presentation. It reports whether the
// swapchain has to be rebuilt.
func (e *Engine) present(slot *FrameSlot, imageIndex uint32) (bool, error) {
	swapChains := []vk.Swapchain{
		e.swapchain.Handle,
	}

	presentInfo := vk.PresentInfo{
		SType:              vk.StructureTypePresentInfo,
		WaitSemaphoreCount: 1,
		PWaitSemaphores:    []vk.Semaphore{slot.RenderComplete},
		SwapchainCount:     uint32(len(swapChains)),
		PSwapchains:        swapChains,
		PImageIndices:      []uint32{imageIndex},
	}

	res := vk.QueuePresent(e.device.PresentQueue, &presentInfo)
	switch res {
	case vk.ErrorOutOfDate, vk.Suboptimal:
		return true, nil
	}
	return false, vkResult(res, "vkQueuePresent")
}

func (e *Engine) rebuildSwapchain() error {
	if err := e.device.WaitIdle(); err != nil {
		return err
	}

	if e.swapchain != nil {
		e.swapchain.Destroy(e.destroyer)
		e.swapchain = nil
	}

	swapchain, err := NewSwapchain(e.device, e.ctx.Surface, e.window, e.presentMode, e.log)
	if errors.Is(err, ErrSwapchainOutOfDate) {
		// Minimized windows have no area to present to. Try again on the
		// next frame.
		e.log.WithError(err).Debug("Postponing swapchain rebuild")
		return nil
	}
	if err != nil {
		return errors.Wrap(err, "rebuilding swapchain")
	}

	e.swapchain = swapchain
	e.resized = false
	e.rebuilds++
	return nil
}
