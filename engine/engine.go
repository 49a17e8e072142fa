// Package engine renders frames with Vulkan. A compute shader paints an
// offscreen image every frame which is then blitted onto the swapchain.
//
// An Engine must be created, driven and cleaned up from the goroutine which
// owns the window, locked to its OS thread.
package engine

import (
	"wurmple/config"
	"wurmple/shaders"

	"github.com/cockroachdb/errors"
	"github.com/sirupsen/logrus"
	vk "github.com/vulkan-go/vulkan"
)

// descriptorPoolSets is how many sets the engine's descriptor pool can hold.
const descriptorPoolSets = 10

// Engine owns every GPU object needed to draw frames into a window.
type Engine struct {
	cfg    config.Config
	log    logrus.FieldLogger
	window Window

	ctx       *Context
	device    *Device
	destroyer Destroyer
	swapchain *Swapchain

	presentMode vk.PresentMode

	draw        *AllocatedImage
	descriptors *DescriptorAllocator
	drawLayout  vk.DescriptorSetLayout
	drawSet     vk.DescriptorSet
	pipeline    *ComputePipeline

	frames frameRing

	// deletions holds everything created at startup. It is flushed once,
	// at cleanup.
	deletions DeletionQueue

	frameNumber uint64
	lastImage   uint32
	rebuilds    int
	resized     bool
	cleaned     bool
}

// Stats is a snapshot of the engine's frame counters.
type Stats struct {
	// Frames is the number of presented frames.
	Frames         uint64
	FrameSlot      int
	LastImageIndex uint32
	ImageCount     int
	Rebuilds       int
	Extent         vk.Extent2D
	DrawExtent     vk.Extent2D
}

// New initializes Vulkan for window and creates everything needed to draw.
// Failures are marked with ErrInitialization unless a more specific kind
// such as ErrNoSuitableDevice applies.
func New(cfg config.Config, window Window, log logrus.FieldLogger) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, initError(err, "config")
	}

	presentMode, err := PresentModeByName(cfg.PresentMode)
	if err != nil {
		return nil, initError(err, "config")
	}

	code, err := shaders.Load(cfg.ShaderPath)
	if err != nil {
		return nil, initError(err, "loadShader")
	}

	e := &Engine{
		cfg:         cfg,
		log:         log,
		window:      window,
		presentMode: presentMode,
	}

	if err := e.initVulkan(code); err != nil {
		e.Cleanup()
		return nil, err
	}

	return e, nil
}

func (e *Engine) initVulkan(code []uint32) error {
	ctx, err := NewContext(e.cfg.Title, e.cfg.Debug, e.window, e.log)
	if err != nil {
		return initError(err, "createContext")
	}
	e.ctx = ctx

	device, err := NewDevice(e.ctx, e.log)
	if err != nil {
		return initError(err, "pickPhysicalDevice")
	}
	e.device = device
	e.destroyer = device

	swapchain, err := NewSwapchain(e.device, e.ctx.Surface, e.window, e.presentMode, e.log)
	if err != nil {
		return initError(err, "createSwapChain")
	}
	e.swapchain = swapchain

	if err := e.createFrames(); err != nil {
		return initError(err, "createFrames")
	}

	if err := e.createDrawImage(); err != nil {
		return initError(err, "createDrawImage")
	}

	if err := e.createDescriptors(); err != nil {
		return initError(err, "createDescriptors")
	}

	if err := e.createPipelines(code); err != nil {
		return initError(err, "createPipelines")
	}

	return nil
}

func (e *Engine) createFrames() error {
	frames, err := newFrameRing(e.device, e.cfg.FramesInFlight, &e.deletions)
	if err != nil {
		return err
	}
	e.frames = frames
	return nil
}

func (e *Engine) createDrawImage() error {
	extent := e.swapchain.Extent
	if e.cfg.DrawWidth > 0 && e.cfg.DrawHeight > 0 {
		extent = vk.Extent2D{
			Width:  uint32(e.cfg.DrawWidth),
			Height: uint32(e.cfg.DrawHeight),
		}
	}

	draw, err := NewDrawImage(e.device, extent)
	if err != nil {
		return err
	}
	e.draw = draw
	e.deletions.Push(draw.Deletions()...)

	e.log.WithField("extent", extentString(extent)).Debug("Draw image created")
	return nil
}

func (e *Engine) createDescriptors() error {
	descriptors, err := NewDescriptorAllocator(e.device, descriptorPoolSets, []PoolSizeRatio{
		{Type: vk.DescriptorTypeStorageImage, Ratio: 1},
	})
	if err != nil {
		return err
	}
	e.descriptors = descriptors
	e.deletions.Push(descriptors.Deletion())

	var builder DescriptorLayoutBuilder
	builder.AddBinding(0, vk.DescriptorTypeStorageImage)
	layout, err := builder.Build(e.device, vk.ShaderStageFlags(vk.ShaderStageComputeBit))
	if err != nil {
		return err
	}
	e.drawLayout = layout
	e.deletions.Push(DestroyDescriptorSetLayout(layout))

	return e.allocateDrawSet()
}

// allocateDrawSet points a fresh descriptor set at the draw image.
func (e *Engine) allocateDrawSet() error {
	set, err := e.descriptors.Allocate(e.drawLayout)
	if err != nil {
		return err
	}
	e.drawSet = set

	writeStorageImage(e.device, e.drawSet, 0, e.draw.View)
	return nil
}

func (e *Engine) createPipelines(code []uint32) error {
	pipeline, err := NewComputePipeline(e.device, e.drawLayout, code)
	if err != nil {
		return err
	}
	e.pipeline = pipeline
	e.deletions.Push(pipeline.Deletions()...)
	return nil
}

// Resized tells the engine that the window's framebuffer changed size. The
// swapchain is rebuilt after the next present.
func (e *Engine) Resized() {
	e.resized = true
}

// Defer schedules d for when the GPU has finished the most recently
// submitted frame.
func (e *Engine) Defer(d Deletion) {
	n := e.frames.Len()
	slot := e.frames.slots[(e.frames.Index()+n-1)%n]
	slot.Deletions.Push(d)
}

// Stats returns the current frame counters.
func (e *Engine) Stats() Stats {
	s := Stats{
		Frames:         e.frameNumber,
		FrameSlot:      e.frames.Index(),
		LastImageIndex: e.lastImage,
		Rebuilds:       e.rebuilds,
	}
	if e.swapchain != nil {
		s.ImageCount = len(e.swapchain.Images)
		s.Extent = e.swapchain.Extent
	}
	if e.draw != nil {
		s.DrawExtent = e.draw.Extent
	}
	return s
}

// Cleanup waits for the GPU to finish and releases everything in reverse
// order of creation. It is safe to call more than once.
func (e *Engine) Cleanup() {
	if e.cleaned {
		return
	}
	e.cleaned = true

	if e.device != nil {
		if err := e.device.WaitIdle(); err != nil {
			e.log.WithError(err).Error("Waiting for the device to become idle")
		}

		for _, slot := range e.frames.slots {
			slot.Deletions.Flush(e.destroyer)
		}
		e.deletions.Flush(e.destroyer)

		if e.swapchain != nil {
			e.swapchain.Destroy(e.destroyer)
			e.swapchain = nil
		}

		e.device.Destroy()
	}

	if e.ctx != nil {
		e.ctx.Destroy()
	}

	e.log.Debug("Engine cleaned up")
}

// IsFatal reports whether err leaves the engine unusable. Any failure
// between acquiring an image and presenting it is fatal.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, errFrameAbandoned) {
		return true
	}
	return !errors.Is(err, ErrSwapchainOutOfDate) &&
		!errors.Is(err, ErrResourceExhausted)
}
