package engine

import (
	"fmt"

	vk "github.com/vulkan-go/vulkan"
)

// Destroyer releases Vulkan objects. *Device implements it against the real
// API; the deletion queue only ever talks to this interface.
type Destroyer interface {
	DestroyImageView(vk.ImageView)
	DestroyImage(vk.Image)
	FreeMemory(vk.DeviceMemory)
	DestroyShaderModule(vk.ShaderModule)
	DestroyPipeline(vk.Pipeline)
	DestroyPipelineLayout(vk.PipelineLayout)
	DestroyDescriptorSetLayout(vk.DescriptorSetLayout)
	DestroyDescriptorPool(vk.DescriptorPool)
	DestroyCommandPool(vk.CommandPool)
	DestroyFence(vk.Fence)
	DestroySemaphore(vk.Semaphore)
	DestroySwapchain(vk.Swapchain)
}

// DeletionKind tags a Deletion with the type of object it releases.
type DeletionKind int

// Deletion kinds.
const (
	KindImageView DeletionKind = iota
	KindImage
	KindMemory
	KindShaderModule
	KindPipeline
	KindPipelineLayout
	KindDescriptorSetLayout
	KindDescriptorPool
	KindCommandPool
	KindFence
	KindSemaphore
	KindSwapchain
)

var kindNames = [...]string{
	KindImageView:           "image view",
	KindImage:               "image",
	KindMemory:              "device memory",
	KindShaderModule:        "shader module",
	KindPipeline:            "pipeline",
	KindPipelineLayout:      "pipeline layout",
	KindDescriptorSetLayout: "descriptor set layout",
	KindDescriptorPool:      "descriptor pool",
	KindCommandPool:         "command pool",
	KindFence:               "fence",
	KindSemaphore:           "semaphore",
	KindSwapchain:           "swapchain",
}

func (k DeletionKind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return fmt.Sprintf("DeletionKind(%d)", int(k))
	}
	return kindNames[k]
}

// Deletion is a single deferred destroy command. Build them with the
// Destroy* functions of this package.
type Deletion struct {
	kind   DeletionKind
	handle any
}

// Kind returns which type of object d releases.
func (d Deletion) Kind() DeletionKind {
	return d.kind
}

func (d Deletion) String() string {
	return fmt.Sprintf("destroy %s %v", d.kind, d.handle)
}

func (d Deletion) apply(to Destroyer) {
	switch d.kind {
	case KindImageView:
		to.DestroyImageView(d.handle.(vk.ImageView))
	case KindImage:
		to.DestroyImage(d.handle.(vk.Image))
	case KindMemory:
		to.FreeMemory(d.handle.(vk.DeviceMemory))
	case KindShaderModule:
		to.DestroyShaderModule(d.handle.(vk.ShaderModule))
	case KindPipeline:
		to.DestroyPipeline(d.handle.(vk.Pipeline))
	case KindPipelineLayout:
		to.DestroyPipelineLayout(d.handle.(vk.PipelineLayout))
	case KindDescriptorSetLayout:
		to.DestroyDescriptorSetLayout(d.handle.(vk.DescriptorSetLayout))
	case KindDescriptorPool:
		to.DestroyDescriptorPool(d.handle.(vk.DescriptorPool))
	case KindCommandPool:
		to.DestroyCommandPool(d.handle.(vk.CommandPool))
	case KindFence:
		to.DestroyFence(d.handle.(vk.Fence))
	case KindSemaphore:
		to.DestroySemaphore(d.handle.(vk.Semaphore))
	case KindSwapchain:
		to.DestroySwapchain(d.handle.(vk.Swapchain))
	default:
		panic(fmt.Sprintf("unknown deletion kind %d", int(d.kind)))
	}
}

func DestroyImageView(h vk.ImageView) Deletion { return Deletion{KindImageView, h} }
func DestroyImage(h vk.Image) Deletion         { return Deletion{KindImage, h} }
func FreeMemory(h vk.DeviceMemory) Deletion    { return Deletion{KindMemory, h} }

func DestroyShaderModule(h vk.ShaderModule) Deletion {
	return Deletion{KindShaderModule, h}
}

func DestroyPipeline(h vk.Pipeline) Deletion { return Deletion{KindPipeline, h} }

func DestroyPipelineLayout(h vk.PipelineLayout) Deletion {
	return Deletion{KindPipelineLayout, h}
}

func DestroyDescriptorSetLayout(h vk.DescriptorSetLayout) Deletion {
	return Deletion{KindDescriptorSetLayout, h}
}

func DestroyDescriptorPool(h vk.DescriptorPool) Deletion {
	return Deletion{KindDescriptorPool, h}
}

func DestroyCommandPool(h vk.CommandPool) Deletion { return Deletion{KindCommandPool, h} }
func DestroyFence(h vk.Fence) Deletion             { return Deletion{KindFence, h} }
func DestroySemaphore(h vk.Semaphore) Deletion     { return Deletion{KindSemaphore, h} }
func DestroySwapchain(h vk.Swapchain) Deletion     { return Deletion{KindSwapchain, h} }

// DeletionQueue defers the destruction of GPU objects until a point where
// the GPU is known not to use them any more.
//
// Flush runs the queued deletions in reverse order of Push, so an object
// pushed after the objects it depends on is released before them. The zero
// value is an empty queue.
type DeletionQueue struct {
	pending []Deletion
}

// Push appends deletions to the queue. Several deletions in one call behave
// as if they were pushed one after another.
func (q *DeletionQueue) Push(ds ...Deletion) {
	q.pending = append(q.pending, ds...)
}

// Len returns the number of deletions waiting for Flush.
func (q *DeletionQueue) Len() int {
	return len(q.pending)
}

// Flush executes every pending deletion exactly once, newest first, and
// leaves the queue empty.
func (q *DeletionQueue) Flush(d Destroyer) {
	pending := q.pending
	q.pending = nil

	for i := len(pending) - 1; i >= 0; i-- {
		pending[i].apply(d)
	}
}
