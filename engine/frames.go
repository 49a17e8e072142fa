package engine

import (
	"github.com/cockroachdb/errors"
	vk "github.com/vulkan-go/vulkan"
)

// FrameSlot holds everything one frame in flight records and synchronizes
// with. Slots are reused in a ring.
type FrameSlot struct {
	CommandPool   vk.CommandPool
	CommandBuffer vk.CommandBuffer

	// ImageAcquired is signaled when the swapchain image is ready to be
	// written to.
	ImageAcquired vk.Semaphore

	// RenderComplete is signaled when the frame's commands finished and the
	// image may be presented.
	RenderComplete vk.Semaphore

	// RenderFence is signaled when the GPU is done with the slot. It is
	// created signaled so the first wait on it returns at once.
	RenderFence vk.Fence

	// Deletions are flushed once RenderFence has been waited on, i.e. when
	// the GPU no longer uses anything the slot's last frame referenced.
	Deletions DeletionQueue
}

func newFrameSlot(dev *Device) (*FrameSlot, error) {
	slot := &FrameSlot{}

	poolInfo := vk.CommandPoolCreateInfo{
		SType: vk.StructureTypeCommandPoolCreateInfo,
		Flags: vk.CommandPoolCreateFlags(
			vk.CommandPoolCreateResetCommandBufferBit,
		),
		QueueFamilyIndex: dev.Families.Graphics.Get(),
	}

	var commandPool vk.CommandPool
	res := vk.CreateCommandPool(dev.Handle, &poolInfo, nil, &commandPool)
	if err := vkResult(res, "vkCreateCommandPool"); err != nil {
		return nil, err
	}
	slot.CommandPool = commandPool

	allocInfo := vk.CommandBufferAllocateInfo{
		SType:              vk.StructureTypeCommandBufferAllocateInfo,
		CommandPool:        slot.CommandPool,
		Level:              vk.CommandBufferLevelPrimary,
		CommandBufferCount: 1,
	}

	commandBuffers := make([]vk.CommandBuffer, 1)
	res = vk.AllocateCommandBuffers(dev.Handle, &allocInfo, commandBuffers)
	if err := vkResult(res, "vkAllocateCommandBuffers"); err != nil {
		slot.release(dev)
		return nil, err
	}
	slot.CommandBuffer = commandBuffers[0]

	semaphoreInfo := vk.SemaphoreCreateInfo{
		SType: vk.StructureTypeSemaphoreCreateInfo,
	}

	fenceInfo := vk.FenceCreateInfo{
		SType: vk.StructureTypeFenceCreateInfo,
		Flags: vk.FenceCreateFlags(vk.FenceCreateSignaledBit),
	}

	var imageAcquired vk.Semaphore
	res = vk.CreateSemaphore(dev.Handle, &semaphoreInfo, nil, &imageAcquired)
	if err := vkResult(res, "creating image acquired semaphore"); err != nil {
		slot.release(dev)
		return nil, err
	}
	slot.ImageAcquired = imageAcquired

	var renderComplete vk.Semaphore
	res = vk.CreateSemaphore(dev.Handle, &semaphoreInfo, nil, &renderComplete)
	if err := vkResult(res, "creating render complete semaphore"); err != nil {
		slot.release(dev)
		return nil, err
	}
	slot.RenderComplete = renderComplete

	var fence vk.Fence
	res = vk.CreateFence(dev.Handle, &fenceInfo, nil, &fence)
	if err := vkResult(res, "creating render fence"); err != nil {
		slot.release(dev)
		return nil, err
	}
	slot.RenderFence = fence

	return slot, nil
}

// deletions returns what releases the slot's own objects, in push order.
// Destroying the pool frees its command buffer.
func (s *FrameSlot) deletions() []Deletion {
	var ds []Deletion
	if s.CommandPool != vk.NullCommandPool {
		ds = append(ds, DestroyCommandPool(s.CommandPool))
	}
	if s.ImageAcquired != vk.NullSemaphore {
		ds = append(ds, DestroySemaphore(s.ImageAcquired))
	}
	if s.RenderComplete != vk.NullSemaphore {
		ds = append(ds, DestroySemaphore(s.RenderComplete))
	}
	if s.RenderFence != vk.NullFence {
		ds = append(ds, DestroyFence(s.RenderFence))
	}
	return ds
}

func (s *FrameSlot) release(d Destroyer) {
	var q DeletionQueue
	q.Push(s.deletions()...)
	q.Flush(d)
}

// frameRing cycles through a fixed number of frame slots.
type frameRing struct {
	slots   []*FrameSlot
	current int
}

// newFrameRing creates count slots. Their objects are pushed to q.
func newFrameRing(dev *Device, count int, q *DeletionQueue) (frameRing, error) {
	if count < 1 {
		return frameRing{}, errors.Newf("need at least one frame in flight, got %d", count)
	}

	ring := frameRing{slots: make([]*FrameSlot, 0, count)}
	for i := 0; i < count; i++ {
		slot, err := newFrameSlot(dev)
		if err != nil {
			return ring, errors.Wrapf(err, "frame slot %d", i)
		}
		q.Push(slot.deletions()...)
		ring.slots = append(ring.slots, slot)
	}

	return ring, nil
}

// Current returns the slot the next frame is recorded into.
func (r *frameRing) Current() *FrameSlot {
	return r.slots[r.current]
}

// Index returns the position of the current slot.
func (r *frameRing) Index() int {
	return r.current
}

// Len returns the number of frames in flight.
func (r *frameRing) Len() int {
	return len(r.slots)
}

// advance moves to the next slot. It is called once per submitted frame.
func (r *frameRing) advance() {
	r.current = (r.current + 1) % len(r.slots)
}
