package engine

import (
	"math"
	"testing"
	"unsafe"

	"github.com/cockroachdb/errors"
	. "github.com/onsi/gomega"
	vk "github.com/vulkan-go/vulkan"
)

func TestGroupCounts(t *testing.T) {
	tests := []struct {
		width, height uint32
		x, y          uint32
	}{
		{1, 1, 1, 1},
		{16, 16, 1, 1},
		{17, 16, 2, 1},
		{1920, 1080, 120, 68},
		{1080, 720, 68, 45},
		{0, 0, 0, 0},
	}

	for _, test := range tests {
		g := NewWithT(t)

		x, y := groupCounts(vk.Extent2D{Width: test.width, Height: test.height})
		g.Expect(x).To(Equal(test.x), "%dx%d", test.width, test.height)
		g.Expect(y).To(Equal(test.y), "%dx%d", test.width, test.height)
		g.Expect(x*workgroupSize).To(BeNumerically(">=", test.width))
		g.Expect(y*workgroupSize).To(BeNumerically(">=", test.height))
	}
}

func TestFlashIntensity(t *testing.T) {
	g := NewWithT(t)

	g.Expect(flashIntensity(0)).To(BeZero())

	peak := uint64(math.Round(120 * math.Pi / 2))
	g.Expect(flashIntensity(peak)).To(BeNumerically("~", 1, 1e-3))

	for frame := uint64(0); frame < 2000; frame += 7 {
		v := flashIntensity(frame)
		g.Expect(v).To(BeNumerically(">=", 0), "frame %d", frame)
		g.Expect(v).To(BeNumerically("<=", 1), "frame %d", frame)
	}
}

func TestBackgroundConstants(t *testing.T) {
	g := NewWithT(t)

	g.Expect(unsafe.Sizeof(PushConstants{})).To(BeEquivalentTo(64))
	g.Expect(pushConstantsSize).To(BeEquivalentTo(64))

	pc := backgroundConstants(188)
	flash := flashIntensity(188)
	g.Expect(pc.Top[2]).To(Equal(flash))
	g.Expect(pc.Top[3]).To(BeEquivalentTo(1))
	g.Expect(pc.Bottom[2]).To(BeNumerically("<", pc.Top[2]))
	g.Expect(pc.Flash[3]).To(BeZero())
}

func TestIsFatal(t *testing.T) {
	g := NewWithT(t)

	g.Expect(IsFatal(nil)).To(BeFalse())
	g.Expect(IsFatal(vkResult(vk.ErrorOutOfDate, "present"))).To(BeFalse())
	g.Expect(IsFatal(vkResult(vk.ErrorOutOfPoolMemory, "allocate"))).To(BeFalse())
	g.Expect(IsFatal(vkResult(vk.ErrorDeviceLost, "submit"))).To(BeTrue())
	g.Expect(IsFatal(vkResult(vk.Timeout, "wait"))).To(BeTrue())
	g.Expect(IsFatal(errors.New("anything else"))).To(BeTrue())
}

func TestFailuresAfterAcquireAreFatal(t *testing.T) {
	g := NewWithT(t)

	g.Expect(abandonFrame(nil)).To(Succeed())

	for _, res := range []vk.Result{
		vk.ErrorOutOfHostMemory,
		vk.ErrorOutOfDeviceMemory,
		vk.ErrorOutOfDate,
		vk.ErrorDeviceLost,
	} {
		err := abandonFrame(vkResult(res, "vkQueueSubmit"))
		g.Expect(IsFatal(err)).To(BeTrue(), "result %d", res)
		g.Expect(IsFatal(errors.Wrap(err, "drawing"))).To(BeTrue(), "result %d", res)
	}

	err := abandonFrame(vkResult(vk.ErrorOutOfHostMemory, "vkQueueSubmit"))
	g.Expect(errors.Is(err, ErrResourceExhausted)).To(BeTrue(), "the kind is kept")
}

func TestDrawImageWaitsForPreviousBlit(t *testing.T) {
	g := NewWithT(t)

	img := &AllocatedImage{}

	var frames [2][]barrierMasks
	for frame := range frames {
		for _, to := range drawLayouts {
			_, masks, err := img.layout.next(to)
			g.Expect(err).NotTo(HaveOccurred(), "frame %d to %d", frame, to)
			frames[frame] = append(frames[frame], masks)
		}
	}

	for frame, barriers := range frames {
		first := barriers[0]
		g.Expect(first.srcStage).To(Equal(vk.PipelineStageTransferBit),
			"frame %d starts writing before the last blit finished", frame)
		g.Expect(first.dstStage).To(Equal(vk.PipelineStageComputeShaderBit))
	}

	second := frames[1][0]
	g.Expect(second.srcAccess).To(Equal(vk.AccessTransferReadBit))
	g.Expect(img.Layout()).To(Equal(vk.ImageLayoutTransferSrcOptimal))
}

func TestDeferUsesLastSubmittedSlot(t *testing.T) {
	g := NewWithT(t)

	e := &Engine{frames: ringOf(3)}

	e.Defer(DestroyFence(vk.NullFence))
	g.Expect(e.frames.slots[2].Deletions.Len()).To(Equal(1),
		"before any frame the last slot is the previous one")

	e.frames.advance()
	e.Defer(DestroySemaphore(vk.NullSemaphore))
	g.Expect(e.frames.slots[0].Deletions.Len()).To(Equal(1))
	g.Expect(e.frames.slots[1].Deletions.Len()).To(BeZero())
}

func TestStatsWithoutGPU(t *testing.T) {
	g := NewWithT(t)

	e := &Engine{frames: ringOf(2), frameNumber: 5, lastImage: 1}
	e.frames.advance()

	s := e.Stats()
	g.Expect(s.Frames).To(BeEquivalentTo(5))
	g.Expect(s.FrameSlot).To(Equal(1))
	g.Expect(s.LastImageIndex).To(BeEquivalentTo(1))
	g.Expect(s.ImageCount).To(BeZero())
}
