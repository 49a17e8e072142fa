package queues_test

import (
	"testing"

	. "github.com/onsi/gomega"
	vk "github.com/vulkan-go/vulkan"

	"wurmple/queues"
)

var (
	graphics = vk.QueueFlags(vk.QueueGraphicsBit)
	compute  = vk.QueueFlags(vk.QueueComputeBit)
	transfer = vk.QueueFlags(vk.QueueTransferBit)
)

func presentOn(indexes ...uint32) func(uint32) bool {
	return func(i uint32) bool {
		for _, idx := range indexes {
			if idx == i {
				return true
			}
		}
		return false
	}
}

func TestFindPrefersSharedFamily(t *testing.T) {
	g := NewWithT(t)

	families := []vk.QueueFlags{graphics, transfer, graphics | compute}
	indices := queues.Find(families, presentOn(1, 2))

	g.Expect(indices.IsComplete()).To(BeTrue())
	g.Expect(indices.Graphics.Get()).To(Equal(uint32(2)))
	g.Expect(indices.Present.Get()).To(Equal(uint32(2)))
	g.Expect(indices.Shared()).To(BeTrue())
	g.Expect(indices.Unique()).To(Equal([]uint32{2}))
}

func TestFindSplitFamilies(t *testing.T) {
	g := NewWithT(t)

	families := []vk.QueueFlags{compute, graphics, transfer, graphics}
	indices := queues.Find(families, presentOn(0, 2))

	g.Expect(indices.IsComplete()).To(BeTrue())
	g.Expect(indices.Graphics.Get()).To(Equal(uint32(1)))
	g.Expect(indices.Present.Get()).To(Equal(uint32(0)))
	g.Expect(indices.Shared()).To(BeFalse())
	g.Expect(indices.Unique()).To(Equal([]uint32{1, 0}))
}

// Every combination of three families with random-ish capabilities: the
// indices are complete exactly when some family has graphics and some family
// can present.
func TestFindCompleteness(t *testing.T) {
	g := NewWithT(t)

	options := []vk.QueueFlags{0, graphics, compute, graphics | compute, transfer}

	for _, a := range options {
		for _, b := range options {
			for _, c := range options {
				for mask := 0; mask < 8; mask++ {
					families := []vk.QueueFlags{a, b, c}
					canPresent := func(i uint32) bool { return mask&(1<<i) != 0 }

					hasGraphics := false
					for _, f := range families {
						if f&graphics != 0 {
							hasGraphics = true
						}
					}
					hasPresent := mask != 0

					indices := queues.Find(families, canPresent)
					g.Expect(indices.IsComplete()).To(Equal(hasGraphics && hasPresent),
						"families %v present mask %03b", families, mask)
					g.Expect(indices.Graphics.HasValue()).To(Equal(hasGraphics))
					g.Expect(indices.Present.HasValue()).To(Equal(hasPresent))

					if indices.Graphics.HasValue() {
						g.Expect(families[indices.Graphics.Get()] & graphics).NotTo(BeZero())
					}
					if indices.Present.HasValue() {
						g.Expect(canPresent(indices.Present.Get())).To(BeTrue())
					}
				}
			}
		}
	}
}

func TestFindNoFamilies(t *testing.T) {
	g := NewWithT(t)

	indices := queues.Find(nil, presentOn())
	g.Expect(indices.IsComplete()).To(BeFalse())
	g.Expect(indices.Unique()).To(BeEmpty())
}
