package engine

import (
	"testing"

	. "github.com/onsi/gomega"
)

func ringOf(n int) frameRing {
	r := frameRing{}
	for i := 0; i < n; i++ {
		r.slots = append(r.slots, &FrameSlot{})
	}
	return r
}

func TestFrameRingCycles(t *testing.T) {
	for _, frames := range []int{1, 2, 3} {
		g := NewWithT(t)

		r := ringOf(frames)
		g.Expect(r.Len()).To(Equal(frames))

		var seen []int
		for i := 0; i < 3*frames+1; i++ {
			seen = append(seen, r.Index())
			g.Expect(r.Current()).To(BeIdenticalTo(r.slots[r.Index()]))
			r.advance()
		}

		for i, index := range seen {
			g.Expect(index).To(Equal(i%frames), "frames in flight %d, step %d", frames, i)
		}
	}
}

func TestFrameSlotDeletionsSkipMissingObjects(t *testing.T) {
	g := NewWithT(t)

	slot := &FrameSlot{}
	g.Expect(slot.deletions()).To(BeEmpty())

	rec := &recorder{}
	slot.release(rec)
	g.Expect(rec.calls).To(BeEmpty())
}
