package queues

import (
	"wurmple/optional"

	vk "github.com/vulkan-go/vulkan"
)

// FamilyIndices holds the indexes of Vulkan queue families needed by the engine.
type FamilyIndices struct {

	// Graphics is the index of the graphics queue family.
	Graphics optional.Optional[uint32]

	// Present is the index of the queue family used for presenting to the drawing
	// surface.
	Present optional.Optional[uint32]
}

// IsComplete returns true if all families have been set.
func (f *FamilyIndices) IsComplete() bool {
	return f.Graphics.HasValue() && f.Present.HasValue()
}

// Shared returns true when graphics and presentation are served by the same
// family. It is false for incomplete indices.
func (f *FamilyIndices) Shared() bool {
	return f.IsComplete() && f.Graphics.Get() == f.Present.Get()
}

// Unique returns the distinct family indexes in graphics, present order. Used
// for building the queue create infos and concurrent sharing lists.
func (f *FamilyIndices) Unique() []uint32 {
	var out []uint32
	if f.Graphics.HasValue() {
		out = append(out, f.Graphics.Get())
	}
	if f.Present.HasValue() && !f.Shared() {
		out = append(out, f.Present.Get())
	}
	return out
}

// Find selects queue families out of the per-family capability flags of a
// physical device. canPresent reports whether the family at an index may
// present to the target surface.
//
// A family which does both graphics and presentation is preferred. Failing
// that, the first graphics family and the first presenting family are used.
func Find(families []vk.QueueFlags, canPresent func(index uint32) bool) FamilyIndices {
	var (
		indices    FamilyIndices
		firstGfx   optional.Optional[uint32]
		firstPrsnt optional.Optional[uint32]
	)

	for i, flags := range families {
		index := uint32(i)
		graphics := flags&vk.QueueFlags(vk.QueueGraphicsBit) != 0
		present := canPresent(index)

		if graphics && present {
			indices.Graphics.Set(index)
			indices.Present.Set(index)
			return indices
		}

		if graphics && !firstGfx.HasValue() {
			firstGfx.Set(index)
		}
		if present && !firstPrsnt.HasValue() {
			firstPrsnt.Set(index)
		}
	}

	indices.Graphics = firstGfx
	indices.Present = firstPrsnt
	return indices
}
