package engine

import (
	"github.com/cockroachdb/errors"
	vk "github.com/vulkan-go/vulkan"
)

// DescriptorLayoutBuilder collects bindings for a descriptor set layout.
type DescriptorLayoutBuilder struct {
	bindings []vk.DescriptorSetLayoutBinding
}

// AddBinding adds a single descriptor of the given type at binding.
func (b *DescriptorLayoutBuilder) AddBinding(binding uint32, typ vk.DescriptorType) {
	b.bindings = append(b.bindings, vk.DescriptorSetLayoutBinding{
		Binding:         binding,
		DescriptorType:  typ,
		DescriptorCount: 1,
	})
}

// Clear removes all bindings so the builder can be reused.
func (b *DescriptorLayoutBuilder) Clear() {
	b.bindings = nil
}

// stamped returns the bindings made visible to the given shader stages.
func (b *DescriptorLayoutBuilder) stamped(stages vk.ShaderStageFlags) []vk.DescriptorSetLayoutBinding {
	out := make([]vk.DescriptorSetLayoutBinding, len(b.bindings))
	for i, binding := range b.bindings {
		binding.StageFlags |= stages
		out[i] = binding
	}
	return out
}

// Build creates a layout with every added binding visible to stages.
func (b *DescriptorLayoutBuilder) Build(
	dev *Device,
	stages vk.ShaderStageFlags,
) (vk.DescriptorSetLayout, error) {
	bindings := b.stamped(stages)

	layoutInfo := vk.DescriptorSetLayoutCreateInfo{
		SType:        vk.StructureTypeDescriptorSetLayoutCreateInfo,
		BindingCount: uint32(len(bindings)),
		PBindings:    bindings,
	}

	var layout vk.DescriptorSetLayout
	res := vk.CreateDescriptorSetLayout(dev.Handle, &layoutInfo, nil, &layout)
	if err := vkResult(res, "vkCreateDescriptorSetLayout"); err != nil {
		return vk.NullDescriptorSetLayout, err
	}
	return layout, nil
}

// PoolSizeRatio says how many descriptors of a type to reserve per set.
type PoolSizeRatio struct {
	Type  vk.DescriptorType
	Ratio float32
}

// poolSizes turns ratios into pool sizes for maxSets sets. Every type gets
// room for at least one descriptor.
func poolSizes(maxSets uint32, ratios []PoolSizeRatio) []vk.DescriptorPoolSize {
	sizes := make([]vk.DescriptorPoolSize, 0, len(ratios))
	for _, ratio := range ratios {
		count := uint32(ratio.Ratio * float32(maxSets))
		sizes = append(sizes, vk.DescriptorPoolSize{
			Type:            ratio.Type,
			DescriptorCount: max(count, 1),
		})
	}
	return sizes
}

// DescriptorAllocator hands out descriptor sets from a single pool.
type DescriptorAllocator struct {
	Pool vk.DescriptorPool

	dev *Device
}

// NewDescriptorAllocator creates a pool for maxSets sets sized by ratios.
func NewDescriptorAllocator(
	dev *Device,
	maxSets uint32,
	ratios []PoolSizeRatio,
) (*DescriptorAllocator, error) {
	if maxSets == 0 || len(ratios) == 0 {
		return nil, errors.New("descriptor pool needs at least one set and one pool size")
	}

	sizes := poolSizes(maxSets, ratios)
	poolInfo := vk.DescriptorPoolCreateInfo{
		SType:         vk.StructureTypeDescriptorPoolCreateInfo,
		MaxSets:       maxSets,
		PoolSizeCount: uint32(len(sizes)),
		PPoolSizes:    sizes,
	}

	var pool vk.DescriptorPool
	res := vk.CreateDescriptorPool(dev.Handle, &poolInfo, nil, &pool)
	if err := vkResult(res, "vkCreateDescriptorPool"); err != nil {
		return nil, err
	}

	return &DescriptorAllocator{Pool: pool, dev: dev}, nil
}

// Allocate returns a new set with the given layout. An exhausted pool is
// reported as ErrResourceExhausted.
func (a *DescriptorAllocator) Allocate(layout vk.DescriptorSetLayout) (vk.DescriptorSet, error) {
	allocInfo := vk.DescriptorSetAllocateInfo{
		SType:              vk.StructureTypeDescriptorSetAllocateInfo,
		DescriptorPool:     a.Pool,
		DescriptorSetCount: 1,
		PSetLayouts:        []vk.DescriptorSetLayout{layout},
	}

	var set vk.DescriptorSet
	res := vk.AllocateDescriptorSets(a.dev.Handle, &allocInfo, &set)
	if err := vkResult(res, "vkAllocateDescriptorSets"); err != nil {
		return set, err
	}
	return set, nil
}

// Reset returns every set allocated so far to the pool.
func (a *DescriptorAllocator) Reset() error {
	return vkResult(vk.ResetDescriptorPool(a.dev.Handle, a.Pool, 0), "vkResetDescriptorPool")
}

// Deletion releases the pool together with every set allocated from it.
func (a *DescriptorAllocator) Deletion() Deletion {
	return DestroyDescriptorPool(a.Pool)
}

// writeStorageImage points binding of set at view. The image must be in the
// General layout whenever the set is used.
func writeStorageImage(dev *Device, set vk.DescriptorSet, binding uint32, view vk.ImageView) {
	write := vk.WriteDescriptorSet{
		SType:           vk.StructureTypeWriteDescriptorSet,
		DstSet:          set,
		DstBinding:      binding,
		DescriptorCount: 1,
		DescriptorType:  vk.DescriptorTypeStorageImage,
		PImageInfo: []vk.DescriptorImageInfo{{
			ImageLayout: vk.ImageLayoutGeneral,
			ImageView:   view,
		}},
	}

	vk.UpdateDescriptorSets(dev.Handle, 1, []vk.WriteDescriptorSet{write}, 0, nil)
}
