package engine

import (
	"testing"

	. "github.com/onsi/gomega"
	vk "github.com/vulkan-go/vulkan"
)

func TestDescriptorLayoutBuilder(t *testing.T) {
	g := NewWithT(t)

	var b DescriptorLayoutBuilder
	b.AddBinding(0, vk.DescriptorTypeStorageImage)
	b.AddBinding(1, vk.DescriptorTypeUniformBuffer)

	compute := vk.ShaderStageFlags(vk.ShaderStageComputeBit)
	bindings := b.stamped(compute)

	g.Expect(bindings).To(HaveLen(2))
	for i, binding := range bindings {
		g.Expect(binding.Binding).To(BeEquivalentTo(i))
		g.Expect(binding.DescriptorCount).To(BeEquivalentTo(1))
		g.Expect(binding.StageFlags).To(Equal(compute))
	}
	g.Expect(bindings[0].DescriptorType).To(Equal(vk.DescriptorTypeStorageImage))
	g.Expect(bindings[1].DescriptorType).To(Equal(vk.DescriptorTypeUniformBuffer))

	g.Expect(b.bindings[0].StageFlags).To(BeZero(), "stamping must not modify the builder")

	b.Clear()
	g.Expect(b.stamped(compute)).To(BeEmpty())
}

func TestPoolSizes(t *testing.T) {
	g := NewWithT(t)

	sizes := poolSizes(10, []PoolSizeRatio{
		{Type: vk.DescriptorTypeStorageImage, Ratio: 1},
		{Type: vk.DescriptorTypeUniformBuffer, Ratio: 0.5},
		{Type: vk.DescriptorTypeSampler, Ratio: 0.01},
	})

	g.Expect(sizes).To(HaveLen(3))
	g.Expect(sizes[0].Type).To(Equal(vk.DescriptorTypeStorageImage))
	g.Expect(sizes[0].DescriptorCount).To(BeEquivalentTo(10))
	g.Expect(sizes[1].DescriptorCount).To(BeEquivalentTo(5))
	g.Expect(sizes[2].DescriptorCount).To(BeEquivalentTo(1), "every type keeps one slot")

	g.Expect(poolSizes(10, nil)).To(BeEmpty())
}
