package engine

import (
	"testing"

	. "github.com/onsi/gomega"
	vk "github.com/vulkan-go/vulkan"
)

func TestFindMemoryType(t *testing.T) {
	g := NewWithT(t)

	hostVisible := vk.MemoryPropertyFlags(
		vk.MemoryPropertyHostVisibleBit | vk.MemoryPropertyHostCoherentBit)
	deviceLocal := vk.MemoryPropertyFlags(vk.MemoryPropertyDeviceLocalBit)

	types := []vk.MemoryPropertyFlags{
		hostVisible,
		deviceLocal,
		deviceLocal | hostVisible,
	}

	index, err := findMemoryType(types, 0b111, deviceLocal)
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(index).To(BeEquivalentTo(1))

	index, err = findMemoryType(types, 0b101, deviceLocal)
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(index).To(BeEquivalentTo(2), "the filter excludes type 1")

	index, err = findMemoryType(types, 0b111, hostVisible)
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(index).To(BeEquivalentTo(0))

	_, err = findMemoryType(types, 0b001, deviceLocal)
	g.Expect(err).To(HaveOccurred())

	_, err = findMemoryType(nil, 0xffffffff, deviceLocal)
	g.Expect(err).To(HaveOccurred())
}

func TestAllocatedImageDeletions(t *testing.T) {
	g := NewWithT(t)

	img := &AllocatedImage{}
	g.Expect(img.Deletions()).To(BeEmpty(), "nothing was created")

	rec := &recorder{}
	img.Release(rec)
	g.Expect(rec.calls).To(BeEmpty(), "releasing a never created image is a no-op")
}

func TestAllocatedImageLayoutTracking(t *testing.T) {
	g := NewWithT(t)

	img := &AllocatedImage{}
	g.Expect(img.Layout()).To(Equal(vk.ImageLayoutUndefined))

	_, _, err := img.layout.next(vk.ImageLayoutGeneral)
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(img.Layout()).To(Equal(vk.ImageLayoutGeneral))

	_, _, err = img.layout.next(vk.ImageLayoutPresentSrc)
	g.Expect(err).To(HaveOccurred())
	g.Expect(img.Layout()).To(Equal(vk.ImageLayoutGeneral))
}
