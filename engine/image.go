package engine

import (
	"fmt"

	"github.com/cockroachdb/errors"
	vk "github.com/vulkan-go/vulkan"
)

// DrawFormat is the format of the offscreen image the frame is rendered to.
const DrawFormat = vk.FormatR16g16b16a16Sfloat

// AllocatedImage is an image with its own device memory and a view over
// the whole of it. It tracks its current layout.
type AllocatedImage struct {
	Image  vk.Image
	View   vk.ImageView
	Memory vk.DeviceMemory
	Extent vk.Extent2D
	Format vk.Format

	layout trackedLayout
}

// NewDrawImage allocates the offscreen render target. It may be written by
// compute shaders, used as a color attachment and blitted from and to.
func NewDrawImage(dev *Device, extent vk.Extent2D) (*AllocatedImage, error) {
	usage := vk.ImageUsageFlags(
		vk.ImageUsageTransferSrcBit |
			vk.ImageUsageTransferDstBit |
			vk.ImageUsageStorageBit |
			vk.ImageUsageColorAttachmentBit,
	)
	return newAllocatedImage(dev, extent, DrawFormat, usage)
}

func newAllocatedImage(
	dev *Device,
	extent vk.Extent2D,
	format vk.Format,
	usage vk.ImageUsageFlags,
) (*AllocatedImage, error) {
	img := &AllocatedImage{
		Extent: extent,
		Format: format,
	}

	imageInfo := vk.ImageCreateInfo{
		SType:     vk.StructureTypeImageCreateInfo,
		ImageType: vk.ImageType2d,
		Extent: vk.Extent3D{
			Width:  extent.Width,
			Height: extent.Height,
			Depth:  1,
		},
		MipLevels:     1,
		ArrayLayers:   1,
		Format:        format,
		Tiling:        vk.ImageTilingOptimal,
		InitialLayout: vk.ImageLayoutUndefined,
		Usage:         usage,
		SharingMode:   vk.SharingModeExclusive,
		Samples:       vk.SampleCount1Bit,
	}

	var image vk.Image
	if err := vkResult(vk.CreateImage(dev.Handle, &imageInfo, nil, &image), "vkCreateImage"); err != nil {
		return nil, err
	}
	img.Image = image

	var memRequirements vk.MemoryRequirements
	vk.GetImageMemoryRequirements(dev.Handle, image, &memRequirements)
	memRequirements.Deref()

	memTypeIndex, err := findMemoryType(
		dev.memoryTypes,
		memRequirements.MemoryTypeBits,
		vk.MemoryPropertyFlags(vk.MemoryPropertyDeviceLocalBit),
	)
	if err != nil {
		img.Release(dev)
		return nil, err
	}

	allocInfo := vk.MemoryAllocateInfo{
		SType:           vk.StructureTypeMemoryAllocateInfo,
		AllocationSize:  memRequirements.Size,
		MemoryTypeIndex: memTypeIndex,
	}

	var memory vk.DeviceMemory
	if err := vkResult(vk.AllocateMemory(dev.Handle, &allocInfo, nil, &memory), "vkAllocateMemory"); err != nil {
		img.Release(dev)
		return nil, err
	}
	img.Memory = memory

	if err := vkResult(vk.BindImageMemory(dev.Handle, image, memory, 0), "vkBindImageMemory"); err != nil {
		img.Release(dev)
		return nil, err
	}

	view, err := createImageView(dev, image, format)
	if err != nil {
		img.Release(dev)
		return nil, err
	}
	img.View = view

	return img, nil
}

// Deletions returns what releases the image, in push order.
func (img *AllocatedImage) Deletions() []Deletion {
	var ds []Deletion
	if img.Memory != vk.NullDeviceMemory {
		ds = append(ds, FreeMemory(img.Memory))
	}
	if img.Image != vk.NullImage {
		ds = append(ds, DestroyImage(img.Image))
	}
	if img.View != vk.NullImageView {
		ds = append(ds, DestroyImageView(img.View))
	}
	return ds
}

// Release destroys the image right away. Used for failed constructions;
// normally the image goes through a deletion queue.
func (img *AllocatedImage) Release(d Destroyer) {
	var q DeletionQueue
	q.Push(img.Deletions()...)
	q.Flush(d)

	img.View = vk.NullImageView
	img.Image = vk.NullImage
	img.Memory = vk.NullDeviceMemory
}

// Layout returns the layout the image was last transitioned to.
func (img *AllocatedImage) Layout() vk.ImageLayout {
	return img.layout.current
}

// Transition records a barrier moving the image from its tracked layout to
// the given one.
func (img *AllocatedImage) Transition(cmd vk.CommandBuffer, to vk.ImageLayout) error {
	return img.layout.transition(cmd, img.Image, to)
}

// findMemoryType returns the first memory type allowed by typeFilter which
// has all of the wanted properties.
func findMemoryType(
	memoryTypes []vk.MemoryPropertyFlags,
	typeFilter uint32,
	properties vk.MemoryPropertyFlags,
) (uint32, error) {
	for i, flags := range memoryTypes {
		if typeFilter&(1<<i) == 0 {
			continue
		}
		if flags&properties == properties {
			return uint32(i), nil
		}
	}

	return 0, errors.Newf("no memory type with properties %#x in filter %#b",
		properties, typeFilter)
}

func createImageView(dev *Device, image vk.Image, format vk.Format) (vk.ImageView, error) {
	createInfo := vk.ImageViewCreateInfo{
		SType:    vk.StructureTypeImageViewCreateInfo,
		Image:    image,
		ViewType: vk.ImageViewType2d,
		Format:   format,
		Components: vk.ComponentMapping{
			R: vk.ComponentSwizzleIdentity,
			G: vk.ComponentSwizzleIdentity,
			B: vk.ComponentSwizzleIdentity,
			A: vk.ComponentSwizzleIdentity,
		},
		SubresourceRange: colorSubresourceRange(),
	}

	var imageView vk.ImageView
	res := vk.CreateImageView(dev.Handle, &createInfo, nil, &imageView)
	if err := vkResult(res, "vkCreateImageView"); err != nil {
		return vk.NullImageView, err
	}
	return imageView, nil
}

func extentString(e vk.Extent2D) string {
	return fmt.Sprintf("%dx%d", e.Width, e.Height)
}
