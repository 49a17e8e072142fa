package engine

import (
	"cmp"
	"math"

	"wurmple/queues"

	"github.com/cockroachdb/errors"
	"github.com/sirupsen/logrus"
	vk "github.com/vulkan-go/vulkan"
)

// The only surface format the engine presents with.
const (
	SwapchainFormat     = vk.FormatB8g8r8a8Srgb
	SwapchainColorSpace = vk.ColorSpaceSrgbNonlinear
)

type swapchainSupport struct {
	capabilities vk.SurfaceCapabilities
	formats      []vk.SurfaceFormat
	presentModes []vk.PresentMode
}

func querySwapchainSupport(
	device vk.PhysicalDevice,
	surface vk.Surface,
) (swapchainSupport, error) {
	details := swapchainSupport{}

	var capabilities vk.SurfaceCapabilities
	res := vk.GetPhysicalDeviceSurfaceCapabilities(device, surface, &capabilities)
	if err := vkResult(res, "query device surface capabilities"); err != nil {
		return details, err
	}
	capabilities.Deref()
	capabilities.CurrentExtent.Deref()
	capabilities.MinImageExtent.Deref()
	capabilities.MaxImageExtent.Deref()

	details.capabilities = capabilities

	var formatCount uint32
	res = vk.GetPhysicalDeviceSurfaceFormats(device, surface, &formatCount, nil)
	if err := vkResult(res, "query device surface formats"); err != nil {
		return details, err
	}

	if formatCount != 0 {
		formats := make([]vk.SurfaceFormat, formatCount)
		vk.GetPhysicalDeviceSurfaceFormats(device, surface, &formatCount, formats)
		for _, format := range formats {
			format.Deref()
			details.formats = append(details.formats, format)
		}
	}

	var presentModeCount uint32
	res = vk.GetPhysicalDeviceSurfacePresentModes(device, surface, &presentModeCount, nil)
	if err := vkResult(res, "query device surface present modes"); err != nil {
		return details, err
	}

	if presentModeCount != 0 {
		presentModes := make([]vk.PresentMode, presentModeCount)
		vk.GetPhysicalDeviceSurfacePresentModes(
			device, surface, &presentModeCount, presentModes,
		)
		details.presentModes = presentModes
	}

	return details, nil
}

func chooseSurfaceFormat(available []vk.SurfaceFormat) (vk.SurfaceFormat, error) {
	for _, format := range available {
		if format.Format == SwapchainFormat && format.ColorSpace == SwapchainColorSpace {
			return format, nil
		}
	}

	return vk.SurfaceFormat{}, errors.Newf(
		"surface does not support format %d with color space %d among %d formats",
		SwapchainFormat, SwapchainColorSpace, len(available),
	)
}

func choosePresentMode(available []vk.PresentMode, want vk.PresentMode) (vk.PresentMode, error) {
	for _, mode := range available {
		if mode == want {
			return mode, nil
		}
	}

	return 0, errors.Newf("present mode %s is not supported by the surface",
		presentModeName(want))
}

// chooseExtent returns the surface's current extent, or the framebuffer size
// clamped to the surface limits when the surface lets the swapchain decide.
func chooseExtent(capabilities vk.SurfaceCapabilities, width, height int) vk.Extent2D {
	if capabilities.CurrentExtent.Width != math.MaxUint32 {
		return capabilities.CurrentExtent
	}

	return vk.Extent2D{
		Width: clamp(
			uint32(max(width, 0)),
			capabilities.MinImageExtent.Width,
			capabilities.MaxImageExtent.Width,
		),
		Height: clamp(
			uint32(max(height, 0)),
			capabilities.MinImageExtent.Height,
			capabilities.MaxImageExtent.Height,
		),
	}
}

// chooseImageCount asks for one image more than the minimum. A zero maximum
// means there is no limit.
func chooseImageCount(capabilities vk.SurfaceCapabilities) uint32 {
	imageCount := capabilities.MinImageCount + 1
	if capabilities.MaxImageCount > 0 && imageCount > capabilities.MaxImageCount {
		imageCount = capabilities.MaxImageCount
	}
	return imageCount
}

// sharingMode returns how swapchain images are shared between the graphics
// and present families, and the family list for concurrent sharing.
func sharingMode(families queues.FamilyIndices) (vk.SharingMode, []uint32) {
	if families.Shared() {
		return vk.SharingModeExclusive, nil
	}
	return vk.SharingModeConcurrent, families.Unique()
}

// Swapchain is the set of presentable images together with the settings
// they were created with.
type Swapchain struct {
	Handle      vk.Swapchain
	Format      vk.SurfaceFormat
	PresentMode vk.PresentMode
	Extent      vk.Extent2D
	Sharing     vk.SharingMode

	Images []vk.Image
	Views  []vk.ImageView

	layouts []trackedLayout
}

// NewSwapchain creates a swapchain for surface sized after window.
func NewSwapchain(
	dev *Device,
	surface vk.Surface,
	window Window,
	presentMode vk.PresentMode,
	log logrus.FieldLogger,
) (*Swapchain, error) {
	support, err := querySwapchainSupport(dev.Physical, surface)
	if err != nil {
		return nil, err
	}

	format, err := chooseSurfaceFormat(support.formats)
	if err != nil {
		return nil, err
	}
	mode, err := choosePresentMode(support.presentModes, presentMode)
	if err != nil {
		return nil, err
	}
	width, height := window.GetFramebufferSize()
	extent := chooseExtent(support.capabilities, width, height)
	if extent.Width == 0 || extent.Height == 0 {
		return nil, errors.Mark(
			errors.Newf("surface extent is %dx%d", extent.Width, extent.Height),
			ErrSwapchainOutOfDate,
		)
	}

	sharing, familyIndices := sharingMode(dev.Families)

	createInfo := vk.SwapchainCreateInfo{
		SType:            vk.StructureTypeSwapchainCreateInfo,
		Surface:          surface,
		MinImageCount:    chooseImageCount(support.capabilities),
		ImageColorSpace:  format.ColorSpace,
		ImageFormat:      format.Format,
		ImageExtent:      extent,
		ImageArrayLayers: 1,
		ImageUsage: vk.ImageUsageFlags(
			vk.ImageUsageColorAttachmentBit | vk.ImageUsageTransferDstBit,
		),
		ImageSharingMode:      sharing,
		QueueFamilyIndexCount: uint32(len(familyIndices)),
		PQueueFamilyIndices:   familyIndices,
		PreTransform:          support.capabilities.CurrentTransform,
		CompositeAlpha:        vk.CompositeAlphaOpaqueBit,
		PresentMode:           mode,
		Clipped:               vk.True,
		OldSwapchain:          vk.NullSwapchain,
	}

	var handle vk.Swapchain
	res := vk.CreateSwapchain(dev.Handle, &createInfo, nil, &handle)
	if err := vkResult(res, "vkCreateSwapchain"); err != nil {
		return nil, err
	}

	s := &Swapchain{
		Handle:      handle,
		Format:      format,
		PresentMode: mode,
		Extent:      extent,
		Sharing:     sharing,
	}

	var imagesCount uint32
	res = vk.GetSwapchainImages(dev.Handle, s.Handle, &imagesCount, nil)
	if err := vkResult(res, "vkGetSwapchainImages"); err != nil {
		s.Destroy(dev)
		return nil, err
	}
	s.Images = make([]vk.Image, imagesCount)
	res = vk.GetSwapchainImages(dev.Handle, s.Handle, &imagesCount, s.Images)
	if err := vkResult(res, "vkGetSwapchainImages"); err != nil {
		s.Images = nil
		s.Destroy(dev)
		return nil, err
	}

	s.layouts = make([]trackedLayout, len(s.Images))
	for _, image := range s.Images {
		view, err := createImageView(dev, image, format.Format)
		if err != nil {
			s.Destroy(dev)
			return nil, errors.Wrap(err, "creating swapchain image view")
		}
		s.Views = append(s.Views, view)
	}

	log.WithFields(logrus.Fields{
		"extent":  extentString(extent),
		"images":  len(s.Images),
		"present": presentModeName(mode),
		"sharing": sharing,
	}).Info("Swapchain created")

	return s, nil
}

// Transition records a layout transition of the image at index, using the
// layout the image was last transitioned to as the old layout.
func (s *Swapchain) Transition(cmd vk.CommandBuffer, index uint32, to vk.ImageLayout) error {
	return s.layouts[index].transition(cmd, s.Images[index], to)
}

// Discard marks the contents of the image at index as unneeded.
func (s *Swapchain) Discard(index uint32) {
	s.layouts[index].discard()
}

// Destroy releases the views and the swapchain. The images belong to the
// swapchain and go with it.
func (s *Swapchain) Destroy(d Destroyer) {
	var q DeletionQueue
	q.Push(DestroySwapchain(s.Handle))
	for _, view := range s.Views {
		q.Push(DestroyImageView(view))
	}
	q.Flush(d)

	s.Handle = vk.NullSwapchain
	s.Views = nil
	s.Images = nil
	s.layouts = nil
}

func presentModeName(mode vk.PresentMode) string {
	switch mode {
	case vk.PresentModeFifo:
		return "fifo"
	case vk.PresentModeMailbox:
		return "mailbox"
	case vk.PresentModeImmediate:
		return "immediate"
	case vk.PresentModeFifoRelaxed:
		return "fifo-relaxed"
	}
	return "unknown"
}

// PresentModeByName maps the configuration names of present modes.
func PresentModeByName(name string) (vk.PresentMode, error) {
	switch name {
	case "fifo":
		return vk.PresentModeFifo, nil
	case "mailbox":
		return vk.PresentModeMailbox, nil
	case "immediate":
		return vk.PresentModeImmediate, nil
	}
	return 0, errors.Newf("unknown present mode %q", name)
}

func clamp[T cmp.Ordered](val, min, max T) T {
	if val < min {
		return min
	}
	if val > max {
		return max
	}
	return val
}
