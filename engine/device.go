package engine

import (
	"strings"

	"wurmple/queues"

	"github.com/cockroachdb/errors"
	"github.com/sirupsen/logrus"
	vk "github.com/vulkan-go/vulkan"
)

// deviceExtensions are required from every physical device the engine uses.
var deviceExtensions = []string{
	vk.KhrSwapchainExtensionName + "\x00",
}

// Device is the chosen physical device together with the logical device
// created on it and its queues. It implements Destroyer.
type Device struct {
	Physical vk.PhysicalDevice
	Handle   vk.Device
	Families queues.FamilyIndices

	GraphicsQueue vk.Queue

	// PresentQueue is the same queue as GraphicsQueue when one family
	// handles both.
	PresentQueue vk.Queue

	Name string

	memoryTypes []vk.MemoryPropertyFlags
}

// deviceCandidate is what the selector learned about one physical device.
type deviceCandidate struct {
	name              string
	families          queues.FamilyIndices
	missingExtensions []string
	formats           int
	presentModes      int
}

// verdict returns an empty string for suitable devices and the reason for
// rejecting the device otherwise.
func (c deviceCandidate) verdict() string {
	switch {
	case !c.families.Graphics.HasValue():
		return "no graphics queue family"
	case !c.families.Present.HasValue():
		return "no queue family can present to the surface"
	case len(c.missingExtensions) > 0:
		return "missing extensions " + strings.Join(c.missingExtensions, ", ")
	case c.formats == 0:
		return "no surface formats"
	case c.presentModes == 0:
		return "no present modes"
	}
	return ""
}

func (c deviceCandidate) suitable() bool {
	return c.verdict() == ""
}

// firstSuitable returns the index of the first suitable candidate or -1.
func firstSuitable(candidates []deviceCandidate) int {
	for i, c := range candidates {
		if c.suitable() {
			return i
		}
	}
	return -1
}

// NewDevice selects the first physical device in enumeration order which
// can render and present to the context's surface, then creates a logical
// device with one graphics and one present queue on it.
func NewDevice(ctx *Context, log logrus.FieldLogger) (*Device, error) {
	physical, candidate, err := pickPhysicalDevice(ctx.Instance, ctx.Surface, log)
	if err != nil {
		return nil, err
	}

	d := &Device{
		Physical: physical,
		Families: candidate.families,
		Name:     candidate.name,
	}

	if err := d.createLogicalDevice(ctx.Layers); err != nil {
		return nil, errors.Wrap(err, "createLogicalDevice")
	}
	d.loadMemoryTypes()

	log.WithFields(logrus.Fields{
		"device":   d.Name,
		"graphics": d.Families.Graphics.Get(),
		"present":  d.Families.Present.Get(),
	}).Info("Using physical device")

	return d, nil
}

func pickPhysicalDevice(
	instance vk.Instance,
	surface vk.Surface,
	log logrus.FieldLogger,
) (vk.PhysicalDevice, deviceCandidate, error) {
	var deviceCount uint32
	err := vkResult(vk.EnumeratePhysicalDevices(instance, &deviceCount, nil),
		"vkEnumeratePhysicalDevices")
	if err != nil {
		return nil, deviceCandidate{}, err
	}
	if deviceCount == 0 {
		return nil, deviceCandidate{}, errors.Wrap(ErrNoSuitableDevice,
			"failed to find GPUs with Vulkan support")
	}

	pDevices := make([]vk.PhysicalDevice, deviceCount)
	err = vkResult(vk.EnumeratePhysicalDevices(instance, &deviceCount, pDevices),
		"vkEnumeratePhysicalDevices")
	if err != nil {
		return nil, deviceCandidate{}, err
	}

	candidates := make([]deviceCandidate, 0, len(pDevices))
	for _, device := range pDevices {
		candidate := probeDevice(device, surface, log)
		candidates = append(candidates, candidate)

		entry := log.WithField("device", candidate.name)
		if reason := candidate.verdict(); reason != "" {
			entry.WithField("reason", reason).Debug("Rejected physical device")
		} else {
			entry.Debug("Suitable physical device")
		}
	}

	chosen := firstSuitable(candidates)
	if chosen < 0 {
		return nil, deviceCandidate{}, errors.Wrapf(ErrNoSuitableDevice,
			"none of %d physical devices can render to the surface", len(pDevices))
	}

	return pDevices[chosen], candidates[chosen], nil
}

func probeDevice(
	device vk.PhysicalDevice,
	surface vk.Surface,
	log logrus.FieldLogger,
) deviceCandidate {
	var properties vk.PhysicalDeviceProperties
	vk.GetPhysicalDeviceProperties(device, &properties)
	properties.Deref()

	c := deviceCandidate{
		name:     vk.ToString(properties.DeviceName[:]),
		families: findQueueFamilies(device, surface, log),
	}

	available, err := deviceExtensionNames(device)
	if err != nil {
		log.WithError(err).WithField("device", c.name).Warn("Listing device extensions")
		c.missingExtensions = deviceExtensions
		return c
	}
	c.missingExtensions = missingNames(deviceExtensions, available)
	if len(c.missingExtensions) > 0 {
		return c
	}

	support, err := querySwapchainSupport(device, surface)
	if err != nil {
		log.WithError(err).WithField("device", c.name).Warn("Querying swapchain support")
		return c
	}
	c.formats = len(support.formats)
	c.presentModes = len(support.presentModes)

	return c
}

// findQueueFamilies returns the queue families of device which the engine
// will use for rendering to and presenting on surface.
func findQueueFamilies(
	device vk.PhysicalDevice,
	surface vk.Surface,
	log logrus.FieldLogger,
) queues.FamilyIndices {
	var queueFamilyCount uint32
	vk.GetPhysicalDeviceQueueFamilyProperties(device, &queueFamilyCount, nil)

	queueFamilies := make([]vk.QueueFamilyProperties, queueFamilyCount)
	vk.GetPhysicalDeviceQueueFamilyProperties(device, &queueFamilyCount, queueFamilies)

	flags := make([]vk.QueueFlags, len(queueFamilies))
	for i, family := range queueFamilies {
		family.Deref()
		flags[i] = family.QueueFlags
	}

	return queues.Find(flags, func(index uint32) bool {
		var hasPresent vk.Bool32
		res := vk.GetPhysicalDeviceSurfaceSupport(device, index, surface, &hasPresent)
		if err := vkResult(res, "vkGetPhysicalDeviceSurfaceSupport"); err != nil {
			log.WithError(err).WithField("family", index).
				Warn("Querying surface support for queue family")
			return false
		}
		return hasPresent.B()
	})
}

func deviceExtensionNames(device vk.PhysicalDevice) ([]string, error) {
	var extensionsCount uint32
	res := vk.EnumerateDeviceExtensionProperties(device, "", &extensionsCount, nil)
	if err := vkResult(res, "vkEnumerateDeviceExtensionProperties"); err != nil {
		return nil, err
	}

	availableExtensions := make([]vk.ExtensionProperties, extensionsCount)
	res = vk.EnumerateDeviceExtensionProperties(device, "", &extensionsCount,
		availableExtensions)
	if err := vkResult(res, "vkEnumerateDeviceExtensionProperties"); err != nil {
		return nil, err
	}

	names := make([]string, 0, len(availableExtensions))
	for _, extension := range availableExtensions {
		extension.Deref()
		names = append(names, vk.ToString(extension.ExtensionName[:]))
	}
	return names, nil
}

// missingNames returns the entries of required which are not in available.
// Trailing NUL terminators are ignored on both sides.
func missingNames(required, available []string) []string {
	have := make(map[string]struct{}, len(available))
	for _, name := range available {
		have[strings.TrimRight(name, "\x00")] = struct{}{}
	}

	var missing []string
	for _, name := range required {
		name = strings.TrimRight(name, "\x00")
		if _, ok := have[name]; !ok {
			missing = append(missing, name)
		}
	}
	return missing
}

// safeString returns s terminated with exactly one NUL, the way Vulkan wants
// its names.
func safeString(s string) string {
	return strings.TrimRight(s, "\x00") + "\x00"
}

func (d *Device) createLogicalDevice(layers []string) error {
	if !d.Families.IsComplete() {
		return errors.New("physical device does not have all the queues required")
	}

	queueCreateInfos := []vk.DeviceQueueCreateInfo{}
	for _, familyIndex := range d.Families.Unique() {
		queueCreateInfos = append(
			queueCreateInfos,
			vk.DeviceQueueCreateInfo{
				SType:            vk.StructureTypeDeviceQueueCreateInfo,
				QueueFamilyIndex: familyIndex,
				QueueCount:       1,
				PQueuePriorities: []float32{1.0},
			},
		)
	}

	createInfo := vk.DeviceCreateInfo{
		SType:            vk.StructureTypeDeviceCreateInfo,
		PEnabledFeatures: []vk.PhysicalDeviceFeatures{{}},

		PQueueCreateInfos:    queueCreateInfos,
		QueueCreateInfoCount: uint32(len(queueCreateInfos)),

		EnabledExtensionCount:   uint32(len(deviceExtensions)),
		PpEnabledExtensionNames: deviceExtensions,

		EnabledLayerCount:   uint32(len(layers)),
		PpEnabledLayerNames: layers,
	}

	var device vk.Device
	if err := vkResult(vk.CreateDevice(d.Physical, &createInfo, nil, &device), "vkCreateDevice"); err != nil {
		return err
	}
	d.Handle = device

	var graphicsQueue vk.Queue
	vk.GetDeviceQueue(d.Handle, d.Families.Graphics.Get(), 0, &graphicsQueue)
	d.GraphicsQueue = graphicsQueue

	var presentQueue vk.Queue
	vk.GetDeviceQueue(d.Handle, d.Families.Present.Get(), 0, &presentQueue)
	d.PresentQueue = presentQueue

	return nil
}

func (d *Device) loadMemoryTypes() {
	var memProperties vk.PhysicalDeviceMemoryProperties
	vk.GetPhysicalDeviceMemoryProperties(d.Physical, &memProperties)
	memProperties.Deref()

	d.memoryTypes = make([]vk.MemoryPropertyFlags, memProperties.MemoryTypeCount)
	for i := range d.memoryTypes {
		memType := memProperties.MemoryTypes[i]
		memType.Deref()
		d.memoryTypes[i] = memType.PropertyFlags
	}
}

// WaitIdle blocks until the device has finished all submitted work.
func (d *Device) WaitIdle() error {
	return vkResult(vk.DeviceWaitIdle(d.Handle), "vkDeviceWaitIdle")
}

// Destroy releases the logical device. Everything created on it must be gone.
func (d *Device) Destroy() {
	if d.Handle != nil {
		vk.DestroyDevice(d.Handle, nil)
		d.Handle = nil
	}
}

func (d *Device) DestroyImageView(h vk.ImageView) { vk.DestroyImageView(d.Handle, h, nil) }
func (d *Device) DestroyImage(h vk.Image)         { vk.DestroyImage(d.Handle, h, nil) }
func (d *Device) FreeMemory(h vk.DeviceMemory)    { vk.FreeMemory(d.Handle, h, nil) }

func (d *Device) DestroyShaderModule(h vk.ShaderModule) {
	vk.DestroyShaderModule(d.Handle, h, nil)
}

func (d *Device) DestroyPipeline(h vk.Pipeline) { vk.DestroyPipeline(d.Handle, h, nil) }

func (d *Device) DestroyPipelineLayout(h vk.PipelineLayout) {
	vk.DestroyPipelineLayout(d.Handle, h, nil)
}

func (d *Device) DestroyDescriptorSetLayout(h vk.DescriptorSetLayout) {
	vk.DestroyDescriptorSetLayout(d.Handle, h, nil)
}

func (d *Device) DestroyDescriptorPool(h vk.DescriptorPool) {
	vk.DestroyDescriptorPool(d.Handle, h, nil)
}

func (d *Device) DestroyCommandPool(h vk.CommandPool) { vk.DestroyCommandPool(d.Handle, h, nil) }
func (d *Device) DestroyFence(h vk.Fence)             { vk.DestroyFence(d.Handle, h, nil) }
func (d *Device) DestroySemaphore(h vk.Semaphore)     { vk.DestroySemaphore(d.Handle, h, nil) }
func (d *Device) DestroySwapchain(h vk.Swapchain)     { vk.DestroySwapchain(d.Handle, h, nil) }
