package engine

import (
	"unsafe"

	"github.com/cockroachdb/errors"
	"github.com/go-gl/glfw/v3.3/glfw"
	"github.com/sirupsen/logrus"
	vk "github.com/vulkan-go/vulkan"
)

const (
	engineName      = "ELPMRUW\x00"
	validationLayer = "VK_LAYER_KHRONOS_validation\x00"
	debugReportExt  = "VK_EXT_debug_report\x00"
)

// Window is the part of the OS window the engine needs. *glfw.Window
// satisfies it.
type Window interface {
	GetRequiredInstanceExtensions() []string
	CreateWindowSurface(instance interface{}, allocCallbacks unsafe.Pointer) (uintptr, error)
	GetFramebufferSize() (width, height int)
}

// Context owns the Vulkan instance, the optional debug report callback and
// the presentation surface. It is destroyed after everything created from it.
type Context struct {
	Instance vk.Instance
	Surface  vk.Surface

	// Layers are the instance layers which were enabled. Device creation
	// enables the same ones.
	Layers []string

	debugCallback vk.DebugReportCallback
	hasDebug      bool

	log logrus.FieldLogger
}

// NewContext loads Vulkan through GLFW, creates an instance with the
// extensions window needs and a surface on top of window. With validation
// set the Khronos validation layer is enabled when it is installed and the
// debug report messages are forwarded to log.
func NewContext(appName string, validation bool, window Window, log logrus.FieldLogger) (*Context, error) {
	vk.SetGetInstanceProcAddr(glfw.GetVulkanGetInstanceProcAddress())

	if err := vk.Init(); err != nil {
		return nil, errors.Wrap(err, "failed to init Vulkan Go")
	}

	c := &Context{
		Surface: vk.NullSurface,
		log:     log,
	}

	if err := c.createInstance(appName, validation, window); err != nil {
		c.Destroy()
		return nil, errors.Wrap(err, "createInstance")
	}

	if c.hasDebug {
		if err := c.createDebugCallback(); err != nil {
			log.WithError(err).Warn("Debug report callback unavailable")
			c.hasDebug = false
		}
	}

	if err := c.createSurface(window); err != nil {
		c.Destroy()
		return nil, errors.Wrap(err, "createSurface")
	}

	return c, nil
}

func (c *Context) createInstance(appName string, validation bool, window Window) error {
	extensions := window.GetRequiredInstanceExtensions()
	for i, ext := range extensions {
		extensions[i] = safeString(ext)
	}

	if validation {
		if checkValidationSupport([]string{validationLayer}) {
			c.Layers = []string{validationLayer}
			extensions = append(extensions, debugReportExt)
			c.hasDebug = true
		} else {
			c.log.Warn("Validation layers requested but not available")
		}
	}

	appInfo := vk.ApplicationInfo{
		SType:              vk.StructureTypeApplicationInfo,
		PApplicationName:   safeString(appName),
		ApplicationVersion: vk.MakeVersion(1, 0, 0),
		PEngineName:        engineName,
		EngineVersion:      vk.MakeVersion(1, 0, 0),
		ApiVersion:         vk.MakeVersion(1, 2, 0),
	}

	createInfo := vk.InstanceCreateInfo{
		SType:                   vk.StructureTypeInstanceCreateInfo,
		PApplicationInfo:        &appInfo,
		EnabledExtensionCount:   uint32(len(extensions)),
		PpEnabledExtensionNames: extensions,
		EnabledLayerCount:       uint32(len(c.Layers)),
		PpEnabledLayerNames:     c.Layers,
	}

	var instance vk.Instance
	if err := vkResult(vk.CreateInstance(&createInfo, nil, &instance), "vkCreateInstance"); err != nil {
		return err
	}
	c.Instance = instance

	if err := vk.InitInstance(instance); err != nil {
		return errors.Wrap(err, "loading instance functions")
	}

	c.log.WithField("extensions", len(extensions)).Debug("Vulkan instance created")
	return nil
}

func (c *Context) createDebugCallback() error {
	createInfo := vk.DebugReportCallbackCreateInfo{
		SType: vk.StructureTypeDebugReportCallbackCreateInfo,
		Flags: vk.DebugReportFlags(
			vk.DebugReportErrorBit |
				vk.DebugReportWarningBit |
				vk.DebugReportPerformanceWarningBit,
		),
		PfnCallback: c.debugReport,
	}

	var callback vk.DebugReportCallback
	res := vk.CreateDebugReportCallback(c.Instance, &createInfo, nil, &callback)
	if err := vkResult(res, "vkCreateDebugReportCallback"); err != nil {
		return err
	}
	c.debugCallback = callback
	return nil
}

func (c *Context) debugReport(
	flags vk.DebugReportFlags,
	objectType vk.DebugReportObjectType,
	object uint64,
	location uint,
	messageCode int32,
	pLayerPrefix string,
	pMessage string,
	pUserData unsafe.Pointer,
) vk.Bool32 {
	entry := c.log.WithFields(logrus.Fields{
		"layer": pLayerPrefix,
		"code":  messageCode,
	})

	switch {
	case flags&vk.DebugReportFlags(vk.DebugReportErrorBit) != 0:
		entry.Error(pMessage)
	case flags&vk.DebugReportFlags(vk.DebugReportWarningBit|vk.DebugReportPerformanceWarningBit) != 0:
		entry.Warn(pMessage)
	default:
		entry.Info(pMessage)
	}

	return vk.Bool32(vk.False)
}

func (c *Context) createSurface(window Window) error {
	surfacePtr, err := window.CreateWindowSurface(c.Instance, nil)
	if err != nil {
		return errors.Wrap(err, "cannot create surface within the window")
	}

	c.Surface = vk.SurfaceFromPointer(surfacePtr)
	return nil
}

// Destroy releases the surface, the debug callback and the instance. Every
// device created from the context must already be destroyed.
func (c *Context) Destroy() {
	if c.Surface != vk.NullSurface {
		vk.DestroySurface(c.Instance, c.Surface, nil)
		c.Surface = vk.NullSurface
	}
	if c.hasDebug {
		vk.DestroyDebugReportCallback(c.Instance, c.debugCallback, nil)
		c.hasDebug = false
	}
	if c.Instance != nil {
		vk.DestroyInstance(c.Instance, nil)
		c.Instance = nil
	}
}

func checkValidationSupport(required []string) bool {
	var count uint32
	if vk.EnumerateInstanceLayerProperties(&count, nil) != vk.Success {
		return false
	}
	availableLayers := make([]vk.LayerProperties, count)
	if vk.EnumerateInstanceLayerProperties(&count, availableLayers) != vk.Success {
		return false
	}

	available := make([]string, 0, count)
	for _, layer := range availableLayers {
		layer.Deref()
		available = append(available, vk.ToString(layer.LayerName[:]))
	}

	return len(missingNames(required, available)) == 0
}
