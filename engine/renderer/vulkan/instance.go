package vulkan

import (
	"runtime"
	"unsafe"

	"github.com/cockroachdb/errors"
	"github.com/go-gl/glfw/v3.3/glfw"
	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/framepace/engine/core"
)

const validationLayerName = "VK_LAYER_KHRONOS_validation"

// instanceCreateEnumeratePortability is VK_INSTANCE_CREATE_ENUMERATE_PORTABILITY_BIT_KHR.
const instanceCreateEnumeratePortability = 0x00000001

type Config struct {
	ApplicationName string
	// Validation enables the Khronos validation layer and routes its reports
	// to the engine logger.
	Validation bool
}

// SurfaceSource is the window a context presents to.
type SurfaceSource interface {
	RequiredInstanceExtensions() []string
	CreateWindowSurface(instance interface{}, allocCallbacks unsafe.Pointer) (uintptr, error)
}

// NewContext brings up Vulkan for window: instance, optional debugger,
// surface, physical device selection, logical device and the graphics
// command pool. Any failure is fatal for the renderer.
func NewContext(window SurfaceSource, cfg Config) (*VulkanContext, error) {
	procAddr := glfw.GetVulkanGetInstanceProcAddress()
	if procAddr == nil {
		return nil, errors.New("GetInstanceProcAddress is nil")
	}
	vk.SetGetInstanceProcAddr(procAddr)

	if err := vk.Init(); err != nil {
		return nil, errors.Wrap(err, "failed to initialize vk")
	}

	vc := &VulkanContext{
		// TODO: custom allocator.
		Allocator: nil,
		handles:   newHandleTable(),
		locks:     NewVulkanLockPool(),
	}

	if err := vc.createInstance(window, cfg); err != nil {
		return nil, err
	}

	if cfg.Validation {
		if err := vc.createDebugger(); err != nil {
			vc.Shutdown()
			return nil, err
		}
	}

	core.LogDebug("Creating Vulkan surface...")
	surface, err := window.CreateWindowSurface(vc.Instance, nil)
	if err != nil {
		vc.Shutdown()
		return nil, errors.Wrap(err, "vulkan surface creation failed")
	}
	vc.Surface = vk.SurfaceFromPointer(surface)
	core.LogDebug("Vulkan surface created.")

	device, err := DeviceCreate(vc)
	if err != nil {
		vc.Shutdown()
		return nil, errors.Wrap(err, "failed to create device")
	}
	vc.Device = device
	vc.locks.SetQueueFamily(device.GraphicsQueueIndex)
	vc.locks.SetQueueFamily(device.PresentQueueIndex)

	core.LogInfo("Vulkan context initialized successfully.")
	return vc, nil
}

func (vc *VulkanContext) createInstance(window SurfaceSource, cfg Config) error {
	appInfo := &vk.ApplicationInfo{
		SType:              vk.StructureTypeApplicationInfo,
		ApiVersion:         uint32(vk.MakeVersion(1, 0, 0)),
		ApplicationVersion: uint32(vk.MakeVersion(1, 0, 0)),
		PApplicationName:   VulkanSafeString(cfg.ApplicationName),
		PEngineName:        VulkanSafeString("Framepace"),
	}

	createInfo := vk.InstanceCreateInfo{
		SType:            vk.StructureTypeInstanceCreateInfo,
		PApplicationInfo: appInfo,
	}

	// The window reports the generic surface extension plus its platform one.
	requiredExtensions := window.RequiredInstanceExtensions()

	if runtime.GOOS == "darwin" {
		requiredExtensions = append(requiredExtensions,
			"VK_KHR_portability_enumeration",
			"VK_KHR_get_physical_device_properties2",
		)
		createInfo.Flags |= instanceCreateEnumeratePortability
	}

	var layers []string
	if cfg.Validation {
		if hasInstanceLayer(validationLayerName) {
			layers = append(layers, validationLayerName)
			requiredExtensions = append(requiredExtensions, vk.ExtDebugReportExtensionName)
		} else {
			core.LogWarn("Validation layer %s is not installed, continuing without it.", validationLayerName)
			cfg.Validation = false
		}
	}

	core.LogDebug("Required extensions:")
	for _, ext := range requiredExtensions {
		core.LogDebug("%s", ext)
	}

	createInfo.EnabledExtensionCount = uint32(len(requiredExtensions))
	createInfo.PpEnabledExtensionNames = VulkanSafeStrings(requiredExtensions)
	createInfo.EnabledLayerCount = uint32(len(layers))
	createInfo.PpEnabledLayerNames = VulkanSafeStrings(layers)

	if err := checkResult(vk.CreateInstance(&createInfo, vc.Allocator, &vc.Instance), "vkCreateInstance"); err != nil {
		return err
	}
	if err := vk.InitInstance(vc.Instance); err != nil {
		core.LogError("%s", err)
		return errors.Wrap(err, "failed to load instance functions")
	}

	core.LogInfo("Vulkan Instance created.")
	return nil
}

func hasInstanceLayer(name string) bool {
	var count uint32
	if res := vk.EnumerateInstanceLayerProperties(&count, nil); res != vk.Success {
		return false
	}
	available := make([]vk.LayerProperties, count)
	if res := vk.EnumerateInstanceLayerProperties(&count, available); res != vk.Success {
		return false
	}

	core.LogDebug("Searching for layer: %s...", name)
	for i := range available {
		available[i].Deref()
		if vk.ToString(available[i].LayerName[:]) == name {
			core.LogDebug("Found.")
			return true
		}
	}
	return false
}

func (vc *VulkanContext) createDebugger() error {
	core.LogDebug("Creating Vulkan debugger...")

	debugCreateInfo := vk.DebugReportCallbackCreateInfo{
		SType:       vk.StructureTypeDebugReportCallbackCreateInfo,
		Flags:       vk.DebugReportFlags(vk.DebugReportErrorBit | vk.DebugReportWarningBit | vk.DebugReportPerformanceWarningBit),
		PfnCallback: dbgCallbackFunc,
	}

	var dbg vk.DebugReportCallback
	if err := checkResult(vk.CreateDebugReportCallback(vc.Instance, &debugCreateInfo, vc.Allocator, &dbg), "vkCreateDebugReportCallback"); err != nil {
		return err
	}
	vc.debugMessenger = dbg

	core.LogDebug("Vulkan debugger created.")
	return nil
}

func dbgCallbackFunc(flags vk.DebugReportFlags, objectType vk.DebugReportObjectType, object uint64, location uint64, messageCode int32, pLayerPrefix string, pMessage string, pUserData unsafe.Pointer) vk.Bool32 {
	switch {
	case flags&vk.DebugReportFlags(vk.DebugReportErrorBit) != 0:
		core.LogError("ERROR: [%s] Code %d : %s", pLayerPrefix, messageCode, pMessage)
	case flags&vk.DebugReportFlags(vk.DebugReportWarningBit) != 0:
		core.LogWarn("WARNING: [%s] Code %d : %s", pLayerPrefix, messageCode, pMessage)
	case flags&vk.DebugReportFlags(vk.DebugReportPerformanceWarningBit) != 0:
		core.LogWarn("PERFORMANCE WARNING: [%s] Code %d : %s", pLayerPrefix, messageCode, pMessage)
	case flags&vk.DebugReportFlags(vk.DebugReportDebugBit) != 0:
		core.LogDebug("DEBUG: [%s] Code %d : %s", pLayerPrefix, messageCode, pMessage)
	default:
		core.LogInfo("INFORMATION: [%s] Code %d : %s", pLayerPrefix, messageCode, pMessage)
	}
	return vk.Bool32(vk.False)
}
