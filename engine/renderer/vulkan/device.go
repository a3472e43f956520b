package vulkan

import (
	"github.com/cockroachdb/errors"
	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/framepace/engine/core"
	"github.com/spaghettifunk/framepace/engine/renderer/gpu"
)

const portabilitySubsetExtensionName = "VK_KHR_portability_subset"

type VulkanDevice struct {
	PhysicalDevice vk.PhysicalDevice
	LogicalDevice  vk.Device

	GraphicsQueueIndex uint32
	PresentQueueIndex  uint32

	GraphicsQueue vk.Queue
	PresentQueue  vk.Queue

	GraphicsCommandPool vk.CommandPool

	Properties vk.PhysicalDeviceProperties
	Features   vk.PhysicalDeviceFeatures
	Memory     vk.PhysicalDeviceMemoryProperties
}

type VulkanPhysicalDeviceRequirements struct {
	Graphics             bool
	Present              bool
	DeviceExtensionNames []string
	SamplerAnisotropy    bool
}

// VulkanPhysicalDeviceQueueFamilyInfo holds the chosen family indices; -1
// means no family was found.
type VulkanPhysicalDeviceQueueFamilyInfo struct {
	GraphicsFamilyIndex int32
	PresentFamilyIndex  int32
}

func DeviceCreate(context *VulkanContext) (*VulkanDevice, error) {
	device, err := SelectPhysicalDevice(context)
	if err != nil {
		return nil, err
	}

	core.LogInfo("Creating logical device...")

	// NOTE: Do not create additional queues for shared indices.
	indices := []uint32{device.GraphicsQueueIndex}
	if device.PresentQueueIndex != device.GraphicsQueueIndex {
		indices = append(indices, device.PresentQueueIndex)
	}

	queueCreateInfos := make([]vk.DeviceQueueCreateInfo, len(indices))
	for i, index := range indices {
		queueCreateInfos[i] = vk.DeviceQueueCreateInfo{
			SType:            vk.StructureTypeDeviceQueueCreateInfo,
			QueueFamilyIndex: index,
			QueueCount:       1,
			PQueuePriorities: []float32{1.0},
		}
	}

	// Request device features.
	deviceFeatures := vk.PhysicalDeviceFeatures{
		SamplerAnisotropy: vk.True,
	}

	extensionNames := []string{vk.KhrSwapchainExtensionName}
	if deviceHasExtension(device.PhysicalDevice, portabilitySubsetExtensionName) {
		core.LogInfo("Adding required extension '%s'.", portabilitySubsetExtensionName)
		extensionNames = append(extensionNames, portabilitySubsetExtensionName)
	}

	deviceCreateInfo := vk.DeviceCreateInfo{
		SType:                   vk.StructureTypeDeviceCreateInfo,
		QueueCreateInfoCount:    uint32(len(queueCreateInfos)),
		PQueueCreateInfos:       queueCreateInfos,
		PEnabledFeatures:        []vk.PhysicalDeviceFeatures{deviceFeatures},
		EnabledExtensionCount:   uint32(len(extensionNames)),
		PpEnabledExtensionNames: VulkanSafeStrings(extensionNames),
		// Deprecated and ignored, so pass nothing.
		EnabledLayerCount:   0,
		PpEnabledLayerNames: nil,
	}

	var logicalDevice vk.Device
	if err := checkResult(vk.CreateDevice(device.PhysicalDevice, &deviceCreateInfo, context.Allocator, &logicalDevice), "vkCreateDevice"); err != nil {
		return nil, err
	}
	device.LogicalDevice = logicalDevice
	core.LogInfo("Logical device created.")

	var graphicsQueue, presentQueue vk.Queue
	vk.GetDeviceQueue(device.LogicalDevice, device.GraphicsQueueIndex, 0, &graphicsQueue)
	vk.GetDeviceQueue(device.LogicalDevice, device.PresentQueueIndex, 0, &presentQueue)
	device.GraphicsQueue = graphicsQueue
	device.PresentQueue = presentQueue
	core.LogInfo("Queues obtained.")

	// Command buffers are reset one by one every frame.
	poolCreateInfo := vk.CommandPoolCreateInfo{
		SType:            vk.StructureTypeCommandPoolCreateInfo,
		QueueFamilyIndex: device.GraphicsQueueIndex,
		Flags:            vk.CommandPoolCreateFlags(vk.CommandPoolCreateResetCommandBufferBit),
	}
	var pool vk.CommandPool
	if err := checkResult(vk.CreateCommandPool(device.LogicalDevice, &poolCreateInfo, context.Allocator, &pool), "vkCreateCommandPool"); err != nil {
		vk.DestroyDevice(device.LogicalDevice, context.Allocator)
		return nil, err
	}
	device.GraphicsCommandPool = pool
	core.LogInfo("Graphics command pool created.")

	return device, nil
}

func (d *VulkanDevice) Destroy(context *VulkanContext) {
	d.GraphicsQueue = nil
	d.PresentQueue = nil

	core.LogInfo("Destroying command pools...")
	if d.GraphicsCommandPool != nil {
		vk.DestroyCommandPool(d.LogicalDevice, d.GraphicsCommandPool, context.Allocator)
		d.GraphicsCommandPool = nil
	}

	core.LogInfo("Destroying logical device...")
	if d.LogicalDevice != nil {
		vk.DestroyDevice(d.LogicalDevice, context.Allocator)
		d.LogicalDevice = nil
	}

	// Physical devices are not destroyed.
	d.PhysicalDevice = nil
}

// DeviceQuerySwapchainSupport reads what physicalDevice can do with surface.
func DeviceQuerySwapchainSupport(physicalDevice vk.PhysicalDevice, surface vk.Surface) (gpu.SurfaceSupport, error) {
	var support gpu.SurfaceSupport

	var capabilities vk.SurfaceCapabilities
	if err := checkResult(vk.GetPhysicalDeviceSurfaceCapabilities(physicalDevice, surface, &capabilities), "vkGetPhysicalDeviceSurfaceCapabilitiesKHR"); err != nil {
		return support, err
	}
	capabilities.Deref()
	capabilities.CurrentExtent.Deref()
	capabilities.MinImageExtent.Deref()
	capabilities.MaxImageExtent.Deref()
	support.Capabilities = gpu.SurfaceCapabilities{
		MinImageCount:    capabilities.MinImageCount,
		MaxImageCount:    capabilities.MaxImageCount,
		CurrentExtent:    gpu.Extent2D{Width: capabilities.CurrentExtent.Width, Height: capabilities.CurrentExtent.Height},
		MinImageExtent:   gpu.Extent2D{Width: capabilities.MinImageExtent.Width, Height: capabilities.MinImageExtent.Height},
		MaxImageExtent:   gpu.Extent2D{Width: capabilities.MaxImageExtent.Width, Height: capabilities.MaxImageExtent.Height},
		CurrentTransform: gpu.SurfaceTransformFlags(capabilities.CurrentTransform),
	}

	var formatCount uint32
	if err := checkResult(vk.GetPhysicalDeviceSurfaceFormats(physicalDevice, surface, &formatCount, nil), "vkGetPhysicalDeviceSurfaceFormatsKHR"); err != nil {
		return support, err
	}
	if formatCount != 0 {
		formats := make([]vk.SurfaceFormat, formatCount)
		if err := checkResult(vk.GetPhysicalDeviceSurfaceFormats(physicalDevice, surface, &formatCount, formats), "vkGetPhysicalDeviceSurfaceFormatsKHR"); err != nil {
			return support, err
		}
		for i := range formats[:formatCount] {
			formats[i].Deref()
			support.Formats = append(support.Formats, gpu.SurfaceFormat{
				Format:     gpu.Format(formats[i].Format),
				ColorSpace: gpu.ColorSpace(formats[i].ColorSpace),
			})
		}
	}

	var presentModeCount uint32
	if err := checkResult(vk.GetPhysicalDeviceSurfacePresentModes(physicalDevice, surface, &presentModeCount, nil), "vkGetPhysicalDeviceSurfacePresentModesKHR"); err != nil {
		return support, err
	}
	if presentModeCount != 0 {
		modes := make([]vk.PresentMode, presentModeCount)
		if err := checkResult(vk.GetPhysicalDeviceSurfacePresentModes(physicalDevice, surface, &presentModeCount, modes), "vkGetPhysicalDeviceSurfacePresentModesKHR"); err != nil {
			return support, err
		}
		for _, mode := range modes[:presentModeCount] {
			support.PresentModes = append(support.PresentModes, gpu.PresentMode(mode))
		}
	}
	return support, nil
}

// SelectPhysicalDevice picks the first discrete GPU that meets the
// requirements, or the first suitable device of any type.
func SelectPhysicalDevice(context *VulkanContext) (*VulkanDevice, error) {
	var physicalDeviceCount uint32
	if err := checkResult(vk.EnumeratePhysicalDevices(context.Instance, &physicalDeviceCount, nil), "vkEnumeratePhysicalDevices"); err != nil {
		return nil, err
	}
	if physicalDeviceCount == 0 {
		return nil, errors.New("no devices which support Vulkan were found")
	}

	physicalDevices := make([]vk.PhysicalDevice, physicalDeviceCount)
	if err := checkResult(vk.EnumeratePhysicalDevices(context.Instance, &physicalDeviceCount, physicalDevices), "vkEnumeratePhysicalDevices"); err != nil {
		return nil, err
	}

	// TODO: These requirements should probably be driven by engine
	// configuration.
	requirements := VulkanPhysicalDeviceRequirements{
		Graphics:             true,
		Present:              true,
		SamplerAnisotropy:    true,
		DeviceExtensionNames: []string{vk.KhrSwapchainExtensionName},
	}

	var selected *VulkanDevice
	for _, physicalDevice := range physicalDevices {
		var properties vk.PhysicalDeviceProperties
		vk.GetPhysicalDeviceProperties(physicalDevice, &properties)
		properties.Deref()

		var features vk.PhysicalDeviceFeatures
		vk.GetPhysicalDeviceFeatures(physicalDevice, &features)
		features.Deref()

		var memory vk.PhysicalDeviceMemoryProperties
		vk.GetPhysicalDeviceMemoryProperties(physicalDevice, &memory)
		memory.Deref()

		queueInfo, ok := PhysicalDeviceMeetsRequirements(physicalDevice, context.Surface, &properties, &features, &requirements)
		if !ok {
			continue
		}

		candidate := &VulkanDevice{
			PhysicalDevice:     physicalDevice,
			GraphicsQueueIndex: uint32(queueInfo.GraphicsFamilyIndex),
			PresentQueueIndex:  uint32(queueInfo.PresentFamilyIndex),
			Properties:         properties,
			Features:           features,
			Memory:             memory,
		}
		if selected == nil || (properties.DeviceType == vk.PhysicalDeviceTypeDiscreteGpu &&
			selected.Properties.DeviceType != vk.PhysicalDeviceTypeDiscreteGpu) {
			selected = candidate
		}
	}

	// Ensure a device was selected
	if selected == nil {
		return nil, errors.New("no physical devices were found which meet the requirements")
	}

	logDeviceInfo(selected)
	core.LogInfo("Physical device selected.")
	return selected, nil
}

func logDeviceInfo(device *VulkanDevice) {
	properties := device.Properties
	core.LogInfo("Selected device: '%s'.", vk.ToString(properties.DeviceName[:]))

	switch properties.DeviceType {
	default:
		fallthrough
	case vk.PhysicalDeviceTypeOther:
		core.LogInfo("GPU type is Unknown.")
	case vk.PhysicalDeviceTypeIntegratedGpu:
		core.LogInfo("GPU type is Integrated.")
	case vk.PhysicalDeviceTypeDiscreteGpu:
		core.LogInfo("GPU type is Discrete.")
	case vk.PhysicalDeviceTypeVirtualGpu:
		core.LogInfo("GPU type is Virtual.")
	case vk.PhysicalDeviceTypeCpu:
		core.LogInfo("GPU type is CPU.")
	}

	core.LogInfo(
		"GPU Driver version: %d.%d.%d",
		vk.Version(properties.DriverVersion).Major(),
		vk.Version(properties.DriverVersion).Minor(),
		vk.Version(properties.DriverVersion).Patch(),
	)
	core.LogInfo(
		"Vulkan API version: %d.%d.%d",
		vk.Version(properties.ApiVersion).Major(),
		vk.Version(properties.ApiVersion).Minor(),
		vk.Version(properties.ApiVersion).Patch(),
	)

	memory := device.Memory
	for j := uint32(0); j < memory.MemoryHeapCount; j++ {
		heap := memory.MemoryHeaps[j]
		heap.Deref()
		memorySizeGib := float64(heap.Size) / 1024.0 / 1024.0 / 1024.0
		if heap.Flags&vk.MemoryHeapFlags(vk.MemoryHeapDeviceLocalBit) != 0 {
			core.LogInfo("Local GPU memory: %.2f GiB", memorySizeGib)
		} else {
			core.LogInfo("Shared System memory: %.2f GiB", memorySizeGib)
		}
	}
}

func PhysicalDeviceMeetsRequirements(device vk.PhysicalDevice, surface vk.Surface, properties *vk.PhysicalDeviceProperties, features *vk.PhysicalDeviceFeatures, requirements *VulkanPhysicalDeviceRequirements) (VulkanPhysicalDeviceQueueFamilyInfo, bool) {
	queueInfo := VulkanPhysicalDeviceQueueFamilyInfo{
		GraphicsFamilyIndex: -1,
		PresentFamilyIndex:  -1,
	}
	name := vk.ToString(properties.DeviceName[:])

	var queueFamilyCount uint32
	vk.GetPhysicalDeviceQueueFamilyProperties(device, &queueFamilyCount, nil)
	queueFamilies := make([]vk.QueueFamilyProperties, queueFamilyCount)
	vk.GetPhysicalDeviceQueueFamilyProperties(device, &queueFamilyCount, queueFamilies)

	for i := range queueFamilies {
		queueFamilies[i].Deref()

		if queueInfo.GraphicsFamilyIndex < 0 && queueFamilies[i].QueueFlags&vk.QueueFlags(vk.QueueGraphicsBit) != 0 {
			queueInfo.GraphicsFamilyIndex = int32(i)
		}

		var supportsPresent vk.Bool32
		if res := vk.GetPhysicalDeviceSurfaceSupport(device, uint32(i), surface, &supportsPresent); res != vk.Success {
			return queueInfo, false
		}
		if supportsPresent == vk.True {
			// Prefer a family that does both.
			if queueInfo.PresentFamilyIndex < 0 || int32(i) == queueInfo.GraphicsFamilyIndex {
				queueInfo.PresentFamilyIndex = int32(i)
			}
		}
	}

	core.LogInfo("Graphics | Present | Name")
	core.LogInfo("   %5t |   %5t | %s", queueInfo.GraphicsFamilyIndex >= 0, queueInfo.PresentFamilyIndex >= 0, name)

	if (requirements.Graphics && queueInfo.GraphicsFamilyIndex < 0) ||
		(requirements.Present && queueInfo.PresentFamilyIndex < 0) {
		return queueInfo, false
	}
	core.LogInfo("Device meets queue requirements.")
	core.LogDebug("Graphics Family Index: %d", queueInfo.GraphicsFamilyIndex)
	core.LogDebug("Present Family Index:  %d", queueInfo.PresentFamilyIndex)

	support, err := DeviceQuerySwapchainSupport(device, surface)
	if err != nil || len(support.Formats) == 0 || len(support.PresentModes) == 0 {
		core.LogInfo("Required swapchain support not present, skipping device.")
		return queueInfo, false
	}

	for _, ext := range requirements.DeviceExtensionNames {
		if !deviceHasExtension(device, ext) {
			core.LogInfo("Required extension not found: '%s', skipping device.", ext)
			return queueInfo, false
		}
	}

	if requirements.SamplerAnisotropy && features.SamplerAnisotropy == vk.False {
		core.LogInfo("Device does not support samplerAnisotropy, skipping.")
		return queueInfo, false
	}

	return queueInfo, true
}

func deviceHasExtension(device vk.PhysicalDevice, name string) bool {
	var count uint32
	if res := vk.EnumerateDeviceExtensionProperties(device, "", &count, nil); res != vk.Success || count == 0 {
		return false
	}
	available := make([]vk.ExtensionProperties, count)
	if res := vk.EnumerateDeviceExtensionProperties(device, "", &count, available); res != vk.Success {
		return false
	}
	for i := range available {
		available[i].Deref()
		if vk.ToString(available[i].ExtensionName[:]) == name {
			return true
		}
	}
	return false
}

// FormatSupported reports whether format offers features under tiling.
func (vc *VulkanContext) FormatSupported(format gpu.Format, tiling gpu.ImageTiling, features gpu.FormatFeatureFlags) bool {
	var properties vk.FormatProperties
	vk.GetPhysicalDeviceFormatProperties(vc.Device.PhysicalDevice, vk.Format(format), &properties)
	properties.Deref()

	want := vk.FormatFeatureFlags(features)
	switch tiling {
	case gpu.ImageTilingLinear:
		return properties.LinearTilingFeatures&want == want
	default:
		return properties.OptimalTilingFeatures&want == want
	}
}

// SurfaceSupport queries the surface again; the result changes with the
// window size.
func (vc *VulkanContext) SurfaceSupport() (gpu.SurfaceSupport, error) {
	return DeviceQuerySwapchainSupport(vc.Device.PhysicalDevice, vc.Surface)
}
