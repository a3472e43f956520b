package vulkan

import (
	"github.com/cockroachdb/errors"
	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/framepace/engine/core"
	"github.com/spaghettifunk/framepace/engine/renderer/gpu"
)

// VulkanContext implements gpu.Device on one Vulkan instance, one logical
// device and the window surface. Objects handed to the frame renderer are
// referenced by ids from the handle table.
type VulkanContext struct {
	Instance  vk.Instance
	Allocator *vk.AllocationCallbacks
	Surface   vk.Surface

	debugMessenger vk.DebugReportCallback

	Device *VulkanDevice

	handles *handleTable
	locks   *VulkanLockPool
}

var _ gpu.Device = (*VulkanContext)(nil)

// FindMemoryIndex returns the first memory type allowed by typeFilter that
// has every bit of propertyFlags.
func (vc *VulkanContext) FindMemoryIndex(typeFilter uint32, propertyFlags vk.MemoryPropertyFlags) (uint32, error) {
	memoryProperties := vc.Device.Memory

	for i := uint32(0); i < memoryProperties.MemoryTypeCount; i++ {
		memoryType := memoryProperties.MemoryTypes[i]
		memoryType.Deref()
		// Check each memory type to see if its bit is set to 1.
		if (typeFilter&(1<<i)) != 0 && (memoryType.PropertyFlags&propertyFlags) == propertyFlags {
			return i, nil
		}
	}
	core.LogWarn("Unable to find suitable memory type!")
	return 0, errors.Newf("no memory type matches filter %b with properties %b", typeFilter, propertyFlags)
}

func (vc *VulkanContext) Limits() gpu.Limits {
	limits := vc.Device.Properties.Limits
	limits.Deref()
	return gpu.Limits{
		MinUniformBufferOffsetAlignment: uint64(limits.MinUniformBufferOffsetAlignment),
		NonCoherentAtomSize:             uint64(limits.NonCoherentAtomSize),
		MaxSamplerAnisotropy:            limits.MaxSamplerAnisotropy,
	}
}

func (vc *VulkanContext) WaitIdle() error {
	return checkResult(vk.DeviceWaitIdle(vc.Device.LogicalDevice), "vkDeviceWaitIdle")
}

// Shutdown destroys the device, surface, debugger and instance. Every
// object created through the context must already be destroyed.
func (vc *VulkanContext) Shutdown() {
	if vc.Device != nil && vc.Device.LogicalDevice != nil {
		vk.DeviceWaitIdle(vc.Device.LogicalDevice)
	}
	if n := vc.handles.live(); n > 0 {
		core.LogWarn("%d Vulkan objects still alive at shutdown", n)
	}

	if vc.Device != nil {
		vc.Device.Destroy(vc)
		vc.Device = nil
	}

	core.LogDebug("Destroying Vulkan surface...")
	if vc.Surface != nil {
		vk.DestroySurface(vc.Instance, vc.Surface, vc.Allocator)
		vc.Surface = nil
	}

	if vc.debugMessenger != nil {
		core.LogDebug("Destroying Vulkan debugger...")
		vk.DestroyDebugReportCallback(vc.Instance, vc.debugMessenger, vc.Allocator)
		vc.debugMessenger = nil
	}

	core.LogDebug("Destroying Vulkan instance...")
	if vc.Instance != nil {
		vk.DestroyInstance(vc.Instance, vc.Allocator)
		vc.Instance = nil
	}
}
