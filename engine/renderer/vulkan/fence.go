package vulkan

import (
	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/framepace/engine/core"
	"github.com/spaghettifunk/framepace/engine/renderer/gpu"
)

func (vc *VulkanContext) CreateFence(signaled bool) (gpu.Fence, error) {
	fenceCreateInfo := vk.FenceCreateInfo{
		SType: vk.StructureTypeFenceCreateInfo,
	}
	if signaled {
		fenceCreateInfo.Flags = vk.FenceCreateFlags(vk.FenceCreateSignaledBit)
	}

	var fence vk.Fence
	if err := checkResult(vk.CreateFence(vc.Device.LogicalDevice, &fenceCreateInfo, vc.Allocator, &fence), "vkCreateFence"); err != nil {
		return 0, err
	}
	return gpu.Fence(vc.handles.put(fence)), nil
}

func (vc *VulkanContext) DestroyFence(f gpu.Fence) {
	if fence := lookup[vk.Fence](vc.handles, uint64(f)); fence != nil {
		vk.DestroyFence(vc.Device.LogicalDevice, fence, vc.Allocator)
		vc.handles.drop(uint64(f))
	}
}

func (vc *VulkanContext) fences(handles []gpu.Fence) ([]vk.Fence, error) {
	out := make([]vk.Fence, len(handles))
	for i, h := range handles {
		f, err := mustLookup[vk.Fence](vc.handles, uint64(h), "fence")
		if err != nil {
			return nil, err
		}
		out[i] = f
	}
	return out, nil
}

func (vc *VulkanContext) WaitForFences(handles []gpu.Fence, timeout uint64) error {
	fences, err := vc.fences(handles)
	if err != nil {
		return err
	}
	result := vk.WaitForFences(vc.Device.LogicalDevice, uint32(len(fences)), fences, vk.True, timeout)
	switch result {
	case vk.Success:
		return nil
	case vk.Timeout:
		core.LogWarn("vk_fence_wait - Timed out")
		return gpu.Timeout
	}
	return checkResult(result, "vkWaitForFences")
}

func (vc *VulkanContext) ResetFences(handles []gpu.Fence) error {
	fences, err := vc.fences(handles)
	if err != nil {
		return err
	}
	return vc.locks.SafeCall(SynchronizationManagement, func() error {
		return checkResult(vk.ResetFences(vc.Device.LogicalDevice, uint32(len(fences)), fences), "vkResetFences")
	})
}

func (vc *VulkanContext) CreateSemaphore() (gpu.Semaphore, error) {
	semaphoreCreateInfo := vk.SemaphoreCreateInfo{
		SType: vk.StructureTypeSemaphoreCreateInfo,
	}

	var semaphore vk.Semaphore
	if err := checkResult(vk.CreateSemaphore(vc.Device.LogicalDevice, &semaphoreCreateInfo, vc.Allocator, &semaphore), "vkCreateSemaphore"); err != nil {
		return 0, err
	}
	return gpu.Semaphore(vc.handles.put(semaphore)), nil
}

func (vc *VulkanContext) DestroySemaphore(s gpu.Semaphore) {
	if semaphore := lookup[vk.Semaphore](vc.handles, uint64(s)); semaphore != nil {
		vk.DestroySemaphore(vc.Device.LogicalDevice, semaphore, vc.Allocator)
		vc.handles.drop(uint64(s))
	}
}
