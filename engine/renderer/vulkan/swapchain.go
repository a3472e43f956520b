package vulkan

import (
	"github.com/cockroachdb/errors"
	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/framepace/engine/core"
	"github.com/spaghettifunk/framepace/engine/renderer/gpu"
)

// VulkanSwapchain is the table entry behind a gpu.Swapchain. The presentable
// images belong to it and are registered for as long as it lives.
type VulkanSwapchain struct {
	Handle vk.Swapchain
	Images []gpu.Image
}

func (vc *VulkanContext) CreateSwapchain(info gpu.SwapchainCreateInfo) (gpu.Swapchain, error) {
	swapchainCreateInfo := vk.SwapchainCreateInfo{
		SType:            vk.StructureTypeSwapchainCreateInfo,
		Surface:          vc.Surface,
		MinImageCount:    info.MinImageCount,
		ImageFormat:      vk.Format(info.Format.Format),
		ImageColorSpace:  vk.ColorSpace(info.Format.ColorSpace),
		ImageExtent:      vk.Extent2D{Width: info.Extent.Width, Height: info.Extent.Height},
		ImageArrayLayers: 1,
		ImageUsage:       vk.ImageUsageFlags(vk.ImageUsageColorAttachmentBit),
		PreTransform:     vk.SurfaceTransformFlagBits(info.PreTransform),
		CompositeAlpha:   vk.CompositeAlphaOpaqueBit,
		PresentMode:      vk.PresentMode(info.PresentMode),
		Clipped:          vk.True,
	}

	// Setup the queue family indices
	if vc.Device.GraphicsQueueIndex != vc.Device.PresentQueueIndex {
		swapchainCreateInfo.ImageSharingMode = vk.SharingModeConcurrent
		swapchainCreateInfo.QueueFamilyIndexCount = 2
		swapchainCreateInfo.PQueueFamilyIndices = []uint32{
			vc.Device.GraphicsQueueIndex,
			vc.Device.PresentQueueIndex,
		}
	} else {
		swapchainCreateInfo.ImageSharingMode = vk.SharingModeExclusive
	}

	if old := lookup[*VulkanSwapchain](vc.handles, uint64(info.OldSwapchain)); old != nil {
		swapchainCreateInfo.OldSwapchain = old.Handle
	}

	var handle vk.Swapchain
	err := vc.locks.SafeCall(SwapchainManagement, func() error {
		return checkResult(vk.CreateSwapchain(vc.Device.LogicalDevice, &swapchainCreateInfo, vc.Allocator, &handle), "vkCreateSwapchainKHR")
	})
	if err != nil {
		return 0, err
	}

	var imageCount uint32
	if err := checkResult(vk.GetSwapchainImages(vc.Device.LogicalDevice, handle, &imageCount, nil), "vkGetSwapchainImagesKHR"); err != nil {
		vk.DestroySwapchain(vc.Device.LogicalDevice, handle, vc.Allocator)
		return 0, err
	}
	images := make([]vk.Image, imageCount)
	if err := checkResult(vk.GetSwapchainImages(vc.Device.LogicalDevice, handle, &imageCount, images), "vkGetSwapchainImagesKHR"); err != nil {
		vk.DestroySwapchain(vc.Device.LogicalDevice, handle, vc.Allocator)
		return 0, err
	}

	swapchain := &VulkanSwapchain{Handle: handle, Images: make([]gpu.Image, imageCount)}
	for i, img := range images[:imageCount] {
		swapchain.Images[i] = gpu.Image(vc.handles.put(img))
	}

	core.LogDebug("Vulkan swapchain created with %d images.", imageCount)
	return gpu.Swapchain(vc.handles.put(swapchain)), nil
}

func (vc *VulkanContext) SwapchainImages(sc gpu.Swapchain) ([]gpu.Image, error) {
	swapchain, err := mustLookup[*VulkanSwapchain](vc.handles, uint64(sc), "swapchain")
	if err != nil {
		return nil, err
	}
	out := make([]gpu.Image, len(swapchain.Images))
	copy(out, swapchain.Images)
	return out, nil
}

// DestroySwapchain releases the presentable images along with the
// swapchain; views onto them must already be destroyed.
func (vc *VulkanContext) DestroySwapchain(sc gpu.Swapchain) {
	swapchain := lookup[*VulkanSwapchain](vc.handles, uint64(sc))
	if swapchain == nil {
		return
	}
	for _, img := range swapchain.Images {
		vc.handles.drop(uint64(img))
	}
	vc.locks.SafeDo(SwapchainManagement, func() {
		vk.DestroySwapchain(vc.Device.LogicalDevice, swapchain.Handle, vc.Allocator)
	})
	vc.handles.drop(uint64(sc))
}

func (vc *VulkanContext) AcquireNextImage(sc gpu.Swapchain, timeout uint64, semaphore gpu.Semaphore) (uint32, gpu.Result) {
	swapchain := lookup[*VulkanSwapchain](vc.handles, uint64(sc))
	if swapchain == nil {
		core.LogError("acquire on unknown swapchain %d", sc)
		return 0, gpu.ErrorSurfaceLost
	}

	var imageIndex uint32
	result := vk.AcquireNextImage(
		vc.Device.LogicalDevice,
		swapchain.Handle,
		timeout,
		lookup[vk.Semaphore](vc.handles, uint64(semaphore)),
		nil,
		&imageIndex,
	)
	return imageIndex, gpu.Result(result)
}

func (vc *VulkanContext) QueueSubmit(submission gpu.Submission) error {
	cb, ok := submission.CommandBuffer.(*VulkanCommandBuffer)
	if !ok {
		return errors.Newf("command buffer %T was not allocated by this device", submission.CommandBuffer)
	}

	submitInfo := vk.SubmitInfo{
		SType:              vk.StructureTypeSubmitInfo,
		CommandBufferCount: 1,
		PCommandBuffers:    []vk.CommandBuffer{cb.Handle},
	}
	if s := lookup[vk.Semaphore](vc.handles, uint64(submission.WaitSemaphore)); s != nil {
		submitInfo.WaitSemaphoreCount = 1
		submitInfo.PWaitSemaphores = []vk.Semaphore{s}
		submitInfo.PWaitDstStageMask = []vk.PipelineStageFlags{vk.PipelineStageFlags(submission.WaitStage)}
	}
	if s := lookup[vk.Semaphore](vc.handles, uint64(submission.SignalSemaphore)); s != nil {
		submitInfo.SignalSemaphoreCount = 1
		submitInfo.PSignalSemaphores = []vk.Semaphore{s}
	}
	fence := lookup[vk.Fence](vc.handles, uint64(submission.Fence))

	err := vc.locks.SafeQueueCall(vc.Device.GraphicsQueueIndex, func() error {
		return checkResult(vk.QueueSubmit(vc.Device.GraphicsQueue, 1, []vk.SubmitInfo{submitInfo}, fence), "vkQueueSubmit")
	})
	if err != nil {
		return err
	}
	cb.UpdateSubmitted()
	return nil
}

func (vc *VulkanContext) QueuePresent(info gpu.PresentInfo) gpu.Result {
	swapchain := lookup[*VulkanSwapchain](vc.handles, uint64(info.Swapchain))
	if swapchain == nil {
		core.LogError("present on unknown swapchain %d", info.Swapchain)
		return gpu.ErrorSurfaceLost
	}

	// Return the image to the swapchain for presentation.
	presentInfo := vk.PresentInfo{
		SType:          vk.StructureTypePresentInfo,
		SwapchainCount: 1,
		PSwapchains:    []vk.Swapchain{swapchain.Handle},
		PImageIndices:  []uint32{info.ImageIndex},
	}
	if s := lookup[vk.Semaphore](vc.handles, uint64(info.WaitSemaphore)); s != nil {
		presentInfo.WaitSemaphoreCount = 1
		presentInfo.PWaitSemaphores = []vk.Semaphore{s}
	}

	var result vk.Result
	vc.locks.SafeQueueDo(vc.Device.PresentQueueIndex, func() {
		result = vk.QueuePresent(vc.Device.PresentQueue, &presentInfo)
	})
	return gpu.Result(result)
}
