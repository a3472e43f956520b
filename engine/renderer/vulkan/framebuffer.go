package vulkan

import (
	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/framepace/engine/renderer/gpu"
)

func (vc *VulkanContext) CreateFramebuffer(rp gpu.RenderPass, attachments []gpu.ImageView, extent gpu.Extent2D) (gpu.Framebuffer, error) {
	renderPass, err := mustLookup[vk.RenderPass](vc.handles, uint64(rp), "render pass")
	if err != nil {
		return 0, err
	}

	views := make([]vk.ImageView, len(attachments))
	for i, a := range attachments {
		view, err := mustLookup[vk.ImageView](vc.handles, uint64(a), "image view")
		if err != nil {
			return 0, err
		}
		views[i] = view
	}

	framebufferCreateInfo := vk.FramebufferCreateInfo{
		SType:           vk.StructureTypeFramebufferCreateInfo,
		RenderPass:      renderPass,
		AttachmentCount: uint32(len(views)),
		PAttachments:    views,
		Width:           extent.Width,
		Height:          extent.Height,
		Layers:          1,
	}

	var framebuffer vk.Framebuffer
	if err := checkResult(vk.CreateFramebuffer(vc.Device.LogicalDevice, &framebufferCreateInfo, vc.Allocator, &framebuffer), "vkCreateFramebuffer"); err != nil {
		return 0, err
	}
	return gpu.Framebuffer(vc.handles.put(framebuffer)), nil
}

func (vc *VulkanContext) DestroyFramebuffer(fb gpu.Framebuffer) {
	if framebuffer := lookup[vk.Framebuffer](vc.handles, uint64(fb)); framebuffer != nil {
		vk.DestroyFramebuffer(vc.Device.LogicalDevice, framebuffer, vc.Allocator)
		vc.handles.drop(uint64(fb))
	}
}
