package vulkan

import (
	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/framepace/engine/renderer/gpu"
)

// CreateRenderPass builds a single-subpass pass with one color and one
// depth attachment. The color attachment starts undefined and ends in the
// layout info asks for.
func (vc *VulkanContext) CreateRenderPass(info gpu.RenderPassCreateInfo) (gpu.RenderPass, error) {
	colorAttachment := vk.AttachmentDescription{
		Format:         vk.Format(info.Color.Format),
		Samples:        vk.SampleCount1Bit,
		LoadOp:         vk.AttachmentLoadOp(info.Color.LoadOp),
		StoreOp:        vk.AttachmentStoreOp(info.Color.StoreOp),
		StencilLoadOp:  vk.AttachmentLoadOpDontCare,
		StencilStoreOp: vk.AttachmentStoreOpDontCare,
		InitialLayout:  vk.ImageLayoutUndefined, // Do not expect any particular layout before render pass starts.
		FinalLayout:    vk.ImageLayout(info.Color.FinalLayout),
	}

	depthAttachment := vk.AttachmentDescription{
		Format:         vk.Format(info.Depth.Format),
		Samples:        vk.SampleCount1Bit,
		LoadOp:         vk.AttachmentLoadOp(info.Depth.LoadOp),
		StoreOp:        vk.AttachmentStoreOp(info.Depth.StoreOp),
		StencilLoadOp:  vk.AttachmentLoadOpDontCare,
		StencilStoreOp: vk.AttachmentStoreOpDontCare,
		InitialLayout:  vk.ImageLayoutUndefined,
		FinalLayout:    vk.ImageLayout(info.Depth.FinalLayout),
	}

	colorAttachmentReference := []vk.AttachmentReference{{
		Attachment: 0, // Attachment description array index
		Layout:     vk.ImageLayoutColorAttachmentOptimal,
	}}
	depthAttachmentReference := vk.AttachmentReference{
		Attachment: 1,
		Layout:     vk.ImageLayoutDepthStencilAttachmentOptimal,
	}

	// TODO: other attachment types (input, resolve, preserve)
	subpass := vk.SubpassDescription{
		PipelineBindPoint:       vk.PipelineBindPointGraphics,
		ColorAttachmentCount:    1,
		PColorAttachments:       colorAttachmentReference,
		PDepthStencilAttachment: &depthAttachmentReference,
	}

	// Wait for the previous use of the attachments before writing them.
	dependency := vk.SubpassDependency{
		SrcSubpass:    vk.SubpassExternal,
		DstSubpass:    0,
		SrcStageMask:  vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit) | vk.PipelineStageFlags(vk.PipelineStageEarlyFragmentTestsBit),
		SrcAccessMask: 0,
		DstStageMask:  vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit) | vk.PipelineStageFlags(vk.PipelineStageEarlyFragmentTestsBit),
		DstAccessMask: vk.AccessFlags(vk.AccessColorAttachmentWriteBit) | vk.AccessFlags(vk.AccessDepthStencilAttachmentWriteBit),
	}

	renderpassCreateInfo := vk.RenderPassCreateInfo{
		SType:           vk.StructureTypeRenderPassCreateInfo,
		AttachmentCount: 2,
		PAttachments:    []vk.AttachmentDescription{colorAttachment, depthAttachment},
		SubpassCount:    1,
		PSubpasses:      []vk.SubpassDescription{subpass},
		DependencyCount: 1,
		PDependencies:   []vk.SubpassDependency{dependency},
	}

	var renderPass vk.RenderPass
	if err := checkResult(vk.CreateRenderPass(vc.Device.LogicalDevice, &renderpassCreateInfo, vc.Allocator, &renderPass), "vkCreateRenderPass"); err != nil {
		return 0, err
	}
	return gpu.RenderPass(vc.handles.put(renderPass)), nil
}

func (vc *VulkanContext) DestroyRenderPass(rp gpu.RenderPass) {
	if renderPass := lookup[vk.RenderPass](vc.handles, uint64(rp)); renderPass != nil {
		vk.DestroyRenderPass(vc.Device.LogicalDevice, renderPass, vc.Allocator)
		vc.handles.drop(uint64(rp))
	}
}
