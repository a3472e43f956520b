package vulkan

import (
	"github.com/cockroachdb/errors"
	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/framepace/engine/core"
	"github.com/spaghettifunk/framepace/engine/renderer/gpu"
)

type VulkanCommandBufferState int

const (
	COMMAND_BUFFER_STATE_READY VulkanCommandBufferState = iota
	COMMAND_BUFFER_STATE_RECORDING
	COMMAND_BUFFER_STATE_IN_RENDER_PASS
	COMMAND_BUFFER_STATE_RECORDING_ENDED
	COMMAND_BUFFER_STATE_SUBMITTED
	COMMAND_BUFFER_STATE_NOT_ALLOCATED
)

// VulkanCommandBuffer records into a primary command buffer of the graphics
// pool. Handles passed to the Cmd* methods are resolved through the context.
type VulkanCommandBuffer struct {
	Handle vk.CommandBuffer
	// Command buffer state.
	State VulkanCommandBufferState

	context *VulkanContext
}

var _ gpu.CommandBuffer = (*VulkanCommandBuffer)(nil)

func (vc *VulkanContext) AllocateCommandBuffers(count int) ([]gpu.CommandBuffer, error) {
	handles := make([]vk.CommandBuffer, count)
	allocateInfo := vk.CommandBufferAllocateInfo{
		SType:              vk.StructureTypeCommandBufferAllocateInfo,
		CommandPool:        vc.Device.GraphicsCommandPool,
		CommandBufferCount: uint32(count),
		Level:              vk.CommandBufferLevelPrimary,
	}

	err := vc.locks.SafeCall(CommandBufferManagement, func() error {
		return checkResult(vk.AllocateCommandBuffers(vc.Device.LogicalDevice, &allocateInfo, handles), "vkAllocateCommandBuffers")
	})
	if err != nil {
		return nil, err
	}

	out := make([]gpu.CommandBuffer, count)
	for i, h := range handles {
		out[i] = &VulkanCommandBuffer{Handle: h, State: COMMAND_BUFFER_STATE_READY, context: vc}
	}
	return out, nil
}

func (vc *VulkanContext) FreeCommandBuffers(cbs []gpu.CommandBuffer) {
	handles := make([]vk.CommandBuffer, 0, len(cbs))
	for _, cb := range cbs {
		if v, ok := cb.(*VulkanCommandBuffer); ok && v.Handle != nil {
			handles = append(handles, v.Handle)
			v.Handle = nil
			v.State = COMMAND_BUFFER_STATE_NOT_ALLOCATED
		}
	}
	if len(handles) == 0 {
		return
	}
	vc.locks.SafeDo(CommandBufferManagement, func() {
		vk.FreeCommandBuffers(vc.Device.LogicalDevice, vc.Device.GraphicsCommandPool, uint32(len(handles)), handles)
	})
}

func (v *VulkanCommandBuffer) begin(flags vk.CommandBufferUsageFlags) error {
	beginInfo := vk.CommandBufferBeginInfo{
		SType: vk.StructureTypeCommandBufferBeginInfo,
		Flags: flags,
	}
	if err := checkResult(vk.BeginCommandBuffer(v.Handle, &beginInfo), "vkBeginCommandBuffer"); err != nil {
		return err
	}
	v.State = COMMAND_BUFFER_STATE_RECORDING
	return nil
}

func (v *VulkanCommandBuffer) Begin() error {
	return v.begin(0)
}

func (v *VulkanCommandBuffer) End() error {
	if err := checkResult(vk.EndCommandBuffer(v.Handle), "vkEndCommandBuffer"); err != nil {
		return err
	}
	v.State = COMMAND_BUFFER_STATE_RECORDING_ENDED
	return nil
}

func (v *VulkanCommandBuffer) Reset() error {
	if err := checkResult(vk.ResetCommandBuffer(v.Handle, 0), "vkResetCommandBuffer"); err != nil {
		return err
	}
	v.State = COMMAND_BUFFER_STATE_READY
	return nil
}

func (v *VulkanCommandBuffer) UpdateSubmitted() {
	v.State = COMMAND_BUFFER_STATE_SUBMITTED
}

func (v *VulkanCommandBuffer) BeginRenderPass(rp gpu.RenderPass, fb gpu.Framebuffer, area gpu.Rect2D, clears []gpu.ClearValue) {
	clearValues := make([]vk.ClearValue, len(clears))
	for i, c := range clears {
		if c.DepthStencil {
			clearValues[i].SetDepthStencil(c.Depth, c.Stencil)
		} else {
			clearValues[i].SetColor(c.Color[:])
		}
	}

	beginInfo := vk.RenderPassBeginInfo{
		SType:       vk.StructureTypeRenderPassBeginInfo,
		RenderPass:  lookup[vk.RenderPass](v.context.handles, uint64(rp)),
		Framebuffer: lookup[vk.Framebuffer](v.context.handles, uint64(fb)),
		RenderArea: vk.Rect2D{
			Offset: vk.Offset2D{X: area.Offset.X, Y: area.Offset.Y},
			Extent: vk.Extent2D{Width: area.Extent.Width, Height: area.Extent.Height},
		},
		ClearValueCount: uint32(len(clearValues)),
		PClearValues:    clearValues,
	}

	vk.CmdBeginRenderPass(v.Handle, &beginInfo, vk.SubpassContentsInline)
	v.State = COMMAND_BUFFER_STATE_IN_RENDER_PASS
}

func (v *VulkanCommandBuffer) EndRenderPass() {
	vk.CmdEndRenderPass(v.Handle)
	v.State = COMMAND_BUFFER_STATE_RECORDING
}

func (v *VulkanCommandBuffer) SetViewport(vp gpu.Viewport) {
	viewport := vk.Viewport{
		X:        vp.X,
		Y:        vp.Y,
		Width:    vp.Width,
		Height:   vp.Height,
		MinDepth: vp.MinDepth,
		MaxDepth: vp.MaxDepth,
	}
	vk.CmdSetViewport(v.Handle, 0, 1, []vk.Viewport{viewport})
}

func (v *VulkanCommandBuffer) SetScissor(r gpu.Rect2D) {
	scissor := vk.Rect2D{
		Offset: vk.Offset2D{X: r.Offset.X, Y: r.Offset.Y},
		Extent: vk.Extent2D{Width: r.Extent.Width, Height: r.Extent.Height},
	}
	vk.CmdSetScissor(v.Handle, 0, 1, []vk.Rect2D{scissor})
}

func (v *VulkanCommandBuffer) BindPipeline(p gpu.Pipeline) {
	pipeline := lookup[*VulkanPipeline](v.context.handles, uint64(p))
	if pipeline == nil {
		core.LogError("bind of unknown pipeline %d", p)
		return
	}
	vk.CmdBindPipeline(v.Handle, vk.PipelineBindPointGraphics, pipeline.Handle)
}

func (v *VulkanCommandBuffer) BindDescriptorSets(layout gpu.PipelineLayout, firstSet uint32, sets []gpu.DescriptorSet) {
	handles := make([]vk.DescriptorSet, len(sets))
	for i, s := range sets {
		handles[i] = lookup[vk.DescriptorSet](v.context.handles, uint64(s))
	}
	vk.CmdBindDescriptorSets(
		v.Handle,
		vk.PipelineBindPointGraphics,
		lookup[vk.PipelineLayout](v.context.handles, uint64(layout)),
		firstSet,
		uint32(len(handles)),
		handles,
		0,
		nil,
	)
}

func (v *VulkanCommandBuffer) BindVertexBuffers(buffers []gpu.Buffer, offsets []uint64) {
	handles := make([]vk.Buffer, len(buffers))
	deviceOffsets := make([]vk.DeviceSize, len(buffers))
	for i, b := range buffers {
		handles[i] = lookup[vk.Buffer](v.context.handles, uint64(b))
		if i < len(offsets) {
			deviceOffsets[i] = vk.DeviceSize(offsets[i])
		}
	}
	vk.CmdBindVertexBuffers(v.Handle, 0, uint32(len(handles)), handles, deviceOffsets)
}

func (v *VulkanCommandBuffer) BindIndexBuffer(buf gpu.Buffer, offset uint64, indexType gpu.IndexType) {
	vk.CmdBindIndexBuffer(v.Handle, lookup[vk.Buffer](v.context.handles, uint64(buf)), vk.DeviceSize(offset), vk.IndexType(indexType))
}

func (v *VulkanCommandBuffer) DrawIndexed(indexCount, instanceCount, firstIndex uint32, vertexOffset int32, firstInstance uint32) {
	vk.CmdDrawIndexed(v.Handle, indexCount, instanceCount, firstIndex, vertexOffset, firstInstance)
}

/**
 * Allocates and begins recording a one-shot command buffer.
 */
func (vc *VulkanContext) allocateAndBeginSingleUse() (*VulkanCommandBuffer, error) {
	cbs, err := vc.AllocateCommandBuffers(1)
	if err != nil {
		return nil, err
	}
	cb := cbs[0].(*VulkanCommandBuffer)
	if err := cb.begin(vk.CommandBufferUsageFlags(vk.CommandBufferUsageOneTimeSubmitBit)); err != nil {
		vc.FreeCommandBuffers(cbs)
		return nil, err
	}
	return cb, nil
}

/**
 * Ends recording, submits to and waits for the graphics queue and frees the
 * command buffer.
 */
func (vc *VulkanContext) endSingleUse(cb *VulkanCommandBuffer) error {
	defer vc.FreeCommandBuffers([]gpu.CommandBuffer{cb})

	if err := cb.End(); err != nil {
		return err
	}

	submitInfo := vk.SubmitInfo{
		SType:              vk.StructureTypeSubmitInfo,
		CommandBufferCount: 1,
		PCommandBuffers:    []vk.CommandBuffer{cb.Handle},
	}

	return vc.locks.SafeQueueCall(vc.Device.GraphicsQueueIndex, func() error {
		if err := checkResult(vk.QueueSubmit(vc.Device.GraphicsQueue, 1, []vk.SubmitInfo{submitInfo}, nil), "vkQueueSubmit"); err != nil {
			return err
		}
		return checkResult(vk.QueueWaitIdle(vc.Device.GraphicsQueue), "vkQueueWaitIdle")
	})
}

func (vc *VulkanContext) CopyBuffer(src, dst gpu.Buffer, size uint64) error {
	srcBuffer, err := mustLookup[vk.Buffer](vc.handles, uint64(src), "buffer")
	if err != nil {
		return err
	}
	dstBuffer, err := mustLookup[vk.Buffer](vc.handles, uint64(dst), "buffer")
	if err != nil {
		return err
	}

	cb, err := vc.allocateAndBeginSingleUse()
	if err != nil {
		return err
	}
	copyRegion := vk.BufferCopy{
		SrcOffset: 0,
		DstOffset: 0,
		Size:      vk.DeviceSize(size),
	}
	vk.CmdCopyBuffer(cb.Handle, srcBuffer, dstBuffer, 1, []vk.BufferCopy{copyRegion})

	return vc.endSingleUse(cb)
}

// CopyBufferToImage copies tightly packed pixels into an image that is in
// the transfer destination layout.
func (vc *VulkanContext) CopyBufferToImage(src gpu.Buffer, dst gpu.Image, extent gpu.Extent2D) error {
	buffer, err := mustLookup[vk.Buffer](vc.handles, uint64(src), "buffer")
	if err != nil {
		return err
	}
	image, err := mustLookup[vk.Image](vc.handles, uint64(dst), "image")
	if err != nil {
		return err
	}

	cb, err := vc.allocateAndBeginSingleUse()
	if err != nil {
		return err
	}
	region := vk.BufferImageCopy{
		BufferOffset:      0,
		BufferRowLength:   0,
		BufferImageHeight: 0,
		ImageSubresource: vk.ImageSubresourceLayers{
			AspectMask:     vk.ImageAspectFlags(vk.ImageAspectColorBit),
			MipLevel:       0,
			BaseArrayLayer: 0,
			LayerCount:     1,
		},
		ImageOffset: vk.Offset3D{X: 0, Y: 0, Z: 0},
		ImageExtent: vk.Extent3D{Width: extent.Width, Height: extent.Height, Depth: 1},
	}
	vk.CmdCopyBufferToImage(cb.Handle, buffer, image, vk.ImageLayoutTransferDstOptimal, 1, []vk.BufferImageCopy{region})

	return vc.endSingleUse(cb)
}

// TransitionImageLayout supports the two transitions of a texture upload:
// undefined to transfer destination, then transfer destination to shader
// read-only.
func (vc *VulkanContext) TransitionImageLayout(img gpu.Image, format gpu.Format, from, to gpu.ImageLayout) error {
	image, err := mustLookup[vk.Image](vc.handles, uint64(img), "image")
	if err != nil {
		return err
	}

	barrier := vk.ImageMemoryBarrier{
		SType:               vk.StructureTypeImageMemoryBarrier,
		OldLayout:           vk.ImageLayout(from),
		NewLayout:           vk.ImageLayout(to),
		SrcQueueFamilyIndex: vk.QueueFamilyIgnored,
		DstQueueFamilyIndex: vk.QueueFamilyIgnored,
		Image:               image,
		SubresourceRange: vk.ImageSubresourceRange{
			AspectMask:     vk.ImageAspectFlags(vk.ImageAspectColorBit),
			BaseMipLevel:   0,
			LevelCount:     1,
			BaseArrayLayer: 0,
			LayerCount:     1,
		},
	}

	var sourceStage, destinationStage vk.PipelineStageFlags
	switch {
	case from == gpu.ImageLayoutUndefined && to == gpu.ImageLayoutTransferDst:
		barrier.SrcAccessMask = 0
		barrier.DstAccessMask = vk.AccessFlags(vk.AccessTransferWriteBit)
		sourceStage = vk.PipelineStageFlags(vk.PipelineStageTopOfPipeBit)
		destinationStage = vk.PipelineStageFlags(vk.PipelineStageTransferBit)
	case from == gpu.ImageLayoutTransferDst && to == gpu.ImageLayoutShaderReadOnly:
		barrier.SrcAccessMask = vk.AccessFlags(vk.AccessTransferWriteBit)
		barrier.DstAccessMask = vk.AccessFlags(vk.AccessShaderReadBit)
		sourceStage = vk.PipelineStageFlags(vk.PipelineStageTransferBit)
		destinationStage = vk.PipelineStageFlags(vk.PipelineStageFragmentShaderBit)
	default:
		return errors.Newf("unsupported layout transition %d -> %d for format %d", from, to, format)
	}

	cb, err := vc.allocateAndBeginSingleUse()
	if err != nil {
		return err
	}
	vk.CmdPipelineBarrier(
		cb.Handle,
		sourceStage, destinationStage,
		0,
		0, nil,
		0, nil,
		1, []vk.ImageMemoryBarrier{barrier},
	)

	return vc.endSingleUse(cb)
}
