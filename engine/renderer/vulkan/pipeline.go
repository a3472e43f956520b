package vulkan

import (
	"github.com/cockroachdb/errors"
	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/framepace/engine/core"
	"github.com/spaghettifunk/framepace/engine/renderer/gpu"
)

type FaceCullMode int

const (
	FaceCullModeBack FaceCullMode = iota
	FaceCullModeNone
	FaceCullModeFront
	FaceCullModeFrontAndBack
)

// VertexAttribute describes one input of the single interleaved vertex
// binding.
type VertexAttribute struct {
	Location uint32
	Format   gpu.Format
	Offset   uint32
}

type PipelineConfig struct {
	/** @brief The renderpass the pipeline draws into. */
	RenderPass gpu.RenderPass
	/** @brief One SPIR-V module holding both entry points. */
	SPIRV              []uint32
	VertexEntryPoint   string
	FragmentEntryPoint string
	/** @brief The stride of the vertex data to be used. */
	Stride     uint32
	Attributes []VertexAttribute
	/** @brief Set layouts in set index order. */
	SetLayouts  []gpu.DescriptorSetLayout
	CullMode    FaceCullMode
	IsWireframe bool
	DepthTest   bool
	DepthWrite  bool
}

/**
 * @brief Holds a Vulkan pipeline and its layout.
 */
type VulkanPipeline struct {
	/** @brief The internal pipeline handle. */
	Handle vk.Pipeline
	/** @brief The pipeline layout. */
	PipelineLayout vk.PipelineLayout

	layoutID gpu.PipelineLayout
}

func (vc *VulkanContext) createShaderModule(code []uint32) (vk.ShaderModule, error) {
	createInfo := vk.ShaderModuleCreateInfo{
		SType:    vk.StructureTypeShaderModuleCreateInfo,
		CodeSize: uint(len(code) * 4),
		PCode:    code,
	}

	var module vk.ShaderModule
	if err := checkResult(vk.CreateShaderModule(vc.Device.LogicalDevice, &createInfo, vc.Allocator, &module), "vkCreateShaderModule"); err != nil {
		return nil, err
	}
	return module, nil
}

// NewGraphicsPipeline builds a triangle-list pipeline with dynamic viewport
// and scissor and alpha blending on the single color attachment.
func (vc *VulkanContext) NewGraphicsPipeline(config PipelineConfig) (gpu.Pipeline, gpu.PipelineLayout, error) {
	if len(config.SPIRV) == 0 {
		return 0, 0, errors.New("graphics pipeline needs SPIR-V code")
	}
	renderPass, err := mustLookup[vk.RenderPass](vc.handles, uint64(config.RenderPass), "render pass")
	if err != nil {
		return 0, 0, err
	}

	module, err := vc.createShaderModule(config.SPIRV)
	if err != nil {
		return 0, 0, err
	}
	// The pipeline keeps what it needs from the module.
	defer vk.DestroyShaderModule(vc.Device.LogicalDevice, module, vc.Allocator)

	stages := []vk.PipelineShaderStageCreateInfo{
		{
			SType:  vk.StructureTypePipelineShaderStageCreateInfo,
			Stage:  vk.ShaderStageVertexBit,
			Module: module,
			PName:  VulkanSafeString(config.VertexEntryPoint),
		},
		{
			SType:  vk.StructureTypePipelineShaderStageCreateInfo,
			Stage:  vk.ShaderStageFragmentBit,
			Module: module,
			PName:  VulkanSafeString(config.FragmentEntryPoint),
		},
	}

	// Viewport and scissor are dynamic; the counts still have to be set.
	viewportState := vk.PipelineViewportStateCreateInfo{
		SType:         vk.StructureTypePipelineViewportStateCreateInfo,
		ViewportCount: 1,
		PViewports:    []vk.Viewport{{}},
		ScissorCount:  1,
		PScissors:     []vk.Rect2D{{}},
	}

	// Rasterizer
	rasterizerCreateInfo := vk.PipelineRasterizationStateCreateInfo{
		SType:                   vk.StructureTypePipelineRasterizationStateCreateInfo,
		DepthClampEnable:        vk.False,
		RasterizerDiscardEnable: vk.False,
		PolygonMode:             vk.PolygonModeFill,
		LineWidth:               1.0,
		FrontFace:               vk.FrontFaceCounterClockwise,
		DepthBiasEnable:         vk.False,
	}
	if config.IsWireframe {
		rasterizerCreateInfo.PolygonMode = vk.PolygonModeLine
	}
	switch config.CullMode {
	case FaceCullModeNone:
		rasterizerCreateInfo.CullMode = vk.CullModeFlags(vk.CullModeNone)
	case FaceCullModeFront:
		rasterizerCreateInfo.CullMode = vk.CullModeFlags(vk.CullModeFrontBit)
	case FaceCullModeFrontAndBack:
		rasterizerCreateInfo.CullMode = vk.CullModeFlags(vk.CullModeFrontAndBack)
	default:
		rasterizerCreateInfo.CullMode = vk.CullModeFlags(vk.CullModeBackBit)
	}

	// Multisampling.
	multisamplingCreateInfo := vk.PipelineMultisampleStateCreateInfo{
		SType:                 vk.StructureTypePipelineMultisampleStateCreateInfo,
		SampleShadingEnable:   vk.False,
		RasterizationSamples:  vk.SampleCount1Bit,
		MinSampleShading:      1.0,
		AlphaToCoverageEnable: vk.False,
		AlphaToOneEnable:      vk.False,
	}

	// Depth and stencil testing.
	depthStencil := vk.PipelineDepthStencilStateCreateInfo{
		SType:                 vk.StructureTypePipelineDepthStencilStateCreateInfo,
		DepthTestEnable:       boolToVk(config.DepthTest),
		DepthWriteEnable:      boolToVk(config.DepthWrite),
		DepthCompareOp:        vk.CompareOpLess,
		DepthBoundsTestEnable: vk.False,
		StencilTestEnable:     vk.False,
	}

	colorBlendAttachmentState := vk.PipelineColorBlendAttachmentState{
		BlendEnable:         vk.True,
		SrcColorBlendFactor: vk.BlendFactorSrcAlpha,
		DstColorBlendFactor: vk.BlendFactorOneMinusSrcAlpha,
		ColorBlendOp:        vk.BlendOpAdd,
		SrcAlphaBlendFactor: vk.BlendFactorSrcAlpha,
		DstAlphaBlendFactor: vk.BlendFactorOneMinusSrcAlpha,
		AlphaBlendOp:        vk.BlendOpAdd,
		ColorWriteMask: vk.ColorComponentFlags(vk.ColorComponentRBit) | vk.ColorComponentFlags(vk.ColorComponentGBit) |
			vk.ColorComponentFlags(vk.ColorComponentBBit) | vk.ColorComponentFlags(vk.ColorComponentABit),
	}

	colorBlendStateCreateInfo := vk.PipelineColorBlendStateCreateInfo{
		SType:           vk.StructureTypePipelineColorBlendStateCreateInfo,
		LogicOpEnable:   vk.False,
		LogicOp:         vk.LogicOpCopy,
		AttachmentCount: 1,
		PAttachments:    []vk.PipelineColorBlendAttachmentState{colorBlendAttachmentState},
	}

	// Dynamic state
	dynamicStates := []vk.DynamicState{
		vk.DynamicStateViewport,
		vk.DynamicStateScissor,
	}
	dynamicStateCreateInfo := vk.PipelineDynamicStateCreateInfo{
		SType:             vk.StructureTypePipelineDynamicStateCreateInfo,
		DynamicStateCount: uint32(len(dynamicStates)),
		PDynamicStates:    dynamicStates,
	}

	// Vertex input
	bindingDescription := vk.VertexInputBindingDescription{
		Binding:   0, // Binding index
		Stride:    config.Stride,
		InputRate: vk.VertexInputRateVertex, // Move to next data entry for each vertex.
	}

	attributes := make([]vk.VertexInputAttributeDescription, len(config.Attributes))
	for i, a := range config.Attributes {
		attributes[i] = vk.VertexInputAttributeDescription{
			Binding:  0,
			Location: a.Location,
			Format:   vk.Format(a.Format),
			Offset:   a.Offset,
		}
	}

	vertexInputInfo := vk.PipelineVertexInputStateCreateInfo{
		SType:                           vk.StructureTypePipelineVertexInputStateCreateInfo,
		VertexBindingDescriptionCount:   1,
		PVertexBindingDescriptions:      []vk.VertexInputBindingDescription{bindingDescription},
		VertexAttributeDescriptionCount: uint32(len(attributes)),
		PVertexAttributeDescriptions:    attributes,
	}

	// Input assembly
	inputAssembly := vk.PipelineInputAssemblyStateCreateInfo{
		SType:                  vk.StructureTypePipelineInputAssemblyStateCreateInfo,
		Topology:               vk.PrimitiveTopologyTriangleList,
		PrimitiveRestartEnable: vk.False,
	}

	setLayouts := make([]vk.DescriptorSetLayout, len(config.SetLayouts))
	for i, l := range config.SetLayouts {
		layout, err := mustLookup[vk.DescriptorSetLayout](vc.handles, uint64(l), "descriptor set layout")
		if err != nil {
			return 0, 0, err
		}
		setLayouts[i] = layout
	}

	pipelineLayoutCreateInfo := vk.PipelineLayoutCreateInfo{
		SType:          vk.StructureTypePipelineLayoutCreateInfo,
		SetLayoutCount: uint32(len(setLayouts)),
		PSetLayouts:    setLayouts,
	}

	outPipeline := &VulkanPipeline{}

	var pipelineLayout vk.PipelineLayout
	if err := vc.locks.SafeCall(PipelineManagement, func() error {
		return checkResult(vk.CreatePipelineLayout(vc.Device.LogicalDevice, &pipelineLayoutCreateInfo, vc.Allocator, &pipelineLayout), "vkCreatePipelineLayout")
	}); err != nil {
		return 0, 0, err
	}
	outPipeline.PipelineLayout = pipelineLayout

	pipelineCreateInfo := vk.GraphicsPipelineCreateInfo{
		SType:               vk.StructureTypeGraphicsPipelineCreateInfo,
		StageCount:          uint32(len(stages)),
		PStages:             stages,
		PVertexInputState:   &vertexInputInfo,
		PInputAssemblyState: &inputAssembly,
		PViewportState:      &viewportState,
		PRasterizationState: &rasterizerCreateInfo,
		PMultisampleState:   &multisamplingCreateInfo,
		PDepthStencilState:  &depthStencil,
		PColorBlendState:    &colorBlendStateCreateInfo,
		PDynamicState:       &dynamicStateCreateInfo,
		PTessellationState:  nil,
		Layout:              outPipeline.PipelineLayout,
		RenderPass:          renderPass,
		Subpass:             0,
		BasePipelineHandle:  vk.NullPipeline,
		BasePipelineIndex:   -1,
	}

	pipelines := make([]vk.Pipeline, 1)
	if err := vc.locks.SafeCall(PipelineManagement, func() error {
		return checkResult(vk.CreateGraphicsPipelines(
			vc.Device.LogicalDevice,
			vk.NullPipelineCache,
			1,
			[]vk.GraphicsPipelineCreateInfo{pipelineCreateInfo},
			vc.Allocator,
			pipelines), "vkCreateGraphicsPipelines")
	}); err != nil {
		vk.DestroyPipelineLayout(vc.Device.LogicalDevice, pipelineLayout, vc.Allocator)
		return 0, 0, err
	}
	outPipeline.Handle = pipelines[0]
	outPipeline.layoutID = gpu.PipelineLayout(vc.handles.put(pipelineLayout))

	core.LogDebug("Graphics pipeline created!")
	return gpu.Pipeline(vc.handles.put(outPipeline)), outPipeline.layoutID, nil
}

// DestroyPipeline destroys the pipeline together with its layout.
func (vc *VulkanContext) DestroyPipeline(p gpu.Pipeline) {
	pipeline := lookup[*VulkanPipeline](vc.handles, uint64(p))
	if pipeline == nil {
		return
	}
	vc.locks.SafeDo(PipelineManagement, func() {
		if pipeline.Handle != nil {
			vk.DestroyPipeline(vc.Device.LogicalDevice, pipeline.Handle, vc.Allocator)
			pipeline.Handle = nil
		}
		if pipeline.PipelineLayout != nil {
			vk.DestroyPipelineLayout(vc.Device.LogicalDevice, pipeline.PipelineLayout, vc.Allocator)
			pipeline.PipelineLayout = nil
		}
	})
	vc.handles.drop(uint64(pipeline.layoutID))
	vc.handles.drop(uint64(p))
}
