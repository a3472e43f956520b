package gpu

// Format values match VkFormat.
type Format uint32

const (
	FormatUndefined       Format = 0
	FormatR8G8B8A8Unorm   Format = 37
	FormatR8G8B8A8Srgb    Format = 43
	FormatB8G8R8A8Unorm   Format = 44
	FormatB8G8R8A8Srgb    Format = 50
	FormatR32G32Sfloat    Format = 103
	FormatR32G32B32Sfloat Format = 106
	FormatD32Sfloat       Format = 126
	FormatD24UnormS8Uint  Format = 129
	FormatD32SfloatS8Uint Format = 130
)

// HasStencil reports whether a depth format carries a stencil component.
func (f Format) HasStencil() bool {
	return f == FormatD32SfloatS8Uint || f == FormatD24UnormS8Uint
}

type ColorSpace uint32

const ColorSpaceSrgbNonlinear ColorSpace = 0

type PresentMode uint32

const (
	PresentModeImmediate   PresentMode = 0
	PresentModeMailbox     PresentMode = 1
	PresentModeFifo        PresentMode = 2
	PresentModeFifoRelaxed PresentMode = 3
)

func (m PresentMode) String() string {
	switch m {
	case PresentModeImmediate:
		return "immediate"
	case PresentModeMailbox:
		return "mailbox"
	case PresentModeFifo:
		return "fifo"
	case PresentModeFifoRelaxed:
		return "fifo_relaxed"
	}
	return "unknown"
}

type DescriptorType uint32

const (
	DescriptorTypeSampler              DescriptorType = 0
	DescriptorTypeCombinedImageSampler DescriptorType = 1
	DescriptorTypeSampledImage         DescriptorType = 2
	DescriptorTypeStorageImage         DescriptorType = 3
	DescriptorTypeUniformBuffer        DescriptorType = 6
	DescriptorTypeStorageBuffer        DescriptorType = 7
	DescriptorTypeUniformBufferDynamic DescriptorType = 8
)

// IsImage reports whether descriptors of this type reference images or
// samplers rather than buffers.
func (t DescriptorType) IsImage() bool {
	switch t {
	case DescriptorTypeSampler, DescriptorTypeCombinedImageSampler,
		DescriptorTypeSampledImage, DescriptorTypeStorageImage:
		return true
	}
	return false
}

type ShaderStageFlags uint32

const (
	ShaderStageVertex      ShaderStageFlags = 0x1
	ShaderStageFragment    ShaderStageFlags = 0x10
	ShaderStageAllGraphics ShaderStageFlags = 0x1f
)

type DescriptorPoolCreateFlags uint32

const DescriptorPoolCreateFreeDescriptorSet DescriptorPoolCreateFlags = 0x1

type BufferUsageFlags uint32

const (
	BufferUsageTransferSrc   BufferUsageFlags = 0x1
	BufferUsageTransferDst   BufferUsageFlags = 0x2
	BufferUsageUniformBuffer BufferUsageFlags = 0x10
	BufferUsageStorageBuffer BufferUsageFlags = 0x20
	BufferUsageIndexBuffer   BufferUsageFlags = 0x40
	BufferUsageVertexBuffer  BufferUsageFlags = 0x80
)

type MemoryPropertyFlags uint32

const (
	MemoryPropertyDeviceLocal  MemoryPropertyFlags = 0x1
	MemoryPropertyHostVisible  MemoryPropertyFlags = 0x2
	MemoryPropertyHostCoherent MemoryPropertyFlags = 0x4
)

type ImageLayout uint32

const (
	ImageLayoutUndefined              ImageLayout = 0
	ImageLayoutColorAttachment        ImageLayout = 2
	ImageLayoutDepthStencilAttachment ImageLayout = 3
	ImageLayoutShaderReadOnly         ImageLayout = 5
	ImageLayoutTransferDst            ImageLayout = 7
	ImageLayoutPresentSrc             ImageLayout = 1000001002
)

type ImageUsageFlags uint32

const (
	ImageUsageTransferSrc            ImageUsageFlags = 0x1
	ImageUsageTransferDst            ImageUsageFlags = 0x2
	ImageUsageSampled                ImageUsageFlags = 0x4
	ImageUsageColorAttachment        ImageUsageFlags = 0x10
	ImageUsageDepthStencilAttachment ImageUsageFlags = 0x20
)

type ImageAspectFlags uint32

const (
	ImageAspectColor   ImageAspectFlags = 0x1
	ImageAspectDepth   ImageAspectFlags = 0x2
	ImageAspectStencil ImageAspectFlags = 0x4
)

type ImageTiling uint32

const (
	ImageTilingOptimal ImageTiling = 0
	ImageTilingLinear  ImageTiling = 1
)

type FormatFeatureFlags uint32

const (
	FormatFeatureSampledImage           FormatFeatureFlags = 0x1
	FormatFeatureColorAttachment        FormatFeatureFlags = 0x80
	FormatFeatureDepthStencilAttachment FormatFeatureFlags = 0x200
)

type AttachmentLoadOp uint32

const (
	AttachmentLoadOpLoad     AttachmentLoadOp = 0
	AttachmentLoadOpClear    AttachmentLoadOp = 1
	AttachmentLoadOpDontCare AttachmentLoadOp = 2
)

type AttachmentStoreOp uint32

const (
	AttachmentStoreOpStore    AttachmentStoreOp = 0
	AttachmentStoreOpDontCare AttachmentStoreOp = 1
)

type PipelineStageFlags uint32

const (
	PipelineStageTopOfPipe             PipelineStageFlags = 0x1
	PipelineStageFragmentShader        PipelineStageFlags = 0x80
	PipelineStageEarlyFragmentTests    PipelineStageFlags = 0x100
	PipelineStageColorAttachmentOutput PipelineStageFlags = 0x400
	PipelineStageTransfer              PipelineStageFlags = 0x1000
)

type SurfaceTransformFlags uint32

const SurfaceTransformIdentity SurfaceTransformFlags = 0x1

type Filter uint32

const (
	FilterNearest Filter = 0
	FilterLinear  Filter = 1
)

// UndefinedExtent in SurfaceCapabilities.CurrentExtent means the surface
// size is determined by the swapchain.
const UndefinedExtent = ^uint32(0)

type Extent2D struct {
	Width  uint32
	Height uint32
}

// IsZero reports whether the extent has no area.
func (e Extent2D) IsZero() bool {
	return e.Width == 0 || e.Height == 0
}

type Offset2D struct {
	X int32
	Y int32
}

type Rect2D struct {
	Offset Offset2D
	Extent Extent2D
}

type Viewport struct {
	X, Y, Width, Height, MinDepth, MaxDepth float32
}

type SurfaceFormat struct {
	Format     Format
	ColorSpace ColorSpace
}

type SurfaceCapabilities struct {
	MinImageCount    uint32
	MaxImageCount    uint32
	CurrentExtent    Extent2D
	MinImageExtent   Extent2D
	MaxImageExtent   Extent2D
	CurrentTransform SurfaceTransformFlags
}

// SurfaceSupport is what a device reports about presenting to a surface.
type SurfaceSupport struct {
	Capabilities SurfaceCapabilities
	Formats      []SurfaceFormat
	PresentModes []PresentMode
}

type Limits struct {
	MinUniformBufferOffsetAlignment uint64
	NonCoherentAtomSize             uint64
	MaxSamplerAnisotropy            float32
}

type SwapchainCreateInfo struct {
	MinImageCount uint32
	Format        SurfaceFormat
	Extent        Extent2D
	PresentMode   PresentMode
	PreTransform  SurfaceTransformFlags
	// OldSwapchain is handed to the platform so it can reuse resources of
	// the generation being replaced.
	OldSwapchain Swapchain
}

type ImageCreateInfo struct {
	Extent     Extent2D
	Format     Format
	Tiling     ImageTiling
	Usage      ImageUsageFlags
	Properties MemoryPropertyFlags
}

type SamplerCreateInfo struct {
	MagFilter     Filter
	MinFilter     Filter
	MaxAnisotropy float32
}

type AttachmentDescription struct {
	Format      Format
	LoadOp      AttachmentLoadOp
	StoreOp     AttachmentStoreOp
	FinalLayout ImageLayout
}

type RenderPassCreateInfo struct {
	Color AttachmentDescription
	Depth AttachmentDescription
}

type LayoutBinding struct {
	Binding uint32
	Type    DescriptorType
	Stages  ShaderStageFlags
	Count   uint32
}

type PoolSize struct {
	Type  DescriptorType
	Count uint32
}

type DescriptorPoolCreateInfo struct {
	MaxSets uint32
	Sizes   []PoolSize
	Flags   DescriptorPoolCreateFlags
}

type DescriptorBufferInfo struct {
	Buffer Buffer
	Offset uint64
	Range  uint64
}

type DescriptorImageInfo struct {
	Sampler Sampler
	View    ImageView
	Layout  ImageLayout
}

// DescriptorWrite points one binding of a set at a buffer or image. Exactly
// one of BufferInfo and ImageInfo is set, according to Type.
type DescriptorWrite struct {
	Set        DescriptorSet
	Binding    uint32
	Type       DescriptorType
	BufferInfo *DescriptorBufferInfo
	ImageInfo  *DescriptorImageInfo
}

// Submission is one batch for the graphics queue.
type Submission struct {
	CommandBuffer   CommandBuffer
	WaitSemaphore   Semaphore
	WaitStage       PipelineStageFlags
	SignalSemaphore Semaphore
	Fence           Fence
}

type PresentInfo struct {
	WaitSemaphore Semaphore
	Swapchain     Swapchain
	ImageIndex    uint32
}

// ClearValue holds either a color or a depth/stencil clear.
type ClearValue struct {
	Color        [4]float32
	Depth        float32
	Stencil      uint32
	DepthStencil bool
}

func ClearColor(r, g, b, a float32) ClearValue {
	return ClearValue{Color: [4]float32{r, g, b, a}}
}

func ClearDepthStencil(depth float32, stencil uint32) ClearValue {
	return ClearValue{Depth: depth, Stencil: stencil, DepthStencil: true}
}

type IndexType uint32

const (
	IndexTypeUint16 IndexType = 0
	IndexTypeUint32 IndexType = 1
)
