// Package gpu declares the device, surface and command recording contracts
// the frame renderer is written against. The vulkan package provides the
// real implementation and gputest a deterministic fake.
package gpu

// Handles are opaque identifiers issued by a Device. The zero value is the
// null handle.
type (
	Fence               uint64
	Semaphore           uint64
	Swapchain           uint64
	Image               uint64
	ImageView           uint64
	DeviceMemory        uint64
	Buffer              uint64
	Sampler             uint64
	RenderPass          uint64
	Framebuffer         uint64
	DescriptorSetLayout uint64
	DescriptorPool      uint64
	DescriptorSet       uint64
	Pipeline            uint64
	PipelineLayout      uint64
)

// WholeSize selects the remainder of a buffer or mapping from an offset.
const WholeSize = ^uint64(0)

// Infinite is the timeout used for waits that must not give up.
const Infinite = ^uint64(0)
