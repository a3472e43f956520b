package gpu

// BufferAllocator creates buffers with bound memory and maps them for host
// access.
type BufferAllocator interface {
	// CreateBuffer allocates size bytes from a memory type that satisfies
	// props. It fails when no such memory type exists.
	CreateBuffer(size uint64, usage BufferUsageFlags, props MemoryPropertyFlags) (Buffer, DeviceMemory, error)
	DestroyBuffer(buf Buffer, mem DeviceMemory)
	// MapMemory returns a host view of size bytes starting at offset.
	MapMemory(mem DeviceMemory, offset, size uint64) ([]byte, error)
	UnmapMemory(mem DeviceMemory)
	FlushMemory(mem DeviceMemory, offset, size uint64) error
	InvalidateMemory(mem DeviceMemory, offset, size uint64) error
}

type DescriptorAllocator interface {
	CreateDescriptorSetLayout(bindings []LayoutBinding) (DescriptorSetLayout, error)
	DestroyDescriptorSetLayout(layout DescriptorSetLayout)
	CreateDescriptorPool(info DescriptorPoolCreateInfo) (DescriptorPool, error)
	DestroyDescriptorPool(pool DescriptorPool)
	// AllocateDescriptorSet returns ErrorOutOfPoolMemory or
	// ErrorFragmentedPool when the pool cannot satisfy the request.
	AllocateDescriptorSet(pool DescriptorPool, layout DescriptorSetLayout) (DescriptorSet, error)
	FreeDescriptorSets(pool DescriptorPool, sets []DescriptorSet) error
	ResetDescriptorPool(pool DescriptorPool) error
	UpdateDescriptorSets(writes []DescriptorWrite)
}

type SyncDevice interface {
	CreateFence(signaled bool) (Fence, error)
	DestroyFence(f Fence)
	// WaitForFences blocks until every fence is signaled or timeout
	// nanoseconds pass.
	WaitForFences(fences []Fence, timeout uint64) error
	ResetFences(fences []Fence) error
	CreateSemaphore() (Semaphore, error)
	DestroySemaphore(s Semaphore)
}

type ImageDevice interface {
	CreateImage(info ImageCreateInfo) (Image, DeviceMemory, error)
	DestroyImage(img Image, mem DeviceMemory)
	CreateImageView(img Image, format Format, aspect ImageAspectFlags) (ImageView, error)
	DestroyImageView(view ImageView)
	CreateSampler(info SamplerCreateInfo) (Sampler, error)
	DestroySampler(s Sampler)
	// FormatSupported reports whether format offers features under tiling.
	FormatSupported(format Format, tiling ImageTiling, features FormatFeatureFlags) bool
}

type PresentDevice interface {
	SurfaceSupport() (SurfaceSupport, error)
	CreateSwapchain(info SwapchainCreateInfo) (Swapchain, error)
	SwapchainImages(sc Swapchain) ([]Image, error)
	DestroySwapchain(sc Swapchain)
	// AcquireNextImage signals semaphore once the returned image is ready.
	AcquireNextImage(sc Swapchain, timeout uint64, semaphore Semaphore) (uint32, Result)
	QueueSubmit(submission Submission) error
	QueuePresent(info PresentInfo) Result
	CreateRenderPass(info RenderPassCreateInfo) (RenderPass, error)
	DestroyRenderPass(rp RenderPass)
	CreateFramebuffer(rp RenderPass, attachments []ImageView, extent Extent2D) (Framebuffer, error)
	DestroyFramebuffer(fb Framebuffer)
}

// TransferDevice runs one-shot copy and layout commands and waits for them.
type TransferDevice interface {
	CopyBuffer(src, dst Buffer, size uint64) error
	CopyBufferToImage(src Buffer, dst Image, extent Extent2D) error
	TransitionImageLayout(img Image, format Format, from, to ImageLayout) error
}

type CommandDevice interface {
	AllocateCommandBuffers(count int) ([]CommandBuffer, error)
	FreeCommandBuffers(cbs []CommandBuffer)
}

// Device is everything the frame renderer needs from a GPU.
type Device interface {
	BufferAllocator
	DescriptorAllocator
	SyncDevice
	ImageDevice
	PresentDevice
	TransferDevice
	CommandDevice

	Limits() Limits
	WaitIdle() error
}

// CommandBuffer records work for the graphics queue.
type CommandBuffer interface {
	Begin() error
	End() error
	Reset() error

	BeginRenderPass(rp RenderPass, fb Framebuffer, area Rect2D, clears []ClearValue)
	EndRenderPass()
	SetViewport(vp Viewport)
	SetScissor(r Rect2D)

	BindPipeline(p Pipeline)
	BindDescriptorSets(layout PipelineLayout, firstSet uint32, sets []DescriptorSet)
	BindVertexBuffers(buffers []Buffer, offsets []uint64)
	BindIndexBuffer(buf Buffer, offset uint64, indexType IndexType)
	DrawIndexed(indexCount, instanceCount, firstIndex uint32, vertexOffset int32, firstInstance uint32)
}

// Window is the surface collaborator.
type Window interface {
	// FramebufferSize returns the drawable size in pixels.
	FramebufferSize() Extent2D
	// WasResized reports whether the framebuffer size changed since the
	// last ResetResized.
	WasResized() bool
	ResetResized()
	// WaitEvents blocks until the platform delivers events.
	WaitEvents()
}
