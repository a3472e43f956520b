// Package gputest provides an in-memory gpu.Device, command buffer and
// window for tests. Fences really block, submissions are tracked per
// presentable image and every handle is checked for leaks and double frees.
package gputest

import (
	"fmt"
	"sync"

	"github.com/spaghettifunk/framepace/engine/renderer/gpu"
)

// CompletionMode decides when submitted work is considered done.
type CompletionMode int

const (
	// CompleteOnSubmit signals a submission's fence as soon as it is queued.
	CompleteOnSubmit CompletionMode = iota
	// CompleteOnWait finishes pending work only when the host waits on its
	// fence, the laziest GPU still within the rules.
	CompleteOnWait
	// Manual finishes work only through Complete or CompleteAll.
	Manual
)

// Kind names a handle type for leak accounting.
type Kind string

const (
	KindBuffer        Kind = "buffer"
	KindMemory        Kind = "memory"
	KindFence         Kind = "fence"
	KindSemaphore     Kind = "semaphore"
	KindSwapchain     Kind = "swapchain"
	KindImage         Kind = "image"
	KindImageView     Kind = "image_view"
	KindSampler       Kind = "sampler"
	KindRenderPass    Kind = "render_pass"
	KindFramebuffer   Kind = "framebuffer"
	KindSetLayout     Kind = "descriptor_set_layout"
	KindPool          Kind = "descriptor_pool"
	KindCommandBuffer Kind = "command_buffer"
	KindSetInstance   Kind = "descriptor_set"
	KindPresentImage  Kind = "swapchain_image"
)

// Submission is a queue submission as seen by the fake device.
type Submission struct {
	gpu.Submission
	// Swapchain and ImageIndex identify the image whose acquire semaphore
	// the submission waited on.
	Swapchain  gpu.Swapchain
	ImageIndex uint32
	Done       bool
}

type MemoryRange struct {
	Memory gpu.DeviceMemory
	Offset uint64
	Size   uint64
}

type imageKey struct {
	sc  gpu.Swapchain
	idx uint32
}

type swapchainState struct {
	info   gpu.SwapchainCreateInfo
	images []gpu.Image
	next   uint32
}

type poolState struct {
	info gpu.DescriptorPoolCreateInfo
	sets map[gpu.DescriptorSet]gpu.DescriptorSetLayout
	used map[gpu.DescriptorType]uint32
}

// Device is a fake gpu.Device. Exported fields configure behavior and
// record calls; read them only while no other goroutine uses the device.
type Device struct {
	mu   sync.Mutex
	cond *sync.Cond

	Mode           CompletionMode
	Support        gpu.SurfaceSupport
	DeviceLimits   gpu.Limits
	MemoryProps    gpu.MemoryPropertyFlags
	DepthFormats   map[gpu.Format]bool
	AcquireResults []gpu.Result
	AcquireOrder   []uint32
	PresentResults []gpu.Result

	Submissions    []*Submission
	Presents       []gpu.PresentInfo
	SwapchainInfos []gpu.SwapchainCreateInfo
	Writes         []gpu.DescriptorWrite
	Flushes        []MemoryRange
	Invalidates    []MemoryRange
	Copies         []string
	Violations     []string
	WaitIdleCount  int

	next      uint64
	live      map[uint64]Kind
	destroyed map[uint64]int
	created   map[Kind]int

	fences     map[gpu.Fence]bool
	fenceWork  map[gpu.Fence]*Submission
	semSignal  map[gpu.Semaphore]imageKey
	imageWork  map[imageKey]*Submission
	memories   map[gpu.DeviceMemory][]byte
	mapped     map[gpu.DeviceMemory]bool
	layouts    map[gpu.DescriptorSetLayout][]gpu.LayoutBinding
	pools      map[gpu.DescriptorPool]*poolState
	swapchains map[gpu.Swapchain]*swapchainState
	setPool    map[gpu.DescriptorSet]gpu.DescriptorPool
}

// NewDevice returns a device with three presentable images at 800x600,
// mailbox and FIFO present modes and a 256 byte uniform alignment.
func NewDevice() *Device {
	d := &Device{
		Support: gpu.SurfaceSupport{
			Capabilities: gpu.SurfaceCapabilities{
				MinImageCount:    2,
				MaxImageCount:    3,
				CurrentExtent:    gpu.Extent2D{Width: 800, Height: 600},
				MinImageExtent:   gpu.Extent2D{Width: 1, Height: 1},
				MaxImageExtent:   gpu.Extent2D{Width: 4096, Height: 4096},
				CurrentTransform: gpu.SurfaceTransformIdentity,
			},
			Formats: []gpu.SurfaceFormat{
				{Format: gpu.FormatB8G8R8A8Unorm, ColorSpace: gpu.ColorSpaceSrgbNonlinear},
				{Format: gpu.FormatB8G8R8A8Srgb, ColorSpace: gpu.ColorSpaceSrgbNonlinear},
			},
			PresentModes: []gpu.PresentMode{gpu.PresentModeFifo, gpu.PresentModeMailbox},
		},
		DeviceLimits: gpu.Limits{
			MinUniformBufferOffsetAlignment: 256,
			NonCoherentAtomSize:             64,
			MaxSamplerAnisotropy:            16,
		},
		MemoryProps: gpu.MemoryPropertyDeviceLocal | gpu.MemoryPropertyHostVisible | gpu.MemoryPropertyHostCoherent,
		DepthFormats: map[gpu.Format]bool{
			gpu.FormatD32Sfloat:       true,
			gpu.FormatD32SfloatS8Uint: true,
			gpu.FormatD24UnormS8Uint:  true,
		},
		live:       make(map[uint64]Kind),
		destroyed:  make(map[uint64]int),
		created:    make(map[Kind]int),
		fences:     make(map[gpu.Fence]bool),
		fenceWork:  make(map[gpu.Fence]*Submission),
		semSignal:  make(map[gpu.Semaphore]imageKey),
		imageWork:  make(map[imageKey]*Submission),
		memories:   make(map[gpu.DeviceMemory][]byte),
		mapped:     make(map[gpu.DeviceMemory]bool),
		layouts:    make(map[gpu.DescriptorSetLayout][]gpu.LayoutBinding),
		pools:      make(map[gpu.DescriptorPool]*poolState),
		swapchains: make(map[gpu.Swapchain]*swapchainState),
		setPool:    make(map[gpu.DescriptorSet]gpu.DescriptorPool),
	}
	d.cond = sync.NewCond(&d.mu)
	return d
}

var _ gpu.Device = (*Device)(nil)

func (d *Device) alloc(k Kind) uint64 {
	d.next++
	d.live[d.next] = k
	d.created[k]++
	return d.next
}

func (d *Device) release(h uint64, k Kind) {
	if h == 0 {
		return
	}
	if d.live[h] != k {
		d.violate("destroy of %s %d which is not live", k, h)
		return
	}
	delete(d.live, h)
	d.destroyed[h]++
}

func (d *Device) violate(format string, args ...interface{}) {
	d.Violations = append(d.Violations, fmt.Sprintf(format, args...))
}

// IsLive reports whether handle h has been created and not destroyed.
func (d *Device) IsLive(h uint64) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.live[h]
	return ok
}

// DestroyCount returns how many times h was destroyed.
func (d *Device) DestroyCount(h uint64) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.destroyed[h]
}

// LiveCount returns the number of live handles of kind k.
func (d *Device) LiveCount(k Kind) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := 0
	for _, kind := range d.live {
		if kind == k {
			n++
		}
	}
	return n
}

// CreatedCount returns the number of handles of kind k ever created.
func (d *Device) CreatedCount(k Kind) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.created[k]
}

// Leaks lists every live handle.
func (d *Device) Leaks() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []string
	for h, k := range d.live {
		out = append(out, fmt.Sprintf("%s %d", k, h))
	}
	return out
}

func (d *Device) Limits() gpu.Limits {
	return d.DeviceLimits
}

// WaitIdle finishes all pending work.
func (d *Device) WaitIdle() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.WaitIdleCount++
	for f := range d.fenceWork {
		d.signal(f)
	}
	return nil
}

// Memory returns the backing bytes of mem.
func (d *Device) Memory(mem gpu.DeviceMemory) []byte {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.memories[mem]
}

// --- buffers

func (d *Device) CreateBuffer(size uint64, usage gpu.BufferUsageFlags, props gpu.MemoryPropertyFlags) (gpu.Buffer, gpu.DeviceMemory, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if props&d.MemoryProps != props {
		return 0, 0, fmt.Errorf("failed to find suitable memory type for properties %#x", props)
	}
	buf := gpu.Buffer(d.alloc(KindBuffer))
	mem := gpu.DeviceMemory(d.alloc(KindMemory))
	d.memories[mem] = make([]byte, size)
	return buf, mem, nil
}

func (d *Device) DestroyBuffer(buf gpu.Buffer, mem gpu.DeviceMemory) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.mapped[mem] {
		d.violate("memory %d destroyed while mapped", mem)
	}
	d.release(uint64(buf), KindBuffer)
	d.release(uint64(mem), KindMemory)
}

func (d *Device) MapMemory(mem gpu.DeviceMemory, offset, size uint64) ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	data, ok := d.memories[mem]
	if !ok || d.live[uint64(mem)] != KindMemory {
		return nil, fmt.Errorf("map of unknown memory %d", mem)
	}
	if d.mapped[mem] {
		d.violate("memory %d mapped twice", mem)
	}
	d.mapped[mem] = true
	if size == gpu.WholeSize {
		return data[offset:], nil
	}
	return data[offset : offset+size], nil
}

func (d *Device) UnmapMemory(mem gpu.DeviceMemory) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.mapped[mem] {
		d.violate("unmap of memory %d which is not mapped", mem)
	}
	delete(d.mapped, mem)
}

func (d *Device) FlushMemory(mem gpu.DeviceMemory, offset, size uint64) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.Flushes = append(d.Flushes, MemoryRange{Memory: mem, Offset: offset, Size: size})
	return nil
}

func (d *Device) InvalidateMemory(mem gpu.DeviceMemory, offset, size uint64) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.Invalidates = append(d.Invalidates, MemoryRange{Memory: mem, Offset: offset, Size: size})
	return nil
}

// --- sync

func (d *Device) CreateFence(signaled bool) (gpu.Fence, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	f := gpu.Fence(d.alloc(KindFence))
	d.fences[f] = signaled
	return f, nil
}

func (d *Device) DestroyFence(f gpu.Fence) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, pending := d.fenceWork[f]; pending {
		d.violate("fence %d destroyed with work pending", f)
	}
	delete(d.fences, f)
	d.release(uint64(f), KindFence)
}

// signal must be called with d.mu held.
func (d *Device) signal(f gpu.Fence) {
	d.fences[f] = true
	if sub, ok := d.fenceWork[f]; ok {
		sub.Done = true
		delete(d.fenceWork, f)
	}
	d.cond.Broadcast()
}

// Complete finishes the work guarded by f, waking any waiter.
func (d *Device) Complete(f gpu.Fence) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.signal(f)
}

// CompleteAll finishes every pending submission.
func (d *Device) CompleteAll() {
	d.mu.Lock()
	defer d.mu.Unlock()
	for f := range d.fenceWork {
		d.signal(f)
	}
}

// IsSignaled reports the state of f.
func (d *Device) IsSignaled(f gpu.Fence) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.fences[f]
}

// WaitForFences blocks until all fences are signaled. A zero timeout polls;
// any other timeout waits without limit.
func (d *Device) WaitForFences(fences []gpu.Fence, timeout uint64) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, f := range fences {
		if _, ok := d.fences[f]; !ok {
			d.violate("wait on unknown fence %d", f)
			return gpu.ErrorDeviceLost
		}
		if d.Mode == CompleteOnWait && !d.fences[f] {
			if _, pending := d.fenceWork[f]; pending {
				d.signal(f)
			}
		}
	}
	for {
		all := true
		for _, f := range fences {
			if !d.fences[f] {
				all = false
				break
			}
		}
		if all {
			return nil
		}
		if timeout == 0 {
			return gpu.Timeout
		}
		d.cond.Wait()
	}
}

func (d *Device) ResetFences(fences []gpu.Fence) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, f := range fences {
		if _, pending := d.fenceWork[f]; pending {
			d.violate("fence %d reset with work pending", f)
		}
		d.fences[f] = false
	}
	return nil
}

func (d *Device) CreateSemaphore() (gpu.Semaphore, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return gpu.Semaphore(d.alloc(KindSemaphore)), nil
}

func (d *Device) DestroySemaphore(s gpu.Semaphore) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.semSignal, s)
	d.release(uint64(s), KindSemaphore)
}

// --- images

func (d *Device) CreateImage(info gpu.ImageCreateInfo) (gpu.Image, gpu.DeviceMemory, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if info.Extent.IsZero() {
		return 0, 0, fmt.Errorf("image with zero extent")
	}
	img := gpu.Image(d.alloc(KindImage))
	mem := gpu.DeviceMemory(d.alloc(KindMemory))
	return img, mem, nil
}

func (d *Device) DestroyImage(img gpu.Image, mem gpu.DeviceMemory) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.release(uint64(img), KindImage)
	d.release(uint64(mem), KindMemory)
}

func (d *Device) CreateImageView(img gpu.Image, format gpu.Format, aspect gpu.ImageAspectFlags) (gpu.ImageView, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if kind := d.live[uint64(img)]; kind != KindImage && kind != KindPresentImage {
		return 0, fmt.Errorf("view of unknown image %d", img)
	}
	return gpu.ImageView(d.alloc(KindImageView)), nil
}

func (d *Device) DestroyImageView(view gpu.ImageView) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.release(uint64(view), KindImageView)
}

func (d *Device) CreateSampler(info gpu.SamplerCreateInfo) (gpu.Sampler, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return gpu.Sampler(d.alloc(KindSampler)), nil
}

func (d *Device) DestroySampler(s gpu.Sampler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.release(uint64(s), KindSampler)
}

func (d *Device) FormatSupported(format gpu.Format, tiling gpu.ImageTiling, features gpu.FormatFeatureFlags) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if features&gpu.FormatFeatureDepthStencilAttachment != 0 {
		return tiling == gpu.ImageTilingOptimal && d.DepthFormats[format]
	}
	return true
}

// --- transfer

func (d *Device) CopyBuffer(src, dst gpu.Buffer, size uint64) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.Copies = append(d.Copies, fmt.Sprintf("buffer %d -> buffer %d (%d bytes)", src, dst, size))
	return nil
}

func (d *Device) CopyBufferToImage(src gpu.Buffer, dst gpu.Image, extent gpu.Extent2D) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.Copies = append(d.Copies, fmt.Sprintf("buffer %d -> image %d (%dx%d)", src, dst, extent.Width, extent.Height))
	return nil
}

func (d *Device) TransitionImageLayout(img gpu.Image, format gpu.Format, from, to gpu.ImageLayout) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	switch {
	case from == gpu.ImageLayoutUndefined && to == gpu.ImageLayoutTransferDst:
	case from == gpu.ImageLayoutTransferDst && to == gpu.ImageLayoutShaderReadOnly:
	default:
		return fmt.Errorf("unsupported layout transition %d -> %d", from, to)
	}
	d.Copies = append(d.Copies, fmt.Sprintf("image %d layout %d -> %d", img, from, to))
	return nil
}

// --- commands

func (d *Device) AllocateCommandBuffers(count int) ([]gpu.CommandBuffer, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	cbs := make([]gpu.CommandBuffer, count)
	for i := range cbs {
		cbs[i] = &CommandBuffer{ID: d.alloc(KindCommandBuffer)}
	}
	return cbs, nil
}

func (d *Device) FreeCommandBuffers(cbs []gpu.CommandBuffer) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, cb := range cbs {
		d.release(cb.(*CommandBuffer).ID, KindCommandBuffer)
	}
}
