// Package renderer drives one frame at a time through the swapchain: it
// acquires an image, hands the frame's command buffer to the caller, records
// the swapchain render pass and submits, recreating the swapchain whenever
// the surface goes stale.
package renderer

import (
	"github.com/cockroachdb/errors"

	"github.com/spaghettifunk/framepace/engine/core"
	"github.com/spaghettifunk/framepace/engine/renderer/gpu"
	"github.com/spaghettifunk/framepace/engine/renderer/swapchain"
)

// FrameState tracks where the render loop is within a frame.
type FrameState uint8

const (
	FrameStateIdle FrameState = iota
	FrameStateAcquired
	FrameStateRenderPassActive
	FrameStateEnded
)

func (s FrameState) String() string {
	switch s {
	case FrameStateIdle:
		return "idle"
	case FrameStateAcquired:
		return "acquired"
	case FrameStateRenderPassActive:
		return "render pass active"
	case FrameStateEnded:
		return "ended"
	}
	return "unknown"
}

var defaultClearColor = [4]float32{0.01, 0.01, 0.01, 1.0}

type Renderer struct {
	device    gpu.Device
	window    gpu.Window
	swapchain *swapchain.Swapchain
	options   []swapchain.Option

	commandBuffers [swapchain.MaxFramesInFlight]gpu.CommandBuffer

	state             FrameState
	currentImageIndex uint32
	currentFrameIndex uint32
	clearColor        [4]float32
	recreateRequested bool
}

// New builds the first swapchain for window and allocates one command
// buffer per frame in flight.
func New(device gpu.Device, window gpu.Window, opts ...swapchain.Option) (*Renderer, error) {
	r := &Renderer{
		device:     device,
		window:     window,
		options:    opts,
		clearColor: defaultClearColor,
	}
	if err := r.recreateSwapchain(); err != nil {
		return nil, err
	}
	cbs, err := device.AllocateCommandBuffers(swapchain.MaxFramesInFlight)
	if err != nil {
		r.swapchain.Destroy()
		err = errors.Wrap(err, "failed to allocate command buffers")
		core.LogError("%s", err)
		return nil, err
	}
	copy(r.commandBuffers[:], cbs)
	return r, nil
}

// BeginFrame starts a frame and returns its command buffer in the
// recording state. A nil command buffer with a nil error means the
// swapchain was recreated and this iteration must be skipped.
func (r *Renderer) BeginFrame() (gpu.CommandBuffer, error) {
	core.Assertf(r.state == FrameStateIdle, "renderer: can't call BeginFrame while frame is %s", r.state)

	imageIndex, err := r.swapchain.AcquireNextImage()
	if errors.Is(err, core.ErrSwapchainStale) {
		return nil, r.recreateSwapchain()
	}
	if err != nil {
		return nil, err
	}

	r.currentImageIndex = imageIndex
	r.currentFrameIndex = r.swapchain.CurrentFrame()
	cb := r.commandBuffers[r.currentFrameIndex]
	if err := cb.Reset(); err != nil {
		return nil, errors.Wrap(err, "failed to reset command buffer")
	}
	if err := cb.Begin(); err != nil {
		return nil, errors.Wrap(err, "failed to begin recording command buffer")
	}
	r.state = FrameStateAcquired
	return cb, nil
}

// BeginSwapchainRenderPass starts the swapchain render pass on the frame's
// command buffer with a full-image viewport and scissor.
func (r *Renderer) BeginSwapchainRenderPass(cb gpu.CommandBuffer) {
	core.Assertf(r.state == FrameStateAcquired, "renderer: can't begin render pass while frame is %s", r.state)
	core.Assert(cb == r.CurrentCommandBuffer(), "renderer: can't begin render pass on command buffer from a different frame")

	extent := r.swapchain.Extent()
	area := gpu.Rect2D{Extent: extent}
	c := r.clearColor
	cb.BeginRenderPass(r.swapchain.RenderPass(), r.swapchain.Framebuffer(int(r.currentImageIndex)), area, []gpu.ClearValue{
		gpu.ClearColor(c[0], c[1], c[2], c[3]),
		gpu.ClearDepthStencil(1.0, 0),
	})
	cb.SetViewport(gpu.Viewport{
		Width:    float32(extent.Width),
		Height:   float32(extent.Height),
		MinDepth: 0.0,
		MaxDepth: 1.0,
	})
	cb.SetScissor(area)
	r.state = FrameStateRenderPassActive
}

func (r *Renderer) EndSwapchainRenderPass(cb gpu.CommandBuffer) {
	core.Assertf(r.state == FrameStateRenderPassActive, "renderer: can't end render pass while frame is %s", r.state)
	core.Assert(cb == r.CurrentCommandBuffer(), "renderer: can't end render pass on command buffer from a different frame")
	cb.EndRenderPass()
	r.state = FrameStateEnded
}

// EndFrame finishes recording and submits the frame. The renderer is idle
// afterwards whatever the outcome.
func (r *Renderer) EndFrame() error {
	core.Assertf(r.state == FrameStateAcquired || r.state == FrameStateEnded,
		"renderer: can't call EndFrame while frame is %s", r.state)
	defer func() { r.state = FrameStateIdle }()

	cb := r.CurrentCommandBuffer()
	if err := cb.End(); err != nil {
		return errors.Wrap(err, "failed to record command buffer")
	}

	err := r.swapchain.Submit(cb, r.currentImageIndex)
	stale := errors.Is(err, core.ErrSwapchainStale)
	if err != nil && !stale {
		return err
	}
	if stale || r.window.WasResized() || r.recreateRequested {
		return r.recreateSwapchain()
	}
	return nil
}

// recreateSwapchain waits out a minimized window, then replaces the
// swapchain with one matching the current surface. Any pending resize is
// consumed by the rebuild.
func (r *Renderer) recreateSwapchain() error {
	extent := r.window.FramebufferSize()
	for extent.IsZero() {
		r.window.WaitEvents()
		extent = r.window.FramebufferSize()
	}
	r.window.ResetResized()
	r.recreateRequested = false

	if r.swapchain == nil {
		sc, err := swapchain.New(r.device, r.window, r.options...)
		if err != nil {
			return err
		}
		r.swapchain = sc
		return nil
	}

	old := r.swapchain
	r.swapchain = nil
	sc, err := swapchain.Recreate(r.device, r.window, old, r.options...)
	if err != nil {
		return err
	}
	r.swapchain = sc
	if !sc.CompareFormats(old) {
		err := errors.Wrapf(core.ErrFormatChanged, "swapchain generation %d", sc.Generation())
		core.LogError("%s", err)
		return err
	}
	core.LogDebug("swapchain recreated at %dx%d", sc.Width(), sc.Height())
	return nil
}

// RequestRecreate rebuilds the swapchain at the end of the current (or
// next) frame, picking up new options such as the present mode.
func (r *Renderer) RequestRecreate(opts ...swapchain.Option) {
	if len(opts) > 0 {
		r.options = opts
	}
	r.recreateRequested = true
}

// SetClearColor changes the background of the swapchain render pass.
func (r *Renderer) SetClearColor(c [4]float32) {
	r.clearColor = c
}

func (r *Renderer) IsFrameInProgress() bool {
	return r.state != FrameStateIdle
}

func (r *Renderer) State() FrameState {
	return r.state
}

func (r *Renderer) CurrentCommandBuffer() gpu.CommandBuffer {
	core.Assert(r.state != FrameStateIdle, "renderer: cannot get command buffer when frame not in progress")
	return r.commandBuffers[r.currentFrameIndex]
}

// FrameIndex is the frame slot of the frame in progress.
func (r *Renderer) FrameIndex() uint32 {
	core.Assert(r.state != FrameStateIdle, "renderer: cannot get frame index when frame not in progress")
	return r.currentFrameIndex
}

func (r *Renderer) ImageIndex() uint32 {
	return r.currentImageIndex
}

func (r *Renderer) AspectRatio() float32 {
	return r.swapchain.AspectRatio()
}

func (r *Renderer) Extent() gpu.Extent2D {
	return r.swapchain.Extent()
}

func (r *Renderer) RenderPass() gpu.RenderPass {
	return r.swapchain.RenderPass()
}

func (r *Renderer) Swapchain() *swapchain.Swapchain {
	return r.swapchain
}

// Shutdown waits for the device and releases the swapchain and command
// buffers.
func (r *Renderer) Shutdown() error {
	core.Assert(r.state == FrameStateIdle, "renderer: shutdown while frame in progress")
	err := r.device.WaitIdle()
	r.device.FreeCommandBuffers(r.commandBuffers[:])
	r.commandBuffers = [swapchain.MaxFramesInFlight]gpu.CommandBuffer{}
	if r.swapchain != nil {
		r.swapchain.Destroy()
		r.swapchain = nil
	}
	return err
}
