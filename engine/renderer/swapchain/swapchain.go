// Package swapchain owns the presentable images of a window surface and
// everything tied to their size: views, depth attachments, framebuffers and
// the render pass. It also paces frames with per-slot semaphores and fences.
package swapchain

import (
	"github.com/cockroachdb/errors"

	"github.com/spaghettifunk/framepace/engine/core"
	"github.com/spaghettifunk/framepace/engine/renderer/gpu"
)

// MaxFramesInFlight bounds how many frames the CPU may record ahead of the GPU.
const MaxFramesInFlight = 2

// Device is the part of gpu.Device the swapchain uses.
type Device interface {
	gpu.SyncDevice
	gpu.ImageDevice
	gpu.PresentDevice
	WaitIdle() error
}

type frameSync struct {
	imageAvailable gpu.Semaphore
	renderFinished gpu.Semaphore
	inFlight       gpu.Fence
}

// Swapchain is one generation of presentable images. A resize or an out of
// date surface replaces it through Recreate.
type Swapchain struct {
	device  Device
	window  gpu.Window
	options options

	handle        gpu.Swapchain
	generation    uint32
	surfaceFormat gpu.SurfaceFormat
	presentMode   gpu.PresentMode
	extent        gpu.Extent2D
	depthFormat   gpu.Format
	renderPass    gpu.RenderPass

	// per presentable image
	images         []gpu.Image
	views          []gpu.ImageView
	depthImages    []gpu.Image
	depthMemories  []gpu.DeviceMemory
	depthViews     []gpu.ImageView
	framebuffers   []gpu.Framebuffer
	imagesInFlight []gpu.Fence

	// per frame slot
	frames       [MaxFramesInFlight]frameSync
	currentFrame uint32

	destroyed bool
}

// New creates the first swapchain for window.
func New(device Device, window gpu.Window, opts ...Option) (*Swapchain, error) {
	s := &Swapchain{
		device:  device,
		window:  window,
		options: newOptions(opts),
	}
	if err := s.init(0); err != nil {
		s.Destroy()
		return nil, err
	}
	return s, nil
}

// Recreate builds a new generation sized to the current surface. It waits
// for the device to go idle, hands previous to the platform as the old
// swapchain and destroys previous once the new one exists, even on failure.
// previous must not be used afterwards.
func Recreate(device Device, window gpu.Window, previous *Swapchain, opts ...Option) (*Swapchain, error) {
	core.Assert(previous != nil && !previous.destroyed, "swapchain: recreate needs a live previous generation")
	defer previous.Destroy()

	if err := device.WaitIdle(); err != nil {
		return nil, errors.Wrap(err, "failed to wait for device idle before swapchain recreation")
	}
	s := &Swapchain{
		device:     device,
		window:     window,
		options:    newOptions(opts),
		generation: previous.generation + 1,
	}
	if err := s.init(previous.handle); err != nil {
		s.Destroy()
		return nil, err
	}
	return s, nil
}

// Destroy releases every resource of this generation. Calling it again is
// a no-op.
func (s *Swapchain) Destroy() {
	if s.destroyed {
		return
	}
	s.destroyed = true
	d := s.device

	for i := range s.frames {
		f := &s.frames[i]
		if f.imageAvailable != 0 {
			d.DestroySemaphore(f.imageAvailable)
		}
		if f.renderFinished != 0 {
			d.DestroySemaphore(f.renderFinished)
		}
		if f.inFlight != 0 {
			d.DestroyFence(f.inFlight)
		}
		*f = frameSync{}
	}
	for _, fb := range s.framebuffers {
		if fb != 0 {
			d.DestroyFramebuffer(fb)
		}
	}
	if s.renderPass != 0 {
		d.DestroyRenderPass(s.renderPass)
	}
	for i, v := range s.depthViews {
		if v != 0 {
			d.DestroyImageView(v)
		}
		if s.depthImages[i] != 0 {
			d.DestroyImage(s.depthImages[i], s.depthMemories[i])
		}
	}
	// Only destroy the views, not the images, since those are owned by the
	// swapchain and are thus destroyed when it is.
	for _, v := range s.views {
		if v != 0 {
			d.DestroyImageView(v)
		}
	}
	if s.handle != 0 {
		d.DestroySwapchain(s.handle)
	}

	s.framebuffers, s.views, s.images = nil, nil, nil
	s.depthImages, s.depthMemories, s.depthViews = nil, nil, nil
	s.imagesInFlight = nil
	s.renderPass, s.handle = 0, 0
}

// CompareFormats reports whether other renders to the same color and depth
// formats, so pipelines built against one render pass stay valid.
func (s *Swapchain) CompareFormats(other *Swapchain) bool {
	return s.surfaceFormat.Format == other.surfaceFormat.Format &&
		s.depthFormat == other.depthFormat
}

func (s *Swapchain) Handle() gpu.Swapchain             { return s.handle }
func (s *Swapchain) Extent() gpu.Extent2D              { return s.extent }
func (s *Swapchain) Width() uint32                     { return s.extent.Width }
func (s *Swapchain) Height() uint32                    { return s.extent.Height }
func (s *Swapchain) RenderPass() gpu.RenderPass        { return s.renderPass }
func (s *Swapchain) ImageCount() int                   { return len(s.images) }
func (s *Swapchain) ImageFormat() gpu.Format           { return s.surfaceFormat.Format }
func (s *Swapchain) SurfaceFormat() gpu.SurfaceFormat  { return s.surfaceFormat }
func (s *Swapchain) DepthFormat() gpu.Format           { return s.depthFormat }
func (s *Swapchain) PresentMode() gpu.PresentMode      { return s.presentMode }
func (s *Swapchain) CurrentFrame() uint32              { return s.currentFrame }
func (s *Swapchain) Generation() uint32                { return s.generation }
func (s *Swapchain) Framebuffer(i int) gpu.Framebuffer { return s.framebuffers[i] }
func (s *Swapchain) ImageView(i int) gpu.ImageView     { return s.views[i] }

// AspectRatio is width over height.
func (s *Swapchain) AspectRatio() float32 {
	return float32(s.extent.Width) / float32(s.extent.Height)
}
