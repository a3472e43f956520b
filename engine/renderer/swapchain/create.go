package swapchain

import (
	"github.com/cockroachdb/errors"

	"github.com/spaghettifunk/framepace/engine/core"
	"github.com/spaghettifunk/framepace/engine/math"
	"github.com/spaghettifunk/framepace/engine/renderer/gpu"
)

var depthCandidates = []gpu.Format{
	gpu.FormatD32Sfloat,
	gpu.FormatD32SfloatS8Uint,
	gpu.FormatD24UnormS8Uint,
}

func (s *Swapchain) init(old gpu.Swapchain) error {
	support, err := s.device.SurfaceSupport()
	if err != nil {
		return errors.Wrap(err, "failed to query swapchain support")
	}
	if len(support.Formats) == 0 || len(support.PresentModes) == 0 {
		return errors.Wrap(core.ErrNoSuitableFormat, "surface reports no formats or present modes")
	}
	caps := support.Capabilities

	s.surfaceFormat = chooseSurfaceFormat(support.Formats, s.options.surfaceFormat)
	s.presentMode = choosePresentMode(support.PresentModes, s.options.presentMode)
	s.extent = chooseExtent(caps, s.window.FramebufferSize())

	s.depthFormat, err = detectDepthFormat(s.device)
	if err != nil {
		return err
	}

	handle, err := s.device.CreateSwapchain(gpu.SwapchainCreateInfo{
		MinImageCount: chooseImageCount(caps),
		Format:        s.surfaceFormat,
		Extent:        s.extent,
		PresentMode:   s.presentMode,
		PreTransform:  caps.CurrentTransform,
		OldSwapchain:  old,
	})
	if err != nil {
		err = errors.Wrap(err, "failed to create swapchain")
		core.LogError("%s", err)
		return err
	}
	s.handle = handle

	if s.images, err = s.device.SwapchainImages(handle); err != nil {
		return errors.Wrap(err, "failed to get swapchain images")
	}
	n := len(s.images)
	s.views = make([]gpu.ImageView, n)
	s.depthImages = make([]gpu.Image, n)
	s.depthMemories = make([]gpu.DeviceMemory, n)
	s.depthViews = make([]gpu.ImageView, n)
	s.framebuffers = make([]gpu.Framebuffer, n)
	s.imagesInFlight = make([]gpu.Fence, n)

	for i, img := range s.images {
		if s.views[i], err = s.device.CreateImageView(img, s.surfaceFormat.Format, gpu.ImageAspectColor); err != nil {
			return errors.Wrapf(err, "failed to create view for swapchain image %d", i)
		}
	}

	if err := s.createRenderPass(); err != nil {
		return err
	}
	if err := s.createDepthResources(); err != nil {
		return err
	}
	if err := s.createFramebuffers(); err != nil {
		return err
	}
	if err := s.createSyncObjects(); err != nil {
		return err
	}

	core.LogDebug("swapchain created: %dx%d, %d images, present mode %s, generation %d",
		s.extent.Width, s.extent.Height, n, s.presentMode, s.generation)
	return nil
}

func chooseSurfaceFormat(available []gpu.SurfaceFormat, preferred gpu.SurfaceFormat) gpu.SurfaceFormat {
	for _, f := range available {
		if f == preferred {
			return f
		}
	}
	return available[0]
}

func choosePresentMode(available []gpu.PresentMode, preferred gpu.PresentMode) gpu.PresentMode {
	for _, m := range available {
		if m == preferred {
			return m
		}
	}
	// FIFO is always available.
	return gpu.PresentModeFifo
}

func chooseExtent(caps gpu.SurfaceCapabilities, window gpu.Extent2D) gpu.Extent2D {
	if caps.CurrentExtent.Width != gpu.UndefinedExtent {
		return caps.CurrentExtent
	}
	return gpu.Extent2D{
		Width:  math.Clamp(window.Width, caps.MinImageExtent.Width, caps.MaxImageExtent.Width),
		Height: math.Clamp(window.Height, caps.MinImageExtent.Height, caps.MaxImageExtent.Height),
	}
}

func chooseImageCount(caps gpu.SurfaceCapabilities) uint32 {
	count := caps.MinImageCount + 1
	if caps.MaxImageCount > 0 && count > caps.MaxImageCount {
		count = caps.MaxImageCount
	}
	return count
}

func detectDepthFormat(device gpu.ImageDevice) (gpu.Format, error) {
	for _, f := range depthCandidates {
		if device.FormatSupported(f, gpu.ImageTilingOptimal, gpu.FormatFeatureDepthStencilAttachment) {
			return f, nil
		}
	}
	return gpu.FormatUndefined, errors.Wrap(core.ErrNoSuitableFormat, "no depth format supports optimal tiling")
}

func (s *Swapchain) createRenderPass() error {
	rp, err := s.device.CreateRenderPass(gpu.RenderPassCreateInfo{
		Color: gpu.AttachmentDescription{
			Format:      s.surfaceFormat.Format,
			LoadOp:      gpu.AttachmentLoadOpClear,
			StoreOp:     gpu.AttachmentStoreOpStore,
			FinalLayout: gpu.ImageLayoutPresentSrc,
		},
		Depth: gpu.AttachmentDescription{
			Format:      s.depthFormat,
			LoadOp:      gpu.AttachmentLoadOpClear,
			StoreOp:     gpu.AttachmentStoreOpDontCare,
			FinalLayout: gpu.ImageLayoutDepthStencilAttachment,
		},
	})
	if err != nil {
		return errors.Wrap(err, "failed to create render pass")
	}
	s.renderPass = rp
	return nil
}

func (s *Swapchain) createDepthResources() error {
	for i := range s.images {
		img, mem, err := s.device.CreateImage(gpu.ImageCreateInfo{
			Extent:     s.extent,
			Format:     s.depthFormat,
			Tiling:     gpu.ImageTilingOptimal,
			Usage:      gpu.ImageUsageDepthStencilAttachment,
			Properties: gpu.MemoryPropertyDeviceLocal,
		})
		if err != nil {
			return errors.Wrapf(err, "failed to create depth image %d", i)
		}
		s.depthImages[i], s.depthMemories[i] = img, mem
		if s.depthViews[i], err = s.device.CreateImageView(img, s.depthFormat, gpu.ImageAspectDepth); err != nil {
			return errors.Wrapf(err, "failed to create depth view %d", i)
		}
	}
	return nil
}

func (s *Swapchain) createFramebuffers() error {
	for i := range s.images {
		fb, err := s.device.CreateFramebuffer(s.renderPass, []gpu.ImageView{s.views[i], s.depthViews[i]}, s.extent)
		if err != nil {
			return errors.Wrapf(err, "failed to create framebuffer %d", i)
		}
		s.framebuffers[i] = fb
	}
	return nil
}

func (s *Swapchain) createSyncObjects() error {
	for i := range s.frames {
		f := &s.frames[i]
		var err error
		if f.imageAvailable, err = s.device.CreateSemaphore(); err != nil {
			return errors.Wrapf(err, "failed to create synchronization objects for frame %d", i)
		}
		if f.renderFinished, err = s.device.CreateSemaphore(); err != nil {
			return errors.Wrapf(err, "failed to create synchronization objects for frame %d", i)
		}
		// Created signaled so the first wait on each slot returns at once.
		if f.inFlight, err = s.device.CreateFence(true); err != nil {
			return errors.Wrapf(err, "failed to create synchronization objects for frame %d", i)
		}
	}
	return nil
}
