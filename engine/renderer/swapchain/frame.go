package swapchain

import (
	"github.com/cockroachdb/errors"

	"github.com/spaghettifunk/framepace/engine/core"
	"github.com/spaghettifunk/framepace/engine/renderer/gpu"
)

func (s *Swapchain) waitFence(f gpu.Fence) error {
	err := s.device.WaitForFences([]gpu.Fence{f}, gpu.Infinite)
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, gpu.Timeout):
		core.LogWarn("fence wait timed out")
	case errors.Is(err, gpu.ErrorDeviceLost):
		core.LogError("fence wait: device lost")
	default:
		core.LogError("fence wait: %s", err)
	}
	return errors.Wrap(err, "failed waiting on fence")
}

// AcquireNextImage waits until the current frame slot is free, then asks the
// surface for the next image. It returns core.ErrSwapchainStale when the
// swapchain must be recreated first.
func (s *Swapchain) AcquireNextImage() (uint32, error) {
	core.Assert(!s.destroyed, "swapchain: acquire on destroyed swapchain")
	frame := &s.frames[s.currentFrame]

	if err := s.waitFence(frame.inFlight); err != nil {
		return 0, err
	}

	index, res := s.device.AcquireNextImage(s.handle, gpu.Infinite, frame.imageAvailable)
	switch res {
	case gpu.Success, gpu.Suboptimal:
		// Suboptimal still yields a usable image; presenting reports it.
	case gpu.ErrorOutOfDate:
		return 0, core.ErrSwapchainStale
	default:
		return 0, errors.Wrap(res, "failed to acquire swapchain image")
	}
	if index >= uint32(len(s.images)) {
		return 0, errors.Wrapf(core.ErrSwapchainStale, "image index %d out of range (count=%d)", index, len(s.images))
	}
	return index, nil
}

// Submit queues cb for the image at imageIndex and presents it. The frame
// slot advances whatever present reports. core.ErrSwapchainStale means the
// frame was shown (or dropped) and the swapchain must be recreated.
func (s *Swapchain) Submit(cb gpu.CommandBuffer, imageIndex uint32) error {
	core.Assert(!s.destroyed, "swapchain: submit on destroyed swapchain")
	core.Assertf(imageIndex < uint32(len(s.images)), "swapchain: image index %d out of range", imageIndex)
	frame := &s.frames[s.currentFrame]

	// Another frame slot may still be rendering into this image.
	if prev := s.imagesInFlight[imageIndex]; prev != 0 && prev != frame.inFlight {
		if err := s.waitFence(prev); err != nil {
			return err
		}
	}
	s.imagesInFlight[imageIndex] = frame.inFlight

	if err := s.device.ResetFences([]gpu.Fence{frame.inFlight}); err != nil {
		return errors.Wrap(err, "failed to reset in-flight fence")
	}
	if err := s.device.QueueSubmit(gpu.Submission{
		CommandBuffer:   cb,
		WaitSemaphore:   frame.imageAvailable,
		WaitStage:       gpu.PipelineStageColorAttachmentOutput,
		SignalSemaphore: frame.renderFinished,
		Fence:           frame.inFlight,
	}); err != nil {
		err = errors.Wrap(err, "failed to submit draw command buffer")
		core.LogError("%s", err)
		return err
	}

	res := s.device.QueuePresent(gpu.PresentInfo{
		WaitSemaphore: frame.renderFinished,
		Swapchain:     s.handle,
		ImageIndex:    imageIndex,
	})

	// Increment (and loop) the index.
	s.currentFrame = (s.currentFrame + 1) % MaxFramesInFlight

	switch res {
	case gpu.Success:
		return nil
	case gpu.ErrorOutOfDate, gpu.Suboptimal:
		return core.ErrSwapchainStale
	default:
		return errors.Wrap(res, "failed to present swapchain image")
	}
}
