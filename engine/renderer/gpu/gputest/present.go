package gputest

import (
	"fmt"

	"github.com/spaghettifunk/framepace/engine/renderer/gpu"
)

func (d *Device) SurfaceSupport() (gpu.SurfaceSupport, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.Support, nil
}

func (d *Device) CreateSwapchain(info gpu.SwapchainCreateInfo) (gpu.Swapchain, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if info.Extent.IsZero() {
		return 0, fmt.Errorf("swapchain with zero extent")
	}
	if info.MinImageCount == 0 {
		return 0, fmt.Errorf("swapchain with no images")
	}
	if info.OldSwapchain != 0 && d.live[uint64(info.OldSwapchain)] != KindSwapchain {
		d.violate("old swapchain %d is not live", info.OldSwapchain)
	}
	sc := gpu.Swapchain(d.alloc(KindSwapchain))
	st := &swapchainState{info: info}
	for i := uint32(0); i < info.MinImageCount; i++ {
		st.images = append(st.images, gpu.Image(d.alloc(KindPresentImage)))
	}
	d.swapchains[sc] = st
	d.SwapchainInfos = append(d.SwapchainInfos, info)
	return sc, nil
}

func (d *Device) SwapchainImages(sc gpu.Swapchain) ([]gpu.Image, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	st, ok := d.swapchains[sc]
	if !ok {
		return nil, fmt.Errorf("unknown swapchain %d", sc)
	}
	return append([]gpu.Image(nil), st.images...), nil
}

func (d *Device) DestroySwapchain(sc gpu.Swapchain) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if st, ok := d.swapchains[sc]; ok {
		for _, img := range st.images {
			d.release(uint64(img), KindPresentImage)
		}
		delete(d.swapchains, sc)
	}
	d.release(uint64(sc), KindSwapchain)
}

// AcquireNextImage hands out images round-robin unless AcquireOrder holds
// forced indices. A queued AcquireResults entry overrides the result.
func (d *Device) AcquireNextImage(sc gpu.Swapchain, timeout uint64, semaphore gpu.Semaphore) (uint32, gpu.Result) {
	d.mu.Lock()
	defer d.mu.Unlock()
	st, ok := d.swapchains[sc]
	if !ok {
		d.violate("acquire from unknown swapchain %d", sc)
		return 0, gpu.ErrorSurfaceLost
	}
	res := gpu.Success
	if len(d.AcquireResults) > 0 {
		res = d.AcquireResults[0]
		d.AcquireResults = d.AcquireResults[1:]
	}
	if !res.IsSuccess() {
		return 0, res
	}
	idx := st.next
	if len(d.AcquireOrder) > 0 {
		idx = d.AcquireOrder[0]
		d.AcquireOrder = d.AcquireOrder[1:]
	} else {
		st.next = (st.next + 1) % uint32(len(st.images))
	}
	if _, pending := d.semSignal[semaphore]; pending {
		d.violate("semaphore %d signaled twice without a wait", semaphore)
	}
	d.semSignal[semaphore] = imageKey{sc: sc, idx: idx}
	return idx, res
}

func (d *Device) QueueSubmit(s gpu.Submission) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if s.Fence != 0 {
		if d.fences[s.Fence] {
			d.violate("submit with signaled fence %d", s.Fence)
		}
		if _, pending := d.fenceWork[s.Fence]; pending {
			d.violate("submit with fence %d already in use", s.Fence)
		}
	}
	sub := &Submission{Submission: s}
	if key, ok := d.semSignal[s.WaitSemaphore]; ok {
		sub.Swapchain, sub.ImageIndex = key.sc, key.idx
		if prev := d.imageWork[key]; prev != nil && !prev.Done {
			d.violate("image %d resubmitted before its previous work completed", key.idx)
		}
		d.imageWork[key] = sub
		delete(d.semSignal, s.WaitSemaphore)
	} else if s.WaitSemaphore != 0 {
		d.violate("submission waits on semaphore %d that will never be signaled", s.WaitSemaphore)
	}
	d.Submissions = append(d.Submissions, sub)
	switch {
	case s.Fence == 0:
		sub.Done = d.Mode == CompleteOnSubmit
	case d.Mode == CompleteOnSubmit:
		d.fenceWork[s.Fence] = sub
		d.signal(s.Fence)
	default:
		d.fenceWork[s.Fence] = sub
	}
	return nil
}

func (d *Device) QueuePresent(info gpu.PresentInfo) gpu.Result {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.Presents = append(d.Presents, info)
	if len(d.PresentResults) > 0 {
		res := d.PresentResults[0]
		d.PresentResults = d.PresentResults[1:]
		return res
	}
	return gpu.Success
}

func (d *Device) CreateRenderPass(info gpu.RenderPassCreateInfo) (gpu.RenderPass, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return gpu.RenderPass(d.alloc(KindRenderPass)), nil
}

func (d *Device) DestroyRenderPass(rp gpu.RenderPass) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.release(uint64(rp), KindRenderPass)
}

func (d *Device) CreateFramebuffer(rp gpu.RenderPass, attachments []gpu.ImageView, extent gpu.Extent2D) (gpu.Framebuffer, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.live[uint64(rp)] != KindRenderPass {
		return 0, fmt.Errorf("framebuffer for unknown render pass %d", rp)
	}
	for _, v := range attachments {
		if d.live[uint64(v)] != KindImageView {
			return 0, fmt.Errorf("framebuffer attachment %d is not a live view", v)
		}
	}
	return gpu.Framebuffer(d.alloc(KindFramebuffer)), nil
}

func (d *Device) DestroyFramebuffer(fb gpu.Framebuffer) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.release(uint64(fb), KindFramebuffer)
}
