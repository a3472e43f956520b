package swapchain

import (
	"testing"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/spaghettifunk/framepace/engine/core"
	"github.com/spaghettifunk/framepace/engine/renderer/gpu"
	"github.com/spaghettifunk/framepace/engine/renderer/gpu/gputest"
)

func newTestSwapchain(t *testing.T, dev *gputest.Device, win *gputest.Window, opts ...Option) *Swapchain {
	t.Helper()
	s, err := New(dev, win, opts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return s
}

func checkClean(t *testing.T, dev *gputest.Device) {
	t.Helper()
	if len(dev.Violations) != 0 {
		t.Fatalf("device violations:\n%v", dev.Violations)
	}
	if leaks := dev.Leaks(); len(leaks) != 0 {
		t.Fatalf("leaked handles: %v", leaks)
	}
}

// frame runs one acquire/submit cycle with a fresh command buffer.
func frame(t *testing.T, dev *gputest.Device, s *Swapchain) (uint32, error) {
	t.Helper()
	idx, err := s.AcquireNextImage()
	if err != nil {
		return 0, err
	}
	cbs, _ := dev.AllocateCommandBuffers(1)
	defer dev.FreeCommandBuffers(cbs)
	return idx, s.Submit(cbs[0], idx)
}

func TestNew(t *testing.T) {
	dev := gputest.NewDevice()
	s := newTestSwapchain(t, dev, gputest.NewWindow(800, 600))

	if s.ImageFormat() != gpu.FormatB8G8R8A8Srgb {
		t.Fatalf("ImageFormat:\nhave %d\nwant %d", s.ImageFormat(), gpu.FormatB8G8R8A8Srgb)
	}
	if s.PresentMode() != gpu.PresentModeMailbox {
		t.Fatalf("PresentMode:\nhave %s\nwant mailbox", s.PresentMode())
	}
	if s.Extent() != (gpu.Extent2D{Width: 800, Height: 600}) {
		t.Fatalf("Extent:\nhave %+v\nwant 800x600", s.Extent())
	}
	if s.ImageCount() != 3 {
		t.Fatalf("ImageCount:\nhave %d\nwant 3", s.ImageCount())
	}
	if s.DepthFormat() != gpu.FormatD32Sfloat {
		t.Fatalf("DepthFormat:\nhave %d\nwant %d", s.DepthFormat(), gpu.FormatD32Sfloat)
	}
	if have := s.AspectRatio(); have != float32(800)/600 {
		t.Fatalf("AspectRatio:\nhave %v\nwant %v", have, float32(800)/600)
	}

	want := map[gputest.Kind]int{
		gputest.KindImageView:   6,
		gputest.KindImage:       3,
		gputest.KindFramebuffer: 3,
		gputest.KindRenderPass:  1,
		gputest.KindSemaphore:   2 * MaxFramesInFlight,
		gputest.KindFence:       MaxFramesInFlight,
	}
	for k, n := range want {
		if have := dev.LiveCount(k); have != n {
			t.Fatalf("live %s:\nhave %d\nwant %d", k, have, n)
		}
	}
	for i := range s.frames {
		if !dev.IsSignaled(s.frames[i].inFlight) {
			t.Fatalf("frame %d fence not created signaled", i)
		}
	}

	s.Destroy()
	s.Destroy()
	checkClean(t, dev)
}

func TestChooseSurfaceFormat(t *testing.T) {
	srgb := gpu.SurfaceFormat{Format: gpu.FormatB8G8R8A8Srgb, ColorSpace: gpu.ColorSpaceSrgbNonlinear}
	unorm := gpu.SurfaceFormat{Format: gpu.FormatB8G8R8A8Unorm, ColorSpace: gpu.ColorSpaceSrgbNonlinear}
	rgba := gpu.SurfaceFormat{Format: gpu.FormatR8G8B8A8Unorm, ColorSpace: gpu.ColorSpaceSrgbNonlinear}

	if have := chooseSurfaceFormat([]gpu.SurfaceFormat{unorm, srgb}, srgb); have != srgb {
		t.Fatalf("chooseSurfaceFormat:\nhave %+v\nwant %+v", have, srgb)
	}
	if have := chooseSurfaceFormat([]gpu.SurfaceFormat{rgba, unorm}, srgb); have != rgba {
		t.Fatalf("chooseSurfaceFormat fallback:\nhave %+v\nwant %+v", have, rgba)
	}
}

func TestChoosePresentMode(t *testing.T) {
	cases := []struct {
		available []gpu.PresentMode
		preferred gpu.PresentMode
		want      gpu.PresentMode
	}{
		{[]gpu.PresentMode{gpu.PresentModeFifo, gpu.PresentModeMailbox}, gpu.PresentModeMailbox, gpu.PresentModeMailbox},
		{[]gpu.PresentMode{gpu.PresentModeFifo, gpu.PresentModeImmediate}, gpu.PresentModeMailbox, gpu.PresentModeFifo},
		{[]gpu.PresentMode{gpu.PresentModeFifo, gpu.PresentModeImmediate}, gpu.PresentModeImmediate, gpu.PresentModeImmediate},
	}
	for _, c := range cases {
		if have := choosePresentMode(c.available, c.preferred); have != c.want {
			t.Fatalf("choosePresentMode(%v, %s):\nhave %s\nwant %s", c.available, c.preferred, have, c.want)
		}
	}
}

func TestChooseExtent(t *testing.T) {
	caps := gpu.SurfaceCapabilities{
		CurrentExtent:  gpu.Extent2D{Width: gpu.UndefinedExtent, Height: gpu.UndefinedExtent},
		MinImageExtent: gpu.Extent2D{Width: 100, Height: 100},
		MaxImageExtent: gpu.Extent2D{Width: 2000, Height: 1000},
	}
	cases := []struct {
		window, want gpu.Extent2D
	}{
		{gpu.Extent2D{Width: 800, Height: 600}, gpu.Extent2D{Width: 800, Height: 600}},
		{gpu.Extent2D{Width: 50, Height: 5000}, gpu.Extent2D{Width: 100, Height: 1000}},
	}
	for _, c := range cases {
		if have := chooseExtent(caps, c.window); have != c.want {
			t.Fatalf("chooseExtent(%+v):\nhave %+v\nwant %+v", c.window, have, c.want)
		}
	}
	caps.CurrentExtent = gpu.Extent2D{Width: 640, Height: 480}
	if have := chooseExtent(caps, gpu.Extent2D{Width: 800, Height: 600}); have != caps.CurrentExtent {
		t.Fatalf("chooseExtent with defined extent:\nhave %+v\nwant %+v", have, caps.CurrentExtent)
	}
}

func TestChooseImageCount(t *testing.T) {
	cases := []struct {
		min, max, want uint32
	}{
		{2, 3, 3},
		{2, 0, 3},
		{3, 3, 3},
		{1, 8, 2},
	}
	for _, c := range cases {
		caps := gpu.SurfaceCapabilities{MinImageCount: c.min, MaxImageCount: c.max}
		if have := chooseImageCount(caps); have != c.want {
			t.Fatalf("chooseImageCount(min=%d, max=%d):\nhave %d\nwant %d", c.min, c.max, have, c.want)
		}
	}
}

func TestDepthFormatFallback(t *testing.T) {
	dev := gputest.NewDevice()
	dev.DepthFormats = map[gpu.Format]bool{gpu.FormatD24UnormS8Uint: true}
	s := newTestSwapchain(t, dev, gputest.NewWindow(800, 600))
	if s.DepthFormat() != gpu.FormatD24UnormS8Uint {
		t.Fatalf("DepthFormat:\nhave %d\nwant %d", s.DepthFormat(), gpu.FormatD24UnormS8Uint)
	}
	s.Destroy()

	dev.DepthFormats = nil
	if _, err := New(dev, gputest.NewWindow(800, 600)); !errors.Is(err, core.ErrNoSuitableFormat) {
		t.Fatalf("New without depth format:\nhave %v\nwant %v", err, core.ErrNoSuitableFormat)
	}
	checkClean(t, dev)
}

func TestAcquireBlocksUntilFenceSignaled(t *testing.T) {
	dev := gputest.NewDevice()
	dev.Mode = gputest.Manual
	s := newTestSwapchain(t, dev, gputest.NewWindow(800, 600))

	for i := 0; i < MaxFramesInFlight; i++ {
		if _, err := frame(t, dev, s); err != nil {
			t.Fatal(err)
		}
	}
	if s.CurrentFrame() != 0 {
		t.Fatalf("CurrentFrame:\nhave %d\nwant 0", s.CurrentFrame())
	}

	done := make(chan error, 1)
	go func() {
		_, err := s.AcquireNextImage()
		done <- err
	}()

	select {
	case <-done:
		t.Fatal("AcquireNextImage: returned before the slot fence was signaled")
	case <-time.After(50 * time.Millisecond):
	}

	dev.Complete(dev.Submissions[0].Fence)
	select {
	case err := <-done:
		if err != nil {
			t.Fatal(err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("AcquireNextImage: still blocked after the fence was signaled")
	}

	dev.CompleteAll()
	s.Destroy()
}

func TestFrameRotation(t *testing.T) {
	dev := gputest.NewDevice()
	dev.Mode = gputest.CompleteOnWait
	s := newTestSwapchain(t, dev, gputest.NewWindow(800, 600))

	var slots, images []uint32
	for i := 0; i < 4; i++ {
		slots = append(slots, s.CurrentFrame())
		idx, err := frame(t, dev, s)
		if err != nil {
			t.Fatal(err)
		}
		images = append(images, idx)
	}
	wantSlots := []uint32{0, 1, 0, 1}
	wantImages := []uint32{0, 1, 2, 0}
	for i := range wantSlots {
		if slots[i] != wantSlots[i] || images[i] != wantImages[i] {
			t.Fatalf("frame %d:\nhave slot %d image %d\nwant slot %d image %d", i, slots[i], images[i], wantSlots[i], wantImages[i])
		}
	}
	subs := dev.Submissions
	if subs[0].Fence != subs[2].Fence || subs[1].Fence != subs[3].Fence || subs[0].Fence == subs[1].Fence {
		t.Fatal("frame slots do not reuse their own fences")
	}
	if len(dev.Presents) != 4 {
		t.Fatalf("presents:\nhave %d\nwant 4", len(dev.Presents))
	}

	dev.CompleteAll()
	s.Destroy()
	checkClean(t, dev)
}

func TestImageFenceGuardsReuse(t *testing.T) {
	dev := gputest.NewDevice()
	dev.Mode = gputest.CompleteOnWait
	// Slot 0 gets image 1 on its second turn while slot 1 may still be
	// rendering into it.
	dev.AcquireOrder = []uint32{0, 1, 1, 0}
	s := newTestSwapchain(t, dev, gputest.NewWindow(800, 600))

	for i := 0; i < 4; i++ {
		if _, err := frame(t, dev, s); err != nil {
			t.Fatal(err)
		}
	}
	if !dev.Submissions[1].Done {
		t.Fatal("Submit: image 1 reused without waiting for its previous frame")
	}

	dev.CompleteAll()
	s.Destroy()
	checkClean(t, dev)
}

func TestAcquireStale(t *testing.T) {
	dev := gputest.NewDevice()
	s := newTestSwapchain(t, dev, gputest.NewWindow(800, 600))
	defer s.Destroy()

	dev.AcquireResults = []gpu.Result{gpu.ErrorOutOfDate}
	if _, err := s.AcquireNextImage(); !errors.Is(err, core.ErrSwapchainStale) {
		t.Fatalf("AcquireNextImage out of date:\nhave %v\nwant %v", err, core.ErrSwapchainStale)
	}

	dev.AcquireResults = []gpu.Result{gpu.Suboptimal}
	if _, err := frame(t, dev, s); err != nil {
		t.Fatalf("suboptimal acquire should proceed: %v", err)
	}

	dev.AcquireResults = []gpu.Result{gpu.ErrorDeviceLost}
	if _, err := s.AcquireNextImage(); err == nil || errors.Is(err, core.ErrSwapchainStale) {
		t.Fatalf("AcquireNextImage device lost:\nhave %v\nwant fatal error", err)
	}
}

func TestAcquireIndexOutOfRange(t *testing.T) {
	dev := gputest.NewDevice()
	s := newTestSwapchain(t, dev, gputest.NewWindow(800, 600))
	defer s.Destroy()

	dev.AcquireOrder = []uint32{2}
	if idx, err := s.AcquireNextImage(); err != nil || idx != 2 {
		t.Fatalf("AcquireNextImage image 2 of 3:\nhave %d, %v\nwant 2, nil", idx, err)
	}
	s2 := newTestSwapchain(t, dev, gputest.NewWindow(800, 600))
	defer s2.Destroy()
	dev.AcquireOrder = []uint32{7}
	if _, err := s2.AcquireNextImage(); !errors.Is(err, core.ErrSwapchainStale) {
		t.Fatalf("AcquireNextImage out of range:\nhave %v\nwant %v", err, core.ErrSwapchainStale)
	}
}

func TestPresentStale(t *testing.T) {
	for _, res := range []gpu.Result{gpu.ErrorOutOfDate, gpu.Suboptimal} {
		dev := gputest.NewDevice()
		s := newTestSwapchain(t, dev, gputest.NewWindow(800, 600))
		dev.PresentResults = []gpu.Result{res}
		if _, err := frame(t, dev, s); !errors.Is(err, core.ErrSwapchainStale) {
			t.Fatalf("Submit with present %s:\nhave %v\nwant %v", res, err, core.ErrSwapchainStale)
		}
		if s.CurrentFrame() != 1 {
			t.Fatalf("Submit with present %s: frame slot did not advance", res)
		}
		s.Destroy()
	}
}

func TestRecreate(t *testing.T) {
	dev := gputest.NewDevice()
	undefined := gpu.Extent2D{Width: gpu.UndefinedExtent, Height: gpu.UndefinedExtent}
	dev.Support.Capabilities.CurrentExtent = undefined
	win := gputest.NewWindow(800, 600)
	old := newTestSwapchain(t, dev, win)

	oldHandle := old.Handle()
	oldViews := append([]gpu.ImageView(nil), old.views...)
	oldDepthViews := append([]gpu.ImageView(nil), old.depthViews...)
	oldFramebuffers := append([]gpu.Framebuffer(nil), old.framebuffers...)
	oldRenderPass := old.RenderPass()

	dev.PresentResults = []gpu.Result{gpu.ErrorOutOfDate}
	if _, err := frame(t, dev, old); !errors.Is(err, core.ErrSwapchainStale) {
		t.Fatalf("Submit:\nhave %v\nwant %v", err, core.ErrSwapchainStale)
	}

	win.SetSize(1024, 768)
	s, err := Recreate(dev, win, old)
	if err != nil {
		t.Fatal(err)
	}
	if s.Extent() != (gpu.Extent2D{Width: 1024, Height: 768}) {
		t.Fatalf("Extent after Recreate:\nhave %+v\nwant 1024x768", s.Extent())
	}
	if dev.WaitIdleCount != 1 {
		t.Fatalf("Recreate: device idled %d times, want 1", dev.WaitIdleCount)
	}
	if info := dev.SwapchainInfos[1]; info.OldSwapchain != oldHandle {
		t.Fatalf("Recreate: old swapchain hint\nhave %d\nwant %d", info.OldSwapchain, oldHandle)
	}
	if s.Generation() != 1 || s.CurrentFrame() != 0 {
		t.Fatalf("Recreate: generation %d frame %d, want 1 and 0", s.Generation(), s.CurrentFrame())
	}
	if !s.CompareFormats(old) {
		t.Fatal("CompareFormats: formats changed across recreation")
	}

	handles := []uint64{uint64(oldHandle), uint64(oldRenderPass)}
	for i := range oldViews {
		handles = append(handles, uint64(oldViews[i]), uint64(oldDepthViews[i]), uint64(oldFramebuffers[i]))
	}
	for _, h := range handles {
		if n := dev.DestroyCount(h); n != 1 {
			t.Fatalf("handle %d destroyed %d times, want 1", h, n)
		}
	}

	if _, err := frame(t, dev, s); err != nil {
		t.Fatalf("frame on recreated swapchain: %v", err)
	}
	s.Destroy()
	checkClean(t, dev)
}
