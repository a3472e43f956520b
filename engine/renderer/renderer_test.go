package renderer

import (
	"strings"
	"testing"

	"github.com/spaghettifunk/framepace/engine/renderer/gpu"
	"github.com/spaghettifunk/framepace/engine/renderer/gpu/gputest"
	"github.com/spaghettifunk/framepace/engine/renderer/swapchain"
)

func newTestRenderer(t *testing.T, dev *gputest.Device, win *gputest.Window, opts ...swapchain.Option) *Renderer {
	t.Helper()
	r, err := New(dev, win, opts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return r
}

func drawFrame(t *testing.T, r *Renderer) bool {
	t.Helper()
	cb, err := r.BeginFrame()
	if err != nil {
		t.Fatalf("BeginFrame: %v", err)
	}
	if cb == nil {
		return false
	}
	r.BeginSwapchainRenderPass(cb)
	r.EndSwapchainRenderPass(cb)
	if err := r.EndFrame(); err != nil {
		t.Fatalf("EndFrame: %v", err)
	}
	return true
}

func shutdown(t *testing.T, r *Renderer, dev *gputest.Device) {
	t.Helper()
	if err := r.Shutdown(); err != nil {
		t.Fatal(err)
	}
	if len(dev.Violations) != 0 {
		t.Fatalf("device violations:\n%v", dev.Violations)
	}
	if leaks := dev.Leaks(); len(leaks) != 0 {
		t.Fatalf("leaked handles: %v", leaks)
	}
}

func undefinedExtent(dev *gputest.Device) {
	dev.Support.Capabilities.CurrentExtent = gpu.Extent2D{Width: gpu.UndefinedExtent, Height: gpu.UndefinedExtent}
}

func TestFrameLifecycle(t *testing.T) {
	dev := gputest.NewDevice()
	r := newTestRenderer(t, dev, gputest.NewWindow(800, 600))

	cb, err := r.BeginFrame()
	if err != nil || cb == nil {
		t.Fatalf("BeginFrame:\nhave %v, %v\nwant command buffer", cb, err)
	}
	if r.State() != FrameStateAcquired || !r.IsFrameInProgress() {
		t.Fatalf("state after BeginFrame:\nhave %s\nwant acquired", r.State())
	}
	if !cb.(*gputest.CommandBuffer).IsRecording() {
		t.Fatal("BeginFrame: command buffer not recording")
	}
	r.BeginSwapchainRenderPass(cb)
	r.EndSwapchainRenderPass(cb)
	if r.State() != FrameStateEnded {
		t.Fatalf("state after EndSwapchainRenderPass:\nhave %s\nwant ended", r.State())
	}

	calls := strings.Join(cb.(*gputest.CommandBuffer).Calls(), "\n")
	for _, want := range []string{"800x600 clears=2", "viewport 800x600", "scissor 800x600", "end_render_pass"} {
		if !strings.Contains(calls, want) {
			t.Fatalf("recorded commands missing %q:\n%s", want, calls)
		}
	}

	if err := r.EndFrame(); err != nil {
		t.Fatal(err)
	}
	if r.State() != FrameStateIdle {
		t.Fatalf("state after EndFrame:\nhave %s\nwant idle", r.State())
	}
	if len(dev.Presents) != 1 {
		t.Fatalf("presents:\nhave %d\nwant 1", len(dev.Presents))
	}
	shutdown(t, r, dev)
}

func TestFrameIndexRotation(t *testing.T) {
	dev := gputest.NewDevice()
	dev.Mode = gputest.CompleteOnWait
	r := newTestRenderer(t, dev, gputest.NewWindow(800, 600))

	var cbs []gpu.CommandBuffer
	for i := 0; i < 4; i++ {
		cb, err := r.BeginFrame()
		if err != nil || cb == nil {
			t.Fatalf("BeginFrame %d: %v", i, err)
		}
		if have := r.FrameIndex(); have != uint32(i%2) {
			t.Fatalf("FrameIndex at frame %d:\nhave %d\nwant %d", i, have, i%2)
		}
		cbs = append(cbs, cb)
		r.BeginSwapchainRenderPass(cb)
		r.EndSwapchainRenderPass(cb)
		if err := r.EndFrame(); err != nil {
			t.Fatal(err)
		}
	}
	if cbs[0] != cbs[2] || cbs[1] != cbs[3] || cbs[0] == cbs[1] {
		t.Fatal("command buffers are not owned per frame slot")
	}
	shutdown(t, r, dev)
}

func TestBeginFrameStale(t *testing.T) {
	dev := gputest.NewDevice()
	r := newTestRenderer(t, dev, gputest.NewWindow(800, 600))

	dev.AcquireResults = []gpu.Result{gpu.ErrorOutOfDate}
	cb, err := r.BeginFrame()
	if cb != nil || err != nil {
		t.Fatalf("BeginFrame on stale swapchain:\nhave %v, %v\nwant nil, nil", cb, err)
	}
	if r.State() != FrameStateIdle {
		t.Fatalf("state after skipped frame:\nhave %s\nwant idle", r.State())
	}
	if n := len(dev.SwapchainInfos); n != 2 {
		t.Fatalf("swapchains created:\nhave %d\nwant 2", n)
	}
	if !drawFrame(t, r) {
		t.Fatal("frame after recreation was skipped")
	}
	shutdown(t, r, dev)
}

func TestStaleAcquireConsumesResize(t *testing.T) {
	dev := gputest.NewDevice()
	undefinedExtent(dev)
	win := gputest.NewWindow(800, 600)
	r := newTestRenderer(t, dev, win)

	win.SetSize(1024, 768)
	dev.AcquireResults = []gpu.Result{gpu.ErrorOutOfDate}
	if drawFrame(t, r) {
		t.Fatal("frame on stale swapchain was not skipped")
	}
	if win.WasResized() {
		t.Fatal("BeginFrame: resize flag not cleared by recreation")
	}
	idles := dev.WaitIdleCount
	if !drawFrame(t, r) {
		t.Fatal("frame after recreation was skipped")
	}
	if n := len(dev.SwapchainInfos); n != 2 {
		t.Fatalf("swapchains created:\nhave %d\nwant 2", n)
	}
	if have := dev.WaitIdleCount - idles; have != 0 {
		t.Fatalf("device idles after recreation:\nhave %d\nwant 0", have)
	}
	if have := r.Extent(); have != (gpu.Extent2D{Width: 1024, Height: 768}) {
		t.Fatalf("Extent:\nhave %+v\nwant 1024x768", have)
	}
	shutdown(t, r, dev)
}

func TestEndFrameRecreatesOnStalePresent(t *testing.T) {
	dev := gputest.NewDevice()
	undefinedExtent(dev)
	win := gputest.NewWindow(800, 600)
	r := newTestRenderer(t, dev, win)
	first := r.Swapchain().Handle()

	cb, err := r.BeginFrame()
	if err != nil {
		t.Fatal(err)
	}
	r.BeginSwapchainRenderPass(cb)
	r.EndSwapchainRenderPass(cb)

	dev.PresentResults = []gpu.Result{gpu.ErrorOutOfDate}
	win.SetSize(1280, 720)
	if err := r.EndFrame(); err != nil {
		t.Fatalf("EndFrame: %v", err)
	}
	if r.State() != FrameStateIdle {
		t.Fatalf("state:\nhave %s\nwant idle", r.State())
	}
	if have := r.Extent(); have != (gpu.Extent2D{Width: 1280, Height: 720}) {
		t.Fatalf("Extent after recreation:\nhave %+v\nwant 1280x720", have)
	}
	if dev.DestroyCount(uint64(first)) != 1 {
		t.Fatal("previous swapchain not destroyed exactly once")
	}
	if win.WasResized() {
		t.Fatal("EndFrame: resize flag not cleared")
	}
	shutdown(t, r, dev)
}

func TestEndFrameRecreatesOnResize(t *testing.T) {
	dev := gputest.NewDevice()
	undefinedExtent(dev)
	win := gputest.NewWindow(800, 600)
	r := newTestRenderer(t, dev, win)

	win.SetSize(1024, 768)
	drawFrame(t, r)
	if have := r.Extent(); have != (gpu.Extent2D{Width: 1024, Height: 768}) {
		t.Fatalf("Extent after resize:\nhave %+v\nwant 1024x768", have)
	}
	if have := r.AspectRatio(); have != float32(1024)/768 {
		t.Fatalf("AspectRatio:\nhave %v\nwant %v", have, float32(1024)/768)
	}
	shutdown(t, r, dev)
}

func TestRecreateWaitsWhileMinimized(t *testing.T) {
	dev := gputest.NewDevice()
	undefinedExtent(dev)
	win := gputest.NewWindow(800, 600)
	r := newTestRenderer(t, dev, win)

	win.OnWait = func(w *gputest.Window) {
		if w.Waits() == 3 {
			w.SetSize(640, 480)
		}
	}
	win.SetSize(0, 0)
	drawFrame(t, r)

	if have := win.Waits(); have != 3 {
		t.Fatalf("WaitEvents calls:\nhave %d\nwant 3", have)
	}
	if have := r.Extent(); have != (gpu.Extent2D{Width: 640, Height: 480}) {
		t.Fatalf("Extent after restore:\nhave %+v\nwant 640x480", have)
	}
	shutdown(t, r, dev)
}

func TestRequestRecreate(t *testing.T) {
	dev := gputest.NewDevice()
	r := newTestRenderer(t, dev, gputest.NewWindow(800, 600))
	if r.Swapchain().PresentMode() != gpu.PresentModeMailbox {
		t.Fatalf("PresentMode:\nhave %s\nwant mailbox", r.Swapchain().PresentMode())
	}
	r.RequestRecreate(swapchain.WithPresentMode(gpu.PresentModeFifo))
	drawFrame(t, r)
	if r.Swapchain().PresentMode() != gpu.PresentModeFifo {
		t.Fatalf("PresentMode after RequestRecreate:\nhave %s\nwant fifo", r.Swapchain().PresentMode())
	}
	shutdown(t, r, dev)
}

func TestFormatChangeIsFatal(t *testing.T) {
	dev := gputest.NewDevice()
	r := newTestRenderer(t, dev, gputest.NewWindow(800, 600))
	dev.DepthFormats = map[gpu.Format]bool{gpu.FormatD24UnormS8Uint: true}
	dev.AcquireResults = []gpu.Result{gpu.ErrorOutOfDate}
	if _, err := r.BeginFrame(); err == nil {
		t.Fatal("BeginFrame: expected error when depth format changes")
	}
	shutdown(t, r, dev)
}

func TestStateViolations(t *testing.T) {
	cases := []struct {
		name string
		run  func(r *Renderer)
	}{
		{"EndFrame while idle", func(r *Renderer) { _ = r.EndFrame() }},
		{"BeginFrame twice", func(r *Renderer) {
			_, _ = r.BeginFrame()
			_, _ = r.BeginFrame()
		}},
		{"render pass while idle", func(r *Renderer) {
			cbs, _ := r.device.AllocateCommandBuffers(1)
			r.BeginSwapchainRenderPass(cbs[0])
		}},
		{"end render pass not begun", func(r *Renderer) {
			cb, _ := r.BeginFrame()
			r.EndSwapchainRenderPass(cb)
		}},
		{"EndFrame inside render pass", func(r *Renderer) {
			cb, _ := r.BeginFrame()
			r.BeginSwapchainRenderPass(cb)
			_ = r.EndFrame()
		}},
		{"render pass on foreign command buffer", func(r *Renderer) {
			_, _ = r.BeginFrame()
			cbs, _ := r.device.AllocateCommandBuffers(1)
			r.BeginSwapchainRenderPass(cbs[0])
		}},
		{"FrameIndex while idle", func(r *Renderer) { _ = r.FrameIndex() }},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			r := newTestRenderer(t, gputest.NewDevice(), gputest.NewWindow(800, 600))
			defer func() {
				if recover() == nil {
					t.Fatalf("%s: expected panic", c.name)
				}
			}()
			c.run(r)
		})
	}
}
