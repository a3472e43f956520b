package gputest

import (
	"sync"

	"github.com/spaghettifunk/framepace/engine/renderer/gpu"
)

// Window is a fake surface whose size and resize flag are set by the test.
type Window struct {
	mu      sync.Mutex
	size    gpu.Extent2D
	resized bool
	waits   int

	// OnWait runs inside WaitEvents, standing in for the platform event
	// loop. It may call SetSize.
	OnWait func(w *Window)
}

var _ gpu.Window = (*Window)(nil)

func NewWindow(width, height uint32) *Window {
	return &Window{size: gpu.Extent2D{Width: width, Height: height}}
}

// SetSize changes the framebuffer size and raises the resize flag.
func (w *Window) SetSize(width, height uint32) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.size = gpu.Extent2D{Width: width, Height: height}
	w.resized = true
}

func (w *Window) FramebufferSize() gpu.Extent2D {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.size
}

func (w *Window) WasResized() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.resized
}

func (w *Window) ResetResized() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.resized = false
}

func (w *Window) WaitEvents() {
	w.mu.Lock()
	w.waits++
	fn := w.OnWait
	w.mu.Unlock()
	if fn != nil {
		fn(w)
	}
}

// Waits returns how many times WaitEvents was called.
func (w *Window) Waits() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.waits
}
