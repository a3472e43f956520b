package swapchain

import "github.com/spaghettifunk/framepace/engine/renderer/gpu"

type options struct {
	presentMode   gpu.PresentMode
	surfaceFormat gpu.SurfaceFormat
}

// Option tunes swapchain creation.
type Option func(*options)

// WithPresentMode sets the preferred present mode. FIFO is used when the
// surface does not offer it.
func WithPresentMode(mode gpu.PresentMode) Option {
	return func(o *options) {
		o.presentMode = mode
	}
}

// WithSurfaceFormat sets the preferred surface format. The first format the
// surface reports is used when it is not available.
func WithSurfaceFormat(format gpu.SurfaceFormat) Option {
	return func(o *options) {
		o.surfaceFormat = format
	}
}

func newOptions(opts []Option) options {
	o := options{
		presentMode: gpu.PresentModeMailbox,
		surfaceFormat: gpu.SurfaceFormat{
			Format:     gpu.FormatB8G8R8A8Srgb,
			ColorSpace: gpu.ColorSpaceSrgbNonlinear,
		},
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
