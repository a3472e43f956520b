package core

import (
	"github.com/cockroachdb/errors"
)

var (
	// ErrSwapchainStale signals that the swapchain no longer matches the
	// surface and must be recreated before the next frame.
	ErrSwapchainStale = errors.New("swapchain out of date or suboptimal")
	// ErrPoolExhausted is returned when a descriptor pool has no room left.
	ErrPoolExhausted    = errors.New("descriptor pool exhausted")
	ErrDuplicateBinding = errors.New("binding already in use")
	ErrBuilderFrozen    = errors.New("builder already built")
	ErrFormatChanged    = errors.New("swapchain image or depth format has changed")
	ErrNoSuitableFormat = errors.New("no supported format found")
)

// Assert panics with an assertion failure when cond is false. It guards
// caller contracts such as state machine order and mapping preconditions.
func Assert(cond bool, msg string) {
	if !cond {
		panic(errors.AssertionFailedWithDepthf(1, "%s", msg))
	}
}

// Assertf is Assert with a formatted message.
func Assertf(cond bool, format string, args ...interface{}) {
	if !cond {
		panic(errors.AssertionFailedWithDepthf(1, format, args...))
	}
}
