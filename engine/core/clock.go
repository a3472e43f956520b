package core

import "github.com/loov/hrtime"

// Clock measures elapsed seconds with the high resolution timer.
type Clock struct {
	startTime float64
	elapsed   float64
}

func NewClock() *Clock {
	return &Clock{}
}

// Updates the provided clock. Should be called just before checking elapsed time.
// Has no effect on non-started clocks.
func (c *Clock) Update() {
	if c.startTime != 0 {
		c.elapsed = hrtime.Now().Seconds() - c.startTime
	}
}

// Starts the provided clock. Resets elapsed time.
func (c *Clock) Start() {
	c.startTime = hrtime.Now().Seconds()
	if c.startTime == 0 {
		// hrtime counts from process start; keep zero reserved for "stopped".
		c.startTime = 1e-9
	}
	c.elapsed = 0
}

// Stops the provided clock. Does not reset elapsed time.
func (c *Clock) Stop() {
	c.startTime = 0
}

// Elapsed returns the seconds between Start and the last Update.
func (c *Clock) Elapsed() float64 {
	return c.elapsed
}

func (c *Clock) IsRunning() bool {
	return c.startTime != 0
}
