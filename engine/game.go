package engine

import (
	"github.com/spaghettifunk/framepace/engine/config"
	"github.com/spaghettifunk/framepace/engine/renderer"
	"github.com/spaghettifunk/framepace/engine/renderer/gpu"
	"github.com/spaghettifunk/framepace/engine/renderer/vulkan"
)

// Game is the client of the engine. The engine fills in Config, Backend and
// Renderer before calling FnInitialize.
type Game struct {
	Config   *config.Config
	Backend  *vulkan.VulkanContext
	Renderer *renderer.Renderer
	State    interface{}

	FnInitialize Initialize
	FnUpdate     Update
	FnRender     Render
	FnOnResize   OnResize
	FnShutdown   Shutdown
}

type Initialize func() error
type Update func(deltaTime float64) error

// Render records the frame's draws into cb, inside the swapchain render
// pass. frameIndex is the frame slot, below swapchain.MaxFramesInFlight.
type Render func(cb gpu.CommandBuffer, frameIndex uint32, deltaTime float64) error
type OnResize func(width uint32, height uint32) error
type Shutdown func() error
