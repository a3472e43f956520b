package engine

import (
	"sync/atomic"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"

	"github.com/spaghettifunk/framepace/engine/config"
	"github.com/spaghettifunk/framepace/engine/core"
	"github.com/spaghettifunk/framepace/engine/platform"
	"github.com/spaghettifunk/framepace/engine/renderer"
	"github.com/spaghettifunk/framepace/engine/renderer/swapchain"
	"github.com/spaghettifunk/framepace/engine/renderer/vulkan"
)

type Stage uint8

const (
	// Engine is in an uninitialized state
	EngineStageUninitialized Stage = iota
	// Engine is currently initializing
	EngineStageInitializing
	// Engine initialization is complete
	EngineStageInitialized
	// Engine is currently running
	EngineStageRunning
	// Engine is in the process of shutting down
	EngineStageShuttingDown
)

type Engine struct {
	currentStage Stage
	gameInstance *Game
	isRunning    atomic.Bool
	isSuspended  bool
	runID        uuid.UUID

	configPath    string
	config        *config.Config
	pendingConfig atomic.Pointer[config.Config]

	events   *core.EventBus
	watcher  *config.Watcher
	platform *platform.Platform
	backend  *vulkan.VulkanContext
	renderer *renderer.Renderer

	clock    *core.Clock
	metrics  *core.Metrics
	lastTime float64
	width    uint32
	height   uint32
}

// New loads the config at configPath. Nothing touches the GPU or the window
// until Initialize.
func New(g *Game, configPath string) (*Engine, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if err := core.SetLogLevel(cfg.Application.LogLevel); err != nil {
		core.LogWarn("ignoring log level %q: %s", cfg.Application.LogLevel, err)
	}
	g.Config = cfg

	events := core.NewEventBus()
	return &Engine{
		currentStage: EngineStageUninitialized,
		gameInstance: g,
		runID:        uuid.New(),
		configPath:   configPath,
		config:       cfg,
		events:       events,
		platform:     platform.New(events),
		clock:        core.NewClock(),
		metrics:      core.NewMetrics(),
		width:        cfg.Application.Width,
		height:       cfg.Application.Height,
	}, nil
}

func (e *Engine) Initialize() error {
	e.currentStage = EngineStageInitializing
	core.LogInfo("engine run %s starting", e.runID)

	e.events.Register(core.EVENT_CODE_APPLICATION_QUIT, e, e.onEvent)
	e.events.Register(core.EVENT_CODE_KEY_PRESSED, e, e.onKey)
	e.events.Register(core.EVENT_CODE_KEY_RELEASED, e, e.onKey)
	e.events.Register(core.EVENT_CODE_RESIZED, e, e.onResized)
	e.events.Register(core.EVENT_CODE_CONFIG_CHANGED, e, e.onConfigChanged)

	app := e.config.Application
	if err := e.platform.Startup(app.Name, app.X, app.Y, app.Width, app.Height); err != nil {
		return err
	}

	backend, err := vulkan.NewContext(e.platform, vulkan.Config{
		ApplicationName: app.Name,
		Validation:      e.config.Renderer.Validation,
	})
	if err != nil {
		return errors.Wrap(err, "failed to create vulkan context")
	}
	e.backend = backend

	r, err := renderer.New(backend, e.platform, swapchain.WithPresentMode(e.config.PresentMode()))
	if err != nil {
		return errors.Wrap(err, "failed to create renderer")
	}
	r.SetClearColor(e.config.Renderer.ClearColor)
	e.renderer = r

	watcher, err := config.NewWatcher(e.configPath, e.events)
	if err != nil {
		// Hot reload is a convenience; run without it.
		core.LogWarn("config hot reload disabled: %s", err)
	}
	e.watcher = watcher

	e.gameInstance.Backend = e.backend
	e.gameInstance.Renderer = e.renderer
	if err := e.gameInstance.FnInitialize(); err != nil {
		return err
	}
	extent := e.renderer.Extent()
	if err := e.gameInstance.FnOnResize(extent.Width, extent.Height); err != nil {
		return err
	}

	e.currentStage = EngineStageInitialized
	return nil
}

func (e *Engine) Run() error {
	e.currentStage = EngineStageRunning
	e.isRunning.Store(true)

	e.clock.Start()
	e.clock.Update()
	e.lastTime = e.clock.Elapsed()

	var reportTime float64

	for e.isRunning.Load() {
		if !e.platform.PumpMessages() {
			e.isRunning.Store(false)
			break
		}
		e.applyPendingConfig()

		if e.isSuspended {
			e.platform.WaitEvents()
			continue
		}

		// Update clock and get delta time.
		e.clock.Update()
		currentTime := e.clock.Elapsed()
		delta := currentTime - e.lastTime

		if err := e.gameInstance.FnUpdate(delta); err != nil {
			return errors.Wrap(err, "game update failed")
		}
		if err := e.drawFrame(delta); err != nil {
			return err
		}

		e.clock.Update()
		frameElapsed := e.clock.Elapsed() - currentTime
		e.metrics.Update(frameElapsed)
		if currentTime-reportTime >= 5 {
			fps, ms := e.metrics.Frame()
			core.With("run", e.runID).Debugf("%.0f fps, %.3f ms/frame", fps, ms)
			reportTime = currentTime
		}

		e.lastTime = currentTime
	}
	return nil
}

// drawFrame runs one frame through the renderer. A frame abandoned for
// swapchain recreation is not an error.
func (e *Engine) drawFrame(delta float64) error {
	cb, err := e.renderer.BeginFrame()
	if err != nil {
		return errors.Wrap(err, "failed to begin frame")
	}
	if cb == nil {
		return nil
	}

	e.renderer.BeginSwapchainRenderPass(cb)
	if err := e.gameInstance.FnRender(cb, e.renderer.FrameIndex(), delta); err != nil {
		e.renderer.EndSwapchainRenderPass(cb)
		_ = e.renderer.EndFrame()
		return errors.Wrap(err, "game render failed")
	}
	e.renderer.EndSwapchainRenderPass(cb)

	if err := e.renderer.EndFrame(); err != nil {
		return errors.Wrap(err, "failed to end frame")
	}
	return nil
}

// Shutdown releases everything in reverse creation order. It is safe to
// call after a partial Initialize.
func (e *Engine) Shutdown() error {
	e.currentStage = EngineStageShuttingDown
	e.clock.Stop()
	var errs error

	if e.watcher != nil {
		errs = errors.CombineErrors(errs, e.watcher.Close())
		e.watcher = nil
	}
	if e.backend != nil {
		errs = errors.CombineErrors(errs, e.backend.WaitIdle())
	}
	if e.gameInstance.FnShutdown != nil && e.renderer != nil {
		errs = errors.CombineErrors(errs, e.gameInstance.FnShutdown())
	}
	if e.renderer != nil {
		errs = errors.CombineErrors(errs, e.renderer.Shutdown())
		e.renderer = nil
	}
	if e.backend != nil {
		e.backend.Shutdown()
		e.backend = nil
	}
	errs = errors.CombineErrors(errs, e.platform.Shutdown())
	e.events.Shutdown()

	e.currentStage = EngineStageUninitialized
	return errs
}

// Quit asks the render loop to stop after the current frame. It may be
// called from any goroutine.
func (e *Engine) Quit() {
	e.events.Fire(core.EVENT_CODE_APPLICATION_QUIT, e, core.EventContext{})
}

// GetFramebufferSize returns the width and height (in this order)
// of the application framebuffer.
func (e *Engine) GetFramebufferSize() (uint32, uint32) {
	return e.width, e.height
}

func (e *Engine) onEvent(code core.SystemEventCode, sender interface{}, listener interface{}, data core.EventContext) bool {
	if code == core.EVENT_CODE_APPLICATION_QUIT {
		core.LogInfo("EVENT_CODE_APPLICATION_QUIT received, shutting down.")
		e.isRunning.Store(false)
		return true
	}
	return false
}

func (e *Engine) onKey(code core.SystemEventCode, sender interface{}, listener interface{}, data core.EventContext) bool {
	keyCode := data.Data.U16[0]
	switch code {
	case core.EVENT_CODE_KEY_PRESSED:
		core.LogDebug("key %d pressed", keyCode)
	case core.EVENT_CODE_KEY_RELEASED:
		core.LogDebug("key %d released", keyCode)
	}
	return false
}

func (e *Engine) onResized(code core.SystemEventCode, sender interface{}, listener interface{}, data core.EventContext) bool {
	width := data.Data.U32[0]
	height := data.Data.U32[1]
	if width == e.width && height == e.height {
		return false
	}
	e.width = width
	e.height = height
	core.LogDebug("Window resize: %d, %d", width, height)

	// Handle minimization
	if width == 0 || height == 0 {
		core.LogInfo("Window minimized, suspending application.")
		e.isSuspended = true
		return true
	}
	if e.isSuspended {
		core.LogInfo("Window restored, resuming application.")
		e.isSuspended = false
	}
	if err := e.gameInstance.FnOnResize(width, height); err != nil {
		core.LogError("%s", err)
	}
	return false
}
