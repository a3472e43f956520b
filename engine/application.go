package engine

import (
	"github.com/spaghettifunk/framepace/engine/config"
	"github.com/spaghettifunk/framepace/engine/core"
	"github.com/spaghettifunk/framepace/engine/renderer/swapchain"
)

// onConfigChanged runs on the watcher goroutine. The new config is picked up
// by the render loop at the start of the next frame.
func (e *Engine) onConfigChanged(code core.SystemEventCode, sender interface{}, listener interface{}, data core.EventContext) bool {
	cfg, ok := data.Data.Value.(*config.Config)
	if !ok || cfg == nil {
		core.LogError("config change event without a config")
		return false
	}
	e.pendingConfig.Store(cfg)
	return false
}

// applyPendingConfig applies a reloaded config on the render thread. Only
// the log level, clear color and present mode take effect live; window and
// object changes need a restart.
func (e *Engine) applyPendingConfig() {
	cfg := e.pendingConfig.Swap(nil)
	if cfg == nil {
		return
	}
	previous := e.config
	e.config = cfg
	e.gameInstance.Config = cfg

	if cfg.Application.LogLevel != previous.Application.LogLevel {
		if err := core.SetLogLevel(cfg.Application.LogLevel); err != nil {
			core.LogWarn("ignoring log level %q: %s", cfg.Application.LogLevel, err)
		}
	}
	if cfg.Renderer.ClearColor != previous.Renderer.ClearColor {
		e.renderer.SetClearColor(cfg.Renderer.ClearColor)
	}
	if cfg.PresentMode() != previous.PresentMode() {
		core.LogInfo("present mode %s -> %s", previous.PresentMode(), cfg.PresentMode())
		e.renderer.RequestRecreate(swapchain.WithPresentMode(cfg.PresentMode()))
	}
	if cfg.Application.Width != previous.Application.Width || cfg.Application.Height != previous.Application.Height ||
		len(cfg.Objects) != len(previous.Objects) {
		core.LogWarn("window and object changes apply on the next start")
	}
}
