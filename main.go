/*
The testbed application: a handful of textured cubes drawn through the
frame renderer, configured from config/engine.toml.
*/
package main

import (
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/spaghettifunk/framepace/engine"
	"github.com/spaghettifunk/framepace/engine/config"
	"github.com/spaghettifunk/framepace/engine/core"
	"github.com/spaghettifunk/framepace/testbed"
)

func main() {
	configPath := flag.String("config", config.DefaultPath, "path to the engine TOML config")
	flag.Parse()

	tb := testbed.NewTestGame()

	e, err := engine.New(tb.Game, *configPath)
	if err != nil {
		core.LogFatal("%+v", err)
	}

	if err := e.Initialize(); err != nil {
		_ = e.Shutdown()
		core.LogFatal("%+v", err)
	}

	// signal channel to capture system calls
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT, syscall.SIGQUIT)
	go func() {
		<-sigCh
		e.Quit()
	}()

	runErr := e.Run()
	if err := e.Shutdown(); err != nil {
		core.LogError("shutdown: %+v", err)
	}
	if runErr != nil {
		core.LogFatal("%+v", runErr)
	}
}
