package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spaghettifunk/framepace/engine/core"
	"github.com/spaghettifunk/framepace/engine/renderer/gpu"
)

const sample = `
[application]
name = "cubes"
width = 800
height = 600
log_level = "debug"

[renderer]
present_mode = "fifo"
clear_color = [0.1, 0.2, 0.3, 1.0]
validation = false

[[objects]]
name = "left"
texture = "assets/textures/crate.png"
position = [-1.5, 0.0, 0.0]
rotation_speed = 0.5

[[objects]]
name = "right"
position = [1.5, 0.0, 0.0]
scale = 0.5
`

func TestParse(t *testing.T) {
	cfg, err := Parse([]byte(sample))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	if have, want := cfg.Application.Name, "cubes"; have != want {
		t.Fatalf("name: have %q, want %q", have, want)
	}
	if have, want := cfg.Application.Width, uint32(800); have != want {
		t.Fatalf("width: have %d, want %d", have, want)
	}
	// Keys missing from the file keep their default.
	if have, want := cfg.Application.X, Default().Application.X; have != want {
		t.Fatalf("x: have %d, want %d", have, want)
	}
	if have, want := cfg.PresentMode(), gpu.PresentModeFifo; have != want {
		t.Fatalf("present mode: have %v, want %v", have, want)
	}
	if have, want := cfg.Renderer.ClearColor, [4]float32{0.1, 0.2, 0.3, 1.0}; have != want {
		t.Fatalf("clear color: have %v, want %v", have, want)
	}
	if cfg.Renderer.Validation {
		t.Fatal("validation: have true, want false")
	}
	if have := len(cfg.Objects); have != 2 {
		t.Fatalf("objects: have %d, want 2", have)
	}
	if have := cfg.Objects[0].Scale; have != 1 {
		t.Fatalf("default scale: have %v, want 1", have)
	}
	if have := cfg.Objects[1].Texture; have != "" {
		t.Fatalf("texture: have %q, want empty", have)
	}
}

func TestParseRejects(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"unknown present mode", "[renderer]\npresent_mode = \"triple\"\n"},
		{"zero width", "[application]\nwidth = 0\n"},
		{"malformed", "[application\nname = 1\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Parse([]byte(tt.data)); err == nil {
				t.Fatal("Parse: have nil error, want failure")
			}
		})
	}
}

func TestParsePresentMode(t *testing.T) {
	tests := []struct {
		in   string
		want gpu.PresentMode
	}{
		{"mailbox", gpu.PresentModeMailbox},
		{"FIFO", gpu.PresentModeFifo},
		{"vsync", gpu.PresentModeFifo},
		{" immediate ", gpu.PresentModeImmediate},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			have, err := ParsePresentMode(tt.in)
			if err != nil {
				t.Fatalf("ParsePresentMode(%q): %v", tt.in, err)
			}
			if have != tt.want {
				t.Fatalf("ParsePresentMode(%q): have %v, want %v", tt.in, have, tt.want)
			}
		})
	}
}

func TestWatcherReload(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "engine.toml")
	if err := os.WriteFile(path, []byte(sample), 0o644); err != nil {
		t.Fatal(err)
	}

	bus := core.NewEventBus()
	changed := make(chan *Config, 8)
	bus.Register(core.EVENT_CODE_CONFIG_CHANGED, nil, func(code core.SystemEventCode, sender, listener interface{}, data core.EventContext) bool {
		select {
		case changed <- data.Data.Value.(*Config):
		default:
		}
		return true
	})

	w, err := NewWatcher(path, bus)
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	defer w.Close()

	update := "[renderer]\npresent_mode = \"immediate\"\n"
	if err := os.WriteFile(path, []byte(update), 0o644); err != nil {
		t.Fatal(err)
	}

	timeout := time.After(5 * time.Second)
	for {
		select {
		case cfg := <-changed:
			// A write may surface as several events; wait for the full file.
			if cfg.PresentMode() == gpu.PresentModeImmediate {
				return
			}
		case <-timeout:
			t.Fatal("no config change event within 5s")
		}
	}
}

func TestWatcherCloseTwice(t *testing.T) {
	path := filepath.Join(t.TempDir(), "engine.toml")
	w, err := NewWatcher(path, core.NewEventBus())
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
}
