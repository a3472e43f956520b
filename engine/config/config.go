package config

import (
	"os"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/pelletier/go-toml/v2"
	"github.com/spaghettifunk/framepace/engine/renderer/gpu"
)

const DefaultPath = "config/engine.toml"

type Application struct {
	Name     string `toml:"name"`
	X        uint32 `toml:"x"`
	Y        uint32 `toml:"y"`
	Width    uint32 `toml:"width"`
	Height   uint32 `toml:"height"`
	LogLevel string `toml:"log_level"`
}

type Renderer struct {
	PresentMode string     `toml:"present_mode"`
	ClearColor  [4]float32 `toml:"clear_color"`
	Validation  bool       `toml:"validation"`
}

// Object describes one textured cube of the demo scene. An empty texture
// path selects the procedural checkerboard.
type Object struct {
	Name          string     `toml:"name"`
	Texture       string     `toml:"texture"`
	Position      [3]float32 `toml:"position"`
	Scale         float32    `toml:"scale"`
	RotationSpeed float32    `toml:"rotation_speed"`
}

type Config struct {
	Application Application `toml:"application"`
	Renderer    Renderer    `toml:"renderer"`
	Objects     []Object    `toml:"objects"`
}

func Default() *Config {
	return &Config{
		Application: Application{
			Name:     "Framepace Testbed",
			X:        100,
			Y:        100,
			Width:    1280,
			Height:   720,
			LogLevel: "info",
		},
		Renderer: Renderer{
			PresentMode: "mailbox",
			ClearColor:  [4]float32{0.01, 0.01, 0.01, 1.0},
			Validation:  true,
		},
	}
}

// Load reads the TOML file at path on top of the defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read config %q", path)
	}
	return Parse(data)
}

func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := toml.Unmarshal(data, cfg); err != nil {
		var derr *toml.DecodeError
		if errors.As(err, &derr) {
			row, col := derr.Position()
			return nil, errors.Wrapf(err, "invalid config at line %d, column %d", row, col)
		}
		return nil, errors.Wrap(err, "invalid config")
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.Application.Width == 0 || c.Application.Height == 0 {
		return errors.Newf("window size %dx%d must not be zero", c.Application.Width, c.Application.Height)
	}
	if _, err := ParsePresentMode(c.Renderer.PresentMode); err != nil {
		return err
	}
	for i := range c.Objects {
		if c.Objects[i].Scale == 0 {
			c.Objects[i].Scale = 1
		}
	}
	return nil
}

// PresentMode returns the configured presentation mode. The value has been
// validated on load.
func (c *Config) PresentMode() gpu.PresentMode {
	mode, _ := ParsePresentMode(c.Renderer.PresentMode)
	return mode
}

func ParsePresentMode(s string) (gpu.PresentMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "mailbox":
		return gpu.PresentModeMailbox, nil
	case "fifo", "vsync":
		return gpu.PresentModeFifo, nil
	case "immediate":
		return gpu.PresentModeImmediate, nil
	}
	return 0, errors.Newf("unknown present mode %q (want mailbox, fifo or immediate)", s)
}
