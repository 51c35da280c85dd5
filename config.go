package grok

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

const ConfigFilename = "grok.yml"

var ErrInvalidConfig = errors.New("grok: invalid config")

var knownBackends = []string{"gl", "wgpu", "recording"}

type Config struct {
	Window   WindowConfig   `yaml:"window" toml:"window"`
	Renderer RendererConfig `yaml:"renderer" toml:"renderer"`
	Log      LogConfig      `yaml:"log" toml:"log"`
	Debug    DebugConfig    `yaml:"debug" toml:"debug"`
}

type WindowConfig struct {
	Width  int    `yaml:"width" toml:"width"`
	Height int    `yaml:"height" toml:"height"`
	Title  string `yaml:"title" toml:"title"`
	// Headless skips window creation; only the recording backend works without one.
	Headless bool `yaml:"headless" toml:"headless"`
}

type RendererConfig struct {
	Backend    string     `yaml:"backend" toml:"backend"`
	ClearColor [4]float32 `yaml:"clear_color" toml:"clear_color"`
}

// DebugConfig enables the HTTP inspection server when Addr is set.
type DebugConfig struct {
	Addr string `yaml:"addr" toml:"addr"`
	// Watch reloads the config file on change.
	Watch bool `yaml:"watch" toml:"watch"`
}

type LogConfig struct {
	Level  string `yaml:"level" toml:"level"`
	Prefix string `yaml:"prefix" toml:"prefix"`
}

func DefaultConfig() Config {
	return Config{
		Window: WindowConfig{
			Width:  1280,
			Height: 720,
			Title:  "Grok",
		},
		Renderer: RendererConfig{
			Backend:    "gl",
			ClearColor: [4]float32{0.1, 0.1, 0.12, 1},
		},
		Log: LogConfig{
			Level:  "info",
			Prefix: "grok",
		},
	}
}

// ParseConfig decodes YAML over DefaultConfig. Unknown keys are rejected.
func ParseConfig(data []byte) (Config, error) {
	cfg := DefaultConfig()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, errors.Wrap(err, "parse config")
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// ParseConfigTOML is ParseConfig for TOML input.
func ParseConfigTOML(data []byte) (Config, error) {
	cfg := DefaultConfig()
	dec := toml.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		return Config{}, errors.Wrap(err, "parse config")
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// LoadConfig reads path, as TOML when it ends in .toml and as YAML otherwise.
// A missing file yields DefaultConfig.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return DefaultConfig(), nil
	}
	if err != nil {
		return Config{}, errors.Wrapf(err, "read config %s", path)
	}
	parse := ParseConfig
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		parse = ParseConfigTOML
	}
	cfg, err := parse(data)
	if err != nil {
		return Config{}, errors.Wrap(err, path)
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if !slices.Contains(knownBackends, c.Renderer.Backend) {
		return errors.Wrapf(ErrInvalidConfig, "unknown renderer backend %q", c.Renderer.Backend)
	}
	if !c.Window.Headless && (c.Window.Width <= 0 || c.Window.Height <= 0) {
		return errors.Wrapf(ErrInvalidConfig, "window size %dx%d", c.Window.Width, c.Window.Height)
	}
	if c.Window.Headless && c.Renderer.Backend != "recording" {
		return errors.Wrapf(ErrInvalidConfig, "backend %q needs a window", c.Renderer.Backend)
	}
	for _, ch := range c.Renderer.ClearColor {
		if ch < 0 || ch > 1 {
			return errors.Wrapf(ErrInvalidConfig, "clear color %v", c.Renderer.ClearColor)
		}
	}
	return nil
}

// Modules returns the modules the config describes, in install order: logging,
// window, render, then the debug server when an address is set.
func (c Config) Modules() []Module {
	modules := []Module{
		LoggingModule{Prefix: c.Log.Prefix, Level: c.Log.Level},
	}
	if !c.Window.Headless {
		modules = append(modules, NewPlatformWindow(c.Window.Width, c.Window.Height, c.Window.Title, c.Renderer.Backend))
	}
	modules = append(modules, RenderModule{
		Backend: c.Renderer.Backend,
		Clear:   c.Renderer.ClearColor,
		Label:   c.Window.Title,
	})
	if c.Debug.Addr != "" {
		modules = append(modules, DebugServerModule{Addr: c.Debug.Addr})
	}
	return modules
}
