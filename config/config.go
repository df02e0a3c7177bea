// Package config loads the settings of the rxdemo command.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/on-the-ground/reactive_ive_go/effect"
	"github.com/on-the-ground/reactive_ive_go/log"
	toml "github.com/pelletier/go-toml/v2"
)

// Config is the resolved demo configuration.
type Config struct {
	LogLevel    log.LogLevel
	Development bool
	Policy      effect.Policy
	Counter     Counter
	Bench       Bench
}

// Counter configures the counter scenario.
type Counter struct {
	Increments int
	FailEvery  int
}

// Bench configures the propagation benchmark.
type Bench struct {
	Width      int
	Height     int
	Iterations int
}

const (
	defaultLogLevel   = log.LogInfo
	defaultIncrements = 3
	defaultWidth      = 10
	defaultHeight     = 10
	defaultIterations = 1000
)

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		LogLevel: defaultLogLevel,
		Policy:   effect.Exhaust,
		Counter:  Counter{Increments: defaultIncrements},
		Bench: Bench{
			Width:      defaultWidth,
			Height:     defaultHeight,
			Iterations: defaultIterations,
		},
	}
}

type rawConfig struct {
	Log struct {
		Level       string `toml:"level"`
		Development bool   `toml:"development"`
	} `toml:"log"`
	Effect struct {
		Policy *effect.Policy `toml:"policy"`
	} `toml:"effect"`
	Counter struct {
		Increments int `toml:"increments"`
		FailEvery  int `toml:"fail_every"`
	} `toml:"counter"`
	Bench struct {
		Width      int `toml:"width"`
		Height     int `toml:"height"`
		Iterations int `toml:"iterations"`
	} `toml:"bench"`
}

// Load parses the TOML file at path, falling back to defaults when the path
// is empty or the file is missing.
func Load(path string) (Config, error) {
	cfg := Default()
	if strings.TrimSpace(path) == "" {
		return cfg, nil
	}
	resolved, err := expandPath(path)
	if err != nil {
		return Config{}, err
	}

	file, err := os.Open(resolved)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return Config{}, fmt.Errorf("open config: %w", err)
	}
	defer file.Close()

	bytes, err := io.ReadAll(file)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	return Parse(bytes)
}

// Parse decodes TOML content on top of the defaults.
func Parse(content []byte) (Config, error) {
	cfg := Default()

	var raw rawConfig
	if err := toml.Unmarshal(content, &raw); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}

	if level := strings.TrimSpace(raw.Log.Level); level != "" {
		cfg.LogLevel = log.ParseLevel(level)
	}
	cfg.Development = raw.Log.Development
	if raw.Effect.Policy != nil {
		cfg.Policy = *raw.Effect.Policy
	}

	cfg.Counter.Increments = positiveOr(raw.Counter.Increments, defaultIncrements)
	if raw.Counter.FailEvery < 0 {
		return Config{}, fmt.Errorf("parse config: counter.fail_every must not be negative, got %d", raw.Counter.FailEvery)
	}
	cfg.Counter.FailEvery = raw.Counter.FailEvery

	cfg.Bench.Width = positiveOr(raw.Bench.Width, defaultWidth)
	cfg.Bench.Height = positiveOr(raw.Bench.Height, defaultHeight)
	cfg.Bench.Iterations = positiveOr(raw.Bench.Iterations, defaultIterations)

	return cfg, nil
}

func positiveOr(v, fallback int) int {
	if v <= 0 {
		return fallback
	}
	return v
}

func expandPath(path string) (string, error) {
	trimmed := strings.TrimSpace(path)
	if strings.HasPrefix(trimmed, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home dir: %w", err)
		}
		trimmed = filepath.Join(home, strings.TrimPrefix(trimmed, "~"))
	}
	return filepath.Abs(trimmed)
}
