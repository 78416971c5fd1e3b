package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/urfave/cli/v3"
	"gopkg.in/yaml.v3"
)

// Config represents the convbench configuration file. Pointer fields
// distinguish "not set" from zero values.
type Config struct {
	DataDir string `yaml:"data_dir"`

	// Device selection
	Backend string `yaml:"backend"`
	Vendor  string `yaml:"vendor"`
	Device  string `yaml:"device"`

	// Kernel and dispatch
	Kernel       string `yaml:"kernel"`
	KernelSource string `yaml:"kernel_source"`
	Strategy     string `yaml:"strategy"`
	TileM        *int64 `yaml:"tile_m"`
	TileN        *int64 `yaml:"tile_n"`
	Local        string `yaml:"local"`
	FastMath     *bool  `yaml:"fast_math"`

	// Validation
	Tolerance   string `yaml:"tolerance"`
	ElementType string `yaml:"element_type"`

	// Output
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
}

func configPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "convbench", "config.yaml")
}

// loadConfig reads path, or the default location when path is empty. A
// missing default file yields a zero Config; a missing explicit file is an
// error.
func loadConfig(path string) (Config, error) {
	explicit := path != ""
	if !explicit {
		path = configPath()
		if path == "" {
			return Config{}, nil
		}
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if !explicit && errors.Is(err, fs.ErrNotExist) {
			return Config{}, nil
		}
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// applyLogConfig runs before the logger is built.
func applyLogConfig(c *cli.Command, cfg Config) {
	if cfg.LogLevel != "" && !c.IsSet("log-level") {
		logLevel = cfg.LogLevel
	}
	if cfg.LogFormat != "" && !c.IsSet("log-format") {
		logFormat = cfg.LogFormat
	}
}

// applyDeviceConfig applies config file defaults to the data and device flags
// when the corresponding flag was not set.
func applyDeviceConfig(c *cli.Command, cfg Config) {
	if cfg.DataDir != "" && !c.IsSet("data-dir") {
		dataDir = cfg.DataDir
	}
	if cfg.Backend != "" && !c.IsSet("backend") {
		backendName = cfg.Backend
	}
	if cfg.Vendor != "" && !c.IsSet("vendor") {
		vendor = cfg.Vendor
	}
	if cfg.Device != "" && !c.IsSet("device") {
		deviceType = cfg.Device
	}
}

// applyRunConfig applies config file defaults to the kernel, dispatch and
// validation options of run and plan.
func applyRunConfig(c *cli.Command, cfg Config, o *runOptions) {
	applyDeviceConfig(c, cfg)
	if cfg.Kernel != "" && !c.IsSet("kernel") {
		o.kernel = cfg.Kernel
	}
	if cfg.KernelSource != "" && !c.IsSet("source") {
		o.source = cfg.KernelSource
	}
	if cfg.Strategy != "" && !c.IsSet("strategy") {
		o.strategy = cfg.Strategy
	}
	if cfg.TileM != nil && !c.IsSet("tile-m") {
		o.tileM = *cfg.TileM
	}
	if cfg.TileN != nil && !c.IsSet("tile-n") {
		o.tileN = *cfg.TileN
	}
	if cfg.Local != "" && !c.IsSet("local") {
		o.local = cfg.Local
	}
	if cfg.FastMath != nil && !c.IsSet("fast-math") {
		o.fastMath = *cfg.FastMath
	}
	if cfg.Tolerance != "" && !c.IsSet("tolerance") {
		o.tolerance = cfg.Tolerance
	}
	if cfg.ElementType != "" && !c.IsSet("element-type") {
		o.elementType = cfg.ElementType
	}
}
