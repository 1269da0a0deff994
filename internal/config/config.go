// Package config loads and validates the optimizer settings from defaults,
// an optional config file, environment variables and CLI flag overrides, in
// that order of increasing precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
)

var (
	// ErrNoWorkers is returned when both worker pools are sized to zero.
	ErrNoWorkers = errors.New("at least one worker is required (gpu_workers + cpu_workers)")
	// ErrRootRequired is returned when the library root argument is missing.
	ErrRootRequired = errors.New("library root is required")
	// ErrRootNotDirectory is returned when the library root is not a directory.
	ErrRootNotDirectory = errors.New("library root is not a directory")
	// ErrLogDirRequired is returned when the log directory is empty.
	ErrLogDirRequired = errors.New("log directory is required")
	// ErrInvalidLogLevel is returned when log level is not recognized.
	ErrInvalidLogLevel = errors.New("invalid log level")
)

// FallbackCPUThreads is the fixed thread count for CPU fallback encodes. A
// fallback runs opportunistically on a possibly busy machine, so it never
// inherits the configured CPU worker budget.
const FallbackCPUThreads = 5

// Worker pool ceilings. The dashboard draws exactly three blocks.
const (
	MaxGPUWorkers = 2
	MaxCPUWorkers = 1
)

// Refresh clamp bounds in seconds.
const (
	MinRefresh = 0.2
	MaxRefresh = 2.0
)

// Config holds every recognized option. Root comes from the positional CLI
// argument, everything else from the layered sources.
type Config struct {
	Root             string  `mapstructure:"-"`
	Force            bool    `mapstructure:"force"`
	GPUWorkers       int     `mapstructure:"gpu_workers"`
	CPUWorkers       int     `mapstructure:"cpu_workers"`
	CPUThreads       int     `mapstructure:"cpu_threads"`
	GPUFilterThreads int     `mapstructure:"gpu_filter_threads"`
	CPUBudgetForGPU  int     `mapstructure:"cpu_budget_for_gpu"`
	GPUDecode        bool    `mapstructure:"gpu_decode"`
	Refresh          float64 `mapstructure:"refresh"`
	LogDir           string  `mapstructure:"log_dir"`
	Cascade720       bool    `mapstructure:"cascade_720"`
	Dashboard        bool    `mapstructure:"dashboard"`
	LogLevel         string  `mapstructure:"log_level"`
}

// Load merges defaults, the config file (explicit path, or optimizeplex.yaml
// in the working directory when present) and OPTIMIZEPLEX_* environment
// variables.
func Load(file string) (*Config, error) {
	v := viper.New()

	v.SetDefault("force", false)
	v.SetDefault("gpu_workers", 2)
	v.SetDefault("cpu_workers", 0)
	v.SetDefault("cpu_threads", 5)
	v.SetDefault("gpu_filter_threads", 1)
	v.SetDefault("cpu_budget_for_gpu", 10)
	v.SetDefault("gpu_decode", false)
	v.SetDefault("refresh", 1.0)
	v.SetDefault("log_dir", "encode-logs")
	v.SetDefault("cascade_720", true)
	v.SetDefault("dashboard", true)
	v.SetDefault("log_level", "info")

	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file %s: %w", file, err)
		}
	} else {
		v.SetConfigName("optimizeplex")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("read config file: %w", err)
			}
		}
	}

	v.SetEnvPrefix("OPTIMIZEPLEX")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return &cfg, nil
}

// Normalize clamps out-of-range values instead of rejecting them, mirroring
// how the knobs behave on the command line.
func (c *Config) Normalize() {
	c.GPUWorkers = clampInt(c.GPUWorkers, 0, MaxGPUWorkers)
	c.CPUWorkers = clampInt(c.CPUWorkers, 0, MaxCPUWorkers)
	if c.CPUThreads < 1 {
		c.CPUThreads = 1
	}
	if c.GPUFilterThreads < 1 {
		c.GPUFilterThreads = 1
	}
	if c.CPUBudgetForGPU < 1 {
		c.CPUBudgetForGPU = 1
	}
	if c.Refresh < MinRefresh {
		c.Refresh = MinRefresh
	}
	if c.Refresh > MaxRefresh {
		c.Refresh = MaxRefresh
	}
}

// Validate checks the normalized knobs. Root is validated separately because
// only run/scan take one.
func (c *Config) Validate() error {
	if c.GPUWorkers == 0 && c.CPUWorkers == 0 {
		return ErrNoWorkers
	}
	if strings.TrimSpace(c.LogDir) == "" {
		return ErrLogDirRequired
	}
	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("%w: %q", ErrInvalidLogLevel, c.LogLevel)
	}
	return nil
}

// ValidateRoot resolves and checks the library root.
func (c *Config) ValidateRoot() error {
	if strings.TrimSpace(c.Root) == "" {
		return ErrRootRequired
	}
	info, err := os.Stat(c.Root)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrRootNotDirectory, c.Root)
	}
	if !info.IsDir() {
		return fmt.Errorf("%w: %s", ErrRootNotDirectory, c.Root)
	}
	return nil
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
