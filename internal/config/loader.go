package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/docker/go-units"
	toml "github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// Config holds runtime parameters for the daemon and CLI.
// Zero values mean "unspecified" and are replaced by package defaults
// downstream (manager.ManagerConfig, httpapi setters). Settings where 0 is a
// meaningful value are pointers; nil selects the default.
type Config struct {
	Addr         string `json:"addr" yaml:"addr" toml:"addr"`
	ModelPath    string `json:"model_path" yaml:"model_path" toml:"model_path"`
	ManifestPath string `json:"manifest_path" yaml:"manifest_path" toml:"manifest_path"`

	MaxConcurrentSessions int   `json:"max_concurrent_sessions" yaml:"max_concurrent_sessions" toml:"max_concurrent_sessions"`
	LoadTimeoutMs         int64 `json:"load_timeout_ms" yaml:"load_timeout_ms" toml:"load_timeout_ms"`
	// LeaseTimeoutMs is the default lease wait; 0 fails fast when the pool is full.
	LeaseTimeoutMs      *int64 `json:"lease_timeout_ms" yaml:"lease_timeout_ms" toml:"lease_timeout_ms"`
	GenerationTimeoutMs int64  `json:"generation_timeout_ms" yaml:"generation_timeout_ms" toml:"generation_timeout_ms"`
	// GenerationGraceMs is the unload grace; 0 forces generations at once.
	GenerationGraceMs *int64 `json:"generation_grace_ms" yaml:"generation_grace_ms" toml:"generation_grace_ms"`
	FailFastLoad      bool   `json:"fail_fast_load" yaml:"fail_fast_load" toml:"fail_fast_load"`
	// VerifyOnLoad re-hashes the mapped asset at load time; nil means true.
	VerifyOnLoad *bool `json:"verify_on_load" yaml:"verify_on_load" toml:"verify_on_load"`

	// MemoryPressureThreshold is a human size such as "1.5GiB"; it wins over
	// MemoryPressureThresholdBytes when both are set.
	MemoryPressureThreshold      string `json:"memory_pressure_threshold" yaml:"memory_pressure_threshold" toml:"memory_pressure_threshold"`
	MemoryPressureThresholdBytes uint64 `json:"memory_pressure_threshold_bytes" yaml:"memory_pressure_threshold_bytes" toml:"memory_pressure_threshold_bytes"`
	MonitorIntervalMs            int64  `json:"monitor_interval_ms" yaml:"monitor_interval_ms" toml:"monitor_interval_ms"`
	PressureSamples              int    `json:"pressure_samples" yaml:"pressure_samples" toml:"pressure_samples"`

	ContextSize    int      `json:"context_size" yaml:"context_size" toml:"context_size"`
	Threads        int      `json:"threads" yaml:"threads" toml:"threads"`
	BatchSize      int      `json:"batch_size" yaml:"batch_size" toml:"batch_size"`
	GPULayers      int      `json:"gpu_layers" yaml:"gpu_layers" toml:"gpu_layers"`
	MMap           *bool    `json:"mmap" yaml:"mmap" toml:"mmap"`
	SupportedArchs []string `json:"supported_archs" yaml:"supported_archs" toml:"supported_archs"`
	PromptTemplate string   `json:"prompt_template" yaml:"prompt_template" toml:"prompt_template"`

	LogLevel     string   `json:"log_level" yaml:"log_level" toml:"log_level"`
	MaxBodyBytes int64    `json:"max_body_bytes" yaml:"max_body_bytes" toml:"max_body_bytes"`
	CORSEnabled  bool     `json:"cors_enabled" yaml:"cors_enabled" toml:"cors_enabled"`
	CORSOrigins  []string `json:"cors_allowed_origins" yaml:"cors_allowed_origins" toml:"cors_allowed_origins"`
	CORSMethods  []string `json:"cors_allowed_methods" yaml:"cors_allowed_methods" toml:"cors_allowed_methods"`
	CORSHeaders  []string `json:"cors_allowed_headers" yaml:"cors_allowed_headers" toml:"cors_allowed_headers"`
}

// Load reads a configuration file based on its extension.
// Supports: .yaml/.yml, .json, .toml
func Load(path string) (Config, error) {
	var cfg Config
	if path == "" {
		return cfg, fmt.Errorf("empty config path")
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(b, &cfg)
	case ".json":
		err = json.Unmarshal(b, &cfg)
	case ".toml":
		err = toml.Unmarshal(b, &cfg)
	default:
		return cfg, fmt.Errorf("unsupported config extension: %s", ext)
	}
	if err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate rejects negative limits and unparsable sizes.
func (c Config) Validate() error {
	for name, v := range map[string]int64{
		"max_concurrent_sessions": int64(c.MaxConcurrentSessions),
		"load_timeout_ms":         c.LoadTimeoutMs,
		"lease_timeout_ms":        deref(c.LeaseTimeoutMs),
		"generation_timeout_ms":   c.GenerationTimeoutMs,
		"generation_grace_ms":     deref(c.GenerationGraceMs),
		"monitor_interval_ms":     c.MonitorIntervalMs,
		"pressure_samples":        int64(c.PressureSamples),
		"context_size":            int64(c.ContextSize),
		"threads":                 int64(c.Threads),
		"batch_size":              int64(c.BatchSize),
		"max_body_bytes":          c.MaxBodyBytes,
	} {
		if v < 0 {
			return fmt.Errorf("%s must be >= 0, got %d", name, v)
		}
	}
	if _, err := c.PressureThreshold(); err != nil {
		return err
	}
	return nil
}

// PressureThreshold returns the memory pressure threshold in bytes; 0 means
// pressure handling is off.
func (c Config) PressureThreshold() (uint64, error) {
	if s := strings.TrimSpace(c.MemoryPressureThreshold); s != "" {
		n, err := units.RAMInBytes(s)
		if err != nil {
			return 0, fmt.Errorf("memory_pressure_threshold: %w", err)
		}
		if n < 0 {
			return 0, fmt.Errorf("memory_pressure_threshold must be >= 0")
		}
		return uint64(n), nil
	}
	return c.MemoryPressureThresholdBytes, nil
}

// Verify reports whether load-time verification is on.
func (c Config) Verify() bool { return c.VerifyOnLoad == nil || *c.VerifyOnLoad }

// UseMMap reports whether the native runtime should mmap weights.
func (c Config) UseMMap() bool { return c.MMap == nil || *c.MMap }

// Millis converts a millisecond setting to a duration.
func Millis(ms int64) time.Duration { return time.Duration(ms) * time.Millisecond }

func deref(p *int64) int64 {
	if p == nil {
		return 0
	}
	return *p
}
