package main

import (
	"fmt"
	"strings"
	"time"

	"modelrt/internal/asset"
	"modelrt/internal/config"
	"modelrt/internal/manager"
	"modelrt/internal/native"
)

// managerConfig maps file config onto the manager's tunables.
func managerConfig(c config.Config) (manager.ManagerConfig, error) {
	threshold, err := c.PressureThreshold()
	if err != nil {
		return manager.ManagerConfig{}, err
	}
	mc := manager.ManagerConfig{
		MaxConcurrentSessions:   c.MaxConcurrentSessions,
		LoadTimeout:             config.Millis(c.LoadTimeoutMs),
		LeaseTimeout:            waitSetting(c.LeaseTimeoutMs),
		MemoryPressureThreshold: threshold,
		GenerationGrace:         waitSetting(c.GenerationGraceMs),
		GenerationTimeout:       config.Millis(c.GenerationTimeoutMs),
		FailFastLoad:            c.FailFastLoad,
		SkipLoadVerify:          !c.Verify(),
		MonitorInterval:         config.Millis(c.MonitorIntervalMs),
		PressureSamples:         c.PressureSamples,
		NativeOptions: native.Options{
			ContextSize: c.ContextSize,
			Threads:     c.Threads,
			BatchSize:   c.BatchSize,
			GPULayers:   c.GPULayers,
			NoMMap:      !c.UseMMap(),
		},
		SupportedArchs: c.SupportedArchs,
		PromptTemplate: c.PromptTemplate,
		Logger:         &log,
		Publisher:      manager.NewLogPublisher(&log),
	}
	if c.ManifestPath != "" {
		m, err := asset.LoadManifest(c.ManifestPath)
		if err != nil {
			return manager.ManagerConfig{}, fmt.Errorf("manifest: %w", err)
		}
		mc.Manifest = m
	}
	return mc, nil
}

// waitSetting maps an optional wait onto the manager's convention: unset
// keeps the default and an explicit 0 becomes manager.NoWait.
func waitSetting(ms *int64) time.Duration {
	switch {
	case ms == nil:
		return 0
	case *ms == 0:
		return manager.NoWait
	}
	return config.Millis(*ms)
}

// splitCSV splits a comma-separated flag value, dropping empty items.
func splitCSV(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
