package manager

import (
	"context"
	"sync"
	"time"

	"github.com/docker/go-units"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// Monitor samples memory and escalates under sustained pressure: first it
// evicts the oldest idle session, then it unloads the runtime (or, when
// generations are running, only recommends a reload).
type Monitor struct {
	handle    *Handle
	pool      *Pool
	probe     MemoryProbe
	threshold uint64
	samples   int
	interval  time.Duration
	log       *zerolog.Logger
	pub       EventPublisher
	warn      rate.Sometimes

	mu    sync.Mutex
	over  int
	stage int
	rec   Recommendation
}

func newMonitor(h *Handle, p *Pool, cfg ManagerConfig) *Monitor {
	return &Monitor{
		handle:    h,
		pool:      p,
		probe:     cfg.Memory,
		threshold: cfg.MemoryPressureThreshold,
		samples:   cfg.PressureSamples,
		interval:  cfg.MonitorInterval,
		log:       cfg.Logger,
		pub:       cfg.Publisher,
		warn:      rate.Sometimes{Interval: time.Minute},
	}
}

// Observe returns a snapshot without acting on it.
func (m *Monitor) Observe() HealthSnapshot {
	used, err := m.probe.ProcessResident()
	if err != nil {
		m.log.Debug().Err(err).Msg("memory probe failed")
	}
	m.mu.Lock()
	rec := m.rec
	m.mu.Unlock()
	return HealthSnapshot{
		Time:                 time.Now().UTC(),
		RuntimeState:         m.handle.State(),
		Model:                m.handle.Asset().Name,
		MemoryUsedBytes:      used,
		MemoryThresholdBytes: m.threshold,
		UnderPressure:        m.threshold > 0 && used > m.threshold,
		ActiveSessions:       m.pool.Active(),
		GeneratingSessions:   m.pool.Generating(),
		Waiters:              m.pool.Waiters(),
		LastFailure:          m.handle.LastFailure(),
		Evictions:            m.pool.evictions.Load(),
		ForcedCancellations:  m.pool.forced.Load(),
		Recommendation:       rec,
	}
}

// Check samples memory once and applies the escalation policy.
func (m *Monitor) Check(ctx context.Context) HealthSnapshot {
	snap := m.Observe()
	if m.threshold == 0 {
		return snap
	}

	m.mu.Lock()
	if !snap.UnderPressure {
		m.over = 0
		m.stage = 0
		if snap.RuntimeState == StateReady {
			m.rec = RecommendNone
		}
		m.mu.Unlock()
		snap.Recommendation = m.recommendation()
		return snap
	}
	m.over++
	if m.over < m.samples {
		m.mu.Unlock()
		return snap
	}
	m.over = 0
	m.stage++
	escalate := m.stage > 1
	m.mu.Unlock()

	m.warn.Do(func() {
		m.log.Warn().Str("event", "memory_pressure").
			Str("used", units.BytesSize(float64(snap.MemoryUsedBytes))).
			Str("threshold", units.BytesSize(float64(m.threshold))).
			Msg("sustained memory pressure")
	})
	m.pub.Publish(Event{Name: "memory_pressure", Model: snap.Model, Fields: map[string]any{"used": snap.MemoryUsedBytes, "threshold": m.threshold}})

	if !escalate {
		if _, ok := m.pool.EvictOldestIdle(); ok {
			m.setRecommendation(RecommendEvict)
			return m.Observe()
		}
		// Nothing idle to evict; go straight to the next step.
	}

	m.mu.Lock()
	m.stage = 0
	m.mu.Unlock()
	m.setRecommendation(RecommendReload)
	if m.pool.Generating() > 0 {
		m.log.Warn().Int("generating", m.pool.Generating()).Msg("memory pressure persists; reload recommended")
		return m.Observe()
	}
	if st := m.handle.State(); st == StateReady || st == StateFailed {
		m.log.Warn().Msg("memory pressure persists; unloading runtime")
		if err := m.handle.Unload(ctx); err != nil {
			m.log.Error().Err(err).Msg("unload under pressure failed")
		}
	}
	return m.Observe()
}

func (m *Monitor) setRecommendation(r Recommendation) {
	m.mu.Lock()
	m.rec = r
	m.mu.Unlock()
}

func (m *Monitor) recommendation() Recommendation {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rec
}

// Run calls Check every interval until ctx is done.
func (m *Monitor) Run(ctx context.Context) error {
	t := time.NewTicker(m.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			m.Check(ctx)
		}
	}
}
