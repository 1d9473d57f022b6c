package manager

import (
	"context"
	"testing"
	"time"
)

func newPressureManager(t *testing.T, samples int) (*Manager, *fakeProbe) {
	t.Helper()
	probe := newFakeProbe()
	m, _ := newTestManager(t, newFakeBackend("a", "b"), func(c *ManagerConfig) {
		c.Memory = probe
		c.MemoryPressureThreshold = 1000
		c.PressureSamples = samples
	})
	loadTestModel(t, m)
	return m, probe
}

func TestObserve_ReportsCounts(t *testing.T) {
	m, probe := newPressureManager(t, 3)
	probe.resident.Store(500)
	s := leaseReady(t, m)
	if _, err := m.Generate(context.Background(), s, Request{Prompt: "p", MaxTokens: 1}); err != nil {
		t.Fatalf("Generate: %v", err)
	}
	leaseReady(t, m)
	h := m.Health()
	if h.RuntimeState != StateReady || h.ActiveSessions != 2 || h.GeneratingSessions != 1 {
		t.Fatalf("snapshot=%+v", h)
	}
	if h.MemoryUsedBytes != 500 || h.MemoryThresholdBytes != 1000 || h.UnderPressure {
		t.Fatalf("memory fields=%+v", h)
	}
	if h.Model == "" {
		t.Fatalf("model name missing")
	}
}

func TestCheck_NoThresholdNoAction(t *testing.T) {
	probe := newFakeProbe()
	probe.resident.Store(1 << 40)
	m, _ := newTestManager(t, newFakeBackend("a"), func(c *ManagerConfig) { c.Memory = probe })
	loadTestModel(t, m)
	leaseReady(t, m)
	for i := 0; i < 5; i++ {
		m.Monitor().Check(context.Background())
	}
	if h := m.Health(); h.Evictions != 0 || h.RuntimeState != StateReady || h.UnderPressure {
		t.Fatalf("monitor acted without threshold: %+v", h)
	}
}

func TestCheck_EscalatesEvictThenUnload(t *testing.T) {
	m, probe := newPressureManager(t, 2)
	older := leaseReady(t, m)
	time.Sleep(2 * time.Millisecond)
	newer := leaseReady(t, m)
	probe.resident.Store(2000)
	mon := m.Monitor()

	if h := mon.Check(context.Background()); !h.UnderPressure || h.Evictions != 0 {
		t.Fatalf("a single sample must not act: %+v", h)
	}
	h := mon.Check(context.Background())
	if h.Evictions != 1 || h.Recommendation != RecommendEvict {
		t.Fatalf("sustained pressure should evict: %+v", h)
	}
	if older.State() != SessionClosed || newer.State() != SessionIdle {
		t.Fatalf("wrong victim: older=%s newer=%s", older.State(), newer.State())
	}

	mon.Check(context.Background())
	h = mon.Check(context.Background())
	if h.RuntimeState != StateUnloaded || h.Recommendation != RecommendReload {
		t.Fatalf("persisting pressure should unload: %+v", h)
	}
	if newer.State() != SessionClosed {
		t.Fatalf("sessions should be closed by unload, got %s", newer.State())
	}

	// The recommendation stays until the runtime is ready again.
	probe.resident.Store(10)
	if h := mon.Check(context.Background()); h.Recommendation != RecommendReload {
		t.Fatalf("recommendation dropped early: %+v", h)
	}
}

func TestCheck_GeneratingSessionsOnlyRecommend(t *testing.T) {
	m, probe := newPressureManager(t, 1)
	s := leaseReady(t, m)
	ts, err := m.Generate(context.Background(), s, Request{Prompt: "p", MaxTokens: 2})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	defer ts.Close()
	probe.resident.Store(5000)

	h := m.Monitor().Check(context.Background())
	if h.Recommendation != RecommendReload {
		t.Fatalf("expected reload recommendation: %+v", h)
	}
	if h.RuntimeState != StateReady || s.State() != SessionGenerating {
		t.Fatalf("monitor must not touch generating sessions: runtime=%s session=%s", h.RuntimeState, s.State())
	}
}

func TestCheck_PressureMustBeConsecutive(t *testing.T) {
	m, probe := newPressureManager(t, 2)
	leaseReady(t, m)
	mon := m.Monitor()
	for i := 0; i < 3; i++ {
		probe.resident.Store(2000)
		mon.Check(context.Background())
		probe.resident.Store(10)
		mon.Check(context.Background())
	}
	if h := m.Health(); h.Evictions != 0 {
		t.Fatalf("intermittent pressure triggered eviction: %+v", h)
	}
}

func TestMonitorRun_StopsOnCancel(t *testing.T) {
	m, _ := newTestManager(t, newFakeBackend("a"), func(c *ManagerConfig) { c.MonitorInterval = 5 * time.Millisecond })
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Monitor().Run(ctx) }()
	time.Sleep(20 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatalf("Run did not return after cancel")
	}
}
