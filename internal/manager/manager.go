package manager

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"modelrt/internal/asset"
)

// Manager wires the resolver, runtime handle, session pool, generation
// pipeline and health monitor around one native model.
type Manager struct {
	cfg      ManagerConfig
	log      *zerolog.Logger
	resolver *asset.Resolver
	handle   *Handle
	pool     *Pool
	pipeline *Pipeline
	monitor  *Monitor

	mu      sync.Mutex
	current asset.ModelAsset
	closed  bool
}

// NewWithConfig constructs a Manager, applying package defaults for unset
// fields.
func NewWithConfig(cfg ManagerConfig) *Manager {
	cfg = cfg.withDefaults()
	h := newHandle(cfg)
	p := newPool(h, cfg)
	pl := newPipeline(h, p, cfg)
	h.hooks = handleHooks{
		onUnloadStart: func() { p.rejectWaiters(runtimeNotReadyError{state: StateUnloading}) },
		onForce:       func() { p.cancelGenerating() },
		onRelease:     pl.releaseAll,
		onUnloaded:    p.closeAll,
		onFault: func(error) {
			p.cancelGenerating()
			p.rejectWaiters(runtimeNotReadyError{state: StateFailed})
		},
	}
	return &Manager{
		cfg:      cfg,
		log:      cfg.Logger,
		resolver: asset.NewResolver(cfg.Manifest, cfg.Logger),
		handle:   h,
		pool:     p,
		pipeline: pl,
		monitor:  newMonitor(h, p, cfg),
	}
}

// ResolveAsset locates and validates a model file.
func (m *Manager) ResolveAsset(path string) (asset.ModelAsset, error) {
	return m.resolver.Resolve(path)
}

// LoadRuntime loads a into the native runtime.
func (m *Manager) LoadRuntime(ctx context.Context, a asset.ModelAsset) error {
	if m.isClosed() {
		return runtimeNotReadyError{state: StateUnloaded}
	}
	if err := m.handle.Load(ctx, a); err != nil {
		return err
	}
	m.mu.Lock()
	m.current = a
	m.mu.Unlock()
	return nil
}

// UnloadRuntime drains sessions and releases the runtime.
func (m *Manager) UnloadRuntime(ctx context.Context) error {
	return m.handle.Unload(ctx)
}

// Reload unloads and loads the last successfully loaded asset again. The
// asset is re-resolved so on-disk changes are picked up.
func (m *Manager) Reload(ctx context.Context) error {
	m.mu.Lock()
	prev := m.current
	m.mu.Unlock()
	if prev.IsZero() {
		return ErrLoadFailed("nothing to reload", nil)
	}
	if err := m.handle.Unload(ctx); err != nil {
		return err
	}
	a, err := m.resolver.Resolve(prev.Path)
	if err != nil {
		return err
	}
	return m.LoadRuntime(ctx, a)
}

// LeaseSession leases a session slot. A negative timeout uses the configured
// lease timeout; 0 fails immediately when the pool is full.
func (m *Manager) LeaseSession(ctx context.Context, timeout time.Duration) (*Session, error) {
	if timeout < 0 {
		timeout = m.LeaseTimeout()
	}
	return m.pool.Lease(ctx, timeout)
}

// Session looks up a leased session by id.
func (m *Manager) Session(id string) (*Session, bool) { return m.pool.Get(id) }

// ReleaseSession returns s to the pool. Releasing twice is a no-op.
func (m *Manager) ReleaseSession(s *Session) { m.pool.Release(s) }

// Generate starts a lazy generation on s.
func (m *Manager) Generate(ctx context.Context, s *Session, req Request) (*TokenStream, error) {
	return m.pipeline.Generate(ctx, s, req)
}

// Cancel asks the running generation on s to stop.
func (m *Manager) Cancel(s *Session) error { return m.pipeline.Cancel(s) }

// Health returns a resource snapshot.
func (m *Manager) Health() HealthSnapshot { return m.monitor.Observe() }

// Monitor exposes the health monitor so callers can run it.
func (m *Manager) Monitor() *Monitor { return m.monitor }

// State is the runtime handle state.
func (m *Manager) State() State { return m.handle.State() }

// Ready reports whether generations can be started.
func (m *Manager) Ready() bool { return m.handle.State() == StateReady }

// LeaseTimeout is the default lease wait.
func (m *Manager) LeaseTimeout() time.Duration { return max(m.cfg.LeaseTimeout, 0) }

func (m *Manager) isClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// Close unloads the runtime and refuses further loads.
func (m *Manager) Close(ctx context.Context) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.mu.Unlock()
	err := m.handle.Unload(ctx)
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		m.log.Warn().Err(err).Msg("close interrupted before unload finished")
	}
	return err
}
