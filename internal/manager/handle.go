package manager

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"slices"
	"sync"
	"time"

	"github.com/docker/go-units"
	"github.com/rs/zerolog"

	"modelrt/internal/asset"
	"modelrt/internal/native"
)

// drainPoll is how often Unload re-checks in-flight generations.
const drainPoll = 10 * time.Millisecond

// handleHooks let the owner react to lifecycle transitions. They are called
// without the handle lock held.
type handleHooks struct {
	onUnloadStart func()
	onForce       func()
	// onRelease closes every open native sequence and returns how many
	// were open. The model is closed only after it returns.
	onRelease  func() int
	onUnloaded func()
	onFault    func(err error)
}

// Handle owns the lifecycle of the single loaded native model.
type Handle struct {
	cfg   ManagerConfig
	log   *zerolog.Logger
	pub   EventPublisher
	hooks handleHooks

	mu          sync.Mutex
	state       State
	changed     chan struct{}
	asset       asset.ModelAsset
	model       native.Model
	mapping     *native.Mapping
	loadedAt    time.Time
	failure     error
	lastFailure string
	inflight    int
	epoch       uint64
	loadsTotal  uint64
}

func newHandle(cfg ManagerConfig) *Handle {
	return &Handle{
		cfg:     cfg,
		log:     cfg.Logger,
		pub:     cfg.Publisher,
		state:   StateUnloaded,
		changed: make(chan struct{}),
	}
}

// setStateLocked records a transition and wakes everyone waiting on one.
func (h *Handle) setStateLocked(s State) {
	h.state = s
	close(h.changed)
	h.changed = make(chan struct{})
}

func waitChange(ctx context.Context, ch <-chan struct{}) error {
	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Load brings the handle from unloaded to ready for asset a.
//
// A Load racing an in-flight load waits for, and returns, that load's outcome
// (or fails fast with RuntimeNotReady when FailFastLoad is set). A failed
// handle keeps returning its failure until it is unloaded.
func (h *Handle) Load(ctx context.Context, a asset.ModelAsset) error {
	if a.IsZero() {
		return ErrLoadFailed("no asset", nil)
	}
	for {
		h.mu.Lock()
		switch h.state {
		case StateReady:
			cur := h.asset
			h.mu.Unlock()
			if cur.Same(a) {
				return nil
			}
			return ErrLoadFailed("another model is loaded", fmt.Errorf("%s is live", cur.Name))
		case StateFailed:
			err := h.failure
			h.mu.Unlock()
			return err
		case StateLoading, StateUnloading:
			if h.state == StateLoading && h.cfg.FailFastLoad {
				h.mu.Unlock()
				return runtimeNotReadyError{state: StateLoading}
			}
			ch := h.changed
			h.mu.Unlock()
			if err := waitChange(ctx, ch); err != nil {
				return err
			}
		case StateUnloaded:
			if err := h.cfg.Registry.claim(h); err != nil {
				h.mu.Unlock()
				return ErrLoadFailed("runtime busy", err)
			}
			h.asset = a
			h.failure = nil
			h.loadsTotal++
			h.setStateLocked(StateLoading)
			h.mu.Unlock()
			return h.runLoad(ctx, a)
		}
	}
}

func (h *Handle) runLoad(ctx context.Context, a asset.ModelAsset) error {
	start := time.Now()
	h.pub.Publish(Event{Name: "load_start", Model: a.Name, Fields: map[string]any{"size": a.Size}})
	h.log.Info().Str("event", "load_start").Str("model", a.Name).Str("size", a.HumanSize()).Msg("loading runtime")

	model, mapping, err := h.loadNative(ctx, a)

	h.mu.Lock()
	if err != nil {
		h.failure = err
		h.lastFailure = err.Error()
		h.setStateLocked(StateFailed)
		h.mu.Unlock()
		h.pub.Publish(Event{Name: "load_failed", Model: a.Name, Fields: map[string]any{"error": err.Error()}})
		h.log.Error().Err(err).Str("event", "load_failed").Str("model", a.Name).Msg("runtime load failed")
		return err
	}
	h.model = model
	h.mapping = mapping
	h.loadedAt = time.Now()
	h.epoch++
	h.setStateLocked(StateReady)
	h.mu.Unlock()

	dur := time.Since(start)
	h.pub.Publish(Event{Name: "load_ready", Model: a.Name, Fields: map[string]any{"duration_ms": dur.Milliseconds()}})
	h.log.Info().Str("event", "load_ready").Str("model", a.Name).Dur("duration", dur).Msg("runtime ready")
	return nil
}

// loadNative runs preflight checks, maps the asset and hands it to the
// backend. The native load is bounded by LoadTimeout but not by the caller's
// cancellation, so a disconnecting client cannot poison the handle.
func (h *Handle) loadNative(ctx context.Context, a asset.ModelAsset) (native.Model, *native.Mapping, error) {
	if archs := h.cfg.SupportedArchs; len(archs) > 0 && !slices.Contains(archs, runtime.GOARCH) {
		return nil, nil, ErrLoadFailed("incompatible ABI", fmt.Errorf("host arch %s not in %v", runtime.GOARCH, archs))
	}
	if avail, err := h.cfg.Memory.HostAvailable(); err != nil {
		h.log.Warn().Err(err).Msg("host memory probe failed; skipping memory preflight")
	} else if avail > 0 && uint64(a.Size) > avail {
		return nil, nil, ErrLoadFailed("insufficient memory",
			fmt.Errorf("asset needs %s, host has %s available", a.HumanSize(), units.BytesSize(float64(avail))))
	}

	mapping, err := native.Map(a.Path)
	if err != nil {
		return nil, nil, ErrLoadFailed("map failed", err)
	}
	if mapping.Size() != a.Size {
		_ = mapping.Close()
		return nil, nil, ErrLoadFailed("checksum mismatch", fmt.Errorf("mapped %d bytes, asset has %d", mapping.Size(), a.Size))
	}
	if !h.cfg.SkipLoadVerify && a.Digest != "" {
		if err := verifyMapping(a, mapping); err != nil {
			_ = mapping.Close()
			return nil, nil, err
		}
	}

	lctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), h.cfg.LoadTimeout)
	defer cancel()

	type result struct {
		model native.Model
		err   error
	}
	ch := make(chan result, 1)
	src := native.Source{Path: a.Path, Data: mapping.Data(), Options: h.cfg.NativeOptions}
	go func() {
		m, err := h.cfg.Backend.Load(lctx, src)
		ch <- result{model: m, err: err}
	}()

	select {
	case r := <-ch:
		if r.err != nil {
			_ = mapping.Close()
			if errors.Is(r.err, native.ErrUnavailable) {
				return nil, nil, ErrLoadFailed("dependency unavailable", r.err)
			}
			return nil, nil, ErrLoadFailed("native load", r.err)
		}
		return r.model, mapping, nil
	case <-lctx.Done():
		// The backend may still finish; release whatever it produces.
		go func() {
			r := <-ch
			if r.model != nil {
				_ = r.model.Close()
			}
			_ = mapping.Close()
		}()
		return nil, nil, ErrLoadFailed("load timeout", fmt.Errorf("exceeded %s", h.cfg.LoadTimeout))
	}
}

func verifyMapping(a asset.ModelAsset, m *native.Mapping) error {
	if err := a.Digest.Validate(); err != nil {
		return ErrLoadFailed("checksum mismatch", err)
	}
	v := a.Digest.Verifier()
	if _, err := v.Write(m.Data()); err != nil {
		return ErrLoadFailed("checksum mismatch", err)
	}
	if !v.Verified() {
		return ErrLoadFailed("checksum mismatch", fmt.Errorf("mapped content does not match %s", a.Digest))
	}
	return nil
}

// Unload drains generations and releases native memory. It is a no-op on an
// unloaded handle and waits for an in-flight load or unload to settle first.
func (h *Handle) Unload(ctx context.Context) error {
	name, ok, err := h.beginUnload(ctx)
	if err != nil || !ok {
		return err
	}
	h.pub.Publish(Event{Name: "unload_start", Model: name})
	h.log.Info().Str("event", "unload_start").Str("model", name).Msg("unloading runtime")
	if h.hooks.onUnloadStart != nil {
		h.hooks.onUnloadStart()
	}

	if !h.drain(ctx) {
		n := h.Inflight()
		h.pub.Publish(Event{Name: "unload_forced", Model: name, Fields: map[string]any{"inflight": n}})
		h.log.Warn().Str("event", "unload_forced").Int("inflight", n).Msg("grace expired; cancelling generations")
		if h.hooks.onForce != nil {
			h.hooks.onForce()
		}
		if !h.drain(ctx) {
			h.log.Warn().Int("inflight", h.Inflight()).Msg("generations did not stop; closing their sequences")
		}
	}
	if h.hooks.onRelease != nil {
		if n := h.hooks.onRelease(); n > 0 {
			h.log.Warn().Int("sequences", n).Msg("closed open sequences before releasing runtime")
		}
	}
	if h.hooks.onUnloaded != nil {
		h.hooks.onUnloaded()
	}

	h.mu.Lock()
	model, mapping := h.model, h.mapping
	h.model, h.mapping = nil, nil
	h.mu.Unlock()

	var errs []error
	if model != nil {
		if err := model.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close model: %w", err))
		}
	}
	if err := mapping.Close(); err != nil {
		errs = append(errs, fmt.Errorf("unmap asset: %w", err))
	}

	h.mu.Lock()
	h.asset = asset.ModelAsset{}
	h.failure = nil
	h.inflight = 0
	h.loadedAt = time.Time{}
	h.setStateLocked(StateUnloaded)
	h.mu.Unlock()
	h.cfg.Registry.release(h)

	h.pub.Publish(Event{Name: "unload_done", Model: name})
	h.log.Info().Str("event", "unload_done").Str("model", name).Msg("runtime unloaded")
	return errors.Join(errs...)
}

// beginUnload moves a ready or failed handle to unloading. ok is false when
// there is nothing to unload.
func (h *Handle) beginUnload(ctx context.Context) (name string, ok bool, err error) {
	for {
		h.mu.Lock()
		switch h.state {
		case StateUnloaded:
			h.mu.Unlock()
			return "", false, nil
		case StateLoading, StateUnloading:
			ch := h.changed
			h.mu.Unlock()
			if err := waitChange(ctx, ch); err != nil {
				return "", false, err
			}
		default:
			name = h.asset.Name
			h.setStateLocked(StateUnloading)
			h.mu.Unlock()
			return name, true, nil
		}
	}
}

// drain waits up to the generation grace for in-flight generations to end.
func (h *Handle) drain(ctx context.Context) bool {
	deadline := time.Now().Add(max(h.cfg.GenerationGrace, 0))
	for h.Inflight() > 0 {
		if time.Now().After(deadline) {
			return false
		}
		select {
		case <-ctx.Done():
			return false
		case <-time.After(drainPoll):
		}
	}
	return true
}

// beginGeneration takes a generation reference on the loaded model. The
// returned epoch must be passed back to endGeneration.
func (h *Handle) beginGeneration() (native.Model, uint64, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.state != StateReady {
		return nil, 0, runtimeNotReadyError{state: h.state}
	}
	h.inflight++
	return h.model, h.epoch, nil
}

// endGeneration drops a reference; references from a previous load are ignored.
func (h *Handle) endGeneration(epoch uint64) {
	h.mu.Lock()
	if epoch == h.epoch && h.inflight > 0 {
		h.inflight--
	}
	h.mu.Unlock()
}

// fault marks a ready handle failed after a fatal native error.
func (h *Handle) fault(cause error) {
	h.mu.Lock()
	if h.state != StateReady {
		h.mu.Unlock()
		return
	}
	name := h.asset.Name
	h.failure = ErrLoadFailed("runtime fault", cause)
	h.lastFailure = h.failure.Error()
	h.setStateLocked(StateFailed)
	h.mu.Unlock()

	h.pub.Publish(Event{Name: "runtime_fault", Model: name, Fields: map[string]any{"error": cause.Error()}})
	h.log.Error().Err(cause).Str("event", "runtime_fault").Str("model", name).Msg("native runtime fault")
	if h.hooks.onFault != nil {
		h.hooks.onFault(cause)
	}
}

func (h *Handle) State() State {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

// Asset returns the asset being loaded or served; zero when unloaded.
func (h *Handle) Asset() asset.ModelAsset {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.asset
}

// Failure is the sticky error of a failed handle.
func (h *Handle) Failure() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.failure
}

// LastFailure survives unloads so diagnostics can still show it.
func (h *Handle) LastFailure() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.lastFailure
}

func (h *Handle) LoadedAt() time.Time {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.loadedAt
}

func (h *Handle) Inflight() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.inflight
}

func (h *Handle) LoadsTotal() uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.loadsTotal
}
