package manager

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"modelrt/internal/asset"
	"modelrt/internal/native"
)

// createModelFile writes content to dir/name and returns its path.
func createModelFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatalf("write model: %v", err)
	}
	return p
}

// fakeBackend is an in-memory native runtime. Each sequence replays tokens.
type fakeBackend struct {
	mu         sync.Mutex
	loadErr    error
	loadDelay  time.Duration
	startErr   error
	tokens     []string
	stepDelay  time.Duration
	fatalAt    int // index at which Next fails fatally; <0 disables
	loads      int
	closed     int
	lastPrompt string
	lastSize   int
	lastOpts   native.Options
	closeOrder []string // "sequence" and "model", in close order
}

func newFakeBackend(tokens ...string) *fakeBackend {
	return &fakeBackend{tokens: tokens, fatalAt: -1}
}

func (b *fakeBackend) Name() string { return "fake" }

func (b *fakeBackend) Load(ctx context.Context, src native.Source) (native.Model, error) {
	b.mu.Lock()
	b.loads++
	b.lastSize = len(src.Data)
	b.lastOpts = src.Options
	delay, err := b.loadDelay, b.loadErr
	b.mu.Unlock()
	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}
	return &fakeModel{b: b}, nil
}

func (b *fakeBackend) set(f func(b *fakeBackend)) {
	b.mu.Lock()
	f(b)
	b.mu.Unlock()
}

func (b *fakeBackend) record(what string) {
	b.mu.Lock()
	b.closeOrder = append(b.closeOrder, what)
	b.mu.Unlock()
}

func (b *fakeBackend) closes() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.closeOrder...)
}

func (b *fakeBackend) counts() (loads, closed int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.loads, b.closed
}

type fakeModel struct {
	b      *fakeBackend
	closed atomic.Bool
}

func (m *fakeModel) Start(prompt string, params native.Params) (native.Sequence, error) {
	m.b.mu.Lock()
	defer m.b.mu.Unlock()
	if m.closed.Load() {
		return nil, fmt.Errorf("%w: model closed", native.ErrFatal)
	}
	if m.b.startErr != nil {
		return nil, m.b.startErr
	}
	m.b.lastPrompt = prompt
	toks := append([]string(nil), m.b.tokens...)
	return &fakeSeq{b: m.b, tokens: toks, delay: m.b.stepDelay, fatalAt: m.b.fatalAt}, nil
}

func (m *fakeModel) Close() error {
	if m.closed.CompareAndSwap(false, true) {
		m.b.mu.Lock()
		m.b.closed++
		m.b.closeOrder = append(m.b.closeOrder, "model")
		m.b.mu.Unlock()
	}
	return nil
}

type fakeSeq struct {
	b       *fakeBackend
	tokens  []string
	delay   time.Duration
	fatalAt int
	i       int
	closed  atomic.Bool
}

func (s *fakeSeq) Next(ctx context.Context) (native.Token, error) {
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return native.Token{}, ctx.Err()
		}
	}
	if err := ctx.Err(); err != nil {
		return native.Token{}, err
	}
	if s.fatalAt >= 0 && s.i == s.fatalAt {
		return native.Token{}, fmt.Errorf("%w: decode failed", native.ErrFatal)
	}
	if s.i >= len(s.tokens) {
		return native.Token{}, io.EOF
	}
	t := native.Token{Index: s.i, Text: s.tokens[s.i]}
	s.i++
	return t, nil
}

func (s *fakeSeq) Close() error {
	if s.closed.CompareAndSwap(false, true) {
		s.b.record("sequence")
	}
	return nil
}

// fakeProbe reports fixed memory figures.
type fakeProbe struct {
	resident  atomic.Uint64
	available atomic.Uint64
}

func newFakeProbe() *fakeProbe {
	p := &fakeProbe{}
	p.available.Store(1 << 40)
	return p
}

func (p *fakeProbe) ProcessResident() (uint64, error) { return p.resident.Load(), nil }
func (p *fakeProbe) HostAvailable() (uint64, error)   { return p.available.Load(), nil }

// newTestManager builds a manager with an isolated registry, a fake probe and
// short grace periods. mut may adjust the config.
func newTestManager(t *testing.T, b *fakeBackend, mut func(*ManagerConfig)) (*Manager, *MemoryPublisher) {
	t.Helper()
	pub := NewMemoryPublisher()
	cfg := ManagerConfig{
		Backend:               b,
		Registry:              NewHandleRegistry(),
		Memory:                newFakeProbe(),
		Publisher:             pub,
		MaxConcurrentSessions: 2,
		GenerationGrace:       50 * time.Millisecond,
		LoadTimeout:           2 * time.Second,
	}
	if mut != nil {
		mut(&cfg)
	}
	m := NewWithConfig(cfg)
	t.Cleanup(func() { _ = m.Close(context.Background()) })
	return m, pub
}

// resolveTestModel writes a small raw model file and resolves it.
func resolveTestModel(t *testing.T, m *Manager, name string) asset.ModelAsset {
	t.Helper()
	p := createModelFile(t, t.TempDir(), name, "not really weights "+name)
	a, err := m.ResolveAsset(p)
	if err != nil {
		t.Fatalf("ResolveAsset: %v", err)
	}
	return a
}

// loadTestModel resolves and loads a small model file.
func loadTestModel(t *testing.T, m *Manager) asset.ModelAsset {
	t.Helper()
	a := resolveTestModel(t, m, "tiny.Q4_0.bin")
	if err := m.LoadRuntime(context.Background(), a); err != nil {
		t.Fatalf("LoadRuntime: %v", err)
	}
	return a
}

// drain reads s to the end and returns the emitted texts and the final error.
func drain(t *testing.T, s *TokenStream) ([]string, error) {
	t.Helper()
	var out []string
	for i := 0; i < 1000; i++ {
		tok, err := s.Next(context.Background())
		if err != nil {
			return out, err
		}
		out = append(out, tok.Text)
	}
	t.Fatalf("stream did not terminate")
	return nil, nil
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, d time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(d)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met within %s", d)
}
