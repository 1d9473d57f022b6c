package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"modelrt/internal/manager"
	"modelrt/internal/native"
	"modelrt/pkg/types"
)

// mockService is a scripted Service.
type mockService struct {
	mu       sync.Mutex
	ready    bool
	status   types.StatusResponse
	health   manager.HealthSnapshot
	caps     manager.Capabilities
	asset    types.Asset
	session  types.Session
	err      error
	tokens   []string
	genErr   error // returned after all tokens are emitted
	finish   manager.FinishReason
	released []string
	cancels  []string
	leaseTO  time.Duration
	lastReq  manager.Request
	loadPath string
}

func (m *mockService) ResolveAsset(path string) (types.Asset, error) {
	if m.err != nil {
		return types.Asset{}, m.err
	}
	a := m.asset
	a.Path = path
	return a, nil
}

func (m *mockService) Load(ctx context.Context, path string) (types.Asset, error) {
	m.mu.Lock()
	m.loadPath = path
	m.mu.Unlock()
	return m.ResolveAsset(path)
}

func (m *mockService) Unload(ctx context.Context) error { return m.err }
func (m *mockService) Reload(ctx context.Context) error { return m.err }

func (m *mockService) Lease(ctx context.Context, timeout time.Duration) (types.Session, error) {
	m.mu.Lock()
	m.leaseTO = timeout
	m.mu.Unlock()
	if m.err != nil {
		return types.Session{}, m.err
	}
	return m.session, nil
}

func (m *mockService) Release(id string) error {
	if m.err != nil {
		return m.err
	}
	m.mu.Lock()
	m.released = append(m.released, id)
	m.mu.Unlock()
	return nil
}

func (m *mockService) Generate(ctx context.Context, id string, req manager.Request, emit func(native.Token) error) (GenerateResult, error) {
	m.mu.Lock()
	m.lastReq = req
	m.mu.Unlock()
	if m.err != nil {
		return GenerateResult{}, m.err
	}
	var text strings.Builder
	for i, s := range m.tokens {
		if err := emit(native.Token{Index: i, Text: s}); err != nil {
			return GenerateResult{}, err
		}
		text.WriteString(s)
	}
	return GenerateResult{FinishReason: m.finish, Text: text.String(), Tokens: len(m.tokens)}, m.genErr
}

func (m *mockService) Cancel(id string) error {
	if m.err != nil {
		return m.err
	}
	m.mu.Lock()
	m.cancels = append(m.cancels, id)
	m.mu.Unlock()
	return nil
}

func (m *mockService) Health() manager.HealthSnapshot { return m.health }
func (m *mockService) Status() types.StatusResponse { return m.status }
func (m *mockService) Capabilities() manager.Capabilities { return m.caps }
func (m *mockService) Ready() bool { return m.ready }

type mockHTTPError struct {
	msg  string
	code int
}

func (e mockHTTPError) Error() string   { return e.msg }
func (e mockHTTPError) StatusCode() int { return e.code }

// do sends a request through NewMux(svc). A non-empty body is sent as JSON.
func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = bytes.NewBufferString(body)
	}
	req := httptest.NewRequest(method, path, rd)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

// ndjson splits a streamed body into raw lines.
func ndjson(t *testing.T, body []byte) []json.RawMessage {
	t.Helper()
	var out []json.RawMessage
	for _, line := range bytes.Split(bytes.TrimSpace(body), []byte("\n")) {
		if len(line) == 0 {
			continue
		}
		out = append(out, json.RawMessage(line))
	}
	return out
}

func lastFinal(t *testing.T, body []byte) types.FinalLine {
	t.Helper()
	lines := ndjson(t, body)
	if len(lines) == 0 {
		t.Fatalf("empty stream")
	}
	var f types.FinalLine
	if err := json.Unmarshal(lines[len(lines)-1], &f); err != nil {
		t.Fatalf("final line: %v", err)
	}
	if !f.Done {
		t.Fatalf("last line is not final: %s", lines[len(lines)-1])
	}
	return f
}

// tokenBackend is a minimal native backend replaying fixed tokens.
type tokenBackend struct {
	tokens []string
	delay  time.Duration
}

func (b *tokenBackend) Name() string { return "test" }

func (b *tokenBackend) Load(ctx context.Context, src native.Source) (native.Model, error) {
	return tokenModel{b: b}, nil
}

type tokenModel struct{ b *tokenBackend }

func (m tokenModel) Start(prompt string, p native.Params) (native.Sequence, error) {
	return &tokenSeq{b: m.b}, nil
}

func (m tokenModel) Close() error { return nil }

type tokenSeq struct {
	b *tokenBackend
	i int
}

func (s *tokenSeq) Next(ctx context.Context) (native.Token, error) {
	if s.b.delay > 0 {
		select {
		case <-time.After(s.b.delay):
		case <-ctx.Done():
			return native.Token{}, ctx.Err()
		}
	}
	if s.i >= len(s.b.tokens) {
		return native.Token{}, io.EOF
	}
	t := native.Token{Index: s.i, Text: s.b.tokens[s.i]}
	s.i++
	return t, nil
}

func (s *tokenSeq) Close() error { return nil }

type plentyMemory struct{}

func (plentyMemory) ProcessResident() (uint64, error) { return 1 << 20, nil }
func (plentyMemory) HostAvailable() (uint64, error) { return 1 << 40, nil }

// newLiveServer serves a real manager over the test backend. It returns the
// handler and a model file path.
func newLiveServer(t *testing.T, b *tokenBackend, mut func(*manager.ManagerConfig)) (http.Handler, string) {
	t.Helper()
	cfg := manager.ManagerConfig{
		Backend:               b,
		MaxConcurrentSessions: 1,
		Registry:              manager.NewHandleRegistry(),
		Memory:                plentyMemory{},
		GenerationGrace:       50 * time.Millisecond,
		SkipLoadVerify:        true,
	}
	if mut != nil {
		mut(&cfg)
	}
	m := manager.NewWithConfig(cfg)
	t.Cleanup(func() { _ = m.Close(context.Background()) })
	p := filepath.Join(t.TempDir(), "tiny.Q4_0.bin")
	if err := os.WriteFile(p, []byte("weights"), 0o644); err != nil {
		t.Fatalf("write model: %v", err)
	}
	return NewMux(NewService(m)), p
}
