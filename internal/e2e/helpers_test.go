package e2e

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"modelrt/internal/httpapi"
	"modelrt/internal/manager"
	"modelrt/internal/native"
	"modelrt/pkg/types"
)

// loopBackend emits "t<i>" tokens forever (or up to limit) with a delay.
type loopBackend struct {
	delay time.Duration
	limit int
}

func (b loopBackend) Name() string { return "loop" }

func (b loopBackend) Load(ctx context.Context, src native.Source) (native.Model, error) {
	return loopModel{b: b}, nil
}

type loopModel struct{ b loopBackend }

func (m loopModel) Start(prompt string, p native.Params) (native.Sequence, error) {
	return &loopSeq{b: m.b}, nil
}

func (m loopModel) Close() error { return nil }

type loopSeq struct {
	b loopBackend
	i int
}

func (s *loopSeq) Next(ctx context.Context) (native.Token, error) {
	if s.b.limit > 0 && s.i >= s.b.limit {
		return native.Token{}, io.EOF
	}
	select {
	case <-time.After(s.b.delay):
	case <-ctx.Done():
		return native.Token{}, ctx.Err()
	}
	t := native.Token{Index: s.i, Text: fmt.Sprintf("t%d ", s.i)}
	s.i++
	return t, nil
}

func (s *loopSeq) Close() error { return nil }

type bigHost struct{}

func (bigHost) ProcessResident() (uint64, error) { return 1 << 20, nil }
func (bigHost) HostAvailable() (uint64, error) { return 1 << 40, nil }

// newServer starts an HTTP server over a manager with b loaded.
func newServer(t *testing.T, b native.Backend, mut func(*manager.ManagerConfig)) *httptest.Server {
	t.Helper()
	cfg := manager.ManagerConfig{
		Backend:               b,
		MaxConcurrentSessions: 1,
		Registry:              manager.NewHandleRegistry(),
		Memory:                bigHost{},
		GenerationGrace:       50 * time.Millisecond,
	}
	if mut != nil {
		mut(&cfg)
	}
	m := manager.NewWithConfig(cfg)
	srv := httptest.NewServer(httpapi.NewMux(httpapi.NewService(m)))
	t.Cleanup(func() {
		srv.Close()
		_ = m.Close(context.Background())
	})

	p := filepath.Join(t.TempDir(), "alpha.Q4_0.bin")
	if err := os.WriteFile(p, []byte("alpha weights"), 0o644); err != nil {
		t.Fatalf("write model: %v", err)
	}
	resp := post(t, srv, "/runtime/load", `{"path":"`+p+`"}`)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("load status=%d", resp.StatusCode)
	}
	return srv
}

func post(t *testing.T, srv *httptest.Server, path, body string) *http.Response {
	t.Helper()
	return send(t, context.Background(), srv, http.MethodPost, path, body)
}

func send(t *testing.T, ctx context.Context, srv *httptest.Server, method, path, body string) *http.Response {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = bytes.NewBufferString(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, srv.URL+path, rd)
	if err != nil {
		t.Fatalf("new req: %v", err)
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	return resp
}

func lease(t *testing.T, srv *httptest.Server, timeoutMs int) (types.Session, int) {
	t.Helper()
	resp := post(t, srv, "/sessions", fmt.Sprintf(`{"timeout_ms":%d}`, timeoutMs))
	defer resp.Body.Close()
	var s types.Session
	if resp.StatusCode == http.StatusCreated {
		if err := json.NewDecoder(resp.Body).Decode(&s); err != nil {
			t.Fatalf("decode session: %v", err)
		}
	}
	return s, resp.StatusCode
}

func status(t *testing.T, srv *httptest.Server) types.StatusResponse {
	t.Helper()
	resp := send(t, context.Background(), srv, http.MethodGet, "/status", "")
	defer resp.Body.Close()
	var st types.StatusResponse
	if err := json.NewDecoder(resp.Body).Decode(&st); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	return st
}

// stream reads NDJSON lines from a generate response.
type stream struct {
	resp *http.Response
	sc   *bufio.Scanner
}

func startGenerate(t *testing.T, ctx context.Context, srv *httptest.Server, id, body string) *stream {
	t.Helper()
	resp := send(t, ctx, srv, http.MethodPost, "/sessions/"+id+"/generate", body)
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		t.Fatalf("generate status=%d", resp.StatusCode)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return &stream{resp: resp, sc: bufio.NewScanner(resp.Body)}
}

// next returns the next line, or nil at end of stream.
func (s *stream) next(t *testing.T) json.RawMessage {
	t.Helper()
	if !s.sc.Scan() {
		return nil
	}
	return append(json.RawMessage(nil), s.sc.Bytes()...)
}

// final drains the stream and returns its FinalLine.
func (s *stream) final(t *testing.T) types.FinalLine {
	t.Helper()
	var last json.RawMessage
	for line := s.next(t); line != nil; line = s.next(t) {
		last = line
	}
	var f types.FinalLine
	if err := json.Unmarshal(last, &f); err != nil || !f.Done {
		t.Fatalf("bad final line %q: %v", last, err)
	}
	return f
}

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
