package e2e

import (
	"context"
	"net/http"
	"testing"
	"time"
)

// TestE2E_Backpressure429 verifies a full pool answers 429 once the lease wait
// elapses.
func TestE2E_Backpressure429(t *testing.T) {
	srv := newServer(t, loopBackend{delay: time.Millisecond, limit: 3}, nil)
	if _, code := lease(t, srv, 0); code != http.StatusCreated {
		t.Fatalf("first lease=%d", code)
	}
	start := time.Now()
	if _, code := lease(t, srv, 30); code != http.StatusTooManyRequests {
		t.Fatalf("second lease=%d want 429", code)
	}
	if waited := time.Since(start); waited < 25*time.Millisecond {
		t.Fatalf("lease returned before its timeout: %s", waited)
	}
}

func TestE2E_WaiterGetsReleasedSlot(t *testing.T) {
	srv := newServer(t, loopBackend{delay: time.Millisecond, limit: 3}, nil)
	first, _ := lease(t, srv, 0)

	got := make(chan int, 1)
	go func() {
		_, code := lease(t, srv, 5000)
		got <- code
	}()
	waitFor(t, time.Second, func() bool { return status(t, srv).Waiters == 1 })

	resp := send(t, context.Background(), srv, http.MethodDelete, "/sessions/"+first.ID, "")
	resp.Body.Close()
	select {
	case code := <-got:
		if code != http.StatusCreated {
			t.Fatalf("waiter lease=%d", code)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("waiter was not handed the released slot")
	}
}

func TestE2E_GenerateToCompletion(t *testing.T) {
	srv := newServer(t, loopBackend{delay: time.Millisecond, limit: 4}, nil)
	s, _ := lease(t, srv, 0)
	f := startGenerate(t, context.Background(), srv, s.ID, `{"prompt":"count"}`).final(t)
	if f.FinishReason != "end" || f.Tokens != 4 || f.Text != "t0 t1 t2 t3 " {
		t.Fatalf("final=%+v", f)
	}
}

func TestE2E_CancelMidStream(t *testing.T) {
	srv := newServer(t, loopBackend{delay: 10 * time.Millisecond}, nil)
	s, _ := lease(t, srv, 0)
	st := startGenerate(t, context.Background(), srv, s.ID, `{"prompt":"forever","max_tokens":100000}`)
	if st.next(t) == nil {
		t.Fatalf("no first token")
	}
	resp := post(t, srv, "/sessions/"+s.ID+"/cancel", "")
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("cancel=%d", resp.StatusCode)
	}
	if f := st.final(t); f.FinishReason != "cancelled" {
		t.Fatalf("final=%+v", f)
	}

	// The session is reusable after a cancel.
	f := startGenerate(t, context.Background(), srv, s.ID, `{"prompt":"again","max_tokens":2}`).final(t)
	if f.FinishReason != "length" || f.Tokens != 2 {
		t.Fatalf("second generation final=%+v", f)
	}
}

func TestE2E_UnloadForcesRunningGeneration(t *testing.T) {
	srv := newServer(t, loopBackend{delay: 10 * time.Millisecond}, nil)
	s, _ := lease(t, srv, 0)
	st := startGenerate(t, context.Background(), srv, s.ID, `{"prompt":"forever","max_tokens":100000}`)
	if st.next(t) == nil {
		t.Fatalf("no first token")
	}
	resp := post(t, srv, "/runtime/unload", "")
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unload=%d", resp.StatusCode)
	}
	if f := st.final(t); f.FinishReason != "cancelled" {
		t.Fatalf("final=%+v", f)
	}
	after := status(t, srv)
	if after.State != "unloaded" || len(after.Sessions) != 0 || after.ForcedCancellations == 0 {
		t.Fatalf("status after unload=%+v", after)
	}
	if _, code := lease(t, srv, 0); code != http.StatusConflict {
		t.Fatalf("lease after unload=%d want 409", code)
	}
}

func TestE2E_ClientDisconnectStopsGeneration(t *testing.T) {
	srv := newServer(t, loopBackend{delay: 10 * time.Millisecond}, nil)
	s, _ := lease(t, srv, 0)
	ctx, cancel := context.WithCancel(context.Background())
	st := startGenerate(t, ctx, srv, s.ID, `{"prompt":"forever","max_tokens":100000}`)
	if st.next(t) == nil {
		t.Fatalf("no first token")
	}
	cancel()
	waitFor(t, 2*time.Second, func() bool {
		sessions := status(t, srv).Sessions
		return len(sessions) == 1 && sessions[0].State != "generating"
	})
}
