package httpapi

import (
	"encoding/json"
	"net/http"
	"path/filepath"
	"testing"
	"time"

	"modelrt/pkg/types"
)

func loadAndLease(t *testing.T, h http.Handler, path string) string {
	t.Helper()
	if w := do(t, h, http.MethodPost, "/runtime/load", `{"path":"`+path+`"}`); w.Code != http.StatusOK {
		t.Fatalf("load=%d %s", w.Code, w.Body.String())
	}
	w := do(t, h, http.MethodPost, "/sessions", `{"timeout_ms":0}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("lease=%d %s", w.Code, w.Body.String())
	}
	var s types.Session
	if err := json.Unmarshal(w.Body.Bytes(), &s); err != nil || s.ID == "" {
		t.Fatalf("session=%s", w.Body.String())
	}
	return s.ID
}

func TestLive_FullLifecycle(t *testing.T) {
	h, model := newLiveServer(t, &tokenBackend{tokens: []string{"Waves", " fold", " into", " foam"}}, nil)

	if w := do(t, h, http.MethodPost, "/sessions", ""); w.Code != http.StatusConflict {
		t.Fatalf("lease before load=%d", w.Code)
	}
	if w := do(t, h, http.MethodPost, "/assets/resolve", `{"path":"`+model+`"}`); w.Code != http.StatusOK {
		t.Fatalf("resolve=%d %s", w.Code, w.Body.String())
	}

	id := loadAndLease(t, h, model)
	if w := do(t, h, http.MethodPost, "/sessions", `{"timeout_ms":0}`); w.Code != http.StatusTooManyRequests {
		t.Fatalf("second lease=%d want 429", w.Code)
	}

	w := do(t, h, http.MethodPost, "/sessions/"+id+"/generate", `{"prompt":"ocean","stop":[" into"]}`)
	if w.Code != http.StatusOK {
		t.Fatalf("generate=%d %s", w.Code, w.Body.String())
	}
	f := lastFinal(t, w.Body.Bytes())
	if f.FinishReason != "stop" || f.Text != "Waves fold" || f.Tokens != 2 {
		t.Fatalf("final=%+v", f)
	}
	if n := len(ndjson(t, w.Body.Bytes())); n != 3 {
		t.Fatalf("lines=%d", n)
	}

	w = do(t, h, http.MethodPost, "/sessions/"+id+"/generate", `{"prompt":"ocean","max_tokens":0}`)
	if f := lastFinal(t, w.Body.Bytes()); f.FinishReason != "length" || f.Tokens != 0 {
		t.Fatalf("max_tokens 0 final=%+v", f)
	}
	if w := do(t, h, http.MethodPost, "/sessions/"+id+"/generate", `{"prompt":""}`); w.Code != http.StatusBadRequest {
		t.Fatalf("empty prompt=%d", w.Code)
	}

	w = do(t, h, http.MethodGet, "/status", "")
	var st types.StatusResponse
	if err := json.Unmarshal(w.Body.Bytes(), &st); err != nil {
		t.Fatalf("status: %v", err)
	}
	if st.State != "ready" || st.Model == nil || st.Model.Name != filepath.Base(model) || len(st.Sessions) != 1 || st.PoolExhaustedTotal != 1 {
		t.Fatalf("status=%s", w.Body.String())
	}

	if w := do(t, h, http.MethodPost, "/sessions/"+id+"/cancel", ""); w.Code != http.StatusNoContent {
		t.Fatalf("cancel idle=%d", w.Code)
	}
	if w := do(t, h, http.MethodDelete, "/sessions/"+id, ""); w.Code != http.StatusNoContent {
		t.Fatalf("release=%d", w.Code)
	}
	if w := do(t, h, http.MethodDelete, "/sessions/"+id, ""); w.Code != http.StatusNotFound {
		t.Fatalf("second release=%d", w.Code)
	}

	w = do(t, h, http.MethodPost, "/runtime/unload", "")
	if err := json.Unmarshal(w.Body.Bytes(), &st); err != nil || st.State != "unloaded" {
		t.Fatalf("unload=%d %s", w.Code, w.Body.String())
	}
	if w := do(t, h, http.MethodGet, "/readyz", ""); w.Code != http.StatusServiceUnavailable {
		t.Fatalf("readyz after unload=%d", w.Code)
	}
}

func TestLive_GenerationTimeoutBeforeFirstToken(t *testing.T) {
	h, model := newLiveServer(t, &tokenBackend{tokens: []string{"slow"}, delay: 300 * time.Millisecond}, nil)
	id := loadAndLease(t, h, model)
	w := do(t, h, http.MethodPost, "/sessions/"+id+"/generate", `{"prompt":"p","timeout_ms":20}`)
	if w.Code != http.StatusGatewayTimeout {
		t.Fatalf("status=%d body=%s", w.Code, w.Body.String())
	}
}

func TestLive_LoadErrors(t *testing.T) {
	h, model := newLiveServer(t, &tokenBackend{}, nil)
	missing := filepath.Join(filepath.Dir(model), "missing.gguf")
	if w := do(t, h, http.MethodPost, "/runtime/load", `{"path":"`+missing+`"}`); w.Code != http.StatusNotFound {
		t.Fatalf("missing model=%d", w.Code)
	}
	if w := do(t, h, http.MethodPost, "/runtime/reload", ""); w.Code != http.StatusInternalServerError {
		t.Fatalf("reload with nothing loaded=%d", w.Code)
	}
}
