package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"modelrt/internal/manager"
	"modelrt/internal/native"
	"modelrt/pkg/types"
)

type handlers struct {
	svc Service
}

// NewMux builds the HTTP router over svc.
func NewMux(svc Service) http.Handler {
	h := &handlers{svc: svc}
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(MetricsMiddleware)
	r.Use(accessLog)
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Content-Type-Options", "nosniff")
			next.ServeHTTP(w, r)
		})
	})
	if corsEnabled {
		origins, methods, headers := corsDefaults()
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: origins,
			AllowedMethods: methods,
			AllowedHeaders: headers,
			ExposedHeaders: []string{"X-Request-Id"},
			MaxAge:         300,
		}))
	}

	r.Group(func(r chi.Router) {
		r.Use(inflightMiddleware)
		r.Post("/assets/resolve", h.resolve)
		r.Post("/runtime/load", h.load)
		r.Post("/runtime/unload", h.unload)
		r.Post("/runtime/reload", h.reload)
		r.Post("/sessions", h.lease)
		r.Delete("/sessions/{id}", h.release)
		r.Post("/sessions/{id}/generate", h.generate)
		r.Post("/sessions/{id}/cancel", h.cancel)
		r.Get("/health", h.health)
		r.Get("/status", h.status)
		r.Get("/capabilities", h.capabilities)
	})

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if svc.Ready() {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("ready"))
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("not ready"))
	})
	r.Get("/metrics", promhttp.Handler().ServeHTTP)

	MountSwagger(r)
	return r
}

// decodeJSON reads a JSON body into v. Optional bodies may be empty.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any, optional bool) bool {
	if optional && r.ContentLength == 0 {
		return true
	}
	ct := r.Header.Get("Content-Type")
	if !strings.HasPrefix(strings.ToLower(ct), "application/json") {
		writeJSONError(w, http.StatusUnsupportedMediaType, "Content-Type must be application/json")
		return false
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		if optional && errors.Is(err, io.EOF) {
			return true
		}
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSONError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return false
		}
		writeJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	return true
}

func (h *handlers) loadContext(r *http.Request) (context.Context, context.CancelFunc) {
	ctx, cancel := withServerCancel(r.Context())
	if loadTimeout <= 0 {
		return ctx, cancel
	}
	tctx, tcancel := context.WithTimeout(ctx, loadTimeout)
	return tctx, func() {
		tcancel()
		cancel()
	}
}

// resolve godoc
// @Summary      Resolve a model file
// @Description  Locates and validates a model file without loading it.
// @Tags         assets
// @Accept       json
// @Produce      json
// @Param        body  body      types.PathRequest  true  "Model path"
// @Success      200   {object}  types.Asset
// @Failure      404   {object}  types.ErrorResponse
// @Failure      422   {object}  types.ErrorResponse
// @Router       /assets/resolve [post]
func (h *handlers) resolve(w http.ResponseWriter, r *http.Request) {
	var req types.PathRequest
	if !decodeJSON(w, r, &req, false) {
		return
	}
	a, err := h.svc.ResolveAsset(req.Path)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

// load godoc
// @Summary      Load the runtime
// @Description  Resolves the model file and loads it into the native runtime.
// @Tags         runtime
// @Accept       json
// @Produce      json
// @Param        body  body      types.PathRequest  true  "Model path"
// @Success      200   {object}  types.Asset
// @Failure      404   {object}  types.ErrorResponse
// @Failure      409   {object}  types.ErrorResponse
// @Failure      422   {object}  types.ErrorResponse
// @Failure      500   {object}  types.ErrorResponse
// @Failure      503   {object}  types.ErrorResponse
// @Router       /runtime/load [post]
func (h *handlers) load(w http.ResponseWriter, r *http.Request) {
	var req types.PathRequest
	if !decodeJSON(w, r, &req, false) {
		return
	}
	ctx, cancel := h.loadContext(r)
	defer cancel()
	a, err := h.svc.Load(ctx, req.Path)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

// unload godoc
// @Summary      Unload the runtime
// @Description  Drains running generations, closes all sessions and frees the model.
// @Tags         runtime
// @Produce      json
// @Success      200  {object}  types.StatusResponse
// @Failure      500  {object}  types.ErrorResponse
// @Router       /runtime/unload [post]
func (h *handlers) unload(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := withServerCancel(r.Context())
	defer cancel()
	if err := h.svc.Unload(ctx); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.svc.Status())
}

// reload godoc
// @Summary      Reload the runtime
// @Description  Unloads and loads the current model again, clearing a failed state.
// @Tags         runtime
// @Produce      json
// @Success      200  {object}  types.StatusResponse
// @Failure      500  {object}  types.ErrorResponse
// @Failure      503  {object}  types.ErrorResponse
// @Router       /runtime/reload [post]
func (h *handlers) reload(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := h.loadContext(r)
	defer cancel()
	if err := h.svc.Reload(ctx); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.svc.Status())
}

// lease godoc
// @Summary      Lease a session
// @Description  Waits up to timeout_ms for a free session slot.
// @Tags         sessions
// @Accept       json
// @Produce      json
// @Param        body  body      types.LeaseRequest  false  "Lease options"
// @Success      201   {object}  types.Session
// @Failure      409   {object}  types.ErrorResponse
// @Failure      429   {object}  types.ErrorResponse
// @Router       /sessions [post]
func (h *handlers) lease(w http.ResponseWriter, r *http.Request) {
	var req types.LeaseRequest
	if !decodeJSON(w, r, &req, true) {
		return
	}
	timeout := time.Duration(-1)
	if req.TimeoutMs != nil {
		if *req.TimeoutMs < 0 {
			writeJSONError(w, http.StatusBadRequest, "timeout_ms must be >= 0")
			return
		}
		timeout = time.Duration(*req.TimeoutMs) * time.Millisecond
	}
	ctx, cancel := withServerCancel(r.Context())
	defer cancel()
	s, err := h.svc.Lease(ctx, timeout)
	if err != nil {
		if r.Context().Err() != nil {
			return
		}
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, s)
}

// release godoc
// @Summary      Release a session
// @Tags         sessions
// @Param        id   path  string  true  "Session ID"
// @Success      204
// @Failure      404  {object}  types.ErrorResponse
// @Router       /sessions/{id} [delete]
func (h *handlers) release(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Release(chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// cancel godoc
// @Summary      Cancel a generation
// @Description  Asks the running generation on the session to stop after the current token.
// @Tags         sessions
// @Param        id   path  string  true  "Session ID"
// @Success      204
// @Failure      400  {object}  types.ErrorResponse
// @Failure      404  {object}  types.ErrorResponse
// @Router       /sessions/{id}/cancel [post]
func (h *handlers) cancel(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Cancel(chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// toRequest applies generation defaults to unset fields.
func toRequest(g types.GenerateRequest) manager.Request {
	req := manager.Request{
		Prompt:        g.Prompt,
		MaxTokens:     manager.DefaultMaxTokens,
		Temperature:   manager.DefaultTemperature,
		TopP:          manager.DefaultTopP,
		TopK:          manager.DefaultTopK,
		RepeatPenalty: float32(g.RepeatPenalty),
		Seed:          g.Seed,
		Stop:          g.Stop,
		Timeout:       time.Duration(g.TimeoutMs) * time.Millisecond,
	}
	if g.MaxTokens != nil {
		req.MaxTokens = *g.MaxTokens
	}
	if g.Temperature != nil {
		req.Temperature = float32(*g.Temperature)
	}
	if g.TopP != nil {
		req.TopP = float32(*g.TopP)
	}
	if g.TopK != nil {
		req.TopK = *g.TopK
	}
	return req
}

// generate godoc
// @Summary      Generate tokens
// @Description  Streams NDJSON: one TokenLine per token, then a FinalLine.
// @Tags         sessions
// @Accept       json
// @Produce      application/x-ndjson
// @Param        id    path      string                 true  "Session ID"
// @Param        body  body      types.GenerateRequest  true  "Generation request"
// @Success      200   {object}  types.FinalLine
// @Failure      400   {object}  types.ErrorResponse
// @Failure      404   {object}  types.ErrorResponse
// @Failure      409   {object}  types.ErrorResponse
// @Failure      504   {object}  types.ErrorResponse
// @Router       /sessions/{id}/generate [post]
func (h *handlers) generate(w http.ResponseWriter, r *http.Request) {
	var body types.GenerateRequest
	if !decodeJSON(w, r, &body, false) {
		return
	}
	ctx, cancel := withServerCancel(r.Context())
	defer cancel()

	out := io.Writer(w)
	if requestLogLevel(r) <= zerolog.DebugLevel {
		out = io.MultiWriter(w, &loggingLineWriter{r: r})
	}
	enc := json.NewEncoder(out)
	flusher, _ := w.(http.Flusher)
	flush := func() {
		if flusher != nil {
			flusher.Flush()
		}
	}
	started := false
	begin := func() {
		if started {
			return
		}
		started = true
		w.Header().Set("Content-Type", "application/x-ndjson")
		w.WriteHeader(http.StatusOK)
	}

	res, err := h.svc.Generate(ctx, chi.URLParam(r, "id"), toRequest(body), func(t native.Token) error {
		begin()
		if err := enc.Encode(types.TokenLine{Index: t.Index, Text: t.Text}); err != nil {
			return err
		}
		flush()
		return nil
	})
	if err != nil && (r.Context().Err() != nil || serverBaseCtx.Err() != nil) {
		if e := requestEvent(r, zerolog.InfoLevel); e != nil {
			e.Int("tokens", res.Tokens).Msg("generate aborted by client")
		}
		return
	}
	if err != nil && !started {
		writeError(w, err)
		return
	}
	begin()
	final := types.FinalLine{Done: true, FinishReason: string(res.FinishReason), Text: res.Text, Tokens: res.Tokens}
	if err != nil {
		final.Error = err.Error()
		if final.FinishReason == "" {
			final.FinishReason = string(manager.FinishError)
		}
	}
	_ = enc.Encode(final)
	flush()
	tokensTotal.WithLabelValues(final.FinishReason).Add(float64(res.Tokens))
}

// health godoc
// @Summary      Resource snapshot
// @Tags         status
// @Produce      json
// @Success      200  {object}  manager.HealthSnapshot
// @Router       /health [get]
func (h *handlers) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.svc.Health())
}

// status godoc
// @Summary      Runtime and session status
// @Tags         status
// @Produce      json
// @Success      200  {object}  types.StatusResponse
// @Router       /status [get]
func (h *handlers) status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.svc.Status())
}

// capabilities godoc
// @Summary      Host capabilities
// @Tags         status
// @Produce      json
// @Success      200  {object}  manager.Capabilities
// @Router       /capabilities [get]
func (h *handlers) capabilities(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.svc.Capabilities())
}
