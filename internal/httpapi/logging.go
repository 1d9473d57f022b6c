package httpapi

import (
	"bytes"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
)

// zlog is the structured logger used by the HTTP layer; discards until set.
var zlog = zerolog.Nop()

// SetLogger installs a structured logger used by the HTTP layer.
func SetLogger(l zerolog.Logger) { zlog = l }

func logger() *zerolog.Logger { return &zlog }

// parseLevel maps a level name to a zerolog level. "off" disables request
// logging; unknown names fall back to info.
func parseLevel(s string) zerolog.Level {
	s = strings.ToLower(strings.TrimSpace(s))
	switch s {
	case "", "info":
		return zerolog.InfoLevel
	case "off", "none":
		return zerolog.Disabled
	}
	lvl, err := zerolog.ParseLevel(s)
	if err != nil {
		return zerolog.InfoLevel
	}
	return lvl
}

// defaultLogLevel is read once from MODELRT_LOG_LEVEL.
var defaultLogLevel = parseLevel(os.Getenv("MODELRT_LOG_LEVEL"))

// requestLogLevel honours ?log= and X-Log-Level overrides.
func requestLogLevel(r *http.Request) zerolog.Level {
	if v := r.URL.Query().Get("log"); v != "" {
		if v == "1" {
			return zerolog.DebugLevel
		}
		return parseLevel(v)
	}
	if v := r.Header.Get("X-Log-Level"); v != "" {
		return parseLevel(v)
	}
	return defaultLogLevel
}

// requestEvent starts a log event at lvl when the request's level allows it.
func requestEvent(r *http.Request, lvl zerolog.Level) *zerolog.Event {
	if rl := requestLogLevel(r); rl == zerolog.Disabled || lvl < rl {
		return nil
	}
	e := logger().WithLevel(lvl).Str("method", r.Method).Str("path", r.URL.Path)
	if rid := middleware.GetReqID(r.Context()); rid != "" {
		e = e.Str("request_id", rid)
	}
	return e
}

// accessLog writes one line per request with status and duration.
func accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		lvl := zerolog.InfoLevel
		if status >= 500 {
			lvl = zerolog.ErrorLevel
		}
		if e := requestEvent(r, lvl); e != nil {
			e.Int("status", status).Dur("dur", time.Since(start)).Int("bytes", ww.BytesWritten()).Msg("request")
		}
	})
}

// loggingLineWriter logs complete NDJSON lines at debug level.
type loggingLineWriter struct {
	r   *http.Request
	buf []byte
}

func (lw *loggingLineWriter) Write(p []byte) (int, error) {
	lw.buf = append(lw.buf, p...)
	for {
		idx := bytes.IndexByte(lw.buf, '\n')
		if idx < 0 {
			break
		}
		if line := lw.buf[:idx]; len(line) > 0 {
			if e := requestEvent(lw.r, zerolog.DebugLevel); e != nil {
				e.RawJSON("line", line).Msg("generate>")
			}
		}
		lw.buf = lw.buf[idx+1:]
	}
	return len(p), nil
}
