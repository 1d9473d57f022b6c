// Package native is the narrow boundary to the native inference runtime.
//
// The runtime itself is opaque: it can load a model from a mapped asset,
// start a token sequence for a prompt, and produce the next token on demand.
// Everything above this package (lifecycle, admission, cancellation) treats a
// Backend as a black box.
//
// Build tags:
//
//   - `llama`: in-process go-llama.cpp backend (cgo, links libllama).
//   - default: a stub backend that fails fast with ErrUnavailable, keeping
//     default builds CGO-free.
package native

import (
	"context"
	"errors"
)

// ErrFatal marks errors after which the loaded model must not be used again.
// Backends wrap it; callers test with errors.Is.
var ErrFatal = errors.New("native runtime fault")

// ErrUnavailable is returned when the binary was built without a native backend.
var ErrUnavailable = errors.New("native backend not built (missing 'llama' build tag)")

// Token is one unit of generated output.
type Token struct {
	Index int    `json:"index"`
	Text  string `json:"text"`
}

// Options tune how a model is instantiated by the backend.
type Options struct {
	ContextSize int
	Threads     int
	BatchSize   int
	GPULayers   int
	// NoMMap reads weights into memory instead of mapping them.
	NoMMap bool
}

// Params are sampling parameters for one sequence.
type Params struct {
	MaxTokens     int
	Temperature   float32
	TopP          float32
	TopK          int
	RepeatPenalty float32
	Seed          int
	Stop          []string
}

// Source describes the asset handed to Backend.Load. Data is the read-only
// mapping of the file at Path; it stays valid until the model is closed.
type Source struct {
	Path    string
	Data    []byte
	Options Options
}

// Backend loads models into the native runtime (nativeLoad).
type Backend interface {
	Name() string
	Load(ctx context.Context, src Source) (Model, error)
}

// Model is a loaded native model. Close releases native memory (nativeUnload).
type Model interface {
	Start(prompt string, params Params) (Sequence, error)
	Close() error
}

// Sequence produces tokens for one prompt (nativeGenerateNext).
// Next returns io.EOF when generation ends and must return promptly when ctx
// is done.
type Sequence interface {
	Next(ctx context.Context) (Token, error)
	Close() error
}
