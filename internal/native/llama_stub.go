//go:build !llama

package native

// This file provides a no-CGO stand-in for the llama backend. It is compiled
// when the 'llama' build tag is NOT set, keeping default builds and CI
// CGO-free. The real backend lives in llama.go.

import "context"

// Built reports whether this binary carries a real native backend.
func Built() bool { return false }

type llamaBackend struct{}

// NewLlamaBackend returns a backend that refuses to load anything.
func NewLlamaBackend() Backend { return llamaBackend{} }

func (llamaBackend) Name() string { return "llama.cpp (not built)" }

func (llamaBackend) Load(ctx context.Context, src Source) (Model, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return nil, ErrUnavailable
}
