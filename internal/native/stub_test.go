//go:build !llama

package native

import (
	"context"
	"errors"
	"testing"
)

func TestStubBackend_Unavailable(t *testing.T) {
	if Built() {
		t.Fatalf("stub build reports a native backend")
	}
	_, err := NewLlamaBackend().Load(context.Background(), Source{Path: "m.gguf"})
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
}
