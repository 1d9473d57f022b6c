// Package asset locates and validates on-disk model files before they are
// handed to the runtime.
package asset

import (
	"github.com/docker/go-units"
	"github.com/opencontainers/go-digest"
)

// Format identifies the container format of a model file.
type Format string

const (
	FormatGGUF Format = "gguf"
	FormatRaw  Format = "raw"
)

// ModelAsset is a validated model file. It is a value type: once returned by
// Resolve it is never mutated.
type ModelAsset struct {
	Name         string        `json:"name"`
	Path         string        `json:"path"`
	Size         int64         `json:"size"`
	Digest       digest.Digest `json:"digest"`
	Quant        string        `json:"quant,omitempty"`
	Architecture string        `json:"architecture,omitempty"`
	Format       Format        `json:"format"`
}

// IsZero reports whether a is the zero asset.
func (a ModelAsset) IsZero() bool { return a.Path == "" }

// HumanSize renders Size with binary units, e.g. "637.8MiB".
func (a ModelAsset) HumanSize() string { return units.BytesSize(float64(a.Size)) }

// Same reports whether a and b refer to the same file content.
func (a ModelAsset) Same(b ModelAsset) bool {
	return a.Path == b.Path && a.Size == b.Size && a.Digest == b.Digest
}
