package asset

import (
	_ "crypto/sha256"
	_ "crypto/sha512"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	parser "github.com/gpustack/gguf-parser-go"
	"github.com/opencontainers/go-digest"
	"github.com/rs/zerolog"

	"modelrt/internal/common/fsutil"
)

// quantPattern picks a quantization tag out of a file name,
// e.g. "tinyllama-1.1b-chat.Q4_K_M.gguf" -> "Q4_K_M".
var quantPattern = regexp.MustCompile(`(?i)(?:^|[._-])(IQ[1-4]_[A-Z0-9]+|Q[2-8](?:_[A-Z0-9]+)*|BF16|F16|F32)(?:[._-]|$)`)

// Resolver validates model files against an optional manifest.
// It only ever reads from the filesystem.
type Resolver struct {
	manifest *Manifest
	log      zerolog.Logger
}

// NewResolver builds a Resolver. Both arguments may be nil.
func NewResolver(m *Manifest, log *zerolog.Logger) *Resolver {
	r := &Resolver{manifest: m, log: zerolog.Nop()}
	if log != nil {
		r.log = log.With().Str("component", "resolver").Logger()
	}
	return r
}

// Resolve checks that path exists, is non-empty, matches its manifest entry
// (if any) and, for GGUF files, carries a readable header.
func (r *Resolver) Resolve(path string) (ModelAsset, error) {
	if strings.TrimSpace(path) == "" {
		return ModelAsset{}, ErrNotFound("(unspecified)")
	}
	p, err := fsutil.Abs(path)
	if err != nil {
		return ModelAsset{}, notFoundError{path: path, err: err}
	}
	fi, err := os.Stat(p)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return ModelAsset{}, ErrNotFound(p)
		}
		return ModelAsset{}, notFoundError{path: p, err: err}
	}
	if fi.IsDir() {
		return ModelAsset{}, notFoundError{path: p, err: errors.New("is a directory")}
	}
	if fi.Size() == 0 {
		return ModelAsset{}, ErrCorrupt(p, "empty file")
	}

	entry, pinned := r.manifest.Lookup(p)
	if pinned && entry.Size > 0 && entry.Size != fi.Size() {
		return ModelAsset{}, ErrCorrupt(p, fmt.Sprintf("size %d does not match manifest size %d", fi.Size(), entry.Size))
	}

	alg := digest.Canonical
	var expected digest.Digest
	if pinned && entry.Digest != "" {
		expected, err = digest.Parse(entry.Digest)
		if err != nil {
			return ModelAsset{}, ErrCorrupt(p, fmt.Sprintf("manifest digest invalid: %v", err))
		}
		alg = expected.Algorithm()
	}
	got, err := digestFile(p, alg)
	if err != nil {
		return ModelAsset{}, notFoundError{path: p, err: err}
	}
	if expected != "" && got != expected {
		return ModelAsset{}, ErrCorrupt(p, fmt.Sprintf("checksum mismatch: got %s want %s", got, expected))
	}

	a := ModelAsset{
		Name:   fi.Name(),
		Path:   p,
		Size:   fi.Size(),
		Digest: got,
		Format: FormatRaw,
	}
	if strings.EqualFold(filepath.Ext(p), ".gguf") {
		gf, err := parser.ParseGGUFFile(p)
		if err != nil {
			return ModelAsset{}, ErrCorrupt(p, fmt.Sprintf("invalid gguf header: %v", err))
		}
		meta := gf.Metadata()
		a.Format = FormatGGUF
		a.Architecture = strings.TrimSpace(meta.Architecture)
		a.Quant = strings.TrimSpace(meta.FileType.String())
	}
	if a.Quant == "" && pinned {
		a.Quant = entry.Quant
	}
	if a.Quant == "" {
		a.Quant = QuantFromName(fi.Name())
	}
	r.log.Debug().Str("event", "resolved").Str("path", p).Str("size", a.HumanSize()).
		Str("digest", a.Digest.String()).Str("quant", a.Quant).Bool("pinned", pinned).Msg("asset resolved")
	return a, nil
}

// QuantFromName extracts a quantization tag from a file name, or "".
func QuantFromName(name string) string {
	m := quantPattern.FindStringSubmatch(name)
	if m == nil {
		return ""
	}
	return strings.ToUpper(m[1])
}

func digestFile(path string, alg digest.Algorithm) (digest.Digest, error) {
	if !alg.Available() {
		return "", fmt.Errorf("digest algorithm %q unavailable", alg)
	}
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	return alg.FromReader(f)
}
