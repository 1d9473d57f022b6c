package asset

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	toml "github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// ManifestEntry pins the expected properties of one model file.
type ManifestEntry struct {
	File   string `json:"file" yaml:"file" toml:"file"`
	Digest string `json:"digest" yaml:"digest" toml:"digest"`
	Size   int64  `json:"size,omitempty" yaml:"size,omitempty" toml:"size,omitempty"`
	Quant  string `json:"quant,omitempty" yaml:"quant,omitempty" toml:"quant,omitempty"`
}

// Manifest lists expected model files, keyed by base file name.
type Manifest struct {
	Models []ManifestEntry `json:"models" yaml:"models" toml:"models"`
}

// Lookup returns the entry whose File matches the base name of path.
func (m *Manifest) Lookup(path string) (ManifestEntry, bool) {
	if m == nil {
		return ManifestEntry{}, false
	}
	name := filepath.Base(path)
	for _, e := range m.Models {
		if filepath.Base(e.File) == name {
			return e, true
		}
	}
	return ManifestEntry{}, false
}

// LoadManifest reads a manifest file based on its extension.
// Supports: .yaml/.yml, .json, .toml
func LoadManifest(path string) (*Manifest, error) {
	if path == "" {
		return nil, fmt.Errorf("empty manifest path")
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var m Manifest
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(b, &m)
	case ".json":
		err = json.Unmarshal(b, &m)
	case ".toml":
		err = toml.Unmarshal(b, &m)
	default:
		return nil, fmt.Errorf("unsupported manifest extension: %s", ext)
	}
	if err != nil {
		return nil, fmt.Errorf("parse manifest %s: %w", path, err)
	}
	return &m, nil
}
