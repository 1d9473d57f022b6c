package asset

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"modelrt/internal/common/fsutil"
)

// Entry is an unvalidated model file found by Scan.
type Entry struct {
	Name string `json:"name"`
	Path string `json:"path"`
	Size int64  `json:"size"`
}

// Scan lists *.gguf files in dir, sorted by name. Nothing is hashed or parsed;
// pass an entry's Path to Resolve to validate it.
func Scan(dir string) ([]Entry, error) {
	abs, err := fsutil.Abs(dir)
	if err != nil {
		return nil, err
	}
	dirents, err := os.ReadDir(abs)
	if err != nil {
		return nil, fmt.Errorf("read dir: %w", err)
	}
	var out []Entry
	for _, e := range dirents {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if !strings.HasSuffix(strings.ToLower(name), ".gguf") {
			continue
		}
		var size int64
		if fi, err := e.Info(); err == nil {
			size = fi.Size()
		}
		out = append(out, Entry{Name: name, Path: filepath.Join(abs, name), Size: size})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// Locate returns path itself when it names a file, or the first *.gguf in it
// when it names a directory.
func Locate(path string) (string, error) {
	p, err := fsutil.ExpandHome(path)
	if err != nil {
		return "", err
	}
	if !fsutil.IsDir(p) {
		return p, nil
	}
	entries, err := Scan(p)
	if err != nil {
		return "", err
	}
	if len(entries) == 0 {
		return "", ErrNotFound(filepath.Join(p, "*.gguf"))
	}
	return entries[0].Path, nil
}
