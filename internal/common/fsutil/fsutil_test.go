package fsutil

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"
)

func setHome(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	if runtime.GOOS == "windows" {
		t.Setenv("USERPROFILE", home)
	}
	return home
}

func TestExpandHome(t *testing.T) {
	home := setHome(t)
	cases := map[string]string{
		"":             "",
		"/tmp":         "/tmp",
		"~":            home,
		"~/models/llm": filepath.Join(home, "models", "llm"),
		"~other/x":     "~other/x",
		"rel/~/x":      "rel/~/x",
	}
	for in, want := range cases {
		got, err := ExpandHome(in)
		if err != nil {
			t.Fatalf("ExpandHome(%q): %v", in, err)
		}
		if got != want {
			t.Fatalf("ExpandHome(%q)=%q want %q", in, got, want)
		}
	}
}

func TestAbs(t *testing.T) {
	home := setHome(t)
	got, err := Abs(" ~/m.gguf ")
	if err != nil {
		t.Fatalf("Abs: %v", err)
	}
	if got != filepath.Join(home, "m.gguf") {
		t.Fatalf("Abs=%q", got)
	}
	wd, _ := os.Getwd()
	if got, _ := Abs("a/../b"); got != filepath.Join(wd, "b") {
		t.Fatalf("relative Abs=%q", got)
	}
}

func TestIsDir(t *testing.T) {
	dir := t.TempDir()
	f := filepath.Join(dir, "f")
	if err := os.WriteFile(f, []byte("x"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if !IsDir(dir) || IsDir(f) || IsDir(filepath.Join(dir, "missing")) {
		t.Fatalf("IsDir mismatch")
	}
}
