// Package fixtures embeds the scenario inputs shared by the package tests.
package fixtures

import (
	"embed"
	"io/fs"
	"os"
	"path/filepath"
	"testing"
)

//go:embed data
var files embed.FS

// Path writes the named fixture (a file or a directory under data/) into
// a test temp directory and returns its path.
func Path(t testing.TB, name string) string {
	t.Helper()
	dir := t.TempDir()
	if err := Write(dir, name); err != nil {
		t.Fatalf("fixture %s: %v", name, err)
	}
	return filepath.Join(dir, name)
}

// Paths is Path for several fixtures sharing one directory.
func Paths(t testing.TB, names ...string) []string {
	t.Helper()
	dir := t.TempDir()
	out := make([]string, len(names))
	for i, name := range names {
		if err := Write(dir, name); err != nil {
			t.Fatalf("fixture %s: %v", name, err)
		}
		out[i] = filepath.Join(dir, name)
	}
	return out
}

// Write copies the named fixture into dir.
func Write(dir, name string) error {
	root := filepath.ToSlash(filepath.Join("data", name))
	return fs.WalkDir(files, root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel("data", filepath.FromSlash(path))
		if err != nil {
			return err
		}
		target := filepath.Join(dir, rel)
		if d.IsDir() {
			return os.MkdirAll(target, 0o755)
		}
		data, err := files.ReadFile(path)
		if err != nil {
			return err
		}
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return err
		}
		return os.WriteFile(target, data, 0o644)
	})
}
