package testutil

import (
	"os"
	"path/filepath"
	"sort"
	"testing"
)

// TempTree is a temporary source tree for testing
type TempTree struct {
	Path string
	T    *testing.T
}

// NewTempTree creates an empty source tree that is removed when the test ends
func NewTempTree(t *testing.T) *TempTree {
	t.Helper()

	return &TempTree{
		Path: t.TempDir(),
		T:    t,
	}
}

// CreateFile creates a file in the tree, making parent directories as needed
func (r *TempTree) CreateFile(name, content string) string {
	r.T.Helper()
	path := filepath.Join(r.Path, filepath.FromSlash(name))
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		r.T.Fatalf("failed to create directory: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		r.T.Fatalf("failed to create file: %v", err)
	}
	return path
}

// Dir returns the path of a (possibly not yet existing) directory in the tree
func (r *TempTree) Dir(name string) string {
	return filepath.Join(r.Path, filepath.FromSlash(name))
}

// ReadFile returns the content of a file in the tree
func (r *TempTree) ReadFile(name string) string {
	r.T.Helper()
	data, err := os.ReadFile(filepath.Join(r.Path, filepath.FromSlash(name)))
	if err != nil {
		r.T.Fatalf("failed to read file: %v", err)
	}
	return string(data)
}

// ListDir returns the sorted names of the entries in a directory of the tree
func (r *TempTree) ListDir(name string) []string {
	r.T.Helper()
	entries, err := os.ReadDir(r.Dir(name))
	if err != nil {
		r.T.Fatalf("failed to list directory: %v", err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names
}

// Chdir switches into the tree for the duration of the test
func (r *TempTree) Chdir() {
	r.T.Helper()
	oldWd, err := os.Getwd()
	if err != nil {
		r.T.Fatalf("failed to get working directory: %v", err)
	}
	if err := os.Chdir(r.Path); err != nil {
		r.T.Fatalf("failed to change directory: %v", err)
	}
	r.T.Cleanup(func() { _ = os.Chdir(oldWd) })
}
