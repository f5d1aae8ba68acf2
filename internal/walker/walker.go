// Package walker enumerates the files below a root directory.
package walker

import (
	"io/fs"
	"iter"
	"os"
	"path/filepath"
)

// Files returns every non-directory entry below root as a path relative to
// root, using forward slashes. Entries come out in lexical order. Each call
// starts a fresh traversal.
//
// Symlinked directories are neither descended into nor yielded, so there is
// no cycle detection. A symlink to a file is yielded like a file, and a
// broken symlink is yielded too so that reading it reports the error.
func Files(root string) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		stopped := false
		err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				return nil
			}
			if d.Type()&fs.ModeSymlink != 0 {
				if info, err := os.Stat(path); err == nil && info.IsDir() {
					return nil
				}
			}

			rel, err := filepath.Rel(root, path)
			if err != nil {
				return err
			}
			if !yield(filepath.ToSlash(rel), nil) {
				stopped = true
				return fs.SkipAll
			}
			return nil
		})
		if err != nil && !stopped {
			yield("", err)
		}
	}
}

// Collect drains Files into a slice, stopping at the first error
func Collect(root string) ([]string, error) {
	var out []string
	for rel, err := range Files(root) {
		if err != nil {
			return nil, err
		}
		out = append(out, rel)
	}
	return out, nil
}
