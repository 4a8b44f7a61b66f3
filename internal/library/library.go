// Package library resolves requested file paths against the read-only
// library root, guarding against traversal outside the root and
// rejecting anything that is not a regular file.
package library

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// ErrPathEscape is returned when a requested path, once canonicalized,
// does not lie under the library root.
var ErrPathEscape = errors.New("library: path escapes library root")

// ErrNotRegularFile is returned when the resolved path exists but is
// not a plain file (a directory, socket, symlink to one, etc).
var ErrNotRegularFile = errors.New("library: not a regular file")

// ErrFileNotFound is returned when the resolved path does not exist.
var ErrFileNotFound = errors.New("library: file not found")

// Library resolves relative paths against a fixed root.
type Library struct {
	root string
}

// New returns a Library rooted at root. root is canonicalized once at
// construction so every later Resolve only needs a prefix check.
func New(root string) (*Library, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("library: resolve root: %w", err)
	}
	resolved, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return nil, fmt.Errorf("library: resolve root: %w", err)
	}
	return &Library{root: resolved}, nil
}

// Resolved is a library file that has passed the traversal and
// regular-file checks.
type Resolved struct {
	// AbsPath is the canonical filesystem path, safe to open or link.
	AbsPath string
	// Size is the file size in bytes.
	Size int64
}

// Resolve validates relPath against the library root: it must
// canonicalize to a path under the root, and must name a regular
// file. This canonicalize-then-verify-prefix
// order is what defeats `../` traversal and symlink escapes alike.
func (l *Library) Resolve(relPath string) (Resolved, error) {
	if relPath == "" || strings.Contains(relPath, "\x00") {
		return Resolved{}, ErrPathEscape
	}
	if clean := filepath.Clean(relPath); clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return Resolved{}, ErrPathEscape
	}

	candidate := filepath.Join(l.root, filepath.Clean("/"+relPath))

	_, err := os.Lstat(candidate)
	if errors.Is(err, os.ErrNotExist) {
		return Resolved{}, ErrFileNotFound
	}
	if err != nil {
		return Resolved{}, fmt.Errorf("library: stat %s: %w", relPath, err)
	}

	resolved, err := filepath.EvalSymlinks(candidate)
	if err != nil {
		return Resolved{}, fmt.Errorf("library: resolve symlink %s: %w", relPath, err)
	}
	info, err := os.Stat(resolved)
	if err != nil {
		return Resolved{}, fmt.Errorf("library: stat resolved %s: %w", relPath, err)
	}

	if !isUnderRoot(l.root, resolved) {
		return Resolved{}, ErrPathEscape
	}
	if !info.Mode().IsRegular() {
		return Resolved{}, ErrNotRegularFile
	}

	return Resolved{AbsPath: resolved, Size: info.Size()}, nil
}

func isUnderRoot(root, path string) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// List walks the library root and returns every regular file's
// path relative to the root, forward-slash separated, sorted, with
// dotfiles and dot-directories omitted — backing GET /api/files.
func (l *Library) List() ([]string, error) {
	var out []string
	err := filepath.Walk(l.root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		name := info.Name()
		if info.IsDir() {
			if path != l.root && strings.HasPrefix(name, ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if strings.HasPrefix(name, ".") {
			return nil
		}
		if !info.Mode().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(l.root, path)
		if err != nil {
			return err
		}
		out = append(out, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("library: list: %w", err)
	}
	sort.Strings(out)
	return out, nil
}
