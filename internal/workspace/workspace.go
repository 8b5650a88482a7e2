// Package workspace confines filesystem paths to a single root directory.
//
// Resolution is two-phase: the path is first checked lexically, so an
// escape like "../x" is rejected before any filesystem access, then the
// deepest existing ancestor is resolved through symlinks and checked again.
package workspace

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"syscall"
)

// Resolution errors.
var (
	ErrEmptyPath         = errors.New("path must not be empty")
	ErrOutsideWorkspace  = errors.New("path resolves outside the workspace")
	ErrProtectedPath     = errors.New("path is protected")
	ErrInvalidPathString = errors.New("path contains a NUL byte")
)

// DefaultProtected lists workspace-relative paths that may be read but
// never written. A directory entry protects everything beneath it.
var DefaultProtected = []string{
	".env",
	".env.local",
	".env.development",
	".env.production",
	".git",
	"node_modules",
	"package-lock.json",
	"pnpm-lock.yaml",
	"yarn.lock",
}

// Workspace is a root directory plus its write-protected entries.
type Workspace struct {
	// Root is absolute, cleaned, and free of symlinks.
	Root string

	protected []string
}

// New resolves root and returns a Workspace over it. The root must exist
// and be a directory. A nil protected list means DefaultProtected.
func New(root string, protected []string) (*Workspace, error) {
	if root == "" {
		return nil, fmt.Errorf("workspace root: %w", ErrEmptyPath)
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("workspace root %s: %w", root, err)
	}
	real, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return nil, fmt.Errorf("workspace root %s: %w", root, err)
	}
	info, err := os.Stat(real)
	if err != nil {
		return nil, fmt.Errorf("workspace root %s: %w", root, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("workspace root %s: not a directory", root)
	}

	if protected == nil {
		protected = DefaultProtected
	}
	normalized := make([]string, 0, len(protected))
	for _, p := range protected {
		p = filepath.ToSlash(filepath.Clean(strings.TrimPrefix(p, "./")))
		if p != "." && p != "" {
			normalized = append(normalized, p)
		}
	}

	return &Workspace{Root: real, protected: normalized}, nil
}

// Resolve maps path, absolute or relative to Root, to an absolute path
// inside the workspace. The root itself is a valid result.
func (w *Workspace) Resolve(path string) (string, error) {
	if path == "" {
		return "", ErrEmptyPath
	}
	if strings.ContainsRune(path, 0) {
		return "", ErrInvalidPathString
	}

	var abs string
	if filepath.IsAbs(path) {
		abs = filepath.Clean(path)
	} else {
		abs = filepath.Join(w.Root, path)
	}
	if !w.contains(abs) {
		return "", fmt.Errorf("%w: %s", ErrOutsideWorkspace, path)
	}

	real, err := resolveExisting(abs)
	if err != nil {
		return "", fmt.Errorf("resolving %s: %w", path, err)
	}
	if !w.contains(real) {
		return "", fmt.Errorf("%w: %s", ErrOutsideWorkspace, path)
	}
	return abs, nil
}

// Rel returns abs relative to Root with forward slashes, for display and
// audit entries.
func (w *Workspace) Rel(abs string) string {
	rel, err := filepath.Rel(w.Root, abs)
	if err != nil {
		return abs
	}
	return filepath.ToSlash(rel)
}

// Protected reports whether abs is, or lies under, a protected entry.
func (w *Workspace) Protected(abs string) bool {
	rel := w.Rel(abs)
	for _, p := range w.protected {
		if rel == p || strings.HasPrefix(rel, p+"/") {
			return true
		}
	}
	return false
}

// CheckWritable resolves path and rejects protected targets.
func (w *Workspace) CheckWritable(path string) (string, error) {
	abs, err := w.Resolve(path)
	if err != nil {
		return "", err
	}
	if abs == w.Root || w.Protected(abs) {
		return "", fmt.Errorf("%w: %s", ErrProtectedPath, w.Rel(abs))
	}
	return abs, nil
}

// ProtectedEntries returns a copy of the protected list.
func (w *Workspace) ProtectedEntries() []string {
	return slices.Clone(w.protected)
}

func (w *Workspace) contains(abs string) bool {
	rel, err := filepath.Rel(w.Root, abs)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) && !filepath.IsAbs(rel)
}

// resolveExisting follows symlinks on the deepest existing ancestor of
// abs and re-appends the missing tail.
func resolveExisting(abs string) (string, error) {
	cur := abs
	for {
		real, err := filepath.EvalSymlinks(cur)
		if err == nil {
			tail, relErr := filepath.Rel(cur, abs)
			if relErr != nil {
				return "", relErr
			}
			return filepath.Join(real, tail), nil
		}
		if !errors.Is(err, fs.ErrNotExist) && !errors.Is(err, fs.ErrInvalid) && !isNotDir(err) {
			return "", err
		}
		if info, lerr := os.Lstat(cur); lerr == nil && info.Mode()&fs.ModeSymlink != 0 {
			// A dangling link could be created through later.
			return "", fmt.Errorf("dangling symlink %s: %w", cur, ErrOutsideWorkspace)
		}
		parent := filepath.Dir(cur)
		if parent == cur {
			return abs, nil
		}
		cur = parent
	}
}

func isNotDir(err error) bool {
	return errors.Is(err, syscall.ENOTDIR)
}
