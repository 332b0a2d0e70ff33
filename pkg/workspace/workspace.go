// Package workspace provides root-confined file access for agents. Every
// path is resolved relative to a fixed root; anything resolving outside the
// root is rejected before touching disk.
package workspace

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/pmezard/go-difflib/difflib"
)

// ErrPathEscape is returned when a path resolves outside the workspace root.
var ErrPathEscape = errors.New("path escapes workspace root")

// ErrReadOnly is returned for writes against a read-only workspace.
var ErrReadOnly = errors.New("workspace is read-only")

// Workspace is the file-access capability the core depends on. Agents reach
// it only through the tool registry, never directly.
type Workspace interface {
	// List returns workspace-relative paths of files matching the glob
	// pattern. An empty pattern matches everything.
	List(pattern string) ([]string, error)

	// Read returns the content of a file inside the root.
	Read(path string) (string, error)

	// Write replaces the content of a file inside the root, creating parent
	// directories as needed.
	Write(path, content string) error

	// Exists reports whether a file exists inside the root.
	Exists(path string) (bool, error)

	// Diff computes a unified diff between two contents, labeled with path.
	Diff(oldContent, newContent, path string) (string, error)

	// Root returns the absolute root directory all operations are confined to.
	Root() string
}

// Dir is a Workspace backed by a directory on the local filesystem.
type Dir struct {
	root       string
	allowWrite bool
}

// NewDir creates a workspace rooted at root. The root must exist.
func NewDir(root string, allowWrite bool) (*Dir, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve workspace root %s: %w", root, err)
	}
	resolved, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return nil, fmt.Errorf("resolve workspace root %s: %w", root, err)
	}
	info, err := os.Stat(resolved)
	if err != nil {
		return nil, fmt.Errorf("stat workspace root %s: %w", root, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("workspace root %s is not a directory", root)
	}
	return &Dir{root: resolved, allowWrite: allowWrite}, nil
}

// Root returns the absolute workspace root.
func (d *Dir) Root() string {
	return d.root
}

// resolve joins path onto the root and verifies the result stays inside it.
// The check happens on the lexically cleaned path so it holds even for files
// that do not exist yet.
func (d *Dir) resolve(path string) (string, error) {
	if filepath.IsAbs(path) {
		return "", fmt.Errorf("%w: %s", ErrPathEscape, path)
	}
	candidate := filepath.Clean(filepath.Join(d.root, path))
	if candidate != d.root && !strings.HasPrefix(candidate, d.root+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %s", ErrPathEscape, path)
	}
	return candidate, nil
}

// List implements Workspace using doublestar glob matching over the root.
func (d *Dir) List(pattern string) ([]string, error) {
	if pattern == "" {
		pattern = "**/*"
	}
	if !doublestar.ValidatePattern(pattern) {
		return nil, fmt.Errorf("invalid glob pattern: %q", pattern)
	}

	var paths []string
	fsys := os.DirFS(d.root)
	err := doublestar.GlobWalk(fsys, pattern, func(path string, entry fs.DirEntry) error {
		if entry.IsDir() {
			return nil
		}
		paths = append(paths, path)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list %q: %w", pattern, err)
	}
	sort.Strings(paths)
	return paths, nil
}

// Read implements Workspace.
func (d *Dir) Read(path string) (string, error) {
	resolved, err := d.resolve(path)
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(resolved)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", path, err)
	}
	return string(data), nil
}

// Write implements Workspace. The escape check runs before any disk
// mutation, so a rejected write never partially succeeds.
func (d *Dir) Write(path, content string) error {
	resolved, err := d.resolve(path)
	if err != nil {
		return err
	}
	if !d.allowWrite {
		return fmt.Errorf("write %s: %w", path, ErrReadOnly)
	}
	if err := os.MkdirAll(filepath.Dir(resolved), 0o755); err != nil {
		return fmt.Errorf("create parent directories for %s: %w", path, err)
	}
	if err := os.WriteFile(resolved, []byte(content), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

// Exists implements Workspace.
func (d *Dir) Exists(path string) (bool, error) {
	resolved, err := d.resolve(path)
	if err != nil {
		return false, err
	}
	_, err = os.Stat(resolved)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	return false, fmt.Errorf("stat %s: %w", path, err)
}

// Diff implements Workspace with a unified diff.
func (d *Dir) Diff(oldContent, newContent, path string) (string, error) {
	diff := difflib.UnifiedDiff{
		A:        difflib.SplitLines(oldContent),
		B:        difflib.SplitLines(newContent),
		FromFile: path,
		ToFile:   path,
		Context:  3,
	}
	text, err := difflib.GetUnifiedDiffString(diff)
	if err != nil {
		return "", fmt.Errorf("diff %s: %w", path, err)
	}
	return text, nil
}
