package toolkit

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/tessellate-ai/loom"
)

// ResolveWithin canonicalises path against the session's project root and
// rejects anything that escapes it. Relative paths are joined to the root;
// symlinks are resolved before the containment check so a link inside the
// project cannot reach outside it.
func ResolveWithin(projectPath, path string) (string, error) {
	if path == "" {
		return "", fmt.Errorf("path is required")
	}
	root, err := resolveExisting(projectPath)
	if err != nil {
		return "", fmt.Errorf("failed to resolve project root: %w", err)
	}
	if !filepath.IsAbs(path) {
		path = filepath.Join(root, path)
	}
	resolved, err := resolveExisting(path)
	if err != nil {
		return "", err
	}
	rel, err := filepath.Rel(root, resolved)
	if err != nil {
		return "", &loom.OutOfBoundsError{Path: path}
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) || filepath.IsAbs(rel) {
		return "", &loom.OutOfBoundsError{Path: path}
	}
	return resolved, nil
}

// resolveExisting resolves symlinks in a path whose final components may not
// exist yet. It walks up to the nearest existing ancestor, resolves that, and
// rejoins the remainder.
func resolveExisting(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("failed to resolve absolute path: %w", err)
	}
	real, err := filepath.EvalSymlinks(abs)
	if err == nil {
		return real, nil
	}
	if !os.IsNotExist(err) {
		return "", fmt.Errorf("failed to resolve symlinks: %w", err)
	}
	dir := abs
	var parts []string
	for {
		parent := filepath.Dir(dir)
		if parent == dir {
			return abs, nil
		}
		parts = append([]string{filepath.Base(dir)}, parts...)
		dir = parent
		if _, err := os.Stat(dir); err == nil {
			realDir, err := filepath.EvalSymlinks(dir)
			if err != nil {
				return "", fmt.Errorf("failed to resolve symlinks: %w", err)
			}
			return filepath.Join(append([]string{realDir}, parts...)...), nil
		}
	}
}
