package util

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrPathTraversal indicates a path traversal attempt was detected
var ErrPathTraversal = errors.New("path traversal attempt detected")

// ErrSymlinkNotAllowed indicates a symlink was detected and is not allowed
var ErrSymlinkNotAllowed = errors.New("symlink not allowed")

// ErrPathOutsideAllowedDir indicates the path is outside the allowed directory
var ErrPathOutsideAllowedDir = errors.New("path outside allowed directory")

// SafeJoin joins name onto baseDir and returns the absolute result, refusing any name
// that would resolve outside baseDir. Rule IDs become file names, so a name must be a
// single path element.
func SafeJoin(baseDir, name string) (string, error) {
	if baseDir == "" {
		return "", fmt.Errorf("base directory cannot be empty")
	}
	if !IsPathSafe(name) {
		return "", fmt.Errorf("%w: %q", ErrPathTraversal, name)
	}
	if strings.ContainsAny(name, `/\`) {
		return "", fmt.Errorf("%w: %q contains a separator", ErrPathTraversal, name)
	}

	absBase, err := filepath.Abs(baseDir)
	if err != nil {
		return "", fmt.Errorf("failed to resolve base directory: %w", err)
	}
	absPath := filepath.Join(absBase, name)
	if !within(absBase, absPath) {
		return "", ErrPathOutsideAllowedDir
	}
	return absPath, nil
}

// ValidateFilePath resolves path (relative paths against allowedDir) and requires the
// result to stay inside allowedDir. With checkSymlinks set, the target and, when it
// does not exist yet, its parent must not be symlinks.
func ValidateFilePath(path, allowedDir string, checkSymlinks bool) (string, error) {
	if path == "" {
		return "", fmt.Errorf("file path cannot be empty")
	}
	if allowedDir == "" {
		return "", fmt.Errorf("allowed directory cannot be empty")
	}
	if !IsPathSafe(path) {
		return "", ErrPathTraversal
	}

	absAllowedDir, err := filepath.Abs(allowedDir)
	if err != nil {
		return "", fmt.Errorf("failed to resolve allowed directory: %w", err)
	}
	absPath := filepath.Clean(path)
	if !filepath.IsAbs(absPath) {
		absPath = filepath.Join(absAllowedDir, absPath)
	}
	if !within(absAllowedDir, absPath) {
		return "", ErrPathOutsideAllowedDir
	}

	if checkSymlinks {
		fi, err := os.Lstat(absPath)
		if err != nil {
			parent, perr := os.Lstat(filepath.Dir(absPath))
			if perr != nil {
				return "", fmt.Errorf("failed to check parent directory: %w", perr)
			}
			if parent.Mode()&os.ModeSymlink != 0 {
				return "", ErrSymlinkNotAllowed
			}
		} else if fi.Mode()&os.ModeSymlink != 0 {
			return "", ErrSymlinkNotAllowed
		}
	}

	return absPath, nil
}

// IsPathSafe checks if a path is safe (no traversal, no null bytes, reasonable length)
func IsPathSafe(path string) bool {
	if path == "" || len(path) > 2048 {
		return false
	}
	if strings.Contains(path, "..") {
		return false
	}
	return !strings.Contains(path, "\x00")
}

func within(base, path string) bool {
	rel, err := filepath.Rel(base, path)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
