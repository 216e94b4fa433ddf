// Package walker enumerates the source files of a project.
package walker

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// DefaultMaxFileSize skips generated bundles and data dumps.
const DefaultMaxFileSize = 1 << 20

// sniffLen is how much of a file is inspected for NUL bytes.
const sniffLen = 8000

// DefaultSkipDirs are directory names never descended into.
var DefaultSkipDirs = []string{
	".git", ".hg", ".svn",
	"node_modules", "vendor", "bower_components",
	"dist", "build", "target", "out", "bin",
	".venv", "venv", "__pycache__", ".tox",
	".idea", ".vscode", ".next", ".cache",
}

// Dir is a project rooted at a directory on disk.
type Dir struct {
	skip        map[string]bool
	Root        string
	MaxFileSize int64
}

// NewDir creates a Dir for root using the default skip list and size cap.
func NewDir(root string) (*Dir, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve project path: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("failed to stat project path: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("project path is not a directory: %s", abs)
	}

	skip := make(map[string]bool, len(DefaultSkipDirs))
	for _, name := range DefaultSkipDirs {
		skip[name] = true
	}

	return &Dir{skip: skip, Root: abs, MaxFileSize: DefaultMaxFileSize}, nil
}

// Files returns the slash-separated paths, relative to Root, of every
// non-empty text file below Root, lexically ordered within each directory.
// Unreadable entries are skipped.
func (d *Dir) Files(ctx context.Context) ([]string, error) {
	var files []string

	err := filepath.WalkDir(d.Root, func(path string, entry fs.DirEntry, err error) error {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if err != nil {
			if path == d.Root {
				return err
			}
			return nil
		}

		if entry.IsDir() {
			if path != d.Root && d.skip[entry.Name()] {
				return filepath.SkipDir
			}
			return nil
		}
		if !entry.Type().IsRegular() {
			return nil
		}

		info, err := entry.Info()
		if err != nil || info.Size() == 0 {
			return nil
		}
		if d.MaxFileSize > 0 && info.Size() > d.MaxFileSize {
			return nil
		}
		if binary, err := isBinary(path); err != nil || binary {
			return nil
		}

		rel, err := filepath.Rel(d.Root, path)
		if err != nil {
			return nil
		}
		files = append(files, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk %s: %w", d.Root, err)
	}

	return files, nil
}

// Read returns the contents of a file returned by Files.
func (d *Dir) Read(rel string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(rel))
	if filepath.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("path escapes project root: %s", rel)
	}

	data, err := os.ReadFile(filepath.Join(d.Root, clean))
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", rel, err)
	}
	return string(data), nil
}

func isBinary(path string) (bool, error) {
	f, err := os.Open(path)
	if err != nil {
		return false, err
	}
	defer func() { _ = f.Close() }()

	buf := make([]byte, sniffLen)
	n, err := io.ReadFull(f, buf)
	if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
		return false, err
	}
	return bytes.IndexByte(buf[:n], 0) >= 0, nil
}
