// Package photos stores plant and journal pictures on the local filesystem
// and resolves stored references back to readable files.
package photos

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/afero"
)

var (
	ErrInvalidName = errors.New("photos: invalid file name")
	ErrNotFound    = errors.New("photos: file not found")
)

const defaultStatTimeout = 2 * time.Second

type Library struct {
	fs          afero.Fs
	dir         string
	searchDirs  []string
	statTimeout time.Duration
}

// NewLibrary stores files in dir. searchDirs are extra locations checked by
// Resolve, for pictures that were saved before the library moved.
func NewLibrary(fs afero.Fs, dir string, searchDirs []string, statTimeout time.Duration) (*Library, error) {
	if statTimeout <= 0 {
		statTimeout = defaultStatTimeout
	}
	if err := fs.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create photo dir %q: %w", dir, err)
	}
	return &Library{fs: fs, dir: dir, searchDirs: searchDirs, statTimeout: statTimeout}, nil
}

func (l *Library) Dir() string {
	return l.dir
}

// Path is where a file with this name is stored.
func (l *Library) Path(name string) (string, error) {
	clean, err := cleanName(name)
	if err != nil {
		return "", err
	}
	return filepath.Join(l.dir, clean), nil
}

// Save writes r under name, replacing any file with the same name.
func (l *Library) Save(name string, r io.Reader) (string, error) {
	path, err := l.Path(name)
	if err != nil {
		return "", err
	}
	f, err := l.fs.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return "", fmt.Errorf("open %q: %w", path, err)
	}
	if _, err := io.Copy(f, r); err != nil {
		_ = f.Close()
		return "", fmt.Errorf("write %q: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("close %q: %w", path, err)
	}
	return path, nil
}

// Open reads the file a reference resolves to inside the library or one of
// the search directories. Files elsewhere on disk are never opened.
func (l *Library) Open(ctx context.Context, uri string) (afero.File, error) {
	roots := append([]string{l.dir}, l.searchDirs...)
	path, err := l.resolveWithin(ctx, uri, roots)
	if err != nil {
		return nil, err
	}
	return l.fs.Open(path)
}

// Remove deletes the library copy of a reference. Files outside the library
// directory, search directories included, are left alone, and a reference
// with no library copy is not an error.
func (l *Library) Remove(ctx context.Context, uri string) error {
	path, err := l.resolveWithin(ctx, uri, []string{l.dir})
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if err := l.fs.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove %q: %w", path, err)
	}
	return nil
}

// Resolve maps a stored reference (file:// URI, absolute path or bare file
// name) to an existing file. Candidates are tried in order: the reference
// itself, the library directory, then each search directory.
func (l *Library) Resolve(ctx context.Context, uri string) (string, error) {
	return l.resolveWithin(ctx, uri, nil)
}

// resolveWithin is Resolve restricted to candidates under one of roots. Nil
// roots means no restriction.
func (l *Library) resolveWithin(ctx context.Context, uri string, roots []string) (string, error) {
	for _, candidate := range l.candidates(uri) {
		if roots != nil && !under(candidate, roots) {
			continue
		}
		ok, err := l.exists(ctx, candidate)
		if err != nil {
			return "", err
		}
		if ok {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("%w: %s", ErrNotFound, uri)
}

func under(path string, roots []string) bool {
	for _, root := range roots {
		rel, err := filepath.Rel(filepath.Clean(root), path)
		if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			continue
		}
		return true
	}
	return false
}

func (l *Library) candidates(uri string) []string {
	raw := strings.TrimSpace(uri)
	if raw == "" {
		return nil
	}
	if strings.HasPrefix(raw, "file://") {
		if u, err := url.Parse(raw); err == nil && u.Path != "" {
			raw = u.Path
		} else {
			raw = strings.TrimPrefix(raw, "file://")
		}
	}

	var out []string
	seen := map[string]bool{}
	add := func(p string) {
		if p == "" || seen[p] {
			return
		}
		seen[p] = true
		out = append(out, p)
	}

	if filepath.IsAbs(raw) {
		add(filepath.Clean(raw))
	}
	base := filepath.Base(filepath.Clean(raw))
	if base == "." || base == string(filepath.Separator) {
		return out
	}
	add(filepath.Join(l.dir, base))
	for _, dir := range l.searchDirs {
		add(filepath.Join(dir, base))
	}
	return out
}

// exists bounds a single stat call by statTimeout. A stat that does not
// answer in time counts as missing.
func (l *Library) exists(ctx context.Context, path string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, l.statTimeout)
	defer cancel()

	done := make(chan bool, 1)
	go func() {
		info, err := l.fs.Stat(path)
		done <- err == nil && !info.IsDir()
	}()

	select {
	case ok := <-done:
		return ok, nil
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.Canceled) {
			return false, ctx.Err()
		}
		return false, nil
	}
}

// BaseName is the library file name for a reference, or "" when it has none.
func BaseName(uri string) string {
	raw := strings.TrimPrefix(strings.TrimSpace(uri), "file://")
	if raw == "" {
		return ""
	}
	base := filepath.Base(filepath.Clean(raw))
	if base == "." || base == string(filepath.Separator) {
		return ""
	}
	return base
}

func cleanName(name string) (string, error) {
	base := filepath.Base(strings.TrimSpace(name))
	if base == "." || base == ".." || base == string(filepath.Separator) || base == "" {
		return "", fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	if base != strings.TrimSpace(name) && strings.Contains(name, "..") {
		return "", fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return base, nil
}
