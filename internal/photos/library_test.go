package photos

import (
	"context"
	"errors"
	"io"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/spf13/afero"
)

func newTestLibrary(t *testing.T, fs afero.Fs) *Library {
	t.Helper()
	lib, err := NewLibrary(fs, "/data/photos", []string{"/legacy/pictures"}, time.Second)
	if err != nil {
		t.Fatalf("new library: %v", err)
	}
	return lib
}

func writeFile(t *testing.T, fs afero.Fs, path, body string) {
	t.Helper()
	if err := afero.WriteFile(fs, path, []byte(body), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func TestSaveOverwrites(t *testing.T) {
	fs := afero.NewMemMapFs()
	lib := newTestLibrary(t, fs)

	if _, err := lib.Save("rose.jpg", strings.NewReader("first")); err != nil {
		t.Fatalf("save: %v", err)
	}
	path, err := lib.Save("rose.jpg", strings.NewReader("second"))
	if err != nil {
		t.Fatalf("save again: %v", err)
	}
	if path != "/data/photos/rose.jpg" {
		t.Fatalf("unexpected path %q", path)
	}
	got, err := afero.ReadFile(fs, path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(got) != "second" {
		t.Fatalf("expected overwrite, got %q", got)
	}
}

func TestSaveRejectsBadNames(t *testing.T) {
	lib := newTestLibrary(t, afero.NewMemMapFs())
	for _, name := range []string{"", ".", "..", "../../etc/passwd"} {
		if _, err := lib.Save(name, strings.NewReader("x")); !errors.Is(err, ErrInvalidName) {
			t.Fatalf("Save(%q): expected ErrInvalidName, got %v", name, err)
		}
	}
}

func TestResolveFallbackChain(t *testing.T) {
	fs := afero.NewMemMapFs()
	lib := newTestLibrary(t, fs)
	writeFile(t, fs, "/elsewhere/exact.jpg", "a")
	writeFile(t, fs, "/data/photos/moved.jpg", "b")
	writeFile(t, fs, "/legacy/pictures/old.jpg", "c")

	tests := []struct {
		uri  string
		want string
	}{
		{"/elsewhere/exact.jpg", "/elsewhere/exact.jpg"},
		{"file:///elsewhere/exact.jpg", "/elsewhere/exact.jpg"},
		{"file:///var/mobile/cache/moved.jpg", "/data/photos/moved.jpg"},
		{"moved.jpg", "/data/photos/moved.jpg"},
		{"/tmp/old.jpg", "/legacy/pictures/old.jpg"},
	}
	for _, tt := range tests {
		got, err := lib.Resolve(context.Background(), tt.uri)
		if err != nil {
			t.Fatalf("Resolve(%q): %v", tt.uri, err)
		}
		if got != tt.want {
			t.Fatalf("Resolve(%q) = %q, want %q", tt.uri, got, tt.want)
		}
	}

	if _, err := lib.Resolve(context.Background(), "missing.jpg"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := lib.Resolve(context.Background(), ""); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for empty uri, got %v", err)
	}
}

type slowFs struct {
	afero.Fs
	block chan struct{}
}

func (s slowFs) Stat(name string) (os.FileInfo, error) {
	<-s.block
	return s.Fs.Stat(name)
}

func TestResolveStatTimeout(t *testing.T) {
	base := afero.NewMemMapFs()
	writeFile(t, base, "/data/photos/rose.jpg", "a")
	fs := slowFs{Fs: base, block: make(chan struct{})}
	defer close(fs.block)

	lib, err := NewLibrary(fs, "/data/photos", nil, 20*time.Millisecond)
	if err != nil {
		t.Fatalf("new library: %v", err)
	}
	if _, err := lib.Resolve(context.Background(), "rose.jpg"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected hanging stat to count as missing, got %v", err)
	}
}

func TestOpenAndRemove(t *testing.T) {
	fs := afero.NewMemMapFs()
	lib := newTestLibrary(t, fs)
	ctx := context.Background()
	if _, err := lib.Save("fern.png", strings.NewReader("leaf")); err != nil {
		t.Fatalf("save: %v", err)
	}

	f, err := lib.Open(ctx, "file:///somewhere/fern.png")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	body, _ := io.ReadAll(f)
	_ = f.Close()
	if string(body) != "leaf" {
		t.Fatalf("unexpected body %q", body)
	}

	if err := lib.Remove(ctx, "fern.png"); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if err := lib.Remove(ctx, "fern.png"); err != nil {
		t.Fatalf("second remove should be a no-op, got %v", err)
	}
}

func TestBaseName(t *testing.T) {
	tests := map[string]string{
		"file:///a/b/rose.jpg": "rose.jpg",
		"/a/b/rose.jpg":        "rose.jpg",
		"rose.jpg":             "rose.jpg",
		"":                     "",
		"/":                    "",
	}
	for in, want := range tests {
		if got := BaseName(in); got != want {
			t.Fatalf("BaseName(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestRemoveOnlyTouchesLibraryDir(t *testing.T) {
	fs := afero.NewMemMapFs()
	lib := newTestLibrary(t, fs)
	ctx := context.Background()
	writeFile(t, fs, "/home/u/.ssh/id_rsa", "secret")
	writeFile(t, fs, "/legacy/pictures/rose.jpg", "old rose")
	writeFile(t, fs, "/data/photos/fern.jpg", "fern")
	writeFile(t, fs, "/home/u/fern.jpg", "own fern")

	for _, uri := range []string{"/home/u/.ssh/id_rsa", "file:///home/u/.ssh/id_rsa", "rose.jpg", "/data/photos/../../home/u/.ssh/id_rsa"} {
		if err := lib.Remove(ctx, uri); err != nil {
			t.Fatalf("Remove(%q): %v", uri, err)
		}
	}
	if err := lib.Remove(ctx, "/home/u/fern.jpg"); err != nil {
		t.Fatalf("remove fern: %v", err)
	}

	for path, want := range map[string]bool{
		"/home/u/.ssh/id_rsa":       true,
		"/legacy/pictures/rose.jpg": true,
		"/home/u/fern.jpg":          true,
		"/data/photos/fern.jpg":     false,
	} {
		if ok, _ := afero.Exists(fs, path); ok != want {
			t.Fatalf("%s exists = %t, want %t", path, ok, want)
		}
	}
}

func TestOpenStaysInsideKnownDirs(t *testing.T) {
	fs := afero.NewMemMapFs()
	lib := newTestLibrary(t, fs)
	ctx := context.Background()
	writeFile(t, fs, "/etc/passwd", "root")
	writeFile(t, fs, "/legacy/pictures/old.jpg", "c")

	if _, err := lib.Open(ctx, "/etc/passwd"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound outside the library, got %v", err)
	}
	f, err := lib.Open(ctx, "/tmp/old.jpg")
	if err != nil {
		t.Fatalf("open from search dir: %v", err)
	}
	_ = f.Close()
}
