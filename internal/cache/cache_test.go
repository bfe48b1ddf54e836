package cache

import (
	"bytes"
	"context"
	"errors"
	"log"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

type record struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

func openTestCache(t *testing.T) *SQLite {
	t.Helper()
	c, err := Open(filepath.Join(t.TempDir(), "cache", "garden-cache.db"))
	if err != nil {
		t.Fatalf("open cache: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestLoadMissingKey(t *testing.T) {
	c := openTestCache(t)
	records, ok, err := Load[record](context.Background(), c, Key(Plants, "u1"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if ok || records != nil {
		t.Fatalf("expected miss, got ok=%t records=%v", ok, records)
	}
}

func TestSaveReplacesWholeCollection(t *testing.T) {
	c := openTestCache(t)
	ctx := context.Background()
	key := Key(Tasks, "u1")

	first := []record{{ID: "a", Name: "basil"}, {ID: "b", Name: "mint"}}
	if err := Save(ctx, c, key, first); err != nil {
		t.Fatalf("save first: %v", err)
	}
	second := []record{{ID: "c", Name: "sage"}}
	if err := Save(ctx, c, key, second); err != nil {
		t.Fatalf("save second: %v", err)
	}

	got, ok, err := Load[record](ctx, c, key)
	if err != nil || !ok {
		t.Fatalf("load: ok=%t err=%v", ok, err)
	}
	if diff := cmp.Diff(second, got); diff != "" {
		t.Fatalf("cached records mismatch (-want +got):\n%s", diff)
	}
}

func TestKeysArePerUser(t *testing.T) {
	c := openTestCache(t)
	ctx := context.Background()
	if err := Save(ctx, c, Key(Plants, "u1"), []record{{ID: "a"}}); err != nil {
		t.Fatalf("save: %v", err)
	}
	_, ok, err := Load[record](ctx, c, Key(Plants, "u2"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if ok {
		t.Fatal("u2 must not see u1's cache entry")
	}
}

func TestSaveNilStoresEmptyList(t *testing.T) {
	c := openTestCache(t)
	ctx := context.Background()
	key := Key(Journal, "u1")
	if err := Save[record](ctx, c, key, nil); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, ok, err := Load[record](ctx, c, key)
	if err != nil || !ok {
		t.Fatalf("load: ok=%t err=%v", ok, err)
	}
	if got == nil || len(got) != 0 {
		t.Fatalf("expected empty non-nil slice, got %#v", got)
	}
}

func TestTieredRead(t *testing.T) {
	ctx := context.Background()
	errRemote := errors.New("remote down")
	key := Key(Tasks, "u1")

	t.Run("remote success writes through", func(t *testing.T) {
		c := openTestCache(t)
		tier := NewTiered[record](c, log.New(&bytes.Buffer{}, "", 0))
		want := []record{{ID: "a"}}
		got, err := tier.Read(ctx, key, func(context.Context) ([]record, error) { return want, nil })
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		if diff := cmp.Diff(want, got); diff != "" {
			t.Fatalf("mismatch (-want +got):\n%s", diff)
		}
		cached, ok, _ := Load[record](ctx, c, key)
		if !ok || len(cached) != 1 {
			t.Fatalf("expected write-through, got ok=%t %v", ok, cached)
		}
	})

	t.Run("remote failure serves cache", func(t *testing.T) {
		c := openTestCache(t)
		var logs bytes.Buffer
		tier := NewTiered[record](c, log.New(&logs, "", 0))
		cached := []record{{ID: "old"}}
		if err := Save(ctx, c, key, cached); err != nil {
			t.Fatalf("seed: %v", err)
		}
		got, err := tier.Read(ctx, key, func(context.Context) ([]record, error) { return nil, errRemote })
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		if diff := cmp.Diff(cached, got); diff != "" {
			t.Fatalf("mismatch (-want +got):\n%s", diff)
		}
		if !strings.Contains(logs.String(), "[warn]") {
			t.Fatalf("expected a warning, got %q", logs.String())
		}
	})

	t.Run("remote failure with empty cache", func(t *testing.T) {
		c := openTestCache(t)
		tier := NewTiered[record](c, log.New(&bytes.Buffer{}, "", 0))
		_, err := tier.Read(ctx, key, func(context.Context) ([]record, error) { return nil, errRemote })
		if !errors.Is(err, errRemote) {
			t.Fatalf("expected remote error, got %v", err)
		}
	})
}
