package cache_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fmeflow/fmeflow-cli/internal/cache"
)

type param struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

func TestStore_PutAndGet(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	s := cache.NewStore(dir, "params", "https://fme.example.com", "Samples", "clip.fmw")

	items := []param{{Name: "AreaOfInterest", Type: "GEOMETRY"}, {Name: "FORMAT", Type: "CHOICE"}}
	s.Put(ctx, items)

	var got []param
	if !s.Get(ctx, &got) {
		t.Fatal("expected cache hit")
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 items, got %d", len(got))
	}
	if got[0].Name != "AreaOfInterest" || got[1].Type != "CHOICE" {
		t.Fatalf("unexpected items: %+v", got)
	}
}

func TestStore_ExpiredTTL(t *testing.T) {
	ctx := context.Background()
	s := cache.NewStoreWithTTL(t.TempDir(), "params", time.Millisecond, "https://fme.example.com")

	s.Put(ctx, []string{"a"})
	time.Sleep(5 * time.Millisecond)

	var got []string
	if s.Get(ctx, &got) {
		t.Fatal("expected cache miss after TTL expiry")
	}
}

func TestStore_MissOnEmpty(t *testing.T) {
	s := cache.NewStore(t.TempDir(), "params", "https://fme.example.com")

	var got []string
	if s.Get(context.Background(), &got) {
		t.Fatal("expected cache miss on empty store")
	}
}

func TestStore_Clear(t *testing.T) {
	ctx := context.Background()
	s := cache.NewStore(t.TempDir(), "params", "https://fme.example.com")

	s.Put(ctx, []string{"a"})
	s.Clear(ctx)

	var got []string
	if s.Get(ctx, &got) {
		t.Fatal("expected cache miss after clear")
	}
}

func TestStore_ScopesAreSeparate(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	s1 := cache.NewStore(dir, "params", "https://fme.example.com", "Samples", "a.fmw")
	s2 := cache.NewStore(dir, "params", "https://fme.example.com", "Samples", "b.fmw")

	s1.Put(ctx, []string{"a"})
	s2.Put(ctx, []string{"b"})

	var got1, got2 []string
	s1.Get(ctx, &got1)
	s2.Get(ctx, &got2)

	if got1[0] != "a" || got2[0] != "b" {
		t.Fatal("workspaces should have separate caches")
	}
}

func TestClearAll(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	cache.NewStore(dir, "params", "https://fme.example.com", "x").Put(ctx, []string{"a"})
	cache.NewStore(dir, "repositories", "https://fme.example.com").Put(ctx, []string{"b"})

	cache.ClearAll(dir)

	files, _ := filepath.Glob(filepath.Join(dir, "*.json"))
	if len(files) != 0 {
		t.Fatalf("expected no cache files after ClearAll, got %d", len(files))
	}
}

func TestStore_DisabledByEnv(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	t.Setenv(cache.EnvNoCache, "1")

	s := cache.NewStore(dir, "params", "https://fme.example.com")
	s.Put(ctx, []string{"a"})

	var got []string
	if s.Get(ctx, &got) {
		t.Fatal("expected cache miss when disabled via env")
	}

	files, _ := os.ReadDir(dir)
	if len(files) != 0 {
		t.Fatal("expected no files written when cache disabled")
	}
}
