package e2e

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/voidhound/recall/internal/store"
)

func newCache(t *testing.T) (*store.Cache, context.Context) {
	t.Helper()
	ctx := context.Background()
	url, cleanup, err := startRedis(ctx)
	skipIfNoDocker(t, err)
	t.Cleanup(cleanup)

	c, err := store.NewCache(url, time.Hour, zap.NewNop())
	if err != nil {
		t.Fatalf("cache adapter: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c, ctx
}

func TestCacheInsertAndGet(t *testing.T) {
	c, ctx := newCache(t)

	id, err := c.Insert(ctx, "cached content", nil, map[string]string{"id": "doc-1"})
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	content, err := c.Get(ctx, id)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if content != "cached content" {
		t.Errorf("content = %q", content)
	}
	if n, _ := c.Count(ctx); n != 1 {
		t.Errorf("count = %d, want 1", n)
	}
}

func TestCacheQueryResultRoundTrip(t *testing.T) {
	c, ctx := newCache(t)

	type payload struct {
		Answer string `json:"answer"`
	}
	if err := c.CacheQueryResult(ctx, "What is Redis?", payload{Answer: "a cache"}); err != nil {
		t.Fatalf("cache write: %v", err)
	}

	var out payload
	hit, err := c.CachedQueryResult(ctx, "what is redis?", &out)
	if err != nil {
		t.Fatalf("cache read: %v", err)
	}
	if !hit || out.Answer != "a cache" {
		t.Errorf("hit=%v out=%+v, want case-insensitive cache hit", hit, out)
	}

	hit, err = c.CachedQueryResult(ctx, "something else entirely", &out)
	if err != nil {
		t.Fatalf("cache read: %v", err)
	}
	if hit {
		t.Error("unexpected hit for a different query")
	}
}

func TestCacheQueryHistoryBounded(t *testing.T) {
	c, ctx := newCache(t)

	for i := 0; i < 110; i++ {
		if err := c.AddQueryHistory(ctx, "query"); err != nil {
			t.Fatalf("history write %d: %v", i, err)
		}
	}
	entries, err := c.QueryHistory(ctx, 0)
	if err != nil {
		t.Fatalf("history read: %v", err)
	}
	if len(entries) > 100 {
		t.Errorf("history holds %d entries, want at most 100", len(entries))
	}
}

func TestCacheDeleteAll(t *testing.T) {
	c, ctx := newCache(t)

	for _, id := range []string{"a", "b"} {
		if _, err := c.Insert(ctx, "content "+id, nil, map[string]string{"id": id}); err != nil {
			t.Fatal(err)
		}
	}
	if err := c.AddQueryHistory(ctx, "some query"); err != nil {
		t.Fatal(err)
	}

	if _, err := c.DeleteAll(ctx); err != nil {
		t.Fatalf("delete all: %v", err)
	}
	if n, _ := c.Count(ctx); n != 0 {
		t.Errorf("count after wipe = %d", n)
	}
}
