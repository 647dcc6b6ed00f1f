package models

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubLister struct {
	mu    sync.Mutex
	ids   []string
	err   error
	calls int
}

func (s *stubLister) ListModels(context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return s.ids, nil
}

func (s *stubLister) set(ids []string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ids, s.err = ids, err
}

type clock struct{ t time.Time }

func (c *clock) now() time.Time          { return c.t }
func (c *clock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestRegistry(lister Lister, patterns ...string) (*Registry, *clock) {
	c := &clock{t: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
	r := NewRegistry(lister, &Config{TTL: time.Minute, RawPatterns: patterns}, nil)
	r.now = c.now
	return r, c
}

func TestRegistry_RefreshHonoursTTL(t *testing.T) {
	lister := &stubLister{ids: []string{"a", "b"}}
	r, c := newTestRegistry(lister)

	assert.Equal(t, []string{"a", "b"}, r.Refresh(context.Background(), false))
	assert.Equal(t, 1, lister.calls)

	c.advance(30 * time.Second)
	r.Refresh(context.Background(), false)
	assert.Equal(t, 1, lister.calls, "fresh cache is served without a call")

	r.Refresh(context.Background(), true)
	assert.Equal(t, 2, lister.calls, "force always fetches")

	c.advance(61 * time.Second)
	r.Refresh(context.Background(), false)
	assert.Equal(t, 3, lister.calls, "stale cache is refetched")
}

func TestRegistry_FailedRefreshKeepsStaleCache(t *testing.T) {
	lister := &stubLister{ids: []string{"a"}}
	r, c := newTestRegistry(lister)
	r.Refresh(context.Background(), false)
	fetched := r.FetchedAt()

	lister.set(nil, errors.New("connection refused"))
	c.advance(2 * time.Minute)

	assert.Equal(t, []string{"a"}, r.Refresh(context.Background(), false))
	assert.True(t, r.IsAvailable("a"))
	assert.Equal(t, fetched, r.FetchedAt())

	_, err := r.Fetch(context.Background())
	assert.Error(t, err)
}

func TestRegistry_EmptyCacheAlwaysRefetches(t *testing.T) {
	lister := &stubLister{}
	r, _ := newTestRegistry(lister)
	r.Refresh(context.Background(), false)
	r.Refresh(context.Background(), false)
	assert.Equal(t, 2, lister.calls)
	assert.Empty(t, r.Models())
}

func TestRegistry_IsAvailable(t *testing.T) {
	r, _ := newTestRegistry(&stubLister{ids: []string{"qwen2.5-7b-instruct"}})
	assert.False(t, r.IsAvailable("qwen2.5-7b-instruct"), "nothing cached before the first refresh")

	r.Refresh(context.Background(), false)
	assert.True(t, r.IsAvailable("qwen2.5-7b-instruct"))
	assert.False(t, r.IsAvailable("qwen2.5"))
}

func TestRegistry_IsRawPreferred(t *testing.T) {
	r, _ := newTestRegistry(&stubLister{}, "mistral-*", " exact.model ", "*-base", "a?b[1]*")

	tests := map[string]bool{
		"mistral-7b":        true,
		"mistral":           false,
		"exact.model":       true,
		"exactXmodel":       false,
		"llama-3-8b-base":   true,
		"llama-3-8b-base-q": false,
		"a?b[1]-x":          true,
		"axb1-x":            false,
	}
	for id, want := range tests {
		assert.Equal(t, want, r.IsRawPreferred(id), id)
	}
}

func TestRegistry_ConcurrentAccess(t *testing.T) {
	lister := &stubLister{ids: []string{"a", "b", "c"}}
	r, _ := newTestRegistry(lister)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(force bool) {
			defer wg.Done()
			r.Refresh(context.Background(), force)
			_ = r.IsAvailable("b")
		}(i%2 == 0)
	}
	wg.Wait()
	require.True(t, r.IsAvailable("b"))
}
