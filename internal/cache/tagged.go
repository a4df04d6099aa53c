// Package cache is a size and TTL bounded cache whose entries can be
// invalidated in groups by tag.
package cache

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// ErrCacheMiss is returned by Get when the key is absent or expired.
var ErrCacheMiss = errors.New("cache miss")

type entry[V any] struct {
	value V
	tags  []string
	gens  []uint64
}

// Tagged caches values of type V under string keys. Every tag carries a
// generation bumped by InvalidateTag; an entry stored under an older
// generation is never returned.
type Tagged[V any] struct {
	mu    sync.Mutex
	lru   *expirable.LRU[string, entry[V]]
	byTag map[string]map[string]struct{}
	gens  map[string]uint64
}

func NewTagged[V any](size int, ttl time.Duration) *Tagged[V] {
	if size <= 0 {
		size = 1024
	}
	t := &Tagged[V]{
		byTag: make(map[string]map[string]struct{}),
		gens:  make(map[string]uint64),
	}
	t.lru = expirable.NewLRU[string, entry[V]](size, t.onEvict, ttl)
	return t
}

func (t *Tagged[V]) Get(key string) (V, error) {
	var zero V
	e, ok := t.lru.Get(key)
	if !ok {
		return zero, ErrCacheMiss
	}
	if !t.current(e.tags, e.gens) {
		t.lru.Remove(key)
		return zero, ErrCacheMiss
	}
	return e.value, nil
}

func (t *Tagged[V]) Set(key string, value V, tags ...string) {
	t.store(key, value, tags, t.generations(tags))
}

// InvalidateTag drops every entry stored with tag, including entries whose
// load is still in flight.
func (t *Tagged[V]) InvalidateTag(tag string) {
	t.mu.Lock()
	t.gens[tag]++
	keys := t.byTag[tag]
	delete(t.byTag, tag)
	t.mu.Unlock()
	for key := range keys {
		t.lru.Remove(key)
	}
}

// GetOrLoad returns the cached value for key, or calls load and caches its
// result under tags. Load errors are not cached, and neither is a result
// whose tags were invalidated while load ran.
func (t *Tagged[V]) GetOrLoad(ctx context.Context, key string, load func(context.Context) (V, error), tags ...string) (V, error) {
	if v, err := t.Get(key); err == nil {
		return v, nil
	}
	gens := t.generations(tags)
	v, err := load(ctx)
	if err != nil {
		return v, err
	}
	if t.current(tags, gens) {
		t.store(key, v, tags, gens)
	}
	return v, nil
}

func (t *Tagged[V]) store(key string, value V, tags []string, gens []uint64) {
	t.mu.Lock()
	for _, tag := range tags {
		keys, ok := t.byTag[tag]
		if !ok {
			keys = make(map[string]struct{})
			t.byTag[tag] = keys
		}
		keys[key] = struct{}{}
	}
	t.mu.Unlock()
	// onEvict takes t.mu, so Add runs unlocked. An invalidation landing here
	// is still caught by the generation check in Get.
	t.lru.Add(key, entry[V]{value: value, tags: tags, gens: gens})
}

func (t *Tagged[V]) generations(tags []string) []uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]uint64, len(tags))
	for i, tag := range tags {
		out[i] = t.gens[tag]
	}
	return out
}

func (t *Tagged[V]) current(tags []string, gens []uint64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i, tag := range tags {
		if t.gens[tag] != gens[i] {
			return false
		}
	}
	return true
}

func (t *Tagged[V]) Len() int {
	return t.lru.Len()
}

func (t *Tagged[V]) onEvict(key string, e entry[V]) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, tag := range e.tags {
		if keys, ok := t.byTag[tag]; ok {
			delete(keys, key)
			if len(keys) == 0 {
				delete(t.byTag, tag)
			}
		}
	}
}
