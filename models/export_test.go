package models

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"
)

// MemoryEdgeCache stands in for Redis behind LoadConversionGraph.
type MemoryEdgeCache struct {
	mu      sync.Mutex
	entries map[string][]byte
	Hits    int
}

func UseMemoryEdgeCache(t *testing.T) *MemoryEdgeCache {
	t.Helper()
	c := &MemoryEdgeCache{entries: map[string][]byte{}}
	prevRead, prevWrite := readEdgeCache, writeEdgeCache
	readEdgeCache = c.get
	writeEdgeCache = c.set
	t.Cleanup(func() { readEdgeCache, writeEdgeCache = prevRead, prevWrite })
	return c
}

func (c *MemoryEdgeCache) get(ctx context.Context, key string, dest any) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	raw, ok := c.entries[key]
	if !ok {
		return false, nil
	}
	c.Hits++
	return true, json.Unmarshal(raw, dest)
}

func (c *MemoryEdgeCache) set(ctx context.Context, key string, obj any, exp time.Duration) error {
	raw, err := json.Marshal(obj)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = raw
	return nil
}

// Keys lists the cached entries.
func (c *MemoryEdgeCache) Keys() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	keys := make([]string, 0, len(c.entries))
	for k := range c.entries {
		keys = append(keys, k)
	}
	return keys
}

// Overwrite replaces every cached entry with obj, the way a slow reader
// finishing late would.
func (c *MemoryEdgeCache) Overwrite(obj any) error {
	raw, err := json.Marshal(obj)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for k := range c.entries {
		c.entries[k] = raw
	}
	return nil
}
