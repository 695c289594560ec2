// Package memory implements an in-memory mission store.
package memory

import (
	"sort"
	"sync"

	"github.com/untoldecay/mission-control/internal/storage"
	"github.com/untoldecay/mission-control/internal/types"
)

// MissionCache is a mutex-guarded map of missions keyed by storage key.
type MissionCache struct {
	mu       sync.RWMutex
	missions map[string]*types.Mission
}

var _ storage.MissionStore = (*MissionCache)(nil)

// New creates an empty cache.
func New() *MissionCache {
	return &MissionCache{missions: make(map[string]*types.Mission)}
}

func (c *MissionCache) Upsert(key string, m *types.Mission) *types.Mission {
	c.mu.Lock()
	defer c.mu.Unlock()

	prev := c.missions[key]
	stored := m.Clone()
	stored.StorageKey = key
	c.missions[key] = stored
	return prev
}

func (c *MissionCache) Get(key string) (*types.Mission, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	m, ok := c.missions[key]
	if !ok {
		return nil, false
	}
	return m.Clone(), true
}

func (c *MissionCache) Delete(key string) *types.Mission {
	c.mu.Lock()
	defer c.mu.Unlock()

	m, ok := c.missions[key]
	if !ok {
		return nil
	}
	delete(c.missions, key)
	return m
}

func (c *MissionCache) List() []*types.Mission {
	c.mu.RLock()
	keys := make([]string, 0, len(c.missions))
	for k := range c.missions {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]*types.Mission, 0, len(keys))
	for _, k := range keys {
		out = append(out, c.missions[k].Clone())
	}
	c.mu.RUnlock()
	return out
}

func (c *MissionCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.missions)
}

// Replace swaps the whole contents for missions, keyed by their StorageKey.
func (c *MissionCache) Replace(missions []*types.Mission) {
	next := make(map[string]*types.Mission, len(missions))
	for _, m := range missions {
		next[m.StorageKey] = m.Clone()
	}
	c.mu.Lock()
	c.missions = next
	c.mu.Unlock()
}
