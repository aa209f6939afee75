package auth

import (
	"context"
	"sync"
	"time"
)

// directoryCacheTTL bounds how long a user's group list is reused
// before asking the directory again.
const directoryCacheTTL = 30 * time.Minute

// Directory answers group membership questions for user ids.
type Directory interface {
	MemberGroups(ctx context.Context, userID string) ([]string, error)
}

// StaticDirectory is a Directory backed by a fixed map. Used in tests
// and in deployments without a directory service.
type StaticDirectory map[string][]string

func (d StaticDirectory) MemberGroups(_ context.Context, userID string) ([]string, error) {
	return d[userID], nil
}

type cacheEntry struct {
	groups  []string
	expires time.Time
}

type groupCache struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[string]cacheEntry
}

func newGroupCache(ttl time.Duration) *groupCache {
	return &groupCache{ttl: ttl, entries: make(map[string]cacheEntry)}
}

func (c *groupCache) get(userID string) ([]string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[userID]
	if !ok || time.Now().After(e.expires) {
		return nil, false
	}
	return e.groups, true
}

func (c *groupCache) set(userID string, groups []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[userID] = cacheEntry{groups: groups, expires: time.Now().Add(c.ttl)}
}
