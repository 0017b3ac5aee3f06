// StayGuard - Authorization and Security Core for the StayNest Lodging Platform
// Copyright 2026 StayNest Engineering
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/staynest/stayguard

package authz

import (
	"strings"
	"sync"
	"time"
)

// permissionCache caches resolved permission sets per user and scope
// context. Entries expire after the TTL; mutations invalidate eagerly.
type permissionCache struct {
	ttl      time.Duration
	mu       sync.RWMutex
	items    map[string]*cacheItem
	stopChan chan struct{}
	stopOnce sync.Once
}

type cacheItem struct {
	permissions map[string]EffectivePermission
	expiresAt   time.Time
}

// newPermissionCache creates a cache with a background janitor.
func newPermissionCache(ttl time.Duration) *permissionCache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	c := &permissionCache{
		ttl:      ttl,
		items:    make(map[string]*cacheItem),
		stopChan: make(chan struct{}),
	}
	go c.cleanup()
	return c
}

// key builds the cache key from user ID and scope context.
func (c *permissionCache) key(userID, stateID, campusID string) string {
	return userID + "|" + stateID + "|" + campusID
}

// get retrieves a cached permission set.
func (c *permissionCache) get(userID, stateID, campusID string) (map[string]EffectivePermission, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	item, ok := c.items[c.key(userID, stateID, campusID)]
	if !ok || time.Now().After(item.expiresAt) {
		return nil, false
	}
	return item.permissions, true
}

// set stores a resolved permission set.
func (c *permissionCache) set(userID, stateID, campusID string, permissions map[string]EffectivePermission) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.items[c.key(userID, stateID, campusID)] = &cacheItem{
		permissions: permissions,
		expiresAt:   time.Now().Add(c.ttl),
	}
	UpdatePermissionCacheSize(len(c.items))
}

// invalidateUser removes every cached set for one user.
func (c *permissionCache) invalidateUser(userID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	prefix := userID + "|"
	for key := range c.items {
		if strings.HasPrefix(key, prefix) {
			delete(c.items, key)
		}
	}
	UpdatePermissionCacheSize(len(c.items))
}

// clear removes all cached sets. Used when a role or permission
// mutation affects an unknown set of users.
func (c *permissionCache) clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = make(map[string]*cacheItem)
	UpdatePermissionCacheSize(0)
}

// cleanup periodically removes expired entries.
func (c *permissionCache) cleanup() {
	ticker := time.NewTicker(c.ttl)
	defer ticker.Stop()

	for {
		select {
		case <-c.stopChan:
			return
		case <-ticker.C:
			c.mu.Lock()
			now := time.Now()
			for key, item := range c.items {
				if now.After(item.expiresAt) {
					delete(c.items, key)
					RecordCacheEviction()
				}
			}
			UpdatePermissionCacheSize(len(c.items))
			c.mu.Unlock()
		}
	}
}

// stop halts the janitor goroutine. Safe to call multiple times.
func (c *permissionCache) stop() {
	c.stopOnce.Do(func() {
		close(c.stopChan)
	})
}
