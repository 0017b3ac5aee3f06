// StayGuard - Authorization and Security Core for the StayNest Lodging Platform
// Copyright 2026 StayNest Engineering
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/staynest/stayguard

package authz

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/staynest/stayguard/internal/logging"
	"github.com/staynest/stayguard/internal/models"
	"github.com/staynest/stayguard/internal/store"
)

// DefaultCatalogTTL bounds how long a loaded role set is served before
// a reload.
const DefaultCatalogTTL = 10 * time.Minute

// Catalog caches the active role set. Lookups are served from the
// cached snapshot until the TTL elapses or Invalidate is called; any
// role mutation must call Invalidate.
type Catalog struct {
	roles store.RoleStore
	ttl   time.Duration

	mu        sync.RWMutex
	byID      map[string]*models.Role
	byName    map[string]*models.Role
	ordered   []*models.Role
	expiresAt time.Time
}

// NewCatalog creates a role catalog over the given store.
func NewCatalog(roles store.RoleStore, ttl time.Duration) *Catalog {
	if ttl <= 0 {
		ttl = DefaultCatalogTTL
	}
	return &Catalog{
		roles: roles,
		ttl:   ttl,
	}
}

// snapshot returns the cached role maps, reloading when stale.
func (c *Catalog) snapshot(ctx context.Context) (map[string]*models.Role, map[string]*models.Role, []*models.Role, error) {
	c.mu.RLock()
	if c.byID != nil && time.Now().Before(c.expiresAt) {
		byID, byName, ordered := c.byID, c.byName, c.ordered
		c.mu.RUnlock()
		return byID, byName, ordered, nil
	}
	c.mu.RUnlock()

	c.mu.Lock()
	defer c.mu.Unlock()

	// Another goroutine may have reloaded while we waited.
	if c.byID != nil && time.Now().Before(c.expiresAt) {
		return c.byID, c.byName, c.ordered, nil
	}

	roles, err := c.roles.ListActiveRoles(ctx)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("load role catalog: %w", err)
	}

	byID := make(map[string]*models.Role, len(roles))
	byName := make(map[string]*models.Role, len(roles))
	byLevel := make(map[int]string, len(roles))
	for _, role := range roles {
		byID[role.ID] = role
		byName[role.Name] = role

		// Duplicate hierarchy levels within the active set are a
		// data-integrity warning, not a hard error.
		if other, ok := byLevel[role.HierarchyLevel]; ok {
			logging.Warn().
				Int("hierarchy_level", role.HierarchyLevel).
				Str("role", role.Name).
				Str("conflicts_with", other).
				Msg("duplicate hierarchy level in active role set")
		} else {
			byLevel[role.HierarchyLevel] = role.Name
		}
	}

	c.byID = byID
	c.byName = byName
	c.ordered = roles
	c.expiresAt = time.Now().Add(c.ttl)
	RecordCatalogReload()

	return c.byID, c.byName, c.ordered, nil
}

// RoleByID returns an active role by ID.
func (c *Catalog) RoleByID(ctx context.Context, id string) (*models.Role, error) {
	byID, _, _, err := c.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	role, ok := byID[id]
	if !ok {
		return nil, store.ErrRoleNotFound
	}
	return role, nil
}

// RoleByName returns an active role by unique name.
func (c *Catalog) RoleByName(ctx context.Context, name string) (*models.Role, error) {
	_, byName, _, err := c.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	role, ok := byName[name]
	if !ok {
		return nil, store.ErrRoleNotFound
	}
	return role, nil
}

// ActiveRoles returns the active role set ordered by hierarchy level.
func (c *Catalog) ActiveRoles(ctx context.Context) ([]*models.Role, error) {
	_, _, ordered, err := c.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return ordered, nil
}

// Invalidate drops the cached snapshot. Call after any role mutation.
func (c *Catalog) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.byID = nil
	c.byName = nil
	c.ordered = nil
	RecordCacheInvalidation("role_change")
}
