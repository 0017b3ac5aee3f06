// StayGuard - Authorization and Security Core for the StayNest Lodging Platform
// Copyright 2026 StayNest Engineering
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/staynest/stayguard

package store

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"

	"github.com/staynest/stayguard/internal/models"
)

// Key prefixes for BadgerDB storage.
const (
	roleKeyPrefix       = "role:"
	roleNameKeyPrefix   = "role_name:"
	permKeyPrefix       = "perm:"
	assignKeyPrefix     = "assign:" // assign:<roleID>:<permissionID>
	userKeyPrefix       = "user:"
	deviceKeyPrefix     = "device:"
	deviceUserKeyPrefix = "device_user:" // device_user:<userID>:<deviceID>
	secretKeyPrefix     = "device_secret:"
)

// BadgerStore implements every store interface on BadgerDB. Values are
// JSON-encoded; the TOTP secret is written under a separate key so the
// device document stays free of secret material.
type BadgerStore struct {
	db *badger.DB
}

// NewBadgerStore creates a BadgerDB-backed store.
func NewBadgerStore(db *badger.DB) *BadgerStore {
	return &BadgerStore{db: db}
}

// getJSON fetches and unmarshals one key inside a read transaction.
func getJSON(txn *badger.Txn, key string, out interface{}, notFound error) error {
	item, err := txn.Get([]byte(key))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return notFound
	}
	if err != nil {
		return fmt.Errorf("get %s: %w", key, err)
	}
	return item.Value(func(val []byte) error {
		return json.Unmarshal(val, out)
	})
}

// setJSON marshals and writes one key inside a write transaction.
func setJSON(txn *badger.Txn, key string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", key, err)
	}
	if err := txn.Set([]byte(key), data); err != nil {
		return fmt.Errorf("set %s: %w", key, err)
	}
	return nil
}

// scanPrefix iterates all values under a prefix inside a read transaction.
func scanPrefix(txn *badger.Txn, prefix string, fn func(val []byte) error) error {
	opts := badger.DefaultIteratorOptions
	opts.Prefix = []byte(prefix)
	it := txn.NewIterator(opts)
	defer it.Close()

	for it.Rewind(); it.Valid(); it.Next() {
		if err := it.Item().Value(func(val []byte) error {
			return fn(val)
		}); err != nil {
			return err
		}
	}
	return nil
}

// --- RoleStore ---

// GetRole retrieves a role by ID.
func (s *BadgerStore) GetRole(ctx context.Context, id string) (*models.Role, error) {
	var role models.Role
	err := s.db.View(func(txn *badger.Txn) error {
		return getJSON(txn, roleKeyPrefix+id, &role, ErrRoleNotFound)
	})
	if err != nil {
		return nil, err
	}
	return &role, nil
}

// GetRoleByName retrieves a role through the name index.
func (s *BadgerStore) GetRoleByName(ctx context.Context, name string) (*models.Role, error) {
	var role models.Role
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(roleNameKeyPrefix + name))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrRoleNotFound
		}
		if err != nil {
			return fmt.Errorf("get role name index: %w", err)
		}

		var id string
		if err := item.Value(func(val []byte) error {
			id = string(val)
			return nil
		}); err != nil {
			return err
		}
		return getJSON(txn, roleKeyPrefix+id, &role, ErrRoleNotFound)
	})
	if err != nil {
		return nil, err
	}
	return &role, nil
}

// ListActiveRoles returns all active roles ordered by hierarchy level.
func (s *BadgerStore) ListActiveRoles(ctx context.Context) ([]*models.Role, error) {
	var roles []*models.Role
	err := s.db.View(func(txn *badger.Txn) error {
		return scanPrefix(txn, roleKeyPrefix, func(val []byte) error {
			var role models.Role
			if err := json.Unmarshal(val, &role); err != nil {
				return err
			}
			if role.IsActive {
				roles = append(roles, &role)
			}
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("list roles: %w", err)
	}
	sort.Slice(roles, func(i, j int) bool {
		return roles[i].HierarchyLevel < roles[j].HierarchyLevel
	})
	return roles, nil
}

// SaveRole creates or replaces a role and its name index.
func (s *BadgerStore) SaveRole(ctx context.Context, role *models.Role) error {
	return s.db.Update(func(txn *badger.Txn) error {
		if err := setJSON(txn, roleKeyPrefix+role.ID, role); err != nil {
			return err
		}
		return txn.Set([]byte(roleNameKeyPrefix+role.Name), []byte(role.ID))
	})
}

// DeleteRole removes a role. System roles are undeletable.
func (s *BadgerStore) DeleteRole(ctx context.Context, id string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		var role models.Role
		if err := getJSON(txn, roleKeyPrefix+id, &role, ErrRoleNotFound); err != nil {
			return err
		}
		if role.IsSystemRole {
			return ErrSystemRole
		}
		if err := txn.Delete([]byte(roleKeyPrefix + id)); err != nil {
			return fmt.Errorf("delete role: %w", err)
		}
		return txn.Delete([]byte(roleNameKeyPrefix + role.Name))
	})
}

// --- PermissionStore ---

// GetPermission retrieves a permission by ID.
func (s *BadgerStore) GetPermission(ctx context.Context, id string) (*models.Permission, error) {
	var perm models.Permission
	err := s.db.View(func(txn *badger.Txn) error {
		return getJSON(txn, permKeyPrefix+id, &perm, ErrPermissionNotFound)
	})
	if err != nil {
		return nil, err
	}
	return &perm, nil
}

// ListActivePermissions returns all active permissions.
func (s *BadgerStore) ListActivePermissions(ctx context.Context) ([]*models.Permission, error) {
	var perms []*models.Permission
	err := s.db.View(func(txn *badger.Txn) error {
		return scanPrefix(txn, permKeyPrefix, func(val []byte) error {
			var perm models.Permission
			if err := json.Unmarshal(val, &perm); err != nil {
				return err
			}
			if perm.IsActive {
				perms = append(perms, &perm)
			}
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("list permissions: %w", err)
	}
	return perms, nil
}

// SavePermission creates or replaces a permission.
func (s *BadgerStore) SavePermission(ctx context.Context, perm *models.Permission) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return setJSON(txn, permKeyPrefix+perm.ID, perm)
	})
}

// DeletePermission removes a permission. System permissions are undeletable.
func (s *BadgerStore) DeletePermission(ctx context.Context, id string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		var perm models.Permission
		if err := getJSON(txn, permKeyPrefix+id, &perm, ErrPermissionNotFound); err != nil {
			return err
		}
		if perm.IsSystemPermission {
			return ErrSystemPermission
		}
		return txn.Delete([]byte(permKeyPrefix + id))
	})
}

// --- AssignmentStore ---

// GetAssignment retrieves the assignment for a (role, permission) pair.
func (s *BadgerStore) GetAssignment(ctx context.Context, roleID, permissionID string) (*models.RoleAssignment, error) {
	var a models.RoleAssignment
	err := s.db.View(func(txn *badger.Txn) error {
		return getJSON(txn, assignKeyPrefix+roleID+":"+permissionID, &a, ErrAssignmentNotFound)
	})
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// ListAssignmentsForRole returns all assignments under a role.
func (s *BadgerStore) ListAssignmentsForRole(ctx context.Context, roleID string) ([]*models.RoleAssignment, error) {
	var out []*models.RoleAssignment
	err := s.db.View(func(txn *badger.Txn) error {
		return scanPrefix(txn, assignKeyPrefix+roleID+":", func(val []byte) error {
			var a models.RoleAssignment
			if err := json.Unmarshal(val, &a); err != nil {
				return err
			}
			out = append(out, &a)
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("list assignments: %w", err)
	}
	return out, nil
}

// CreateAssignment inserts a new assignment, enforcing pair uniqueness.
func (s *BadgerStore) CreateAssignment(ctx context.Context, a *models.RoleAssignment) error {
	key := assignKeyPrefix + a.RoleID + ":" + a.PermissionID
	return s.db.Update(func(txn *badger.Txn) error {
		_, err := txn.Get([]byte(key))
		if err == nil {
			return ErrDuplicateAssignment
		}
		if !errors.Is(err, badger.ErrKeyNotFound) {
			return fmt.Errorf("check assignment: %w", err)
		}
		return setJSON(txn, key, a)
	})
}

// UpdateAssignment replaces an existing assignment.
func (s *BadgerStore) UpdateAssignment(ctx context.Context, a *models.RoleAssignment) error {
	key := assignKeyPrefix + a.RoleID + ":" + a.PermissionID
	return s.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get([]byte(key)); errors.Is(err, badger.ErrKeyNotFound) {
			return ErrAssignmentNotFound
		} else if err != nil {
			return fmt.Errorf("check assignment: %w", err)
		}
		return setJSON(txn, key, a)
	})
}

// DeleteAssignment removes an assignment.
func (s *BadgerStore) DeleteAssignment(ctx context.Context, roleID, permissionID string) error {
	key := assignKeyPrefix + roleID + ":" + permissionID
	return s.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get([]byte(key)); errors.Is(err, badger.ErrKeyNotFound) {
			return ErrAssignmentNotFound
		} else if err != nil {
			return fmt.Errorf("check assignment: %w", err)
		}
		return txn.Delete([]byte(key))
	})
}

// --- UserDirectory ---

// GetUser retrieves a user by ID.
func (s *BadgerStore) GetUser(ctx context.Context, id string) (*models.User, error) {
	var user models.User
	err := s.db.View(func(txn *badger.Txn) error {
		return getJSON(txn, userKeyPrefix+id, &user, ErrUserNotFound)
	})
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// SaveUser creates or replaces a user.
func (s *BadgerStore) SaveUser(ctx context.Context, user *models.User) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return setJSON(txn, userKeyPrefix+user.ID, user)
	})
}

// --- DeviceStore ---

// GetDevice retrieves a device and rejoins its secret.
func (s *BadgerStore) GetDevice(ctx context.Context, id string) (*models.MFADevice, error) {
	var device models.MFADevice
	err := s.db.View(func(txn *badger.Txn) error {
		if err := getJSON(txn, deviceKeyPrefix+id, &device, ErrDeviceNotFound); err != nil {
			return err
		}
		return s.loadSecret(txn, &device)
	})
	if err != nil {
		return nil, err
	}
	return &device, nil
}

// loadSecret reads the separately stored TOTP secret into the device.
func (s *BadgerStore) loadSecret(txn *badger.Txn, device *models.MFADevice) error {
	item, err := txn.Get([]byte(secretKeyPrefix + device.ID))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("get device secret: %w", err)
	}
	return item.Value(func(val []byte) error {
		device.Secret = string(val)
		return nil
	})
}

// ListDevicesForUser returns all devices enrolled by a user.
func (s *BadgerStore) ListDevicesForUser(ctx context.Context, userID string) ([]*models.MFADevice, error) {
	var out []*models.MFADevice
	err := s.db.View(func(txn *badger.Txn) error {
		var ids []string
		if err := scanPrefix(txn, deviceUserKeyPrefix+userID+":", func(val []byte) error {
			ids = append(ids, string(val))
			return nil
		}); err != nil {
			return err
		}

		for _, id := range ids {
			var device models.MFADevice
			if err := getJSON(txn, deviceKeyPrefix+id, &device, ErrDeviceNotFound); err != nil {
				if errors.Is(err, ErrDeviceNotFound) {
					continue // stale index entry
				}
				return err
			}
			if err := s.loadSecret(txn, &device); err != nil {
				return err
			}
			out = append(out, &device)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list devices: %w", err)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

// SaveDevice writes a device, its user index, and its secret.
func (s *BadgerStore) SaveDevice(ctx context.Context, device *models.MFADevice) error {
	return s.db.Update(func(txn *badger.Txn) error {
		if err := setJSON(txn, deviceKeyPrefix+device.ID, device); err != nil {
			return err
		}
		userKey := deviceUserKeyPrefix + device.UserID + ":" + device.ID
		if err := txn.Set([]byte(userKey), []byte(device.ID)); err != nil {
			return fmt.Errorf("set device user index: %w", err)
		}
		if device.Secret != "" {
			return txn.Set([]byte(secretKeyPrefix+device.ID), []byte(device.Secret))
		}
		return nil
	})
}

// DeleteDevice removes a device, its index entry, and its secret.
func (s *BadgerStore) DeleteDevice(ctx context.Context, id string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		var device models.MFADevice
		if err := getJSON(txn, deviceKeyPrefix+id, &device, ErrDeviceNotFound); err != nil {
			return err
		}
		if err := txn.Delete([]byte(deviceKeyPrefix + id)); err != nil {
			return fmt.Errorf("delete device: %w", err)
		}
		if err := txn.Delete([]byte(deviceUserKeyPrefix + device.UserID + ":" + id)); err != nil {
			return fmt.Errorf("delete device index: %w", err)
		}
		if err := txn.Delete([]byte(secretKeyPrefix + id)); err != nil && !errors.Is(err, badger.ErrKeyNotFound) {
			return fmt.Errorf("delete device secret: %w", err)
		}
		return nil
	})
}
