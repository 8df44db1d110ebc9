// Copyright (C) 2026 Petr Malik
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at <https://mozilla.org/MPL/2.0/>.

// Package cache provides the persistent call cache used to memoise remote
// completion responses across tuning runs. The tuner treats it as an opaque
// key-value store; values are serialized responses or the poison marker.
package cache

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strconv"
)

// PoisonMarker is the sentinel value recording an unrecoverable remote
// failure so that later tuning attempts do not retry it.
var PoisonMarker = []byte(`{"poisoned":true}`)

// IsPoisoned reports whether a cached value is the poison marker.
func IsPoisoned(value []byte) bool {
	return bytes.Equal(value, PoisonMarker)
}

// Store is a scoped string-addressed blob store.
type Store interface {
	// Get returns the cached value for the key, if present.
	Get(ctx context.Context, key string) (value []byte, ok bool, err error)
	// Set writes the value under the key, replacing any existing entry.
	Set(ctx context.Context, key string, value []byte) error
	// Close releases the store scope.
	Close() error
}

// DiskStore persists entries as one file per key under {root}/{seed}.
// Reads may return stale-but-consistent entries when the directory is shared
// with other processes.
type DiskStore struct {
	dir string
	// strictPerms enforces 0700 on the cache directory and 0600 on entry
	// files for at-rest protection via restricted permissions.
	strictPerms bool
}

// OpenDiskStore opens (creating if needed) the disk store for the given root
// path and seed. Entries written under different seeds never collide.
func OpenDiskStore(root string, seed int, strictPerms bool) (*DiskStore, error) {
	if root == "" {
		return nil, errors.New("cache root not configured")
	}
	store := &DiskStore{
		dir:         filepath.Join(root, strconv.Itoa(seed)),
		strictPerms: strictPerms,
	}
	dirPerm := os.FileMode(0o755)
	if strictPerms {
		dirPerm = 0o700
	}
	if err := os.MkdirAll(store.dir, dirPerm); err != nil {
		return nil, err
	}
	if strictPerms {
		// Tighten a pre-existing directory.
		if info, err := os.Stat(store.dir); err == nil && info.Mode()&0o777 != 0o700 {
			_ = os.Chmod(store.dir, 0o700)
		}
	}
	return store, nil
}

func (c *DiskStore) pathFor(key string) string {
	return filepath.Join(c.dir, key+".json")
}

func (c *DiskStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	value, err := os.ReadFile(c.pathFor(key))
	if err != nil {
		return nil, false, nil
	}
	return value, true, nil
}

func (c *DiskStore) Set(ctx context.Context, key string, value []byte) error {
	mode := os.FileMode(0o644)
	if c.strictPerms {
		mode = 0o600
	}
	return os.WriteFile(c.pathFor(key), value, mode)
}

func (c *DiskStore) Close() error {
	return nil
}
