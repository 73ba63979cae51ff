// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

// Package backend provides object store implementations.
// All backends implement the types.ObjectStore interface.
package backend

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/LeeDigitalWorks/zapupload/pkg/types"
)

// DefaultExpiry is used when neither the caller nor the config sets one.
// It matches the S3 presigner default.
const DefaultExpiry = 15 * time.Minute

// Registry holds registered backend factories
var (
	registryMu sync.RWMutex
	registry   = make(map[types.StorageType]Factory)
)

// Factory creates an ObjectStore from config
type Factory func(ctx context.Context, cfg types.BackendConfig) (types.ObjectStore, error)

// Register adds a factory for a storage type
func Register(t types.StorageType, f Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[t] = f
}

// New creates an ObjectStore from config
func New(ctx context.Context, cfg types.BackendConfig) (types.ObjectStore, error) {
	registryMu.RLock()
	f, ok := registry[cfg.Type]
	registryMu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("unknown storage type: %s", cfg.Type)
	}
	return f(ctx, cfg)
}

// Types lists the registered storage types
func Types() []types.StorageType {
	registryMu.RLock()
	defer registryMu.RUnlock()

	out := make([]types.StorageType, 0, len(registry))
	for t := range registry {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// resolveExpiry picks the per-call expiry, then the configured default.
func resolveExpiry(expiry, configured time.Duration) time.Duration {
	if expiry > 0 {
		return expiry
	}
	if configured > 0 {
		return configured
	}
	return DefaultExpiry
}

func validateObject(bucket, key string) error {
	if bucket == "" {
		return fmt.Errorf("bucket required")
	}
	if key == "" {
		return fmt.Errorf("key required")
	}
	return nil
}
