// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

package backend

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/LeeDigitalWorks/zapupload/pkg/types"
	"github.com/LeeDigitalWorks/zapupload/pkg/utils"
)

func init() {
	Register(types.StorageTypeMemory, func(_ context.Context, cfg types.BackendConfig) (types.ObjectStore, error) {
		m := NewMemoryStorage()
		m.defaultExpiry = cfg.DefaultExpiry
		return m, nil
	})
}

// MemoryObject is a stored object
type MemoryObject struct {
	Data        []byte
	ContentType string
}

// MemoryStorage is an in-memory backend for testing and dry runs
type MemoryStorage struct {
	mu            sync.RWMutex
	data          map[string]MemoryObject
	defaultExpiry time.Duration
	now           func() time.Time
}

// NewMemoryStorage creates a new in-memory storage
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		data: make(map[string]MemoryObject),
		now:  time.Now,
	}
}

func (m *MemoryStorage) Type() types.StorageType {
	return types.StorageTypeMemory
}

func (m *MemoryStorage) Upload(ctx context.Context, bucket, key string, r io.Reader, size int64, contentType string) (types.ObjectRef, error) {
	if err := validateObject(bucket, key); err != nil {
		return types.ObjectRef{}, err
	}
	buf, err := io.ReadAll(r)
	if err != nil {
		return types.ObjectRef{}, fmt.Errorf("read data: %w", err)
	}
	if size >= 0 && int64(len(buf)) != size {
		return types.ObjectRef{}, fmt.Errorf("read %d bytes, expected %d", len(buf), size)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[bucket+"/"+key] = MemoryObject{Data: buf, ContentType: contentType}
	return types.ObjectRef{
		Bucket:      bucket,
		Key:         key,
		Size:        int64(len(buf)),
		ContentType: contentType,
		Checksum:    utils.ChecksumCRC64NVME(buf),
	}, nil
}

func (m *MemoryStorage) SignURL(ctx context.Context, bucket, key string, expiry time.Duration) (string, error) {
	if err := validateObject(bucket, key); err != nil {
		return "", err
	}
	m.mu.RLock()
	_, ok := m.data[bucket+"/"+key]
	m.mu.RUnlock()
	if !ok {
		return "", fmt.Errorf("%w: %s/%s", ErrObjectNotFound, bucket, key)
	}

	expires := m.now().Add(resolveExpiry(expiry, m.defaultExpiry)).Unix()
	u := url.URL{
		Scheme:   "memory",
		Host:     bucket,
		Path:     "/" + key,
		RawQuery: "expires=" + strconv.FormatInt(expires, 10),
	}
	return u.String(), nil
}

// Get returns a stored object
func (m *MemoryStorage) Get(bucket, key string) (MemoryObject, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	obj, ok := m.data[bucket+"/"+key]
	return obj, ok
}

// Len returns the number of stored objects
func (m *MemoryStorage) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.data)
}

func (m *MemoryStorage) Ping(ctx context.Context, bucket string) error {
	return ctx.Err()
}

func (m *MemoryStorage) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data = make(map[string]MemoryObject)
	return nil
}
