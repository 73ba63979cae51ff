// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

package types

import (
	"context"
	"io"
	"time"
)

// StorageType identifies the object store implementation
type StorageType string

const (
	StorageTypeS3     StorageType = "s3"     // S3-compatible
	StorageTypeLocal  StorageType = "local"  // Local filesystem
	StorageTypeMemory StorageType = "memory" // In-process, for tests and dry runs
)

// ObjectRef identifies a stored object
type ObjectRef struct {
	Bucket      string `json:"bucket"`
	Key         string `json:"key"`
	Size        int64  `json:"size"`
	ContentType string `json:"content_type,omitempty"`
	// Checksum is the base64 CRC-64/NVME of the stored bytes
	Checksum string `json:"checksum,omitempty"`
}

// Path returns "{bucket}/{key}"
func (r ObjectRef) Path() string {
	return r.Bucket + "/" + r.Key
}

// ObjectStore is the interface uploads are persisted through
// Implementations: S3Storage, LocalStorage, MemoryStorage
type ObjectStore interface {
	// Type returns the storage type
	Type() StorageType

	// Upload stores size bytes from r under bucket/key
	Upload(ctx context.Context, bucket, key string, r io.Reader, size int64, contentType string) (ObjectRef, error)

	// SignURL returns a read-only URL for bucket/key. A zero expiry uses the
	// backend's default.
	SignURL(ctx context.Context, bucket, key string, expiry time.Duration) (string, error)

	// Close releases any resources
	Close() error
}

// BackendConfig contains configuration for creating an object store
type BackendConfig struct {
	Type     StorageType `json:"type" mapstructure:"type"`
	Endpoint string      `json:"endpoint,omitempty" mapstructure:"endpoint"`
	Region   string      `json:"region,omitempty" mapstructure:"region"`

	// S3 credentials. Empty keys fall back to the default AWS chain.
	AccessKey string `json:"access_key,omitempty" mapstructure:"access_key"`
	SecretKey string `json:"secret_key,omitempty" mapstructure:"secret_key"`
	RoleARN   string `json:"role_arn,omitempty" mapstructure:"role_arn"`
	PathStyle bool   `json:"path_style,omitempty" mapstructure:"path_style"`

	// Local backend root directory
	Path string `json:"path,omitempty" mapstructure:"path"`

	// SigningSecret keys HMAC signed URLs for the local backend
	SigningSecret string `json:"-" mapstructure:"signing_secret"`
	// BaseURL is prefixed to local signed URLs, e.g. http://localhost:8080
	BaseURL string `json:"base_url,omitempty" mapstructure:"base_url"`

	// DefaultExpiry applies when SignURL is called with a zero expiry
	DefaultExpiry time.Duration `json:"default_expiry,omitempty" mapstructure:"default_expiry"`
}

// Pinger is implemented by stores that can report whether bucket is
// reachable. It backs the /ready check of the serve command.
type Pinger interface {
	Ping(ctx context.Context, bucket string) error
}
