// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

package backend

import (
	"context"
	"crypto/hmac"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/LeeDigitalWorks/zapupload/pkg/types"
	"github.com/LeeDigitalWorks/zapupload/pkg/utils"
)

// ObjectsPathPrefix is the route local signed URLs point at.
const ObjectsPathPrefix = "/objects/"

var (
	ErrSignatureInvalid = errors.New("signature does not match")
	ErrSignatureExpired = errors.New("signed url expired")
	ErrObjectNotFound   = errors.New("object not found")
)

func init() {
	Register(types.StorageTypeLocal, func(_ context.Context, cfg types.BackendConfig) (types.ObjectStore, error) {
		return NewLocal(cfg)
	})
}

// Local implements ObjectStore on the local filesystem. Objects live at
// {path}/{bucket}/{key}; signed URLs carry an HMAC-SHA256 over the object and
// its expiry and are checked by Verify.
type Local struct {
	basePath      string
	secret        []byte
	baseURL       string
	defaultExpiry time.Duration
	now           func() time.Time
}

// NewLocal creates a local filesystem backend
func NewLocal(cfg types.BackendConfig) (*Local, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("path required for local backend")
	}
	if cfg.SigningSecret == "" {
		return nil, fmt.Errorf("signing secret required for local backend")
	}

	if err := utils.EnsureWritableDir(cfg.Path); err != nil {
		return nil, fmt.Errorf("create base path: %w", err)
	}

	return &Local{
		basePath:      cfg.Path,
		secret:        []byte(cfg.SigningSecret),
		baseURL:       strings.TrimRight(cfg.BaseURL, "/"),
		defaultExpiry: cfg.DefaultExpiry,
		now:           time.Now,
	}, nil
}

func (l *Local) Type() types.StorageType {
	return types.StorageTypeLocal
}

// objectPath maps bucket/key to a path under basePath, refusing anything
// that would escape it.
func (l *Local) objectPath(bucket, key string) (string, error) {
	if err := validateObject(bucket, key); err != nil {
		return "", err
	}
	if strings.ContainsAny(bucket, `/\`) || bucket == "." || bucket == ".." {
		return "", fmt.Errorf("invalid bucket %q", bucket)
	}
	for _, seg := range strings.Split(key, "/") {
		if seg == "" || seg == "." || seg == ".." || strings.Contains(seg, `\`) {
			return "", fmt.Errorf("invalid key %q", key)
		}
	}
	return filepath.Join(l.basePath, bucket, filepath.FromSlash(key)), nil
}

func (l *Local) Upload(ctx context.Context, bucket, key string, r io.Reader, size int64, contentType string) (types.ObjectRef, error) {
	path, err := l.objectPath(bucket, key)
	if err != nil {
		return types.ObjectRef{}, err
	}
	if err := ctx.Err(); err != nil {
		return types.ObjectRef{}, err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return types.ObjectRef{}, fmt.Errorf("create parent dir: %w", err)
	}

	// Write to a temp file and rename so readers never see a partial object.
	f, err := os.CreateTemp(filepath.Dir(path), ".upload-*")
	if err != nil {
		return types.ObjectRef{}, fmt.Errorf("create file: %w", err)
	}
	tmp := f.Name()
	cleanup := func() {
		f.Close()
		os.Remove(tmp)
	}

	if err := Fallocate(f, size); err != nil {
		cleanup()
		return types.ObjectRef{}, fmt.Errorf("preallocate: %w", err)
	}

	crc := utils.Crc64nvmePoolGetHasher()
	defer utils.Crc64nvmePoolPutHasher(crc)

	n, err := io.Copy(io.MultiWriter(f, crc), r)
	if err != nil {
		cleanup()
		return types.ObjectRef{}, fmt.Errorf("write data: %w", err)
	}
	if size >= 0 && n != size {
		cleanup()
		return types.ObjectRef{}, fmt.Errorf("write data: wrote %d bytes, expected %d", n, size)
	}
	if err := Fdatasync(f); err != nil {
		cleanup()
		return types.ObjectRef{}, fmt.Errorf("sync: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return types.ObjectRef{}, fmt.Errorf("close: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return types.ObjectRef{}, fmt.Errorf("rename: %w", err)
	}

	return types.ObjectRef{
		Bucket:      bucket,
		Key:         key,
		Size:        n,
		ContentType: contentType,
		Checksum:    base64.StdEncoding.EncodeToString(crc.Sum(nil)),
	}, nil
}

func (l *Local) SignURL(ctx context.Context, bucket, key string, expiry time.Duration) (string, error) {
	if _, err := l.objectPath(bucket, key); err != nil {
		return "", err
	}
	expires := l.now().Add(resolveExpiry(expiry, l.defaultExpiry)).Unix()

	q := url.Values{}
	q.Set("expires", strconv.FormatInt(expires, 10))
	q.Set("signature", l.sign(bucket, key, expires))

	return l.baseURL + ObjectsPathPrefix + url.PathEscape(bucket) + "/" + escapeKey(key) + "?" + q.Encode(), nil
}

// Verify checks a signature produced by SignURL.
func (l *Local) Verify(bucket, key, expires, signature string) error {
	exp, err := strconv.ParseInt(expires, 10, 64)
	if err != nil {
		return ErrSignatureInvalid
	}
	want := l.sign(bucket, key, exp)
	if !hmac.Equal([]byte(want), []byte(signature)) {
		return ErrSignatureInvalid
	}
	if l.now().Unix() > exp {
		return ErrSignatureExpired
	}
	return nil
}

// Open returns the stored object for reading.
func (l *Local) Open(bucket, key string) (*os.File, error) {
	path, err := l.objectPath(bucket, key)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s/%s", ErrObjectNotFound, bucket, key)
		}
		return nil, err
	}
	return f, nil
}

func (l *Local) sign(bucket, key string, expires int64) string {
	mac := hmac.New(utils.NewSha256, l.secret)
	mac.Write([]byte(bucket))
	mac.Write([]byte{'/'})
	mac.Write([]byte(key))
	mac.Write([]byte{'\n'})
	mac.Write([]byte(strconv.FormatInt(expires, 10)))
	return hex.EncodeToString(mac.Sum(nil))
}

// Ping checks that the bucket directory exists or can be created and is
// writable.
func (l *Local) Ping(ctx context.Context, bucket string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if bucket == "" || strings.ContainsAny(bucket, `/\`) || bucket == "." || bucket == ".." {
		return fmt.Errorf("invalid bucket %q", bucket)
	}
	return utils.EnsureWritableDir(filepath.Join(l.basePath, bucket))
}

func (l *Local) Close() error {
	return nil
}

func escapeKey(key string) string {
	segs := strings.Split(key, "/")
	for i, s := range segs {
		segs[i] = url.PathEscape(s)
	}
	return strings.Join(segs, "/")
}
