// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

package backend

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/LeeDigitalWorks/zapupload/pkg/logger"
	"github.com/LeeDigitalWorks/zapupload/pkg/s3client"
	"github.com/LeeDigitalWorks/zapupload/pkg/types"
	"github.com/LeeDigitalWorks/zapupload/pkg/utils"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
)

// MaxPresignExpiry is the longest expiry S3 accepts for SigV4 URLs.
const MaxPresignExpiry = 7 * 24 * time.Hour

func init() {
	Register(types.StorageTypeS3, func(ctx context.Context, cfg types.BackendConfig) (types.ObjectStore, error) {
		return NewS3(ctx, cfg)
	})
}

// S3 implements ObjectStore for S3-compatible storage
type S3 struct {
	client        *s3.Client
	presigner     *s3.PresignClient
	defaultExpiry time.Duration
	// sendChecksum adds x-amz-checksum-crc64nvme to PutObject. Off for
	// custom endpoints, which may not know the algorithm.
	sendChecksum bool
}

// S3Option configures an S3 backend.
type S3Option func(*S3)

// WithChecksumHeader sends the CRC-64/NVME checksum with each upload so the
// server verifies the payload.
func WithChecksumHeader(enabled bool) S3Option {
	return func(s *S3) { s.sendChecksum = enabled }
}

// NewS3 creates an S3 backend
func NewS3(ctx context.Context, cfg types.BackendConfig) (*S3, error) {
	client, err := s3client.New(ctx, s3client.Config{
		Endpoint:        cfg.Endpoint,
		Region:          cfg.Region,
		AccessKeyID:     cfg.AccessKey,
		SecretAccessKey: cfg.SecretKey,
		RoleARN:         cfg.RoleARN,
		PathStyle:       cfg.PathStyle,
	})
	if err != nil {
		return nil, err
	}
	return NewS3FromClient(client, cfg.DefaultExpiry, WithChecksumHeader(cfg.Endpoint == "")), nil
}

// NewS3FromClient wraps an existing client
func NewS3FromClient(client *s3.Client, defaultExpiry time.Duration, opts ...S3Option) *S3 {
	s := &S3{
		client:        client,
		presigner:     s3.NewPresignClient(client),
		defaultExpiry: defaultExpiry,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *S3) Type() types.StorageType {
	return types.StorageTypeS3
}

// Upload streams r with an explicit content length. r should be seekable
// when the endpoint is plain HTTP so the payload can be signed.
func (s *S3) Upload(ctx context.Context, bucket, key string, r io.Reader, size int64, contentType string) (types.ObjectRef, error) {
	if err := validateObject(bucket, key); err != nil {
		return types.ObjectRef{}, err
	}

	input := &s3.PutObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
		Body:   r,
	}
	if size >= 0 {
		input.ContentLength = aws.Int64(size)
	}
	if contentType != "" {
		input.ContentType = aws.String(contentType)
	}

	var checksum string
	if rs, ok := r.(io.ReadSeeker); ok {
		sum, err := checksumSeeker(rs)
		if err != nil {
			return types.ObjectRef{}, fmt.Errorf("checksum %s/%s: %w", bucket, key, err)
		}
		checksum = sum
		if s.sendChecksum {
			input.ChecksumCRC64NVME = aws.String(checksum)
		}
	}

	if _, err := s.client.PutObject(ctx, input); err != nil {
		logAPIError(ctx, "PutObject", bucket, key, err)
		return types.ObjectRef{}, fmt.Errorf("put object %s/%s: %w", bucket, key, err)
	}
	return types.ObjectRef{Bucket: bucket, Key: key, Size: size, ContentType: contentType, Checksum: checksum}, nil
}

// checksumSeeker hashes rs from its current offset and rewinds it.
func checksumSeeker(rs io.ReadSeeker) (string, error) {
	start, err := rs.Seek(0, io.SeekCurrent)
	if err != nil {
		return "", err
	}
	h := utils.Crc64nvmePoolGetHasher()
	defer utils.Crc64nvmePoolPutHasher(h)
	if _, err := io.Copy(h, rs); err != nil {
		return "", err
	}
	if _, err := rs.Seek(start, io.SeekStart); err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(h.Sum(nil)), nil
}

func (s *S3) SignURL(ctx context.Context, bucket, key string, expiry time.Duration) (string, error) {
	if err := validateObject(bucket, key); err != nil {
		return "", err
	}
	expiry = resolveExpiry(expiry, s.defaultExpiry)
	if expiry > MaxPresignExpiry {
		return "", fmt.Errorf("expiry %s exceeds maximum of %s", expiry, MaxPresignExpiry)
	}

	req, err := s.presigner.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(expiry))
	if err != nil {
		logAPIError(ctx, "PresignGetObject", bucket, key, err)
		return "", fmt.Errorf("presign get object %s/%s: %w", bucket, key, err)
	}
	return req.URL, nil
}

// Ping checks that bucket exists and the credentials can reach it.
func (s *S3) Ping(ctx context.Context, bucket string) error {
	if _, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(bucket)}); err != nil {
		return fmt.Errorf("head bucket %s: %w", bucket, err)
	}
	return nil
}

func (s *S3) Close() error {
	return nil
}

// APIErrorCode returns the S3 error code carried by err, if any.
func APIErrorCode(err error) string {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return apiErr.ErrorCode()
	}
	return ""
}

func logAPIError(ctx context.Context, op, bucket, key string, err error) {
	ev := logger.Ctx(ctx).Warn().Err(err).
		Str("op", op).
		Str("bucket", bucket).
		Str("key", key)
	if code := APIErrorCode(err); code != "" {
		ev = ev.Str("s3_code", code)
	}
	ev.Msg("S3 request failed")
}
