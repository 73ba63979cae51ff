// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/LeeDigitalWorks/zapupload/pkg/logger"
	"github.com/LeeDigitalWorks/zapupload/pkg/storage/backend"
	"github.com/LeeDigitalWorks/zapupload/pkg/types"
	"github.com/LeeDigitalWorks/zapupload/pkg/upload"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// legacyBucketEnv is the variable older deployments set the bucket through.
const legacyBucketEnv = "Bucket"

func addUploadFlags(f *pflag.FlagSet) {
	// Pipeline
	f.String("profile", string(upload.ProfileSingle), "Upload profile: single (original only) or thumbnail (original + 200px thumbnail)")
	f.String("bucket", "", "Destination bucket. Env: BUCKET")
	f.String("max_size", "", "Maximum file size, e.g. 4.5MB or 10MiB (default from profile)")
	f.StringSlice("allowed_mime_types", nil, "Accepted file content types (default image/jpeg, image/jpg, image/png)")
	f.Duration("signed_url_expiry", 0, "Signed URL lifetime (default from profile, 0 uses the backend default)")
	f.Int("jpeg_quality", 0, "JPEG quality for resized renditions (0 uses the resizer default)")
	f.Int("thumbnail_width", 0, "Thumbnail width in pixels for the thumbnail profile")

	// Object store
	f.String("backend_type", string(types.StorageTypeS3), "Object store: s3, local or memory")
	f.String("backend_endpoint", "", "S3 endpoint for S3-compatible stores")
	f.String("backend_region", "", "S3 region. Env: BACKEND_REGION or AWS_REGION")
	f.String("backend_access_key", "", "S3 access key (default credential chain when empty)")
	f.String("backend_secret_key", "", "S3 secret key")
	f.String("backend_role_arn", "", "Role to assume through STS before talking to S3")
	f.Bool("backend_path_style", false, "Use path-style S3 addressing")
	f.String("backend_path", "", "Root directory of the local backend")
	f.String("backend_signing_secret", "", "HMAC secret for local signed URLs")
	f.String("backend_base_url", "", "Public base URL of the local object route")
	f.Duration("backend_default_expiry", backend.DefaultExpiry, "Signed URL lifetime when the pipeline does not set one")
}

// loadUploadConfig resolves the pipeline configuration: profile defaults,
// then config file and env, then explicitly set flags.
func loadUploadConfig(cmd *cobra.Command) (upload.Config, error) {
	fl := NewFlagLoader(cmd)

	cfg, err := upload.ProfileConfig(upload.Profile(fl.String("profile")))
	if err != nil {
		return upload.Config{}, err
	}

	cfg.Bucket = fl.String("bucket")
	if cfg.Bucket == "" {
		cfg.Bucket = os.Getenv(legacyBucketEnv)
	}

	if s := fl.String("max_size"); s != "" {
		n, err := upload.ParseSize(s)
		if err != nil {
			return upload.Config{}, err
		}
		cfg.MaxSizeBytes = n
	}
	if mimeTypes := fl.StringSlice("allowed_mime_types"); len(mimeTypes) > 0 {
		cfg.AllowedMIMETypes = normalizeList(mimeTypes)
	}
	if d := fl.Duration("signed_url_expiry"); d != 0 {
		cfg.SignedURLExpiry = d
	}
	if q := fl.Int("jpeg_quality"); q != 0 {
		cfg.JPEGQuality = q
	}
	if w := fl.Int("thumbnail_width"); w != 0 {
		for i := range cfg.Renditions {
			if cfg.Renditions[i].Label == upload.LabelThumbnail {
				cfg.Renditions[i].Width = w
			}
		}
	}

	result := cfg.Validate()
	for _, w := range result.Warnings {
		logger.Warn().Msg(w)
	}
	if err := result.Err(); err != nil {
		return upload.Config{}, fmt.Errorf("invalid upload config: %w", err)
	}
	return cfg, nil
}

func loadBackendConfig(cmd *cobra.Command) (types.BackendConfig, error) {
	fl := NewFlagLoader(cmd)

	cfg := types.BackendConfig{
		Type:          types.StorageType(fl.String("backend_type")),
		Endpoint:      fl.String("backend_endpoint"),
		Region:        fl.String("backend_region"),
		AccessKey:     fl.String("backend_access_key"),
		SecretKey:     fl.String("backend_secret_key"),
		RoleARN:       fl.String("backend_role_arn"),
		PathStyle:     fl.Bool("backend_path_style"),
		Path:          fl.String("backend_path"),
		SigningSecret: fl.String("backend_signing_secret"),
		BaseURL:       fl.String("backend_base_url"),
		DefaultExpiry: fl.Duration("backend_default_expiry"),
	}
	if cfg.Region == "" {
		cfg.Region = os.Getenv("AWS_REGION")
	}

	result := types.ValidateBackendConfig(cfg)
	for _, w := range result.Warnings {
		logger.Warn().Str("backend", string(cfg.Type)).Msg(w)
	}
	if err := result.Err(); err != nil {
		return types.BackendConfig{}, fmt.Errorf("invalid backend config: %w", err)
	}
	return cfg, nil
}

// buildService wires the configured object store into an upload service.
// The caller owns the returned store and must close it.
func buildService(ctx context.Context, cmd *cobra.Command) (*upload.Service, types.ObjectStore, error) {
	uploadCfg, err := loadUploadConfig(cmd)
	if err != nil {
		return nil, nil, err
	}
	backendCfg, err := loadBackendConfig(cmd)
	if err != nil {
		return nil, nil, err
	}

	store, err := backend.New(ctx, backendCfg)
	if err != nil {
		return nil, nil, fmt.Errorf("create %s backend: %w", backendCfg.Type, err)
	}

	svc, err := upload.NewService(uploadCfg, store)
	if err != nil {
		store.Close()
		return nil, nil, err
	}

	logger.Info().
		Str("profile", NewFlagLoader(cmd).String("profile")).
		Str("bucket", uploadCfg.Bucket).
		Str("max_size", humanize.Bytes(uint64(uploadCfg.MaxSizeBytes))).
		Strs("renditions", uploadCfg.Labels()).
		Str("backend", string(store.Type())).
		Msg("Upload service configured")

	return svc, store, nil
}

func normalizeList(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
