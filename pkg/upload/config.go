// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

package upload

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/LeeDigitalWorks/zapupload/pkg/policy"
	"github.com/LeeDigitalWorks/zapupload/pkg/transform"
	"github.com/LeeDigitalWorks/zapupload/pkg/types"

	"github.com/dustin/go-humanize"
)

const (
	LabelOriginal  = "original"
	LabelThumbnail = "thumbnail"

	// DefaultThumbnailWidth is the width of the thumbnail profile.
	DefaultThumbnailWidth = 200
)

// Rendition is one stored variant of an upload. Width 0 stores the
// original bytes; any other width is produced by the resizer.
type Rendition struct {
	Label string `mapstructure:"label" json:"label"`
	Width int    `mapstructure:"width" json:"width"`
}

// Config is everything that differs between deployments.
type Config struct {
	Bucket           string        `mapstructure:"bucket"`
	MaxSizeBytes     int64         `mapstructure:"max_size_bytes"`
	AllowedMIMETypes []string      `mapstructure:"allowed_mime_types"`
	Renditions       []Rendition   `mapstructure:"renditions"`
	SignedURLExpiry  time.Duration `mapstructure:"signed_url_expiry"`
	JPEGQuality      int           `mapstructure:"jpeg_quality"`
}

// Profile names a known deployment shape.
type Profile string

const (
	// ProfileSingle stores only the original, up to 4.5 MB.
	ProfileSingle Profile = "single"
	// ProfileThumbnail stores the original and a 200px thumbnail, up to
	// 10 MB, with five minute URLs.
	ProfileThumbnail Profile = "thumbnail"
)

// Profiles lists the known profiles.
func Profiles() []Profile {
	return []Profile{ProfileSingle, ProfileThumbnail}
}

// ProfileConfig returns the configuration of a known profile. Bucket is
// left empty.
func ProfileConfig(p Profile) (Config, error) {
	allowed := append([]string(nil), policy.DefaultAllowedMIMETypes...)
	switch p {
	case ProfileSingle:
		return Config{
			MaxSizeBytes:     4_500_000,
			AllowedMIMETypes: allowed,
			Renditions:       []Rendition{{Label: LabelOriginal}},
		}, nil
	case ProfileThumbnail:
		return Config{
			MaxSizeBytes:     10_000_000,
			AllowedMIMETypes: allowed,
			Renditions: []Rendition{
				{Label: LabelOriginal},
				{Label: LabelThumbnail, Width: DefaultThumbnailWidth},
			},
			SignedURLExpiry: 300 * time.Second,
		}, nil
	default:
		return Config{}, fmt.Errorf("unknown profile %q", p)
	}
}

// ParseSize accepts plain byte counts and humanized sizes such as "4.5MB"
// (SI units) or "10MiB".
func ParseSize(s string) (int64, error) {
	n, err := humanize.ParseBytes(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("parse size %q: %w", s, err)
	}
	if n > math.MaxInt64 {
		return 0, fmt.Errorf("parse size %q: too large", s)
	}
	return int64(n), nil
}

// Policy returns the admission policy for this config.
func (c Config) Policy() policy.Policy {
	return policy.Policy{MaxSizeBytes: c.MaxSizeBytes, AllowedMIMETypes: c.AllowedMIMETypes}
}

// Labels returns rendition labels in order.
func (c Config) Labels() []string {
	labels := make([]string, len(c.Renditions))
	for i, r := range c.Renditions {
		labels[i] = r.Label
	}
	return labels
}

// HasRendition reports whether label is configured.
func (c Config) HasRendition(label string) bool {
	for _, r := range c.Renditions {
		if r.Label == label {
			return true
		}
	}
	return false
}

// Validate checks the config, collecting every problem.
func (c Config) Validate() *types.ConfigValidationResult {
	result := types.NewConfigValidationResult()

	if strings.TrimSpace(c.Bucket) == "" {
		result.AddError("bucket", "bucket cannot be empty")
	}
	if err := c.Policy().Validate(); err != nil {
		result.AddError("policy", err.Error())
	}
	if c.SignedURLExpiry < 0 {
		result.AddError("signed_url_expiry", "expiry cannot be negative")
	}
	if c.JPEGQuality < 0 || c.JPEGQuality > 100 {
		result.AddError("jpeg_quality", fmt.Sprintf("quality %d outside 0-100", c.JPEGQuality))
	}

	if len(c.Renditions) == 0 {
		result.AddError("renditions", "at least one rendition must be configured")
		return result
	}

	seen := make(map[string]bool, len(c.Renditions))
	for i, r := range c.Renditions {
		field := fmt.Sprintf("renditions[%d]", i)
		switch {
		case r.Label == "":
			result.AddError(field, "label cannot be empty")
		case strings.ContainsAny(r.Label, "/\\ "):
			result.AddError(field, fmt.Sprintf("label %q contains a path separator or space", r.Label))
		case seen[r.Label]:
			result.AddError(field, fmt.Sprintf("duplicate label %q", r.Label))
		}
		seen[r.Label] = true

		if r.Width < 0 {
			result.AddError(field, "width cannot be negative")
		}
		if r.Label == LabelOriginal && r.Width != 0 {
			result.AddError(field, "the original rendition cannot be resized")
		}
		if r.Width > 0 {
			for _, mt := range c.AllowedMIMETypes {
				if !transform.Supported(mt) {
					result.AddError(field, fmt.Sprintf("allowed type %q cannot be resized", mt))
				}
			}
		}
	}
	if !c.HasRendition(LabelOriginal) {
		result.AddError("renditions", fmt.Sprintf("an %q rendition is required", LabelOriginal))
	}

	if c.MaxSizeBytes > 50_000_000 {
		result.AddWarning(fmt.Sprintf("max size %s is buffered in memory per request", humanize.Bytes(uint64(c.MaxSizeBytes))))
	}

	return result
}
