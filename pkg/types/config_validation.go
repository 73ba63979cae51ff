// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

package types

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// ConfigValidationError represents a configuration validation error
type ConfigValidationError struct {
	Field   string
	Message string
}

func (e ConfigValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ConfigValidationResult contains the results of configuration validation
type ConfigValidationResult struct {
	Valid    bool
	Errors   []ConfigValidationError
	Warnings []string
}

// NewConfigValidationResult returns an empty, valid result
func NewConfigValidationResult() *ConfigValidationResult {
	return &ConfigValidationResult{Valid: true}
}

// AddError adds an error to the result
func (r *ConfigValidationResult) AddError(field, message string) {
	r.Valid = false
	r.Errors = append(r.Errors, ConfigValidationError{Field: field, Message: message})
}

// AddWarning adds a warning to the result
func (r *ConfigValidationResult) AddWarning(message string) {
	r.Warnings = append(r.Warnings, message)
}

// Merge appends other's errors and warnings, prefixing fields with prefix
func (r *ConfigValidationResult) Merge(prefix string, other *ConfigValidationResult) {
	if other == nil {
		return
	}
	for _, e := range other.Errors {
		field := e.Field
		if prefix != "" {
			field = prefix + "." + field
		}
		r.AddError(field, e.Message)
	}
	r.Warnings = append(r.Warnings, other.Warnings...)
}

// Err joins all errors, or returns nil when the result is valid
func (r *ConfigValidationResult) Err() error {
	if r.Valid {
		return nil
	}
	errs := make([]error, len(r.Errors))
	for i, e := range r.Errors {
		errs[i] = e
	}
	return errors.Join(errs...)
}

// ValidateBackendConfig validates an object store configuration
func ValidateBackendConfig(cfg BackendConfig) *ConfigValidationResult {
	result := NewConfigValidationResult()

	switch cfg.Type {
	case StorageTypeS3:
		if cfg.Region == "" && cfg.Endpoint == "" {
			result.AddWarning("s3 backend has no region or endpoint; the AWS default chain will be used")
		}
		if (cfg.AccessKey == "") != (cfg.SecretKey == "") {
			result.AddError("access_key", "access key and secret key must be set together")
		}
		if cfg.RoleARN != "" && !strings.HasPrefix(cfg.RoleARN, "arn:") {
			result.AddError("role_arn", fmt.Sprintf("%q is not an ARN", cfg.RoleARN))
		}
		validateEndpoint(result, "endpoint", cfg.Endpoint)
	case StorageTypeLocal:
		if strings.TrimSpace(cfg.Path) == "" {
			result.AddError("path", "local backend requires a path")
		}
		if cfg.SigningSecret == "" {
			result.AddError("signing_secret", "local backend requires a signing secret")
		} else if len(cfg.SigningSecret) < 16 {
			result.AddWarning("local signing secret is shorter than 16 bytes")
		}
		validateEndpoint(result, "base_url", cfg.BaseURL)
	case StorageTypeMemory:
		result.AddWarning("memory backend keeps uploads in process memory only")
	case "":
		result.AddError("type", "backend type cannot be empty")
	default:
		result.AddError("type", fmt.Sprintf("unknown backend type %q", cfg.Type))
	}

	if cfg.DefaultExpiry < 0 {
		result.AddError("default_expiry", "default expiry cannot be negative")
	}

	return result
}

func validateEndpoint(result *ConfigValidationResult, field, raw string) {
	if raw == "" {
		return
	}
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		result.AddError(field, fmt.Sprintf("%q is not an absolute URL", raw))
	}
}
