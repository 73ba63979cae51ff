// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

// Package policy decides whether an uploaded file may be stored.
package policy

import (
	"errors"
	"fmt"
	"slices"
)

// DefaultAllowedMIMETypes is the allow-list used when none is configured.
// image/jpg is not registered but browsers and older clients still send it.
var DefaultAllowedMIMETypes = []string{"image/png", "image/jpeg", "image/jpg"}

// Policy is an admission rule for a single file.
type Policy struct {
	MaxSizeBytes     int64
	AllowedMIMETypes []string
}

// Rule names the check that rejected a file.
type Rule string

const (
	RuleSize Rule = "size"
	RuleType Rule = "type"
)

// Decision is the outcome of Admit. Reason and Rule are empty when Accepted.
type Decision struct {
	Accepted bool
	Reason   string
	Rule     Rule
}

// Admit checks size first, then content type. The content type must match an
// allow-list entry byte for byte.
func (p Policy) Admit(sizeBytes int64, contentType string) Decision {
	if sizeBytes > p.MaxSizeBytes {
		return Decision{
			Reason: fmt.Sprintf("file size %d bytes not allowed: exceeds maximum of %d bytes", sizeBytes, p.MaxSizeBytes),
			Rule:   RuleSize,
		}
	}
	if !slices.Contains(p.AllowedMIMETypes, contentType) {
		return Decision{Reason: fmt.Sprintf("file type %q not allowed", contentType), Rule: RuleType}
	}
	return Decision{Accepted: true}
}

// Validate reports configuration mistakes that would reject every upload.
func (p Policy) Validate() error {
	var errs []error
	if p.MaxSizeBytes <= 0 {
		errs = append(errs, fmt.Errorf("max size must be positive, got %d", p.MaxSizeBytes))
	}
	if len(p.AllowedMIMETypes) == 0 {
		errs = append(errs, errors.New("allowed MIME types must not be empty"))
	}
	for _, t := range p.AllowedMIMETypes {
		if t == "" {
			errs = append(errs, errors.New("allowed MIME types contains an empty entry"))
			break
		}
	}
	return errors.Join(errs...)
}
