// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

package policy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAdmit(t *testing.T) {
	t.Parallel()

	p := Policy{MaxSizeBytes: 4_500_000, AllowedMIMETypes: DefaultAllowedMIMETypes}

	tests := []struct {
		name        string
		size        int64
		contentType string
		accepted    bool
		reason      string
		rule        Rule
	}{
		{"png at limit", 4_500_000, "image/png", true, "", ""},
		{"jpeg small", 1, "image/jpeg", true, "", ""},
		{"jpg alias", 1000, "image/jpg", true, "", ""},
		{"zero size", 0, "image/png", true, "", ""},
		{"one over", 4_500_001, "image/png", false, "file size 4500001 bytes not allowed", RuleSize},
		{"gif", 1000, "image/gif", false, `file type "image/gif" not allowed`, RuleType},
		{"case differs", 1000, "IMAGE/PNG", false, "not allowed", RuleType},
		{"with parameters", 1000, "image/png; charset=binary", false, "not allowed", RuleType},
		{"empty type", 1000, "", false, "not allowed", RuleType},
		{"oversize and bad type reports size", 5_000_000, "application/pdf", false, "file size 5000000 bytes not allowed", RuleSize},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			d := p.Admit(tt.size, tt.contentType)
			assert.Equal(t, tt.accepted, d.Accepted)
			assert.Equal(t, tt.rule, d.Rule)
			if tt.accepted {
				assert.Empty(t, d.Reason)
				return
			}
			assert.Contains(t, d.Reason, tt.reason)
			assert.Contains(t, d.Reason, "not allowed")
		})
	}
}

func TestAdmit_NoWildcards(t *testing.T) {
	t.Parallel()

	p := Policy{MaxSizeBytes: 10, AllowedMIMETypes: []string{"image/*"}}
	assert.False(t, p.Admit(1, "image/png").Accepted)
	assert.True(t, p.Admit(1, "image/*").Accepted)
}

func TestValidate(t *testing.T) {
	t.Parallel()

	require.NoError(t, Policy{MaxSizeBytes: 1, AllowedMIMETypes: []string{"image/png"}}.Validate())

	err := Policy{}.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "max size must be positive")
	assert.Contains(t, err.Error(), "must not be empty")

	err = Policy{MaxSizeBytes: 1, AllowedMIMETypes: []string{"image/png", ""}}.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "empty entry")
}
