// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

package formdata

import (
	"encoding/base64"
	"strings"

	"github.com/LeeDigitalWorks/zapupload/pkg/uploaderr"
)

// DecodeBody returns the bytes the client transmitted. Gateways hand binary
// bodies over base64 encoded and flag them; anything else is taken verbatim.
func DecodeBody(body string, isBase64Encoded bool) ([]byte, error) {
	if !isBase64Encoded {
		return []byte(body), nil
	}

	data, err := base64.StdEncoding.Strict().DecodeString(body)
	if err == nil {
		return data, nil
	}

	// Some proxies strip the padding. Partial padding is still malformed.
	if !strings.Contains(body, "=") {
		if raw, rawErr := base64.RawStdEncoding.Strict().DecodeString(body); rawErr == nil {
			return raw, nil
		}
	}

	return nil, uploaderr.Errorf(uploaderr.ErrDecode, "decode base64 body: %w", err)
}
