// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

package formdata

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/LeeDigitalWorks/zapupload/pkg/utils"
)

// readChunkSize is the size of the pooled buffer used to pull from a reader.
const readChunkSize = 32 << 10

// ParseReader streams r through a Parser. The parse completes only once r
// returns io.EOF; any other read error aborts it.
func ParseReader(r io.Reader, contentType string, opts ...ParserOption) (*ParseResult, error) {
	p, err := NewParser(contentType, opts...)
	if err != nil {
		return nil, err
	}

	buf := utils.GetBuffer(readChunkSize)
	defer utils.PutBuffer(buf)

	for {
		n, readErr := r.Read(buf)
		if n > 0 {
			if _, err := p.Write(buf[:n]); err != nil {
				return nil, err
			}
		}

		switch {
		case readErr == nil:
		case errors.Is(readErr, io.EOF):
			return p.Close()
		default:
			p.Abort(fmt.Errorf("read multipart stream: %w", readErr))
			return nil, p.Err()
		}
	}
}

// Parse parses a fully buffered body.
func Parse(body []byte, contentType string, opts ...ParserOption) (*ParseResult, error) {
	return ParseReader(bytes.NewReader(body), contentType, opts...)
}
