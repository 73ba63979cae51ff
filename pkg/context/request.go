// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

package context

import (
	"context"

	"github.com/google/uuid"
)

const (
	// RequestHeader carries the request id across HTTP hops.
	RequestHeader = "X-Request-Id"
)

type requestIDKey struct{}

// WithRequestID returns ctx carrying id. An empty id is replaced by a new
// UUID. The id in effect is returned alongside.
func WithRequestID(c context.Context, id string) (context.Context, string) {
	if id == "" {
		id = uuid.NewString()
	}
	return context.WithValue(c, requestIDKey{}, id), id
}

// RequestID returns the id stored by WithRequestID, or "".
func RequestID(c context.Context) string {
	id, _ := c.Value(requestIDKey{}).(string)
	return id
}
