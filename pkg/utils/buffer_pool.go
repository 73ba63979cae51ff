// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

package utils

import (
	"math/bits"
	"sync"
)

// Read buffers used while streaming request bodies are pooled in power-of-two
// size classes from 4KB to 1MB.
const (
	minPoolShift  = 12
	minPoolSize   = 1 << minPoolShift // 4KB
	maxPoolSize   = 1 << 20           // 1MB
	numPoolLevels = 9
)

var bufferPools [numPoolLevels]sync.Pool

func init() {
	for i := range bufferPools {
		size := minPoolSize << i
		bufferPools[i] = sync.Pool{
			New: func() any {
				buf := make([]byte, size)
				return &buf
			},
		}
	}
}

// poolIndex returns the size class for size, or -1 when size is too large
// to be pooled.
func poolIndex(size int) int {
	if size <= minPoolSize {
		return 0
	}
	if size > maxPoolSize {
		return -1
	}
	return bits.Len(uint(size-1)) - minPoolShift
}

// GetBuffer returns a slice of exactly size bytes, backed by a pooled array
// when size fits a size class. Return it with PutBuffer.
func GetBuffer(size int) []byte {
	idx := poolIndex(size)
	if idx < 0 {
		return make([]byte, size)
	}
	bufPtr := bufferPools[idx].Get().(*[]byte)
	return (*bufPtr)[:size]
}

// PutBuffer returns buf to its pool. Slices that did not come from
// GetBuffer are dropped.
//
// Do not use the buffer after calling PutBuffer.
func PutBuffer(buf []byte) {
	c := cap(buf)
	idx := poolIndex(c)
	if idx < 0 || c != minPoolSize<<idx {
		return
	}
	buf = buf[:c]
	bufferPools[idx].Put(&buf)
}
