// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

package utils

import (
	"encoding/base64"
	"hash"
	"sync"

	"github.com/minio/crc64nvme"
	"github.com/minio/sha256-simd"
)

var crc64nvmePool = sync.Pool{
	New: func() any {
		return crc64nvme.New()
	},
}

func Crc64nvmePoolGetHasher() hash.Hash64 {
	return crc64nvmePool.Get().(hash.Hash64)
}

func Crc64nvmePoolPutHasher(h hash.Hash64) {
	h.Reset()
	crc64nvmePool.Put(h)
}

// ChecksumCRC64NVME returns the base64 CRC-64/NVME of data, the encoding S3
// uses for x-amz-checksum-crc64nvme.
func ChecksumCRC64NVME(data []byte) string {
	h := Crc64nvmePoolGetHasher()
	defer Crc64nvmePoolPutHasher(h)
	h.Write(data)
	return base64.StdEncoding.EncodeToString(h.Sum(nil))
}

// NewSha256 returns a SIMD accelerated SHA-256 hash, usable with crypto/hmac.
func NewSha256() hash.Hash {
	return sha256.New()
}
