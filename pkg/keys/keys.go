// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

// Package keys derives object store keys for the renditions of one upload.
//
// A single-rendition upload is stored as {id}_{name}; with several renditions
// every key is {id}_{label}_{name}, so keys of the same upload differ only in
// the label and the relationship can be recovered from any one of them.
package keys

import (
	"sort"
	"strings"

	"golang.org/x/text/unicode/norm"
)

const (
	// MaxFileNameBytes bounds the sanitised name so keys stay well under the
	// 1024 byte S3 key limit.
	MaxFileNameBytes = 200

	fallbackName = "file"
	separator    = "_"
)

// Key is a derived object key for one rendition.
type Key struct {
	Label string
	Name  string
}

// SanitizeFileName turns a client supplied filename into a safe key component.
func SanitizeFileName(name string) string {
	name = norm.NFC.String(name)
	if i := strings.LastIndexAny(name, `/\`); i >= 0 {
		name = name[i+1:]
	}

	var b strings.Builder
	b.Grow(len(name))
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9',
			r == '.', r == '_', r == '-':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	out := b.String()

	// Leading dots would make hidden files on the local backend.
	if trimmed := strings.TrimLeft(out, "."); trimmed != out {
		out = "_" + trimmed
	}
	if len(out) > MaxFileNameBytes {
		out = out[:MaxFileNameBytes]
	}
	if strings.Trim(out, "_") == "" {
		return fallbackName
	}
	return out
}

// Derive returns one key per label, in label order.
func Derive(id, fileName string, labels []string) []Key {
	name := SanitizeFileName(fileName)
	out := make([]Key, 0, len(labels))
	for _, label := range labels {
		k := Key{Label: label}
		if len(labels) == 1 {
			k.Name = id + separator + name
		} else {
			k.Name = id + separator + label + separator + name
		}
		out = append(out, k)
	}
	return out
}

// Parse splits a key produced by Derive with the same labels back into its
// parts. ok is false when the key does not follow the scheme.
func Parse(key string, labels []string) (id, label, fileName string, ok bool) {
	id, rest, found := strings.Cut(key, separator)
	if !found || id == "" || rest == "" {
		return "", "", "", false
	}

	if len(labels) == 1 {
		return id, labels[0], rest, true
	}

	// Longest label first so "thumb" never shadows "thumbnail".
	sorted := append([]string(nil), labels...)
	sort.Slice(sorted, func(i, j int) bool { return len(sorted[i]) > len(sorted[j]) })
	for _, l := range sorted {
		if name, found := strings.CutPrefix(rest, l+separator); found && name != "" {
			return id, l, name, true
		}
	}
	return "", "", "", false
}
