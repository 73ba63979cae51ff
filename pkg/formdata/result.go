// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

package formdata

import (
	"bytes"
	"maps"
	"slices"
)

// ParsedFile is one file part of a multipart body. Every field except Content
// is whatever the client declared and must be treated as untrusted.
type ParsedFile struct {
	FieldName   string
	FileName    string
	ContentType string
	Encoding    string
	Content     []byte
}

// Size returns the length of the file content in bytes.
func (f ParsedFile) Size() int64 {
	return int64(len(f.Content))
}

func (f ParsedFile) clone() ParsedFile {
	f.Content = bytes.Clone(f.Content)
	return f
}

// ParseResult is the outcome of one completed parse. It is built once when
// the stream ends and never modified afterwards.
type ParseResult struct {
	files  []ParsedFile
	fields map[string]string
}

func newParseResult(files []ParsedFile, fields map[string]string) *ParseResult {
	return &ParseResult{
		files:  slices.Clone(files),
		fields: maps.Clone(fields),
	}
}

// Files returns copies of the file parts in arrival order.
func (r *ParseResult) Files() []ParsedFile {
	out := make([]ParsedFile, len(r.files))
	for i, f := range r.files {
		out[i] = f.clone()
	}
	return out
}

// File returns a copy of the first file part.
func (r *ParseResult) File() (ParsedFile, bool) {
	if len(r.files) == 0 {
		return ParsedFile{}, false
	}
	return r.files[0].clone(), true
}

// Field returns the value of a form field. Repeated names keep the last value.
func (r *ParseResult) Field(name string) (string, bool) {
	v, ok := r.fields[name]
	return v, ok
}

// Fields returns a copy of all form fields.
func (r *ParseResult) Fields() map[string]string {
	out := maps.Clone(r.fields)
	if out == nil {
		out = make(map[string]string)
	}
	return out
}

// FieldNames returns the field names in sorted order.
func (r *ParseResult) FieldNames() []string {
	return slices.Sorted(maps.Keys(r.fields))
}
