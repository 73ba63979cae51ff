// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

package formdata

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"testing/iotest"

	"github.com/LeeDigitalWorks/zapupload/pkg/uploaderr"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ============================================================================
// Boundary
// ============================================================================

func TestBoundary(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		contentType string
		want        string
		wantErr     string
	}{
		{"plain", "multipart/form-data; boundary=abc123", "abc123", ""},
		{"quoted", `multipart/form-data; boundary="a b:c"`, "a b:c", ""},
		{"mixed subtype", "multipart/mixed; boundary=xyz", "xyz", ""},
		{"empty header", "", "", "missing content-type"},
		{"not multipart", "application/json", "", "unsupported content type"},
		{"no boundary", "multipart/form-data", "", "boundary not found"},
		{"too long", "multipart/form-data; boundary=" + strings.Repeat("x", 71), "", "longer than 70"},
		{"garbage", "multipart/form-data; boundary", "", "malformed content-type"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := Boundary(tt.contentType)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				assert.True(t, uploaderr.Is(err, uploaderr.ErrParse))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

// ============================================================================
// Parsing
// ============================================================================

func TestParse_SingleFile(t *testing.T) {
	t.Parallel()

	content := pattern(100_000)
	ct, body := buildBody(t, filePart("file", "photo.png", "image/png", content))

	res, err := Parse(body, ct)
	require.NoError(t, err)

	files := res.Files()
	require.Len(t, files, 1)
	want := ParsedFile{
		FieldName:   "file",
		FileName:    "photo.png",
		ContentType: "image/png",
		Encoding:    "7bit",
		Content:     content,
	}
	if diff := cmp.Diff(want, files[0]); diff != "" {
		t.Errorf("parsed file mismatch (-want +got):\n%s", diff)
	}
	assert.Empty(t, res.Fields())
}

func TestParse_ChunkSizesAgree(t *testing.T) {
	t.Parallel()

	content := pattern(9_001)
	ct, body := buildBody(t,
		fieldPart("title", "holiday"),
		filePart("file", "a.jpg", "image/jpeg", content),
		fieldPart("note", "second"),
	)

	for _, n := range []int{1, 2, 3, 7, 64, 1000, len(body)} {
		res, err := feed(t, ct, body, n)
		require.NoError(t, err, "chunk size %d", n)

		f, ok := res.File()
		require.True(t, ok)
		assert.Equal(t, content, f.Content, "chunk size %d", n)
		assert.Equal(t, int64(len(content)), f.Size())

		title, _ := res.Field("title")
		note, _ := res.Field("note")
		assert.Equal(t, "holiday", title)
		assert.Equal(t, "second", note)
	}
}

func TestParse_FilesKeepArrivalOrder(t *testing.T) {
	t.Parallel()

	ct, body := buildBody(t,
		filePart("a", "1.png", "image/png", []byte("one")),
		filePart("b", "2.png", "image/png", []byte("two")),
		filePart("c", "3.png", "image/png", []byte("three")),
	)

	res, err := Parse(body, ct)
	require.NoError(t, err)

	var names []string
	for _, f := range res.Files() {
		names = append(names, f.FileName)
	}
	assert.Equal(t, []string{"1.png", "2.png", "3.png"}, names)
}

func TestParse_EmptyFilePartDropped(t *testing.T) {
	t.Parallel()

	ct, body := buildBody(t,
		filePart("empty", "nothing.png", "image/png", nil),
		filePart("file", "photo.png", "image/png", []byte("data")),
		filePart("empty2", "nothing2.png", "image/png", nil),
	)

	res, err := Parse(body, ct)
	require.NoError(t, err)

	files := res.Files()
	require.Len(t, files, 1)
	assert.Equal(t, "photo.png", files[0].FileName)
}

func TestParse_OnlyEmptyFile(t *testing.T) {
	t.Parallel()

	ct, body := buildBody(t, filePart("file", "x.png", "image/png", nil))

	res, err := Parse(body, ct)
	require.NoError(t, err)
	_, ok := res.File()
	assert.False(t, ok)
}

func TestParse_FieldLastWriteWins(t *testing.T) {
	t.Parallel()

	ct, body := buildBody(t,
		fieldPart("tag", "first"),
		fieldPart("tag", "second"),
		fieldPart("empty", ""),
	)

	res, err := Parse(body, ct)
	require.NoError(t, err)

	v, ok := res.Field("tag")
	assert.True(t, ok)
	assert.Equal(t, "second", v)

	v, ok = res.Field("empty")
	assert.True(t, ok)
	assert.Equal(t, "", v)

	assert.Equal(t, []string{"empty", "tag"}, res.FieldNames())
}

func TestParse_DefaultsAndHeaderForms(t *testing.T) {
	t.Parallel()

	body := "preamble text\r\n" +
		"--XYZ\r\n" +
		"content-disposition: form-data;\r\n" +
		"\tname=\"upload\"; filename=\"raw.bin\"\r\n" +
		"Content-Transfer-Encoding: BINARY\r\n" +
		"\r\n" +
		"payload\r\n" +
		"--XYZ  \r\n" +
		"Content-Disposition: form-data; name=\"kind\"\r\n" +
		"Content-Type: text/plain; charset=utf-8\r\n" +
		"\r\n" +
		"avatar\r\n" +
		"--XYZ\r\n" +
		"Content-Type: text/plain\r\n" +
		"\r\n" +
		"no disposition, skipped\r\n" +
		"--XYZ\r\n" +
		"Content-Disposition: form-data; name=\"photo\"; filename=\"p.PNG\"\r\n" +
		"Content-Type: image/png; name=p.PNG\r\n" +
		"\r\n" +
		"png\r\n" +
		"--XYZ--\r\n" +
		"epilogue is ignored"

	res, err := Parse([]byte(body), "multipart/form-data; boundary=XYZ")
	require.NoError(t, err)

	files := res.Files()
	require.Len(t, files, 2)

	assert.Equal(t, "upload", files[0].FieldName)
	assert.Equal(t, "raw.bin", files[0].FileName)
	assert.Equal(t, "application/octet-stream", files[0].ContentType)
	assert.Equal(t, "binary", files[0].Encoding)
	assert.Equal(t, []byte("payload"), files[0].Content)

	assert.Equal(t, "image/png", files[1].ContentType)

	kind, _ := res.Field("kind")
	assert.Equal(t, "avatar", kind)
	assert.Equal(t, []string{"kind"}, res.FieldNames())
}

func TestParse_ContentContainingBoundaryPrefix(t *testing.T) {
	t.Parallel()

	// Data that looks like the delimiter without the final boundary bytes.
	content := []byte("line\r\n--XY not quite\r\n--X")
	body := "--XYZ\r\n" +
		"Content-Disposition: form-data; name=\"f\"; filename=\"t.txt\"\r\n\r\n" +
		string(content) + "\r\n--XYZ--"

	for _, n := range []int{1, 5, len(body)} {
		res, err := feed(t, "multipart/form-data; boundary=XYZ", []byte(body), n)
		require.NoError(t, err)
		f, ok := res.File()
		require.True(t, ok)
		assert.Equal(t, content, f.Content)
	}
}

func TestParse_PreambleMentioningBoundary(t *testing.T) {
	t.Parallel()

	const ct = "multipart/form-data; boundary=abc"
	part := "--abc\r\n" +
		"Content-Disposition: form-data; name=\"f\"; filename=\"t.txt\"\r\n\r\n" +
		"payload\r\n--abc--\r\n"

	tests := []struct {
		name     string
		preamble string
	}{
		{"mid-line mention", "xx--abcZ\r\n"},
		{"mid-line full boundary", "see --abc\r\n"},
		{"line starting with longer token", "--abcdef\r\n"},
		{"several lines", "line one\r\n--abc is the boundary\r\nline --abc three\r\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			body := []byte(tt.preamble + part)
			for _, n := range []int{1, 3, len(body)} {
				res, err := feed(t, ct, body, n)
				require.NoError(t, err, "chunk size %d", n)
				f, ok := res.File()
				require.True(t, ok)
				assert.Equal(t, []byte("payload"), f.Content)
			}
		})
	}
}

func TestParse_EmptyForm(t *testing.T) {
	t.Parallel()

	res, err := Parse([]byte("--XYZ--\r\n"), "multipart/form-data; boundary=XYZ")
	require.NoError(t, err)
	assert.Empty(t, res.Files())
	assert.Empty(t, res.Fields())
}

// ============================================================================
// Failures
// ============================================================================

func TestParse_Truncated(t *testing.T) {
	t.Parallel()

	ct, body := buildBody(t, filePart("file", "photo.png", "image/png", pattern(5000)))

	for _, cut := range []int{0, 10, len(body) / 2, len(body) - 3} {
		_, err := Parse(body[:cut], ct)
		require.Error(t, err, "cut at %d", cut)
		assert.True(t, uploaderr.Is(err, uploaderr.ErrParse))
		assert.Contains(t, err.Error(), "unexpected end of multipart stream")
	}
}

func TestParse_MalformedInput(t *testing.T) {
	t.Parallel()

	const ct = "multipart/form-data; boundary=XYZ"
	tests := []struct {
		name    string
		body    string
		wantErr string
	}{
		{
			name:    "junk after boundary",
			body:    "--XYZ\r\nContent-Disposition: form-data; name=\"a\"\r\n\r\n1\r\n--XYZjunk\r\n\r\n",
			wantErr: "malformed boundary line",
		},
		{
			name:    "header without colon",
			body:    "--XYZ\r\nnot a header\r\n\r\nx\r\n--XYZ--",
			wantErr: "malformed part header",
		},
		{
			name:    "header name with space",
			body:    "--XYZ\r\nBad Name: v\r\n\r\nx\r\n--XYZ--",
			wantErr: "malformed part header name",
		},
		{
			name:    "leading continuation",
			body:    "--XYZ\r\n folded\r\n\r\nx\r\n--XYZ--",
			wantErr: "malformed part header",
		},
		{
			name:    "bad disposition",
			body:    "--XYZ\r\nContent-Disposition: ;;\r\n\r\nx\r\n--XYZ--",
			wantErr: "malformed content-disposition",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := Parse([]byte(tt.body), ct)
			require.Error(t, err)
			assert.True(t, uploaderr.Is(err, uploaderr.ErrParse))
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestParse_HeaderTooLarge(t *testing.T) {
	t.Parallel()

	body := "--XYZ\r\nX-Big: " + strings.Repeat("a", 200) + "\r\n\r\nx\r\n--XYZ--"
	p, err := NewParser("multipart/form-data; boundary=XYZ", WithMaxHeaderBytes(64))
	require.NoError(t, err)

	_, err = p.Write([]byte(body))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "part header exceeds 64 bytes")
	assert.Equal(t, stateAborted, p.state)
}

func TestParse_MaxFileBytes(t *testing.T) {
	t.Parallel()

	ct, body := buildBody(t, filePart("file", "big.png", "image/png", pattern(1000)))

	_, err := Parse(body, ct, WithMaxFileBytes(999))
	require.Error(t, err)
	assert.True(t, uploaderr.Is(err, uploaderr.ErrValidationRejected))
	assert.Contains(t, err.Error(), "not allowed")

	res, err := Parse(body, ct, WithMaxFileBytes(1000))
	require.NoError(t, err)
	assert.Len(t, res.Files(), 1)
}

func TestParse_MaxFieldBytes(t *testing.T) {
	t.Parallel()

	ct, body := buildBody(t, fieldPart("note", strings.Repeat("n", 50)))

	_, err := Parse(body, ct, WithMaxFieldBytes(10))
	require.Error(t, err)
	assert.True(t, uploaderr.Is(err, uploaderr.ErrParse))
}

func TestParseReader_StreamError(t *testing.T) {
	t.Parallel()

	ct, body := buildBody(t, filePart("file", "photo.png", "image/png", pattern(100)))
	// The whole body fits the first read; the second read fails instead of
	// returning io.EOF, so the parse must not complete.
	r := iotest.TimeoutReader(bytes.NewReader(body))

	_, err := ParseReader(r, ct)
	require.Error(t, err)
	assert.True(t, uploaderr.Is(err, uploaderr.ErrParse))
	assert.Contains(t, err.Error(), "read multipart stream")
	assert.ErrorIs(t, err, iotest.ErrTimeout)
}

func TestParseReader_OneByteReader(t *testing.T) {
	t.Parallel()

	content := pattern(3000)
	ct, body := buildBody(t, filePart("file", "photo.png", "image/png", content))

	res, err := ParseReader(iotest.OneByteReader(bytes.NewReader(body)), ct)
	require.NoError(t, err)
	f, ok := res.File()
	require.True(t, ok)
	assert.Equal(t, content, f.Content)
}

// ============================================================================
// State machine
// ============================================================================

func TestParser_StateTransitions(t *testing.T) {
	t.Parallel()

	p, err := NewParser("multipart/form-data; boundary=B")
	require.NoError(t, err)
	assert.Equal(t, stateAwaitingBoundary, p.state)

	steps := []struct {
		chunk string
		want  state
	}{
		{"--B\r\n", stateInHeaders},
		{"Content-Disposition: form-data; name=\"f\"; filename=\"a\"\r\n", stateInHeaders},
		{"\r\n", stateInBody},
		{"abc", stateInBody},
		{"\r\n--B", stateAwaitingBoundary},
		{"--", stateComplete},
		{"trailing epilogue", stateComplete},
	}
	for _, s := range steps {
		_, err := p.Write([]byte(s.chunk))
		require.NoError(t, err)
		assert.Equal(t, s.want, p.state, "after %q", s.chunk)
	}

	res, err := p.Close()
	require.NoError(t, err)
	f, ok := res.File()
	require.True(t, ok)
	assert.Equal(t, []byte("abc"), f.Content)
}

func TestParser_AbortedIsTerminal(t *testing.T) {
	t.Parallel()

	p, err := NewParser("multipart/form-data; boundary=B")
	require.NoError(t, err)

	_, err = p.Write([]byte("--Bxx\r\n"))
	require.Error(t, err)
	assert.Equal(t, stateAborted, p.state)

	_, err2 := p.Write([]byte("--B\r\n"))
	assert.Equal(t, err, err2)

	res, err3 := p.Close()
	assert.Nil(t, res)
	assert.Equal(t, err, err3)
	assert.Equal(t, "Aborted", p.state.String())
}

func TestParser_AbortDiscardsPartialResult(t *testing.T) {
	t.Parallel()

	ct, body := buildBody(t,
		fieldPart("a", "1"),
		filePart("file", "photo.png", "image/png", []byte("data")),
	)
	p, err := NewParser(ct)
	require.NoError(t, err)
	_, err = p.Write(body[:len(body)-10])
	require.NoError(t, err)

	p.Abort(errors.New("client went away"))
	res, err := p.Close()
	assert.Nil(t, res)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "client went away")
	assert.Nil(t, p.files)
	assert.Nil(t, p.fields)
}

func TestParseResult_IsImmutable(t *testing.T) {
	t.Parallel()

	ct, body := buildBody(t, fieldPart("a", "1"), filePart("f", "x.png", "image/png", []byte("x")))
	res, err := Parse(body, ct)
	require.NoError(t, err)

	fields := res.Fields()
	fields["a"] = "changed"
	files := res.Files()
	files[0].FileName = "changed"
	files[0].Content[0] = 'y'
	first, _ := res.File()
	first.Content[0] = 'z'

	v, _ := res.Field("a")
	assert.Equal(t, "1", v)
	f, _ := res.File()
	assert.Equal(t, "x.png", f.FileName)
	assert.Equal(t, []byte("x"), f.Content)
}
