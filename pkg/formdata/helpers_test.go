package formdata

import (
	"bytes"
	"fmt"
	"mime/multipart"
	"net/textproto"
	"testing"

	"github.com/stretchr/testify/require"
)

type testPart struct {
	field       string
	fileName    string // empty means a plain field
	contentType string
	data        []byte
}

func fieldPart(name, value string) testPart {
	return testPart{field: name, data: []byte(value)}
}

func filePart(field, fileName, contentType string, data []byte) testPart {
	return testPart{field: field, fileName: fileName, contentType: contentType, data: data}
}

// buildBody encodes parts with mime/multipart.Writer and returns the request
// content type and body.
func buildBody(t *testing.T, parts ...testPart) (string, []byte) {
	t.Helper()

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for _, p := range parts {
		h := make(textproto.MIMEHeader)
		if p.fileName != "" {
			h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%s"; filename="%s"`, p.field, p.fileName))
			if p.contentType != "" {
				h.Set("Content-Type", p.contentType)
			}
		} else {
			h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%s"`, p.field))
		}
		pw, err := w.CreatePart(h)
		require.NoError(t, err)
		_, err = pw.Write(p.data)
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	return w.FormDataContentType(), buf.Bytes()
}

// feed writes body into a new parser in chunks of size n and closes it.
func feed(t *testing.T, contentType string, body []byte, n int) (*ParseResult, error) {
	t.Helper()

	p, err := NewParser(contentType)
	require.NoError(t, err)
	for len(body) > 0 {
		k := min(n, len(body))
		if _, err := p.Write(body[:k]); err != nil {
			return nil, err
		}
		body = body[k:]
	}
	return p.Close()
}

// pattern returns n bytes that never contain CR or LF runs resembling a
// boundary but do include every byte value.
func pattern(n int) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = byte(i * 7)
	}
	return b
}
