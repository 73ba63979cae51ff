package upload

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"mime/multipart"
	"net/textproto"
	"sync/atomic"
	"testing"
	"time"

	"github.com/LeeDigitalWorks/zapupload/pkg/storage/backend"
	"github.com/LeeDigitalWorks/zapupload/pkg/types"

	"github.com/stretchr/testify/require"
)

const testBucket = "uploads"

// recordingStore counts calls on top of the memory backend and lets tests
// inject failures.
type recordingStore struct {
	*backend.MemoryStorage

	uploadCalls atomic.Int32
	signCalls   atomic.Int32
	uploadHook  func(key string) error
	signErr     error
}

func newRecordingStore() *recordingStore {
	return &recordingStore{MemoryStorage: backend.NewMemoryStorage()}
}

func (r *recordingStore) Upload(ctx context.Context, bucket, key string, rd io.Reader, size int64, contentType string) (types.ObjectRef, error) {
	r.uploadCalls.Add(1)
	if r.uploadHook != nil {
		if err := r.uploadHook(key); err != nil {
			return types.ObjectRef{}, err
		}
	}
	return r.MemoryStorage.Upload(ctx, bucket, key, rd, size, contentType)
}

func (r *recordingStore) SignURL(ctx context.Context, bucket, key string, expiry time.Duration) (string, error) {
	r.signCalls.Add(1)
	if r.signErr != nil {
		return "", r.signErr
	}
	return r.MemoryStorage.SignURL(ctx, bucket, key, expiry)
}

type filePart struct {
	field       string
	fileName    string
	contentType string
	data        []byte
}

// multipartBody encodes files and fields; it returns the content type header
// and the raw body.
func multipartBody(t *testing.T, fields map[string]string, files ...filePart) (string, []byte) {
	t.Helper()

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for name, value := range fields {
		require.NoError(t, w.WriteField(name, value))
	}
	for _, f := range files {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%s"; filename="%s"`, f.field, f.fileName))
		h.Set("Content-Type", f.contentType)
		pw, err := w.CreatePart(h)
		require.NoError(t, err)
		_, err = pw.Write(f.data)
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	return w.FormDataContentType(), buf.Bytes()
}

// envelope wraps a multipart body the way API Gateway delivers binary bodies.
func envelope(contentType string, body []byte) Envelope {
	return Envelope{
		Headers:         map[string]string{"Content-Type": contentType},
		Body:            base64.StdEncoding.EncodeToString(body),
		IsBase64Encoded: true,
	}
}

func pngImage(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.NRGBA{R: uint8(x), G: uint8(y), B: 200, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func newTestService(t *testing.T, profile Profile, store types.ObjectStore, opts ...Option) *Service {
	t.Helper()
	cfg, err := ProfileConfig(profile)
	require.NoError(t, err)
	cfg.Bucket = testBucket
	opts = append([]Option{WithIDGenerator(func() string { return "test-id" })}, opts...)
	svc, err := NewService(cfg, store, opts...)
	require.NoError(t, err)
	return svc
}

func decodeBody(t *testing.T, resp Response) map[string]any {
	t.Helper()
	var m map[string]any
	require.NoError(t, json.Unmarshal(resp.Body, &m), string(resp.Body))
	return m
}
