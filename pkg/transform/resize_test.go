// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

package transform

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/gif"
	"image/jpeg"
	"image/png"
	"testing"

	"github.com/LeeDigitalWorks/zapupload/pkg/uploaderr"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testImage(w, h int) image.Image {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.NRGBA{R: uint8(x), G: uint8(y), B: 128, A: 255})
		}
	}
	return img
}

func encodePNG(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, testImage(w, h)))
	return buf.Bytes()
}

func encodeJPEG(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, testImage(w, h), &jpeg.Options{Quality: 95}))
	return buf.Bytes()
}

func TestImagingResizer_Resize(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		data        func(t *testing.T) []byte
		contentType string
		width       int
		wantW       int
		wantH       int
		wantFormat  string
	}{
		{"png downscale", func(t *testing.T) []byte { return encodePNG(t, 400, 300) }, "image/png", 200, 200, 150, "png"},
		{"jpeg downscale", func(t *testing.T) []byte { return encodeJPEG(t, 800, 400) }, "image/jpeg", 200, 200, 100, "jpeg"},
		{"jpg alias", func(t *testing.T) []byte { return encodeJPEG(t, 400, 400) }, "image/jpg", 200, 200, 200, "jpeg"},
		{"no upscale", func(t *testing.T) []byte { return encodePNG(t, 120, 60) }, "image/png", 200, 120, 60, "png"},
	}

	r := &ImagingResizer{Quality: 80}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			out, err := r.Resize(context.Background(), tt.data(t), tt.contentType, tt.width)
			require.NoError(t, err)

			cfg, format, err := image.DecodeConfig(bytes.NewReader(out))
			require.NoError(t, err)
			assert.Equal(t, tt.wantFormat, format)
			assert.Equal(t, tt.wantW, cfg.Width)
			assert.Equal(t, tt.wantH, cfg.Height)
		})
	}
}

func TestImagingResizer_GIF(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	require.NoError(t, gif.Encode(&buf, testImage(300, 150), nil))

	out, err := (&ImagingResizer{}).Resize(context.Background(), buf.Bytes(), "image/gif", 100)
	require.NoError(t, err)

	cfg, format, err := image.DecodeConfig(bytes.NewReader(out))
	require.NoError(t, err)
	assert.Equal(t, "gif", format)
	assert.Equal(t, 100, cfg.Width)
	assert.Equal(t, 50, cfg.Height)
}

func TestImagingResizer_QualityAffectsSize(t *testing.T) {
	t.Parallel()

	data := encodeJPEG(t, 600, 600)
	low, err := (&ImagingResizer{Quality: 10}).Resize(context.Background(), data, "image/jpeg", 300)
	require.NoError(t, err)
	high, err := (&ImagingResizer{Quality: 100}).Resize(context.Background(), data, "image/jpeg", 300)
	require.NoError(t, err)
	assert.Less(t, len(low), len(high))
}

func TestImagingResizer_Failures(t *testing.T) {
	t.Parallel()

	r := &ImagingResizer{}
	valid := encodePNG(t, 10, 10)

	cancelled, cancel := context.WithCancel(context.Background())
	cancel()

	tests := []struct {
		name        string
		ctx         context.Context
		data        []byte
		contentType string
		width       int
		wantMsg     string
	}{
		{"corrupt", context.Background(), []byte("definitely not a png"), "image/png", 200, "decode image"},
		{"truncated", context.Background(), valid[:len(valid)/2], "image/png", 200, "decode image"},
		{"unsupported type", context.Background(), valid, "application/pdf", 200, "cannot resize"},
		{"zero width", context.Background(), valid, "image/png", 0, "invalid target width"},
		{"cancelled", cancelled, valid, "image/png", 200, "context canceled"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := r.Resize(tt.ctx, tt.data, tt.contentType, tt.width)
			require.Error(t, err)
			assert.True(t, uploaderr.Is(err, uploaderr.ErrTransform))
			assert.Contains(t, err.Error(), tt.wantMsg)
		})
	}
}

func TestFunc(t *testing.T) {
	t.Parallel()

	var got int
	var r Resizer = Func(func(_ context.Context, data []byte, _ string, width int) ([]byte, error) {
		got = width
		return data, nil
	})
	out, err := r.Resize(context.Background(), []byte("x"), "image/png", 42)
	require.NoError(t, err)
	assert.Equal(t, []byte("x"), out)
	assert.Equal(t, 42, got)
	assert.True(t, Supported("image/jpg"))
	assert.False(t, Supported("image/webp"))
}
