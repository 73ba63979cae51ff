// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

// Package transform produces derived renditions of uploaded images.
package transform

import (
	"bytes"
	"context"
	"fmt"

	"github.com/LeeDigitalWorks/zapupload/pkg/uploaderr"

	"github.com/disintegration/imaging"
)

// DefaultQuality is the JPEG quality used when none is configured.
const DefaultQuality = 80

// Resizer scales an encoded image to width, keeping its aspect ratio and
// content type.
type Resizer interface {
	Resize(ctx context.Context, data []byte, contentType string, width int) ([]byte, error)
}

// ImagingResizer implements Resizer with the imaging package.
type ImagingResizer struct {
	// Quality is the JPEG quality, 1-100. Zero means DefaultQuality.
	Quality int
}

var _ Resizer = (*ImagingResizer)(nil)

var formats = map[string]imaging.Format{
	"image/png":  imaging.PNG,
	"image/jpeg": imaging.JPEG,
	"image/jpg":  imaging.JPEG,
	"image/gif":  imaging.GIF,
}

// Supported reports whether contentType can be resized.
func Supported(contentType string) bool {
	_, ok := formats[contentType]
	return ok
}

func (r *ImagingResizer) Resize(ctx context.Context, data []byte, contentType string, width int) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, uploaderr.Wrap(uploaderr.ErrTransform, err)
	}
	if width <= 0 {
		return nil, uploaderr.Errorf(uploaderr.ErrTransform, "invalid target width %d", width)
	}
	format, ok := formats[contentType]
	if !ok {
		return nil, uploaderr.Errorf(uploaderr.ErrTransform, "cannot resize content type %q", contentType)
	}

	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, uploaderr.Errorf(uploaderr.ErrTransform, "decode image: %w", err)
	}

	// Never upscale; narrow images are only re-encoded.
	if img.Bounds().Dx() > width {
		img = imaging.Resize(img, width, 0, imaging.Lanczos)
	}

	quality := r.Quality
	if quality <= 0 || quality > 100 {
		quality = DefaultQuality
	}

	var out bytes.Buffer
	if err := imaging.Encode(&out, img, format, imaging.JPEGQuality(quality)); err != nil {
		return nil, uploaderr.Errorf(uploaderr.ErrTransform, "encode %s: %w", format, err)
	}
	return out.Bytes(), nil
}

// Func adapts a function to Resizer.
type Func func(ctx context.Context, data []byte, contentType string, width int) ([]byte, error)

func (f Func) Resize(ctx context.Context, data []byte, contentType string, width int) ([]byte, error) {
	return f(ctx, data, contentType, width)
}

// String is used in log fields.
func (r *ImagingResizer) String() string {
	return fmt.Sprintf("imaging(quality=%d)", r.Quality)
}
