// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

package upload

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/LeeDigitalWorks/zapupload/pkg/formdata"
	"github.com/LeeDigitalWorks/zapupload/pkg/logger"
	"github.com/LeeDigitalWorks/zapupload/pkg/uploaderr"

	"github.com/getsentry/sentry-go"
)

// Envelope is a gateway style request: headers, a string body and a flag
// telling whether the body is base64 encoded.
type Envelope struct {
	Headers           map[string]string
	MultiValueHeaders map[string][]string
	Body              string
	IsBase64Encoded   bool
}

// ContentType looks the content type header up case-insensitively.
func (e Envelope) ContentType() string {
	for _, name := range []string{"content-type", "Content-Type"} {
		if v, ok := e.Headers[name]; ok {
			return v
		}
	}
	for k, v := range e.Headers {
		if strings.EqualFold(k, "content-type") {
			return v
		}
	}
	for k, v := range e.MultiValueHeaders {
		if strings.EqualFold(k, "content-type") && len(v) > 0 {
			return v[0]
		}
	}
	return ""
}

// Response is the binary success/failure envelope returned to callers.
type Response struct {
	StatusCode int
	Code       uploaderr.ErrorCode
	Body       []byte
}

// SuccessBody is the JSON body of a stored upload. Thumbnail fields are
// present only when a thumbnail rendition is configured.
type SuccessBody struct {
	ID            string          `json:"id"`
	MimeType      string          `json:"mimeType"`
	Bucket        string          `json:"bucket"`
	FileName      string          `json:"fileName"`
	OriginalKey   string          `json:"originalKey"`
	OriginalURL   string          `json:"originalUrl"`
	OriginalPath  string          `json:"originalPath"`
	OriginalSize  int64           `json:"originalSize"`
	ThumbnailKey  string          `json:"thumbnailKey,omitempty"`
	ThumbnailURL  string          `json:"thumbnailUrl,omitempty"`
	ThumbnailSize int64           `json:"thumbnailSize,omitempty"`
	Renditions    []RenditionBody `json:"renditions"`
}

// RenditionBody describes one rendition in a SuccessBody.
type RenditionBody struct {
	Label       string     `json:"label"`
	Key         string     `json:"key"`
	Bucket      string     `json:"bucket"`
	URL         string     `json:"url"`
	Size        int64      `json:"size"`
	ContentType string     `json:"contentType"`
	Checksum    string     `json:"checksumCrc64nvme,omitempty"`
	ExpiresAt   *time.Time `json:"expiresAt,omitempty"`
}

// ErrorBody is the JSON body of any failure.
type ErrorBody struct {
	Message string `json:"message"`
	Code    string `json:"code"`
	Crash   bool   `json:"crash,omitempty"`
}

// NewSuccessBody assembles the success payload for r.
func NewSuccessBody(r *Result) SuccessBody {
	body := SuccessBody{
		ID:         r.ID,
		MimeType:   r.ContentType,
		Bucket:     r.Bucket,
		FileName:   r.FileName,
		Renditions: make([]RenditionBody, 0, len(r.Renditions)),
	}
	for _, o := range r.Renditions {
		rb := RenditionBody{
			Label:       o.Label,
			Key:         o.Key,
			Bucket:      o.Bucket,
			URL:         o.URL,
			Size:        o.Size,
			ContentType: o.ContentType,
			Checksum:    o.Checksum,
		}
		if !o.ExpiresAt.IsZero() {
			t := o.ExpiresAt
			rb.ExpiresAt = &t
		}
		body.Renditions = append(body.Renditions, rb)

		switch o.Label {
		case LabelOriginal:
			body.OriginalKey = o.Key
			body.OriginalURL = o.URL
			body.OriginalPath = o.Bucket + "/" + o.Key
			body.OriginalSize = o.Size
		case LabelThumbnail:
			body.ThumbnailKey = o.Key
			body.ThumbnailURL = o.URL
			body.ThumbnailSize = o.Size
		}
	}
	return body
}

// NewErrorBody converts err into the failure payload. Untagged errors are
// reported as UnexpectedError. Backend failures carry only the code's
// description; their detail stays in the logs.
func NewErrorBody(err error) ErrorBody {
	code := uploaderr.CodeOf(err)
	if code == uploaderr.ErrNone {
		code = uploaderr.ErrUnexpected
	}
	body := ErrorBody{Code: code.Code(), Message: err.Error()}
	switch code {
	case uploaderr.ErrUnexpected:
		body.Message = code.Description()
		body.Crash = true
	case uploaderr.ErrPersistence, uploaderr.ErrSigning:
		body.Message = code.Description()
	}
	return body
}

// HandleEnvelope decodes env and runs the pipeline. It never fails; every
// error is carried in the returned Response.
func (s *Service) HandleEnvelope(ctx context.Context, env Envelope) Response {
	return s.respond(ctx, func(ctx context.Context) (*Result, error) {
		data, err := formdata.DecodeBody(env.Body, env.IsBase64Encoded)
		if err != nil {
			return nil, err
		}
		return s.Process(ctx, Request{ContentType: env.ContentType(), Body: bytes.NewReader(data)})
	})
}

// Handle runs the pipeline over a streamed request.
func (s *Service) Handle(ctx context.Context, req Request) Response {
	return s.respond(ctx, func(ctx context.Context) (*Result, error) {
		return s.Process(ctx, req)
	})
}

func (s *Service) respond(ctx context.Context, run func(context.Context) (*Result, error)) (resp Response) {
	defer func() {
		if r := recover(); r != nil {
			err := uploaderr.Errorf(uploaderr.ErrUnexpected, "panic: %v", r)
			sentry.CaptureException(err)
			logger.Ctx(ctx).Error().Err(err).Msg("Recovered from panic in upload pipeline")
			resp = errorResponse(err)
		}
	}()

	result, err := run(ctx)
	if err != nil {
		code := uploaderr.CodeOf(err)
		ev := logger.Ctx(ctx).Warn()
		if code == uploaderr.ErrUnexpected || code == uploaderr.ErrPersistence || code == uploaderr.ErrSigning {
			ev = logger.Ctx(ctx).Error()
		}
		ev.Err(err).Str("code", code.Code()).Msg("Upload failed")
		if code == uploaderr.ErrUnexpected {
			sentry.CaptureException(err)
		}
		return errorResponse(err)
	}

	UploadRequestsTotal.WithLabelValues(resultSuccess).Inc()
	return jsonResponse(http.StatusOK, uploaderr.ErrNone, NewSuccessBody(result))
}

// ErrorResponse builds the failure envelope for err outside the pipeline,
// e.g. for requests refused by the transport.
func ErrorResponse(err error) Response {
	return errorResponse(err)
}

func errorResponse(err error) Response {
	code := uploaderr.CodeOf(err)
	if code == uploaderr.ErrNone {
		code = uploaderr.ErrUnexpected
	}
	UploadRequestsTotal.WithLabelValues(code.Code()).Inc()
	return jsonResponse(code.HTTPStatusCode(), code, NewErrorBody(err))
}

func jsonResponse(status int, code uploaderr.ErrorCode, v any) Response {
	body, err := json.Marshal(v)
	if err != nil {
		// Unreachable for the body types above.
		body = []byte(fmt.Sprintf(`{"message":%q,"code":%q,"crash":true}`, err.Error(), uploaderr.ErrUnexpected.Code()))
		status = http.StatusInternalServerError
		code = uploaderr.ErrUnexpected
	}
	return Response{StatusCode: status, Code: code, Body: body}
}
