// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

package handler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"

	zctx "github.com/LeeDigitalWorks/zapupload/pkg/context"
	"github.com/LeeDigitalWorks/zapupload/pkg/logger"
	"github.com/LeeDigitalWorks/zapupload/pkg/storage/backend"
	"github.com/LeeDigitalWorks/zapupload/pkg/upload"
	"github.com/LeeDigitalWorks/zapupload/pkg/uploaderr"

	"golang.org/x/time/rate"
)

const (
	// multipartOverhead is the allowance for boundaries, headers and form
	// fields on top of the largest accepted file.
	multipartOverhead = 1 << 20
)

// StreamHandler runs the pipeline over a streamed body.
type StreamHandler interface {
	Handle(ctx context.Context, req upload.Request) upload.Response
	Config() upload.Config
}

// ObjectServer reads objects back through signed URLs.
type ObjectServer interface {
	Verify(bucket, key, expires, signature string) error
	Open(bucket, key string) (*os.File, error)
}

// HTTPOption configures an HTTPHandler.
type HTTPOption func(*HTTPHandler)

// WithRateLimit admits rps uploads per second with the given burst. A
// non-positive rps disables limiting.
func WithRateLimit(rps float64, burst int) HTTPOption {
	return func(h *HTTPHandler) {
		if rps <= 0 {
			h.limiter = nil
			return
		}
		if burst < 1 {
			burst = 1
		}
		h.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// WithObjectServer enables GET /objects/{bucket}/{key}.
func WithObjectServer(objects ObjectServer) HTTPOption {
	return func(h *HTTPHandler) { h.objects = objects }
}

// HTTPHandler serves POST /upload and, with a local backend, signed object
// reads.
type HTTPHandler struct {
	svc     StreamHandler
	objects ObjectServer
	limiter *rate.Limiter
	maxBody int64
	mux     *http.ServeMux
}

func NewHTTPHandler(svc StreamHandler, opts ...HTTPOption) *HTTPHandler {
	h := &HTTPHandler{
		svc:     svc,
		maxBody: svc.Config().MaxSizeBytes + multipartOverhead,
		mux:     http.NewServeMux(),
	}
	for _, opt := range opts {
		opt(h)
	}

	h.mux.HandleFunc("POST /upload", h.handleUpload)
	h.mux.HandleFunc("/upload", h.methodNotAllowed)
	if h.objects != nil {
		h.mux.HandleFunc("GET "+backend.ObjectsPathPrefix+"{bucket}/{key...}", h.handleObject)
	}
	return h
}

func (h *HTTPHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx, id := zctx.WithRequestID(r.Context(), r.Header.Get(zctx.RequestHeader))
	w.Header().Set(zctx.RequestHeader, id)

	ctx, _ = logger.With(ctx, map[string]string{"request_id": id})
	h.mux.ServeHTTP(w, r.WithContext(ctx))
}

func (h *HTTPHandler) handleUpload(w http.ResponseWriter, r *http.Request) {
	if h.limiter != nil && !h.limiter.Allow() {
		logger.Ctx(r.Context()).Warn().Msg("Upload rate limited")
		writeResponse(w, upload.ErrorResponse(uploaderr.New(uploaderr.ErrTooManyRequests,
			uploaderr.ErrTooManyRequests.Description())))
		return
	}

	body := &limitedBody{r: http.MaxBytesReader(w, r.Body, h.maxBody)}
	resp := h.svc.Handle(r.Context(), upload.Request{
		ContentType: r.Header.Get("Content-Type"),
		Body:        body,
	})
	writeResponse(w, resp)
}

func (h *HTTPHandler) handleObject(w http.ResponseWriter, r *http.Request) {
	bucket, key := r.PathValue("bucket"), r.PathValue("key")
	q := r.URL.Query()

	if err := h.objects.Verify(bucket, key, q.Get("expires"), q.Get("signature")); err != nil {
		logger.Ctx(r.Context()).Debug().Err(err).Str("bucket", bucket).Str("key", key).Msg("Rejected object read")
		writeResponse(w, upload.ErrorResponse(uploaderr.New(uploaderr.ErrAccessDenied, err.Error())))
		return
	}

	f, err := h.objects.Open(bucket, key)
	if err != nil {
		code := uploaderr.ErrUnexpected
		if errors.Is(err, backend.ErrObjectNotFound) {
			code = uploaderr.ErrNoSuchObject
		}
		writeResponse(w, upload.ErrorResponse(uploaderr.Wrap(code, err)))
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		writeResponse(w, upload.ErrorResponse(uploaderr.Wrap(uploaderr.ErrUnexpected, err)))
		return
	}
	http.ServeContent(w, r, key, info.ModTime(), f)
}

func (h *HTTPHandler) methodNotAllowed(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Allow", http.MethodPost)
	writeResponse(w, upload.ErrorResponse(uploaderr.Errorf(uploaderr.ErrMethodNotAllowed,
		"method %s not allowed on %s", r.Method, r.URL.Path)))
}

func writeResponse(w http.ResponseWriter, resp upload.Response) {
	w.Header().Set("Content-Type", contentTypeJSON)
	w.WriteHeader(resp.StatusCode)
	_, _ = w.Write(resp.Body)
}

// limitedBody reports an oversize request as a rejection rather than a
// malformed stream.
type limitedBody struct {
	r io.Reader
}

func (b *limitedBody) Read(p []byte) (int, error) {
	n, err := b.r.Read(p)
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return n, uploaderr.New(uploaderr.ErrValidationRejected,
			fmt.Sprintf("request size not allowed: exceeds maximum of %d bytes", tooLarge.Limit))
	}
	return n, err
}
