// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

// Package upload runs the ingestion pipeline: parse the multipart body,
// admit the first file, derive keys, render every configured rendition,
// store them concurrently and sign read URLs.
package upload

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"time"

	"github.com/LeeDigitalWorks/zapupload/pkg/formdata"
	"github.com/LeeDigitalWorks/zapupload/pkg/keys"
	"github.com/LeeDigitalWorks/zapupload/pkg/logger"
	"github.com/LeeDigitalWorks/zapupload/pkg/policy"
	"github.com/LeeDigitalWorks/zapupload/pkg/transform"
	"github.com/LeeDigitalWorks/zapupload/pkg/types"
	"github.com/LeeDigitalWorks/zapupload/pkg/uploaderr"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// maxFieldBytes bounds a single non-file form field.
const maxFieldBytes = 1 << 20

// Request is a multipart body and its content type header.
type Request struct {
	ContentType string
	Body        io.Reader
}

// Outcome describes one stored rendition.
type Outcome struct {
	Label       string
	Key         string
	Bucket      string
	Size        int64
	ContentType string
	Checksum    string
	URL         string
	// ExpiresAt is zero when the store's default expiry applied.
	ExpiresAt time.Time
}

// Result is a fully stored and signed upload.
type Result struct {
	ID          string
	FileName    string
	ContentType string
	Bucket      string
	Renditions  []Outcome
}

// Rendition returns the outcome for label.
func (r *Result) Rendition(label string) (Outcome, bool) {
	for _, o := range r.Renditions {
		if o.Label == label {
			return o, true
		}
	}
	return Outcome{}, false
}

// Option configures a Service.
type Option func(*Service)

// WithIDGenerator replaces the uuid generator.
func WithIDGenerator(fn func() string) Option {
	return func(s *Service) { s.newID = fn }
}

// WithResizer replaces the imaging resizer.
func WithResizer(r transform.Resizer) Option {
	return func(s *Service) { s.resizer = r }
}

// WithClock replaces time.Now for expiry timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// Service is safe for concurrent use; requests share nothing but the store.
type Service struct {
	cfg     Config
	policy  policy.Policy
	store   types.ObjectStore
	resizer transform.Resizer
	newID   func() string
	now     func() time.Time
}

// NewService validates cfg and returns a Service writing to store.
func NewService(cfg Config, store types.ObjectStore, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("object store required")
	}
	if err := cfg.Validate().Err(); err != nil {
		return nil, fmt.Errorf("invalid upload config: %w", err)
	}

	s := &Service{
		cfg:     cfg,
		policy:  cfg.Policy(),
		store:   store,
		resizer: &transform.ImagingResizer{Quality: cfg.JPEGQuality},
		newID:   uuid.NewString,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Config returns the service configuration.
func (s *Service) Config() Config {
	return s.cfg
}

// Process runs the pipeline. Every returned error carries an uploaderr code.
func (s *Service) Process(ctx context.Context, req Request) (*Result, error) {
	log := logger.Ctx(ctx)

	start := time.Now()
	parsed, err := formdata.ParseReader(req.Body, req.ContentType,
		formdata.WithMaxFileBytes(s.cfg.MaxSizeBytes),
		formdata.WithMaxFieldBytes(maxFieldBytes),
	)
	observeStage(stageParse, start)
	if err != nil {
		if uploaderr.Is(err, uploaderr.ErrValidationRejected) {
			UploadRejectionsTotal.WithLabelValues(string(policy.RuleSize)).Inc()
		}
		return nil, err
	}

	file, ok := parsed.File()
	if !ok {
		return nil, uploaderr.New(uploaderr.ErrNoFile, uploaderr.ErrNoFile.Description())
	}
	if n := len(parsed.Files()); n > 1 {
		log.Debug().Int("files", n).Msg("Multiple files received, storing the first")
	}

	start = time.Now()
	decision := s.policy.Admit(file.Size(), file.ContentType)
	observeStage(stageValidate, start)
	if !decision.Accepted {
		UploadRejectionsTotal.WithLabelValues(string(decision.Rule)).Inc()
		return nil, uploaderr.New(uploaderr.ErrValidationRejected, decision.Reason)
	}

	id := s.newID()
	ctx, log = logger.With(ctx, map[string]string{"upload_id": id})
	derived := keys.Derive(id, file.FileName, s.cfg.Labels())

	start = time.Now()
	payloads, err := s.render(ctx, file)
	observeStage(stageTransform, start)
	if err != nil {
		return nil, err
	}

	start = time.Now()
	refs, err := s.persist(ctx, derived, payloads, file.ContentType)
	observeStage(stagePersist, start)
	if err != nil {
		return nil, err
	}

	start = time.Now()
	result, err := s.sign(ctx, id, file, refs)
	observeStage(stageSign, start)
	if err != nil {
		return nil, err
	}

	UploadBytes.Observe(float64(file.Size()))
	log.Info().
		Str("file_name", file.FileName).
		Str("content_type", file.ContentType).
		Str("size", humanize.Bytes(uint64(file.Size()))).
		Int("renditions", len(refs)).
		Msg("Upload stored")

	return result, nil
}

// render produces every rendition's bytes before anything is stored, so a
// failed resize never leaves a lone original behind.
func (s *Service) render(ctx context.Context, file formdata.ParsedFile) ([][]byte, error) {
	payloads := make([][]byte, len(s.cfg.Renditions))
	for i, r := range s.cfg.Renditions {
		if r.Width == 0 {
			payloads[i] = file.Content
			continue
		}
		out, err := s.resizer.Resize(ctx, file.Content, file.ContentType, r.Width)
		if err != nil {
			return nil, uploaderr.Wrap(uploaderr.ErrTransform,
				fmt.Errorf("resize %s to %dpx: %w", r.Label, r.Width, err))
		}
		payloads[i] = out
	}
	return payloads, nil
}

// persist issues all uploads at once and waits for every one of them. A
// failure does not cancel uploads already in flight.
func (s *Service) persist(ctx context.Context, derived []keys.Key, payloads [][]byte, contentType string) ([]types.ObjectRef, error) {
	refs := make([]types.ObjectRef, len(derived))

	var g errgroup.Group
	for i, k := range derived {
		data := payloads[i]
		g.Go(func() (err error) {
			defer func() {
				if r := recover(); r != nil {
					err = uploaderr.Errorf(uploaderr.ErrUnexpected, "panic storing %s rendition: %v", k.Label, r)
				}
			}()
			ref, err := s.store.Upload(ctx, s.cfg.Bucket, k.Name, bytes.NewReader(data), int64(len(data)), contentType)
			if err != nil {
				return uploaderr.Errorf(uploaderr.ErrPersistence, "store %s rendition: %w", k.Label, err)
			}
			refs[i] = ref
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		logger.Ctx(ctx).Error().Err(err).Msg("Upload failed, stored renditions are left in place")
		return nil, err
	}
	return refs, nil
}

func (s *Service) sign(ctx context.Context, id string, file formdata.ParsedFile, refs []types.ObjectRef) (*Result, error) {
	result := &Result{
		ID:          id,
		FileName:    file.FileName,
		ContentType: file.ContentType,
		Bucket:      s.cfg.Bucket,
		Renditions:  make([]Outcome, 0, len(refs)),
	}

	for i, ref := range refs {
		label := s.cfg.Renditions[i].Label
		u, err := s.store.SignURL(ctx, ref.Bucket, ref.Key, s.cfg.SignedURLExpiry)
		if err != nil {
			return nil, uploaderr.Errorf(uploaderr.ErrSigning, "sign %s rendition: %w", label, err)
		}

		o := Outcome{
			Label:       label,
			Key:         ref.Key,
			Bucket:      ref.Bucket,
			Size:        ref.Size,
			ContentType: file.ContentType,
			Checksum:    ref.Checksum,
			URL:         u,
		}
		if s.cfg.SignedURLExpiry > 0 {
			o.ExpiresAt = s.now().Add(s.cfg.SignedURLExpiry).UTC()
		}
		result.Renditions = append(result.Renditions, o)
	}
	return result, nil
}

func observeStage(stage string, start time.Time) {
	UploadStageDuration.WithLabelValues(stage).Observe(time.Since(start).Seconds())
}
