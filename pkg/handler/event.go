// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

// Package handler adapts transports onto the upload service: API Gateway
// proxy events for Lambda and plain net/http for the serve command.
package handler

import (
	"context"
	"net/http"

	zctx "github.com/LeeDigitalWorks/zapupload/pkg/context"
	"github.com/LeeDigitalWorks/zapupload/pkg/logger"
	"github.com/LeeDigitalWorks/zapupload/pkg/upload"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambdacontext"
)

const contentTypeJSON = "application/json"

// EnvelopeHandler runs the pipeline over a buffered envelope.
type EnvelopeHandler interface {
	HandleEnvelope(ctx context.Context, env upload.Envelope) upload.Response
}

// EventHandler serves API Gateway proxy integrations.
type EventHandler struct {
	svc EnvelopeHandler
}

func NewEventHandler(svc EnvelopeHandler) *EventHandler {
	return &EventHandler{svc: svc}
}

// Handle never returns an error: every failure is carried in the response
// so API Gateway relays it instead of answering 502.
func (h *EventHandler) Handle(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	ctx, id := zctx.WithRequestID(ctx, req.RequestContext.RequestID)
	fields := map[string]string{"request_id": id}
	if lc, ok := lambdacontext.FromContext(ctx); ok {
		fields["aws_request_id"] = lc.AwsRequestID
	}
	ctx, _ = logger.With(ctx, fields)

	resp := h.svc.HandleEnvelope(ctx, upload.Envelope{
		Headers:           req.Headers,
		MultiValueHeaders: req.MultiValueHeaders,
		Body:              req.Body,
		IsBase64Encoded:   req.IsBase64Encoded,
	})
	return toProxyResponse(resp), nil
}

func toProxyResponse(resp upload.Response) events.APIGatewayProxyResponse {
	status := resp.StatusCode
	if status == 0 {
		status = http.StatusInternalServerError
	}
	return events.APIGatewayProxyResponse{
		StatusCode: status,
		Headers:    map[string]string{"Content-Type": contentTypeJSON},
		Body:       string(resp.Body),
	}
}
