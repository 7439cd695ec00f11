// Gatehouse - Multi-Tenant SaaS API Gateway
// Copyright 2026 Gatehouse Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/gatehouse-io/gatehouse

package gateway

import (
	"bytes"
	"net/http"
	"strconv"

	"github.com/goccy/go-json"

	"github.com/gatehouse-io/gatehouse/internal/apierr"
	"github.com/gatehouse-io/gatehouse/internal/logging"
)

// errorEnvelope is the single error shape every failure is normalized to.
type errorEnvelope struct {
	Error errorBody `json:"error"`
}

type errorBody struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Details   any    `json:"details,omitempty"`
	RequestID string `json:"requestId"`
}

// WriteJSON writes a JSON response body with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.Error().Err(err).Msg("failed to encode response body")
	}
}

// WriteError normalizes any error into the envelope. Internal causes are
// logged with full detail and surfaced as an opaque 500; taxonomy errors
// pass their message and details through.
func WriteError(w http.ResponseWriter, r *http.Request, err error) {
	e := apierr.From(err)
	requestID := logging.RequestIDFromContext(r.Context())

	logger := logging.Ctx(r.Context())
	evt := logger.Info()
	if e.Kind == apierr.KindInternal {
		evt = logger.Error().Err(e.Err)
	}
	evt.Str("kind", e.Kind.String()).
		Str("code", e.MachineCode()).
		Int("status", e.HTTPStatus()).
		Str("path", r.URL.Path).
		Msg(e.Message)

	if e.RetryAfter > 0 {
		w.Header().Set("Retry-After", strconv.Itoa(int(e.RetryAfter.Seconds()+0.5)))
	}

	WriteJSON(w, e.HTTPStatus(), errorEnvelope{Error: errorBody{
		Code:      e.MachineCode(),
		Message:   e.Message,
		Details:   e.Details,
		RequestID: requestID,
	}})
}

// captureWriter records the status and tees the body so the pipeline can
// commit usage and store idempotency records after the handler ran.
type captureWriter struct {
	http.ResponseWriter
	status int
	body   bytes.Buffer
	wrote  bool
}

func newCaptureWriter(w http.ResponseWriter) *captureWriter {
	return &captureWriter{ResponseWriter: w, status: http.StatusOK}
}

func (c *captureWriter) WriteHeader(status int) {
	if c.wrote {
		return
	}
	c.wrote = true
	c.status = status
	c.ResponseWriter.WriteHeader(status)
}

func (c *captureWriter) Write(b []byte) (int, error) {
	if !c.wrote {
		c.WriteHeader(http.StatusOK)
	}
	c.body.Write(b)
	return c.ResponseWriter.Write(b)
}

// Success reports whether the handler produced a 2xx response.
func (c *captureWriter) Success() bool {
	return c.status >= 200 && c.status < 300
}
