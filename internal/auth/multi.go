// Gatehouse - Multi-Tenant SaaS API Gateway
// Copyright 2026 Gatehouse Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/gatehouse-io/gatehouse

package auth

import (
	"context"
	"errors"
	"net/http"
	"sort"

	"github.com/gatehouse-io/gatehouse/internal/metrics"
)

// MultiAuthenticator tries authenticators in priority order. Absence of
// credentials for a strategy falls through to the next one; a verification
// failure is terminal for the request, so a bad service key never silently
// degrades to session auth.
type MultiAuthenticator struct {
	authenticators []Authenticator
}

// NewMultiAuthenticator builds a chain sorted by ascending priority.
func NewMultiAuthenticator(authenticators ...Authenticator) *MultiAuthenticator {
	m := &MultiAuthenticator{
		authenticators: make([]Authenticator, 0, len(authenticators)),
	}
	m.authenticators = append(m.authenticators, authenticators...)
	sort.SliceStable(m.authenticators, func(i, j int) bool {
		return m.authenticators[i].Priority() < m.authenticators[j].Priority()
	})
	return m
}

// Authenticate tries each authenticator in priority order.
func (m *MultiAuthenticator) Authenticate(ctx context.Context, r *http.Request) (*Identity, error) {
	if len(m.authenticators) == 0 {
		return nil, ErrNoCredentials
	}

	lastErr := ErrNoCredentials
	for _, a := range m.authenticators {
		id, err := a.Authenticate(ctx, r)
		if err == nil {
			return id, nil
		}
		lastErr = err
		if shouldTryNext(err) {
			continue
		}
		metrics.AuthFailures.WithLabelValues(a.Name()).Inc()
		return nil, err
	}
	return nil, lastErr
}

// Name returns the authenticator name.
func (m *MultiAuthenticator) Name() string {
	return "multi"
}

// Priority returns 0: multi wraps the other authenticators.
func (m *MultiAuthenticator) Priority() int {
	return 0
}

// shouldTryNext reports whether the error leaves room for another strategy.
func shouldTryNext(err error) bool {
	return errors.Is(err, ErrNoCredentials) || errors.Is(err, ErrAuthenticatorUnavailable)
}
