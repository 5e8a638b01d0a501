// IceWatch - Community Monitor for Immigration Enforcement Activity
// Copyright 2026 IceWatch contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/icewatch/icewatch

// Package source defines the pluggable collector contract and the
// concrete adapters for each external source kind. Adapters own their
// pagination cursors and parsing; the scheduler treats them uniformly.
package source

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/icewatch/icewatch/internal/models"
)

// Default poll deadline applied by the scheduler when an adapter does
// not override it.
const DefaultPollDeadline = 30 * time.Second

// Adapter is the collector contract. Poll returns reports observed
// since the last successful poll, in source-chronological order when
// the source provides one. Implementations must populate dedup keys
// deterministically and respect ctx cancellation.
type Adapter interface {
	Name() string
	Trust() models.Trust
	Interval() time.Duration
	Poll(ctx context.Context) ([]models.Report, error)
}

// PollError is the typed adapter failure. Permanent errors disable the
// adapter until operator intervention; transient ones retry next tick.
type PollError struct {
	Source    string
	Permanent bool
	Err       error
}

func (e *PollError) Error() string {
	kind := "transient"
	if e.Permanent {
		kind = "permanent"
	}
	return fmt.Sprintf("%s poll failed (%s): %v", e.Source, kind, e.Err)
}

func (e *PollError) Unwrap() error { return e.Err }

// Transient wraps an error as a retryable poll failure.
func Transient(source string, err error) error {
	return &PollError{Source: source, Err: err}
}

// Permanent wraps an error as a disabling poll failure.
func Permanent(source string, err error) error {
	return &PollError{Source: source, Permanent: true, Err: err}
}

// IsPermanent reports whether err is a permanent poll failure.
func IsPermanent(err error) bool {
	var pe *PollError
	return errors.As(err, &pe) && pe.Permanent
}

// trustOverride rewrites an adapter's trust level, for deployments
// that vouch for (or distrust) a particular instance of a source kind.
type trustOverride struct {
	Adapter
	trust models.Trust
}

// WithTrust wraps an adapter so it reports the given trust level on
// itself and on every report it emits.
func WithTrust(a Adapter, trust models.Trust) Adapter {
	if trust == a.Trust() {
		return a
	}
	return &trustOverride{Adapter: a, trust: trust}
}

func (t *trustOverride) Trust() models.Trust { return t.trust }

func (t *trustOverride) Poll(ctx context.Context) ([]models.Report, error) {
	reports, err := t.Adapter.Poll(ctx)
	for i := range reports {
		reports[i].Trust = t.trust
	}
	return reports, err
}
