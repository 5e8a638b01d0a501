// IceWatch - Community Monitor for Immigration Enforcement Activity
// Copyright 2026 IceWatch contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/icewatch/icewatch

package source

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/icewatch/icewatch/internal/models"
)

func TestPollErrorClassification(t *testing.T) {
	base := errors.New("connection refused")

	transient := Transient("microblog", base)
	if IsPermanent(transient) {
		t.Error("Transient error classified as permanent")
	}
	if !errors.Is(transient, base) {
		t.Error("Transient does not unwrap to the underlying error")
	}

	permanent := Permanent("microblog", base)
	if !IsPermanent(permanent) {
		t.Error("Permanent error not classified as permanent")
	}
	if !errors.Is(permanent, base) {
		t.Error("Permanent does not unwrap to the underlying error")
	}

	if IsPermanent(base) {
		t.Error("plain error classified as permanent")
	}
	if IsPermanent(nil) {
		t.Error("nil classified as permanent")
	}
}

type stubAdapter struct {
	trust   models.Trust
	reports []models.Report
}

func (s *stubAdapter) Name() string            { return "stub" }
func (s *stubAdapter) Trust() models.Trust     { return s.trust }
func (s *stubAdapter) Interval() time.Duration { return time.Minute }
func (s *stubAdapter) Poll(ctx context.Context) ([]models.Report, error) {
	return s.reports, nil
}

func TestWithTrust(t *testing.T) {
	base := &stubAdapter{
		trust: models.TrustNormal,
		reports: []models.Report{
			{DedupKey: "stub:1", Trust: models.TrustNormal},
			{DedupKey: "stub:2", Trust: models.TrustNormal},
		},
	}

	// Matching trust returns the adapter unwrapped.
	if got := WithTrust(base, models.TrustNormal); got != Adapter(base) {
		t.Error("WithTrust with matching trust should return the original adapter")
	}

	elevated := WithTrust(base, models.TrustHigh)
	if elevated.Trust() != models.TrustHigh {
		t.Errorf("Trust = %q, want HIGH", elevated.Trust())
	}
	if elevated.Name() != "stub" {
		t.Errorf("Name = %q, want stub", elevated.Name())
	}

	reports, err := elevated.Poll(context.Background())
	if err != nil {
		t.Fatalf("Poll: %v", err)
	}
	for _, r := range reports {
		if r.Trust != models.TrustHigh {
			t.Errorf("report %s trust = %q, want HIGH", r.DedupKey, r.Trust)
		}
	}
}
