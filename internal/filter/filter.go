// IceWatch - Community Monitor for Immigration Enforcement Activity
// Copyright 2026 IceWatch contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/icewatch/icewatch

// Package filter implements the relevance stage of the pipeline:
// freshness, deduplication, enforcement-keyword relevance, geographic
// scope, and news-article rejection, applied in fixed order with the
// first rejection winning.
package filter

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/icewatch/icewatch/internal/gazetteer"
	"github.com/icewatch/icewatch/internal/geo"
	"github.com/icewatch/icewatch/internal/models"
)

// ErrDuplicate marks a report whose dedup key is already persisted.
// Duplicates are dropped silently, not given a verdict.
var ErrDuplicate = errors.New("duplicate report")

// DedupIndex answers whether a dedup key has been seen before.
// Backed by the store in production.
type DedupIndex interface {
	SeenReport(dedupKey string) (bool, error)
}

// Config holds the filter stage thresholds.
type Config struct {
	// FreshMax is the maximum ingest-observation lag for NORMAL-trust
	// sources. Reports exactly at the limit are accepted.
	FreshMax time.Duration

	// TrustedFreshMax is the lag budget for HIGH-trust sources.
	// Community platforms batch reports, so they get a longer window.
	TrustedFreshMax time.Duration

	// MaxDistanceKm is the geographic scope radius around downtown.
	MaxDistanceKm float64

	// NewsSources names the sources subject to news-article rejection.
	NewsSources map[string]struct{}
}

// Filter decides a verdict for each incoming report.
type Filter struct {
	cfg   Config
	gaz   *gazetteer.Gazetteer
	dedup DedupIndex
}

// New creates a filter. The gazetteer and dedup index are required.
func New(cfg Config, gaz *gazetteer.Gazetteer, dedup DedupIndex) (*Filter, error) {
	if gaz == nil {
		return nil, fmt.Errorf("filter: gazetteer is required")
	}
	if dedup == nil {
		return nil, fmt.Errorf("filter: dedup index is required")
	}
	if cfg.FreshMax <= 0 {
		cfg.FreshMax = 3 * time.Hour
	}
	if cfg.TrustedFreshMax <= 0 {
		cfg.TrustedFreshMax = 2 * cfg.FreshMax
	}
	if cfg.MaxDistanceKm <= 0 {
		cfg.MaxDistanceKm = 50.0
	}
	return &Filter{cfg: cfg, gaz: gaz, dedup: dedup}, nil
}

// Check runs the filter stages in order and returns the verdict.
// A nil error with a rejection verdict is normal flow; ErrDuplicate
// means the report must be dropped without a verdict; any other error
// is a store failure.
func (f *Filter) Check(r *models.Report) (models.Verdict, error) {
	// 1. Freshness.
	budget := f.cfg.FreshMax
	if r.Trust == models.TrustHigh {
		budget = f.cfg.TrustedFreshMax
	}
	if r.IngestedAt.Sub(r.ObservedAt) > budget {
		return models.VerdictRejectedStale, nil
	}

	// 2. Dedup against persisted state.
	seen, err := f.dedup.SeenReport(r.DedupKey)
	if err != nil {
		return "", fmt.Errorf("dedup lookup for %s: %w", r.DedupKey, err)
	}
	if seen {
		return "", ErrDuplicate
	}

	// 3. Relevance. HIGH-trust platforms are curated enforcement
	// reporting; their content is pre-vetted, so keyword matching is
	// skipped for them.
	if r.Trust != models.TrustHigh && !Relevant(r.Content) {
		return models.VerdictRejectedIrrelevant, nil
	}

	// 4. Geographic scope.
	if !f.inRegion(r) {
		return models.VerdictRejectedOutOfRegion, nil
	}

	// 5. News-article rejection for news sources.
	if _, isNews := f.cfg.NewsSources[r.Source]; isNews && !Actionable(r.Content) {
		return models.VerdictRejectedNews, nil
	}

	return models.VerdictRelevant, nil
}

// inRegion reports whether the report is plausibly within the metro
// area: either the text names a known place or the source supplied
// coordinates within MaxDistanceKm of downtown (inclusive).
func (f *Filter) inRegion(r *models.Report) bool {
	if r.HasCoords && geo.DistanceFromDowntown(r.Lat, r.Lon) <= f.cfg.MaxDistanceKm {
		return true
	}
	return f.gaz.ContainsPlace(r.Content)
}

// Relevant reports whether the text matches at least one
// enforcement-activity keyword, with bare-"ice" disambiguation.
func Relevant(text string) bool {
	lower := strings.ToLower(text)

	phraseHit := false
	for _, p := range enforcementPhrases {
		if strings.Contains(lower, p) {
			phraseHit = true
			break
		}
	}

	exact := enforcementExactRe.FindAllString(lower, -1)
	if !phraseHit && len(exact) == 0 {
		return false
	}

	// When the only match is the bare word "ice", require a
	// co-occurring contextual cue and no noise context.
	if !phraseHit && onlyBareIce(exact) {
		if noiseContextRe.MatchString(lower) {
			return false
		}
		if !iceContextRe.MatchString(lower) {
			return false
		}
	}
	return true
}

func onlyBareIce(matches []string) bool {
	for _, m := range matches {
		if m != "ice" {
			return false
		}
	}
	return len(matches) > 0
}

// Actionable reports whether news copy carries a real-time activity
// signal and no retrospective markers. Non-actionable news content is
// coverage of past events, court cases, or policy.
func Actionable(text string) bool {
	if newsArticleRe.MatchString(text) || pastDateRe.MatchString(text) {
		return false
	}
	return realtimeSignalRe.MatchString(text)
}
