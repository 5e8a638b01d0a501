// IceWatch - Community Monitor for Immigration Enforcement Activity
// Copyright 2026 IceWatch contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/icewatch/icewatch

package models

import (
	"fmt"
	"strings"
	"time"
)

// Trust is the coarse source-level priority tier. HIGH-trust sources
// (community reporting platforms) may produce single-source alerts;
// NORMAL-trust sources require corroboration.
type Trust string

const (
	TrustHigh   Trust = "HIGH"
	TrustNormal Trust = "NORMAL"
)

// ParseTrust converts a config string into a Trust tier.
func ParseTrust(s string) (Trust, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "HIGH":
		return TrustHigh, nil
	case "NORMAL", "":
		return TrustNormal, nil
	default:
		return "", fmt.Errorf("unknown trust tier %q", s)
	}
}

// Verdict is the relevance decision attached to a report by the filter stage.
type Verdict string

const (
	VerdictRelevant            Verdict = "RELEVANT"
	VerdictRejectedStale       Verdict = "REJECTED_STALE"
	VerdictRejectedIrrelevant  Verdict = "REJECTED_IRRELEVANT"
	VerdictRejectedNews        Verdict = "REJECTED_NEWS"
	VerdictRejectedOutOfRegion Verdict = "REJECTED_OUT_OF_REGION"
)

// LocationMethod records how a location entry was resolved.
type LocationMethod string

const (
	LocationPresolved LocationMethod = "presolved" // coordinates supplied by the source
	LocationGazetteer LocationMethod = "gazetteer" // exact gazetteer match
	LocationCityLevel LocationMethod = "city"      // coarse city-level fallback
)

// Location is one resolved place reference extracted from a report.
type Location struct {
	Name       string         `json:"name"`
	Lat        float64        `json:"lat"`
	Lon        float64        `json:"lon"`
	Confidence float64        `json:"confidence"`
	Method     LocationMethod `json:"method"`
}

// Report is the canonical record of a single observation from one source.
// It is created by a source adapter, annotated by the filter and extractor
// stages, and read-only once committed to the store.
type Report struct {
	// DedupKey uniquely identifies the report across all sources:
	// "<source>:<source-local id>". Adapters must populate it
	// deterministically.
	DedupKey string `json:"dedup_key"`

	// Source is the adapter name that produced this report.
	Source string `json:"source"`

	// Trust is the source trust tier at ingest time.
	Trust Trust `json:"trust"`

	// ObservedAt is when the observation was made (source timestamp, UTC).
	ObservedAt time.Time `json:"observed_at"`

	// IngestedAt is when the report entered the pipeline (UTC).
	IngestedAt time.Time `json:"ingested_at"`

	// Content is the free-text body after adapter-level cleaning.
	Content string `json:"content"`

	// Author is the source-local author handle, if known.
	Author string `json:"author,omitempty"`

	// URL links back to the original post, if available.
	URL string `json:"url,omitempty"`

	// HasCoords indicates the source supplied coordinates directly.
	HasCoords bool    `json:"has_coords"`
	Lat       float64 `json:"lat,omitempty"`
	Lon       float64 `json:"lon,omitempty"`

	// Locations is populated by the extractor, best candidates first.
	Locations []Location `json:"locations,omitempty"`

	// Verdict is the filter decision. Empty until the report passes
	// through the filter stage.
	Verdict Verdict `json:"verdict,omitempty"`

	// ClusterID is set once the correlator assigns the report.
	ClusterID string `json:"cluster_id,omitempty"`
}

// DedupKey builds the canonical deduplication key for a source-local id.
func DedupKey(source, localID string) string {
	return source + ":" + localID
}

// BestLocation returns the highest-confidence extracted location,
// or false when the report carries none.
func (r *Report) BestLocation() (Location, bool) {
	if len(r.Locations) == 0 {
		return Location{}, false
	}
	best := r.Locations[0]
	for _, loc := range r.Locations[1:] {
		if loc.Confidence > best.Confidence {
			best = loc
		}
	}
	return best, true
}

// Excerpt returns the first n characters of the content with newlines
// collapsed, suitable for alert payloads.
func (r *Report) Excerpt(n int) string {
	text := strings.Join(strings.Fields(r.Content), " ")
	if len(text) <= n {
		return text
	}
	// Cut on a rune boundary.
	runes := []rune(text)
	if len(runes) <= n {
		return text
	}
	return string(runes[:n]) + "..."
}
