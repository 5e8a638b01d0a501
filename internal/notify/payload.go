// IceWatch - Community Monitor for Immigration Enforcement Activity
// Copyright 2026 IceWatch contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/icewatch/icewatch

package notify

import (
	"fmt"
	"sort"
	"time"

	"github.com/icewatch/icewatch/internal/models"
)

// Confidence bands shown to subscribers.
const (
	BandHigh   = "HIGH"
	BandMedium = "MEDIUM"
	BandLow    = "LOW"
)

// Excerpt limits per alert kind: a NEW alert shows the first members,
// an UPDATE shows only the reports that triggered it.
const (
	newExcerpts    = 6
	updateExcerpts = 4
	excerptLen     = 120
)

// Excerpt is one member report summarized for the alert payload.
type Excerpt struct {
	Source string `json:"source"`
	Author string `json:"author,omitempty"`
	Text   string `json:"text"`
	URL    string `json:"url,omitempty"`
	IsNew  bool   `json:"is_new,omitempty"`
}

// Payload is the JSON body posted to the webhook.
type Payload struct {
	Kind             string    `json:"kind"` // NEW or UPDATE
	ClusterID        string    `json:"cluster_id"`
	IdempotencyToken string    `json:"idempotency_token"`
	Title            string    `json:"title"`
	Location         string    `json:"location"`
	Confidence       float64   `json:"confidence"`
	ConfidenceBand   string    `json:"confidence_band"`
	ReportCount      int       `json:"report_count"`
	SourceCount      int       `json:"source_count"`
	Sources          []string  `json:"sources"`
	FirstReported    time.Time `json:"first_reported"`
	LastReported     time.Time `json:"last_reported"`
	Excerpts         []Excerpt `json:"excerpts"`
	Footer           string    `json:"footer"`
	Timestamp        time.Time `json:"timestamp"`
}

// Band maps a confidence score to its display band.
func Band(confidence float64) string {
	switch {
	case confidence >= 0.7:
		return BandHigh
	case confidence >= 0.45:
		return BandMedium
	default:
		return BandLow
	}
}

// buildPayload assembles the webhook body for an emission.
func buildPayload(cl *models.Cluster, kind models.AlertKind, newMembers []*models.Report, token string, now time.Time) Payload {
	location := cl.Label
	if location == "" {
		location = "Minneapolis area"
	}

	title := fmt.Sprintf("ICE ACTIVITY: %s", location)
	if kind == models.AlertUpdate {
		title = fmt.Sprintf("UPDATE: %s", location)
	}

	sources := make([]string, 0, 4)
	for s := range cl.SourceSet() {
		sources = append(sources, s)
	}
	sort.Strings(sources)

	var excerpts []Excerpt
	if kind == models.AlertNew {
		for _, m := range firstN(cl.Members, newExcerpts) {
			excerpts = append(excerpts, memberExcerpt(m, false))
		}
	} else {
		// Newest triggering reports first.
		trigger := newMembers
		if len(trigger) > updateExcerpts {
			trigger = trigger[len(trigger)-updateExcerpts:]
		}
		for i := len(trigger) - 1; i >= 0; i-- {
			excerpts = append(excerpts, memberExcerpt(trigger[i], true))
		}
	}

	return Payload{
		Kind:             string(kind),
		ClusterID:        cl.ID,
		IdempotencyToken: token,
		Title:            title,
		Location:         location,
		Confidence:       cl.Confidence,
		ConfidenceBand:   Band(cl.Confidence),
		ReportCount:      len(cl.Members),
		SourceCount:      cl.SourceDiversity(),
		Sources:          sources,
		FirstReported:    cl.OldestObservation(),
		LastReported:     cl.LastUpdated,
		Excerpts:         excerpts,
		Footer:           "IceWatch | Unverified community reporting | Confirm before acting",
		Timestamp:        now,
	}
}

func memberExcerpt(m *models.Report, isNew bool) Excerpt {
	return Excerpt{
		Source: m.Source,
		Author: m.Author,
		Text:   m.Excerpt(excerptLen),
		URL:    m.URL,
		IsNew:  isNew,
	}
}

func firstN(members []*models.Report, n int) []*models.Report {
	if len(members) <= n {
		return members
	}
	return members[:n]
}
