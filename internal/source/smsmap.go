// IceWatch - Community Monitor for Immigration Enforcement Activity
// Copyright 2026 IceWatch contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/icewatch/icewatch

package source

import (
	"context"
	"encoding/xml"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/icewatch/icewatch/internal/models"
)

// SMSMapAdapter polls an SMS-reporting web map that publishes sighting
// markers as XML. The map aggregates phoned-in reports, so it updates
// slowly; the default cadence is 30 minutes.
type SMSMapAdapter struct {
	name     string
	interval time.Duration
	mapURL   string
	client   *http.Client
	cursors  *CursorStore
}

// NewSMSMapAdapter builds the adapter for the given marker endpoint.
func NewSMSMapAdapter(name, mapURL string, interval time.Duration, cursors *CursorStore) *SMSMapAdapter {
	if interval <= 0 {
		interval = 30 * time.Minute
	}
	return &SMSMapAdapter{
		name:     name,
		interval: interval,
		mapURL:   mapURL,
		client:   newHTTPClient(),
		cursors:  cursors,
	}
}

func (a *SMSMapAdapter) Name() string            { return a.name }
func (a *SMSMapAdapter) Trust() models.Trust     { return models.TrustHigh }
func (a *SMSMapAdapter) Interval() time.Duration { return a.interval }

type markerFeed struct {
	XMLName xml.Name `xml:"markers"`
	Markers []struct {
		ID   string  `xml:"id,attr"`
		Lat  float64 `xml:"lat,attr"`
		Lng  float64 `xml:"lng,attr"`
		Text string  `xml:"text,attr"`
		Time string  `xml:"time,attr"`
	} `xml:"marker"`
}

// Poll fetches the full marker set and emits markers newer than the
// stored high-water mark. Marker ids are monotonically increasing on
// the upstream map.
func (a *SMSMapAdapter) Poll(ctx context.Context) ([]models.Report, error) {
	lastID, err := a.cursors.Get(a.name)
	if err != nil {
		return nil, Transient(a.name, err)
	}
	lastNum, _ := strconv.ParseInt(lastID, 10, 64)

	body, err := fetch(ctx, a.client, a.name, a.mapURL)
	if err != nil {
		return nil, err
	}

	var feed markerFeed
	if err := xml.Unmarshal(body, &feed); err != nil {
		return nil, Transient(a.name, fmt.Errorf("decoding markers: %w", err))
	}

	now := time.Now().UTC()
	var (
		out     []models.Report
		highest = lastNum
	)
	for _, m := range feed.Markers {
		idNum, err := strconv.ParseInt(m.ID, 10, 64)
		if err != nil || idNum <= lastNum {
			continue
		}
		observed, ok := parseTimestamp(m.Time)
		if !ok {
			observed = now
		}
		out = append(out, models.Report{
			DedupKey:   models.DedupKey(a.name, m.ID),
			Source:     a.name,
			Trust:      models.TrustHigh,
			ObservedAt: observed,
			IngestedAt: now,
			Content:    cleanText(m.Text),
			HasCoords:  m.Lat != 0 || m.Lng != 0,
			Lat:        m.Lat,
			Lon:        m.Lng,
		})
		if idNum > highest {
			highest = idNum
		}
	}

	if highest > lastNum {
		_ = a.cursors.Set(a.name, strconv.FormatInt(highest, 10))
	}
	return out, nil
}
