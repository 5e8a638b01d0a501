// IceWatch - Community Monitor for Immigration Enforcement Activity
// Copyright 2026 IceWatch contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/icewatch/icewatch

package source

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/icewatch/icewatch/internal/models"
)

// PhotoFeedAdapter polls the public profile feeds of monitored
// photo-platform accounts (rapid-response and mutual-aid groups that
// post sighting flyers). Captions are the report text.
type PhotoFeedAdapter struct {
	name     string
	interval time.Duration
	feedURL  string // template with %s for the account name
	accounts []string
	client   *http.Client
	cursors  *CursorStore
}

// NewPhotoFeedAdapter builds the adapter. feedURL must contain a
// single %s placeholder for the account handle.
func NewPhotoFeedAdapter(name, feedURL string, accounts []string, interval time.Duration, cursors *CursorStore) *PhotoFeedAdapter {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &PhotoFeedAdapter{
		name:     name,
		interval: interval,
		feedURL:  feedURL,
		accounts: accounts,
		client:   newHTTPClient(),
		cursors:  cursors,
	}
}

func (a *PhotoFeedAdapter) Name() string            { return a.name }
func (a *PhotoFeedAdapter) Trust() models.Trust     { return models.TrustNormal }
func (a *PhotoFeedAdapter) Interval() time.Duration { return a.interval }

type photoFeed struct {
	Items []struct {
		Shortcode string `json:"shortcode"`
		Caption   string `json:"caption"`
		TakenAt   int64  `json:"taken_at"` // unix seconds
		URL       string `json:"url"`
	} `json:"items"`
}

// Poll fetches each monitored account's recent items and emits posts
// newer than the per-account high-water mark.
func (a *PhotoFeedAdapter) Poll(ctx context.Context) ([]models.Report, error) {
	now := time.Now().UTC()
	var out []models.Report

	for _, account := range a.accounts {
		cursorKey := a.name + "/" + account
		last, err := a.cursors.Get(cursorKey)
		if err != nil {
			return nil, Transient(a.name, err)
		}
		lastTaken, _ := strconv.ParseInt(last, 10, 64)

		if !strings.Contains(a.feedURL, "%s") {
			return nil, Permanent(a.name, fmt.Errorf("feed url template missing account placeholder"))
		}
		endpoint := fmt.Sprintf(a.feedURL, account)

		body, err := fetch(ctx, a.client, a.name, endpoint)
		if err != nil {
			if IsPermanent(err) {
				return nil, err
			}
			// A transiently failing account should not starve the
			// others; skip it this tick.
			continue
		}

		var feed photoFeed
		if err := json.Unmarshal(body, &feed); err != nil {
			return nil, Transient(a.name, fmt.Errorf("decoding feed for %s: %w", account, err))
		}

		highest := lastTaken
		for _, item := range feed.Items {
			if item.TakenAt <= lastTaken {
				continue
			}
			out = append(out, models.Report{
				DedupKey:   models.DedupKey(a.name, item.Shortcode),
				Source:     a.name,
				Trust:      models.TrustNormal,
				ObservedAt: time.Unix(item.TakenAt, 0).UTC(),
				IngestedAt: now,
				Content:    cleanText(item.Caption),
				Author:     account,
				URL:        item.URL,
			})
			if item.TakenAt > highest {
				highest = item.TakenAt
			}
		}
		if highest > lastTaken {
			_ = a.cursors.Set(cursorKey, strconv.FormatInt(highest, 10))
		}
	}
	return out, nil
}
