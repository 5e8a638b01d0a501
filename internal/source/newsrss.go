// IceWatch - Community Monitor for Immigration Enforcement Activity
// Copyright 2026 IceWatch contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/icewatch/icewatch

package source

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/xml"
	"fmt"
	"net/http"
	"time"

	"github.com/icewatch/icewatch/internal/models"
)

// NewsRSSAdapter polls local-news RSS feeds. News copy is subject to
// the filter's strict news-article rejection, so the adapter only
// cleans and forwards items.
type NewsRSSAdapter struct {
	name     string
	interval time.Duration
	feeds    []string
	client   *http.Client
	cursors  *CursorStore
}

// NewNewsRSSAdapter builds the adapter over the configured feed URLs.
func NewNewsRSSAdapter(name string, feeds []string, interval time.Duration, cursors *CursorStore) *NewsRSSAdapter {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &NewsRSSAdapter{
		name:     name,
		interval: interval,
		feeds:    feeds,
		client:   newHTTPClient(),
		cursors:  cursors,
	}
}

func (a *NewsRSSAdapter) Name() string            { return a.name }
func (a *NewsRSSAdapter) Trust() models.Trust     { return models.TrustNormal }
func (a *NewsRSSAdapter) Interval() time.Duration { return a.interval }

type rssDocument struct {
	XMLName xml.Name `xml:"rss"`
	Channel struct {
		Items []rssItem `xml:"item"`
	} `xml:"channel"`
}

type rssItem struct {
	Title       string `xml:"title"`
	Link        string `xml:"link"`
	Description string `xml:"description"`
	PubDate     string `xml:"pubDate"`
	GUID        string `xml:"guid"`
}

// Poll fetches every configured feed and emits items newer than the
// per-feed high-water mark (newest pubDate previously seen).
func (a *NewsRSSAdapter) Poll(ctx context.Context) ([]models.Report, error) {
	now := time.Now().UTC()
	var out []models.Report

	for _, feedURL := range a.feeds {
		cursorKey := a.name + "/" + shortHash(feedURL)
		last, err := a.cursors.Get(cursorKey)
		if err != nil {
			return nil, Transient(a.name, err)
		}
		var lastSeen time.Time
		if last != "" {
			lastSeen, _ = parseTimestamp(last)
		}

		body, err := fetch(ctx, a.client, a.name, feedURL)
		if err != nil {
			if IsPermanent(err) {
				return nil, err
			}
			// One unreachable feed should not starve the others.
			continue
		}

		var doc rssDocument
		if err := xml.Unmarshal(body, &doc); err != nil {
			return nil, Transient(a.name, fmt.Errorf("decoding feed %s: %w", feedURL, err))
		}

		newest := lastSeen
		for _, item := range doc.Channel.Items {
			observed, ok := parseTimestamp(item.PubDate)
			if !ok {
				continue
			}
			if !lastSeen.IsZero() && !observed.After(lastSeen) {
				continue
			}
			localID := item.GUID
			if localID == "" {
				localID = shortHash(item.Link + item.Title)
			}
			out = append(out, models.Report{
				DedupKey:   models.DedupKey(a.name, localID),
				Source:     a.name,
				Trust:      models.TrustNormal,
				ObservedAt: observed,
				IngestedAt: now,
				Content:    cleanText(item.Title + ". " + item.Description),
				URL:        item.Link,
			})
			if observed.After(newest) {
				newest = observed
			}
		}
		if newest.After(lastSeen) {
			_ = a.cursors.Set(cursorKey, newest.Format(time.RFC3339))
		}
	}
	return out, nil
}

func shortHash(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:8])
}
