// IceWatch - Community Monitor for Immigration Enforcement Activity
// Copyright 2026 IceWatch contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/icewatch/icewatch

package source

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/goccy/go-json"

	"github.com/icewatch/icewatch/internal/models"
)

// MicroblogAdapter polls a microblog search API (Bluesky-style) for a
// set of configured queries. Social content is unvetted, so the
// adapter carries NORMAL trust.
type MicroblogAdapter struct {
	name     string
	interval time.Duration
	apiURL   string
	queries  []string
	client   *http.Client
	cursors  *CursorStore
}

// NewMicroblogAdapter builds the adapter. apiURL is the search
// endpoint; queries are issued one request each per poll.
func NewMicroblogAdapter(name, apiURL string, queries []string, interval time.Duration, cursors *CursorStore) *MicroblogAdapter {
	if interval <= 0 {
		interval = 2 * time.Minute
	}
	return &MicroblogAdapter{
		name:     name,
		interval: interval,
		apiURL:   apiURL,
		queries:  queries,
		client:   newHTTPClient(),
		cursors:  cursors,
	}
}

func (a *MicroblogAdapter) Name() string            { return a.name }
func (a *MicroblogAdapter) Trust() models.Trust     { return models.TrustNormal }
func (a *MicroblogAdapter) Interval() time.Duration { return a.interval }

type microblogSearch struct {
	Posts []struct {
		URI       string `json:"uri"`
		CID       string `json:"cid"`
		Author    struct {
			Handle string `json:"handle"`
		} `json:"author"`
		Record struct {
			Text      string `json:"text"`
			CreatedAt string `json:"createdAt"`
		} `json:"record"`
	} `json:"posts"`
}

// Poll runs each configured query and emits posts newer than the
// per-source cursor (the newest createdAt previously seen).
func (a *MicroblogAdapter) Poll(ctx context.Context) ([]models.Report, error) {
	since, err := a.cursors.Get(a.name)
	if err != nil {
		return nil, Transient(a.name, err)
	}

	now := time.Now().UTC()
	var (
		out    []models.Report
		newest = since
	)
	for _, query := range a.queries {
		u, err := url.Parse(a.apiURL)
		if err != nil {
			return nil, Permanent(a.name, fmt.Errorf("invalid api url: %w", err))
		}
		q := u.Query()
		q.Set("q", query)
		if since != "" {
			q.Set("since", since)
		}
		u.RawQuery = q.Encode()

		body, err := fetch(ctx, a.client, a.name, u.String())
		if err != nil {
			// A single failing query fails the whole poll; partial
			// results would advance the cursor past unfetched posts.
			return nil, err
		}

		var result microblogSearch
		if err := json.Unmarshal(body, &result); err != nil {
			return nil, Transient(a.name, fmt.Errorf("decoding search result: %w", err))
		}

		for _, post := range result.Posts {
			observed, ok := parseTimestamp(post.Record.CreatedAt)
			if !ok {
				continue
			}
			if since != "" && post.Record.CreatedAt <= since {
				continue
			}
			out = append(out, models.Report{
				DedupKey:   models.DedupKey(a.name, post.CID),
				Source:     a.name,
				Trust:      models.TrustNormal,
				ObservedAt: observed,
				IngestedAt: now,
				Content:    cleanText(post.Record.Text),
				Author:     post.Author.Handle,
				URL:        post.URI,
			})
			if post.Record.CreatedAt > newest {
				newest = post.Record.CreatedAt
			}
		}
	}

	if newest != since {
		_ = a.cursors.Set(a.name, newest)
	}
	return out, nil
}
