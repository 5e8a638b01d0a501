// IceWatch - Community Monitor for Immigration Enforcement Activity
// Copyright 2026 IceWatch contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/icewatch/icewatch

package source

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

const userAgent = "icewatch/1.0 (+https://github.com/icewatch/icewatch)"

// maxBodyBytes bounds response bodies; upstream feeds are small.
const maxBodyBytes = 4 << 20

func newHTTPClient() *http.Client {
	return &http.Client{Timeout: DefaultPollDeadline}
}

// fetch performs a GET and classifies failures into the poll error
// taxonomy: auth/gone statuses are permanent, everything else
// (network errors, rate limits, upstream 5xx) is transient.
func fetch(ctx context.Context, client *http.Client, source, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, Permanent(source, fmt.Errorf("building request: %w", err))
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := client.Do(req)
	if err != nil {
		return nil, Transient(source, err)
	}
	defer resp.Body.Close() //nolint:errcheck

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusUnauthorized,
		resp.StatusCode == http.StatusForbidden,
		resp.StatusCode == http.StatusNotFound,
		resp.StatusCode == http.StatusGone:
		return nil, Permanent(source, fmt.Errorf("upstream returned %s", resp.Status))
	default:
		return nil, Transient(source, fmt.Errorf("upstream returned %s", resp.Status))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, Transient(source, fmt.Errorf("reading body: %w", err))
	}
	return body, nil
}

// parseTimestamp accepts the handful of time layouts the upstreams use.
func parseTimestamp(s string) (time.Time, bool) {
	layouts := []string{
		time.RFC3339Nano,
		time.RFC3339,
		time.RFC1123Z,
		time.RFC1123,
		"2006-01-02 15:04:05",
		"2006-01-02T15:04:05",
	}
	for _, layout := range layouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}
