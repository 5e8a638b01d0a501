// IceWatch - Community Monitor for Immigration Enforcement Activity
// Copyright 2026 IceWatch contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/icewatch/icewatch

package source

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/icewatch/icewatch/internal/models"
)

const rssFeedBody = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0">
  <channel>
    <title>Local News</title>
    <item>
      <title>ICE activity reported near Lake Street</title>
      <link>https://news.example/a/1</link>
      <description>Witnesses describe agents on scene this morning.</description>
      <pubDate>Sat, 14 Mar 2026 12:00:00 +0000</pubDate>
      <guid>news-guid-1</guid>
    </item>
    <item>
      <title>City council budget vote</title>
      <link>https://news.example/a/2</link>
      <description>Unrelated coverage.</description>
      <pubDate>Sat, 14 Mar 2026 11:00:00 +0000</pubDate>
      <guid>news-guid-2</guid>
    </item>
  </channel>
</rss>`

func TestNewsRSSAdapterPoll(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/rss+xml")
		w.Write([]byte(rssFeedBody)) //nolint:errcheck
	}))
	defer srv.Close()

	cs := newTestCursorStore(t)
	a := NewNewsRSSAdapter("newsrss", []string{srv.URL}, time.Minute, cs)

	if a.Trust() != models.TrustNormal {
		t.Fatalf("Trust = %q, want NORMAL", a.Trust())
	}

	reports, err := a.Poll(context.Background())
	if err != nil {
		t.Fatalf("Poll: %v", err)
	}
	if len(reports) != 2 {
		t.Fatalf("got %d reports, want 2", len(reports))
	}

	first := reports[0]
	if first.DedupKey != "newsrss:news-guid-1" {
		t.Errorf("dedup key = %q, want guid-based key", first.DedupKey)
	}
	if first.Content != "ICE activity reported near Lake Street. Witnesses describe agents on scene this morning." {
		t.Errorf("content = %q, title and description not joined", first.Content)
	}
	if first.URL != "https://news.example/a/1" {
		t.Errorf("url = %q", first.URL)
	}

	// The high-water mark suppresses already-seen items on the next poll.
	reports, err = a.Poll(context.Background())
	if err != nil {
		t.Fatalf("second Poll: %v", err)
	}
	if len(reports) != 0 {
		t.Errorf("second poll returned %d reports, want 0", len(reports))
	}
}

func TestNewsRSSAdapterUnreachableFeedSkipped(t *testing.T) {
	good := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(rssFeedBody)) //nolint:errcheck
	}))
	defer good.Close()

	dead := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	dead.Close()

	a := NewNewsRSSAdapter("newsrss", []string{dead.URL, good.URL}, time.Minute, newTestCursorStore(t))
	reports, err := a.Poll(context.Background())
	if err != nil {
		t.Fatalf("Poll with one dead feed: %v", err)
	}
	if len(reports) != 2 {
		t.Errorf("got %d reports from the healthy feed, want 2", len(reports))
	}
}

func TestNewsRSSAdapterMalformedXML(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<rss><channel><item>broken")) //nolint:errcheck
	}))
	defer srv.Close()

	a := NewNewsRSSAdapter("newsrss", []string{srv.URL}, time.Minute, newTestCursorStore(t))
	_, err := a.Poll(context.Background())
	if err == nil {
		t.Fatal("Poll on malformed XML succeeded")
	}
	if IsPermanent(err) {
		t.Errorf("malformed XML classified as permanent: %v", err)
	}
}
