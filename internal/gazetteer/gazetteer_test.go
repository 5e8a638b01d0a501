// IceWatch - Community Monitor for Immigration Enforcement Activity
// Copyright 2026 IceWatch contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/icewatch/icewatch

package gazetteer

import (
	"testing"
)

func mustLoad(t *testing.T) *Gazetteer {
	t.Helper()
	g, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	return g
}

func TestLoad(t *testing.T) {
	g := mustLoad(t)
	if g.Size() == 0 {
		t.Fatal("loaded gazetteer is empty")
	}
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"St. Paul", "st paul"},
		{"  Cedar-Riverside ", "cedar riverside"},
		{"DOWNTOWN   MINNEAPOLIS", "downtown minneapolis"},
		{"Ft. Snelling", "ft snelling"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := Normalize(tt.input); got != tt.want {
			t.Errorf("Normalize(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestLookup(t *testing.T) {
	g := mustLoad(t)

	tests := []struct {
		name     string
		query    string
		wantName string
		wantKind Kind
		wantOK   bool
	}{
		{name: "canonical name", query: "Uptown", wantName: "Uptown", wantKind: KindNeighborhood, wantOK: true},
		{name: "alias", query: "west bank", wantName: "Cedar-Riverside", wantKind: KindNeighborhood, wantOK: true},
		{name: "punctuation variant", query: "ft snelling", wantName: "Fort Snelling", wantKind: KindLandmark, wantOK: true},
		{name: "city", query: "saint paul", wantName: "St. Paul", wantKind: KindCity, wantOK: true},
		{name: "unknown place", query: "Duluth Harbor", wantOK: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, ok := g.Lookup(tt.query)
			if ok != tt.wantOK {
				t.Fatalf("Lookup(%q) ok = %v, want %v", tt.query, ok, tt.wantOK)
			}
			if !ok {
				return
			}
			if e.Name != tt.wantName {
				t.Errorf("Lookup(%q) name = %q, want %q", tt.query, e.Name, tt.wantName)
			}
			if e.Kind != tt.wantKind {
				t.Errorf("Lookup(%q) kind = %q, want %q", tt.query, e.Kind, tt.wantKind)
			}
		})
	}
}

func TestLookupCity(t *testing.T) {
	g := mustLoad(t)

	if _, ok := g.LookupCity("Bloomington"); !ok {
		t.Error("LookupCity(Bloomington) failed, want city entry")
	}
	// Neighborhood names must not resolve through the city path.
	if _, ok := g.LookupCity("Uptown"); ok {
		t.Error("LookupCity(Uptown) matched, want no match for a neighborhood")
	}
}

func TestScan(t *testing.T) {
	g := mustLoad(t)

	tests := []struct {
		name      string
		text      string
		wantNames []string
	}{
		{
			name:      "single neighborhood",
			text:      "agents spotted in Uptown near the parking ramp",
			wantNames: []string{"Uptown"},
		},
		{
			name:      "alias and landmark",
			text:      "vans leaving the west bank heading toward fort snelling",
			wantNames: []string{"Fort Snelling", "Cedar-Riverside"},
		},
		{
			name:      "no whole-word match inside another word",
			text:      "the shoreline was uptowny today",
			wantNames: nil,
		},
		{
			name:      "nothing recognized",
			text:      "checkpoint reported on the highway",
			wantNames: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := g.Scan(tt.text)
			names := make(map[string]bool, len(got))
			for _, e := range got {
				names[e.Name] = true
			}
			if len(got) != len(tt.wantNames) {
				t.Fatalf("Scan returned %d entries, want %d (%v)", len(got), len(tt.wantNames), got)
			}
			for _, want := range tt.wantNames {
				if !names[want] {
					t.Errorf("Scan missing %q in %v", want, got)
				}
			}
		})
	}
}

func TestScanDeduplicatesAliases(t *testing.T) {
	g := mustLoad(t)
	// Name and alias of the same entry in one text must yield one result.
	got := g.Scan("seen in cedar-riverside on the west bank")
	if len(got) != 1 {
		t.Fatalf("Scan returned %d entries, want 1: %v", len(got), got)
	}
	if got[0].Name != "Cedar-Riverside" {
		t.Errorf("Scan entry = %q, want Cedar-Riverside", got[0].Name)
	}
}

func TestContainsPlace(t *testing.T) {
	g := mustLoad(t)

	if !g.ContainsPlace("ICE agents near the Mall of America entrance") {
		t.Error("ContainsPlace missed a known landmark")
	}
	if g.ContainsPlace("nothing geographic in this text at all") {
		t.Error("ContainsPlace matched text with no known place")
	}
}

func TestNearest(t *testing.T) {
	g := mustLoad(t)

	// A point at the MSP Airport centroid should snap to the airport.
	e, ok := g.Nearest(44.8820, -93.2218, 5.0)
	if !ok {
		t.Fatal("Nearest found nothing at airport coordinates")
	}
	if e.Name != "MSP Airport" {
		t.Errorf("Nearest = %q, want MSP Airport", e.Name)
	}

	// Cities are excluded: a point near the Minneapolis centroid must
	// snap to a neighborhood or landmark instead.
	e, ok = g.Nearest(44.9778, -93.2650, 5.0)
	if !ok {
		t.Fatal("Nearest found nothing downtown")
	}
	if e.Kind == KindCity {
		t.Errorf("Nearest returned city %q, want neighborhood or landmark", e.Name)
	}

	// Far outside the radius finds nothing.
	if _, ok := g.Nearest(46.786, -92.100, 5.0); ok {
		t.Error("Nearest matched a point in Duluth, want no match within 5km")
	}
}
