// IceWatch - Community Monitor for Immigration Enforcement Activity
// Copyright 2026 IceWatch contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/icewatch/icewatch

// Package gazetteer provides the static Minneapolis-area place index:
// neighborhoods and landmarks with centroids, plus metro city names for
// coarse city-level resolution. The data is embedded at build time and
// read-only after load.
package gazetteer

import (
	"embed"
	"fmt"
	"sort"
	"strings"

	"github.com/goccy/go-json"

	"github.com/icewatch/icewatch/internal/geo"
)

//go:embed data/minneapolis.json
var dataFS embed.FS

// Kind classifies a gazetteer entry.
type Kind string

const (
	KindNeighborhood Kind = "neighborhood"
	KindLandmark     Kind = "landmark"
	KindCity         Kind = "city"
)

// Entry is one named place with its centroid.
type Entry struct {
	Name    string   `json:"name"`
	Aliases []string `json:"aliases"`
	Lat     float64  `json:"lat"`
	Lon     float64  `json:"lon"`
	Kind    Kind     `json:"-"`
}

type dataFile struct {
	Neighborhoods []Entry `json:"neighborhoods"`
	Landmarks     []Entry `json:"landmarks"`
	Cities        []Entry `json:"cities"`
}

// Gazetteer is the loaded place index.
type Gazetteer struct {
	entries []Entry
	// byName maps normalized name or alias -> index into entries.
	byName map[string]int
	// phrases holds all normalized names/aliases, longest first, for
	// substring scanning of free text.
	phrases []string
}

// Load parses the embedded geodata and builds lookup structures.
func Load() (*Gazetteer, error) {
	raw, err := dataFS.ReadFile("data/minneapolis.json")
	if err != nil {
		return nil, fmt.Errorf("reading embedded geodata: %w", err)
	}

	var df dataFile
	if err := json.Unmarshal(raw, &df); err != nil {
		return nil, fmt.Errorf("parsing embedded geodata: %w", err)
	}

	g := &Gazetteer{byName: make(map[string]int)}

	add := func(entries []Entry, kind Kind) {
		for _, e := range entries {
			e.Kind = kind
			idx := len(g.entries)
			g.entries = append(g.entries, e)
			g.index(e.Name, idx)
			for _, alias := range e.Aliases {
				g.index(alias, idx)
			}
		}
	}
	add(df.Neighborhoods, KindNeighborhood)
	add(df.Landmarks, KindLandmark)
	add(df.Cities, KindCity)

	if len(g.entries) == 0 {
		return nil, fmt.Errorf("embedded geodata is empty")
	}

	// Longest phrases first so "st. anthony main" wins over "st. paul"
	// prefix overlaps during scanning.
	sort.Slice(g.phrases, func(i, j int) bool {
		return len(g.phrases[i]) > len(g.phrases[j])
	})

	return g, nil
}

func (g *Gazetteer) index(name string, idx int) {
	key := Normalize(name)
	if key == "" {
		return
	}
	if _, exists := g.byName[key]; !exists {
		g.byName[key] = idx
		g.phrases = append(g.phrases, key)
	}
}

// Normalize lowercases a place name and collapses whitespace and
// punctuation variants so "St. Paul" and "st paul" hit the same key.
func Normalize(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.ReplaceAll(s, ".", "")
	s = strings.ReplaceAll(s, "-", " ")
	return strings.Join(strings.Fields(s), " ")
}

// Size returns the number of distinct entries.
func (g *Gazetteer) Size() int {
	return len(g.entries)
}

// Lookup resolves a place name (or alias) to its entry.
func (g *Gazetteer) Lookup(name string) (Entry, bool) {
	idx, ok := g.byName[Normalize(name)]
	if !ok {
		return Entry{}, false
	}
	return g.entries[idx], true
}

// LookupCity resolves a name only against metro city entries. Used for
// the coarse city-level fallback.
func (g *Gazetteer) LookupCity(name string) (Entry, bool) {
	e, ok := g.Lookup(name)
	if !ok || e.Kind != KindCity {
		return Entry{}, false
	}
	return e, true
}

// Scan finds every gazetteer phrase appearing in the text as a whole
// word, deduplicated by entry. Matching is done against the normalized
// text, longest phrase first.
func (g *Gazetteer) Scan(text string) []Entry {
	norm := " " + Normalize(text) + " "
	var found []Entry
	seen := make(map[int]struct{})
	for _, phrase := range g.phrases {
		if !strings.Contains(norm, " "+phrase+" ") {
			continue
		}
		idx := g.byName[phrase]
		if _, dup := seen[idx]; dup {
			continue
		}
		seen[idx] = struct{}{}
		found = append(found, g.entries[idx])
	}
	return found
}

// ContainsPlace reports whether the text mentions any known place.
// Used by the filter's geographic-scope check.
func (g *Gazetteer) ContainsPlace(text string) bool {
	norm := " " + Normalize(text) + " "
	for _, phrase := range g.phrases {
		if strings.Contains(norm, " "+phrase+" ") {
			return true
		}
	}
	return false
}

// Nearest returns the closest neighborhood or landmark within maxKm of
// the given point. Metro cities are excluded so presolved coordinates
// snap to a specific label, not a whole city.
func (g *Gazetteer) Nearest(lat, lon, maxKm float64) (Entry, bool) {
	var (
		best     Entry
		bestDist = maxKm
		found    bool
	)
	for _, e := range g.entries {
		if e.Kind == KindCity {
			continue
		}
		d := geo.Distance(lat, lon, e.Lat, e.Lon)
		if d <= bestDist {
			best = e
			bestDist = d
			found = true
		}
	}
	return best, found
}
