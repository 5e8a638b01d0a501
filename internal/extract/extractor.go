// IceWatch - Community Monitor for Immigration Enforcement Activity
// Copyright 2026 IceWatch contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/icewatch/icewatch

// Package extract resolves report free-text into named locations with
// coordinates, combining English NER with the embedded gazetteer.
package extract

import (
	"github.com/jdkato/prose/v2"

	"github.com/icewatch/icewatch/internal/gazetteer"
	"github.com/icewatch/icewatch/internal/logging"
	"github.com/icewatch/icewatch/internal/models"
)

// Confidence levels per resolution method.
const (
	confPresolved = 1.0
	confGazetteer = 0.9
	confCityLevel = 0.5

	// degradedCap bounds confidence when NER is unavailable.
	degradedCap = 0.9

	// snapKm is the maximum distance when snapping presolved
	// coordinates to a gazetteer label.
	snapKm = 5.0
)

// Config controls the extractor.
type Config struct {
	// EnableNER toggles the NER pass. When false (or when the model
	// fails its startup probe) the extractor runs gazetteer-only.
	EnableNER bool
}

// Extractor attaches location candidates to reports.
type Extractor struct {
	gaz      *gazetteer.Gazetteer
	useNER   bool
	degraded bool
}

// New builds an extractor and probes the NER model once. A failed
// probe degrades to gazetteer-only mode; this is reported at startup
// and caps all confidence outputs at 0.9.
func New(cfg Config, gaz *gazetteer.Gazetteer) *Extractor {
	e := &Extractor{gaz: gaz, useNER: cfg.EnableNER}

	if e.useNER {
		if _, err := prose.NewDocument("Lake Street Minneapolis"); err != nil {
			logging.Warn().Err(err).
				Msg("NER model unavailable, extractor running in gazetteer-only mode")
			e.useNER = false
			e.degraded = true
		}
	} else {
		e.degraded = true
		logging.Warn().Msg("NER disabled by config, extractor running in gazetteer-only mode")
	}
	return e
}

// Degraded reports whether the extractor is running without NER.
func (e *Extractor) Degraded() bool {
	return e.degraded
}

// Extract populates r.Locations. Candidates are ordered: presolved
// coordinates first, then gazetteer matches, then city-level
// fallbacks. An empty result means the report is geographically
// non-matching for correlation purposes.
func (e *Extractor) Extract(r *models.Report) {
	var locs []models.Location
	seen := make(map[string]struct{})

	// 1. Presolved coordinates from the source, snapped to the
	// nearest gazetteer label when one is close enough.
	if r.HasCoords {
		name := "Minneapolis area"
		if entry, ok := e.gaz.Nearest(r.Lat, r.Lon, snapKm); ok {
			name = entry.Name
		}
		locs = append(locs, models.Location{
			Name:       name,
			Lat:        r.Lat,
			Lon:        r.Lon,
			Confidence: e.cap(confPresolved),
			Method:     models.LocationPresolved,
		})
		seen[gazetteer.Normalize(name)] = struct{}{}
	}

	// 2. Gazetteer phrase scan over the full text.
	for _, entry := range e.gaz.Scan(r.Content) {
		key := gazetteer.Normalize(entry.Name)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}

		conf := confGazetteer
		method := models.LocationGazetteer
		if entry.Kind == gazetteer.KindCity {
			conf = confCityLevel
			method = models.LocationCityLevel
		}
		locs = append(locs, models.Location{
			Name:       entry.Name,
			Lat:        entry.Lat,
			Lon:        entry.Lon,
			Confidence: e.cap(conf),
			Method:     method,
		})
	}

	// 3. NER candidates not already matched by the phrase scan.
	if e.useNER {
		for _, cand := range e.nerCandidates(r.Content) {
			key := gazetteer.Normalize(cand)
			if _, dup := seen[key]; dup {
				continue
			}

			entry, ok := e.gaz.Lookup(cand)
			if !ok {
				continue
			}
			seen[key] = struct{}{}

			conf := confGazetteer
			method := models.LocationGazetteer
			if entry.Kind == gazetteer.KindCity {
				conf = confCityLevel
				method = models.LocationCityLevel
			}
			locs = append(locs, models.Location{
				Name:       entry.Name,
				Lat:        entry.Lat,
				Lon:        entry.Lon,
				Confidence: e.cap(conf),
				Method:     method,
			})
		}
	}

	r.Locations = locs
}

// nerCandidates runs the NER model and returns place-like entity texts.
func (e *Extractor) nerCandidates(text string) []string {
	doc, err := prose.NewDocument(text)
	if err != nil {
		logging.Debug().Err(err).Msg("NER pass failed for report text")
		return nil
	}
	var out []string
	for _, ent := range doc.Entities() {
		if ent.Label != "GPE" {
			continue
		}
		out = append(out, ent.Text)
	}
	return out
}

func (e *Extractor) cap(conf float64) float64 {
	if e.degraded && conf > degradedCap {
		return degradedCap
	}
	return conf
}
