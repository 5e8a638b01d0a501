// IceWatch - Community Monitor for Immigration Enforcement Activity
// Copyright 2026 IceWatch contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/icewatch/icewatch

package correlate

import "math"

// cellSizeDeg is roughly one kilometer of latitude. Longitude cells
// narrow toward the poles; at Minneapolis latitude a cell is ~0.7 km
// wide, which only makes candidate lookup slightly more generous.
const cellSizeDeg = 1.0 / 111.0

type gridCell struct {
	row, col int
}

// grid is a coarse spatial index from ~1 km cells to cluster ids.
// Used for candidate lookup only; the precise geographic predicate is
// always re-checked with the haversine distance.
type grid struct {
	cells map[gridCell]map[string]struct{}
	// placement remembers where each cluster currently sits so it can
	// be moved when its centroid shifts.
	placement map[string]gridCell
}

func newGrid() *grid {
	return &grid{
		cells:     make(map[gridCell]map[string]struct{}),
		placement: make(map[string]gridCell),
	}
}

func cellFor(lat, lon float64) gridCell {
	return gridCell{
		row: int(math.Floor(lat / cellSizeDeg)),
		col: int(math.Floor(lon / cellSizeDeg)),
	}
}

// put inserts or moves a cluster to the cell containing (lat, lon).
func (g *grid) put(id string, lat, lon float64) {
	cell := cellFor(lat, lon)
	if prev, ok := g.placement[id]; ok {
		if prev == cell {
			return
		}
		g.removeFrom(prev, id)
	}
	if g.cells[cell] == nil {
		g.cells[cell] = make(map[string]struct{})
	}
	g.cells[cell][id] = struct{}{}
	g.placement[id] = cell
}

// remove deletes a cluster from the index.
func (g *grid) remove(id string) {
	if cell, ok := g.placement[id]; ok {
		g.removeFrom(cell, id)
		delete(g.placement, id)
	}
}

func (g *grid) removeFrom(cell gridCell, id string) {
	if ids := g.cells[cell]; ids != nil {
		delete(ids, id)
		if len(ids) == 0 {
			delete(g.cells, cell)
		}
	}
}

// near returns cluster ids whose cells are within radiusCells of the
// cell containing (lat, lon).
func (g *grid) near(lat, lon float64, radiusCells int) []string {
	center := cellFor(lat, lon)
	var ids []string
	for dr := -radiusCells; dr <= radiusCells; dr++ {
		for dc := -radiusCells; dc <= radiusCells; dc++ {
			cell := gridCell{row: center.row + dr, col: center.col + dc}
			for id := range g.cells[cell] {
				ids = append(ids, id)
			}
		}
	}
	return ids
}
