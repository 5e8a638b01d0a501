// IceWatch - Community Monitor for Immigration Enforcement Activity
// Copyright 2026 IceWatch contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/icewatch/icewatch

// Package geo provides the great-circle distance primitive shared by the
// filter, extractor, and correlator.
package geo

import "math"

// Downtown Minneapolis reference point (5th St & Hennepin Ave area).
const (
	DowntownLat = 44.9778
	DowntownLon = -93.2650
)

// Distance calculates the great-circle distance between two points
// on Earth using the Haversine formula. Returns distance in kilometers.
func Distance(lat1, lon1, lat2, lon2 float64) float64 {
	const earthRadiusKm = 6371.0

	// Convert to radians
	lat1Rad := lat1 * math.Pi / 180.0
	lon1Rad := lon1 * math.Pi / 180.0
	lat2Rad := lat2 * math.Pi / 180.0
	lon2Rad := lon2 * math.Pi / 180.0

	// Haversine formula
	dLat := lat2Rad - lat1Rad
	dLon := lon2Rad - lon1Rad

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1Rad)*math.Cos(lat2Rad)*
			math.Sin(dLon/2)*math.Sin(dLon/2)

	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return earthRadiusKm * c
}

// DistanceFromDowntown returns the distance in kilometers between the
// given point and the downtown Minneapolis reference point.
func DistanceFromDowntown(lat, lon float64) float64 {
	return Distance(DowntownLat, DowntownLon, lat, lon)
}
