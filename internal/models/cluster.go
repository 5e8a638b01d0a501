// IceWatch - Community Monitor for Immigration Enforcement Activity
// Copyright 2026 IceWatch contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/icewatch/icewatch

package models

import (
	"time"
)

// ClusterState is the lifecycle state of a cluster.
type ClusterState string

const (
	ClusterActive  ClusterState = "ACTIVE"
	ClusterExpired ClusterState = "EXPIRED" // terminal
)

// AlertKind distinguishes the first alert for a cluster from follow-ups.
type AlertKind string

const (
	AlertNew    AlertKind = "NEW"
	AlertUpdate AlertKind = "UPDATE"
)

// AlertRecord is one entry in a cluster's emission history.
type AlertRecord struct {
	Kind        AlertKind `json:"kind"`
	EmittedAt   time.Time `json:"emitted_at"`
	MemberCount int       `json:"member_count"`
}

// Cluster is a hypothesized incident: a set of reports believed to
// describe the same real-world event. The correlator exclusively owns
// active clusters in memory; the store owns persisted rows.
type Cluster struct {
	// ID is an opaque cluster identifier (UUID).
	ID string `json:"id"`

	State ClusterState `json:"state"`

	FirstSeen   time.Time `json:"first_seen"`
	LastUpdated time.Time `json:"last_updated"`

	// Centroid is the confidence-weighted mean of member locations.
	// Zero when no member carries a location.
	CentroidLat float64 `json:"centroid_lat"`
	CentroidLon float64 `json:"centroid_lon"`
	HasCentroid bool    `json:"has_centroid"`

	// Label is the best-known human-readable location name.
	Label string `json:"label"`

	// Confidence summarizes evidentiary strength in [0,1].
	Confidence float64 `json:"confidence"`

	// Members holds the assigned reports in arrival order.
	Members []*Report `json:"-"`

	// AlertsEmitted is the ordered emission history.
	AlertsEmitted []AlertRecord `json:"alerts_emitted"`
}

// SourceSet returns the distinct source names among members.
func (c *Cluster) SourceSet() map[string]struct{} {
	set := make(map[string]struct{}, len(c.Members))
	for _, m := range c.Members {
		set[m.Source] = struct{}{}
	}
	return set
}

// SourceDiversity is the number of distinct sources among members.
func (c *Cluster) SourceDiversity() int {
	return len(c.SourceSet())
}

// HasObserver reports whether a member from the given source and author
// already exists. Used for location-free follow-up matching.
func (c *Cluster) HasObserver(source, author string) bool {
	for _, m := range c.Members {
		if m.Source == source && m.Author == author {
			return true
		}
	}
	return false
}

// NewEmitted reports whether a NEW alert has been recorded.
func (c *Cluster) NewEmitted() bool {
	for _, a := range c.AlertsEmitted {
		if a.Kind == AlertNew {
			return true
		}
	}
	return false
}

// LastEmitCount returns member_count of the most recent alert, or 0.
func (c *Cluster) LastEmitCount() int {
	if len(c.AlertsEmitted) == 0 {
		return 0
	}
	return c.AlertsEmitted[len(c.AlertsEmitted)-1].MemberCount
}

// ObservationSpan is the distance between the oldest and newest member
// observation timestamps.
func (c *Cluster) ObservationSpan() time.Duration {
	if len(c.Members) == 0 {
		return 0
	}
	oldest := c.Members[0].ObservedAt
	newest := c.Members[0].ObservedAt
	for _, m := range c.Members[1:] {
		if m.ObservedAt.Before(oldest) {
			oldest = m.ObservedAt
		}
		if m.ObservedAt.After(newest) {
			newest = m.ObservedAt
		}
	}
	return newest.Sub(oldest)
}

// OldestObservation returns the earliest member observation timestamp.
func (c *Cluster) OldestObservation() time.Time {
	if len(c.Members) == 0 {
		return time.Time{}
	}
	oldest := c.Members[0].ObservedAt
	for _, m := range c.Members[1:] {
		if m.ObservedAt.Before(oldest) {
			oldest = m.ObservedAt
		}
	}
	return oldest
}
