// IceWatch - Community Monitor for Immigration Enforcement Activity
// Copyright 2026 IceWatch contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/icewatch/icewatch

// Package correlate groups filtered reports into incident clusters
// using temporal, geographic, and textual similarity, scores cluster
// confidence, and manages the ACTIVE -> EXPIRED lifecycle.
//
// The correlator exclusively owns the in-memory active-cluster set.
// It is driven by a single pipeline goroutine and performs no locking;
// all persistence is the caller's responsibility.
package correlate

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/icewatch/icewatch/internal/geo"
	"github.com/icewatch/icewatch/internal/logging"
	"github.com/icewatch/icewatch/internal/models"
	"github.com/icewatch/icewatch/internal/textsim"
)

// Config holds the correlation thresholds.
type Config struct {
	// TemporalWindow bounds member observation spread. Default 2h.
	TemporalWindow time.Duration

	// GeoWindowKm bounds member distance from the centroid. Default 3.
	GeoWindowKm float64

	// SimThreshold is the minimum TF-IDF cosine similarity. Default 0.25.
	SimThreshold float64

	// ClusterExpiry is the idle lifetime of an active cluster. Default 6h.
	ClusterExpiry time.Duration

	// MinCorroborationSources is the distinct-source count required
	// before a NORMAL-trust cluster may alert. Default 2.
	MinCorroborationSources int
}

func (c *Config) applyDefaults() {
	if c.TemporalWindow <= 0 {
		c.TemporalWindow = 2 * time.Hour
	}
	if c.GeoWindowKm <= 0 {
		c.GeoWindowKm = 3.0
	}
	if c.SimThreshold <= 0 {
		c.SimThreshold = 0.25
	}
	if c.ClusterExpiry <= 0 {
		c.ClusterExpiry = 6 * time.Hour
	}
	if c.MinCorroborationSources <= 0 {
		c.MinCorroborationSources = 2
	}
}

// InvariantError indicates corrupted cluster state. It is fatal: the
// process must stop so an operator can inspect.
type InvariantError struct {
	ClusterID string
	Detail    string
}

func (e *InvariantError) Error() string {
	return fmt.Sprintf("cluster invariant violated for %s: %s", e.ClusterID, e.Detail)
}

// Emission is a candidate alert produced by correlation. The notifier
// makes the final NEW/UPDATE decision against persisted state.
type Emission struct {
	Cluster *models.Cluster
	Kind    models.AlertKind
	// NewMembers holds the reports added since the previous emission,
	// for UPDATE payload excerpts.
	NewMembers []*models.Report
}

// Result is the outcome of processing one report.
type Result struct {
	// Emission is nil when the report was absorbed silently.
	Emission *Emission
	// Expired lists clusters retired during this step; the caller
	// must persist their terminal state.
	Expired []*models.Cluster
	// Assigned is the cluster the report joined or created.
	Assigned *models.Cluster
}

// Correlator maintains the active cluster set.
type Correlator struct {
	cfg Config

	clusters map[string]*models.Cluster
	// spatial indexes clusters that have a centroid.
	spatial *grid
	// uncharted holds cluster ids without any located member; they can
	// only be matched by a same-observer follow-up.
	uncharted map[string]struct{}

	vec *textsim.Vectorizer

	now func() time.Time
}

// Option customizes a Correlator.
type Option func(*Correlator)

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(c *Correlator) { c.now = now }
}

// New creates an empty correlator.
func New(cfg Config, opts ...Option) *Correlator {
	cfg.applyDefaults()
	c := &Correlator{
		cfg:       cfg,
		clusters:  make(map[string]*models.Cluster),
		spatial:   newGrid(),
		uncharted: make(map[string]struct{}),
		vec:       textsim.NewVectorizer(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// WarmStart restores active clusters from the store after a restart.
// The TF-IDF vocabulary is rebuilt from restored member content.
func (c *Correlator) WarmStart(clusters []*models.Cluster) {
	for _, cl := range clusters {
		if cl.State != models.ClusterActive {
			continue
		}
		c.insert(cl)
		for _, m := range cl.Members {
			c.vec.Observe(m.Content)
		}
	}
	logging.Info().Int("clusters", len(c.clusters)).Msg("correlator warm-started")
}

// ActiveCount returns the number of active clusters.
func (c *Correlator) ActiveCount() int {
	return len(c.clusters)
}

// Process runs one report through expiry, matching, and assignment.
// The report must already carry a RELEVANT verdict and its extracted
// locations.
func (c *Correlator) Process(r *models.Report) (*Result, error) {
	res := &Result{Expired: c.ExpireStale(c.now())}

	c.vec.Observe(r.Content)

	target := c.bestMatch(r)
	if target == nil {
		created, emission := c.create(r)
		res.Assigned = created
		res.Emission = emission
		return res, nil
	}

	emission, err := c.assign(target, r)
	if err != nil {
		return nil, err
	}
	res.Assigned = target
	res.Emission = emission
	return res, nil
}

// ExpireStale retires every cluster idle for longer than the expiry
// window and returns them for terminal persistence. EXPIRED is
// terminal: a later matching report starts a fresh cluster.
func (c *Correlator) ExpireStale(now time.Time) []*models.Cluster {
	var expired []*models.Cluster
	for id, cl := range c.clusters {
		if now.Sub(cl.LastUpdated) <= c.cfg.ClusterExpiry {
			continue
		}
		cl.State = models.ClusterExpired
		delete(c.clusters, id)
		c.spatial.remove(id)
		delete(c.uncharted, id)
		expired = append(expired, cl)
	}
	if len(expired) > 0 {
		logging.Debug().Int("count", len(expired)).Msg("clusters expired")
	}
	return expired
}

// candidate pairs a cluster with its composite match score.
type candidate struct {
	cluster *models.Cluster
	score   float64
}

// bestMatch finds the highest-scoring active cluster that satisfies
// all three match predicates, or nil.
func (c *Correlator) bestMatch(r *models.Report) *models.Cluster {
	var cands []candidate

	for _, cl := range c.candidateSet(r) {
		score, ok := c.score(cl, r)
		if !ok {
			continue
		}
		cands = append(cands, candidate{cluster: cl, score: score})
	}
	if len(cands) == 0 {
		return nil
	}

	// Highest composite score wins; ties go to the oldest cluster.
	sort.Slice(cands, func(i, j int) bool {
		if cands[i].score != cands[j].score {
			return cands[i].score > cands[j].score
		}
		return cands[i].cluster.FirstSeen.Before(cands[j].cluster.FirstSeen)
	})
	return cands[0].cluster
}

// candidateSet narrows the active set via the spatial index when the
// report is located; uncharted clusters are always candidates because
// observer-based matching ignores geography.
func (c *Correlator) candidateSet(r *models.Report) []*models.Cluster {
	best, located := r.BestLocation()
	if !located {
		// No location: only same-observer matching applies, and that
		// can hit any cluster.
		out := make([]*models.Cluster, 0, len(c.clusters))
		for _, cl := range c.clusters {
			out = append(out, cl)
		}
		return out
	}

	radius := int(math.Ceil(c.cfg.GeoWindowKm)) + 1
	seen := make(map[string]struct{})
	var out []*models.Cluster
	for _, id := range c.spatial.near(best.Lat, best.Lon, radius) {
		if cl, ok := c.clusters[id]; ok {
			seen[id] = struct{}{}
			out = append(out, cl)
		}
	}
	for id := range c.uncharted {
		if _, dup := seen[id]; dup {
			continue
		}
		if cl, ok := c.clusters[id]; ok {
			out = append(out, cl)
		}
	}
	return out
}

// score evaluates the three match predicates and returns the composite
// score when all hold.
func (c *Correlator) score(cl *models.Cluster, r *models.Report) (float64, bool) {
	// Temporal: near the cluster's latest activity, and inside the
	// window anchored at the oldest member so the membership spread
	// invariant holds.
	gap := absDuration(r.ObservedAt.Sub(cl.LastUpdated))
	if gap > c.cfg.TemporalWindow {
		return 0, false
	}
	if absDuration(r.ObservedAt.Sub(cl.OldestObservation())) > c.cfg.TemporalWindow {
		return 0, false
	}

	// Geographic: best location within the window of the centroid.
	// Location-free reports match only as a follow-up by an observer
	// already present in the cluster.
	geoDist := c.cfg.GeoWindowKm
	best, located := r.BestLocation()
	switch {
	case located && cl.HasCentroid:
		geoDist = geo.Distance(best.Lat, best.Lon, cl.CentroidLat, cl.CentroidLon)
		if geoDist > c.cfg.GeoWindowKm {
			return 0, false
		}
	default:
		if !cl.HasObserver(r.Source, r.Author) {
			return 0, false
		}
	}

	// Content: TF-IDF cosine similarity against the concatenated
	// member content.
	sim := c.vec.Similarity(r.Content, memberText(cl))
	if sim < c.cfg.SimThreshold {
		return 0, false
	}

	score := 0.5*sim +
		0.3*(1-geoDist/c.cfg.GeoWindowKm) +
		0.2*(1-float64(gap)/float64(c.cfg.TemporalWindow))
	return score, true
}

// assign appends the report to the cluster, refreshes centroid,
// timestamps, and confidence, and decides whether to emit.
func (c *Correlator) assign(cl *models.Cluster, r *models.Report) (*Emission, error) {
	r.ClusterID = cl.ID
	cl.Members = append(cl.Members, r)
	if r.ObservedAt.After(cl.LastUpdated) {
		cl.LastUpdated = r.ObservedAt
	}

	if err := c.recomputeCentroid(cl); err != nil {
		return nil, err
	}
	cl.Confidence = c.confidence(cl)
	c.place(cl)

	if !c.eligible(cl) {
		// Still below the corroboration bar: hold silently.
		return nil, nil
	}

	kind := models.AlertUpdate
	if !cl.NewEmitted() {
		// First eligible emission for this cluster.
		kind = models.AlertNew
	}
	return &Emission{
		Cluster:    cl,
		Kind:       kind,
		NewMembers: cl.Members[cl.LastEmitCount():],
	}, nil
}

// create starts a new cluster from an unmatched report. HIGH-trust
// sources alert immediately; NORMAL-trust clusters stay silent until
// corroborated.
func (c *Correlator) create(r *models.Report) (*models.Cluster, *Emission) {
	cl := &models.Cluster{
		ID:          uuid.NewString(),
		State:       models.ClusterActive,
		FirstSeen:   r.ObservedAt,
		LastUpdated: r.ObservedAt,
		Members:     []*models.Report{r},
	}
	r.ClusterID = cl.ID

	if best, ok := r.BestLocation(); ok {
		cl.CentroidLat = best.Lat
		cl.CentroidLon = best.Lon
		cl.HasCentroid = true
		cl.Label = best.Name
	}
	cl.Confidence = c.confidence(cl)
	c.insert(cl)

	if r.Trust != models.TrustHigh {
		return cl, nil
	}
	return cl, &Emission{Cluster: cl, Kind: models.AlertNew, NewMembers: cl.Members}
}

// eligible reports whether the cluster may alert: any HIGH-trust
// member, or enough distinct sources for corroboration.
func (c *Correlator) eligible(cl *models.Cluster) bool {
	for _, m := range cl.Members {
		if m.Trust == models.TrustHigh {
			return true
		}
	}
	return cl.SourceDiversity() >= c.cfg.MinCorroborationSources
}

// insert registers a cluster in the lookup structures.
func (c *Correlator) insert(cl *models.Cluster) {
	c.clusters[cl.ID] = cl
	c.place(cl)
}

// place refreshes the spatial index entry for a cluster.
func (c *Correlator) place(cl *models.Cluster) {
	if cl.HasCentroid {
		delete(c.uncharted, cl.ID)
		c.spatial.put(cl.ID, cl.CentroidLat, cl.CentroidLon)
	} else {
		c.uncharted[cl.ID] = struct{}{}
	}
}

// recomputeCentroid sets the confidence-weighted mean of member
// locations, refreshes the label from the strongest member location,
// and verifies the membership radius invariant.
func (c *Correlator) recomputeCentroid(cl *models.Cluster) error {
	var (
		sumLat, sumLon, sumW float64
		bestConf             float64
		bestName             string
	)
	for _, m := range cl.Members {
		loc, ok := m.BestLocation()
		if !ok {
			continue
		}
		w := loc.Confidence
		if w <= 0 {
			continue
		}
		sumLat += loc.Lat * w
		sumLon += loc.Lon * w
		sumW += w
		if loc.Confidence > bestConf {
			bestConf = loc.Confidence
			bestName = loc.Name
		}
	}
	if sumW == 0 {
		cl.HasCentroid = false
		return nil
	}

	cl.CentroidLat = sumLat / sumW
	cl.CentroidLon = sumLon / sumW
	cl.HasCentroid = true
	if bestName != "" {
		cl.Label = bestName
	}

	// Membership radius check. Allow slack for centroid drift across
	// assignments; a gross violation means the matcher is broken.
	const slackKm = 1.0
	for _, m := range cl.Members {
		loc, ok := m.BestLocation()
		if !ok {
			continue
		}
		if d := geo.Distance(loc.Lat, loc.Lon, cl.CentroidLat, cl.CentroidLon); d > c.cfg.GeoWindowKm+slackKm {
			return &InvariantError{
				ClusterID: cl.ID,
				Detail:    fmt.Sprintf("member %s is %.2f km from centroid", m.DedupKey, d),
			}
		}
	}
	return nil
}

// confidence scores the cluster's evidentiary strength in [0,1]:
// source diversity, member count, temporal tightness, and location
// quality.
func (c *Correlator) confidence(cl *models.Cluster) float64 {
	divTerm := math.Min(1, float64(cl.SourceDiversity())/3.0)
	countTerm := math.Min(1, float64(len(cl.Members))/5.0)

	timeTerm := 1 - float64(cl.ObservationSpan())/float64(c.cfg.TemporalWindow)
	timeTerm = clamp01(timeTerm)

	var locSum float64
	for _, m := range cl.Members {
		if loc, ok := m.BestLocation(); ok {
			locSum += loc.Confidence
		}
	}
	locTerm := locSum / float64(len(cl.Members))

	return clamp01(0.35*divTerm + 0.25*countTerm + 0.20*timeTerm + 0.20*locTerm)
}

func memberText(cl *models.Cluster) string {
	parts := make([]string, 0, len(cl.Members))
	for _, m := range cl.Members {
		parts = append(parts, m.Content)
	}
	return strings.Join(parts, " ")
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
