// IceWatch - Community Monitor for Immigration Enforcement Activity
// Copyright 2026 IceWatch contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/icewatch/icewatch

package correlate

import (
	"testing"
	"time"

	"github.com/icewatch/icewatch/internal/models"
)

var testBase = time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

// uptownReport builds a located report in the Uptown area.
func uptownReport(source, localID, author, content string, observed time.Time) *models.Report {
	return &models.Report{
		DedupKey:   models.DedupKey(source, localID),
		Source:     source,
		Author:     author,
		Trust:      models.TrustNormal,
		ObservedAt: observed,
		IngestedAt: observed,
		Content:    content,
		Verdict:    models.VerdictRelevant,
		Locations: []models.Location{{
			Name:       "Uptown",
			Lat:        44.9483,
			Lon:        -93.2983,
			Confidence: 0.9,
			Method:     models.LocationGazetteer,
		}},
	}
}

func newTestCorrelator() *Correlator {
	return New(Config{}, WithClock(func() time.Time { return testBase }))
}

func TestHighTrustAlertsImmediately(t *testing.T) {
	c := newTestCorrelator()

	r := uptownReport("community", "1", "", "ICE agents detaining people near the Uptown transit station", testBase)
	r.Trust = models.TrustHigh

	res, err := c.Process(r)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if res.Emission == nil {
		t.Fatal("high-trust report produced no emission")
	}
	if res.Emission.Kind != models.AlertNew {
		t.Errorf("emission kind = %q, want NEW", res.Emission.Kind)
	}
	if len(res.Emission.NewMembers) != 1 {
		t.Errorf("emission carries %d new members, want 1", len(res.Emission.NewMembers))
	}
	if res.Assigned == nil || len(res.Assigned.Members) != 1 {
		t.Fatal("report not assigned to a single-member cluster")
	}
	if r.ClusterID != res.Assigned.ID {
		t.Error("report cluster id not set")
	}
}

func TestNormalTrustHeldUntilCorroborated(t *testing.T) {
	c := newTestCorrelator()

	first := uptownReport("microblog", "1", "watcher1",
		"ICE agents detaining people near the Uptown transit station", testBase)
	res, err := c.Process(first)
	if err != nil {
		t.Fatalf("Process first: %v", err)
	}
	if res.Emission != nil {
		t.Fatal("single NORMAL-trust report must not emit")
	}
	clusterID := res.Assigned.ID

	// Same source again: still one distinct source, still silent.
	second := uptownReport("microblog", "2", "watcher2",
		"agents detaining people at the Uptown transit station right now", testBase.Add(10*time.Minute))
	res, err = c.Process(second)
	if err != nil {
		t.Fatalf("Process second: %v", err)
	}
	if res.Assigned.ID != clusterID {
		t.Fatal("similar report did not join the existing cluster")
	}
	if res.Emission != nil {
		t.Fatal("single-source cluster must not emit")
	}

	// A second distinct source crosses the corroboration bar.
	third := uptownReport("smsmap", "1", "",
		"detaining people near Uptown transit station, agents on scene", testBase.Add(20*time.Minute))
	res, err = c.Process(third)
	if err != nil {
		t.Fatalf("Process third: %v", err)
	}
	if res.Assigned.ID != clusterID {
		t.Fatal("corroborating report did not join the existing cluster")
	}
	if res.Emission == nil {
		t.Fatal("corroborated cluster produced no emission")
	}
	if res.Emission.Kind != models.AlertNew {
		t.Errorf("emission kind = %q, want NEW", res.Emission.Kind)
	}
	if len(res.Emission.NewMembers) != 3 {
		t.Errorf("NEW emission carries %d members, want all 3", len(res.Emission.NewMembers))
	}
}

func TestFollowUpEmitsUpdate(t *testing.T) {
	c := newTestCorrelator()

	first := uptownReport("microblog", "1", "watcher1",
		"ICE agents detaining people near the Uptown transit station", testBase)
	if _, err := c.Process(first); err != nil {
		t.Fatalf("Process first: %v", err)
	}
	second := uptownReport("smsmap", "1", "",
		"agents detaining people at Uptown transit station", testBase.Add(10*time.Minute))
	res, err := c.Process(second)
	if err != nil {
		t.Fatalf("Process second: %v", err)
	}
	if res.Emission == nil || res.Emission.Kind != models.AlertNew {
		t.Fatal("expected NEW emission on corroboration")
	}

	// Simulate the notifier recording the dispatched alert.
	res.Assigned.AlertsEmitted = append(res.Assigned.AlertsEmitted, models.AlertRecord{
		Kind:        models.AlertNew,
		EmittedAt:   testBase.Add(10 * time.Minute),
		MemberCount: len(res.Assigned.Members),
	})

	third := uptownReport("photofeed", "1", "",
		"more agents arriving at the Uptown transit station detaining people", testBase.Add(30*time.Minute))
	res, err = c.Process(third)
	if err != nil {
		t.Fatalf("Process third: %v", err)
	}
	if res.Emission == nil {
		t.Fatal("growth after NEW produced no emission")
	}
	if res.Emission.Kind != models.AlertUpdate {
		t.Errorf("emission kind = %q, want UPDATE", res.Emission.Kind)
	}
	if len(res.Emission.NewMembers) != 1 {
		t.Errorf("UPDATE carries %d new members, want 1", len(res.Emission.NewMembers))
	}
	if res.Emission.NewMembers[0].DedupKey != third.DedupKey {
		t.Errorf("UPDATE new member = %q, want %q", res.Emission.NewMembers[0].DedupKey, third.DedupKey)
	}
}

func TestTemporalWindowGate(t *testing.T) {
	c := newTestCorrelator()

	first := uptownReport("microblog", "1", "",
		"ICE agents detaining people near the Uptown transit station", testBase)
	if _, err := c.Process(first); err != nil {
		t.Fatalf("Process first: %v", err)
	}

	// Same place, same wording, but observed past the temporal window.
	late := uptownReport("smsmap", "1", "",
		"ICE agents detaining people near the Uptown transit station", testBase.Add(3*time.Hour))
	res, err := c.Process(late)
	if err != nil {
		t.Fatalf("Process late: %v", err)
	}
	if res.Assigned.ID == first.ClusterID {
		t.Error("report outside the temporal window joined the cluster")
	}
	if c.ActiveCount() != 2 {
		t.Errorf("ActiveCount = %d, want 2", c.ActiveCount())
	}
}

func TestGeoWindowGate(t *testing.T) {
	c := newTestCorrelator()

	first := uptownReport("microblog", "1", "",
		"ICE agents detaining people near the transit station", testBase)
	if _, err := c.Process(first); err != nil {
		t.Fatalf("Process first: %v", err)
	}

	// Similar report but located about 5km away.
	far := uptownReport("smsmap", "1", "",
		"ICE agents detaining people near the transit station", testBase.Add(10*time.Minute))
	far.Locations = []models.Location{{
		Name:       "Northeast Minneapolis",
		Lat:        44.9933,
		Lon:        -93.2983,
		Confidence: 0.9,
		Method:     models.LocationGazetteer,
	}}
	res, err := c.Process(far)
	if err != nil {
		t.Fatalf("Process far: %v", err)
	}
	if res.Assigned.ID == first.ClusterID {
		t.Error("report outside the geo window joined the cluster")
	}
}

func TestSimilarityGate(t *testing.T) {
	c := newTestCorrelator()

	first := uptownReport("microblog", "1", "",
		"ICE agents detaining people near the transit station", testBase)
	if _, err := c.Process(first); err != nil {
		t.Fatalf("Process first: %v", err)
	}

	// Same place and time but textually unrelated.
	unrelated := uptownReport("smsmap", "1", "",
		"unverified checkpoint rumor, no details yet", testBase.Add(10*time.Minute))
	res, err := c.Process(unrelated)
	if err != nil {
		t.Fatalf("Process unrelated: %v", err)
	}
	if res.Assigned.ID == first.ClusterID {
		t.Error("dissimilar report joined the cluster")
	}
}

func TestLocationFreeFollowUp(t *testing.T) {
	c := newTestCorrelator()

	first := uptownReport("microblog", "1", "watcher1",
		"ICE agents detaining people near the Uptown transit station", testBase)
	if _, err := c.Process(first); err != nil {
		t.Fatalf("Process first: %v", err)
	}

	// Same observer, no location: joins as a follow-up.
	followUp := &models.Report{
		DedupKey:   models.DedupKey("microblog", "2"),
		Source:     "microblog",
		Author:     "watcher1",
		Trust:      models.TrustNormal,
		ObservedAt: testBase.Add(15 * time.Minute),
		IngestedAt: testBase.Add(15 * time.Minute),
		Content:    "update: agents still detaining people at the transit station",
		Verdict:    models.VerdictRelevant,
	}
	res, err := c.Process(followUp)
	if err != nil {
		t.Fatalf("Process follow-up: %v", err)
	}
	if res.Assigned.ID != first.ClusterID {
		t.Error("same-observer location-free follow-up did not join the cluster")
	}

	// Different observer, no location: cannot match anything.
	stranger := &models.Report{
		DedupKey:   models.DedupKey("microblog", "3"),
		Source:     "microblog",
		Author:     "someone_else",
		Trust:      models.TrustNormal,
		ObservedAt: testBase.Add(20 * time.Minute),
		IngestedAt: testBase.Add(20 * time.Minute),
		Content:    "agents detaining people at the transit station",
		Verdict:    models.VerdictRelevant,
	}
	res, err = c.Process(stranger)
	if err != nil {
		t.Fatalf("Process stranger: %v", err)
	}
	if res.Assigned.ID == first.ClusterID {
		t.Error("location-free report from an unknown observer joined the cluster")
	}
}

func TestExpireStale(t *testing.T) {
	c := newTestCorrelator()

	r := uptownReport("microblog", "1", "",
		"ICE agents detaining people near the Uptown transit station", testBase)
	res, err := c.Process(r)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	clusterID := res.Assigned.ID

	// Exactly at the expiry window: still active.
	if expired := c.ExpireStale(testBase.Add(6 * time.Hour)); len(expired) != 0 {
		t.Fatalf("cluster expired exactly at the window boundary: %v", expired)
	}
	if c.ActiveCount() != 1 {
		t.Fatalf("ActiveCount = %d, want 1", c.ActiveCount())
	}

	// Past the window: retired with terminal state.
	expired := c.ExpireStale(testBase.Add(6*time.Hour + time.Second))
	if len(expired) != 1 {
		t.Fatalf("got %d expired clusters, want 1", len(expired))
	}
	if expired[0].ID != clusterID {
		t.Errorf("expired cluster id = %q, want %q", expired[0].ID, clusterID)
	}
	if expired[0].State != models.ClusterExpired {
		t.Errorf("expired cluster state = %q, want EXPIRED", expired[0].State)
	}
	if c.ActiveCount() != 0 {
		t.Errorf("ActiveCount after expiry = %d, want 0", c.ActiveCount())
	}
}

func TestExpiredClusterNeverRevived(t *testing.T) {
	clock := testBase
	c := New(Config{}, WithClock(func() time.Time { return clock }))

	first := uptownReport("microblog", "1", "",
		"ICE agents detaining people near the Uptown transit station", testBase)
	res, err := c.Process(first)
	if err != nil {
		t.Fatalf("Process first: %v", err)
	}
	oldID := res.Assigned.ID

	// Advance past expiry; a matching late report starts a new cluster.
	clock = testBase.Add(7 * time.Hour)
	late := uptownReport("smsmap", "1", "",
		"ICE agents detaining people near the Uptown transit station", clock)
	res, err = c.Process(late)
	if err != nil {
		t.Fatalf("Process late: %v", err)
	}
	if len(res.Expired) != 1 || res.Expired[0].ID != oldID {
		t.Fatalf("expected the first cluster in Expired, got %v", res.Expired)
	}
	if res.Assigned.ID == oldID {
		t.Error("late report revived an expired cluster")
	}
}

func TestWarmStart(t *testing.T) {
	c := newTestCorrelator()

	member := uptownReport("microblog", "1", "watcher1",
		"ICE agents detaining people near the Uptown transit station", testBase)
	active := &models.Cluster{
		ID:          "restored-active",
		State:       models.ClusterActive,
		FirstSeen:   testBase,
		LastUpdated: testBase,
		CentroidLat: 44.9483,
		CentroidLon: -93.2983,
		HasCentroid: true,
		Label:       "Uptown",
		Members:     []*models.Report{member},
	}
	expired := &models.Cluster{
		ID:    "restored-expired",
		State: models.ClusterExpired,
	}

	c.WarmStart([]*models.Cluster{active, expired})
	if c.ActiveCount() != 1 {
		t.Fatalf("ActiveCount after warm start = %d, want 1", c.ActiveCount())
	}

	// Matching reports join the restored cluster.
	r := uptownReport("smsmap", "1", "",
		"agents detaining people at the Uptown transit station", testBase.Add(10*time.Minute))
	res, err := c.Process(r)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if res.Assigned.ID != "restored-active" {
		t.Errorf("report joined %q, want restored-active", res.Assigned.ID)
	}
}

func TestConfidenceGrowsWithCorroboration(t *testing.T) {
	c := newTestCorrelator()

	first := uptownReport("microblog", "1", "",
		"ICE agents detaining people near the Uptown transit station", testBase)
	res, err := c.Process(first)
	if err != nil {
		t.Fatalf("Process first: %v", err)
	}
	before := res.Assigned.Confidence

	second := uptownReport("smsmap", "1", "",
		"agents detaining people at the Uptown transit station", testBase.Add(5*time.Minute))
	res, err = c.Process(second)
	if err != nil {
		t.Fatalf("Process second: %v", err)
	}
	if res.Assigned.Confidence <= before {
		t.Errorf("confidence did not grow: before %v, after %v", before, res.Assigned.Confidence)
	}
	if res.Assigned.Confidence < 0 || res.Assigned.Confidence > 1 {
		t.Errorf("confidence out of range: %v", res.Assigned.Confidence)
	}
}
