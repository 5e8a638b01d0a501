// IceWatch - Community Monitor for Immigration Enforcement Activity
// Copyright 2026 IceWatch contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/icewatch/icewatch

package pipeline

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/thejerf/suture/v4"

	"github.com/icewatch/icewatch/internal/correlate"
	"github.com/icewatch/icewatch/internal/extract"
	"github.com/icewatch/icewatch/internal/filter"
	"github.com/icewatch/icewatch/internal/gazetteer"
	"github.com/icewatch/icewatch/internal/models"
	"github.com/icewatch/icewatch/internal/notify"
	"github.com/icewatch/icewatch/internal/scheduler"
)

// mockStore satisfies the pipeline Store, the filter dedup index, and
// the notifier alert marker so one fake backs the whole run.
type mockStore struct {
	mu        sync.Mutex
	reports   []*models.Report
	clusters  map[string]*models.Cluster
	seen      map[string]bool
	putErr    error
	upsertErr error
}

func newMockStore() *mockStore {
	return &mockStore{
		clusters: make(map[string]*models.Cluster),
		seen:     make(map[string]bool),
	}
}

func (m *mockStore) PutReport(ctx context.Context, r *models.Report) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.putErr != nil {
		return m.putErr
	}
	cp := *r
	m.reports = append(m.reports, &cp)
	m.seen[r.DedupKey] = true
	return nil
}

func (m *mockStore) UpsertCluster(ctx context.Context, cl *models.Cluster) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.upsertErr != nil {
		return m.upsertErr
	}
	m.clusters[cl.ID] = cl
	return nil
}

func (m *mockStore) SeenReport(dedupKey string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.seen[dedupKey], nil
}

func (m *mockStore) MarkAlert(ctx context.Context, clusterID, token string, rec models.AlertRecord) error {
	return nil
}

func (m *mockStore) LogNotificationFailure(ctx context.Context, clusterID, token string, kind models.AlertKind, dispatchErr error) error {
	return nil
}

func (m *mockStore) reportCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.reports)
}

func (m *mockStore) clusterCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.clusters)
}

func (m *mockStore) firstReport() *models.Report {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.reports) == 0 {
		return nil
	}
	return m.reports[0]
}

func newTestPipeline(t *testing.T, st *mockStore) (*Pipeline, *scheduler.Queue) {
	t.Helper()
	gaz, err := gazetteer.Load()
	if err != nil {
		t.Fatalf("loading gazetteer: %v", err)
	}
	f, err := filter.New(filter.Config{
		FreshMax:      3 * time.Hour,
		MaxDistanceKm: 50,
	}, gaz, st)
	if err != nil {
		t.Fatalf("creating filter: %v", err)
	}
	ex := extract.New(extract.Config{EnableNER: false}, gaz)
	corr := correlate.New(correlate.Config{})
	nt, err := notify.New(notify.Config{DryRun: true}, st)
	if err != nil {
		t.Fatalf("creating notifier: %v", err)
	}

	q := scheduler.NewQueue(16)
	return New(q, f, ex, corr, st, nt), q
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func relevantReport(source, localID string, trust models.Trust) models.Report {
	now := time.Now().UTC()
	return models.Report{
		DedupKey:   models.DedupKey(source, localID),
		Source:     source,
		Trust:      trust,
		ObservedAt: now,
		IngestedAt: now,
		Content:    "ICE agents detaining people in Uptown near the transit station",
	}
}

func TestPipelineProcessesRelevantReport(t *testing.T) {
	st := newMockStore()
	p, q := newTestPipeline(t, st)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Serve(ctx) }()

	q.Enqueue(relevantReport("community", "1", models.TrustHigh))
	waitFor(t, "report persisted", func() bool { return st.reportCount() == 1 })
	cancel()
	<-done

	r := st.firstReport()
	if r.Verdict != models.VerdictRelevant {
		t.Errorf("persisted verdict = %q, want RELEVANT", r.Verdict)
	}
	if r.ClusterID == "" {
		t.Error("persisted report has no cluster id")
	}
	if len(r.Locations) == 0 {
		t.Error("persisted report has no extracted locations")
	}
	if st.clusterCount() != 1 {
		t.Errorf("clusters persisted = %d, want 1", st.clusterCount())
	}

	// HIGH trust alerts immediately; the dry-run dispatch records the
	// emission on the cluster, which is then re-persisted.
	st.mu.Lock()
	cl := st.clusters[r.ClusterID]
	st.mu.Unlock()
	if cl == nil || !cl.NewEmitted() {
		t.Error("cluster missing its NEW emission record")
	}
}

func TestPipelinePersistsRejectedReports(t *testing.T) {
	st := newMockStore()
	p, q := newTestPipeline(t, st)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Serve(ctx) }()

	r := relevantReport("microblog", "1", models.TrustNormal)
	r.Content = "nothing enforcement related happening in Uptown"
	q.Enqueue(r)
	waitFor(t, "rejected report persisted", func() bool { return st.reportCount() == 1 })
	cancel()
	<-done

	got := st.firstReport()
	if got.Verdict != models.VerdictRejectedIrrelevant {
		t.Errorf("verdict = %q, want REJECTED_IRRELEVANT", got.Verdict)
	}
	if got.ClusterID != "" {
		t.Error("rejected report was assigned a cluster")
	}
	if st.clusterCount() != 0 {
		t.Errorf("clusters persisted = %d, want 0", st.clusterCount())
	}
}

func TestPipelineDropsDuplicates(t *testing.T) {
	st := newMockStore()
	p, q := newTestPipeline(t, st)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Serve(ctx) }()

	q.Enqueue(relevantReport("community", "1", models.TrustHigh))
	waitFor(t, "first copy persisted", func() bool { return st.reportCount() == 1 })

	// Same dedup key again: silently dropped.
	q.Enqueue(relevantReport("community", "1", models.TrustHigh))
	waitFor(t, "queue drained", func() bool { return q.Len() == 0 })
	time.Sleep(50 * time.Millisecond)
	cancel()
	<-done

	if st.reportCount() != 1 {
		t.Errorf("reports persisted = %d, want 1 (duplicate dropped)", st.reportCount())
	}
}

func TestPipelineStoreFailureIsFatal(t *testing.T) {
	st := newMockStore()
	st.putErr = errors.New("disk full")
	p, q := newTestPipeline(t, st)

	done := make(chan error, 1)
	go func() { done <- p.Serve(context.Background()) }()

	q.Enqueue(relevantReport("community", "1", models.TrustHigh))

	select {
	case err := <-done:
		if !errors.Is(err, suture.ErrTerminateSupervisorTree) {
			t.Errorf("Serve returned %v, want ErrTerminateSupervisorTree", err)
		}
		if !errors.Is(err, st.putErr) {
			t.Errorf("Serve error %v does not wrap the store failure", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not terminate on store failure")
	}

	if p.FatalErr() == nil {
		t.Error("FatalErr not recorded")
	}
}

func TestPipelineDrainsQueueOnShutdown(t *testing.T) {
	st := newMockStore()
	p, q := newTestPipeline(t, st)

	// Queue reports before the pipeline starts, then cancel immediately:
	// the drain pass must still process them.
	q.Enqueue(relevantReport("community", "1", models.TrustHigh))
	q.Enqueue(relevantReport("community", "2", models.TrustHigh))
	q.Enqueue(relevantReport("community", "3", models.TrustHigh))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	done := make(chan error, 1)
	go func() { done <- p.Serve(ctx) }()

	select {
	case <-done:
	case <-time.After(15 * time.Second):
		t.Fatal("Serve did not return")
	}

	if st.reportCount() != 3 {
		t.Errorf("reports persisted = %d, want all 3 drained", st.reportCount())
	}
}
