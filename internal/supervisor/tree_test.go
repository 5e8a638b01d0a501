// IceWatch - Community Monitor for Immigration Enforcement Activity
// Copyright 2026 IceWatch contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/icewatch/icewatch

package supervisor

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"
)

type countingService struct {
	name   string
	serves atomic.Int32
}

func (s *countingService) String() string { return s.name }

func (s *countingService) Serve(ctx context.Context) error {
	s.serves.Add(1)
	<-ctx.Done()
	return ctx.Err()
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestTree(t *testing.T) *SupervisorTree {
	t.Helper()
	tree, err := NewSupervisorTree(discardLogger(), DefaultTreeConfig())
	if err != nil {
		t.Fatalf("NewSupervisorTree: %v", err)
	}
	return tree
}

func TestTreeRunsServicesInEveryLayer(t *testing.T) {
	tree := newTestTree(t)

	svcs := map[string]*countingService{
		"data":     {name: "data-svc"},
		"ingest":   {name: "ingest-svc"},
		"pipeline": {name: "pipeline-svc"},
		"api":      {name: "api-svc"},
	}
	tree.AddDataService(svcs["data"])
	tree.AddIngestService(svcs["ingest"])
	tree.AddPipelineService(svcs["pipeline"])
	tree.AddAPIService(svcs["api"])

	ctx, cancel := context.WithCancel(context.Background())
	errCh := tree.ServeBackground(ctx)

	deadline := time.Now().Add(5 * time.Second)
	for {
		running := 0
		for _, s := range svcs {
			if s.serves.Load() > 0 {
				running++
			}
		}
		if running == len(svcs) {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("only %d of %d services started", running, len(svcs))
		}
		time.Sleep(time.Millisecond)
	}

	cancel()
	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			t.Errorf("tree returned %v, want nil or context.Canceled", err)
		}
	case <-time.After(15 * time.Second):
		t.Fatal("tree did not stop after cancel")
	}
}

func TestTreeRestartsCrashedService(t *testing.T) {
	tree := newTestTree(t)

	var crashes atomic.Int32
	crasher := serviceFunc(func(ctx context.Context) error {
		if crashes.Add(1) == 1 {
			return errors.New("transient crash")
		}
		<-ctx.Done()
		return ctx.Err()
	})
	tree.AddIngestService(crasher)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	errCh := tree.ServeBackground(ctx)

	deadline := time.Now().Add(10 * time.Second)
	for crashes.Load() < 2 {
		if time.Now().After(deadline) {
			t.Fatalf("service restarted %d times, want restart after crash", crashes.Load())
		}
		time.Sleep(time.Millisecond)
	}

	cancel()
	select {
	case <-errCh:
	case <-time.After(15 * time.Second):
		t.Fatal("tree did not stop after cancel")
	}
}

type serviceFunc func(ctx context.Context) error

func (f serviceFunc) Serve(ctx context.Context) error { return f(ctx) }

func (f serviceFunc) String() string { return "service-func" }

func TestDefaultTreeConfig(t *testing.T) {
	cfg := DefaultTreeConfig()
	if cfg.FailureThreshold != 5.0 || cfg.FailureDecay != 30.0 {
		t.Errorf("failure parameters = %+v", cfg)
	}
	if cfg.FailureBackoff != 15*time.Second || cfg.ShutdownTimeout != 10*time.Second {
		t.Errorf("timing parameters = %+v", cfg)
	}
}
