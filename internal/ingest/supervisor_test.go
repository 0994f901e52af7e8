package ingest

import (
	"context"
	"testing"
	"time"

	"nvrd/internal/logging"
)

type fakeChecker struct {
	ready bool
	err   error
}

func (f *fakeChecker) PathReady(path string) (bool, error) { return f.ready, f.err }

func TestWorkerReachesHealthyWhenPathReady(t *testing.T) {
	checker := &fakeChecker{ready: true}
	logger := logging.New("ingest-test", logging.Config{})
	w := NewWorker(Spec{CameraID: 1, Path: "abc", RTSPUrl: "rtsp://x", Active: true}, checker, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	w.Start(ctx)

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if s, _ := w.State(); s == StateHealthy {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("worker never reached StateHealthy")
}

func TestRegistryStopsInactiveCamera(t *testing.T) {
	checker := &fakeChecker{ready: true}
	logger := logging.New("ingest-test", logging.Config{})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reg := NewRegistry(ctx, checker, logger)
	reg.Reconcile([]Spec{{CameraID: 1, Path: "abc", RTSPUrl: "rtsp://x", Active: true}})

	if _, _, ok := reg.StateOf(1); !ok {
		t.Fatalf("expected a worker to be tracked for camera 1")
	}

	reg.Reconcile([]Spec{{CameraID: 1, Active: false}})
	if _, _, ok := reg.StateOf(1); ok {
		t.Fatalf("expected worker for camera 1 to be removed once inactive")
	}
}
