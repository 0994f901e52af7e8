package ingest

import (
	"context"
	"sync"

	"nvrd/internal/logging"
)

// Registry tracks one Worker per active camera and reconciles it against
// the desired Spec set on every call to Reconcile, per spec.md §4.3's
// start/restart/terminate rules.
type Registry struct {
	checker HealthChecker
	logger  *logging.Logger
	ctx     context.Context

	mu      sync.Mutex
	workers map[uint]*Worker
	specs   map[uint]Spec
}

// NewRegistry builds a Registry bound to ctx's lifetime.
func NewRegistry(ctx context.Context, checker HealthChecker, logger *logging.Logger) *Registry {
	return &Registry{
		ctx:     ctx,
		checker: checker,
		logger:  logger,
		workers: make(map[uint]*Worker),
		specs:   make(map[uint]Spec),
	}
}

// Reconcile brings the worker set in line with the desired specs: starts
// workers for newly-active cameras, restarts ones whose rtsp_url changed,
// and stops ones that are no longer active or no longer present.
func (r *Registry) Reconcile(desired []Spec) {
	r.mu.Lock()
	defer r.mu.Unlock()

	seen := make(map[uint]bool, len(desired))
	for _, spec := range desired {
		seen[spec.CameraID] = true
		existing, ok := r.workers[spec.CameraID]

		if !spec.Active {
			if ok {
				existing.Stop()
				delete(r.workers, spec.CameraID)
				delete(r.specs, spec.CameraID)
			}
			continue
		}

		if !ok {
			w := NewWorker(spec, r.checker, r.logger)
			w.Start(r.ctx)
			r.workers[spec.CameraID] = w
			r.specs[spec.CameraID] = spec
			continue
		}

		prior := r.specs[spec.CameraID]
		if prior.RTSPUrl != spec.RTSPUrl || prior.Path != spec.Path {
			existing.Restart(r.ctx, spec)
		}
		r.specs[spec.CameraID] = spec
	}

	for id, w := range r.workers {
		if !seen[id] {
			w.Stop()
			delete(r.workers, id)
			delete(r.specs, id)
		}
	}
}

// StateOf reports a camera's current worker state, if it has one.
func (r *Registry) StateOf(cameraID uint) (State, string, bool) {
	r.mu.Lock()
	w, ok := r.workers[cameraID]
	r.mu.Unlock()
	if !ok {
		return StateIdle, "", false
	}
	state, lastErr := w.State()
	return state, lastErr, true
}

// StopAll terminates every tracked worker, used at shutdown.
func (r *Registry) StopAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, w := range r.workers {
		w.Stop()
		delete(r.workers, id)
		delete(r.specs, id)
	}
}
