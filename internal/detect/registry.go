package detect

import (
	"context"
	"sync"

	"nvrd/internal/logging"
)

// Registry owns the set of running per-camera detection Workers and
// reconciles it against desired camera configuration, mirroring
// ingest.Registry's reconcile shape for C3.
type Registry struct {
	classifier Classifier
	logger     *logging.Logger
	emit       func(MotionInterval)

	ctx context.Context
	mu  sync.Mutex

	workers map[uint]*Worker
	configs map[uint]CameraConfig
}

// NewRegistry builds a Registry. classifier may be nil if no AI backend is
// configured; cameras in "ai" mode then run with detection effectively
// disabled until one is wired.
func NewRegistry(ctx context.Context, classifier Classifier, logger *logging.Logger, emit func(MotionInterval)) *Registry {
	return &Registry{
		classifier: classifier,
		logger:     logger,
		emit:       emit,
		ctx:        ctx,
		workers:    make(map[uint]*Worker),
		configs:    make(map[uint]CameraConfig),
	}
}

// Reconcile starts, restarts or stops workers so the running set matches
// desired exactly. A camera with Mode == "off" is treated as absent.
func (r *Registry) Reconcile(desired []CameraConfig) {
	r.mu.Lock()
	defer r.mu.Unlock()

	wanted := make(map[uint]CameraConfig, len(desired))
	for _, cfg := range desired {
		if cfg.Mode == "off" || cfg.Mode == "" {
			continue
		}
		wanted[cfg.CameraID] = cfg
	}

	for id, worker := range r.workers {
		if _, ok := wanted[id]; !ok {
			worker.Stop()
			delete(r.workers, id)
			delete(r.configs, id)
		}
	}

	for id, cfg := range wanted {
		existing, running := r.workers[id]
		if running && configsEqual(r.configs[id], cfg) {
			continue
		}
		if running {
			existing.Stop()
		}
		worker := NewWorker(cfg, r.classifier, r.logger, r.emit)
		worker.Start(r.ctx)
		r.workers[id] = worker
		r.configs[id] = cfg
	}
}

// configsEqual compares two CameraConfigs field-by-field since
// AllowedClasses is a slice and cannot use ==.
func configsEqual(a, b CameraConfig) bool {
	if a.CameraID != b.CameraID || a.SourceURL != b.SourceURL || a.Mode != b.Mode ||
		a.Sensitivity != b.Sensitivity || a.ROI != b.ROI {
		return false
	}
	if len(a.AllowedClasses) != len(b.AllowedClasses) {
		return false
	}
	for i := range a.AllowedClasses {
		if a.AllowedClasses[i] != b.AllowedClasses[i] {
			return false
		}
	}
	return true
}

// StopAll stops every running detection worker.
func (r *Registry) StopAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, worker := range r.workers {
		worker.Stop()
	}
	r.workers = make(map[uint]*Worker)
	r.configs = make(map[uint]CameraConfig)
}
