package recorder

import (
	"context"

	"nvrd/internal/detect"
	"nvrd/internal/logging"
	"nvrd/internal/store"
)

// queueCapacity and shardCount implement spec.md §5's recorder job queue: a
// bounded queue (capacity 64) serviced by a fixed worker pool, sharded by
// camera id so a single camera's events stay strictly ordered while
// different cameras' jobs run concurrently.
const (
	queueCapacity = 64
	shardCount    = 4
)

type job struct {
	cameraID uint
	userID   uint
	cam      store.Camera
	interval detect.MotionInterval
}

// Queue is the bounded, camera-sharded job queue C5 emits into and C6
// drains from. Submit never blocks the caller: an overflowing shard drops
// its oldest queued job and logs, rather than stalling the detector.
type Queue struct {
	rec    *Recorder
	logger *logging.Logger
	shards []chan job
}

// NewQueue builds a Queue backed by rec and starts one worker goroutine per
// shard.
func NewQueue(rec *Recorder, logger *logging.Logger) *Queue {
	q := &Queue{
		rec:    rec,
		logger: logger,
		shards: make([]chan job, shardCount),
	}
	for i := range q.shards {
		q.shards[i] = make(chan job, queueCapacity/shardCount)
		go q.worker(i)
	}
	return q
}

func (q *Queue) worker(shard int) {
	for j := range q.shards[shard] {
		q.rec.Record(context.Background(), j.cameraID, j.userID, j.cam, j.interval)
	}
}

// Submit enqueues a recorder job for cam/interval, never blocking the
// caller. If the camera's shard is full, the oldest pending job is dropped
// (and logged) to make room, per spec.md §5's "oldest job dropped with a
// log on overflow, never blocking C5".
func (q *Queue) Submit(cameraID, userID uint, cam store.Camera, interval detect.MotionInterval) {
	shard := q.shards[cameraID%uint(shardCount)]
	j := job{cameraID: cameraID, userID: userID, cam: cam, interval: interval}

	select {
	case shard <- j:
		return
	default:
	}

	select {
	case <-shard:
		q.logger.With().WithField("camera_id", cameraID).Warn("recorder queue full, dropped oldest pending job")
	default:
	}
	select {
	case shard <- j:
	default:
		q.logger.With().WithField("camera_id", cameraID).Warn("recorder queue still full after eviction, dropping new job")
	}
}
