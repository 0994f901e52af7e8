package recorder

import (
	"testing"

	"nvrd/internal/detect"
	"nvrd/internal/logging"
	"nvrd/internal/store"
)

// newTestQueue builds a Queue whose shard channels exist but have no worker
// goroutine draining them, so Submit's overflow/eviction behavior can be
// observed deterministically without a real Recorder doing I/O.
func newTestQueue(logger *logging.Logger) *Queue {
	q := &Queue{logger: logger, shards: make([]chan job, shardCount)}
	for i := range q.shards {
		q.shards[i] = make(chan job, 2)
	}
	return q
}

func TestSubmitNeverBlocksOnFullShard(t *testing.T) {
	logger := logging.New("recorder-test", logging.Config{})
	q := newTestQueue(logger)

	// shardCount cameras all hash to shard 0 if CameraID is a multiple of
	// shardCount; pick one camera id and fill its shard past capacity.
	cam := store.Camera{}
	for i := 0; i < 5; i++ {
		q.Submit(uint(shardCount), 1, cam, detect.MotionInterval{CameraID: uint(shardCount)})
	}

	shard := q.shards[uint(shardCount)%uint(shardCount)]
	if len(shard) != cap(shard) {
		t.Fatalf("expected shard to stay at capacity %d, got %d", cap(shard), len(shard))
	}
}

func TestSubmitDropsOldestOnOverflow(t *testing.T) {
	logger := logging.New("recorder-test", logging.Config{})
	q := newTestQueue(logger)

	q.Submit(0, 1, store.Camera{}, detect.MotionInterval{Reason: "first"})
	q.Submit(0, 1, store.Camera{}, detect.MotionInterval{Reason: "second"})
	// Shard capacity is 2; this third submit must evict "first".
	q.Submit(0, 1, store.Camera{}, detect.MotionInterval{Reason: "third"})

	shard := q.shards[0]
	var reasons []string
	draining := true
	for draining {
		select {
		case j := <-shard:
			reasons = append(reasons, j.interval.Reason)
		default:
			draining = false
		}
	}

	if len(reasons) != 2 || reasons[0] != "second" || reasons[1] != "third" {
		t.Fatalf("expected [second third] to survive eviction, got %v", reasons)
	}
}

func TestSubmitShardsByCameraID(t *testing.T) {
	logger := logging.New("recorder-test", logging.Config{})
	q := newTestQueue(logger)

	q.Submit(0, 1, store.Camera{}, detect.MotionInterval{CameraID: 0})
	q.Submit(uint(shardCount), 1, store.Camera{}, detect.MotionInterval{CameraID: uint(shardCount)})

	if len(q.shards[0]) != 2 {
		t.Fatalf("expected camera ids 0 and %d to land on the same shard, got shard len %d", shardCount, len(q.shards[0]))
	}
}
