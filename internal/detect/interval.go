// Package detect implements C5 Motion/AI Detector: pixel-mode background
// subtraction with ROI hysteresis, and AI-mode sliding-window class
// filtering, both converging on a common MotionInterval state machine
// (spec.md §4.5).
package detect

import (
	"strings"
	"time"
)

// MotionInterval is one emitted detection window.
type MotionInterval struct {
	CameraID  uint
	StartTime time.Time
	EndTime   time.Time
	Reason    string
}

// State is a camera's position in the common Idle/Arming/Active/Cooling
// state machine.
type State int

const (
	StateIdle State = iota
	StateArming
	StateActive
	StateCooling
)

const (
	maxOpenInterval  = 5 * time.Minute
	minClosedGap     = 5 * time.Second
	minIntervalLen   = 2 * time.Second
)

// IntervalTracker applies the common open/close/merge/discard rules on top
// of a per-frame "is this frame active" decision supplied by the pixel or
// AI detector (spec.md §4.5 "Common").
type IntervalTracker struct {
	cameraID uint
	state    State

	openSince  time.Time
	lastActive time.Time
	reason     string // labels seen on the open interval's active frames

	pending  *MotionInterval // last closed interval awaiting the merge-gap decision
	emit     func(MotionInterval)
}

// NewIntervalTracker builds a tracker for cameraID that calls emit for each
// finalized interval.
func NewIntervalTracker(cameraID uint, emit func(MotionInterval)) *IntervalTracker {
	return &IntervalTracker{cameraID: cameraID, state: StateIdle, emit: emit}
}

// Observe feeds one frame's activity decision and its reason label (e.g.
// the comma-joined AI classes, or "motion" for pixel mode) at time now.
func (t *IntervalTracker) Observe(now time.Time, active bool, reason string) {
	switch t.state {
	case StateIdle, StateCooling:
		if active {
			t.state = StateArming
			t.openSince = now
			t.lastActive = now
			t.reason = reason
		}
	case StateArming:
		if active {
			t.lastActive = now
			t.reason = mergeReasons(t.reason, reason)
			t.state = StateActive
		} else {
			t.state = StateIdle
		}
	case StateActive:
		if active {
			t.lastActive = now
			t.reason = mergeReasons(t.reason, reason)
			if now.Sub(t.openSince) > maxOpenInterval {
				t.closeAt(t.openSince.Add(maxOpenInterval), t.reason)
				t.openSince = now
				t.lastActive = now
				t.reason = reason
			}
			return
		}
		t.state = StateCooling
	}

	if t.state == StateCooling && !active {
		t.closeAt(now, t.reason)
		t.state = StateIdle
	}
}

func (t *IntervalTracker) closeAt(end time.Time, reason string) {
	interval := MotionInterval{
		CameraID:  t.cameraID,
		StartTime: t.openSince,
		EndTime:   end,
		Reason:    reason,
	}

	if t.pending != nil && interval.StartTime.Sub(t.pending.EndTime) < minClosedGap {
		t.pending.EndTime = interval.EndTime
		if t.pending.Reason != interval.Reason && interval.Reason != "" {
			t.pending.Reason = mergeReasons(t.pending.Reason, interval.Reason)
		}
		return
	}

	t.flushPending()
	t.pending = &interval
}

// Flush finalizes any interval still pending a merge decision. Call this
// when the detector shuts down or goes idle long enough that no further
// merge can occur.
func (t *IntervalTracker) Flush() {
	t.flushPending()
}

func (t *IntervalTracker) flushPending() {
	if t.pending == nil {
		return
	}
	p := *t.pending
	t.pending = nil
	if p.EndTime.Sub(p.StartTime) < minIntervalLen {
		return
	}
	t.emit(p)
}

func mergeReasons(a, b string) string {
	seen := map[string]bool{}
	var out []string
	for _, part := range strings.Split(a, ",") {
		if part != "" && !seen[part] {
			seen[part] = true
			out = append(out, part)
		}
	}
	for _, part := range strings.Split(b, ",") {
		if part != "" && !seen[part] {
			seen[part] = true
			out = append(out, part)
		}
	}
	return strings.Join(out, ",")
}
