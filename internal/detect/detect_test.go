package detect

import (
	"testing"
	"time"
)

func TestIntervalTrackerOpensAndClosesOnHysteresis(t *testing.T) {
	var emitted []MotionInterval
	tr := NewIntervalTracker(1, func(mi MotionInterval) { emitted = append(emitted, mi) })

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	tr.Observe(base, true, "motion")
	tr.Observe(base.Add(time.Second), true, "motion")
	tr.Observe(base.Add(3*time.Second), false, "motion")
	tr.Flush()

	if len(emitted) != 1 {
		t.Fatalf("expected 1 emitted interval, got %d", len(emitted))
	}
	if emitted[0].StartTime != base {
		t.Errorf("unexpected start time: %v", emitted[0].StartTime)
	}
}

func TestIntervalTrackerDiscardsShortInterval(t *testing.T) {
	var emitted []MotionInterval
	tr := NewIntervalTracker(1, func(mi MotionInterval) { emitted = append(emitted, mi) })

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	tr.Observe(base, true, "motion")
	tr.Observe(base.Add(500*time.Millisecond), true, "motion")
	tr.Observe(base.Add(time.Second), false, "motion") // closes a 1s interval
	tr.Flush()

	if len(emitted) != 0 {
		t.Fatalf("expected sub-2s interval to be discarded, got %d emitted", len(emitted))
	}
}

func TestIntervalTrackerMergesCloseIntervals(t *testing.T) {
	var emitted []MotionInterval
	tr := NewIntervalTracker(1, func(mi MotionInterval) { emitted = append(emitted, mi) })

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	tr.Observe(base, true, "motion")
	tr.Observe(base.Add(3*time.Second), true, "motion")
	tr.Observe(base.Add(4*time.Second), false, "motion") // closes ~4s interval

	// Re-open within the 5s merge gap.
	tr.Observe(base.Add(6*time.Second), true, "motion")
	tr.Observe(base.Add(7*time.Second), true, "motion")
	tr.Observe(base.Add(8*time.Second), false, "motion")
	tr.Flush()

	if len(emitted) != 1 {
		t.Fatalf("expected intervals within 5s gap to merge into 1, got %d", len(emitted))
	}
}

func TestAIDetectorFiltersByClassAndConfidence(t *testing.T) {
	d := NewAIDetector([]string{"person"})
	now := time.Now()

	active, reason := d.Observe(now, []Detection{
		{ClassID: "car", Confidence: 0.9},
		{ClassID: "person", Confidence: 0.2},
	})
	if active {
		t.Fatalf("expected no active detection (wrong class + low confidence), got reason=%q", reason)
	}

	active, reason = d.Observe(now, []Detection{{ClassID: "person", Confidence: 0.5}})
	if !active || reason != "person" {
		t.Fatalf("expected active=true reason=person, got active=%v reason=%q", active, reason)
	}
}

func TestAIDetectorWindowExpires(t *testing.T) {
	d := NewAIDetector([]string{"person"})
	now := time.Now()
	d.Observe(now, []Detection{{ClassID: "person", Confidence: 0.9}})

	active, _ := d.Observe(now.Add(11*time.Second), nil)
	if active {
		t.Fatalf("expected window to have expired after 11s")
	}
}

func TestPixelDetectorOpensOnSustainedChange(t *testing.T) {
	d := NewPixelDetector(80)
	roi := AllCellsROI()

	dark := makeFrame(100, 100, 10)
	bright := makeFrame(100, 100, 200)

	// Warm up the background on a stable dark frame.
	for i := 0; i < 5; i++ {
		d.Observe(dark, roi)
	}

	var active bool
	for i := 0; i < 5; i++ {
		active = d.Observe(bright, roi)
	}
	if !active {
		t.Fatalf("expected sustained large intensity change to trigger activity")
	}
}

func makeFrame(w, h int, value byte) Frame {
	px := make([]byte, w*h)
	for i := range px {
		px[i] = value
	}
	return Frame{Width: w, Height: h, Pixels: px}
}
