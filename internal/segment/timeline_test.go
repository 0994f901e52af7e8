package segment

import (
	"sort"
	"sync"
	"testing"
	"time"

	"nvrd/internal/logging"
	"nvrd/internal/store"
)

// fakeArchiveRepo stands in for *store.Store in tests: an in-memory table
// good enough to exercise Timeline's persistence calls without a real
// postgres connection.
type fakeArchiveRepo struct {
	mu       sync.Mutex
	nextID   uint
	segments map[uint]*store.ArchiveSegment
}

func newFakeArchiveRepo() *fakeArchiveRepo {
	return &fakeArchiveRepo{segments: make(map[uint]*store.ArchiveSegment)}
}

func (f *fakeArchiveRepo) CreateArchiveSegment(seg *store.ArchiveSegment) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	seg.ID = f.nextID
	seg.Open = true
	cp := *seg
	f.segments[seg.ID] = &cp
	return nil
}

func (f *fakeArchiveRepo) GrowArchiveSegment(id uint, durationS float64, byteSize int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if seg, ok := f.segments[id]; ok {
		seg.DurationS = durationS
		seg.ByteSize = byteSize
	}
	return nil
}

func (f *fakeArchiveRepo) CloseArchiveSegment(id uint, durationS float64, byteSize int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if seg, ok := f.segments[id]; ok {
		seg.DurationS = durationS
		seg.ByteSize = byteSize
		seg.Open = false
	}
	return nil
}

func (f *fakeArchiveRepo) ArchiveSegmentsForDay(cameraID uint, dayStart time.Time) ([]store.ArchiveSegment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	dayEnd := dayStart.Add(24 * time.Hour)
	var out []store.ArchiveSegment
	for _, seg := range f.segments {
		if seg.CameraID == cameraID && !seg.StartTime.Before(dayStart) && seg.StartTime.Before(dayEnd) {
			out = append(out, *seg)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime.Before(out[j].StartTime) })
	return out, nil
}

func (f *fakeArchiveRepo) ArchiveSegmentCovering(cameraID uint, at time.Time) (*store.ArchiveSegment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var best *store.ArchiveSegment
	for _, seg := range f.segments {
		if seg.CameraID != cameraID || seg.StartTime.After(at) {
			continue
		}
		if best == nil || seg.StartTime.After(best.StartTime) {
			cp := *seg
			best = &cp
		}
	}
	return best, nil
}

func (f *fakeArchiveRepo) ArchiveSegmentsOverlapping(cameraID uint, start, end time.Time) ([]store.ArchiveSegment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []store.ArchiveSegment
	for _, seg := range f.segments {
		if seg.CameraID != cameraID || !seg.StartTime.Before(end) {
			continue
		}
		segEnd := seg.StartTime.Add(time.Duration(seg.DurationS * float64(time.Second)))
		if seg.Open || segEnd.After(start) {
			out = append(out, *seg)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime.Before(out[j].StartTime) })
	return out, nil
}

func newTestTimeline() *Timeline {
	return NewTimeline(newFakeArchiveRepo(), logging.New("segment-test", logging.Config{}))
}

func TestNextBoundary(t *testing.T) {
	base := time.Date(2026, 7, 30, 10, 7, 0, 0, time.UTC)
	got := NextBoundary(base)
	want := time.Date(2026, 7, 30, 10, 15, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Errorf("NextBoundary(%v) = %v, want %v", base, got, want)
	}
}

func TestSegmentFilenameFormat(t *testing.T) {
	start := time.Date(2026, 7, 30, 10, 15, 0, 0, time.UTC)
	got := SegmentFilename(start)
	want := "20260730_101500.mp4"
	if got != want {
		t.Errorf("SegmentFilename = %q, want %q", got, want)
	}
}

func TestOpenSegmentPersistsRow(t *testing.T) {
	tl := newTestTimeline()
	start := time.Date(2026, 7, 30, 10, 0, 0, 0, time.UTC)
	e := tl.OpenSegment(1, start)

	if e.ID == 0 {
		t.Fatalf("expected OpenSegment to assign a persisted ID")
	}
	repo := tl.repo.(*fakeArchiveRepo)
	if _, ok := repo.segments[e.ID]; !ok {
		t.Fatalf("expected a row to exist for segment %d", e.ID)
	}
}

func TestSeekFindsCoveringSegment(t *testing.T) {
	tl := newTestTimeline()
	start := time.Date(2026, 7, 30, 10, 0, 0, 0, time.UTC)
	e := tl.OpenSegment(1, start)
	tl.CloseSegment(e, start.Add(900*time.Second), 1024)

	at := start.Add(100 * time.Second)
	filename, offset, err := tl.Seek(1, at)
	if err != nil {
		t.Fatalf("Seek returned error: %v", err)
	}
	if filename != e.Filename {
		t.Errorf("Seek filename = %q, want %q", filename, e.Filename)
	}
	if offset != 100 {
		t.Errorf("Seek offset = %v, want 100", offset)
	}
}

func TestSeekNotFound(t *testing.T) {
	tl := newTestTimeline()
	start := time.Date(2026, 7, 30, 10, 0, 0, 0, time.UTC)
	e := tl.OpenSegment(1, start)
	tl.CloseSegment(e, start.Add(900*time.Second), 1024)

	_, _, err := tl.Seek(1, start.Add(-time.Hour))
	if err == nil {
		t.Fatalf("expected not-found error for time outside any segment")
	}
}

func TestListClipsToWindow(t *testing.T) {
	tl := newTestTimeline()
	day := time.Date(2026, 7, 30, 0, 0, 0, 0, time.UTC)

	// Segment straddling midnight into the window.
	e1 := tl.OpenSegment(1, day.Add(-5*time.Minute))
	tl.CloseSegment(e1, day.Add(10*time.Minute), 2048)

	// Segment entirely inside the window.
	e2 := tl.OpenSegment(1, day.Add(time.Hour))
	tl.CloseSegment(e2, day.Add(time.Hour+15*time.Minute), 2048)

	results, err := tl.List(1, day)
	if err != nil {
		t.Fatalf("List returned error: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if !results[0].Start.Equal(day) {
		t.Errorf("first result should be clipped to day start, got %v", results[0].Start)
	}
}

func TestFilesReturnsSegmentsOverlappingWindow(t *testing.T) {
	tl := newTestTimeline()
	base := time.Date(2026, 7, 30, 10, 0, 0, 0, time.UTC)

	e1 := tl.OpenSegment(1, base)
	tl.CloseSegment(e1, base.Add(900*time.Second), 4096)
	e2 := tl.OpenSegment(1, base.Add(900*time.Second))
	tl.CloseSegment(e2, base.Add(1800*time.Second), 4096)

	files, err := tl.Files(1, base.Add(800*time.Second), base.Add(1000*time.Second))
	if err != nil {
		t.Fatalf("Files returned error: %v", err)
	}
	if len(files) != 2 {
		t.Fatalf("expected both straddled segments, got %d", len(files))
	}
	if files[0].Filename != e1.Filename || files[1].Filename != e2.Filename {
		t.Errorf("expected files in chronological order, got %+v", files)
	}
}

func TestSweepStaleClosesOpenSegment(t *testing.T) {
	tl := newTestTimeline()
	start := time.Now().Add(-10 * time.Minute)
	e := tl.OpenSegment(1, start)
	tl.Grow(e, start.Add(time.Minute), 512)

	closed := tl.SweepStale(start.Add(time.Minute).Add(StaleAfter + time.Second))
	if len(closed) != 1 {
		t.Fatalf("expected 1 stale segment closed, got %d", len(closed))
	}
	if closed[0].Open {
		t.Errorf("swept segment should be marked closed")
	}
}
