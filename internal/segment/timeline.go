// Package segment implements C4 Continuous Segmenter: the 900s
// quarter-hour-aligned rolling recording file index and its list/seek query
// contracts (spec.md §4.4).
package segment

import (
	"fmt"
	"sync"
	"time"

	"nvrd/internal/apperr"
	"nvrd/internal/logging"
	"nvrd/internal/store"
)

// NominalDuration is the target segment length; the router/ffmpeg process
// is instructed to roll files at this interval.
const NominalDuration = 900 * time.Second

// StaleAfter is how long an open segment may go without growth before the
// timeline closes it out-of-band (spec.md §4.4 invariant).
const StaleAfter = 120 * time.Second

// Entry is one segment's timeline record. End is the zero time while Open.
// ID is the backing ArchiveSegment row's primary key, 0 if the row failed
// to persist (the segmenter keeps recording even if the DB write fails).
type Entry struct {
	ID         uint
	CameraID   uint
	StartTime  time.Time
	EndTime    time.Time
	Filename   string
	Open       bool
	lastGrowth time.Time
}

// ArchiveFile is one rolled file overlapping a requested window, in
// chronological order (spec.md C6 clip assembly across a segment boundary).
type ArchiveFile struct {
	Filename string
	Start    time.Time
}

// archiveRepo is the slice of *store.Store the timeline needs to persist
// through. It exists so tests can fake the index without a live database
// (store.Store requires a real postgres connection).
type archiveRepo interface {
	CreateArchiveSegment(seg *store.ArchiveSegment) error
	GrowArchiveSegment(id uint, durationS float64, byteSize int64) error
	CloseArchiveSegment(id uint, durationS float64, byteSize int64) error
	ArchiveSegmentsForDay(cameraID uint, dayStart time.Time) ([]store.ArchiveSegment, error)
	ArchiveSegmentCovering(cameraID uint, at time.Time) (*store.ArchiveSegment, error)
	ArchiveSegmentsOverlapping(cameraID uint, start, end time.Time) ([]store.ArchiveSegment, error)
}

// Timeline indexes segments per camera in start-time order, backed by the
// store's ArchiveSegment table so the index survives a restart (spec.md
// §3). It keeps an in-memory set of currently-open segments purely to track
// growth staleness between DB writes.
type Timeline struct {
	repo   archiveRepo
	logger *logging.Logger

	mu   sync.Mutex
	open map[uint]*Entry // ArchiveSegment.ID -> still-open entry
}

// NewTimeline builds a Timeline backed by repo (typically a *store.Store).
func NewTimeline(repo archiveRepo, logger *logging.Logger) *Timeline {
	return &Timeline{repo: repo, logger: logger, open: make(map[uint]*Entry)}
}

// SegmentFilename encodes start as YYYYMMDD_HHMMSS.mp4 (spec.md §4.4).
func SegmentFilename(start time.Time) string {
	return start.Format("20060102_150405") + ".mp4"
}

// NextBoundary returns the next clock-quarter boundary (:00/:15/:30/:45)
// strictly after from.
func NextBoundary(from time.Time) time.Time {
	minute := from.Minute()
	nextQuarter := ((minute / 15) + 1) * 15
	base := from.Truncate(time.Hour)
	return base.Add(time.Duration(nextQuarter) * time.Minute)
}

// OpenSegment records a newly started, still-growing segment, persisting it
// immediately so a crash mid-segment still leaves a (open) row behind.
func (t *Timeline) OpenSegment(cameraID uint, start time.Time) *Entry {
	e := &Entry{
		CameraID:   cameraID,
		StartTime:  start,
		Filename:   SegmentFilename(start),
		Open:       true,
		lastGrowth: start,
	}

	row := &store.ArchiveSegment{CameraID: cameraID, StartTime: start, Filename: e.Filename}
	if err := t.repo.CreateArchiveSegment(row); err != nil {
		t.logger.With().WithError(err).Error("persist archive segment open")
	} else {
		e.ID = row.ID
	}

	t.mu.Lock()
	t.open[e.ID] = e
	t.mu.Unlock()
	return e
}

// Grow records that an open segment's file grew, resetting its staleness
// clock and updating the persisted duration/size.
func (t *Timeline) Grow(e *Entry, at time.Time, byteSize int64) {
	t.mu.Lock()
	e.lastGrowth = at
	t.mu.Unlock()

	if e.ID == 0 {
		return
	}
	if err := t.repo.GrowArchiveSegment(e.ID, at.Sub(e.StartTime).Seconds(), byteSize); err != nil {
		t.logger.With().WithError(err).Warn("grow archive segment")
	}
}

// CloseSegment marks e closed with its true end time.
func (t *Timeline) CloseSegment(e *Entry, end time.Time, byteSize int64) {
	t.mu.Lock()
	e.Open = false
	e.EndTime = end
	delete(t.open, e.ID)
	t.mu.Unlock()

	if e.ID == 0 {
		return
	}
	if err := t.repo.CloseArchiveSegment(e.ID, end.Sub(e.StartTime).Seconds(), byteSize); err != nil {
		t.logger.With().WithError(err).Error("close archive segment")
	}
}

// SweepStale closes any open segment that hasn't grown in StaleAfter,
// stamping its end at the last observed growth (spec.md §4.4).
func (t *Timeline) SweepStale(now time.Time) []*Entry {
	t.mu.Lock()
	var stale []*Entry
	for id, e := range t.open {
		if now.Sub(e.lastGrowth) > StaleAfter {
			e.Open = false
			e.EndTime = e.lastGrowth
			delete(t.open, id)
			stale = append(stale, e)
		}
	}
	t.mu.Unlock()

	for _, e := range stale {
		if e.ID == 0 {
			continue
		}
		if err := t.repo.CloseArchiveSegment(e.ID, e.EndTime.Sub(e.StartTime).Seconds(), 0); err != nil {
			t.logger.With().WithError(err).Error("close stale archive segment")
		}
	}
	return stale
}

// ListResult is one window-clipped timeline entry returned by List.
type ListResult struct {
	Start    time.Time
	End      time.Time
	Filename string
}

// List returns the contiguous set of segments covering the 24h window
// [dayStart, dayStart+24h), clipped to that window (spec.md §4.4).
func (t *Timeline) List(cameraID uint, dayStart time.Time) ([]ListResult, error) {
	windowEnd := dayStart.Add(24 * time.Hour)
	segs, err := t.repo.ArchiveSegmentsOverlapping(cameraID, dayStart, windowEnd)
	if err != nil {
		return nil, err
	}

	var out []ListResult
	for _, seg := range segs {
		end := seg.StartTime.Add(time.Duration(seg.DurationS * float64(time.Second)))
		if seg.Open {
			end = time.Now()
		}
		if end.Before(dayStart) || seg.StartTime.After(windowEnd) {
			continue
		}
		start := seg.StartTime
		if start.Before(dayStart) {
			start = dayStart
		}
		if end.After(windowEnd) {
			end = windowEnd
		}
		out = append(out, ListResult{Start: start, End: end, Filename: seg.Filename})
	}
	return out, nil
}

// Seek returns the filename and offset-in-seconds of the segment covering
// at, or a KindOwnership "not found" error if none does (spec.md §4.4).
func (t *Timeline) Seek(cameraID uint, at time.Time) (filename string, offsetSeconds float64, err error) {
	seg, err := t.repo.ArchiveSegmentCovering(cameraID, at)
	if err != nil {
		return "", 0, err
	}
	if seg != nil {
		end := seg.StartTime.Add(time.Duration(seg.DurationS * float64(time.Second)))
		if seg.Open {
			end = time.Now()
		}
		if !at.Before(seg.StartTime) && at.Before(end) {
			return seg.Filename, at.Sub(seg.StartTime).Seconds(), nil
		}
	}
	return "", 0, apperr.NotFound(fmt.Sprintf("no segment for camera %d covers %s", cameraID, at))
}

// Files returns, oldest first, every rolled file whose interval overlaps
// [start, end), so a clip spanning a segment boundary can be stitched from
// more than one file (spec.md C6).
func (t *Timeline) Files(cameraID uint, start, end time.Time) ([]ArchiveFile, error) {
	segs, err := t.repo.ArchiveSegmentsOverlapping(cameraID, start, end)
	if err != nil {
		return nil, err
	}
	out := make([]ArchiveFile, 0, len(segs))
	for _, seg := range segs {
		out = append(out, ArchiveFile{Filename: seg.Filename, Start: seg.StartTime})
	}
	return out, nil
}
