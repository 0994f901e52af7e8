// Package retention implements C7 Retention Reaper: the 60s sweep that
// deletes archive segments and events past their retention horizon, plus
// the low-disk aggressive-deletion mode (spec.md §4.7).
package retention

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gorm.io/gorm"

	"nvrd/internal/logging"
	"nvrd/internal/store"
)

const tickInterval = 60 * time.Second
const lowDiskStaleFloor = time.Hour

// DiskStats reports free-space fraction on the storage volume, grounded on
// the gopsutil-backed health reporting used elsewhere in the ambient stack.
type DiskStats interface {
	FreeFraction(path string) (float64, error)
}

// Reaper runs the periodic retention sweep.
type Reaper struct {
	repo        *store.Store
	disk        DiskStats
	storageRoot string
	logger      *logging.Logger
}

// New builds a Reaper.
func New(repo *store.Store, disk DiskStats, storageRoot string, logger *logging.Logger) *Reaper {
	return &Reaper{repo: repo, disk: disk, storageRoot: storageRoot, logger: logger}
}

// Run blocks, ticking every tickInterval until ctx is cancelled.
func (r *Reaper) Run(ctx context.Context) {
	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.sweep()
		}
	}
}

func (r *Reaper) sweep() {
	var settings store.SystemSettings
	if err := r.repo.DB().First(&settings, 1).Error; err != nil {
		r.logger.With().WithError(err).Error("retention sweep: failed to load settings")
		return
	}

	horizon := time.Now().Add(-time.Duration(settings.RetentionDays) * 24 * time.Hour)
	r.expireSegments(horizon)
	r.expireEvents(horizon)

	if r.disk == nil {
		return
	}
	free, err := r.disk.FreeFraction(r.storageRoot)
	if err != nil {
		r.logger.With().WithError(err).Warn("retention sweep: failed to read disk stats")
		return
	}
	floor := settings.DiskFreeFloor
	if floor <= 0 {
		floor = 0.05
	}
	if free < floor {
		r.aggressiveSweep()
	}
}

// expireSegments deletes, for every camera, any closed segment whose
// implied end (start + duration) is before horizon: files first, then the
// row, per spec.md's ordering invariant.
func (r *Reaper) expireSegments(horizon time.Time) {
	var segs []store.ArchiveSegment
	if err := r.repo.DB().Where("open = ? AND start_time < ?", false, horizon).Find(&segs).Error; err != nil {
		r.logger.With().WithError(err).Error("retention sweep: query segments")
		return
	}
	for _, seg := range segs {
		end := seg.StartTime.Add(time.Duration(seg.DurationS) * time.Second)
		if !end.Before(horizon) {
			continue
		}
		r.deleteSegment(seg)
	}
}

func (r *Reaper) deleteSegment(seg store.ArchiveSegment) {
	path := filepath.Join(r.storageRoot, "continuous", fmt.Sprint(seg.CameraID), seg.Filename)
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		r.logger.With().WithError(err).WithField("segment_id", seg.ID).Warn("retention sweep: failed to remove segment file")
		return
	}
	if err := r.repo.DB().Delete(&store.ArchiveSegment{}, seg.ID).Error; err != nil {
		r.logger.With().WithError(err).WithField("segment_id", seg.ID).Error("retention sweep: failed to delete segment row after removing file")
	}
}

func (r *Reaper) expireEvents(horizon time.Time) {
	var events []store.Event
	if err := r.repo.DB().Where("end_time IS NOT NULL AND end_time < ?", horizon).Find(&events).Error; err != nil {
		r.logger.With().WithError(err).Error("retention sweep: query events")
		return
	}
	for _, ev := range events {
		r.deleteEvent(ev)
	}
}

func (r *Reaper) deleteEvent(ev store.Event) {
	if ev.ClipPath != "" {
		if err := os.Remove(ev.ClipPath); err != nil && !os.IsNotExist(err) {
			r.logger.With().WithError(err).WithField("event_id", ev.ID).Warn("retention sweep: failed to remove event clip")
			return
		}
	}
	if ev.ThumbnailPath != "" {
		os.Remove(ev.ThumbnailPath)
	}
	if err := r.repo.DB().Delete(&store.Event{}, "id = ?", ev.ID).Error; err != nil {
		r.logger.With().WithError(err).WithField("event_id", ev.ID).Error("retention sweep: failed to delete event row after removing files")
	}
}

// aggressiveSweep deletes oldest archive segments across all cameras,
// oldest-first, until free space recovers above 10% or no segments older
// than lowDiskStaleFloor remain (spec.md §4.7). Events are never touched
// here.
func (r *Reaper) aggressiveSweep() {
	staleBefore := time.Now().Add(-lowDiskStaleFloor)

	for {
		free, err := r.disk.FreeFraction(r.storageRoot)
		if err != nil {
			r.logger.With().WithError(err).Warn("aggressive retention sweep: disk stats failed")
			return
		}
		if free > 0.10 {
			return
		}

		var oldest store.ArchiveSegment
		err = r.repo.DB().
			Where("open = ? AND start_time < ?", false, staleBefore).
			Order("start_time ASC").
			First(&oldest).Error
		if err != nil {
			if err == gorm.ErrRecordNotFound {
				r.logger.With().Warn("aggressive retention sweep: low disk but no eligible segments remain")
				return
			}
			r.logger.With().WithError(err).Error("aggressive retention sweep: query oldest segment")
			return
		}

		r.deleteSegment(oldest)
	}
}
