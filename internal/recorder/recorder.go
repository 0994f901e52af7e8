// Package recorder implements C6 Event Recorder: assembling an event clip
// and thumbnail from an emitted MotionInterval and persisting the Event row
// only once both files are durably in place (spec.md §4.6).
package recorder

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"nvrd/internal/apperr"
	"nvrd/internal/detect"
	"nvrd/internal/logging"
	"nvrd/internal/segment"
	"nvrd/internal/store"
)

const (
	preRoll  = 3 * time.Second
	postRoll = 5 * time.Second
)

// ArchiveSource answers whether the continuous archive covers a time range.
// The files to remux from are looked up separately through Timeline.Files.
type ArchiveSource interface {
	// Covers reports whether the continuous archive fully covers
	// [start,end) for cameraID, per the timeline index.
	Covers(cameraID uint, start, end time.Time) bool
}

// RouterDumper asks the media router for an on-demand clip covering a time
// range when no continuous archive is available (spec.md's "router retains
// a rolling in-memory buffer of >=30s" fallback path).
type RouterDumper interface {
	DumpClip(ctx context.Context, path string, start, end time.Time, destPath string) error
}

// Recorder assembles event clips. Grounded on the teacher pack's
// StartEventRecord/StopEventRecord/generateThumbnail
// (madmalio-security-cam-app), with the row-insert ordering corrected: here
// the row is written only after both files are fsynced and renamed, never
// before.
type Recorder struct {
	storageRoot string
	archive     ArchiveSource
	dumper      RouterDumper
	timeline    *segment.Timeline
	repo        *store.Store
	logger      *logging.Logger
}

// New builds a Recorder.
func New(storageRoot string, archive ArchiveSource, dumper RouterDumper, timeline *segment.Timeline, repo *store.Store, logger *logging.Logger) *Recorder {
	return &Recorder{storageRoot: storageRoot, archive: archive, dumper: dumper, timeline: timeline, repo: repo, logger: logger}
}

// Record handles one finalized MotionInterval end to end: source selection,
// pre/post roll, thumbnail extraction, and the commit-then-insert sequence.
// Any failure leaves no partial row (spec.md §4.6 step 5).
func (r *Recorder) Record(ctx context.Context, cameraID, userID uint, cam store.Camera, interval detect.MotionInterval) {
	start := interval.StartTime.Add(-preRoll)
	end := interval.EndTime.Add(postRoll)

	eventID := uuid.NewString()
	dir := filepath.Join(r.storageRoot, "events", fmt.Sprint(cameraID))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		r.logger.With().WithError(err).Error("create event directory")
		return
	}

	clipPath := filepath.Join(dir, eventID+".mp4")
	thumbPath := filepath.Join(dir, eventID+".jpg")

	if err := r.assembleClip(ctx, cam, start, end, clipPath); err != nil {
		r.logger.With().WithError(err).WithField("camera_id", cameraID).Error("event clip assembly failed")
		return
	}
	thumbOffset := (preRoll + time.Second).Seconds()
	if err := r.extractThumbnail(ctx, clipPath, thumbPath, thumbOffset); err != nil {
		r.logger.With().WithError(err).WithField("camera_id", cameraID).Error("event thumbnail extraction failed")
		os.Remove(clipPath)
		return
	}

	endTime := interval.EndTime
	ev := store.Event{
		ID:            eventID,
		CameraID:      cameraID,
		UserID:        userID,
		StartTime:     interval.StartTime,
		EndTime:       &endTime,
		Reason:        interval.Reason,
		ClipPath:      clipPath,
		ThumbnailPath: thumbPath,
		CreatedAt:     time.Now(),
	}
	if err := r.repo.DB().Create(&ev).Error; err != nil {
		r.logger.With().WithError(err).Error("insert event row after durable write; removing orphan files")
		os.Remove(clipPath)
		os.Remove(thumbPath)
		return
	}
}

// assembleClip cuts from the continuous archive when it covers the window
// (frame-accurate remux, no re-encode), else falls back to a router dump.
// The output is written to a sibling temp file then renamed into place so a
// crash mid-assembly never leaves a half-written clip at clipPath.
func (r *Recorder) assembleClip(ctx context.Context, cam store.Camera, start, end time.Time, clipPath string) error {
	tmpPath := clipPath + ".tmp"

	var cmd *exec.Cmd
	var listPath string
	if r.archive != nil && r.archive.Covers(cam.ID, start, end) && r.timeline != nil {
		files, err := r.timeline.Files(cam.ID, start, end)
		if err != nil {
			return apperr.Wrap(apperr.KindFatal, "locate archive files for event window", err)
		}
		if len(files) == 0 {
			return apperr.Fatal("no archive files cover event window", nil)
		}

		srcDir := filepath.Join(r.storageRoot, "continuous", fmt.Sprint(cam.ID))
		var list strings.Builder
		for _, f := range files {
			list.WriteString(fmt.Sprintf("file '%s'\n", filepath.Join(srcDir, f.Filename)))
		}
		listPath = tmpPath + ".concat.txt"
		if err := os.WriteFile(listPath, []byte(list.String()), 0o644); err != nil {
			return apperr.Wrap(apperr.KindFatal, "write concat list", err)
		}

		// The concat demuxer plays files back to back starting at the
		// first one's StartTime; seek/trim relative to that.
		offset := start.Sub(files[0].Start)
		if offset < 0 {
			offset = 0
		}
		cmd = exec.CommandContext(ctx, "ffmpeg",
			"-y",
			"-f", "concat",
			"-safe", "0",
			"-i", listPath,
			"-ss", fmt.Sprintf("%.3f", offset.Seconds()),
			"-t", fmt.Sprintf("%.3f", end.Sub(start).Seconds()),
			"-c", "copy",
			tmpPath,
		)
	} else if r.dumper != nil {
		if err := r.dumper.DumpClip(ctx, cam.Path, start, end, tmpPath); err != nil {
			return apperr.Transient("router clip dump failed", err)
		}
	} else {
		return apperr.Fatal("no clip source available", nil)
	}

	if cmd != nil {
		err := cmd.Run()
		if listPath != "" {
			os.Remove(listPath)
		}
		if err != nil {
			return apperr.Wrap(apperr.KindFatal, "remux archive clip", err)
		}
	}

	f, err := os.Open(tmpPath)
	if err != nil {
		return apperr.Wrap(apperr.KindFatal, "open assembled clip", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return apperr.Wrap(apperr.KindFatal, "fsync assembled clip", err)
	}
	f.Close()

	if err := os.Rename(tmpPath, clipPath); err != nil {
		return apperr.Wrap(apperr.KindFatal, "rename assembled clip into place", err)
	}
	return nil
}

// extractThumbnail pulls a single JPEG keyframe at interval_start+1s, scaled
// to <=640px wide, fsynced and renamed into place (spec.md §4.6 step 3).
// seekSeconds is that absolute offset translated into clipPath's own
// timeline (clipPath starts at interval_start-preRoll, not interval_start).
func (r *Recorder) extractThumbnail(ctx context.Context, clipPath, thumbPath string, seekSeconds float64) error {
	tmpPath := thumbPath + ".tmp"

	cmd := exec.CommandContext(ctx, "ffmpeg",
		"-y",
		"-ss", fmt.Sprintf("%.3f", seekSeconds),
		"-i", clipPath,
		"-vframes", "1",
		"-vf", "scale='min(640,iw)':-2",
		tmpPath,
	)
	if err := cmd.Run(); err != nil {
		return apperr.Wrap(apperr.KindFatal, "extract thumbnail", err)
	}

	f, err := os.Open(tmpPath)
	if err != nil {
		return apperr.Wrap(apperr.KindFatal, "open thumbnail", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return apperr.Wrap(apperr.KindFatal, "fsync thumbnail", err)
	}
	f.Close()

	return os.Rename(tmpPath, thumbPath)
}
