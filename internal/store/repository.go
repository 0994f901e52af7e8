package store

import (
	"crypto/rand"
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"

	"nvrd/internal/apperr"
)

const pathAlphabet = "abcdefghijklmnopqrstuvwxyz0123456789"
const pathLength = 8
const maxPathAttempts = 5

// Store is the C1 Path Store repository: relational persistence of the
// entities in spec.md §3, plus the path-assignment, reorder and cascade
// contracts of spec.md §4.1.
type Store struct {
	db *gorm.DB
}

// New wraps an open *gorm.DB.
func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// DB exposes the underlying handle for callers that need raw queries
// (the API layer's filtered list endpoints).
func (s *Store) DB() *gorm.DB { return s.db }

func randomPath() (string, error) {
	b := make([]byte, pathLength)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	out := make([]byte, pathLength)
	for i, v := range b {
		out[i] = pathAlphabet[int(v)%len(pathAlphabet)]
	}
	return string(out), nil
}

// CreateCamera assigns a unique path and inserts the camera, retrying up to
// maxPathAttempts times on a path collision before giving up with Conflict
// (spec.md §4.1).
func (s *Store) CreateCamera(cam *Camera) error {
	for attempt := 0; attempt < maxPathAttempts; attempt++ {
		path, err := randomPath()
		if err != nil {
			return apperr.Fatal("generate stream path", err)
		}
		cam.Path = path

		err = s.db.Create(cam).Error
		if err == nil {
			return nil
		}
		if isUniqueViolation(err) {
			continue
		}
		return apperr.Wrap(apperr.KindFatal, "create camera", err)
	}
	return apperr.Conflict("could not assign a unique stream path")
}

func isUniqueViolation(err error) bool {
	// Matches the unique-violation substrings that sqlite and postgres
	// drivers put in their error messages, rather than a typed sentinel.
	if err == nil {
		return false
	}
	msg := err.Error()
	for _, needle := range []string{"UNIQUE constraint", "duplicate key value", "violates unique constraint"} {
		if strings.Contains(msg, needle) {
			return true
		}
	}
	return false
}

// ReorderCameras assigns display_order equal to each camera's position in
// ids, transactionally, and only for cameras owned by ownerID (spec.md §4.1).
func (s *Store) ReorderCameras(ownerID uint, ids []uint) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		for position, id := range ids {
			res := tx.Model(&Camera{}).
				Where("id = ? AND owner_id = ?", id, ownerID).
				Update("display_order", position)
			if res.Error != nil {
				return apperr.Wrap(apperr.KindFatal, "reorder cameras", res.Error)
			}
			if res.RowsAffected == 0 {
				return apperr.Ownership("camera not found")
			}
		}
		return nil
	})
}

// DeleteCamera removes a camera's row and cascades to its events and
// segments in one transaction (spec.md §4.1, §3 Ownership). File cleanup is
// the caller's responsibility via a deferred sweep, per spec.md §3.
func (s *Store) DeleteCamera(ownerID, id uint) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		var cam Camera
		if err := tx.Where("id = ? AND owner_id = ?", id, ownerID).First(&cam).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperr.Ownership("camera not found")
			}
			return apperr.Wrap(apperr.KindFatal, "load camera", err)
		}
		if err := tx.Where("camera_id = ?", id).Delete(&Event{}).Error; err != nil {
			return apperr.Wrap(apperr.KindFatal, "cascade delete events", err)
		}
		if err := tx.Where("camera_id = ?", id).Delete(&ArchiveSegment{}).Error; err != nil {
			return apperr.Wrap(apperr.KindFatal, "cascade delete segments", err)
		}
		if err := tx.Delete(&cam).Error; err != nil {
			return apperr.Wrap(apperr.KindFatal, "delete camera", err)
		}
		return nil
	})
}

// DeleteUser removes a user and cascades to their cameras (and, transitively,
// those cameras' events/segments) in one transaction.
func (s *Store) DeleteUser(id uint) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		var camIDs []uint
		if err := tx.Model(&Camera{}).Where("owner_id = ?", id).Pluck("id", &camIDs).Error; err != nil {
			return apperr.Wrap(apperr.KindFatal, "list cameras", err)
		}
		if len(camIDs) > 0 {
			if err := tx.Where("camera_id IN ?", camIDs).Delete(&Event{}).Error; err != nil {
				return apperr.Wrap(apperr.KindFatal, "cascade delete events", err)
			}
			if err := tx.Where("camera_id IN ?", camIDs).Delete(&ArchiveSegment{}).Error; err != nil {
				return apperr.Wrap(apperr.KindFatal, "cascade delete segments", err)
			}
			if err := tx.Where("owner_id = ?", id).Delete(&Camera{}).Error; err != nil {
				return apperr.Wrap(apperr.KindFatal, "cascade delete cameras", err)
			}
		}
		if err := tx.Where("id = ?", id).Delete(&User{}).Error; err != nil {
			return apperr.Wrap(apperr.KindFatal, "delete user", err)
		}
		return nil
	})
}

// SessionValid reports whether a session is usable right now: it exists,
// isn't individually revoked, hasn't expired, and was created on/after the
// owner's tokens_valid_from cutoff (spec.md §4.1, §8 logout-all invariant).
func (s *Store) SessionValid(jti string, now time.Time) (bool, *Session, error) {
	var sess Session
	if err := s.db.First(&sess, "jti = ?", jti).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, nil, nil
		}
		return false, nil, apperr.Wrap(apperr.KindFatal, "load session", err)
	}
	if sess.Revoked || now.After(sess.ExpiresAt) {
		return false, &sess, nil
	}
	var user User
	if err := s.db.First(&user, sess.UserID).Error; err != nil {
		return false, &sess, apperr.Wrap(apperr.KindFatal, "load session owner", err)
	}
	if sess.CreatedAt.Before(user.TokensValidFrom) {
		return false, &sess, nil
	}
	return true, &sess, nil
}

// BumpTokensValidFrom revokes all of a user's previously issued access
// tokens by moving the cutoff to now (spec.md §4.9 logout-all).
func (s *Store) BumpTokensValidFrom(userID uint, now time.Time) error {
	return s.db.Model(&User{}).Where("id = ?", userID).Update("tokens_valid_from", now).Error
}

// CreateArchiveSegment inserts an open ArchiveSegment row the moment the
// segmenter starts writing a new file, so the timeline index survives a
// restart (spec.md §3, §4.4).
func (s *Store) CreateArchiveSegment(seg *ArchiveSegment) error {
	seg.Open = true
	if err := s.db.Create(seg).Error; err != nil {
		return apperr.Wrap(apperr.KindFatal, "create archive segment", err)
	}
	return nil
}

// GrowArchiveSegment updates a still-open segment's observed duration as
// ffmpeg keeps writing to it.
func (s *Store) GrowArchiveSegment(id uint, durationS float64, byteSize int64) error {
	err := s.db.Model(&ArchiveSegment{}).Where("id = ?", id).Updates(map[string]any{
		"duration_s": durationS,
		"byte_size":  byteSize,
	}).Error
	if err != nil {
		return apperr.Wrap(apperr.KindFatal, "grow archive segment", err)
	}
	return nil
}

// CloseArchiveSegment marks a segment closed with its final duration, once
// ffmpeg rolls to the next file or the worker shuts down.
func (s *Store) CloseArchiveSegment(id uint, durationS float64, byteSize int64) error {
	err := s.db.Model(&ArchiveSegment{}).Where("id = ?", id).Updates(map[string]any{
		"duration_s": durationS,
		"byte_size":  byteSize,
		"open":       false,
	}).Error
	if err != nil {
		return apperr.Wrap(apperr.KindFatal, "close archive segment", err)
	}
	return nil
}

// ArchiveSegmentsForDay returns every segment for cameraID whose start falls
// within [dayStart, dayStart+24h), oldest first. A segment that starts before
// dayStart is not returned even if it runs into the day; Timeline.List uses
// ArchiveSegmentsOverlapping for the per-day recordings listing.
func (s *Store) ArchiveSegmentsForDay(cameraID uint, dayStart time.Time) ([]ArchiveSegment, error) {
	var segs []ArchiveSegment
	dayEnd := dayStart.Add(24 * time.Hour)
	err := s.db.Where("camera_id = ? AND start_time >= ? AND start_time < ?", cameraID, dayStart, dayEnd).
		Order("start_time ASC").Find(&segs).Error
	if err != nil {
		return nil, apperr.Wrap(apperr.KindFatal, "list archive segments", err)
	}
	return segs, nil
}

// ArchiveSegmentCovering returns the latest segment for cameraID that starts
// at or before at, if any (spec.md C6 archive lookup for clip assembly). It
// does not check the segment's end; Timeline.Seek confirms that at falls
// inside it.
func (s *Store) ArchiveSegmentCovering(cameraID uint, at time.Time) (*ArchiveSegment, error) {
	var seg ArchiveSegment
	err := s.db.Where("camera_id = ? AND start_time <= ?", cameraID, at).
		Order("start_time DESC").First(&seg).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, apperr.Wrap(apperr.KindFatal, "find archive segment", err)
	}
	return &seg, nil
}

// ArchiveSegmentsOverlapping returns every segment for cameraID whose
// interval overlaps [start, end), oldest first, so callers can stitch a
// clip that spans more than one rolled file.
func (s *Store) ArchiveSegmentsOverlapping(cameraID uint, start, end time.Time) ([]ArchiveSegment, error) {
	var segs []ArchiveSegment
	err := s.db.Where("camera_id = ? AND start_time < ?", cameraID, end).
		Order("start_time ASC").Find(&segs).Error
	if err != nil {
		return nil, apperr.Wrap(apperr.KindFatal, "list archive segments", err)
	}
	out := segs[:0]
	for _, seg := range segs {
		segEnd := seg.StartTime.Add(time.Duration(seg.DurationS * float64(time.Second)))
		if seg.Open || segEnd.After(start) {
			out = append(out, seg)
		}
	}
	return out, nil
}
