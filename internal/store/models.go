// Package store persists the entities of spec.md §3 (User, Session, Camera,
// ArchiveSegment, Event, SystemSettings) via GORM, and assigns the unique
// stream paths cameras are addressed by (C1, spec.md §4.1).
package store

import (
	"time"
)

// DetectionMode is the consolidated detection mode set from spec.md §9:
// {off, motion, ai}, with webhook treated as an external trigger rather than
// a fourth mode.
type DetectionMode string

const (
	DetectionOff    DetectionMode = "off"
	DetectionMotion DetectionMode = "motion"
	DetectionAI     DetectionMode = "ai"
)

// User is an identity for ownership (spec.md §3).
type User struct {
	ID              uint      `gorm:"primaryKey" json:"id"`
	Email           string    `gorm:"uniqueIndex;not null" json:"email"`
	Password        string    `gorm:"not null" json:"-"`
	DisplayName     string    `gorm:"not null" json:"display_name"`
	TokensValidFrom time.Time `gorm:"not null" json:"-"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`

	Cameras []Camera `gorm:"constraint:OnDelete:CASCADE" json:"-"`
}

// Session is an authenticated device/refresh-token record (spec.md §3).
type Session struct {
	JTI       string    `gorm:"primaryKey" json:"jti"`
	UserID    uint      `gorm:"index;not null" json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
	IP        string    `json:"ip"`
	UserAgent string    `json:"user_agent"`
	Revoked   bool      `gorm:"not null;default:false" json:"revoked"`
}

// ROIMask is a comma-separated list of enabled 0..99 cell indices on the
// detector's 10x10 grid (spec.md §9).
type ROIMask string

// Camera is a configured RTSP source (spec.md §3).
type Camera struct {
	ID                  uint          `gorm:"primaryKey" json:"id"`
	OwnerID             uint          `gorm:"index;not null" json:"owner_id"`
	Name                string        `gorm:"not null" json:"name"`
	RTSPUrl             string        `gorm:"not null" json:"rtsp_url"`
	RTSPSubstreamUrl    string        `json:"rtsp_substream_url,omitempty"`
	Path                string        `gorm:"uniqueIndex;size:8;not null" json:"path"`
	DisplayOrder        int           `gorm:"not null;default:0" json:"display_order"`
	Mode                DetectionMode `gorm:"not null;default:off" json:"mode"`
	Sensitivity         int           `gorm:"not null;default:50" json:"sensitivity"`
	ROI                 ROIMask       `json:"roi"`
	AllowedClasses       string       `json:"allowed_classes"` // comma-joined class ids
	ContinuousRecording bool          `gorm:"not null;default:false" json:"continuous_recording"`
	LastError           string        `json:"last_error,omitempty"`
	CreatedAt           time.Time     `json:"created_at"`
	UpdatedAt           time.Time     `json:"updated_at"`

	Events   []Event          `gorm:"constraint:OnDelete:CASCADE" json:"-"`
	Segments []ArchiveSegment `gorm:"constraint:OnDelete:CASCADE" json:"-"`
}

// ArchiveSegment is one closed (or currently-open) 24/7 recording file
// (spec.md §3/§4.4).
type ArchiveSegment struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	CameraID   uint      `gorm:"index;not null" json:"camera_id"`
	StartTime  time.Time `gorm:"index;not null" json:"start_time"`
	DurationS  float64   `json:"duration_s"` // observed length so far while open, final length once closed
	Filename   string    `gorm:"not null" json:"filename"`
	ByteSize   int64     `json:"byte_size"`
	Open       bool      `gorm:"not null;default:true" json:"open"`
}

// Event is a materialized motion/AI interval (spec.md §3/§4.6).
type Event struct {
	ID            string     `gorm:"primaryKey;size:36" json:"id"`
	CameraID      uint       `gorm:"index;not null" json:"camera_id"`
	UserID        uint       `gorm:"index;not null" json:"user_id"`
	StartTime     time.Time  `gorm:"index;not null" json:"start_time"`
	EndTime       *time.Time `json:"end_time,omitempty"`
	Reason        string     `json:"reason"`
	ClipPath      string     `json:"clip_path,omitempty"`
	ThumbnailPath string     `json:"thumbnail_path,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}

// SystemSettings is the singleton retention/disk-floor configuration
// (spec.md §3). Row id is always 1.
type SystemSettings struct {
	ID            uint    `gorm:"primaryKey" json:"-"`
	RetentionDays int     `gorm:"not null;default:14" json:"retention_days"`
	DiskFreeFloor float64 `gorm:"not null;default:0.05" json:"disk_free_floor"`
}

// AllModels lists every entity for AutoMigrate, in an order that satisfies
// foreign-key creation (parents before children).
func AllModels() []interface{} {
	return []interface{}{
		&User{},
		&Session{},
		&Camera{},
		&ArchiveSegment{},
		&Event{},
		&SystemSettings{},
	}
}
