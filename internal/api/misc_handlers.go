package api

import (
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/mem"

	"nvrd/internal/apperr"
	"nvrd/internal/detect"
	"nvrd/internal/store"
)

func removeFile(path string) {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return
	}
}

// WebRTCCreds handles GET /api/webrtc-creds: {user,pass} valid 60s (C8).
func (s *Server) WebRTCCreds(c *gin.Context) {
	cred, err := s.whepBridge.Mint()
	if err != nil {
		respondError(c, apperr.Transient("could not mint a WHEP credential", err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": cred.User, "pass": cred.Pass})
}

// Download handles GET /api/download?path=...: streams a file, strictly
// validating that path resolves under the storage root and belongs to one
// of the caller's own cameras (spec.md §6).
func (s *Server) Download(c *gin.Context) {
	raw := c.Query("path")
	if raw == "" {
		respondError(c, apperr.Validation("path is required"))
		return
	}

	root, err := filepath.Abs(s.cfg.Storage.Root)
	if err != nil {
		respondError(c, apperr.Fatal("resolve storage root", err))
		return
	}
	full, err := filepath.Abs(filepath.Join(root, raw))
	if err != nil || !strings.HasPrefix(full, root+string(os.PathSeparator)) {
		respondError(c, apperr.Validation("path escapes storage root"))
		return
	}

	cameraID, ok := cameraIDFromStoragePath(root, full)
	if !ok {
		respondError(c, apperr.Validation("path does not reference a camera's storage"))
		return
	}
	if _, err := s.loadOwnedCamera(c, cameraID); err != nil {
		respondError(c, err)
		return
	}

	if _, err := os.Stat(full); err != nil {
		respondError(c, apperr.Ownership("file not found"))
		return
	}
	c.File(full)
}

// cameraIDFromStoragePath extracts the camera id segment from
// <root>/continuous/<id>/... or <root>/events/<id>/....
func cameraIDFromStoragePath(root, full string) (uint, bool) {
	rel, err := filepath.Rel(root, full)
	if err != nil {
		return 0, false
	}
	parts := strings.Split(filepath.ToSlash(rel), "/")
	if len(parts) < 3 {
		return 0, false
	}
	if parts[0] != "continuous" && parts[0] != "events" {
		return 0, false
	}
	id, err := parseUintStrict(parts[1])
	if err != nil {
		return 0, false
	}
	return id, true
}

func parseUintStrict(s string) (uint, error) {
	var n uint64
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0, apperr.Validation("invalid camera id segment")
		}
		n = n*10 + uint64(r-'0')
	}
	return uint(n), nil
}

type healthResponse struct {
	CPUPercent  float64 `json:"cpu_percent"`
	MemTotal    uint64  `json:"mem_total"`
	MemUsed     uint64  `json:"mem_used"`
	DiskTotal   uint64  `json:"disk_total"`
	DiskFree    uint64  `json:"disk_free"`
	UptimeSecs  uint64  `json:"uptime_seconds"`
}

// SystemHealth handles GET /api/system/health: CPU%, memory, disk
// totals/free, uptime (spec.md §6), reported via gopsutil.
func (s *Server) SystemHealth(c *gin.Context) {
	resp := healthResponse{}

	if pct, err := cpu.Percent(0, false); err == nil && len(pct) > 0 {
		resp.CPUPercent = pct[0]
	}
	if vm, err := mem.VirtualMemory(); err == nil {
		resp.MemTotal = vm.Total
		resp.MemUsed = vm.Used
	}
	if du, err := disk.Usage(s.cfg.Storage.Root); err == nil {
		resp.DiskTotal = du.Total
		resp.DiskFree = du.Free
	}
	if info, err := host.Info(); err == nil {
		resp.UptimeSecs = info.Uptime
	}

	c.JSON(http.StatusOK, resp)
}

type settingsResponse struct {
	RetentionDays int     `json:"retention_days"`
	DiskFreeFloor float64 `json:"disk_free_floor"`
}

// GetSettings handles GET /api/system/settings.
func (s *Server) GetSettings(c *gin.Context) {
	var settings store.SystemSettings
	if err := s.repo.DB().First(&settings, 1).Error; err != nil {
		respondError(c, apperr.Fatal("load settings", err))
		return
	}
	c.JSON(http.StatusOK, settingsResponse{RetentionDays: settings.RetentionDays, DiskFreeFloor: settings.DiskFreeFloor})
}

type updateSettingsRequest struct {
	RetentionDays *int     `json:"retention_days"`
	DiskFreeFloor *float64 `json:"disk_free_floor"`
}

// UpdateSettings handles PUT /api/system/settings: {retention_days} -> settings.
func (s *Server) UpdateSettings(c *gin.Context) {
	var req updateSettingsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, apperr.Validation(err.Error()))
		return
	}

	var settings store.SystemSettings
	if err := s.repo.DB().First(&settings, 1).Error; err != nil {
		respondError(c, apperr.Fatal("load settings", err))
		return
	}
	if req.RetentionDays != nil {
		settings.RetentionDays = *req.RetentionDays
	}
	if req.DiskFreeFloor != nil {
		settings.DiskFreeFloor = *req.DiskFreeFloor
	}
	if err := s.repo.DB().Save(&settings).Error; err != nil {
		respondError(c, apperr.Fatal("save settings", err))
		return
	}
	c.JSON(http.StatusOK, settingsResponse{RetentionDays: settings.RetentionDays, DiskFreeFloor: settings.DiskFreeFloor})
}

const webhookExtendWindow = 10 * time.Second

// MotionWebhook handles POST /api/webhook/motion/{path}: behaves as if C5
// emitted a fixed 10s interval, extensible by repeat calls within the
// window (spec.md §6, §4.9).
func (s *Server) MotionWebhook(c *gin.Context) {
	path := c.Param("path")

	var cam store.Camera
	if err := s.repo.DB().Where("path = ?", path).First(&cam).Error; err != nil {
		respondError(c, apperr.Ownership("unknown camera path"))
		return
	}

	now := time.Now()

	s.webhookMu.Lock()
	burst, inBurst := s.webhookBursts[path]
	if !inBurst || now.Sub(burst.lastAt) > webhookExtendWindow {
		burst = webhookBurst{startAt: now}
	}
	burst.lastAt = now
	burstStart := burst.startAt
	s.webhookBursts[path] = burst
	s.webhookMu.Unlock()

	interval := detect.MotionInterval{
		CameraID:  cam.ID,
		StartTime: burstStart,
		EndTime:   now.Add(webhookExtendWindow),
		Reason:    "webhook",
	}
	s.publishMotionInterval(interval)
	if s.onWebhookInterval != nil {
		s.onWebhookInterval(interval)
	}

	c.Status(http.StatusNoContent)
}
