package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"nvrd/internal/apperr"
	"nvrd/internal/store"
)

type eventResponse struct {
	ID            string     `json:"id"`
	CameraID      uint       `json:"camera_id"`
	StartTime     time.Time  `json:"start_time"`
	EndTime       *time.Time `json:"end_time,omitempty"`
	Reason        string     `json:"reason"`
	ClipURL       string     `json:"clip_url,omitempty"`
	ThumbnailURL  string     `json:"thumbnail_url,omitempty"`
}

func toEventResponse(ev store.Event) eventResponse {
	out := eventResponse{
		ID:        ev.ID,
		CameraID:  ev.CameraID,
		StartTime: ev.StartTime,
		EndTime:   ev.EndTime,
		Reason:    ev.Reason,
	}
	if ev.ClipPath != "" {
		out.ClipURL = "/api/download?path=" + ev.ClipPath
	}
	if ev.ThumbnailPath != "" {
		out.ThumbnailURL = "/api/download?path=" + ev.ThumbnailPath
	}
	return out
}

// eventFilterQuery applies the camera_id/start_ts/end_ts filters shared by
// ListEvents and EventsSummary, always scoped to the caller's own cameras.
func (s *Server) eventFilterQuery(c *gin.Context) *gorm.DB {
	q := s.repo.DB().Model(&store.Event{}).
		Joins("JOIN cameras ON cameras.id = events.camera_id").
		Where("cameras.owner_id = ?", currentUserID(c))

	if cidStr := c.Query("camera_id"); cidStr != "" {
		if cid, err := strconv.ParseUint(cidStr, 10, 64); err == nil {
			q = q.Where("events.camera_id = ?", cid)
		}
	}
	if startStr := c.Query("start_ts"); startStr != "" {
		if ts, err := strconv.ParseInt(startStr, 10, 64); err == nil {
			q = q.Where("events.start_time >= ?", time.Unix(ts, 0).UTC())
		}
	}
	if endStr := c.Query("end_ts"); endStr != "" {
		if ts, err := strconv.ParseInt(endStr, 10, 64); err == nil {
			q = q.Where("events.start_time <= ?", time.Unix(ts, 0).UTC())
		}
	}
	return q.Order("events.start_time DESC")
}

// ListEvents handles GET /api/events?camera_id=&start_ts=&end_ts=.
func (s *Server) ListEvents(c *gin.Context) {
	var events []store.Event
	if err := s.eventFilterQuery(c).Find(&events).Error; err != nil {
		respondError(c, apperr.Fatal("list events", err))
		return
	}
	out := make([]eventResponse, len(events))
	for i, ev := range events {
		out[i] = toEventResponse(ev)
	}
	c.JSON(http.StatusOK, out)
}

type eventSummary struct {
	ID        string     `json:"id"`
	CameraID  uint       `json:"camera_id"`
	StartTime time.Time  `json:"start_time"`
	EndTime   *time.Time `json:"end_time,omitempty"`
	Reason    string     `json:"reason"`
}

// EventsSummary handles GET /api/events/summary: the same filters, a
// minimal projection.
func (s *Server) EventsSummary(c *gin.Context) {
	var events []store.Event
	if err := s.eventFilterQuery(c).Find(&events).Error; err != nil {
		respondError(c, apperr.Fatal("summarize events", err))
		return
	}
	out := make([]eventSummary, len(events))
	for i, ev := range events {
		out[i] = eventSummary{ID: ev.ID, CameraID: ev.CameraID, StartTime: ev.StartTime, EndTime: ev.EndTime, Reason: ev.Reason}
	}
	c.JSON(http.StatusOK, out)
}

// loadOwnedEvent fetches an event scoped to the caller's own cameras.
func (s *Server) loadOwnedEvent(c *gin.Context, id string) (store.Event, error) {
	var ev store.Event
	err := s.repo.DB().
		Joins("JOIN cameras ON cameras.id = events.camera_id").
		Where("events.id = ? AND cameras.owner_id = ?", id, currentUserID(c)).
		First(&ev).Error
	if err != nil {
		return ev, apperr.Ownership("event not found")
	}
	return ev, nil
}

func (s *Server) deleteEventFiles(ev store.Event) {
	if ev.ClipPath != "" {
		removeFile(ev.ClipPath)
	}
	if ev.ThumbnailPath != "" {
		removeFile(ev.ThumbnailPath)
	}
}

// DeleteEvent handles DELETE /api/events/{id}.
func (s *Server) DeleteEvent(c *gin.Context) {
	ev, err := s.loadOwnedEvent(c, c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	if err := s.repo.DB().Delete(&store.Event{}, "id = ?", ev.ID).Error; err != nil {
		respondError(c, apperr.Fatal("delete event", err))
		return
	}
	s.deleteEventFiles(ev)
	c.Status(http.StatusNoContent)
}

type batchDeleteRequest struct {
	EventIDs []string `json:"event_ids" binding:"required"`
}

// BatchDeleteEvents handles POST /api/events/batch-delete: idempotent bulk
// delete (spec.md §6) — ids that don't exist or aren't owned are silently
// skipped rather than failing the whole batch.
func (s *Server) BatchDeleteEvents(c *gin.Context) {
	var req batchDeleteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, apperr.Validation(err.Error()))
		return
	}

	deleted := 0
	for _, id := range req.EventIDs {
		ev, err := s.loadOwnedEvent(c, id)
		if err != nil {
			continue
		}
		if err := s.repo.DB().Delete(&store.Event{}, "id = ?", ev.ID).Error; err != nil {
			continue
		}
		s.deleteEventFiles(ev)
		deleted++
	}
	c.JSON(http.StatusOK, gin.H{"deleted": deleted})
}
