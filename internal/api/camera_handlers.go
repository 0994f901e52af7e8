package api

import (
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"nvrd/internal/apperr"
	"nvrd/internal/detect"
	"nvrd/internal/ingest"
	"nvrd/internal/router"
	"nvrd/internal/store"
)

type cameraResponse struct {
	ID                  uint   `json:"id"`
	Name                string `json:"name"`
	RTSPUrl             string `json:"rtsp_url"`
	RTSPSubstreamUrl    string `json:"rtsp_substream_url,omitempty"`
	Path                string `json:"path"`
	DisplayOrder        int    `json:"display_order"`
	Mode                string `json:"mode"`
	Sensitivity         int    `json:"sensitivity"`
	ROI                 string `json:"roi"`
	AllowedClasses      string `json:"allowed_classes"`
	ContinuousRecording bool   `json:"continuous_recording"`
	LastError           string `json:"last_error,omitempty"`
}

func toCameraResponse(cam store.Camera) cameraResponse {
	return cameraResponse{
		ID:                  cam.ID,
		Name:                cam.Name,
		RTSPUrl:             cam.RTSPUrl,
		RTSPSubstreamUrl:    cam.RTSPSubstreamUrl,
		Path:                cam.Path,
		DisplayOrder:        cam.DisplayOrder,
		Mode:                string(cam.Mode),
		Sensitivity:         cam.Sensitivity,
		ROI:                 string(cam.ROI),
		AllowedClasses:      cam.AllowedClasses,
		ContinuousRecording: cam.ContinuousRecording,
		LastError:           cam.LastError,
	}
}

// cameraIDParam parses the :id path param, mapping a bad value to Validation.
func cameraIDParam(c *gin.Context) (uint, error) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		return 0, apperr.Validation("invalid camera id")
	}
	return uint(id), nil
}

// loadOwnedCamera fetches a camera, returning Ownership (rendered as 404)
// if it doesn't exist or belongs to another user.
func (s *Server) loadOwnedCamera(c *gin.Context, id uint) (store.Camera, error) {
	var cam store.Camera
	err := s.repo.DB().Where("id = ? AND owner_id = ?", id, currentUserID(c)).First(&cam).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return cam, apperr.Ownership("camera not found")
		}
		return cam, apperr.Fatal("load camera", err)
	}
	return cam, nil
}

// ListCameras handles GET /api/cameras.
func (s *Server) ListCameras(c *gin.Context) {
	var cams []store.Camera
	if err := s.repo.DB().Where("owner_id = ?", currentUserID(c)).Order("display_order ASC").Find(&cams).Error; err != nil {
		respondError(c, apperr.Fatal("list cameras", err))
		return
	}
	out := make([]cameraResponse, len(cams))
	for i, cam := range cams {
		out[i] = toCameraResponse(cam)
	}
	c.JSON(http.StatusOK, out)
}

type createCameraRequest struct {
	Name    string `json:"name" binding:"required"`
	RTSPUrl string `json:"rtsp_url" binding:"required"`
}

// CreateCamera handles POST /api/cameras: {name, rtsp_url} -> camera.
func (s *Server) CreateCamera(c *gin.Context) {
	var req createCameraRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, apperr.Validation(err.Error()))
		return
	}

	cam := store.Camera{
		OwnerID: currentUserID(c),
		Name:    req.Name,
		RTSPUrl: req.RTSPUrl,
		Mode:    store.DetectionOff,
		Sensitivity: 50,
	}
	if err := s.repo.CreateCamera(&cam); err != nil {
		respondError(c, err)
		return
	}

	s.reconcileAll()
	c.JSON(http.StatusCreated, toCameraResponse(cam))
}

type updateCameraRequest struct {
	Name                *string `json:"name"`
	RTSPUrl             *string `json:"rtsp_url"`
	RTSPSubstreamUrl    *string `json:"rtsp_substream_url"`
	Mode                *string `json:"mode"`
	Sensitivity         *int    `json:"sensitivity"`
	ROI                 *string `json:"roi"`
	AllowedClasses      *string `json:"allowed_classes"`
	ContinuousRecording *bool   `json:"continuous_recording"`
}

// UpdateCamera handles PATCH /api/cameras/{id}: partial update. Changes to
// rtsp_url/rtsp_substream_url/mode trigger a C2+C3 reconcile (spec.md §6).
func (s *Server) UpdateCamera(c *gin.Context) {
	id, err := cameraIDParam(c)
	if err != nil {
		respondError(c, err)
		return
	}
	cam, err := s.loadOwnedCamera(c, id)
	if err != nil {
		respondError(c, err)
		return
	}

	var req updateCameraRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, apperr.Validation(err.Error()))
		return
	}

	reconcileNeeded := false
	if req.Name != nil {
		cam.Name = *req.Name
	}
	if req.RTSPUrl != nil && *req.RTSPUrl != cam.RTSPUrl {
		cam.RTSPUrl = *req.RTSPUrl
		reconcileNeeded = true
	}
	if req.RTSPSubstreamUrl != nil && *req.RTSPSubstreamUrl != cam.RTSPSubstreamUrl {
		cam.RTSPSubstreamUrl = *req.RTSPSubstreamUrl
		reconcileNeeded = true
	}
	if req.Mode != nil && store.DetectionMode(*req.Mode) != cam.Mode {
		cam.Mode = store.DetectionMode(*req.Mode)
		reconcileNeeded = true
	}
	if req.Sensitivity != nil && *req.Sensitivity != cam.Sensitivity {
		cam.Sensitivity = *req.Sensitivity
		reconcileNeeded = true
	}
	if req.ROI != nil && store.ROIMask(*req.ROI) != cam.ROI {
		cam.ROI = store.ROIMask(*req.ROI)
		reconcileNeeded = true
	}
	if req.AllowedClasses != nil && *req.AllowedClasses != cam.AllowedClasses {
		cam.AllowedClasses = *req.AllowedClasses
		reconcileNeeded = true
	}
	if req.ContinuousRecording != nil && *req.ContinuousRecording != cam.ContinuousRecording {
		cam.ContinuousRecording = *req.ContinuousRecording
		reconcileNeeded = true
	}

	if err := s.repo.DB().Save(&cam).Error; err != nil {
		respondError(c, apperr.Fatal("update camera", err))
		return
	}

	if reconcileNeeded {
		s.reconcileAll()
	}
	c.JSON(http.StatusOK, toCameraResponse(cam))
}

// Bootstrap pushes every existing camera's desired state into C2/C3/C5 once
// at startup, so cameras configured before a restart resume ingest and
// detection without waiting for their next API-triggered update.
func (s *Server) Bootstrap() {
	s.reconcileAll()
}

// reconcileAll pushes every camera's current desired state into C2 (router
// config sync), C3 (ingest supervisor) and C5 (detection registry).
func (s *Server) reconcileAll() {
	var all []store.Camera
	s.repo.DB().Find(&all)

	specs := make([]router.PathSpec, 0, len(all))
	ingestSpecs := make([]ingest.Spec, 0, len(all))
	detectConfigs := make([]detect.CameraConfig, 0, len(all))
	for _, cc := range all {
		specs = append(specs, router.PathSpec{
			Slug:                cc.Path,
			RTSPUrl:             cc.RTSPUrl,
			ContinuousRecording: cc.ContinuousRecording,
			StorageRoot:         s.cfg.Storage.Root,
			CameraID:            cc.ID,
		})
		ingestSpecs = append(ingestSpecs, ingest.Spec{
			CameraID: cc.ID,
			Path:     cc.Path,
			RTSPUrl:  cc.RTSPUrl,
			Active:   cc.Mode != store.DetectionOff || cc.ContinuousRecording,
		})
		if cc.Mode != store.DetectionOff {
			source := cc.RTSPUrl
			if cc.RTSPSubstreamUrl != "" {
				source = cc.RTSPSubstreamUrl
			}
			detectConfigs = append(detectConfigs, detect.CameraConfig{
				CameraID:       cc.ID,
				SourceURL:      source,
				Mode:           string(cc.Mode),
				Sensitivity:    cc.Sensitivity,
				ROI:            detect.ParseROI(string(cc.ROI)),
				AllowedClasses: detect.ParseAllowedClasses(cc.AllowedClasses),
			})
		}
	}

	if s.routerSync != nil {
		s.routerSync.Request(router.BuildDocument(specs))
	}
	if s.ingestReg != nil {
		s.ingestReg.Reconcile(ingestSpecs)
	}
	if s.detectReg != nil {
		s.detectReg.Reconcile(detectConfigs)
	}
}

// DeleteCamera handles DELETE /api/cameras/{id}: 204 + cascade.
func (s *Server) DeleteCamera(c *gin.Context) {
	id, err := cameraIDParam(c)
	if err != nil {
		respondError(c, err)
		return
	}
	if err := s.repo.DeleteCamera(currentUserID(c), id); err != nil {
		respondError(c, err)
		return
	}
	s.reconcileAll()
	c.Status(http.StatusNoContent)
}

type reorderRequest struct {
	CameraIDs []uint `json:"camera_ids" binding:"required"`
}

// ReorderCameras handles POST /api/cameras/reorder: {camera_ids} -> 204.
func (s *Server) ReorderCameras(c *gin.Context) {
	var req reorderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, apperr.Validation(err.Error()))
		return
	}
	if err := s.repo.ReorderCameras(currentUserID(c), req.CameraIDs); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type testConnectionRequest struct {
	RTSPUrl string `json:"rtsp_url" binding:"required"`
}

// TestConnection handles POST /api/cameras/test-connection: {rtsp_url} ->
// {path}, asking C2 for an ephemeral path (spec.md §4.2, §6).
func (s *Server) TestConnection(c *gin.Context) {
	var req testConnectionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, apperr.Validation(err.Error()))
		return
	}
	path, err := s.testConn.Request(req.RTSPUrl)
	if err != nil {
		respondError(c, apperr.Transient("router could not register a test path", err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"path": path})
}

type recordingEntry struct {
	Filename string    `json:"filename"`
	URL      string    `json:"url"`
	Time     time.Time `json:"time"`
}

// ListRecordings handles GET /api/cameras/{id}/recordings?date_str=YYYY-MM-DD.
func (s *Server) ListRecordings(c *gin.Context) {
	id, err := cameraIDParam(c)
	if err != nil {
		respondError(c, err)
		return
	}
	if _, err := s.loadOwnedCamera(c, id); err != nil {
		respondError(c, err)
		return
	}

	day, err := parseDateStr(c.Query("date_str"), c.Query("tz"))
	if err != nil {
		respondError(c, err)
		return
	}

	results, err := s.timeline.List(id, day)
	if err != nil {
		respondError(c, err)
		return
	}
	out := make([]recordingEntry, len(results))
	for i, r := range results {
		out[i] = recordingEntry{
			Filename: r.Filename,
			URL:      "/api/download?path=" + filepath.Join("continuous", strconv.FormatUint(uint64(id), 10), r.Filename),
			Time:     r.Start,
		}
	}
	c.JSON(http.StatusOK, out)
}

// RecordingsTimeline handles GET /api/cameras/{id}/recordings/timeline.
func (s *Server) RecordingsTimeline(c *gin.Context) {
	id, err := cameraIDParam(c)
	if err != nil {
		respondError(c, err)
		return
	}
	if _, err := s.loadOwnedCamera(c, id); err != nil {
		respondError(c, err)
		return
	}

	day, err := parseDateStr(c.Query("date_str"), c.Query("tz"))
	if err != nil {
		respondError(c, err)
		return
	}
	results, err := s.timeline.List(id, day)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, results)
}

// WipeRecordings handles DELETE /api/cameras/{id}/recordings: wipe all archive.
func (s *Server) WipeRecordings(c *gin.Context) {
	id, err := cameraIDParam(c)
	if err != nil {
		respondError(c, err)
		return
	}
	cam, err := s.loadOwnedCamera(c, id)
	if err != nil {
		respondError(c, err)
		return
	}

	dir := filepath.Join(s.cfg.Storage.Root, "continuous", strconv.FormatUint(uint64(cam.ID), 10))
	if err := os.RemoveAll(dir); err != nil && !os.IsNotExist(err) {
		respondError(c, apperr.Fatal("wipe archive directory", err))
		return
	}
	if err := s.repo.DB().Where("camera_id = ?", cam.ID).Delete(&store.ArchiveSegment{}).Error; err != nil {
		respondError(c, apperr.Fatal("wipe archive rows", err))
		return
	}
	c.Status(http.StatusNoContent)
}

// parseDateStr parses a YYYY-MM-DD date_str as midnight in the caller's tz
// (an IANA zone name, e.g. "UTC" or "America/New_York"), defaulting to the
// server's local zone when tz is empty (spec.md §6, §8 scenario ?tz=UTC).
func parseDateStr(dateStr, tz string) (time.Time, error) {
	if dateStr == "" {
		return time.Time{}, apperr.Validation("date_str is required")
	}
	loc := time.Local
	if tz != "" {
		l, err := time.LoadLocation(tz)
		if err != nil {
			return time.Time{}, apperr.Validation("tz must be a valid IANA timezone")
		}
		loc = l
	}
	t, err := time.ParseInLocation("2006-01-02", dateStr, loc)
	if err != nil {
		return time.Time{}, apperr.Validation("date_str must be YYYY-MM-DD")
	}
	return t.UTC(), nil
}
