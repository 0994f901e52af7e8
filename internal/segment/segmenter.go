package segment

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"

	"nvrd/internal/logging"
)

// Segmenter runs one ffmpeg child per camera that writes rolling,
// quarter-hour-aligned archive files, and keeps the Timeline in sync with
// what's actually on disk. Grounded on the teacher pack's
// madmalio-security-cam-app spawnContinuous (same ffmpeg segment-muxer
// invocation), generalized to watch the output directory (the same
// fsnotify pattern as config.Watcher) so every rolled file gets its own
// timeline entry.
type Segmenter struct {
	storageRoot string
	timeline    *Timeline
	logger      *logging.Logger

	mu      sync.Mutex
	workers map[uint]*segWorker
}

type segWorker struct {
	cancel context.CancelFunc
}

// NewSegmenter builds a Segmenter rooted at storageRoot.
func NewSegmenter(storageRoot string, timeline *Timeline, logger *logging.Logger) *Segmenter {
	return &Segmenter{
		storageRoot: storageRoot,
		timeline:    timeline,
		logger:      logger,
		workers:     make(map[uint]*segWorker),
	}
}

// Start launches continuous recording for a camera, rooted at the next
// clock-quarter boundary (spec.md §4.4: "first segment after start begins
// at current time and ends at the next boundary").
func (s *Segmenter) Start(ctx context.Context, cameraID uint, rtspURL string) error {
	s.mu.Lock()
	if _, exists := s.workers[cameraID]; exists {
		s.mu.Unlock()
		return nil
	}
	workerCtx, cancel := context.WithCancel(ctx)
	s.workers[cameraID] = &segWorker{cancel: cancel}
	s.mu.Unlock()

	outDir := filepath.Join(s.storageRoot, "continuous", fmt.Sprint(cameraID))
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return fmt.Errorf("create continuous output dir: %w", err)
	}

	go s.run(workerCtx, cameraID, rtspURL, outDir)
	return nil
}

// Stop ends continuous recording for a camera.
func (s *Segmenter) Stop(cameraID uint) {
	s.mu.Lock()
	w, ok := s.workers[cameraID]
	if ok {
		delete(s.workers, cameraID)
	}
	s.mu.Unlock()
	if ok {
		w.cancel()
	}
}

func (s *Segmenter) run(ctx context.Context, cameraID uint, rtspURL, outDir string) {
	log := s.logger.With().WithField("camera_id", cameraID)

	// Watch the directory before starting ffmpeg so the Create event for the
	// first rolled file can never be missed.
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		log.WithError(err).Error("create segment watcher")
		return
	}
	defer watcher.Close()
	if err := watcher.Add(outDir); err != nil {
		log.WithError(err).Error("watch continuous output dir")
		return
	}

	outPattern := filepath.Join(outDir, "%Y%m%d_%H%M%S.mp4")
	cmd := exec.CommandContext(ctx, "ffmpeg",
		"-rtsp_transport", "tcp",
		"-i", rtspURL,
		"-c:v", "copy",
		"-c:a", "copy",
		"-f", "segment",
		"-segment_time", fmt.Sprintf("%d", int(NominalDuration.Seconds())),
		"-segment_atclocktime", "1",
		"-strftime", "1",
		"-reset_timestamps", "1",
		outPattern,
	)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	logFile, err := os.Create(filepath.Join(outDir, "ffmpeg.log"))
	if err == nil {
		cmd.Stderr = logFile
		defer logFile.Close()
	}

	log.WithField("next_boundary", NextBoundary(time.Now())).Info("starting continuous segmenter")

	if err := cmd.Start(); err != nil {
		log.WithError(err).Error("failed to start continuous segmenter")
		return
	}

	waitErr := make(chan error, 1)
	go func() { waitErr <- cmd.Wait() }()

	s.watchRolledFiles(ctx, cameraID, outDir, watcher, waitErr)
}

// watchRolledFiles indexes each file ffmpeg rolls in outDir as its own
// timeline entry: a Create event closes whatever was open and opens the new
// file, a growth tick updates the open entry's observed size, and the
// worker's exit (by cancellation or ffmpeg dying) closes out the last one.
func (s *Segmenter) watchRolledFiles(ctx context.Context, cameraID uint, outDir string, watcher *fsnotify.Watcher, waitErr chan error) {
	log := s.logger.With().WithField("camera_id", cameraID)

	var current *Entry
	growth := time.NewTicker(5 * time.Second)
	defer growth.Stop()

	closeCurrent := func(end time.Time) {
		if current == nil {
			return
		}
		size := fileSize(filepath.Join(outDir, current.Filename))
		if size < 0 {
			size = 0
		}
		s.timeline.CloseSegment(current, end, size)
		current = nil
	}

	for {
		select {
		case <-ctx.Done():
			closeCurrent(time.Now())
			<-waitErr
			return

		case err := <-waitErr:
			closeCurrent(time.Now())
			if err != nil && ctx.Err() == nil {
				log.WithError(err).Warn("continuous segmenter exited")
			}
			return

		case ev, ok := <-watcher.Events:
			if !ok {
				continue
			}
			if ev.Op&fsnotify.Create == 0 {
				continue
			}
			start, ok := parseSegmentStart(filepath.Base(ev.Name))
			if !ok {
				continue
			}
			closeCurrent(start)
			current = s.timeline.OpenSegment(cameraID, start)

		case err, ok := <-watcher.Errors:
			if !ok {
				continue
			}
			log.WithError(err).Warn("segment watcher error")

		case <-growth.C:
			if current == nil {
				continue
			}
			size := fileSize(filepath.Join(outDir, current.Filename))
			if size >= 0 {
				s.timeline.Grow(current, time.Now(), size)
			}
		}
	}
}

func fileSize(path string) int64 {
	info, err := os.Stat(path)
	if err != nil {
		return -1
	}
	return info.Size()
}

const segmentFileSuffix = ".mp4"

// parseSegmentStart extracts the start time encoded in an ffmpeg-rolled
// segment filename (YYYYMMDD_HHMMSS.mp4), the inverse of SegmentFilename.
func parseSegmentStart(name string) (time.Time, bool) {
	if !strings.HasSuffix(name, segmentFileSuffix) {
		return time.Time{}, false
	}
	base := strings.TrimSuffix(name, segmentFileSuffix)
	t, err := time.ParseInLocation("20060102_150405", base, time.Local)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}
