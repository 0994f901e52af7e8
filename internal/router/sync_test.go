package router

import (
	"os"
	"path/filepath"
	"testing"

	"nvrd/internal/logging"
)

func TestBuildDocumentContinuousRecordingFields(t *testing.T) {
	doc := BuildDocument([]PathSpec{
		{Slug: "abc12345", RTSPUrl: "rtsp://cam/1", ContinuousRecording: true, StorageRoot: "/data", CameraID: 7},
		{Slug: "zzz99999", RTSPUrl: "rtsp://cam/2"},
	})

	rec := doc.Paths["abc12345"]
	if rec.RecordPath != "/data/continuous/7/%Y%m%d_%H%M%S" {
		t.Errorf("unexpected recordPath: %s", rec.RecordPath)
	}
	if rec.RecordSegmentDuration != "900s" {
		t.Errorf("expected 900s segment duration, got %q", rec.RecordSegmentDuration)
	}

	noRec := doc.Paths["zzz99999"]
	if noRec.RecordPath != "" || noRec.Record {
		t.Errorf("non-recording path should have no record fields: %+v", noRec)
	}
}

func TestSyncWriteIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "router.yml")
	logger := logging.New("router-test", logging.Config{})

	s := NewSync(path, NewClient("127.0.0.1", "9997", "", ""), logger)

	doc := BuildDocument([]PathSpec{{Slug: "cam1", RTSPUrl: "rtsp://x"}})
	if err := s.apply(doc); err == nil {
		t.Fatalf("expected reload to fail against no listening router, got nil error")
	}

	// The config file must still have been written before the reload was attempted.
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected config file to exist after apply: %v", err)
	}

	first, _ := os.ReadFile(path)
	current := readCurrent(path)
	if !equalBytes(first, current) {
		t.Fatalf("readCurrent mismatch with what was written")
	}

	// Re-applying the same document must skip the reload: with no router
	// listening, a reload attempt would fail.
	if err := s.apply(doc); err != nil {
		t.Fatalf("expected re-applying an unchanged document to skip the reload, got %v", err)
	}
}
