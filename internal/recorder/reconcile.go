package recorder

import (
	"os"
	"path/filepath"
	"strings"

	"nvrd/internal/logging"
	"nvrd/internal/store"
)

// Reconciler removes orphan event files (clip or thumbnail) that have no
// corresponding Event row, the background cleanup named in spec.md §4.6
// step 5. It never touches a file that a row references, and it never
// deletes a row for a missing file (that is the Retention Reaper's job).
type Reconciler struct {
	storageRoot string
	repo        *store.Store
	logger      *logging.Logger
}

// NewReconciler builds a Reconciler rooted at storageRoot.
func NewReconciler(storageRoot string, repo *store.Store, logger *logging.Logger) *Reconciler {
	return &Reconciler{storageRoot: storageRoot, repo: repo, logger: logger}
}

// Run performs one sweep of the events directory tree.
func (r *Reconciler) Run() error {
	root := filepath.Join(r.storageRoot, "events")
	entries, err := os.ReadDir(root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	for _, cameraDir := range entries {
		if !cameraDir.IsDir() {
			continue
		}
		dirPath := filepath.Join(root, cameraDir.Name())
		files, err := os.ReadDir(dirPath)
		if err != nil {
			continue
		}
		for _, f := range files {
			if f.IsDir() {
				continue
			}
			r.checkOrphan(filepath.Join(dirPath, f.Name()))
		}
	}
	return nil
}

func (r *Reconciler) checkOrphan(path string) {
	eventID := strings.TrimSuffix(strings.TrimSuffix(filepath.Base(path), ".mp4"), ".jpg")
	if strings.HasSuffix(path, ".tmp") {
		return
	}

	var count int64
	if err := r.repo.DB().Model(&store.Event{}).Where("id = ?", eventID).Count(&count).Error; err != nil {
		r.logger.With().WithError(err).Warn("orphan reconciler: failed to query event row")
		return
	}
	if count > 0 {
		return
	}

	if err := os.Remove(path); err != nil {
		r.logger.With().WithError(err).WithField("path", path).Warn("orphan reconciler: failed to remove file")
		return
	}
	r.logger.With().WithField("path", path).Info("removed orphan event file with no row")
}
