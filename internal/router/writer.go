package router

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
)

// writeAtomic writes data to path via a sibling temp file, fsync, then
// rename, the write-temp/fsync/rename idiom used throughout the pack for
// durable file replacement.
func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".router-config-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp config file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write temp config file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("fsync temp config file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close temp config file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("rename temp config file into place: %w", err)
	}
	return nil
}

// readCurrent returns the bytes currently on disk at path, or nil if the
// file does not yet exist.
func readCurrent(path string) []byte {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil
	}
	return b
}

func equalBytes(a, b []byte) bool {
	return bytes.Equal(a, b)
}
