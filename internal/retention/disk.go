package retention

import (
	"github.com/shirou/gopsutil/v3/disk"
)

// GopsutilDisk implements DiskStats using gopsutil, the same library the
// ambient health endpoint (C9 /api/system/health) reports from.
type GopsutilDisk struct{}

// FreeFraction returns the fraction of free space (0..1) on the volume
// containing path.
func (GopsutilDisk) FreeFraction(path string) (float64, error) {
	usage, err := disk.Usage(path)
	if err != nil {
		return 0, err
	}
	if usage.Total == 0 {
		return 1, nil
	}
	return 1 - usage.UsedPercent/100.0, nil
}
