package detect

// Frame is a single decoded grayscale frame, row-major, one byte per pixel
// (0-255). The pixel detector downsamples onto a fixed grid regardless of
// source resolution, so callers may pass any consistent frame size.
type Frame struct {
	Width, Height int
	Pixels        []byte
}

const gridSize = 10 // 10x10 ROI grid, per spec.md §4.5

// ROI is the enabled-cell mask on the 10x10 grid.
type ROI [gridSize * gridSize]bool

// AllCellsROI returns an ROI with every cell enabled (the default when a
// camera has no mask configured).
func AllCellsROI() ROI {
	var r ROI
	for i := range r {
		r[i] = true
	}
	return r
}

// PixelDetector maintains an EMA background estimate per grid cell and
// derives a hysteresis-gated activity decision per frame (spec.md §4.5
// "Motion (pixel) mode").
type PixelDetector struct {
	alpha       float64 // EMA weight, tied to sensitivity
	threshold   float64 // per-cell foreground threshold, tied to sensitivity
	openT       float64
	closeT      float64
	openFrames  int
	closeFrames int

	background [gridSize * gridSize]float64
	warm       bool

	openRun  int
	closeRun int
	open     bool
}

// NewPixelDetector builds a detector for the given sensitivity (1-100,
// higher = more sensitive) per spec.md's "threshold is a decreasing
// function of sensitivity" rule.
func NewPixelDetector(sensitivity int) *PixelDetector {
	if sensitivity < 1 {
		sensitivity = 1
	}
	if sensitivity > 100 {
		sensitivity = 100
	}
	frac := float64(sensitivity) / 100.0

	openT := 0.35 - 0.30*frac // ranges ~0.35 (low sensitivity) down to ~0.05 (high)
	if openT < 0.02 {
		openT = 0.02
	}

	return &PixelDetector{
		alpha:       0.05,
		threshold:   40.0 - 30.0*frac, // per-cell intensity delta threshold
		openT:       openT,
		closeT:      openT * 0.5,
		openFrames:  3,
		closeFrames: 15,
	}
}

// cellAverage computes the mean pixel value of one grid cell of f.
func cellAverage(f Frame, row, col int) float64 {
	cellW := f.Width / gridSize
	cellH := f.Height / gridSize
	if cellW == 0 || cellH == 0 {
		return 0
	}
	x0, y0 := col*cellW, row*cellH
	var sum, count int
	for y := y0; y < y0+cellH && y < f.Height; y++ {
		base := y * f.Width
		for x := x0; x < x0+cellW && x < f.Width; x++ {
			sum += int(f.Pixels[base+x])
			count++
		}
	}
	if count == 0 {
		return 0
	}
	return float64(sum) / float64(count)
}

// Observe processes one frame against roi and returns whether the frame is
// currently "active" per the open/close hysteresis.
func (d *PixelDetector) Observe(f Frame, roi ROI) bool {
	enabledCount := 0
	foregroundCount := 0

	for row := 0; row < gridSize; row++ {
		for col := 0; col < gridSize; col++ {
			idx := row*gridSize + col
			avg := cellAverage(f, row, col)

			if !d.warm {
				d.background[idx] = avg
				continue
			}
			prevBg := d.background[idx]
			d.background[idx] = d.alpha*avg + (1-d.alpha)*prevBg

			if !roi[idx] {
				continue
			}
			enabledCount++
			delta := avg - prevBg
			if delta < 0 {
				delta = -delta
			}
			if delta > d.threshold {
				foregroundCount++
			}
		}
	}
	d.warm = true

	if enabledCount == 0 {
		return d.open
	}
	activity := float64(foregroundCount) / float64(enabledCount)

	if d.open {
		if activity < d.closeT {
			d.closeRun++
			d.openRun = 0
			if d.closeRun >= d.closeFrames {
				d.open = false
				d.closeRun = 0
			}
		} else {
			d.closeRun = 0
		}
	} else {
		if activity >= d.openT {
			d.openRun++
			d.closeRun = 0
			if d.openRun >= d.openFrames {
				d.open = true
				d.openRun = 0
			}
		} else {
			d.openRun = 0
		}
	}

	return d.open
}
