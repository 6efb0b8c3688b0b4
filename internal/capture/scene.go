package capture

import (
	"image"
	"sync"

	"gocv.io/x/gocv"
)

// Scene change detection constants
const (
	// GaussianBlurSize is the kernel size for Gaussian blur (21x21)
	GaussianBlurSize = 21
	// DiffThreshold is the binary threshold for difference detection
	DiffThreshold = 25
)

// SceneMonitor watches consecutive preview frames and reports when the scene
// settles after a change. A settle is a change above threshold followed by
// settleFrames quiet frames in a row.
type SceneMonitor struct {
	threshold    float64
	settleFrames int
	prevGray     gocv.Mat
	initialized  bool
	closed       bool
	changing     bool
	quiet        int
	mu           sync.Mutex
}

// NewSceneMonitor creates a SceneMonitor. threshold is the percentage of
// pixels that must differ between two frames for the scene to count as changing.
func NewSceneMonitor(threshold float64, settleFrames int) *SceneMonitor {
	if settleFrames < 1 {
		settleFrames = 1
	}
	return &SceneMonitor{
		threshold:    threshold,
		settleFrames: settleFrames,
		prevGray:     gocv.NewMat(),
	}
}

// Observe feeds the next frame. It returns true exactly once per settle,
// together with the percentage of pixels that changed since the previous frame.
func (m *SceneMonitor) Observe(frame *gocv.Mat) (bool, float64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed || frame == nil || frame.Empty() {
		return false, 0
	}

	gray := gocv.NewMat()
	defer gray.Close()

	if frame.Channels() > 1 {
		gocv.CvtColor(*frame, &gray, gocv.ColorBGRToGray)
	} else {
		frame.CopyTo(&gray)
	}

	blurred := gocv.NewMat()
	defer blurred.Close()
	gocv.GaussianBlur(gray, &blurred, image.Point{X: GaussianBlurSize, Y: GaussianBlurSize}, 0, 0, gocv.BorderDefault)

	if !m.initialized || blurred.Rows() != m.prevGray.Rows() || blurred.Cols() != m.prevGray.Cols() {
		blurred.CopyTo(&m.prevGray)
		m.initialized = true
		return false, 0
	}

	diff := gocv.NewMat()
	defer diff.Close()
	gocv.AbsDiff(blurred, m.prevGray, &diff)

	thresh := gocv.NewMat()
	defer thresh.Close()
	gocv.Threshold(diff, &thresh, DiffThreshold, 255, gocv.ThresholdBinary)

	nonZero := gocv.CountNonZero(thresh)
	totalPixels := thresh.Rows() * thresh.Cols()
	changePercent := float64(nonZero) / float64(totalPixels) * 100.0

	blurred.CopyTo(&m.prevGray)

	if changePercent > m.threshold {
		m.changing = true
		m.quiet = 0
		return false, changePercent
	}

	if !m.changing {
		return false, changePercent
	}

	m.quiet++
	if m.quiet < m.settleFrames {
		return false, changePercent
	}

	m.changing = false
	m.quiet = 0
	return true, changePercent
}

// Changing reports whether a scene change is in progress.
func (m *SceneMonitor) Changing() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.changing
}

// Reset drops the baseline frame, e.g. after switching cameras. The next
// frame becomes the new baseline.
func (m *SceneMonitor) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.initialized = false
	m.changing = false
	m.quiet = 0
}

// Close releases the baseline frame. Observe on a closed monitor reports no
// change.
func (m *SceneMonitor) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return
	}
	m.prevGray.Close()
	m.closed = true
	m.initialized = false
	m.changing = false
	m.quiet = 0
}
