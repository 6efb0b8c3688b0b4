// Package gesture interprets touch input on the preview: taps, double taps,
// pinch spans and the focus indicator shown after a tap.
package gesture

import (
	"math"
	"sync"
	"time"
)

// Touch classification constants
const (
	// DoubleTapTimeout is the longest gap between two taps of a double tap.
	DoubleTapTimeout = 300 * time.Millisecond
	// DoubleTapSlop is the farthest two taps of a double tap may be apart, in pixels.
	DoubleTapSlop = 100.0
	// FocusIndicatorTimeout hides the focus indicator when focus never reports.
	FocusIndicatorTimeout = 1500 * time.Millisecond
)

// TouchPoint is a touch position in preview pixels.
type TouchPoint struct {
	X         float64 `json:"x"`
	Y         float64 `json:"y"`
	Timestamp int64   `json:"timestamp"` // unix milliseconds
}

// Distance returns the Euclidean distance between two points.
func Distance(a, b TouchPoint) float64 {
	dx := a.X - b.X
	dy := a.Y - b.Y
	return math.Sqrt(dx*dx + dy*dy)
}

// Span returns the distance between two fingers of a pinch.
func Span(a, b TouchPoint) float64 {
	return Distance(a, b)
}

// TapKind classifies a tap.
type TapKind int

const (
	SingleTap TapKind = iota
	DoubleTap
)

func (k TapKind) String() string {
	if k == DoubleTap {
		return "double"
	}
	return "single"
}

// TapDetector classifies taps into single and double taps.
type TapDetector struct {
	last    TouchPoint
	pending bool
	mu      sync.Mutex
}

func NewTapDetector() *TapDetector {
	return &TapDetector{}
}

// Tap classifies p. A tap within DoubleTapTimeout and DoubleTapSlop of the
// previous single tap is a double tap; a third tap starts over.
func (d *TapDetector) Tap(p TouchPoint) TapKind {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.pending {
		gap := time.Duration(p.Timestamp-d.last.Timestamp) * time.Millisecond
		if gap >= 0 && gap <= DoubleTapTimeout && Distance(p, d.last) <= DoubleTapSlop {
			d.pending = false
			return DoubleTap
		}
	}

	d.last = p
	d.pending = true
	return SingleTap
}

// PinchTracker turns a stream of pinch spans into deltas since the last sample.
// For zooming it also keeps the part of the motion that has not yet added up
// to a whole zoom step, so spreading and pinching by the same distance move
// the zoom by the same number of steps.
type PinchTracker struct {
	lastSpan   float64
	pending    float64
	inProgress bool
	mu         sync.Mutex
}

func NewPinchTracker() *PinchTracker {
	return &PinchTracker{}
}

// Begin starts a pinch at span.
func (p *PinchTracker) Begin(span float64) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.lastSpan = span
	p.pending = 0
	p.inProgress = true
}

// Update returns the span change since the previous sample. Outside a pinch it
// returns 0.
func (p *PinchTracker) Update(span float64) float64 {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.updateLocked(span)
}

func (p *PinchTracker) updateLocked(span float64) float64 {
	if !p.inProgress {
		return 0
	}
	delta := span - p.lastSpan
	p.lastSpan = span
	return delta
}

// Steps adds the span change since the previous sample to the carried motion
// and returns the whole number of unit-sized steps it now covers, truncated
// toward zero. The remainder is carried to the next sample.
func (p *PinchTracker) Steps(span, unit float64) int {
	p.mu.Lock()
	defer p.mu.Unlock()

	delta := p.updateLocked(span)
	if unit <= 0 || !p.inProgress {
		return 0
	}
	p.pending += delta
	steps := math.Trunc(p.pending / unit)
	p.pending -= steps * unit
	return int(steps)
}

func (p *PinchTracker) End() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.pending = 0
	p.inProgress = false
}

func (p *PinchTracker) InProgress() bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.inProgress
}
