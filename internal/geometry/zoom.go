package geometry

import "math"

// ZoomSweeps is how many short-side-length pinches cover the whole zoom range.
const ZoomSweeps = 5

// ApplyZoom turns a pinch span delta in pixels into a new zoom index. It
// reports whether the index moved. Callers must not invoke it for devices
// without zoom (Max == 0); such input is returned unchanged.
func ApplyZoom(screen ScreenSize, state ZoomState, span float64) (int, bool) {
	if state.Max <= 0 || !screen.Valid() {
		return state.Current, false
	}
	return StepZoom(state, int(math.Floor(span/ZoomUnit(screen, state.Max))))
}

// ZoomUnit is the pinch span in pixels that moves the zoom by one step, or 0
// when the screen or the zoom range is empty.
func ZoomUnit(screen ScreenSize, max int) float64 {
	if max <= 0 || !screen.Valid() {
		return 0
	}
	return float64(screen.Height) / ZoomSweeps / float64(max)
}

// StepZoom moves the zoom index by steps, clamped to [0, Max].
func StepZoom(state ZoomState, steps int) (int, bool) {
	if state.Max <= 0 {
		return state.Current, false
	}
	zoom := clamp(state.Current+steps, 0, state.Max)
	return zoom, zoom != state.Current
}
