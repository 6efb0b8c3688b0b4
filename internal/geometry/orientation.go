package geometry

// NoRotationChange is returned by ClassifyTilt when the tilt is too weak or too
// diagonal to decide; the caller keeps its previous rotation.
const NoRotationChange = -1

// Accelerometer deadband thresholds in m/s².
const (
	tiltStrong = 6
	tiltWeak   = 4
)

// CaptureTransform is the correction applied to a decoded still picture:
// a clockwise rotation followed by an optional horizontal mirror.
type CaptureTransform struct {
	RotationDeg int  `json:"rotation"`
	MirrorX     bool `json:"mirror"`
}

// DeviceRotationDegrees maps a surface rotation index (0..3) to degrees.
func DeviceRotationDegrees(surfaceRotation int) int {
	switch surfaceRotation {
	case 1:
		return 90
	case 2:
		return 180
	case 3:
		return 270
	}
	return 0
}

// ResolveDisplayRotation returns the preview rotation for a camera mounted at
// sensorMountDeg while the device is rotated by deviceRotationDeg. Front
// cameras are mirrored, so their rotation runs the other way.
func ResolveDisplayRotation(deviceRotationDeg, sensorMountDeg int, front bool) int {
	if front {
		return (360 - (sensorMountDeg+deviceRotationDeg)%360) % 360
	}
	return (sensorMountDeg - deviceRotationDeg + 360) % 360
}

// ResolveCaptureTransform combines the display orientation with the rotation
// sensed from the accelerometer. Front pictures are rotated the opposite way and
// mirrored. RotationDeg is always in [0, 360).
func ResolveCaptureTransform(displayOrientation, sensorRotation int, front bool) CaptureTransform {
	rotation := normalizeDegrees(displayOrientation + sensorRotation)
	if front {
		return CaptureTransform{RotationDeg: (360 - rotation) % 360, MirrorX: true}
	}
	return CaptureTransform{RotationDeg: rotation}
}

// ClassifyTilt quantizes a 2-axis accelerometer reading into 0, 90, 180 or 270,
// or NoRotationChange near the diagonals.
func ClassifyTilt(accelX, accelY float64) int {
	absX, absY := abs(accelX), abs(accelY)
	switch {
	case absX > tiltStrong && absY < tiltWeak:
		if accelX > tiltStrong {
			return 270
		}
		return 90
	case absY > tiltStrong && absX < tiltWeak:
		if accelY > tiltStrong {
			return 0
		}
		return 180
	}
	return NoRotationChange
}

// RotationDelta returns the shortest signed turn from one rotation to another,
// within ±180 degrees.
func RotationDelta(from, to int) int {
	diff := to - from
	if diff > 180 {
		diff -= 360
	} else if diff < -180 {
		diff += 360
	}
	return diff
}

func normalizeDegrees(deg int) int {
	deg %= 360
	if deg < 0 {
		deg += 360
	}
	return deg
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
