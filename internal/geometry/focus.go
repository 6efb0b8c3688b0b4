package geometry

// MapFocusArea converts a tap at (x, y) on the screen into a region of the
// normalized camera space. The camera space follows the unrotated sensor, which
// sits 90 degrees from a portrait screen, so x is scaled by the short side and y
// by the long side. Each bound is clamped on its own.
func MapFocusArea(screen ScreenSize, x, y, coefficient float64) FocusRegion {
	areaSize := int(FocusAreaSize * coefficient)
	half := areaSize / 2

	var centerX, centerY int
	if screen.Valid() {
		centerX = int(x/float64(screen.Height)*2000 - 1000)
		centerY = int(y/float64(screen.Width)*2000 - 1000)
	}

	return FocusRegion{
		Left:   clamp(centerX-half, AreaMin, AreaMax),
		Top:    clamp(centerY-half, AreaMin, AreaMax),
		Right:  clamp(centerX+half, AreaMin, AreaMax),
		Bottom: clamp(centerY+half, AreaMin, AreaMax),
		Weight: AreaWeight,
	}
}

// FocusAreas returns the focus region and the wider metering region for a tap.
func FocusAreas(screen ScreenSize, x, y float64) (focus, metering FocusRegion) {
	return MapFocusArea(screen, x, y, 1), MapFocusArea(screen, x, y, MeteringCoefficient)
}
