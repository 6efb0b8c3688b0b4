package geometry

import "testing"

func TestMapFocusArea(t *testing.T) {
	screen := ScreenSize{Width: 1920, Height: 1080}

	tests := []struct {
		name        string
		x, y        float64
		coefficient float64
		want        FocusRegion
	}{
		{
			name:        "center tap",
			x:           540,
			y:           960,
			coefficient: 1,
			want:        FocusRegion{Left: -100, Top: -100, Right: 100, Bottom: 100, Weight: 800},
		},
		{
			name:        "center tap metering",
			x:           540,
			y:           960,
			coefficient: 1.5,
			want:        FocusRegion{Left: -150, Top: -150, Right: 150, Bottom: 150, Weight: 800},
		},
		{
			name:        "top left corner clamps",
			x:           0,
			y:           0,
			coefficient: 1,
			want:        FocusRegion{Left: -1000, Top: -1000, Right: -900, Bottom: -900, Weight: 800},
		},
		{
			name:        "bottom right corner clamps",
			x:           1080,
			y:           1920,
			coefficient: 1,
			want:        FocusRegion{Left: 900, Top: 900, Right: 1000, Bottom: 1000, Weight: 800},
		},
		{
			name:        "quarter point",
			x:           270,
			y:           480,
			coefficient: 1,
			want:        FocusRegion{Left: -600, Top: -600, Right: -400, Bottom: -400, Weight: 800},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MapFocusArea(screen, tt.x, tt.y, tt.coefficient)
			if got != tt.want {
				t.Errorf("MapFocusArea(%v, %v, %v) = %v, want %v", tt.x, tt.y, tt.coefficient, got, tt.want)
			}
		})
	}
}

func TestMapFocusArea_AlwaysInBounds(t *testing.T) {
	screen := ScreenSize{Width: 2340, Height: 1080}

	for x := -50.0; x <= 1130; x += 37 {
		for y := -50.0; y <= 2390; y += 53 {
			for _, coefficient := range []float64{1, MeteringCoefficient} {
				r := MapFocusArea(screen, x, y, coefficient)
				if r.Left < AreaMin || r.Right > AreaMax || r.Top < AreaMin || r.Bottom > AreaMax {
					t.Fatalf("MapFocusArea(%v, %v) = %v, out of bounds", x, y, r)
				}
				if r.Left > r.Right || r.Top > r.Bottom {
					t.Fatalf("MapFocusArea(%v, %v) = %v, inverted", x, y, r)
				}
			}
		}
	}
}

func TestFocusAreas_MeteringIsWider(t *testing.T) {
	screen := ScreenSize{Width: 1920, Height: 1080}

	focus, metering := FocusAreas(screen, 400, 700)

	if focus.Width()*3 != metering.Width()*2 {
		t.Errorf("metering width = %d, want 1.5x focus width %d", metering.Width(), focus.Width())
	}
	if focus.Height()*3 != metering.Height()*2 {
		t.Errorf("metering height = %d, want 1.5x focus height %d", metering.Height(), focus.Height())
	}
	if focus.Weight != AreaWeight || metering.Weight != AreaWeight {
		t.Errorf("weights = %d/%d, want %d", focus.Weight, metering.Weight, AreaWeight)
	}
}
