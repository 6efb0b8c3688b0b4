// Package geometry holds the camera parameter selection and coordinate mapping
// algorithms: size selection, tap-to-focus regions, pinch zoom steps and
// orientation correction. Every function is pure and safe to call from any goroutine.
package geometry

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Normalized camera coordinate space used for focus and metering areas.
const (
	AreaMin = -1000
	AreaMax = 1000
	// AreaWeight is the weight attached to every focus and metering region.
	AreaWeight = 800
	// FocusAreaSize is the side of the focus region in normalized units.
	FocusAreaSize = 200
	// MeteringCoefficient scales the metering region side relative to the focus region.
	MeteringCoefficient = 1.5
)

// ErrInvalidSize is returned when a size string cannot be parsed.
var ErrInvalidSize = errors.New("invalid size")

// ScreenSize is the preview surface size, normalized so Width is the larger side.
type ScreenSize struct {
	Width  int `json:"width" yaml:"width"`
	Height int `json:"height" yaml:"height"`
}

// NewScreenSize returns a landscape-normalized ScreenSize for a w x h surface.
func NewScreenSize(w, h int) ScreenSize {
	if h > w {
		w, h = h, w
	}
	return ScreenSize{Width: w, Height: h}
}

// Valid reports whether both dimensions are positive.
func (s ScreenSize) Valid() bool {
	return s.Width > 0 && s.Height > 0
}

// Size is a capture or preview resolution supported by a device.
type Size struct {
	Width  int `json:"width" yaml:"width"`
	Height int `json:"height" yaml:"height"`
}

// Ratio returns width/height as float32, matching the precision device
// size lists are compared with.
func (s Size) Ratio() float32 {
	return float32(s.Width) / float32(s.Height)
}

func (s Size) String() string {
	return fmt.Sprintf("%dx%d", s.Width, s.Height)
}

// ParseSize parses "WIDTHxHEIGHT".
func ParseSize(v string) (Size, error) {
	parts := strings.Split(strings.ToLower(strings.TrimSpace(v)), "x")
	if len(parts) != 2 {
		return Size{}, fmt.Errorf("%w: %q", ErrInvalidSize, v)
	}
	w, err := strconv.Atoi(parts[0])
	if err != nil {
		return Size{}, fmt.Errorf("%w: %q", ErrInvalidSize, v)
	}
	h, err := strconv.Atoi(parts[1])
	if err != nil {
		return Size{}, fmt.Errorf("%w: %q", ErrInvalidSize, v)
	}
	if w <= 0 || h <= 0 {
		return Size{}, fmt.Errorf("%w: %q", ErrInvalidSize, v)
	}
	return Size{Width: w, Height: h}, nil
}

// FocusRegion is a weighted rectangle in the normalized [-1000, 1000] camera space.
type FocusRegion struct {
	Left   int `json:"left"`
	Top    int `json:"top"`
	Right  int `json:"right"`
	Bottom int `json:"bottom"`
	Weight int `json:"weight"`
}

func (r FocusRegion) Width() int  { return r.Right - r.Left }
func (r FocusRegion) Height() int { return r.Bottom - r.Top }

func (r FocusRegion) String() string {
	return fmt.Sprintf("[%d,%d][%d,%d]w%d", r.Left, r.Top, r.Right, r.Bottom, r.Weight)
}

// ZoomState is the device zoom index and its upper bound.
type ZoomState struct {
	Current int `json:"current"`
	Max     int `json:"max"`
}

// Facing identifies which physical camera is in use.
type Facing int

const (
	FacingBack Facing = iota
	FacingFront
)

func (f Facing) String() string {
	if f == FacingFront {
		return "front"
	}
	return "back"
}

func (f Facing) MarshalText() ([]byte, error) {
	return []byte(f.String()), nil
}

func (f *Facing) UnmarshalText(text []byte) error {
	v, err := ParseFacing(string(text))
	if err != nil {
		return err
	}
	*f = v
	return nil
}

// ParseFacing accepts "back" or "front".
func ParseFacing(v string) (Facing, error) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "back", "":
		return FacingBack, nil
	case "front":
		return FacingFront, nil
	}
	return FacingBack, fmt.Errorf("unknown camera facing %q", v)
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
