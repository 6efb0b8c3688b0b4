// Package testutil generates synthetic pictures and preview frames for tests.
package testutil

import (
	"bytes"
	"fmt"
	"image"
	"image/color"

	"github.com/disintegration/imaging"
	"gocv.io/x/gocv"
)

// Quadrant colors of a marker picture.
var (
	TopLeft     = color.NRGBA{R: 255, A: 255}
	TopRight    = color.NRGBA{G: 255, A: 255}
	BottomLeft  = color.NRGBA{B: 255, A: 255}
	BottomRight = color.NRGBA{R: 255, G: 255, B: 255, A: 255}
)

// Marker returns a w x h image split into four solid quadrants, so rotations
// and mirrors can be told apart after a lossy round-trip.
func Marker(w, h int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			var c color.NRGBA
			switch {
			case x < w/2 && y < h/2:
				c = TopLeft
			case y < h/2:
				c = TopRight
			case x < w/2:
				c = BottomLeft
			default:
				c = BottomRight
			}
			img.SetNRGBA(x, y, c)
		}
	}
	return img
}

// MarkerJPEG returns Marker(w, h) encoded as JPEG.
func MarkerJPEG(w, h int) []byte {
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, Marker(w, h), imaging.JPEG, imaging.JPEGQuality(95)); err != nil {
		panic(fmt.Sprintf("encode marker: %v", err))
	}
	return buf.Bytes()
}

// Frame decodes a marker picture into a BGR Mat. The caller must close it.
func Frame(w, h int) (*gocv.Mat, error) {
	mat, err := gocv.IMDecode(MarkerJPEG(w, h), gocv.IMReadColor)
	if err != nil {
		return nil, fmt.Errorf("decode frame: %w", err)
	}
	return &mat, nil
}

// SolidFrame returns a w x h BGR Mat filled with one gray level.
func SolidFrame(w, h int, level uint8) *gocv.Mat {
	mat := gocv.NewMatWithSize(h, w, gocv.MatTypeCV8UC3)
	v := float64(level)
	mat.SetTo(gocv.NewScalar(v, v, v, 0))
	return &mat
}

// Sequence returns n solid frames alternating between black and white.
func Sequence(n, w, h int) []*gocv.Mat {
	frames := make([]*gocv.Mat, 0, n)
	for i := 0; i < n; i++ {
		var level uint8
		if i%2 == 1 {
			level = 255
		}
		frames = append(frames, SolidFrame(w, h, level))
	}
	return frames
}

// CloseAll closes every frame.
func CloseAll(frames []*gocv.Mat) {
	for _, f := range frames {
		f.Close()
	}
}
