// Package picture decodes captured stills, applies the capture orientation
// correction and encodes the result for storage.
package picture

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/chai2010/webp"
	"github.com/disintegration/imaging"
	_ "golang.org/x/image/webp"

	"github.com/ayusman/snapview/internal/geometry"
)

// Format is an output encoding for confirmed pictures.
type Format string

const (
	FormatJPEG Format = "jpeg"
	FormatPNG  Format = "png"
	FormatWebP Format = "webp"
)

// ErrUnknownFormat is returned for an unsupported output format.
var ErrUnknownFormat = errors.New("unknown picture format")

// ParseFormat accepts jpeg, jpg, png and webp in any case.
func ParseFormat(v string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "jpeg", "jpg":
		return FormatJPEG, nil
	case "png":
		return FormatPNG, nil
	case "webp":
		return FormatWebP, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownFormat, v)
}

// Ext returns the file extension for f, including the dot.
func (f Format) Ext() string {
	switch f {
	case FormatPNG:
		return ".png"
	case FormatWebP:
		return ".webp"
	default:
		return ".jpg"
	}
}

// ContentType returns the MIME type for f.
func (f Format) ContentType() string {
	switch f {
	case FormatPNG:
		return "image/png"
	case FormatWebP:
		return "image/webp"
	default:
		return "image/jpeg"
	}
}

// Still is a captured picture with the orientation correction already applied.
type Still struct {
	Image      *image.NRGBA
	Transform  geometry.CaptureTransform
	Facing     geometry.Facing
	CapturedAt time.Time
}

// Size returns the dimensions of the corrected image.
func (s *Still) Size() geometry.Size {
	b := s.Image.Bounds()
	return geometry.Size{Width: b.Dx(), Height: b.Dy()}
}

// Decode decodes JPEG, PNG or WebP data. EXIF orientation is ignored, the
// capture transform is the only rotation applied.
func Decode(data []byte) (image.Image, error) {
	if len(data) == 0 {
		return nil, errors.New("empty picture data")
	}
	img, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode picture: %w", err)
	}
	return img, nil
}

// Apply rotates img clockwise by t.RotationDeg and then mirrors it
// horizontally when t.MirrorX is set.
func Apply(img image.Image, t geometry.CaptureTransform) *image.NRGBA {
	var out *image.NRGBA
	switch t.RotationDeg {
	case 90:
		out = imaging.Rotate270(img)
	case 180:
		out = imaging.Rotate180(img)
	case 270:
		out = imaging.Rotate90(img)
	default:
		out = imaging.Clone(img)
	}
	if t.MirrorX {
		out = imaging.FlipH(out)
	}
	return out
}

// Encode writes img to w in format f. quality applies to JPEG and WebP.
func Encode(w io.Writer, img image.Image, f Format, quality int) error {
	switch f {
	case FormatJPEG:
		return imaging.Encode(w, img, imaging.JPEG, imaging.JPEGQuality(quality))
	case FormatPNG:
		return imaging.Encode(w, img, imaging.PNG)
	case FormatWebP:
		return webp.Encode(w, img, &webp.Options{Quality: float32(quality)})
	}
	return fmt.Errorf("%w: %q", ErrUnknownFormat, string(f))
}

// Save encodes img to path, creating parent directories as needed.
func Save(path string, img image.Image, f Format, quality int) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create picture directory: %w", err)
	}

	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create picture file: %w", err)
	}

	if err := Encode(file, img, f, quality); err != nil {
		file.Close()
		os.Remove(path)
		return fmt.Errorf("failed to encode picture: %w", err)
	}
	return file.Close()
}
