// Package capture provides the camera device abstraction and its GoCV (OpenCV) implementation.
package capture

import (
	"context"
	"errors"
	"slices"

	"gocv.io/x/gocv"

	"github.com/ayusman/snapview/internal/geometry"
)

// Focus modes a device may support.
const (
	FocusModeAuto              = "auto"
	FocusModeContinuousPicture = "continuous-picture"
	FocusModeFixed             = "fixed"
)

var (
	// ErrCameraNotOpen is returned when using a camera that is not open.
	ErrCameraNotOpen = errors.New("camera is not open")
	// ErrCameraNotFound is returned when a camera id is not known to the registry.
	ErrCameraNotFound = errors.New("camera not found")
)

// Info describes a physical camera.
type Info struct {
	ID          int             `json:"id"`
	Facing      geometry.Facing `json:"facing"`
	Orientation int             `json:"orientation"` // sensor mount orientation in degrees
}

// Parameters is the device configuration read with Device.Parameters and
// written back with Device.SetParameters.
type Parameters struct {
	PreviewSize           geometry.Size
	PictureSize           geometry.Size
	SupportedPreviewSizes []geometry.Size
	SupportedPictureSizes []geometry.Size

	FocusModes       []string
	FocusMode        string
	MaxFocusAreas    int
	MaxMeteringAreas int
	FocusAreas       []geometry.FocusRegion
	MeteringAreas    []geometry.FocusRegion

	ZoomSupported bool
	Zoom          int
	MaxZoom       int

	JPEGQuality int
}

// SupportsFocusMode reports whether mode is in FocusModes.
func (p Parameters) SupportsFocusMode(mode string) bool {
	return slices.Contains(p.FocusModes, mode)
}

// Clone returns a copy that shares no slices with p.
func (p Parameters) Clone() Parameters {
	c := p
	c.SupportedPreviewSizes = slices.Clone(p.SupportedPreviewSizes)
	c.SupportedPictureSizes = slices.Clone(p.SupportedPictureSizes)
	c.FocusModes = slices.Clone(p.FocusModes)
	c.FocusAreas = slices.Clone(p.FocusAreas)
	c.MeteringAreas = slices.Clone(p.MeteringAreas)
	return c
}

// Device defines the interface for a camera device handle.
type Device interface {
	Open() error
	// Close stops the preview and releases the device.
	Close() error
	IsOpen() bool
	Info() Info
	Parameters() (Parameters, error)
	SetParameters(p Parameters) error
	SetDisplayOrientation(degrees int) error
	StartPreview() error
	// ReadFrame returns the next preview frame rotated by the display orientation.
	// The caller is responsible for closing the returned Mat.
	ReadFrame() (*gocv.Mat, error)
	AutoFocus(ctx context.Context) (bool, error)
	CancelAutoFocus()
	// TakePicture returns a JPEG encoded still in sensor orientation.
	TakePicture(ctx context.Context) ([]byte, error)
}

// Registry enumerates cameras and hands out their devices.
type Registry interface {
	Cameras() []Info
	Device(id int) (Device, error)
}

// FindCameras returns the ids of the first back and front cameras, or -1.
func FindCameras(r Registry) (back, front int) {
	back, front = -1, -1
	for _, info := range r.Cameras() {
		switch info.Facing {
		case geometry.FacingBack:
			if back < 0 {
				back = info.ID
			}
		case geometry.FacingFront:
			if front < 0 {
				front = info.ID
			}
		}
	}
	return back, front
}

// deviceRegistry serves gocv cameras for a fixed list of device indices.
type deviceRegistry struct {
	infos []Info
	sizes []geometry.Size
}

// NewDeviceRegistry creates a Registry of gocv cameras. Every camera reports
// sizes as its supported preview and picture sizes.
func NewDeviceRegistry(infos []Info, sizes []geometry.Size) Registry {
	return &deviceRegistry{
		infos: slices.Clone(infos),
		sizes: slices.Clone(sizes),
	}
}

func (r *deviceRegistry) Cameras() []Info {
	return slices.Clone(r.infos)
}

func (r *deviceRegistry) Device(id int) (Device, error) {
	for _, info := range r.infos {
		if info.ID == id {
			return NewCamera(info, r.sizes), nil
		}
	}
	return nil, ErrCameraNotFound
}
