package capture

import (
	"context"
	"errors"
	"slices"
	"sync"

	"gocv.io/x/gocv"

	"github.com/ayusman/snapview/internal/geometry"
)

// Default camera settings
const (
	DefaultMaxZoom     = 10
	DefaultJPEGQuality = 95
)

// cameraImpl drives a camera device through a GoCV VideoCapture.
//
// Webcams cannot enumerate their resolutions through OpenCV, so the sizes the
// camera was constructed with are reported as supported. Focus and metering
// areas are not available.
type cameraImpl struct {
	info    Info
	sizes   []geometry.Size
	capture *gocv.VideoCapture
	params  Parameters

	displayOrientation int
	previewing         bool
	running            bool
	mu                 sync.Mutex
}

// NewCamera creates a Device for the camera described by info.
func NewCamera(info Info, sizes []geometry.Size) Device {
	return &cameraImpl{
		info:  info,
		sizes: slices.Clone(sizes),
	}
}

func (c *cameraImpl) defaultParameters() Parameters {
	p := Parameters{
		SupportedPreviewSizes: slices.Clone(c.sizes),
		SupportedPictureSizes: slices.Clone(c.sizes),
		FocusModes:            []string{FocusModeAuto, FocusModeContinuousPicture, FocusModeFixed},
		FocusMode:             FocusModeAuto,
		ZoomSupported:         true,
		MaxZoom:               DefaultMaxZoom,
		JPEGQuality:           DefaultJPEGQuality,
	}
	if len(c.sizes) > 0 {
		p.PreviewSize = c.sizes[0]
		p.PictureSize = c.sizes[0]
	}
	return p
}

// Open opens the video capture device.
func (c *cameraImpl) Open() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.running {
		return nil
	}

	capture, err := gocv.OpenVideoCapture(c.info.ID)
	if err != nil {
		return err
	}

	c.capture = capture
	c.params = c.defaultParameters()
	c.applyLocked(c.params)
	c.running = true

	return nil
}

// Close stops the preview and releases the device.
func (c *cameraImpl) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.previewing = false
	if !c.running || c.capture == nil {
		c.running = false
		return nil
	}

	err := c.capture.Close()
	c.capture = nil
	c.running = false

	return err
}

func (c *cameraImpl) IsOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.running
}

func (c *cameraImpl) Info() Info {
	return c.info
}

func (c *cameraImpl) Parameters() (Parameters, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.running {
		return Parameters{}, ErrCameraNotOpen
	}
	return c.params.Clone(), nil
}

func (c *cameraImpl) SetParameters(p Parameters) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.running {
		return ErrCameraNotOpen
	}
	c.applyLocked(p)
	c.params = p.Clone()
	return nil
}

// applyLocked pushes the parameters the capture backend understands.
func (c *cameraImpl) applyLocked(p Parameters) {
	if p.PreviewSize.Width > 0 && p.PreviewSize.Height > 0 {
		c.capture.Set(gocv.VideoCaptureFrameWidth, float64(p.PreviewSize.Width))
		c.capture.Set(gocv.VideoCaptureFrameHeight, float64(p.PreviewSize.Height))
	}
	if p.ZoomSupported {
		c.capture.Set(gocv.VideoCaptureZoom, float64(p.Zoom))
	}
	switch p.FocusMode {
	case FocusModeContinuousPicture:
		c.capture.Set(gocv.VideoCaptureAutoFocus, 1)
	case FocusModeAuto, FocusModeFixed:
		c.capture.Set(gocv.VideoCaptureAutoFocus, 0)
	}
}

func (c *cameraImpl) SetDisplayOrientation(degrees int) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if degrees%90 != 0 {
		return errors.New("display orientation must be a multiple of 90")
	}
	c.displayOrientation = ((degrees % 360) + 360) % 360
	return nil
}

func (c *cameraImpl) StartPreview() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.running {
		return ErrCameraNotOpen
	}
	c.previewing = true
	return nil
}

// ReadFrame reads a single preview frame.
func (c *cameraImpl) ReadFrame() (*gocv.Mat, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.running || c.capture == nil {
		return nil, ErrCameraNotOpen
	}
	if !c.previewing {
		return nil, errors.New("preview is not started")
	}

	mat, err := c.readLocked()
	if err != nil {
		return nil, err
	}
	return rotateFrame(mat, c.displayOrientation), nil
}

func (c *cameraImpl) readLocked() (*gocv.Mat, error) {
	mat := gocv.NewMat()
	if ok := c.capture.Read(&mat); !ok {
		mat.Close()
		return nil, errors.New("failed to read frame from camera")
	}

	if mat.Empty() {
		mat.Close()
		return nil, errors.New("captured frame is empty")
	}

	return &mat, nil
}

// rotateFrame rotates src clockwise by degrees, closing src when a new Mat is returned.
func rotateFrame(src *gocv.Mat, degrees int) *gocv.Mat {
	var code gocv.RotateFlag
	switch degrees {
	case 90:
		code = gocv.Rotate90Clockwise
	case 180:
		code = gocv.Rotate180Clockwise
	case 270:
		code = gocv.Rotate90CounterClockwise
	default:
		return src
	}

	dst := gocv.NewMat()
	gocv.Rotate(*src, &dst, code)
	src.Close()
	return &dst
}

// AutoFocus runs a one-shot focus sweep. OpenCV gives no completion signal, so
// success means the backend accepted the request.
func (c *cameraImpl) AutoFocus(ctx context.Context) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.running || c.capture == nil {
		return false, ErrCameraNotOpen
	}
	if err := ctx.Err(); err != nil {
		return false, err
	}

	c.capture.Set(gocv.VideoCaptureAutoFocus, 1)
	if c.params.FocusMode != FocusModeContinuousPicture {
		c.capture.Set(gocv.VideoCaptureAutoFocus, 0)
	}
	return true, nil
}

func (c *cameraImpl) CancelAutoFocus() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.running && c.capture != nil && c.params.FocusMode != FocusModeContinuousPicture {
		c.capture.Set(gocv.VideoCaptureAutoFocus, 0)
	}
}

// TakePicture grabs a frame at the picture size and encodes it as JPEG.
func (c *cameraImpl) TakePicture(ctx context.Context) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.running || c.capture == nil {
		return nil, ErrCameraNotOpen
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	resized := c.params.PictureSize != c.params.PreviewSize && c.params.PictureSize.Width > 0
	if resized {
		c.capture.Set(gocv.VideoCaptureFrameWidth, float64(c.params.PictureSize.Width))
		c.capture.Set(gocv.VideoCaptureFrameHeight, float64(c.params.PictureSize.Height))
		defer c.applyLocked(c.params)
	}

	mat, err := c.readLocked()
	if err != nil {
		return nil, err
	}
	defer mat.Close()

	quality := c.params.JPEGQuality
	if quality <= 0 {
		quality = DefaultJPEGQuality
	}
	buf, err := gocv.IMEncodeWithParams(gocv.JPEGFileExt, *mat, []int{int(gocv.IMWriteJpegQuality), quality})
	if err != nil {
		return nil, err
	}
	defer buf.Close()

	return slices.Clone(buf.GetBytes()), nil
}
