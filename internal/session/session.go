// Package session owns one camera device at a time. Every device call runs on
// a single worker goroutine so open, close, parameter and capture operations
// never interleave.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"gocv.io/x/gocv"

	"github.com/ayusman/snapview/internal/capture"
	"github.com/ayusman/snapview/internal/geometry"
	"github.com/ayusman/snapview/internal/log"
	"github.com/ayusman/snapview/internal/picture"
)

const jobQueueSize = 16

// PictureQuality is the JPEG quality requested from the device.
const PictureQuality = 100

var (
	ErrNotOpen      = errors.New("camera is not open")
	ErrEmptyCapture = errors.New("camera returned an empty picture")
	ErrNoSurface    = errors.New("no preview surface")
	ErrNoCamera     = errors.New("no camera available")
	ErrSingleCamera = errors.New("only one camera available")
	ErrShutdown     = errors.New("session is shut down")
)

// Config holds the collaborators of a Session.
type Config struct {
	// Screen is the display size used until a surface is attached.
	Screen   geometry.ScreenSize
	Registry capture.Registry
	// PreferFront opens the front camera first when there is one.
	PreferFront bool
	// DeviceRotation returns the current display rotation in degrees.
	// Nil means the display is never rotated.
	DeviceRotation func() int
}

// FocusResult is the outcome of a tap-to-focus. Epoch is the session epoch the
// focus ran in; a result whose Epoch differs from Session.Epoch is stale.
type FocusResult struct {
	Success bool   `json:"success"`
	Epoch   uint64 `json:"epoch"`
}

// Status is a snapshot of the session for display.
type Status struct {
	State              string              `json:"state"`
	Facing             geometry.Facing     `json:"facing"`
	CameraID           int                 `json:"camera_id"`
	Epoch              uint64              `json:"epoch"`
	MultiCamera        bool                `json:"multi_camera"`
	Surface            bool                `json:"surface"`
	Screen             geometry.ScreenSize `json:"screen"`
	DisplayOrientation int                 `json:"display_orientation"`
	SensorRotation     int                 `json:"sensor_rotation"`
	PreviewSize        geometry.Size       `json:"preview_size"`
	PictureSize        geometry.Size       `json:"picture_size"`
	FocusMode          string              `json:"focus_mode"`
	Zoom               geometry.ZoomState  `json:"zoom"`
}

// Session is the camera session owner.
type Session struct {
	registry       capture.Registry
	backID         int
	frontID        int
	deviceRotation func() int
	logger         *slog.Logger

	jobs     chan func()
	quit     chan struct{}
	done     chan struct{}
	shutdown sync.Once

	// owned by the worker goroutine
	device capture.Device

	mu                 sync.RWMutex
	state              State
	epoch              uint64
	cameraID           int
	screen             geometry.ScreenSize
	hasSurface         bool
	sensorRotation     int
	displayOrientation int
	params             capture.Parameters
}

// New creates a session and starts its worker. The device is not opened until Open.
func New(cfg Config) (*Session, error) {
	if cfg.Registry == nil {
		return nil, ErrNoCamera
	}

	back, front := capture.FindCameras(cfg.Registry)
	if back < 0 && front < 0 {
		return nil, ErrNoCamera
	}

	cameraID := back
	if cameraID < 0 || (cfg.PreferFront && front >= 0) {
		cameraID = front
	}

	rotation := cfg.DeviceRotation
	if rotation == nil {
		rotation = func() int { return 0 }
	}

	s := &Session{
		registry:       cfg.Registry,
		backID:         back,
		frontID:        front,
		deviceRotation: rotation,
		logger:         log.With("component", "session"),
		jobs:           make(chan func(), jobQueueSize),
		quit:           make(chan struct{}),
		done:           make(chan struct{}),
		cameraID:       cameraID,
		screen:         geometry.NewScreenSize(cfg.Screen.Width, cfg.Screen.Height),
	}

	go s.worker()
	return s, nil
}

func (s *Session) worker() {
	defer close(s.done)
	for {
		select {
		case job := <-s.jobs:
			job()
		case <-s.quit:
			s.closeImmediate()
			return
		}
	}
}

// do runs fn on the worker and waits for its result.
func (s *Session) do(ctx context.Context, fn func() error) error {
	errc := make(chan error, 1)
	job := func() {
		defer func() {
			if r := recover(); r != nil {
				s.logger.Error("camera job panicked", "panic", r)
				errc <- fmt.Errorf("camera error: %v", r)
			}
		}()
		errc <- fn()
	}

	select {
	case <-s.quit:
		return ErrShutdown
	default:
	}

	select {
	case s.jobs <- job:
	case <-s.quit:
		return ErrShutdown
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-errc:
		return err
	case <-s.done:
		return ErrShutdown
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Shutdown closes the device and stops the worker. It is safe to call more than once.
func (s *Session) Shutdown() {
	s.shutdown.Do(func() {
		close(s.quit)
	})
	<-s.done
}

// SetSurface attaches a preview surface of w x h pixels. The geometry screen
// becomes the landscape-normalized surface size.
func (s *Session) SetSurface(w, h int) error {
	screen := geometry.NewScreenSize(w, h)
	if !screen.Valid() {
		return fmt.Errorf("%w: invalid size %dx%d", ErrNoSurface, w, h)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.screen = screen
	s.hasSurface = true
	return nil
}

// ClearSurface detaches the preview surface. The next Open fails with ErrNoSurface.
func (s *Session) ClearSurface() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hasSurface = false
}

// Open (re)opens the current camera and starts the preview.
func (s *Session) Open(ctx context.Context) error {
	return s.do(ctx, s.openImmediate)
}

// Close stops the preview and releases the device.
func (s *Session) Close(ctx context.Context) error {
	return s.do(ctx, func() error {
		s.closeImmediate()
		return nil
	})
}

// SwitchCamera toggles between the back and front camera and reopens.
func (s *Session) SwitchCamera(ctx context.Context) error {
	if !s.HasMultiCamera() {
		return ErrSingleCamera
	}

	return s.do(ctx, func() error {
		s.mu.Lock()
		if s.cameraID == s.backID {
			s.cameraID = s.frontID
		} else {
			s.cameraID = s.backID
		}
		s.mu.Unlock()

		return s.openImmediate()
	})
}

// Focus cancels any running focus, meters and focuses on the tap point (x, y)
// in surface pixels and waits for the device to report.
func (s *Session) Focus(ctx context.Context, x, y float64) (FocusResult, error) {
	var result FocusResult
	err := s.do(ctx, func() error {
		if s.State() != Opened {
			return ErrNotOpen
		}

		s.mu.RLock()
		screen, epoch := s.screen, s.epoch
		s.mu.RUnlock()
		result.Epoch = epoch

		s.device.CancelAutoFocus()

		params, err := s.device.Parameters()
		if err != nil {
			return fmt.Errorf("failed to read camera parameters: %w", err)
		}

		focus, metering := geometry.FocusAreas(screen, x, y)
		if params.MaxFocusAreas > 0 {
			params.FocusAreas = []geometry.FocusRegion{focus}
		}
		if params.MaxMeteringAreas > 0 {
			params.MeteringAreas = []geometry.FocusRegion{metering}
		}
		if len(params.FocusModes) == 0 || params.SupportsFocusMode(capture.FocusModeAuto) {
			params.FocusMode = capture.FocusModeAuto
		}

		if err := s.device.SetParameters(params); err != nil {
			return fmt.Errorf("failed to set focus area: %w", err)
		}
		s.setParams(params)

		s.logger.Debug("focusing", "x", x, "y", y, "focus", focus.String(), "metering", metering.String())

		ok, err := s.device.AutoFocus(ctx)
		if err != nil {
			return fmt.Errorf("auto focus failed: %w", err)
		}
		result.Success = ok
		return nil
	})
	if err != nil {
		return FocusResult{}, err
	}
	return result, nil
}

// Zoom moves the zoom by a pinch span delta in pixels. It returns the zoom
// index and whether it changed. Cameras without zoom report their index
// unchanged.
func (s *Session) Zoom(ctx context.Context, span float64) (int, bool, error) {
	return s.zoom(ctx, func(screen geometry.ScreenSize, state geometry.ZoomState) (int, bool) {
		return geometry.ApplyZoom(screen, state, span)
	})
}

// ZoomBy moves the zoom by whole steps.
func (s *Session) ZoomBy(ctx context.Context, steps int) (int, bool, error) {
	return s.zoom(ctx, func(_ geometry.ScreenSize, state geometry.ZoomState) (int, bool) {
		return geometry.StepZoom(state, steps)
	})
}

func (s *Session) zoom(ctx context.Context, next func(geometry.ScreenSize, geometry.ZoomState) (int, bool)) (int, bool, error) {
	var zoom int
	var changed bool
	err := s.do(ctx, func() error {
		if s.State() != Opened {
			return ErrNotOpen
		}

		params, err := s.device.Parameters()
		if err != nil {
			return fmt.Errorf("failed to read camera parameters: %w", err)
		}
		zoom = params.Zoom
		if !params.ZoomSupported {
			return nil
		}

		s.mu.RLock()
		screen := s.screen
		s.mu.RUnlock()

		target, ok := next(screen, geometry.ZoomState{Current: params.Zoom, Max: params.MaxZoom})
		if !ok {
			return nil
		}

		params.Zoom = target
		if err := s.device.SetParameters(params); err != nil {
			return fmt.Errorf("failed to set zoom: %w", err)
		}
		s.setParams(params)
		zoom, changed = target, true
		return nil
	})
	if err != nil {
		return 0, false, err
	}
	return zoom, changed, nil
}

// SetSensorRotation records the device rotation sensed from the accelerometer.
func (s *Session) SetSensorRotation(rotation int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sensorRotation = ((rotation % 360) + 360) % 360
}

// TakePicture captures a still, closes the device and returns the picture with
// the orientation correction applied. The session is Idle afterwards.
func (s *Session) TakePicture(ctx context.Context) (*picture.Still, error) {
	var still *picture.Still
	err := s.do(ctx, func() error {
		if err := s.setState(Shooting); err != nil {
			return ErrNotOpen
		}

		data, err := s.device.TakePicture(ctx)

		s.mu.RLock()
		display, sensor := s.displayOrientation, s.sensorRotation
		facing := s.facingLocked()
		s.mu.RUnlock()

		s.closeImmediate()

		if err != nil {
			return fmt.Errorf("failed to take picture: %w", err)
		}
		if len(data) == 0 {
			return ErrEmptyCapture
		}

		img, err := picture.Decode(data)
		if err != nil {
			return err
		}

		transform := geometry.ResolveCaptureTransform(display, sensor, facing == geometry.FacingFront)
		still = &picture.Still{
			Image:      picture.Apply(img, transform),
			Transform:  transform,
			Facing:     facing,
			CapturedAt: time.Now(),
		}
		s.logger.Info("picture taken", "facing", facing, "rotation", transform.RotationDeg, "mirrored", transform.MirrorX)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return still, nil
}

// ReadFrame returns the next preview frame. The caller must close it.
func (s *Session) ReadFrame(ctx context.Context) (*gocv.Mat, error) {
	var frame *gocv.Mat
	err := s.do(ctx, func() error {
		if s.State() != Opened {
			return ErrNotOpen
		}
		f, err := s.device.ReadFrame()
		if err != nil {
			return err
		}
		frame = f
		return nil
	})
	if err != nil {
		return nil, err
	}
	return frame, nil
}

// State returns the current session state.
func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// IsOpened reports whether a device is open, including while shooting.
func (s *Session) IsOpened() bool {
	return s.State() != Idle
}

// Epoch increments on every open and close.
func (s *Session) Epoch() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.epoch
}

func (s *Session) HasMultiCamera() bool {
	return s.backID >= 0 && s.frontID >= 0
}

// Facing returns the facing of the current camera.
func (s *Session) Facing() geometry.Facing {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.facingLocked()
}

func (s *Session) facingLocked() geometry.Facing {
	if s.cameraID == s.frontID && s.frontID >= 0 {
		return geometry.FacingFront
	}
	return geometry.FacingBack
}

// ContinuousFocus reports whether the open device focuses on its own.
func (s *Session) ContinuousFocus() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state != Idle && s.params.FocusMode == capture.FocusModeContinuousPicture
}

// Status returns a snapshot of the session.
func (s *Session) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return Status{
		State:              s.state.String(),
		Facing:             s.facingLocked(),
		CameraID:           s.cameraID,
		Epoch:              s.epoch,
		MultiCamera:        s.HasMultiCamera(),
		Surface:            s.hasSurface,
		Screen:             s.screen,
		DisplayOrientation: s.displayOrientation,
		SensorRotation:     s.sensorRotation,
		PreviewSize:        s.params.PreviewSize,
		PictureSize:        s.params.PictureSize,
		FocusMode:          s.params.FocusMode,
		Zoom:               geometry.ZoomState{Current: s.params.Zoom, Max: s.params.MaxZoom},
	}
}

func (s *Session) setParams(p capture.Parameters) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.params = p
}

// openImmediate runs on the worker.
func (s *Session) openImmediate() error {
	s.closeImmediate()

	s.mu.RLock()
	hasSurface, screen, cameraID := s.hasSurface, s.screen, s.cameraID
	s.mu.RUnlock()

	if !hasSurface {
		return ErrNoSurface
	}
	if cameraID < 0 {
		return ErrNoCamera
	}

	device, err := s.registry.Device(cameraID)
	if err != nil {
		return fmt.Errorf("failed to open camera %d: %w", cameraID, err)
	}
	if err := device.Open(); err != nil {
		return fmt.Errorf("failed to open camera %d: %w", cameraID, err)
	}

	fail := func(err error) error {
		device.Close()
		s.logger.Warn("camera unavailable", "camera", cameraID, "error", err)
		return fmt.Errorf("failed to open camera %d: %w", cameraID, err)
	}

	params, err := device.Parameters()
	if err != nil {
		return fail(err)
	}
	applyPreviewParams(screen, &params)
	if err := device.SetParameters(params); err != nil {
		return fail(err)
	}

	info := device.Info()
	display := geometry.ResolveDisplayRotation(s.deviceRotation(), info.Orientation, info.Facing == geometry.FacingFront)
	if err := device.SetDisplayOrientation(display); err != nil {
		return fail(err)
	}
	if err := device.StartPreview(); err != nil {
		return fail(err)
	}

	s.device = device
	s.mu.Lock()
	s.displayOrientation = display
	s.params = params
	s.mu.Unlock()

	if err := s.setState(Opened); err != nil {
		s.device = nil
		return fail(err)
	}

	s.logger.Info("camera opened",
		"camera", cameraID,
		"facing", info.Facing,
		"preview", params.PreviewSize.String(),
		"picture", params.PictureSize.String(),
		"display_orientation", display,
	)
	return nil
}

// applyPreviewParams picks the preview and picture sizes closest to the
// screen, prefers continuous focus and asks for full JPEG quality.
func applyPreviewParams(screen geometry.ScreenSize, p *capture.Parameters) {
	if size, ok := geometry.SelectSize(screen, p.SupportedPreviewSizes); ok {
		p.PreviewSize = size
	}
	if size, ok := geometry.SelectSize(screen, p.SupportedPictureSizes); ok {
		p.PictureSize = size
	}
	if p.SupportsFocusMode(capture.FocusModeContinuousPicture) {
		p.FocusMode = capture.FocusModeContinuousPicture
	}
	p.JPEGQuality = PictureQuality
}

// closeImmediate runs on the worker.
func (s *Session) closeImmediate() {
	if s.device != nil {
		if err := s.device.Close(); err != nil {
			s.logger.Warn("failed to close camera", "error", err)
		}
		s.device = nil
	}

	if s.State() != Idle {
		s.setState(Idle)
	}
}
