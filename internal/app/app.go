// Package app wires the camera session, orientation tracking, touch gestures,
// capture storage and hooks into one application.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/ayusman/snapview/internal/capture"
	"github.com/ayusman/snapview/internal/config"
	"github.com/ayusman/snapview/internal/geometry"
	"github.com/ayusman/snapview/internal/gesture"
	"github.com/ayusman/snapview/internal/hook"
	"github.com/ayusman/snapview/internal/log"
	"github.com/ayusman/snapview/internal/picture"
	"github.com/ayusman/snapview/internal/sensor"
	"github.com/ayusman/snapview/internal/session"
	"github.com/ayusman/snapview/internal/store"
)

var (
	// ErrNoPending is returned by Confirm when no picture is waiting.
	ErrNoPending = errors.New("no pending capture")
	// ErrCapturePending is returned when a picture waits for Confirm or Retry.
	ErrCapturePending = errors.New("a capture is waiting for confirm or retry")
	// ErrNoStore is returned by capture queries when the app runs without a store.
	ErrNoStore = errors.New("capture store is not configured")
	// ErrInvalidRotation is returned by SetSurface for a rotation outside 0..3.
	ErrInvalidRotation = errors.New("surface rotation must be 0, 1, 2 or 3")
)

// Config holds the collaborators of an App.
type Config struct {
	Settings *config.Config
	// Registry provides the cameras. Nil builds gocv cameras from Settings.
	Registry capture.Registry
	// Store persists confirmed captures and the last used camera. Optional.
	Store *store.Store
	// Sensor feeds accelerometer readings while the app runs. Optional;
	// readings may also be pushed with Accelerometer.
	Sensor sensor.Source
}

// Status is a snapshot of the application for display.
type Status struct {
	Running   bool                   `json:"running"`
	Session   session.Status         `json:"session"`
	Rotation  int                    `json:"rotation"`
	Pending   bool                   `json:"pending"`
	Indicator gesture.IndicatorState `json:"indicator"`
	Hooks     int                    `json:"hooks"`
	// SceneChanging is set while the preview moves and a refocus waits for
	// it to settle.
	SceneChanging bool `json:"scene_changing"`
}

// App is the camera application.
type App struct {
	settings  *config.Config
	store     *store.Store
	sensorSrc sensor.Source
	format    picture.Format

	session   *session.Session
	rotation  *sensor.RotationTracker
	scene     *capture.SceneMonitor
	taps      *gesture.TapDetector
	pinch     *gesture.PinchTracker
	indicator *gesture.FocusIndicator
	hookMgr   *hook.Manager
	hookExec  *hook.Executor
	hub       *Hub
	logger    *slog.Logger

	// surfaceRotation is the display rotation index (0..3) last reported
	// with the surface.
	surfaceRotation atomic.Int32

	runMu    sync.Mutex // serializes Start and Stop
	mu       sync.Mutex
	pending  *picture.Still
	frame    []byte
	frameSeq uint64
	stopCh   chan struct{}
	done     chan struct{}
	cancel   context.CancelFunc
}

// RegistryFromConfig builds gocv cameras for the configured device indices.
func RegistryFromConfig(cfg *config.Config) (capture.Registry, error) {
	sizes, err := cfg.CandidateSizes()
	if err != nil {
		return nil, err
	}

	var infos []capture.Info
	if cfg.Cameras.Back.Device != config.NoDevice {
		infos = append(infos, capture.Info{ID: cfg.Cameras.Back.Device, Facing: geometry.FacingBack, Orientation: cfg.Cameras.Back.Orientation})
	}
	if cfg.Cameras.Front.Device != config.NoDevice {
		infos = append(infos, capture.Info{ID: cfg.Cameras.Front.Device, Facing: geometry.FacingFront, Orientation: cfg.Cameras.Front.Orientation})
	}
	return capture.NewDeviceRegistry(infos, sizes), nil
}

// New creates a new App. The camera is not opened until Start.
func New(cfg Config) (*App, error) {
	settings := cfg.Settings
	if settings == nil {
		settings = config.Default()
	}

	format, err := picture.ParseFormat(settings.Capture.Format)
	if err != nil {
		return nil, err
	}

	registry := cfg.Registry
	if registry == nil {
		registry, err = RegistryFromConfig(settings)
		if err != nil {
			return nil, err
		}
	}

	prefer := settings.Cameras.Prefer
	if cfg.Store != nil {
		prefer = cfg.Store.Settings().GetOr(store.SettingLastFacing, prefer)
	}
	preferFront := prefer == geometry.FacingFront.String()

	a := &App{
		settings:  settings,
		store:     cfg.Store,
		sensorSrc: cfg.Sensor,
		format:    format,
		rotation:  sensor.NewRotationTracker(),
		scene:     capture.NewSceneMonitor(settings.Preview.SceneThreshold, settings.Preview.SettleFrames),
		taps:      gesture.NewTapDetector(),
		pinch:     gesture.NewPinchTracker(),
		indicator: gesture.NewFocusIndicator(gesture.FocusIndicatorTimeout),
		hookMgr:   hook.NewManager(settings.Hooks.Dir),
		hookExec:  hook.NewExecutor(settings.Hooks.TimeoutMs),
		hub:       NewHub(),
		logger:    log.With("component", "app"),
	}

	a.session, err = session.New(session.Config{
		Screen:         settings.Screen,
		Registry:       registry,
		PreferFront:    preferFront,
		DeviceRotation: func() int {
			return geometry.DeviceRotationDegrees(int(a.surfaceRotation.Load()))
		},
	})
	if err != nil {
		return nil, err
	}

	a.rotation.OnChange(func(old, next, delta int) {
		a.session.SetSensorRotation(next)
		a.hub.Publish(EventRotation, map[string]int{"from": old, "to": next, "delta": delta})
	})
	a.indicator.OnChange(func(s gesture.IndicatorState) {
		a.hub.Publish(EventIndicator, s)
	})

	return a, nil
}

// Start discovers hooks, opens the camera and starts the preview loop.
func (a *App) Start(ctx context.Context) error {
	a.runMu.Lock()
	defer a.runMu.Unlock()

	if a.Running() {
		return nil
	}

	if err := a.hookMgr.Discover(); err != nil {
		a.logger.Warn("hook discovery failed", "dir", a.hookMgr.Dir(), "error", err)
	}

	if !a.session.Status().Surface {
		if err := a.session.SetSurface(a.settings.Screen.Width, a.settings.Screen.Height); err != nil {
			return err
		}
	}

	if !a.hasPending() {
		if err := a.session.Open(ctx); err != nil {
			return err
		}
	}
	a.scene.Reset()

	runCtx, cancel := context.WithCancel(context.Background())
	stopCh, done := make(chan struct{}), make(chan struct{})

	a.mu.Lock()
	a.stopCh, a.done, a.cancel = stopCh, done, cancel
	a.mu.Unlock()

	go a.runPreview(runCtx, stopCh, done)

	if a.sensorSrc != nil {
		go func() {
			if err := a.rotation.Run(runCtx, a.sensorSrc); err != nil && !errors.Is(err, context.Canceled) {
				a.logger.Warn("sensor stopped", "error", err)
			}
		}()
	}

	a.logger.Info("camera app started", "facing", a.session.Facing())
	a.publishState()
	return nil
}

// Stop halts the preview loop and releases the camera. A pending capture is kept.
func (a *App) Stop() {
	a.runMu.Lock()
	defer a.runMu.Unlock()

	a.mu.Lock()
	stopCh, done, cancel := a.stopCh, a.done, a.cancel
	a.stopCh, a.done, a.cancel = nil, nil, nil
	a.mu.Unlock()

	if stopCh == nil {
		return
	}

	close(stopCh)
	cancel()
	<-done

	if err := a.session.Close(context.Background()); err != nil {
		a.logger.Warn("failed to close camera", "error", err)
	}
	a.indicator.Dismiss()
	a.pinch.End()

	a.logger.Info("camera app stopped")
	a.publishState()
}

// Close stops the app and releases every resource. The App cannot be restarted.
func (a *App) Close() {
	a.Stop()
	a.session.Shutdown()
	a.scene.Close()
	a.hub.Close()
}

// Running reports whether the preview loop is active.
func (a *App) Running() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.stopCh != nil
}

// SetSurface resizes the preview surface and records the display rotation
// index (0..3, quarter turns from the natural orientation). A running camera
// is reopened so the preview size and orientation follow.
func (a *App) SetSurface(ctx context.Context, w, h, rotation int) error {
	if rotation < 0 || rotation > 3 {
		return ErrInvalidRotation
	}
	if err := a.session.SetSurface(w, h); err != nil {
		return err
	}
	a.surfaceRotation.Store(int32(rotation))
	if a.session.IsOpened() {
		if err := a.session.Open(ctx); err != nil {
			return err
		}
		a.scene.Reset()
	}
	a.publishState()
	return nil
}

// Tap handles a single touch. A single tap focuses on the point, a double tap
// switches the camera.
func (a *App) Tap(ctx context.Context, p gesture.TouchPoint) (gesture.TapKind, error) {
	kind := a.taps.Tap(p)
	if kind == gesture.DoubleTap {
		return kind, a.Switch(ctx)
	}
	_, err := a.Focus(ctx, p.X, p.Y)
	return kind, err
}

// Focus shows the focus indicator at (x, y) and focuses there. The indicator
// is hidden when the focus completes in the same session epoch.
func (a *App) Focus(ctx context.Context, x, y float64) (session.FocusResult, error) {
	if !a.session.IsOpened() {
		return session.FocusResult{}, session.ErrNotOpen
	}

	token := a.indicator.Show(x, y)
	res, err := a.session.Focus(ctx, x, y)
	if err != nil {
		a.indicator.Dismiss()
		return res, err
	}

	stale := res.Epoch != a.session.Epoch()
	if !stale {
		a.indicator.Complete(token)
	}
	a.hub.Publish(EventFocus, map[string]any{
		"success": res.Success,
		"epoch":   res.Epoch,
		"stale":   stale,
		"x":       x,
		"y":       y,
	})
	return res, nil
}

// PinchBegin starts a pinch at span pixels between the fingers.
func (a *App) PinchBegin(span float64) {
	a.pinch.Begin(span)
}

// PinchUpdate zooms by the span change since the previous update. Motion
// short of a whole zoom step carries over to the next update. It returns the
// zoom index and whether it changed.
func (a *App) PinchUpdate(ctx context.Context, span float64) (int, bool, error) {
	status := a.session.Status()
	if !a.pinch.InProgress() {
		return status.Zoom.Current, false, nil
	}

	steps := a.pinch.Steps(span, geometry.ZoomUnit(status.Screen, status.Zoom.Max))
	if steps == 0 {
		return status.Zoom.Current, false, nil
	}
	zoom, changed, err := a.session.ZoomBy(ctx, steps)
	if err != nil {
		return zoom, false, err
	}
	if changed {
		a.hub.Publish(EventZoom, a.session.Status().Zoom)
	}
	return zoom, changed, nil
}

// PinchEnd finishes the pinch.
func (a *App) PinchEnd() {
	a.pinch.End()
}

// Switch toggles between the back and front camera and remembers the choice.
func (a *App) Switch(ctx context.Context) error {
	if a.hasPending() {
		return ErrCapturePending
	}

	a.indicator.Dismiss()
	if err := a.session.SwitchCamera(ctx); err != nil {
		return err
	}
	a.scene.Reset()

	facing := a.session.Facing()
	if a.store != nil {
		if err := a.store.Settings().Set(store.SettingLastFacing, facing.String()); err != nil {
			a.logger.Warn("failed to save camera facing", "error", err)
		}
	}

	a.logger.Info("camera switched", "facing", facing)
	a.publishState()
	return nil
}

// Capture takes a picture and holds it until Confirm or Retry. The camera is
// closed while the picture is pending.
func (a *App) Capture(ctx context.Context) (*picture.Still, error) {
	if a.hasPending() {
		return nil, ErrCapturePending
	}

	a.indicator.Dismiss()
	still, err := a.session.TakePicture(ctx)
	if err != nil {
		return nil, err
	}

	a.mu.Lock()
	a.pending = still
	a.mu.Unlock()

	size := still.Size()
	a.hub.Publish(EventCapturePending, map[string]any{
		"facing":   still.Facing,
		"rotation": still.Transform.RotationDeg,
		"mirrored": still.Transform.MirrorX,
		"width":    size.Width,
		"height":   size.Height,
	})
	a.publishState()
	return still, nil
}

// Pending returns the picture waiting for Confirm or Retry, or nil.
func (a *App) Pending() *picture.Still {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.pending
}

func (a *App) hasPending() bool {
	return a.Pending() != nil
}

// Confirm saves the pending picture to the capture directory, records it,
// runs the capture hooks and reopens the camera.
func (a *App) Confirm(ctx context.Context) (*store.Capture, error) {
	a.mu.Lock()
	still := a.pending
	a.mu.Unlock()
	if still == nil {
		return nil, ErrNoPending
	}

	id := uuid.New().String()
	path := filepath.Join(a.settings.Capture.Dir, id+a.format.Ext())
	if err := picture.Save(path, still.Image, a.format, a.settings.Capture.Quality); err != nil {
		return nil, fmt.Errorf("failed to save capture: %w", err)
	}

	size := still.Size()
	c := &store.Capture{
		ID:        id,
		Path:      path,
		Format:    a.format,
		Facing:    still.Facing,
		Rotation:  still.Transform.RotationDeg,
		Mirrored:  still.Transform.MirrorX,
		Width:     size.Width,
		Height:    size.Height,
		CreatedAt: still.CapturedAt,
	}
	if a.store != nil {
		if err := a.store.Captures().Create(c); err != nil {
			// the picture stays pending; a later Confirm writes a new file
			if rmErr := os.Remove(path); rmErr != nil {
				a.logger.Warn("failed to remove unrecorded capture", "path", path, "error", rmErr)
			}
			return nil, fmt.Errorf("failed to record capture: %w", err)
		}
	}

	a.mu.Lock()
	a.pending = nil
	a.mu.Unlock()

	a.logger.Info("capture confirmed", "id", id, "path", path)
	a.runHooks(ctx, hook.EventCaptureConfirmed, c)
	a.hub.Publish(EventCaptureConfirmed, c)

	if err := a.reopen(ctx); err != nil {
		return c, err
	}
	return c, nil
}

// Retry discards the pending picture, if any, and reopens the camera.
func (a *App) Retry(ctx context.Context) error {
	a.mu.Lock()
	a.pending = nil
	a.mu.Unlock()

	a.hub.Publish(EventCaptureRetry, nil)
	return a.reopen(ctx)
}

func (a *App) reopen(ctx context.Context) error {
	if !a.Running() {
		a.publishState()
		return nil
	}
	err := a.session.Open(ctx)
	a.scene.Reset()
	a.publishState()
	return err
}

// Captures lists stored captures, newest first.
func (a *App) Captures(limit int) ([]*store.Capture, error) {
	if a.store == nil {
		return nil, ErrNoStore
	}
	return a.store.Captures().List(limit)
}

// GetCapture returns a stored capture by id.
func (a *App) GetCapture(id string) (*store.Capture, error) {
	if a.store == nil {
		return nil, ErrNoStore
	}
	return a.store.Captures().GetByID(id)
}

// DeleteCapture removes a stored capture and its file, then runs the hooks.
func (a *App) DeleteCapture(ctx context.Context, id string) error {
	c, err := a.GetCapture(id)
	if err != nil {
		return err
	}

	if err := os.Remove(c.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove capture file: %w", err)
	}
	if err := a.store.Captures().Delete(id); err != nil {
		return err
	}

	a.logger.Info("capture deleted", "id", id)
	a.runHooks(ctx, hook.EventCaptureDeleted, c)
	a.hub.Publish(EventCaptureDeleted, c)
	return nil
}

func (a *App) runHooks(ctx context.Context, event string, c *store.Capture) {
	req := hook.Request{
		Event: event,
		Capture: hook.Capture{
			ID:        c.ID,
			Path:      c.Path,
			Format:    string(c.Format),
			Facing:    c.Facing.String(),
			Rotation:  c.Rotation,
			Mirrored:  c.Mirrored,
			Width:     c.Width,
			Height:    c.Height,
			CreatedAt: c.CreatedAt,
		},
	}
	a.hookExec.RunAll(ctx, a.hookMgr, req)
}

// Accelerometer feeds one accelerometer reading into the rotation tracker.
// It returns the tracked rotation and whether it changed.
func (a *App) Accelerometer(r sensor.Reading) (int, bool) {
	return a.rotation.Update(r)
}

// Events subscribes to application events. Call the returned function to unsubscribe.
func (a *App) Events() (<-chan Event, func()) {
	return a.hub.Subscribe()
}

// Frame returns the latest preview frame as JPEG and its sequence number.
// The sequence is 0 before the first frame.
func (a *App) Frame() ([]byte, uint64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.frame, a.frameSeq
}

func (a *App) setFrame(jpeg []byte) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.frame = jpeg
	a.frameSeq++
}

// Status returns a snapshot of the app.
func (a *App) Status() Status {
	return Status{
		Running:   a.Running(),
		Session:   a.session.Status(),
		Rotation:  a.rotation.Rotation(),
		Pending:   a.hasPending(),
		Indicator: a.indicator.State(),
		Hooks:     len(a.hookMgr.List()),

		SceneChanging: a.scene.Changing(),
	}
}

func (a *App) publishState() {
	a.hub.Publish(EventState, a.Status())
}

// Session returns the camera session.
func (a *App) Session() *session.Session {
	return a.session
}

// Hooks returns the hook manager.
func (a *App) Hooks() *hook.Manager {
	return a.hookMgr
}

// FrameInterval is the preview loop period.
func (a *App) FrameInterval() time.Duration {
	return time.Second / time.Duration(a.settings.Preview.FPS)
}
