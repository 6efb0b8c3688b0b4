package session

import (
	"context"
	"errors"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/ayusman/snapview/internal/capture"
	"github.com/ayusman/snapview/internal/geometry"
	"github.com/ayusman/snapview/internal/testutil"
)

var testScreen = geometry.ScreenSize{Width: 1280, Height: 720}

func testParams() capture.Parameters {
	sizes := []geometry.Size{
		{Width: 1920, Height: 1080},
		{Width: 1280, Height: 720},
		{Width: 640, Height: 480},
	}
	return capture.Parameters{
		SupportedPreviewSizes: sizes,
		SupportedPictureSizes: sizes,
		FocusModes:            []string{capture.FocusModeAuto, capture.FocusModeContinuousPicture},
		FocusMode:             capture.FocusModeAuto,
		MaxFocusAreas:         1,
		MaxMeteringAreas:      1,
		ZoomSupported:         true,
		MaxZoom:               18, // 720 / 5 / 18 = 8px per step
	}
}

type fixture struct {
	back    *capture.MockCamera
	front   *capture.MockCamera
	session *Session
}

func newFixture(t *testing.T, withFront bool) *fixture {
	t.Helper()

	f := &fixture{
		back: capture.NewMockCamera(capture.Info{ID: 0, Facing: geometry.FacingBack, Orientation: 90}, testParams()),
	}
	f.back.SetPicture(testutil.MarkerJPEG(64, 48))

	cams := []*capture.MockCamera{f.back}
	if withFront {
		frontParams := testParams()
		frontParams.MaxFocusAreas = 0
		frontParams.MaxMeteringAreas = 0
		f.front = capture.NewMockCamera(capture.Info{ID: 1, Facing: geometry.FacingFront, Orientation: 270}, frontParams)
		f.front.SetPicture(testutil.MarkerJPEG(64, 48))
		cams = append(cams, f.front)
	}

	s, err := New(Config{Screen: testScreen, Registry: capture.NewMockRegistry(cams...)})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(s.Shutdown)
	f.session = s
	return f
}

func (f *fixture) open(t *testing.T) {
	t.Helper()
	if err := f.session.SetSurface(testScreen.Height, testScreen.Width); err != nil {
		t.Fatalf("SetSurface() error = %v", err)
	}
	if err := f.session.Open(context.Background()); err != nil {
		t.Fatalf("Open() error = %v", err)
	}
}

func TestNew_NoCamera(t *testing.T) {
	if _, err := New(Config{Screen: testScreen}); !errors.Is(err, ErrNoCamera) {
		t.Errorf("New(nil registry) error = %v, want ErrNoCamera", err)
	}
	if _, err := New(Config{Screen: testScreen, Registry: capture.NewMockRegistry()}); !errors.Is(err, ErrNoCamera) {
		t.Errorf("New(empty registry) error = %v, want ErrNoCamera", err)
	}
}

func TestNew_PreferFront(t *testing.T) {
	back := capture.NewMockCamera(capture.Info{ID: 0, Facing: geometry.FacingBack}, testParams())
	front := capture.NewMockCamera(capture.Info{ID: 1, Facing: geometry.FacingFront}, testParams())

	s, err := New(Config{Screen: testScreen, Registry: capture.NewMockRegistry(back, front), PreferFront: true})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer s.Shutdown()

	if s.Facing() != geometry.FacingFront {
		t.Errorf("Facing() = %v, want front", s.Facing())
	}
}

func TestOpen_RequiresSurface(t *testing.T) {
	f := newFixture(t, false)

	if err := f.session.Open(context.Background()); !errors.Is(err, ErrNoSurface) {
		t.Fatalf("Open() error = %v, want ErrNoSurface", err)
	}
	if f.session.State() != Idle {
		t.Errorf("State() = %v, want idle", f.session.State())
	}
	if f.back.IsOpen() {
		t.Error("device opened without a surface")
	}

	if err := f.session.SetSurface(0, 100); !errors.Is(err, ErrNoSurface) {
		t.Errorf("SetSurface(0, 100) error = %v, want ErrNoSurface", err)
	}
}

func TestOpen_AppliesPreviewParams(t *testing.T) {
	f := newFixture(t, false)
	f.open(t)

	s := f.session
	if s.State() != Opened || !s.IsOpened() {
		t.Fatalf("State() = %v, want opened", s.State())
	}

	p := f.back.CurrentParameters()
	want := geometry.Size{Width: 1280, Height: 720}
	if p.PreviewSize != want || p.PictureSize != want {
		t.Errorf("preview/picture size = %v/%v, want %v", p.PreviewSize, p.PictureSize, want)
	}
	if p.FocusMode != capture.FocusModeContinuousPicture {
		t.Errorf("FocusMode = %q, want continuous-picture", p.FocusMode)
	}
	if p.JPEGQuality != PictureQuality {
		t.Errorf("JPEGQuality = %d, want %d", p.JPEGQuality, PictureQuality)
	}
	if got := f.back.DisplayOrientation(); got != 90 {
		t.Errorf("display orientation = %d, want 90", got)
	}
	if !f.back.IsPreviewing() {
		t.Error("preview not started")
	}
	if !s.ContinuousFocus() {
		t.Error("ContinuousFocus() = false after open")
	}

	status := s.Status()
	if status.State != "opened" || status.Screen != testScreen || status.DisplayOrientation != 90 {
		t.Errorf("Status() = %+v", status)
	}
}

func TestOpen_DeviceFailure(t *testing.T) {
	f := newFixture(t, false)
	boom := errors.New("device busy")
	f.back.FailOpen(boom)

	if err := f.session.SetSurface(720, 1280); err != nil {
		t.Fatalf("SetSurface() error = %v", err)
	}
	err := f.session.Open(context.Background())
	if !errors.Is(err, boom) {
		t.Fatalf("Open() error = %v, want wrapping %v", err, boom)
	}
	if f.session.IsOpened() {
		t.Error("session opened after device failure")
	}

	// recoverable: the next open succeeds
	f.back.FailOpen(nil)
	if err := f.session.Open(context.Background()); err != nil {
		t.Fatalf("Open() after recovery error = %v", err)
	}
}

func TestOpen_ReopenStartsNewEpoch(t *testing.T) {
	f := newFixture(t, false)
	f.open(t)

	first := f.session.Epoch()
	if err := f.session.Open(context.Background()); err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if f.session.Epoch() <= first {
		t.Errorf("Epoch() = %d, want > %d", f.session.Epoch(), first)
	}
}

func TestFocus(t *testing.T) {
	f := newFixture(t, false)
	f.open(t)
	f.back.ResetCalls()

	// portrait surface 720x1280; tap in the center
	res, err := f.session.Focus(context.Background(), 360, 640)
	if err != nil {
		t.Fatalf("Focus() error = %v", err)
	}
	if !res.Success || res.Epoch != f.session.Epoch() {
		t.Errorf("Focus() = %+v, epoch %d", res, f.session.Epoch())
	}

	p := f.back.CurrentParameters()
	wantFocus := geometry.FocusRegion{Left: -100, Top: -100, Right: 100, Bottom: 100, Weight: geometry.AreaWeight}
	wantMetering := geometry.FocusRegion{Left: -150, Top: -150, Right: 150, Bottom: 150, Weight: geometry.AreaWeight}
	if len(p.FocusAreas) != 1 || p.FocusAreas[0] != wantFocus {
		t.Errorf("FocusAreas = %v, want [%v]", p.FocusAreas, wantFocus)
	}
	if len(p.MeteringAreas) != 1 || p.MeteringAreas[0] != wantMetering {
		t.Errorf("MeteringAreas = %v, want [%v]", p.MeteringAreas, wantMetering)
	}
	if p.FocusMode != capture.FocusModeAuto {
		t.Errorf("FocusMode = %q, want auto", p.FocusMode)
	}

	want := []string{"CancelAutoFocus", "SetParameters", "AutoFocus"}
	if got := f.back.Calls(); !slices.Equal(got, want) {
		t.Errorf("Calls() = %v, want %v", got, want)
	}
}

func TestFocus_NoAreaSupport(t *testing.T) {
	f := newFixture(t, true)
	f.open(t)
	if err := f.session.SwitchCamera(context.Background()); err != nil {
		t.Fatalf("SwitchCamera() error = %v", err)
	}

	f.front.SetFocusResult(false, 0)
	res, err := f.session.Focus(context.Background(), 100, 100)
	if err != nil {
		t.Fatalf("Focus() error = %v", err)
	}
	if res.Success {
		t.Error("Focus() success = true, want false")
	}

	p := f.front.CurrentParameters()
	if len(p.FocusAreas) != 0 || len(p.MeteringAreas) != 0 {
		t.Errorf("areas set on a device without area support: %v %v", p.FocusAreas, p.MeteringAreas)
	}
}

func TestFocus_NotOpen(t *testing.T) {
	f := newFixture(t, false)

	if _, err := f.session.Focus(context.Background(), 1, 1); !errors.Is(err, ErrNotOpen) {
		t.Errorf("Focus() error = %v, want ErrNotOpen", err)
	}
}

func TestFocus_StaleAfterSwitch(t *testing.T) {
	f := newFixture(t, true)
	f.open(t)
	f.back.SetFocusResult(true, 50*time.Millisecond)

	var res FocusResult
	var focusErr error
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		res, focusErr = f.session.Focus(context.Background(), 10, 10)
	}()

	// let the focus job reach the worker first
	time.Sleep(10 * time.Millisecond)
	if err := f.session.SwitchCamera(context.Background()); err != nil {
		t.Fatalf("SwitchCamera() error = %v", err)
	}
	wg.Wait()

	if focusErr != nil {
		t.Fatalf("Focus() error = %v", focusErr)
	}
	if res.Epoch == f.session.Epoch() {
		t.Error("focus result from the previous camera should be stale")
	}
}

func TestZoom(t *testing.T) {
	f := newFixture(t, false)
	f.open(t)
	ctx := context.Background()

	writes := f.back.ParameterWrites()

	zoom, changed, err := f.session.Zoom(ctx, 16)
	if err != nil || zoom != 2 || !changed {
		t.Fatalf("Zoom(16) = %d, %v, %v, want 2, true, nil", zoom, changed, err)
	}
	if f.back.CurrentParameters().Zoom != 2 {
		t.Errorf("device zoom = %d, want 2", f.back.CurrentParameters().Zoom)
	}

	zoom, changed, err = f.session.Zoom(ctx, 3)
	if err != nil || zoom != 2 || changed {
		t.Errorf("Zoom(3) = %d, %v, %v, want 2, false, nil", zoom, changed, err)
	}
	if got := f.back.ParameterWrites() - writes; got != 1 {
		t.Errorf("parameter writes = %d, want 1 (unchanged zoom is not written)", got)
	}

	zoom, _, _ = f.session.Zoom(ctx, 10000)
	if zoom != 18 {
		t.Errorf("Zoom(10000) = %d, want max 18", zoom)
	}
	if got := f.session.Status().Zoom; got != (geometry.ZoomState{Current: 18, Max: 18}) {
		t.Errorf("Status().Zoom = %+v", got)
	}
}

func TestZoomBy(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()

	if _, _, err := f.session.ZoomBy(ctx, 1); !errors.Is(err, ErrNotOpen) {
		t.Errorf("ZoomBy() before Open error = %v, want ErrNotOpen", err)
	}

	f.open(t)
	zoom, changed, err := f.session.ZoomBy(ctx, 5)
	if err != nil || zoom != 5 || !changed {
		t.Fatalf("ZoomBy(5) = %d, %v, %v, want 5, true, nil", zoom, changed, err)
	}
	zoom, changed, _ = f.session.ZoomBy(ctx, -5)
	if zoom != 0 || !changed {
		t.Errorf("ZoomBy(-5) = %d, %v, want 0, true", zoom, changed)
	}
	if _, changed, _ = f.session.ZoomBy(ctx, -1); changed {
		t.Error("ZoomBy(-1) at zero reported a change")
	}
}

func TestZoom_Unsupported(t *testing.T) {
	params := testParams()
	params.ZoomSupported = false
	cam := capture.NewMockCamera(capture.Info{ID: 0}, params)

	s, err := New(Config{Screen: testScreen, Registry: capture.NewMockRegistry(cam)})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer s.Shutdown()
	s.SetSurface(1280, 720)
	if err := s.Open(context.Background()); err != nil {
		t.Fatalf("Open() error = %v", err)
	}

	writes := cam.ParameterWrites()
	zoom, changed, err := s.Zoom(context.Background(), 100)
	if err != nil || zoom != 0 || changed {
		t.Errorf("Zoom() = %d, %v, %v, want 0, false, nil", zoom, changed, err)
	}
	if cam.ParameterWrites() != writes {
		t.Error("parameters written for a device without zoom")
	}
}

func TestZoom_NotOpen(t *testing.T) {
	f := newFixture(t, false)
	if _, _, err := f.session.Zoom(context.Background(), 10); !errors.Is(err, ErrNotOpen) {
		t.Errorf("Zoom() error = %v, want ErrNotOpen", err)
	}
}

func TestSwitchCamera(t *testing.T) {
	f := newFixture(t, true)
	f.open(t)
	ctx := context.Background()

	epoch := f.session.Epoch()
	if err := f.session.SwitchCamera(ctx); err != nil {
		t.Fatalf("SwitchCamera() error = %v", err)
	}

	if f.session.Facing() != geometry.FacingFront {
		t.Errorf("Facing() = %v, want front", f.session.Facing())
	}
	if f.back.IsOpen() || !f.front.IsOpen() {
		t.Errorf("back open = %v, front open = %v", f.back.IsOpen(), f.front.IsOpen())
	}
	if f.session.Epoch() <= epoch {
		t.Error("switch did not start a new epoch")
	}
	// front mounted at 270: (360 - 270) % 360
	if got := f.front.DisplayOrientation(); got != 90 {
		t.Errorf("front display orientation = %d, want 90", got)
	}

	if err := f.session.SwitchCamera(ctx); err != nil {
		t.Fatalf("SwitchCamera() back error = %v", err)
	}
	if f.session.Facing() != geometry.FacingBack || !f.back.IsOpen() {
		t.Error("second switch should return to the back camera")
	}
}

func TestSwitchCamera_Single(t *testing.T) {
	f := newFixture(t, false)
	f.open(t)

	if f.session.HasMultiCamera() {
		t.Error("HasMultiCamera() = true with one camera")
	}
	if err := f.session.SwitchCamera(context.Background()); !errors.Is(err, ErrSingleCamera) {
		t.Errorf("SwitchCamera() error = %v, want ErrSingleCamera", err)
	}
}

func TestTakePicture(t *testing.T) {
	tests := []struct {
		name           string
		front          bool
		sensorRotation int
		wantRotation   int
		wantMirror     bool
		wantW, wantH   int
	}{
		{name: "back upright", wantRotation: 90, wantW: 48, wantH: 64},
		{name: "back landscape", sensorRotation: 90, wantRotation: 180, wantW: 64, wantH: 48},
		{name: "front upright", front: true, wantRotation: 270, wantMirror: true, wantW: 48, wantH: 64},
		{name: "front rotated", front: true, sensorRotation: 270, wantRotation: 0, wantMirror: true, wantW: 64, wantH: 48},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, true)
			f.open(t)
			cam := f.back
			if tt.front {
				if err := f.session.SwitchCamera(context.Background()); err != nil {
					t.Fatalf("SwitchCamera() error = %v", err)
				}
				cam = f.front
			}
			f.session.SetSensorRotation(tt.sensorRotation)

			still, err := f.session.TakePicture(context.Background())
			if err != nil {
				t.Fatalf("TakePicture() error = %v", err)
			}

			if still.Transform.RotationDeg != tt.wantRotation || still.Transform.MirrorX != tt.wantMirror {
				t.Errorf("Transform = %+v, want rotation %d mirror %v", still.Transform, tt.wantRotation, tt.wantMirror)
			}
			if got := still.Size(); got.Width != tt.wantW || got.Height != tt.wantH {
				t.Errorf("Size() = %v, want %dx%d", got, tt.wantW, tt.wantH)
			}
			if tt.front && still.Facing != geometry.FacingFront {
				t.Errorf("Facing = %v, want front", still.Facing)
			}

			// the device is released after shooting
			if f.session.State() != Idle || cam.IsOpen() {
				t.Errorf("State() = %v, device open = %v", f.session.State(), cam.IsOpen())
			}
		})
	}
}

func TestTakePicture_Failures(t *testing.T) {
	ctx := context.Background()

	t.Run("not open", func(t *testing.T) {
		f := newFixture(t, false)
		if _, err := f.session.TakePicture(ctx); !errors.Is(err, ErrNotOpen) {
			t.Errorf("TakePicture() error = %v, want ErrNotOpen", err)
		}
	})

	t.Run("empty", func(t *testing.T) {
		f := newFixture(t, false)
		f.back.SetPicture(nil)
		f.open(t)

		if _, err := f.session.TakePicture(ctx); !errors.Is(err, ErrEmptyCapture) {
			t.Errorf("TakePicture() error = %v, want ErrEmptyCapture", err)
		}
		if f.session.State() != Idle {
			t.Errorf("State() = %v, want idle", f.session.State())
		}
	})

	t.Run("device error", func(t *testing.T) {
		f := newFixture(t, false)
		boom := errors.New("shutter jammed")
		f.back.FailPicture(boom)
		f.open(t)

		if _, err := f.session.TakePicture(ctx); !errors.Is(err, boom) {
			t.Errorf("TakePicture() error = %v, want wrapping %v", err, boom)
		}
		if f.session.State() != Idle || f.back.IsOpen() {
			t.Error("session should be idle with the device released after a failed capture")
		}
	})

	t.Run("undecodable", func(t *testing.T) {
		f := newFixture(t, false)
		f.back.SetPicture([]byte("not a jpeg"))
		f.open(t)

		if _, err := f.session.TakePicture(ctx); err == nil {
			t.Error("TakePicture() should fail for undecodable data")
		}
	})
}

func TestClearSurface(t *testing.T) {
	f := newFixture(t, false)
	f.open(t)

	f.session.ClearSurface()
	if err := f.session.Open(context.Background()); !errors.Is(err, ErrNoSurface) {
		t.Errorf("Open() after ClearSurface error = %v, want ErrNoSurface", err)
	}
	if f.back.IsOpen() {
		t.Error("device left open after a failed reopen")
	}
}

func TestShutdown(t *testing.T) {
	f := newFixture(t, false)
	f.open(t)

	f.session.Shutdown()
	f.session.Shutdown()

	if f.back.IsOpen() {
		t.Error("device still open after Shutdown")
	}
	if err := f.session.Open(context.Background()); !errors.Is(err, ErrShutdown) {
		t.Errorf("Open() after Shutdown error = %v, want ErrShutdown", err)
	}
}

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to State
		want     bool
	}{
		{Idle, Opened, true},
		{Idle, Shooting, false},
		{Idle, Idle, false},
		{Opened, Shooting, true},
		{Opened, Idle, true},
		{Opened, Opened, false},
		{Shooting, Idle, true},
		{Shooting, Opened, false},
	}

	for _, tt := range tests {
		if got := CanTransition(tt.from, tt.to); got != tt.want {
			t.Errorf("CanTransition(%v, %v) = %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
}

func TestState_String(t *testing.T) {
	if Idle.String() != "idle" || Opened.String() != "opened" || Shooting.String() != "shooting" {
		t.Error("unexpected state names")
	}
	if State(9).String() != "state(9)" {
		t.Errorf("State(9).String() = %q", State(9).String())
	}
}
