package capture

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"gocv.io/x/gocv"
)

// MockCamera is a scripted Device for testing. It plays back pre-recorded
// frames, returns a fixed picture and records every call made to it.
type MockCamera struct {
	info    Info
	initial Parameters
	params  Parameters

	frames []*gocv.Mat
	index  int
	loop   bool

	picture     []byte
	focusResult bool
	focusDelay  time.Duration
	openErr     error
	pictureErr  error

	displayOrientation int
	running            bool
	previewing         bool
	calls              []string
	paramWrites        int
	mu                 sync.Mutex
}

// NewMockCamera creates a mock reporting info and starting every Open with params.
func NewMockCamera(info Info, params Parameters) *MockCamera {
	return &MockCamera{
		info:        info,
		initial:     params.Clone(),
		focusResult: true,
	}
}

func (c *MockCamera) record(format string, args ...any) {
	c.calls = append(c.calls, fmt.Sprintf(format, args...))
}

func (c *MockCamera) Open() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.record("Open")
	if c.openErr != nil {
		return c.openErr
	}
	c.running = true
	c.previewing = false
	c.index = 0
	c.params = c.initial.Clone()
	return nil
}

func (c *MockCamera) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.record("Close")
	c.running = false
	c.previewing = false
	return nil
}

func (c *MockCamera) IsOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}

func (c *MockCamera) Info() Info {
	return c.info
}

func (c *MockCamera) Parameters() (Parameters, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.running {
		return Parameters{}, ErrCameraNotOpen
	}
	return c.params.Clone(), nil
}

func (c *MockCamera) SetParameters(p Parameters) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.record("SetParameters")
	if !c.running {
		return ErrCameraNotOpen
	}
	c.params = p.Clone()
	c.paramWrites++
	return nil
}

func (c *MockCamera) SetDisplayOrientation(degrees int) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.record("SetDisplayOrientation(%d)", degrees)
	c.displayOrientation = degrees
	return nil
}

func (c *MockCamera) StartPreview() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.record("StartPreview")
	if !c.running {
		return ErrCameraNotOpen
	}
	c.previewing = true
	return nil
}

func (c *MockCamera) ReadFrame() (*gocv.Mat, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.running {
		return nil, ErrCameraNotOpen
	}

	if len(c.frames) == 0 {
		return nil, errors.New("no frames available")
	}

	if c.index >= len(c.frames) {
		if !c.loop {
			return nil, errors.New("no more frames")
		}
		c.index = 0
	}

	// Clone the frame so the original isn't modified
	frame := c.frames[c.index].Clone()
	c.index++

	return &frame, nil
}

func (c *MockCamera) AutoFocus(ctx context.Context) (bool, error) {
	c.mu.Lock()
	c.record("AutoFocus")
	running, delay, result := c.running, c.focusDelay, c.focusResult
	c.mu.Unlock()

	if !running {
		return false, ErrCameraNotOpen
	}
	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return false, ctx.Err()
		}
	}
	return result, nil
}

func (c *MockCamera) CancelAutoFocus() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.record("CancelAutoFocus")
}

func (c *MockCamera) TakePicture(ctx context.Context) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.record("TakePicture")
	if !c.running {
		return nil, ErrCameraNotOpen
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if c.pictureErr != nil {
		return nil, c.pictureErr
	}
	return slices.Clone(c.picture), nil
}

// SetFrames replaces the preview frame sequence.
func (c *MockCamera) SetFrames(frames []*gocv.Mat, loop bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.frames = frames
	c.loop = loop
	c.index = 0
}

// SetPicture sets the bytes returned by TakePicture.
func (c *MockCamera) SetPicture(data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.picture = slices.Clone(data)
}

// SetFocusResult sets the AutoFocus outcome and how long it takes to report.
func (c *MockCamera) SetFocusResult(success bool, delay time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.focusResult = success
	c.focusDelay = delay
}

// FailOpen makes Open return err. A nil err clears the failure.
func (c *MockCamera) FailOpen(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.openErr = err
}

// FailPicture makes TakePicture return err. A nil err clears the failure.
func (c *MockCamera) FailPicture(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pictureErr = err
}

// Calls returns the recorded method calls in order.
func (c *MockCamera) Calls() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.calls)
}

// ResetCalls clears the call record.
func (c *MockCamera) ResetCalls() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = nil
	c.paramWrites = 0
}

// ParameterWrites returns how many times SetParameters succeeded.
func (c *MockCamera) ParameterWrites() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.paramWrites
}

// CurrentParameters returns the last written parameters regardless of open state.
func (c *MockCamera) CurrentParameters() Parameters {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.params.Clone()
}

// DisplayOrientation returns the last display orientation set.
func (c *MockCamera) DisplayOrientation() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.displayOrientation
}

// IsPreviewing reports whether StartPreview ran since the last Open.
func (c *MockCamera) IsPreviewing() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.previewing
}

// MockRegistry serves a fixed set of mock cameras.
type MockRegistry struct {
	cameras []*MockCamera
}

func NewMockRegistry(cameras ...*MockCamera) *MockRegistry {
	return &MockRegistry{cameras: cameras}
}

func (r *MockRegistry) Cameras() []Info {
	infos := make([]Info, 0, len(r.cameras))
	for _, c := range r.cameras {
		infos = append(infos, c.info)
	}
	return infos
}

func (r *MockRegistry) Device(id int) (Device, error) {
	if c := r.Camera(id); c != nil {
		return c, nil
	}
	return nil, ErrCameraNotFound
}

// Camera returns the mock with the given id, or nil.
func (r *MockRegistry) Camera(id int) *MockCamera {
	for _, c := range r.cameras {
		if c.info.ID == id {
			return c
		}
	}
	return nil
}
