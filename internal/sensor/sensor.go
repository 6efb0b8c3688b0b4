// Package sensor turns accelerometer readings into the device rotation used to
// orient captured pictures.
package sensor

import (
	"context"
	"errors"
	"slices"
	"sync"
	"time"

	"github.com/ayusman/snapview/internal/geometry"
)

// Reading is one accelerometer sample in m/s².
type Reading struct {
	X         float64 `json:"x"`
	Y         float64 `json:"y"`
	Z         float64 `json:"z"`
	Timestamp int64   `json:"timestamp"` // unix milliseconds
}

// Source produces accelerometer readings until ctx is done. The returned
// channel is closed when the source stops.
type Source interface {
	Readings(ctx context.Context) (<-chan Reading, error)
}

// ErrSourceClosed is returned by Feed.Push after Close.
var ErrSourceClosed = errors.New("sensor source closed")

// ReplaySource plays back a recorded sequence of readings at a fixed interval.
type ReplaySource struct {
	readings []Reading
	interval time.Duration
	loop     bool
}

func NewReplaySource(readings []Reading, interval time.Duration, loop bool) *ReplaySource {
	return &ReplaySource{
		readings: slices.Clone(readings),
		interval: interval,
		loop:     loop,
	}
}

func (s *ReplaySource) Readings(ctx context.Context) (<-chan Reading, error) {
	if len(s.readings) == 0 {
		return nil, errors.New("no readings to replay")
	}

	out := make(chan Reading)
	go func() {
		defer close(out)

		var tick <-chan time.Time
		if s.interval > 0 {
			ticker := time.NewTicker(s.interval)
			defer ticker.Stop()
			tick = ticker.C
		}

		for i := 0; ; i++ {
			if i == len(s.readings) {
				if !s.loop {
					return
				}
				i = 0
			}

			if tick != nil {
				select {
				case <-ctx.Done():
					return
				case <-tick:
				}
			}

			select {
			case <-ctx.Done():
				return
			case out <- s.readings[i]:
			}
		}
	}()
	return out, nil
}

// Feed is a Source that forwards readings pushed by another component, such
// as a remote client over a WebSocket.
type Feed struct {
	ch     chan Reading
	done   chan struct{}
	once   sync.Once
	closed bool
	mu     sync.RWMutex
}

func NewFeed(buffer int) *Feed {
	return &Feed{
		ch:   make(chan Reading, buffer),
		done: make(chan struct{}),
	}
}

func (f *Feed) Readings(ctx context.Context) (<-chan Reading, error) {
	out := make(chan Reading)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case <-f.done:
				return
			case r := <-f.ch:
				select {
				case out <- r:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

// Push queues a reading. When the buffer is full the reading is dropped, the
// next one supersedes it anyway.
func (f *Feed) Push(r Reading) error {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if f.closed {
		return ErrSourceClosed
	}
	select {
	case f.ch <- r:
	default:
	}
	return nil
}

func (f *Feed) Close() {
	f.once.Do(func() {
		f.mu.Lock()
		f.closed = true
		f.mu.Unlock()
		close(f.done)
	})
}

// ChangeFunc is called when the tracked rotation changes. delta is the
// shortest turn from old to new.
type ChangeFunc func(old, new, delta int)

// RotationTracker holds the last confident device rotation derived from
// accelerometer readings.
type RotationTracker struct {
	rotation int
	onChange ChangeFunc
	mu       sync.Mutex
	updateMu sync.Mutex // orders changes and their callbacks
}

func NewRotationTracker() *RotationTracker {
	return &RotationTracker{}
}

// OnChange registers fn to be called after every rotation change. Calls are
// made one at a time in the order the changes happened; fn must not call
// Update.
func (t *RotationTracker) OnChange(fn ChangeFunc) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onChange = fn
}

// Update classifies r and returns the current rotation and whether it changed.
// Readings near a diagonal keep the previous rotation.
func (t *RotationTracker) Update(r Reading) (int, bool) {
	next := geometry.ClassifyTilt(r.X, r.Y)

	t.updateMu.Lock()
	defer t.updateMu.Unlock()

	t.mu.Lock()
	old := t.rotation
	if next == geometry.NoRotationChange || next == old {
		t.mu.Unlock()
		return old, false
	}
	t.rotation = next
	fn := t.onChange
	t.mu.Unlock()

	if fn != nil {
		fn(old, next, geometry.RotationDelta(old, next))
	}
	return next, true
}

func (t *RotationTracker) Rotation() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.rotation
}

// Run feeds every reading from src into the tracker until ctx is done or src stops.
func (t *RotationTracker) Run(ctx context.Context, src Source) error {
	readings, err := src.Readings(ctx)
	if err != nil {
		return err
	}
	for r := range readings {
		t.Update(r)
	}
	return ctx.Err()
}
