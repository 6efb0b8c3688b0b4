package gesture

import (
	"sync"
	"time"
)

// IndicatorState is a snapshot of the focus indicator.
type IndicatorState struct {
	Visible bool    `json:"visible"`
	X       float64 `json:"x"`
	Y       float64 `json:"y"`
	Token   uint64  `json:"token"`
}

// FocusIndicator tracks the focus ring shown where the user tapped. Each Show
// returns a token; only the completion carrying the latest token hides the
// ring, and a timeout hides it when focus never completes.
type FocusIndicator struct {
	timeout  time.Duration
	state    IndicatorState
	timer    *time.Timer
	onChange func(IndicatorState)
	mu       sync.Mutex
}

// NewFocusIndicator creates an indicator. A timeout <= 0 uses FocusIndicatorTimeout.
func NewFocusIndicator(timeout time.Duration) *FocusIndicator {
	if timeout <= 0 {
		timeout = FocusIndicatorTimeout
	}
	return &FocusIndicator{timeout: timeout}
}

// OnChange registers fn to be called with every visibility change.
func (f *FocusIndicator) OnChange(fn func(IndicatorState)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.onChange = fn
}

// Show displays the indicator at (x, y) and restarts the timeout.
func (f *FocusIndicator) Show(x, y float64) uint64 {
	f.mu.Lock()
	f.state.Token++
	f.state.Visible = true
	f.state.X, f.state.Y = x, y
	token := f.state.Token

	if f.timer != nil {
		f.timer.Stop()
	}
	f.timer = time.AfterFunc(f.timeout, func() { f.hide(token, true) })

	state, fn := f.state, f.onChange
	f.mu.Unlock()

	if fn != nil {
		fn(state)
	}
	return token
}

// Complete hides the indicator if token is still the latest one.
// It reports whether the indicator was hidden.
func (f *FocusIndicator) Complete(token uint64) bool {
	return f.hide(token, false)
}

// Dismiss hides the indicator regardless of token.
func (f *FocusIndicator) Dismiss() {
	f.mu.Lock()
	token := f.state.Token
	f.mu.Unlock()
	f.hide(token, false)
}

func (f *FocusIndicator) hide(token uint64, fromTimer bool) bool {
	f.mu.Lock()
	if token != f.state.Token || !f.state.Visible {
		f.mu.Unlock()
		return false
	}
	f.state.Visible = false
	if !fromTimer && f.timer != nil {
		f.timer.Stop()
	}
	state, fn := f.state, f.onChange
	f.mu.Unlock()

	if fn != nil {
		fn(state)
	}
	return true
}

func (f *FocusIndicator) State() IndicatorState {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}
