// Package tray provides a system tray menu for the snapview camera service.
package tray

import (
	"sync"

	"github.com/getlantern/systray"
)

// Tray is the system tray menu. Menu actions are delivered to callbacks so
// the tray stays independent of the camera application.
type Tray struct {
	onSwitch  func()
	onCapture func()
	onViewer  func()
	onQuit    func()
	mu        sync.RWMutex

	menuState       *systray.MenuItem
	menuLastCapture *systray.MenuItem
	menuSwitch      *systray.MenuItem
}

func New() *Tray {
	return &Tray{}
}

// OnSwitch sets the callback for the switch camera item.
func (t *Tray) OnSwitch(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onSwitch = fn
}

// OnCapture sets the callback for the capture item.
func (t *Tray) OnCapture(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onCapture = fn
}

// OnOpenViewer sets the callback for the open viewer item.
func (t *Tray) OnOpenViewer(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onViewer = fn
}

// OnQuit sets the callback for the quit item.
func (t *Tray) OnQuit(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onQuit = fn
}

// Run starts the tray. It blocks until Quit is called and must run on the
// main goroutine.
func (t *Tray) Run() {
	systray.Run(t.onReady, t.onExit)
}

// Quit removes the tray and makes Run return.
func (t *Tray) Quit() {
	systray.Quit()
}

func (t *Tray) onReady() {
	systray.SetTitle("Snapview")
	systray.SetTooltip("Snapview camera")

	t.mu.Lock()
	t.menuState = systray.AddMenuItem(StateTitle(""), "Camera state")
	t.menuState.Disable()
	t.menuLastCapture = systray.AddMenuItem(CaptureTitle(""), "Last confirmed capture")
	t.menuLastCapture.Disable()
	systray.AddSeparator()

	t.menuSwitch = systray.AddMenuItem("Switch Camera", "Switch between back and front cameras")
	t.mu.Unlock()

	menuCapture := systray.AddMenuItem("Capture", "Take a picture")
	menuViewer := systray.AddMenuItem("Open Viewer...", "Open the viewer in a browser")
	systray.AddSeparator()

	menuQuit := systray.AddMenuItem("Quit", "Quit Snapview")

	go func() {
		for {
			select {
			case <-t.menuSwitch.ClickedCh:
				t.call(func() func() { return t.onSwitch })
			case <-menuCapture.ClickedCh:
				t.call(func() func() { return t.onCapture })
			case <-menuViewer.ClickedCh:
				t.call(func() func() { return t.onViewer })
			case <-menuQuit.ClickedCh:
				t.call(func() func() { return t.onQuit })
				systray.Quit()
				return
			}
		}
	}()
}

func (t *Tray) onExit() {}

// call runs the callback returned by get outside the lock.
func (t *Tray) call(get func() func()) {
	t.mu.RLock()
	fn := get()
	t.mu.RUnlock()

	if fn != nil {
		fn()
	}
}

// SetState updates the camera state line.
func (t *Tray) SetState(state string) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if t.menuState != nil {
		t.menuState.SetTitle(StateTitle(state))
	}
}

// SetSwitchable enables the switch item only on multi-camera devices.
func (t *Tray) SetSwitchable(ok bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if t.menuSwitch == nil {
		return
	}
	if ok {
		t.menuSwitch.Enable()
	} else {
		t.menuSwitch.Disable()
	}
}

// SetLastCapture updates the last capture line.
func (t *Tray) SetLastCapture(name string) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if t.menuLastCapture != nil {
		t.menuLastCapture.SetTitle(CaptureTitle(name))
	}
}

// StateTitle is the menu title for a camera state.
func StateTitle(state string) string {
	switch state {
	case "opened":
		return "● Camera open"
	case "shooting":
		return "◉ Shooting"
	case "":
		return "○ Starting"
	}
	return "○ Camera " + state
}

// CaptureTitle is the menu title for the last capture.
func CaptureTitle(name string) string {
	if name == "" {
		return "Last: none"
	}
	return "Last: " + name
}
