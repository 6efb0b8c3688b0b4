package tray

import "testing"

func TestStateTitle(t *testing.T) {
	tests := []struct {
		state string
		want  string
	}{
		{"opened", "● Camera open"},
		{"shooting", "◉ Shooting"},
		{"idle", "○ Camera idle"},
		{"", "○ Starting"},
	}
	for _, tt := range tests {
		if got := StateTitle(tt.state); got != tt.want {
			t.Errorf("StateTitle(%q) = %q, want %q", tt.state, got, tt.want)
		}
	}
}

func TestCaptureTitle(t *testing.T) {
	if got := CaptureTitle(""); got != "Last: none" {
		t.Errorf("CaptureTitle(\"\") = %q", got)
	}
	if got := CaptureTitle("a.jpg"); got != "Last: a.jpg" {
		t.Errorf("CaptureTitle(a.jpg) = %q", got)
	}
}

func TestTray_UpdatesBeforeReady(t *testing.T) {
	tr := New()
	// menu items do not exist until the tray is running
	tr.SetState("opened")
	tr.SetLastCapture("a.jpg")
	tr.SetSwitchable(false)
}
