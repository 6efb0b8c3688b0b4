// Package hook discovers and runs capture hooks: external executables that are
// handed every confirmed picture.
package hook

import (
	"encoding/json"
	"time"
)

// Events delivered to hooks.
const (
	EventCaptureConfirmed = "capture.confirmed"
	EventCaptureDeleted   = "capture.deleted"
)

// ManifestFile is the manifest name looked up in every hook directory.
const ManifestFile = "hook.json"

// Manifest describes a hook's metadata and the events it wants.
type Manifest struct {
	Name        string          `json:"name"`
	Version     string          `json:"version"`
	Description string          `json:"description"`
	Executable  string          `json:"executable"`
	Events      []string        `json:"events"`
	Config      json.RawMessage `json:"config,omitempty"`
}

// Capture describes the picture a hook is run for.
type Capture struct {
	ID        string    `json:"id"`
	Path      string    `json:"path"`
	Format    string    `json:"format"`
	Facing    string    `json:"facing"`
	Rotation  int       `json:"rotation"`
	Mirrored  bool      `json:"mirrored"`
	Width     int       `json:"width"`
	Height    int       `json:"height"`
	CreatedAt time.Time `json:"created_at"`
}

// Request is written to the hook's stdin as JSON.
type Request struct {
	Event   string          `json:"event"`
	Capture Capture         `json:"capture"`
	Config  json.RawMessage `json:"config,omitempty"`
}

// Response is read from the hook's stdout.
type Response struct {
	Success bool            `json:"success"`
	Error   string          `json:"error,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// Hook is a discovered hook with its manifest and location.
type Hook struct {
	Manifest   Manifest
	Path       string
	Executable string
}

// Handles reports whether the hook subscribed to event. A hook without
// events receives every event.
func (h *Hook) Handles(event string) bool {
	if len(h.Manifest.Events) == 0 {
		return true
	}
	for _, e := range h.Manifest.Events {
		if e == event {
			return true
		}
	}
	return false
}
