// Package main provides a capture hook that keeps a thumbnail for every
// confirmed capture. It reads a hook request on stdin and answers on stdout.
package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"
)

// Request represents the input from the hook executor.
type Request struct {
	Event   string          `json:"event"`
	Capture Capture         `json:"capture"`
	Config  json.RawMessage `json:"config"`
}

// Capture is the subset of the capture record this hook needs.
type Capture struct {
	ID   string `json:"id"`
	Path string `json:"path"`
}

// Response represents the output to the hook executor.
type Response struct {
	Success bool            `json:"success"`
	Error   string          `json:"error,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// Config is the hook configuration from hook.json.
type Config struct {
	Size    int    `json:"size"`
	Quality int    `json:"quality"`
	Dir     string `json:"dir"`
}

type eventHandler func(c Capture, cfg Config) (string, error)

var eventHandlers = map[string]eventHandler{
	"capture.confirmed": writeThumbnail,
	"capture.deleted":   removeThumbnail,
}

func main() {
	var req Request
	if err := json.NewDecoder(os.Stdin).Decode(&req); err != nil {
		writeErrorResponse(fmt.Sprintf("failed to decode request: %v", err))
		return
	}

	handler, ok := eventHandlers[req.Event]
	if !ok {
		writeErrorResponse(fmt.Sprintf("unknown event: %s", req.Event))
		return
	}

	cfg := Config{Size: 256, Quality: 80, Dir: ".thumbs"}
	if len(req.Config) > 0 {
		if err := json.Unmarshal(req.Config, &cfg); err != nil {
			writeErrorResponse(fmt.Sprintf("invalid config: %v", err))
			return
		}
	}

	thumb, err := handler(req.Capture, cfg)
	if err != nil {
		writeErrorResponse(fmt.Sprintf("%s failed: %v", req.Event, err))
		return
	}

	data, _ := json.Marshal(map[string]string{"thumbnail": thumb})
	json.NewEncoder(os.Stdout).Encode(Response{Success: true, Data: data})
}

// thumbPath returns where the thumbnail of c lives.
func thumbPath(c Capture, cfg Config) string {
	base := strings.TrimSuffix(filepath.Base(c.Path), filepath.Ext(c.Path))
	return filepath.Join(filepath.Dir(c.Path), cfg.Dir, base+".jpg")
}

func writeThumbnail(c Capture, cfg Config) (string, error) {
	img, err := imaging.Open(c.Path)
	if err != nil {
		return "", err
	}

	out := thumbPath(c, cfg)
	if err := os.MkdirAll(filepath.Dir(out), 0755); err != nil {
		return "", err
	}

	thumb := imaging.Fit(img, cfg.Size, cfg.Size, imaging.Lanczos)
	if err := imaging.Save(thumb, out, imaging.JPEGQuality(cfg.Quality)); err != nil {
		return "", err
	}
	return out, nil
}

func removeThumbnail(c Capture, cfg Config) (string, error) {
	out := thumbPath(c, cfg)
	if err := os.Remove(out); err != nil && !errors.Is(err, os.ErrNotExist) {
		return "", err
	}
	return out, nil
}

func writeErrorResponse(errMsg string) {
	json.NewEncoder(os.Stdout).Encode(Response{Success: false, Error: errMsg})
}
