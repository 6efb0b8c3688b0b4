package api

import (
	"context"
	"net/http"
	"os"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/ayusman/snapview/internal/store"
)

// Library is the store of confirmed captures.
type Library interface {
	Captures(limit int) ([]*store.Capture, error)
	GetCapture(id string) (*store.Capture, error)
	DeleteCapture(ctx context.Context, id string) error
}

// CapturesHandler handles HTTP requests for capture resources.
type CapturesHandler struct {
	library Library
}

// NewCapturesHandler creates a new CapturesHandler over l.
func NewCapturesHandler(l Library) *CapturesHandler {
	return &CapturesHandler{library: l}
}

type captureResponse struct {
	ID        string `json:"id"`
	Format    string `json:"format"`
	Facing    string `json:"facing"`
	Rotation  int    `json:"rotation"`
	Mirrored  bool   `json:"mirrored"`
	Width     int    `json:"width"`
	Height    int    `json:"height"`
	Image     string `json:"image"`
	CreatedAt string `json:"created_at"`
}

type listCapturesResponse struct {
	Captures []captureResponse `json:"captures"`
}

// toCaptureResponse converts a store.Capture to a captureResponse.
func toCaptureResponse(c *store.Capture) captureResponse {
	return captureResponse{
		ID:        c.ID,
		Format:    string(c.Format),
		Facing:    c.Facing.String(),
		Rotation:  c.Rotation,
		Mirrored:  c.Mirrored,
		Width:     c.Width,
		Height:    c.Height,
		Image:     "/api/captures/" + c.ID + "/image",
		CreatedAt: c.CreatedAt.Format("2006-01-02T15:04:05Z07:00"),
	}
}

// ServeHTTP routes /api/captures, /api/captures/{id} and /api/captures/{id}/image.
func (h *CapturesHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/captures")
	path = strings.Trim(path, "/")

	if path == "" {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		h.list(w, r)
		return
	}

	id, rest, _ := strings.Cut(path, "/")
	if _, err := uuid.Parse(id); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid capture id")
		return
	}

	switch {
	case rest == "image" && r.Method == http.MethodGet:
		h.image(w, r, id)
	case rest == "" && r.Method == http.MethodGet:
		h.get(w, r, id)
	case rest == "" && r.Method == http.MethodDelete:
		h.delete(w, r, id)
	case rest == "" || rest == "image":
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	default:
		http.NotFound(w, r)
	}
}

// list handles GET /api/captures?limit=N.
func (h *CapturesHandler) list(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "Invalid limit")
			return
		}
		limit = n
	}

	captures, err := h.library.Captures(limit)
	if err != nil {
		writeFailure(w, err)
		return
	}

	response := listCapturesResponse{
		Captures: make([]captureResponse, 0, len(captures)),
	}
	for _, c := range captures {
		response.Captures = append(response.Captures, toCaptureResponse(c))
	}

	writeJSON(w, http.StatusOK, response)
}

func (h *CapturesHandler) get(w http.ResponseWriter, r *http.Request, id string) {
	c, err := h.library.GetCapture(id)
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toCaptureResponse(c))
}

// image serves the capture file.
func (h *CapturesHandler) image(w http.ResponseWriter, r *http.Request, id string) {
	c, err := h.library.GetCapture(id)
	if err != nil {
		writeFailure(w, err)
		return
	}

	f, err := os.Open(c.Path)
	if err != nil {
		writeError(w, http.StatusNotFound, "Capture file missing")
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to read capture file")
		return
	}

	w.Header().Set("Content-Type", c.Format.ContentType())
	http.ServeContent(w, r, info.Name(), info.ModTime(), f)
}

func (h *CapturesHandler) delete(w http.ResponseWriter, r *http.Request, id string) {
	if err := h.library.DeleteCapture(r.Context(), id); err != nil {
		writeFailure(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
