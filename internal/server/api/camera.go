package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/ayusman/snapview/internal/app"
	"github.com/ayusman/snapview/internal/geometry"
	"github.com/ayusman/snapview/internal/gesture"
	"github.com/ayusman/snapview/internal/picture"
	"github.com/ayusman/snapview/internal/session"
	"github.com/ayusman/snapview/internal/store"
)

// Controller is the camera application driven by the HTTP API.
type Controller interface {
	Status() app.Status
	SetSurface(ctx context.Context, w, h, rotation int) error
	Tap(ctx context.Context, p gesture.TouchPoint) (gesture.TapKind, error)
	Focus(ctx context.Context, x, y float64) (session.FocusResult, error)
	PinchBegin(span float64)
	PinchUpdate(ctx context.Context, span float64) (int, bool, error)
	PinchEnd()
	Switch(ctx context.Context) error
	Capture(ctx context.Context) (*picture.Still, error)
	Pending() *picture.Still
	Confirm(ctx context.Context) (*store.Capture, error)
	Retry(ctx context.Context) error
}

// PreviewQuality is the JPEG quality of the pending picture preview.
const PreviewQuality = 85

// CameraHandler handles camera control requests.
type CameraHandler struct {
	camera Controller
}

// NewCameraHandler creates a new CameraHandler driving c.
func NewCameraHandler(c Controller) *CameraHandler {
	return &CameraHandler{camera: c}
}

type pointRequest struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

type tapResponse struct {
	Kind string `json:"kind"`
}

type zoomRequest struct {
	Phase string  `json:"phase"` // begin, update or end
	Span  float64 `json:"span"`

	// Touches, when two are given, replace Span with their distance.
	Touches []gesture.TouchPoint `json:"touches"`
}

func (r zoomRequest) span() float64 {
	if len(r.Touches) == 2 {
		return gesture.Span(r.Touches[0], r.Touches[1])
	}
	return r.Span
}

type zoomResponse struct {
	Zoom    int  `json:"zoom"`
	Changed bool `json:"changed"`
}

type surfaceRequest struct {
	Width  int `json:"width"`
	Height int `json:"height"`

	// Rotation is the display rotation in quarter turns, 0 to 3.
	Rotation int `json:"rotation"`
}

type pendingResponse struct {
	Facing     geometry.Facing `json:"facing"`
	Rotation   int             `json:"rotation"`
	Mirrored   bool            `json:"mirrored"`
	Width      int             `json:"width"`
	Height     int             `json:"height"`
	CapturedAt string          `json:"captured_at"`
}

func toPendingResponse(s *picture.Still) pendingResponse {
	size := s.Size()
	return pendingResponse{
		Facing:     s.Facing,
		Rotation:   s.Transform.RotationDeg,
		Mirrored:   s.Transform.MirrorX,
		Width:      size.Width,
		Height:     size.Height,
		CapturedAt: s.CapturedAt.Format(time.RFC3339),
	}
}

// Status handles GET /api/status.
func (h *CameraHandler) Status(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodGet) {
		return
	}
	writeJSON(w, http.StatusOK, h.camera.Status())
}

// Surface handles POST /api/surface with the preview surface size and the
// display rotation.
func (h *CameraHandler) Surface(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodPost) {
		return
	}

	var req surfaceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}
	if req.Width <= 0 || req.Height <= 0 {
		writeError(w, http.StatusBadRequest, "Width and height must be positive")
		return
	}

	if err := h.camera.SetSurface(r.Context(), req.Width, req.Height, req.Rotation); err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.camera.Status())
}

// Focus handles POST /api/focus. With ?tap=1 the point goes through tap
// detection, so a quick second tap switches the camera.
func (h *CameraHandler) Focus(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodPost) {
		return
	}

	var req pointRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}

	if tap, _ := strconv.ParseBool(r.URL.Query().Get("tap")); tap {
		kind, err := h.camera.Tap(r.Context(), gesture.TouchPoint{X: req.X, Y: req.Y, Timestamp: time.Now().UnixMilli()})
		if err != nil {
			writeFailure(w, err)
			return
		}
		writeJSON(w, http.StatusOK, tapResponse{Kind: kind.String()})
		return
	}

	res, err := h.camera.Focus(r.Context(), req.X, req.Y)
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// Zoom handles POST /api/zoom with a pinch phase and span.
func (h *CameraHandler) Zoom(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodPost) {
		return
	}

	var req zoomRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}

	switch req.Phase {
	case "begin":
		h.camera.PinchBegin(req.span())
		writeJSON(w, http.StatusOK, zoomResponse{Zoom: h.camera.Status().Session.Zoom.Current})
	case "update", "":
		zoom, changed, err := h.camera.PinchUpdate(r.Context(), req.span())
		if err != nil {
			writeFailure(w, err)
			return
		}
		writeJSON(w, http.StatusOK, zoomResponse{Zoom: zoom, Changed: changed})
	case "end":
		h.camera.PinchEnd()
		writeJSON(w, http.StatusOK, zoomResponse{Zoom: h.camera.Status().Session.Zoom.Current})
	default:
		writeError(w, http.StatusBadRequest, "Phase must be begin, update or end")
	}
}

// Switch handles POST /api/switch.
func (h *CameraHandler) Switch(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodPost) {
		return
	}
	if err := h.camera.Switch(r.Context()); err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.camera.Status())
}

// Capture handles /api/capture. POST takes a picture and holds it; GET
// returns the pending picture as JPEG.
func (h *CameraHandler) Capture(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		still, err := h.camera.Capture(r.Context())
		if err != nil {
			writeFailure(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, toPendingResponse(still))
	case http.MethodGet:
		still := h.camera.Pending()
		if still == nil {
			writeError(w, http.StatusNotFound, "No pending capture")
			return
		}
		w.Header().Set("Content-Type", picture.FormatJPEG.ContentType())
		w.Header().Set("Cache-Control", "no-cache")
		if err := picture.Encode(w, still.Image, picture.FormatJPEG, PreviewQuality); err != nil {
			writeError(w, http.StatusInternalServerError, "Failed to encode picture")
		}
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// Confirm handles POST /api/capture/confirm.
func (h *CameraHandler) Confirm(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodPost) {
		return
	}
	c, err := h.camera.Confirm(r.Context())
	if err != nil && c == nil {
		writeFailure(w, err)
		return
	}
	// saved, but the camera did not reopen; the capture is still reported
	writeJSON(w, http.StatusCreated, toCaptureResponse(c))
}

// Retry handles POST /api/capture/retry.
func (h *CameraHandler) Retry(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodPost) {
		return
	}
	if err := h.camera.Retry(r.Context()); err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.camera.Status())
}
