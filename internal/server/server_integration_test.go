package server

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/ayusman/snapview/internal/app"
	"github.com/ayusman/snapview/internal/capture"
	"github.com/ayusman/snapview/internal/config"
	"github.com/ayusman/snapview/internal/geometry"
	"github.com/ayusman/snapview/internal/store"
	"github.com/ayusman/snapview/internal/testutil"
)

func testParams() capture.Parameters {
	sizes := []geometry.Size{{Width: 1280, Height: 720}, {Width: 640, Height: 480}}
	return capture.Parameters{
		SupportedPreviewSizes: sizes,
		SupportedPictureSizes: sizes,
		FocusModes:            []string{capture.FocusModeAuto},
		FocusMode:             capture.FocusModeAuto,
		MaxFocusAreas:         1,
		MaxMeteringAreas:      1,
		ZoomSupported:         true,
		MaxZoom:               18,
	}
}

// newTestApp starts an app over mock back and front cameras with a store in
// a temporary directory.
func newTestApp(t *testing.T) *app.App {
	t.Helper()

	dir := t.TempDir()
	settings := config.Default()
	settings.Capture.Dir = filepath.Join(dir, "captures")
	settings.Hooks.Dir = filepath.Join(dir, "hooks")

	st, err := store.New(filepath.Join(dir, "test.db"))
	if err != nil {
		t.Fatalf("store.New() error = %v", err)
	}
	t.Cleanup(func() { st.Close() })

	back := capture.NewMockCamera(capture.Info{ID: 0, Facing: geometry.FacingBack, Orientation: 90}, testParams())
	front := capture.NewMockCamera(capture.Info{ID: 1, Facing: geometry.FacingFront, Orientation: 270}, testParams())
	back.SetPicture(testutil.MarkerJPEG(64, 48))
	front.SetPicture(testutil.MarkerJPEG(64, 48))

	a, err := app.New(app.Config{Settings: settings, Registry: capture.NewMockRegistry(back, front), Store: st})
	if err != nil {
		t.Fatalf("app.New() error = %v", err)
	}
	t.Cleanup(a.Close)

	if err := a.Start(t.Context()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	return a
}

func post(t *testing.T, client *http.Client, url, body string) *http.Response {
	t.Helper()
	resp, err := client.Post(url, "application/json", bytes.NewBufferString(body))
	if err != nil {
		t.Fatalf("POST %s error = %v", url, err)
	}
	return resp
}

func TestAPI_CaptureWorkflow(t *testing.T) {
	srv := New(Config{App: newTestApp(t)})
	ts := httptest.NewServer(srv)
	defer ts.Close()

	client := ts.Client()

	// 1. Take a picture
	resp := post(t, client, ts.URL+"/api/capture", "")
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("POST /api/capture status = %d, want %d", resp.StatusCode, http.StatusCreated)
	}
	var pending struct {
		Facing   string `json:"facing"`
		Rotation int    `json:"rotation"`
		Width    int    `json:"width"`
		Height   int    `json:"height"`
	}
	json.NewDecoder(resp.Body).Decode(&pending)
	resp.Body.Close()

	if pending.Facing != "back" || pending.Rotation != 90 || pending.Width != 48 || pending.Height != 64 {
		t.Errorf("pending = %+v", pending)
	}

	// 2. A second picture waits for the first
	resp = post(t, client, ts.URL+"/api/capture", "")
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("second POST /api/capture status = %d, want %d", resp.StatusCode, http.StatusConflict)
	}
	resp.Body.Close()

	// 3. Preview the pending picture
	resp, _ = client.Get(ts.URL + "/api/capture")
	if resp.StatusCode != http.StatusOK || resp.Header.Get("Content-Type") != "image/jpeg" {
		t.Errorf("GET /api/capture = %d %s", resp.StatusCode, resp.Header.Get("Content-Type"))
	}
	resp.Body.Close()

	// 4. Confirm
	resp = post(t, client, ts.URL+"/api/capture/confirm", "")
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("POST /api/capture/confirm status = %d, want %d", resp.StatusCode, http.StatusCreated)
	}
	var created struct {
		ID    string `json:"id"`
		Image string `json:"image"`
	}
	json.NewDecoder(resp.Body).Decode(&created)
	resp.Body.Close()

	// 5. List
	resp, _ = client.Get(ts.URL + "/api/captures")
	var listed struct {
		Captures []struct {
			ID string `json:"id"`
		} `json:"captures"`
	}
	json.NewDecoder(resp.Body).Decode(&listed)
	resp.Body.Close()
	if len(listed.Captures) != 1 || listed.Captures[0].ID != created.ID {
		t.Fatalf("captures = %+v, want [%s]", listed.Captures, created.ID)
	}

	// 6. Fetch the image
	resp, _ = client.Get(ts.URL + created.Image)
	data, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK || len(data) == 0 {
		t.Errorf("GET %s = %d, %d bytes", created.Image, resp.StatusCode, len(data))
	}

	// 7. Delete and verify
	req, _ := http.NewRequest(http.MethodDelete, ts.URL+"/api/captures/"+created.ID, nil)
	resp, _ = client.Do(req)
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("DELETE status = %d, want %d", resp.StatusCode, http.StatusNoContent)
	}
	resp.Body.Close()

	resp, _ = client.Get(ts.URL + "/api/captures/" + created.ID)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("GET after delete status = %d, want %d", resp.StatusCode, http.StatusNotFound)
	}
	resp.Body.Close()
}

func TestAPI_CameraControls(t *testing.T) {
	srv := New(Config{App: newTestApp(t)})
	ts := httptest.NewServer(srv)
	defer ts.Close()

	client := ts.Client()

	resp := post(t, client, ts.URL+"/api/focus", `{"x": 640, "y": 360}`)
	var focus struct {
		Success bool `json:"success"`
	}
	json.NewDecoder(resp.Body).Decode(&focus)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK || !focus.Success {
		t.Errorf("POST /api/focus = %d %+v", resp.StatusCode, focus)
	}

	post(t, client, ts.URL+"/api/zoom", `{"phase": "begin", "span": 100}`).Body.Close()
	resp = post(t, client, ts.URL+"/api/zoom", `{"phase": "update", "span": 140}`)
	var zoom struct {
		Zoom    int  `json:"zoom"`
		Changed bool `json:"changed"`
	}
	json.NewDecoder(resp.Body).Decode(&zoom)
	resp.Body.Close()
	if zoom.Zoom != 5 || !zoom.Changed {
		t.Errorf("POST /api/zoom = %+v, want zoom 5", zoom)
	}

	resp = post(t, client, ts.URL+"/api/zoom", `{"phase": "sideways"}`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("bad zoom phase status = %d, want %d", resp.StatusCode, http.StatusBadRequest)
	}
	resp.Body.Close()

	resp = post(t, client, ts.URL+"/api/switch", "")
	var status struct {
		Session struct {
			Facing string `json:"facing"`
			State  string `json:"state"`
		} `json:"session"`
	}
	json.NewDecoder(resp.Body).Decode(&status)
	resp.Body.Close()
	if status.Session.Facing != "front" || status.Session.State != "opened" {
		t.Errorf("POST /api/switch status = %+v", status.Session)
	}

	resp = post(t, client, ts.URL+"/api/capture/confirm", "")
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("confirm without pending status = %d, want %d", resp.StatusCode, http.StatusConflict)
	}
	resp.Body.Close()

	// front camera mounted at 270 on a display turned a quarter: 360 - (270+90)
	resp = post(t, client, ts.URL+"/api/surface", `{"width": 1280, "height": 720, "rotation": 1}`)
	var surface struct {
		Session struct {
			DisplayOrientation int `json:"display_orientation"`
		} `json:"session"`
	}
	json.NewDecoder(resp.Body).Decode(&surface)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK || surface.Session.DisplayOrientation != 0 {
		t.Errorf("POST /api/surface = %d, display orientation %d, want 200 and 0", resp.StatusCode, surface.Session.DisplayOrientation)
	}

	resp = post(t, client, ts.URL+"/api/surface", `{"width": 1280, "height": 720, "rotation": 4}`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("surface rotation 4 status = %d, want %d", resp.StatusCode, http.StatusBadRequest)
	}
	resp.Body.Close()
}

func TestAPI_ZoomTouches(t *testing.T) {
	ts := httptest.NewServer(New(Config{App: newTestApp(t)}))
	defer ts.Close()
	client := ts.Client()

	post(t, client, ts.URL+"/api/zoom", `{"phase": "begin", "touches": [{"x": 0, "y": 0}, {"x": 60, "y": 80}]}`).Body.Close()
	// the fingers move from 100px to 140px apart
	resp := post(t, client, ts.URL+"/api/zoom", `{"phase": "update", "touches": [{"x": 0, "y": 0}, {"x": 84, "y": 112}]}`)
	var zoom struct {
		Zoom int `json:"zoom"`
	}
	json.NewDecoder(resp.Body).Decode(&zoom)
	resp.Body.Close()
	if zoom.Zoom != 5 {
		t.Errorf("zoom = %d, want 5", zoom.Zoom)
	}
}
