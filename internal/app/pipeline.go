package app

import (
	"context"
	"time"

	"gocv.io/x/gocv"

	"github.com/ayusman/snapview/internal/session"
)

// refocusCooldown keeps scene-settle refocusing from retriggering on the
// exposure change a focus sweep causes.
const refocusCooldown = 2 * time.Second

// runPreview is the preview loop. Every tick it reads a frame from the open
// camera and:
// 1. Publishes it as the latest JPEG for stream clients
// 2. Feeds it to the scene monitor
// 3. Refocuses on the center once the scene settles after a change, unless
//    the camera focuses continuously on its own
//
// Ticks while the camera is closed (a picture is pending) are skipped.
func (a *App) runPreview(ctx context.Context, stopCh, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(a.FrameInterval())
	defer ticker.Stop()

	var lastRefocus time.Time
	var readErrors int

	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
			if !a.session.IsOpened() {
				continue
			}

			frame, err := a.session.ReadFrame(ctx)
			if err != nil {
				// the session may close between the check and the read
				readErrors++
				if readErrors == 1 || readErrors%100 == 0 {
					a.logger.Debug("error reading frame", "error", err, "count", readErrors)
				}
				continue
			}
			readErrors = 0

			if buf, err := gocv.IMEncode(gocv.JPEGFileExt, *frame); err == nil {
				jpeg := make([]byte, buf.Len())
				copy(jpeg, buf.GetBytes())
				buf.Close()
				a.setFrame(jpeg)
			}

			settled, pct := a.scene.Observe(frame)
			frame.Close()

			if !settled || a.session.ContinuousFocus() || time.Since(lastRefocus) < refocusCooldown {
				continue
			}
			lastRefocus = time.Now()

			a.logger.Debug("scene settled, refocusing", "changed_pct", pct)
			if _, err := a.refocusCenter(ctx); err != nil {
				a.logger.Debug("refocus failed", "error", err)
			}
		}
	}
}

// refocusCenter focuses on the middle of the preview. Tap coordinates run x
// along the short side and y along the long side, like MapFocusArea expects.
func (a *App) refocusCenter(ctx context.Context) (session.FocusResult, error) {
	screen := a.session.Status().Screen
	return a.Focus(ctx, float64(screen.Height)/2, float64(screen.Width)/2)
}
