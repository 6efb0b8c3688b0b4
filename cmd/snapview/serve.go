package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"runtime"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/ayusman/snapview/internal/app"
	"github.com/ayusman/snapview/internal/config"
	"github.com/ayusman/snapview/internal/log"
	"github.com/ayusman/snapview/internal/sensor"
	"github.com/ayusman/snapview/internal/server"
	"github.com/ayusman/snapview/internal/store"
	"github.com/ayusman/snapview/internal/tray"
)

const shutdownTimeout = 10 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Open the camera and start the web server",
	Long: `Open the preferred camera and serve the viewfinder API, the MJPEG preview
stream and the event socket. With --tray a system tray menu is shown as well.

Accelerometer readings arrive over the event socket. For devices without one,
--sensor-replay plays back a recorded JSON array of readings and --sensor-stdin
reads one JSON reading per line from standard input.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("addr", "", "Address to listen on (default from config)")
	serveCmd.Flags().String("static", "", "Directory of static viewer files")
	serveCmd.Flags().Bool("tray", false, "Show a system tray menu")
	serveCmd.Flags().String("sensor-replay", "", "JSON file of accelerometer readings to replay")
	serveCmd.Flags().Duration("replay-interval", 200*time.Millisecond, "Delay between replayed readings")
	serveCmd.Flags().Bool("replay-loop", false, "Replay the readings forever")
	serveCmd.Flags().Bool("sensor-stdin", false, "Read JSON accelerometer readings from stdin")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	addr, _ := cmd.Flags().GetString("addr")
	if addr == "" {
		addr = cfg.Server.Addr
	}
	staticDir, _ := cmd.Flags().GetString("static")
	if staticDir == "" {
		staticDir = cfg.Server.StaticDir
	}
	if staticDir == "" {
		staticDir = findWebDir()
	}
	withTray, _ := cmd.Flags().GetBool("tray")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	src, err := sensorSource(ctx, cmd)
	if err != nil {
		return err
	}

	st, err := store.New(cfg.Store.Path)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer st.Close()

	application, err := app.New(app.Config{
		Settings: cfg,
		Store:    st,
		Sensor:   src,
	})
	if err != nil {
		return err
	}
	defer application.Close()

	if err := application.Start(ctx); err != nil {
		return fmt.Errorf("failed to start camera: %w", err)
	}

	if staticDir != "" {
		log.Info("serving static files", "dir", staticDir)
	}
	srv := server.New(server.Config{StaticDir: staticDir, App: application})

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe(addr)
	}()

	var (
		t        *tray.Tray
		stopOnce sync.Once
	)
	stop := func() {
		stopOnce.Do(func() {
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer shutdownCancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				log.Warn("error during shutdown", "error", err)
			}
			if t != nil {
				t.Quit()
			}
		})
	}
	if withTray {
		t = newTray(ctx, application, viewerURL(addr), stop)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)
	go func() {
		select {
		case <-sigChan:
			log.Info("shutting down")
			stop()
		case <-ctx.Done():
		}
	}()

	fmt.Fprintf(cmd.OutOrStdout(), "Snapview listening on %s\n", addr)

	if t != nil {
		// systray needs the main goroutine; Run returns after Quit
		t.Run()
		stop()
	}

	return <-errCh
}

// newTray builds the tray menu and keeps it in sync with application events.
func newTray(ctx context.Context, a *app.App, url string, quit func()) *tray.Tray {
	t := tray.New()
	logger := log.With("component", "tray")

	t.OnSwitch(func() {
		if err := a.Switch(ctx); err != nil {
			logger.Warn("switch failed", "error", err)
		}
	})
	t.OnCapture(func() {
		if _, err := a.Capture(ctx); err != nil {
			logger.Warn("capture failed", "error", err)
			return
		}
		// the tray has no review step
		if _, err := a.Confirm(ctx); err != nil {
			logger.Warn("confirm failed", "error", err)
		}
	})
	t.OnOpenViewer(func() {
		if err := openBrowser(url); err != nil {
			logger.Warn("failed to open viewer", "url", url, "error", err)
		}
	})
	t.OnQuit(quit)

	events, unsubscribe := a.Events()
	go func() {
		defer unsubscribe()
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-events:
				if !ok {
					return
				}
				switch ev.Type {
				case app.EventState:
					if s, ok := ev.Data.(app.Status); ok {
						t.SetState(s.Session.State)
						t.SetSwitchable(s.Session.MultiCamera && !s.Pending)
					}
				case app.EventCaptureConfirmed:
					if c, ok := ev.Data.(*store.Capture); ok {
						t.SetLastCapture(filepath.Base(c.Path))
					}
				}
			}
		}
	}()

	return t
}

// sensorSource builds the accelerometer source selected by flags, or nil.
func sensorSource(ctx context.Context, cmd *cobra.Command) (sensor.Source, error) {
	replay, _ := cmd.Flags().GetString("sensor-replay")
	useStdin, _ := cmd.Flags().GetBool("sensor-stdin")

	switch {
	case replay != "" && useStdin:
		return nil, fmt.Errorf("--sensor-replay and --sensor-stdin are mutually exclusive")
	case replay != "":
		data, err := os.ReadFile(replay)
		if err != nil {
			return nil, fmt.Errorf("failed to read sensor replay: %w", err)
		}
		var readings []sensor.Reading
		if err := json.Unmarshal(data, &readings); err != nil {
			return nil, fmt.Errorf("failed to parse sensor replay: %w", err)
		}
		interval, _ := cmd.Flags().GetDuration("replay-interval")
		loop, _ := cmd.Flags().GetBool("replay-loop")
		return sensor.NewReplaySource(readings, interval, loop), nil
	case useStdin:
		feed := sensor.NewFeed(16)
		go func() {
			defer feed.Close()
			if err := pumpReadings(ctx, os.Stdin, feed); err != nil {
				log.Warn("sensor input stopped", "error", err)
			}
		}()
		return feed, nil
	}
	return nil, nil
}

// pumpReadings pushes one JSON reading per line of r into feed.
func pumpReadings(ctx context.Context, r io.Reader, feed *sensor.Feed) error {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return nil
		}
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var reading sensor.Reading
		if err := json.Unmarshal(line, &reading); err != nil {
			log.Debug("skipping malformed reading", "error", err)
			continue
		}
		if reading.Timestamp == 0 {
			reading.Timestamp = time.Now().UnixMilli()
		}
		if err := feed.Push(reading); err != nil {
			return err
		}
	}
	return scanner.Err()
}

// viewerURL is the browser address for a listen address like ":8080".
func viewerURL(addr string) string {
	if len(addr) > 0 && addr[0] == ':' {
		return "http://localhost" + addr
	}
	return "http://" + addr
}

func openBrowser(url string) error {
	var name string
	switch runtime.GOOS {
	case "darwin":
		name = "open"
	case "windows":
		return exec.Command("rundll32", "url.dll,FileProtocolHandler", url).Start()
	default:
		name = "xdg-open"
	}
	return exec.Command(name, url).Start()
}

// findWebDir searches for the viewer directory in common locations.
// It checks "web", "../web" and the web directory under the data dir, and
// returns "" when none exists.
func findWebDir() string {
	for _, p := range []string{"web", "../web"} {
		if info, err := os.Stat(p); err == nil && info.IsDir() {
			if abs, err := filepath.Abs(p); err == nil {
				return abs
			}
			return p
		}
	}

	dataWeb := filepath.Join(config.DataDir(), "web")
	if info, err := os.Stat(dataWeb); err == nil && info.IsDir() {
		return dataWeb
	}
	return ""
}
