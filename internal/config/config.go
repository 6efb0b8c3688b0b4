// Package config loads snapview settings from a YAML file, an optional .env
// file and SNAPVIEW_* environment variables, in that order of precedence.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/ayusman/snapview/internal/geometry"
)

// NoDevice marks a camera slot without a physical device.
const NoDevice = -1

// Config holds the application configuration.
type Config struct {
	Screen   geometry.ScreenSize `yaml:"screen"`
	Cameras  CamerasConfig       `yaml:"cameras"`
	Capture  CaptureConfig       `yaml:"capture"`
	Preview  PreviewConfig       `yaml:"preview"`
	Store    StoreConfig         `yaml:"store"`
	Hooks    HooksConfig         `yaml:"hooks"`
	Server   ServerConfig        `yaml:"server"`
	LogLevel string              `yaml:"log_level"`
}

// CameraConfig describes one physical camera.
type CameraConfig struct {
	Device      int `yaml:"device"`
	Orientation int `yaml:"orientation"` // sensor mount orientation in degrees
}

// CamerasConfig holds the back and front cameras and the sizes they support.
type CamerasConfig struct {
	Back   CameraConfig `yaml:"back"`
	Front  CameraConfig `yaml:"front"`
	Prefer string       `yaml:"prefer"`
	Sizes  []string     `yaml:"sizes"`
}

// CaptureConfig holds settings for confirmed still pictures.
type CaptureConfig struct {
	Dir     string `yaml:"dir"`
	Format  string `yaml:"format"`
	Quality int    `yaml:"quality"`
}

// PreviewConfig holds preview loop settings.
type PreviewConfig struct {
	FPS            int     `yaml:"fps"`
	SceneThreshold float64 `yaml:"scene_threshold"`
	SettleFrames   int     `yaml:"settle_frames"`
}

type StoreConfig struct {
	Path string `yaml:"path"`
}

type HooksConfig struct {
	Dir       string `yaml:"dir"`
	TimeoutMs int    `yaml:"timeout_ms"`
}

type ServerConfig struct {
	Addr      string `yaml:"addr"`
	StaticDir string `yaml:"static_dir"`
}

// DataDir returns ~/.snapview, or .snapview when the home directory is unknown.
func DataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".snapview"
	}
	return filepath.Join(home, ".snapview")
}

// Default returns a configuration with default values.
func Default() *Config {
	dataDir := DataDir()
	return &Config{
		Screen: geometry.ScreenSize{Width: 1280, Height: 720},
		Cameras: CamerasConfig{
			Back:   CameraConfig{Device: 0, Orientation: 0},
			Front:  CameraConfig{Device: NoDevice, Orientation: 0},
			Prefer: "back",
			Sizes:  []string{"1920x1080", "1280x720", "640x480", "320x240"},
		},
		Capture: CaptureConfig{
			Dir:     filepath.Join(dataDir, "captures"),
			Format:  "jpeg",
			Quality: 95,
		},
		Preview: PreviewConfig{
			FPS:            15,
			SceneThreshold: 2.0,
			SettleFrames:   5,
		},
		Store: StoreConfig{Path: filepath.Join(dataDir, "snapview.db")},
		Hooks: HooksConfig{
			Dir:       filepath.Join(dataDir, "hooks"),
			TimeoutMs: 5000,
		},
		Server:   ServerConfig{Addr: ":8080"},
		LogLevel: "info",
	}
}

// LoadEnvFile loads KEY=VALUE pairs from .env files into the environment.
// Missing files are not an error.
func LoadEnvFile(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("failed to load %s: %w", p, err)
		}
	}
	return nil
}

// Load reads the YAML file at path over the defaults, applies environment
// overrides and validates the result. An empty path skips the file.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}

	cfg.Screen = geometry.NewScreenSize(cfg.Screen.Width, cfg.Screen.Height)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// SaveToFile writes the configuration as YAML.
func (c *Config) SaveToFile(filename string) error {
	if err := os.MkdirAll(filepath.Dir(filename), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

func (c *Config) applyEnv() error {
	if v := os.Getenv("SNAPVIEW_SCREEN"); v != "" {
		s, err := geometry.ParseSize(v)
		if err != nil {
			return fmt.Errorf("SNAPVIEW_SCREEN: %w", err)
		}
		c.Screen = geometry.ScreenSize{Width: s.Width, Height: s.Height}
	}
	c.Cameras.Back.Device = envInt("SNAPVIEW_BACK_DEVICE", c.Cameras.Back.Device)
	c.Cameras.Front.Device = envInt("SNAPVIEW_FRONT_DEVICE", c.Cameras.Front.Device)
	c.Capture.Quality = envInt("SNAPVIEW_QUALITY", c.Capture.Quality)
	c.Server.Addr = envString("SNAPVIEW_ADDR", c.Server.Addr)
	c.Server.StaticDir = envString("SNAPVIEW_STATIC_DIR", c.Server.StaticDir)
	c.Store.Path = envString("SNAPVIEW_DB", c.Store.Path)
	c.Capture.Dir = envString("SNAPVIEW_CAPTURE_DIR", c.Capture.Dir)
	c.Capture.Format = envString("SNAPVIEW_FORMAT", c.Capture.Format)
	c.Hooks.Dir = envString("SNAPVIEW_HOOKS_DIR", c.Hooks.Dir)
	c.LogLevel = envString("SNAPVIEW_LOG_LEVEL", c.LogLevel)
	return nil
}

// envInt reads an environment variable as an integer.
// Returns the default value if the env var is unset or invalid.
func envInt(key string, defaultVal int) int {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if n, err := strconv.Atoi(s); err == nil {
		return n
	}
	return defaultVal
}

func envString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

// CandidateSizes parses the configured supported sizes.
func (c *Config) CandidateSizes() ([]geometry.Size, error) {
	sizes := make([]geometry.Size, 0, len(c.Cameras.Sizes))
	for _, v := range c.Cameras.Sizes {
		s, err := geometry.ParseSize(v)
		if err != nil {
			return nil, err
		}
		sizes = append(sizes, s)
	}
	return sizes, nil
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if !c.Screen.Valid() {
		return fmt.Errorf("screen must have positive width and height")
	}

	if c.Cameras.Back.Device < 0 && c.Cameras.Front.Device < 0 {
		return fmt.Errorf("at least one of cameras.back.device and cameras.front.device must be set")
	}
	for name, cam := range map[string]CameraConfig{"back": c.Cameras.Back, "front": c.Cameras.Front} {
		if cam.Orientation%90 != 0 || cam.Orientation < 0 || cam.Orientation >= 360 {
			return fmt.Errorf("cameras.%s.orientation must be 0, 90, 180 or 270", name)
		}
	}
	if _, err := geometry.ParseFacing(c.Cameras.Prefer); err != nil {
		return fmt.Errorf("cameras.prefer: %w", err)
	}
	if len(c.Cameras.Sizes) == 0 {
		return fmt.Errorf("cameras.sizes cannot be empty")
	}
	if _, err := c.CandidateSizes(); err != nil {
		return fmt.Errorf("cameras.sizes: %w", err)
	}

	if c.Capture.Quality < 1 || c.Capture.Quality > 100 {
		return fmt.Errorf("capture.quality must be between 1 and 100")
	}
	switch strings.ToLower(c.Capture.Format) {
	case "jpeg", "jpg", "png", "webp":
	default:
		return fmt.Errorf("capture.format must be jpeg, png or webp")
	}

	if c.Preview.FPS < 1 || c.Preview.FPS > 60 {
		return fmt.Errorf("preview.fps must be between 1 and 60")
	}
	if c.Preview.SceneThreshold <= 0 || c.Preview.SceneThreshold > 100 {
		return fmt.Errorf("preview.scene_threshold must be between 0 and 100")
	}
	if c.Preview.SettleFrames < 1 {
		return fmt.Errorf("preview.settle_frames must be positive")
	}

	if c.Hooks.TimeoutMs < 1 {
		return fmt.Errorf("hooks.timeout_ms must be positive")
	}

	return nil
}
