// Package config loads go-faceoverlay settings from .env files and the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Default configuration values.
const (
	DefaultPort          = "8181"
	DefaultDevice        = "0"
	DefaultModelPath     = "models/face_detection_yunet.onnx"
	DefaultStreamQuality = 80
	DefaultMeshTopology  = "tessellation"
)

// Capture sources.
const (
	SourceDevice = "device"
	SourceWebRTC = "webrtc"
)

// Inference engines.
const (
	EngineYuNet  = "yunet"
	EngineRemote = "remote"
)

// ErrInvalid is returned when a loaded configuration fails validation.
var ErrInvalid = errors.New("config: invalid")

// Config holds all runtime configuration for the overlay application.
// Flag parsing is done in cmd/faceoverlay; this struct is data only.
type Config struct {
	LogLevel string
	Port     string

	// Capture
	Source        string // "device" or "webrtc"
	Device        string // device index, file path or stream URL for gocv
	SignallingURL string // ws:// signalling endpoint when Source is webrtc
	Preset        string // camera preset name

	// Inference
	Engine             string // "yunet" or "remote"
	ModelPath          string // YuNet ONNX model
	RemoteMeshURL      string
	RemoteDetectionURL string
	SelfieMode         bool

	// Rendering
	MeshTrail     bool   // keep previous mesh drawings while the size is unchanged
	MeshTopology  string // "tessellation", "contours" or a JSON edge list file
	StreamQuality int    // JPEG quality of the video layer
}

// Default returns the configuration used when nothing is set.
func Default() Config {
	return Config{
		LogLevel:      "info",
		Port:          DefaultPort,
		Source:        SourceDevice,
		Device:        DefaultDevice,
		Preset:        "default",
		Engine:        EngineYuNet,
		ModelPath:     DefaultModelPath,
		SelfieMode:    true,
		MeshTopology:  DefaultMeshTopology,
		StreamQuality: DefaultStreamQuality,
	}
}

// Load reads the given .env files (missing files are ignored), then applies
// FACEOVERLAY_* environment variables on top of Default().
func Load(files ...string) (Config, error) {
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, os.ErrNotExist) {
			return Config{}, fmt.Errorf("load %s: %w", f, err)
		}
	}

	cfg := Default()
	cfg.LogLevel = env("LOG_LEVEL", cfg.LogLevel)
	cfg.Port = env("FACEOVERLAY_PORT", cfg.Port)
	cfg.Source = strings.ToLower(env("FACEOVERLAY_SOURCE", cfg.Source))
	cfg.Device = env("FACEOVERLAY_DEVICE", cfg.Device)
	cfg.SignallingURL = env("FACEOVERLAY_SIGNALLING_URL", cfg.SignallingURL)
	cfg.Preset = env("FACEOVERLAY_PRESET", cfg.Preset)
	cfg.Engine = strings.ToLower(env("FACEOVERLAY_ENGINE", cfg.Engine))
	cfg.ModelPath = env("FACEOVERLAY_MODEL_PATH", cfg.ModelPath)
	cfg.RemoteMeshURL = env("FACEOVERLAY_REMOTE_MESH_URL", cfg.RemoteMeshURL)
	cfg.RemoteDetectionURL = env("FACEOVERLAY_REMOTE_DETECTION_URL", cfg.RemoteDetectionURL)
	cfg.MeshTopology = env("FACEOVERLAY_MESH_TOPOLOGY", cfg.MeshTopology)

	var err error
	if cfg.SelfieMode, err = envBool("FACEOVERLAY_SELFIE_MODE", cfg.SelfieMode); err != nil {
		return Config{}, err
	}
	if cfg.MeshTrail, err = envBool("FACEOVERLAY_MESH_TRAIL", cfg.MeshTrail); err != nil {
		return Config{}, err
	}
	if cfg.StreamQuality, err = envInt("FACEOVERLAY_STREAM_QUALITY", cfg.StreamQuality); err != nil {
		return Config{}, err
	}

	return cfg, cfg.Validate()
}

// Validate checks the configuration for unusable combinations.
func (c Config) Validate() error {
	var problems []string

	if c.Port == "" {
		problems = append(problems, "port is required")
	}
	switch c.Source {
	case SourceDevice:
		if c.Device == "" {
			problems = append(problems, "device is required for the device source")
		}
	case SourceWebRTC:
		if c.SignallingURL == "" {
			problems = append(problems, "signalling url is required for the webrtc source")
		}
	default:
		problems = append(problems, fmt.Sprintf("unknown source %q", c.Source))
	}
	switch c.Engine {
	case EngineYuNet:
		if c.ModelPath == "" {
			problems = append(problems, "model path is required for the yunet engine")
		}
	case EngineRemote:
		if c.RemoteMeshURL == "" || c.RemoteDetectionURL == "" {
			problems = append(problems, "remote mesh and detection urls are required for the remote engine")
		}
	default:
		problems = append(problems, fmt.Sprintf("unknown engine %q", c.Engine))
	}
	if c.MeshTopology == "" {
		problems = append(problems, "mesh topology is required")
	}
	if c.StreamQuality < 1 || c.StreamQuality > 100 {
		problems = append(problems, "stream quality must be between 1 and 100")
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalid, strings.Join(problems, "; "))
	}
	return nil
}

// Addr returns the listen address for the web server.
func (c Config) Addr() string {
	return ":" + c.Port
}

func env(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envBool(key string, fallback bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("%w: %s=%q is not a boolean", ErrInvalid, key, v)
	}
	return b, nil
}

func envInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%w: %s=%q is not an integer", ErrInvalid, key, v)
	}
	return n, nil
}
