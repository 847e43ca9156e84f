package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/teslashibe/go-faceoverlay/internal/config"
	"github.com/teslashibe/go-faceoverlay/internal/log"
)

// Version is the application version.
const Version = "0.1.0"

var (
	cfg     config.Config
	envFile string
)

var rootCmd = &cobra.Command{
	Use:     "faceoverlay",
	Short:   "Live face mesh and face detection overlays on a camera feed",
	Version: Version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.Load(envFile)
		if err != nil {
			return err
		}
		applyFlags(cmd, &loaded)
		if err := loaded.Validate(); err != nil {
			return err
		}
		cfg = loaded
		log.Init(cfg.LogLevel)
		return nil
	},
	// Without a subcommand, serve
	RunE: runServe,
}

// flag values; only flags the user set override the loaded config
var flags struct {
	port, source, device, signalling, preset string
	engine, model, remoteMesh, remoteDet     string
	logLevel, topology                       string
	selfie, trail                            bool
	quality                                  int
}

func init() {
	def := config.Default()
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&envFile, "env-file", ".env", "dotenv file to load before the environment")
	pf.StringVar(&flags.port, "port", def.Port, "web server port")
	pf.StringVar(&flags.source, "source", def.Source, "capture source: device or webrtc")
	pf.StringVar(&flags.device, "device", def.Device, "camera index, video file or stream URL")
	pf.StringVar(&flags.signalling, "signalling-url", "", "WebRTC signalling websocket URL")
	pf.StringVar(&flags.preset, "preset", def.Preset, "camera preset (see 'faceoverlay presets')")
	pf.StringVar(&flags.engine, "engine", def.Engine, "inference engine: yunet or remote")
	pf.StringVar(&flags.model, "model", def.ModelPath, "YuNet ONNX model path")
	pf.StringVar(&flags.remoteMesh, "remote-mesh-url", "", "mesh sidecar websocket URL")
	pf.StringVar(&flags.remoteDet, "remote-detection-url", "", "detection sidecar websocket URL")
	pf.BoolVar(&flags.selfie, "selfie", def.SelfieMode, "mirror frames before inference and the video layer")
	pf.BoolVar(&flags.trail, "mesh-trail", def.MeshTrail, "keep previous mesh drawings while the video size is unchanged")
	pf.StringVar(&flags.topology, "mesh-topology", def.MeshTopology, "tessellation, contours or a JSON edge list file")
	pf.IntVar(&flags.quality, "quality", def.StreamQuality, "JPEG quality of the video layer and uploads")
	pf.StringVar(&flags.logLevel, "log-level", def.LogLevel, "debug, info, warn or error")

	rootCmd.SetVersionTemplate(`{{printf "%s\n" .Version}}`)
}

func applyFlags(cmd *cobra.Command, c *config.Config) {
	set := func(name string, apply func()) {
		if cmd.Flags().Changed(name) {
			apply()
		}
	}
	set("port", func() { c.Port = flags.port })
	set("source", func() { c.Source = flags.source })
	set("device", func() { c.Device = flags.device })
	set("signalling-url", func() { c.SignallingURL = flags.signalling })
	set("preset", func() { c.Preset = flags.preset })
	set("engine", func() { c.Engine = flags.engine })
	set("model", func() { c.ModelPath = flags.model })
	set("remote-mesh-url", func() { c.RemoteMeshURL = flags.remoteMesh })
	set("remote-detection-url", func() { c.RemoteDetectionURL = flags.remoteDet })
	set("selfie", func() { c.SelfieMode = flags.selfie })
	set("mesh-trail", func() { c.MeshTrail = flags.trail })
	set("mesh-topology", func() { c.MeshTopology = flags.topology })
	set("quality", func() { c.StreamQuality = flags.quality })
	set("log-level", func() { c.LogLevel = flags.logLevel })
}

func banner(mode string) {
	fmt.Printf("🎭 Face Overlay %s (%s)\n", Version, mode)
	fmt.Println("==============================")
}
