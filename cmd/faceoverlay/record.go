package main

import (
	"errors"
	"fmt"
	"image"
	"image/png"
	"os"
	"path/filepath"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"github.com/teslashibe/go-faceoverlay/internal/app"
	"github.com/teslashibe/go-faceoverlay/pkg/pump"
)

var recordOpts struct {
	frames int
	out    string
}

var recordCmd = &cobra.Command{
	Use:   "record",
	Short: "Write overlay composites to PNG files without serving the page",
	RunE: func(cmd *cobra.Command, args []string) error {
		if recordOpts.frames < 1 {
			return fmt.Errorf("--frames must be at least 1")
		}
		if err := os.MkdirAll(recordOpts.out, 0o755); err != nil {
			return err
		}
		banner("record")

		opts := append(backends(), app.WithoutWeb())
		a, err := app.New(cfg, opts...)
		if err != nil {
			return fmt.Errorf("configuration error: %w", err)
		}
		defer a.Shutdown()

		if err := a.Init(cmd.Context()); err != nil {
			return fmt.Errorf("initialization failed: %w", err)
		}

		bar := progressbar.NewOptions(recordOpts.frames,
			progressbar.OptionSetDescription("🎞️  Recording overlays"),
			progressbar.OptionSetWriter(os.Stderr),
			progressbar.OptionShowCount(),
		)

		written := 0
		err = a.Record(cmd.Context(), recordOpts.frames, func(i int, img *image.RGBA) error {
			if err := writePNG(filepath.Join(recordOpts.out, fmt.Sprintf("overlay_%04d.png", i)), img); err != nil {
				return err
			}
			written++
			return bar.Add(1)
		})
		bar.Finish()
		switch {
		case errors.Is(err, pump.ErrSourceEnded):
			fmt.Fprintf(os.Stderr, "\n⚠️  source ended after %d of %d composites\n", written, recordOpts.frames)
		case err != nil:
			return err
		}

		fmt.Fprintf(os.Stderr, "\n✅ %d composites written to %s\n", written, recordOpts.out)
		return nil
	},
}

func init() {
	recordCmd.Flags().IntVar(&recordOpts.frames, "frames", 30, "number of composites to write")
	recordCmd.Flags().StringVar(&recordOpts.out, "out", "frames", "output directory")
	rootCmd.AddCommand(recordCmd)
}

func writePNG(path string, img image.Image) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := png.Encode(f, img); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
