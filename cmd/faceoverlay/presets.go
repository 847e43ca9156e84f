package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/teslashibe/go-faceoverlay/pkg/camera"
)

var presetsCmd = &cobra.Command{
	Use:   "presets",
	Short: "List camera presets",
	Run: func(cmd *cobra.Command, args []string) {
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
		fmt.Fprintln(w, "NAME\tSIZE\tFPS\tFACING")
		fmt.Fprintln(w, "----\t----\t---\t------")
		for _, name := range camera.PresetNames() {
			p := camera.GetPreset(name)
			fmt.Fprintf(w, "%s\t%dx%d\t%d\t%s\n", name, p.Width, p.Height, p.Framerate, p.FacingMode)
		}
		w.Flush()
	},
}

func init() {
	rootCmd.AddCommand(presetsCmd)
}
