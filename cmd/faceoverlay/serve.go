package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/teslashibe/go-faceoverlay/internal/app"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the overlay pipeline and serve the page",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	banner("serve")

	a, err := app.New(cfg, backends()...)
	if err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}
	defer a.Shutdown()

	if err := a.Init(cmd.Context()); err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	fmt.Printf("🌐 Open http://localhost%s (Ctrl+C to exit)\n", cfg.Addr())
	return a.Run(cmd.Context())
}
