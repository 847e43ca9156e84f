// Package camera holds the capture request settings for the overlay and
// lets them be changed at runtime through the camera API.
package camera

// Facing modes understood by capture sources.
const (
	FacingUser        = "user"
	FacingEnvironment = "environment"
)

// Config holds the capture request. Sources treat every field as advisory:
// the negotiated resolution is whatever the device reports afterwards.
type Config struct {
	Width      int    `json:"width"`       // Requested frame width in pixels
	Height     int    `json:"height"`      // Requested frame height in pixels
	Framerate  int    `json:"framerate"`   // Requested FPS
	FacingMode string `json:"facing_mode"` // "user" or "environment"
}

// Request limits
const (
	MinWidth     = 160
	MinHeight    = 120
	MaxWidth     = 4096
	MaxHeight    = 2160
	MaxFramerate = 120
)

// DefaultConfig returns the request the overlay starts with: a square
// 480x480 selfie camera.
func DefaultConfig() Config {
	return Config{
		Width:      480,
		Height:     480,
		Framerate:  30,
		FacingMode: FacingUser,
	}
}

// Validate checks if the config values are within valid ranges.
// Returns a list of validation errors, or nil if valid.
func (c *Config) Validate() []string {
	var errors []string

	if c.Width < MinWidth || c.Width > MaxWidth {
		errors = append(errors, "width must be between 160 and 4096")
	}
	if c.Height < MinHeight || c.Height > MaxHeight {
		errors = append(errors, "height must be between 120 and 2160")
	}
	if c.Framerate < 1 || c.Framerate > MaxFramerate {
		errors = append(errors, "framerate must be between 1 and 120")
	}

	validFacing := map[string]bool{FacingUser: true, FacingEnvironment: true}
	if c.FacingMode != "" && !validFacing[c.FacingMode] {
		errors = append(errors, "facing_mode must be user or environment")
	}

	return errors
}
