// Package config centralises configuration parsing for the health export tool.
package config

import (
	"os"
	"strconv"
)

// Config captures runtime configuration values. CLI flags override these.
type Config struct {
	ExportDir string // directory holding export.xml and workout-routes/
	OutputDir string // directory the CSV tables are written to
	Workers   int    // per-category formatting fan-out
	Timezone  string // reference timezone for date-cutoff comparisons
}

// Load reads environment variables into Config, applying defaults.
func Load() Config {
	return Config{
		ExportDir: getEnv("HEALTHEXPORT_DIR", "."),
		OutputDir: getEnv("HEALTHEXPORT_OUT", "out"),
		Workers:   getIntEnv("HEALTHEXPORT_WORKERS", 4),
		Timezone:  getEnv("HEALTHEXPORT_TZ", "Africa/Johannesburg"),
	}
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		return value
	}
	return fallback
}

func getIntEnv(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return fallback
}
