package config

import (
	"os"
	"strings"
)

// Version returns the service version: APP_VERSION when set by the build,
// otherwise the VERSION file, otherwise a development fallback.
func Version() string {
	if v := os.Getenv("APP_VERSION"); v != "" {
		return v
	}
	if content, err := os.ReadFile("VERSION"); err == nil {
		if v := strings.TrimSpace(string(content)); v != "" {
			return v
		}
	}
	return "0.1.0-dev"
}
