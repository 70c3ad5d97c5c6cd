package config

import (
	"log/slog"
	"os"

	"github.com/joho/godotenv"
)

// envFiles are loaded in order; earlier files win because godotenv never
// overrides a variable that is already set.
var envFiles = []string{".env.local", ".env"}

// loadEnvFiles loads .env.local and .env from the working directory if present.
// Existing process environment variables are not overwritten.
func loadEnvFiles() {
	for _, name := range envFiles {
		if _, err := os.Stat(name); err != nil {
			continue
		}
		if err := godotenv.Load(name); err != nil {
			slog.Warn("Failed to load environment file", "file", name, "error", err)
			continue
		}
		slog.Debug("Loaded environment variables", "file", name)
	}
}
