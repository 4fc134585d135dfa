package config

import (
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// ApplyEnv lets a few environment variables override the file.
func ApplyEnv(cfg *Config) {
	if v := os.Getenv("GMAPS_DATA_DIR"); v != "" {
		cfg.App.DataDir = v
	}
	if v := os.Getenv("GMAPS_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			cfg.App.Port = p
		}
	}
	if v := os.Getenv("GMAPS_STORAGE_TYPE"); v != "" {
		cfg.Storage.Type = strings.ToLower(v)
	}
	if v := os.Getenv("GMAPS_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
}

// APIKeyFromEnv reads the Places key from the configured variable.
func (c Config) APIKeyFromEnv() string {
	name := c.Places.APIKeyEnv
	if name == "" {
		name = "GOOGLE_MAPS_API_KEY"
	}
	return strings.TrimSpace(os.Getenv(name))
}

// LoadDotEnv reads dataDir/.env into the process environment. Variables that
// are already set win. A missing file is not an error.
func LoadDotEnv(dataDir string) error {
	p := filepath.Join(dataDir, ".env")
	if _, err := os.Stat(p); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return godotenv.Load(p)
}
