package env

import (
	"log/slog"
	"os"

	"github.com/joho/godotenv"
)

// LoadDotEnv loads variables from a .env file. ENV_PATH overrides the
// default path. In local mode a missing file is an error; deployed
// environments configure through real env vars and skip it silently.
func LoadDotEnv(env string, defaultPath string) error {
	envPath := os.Getenv("ENV_PATH")
	if envPath == "" {
		envPath = defaultPath
	}

	if err := godotenv.Load(envPath); err != nil {
		if env == "local" || env == "" {
			slog.Error("failed to load .env in local mode", "path", envPath, "error", err)
			return err
		}
		slog.Debug("no .env file, relying on process environment", "path", envPath)
	}
	return nil
}
