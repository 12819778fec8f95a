package configuration

import (
	"os"

	"github.com/joho/godotenv"

	"social-publisher/infrastructure/logger"
)

// LoadEnvFromFile loads KEY=VALUE pairs from the first readable files (e.g. config.env, .env).
// Existing env vars are not overridden.
func LoadEnvFromFile(paths ...string) {
	for _, p := range paths {
		if _, err := os.Stat(p); err != nil {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			logger.GetLogger().WithField("file", p).WithField("error", err).Warn("Failed to load env file")
			continue
		}
		logger.GetLogger().WithField("file", p).Debug("Loaded env file")
	}
}
