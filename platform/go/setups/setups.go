package setups

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

const (
	// EnvFileEnv points at a dotenv file to load before parsing. Defaults to .env in the working directory.
	EnvFileEnv     = "ENV_FILE"
	defaultEnvFile = ".env"
)

// Load reads the optional dotenv file and parses the environment into a T using env struct tags.
// Variables already present in the environment win over the file.
func Load[T any]() (T, error) {
	var cfg T

	path := os.Getenv(EnvFileEnv)
	explicit := path != ""
	if !explicit {
		path = defaultEnvFile
	}
	if err := godotenv.Load(path); err != nil {
		if explicit || !errors.Is(err, fs.ErrNotExist) {
			return cfg, fmt.Errorf("load env file %s: %w", path, err)
		}
	}

	if err := env.Parse(&cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}
