package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strconv"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Load reads an optional .env file (local development) and then populates spec
// from the process environment using envconfig struct tags.
// Variables already present in the environment win over the .env file.
func Load(prefix string, spec any, dotenvFiles ...string) error {
	if len(dotenvFiles) == 0 {
		dotenvFiles = []string{".env"}
	}
	for _, f := range dotenvFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load %s: %w", f, err)
		}
	}
	if err := envconfig.Process(prefix, spec); err != nil {
		return fmt.Errorf("process env config: %w", err)
	}
	return nil
}

// Port validates a TCP port value read from configuration.
func Port(key, v string) (string, error) {
	p, err := strconv.Atoi(v)
	if err != nil || p < 1 || p > 65535 {
		return "", fmt.Errorf("%s must be a valid TCP port (got %q)", key, v)
	}
	return v, nil
}
