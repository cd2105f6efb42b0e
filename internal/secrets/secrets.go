// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package secrets resolves credentials from the environment, a .env file,
// and a directory of plain-text key files. In the directory each file is
// one secret: the filename is the key name and the trimmed contents are
// the value.
//
// Supported key files: google-maps-api-key.
package secrets

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
)

const (
	// EnvAPIKey is the environment variable holding the static map key.
	EnvAPIKey = "GOOGLE_MAPS_API_KEY"

	// FileAPIKey is the key file name inside the secrets directory.
	FileAPIKey = "google-maps-api-key"

	// DefaultDir is the secrets directory relative to the working directory.
	DefaultDir = ".secrets/"

	// DefaultEnvFile is loaded before the environment is consulted.
	DefaultEnvFile = ".env"
)

// ErrNoAPIKey is returned when no static map key can be found.
var ErrNoAPIKey = fmt.Errorf("%s not found: set it in the environment, in %s, or in %s%s",
	EnvAPIKey, DefaultEnvFile, DefaultDir, FileAPIKey)

// LoadEnv reads KEY=VALUE pairs from each file into the process
// environment. Variables already set are left alone, and missing files are
// skipped. It returns the files that were loaded.
func LoadEnv(files ...string) ([]string, error) {
	var loaded []string
	for _, f := range files {
		if err := godotenv.Load(f); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return loaded, fmt.Errorf("loading %s: %w", f, err)
		}
		loaded = append(loaded, f)
	}
	return loaded, nil
}

// Load reads all files in dir and returns a map of filename to trimmed contents.
// A missing directory or missing files are not errors; Load returns an empty map.
// Unreadable files are logged and skipped.
func Load(dir string, log zerolog.Logger) (map[string]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]string{}, nil
		}
		return nil, fmt.Errorf("reading secrets directory %s: %w", dir, err)
	}

	secrets := make(map[string]string)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if strings.HasPrefix(name, ".") {
			continue
		}

		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			log.Warn().Err(err).Str("secret", name).Msg("could not read secret")
			continue
		}

		value := strings.TrimSpace(string(data))
		if value != "" {
			secrets[name] = value
		}
	}

	return secrets, nil
}

// APIKey returns the static map key. The environment wins over the
// secrets directory map, which is typically the result of Load.
func APIKey(fromDir map[string]string) (string, error) {
	if v := strings.TrimSpace(os.Getenv(EnvAPIKey)); v != "" {
		return v, nil
	}
	if v := fromDir[FileAPIKey]; v != "" {
		return v, nil
	}
	return "", ErrNoAPIKey
}
