package app

import (
	"fmt"
	"os"
	"path/filepath"
)

// GetDefaults returns application default paths, checking environment variables first.
// Environment variables:
//   - SHELF_CONFIG_PATH: config file location (default: ~/.config/shelf.toml)
//   - SHELF_HOME: base directory for shelf data (default: ~/.local/share/shelf)
func GetDefaults() (map[string]string, error) {
	configPath, err := envOrHome("SHELF_CONFIG_PATH", ".config", "shelf.toml")
	if err != nil {
		return nil, err
	}
	baseDir, err := envOrHome("SHELF_HOME", ".local", "share", "shelf")
	if err != nil {
		return nil, err
	}

	return map[string]string{
		"config_path":  configPath,
		"base_dir":     baseDir,
		"library_root": filepath.Join(baseDir, "library"),
		"log_dir":      filepath.Join(baseDir, "log"),
	}, nil
}

// envOrHome returns the value of env if set, otherwise the home directory
// joined with elem.
func envOrHome(env string, elem ...string) (string, error) {
	if path := os.Getenv(env); path != "" {
		return path, nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(append([]string{homeDir}, elem...)...), nil
}
