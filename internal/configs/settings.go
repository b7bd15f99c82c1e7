package configs

import (
	"fmt"
	"os"
	"path/filepath"
)

// Settings are the per-user default locations.
type Settings struct {
	ConfigPath string
	CacheDir   string
	KeysDir    string
}

// DefaultSettings resolves the default paths from the XDG directories.
func DefaultSettings() (*Settings, error) {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return nil, fmt.Errorf("error getting config directory: %w", err)
	}

	cacheDir, err := os.UserCacheDir()
	if err != nil {
		return nil, fmt.Errorf("error getting cache directory: %w", err)
	}

	dataDir := os.Getenv("XDG_DATA_HOME")
	if dataDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("error getting home directory: %w", err)
		}
		dataDir = filepath.Join(homeDir, ".local", "share")
	}

	return &Settings{
		ConfigPath: filepath.Join(configDir, "sealdrop", "config.toml"),
		CacheDir:   filepath.Join(cacheDir, "sealdrop", "keys"),
		KeysDir:    filepath.Join(dataDir, "sealdrop", "keys"),
	}, nil
}
