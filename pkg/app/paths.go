package app

import (
	"fmt"
	"os"
	"path/filepath"
)

// ConfigFileName is the configuration file looked up by ResolveConfigPath.
const ConfigFileName = "cvchat.yaml"

// ResolveConfigPath searches for a config file in standard locations.
// Search order: $CVCHAT_CONFIG → $XDG_CONFIG_HOME/cvchat/cvchat.yaml
// → ~/.config/cvchat/cvchat.yaml → ./cvchat.yaml
func ResolveConfigPath() (string, error) {
	if p, ok := os.LookupEnv("CVCHAT_CONFIG"); ok && p != "" {
		return p, nil
	}

	var candidates []string
	if xdg, ok := os.LookupEnv("XDG_CONFIG_HOME"); ok {
		candidates = append(candidates, filepath.Join(xdg, "cvchat", ConfigFileName))
	} else if home, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates, filepath.Join(home, ".config", "cvchat", ConfigFileName))
	}
	candidates = append(candidates, ConfigFileName)

	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}
	return "", fmt.Errorf("%w (searched: %v)", ErrNoConfig, candidates)
}

// DefaultDataDir returns the default persistent data directory.
// Uses $XDG_DATA_HOME/cvchat if set, otherwise ~/.local/share/cvchat.
func DefaultDataDir() string {
	if dir, ok := os.LookupEnv("XDG_DATA_HOME"); ok && dir != "" {
		return filepath.Join(dir, "cvchat")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".local", "share", "cvchat")
}
