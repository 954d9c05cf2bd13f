package cmd

import (
	"os"
	"path/filepath"
	"runtime"
)

// DefaultDataDir is the default data directory to use for the radio's
// persisted state.
func DefaultDataDir() string {
	home := homeDir()
	if home != "" {
		switch runtime.GOOS {
		case "darwin":
			return filepath.Join(home, "Library", "PoiRadio")
		case "windows":
			return filepath.Join(home, "AppData", "Roaming", "PoiRadio")
		default:
			return filepath.Join(home, ".poi-radio")
		}
	}
	// As we cannot guess a stable location, return empty and handle later.
	return ""
}

func homeDir() string {
	if home := os.Getenv("HOME"); home != "" {
		return home
	}
	if home, err := os.UserHomeDir(); err == nil {
		return home
	}
	return ""
}
