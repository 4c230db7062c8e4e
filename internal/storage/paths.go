package storage

import (
	"os"
	"path/filepath"
	"runtime"
)

// PathManager handles cross-platform path resolution for bookchat storage
type PathManager struct {
	homeDir string
	baseDir string
}

// NewPathManager creates a new path manager rooted at ~/.bookchat
func NewPathManager() *PathManager {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		// Fallback to current directory if home dir is not available
		homeDir = "."
	}
	return &PathManager{
		homeDir: homeDir,
		baseDir: filepath.Join(homeDir, ".bookchat"),
	}
}

// NewPathManagerAt creates a path manager rooted at an explicit directory
func NewPathManagerAt(baseDir string) *PathManager {
	return &PathManager{
		homeDir: filepath.Dir(baseDir),
		baseDir: baseDir,
	}
}

// BaseDir returns the main bookchat directory, creating it if needed
func (pm *PathManager) BaseDir() (string, error) {
	if err := os.MkdirAll(pm.baseDir, 0o755); err != nil {
		return "", err
	}
	return pm.baseDir, nil
}

// SessionDir returns the directory used by the file backend
func (pm *PathManager) SessionDir() (string, error) {
	return pm.subdir("sessions")
}

// DatabasePath returns the path for the SQLite session database
func (pm *PathManager) DatabasePath() (string, error) {
	dir, err := pm.BaseDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "chat.db"), nil
}

// LogsDir returns the directory for log files
func (pm *PathManager) LogsDir() (string, error) {
	return pm.subdir("logs")
}

// StatePath returns the path of the TOML UI state file
func (pm *PathManager) StatePath() (string, error) {
	dir, err := pm.BaseDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "state.toml"), nil
}

func (pm *PathManager) subdir(name string) (string, error) {
	dir, err := pm.BaseDir()
	if err != nil {
		return "", err
	}
	sub := filepath.Join(dir, name)
	if err := os.MkdirAll(sub, 0o755); err != nil {
		return "", err
	}
	return sub, nil
}

// GetHomeDir returns the user's home directory
func (pm *PathManager) GetHomeDir() string {
	return pm.homeDir
}

// GetPlatformInfo returns platform-specific information
func (pm *PathManager) GetPlatformInfo() map[string]string {
	return map[string]string{
		"os":       runtime.GOOS,
		"arch":     runtime.GOARCH,
		"home_dir": pm.homeDir,
		"base_dir": pm.baseDir,
	}
}
