package config

import (
	"fmt"
	"os"
	"path/filepath"
)

// UserConfig manages per-user configuration and data directories
type UserConfig struct {
	BaseDir     string // $HOME/.guestchat
	StateDir    string // $HOME/.guestchat/state
	LogsDir     string // $HOME/.guestchat/logs
	HistoryFile string // $HOME/.guestchat/history.txt
}

// DefaultUserConfig creates the default user configuration
func DefaultUserConfig() (*UserConfig, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("failed to get user home directory: %w", err)
	}

	baseDir := filepath.Join(homeDir, ".guestchat")

	config := &UserConfig{
		BaseDir:     baseDir,
		StateDir:    filepath.Join(baseDir, "state"),
		LogsDir:     filepath.Join(baseDir, "logs"),
		HistoryFile: filepath.Join(baseDir, "history.txt"),
	}

	if err := config.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("failed to create user directories: %w", err)
	}

	return config, nil
}

// EnsureDirectories creates the user configuration directories if they don't exist
func (c *UserConfig) EnsureDirectories() error {
	dirs := []string{
		c.BaseDir,
		c.StateDir,
		c.LogsDir,
	}

	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	return nil
}
