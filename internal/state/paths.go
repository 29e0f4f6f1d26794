package state

import (
	"os"
	"path/filepath"
)

const dotDir = ".oss"

// UserConfigPath returns <user>/.oss/config.json, resolving the current
// user's home directory.
func UserConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return filepath.Join(home, dotDir, "config.json")
}

// ProjectConfigPath returns <projectDir>/.oss/config.json.
func ProjectConfigPath(projectDir string) string {
	return filepath.Join(projectDir, dotDir, "config.json")
}

// UserSettingsPath returns <user>/.oss/settings.json.
func UserSettingsPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return filepath.Join(home, dotDir, "settings.json")
}

// UserUpdateStatePath returns <user>/.oss/update-state.json.
func UserUpdateStatePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return filepath.Join(home, dotDir, "update-state.json")
}

// WorkflowStatePath returns <projectDir>/.oss/workflow-state.json.
func WorkflowStatePath(projectDir string) string {
	return filepath.Join(projectDir, dotDir, "workflow-state.json")
}

// TDDSemaphorePath returns <projectDir>/.oss/tdd-mode.lock.
func TDDSemaphorePath(projectDir string) string {
	return filepath.Join(projectDir, dotDir, "tdd-mode.lock")
}
