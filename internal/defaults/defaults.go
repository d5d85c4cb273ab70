// Package defaults provides the embedded default configuration files.
// They are copied to the platform data directory on first run or when a
// reset is requested.
//
// Platform paths:
//
//	macOS:   ~/Library/Application Support/Architect/
//	Windows: %AppData%\Architect\
//	Linux:   ~/.config/architect/
//
// Override with the ARCHITECT_DATA_DIR environment variable.
package defaults

import (
	"embed"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"strings"
)

// DataDirEnv overrides the platform data directory
const DataDirEnv = "ARCHITECT_DATA_DIR"

const embedRoot = "dotarchitect"

//go:embed dotarchitect/*
var defaultFiles embed.FS

// DataDir returns the platform-appropriate data directory
func DataDir() (string, error) {
	if dir := os.Getenv(DataDirEnv); dir != "" {
		return dir, nil
	}

	configDir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine config directory: %w", err)
	}

	// Linux: lowercase per XDG convention
	if runtime.GOOS == "linux" {
		return filepath.Join(configDir, "architect"), nil
	}
	return filepath.Join(configDir, "Architect"), nil
}

// EnsureDataDir creates dir if needed and copies missing default files into it
func EnsureDataDir(dir string) error {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}
	return copyDefaults(dir, false)
}

// Reset replaces the config files in dir with the defaults. The database is
// left alone.
func Reset(dir string) error {
	return copyDefaults(dir, true)
}

func copyDefaults(dir string, overwrite bool) error {
	return fs.WalkDir(defaultFiles, embedRoot, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if path == embedRoot {
			return nil
		}

		// embed.FS always uses forward slashes
		relPath := strings.TrimPrefix(path, embedRoot+"/")
		destPath := filepath.Join(dir, relPath)

		if d.IsDir() {
			return os.MkdirAll(destPath, 0o700)
		}
		if !overwrite {
			if _, err := os.Stat(destPath); err == nil {
				return nil
			}
		}

		data, err := defaultFiles.ReadFile(path)
		if err != nil {
			return fmt.Errorf("failed to read embedded %s: %w", path, err)
		}
		if err := os.WriteFile(destPath, data, 0o600); err != nil {
			return fmt.Errorf("failed to write %s: %w", destPath, err)
		}
		return nil
	})
}

// GetDefault returns the content of a default file by name,
// e.g. GetDefault("config.yaml").
func GetDefault(name string) ([]byte, error) {
	return defaultFiles.ReadFile(embedRoot + "/" + name)
}

// ListDefaults returns the names of all default files
func ListDefaults() ([]string, error) {
	var files []string
	err := fs.WalkDir(defaultFiles, embedRoot, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			files = append(files, strings.TrimPrefix(path, embedRoot+"/"))
		}
		return nil
	})
	return files, err
}
