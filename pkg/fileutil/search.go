package fileutil

import (
	"fmt"
	"os"
	"path/filepath"
)

// SystemConfigDir is the system-wide config directory.
const SystemConfigDir = "/etc/mightyhooks"

// SearchPaths returns the first path that exists as a regular file.
func SearchPaths(paths []string) (string, error) {
	for _, path := range paths {
		if FileExists(path) {
			return path, nil
		}
	}
	return "", fmt.Errorf("file not found in any of the search paths: %v", paths)
}

// DefaultConfigPaths returns standard config search paths for a given filename.
// Search order:
// 1. Current directory (./<filename>)
// 2. Config subdirectory (./config/<filename>)
// 3. System-wide config (/etc/mightyhooks/<filename>)
func DefaultConfigPaths(filename string) []string {
	return []string{
		filepath.Join(".", filename),
		filepath.Join(".", "config", filename),
		filepath.Join(SystemConfigDir, filename),
	}
}

// Resolve picks a file by precedence: explicit path, then the path named
// by envVar, then the default search paths. Explicit and env paths must
// exist; they are never silently skipped.
func Resolve(explicit, envVar, filename string) (string, error) {
	if explicit != "" {
		if !FileExists(explicit) {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}
	if envVar != "" {
		if p := os.Getenv(envVar); p != "" {
			if !FileExists(p) {
				return "", fmt.Errorf("config file from %s not found: %s", envVar, p)
			}
			return p, nil
		}
	}
	return SearchPaths(DefaultConfigPaths(filename))
}

// FileExists checks if a file exists and is not a directory.
func FileExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return !info.IsDir()
}

// DirExists checks if a directory exists.
func DirExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return info.IsDir()
}
