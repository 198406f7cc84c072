package security

import (
	"fmt"
	"os"
)

const (
	// PermConfigFile is the recommended mode for a config holding secrets.
	PermConfigFile os.FileMode = 0640
)

// IsWorldReadable checks if a file is readable by others.
func IsWorldReadable(perm os.FileMode) bool {
	return perm&0004 != 0
}

// IsWorldWritable checks if a file is writable by others.
func IsWorldWritable(perm os.FileMode) bool {
	return perm&0002 != 0
}

// CheckSensitiveFile returns an error when path is readable or writable by
// anyone other than its owner and group.
func CheckSensitiveFile(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("failed to stat file: %w", err)
	}

	perm := info.Mode().Perm()

	if IsWorldWritable(perm) {
		return fmt.Errorf("file %s is world-writable (%04o), use %04o", path, perm, PermConfigFile)
	}

	if IsWorldReadable(perm) {
		return fmt.Errorf("file %s is world-readable (%04o), use %04o", path, perm, PermConfigFile)
	}

	return nil
}
