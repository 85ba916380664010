package os

import (
	"fmt"
	"os"
)

func Exit(s string) {
	fmt.Fprintln(os.Stderr, s)
	os.Exit(1)
}

// EnsureDir creates dir, and any missing parents, with mode.
func EnsureDir(dir string, mode os.FileMode) error {
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		if err := os.MkdirAll(dir, mode); err != nil {
			return fmt.Errorf("could not create directory %v: %w", dir, err)
		}
	}
	return nil
}

func FileExists(filePath string) bool {
	_, err := os.Stat(filePath)
	return !os.IsNotExist(err)
}
