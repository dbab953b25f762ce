package utils

import (
	"log"
	"os"
	"path/filepath"
)

// GetProjectRoot returns CSV_GENERATOR_ROOT when set, otherwise the parent of
// the directory holding the running binary (bin/csv-generator -> .).
func GetProjectRoot() string {
	if env := os.Getenv("CSV_GENERATOR_ROOT"); env != "" {
		return env
	}
	executable, err := os.Executable()
	if err != nil {
		log.Fatalf("Failed to get executable: %v", err)
	}
	dir := filepath.Dir(executable)
	return filepath.Clean(filepath.Join(dir, ".."))
}

// ResolvePath joins a relative path onto the project root. Absolute paths are
// returned untouched.
func ResolvePath(p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(GetProjectRoot(), p)
}

func EnsureDirExists(dir string) error {
	return os.MkdirAll(dir, 0755)
}
