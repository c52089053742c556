// Package util provides small filesystem and formatting helpers shared
// across the coordinator and worker.
package util

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/sys/unix"
)

// MinFreeSpaceMB is the minimum free space recommended before staging a
// job payload or writing rendered frames (in MB).
const MinFreeSpaceMB = 100

// EnsureDirectory creates a directory (and parents) if it does not exist.
func EnsureDirectory(path string) error {
	return os.MkdirAll(path, 0755)
}

// EnsureDirectoryWritable checks that a directory exists and is writable.
func EnsureDirectoryWritable(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("directory does not exist: %s", path)
		}
		return fmt.Errorf("cannot access directory: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("path is not a directory: %s", path)
	}

	testPath := filepath.Join(path, ".farmd_write_test")
	f, err := os.Create(testPath)
	if err != nil {
		return fmt.Errorf("directory is not writable: %s", path)
	}
	_ = f.Close()
	_ = os.Remove(testPath)
	return nil
}

// AvailableSpaceBytes returns free disk space in bytes for path, or 0 if
// it cannot be determined.
func AvailableSpaceBytes(path string) uint64 {
	var stat unix.Statfs_t
	if err := unix.Statfs(path, &stat); err != nil {
		return 0
	}
	return stat.Bavail * uint64(stat.Bsize)
}

// CheckDiskSpace logs (via the provided logger, if any) when free space at
// path is below MinFreeSpaceMB. Returns true if space is sufficient or
// could not be determined.
func CheckDiskSpace(path string, logger func(format string, args ...any)) bool {
	available := AvailableSpaceBytes(path)
	if available == 0 {
		return true
	}
	availableMB := available / (1024 * 1024)
	if availableMB < MinFreeSpaceMB {
		if logger != nil {
			logger("low disk space in %s: %d MB available (minimum recommended: %d MB)",
				path, availableMB, MinFreeSpaceMB)
		}
		return false
	}
	return true
}

// Basename returns the filename component of a path, trimming the
// extension — used for display and for deriving output-directory names
// (output_dir = out_root / stem(scene.path)).
func Basename(path string) string {
	base := filepath.Base(path)
	ext := filepath.Ext(base)
	return base[:len(base)-len(ext)]
}

// FileExists reports whether path exists and is a regular file.
func FileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// FormatDurationFromSecs renders a duration given in whole seconds as
// text such as "1h02m03s", "2m05s" or "7s", trimming leading zero components.
func FormatDurationFromSecs(secs int64) string {
	if secs < 0 {
		secs = 0
	}
	d := time.Duration(secs) * time.Second
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60

	switch {
	case h > 0:
		return fmt.Sprintf("%dh%02dm%02ds", h, m, s)
	case m > 0:
		return fmt.Sprintf("%dm%02ds", m, s)
	default:
		return fmt.Sprintf("%ds", s)
	}
}
