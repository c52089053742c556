// Package framescan enumerates already-rendered frames in an output
// directory by extracting trailing integers from filenames, per
// spec.md §4.1. Grounded on the teacher's internal/discovery
// directory-enumeration style (os.ReadDir, skip hidden/non-regular
// entries) generalized from video-file detection to frame-number
// extraction.
package framescan

import (
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
)

var (
	trailingDigits = regexp.MustCompile(`(\d+)$`)
	firstDigits    = regexp.MustCompile(`(\d+)`)
)

// ExistingFrames returns the set of frame numbers present in dir,
// extracted from the stem of each regular file's name. A missing
// directory yields an empty set, not an error. Files whose stems
// contain no digit run at all do not contribute.
func ExistingFrames(dir string) map[int]struct{} {
	out := map[int]struct{}{}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return out
	}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil || !info.Mode().IsRegular() {
			continue
		}
		name := entry.Name()
		if strings.HasPrefix(name, ".") {
			continue
		}
		if n, ok := frameNumber(name); ok {
			out[n] = struct{}{}
		}
	}
	return out
}

// frameNumber extracts the frame number encoded in a filename: the
// maximal run of trailing digits in the stem, falling back to the
// first digit run if the stem has no trailing digits.
func frameNumber(filename string) (int, bool) {
	stem := strings.TrimSuffix(filename, filepath.Ext(filename))

	if m := trailingDigits.FindString(stem); m != "" {
		n, err := strconv.Atoi(m)
		if err == nil {
			return n, true
		}
	}
	if m := firstDigits.FindString(stem); m != "" {
		n, err := strconv.Atoi(m)
		if err == nil {
			return n, true
		}
	}
	return 0, false
}
