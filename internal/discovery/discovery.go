// Package discovery finds renderer scene files on disk for the
// coordinator's CLI. Grounded on the teacher's FindVideoFiles (scan a
// directory, skip hidden/non-regular entries, sort alphabetically),
// generalized from video-file extensions to scene-file extensions.
//
// Not to be confused with internal/discoveryproto, which implements
// the network worker-discovery protocol of spec.md §4.5.
package discovery

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

var sceneExtensions = map[string]bool{
	".blend": true,
}

// IsSceneFile reports whether path has a renderer scene-file extension.
func IsSceneFile(path string) bool {
	return sceneExtensions[strings.ToLower(filepath.Ext(path))]
}

// FindSceneFiles finds scene files directly within inputDir, sorted
// alphabetically by filename.
func FindSceneFiles(inputDir string) ([]string, error) {
	info, err := os.Stat(inputDir)
	if err != nil {
		return nil, fmt.Errorf("directory does not exist: %s", inputDir)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%s is not a directory", inputDir)
	}

	entries, err := os.ReadDir(inputDir)
	if err != nil {
		return nil, fmt.Errorf("cannot read directory %s: %w", inputDir, err)
	}

	var files []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if strings.HasPrefix(name, ".") {
			continue
		}
		fullPath := filepath.Join(inputDir, name)
		if IsSceneFile(fullPath) {
			abs, err := filepath.Abs(fullPath)
			if err != nil {
				abs = fullPath
			}
			files = append(files, abs)
		}
	}

	if len(files) == 0 {
		return nil, fmt.Errorf("no scene files found in %s", inputDir)
	}

	sort.Slice(files, func(i, j int) bool {
		return strings.ToLower(filepath.Base(files[i])) < strings.ToLower(filepath.Base(files[j]))
	})

	return files, nil
}
