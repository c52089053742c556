// Package depscan invokes the renderer in introspection mode to
// enumerate external assets referenced by a scene, and maps them to
// transportable relative paths, per spec.md §4.3.
//
// Grounded on the teacher's subprocess + output-parsing pattern in
// internal/chunk/merge.go (exec.Command(...).CombinedOutput(), parse
// a fixed-format line, wrap failures with captured output).
package depscan

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/renderfarm/farmd/internal/farmerr"
	"github.com/renderfarm/farmd/internal/scene"
)

var depsLine = regexp.MustCompile(`^DEPS (\[.*\])$`)

// Scan invokes the renderer in introspection mode against scenePath
// and returns its external dependencies mapped to remote relative
// paths, in stable enumeration order.
func Scan(ctx context.Context, rendererExe, scenePath, depsFlag string) ([]scene.Dependency, error) {
	cmd := exec.CommandContext(ctx, rendererExe, "-b", scenePath, depsFlag)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return nil, farmerr.WithScene(farmerr.DependencyScanFailed, scenePath,
			fmt.Sprintf("renderer dependency introspection failed, output: %s", string(out)), err)
	}

	var paths []string
	for _, line := range strings.Split(string(out), "\n") {
		if m := depsLine.FindStringSubmatch(line); m != nil {
			if jsonErr := json.Unmarshal([]byte(m[1]), &paths); jsonErr != nil {
				return nil, farmerr.WithScene(farmerr.DependencyScanFailed, scenePath,
					"malformed DEPS json array", jsonErr)
			}
			return MapDependencies(scenePath, paths), nil
		}
	}
	return nil, farmerr.WithScene(farmerr.DependencyScanFailed, scenePath,
		fmt.Sprintf("no DEPS sentinel in renderer output: %s", string(out)), nil)
}

// MapDependencies maps absolute asset paths to remote relative paths:
// paths inside the scene's parent directory map to their relative
// path (forward slashes); others map to "_external/<basename>", with
// basename collisions suffixed _1, _2, ... in enumeration order.
func MapDependencies(scenePath string, absPaths []string) []scene.Dependency {
	sceneDir := filepath.Dir(scenePath)
	seen := map[string]int{}

	out := make([]scene.Dependency, 0, len(absPaths))
	for _, p := range absPaths {
		rel, err := filepath.Rel(sceneDir, p)
		if err == nil && !strings.HasPrefix(rel, "..") && !filepath.IsAbs(rel) {
			out = append(out, scene.Dependency{
				LocalAbsPath:  p,
				RemoteRelPath: filepath.ToSlash(rel),
			})
			continue
		}

		base := filepath.Base(p)
		name := base
		if n, dup := seen[base]; dup {
			ext := filepath.Ext(base)
			stem := strings.TrimSuffix(base, ext)
			name = fmt.Sprintf("%s_%d%s", stem, n, ext)
		}
		seen[base]++
		out = append(out, scene.Dependency{
			LocalAbsPath:  p,
			RemoteRelPath: "_external/" + name,
		})
	}
	return out
}
