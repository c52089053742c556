package depscan

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func TestMapDependenciesSceneRelative(t *testing.T) {
	deps := MapDependencies("/a/b/s.blend", []string{"/a/b/tex/x.png", "/z/q/env.hdr"})
	if len(deps) != 2 {
		t.Fatalf("got %v", deps)
	}
	if deps[0].RemoteRelPath != "tex/x.png" {
		t.Fatalf("got %q, want tex/x.png", deps[0].RemoteRelPath)
	}
	if deps[1].RemoteRelPath != "_external/env.hdr" {
		t.Fatalf("got %q, want _external/env.hdr", deps[1].RemoteRelPath)
	}
}

func TestMapDependenciesCollisionSuffixing(t *testing.T) {
	deps := MapDependencies("/a/b/s.blend", []string{
		"/x/tex.png", "/y/tex.png", "/z/tex.png",
	})
	want := []string{"_external/tex.png", "_external/tex_1.png", "_external/tex_2.png"}
	for i, w := range want {
		if deps[i].RemoteRelPath != w {
			t.Fatalf("dep %d: got %q want %q", i, deps[i].RemoteRelPath, w)
		}
	}
}

func TestScanParsesDepsLine(t *testing.T) {
	dir := t.TempDir()
	script := `#!/bin/sh
echo "some banner text"
echo 'DEPS ["/a/b/tex/x.png", "/z/q/env.hdr"]'
exit 0
`
	path := filepath.Join(dir, "fake.sh")
	if err := os.WriteFile(path, []byte(script), 0755); err != nil {
		t.Fatal(err)
	}

	deps, err := Scan(context.Background(), path, "/a/b/s.blend", "--introspect-deps")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(deps) != 2 || deps[0].RemoteRelPath != "tex/x.png" || deps[1].RemoteRelPath != "_external/env.hdr" {
		t.Fatalf("got %+v", deps)
	}
}

func TestScanMissingSentinel(t *testing.T) {
	dir := t.TempDir()
	script := "#!/bin/sh\necho 'nothing here'\nexit 0\n"
	path := filepath.Join(dir, "fake.sh")
	if err := os.WriteFile(path, []byte(script), 0755); err != nil {
		t.Fatal(err)
	}

	_, err := Scan(context.Background(), path, "/a/b/s.blend", "--introspect-deps")
	if err == nil {
		t.Fatal("expected error")
	}
}
