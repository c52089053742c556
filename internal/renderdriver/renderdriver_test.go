package renderdriver

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"
)

// writeFakeRenderer writes a shell script that mimics the renderer's
// streaming stdout contract: one "Saved: '.../NNNN.png'" line per
// frame in [start,end], then exits with the given code.
func writeFakeRenderer(t *testing.T, dir string, start, end, exitCode int, sleepMs int) string {
	t.Helper()
	script := fmt.Sprintf(`#!/bin/sh
for i in $(seq %d %d); do
  n=$(printf "%%04d" "$i")
  echo "Saved: 'out/$n.png'"
  sleep %s
done
exit %d
`, start, end, fmt.Sprintf("%d.%03d", sleepMs/1000, sleepMs%1000), exitCode)
	path := filepath.Join(dir, "fake_renderer.sh")
	if err := os.WriteFile(path, []byte(script), 0755); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestRunEmitsFrameSavedInOrder(t *testing.T) {
	dir := t.TempDir()
	exe := writeFakeRenderer(t, dir, 1, 5, 0, 1)

	var frames []int
	outcome, err := Run(context.Background(), Options{
		RendererExe: exe,
		ScenePath:   "scene.blend",
		Start:       1,
		End:         5,
		OutputDir:   filepath.Join(dir, "out"),
	}, func(ev Event) {
		if fs, ok := ev.(FrameSaved); ok {
			frames = append(frames, fs.Frame)
		}
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if outcome != Completed {
		t.Fatalf("got outcome %v, want Completed", outcome)
	}
	want := []int{1, 2, 3, 4, 5}
	if len(frames) != len(want) {
		t.Fatalf("got %v want %v", frames, want)
	}
	for i := range want {
		if frames[i] != want[i] {
			t.Fatalf("got %v want %v", frames, want)
		}
	}
}

func TestRunNonZeroExit(t *testing.T) {
	dir := t.TempDir()
	exe := writeFakeRenderer(t, dir, 1, 2, 7, 1)

	outcome, err := Run(context.Background(), Options{
		RendererExe: exe,
		Start:       1,
		End:         2,
		OutputDir:   dir,
	}, func(Event) {})

	if outcome != Failed {
		t.Fatalf("got outcome %v, want Failed", outcome)
	}
	if err == nil {
		t.Fatal("expected error")
	}
}

func TestRunCancellation(t *testing.T) {
	dir := t.TempDir()
	exe := writeFakeRenderer(t, dir, 1, 50, 0, 50)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(150 * time.Millisecond)
		cancel()
	}()

	outcome, err := Run(ctx, Options{
		RendererExe: exe,
		Start:       1,
		End:         50,
		OutputDir:   dir,
	}, func(Event) {})

	if outcome != Cancelled {
		t.Fatalf("got outcome %v, want Cancelled", outcome)
	}
	if err == nil {
		t.Fatal("expected cancellation error")
	}
}

func TestProbeRange(t *testing.T) {
	dir := t.TempDir()
	script := "#!/bin/sh\necho 'RANGE 1 100'\nexit 0\n"
	path := filepath.Join(dir, "probe.sh")
	if err := os.WriteFile(path, []byte(script), 0755); err != nil {
		t.Fatal(err)
	}

	first, last, err := ProbeRange(context.Background(), path, "scene.blend", "--introspect-range")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if first != 1 || last != 100 {
		t.Fatalf("got (%d,%d), want (1,100)", first, last)
	}
}

func TestProbeRangeMissingSentinel(t *testing.T) {
	dir := t.TempDir()
	script := "#!/bin/sh\necho 'nothing useful'\nexit 0\n"
	path := filepath.Join(dir, "probe.sh")
	if err := os.WriteFile(path, []byte(script), 0755); err != nil {
		t.Fatal(err)
	}

	_, _, err := ProbeRange(context.Background(), path, "scene.blend", "--introspect-range")
	if err == nil {
		t.Fatal("expected error for missing RANGE sentinel")
	}
}
