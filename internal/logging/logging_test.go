package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func setupTestLogger(t *testing.T) (*Logger, string) {
	t.Helper()
	dir := t.TempDir()
	l, err := Setup(dir, true, false, []string{"farmd", "coordinate"})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = l.Close() })
	return l, dir
}

func readLogFile(t *testing.T, dir string) string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Fatalf("got %d log files, want 1", len(entries))
	}
	data, err := os.ReadFile(filepath.Join(dir, entries[0].Name()))
	if err != nil {
		t.Fatal(err)
	}
	return string(data)
}

func TestSceneEventTagsScenePath(t *testing.T) {
	l, dir := setupTestLogger(t)
	l.SceneEvent("/scenes/shot010.blend", "range [%d-%d]", 1, 100)

	contents := readLogFile(t, dir)
	if !strings.Contains(contents, "scene=/scenes/shot010.blend range [1-100]") {
		t.Fatalf("log missing scene-tagged line: %s", contents)
	}
}

func TestJobEventTagsJobAndTarget(t *testing.T) {
	l, dir := setupTestLogger(t)
	l.JobEvent("job-7", "worker-2", "frames=%d-%d", 10, 20)

	contents := readLogFile(t, dir)
	if !strings.Contains(contents, "job=job-7 target=worker-2 frames=10-20") {
		t.Fatalf("log missing job-tagged line: %s", contents)
	}
}

func TestWarnAndErrorLogLevelTags(t *testing.T) {
	l, dir := setupTestLogger(t)
	l.Warn("disk usage at %d%%", 90)
	l.ErrorLog("worker %s unreachable", "worker-1")

	contents := readLogFile(t, dir)
	if !strings.Contains(contents, "[WARN] disk usage at 90%") {
		t.Fatalf("log missing WARN line: %s", contents)
	}
	if !strings.Contains(contents, "[ERROR] worker worker-1 unreachable") {
		t.Fatalf("log missing ERROR line: %s", contents)
	}
}

func TestDebugSuppressedWhenNotVerbose(t *testing.T) {
	dir := t.TempDir()
	l, err := Setup(dir, false, false, []string{"farmd"})
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = l.Close() }()

	l.Debug("should not appear")

	contents := readLogFile(t, dir)
	if strings.Contains(contents, "should not appear") {
		t.Fatalf("debug line leaked with verbose=false: %s", contents)
	}
}

func TestSetupNoLogReturnsNil(t *testing.T) {
	l, err := Setup(t.TempDir(), false, true, []string{"farmd"})
	if err != nil {
		t.Fatal(err)
	}
	if l != nil {
		t.Fatal("expected nil logger when noLog is set")
	}
}

func TestNilLoggerMethodsAreNoOps(t *testing.T) {
	var l *Logger
	l.Info("x")
	l.Debug("x")
	l.Warn("x")
	l.ErrorLog("x")
	l.SceneEvent("scene", "x")
	l.JobEvent("job", "target", "x")
	if err := l.Close(); err != nil {
		t.Fatalf("Close on nil logger returned error: %v", err)
	}
}
