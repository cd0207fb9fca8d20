package workspace_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"trellis/internal/workspace"
)

func TestIsFile(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "a.njk")
	if err := os.WriteFile(file, nil, 0o644); err != nil {
		t.Fatal(err)
	}
	fsys := workspace.OS{}
	if !workspace.IsFile(fsys, file) {
		t.Error("regular file not reported")
	}
	if workspace.IsFile(fsys, dir) {
		t.Error("directory reported as file")
	}
	if workspace.IsFile(fsys, filepath.Join(dir, "missing.njk")) {
		t.Error("missing file reported")
	}
}

func TestWatchCreateAndDelete(t *testing.T) {
	root := t.TempDir()
	w, err := workspace.OS{}.Watch([]string{root, filepath.Join(root, "does-not-exist")})
	if err != nil {
		t.Fatal(err)
	}
	defer w.Close()

	sub := filepath.Join(root, "components")
	if err := os.Mkdir(sub, 0o755); err != nil {
		t.Fatal(err)
	}
	file := filepath.Join(sub, "button.njk")
	waitFor := func(path string, op workspace.Op) {
		t.Helper()
		deadline := time.After(5 * time.Second)
		for {
			select {
			case ev, ok := <-w.Events():
				if !ok {
					t.Fatal("events closed early")
				}
				if ev.Path == path && ev.Op == op {
					return
				}
			case <-deadline:
				t.Fatalf("no %s event for %s", op, path)
			}
		}
	}

	// give the watcher time to pick up the new directory
	time.Sleep(100 * time.Millisecond)
	if err := os.WriteFile(file, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	waitFor(file, workspace.Create)

	if err := os.Remove(file); err != nil {
		t.Fatal(err)
	}
	waitFor(file, workspace.Delete)

	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
}
