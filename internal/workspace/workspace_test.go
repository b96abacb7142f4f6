package workspace

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"
)

func TestWellKnownPaths(t *testing.T) {
	root := "/work/app"
	if got := StateDir(root); got != "/work/app/.sst" {
		t.Fatalf("StateDir: %s", got)
	}
	if got := LogFile(root); got != "/work/app/.sst/dev.log" {
		t.Fatalf("LogFile: %s", got)
	}
	if got := PIDFile(root); got != "/work/app/.sst/dev.pid" {
		t.Fatalf("PIDFile: %s", got)
	}
	if got := EnvFile(root); got != "/work/app/env.sh" {
		t.Fatalf("EnvFile: %s", got)
	}
	if got := OutputsFile(root); got != "/work/app/.sst/outputs.json" {
		t.Fatalf("OutputsFile: %s", got)
	}
}

func TestResolveRejectsRelative(t *testing.T) {
	if _, err := Resolve("relative/path"); err == nil {
		t.Fatal("expected error for relative path")
	}
	if _, err := Resolve(""); err == nil {
		t.Fatal("expected error for empty path")
	}
}

func TestResolveRejectsMissing(t *testing.T) {
	if _, err := Resolve(filepath.Join(t.TempDir(), "nope")); err == nil {
		t.Fatal("expected error for missing path")
	}
}

func TestResolveRejectsFile(t *testing.T) {
	dir := t.TempDir()
	f := filepath.Join(dir, "file")
	if err := os.WriteFile(f, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Resolve(f); err == nil {
		t.Fatal("expected error for non-directory path")
	}
}

func TestResolveCanonicalizesSymlink(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("symlink semantics differ on windows")
	}
	dir := t.TempDir()
	real, err := filepath.EvalSymlinks(dir)
	if err != nil {
		t.Fatal(err)
	}
	target := filepath.Join(real, "target")
	if err := os.Mkdir(target, 0o755); err != nil {
		t.Fatal(err)
	}
	link := filepath.Join(real, "link")
	if err := os.Symlink(target, link); err != nil {
		t.Skip("symlinks unavailable")
	}
	got, err := Resolve(link)
	if err != nil {
		t.Fatalf("symlinked path rejected: %v", err)
	}
	if got != target {
		t.Fatalf("Resolve(%s) = %s, want canonical %s", link, got, target)
	}
	got, err = Resolve(target)
	if err != nil {
		t.Fatalf("canonical path rejected: %v", err)
	}
	if got != target {
		t.Fatalf("Resolve changed canonical path: %s", got)
	}
}

func TestServerMarkersMissingStateDir(t *testing.T) {
	if got := ServerMarkers(t.TempDir()); len(got) != 0 {
		t.Fatalf("expected no markers, got %v", got)
	}
}
