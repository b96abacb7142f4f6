package devserver

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestPIDFileRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dev.pid")
	start := time.Unix(1700000000, 0)
	if err := writePIDFile(path, 4242, start); err != nil {
		t.Fatalf("write: %v", err)
	}
	pid, startUnix, err := readPIDFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if pid != 4242 || startUnix != 1700000000 {
		t.Fatalf("got pid=%d start=%d", pid, startUnix)
	}

	// first line must stay a bare decimal for external readers
	b, _ := os.ReadFile(path)
	first, _, _ := strings.Cut(string(b), "\n")
	if first != "4242" {
		t.Fatalf("first line: %q", first)
	}
}

func TestReadPIDFileLegacyFormat(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dev.pid")
	if err := os.WriteFile(path, []byte("993\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	pid, startUnix, err := readPIDFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if pid != 993 || startUnix != 0 {
		t.Fatalf("got pid=%d start=%d", pid, startUnix)
	}
}

func TestReadPIDFileGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dev.pid")
	if err := os.WriteFile(path, []byte("not a pid\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, _, err := readPIDFile(path); err == nil {
		t.Fatal("expected error for non-numeric pid")
	}
}

func TestPIDAlive(t *testing.T) {
	if !pidAlive(os.Getpid()) {
		t.Fatal("own pid should be alive")
	}
	if pidAlive(0) || pidAlive(-1) {
		t.Fatal("non-positive pids are never alive")
	}
}

func TestRecordAliveRejectsRecycledPID(t *testing.T) {
	// Our own pid is alive, but a recorded start time of 1 cannot match.
	if procStartUnix(os.Getpid()) == 0 {
		t.Skip("process start time unavailable on this platform")
	}
	if recordAlive(os.Getpid(), 1) {
		t.Fatal("mismatched start time should mean the record is stale")
	}
	if !recordAlive(os.Getpid(), procStartUnix(os.Getpid())) {
		t.Fatal("matching start time should be alive")
	}
}
