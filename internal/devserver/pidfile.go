package devserver

import (
	"encoding/json"
	"errors"
	"os"
	"strconv"
	"strings"
	"syscall"
	"time"
)

// pidMeta is the JSON line following the PID in the PID file. Recording the
// start time explicitly keeps uptime correct even if something else touches
// the file, and lets liveness checks reject a reused PID.
type pidMeta struct {
	StartUnix int64 `json:"start_unix"`
}

// writePIDFile writes "PID\n{meta}\n". The first line stays a bare decimal
// so the file remains readable by anything expecting the classic format.
func writePIDFile(path string, pid int, start time.Time) error {
	meta, err := json.Marshal(pidMeta{StartUnix: start.Unix()})
	if err != nil {
		return err
	}
	content := strconv.Itoa(pid) + "\n" + string(meta) + "\n"
	return os.WriteFile(path, []byte(content), 0o600)
}

// readPIDFile reads a PID file, tolerating legacy files that contain only
// the PID line (startUnix is 0 for those).
func readPIDFile(path string) (pid int, startUnix int64, err error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return 0, 0, err
	}
	pidLine, rest, _ := strings.Cut(string(b), "\n")
	pid, err = strconv.Atoi(strings.TrimSpace(pidLine))
	if err != nil {
		return 0, 0, err
	}
	rest = strings.TrimSpace(rest)
	if rest != "" {
		var m pidMeta
		if json.Unmarshal([]byte(rest), &m) == nil {
			startUnix = m.StartUnix
		}
	}
	return pid, startUnix, nil
}

func removePIDFile(path string) { _ = os.Remove(path) }

// pidAlive reports whether a process with pid exists. EPERM counts as alive:
// the process is there, we just may not own it.
func pidAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	err := syscall.Kill(pid, 0)
	return err == nil || errors.Is(err, syscall.EPERM)
}

// recordAlive reports whether the PID-file record still points at the
// process it was written for. When both the recorded and the current start
// time are known and disagree, the PID has been recycled.
func recordAlive(pid int, startUnix int64) bool {
	if !pidAlive(pid) {
		return false
	}
	if startUnix > 0 {
		if cur := procStartUnix(pid); cur > 0 && cur != startUnix {
			return false
		}
	}
	return true
}
