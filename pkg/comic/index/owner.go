package index

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"github.com/jamesainslie/comicarc/pkg/comic/logging"
)

// ErrLocked is returned when another live process has the index open.
var ErrLocked = errors.New("index is in use by another process")

// ownerPath is the PID file written beside an index directory while a
// process holds it.
func ownerPath(dir string) string {
	return filepath.Clean(dir) + ".pid"
}

func writeOwner(path string) error {
	return os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0o644)
}

// readOwner returns the PID recorded at path.
func readOwner(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(strings.TrimSpace(string(data)))
}

// releaseOwner removes the PID file if it still names this process.
func releaseOwner(path string) {
	if pid, err := readOwner(path); err == nil && pid == os.Getpid() {
		_ = os.Remove(path)
	}
}

// processRunning reports whether a process with pid exists.
func processRunning(pid int) bool {
	if pid <= 0 {
		return false
	}
	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return process.Signal(syscall.Signal(0)) == nil
}

// recoverStale checks the owner of the index at dir. A live owner yields
// ErrLocked. A dead owner's PID file and Badger LOCK file are removed. A
// missing or unreadable PID file means there is nothing to recover.
func recoverStale(dir string) error {
	path := ownerPath(dir)
	pid, err := readOwner(path)
	if err != nil {
		return nil //nolint:nilerr // no usable PID file, nothing to recover
	}

	if processRunning(pid) {
		return fmt.Errorf("%w: %s is held by pid %d", ErrLocked, dir, pid)
	}

	logging.Get("index").Warn("removing stale index owner", "stale_pid", pid, "path", dir)
	_ = os.Remove(path)
	_ = os.Remove(filepath.Join(dir, "LOCK"))
	return nil
}

// isLockError reports whether err is Badger failing to take its directory
// lock.
func isLockError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "Cannot acquire directory lock")
}
