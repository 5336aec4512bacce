package index

import (
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"testing"
)

// deadPID is far above any real pid_max.
const deadPID = 999999999

func TestOpenStoreWritesOwner(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "index")
	store, err := OpenStore(dir)
	if err != nil {
		t.Fatalf("OpenStore failed: %v", err)
	}

	pid, err := readOwner(ownerPath(dir))
	if err != nil {
		t.Fatalf("reading owner: %v", err)
	}
	if pid != os.Getpid() {
		t.Errorf("owner pid = %d, want %d", pid, os.Getpid())
	}

	if err := store.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if _, err := os.Stat(ownerPath(dir)); !os.IsNotExist(err) {
		t.Error("owner file should be removed on Close")
	}
}

func TestOpenStoreLocked(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "index")
	store, err := OpenStore(dir)
	if err != nil {
		t.Fatalf("OpenStore failed: %v", err)
	}
	defer store.Close()

	if _, err := OpenStore(dir); !errors.Is(err, ErrLocked) {
		t.Errorf("second OpenStore error = %v, want ErrLocked", err)
	}

	// The held store still owns the file.
	if pid, _ := readOwner(ownerPath(dir)); pid != os.Getpid() {
		t.Errorf("owner pid = %d after failed open", pid)
	}
}

func TestOpenStoreRecoversStaleOwner(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "index")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(ownerPath(dir), []byte(strconv.Itoa(deadPID)), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "LOCK"), []byte("stale"), 0o644); err != nil {
		t.Fatal(err)
	}

	store, err := OpenStore(dir)
	if err != nil {
		t.Fatalf("OpenStore with stale owner failed: %v", err)
	}
	defer store.Close()

	if pid, _ := readOwner(ownerPath(dir)); pid != os.Getpid() {
		t.Errorf("owner pid = %d, want %d", pid, os.Getpid())
	}
}

func TestRecoverStale(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr error
		removed bool
	}{
		{name: "no owner file"},
		{name: "garbage", content: "not-a-number"},
		{name: "dead owner", content: strconv.Itoa(deadPID), removed: true},
		{name: "live owner", content: strconv.Itoa(os.Getpid()), wantErr: ErrLocked},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := filepath.Join(t.TempDir(), "index")
			if tt.content != "" {
				if err := os.WriteFile(ownerPath(dir), []byte(tt.content), 0o644); err != nil {
					t.Fatal(err)
				}
			}

			err := recoverStale(dir)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("recoverStale() error = %v, want %v", err, tt.wantErr)
				}
			} else if err != nil {
				t.Errorf("recoverStale() error = %v", err)
			}

			_, statErr := os.Stat(ownerPath(dir))
			if tt.removed && !os.IsNotExist(statErr) {
				t.Error("stale owner file should be removed")
			}
		})
	}
}

func TestReleaseOwnerKeepsForeignFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index.pid")
	if err := os.WriteFile(path, []byte(strconv.Itoa(deadPID)), 0o644); err != nil {
		t.Fatal(err)
	}
	releaseOwner(path)
	if _, err := os.Stat(path); err != nil {
		t.Error("releaseOwner removed a file owned by another pid")
	}
}

func TestProcessRunning(t *testing.T) {
	if !processRunning(os.Getpid()) {
		t.Error("current process should be running")
	}
	if processRunning(deadPID) {
		t.Error("nonexistent pid should not be running")
	}
	if processRunning(0) {
		t.Error("pid 0 should not count as running")
	}
}
