package filesystem

import (
	"errors"
	"os"
	"path/filepath"
	"syscall"
	"testing"
)

func TestIsNetworkPath(t *testing.T) {
	SetNetworkPrefixes([]string{"/mnt/nas", " /srv/media ", ""})
	t.Cleanup(func() { SetNetworkPrefixes(nil) })

	tests := []struct {
		path string
		want bool
	}{
		{`\\server\share`, true},
		{"smb://server/share", true},
		{"/mnt/nas", true},
		{"/mnt/nas/movies", true},
		{"/mnt/nastier", false},
		{"/srv/media/tv", true},
		{"/home/user/files", false},
	}
	for _, tt := range tests {
		if got := IsNetworkPath(tt.path); got != tt.want {
			t.Errorf("IsNetworkPath(%q) = %v, want %v", tt.path, got, tt.want)
		}
	}
}

func TestIsTransientError(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"stale handle", syscall.ESTALE, true},
		{"io error", syscall.EIO, true},
		{"timeout", syscall.ETIMEDOUT, true},
		{"not exist", syscall.ENOENT, false},
		{"permission", syscall.EACCES, false},
		{"wrapped", &os.PathError{Op: "stat", Path: "/x", Err: syscall.ESTALE}, true},
		{"plain error", errors.New("boom"), false},
	}
	for _, tt := range tests {
		if got := isTransientError(tt.err); got != tt.want {
			t.Errorf("%s: isTransientError() = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestStatWithRetry(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "a.txt")
	if err := os.WriteFile(file, []byte("x"), 0o644); err != nil {
		t.Fatalf("WriteFile() failed: %v", err)
	}

	info, err := StatWithRetry(file, DefaultRetryConfig())
	if err != nil {
		t.Fatalf("StatWithRetry() failed: %v", err)
	}
	if info.Name() != "a.txt" {
		t.Errorf("Name() = %q", info.Name())
	}

	// ENOENT is permanent; the call must fail without burning retries.
	if _, err := StatWithRetry(filepath.Join(dir, "missing"), DefaultRetryConfig()); !os.IsNotExist(err) {
		t.Errorf("StatWithRetry(missing) error = %v, want not-exist", err)
	}
}

func TestReadDirWithRetry(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "a.txt"), []byte("x"), 0o644); err != nil {
		t.Fatalf("WriteFile() failed: %v", err)
	}

	entries, err := ReadDirWithRetry(dir, DefaultRetryConfig())
	if err != nil {
		t.Fatalf("ReadDirWithRetry() failed: %v", err)
	}
	if len(entries) != 1 {
		t.Errorf("ReadDirWithRetry() returned %d entries, want 1", len(entries))
	}

	if _, err := ReadDirWithRetry(filepath.Join(dir, "missing"), DefaultRetryConfig()); !os.IsNotExist(err) {
		t.Errorf("ReadDirWithRetry(missing) error = %v, want not-exist", err)
	}
}
