package filelock

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"
)

func TestTryLock(t *testing.T) {
	lockPath := filepath.Join(t.TempDir(), "meta.md.lock")

	lock1 := NewFileLock(lockPath)
	lock2 := NewFileLock(lockPath)

	acquired, err := lock1.TryLock()
	if err != nil {
		t.Fatalf("TryLock failed: %v", err)
	}
	if !acquired {
		t.Fatal("first TryLock should succeed")
	}

	acquired, err = lock2.TryLock()
	if err != nil {
		t.Fatalf("TryLock failed: %v", err)
	}
	if acquired {
		t.Error("second TryLock should fail while the lock is held")
	}

	if err := lock1.Unlock(); err != nil {
		t.Fatalf("Unlock failed: %v", err)
	}

	acquired, err = lock2.TryLock()
	if err != nil {
		t.Fatalf("TryLock failed: %v", err)
	}
	if !acquired {
		t.Error("TryLock should succeed after unlock")
	}
	lock2.Unlock()
}

func TestLockContext_Timeout(t *testing.T) {
	lockPath := filepath.Join(t.TempDir(), "ada.config.json.lock")

	holder := NewFileLock(lockPath)
	if ok, err := holder.TryLock(); err != nil || !ok {
		t.Fatalf("holder TryLock = %v, %v", ok, err)
	}
	defer holder.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Millisecond)
	defer cancel()

	err := NewFileLock(lockPath).LockContext(ctx)
	if !errors.Is(err, ErrLockTimeout) {
		t.Fatalf("expected ErrLockTimeout, got %v", err)
	}
}

func TestAtomicWrite(t *testing.T) {
	tests := []struct {
		name    string
		initial string
		content string
	}{
		{"new file", "", "first"},
		{"overwrite", "old content that is longer", "new"},
		{"empty content", "something", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			target := filepath.Join(dir, "nested", ".ada-status.json")
			if tt.initial != "" {
				os.MkdirAll(filepath.Dir(target), 0755)
				os.WriteFile(target, []byte(tt.initial), 0644)
			}

			if err := AtomicWrite(target, []byte(tt.content)); err != nil {
				t.Fatalf("AtomicWrite failed: %v", err)
			}

			got, err := os.ReadFile(target)
			if err != nil {
				t.Fatalf("read back: %v", err)
			}
			if string(got) != tt.content {
				t.Errorf("content = %q, want %q", got, tt.content)
			}

			entries, _ := os.ReadDir(filepath.Dir(target))
			for _, e := range entries {
				if strings.Contains(e.Name(), ".tmp-") {
					t.Errorf("temp file left behind: %s", e.Name())
				}
			}
		})
	}
}

func TestAtomicWrite_Permissions(t *testing.T) {
	target := filepath.Join(t.TempDir(), "meta.md")
	if err := AtomicWrite(target, []byte("x")); err != nil {
		t.Fatalf("AtomicWrite failed: %v", err)
	}

	info, err := os.Stat(target)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if info.Mode().Perm() != 0644 {
		t.Errorf("perm = %v, want 0644", info.Mode().Perm())
	}
}

func TestLockAndUpdate_Concurrent(t *testing.T) {
	target := filepath.Join(t.TempDir(), "counter.md")

	const workers = 5
	const iterations = 10

	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			for j := 0; j < iterations; j++ {
				err := LockAndUpdate(context.Background(), target, func(current []byte) ([]byte, error) {
					n, _ := strconv.Atoi(strings.TrimSpace(string(current)))
					time.Sleep(time.Millisecond)
					return []byte(fmt.Sprintf("%d", n+1)), nil
				})
				if err != nil {
					t.Errorf("LockAndUpdate: %v", err)
					return
				}
			}
		}()
	}
	wg.Wait()

	data, err := os.ReadFile(target)
	if err != nil {
		t.Fatalf("read counter: %v", err)
	}
	if got := strings.TrimSpace(string(data)); got != strconv.Itoa(workers*iterations) {
		t.Errorf("counter = %s, want %d (lost update)", got, workers*iterations)
	}
}

func TestLockAndUpdate_NilLeavesFileUntouched(t *testing.T) {
	target := filepath.Join(t.TempDir(), "meta.md")
	os.WriteFile(target, []byte("keep"), 0644)

	err := LockAndUpdate(context.Background(), target, func(current []byte) ([]byte, error) {
		if string(current) != "keep" {
			t.Errorf("current = %q, want keep", current)
		}
		return nil, nil
	})
	if err != nil {
		t.Fatalf("LockAndUpdate: %v", err)
	}

	data, _ := os.ReadFile(target)
	if string(data) != "keep" {
		t.Errorf("file changed to %q", data)
	}
}

func TestLockAndUpdate_PropagatesError(t *testing.T) {
	target := filepath.Join(t.TempDir(), "meta.md")
	boom := errors.New("boom")

	err := LockAndUpdate(context.Background(), target, func([]byte) ([]byte, error) {
		return nil, boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	if _, statErr := os.Stat(target); !os.IsNotExist(statErr) {
		t.Error("file should not be created when update fails")
	}
}

func TestLockAndWrite(t *testing.T) {
	target := filepath.Join(t.TempDir(), "ada.config.json")
	if err := LockAndWrite(context.Background(), target, []byte(`{"version":"1.0"}`)); err != nil {
		t.Fatalf("LockAndWrite: %v", err)
	}
	data, _ := os.ReadFile(target)
	if string(data) != `{"version":"1.0"}` {
		t.Errorf("content = %q", data)
	}
}
