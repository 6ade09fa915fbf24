package store

import (
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/jaakkos/opencode-teams/internal/domain"
)

func TestWriteReadRoundTrip(t *testing.T) {
	st := New(t.TempDir())
	path := filepath.Join(st.Root(), "sub", "value.json")

	type payload struct {
		Name  string `json:"name"`
		Count int    `json:"count"`
	}
	want := payload{Name: "demo", Count: 3}
	if err := st.WriteJSON(path, want); err != nil {
		t.Fatalf("WriteJSON: %v", err)
	}

	var got payload
	if err := st.ReadJSON(path, &got); err != nil {
		t.Fatalf("ReadJSON: %v", err)
	}
	if got != want {
		t.Errorf("round trip = %+v, want %+v", got, want)
	}
}

func TestWriteLeavesNoTempFiles(t *testing.T) {
	st := New(t.TempDir())
	path := filepath.Join(st.Root(), "value.json")
	if err := st.WriteJSON(path, map[string]int{"a": 1}); err != nil {
		t.Fatalf("WriteJSON: %v", err)
	}
	entries, err := os.ReadDir(st.Root())
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(entries) != 1 || entries[0].Name() != "value.json" {
		t.Errorf("unexpected directory contents: %v", entries)
	}
}

func TestReadMissingIsNotFound(t *testing.T) {
	st := New(t.TempDir())
	var v map[string]any
	err := st.ReadJSON(filepath.Join(st.Root(), "absent.json"), &v)
	if !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("error = %v, want ErrNotFound", err)
	}
}

func TestReadCorruptIsStorage(t *testing.T) {
	st := New(t.TempDir())
	path := filepath.Join(st.Root(), "bad.json")
	if err := os.WriteFile(path, []byte("{truncated"), 0o644); err != nil {
		t.Fatalf("seed file: %v", err)
	}
	var v map[string]any
	err := st.ReadJSON(path, &v)
	if !errors.Is(err, domain.ErrStorage) {
		t.Errorf("error = %v, want ErrStorage", err)
	}
}

func TestDefaultRootUnderHome(t *testing.T) {
	st := New("")
	if st.Root() == "" {
		t.Fatal("empty default root")
	}
	if filepath.Base(st.Root()) != ".opencode-teams" {
		t.Errorf("default root = %q, want .opencode-teams leaf", st.Root())
	}
}

func TestPathLayout(t *testing.T) {
	st := New("/base")
	tests := []struct {
		name string
		got  string
		want string
	}{
		{"team config", st.TeamConfigPath("demo"), "/base/teams/demo/config.json"},
		{"inbox", st.InboxPath("demo", "r1"), "/base/teams/demo/inboxes/r1.json"},
		{"inbox lock", st.InboxLockPath("demo"), "/base/teams/demo/inboxes/.lock"},
		{"health", st.HealthPath("demo"), "/base/teams/demo/health.json"},
		{"task", st.TaskPath("demo", 7), "/base/tasks/demo/7.json"},
		{"task lock", st.TaskLockPath("demo"), "/base/tasks/demo/.lock"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if tc.got != filepath.FromSlash(tc.want) {
				t.Errorf("got %q, want %q", tc.got, tc.want)
			}
		})
	}
}

func TestWithLockSerializes(t *testing.T) {
	st := New(t.TempDir())
	lock := filepath.Join(st.Root(), "dir", ".lock")

	const workers = 8
	const perWorker = 25
	counter := 0
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perWorker; j++ {
				err := st.WithLock(lock, func() error {
					counter++
					return nil
				})
				if err != nil {
					t.Errorf("WithLock: %v", err)
					return
				}
			}
		}()
	}
	wg.Wait()
	if counter != workers*perWorker {
		t.Errorf("counter = %d, want %d", counter, workers*perWorker)
	}
}

func TestWithLockReleasesOnError(t *testing.T) {
	st := New(t.TempDir())
	lock := filepath.Join(st.Root(), ".lock")

	sentinel := errors.New("boom")
	if err := st.WithLock(lock, func() error { return sentinel }); !errors.Is(err, sentinel) {
		t.Fatalf("error = %v, want sentinel", err)
	}
	// A failed fn must not leave the lock held.
	done := make(chan struct{})
	go func() {
		_ = st.WithLock(lock, func() error { return nil })
		close(done)
	}()
	<-done
}
