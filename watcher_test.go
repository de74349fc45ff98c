package filesentry

import (
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"testing"
	"time"
)

// TestWatcherCreateCascade drives the full facade end to end (real inotify
// ingestor, real worker goroutine) and is the closest analogue to spec.md
// §8 scenario 1 at the public API surface, in the style of the teacher's
// TestRecursiveWatchCycle litmus test.
func TestWatcherCreateCascade(t *testing.T) {
	if runtime.GOOS != "linux" {
		t.Skip("kernel notification backend only implemented for linux")
	}

	dir, err := os.MkdirTemp("", "filesentry_watcher_test")
	if err != nil {
		t.Fatal("unable to create temporary directory:", err)
	}
	defer os.RemoveAll(dir)

	w, err := New()
	if err != nil {
		t.Fatal("unable to create watcher:", err)
	}
	guard := w.ShutdownGuard()
	defer guard()

	var mu sync.Mutex
	var seen []Event
	w.AddHandler(func(events Events) bool {
		mu.Lock()
		seen = append(seen, events.All()...)
		mu.Unlock()
		return true
	})
	w.SetSettleTime(50 * time.Millisecond)
	w.Start()

	added := make(chan error, 1)
	w.AddRoot(NewCanonicalPath(dir), true, func(err error) { added <- err })
	if err := <-added; err != nil {
		t.Fatal("AddRoot failed:", err)
	}

	if err := os.WriteFile(filepath.Join(dir, "baz"), []byte("1"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.MkdirAll(filepath.Join(dir, "foo", "bar"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "foo", "baz"), []byte("1"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "foo", "bar", "baz"), []byte("1"), 0o644); err != nil {
		t.Fatal(err)
	}

	want := map[string]bool{
		filepath.Join(dir, "baz"):               false,
		filepath.Join(dir, "foo", "baz"):        false,
		filepath.Join(dir, "foo", "bar", "baz"): false,
	}
	deadline := time.After(5 * time.Second)
	for {
		mu.Lock()
		for _, e := range seen {
			if e.Kind == EventCreate {
				if _, ok := want[e.Path.String()]; ok {
					want[e.Path.String()] = true
				}
			}
		}
		mu.Unlock()

		done := true
		for _, ok := range want {
			if !ok {
				done = false
			}
		}
		if done {
			return
		}
		select {
		case <-deadline:
			t.Fatalf("timed out waiting for create events, still missing: %v", want)
		case <-time.After(20 * time.Millisecond):
		}
	}
}

// TestWatcherFilterRejectsRoot mirrors spec.md §8 scenario 6 through the
// public facade: adding an ignored root must invoke onCrawled without ever
// touching the kernel notification backend.
func TestWatcherFilterRejectsRoot(t *testing.T) {
	if runtime.GOOS != "linux" {
		t.Skip("kernel notification backend only implemented for linux")
	}

	dir, err := os.MkdirTemp("", "filesentry_watcher_reject_test")
	if err != nil {
		t.Fatal("unable to create temporary directory:", err)
	}
	defer os.RemoveAll(dir)
	gitDir := filepath.Join(dir, ".git")
	if err := os.MkdirAll(gitDir, 0o755); err != nil {
		t.Fatal(err)
	}

	w, err := New()
	if err != nil {
		t.Fatal("unable to create watcher:", err)
	}
	defer w.ShutdownGuard()()
	w.Start()

	done := make(chan error, 1)
	w.AddRoot(NewCanonicalPath(gitDir), true, func(err error) { done <- err })

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("expected a nil error for a filtered root, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("onCrawled was never invoked for a filtered root")
	}
	if w.RecrawlCount() != 0 {
		t.Fatalf("expected no recrawl from a rejected root, got %d", w.RecrawlCount())
	}
}
