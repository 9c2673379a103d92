package runlog

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
)

func TestOpenWritesToFile(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "logs")
	l, err := Open(dir, "abc123")
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	l.Printf("[test] hello %d", 42)
	if err := l.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	want := filepath.Join(dir, "run-abc123.log")
	if l.Path() != want {
		t.Errorf("path = %q, want %q", l.Path(), want)
	}
	data, err := os.ReadFile(want)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "[test] hello 42") {
		t.Errorf("entry missing from log file:\n%s", data)
	}
	if !strings.Contains(string(data), "run abc123 started") {
		t.Errorf("open banner missing:\n%s", data)
	}
}

func TestCloseIsIdempotentAndDropsLateWrites(t *testing.T) {
	l, err := Open(t.TempDir(), "x")
	if err != nil {
		t.Fatal(err)
	}
	if err := l.Close(); err != nil {
		t.Fatal(err)
	}
	if err := l.Close(); err != nil {
		t.Errorf("second close must be a no-op: %v", err)
	}
	// Writing after close must not panic.
	l.Printf("late entry")
}

func TestDiscard(t *testing.T) {
	l := Discard()
	if l.Path() != "" {
		t.Errorf("discard log has a path: %q", l.Path())
	}
	l.Printf("goes nowhere")
	if err := l.Close(); err != nil {
		t.Errorf("close discard: %v", err)
	}
}

func TestConcurrentWrites(t *testing.T) {
	dir := t.TempDir()
	l, err := Open(dir, "conc")
	if err != nil {
		t.Fatal(err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				l.Printf("[worker %d] entry %d", n, j)
			}
		}(i)
	}
	wg.Wait()
	if err := l.Close(); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(l.Path())
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	// Banner plus 400 entries, none interleaved mid-line.
	if len(lines) != 401 {
		t.Errorf("expected 401 lines, got %d", len(lines))
	}
}
