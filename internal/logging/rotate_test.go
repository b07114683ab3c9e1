package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestRotatingWriterAppends(t *testing.T) {
	path := filepath.Join(t.TempDir(), "proxy.log")
	w, err := NewRotatingWriter(path, 0)
	if err != nil {
		t.Fatalf("NewRotatingWriter() error = %v", err)
	}
	defer w.Close()

	for _, line := range []string{"first\n", "second\n"} {
		if _, err := w.Write([]byte(line)); err != nil {
			t.Fatalf("Write(%q) error = %v", line, err)
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	if string(data) != "first\nsecond\n" {
		t.Errorf("log contents = %q, want %q", data, "first\nsecond\n")
	}
}

func TestRotatingWriterRotatesPastThreshold(t *testing.T) {
	path := filepath.Join(t.TempDir(), "proxy.log")
	w, err := NewRotatingWriter(path, 64)
	if err != nil {
		t.Fatalf("NewRotatingWriter() error = %v", err)
	}
	defer w.Close()

	big := strings.Repeat("x", 80) + "\n"
	if _, err := w.Write([]byte(big)); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	// The oversized line crossed the threshold, so it must have been rotated out.
	if _, err := os.Stat(path + ".1"); err != nil {
		t.Fatalf("rotated file missing: %v", err)
	}

	if _, err := w.Write([]byte("fresh\n")); err != nil {
		t.Fatalf("Write() after rotation error = %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	if string(data) != "fresh\n" {
		t.Errorf("fresh log contents = %q, want %q", data, "fresh\n")
	}

	old, err := os.ReadFile(path + ".1")
	if err != nil {
		t.Fatalf("ReadFile(.1) error = %v", err)
	}
	if string(old) != big {
		t.Errorf("rotated log lost data: got %d bytes, want %d", len(old), len(big))
	}
}

func TestRotatingWriterKeepsSingleGeneration(t *testing.T) {
	path := filepath.Join(t.TempDir(), "proxy.log")
	w, err := NewRotatingWriter(path, 8)
	if err != nil {
		t.Fatalf("NewRotatingWriter() error = %v", err)
	}
	defer w.Close()

	if _, err := w.Write([]byte("aaaaaaaaaa")); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if _, err := w.Write([]byte("bbbbbbbbbb")); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	old, err := os.ReadFile(path + ".1")
	if err != nil {
		t.Fatalf("ReadFile(.1) error = %v", err)
	}
	// Second rotation replaces the first generation outright.
	if string(old) != "bbbbbbbbbb" {
		t.Errorf(".1 contents = %q, want %q", old, "bbbbbbbbbb")
	}
}

func TestRotatingWriterResumesExistingSize(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "proxy.log")
	if err := os.WriteFile(path, []byte(strings.Repeat("y", 60)), 0o644); err != nil {
		t.Fatalf("seed file: %v", err)
	}

	w, err := NewRotatingWriter(path, 64)
	if err != nil {
		t.Fatalf("NewRotatingWriter() error = %v", err)
	}
	defer w.Close()

	// 60 existing + 10 new crosses 64: rotation must fire on the first write.
	if _, err := w.Write([]byte("zzzzzzzzzz")); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if _, err := os.Stat(path + ".1"); err != nil {
		t.Fatalf("rotated file missing after resume: %v", err)
	}
}
