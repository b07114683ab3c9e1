// Package stats maintains the small on-disk counters the external
// supervisor reads: start time, request count, last request time, port.
package stats

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Snapshot is the stats.json document.
type Snapshot struct {
	StartTime       time.Time `json:"startTime"`
	RequestCount    int64     `json:"requestCount"`
	LastRequestTime time.Time `json:"lastRequestTime,omitempty"`
	Port            int       `json:"port"`
}

// Tracker counts requests and rewrites the stats file wholesale on each one.
type Tracker struct {
	mu   sync.Mutex
	path string
	snap Snapshot
}

// NewTracker starts counting from now and writes the initial file. A write
// failure is reported but the tracker still counts in memory.
func NewTracker(path string, port int) (*Tracker, error) {
	t := &Tracker{
		path: path,
		snap: Snapshot{StartTime: time.Now().UTC(), Port: port},
	}
	if err := t.write(); err != nil {
		return t, err
	}
	return t, nil
}

// RecordRequest bumps the counter and persists the new snapshot.
func (t *Tracker) RecordRequest() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.snap.RequestCount++
	t.snap.LastRequestTime = time.Now().UTC()
	_ = t.write()
}

// Snapshot returns a copy of the current counters.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.snap
}

// Uptime is the time since the tracker started.
func (t *Tracker) Uptime() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	return time.Since(t.snap.StartTime)
}

// write rewrites the file; callers hold the lock.
func (t *Tracker) write() error {
	if err := os.MkdirAll(filepath.Dir(t.path), 0o755); err != nil {
		return fmt.Errorf("create stats directory: %w", err)
	}
	data, err := json.MarshalIndent(t.snap, "", "  ")
	if err != nil {
		return fmt.Errorf("encode stats: %w", err)
	}
	if err := os.WriteFile(t.path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("write stats: %w", err)
	}
	return nil
}

// Load reads a stats file; the status subcommand uses it.
func Load(path string) (*Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("parse stats file %q: %w", path, err)
	}
	return &snap, nil
}
