package monitor

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/pysugar/vertex-nexus/internal/db/models"
)

func TestMonitorRoundTrip(t *testing.T) {
	m := Open(filepath.Join(t.TempDir(), "history.db"))
	if !m.Enabled() {
		t.Fatal("monitor should open in a temp dir")
	}
	defer m.Close()

	m.Record(models.RequestRecord{
		Method:        "POST",
		Path:          "/v1/chat/completions",
		Status:        200,
		DurationMs:    42,
		Provider:      "anthropic",
		ModelInput:    "sonnet",
		ResolvedModel: "claude-sonnet-4-5@20250929",
		Region:        "us-east5",
	})
	m.Record(models.RequestRecord{Method: "GET", Path: "/health", Status: 200})

	// Writer is async; poll briefly.
	deadline := time.Now().Add(2 * time.Second)
	var records []models.RequestRecord
	for time.Now().Before(deadline) {
		var err error
		records, err = m.Recent(10)
		if err != nil {
			t.Fatalf("Recent() error = %v", err)
		}
		if len(records) == 2 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if len(records) != 2 {
		t.Fatalf("Recent() returned %d records, want 2", len(records))
	}
	for _, rec := range records {
		if rec.ID == "" || rec.Timestamp == 0 {
			t.Errorf("record missing id/timestamp: %+v", rec)
		}
	}
}

func TestMonitorDisabledIsSafe(t *testing.T) {
	m := &Monitor{}
	m.Record(models.RequestRecord{Method: "GET", Path: "/"})
	records, err := m.Recent(10)
	if err != nil {
		t.Fatalf("Recent() error = %v", err)
	}
	if len(records) != 0 {
		t.Errorf("disabled monitor returned %d records", len(records))
	}
	m.Close()
}

func TestMonitorErrorSnippetBounded(t *testing.T) {
	m := Open(filepath.Join(t.TempDir(), "history.db"))
	defer m.Close()

	long := make([]byte, 2000)
	for i := range long {
		long[i] = 'e'
	}
	m.Record(models.RequestRecord{Method: "POST", Path: "/v1/messages", Status: 500, Error: string(long)})

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		records, _ := m.Recent(1)
		if len(records) == 1 {
			if len(records[0].Error) != maxErrorSnippet {
				t.Errorf("stored error length = %d, want %d", len(records[0].Error), maxErrorSnippet)
			}
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("record never landed")
}
