// Package monitor persists per-request history records to the local SQLite
// database. The writer is asynchronous and bounded; it must never block or
// fail a proxied request.
package monitor

import (
	"context"
	"log"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/pysugar/vertex-nexus/internal/db"
	"github.com/pysugar/vertex-nexus/internal/db/models"
)

// queueSize bounds the pending-write channel; records beyond it are dropped.
const queueSize = 256

// maxErrorSnippet bounds the stored error text.
const maxErrorSnippet = 500

// Monitor drains request records into the history database on a single
// background goroutine. A nil or disabled Monitor accepts records and drops
// them, so callers never need a nil check.
type Monitor struct {
	database *gorm.DB
	queue    chan models.RequestRecord
	done     chan struct{}
	dropped  atomic.Int64
}

// Open starts a monitor backed by the SQLite file at path. When the database
// cannot open, the monitor is disabled and the proxy keeps serving.
func Open(path string) *Monitor {
	database, err := db.Open(path)
	if err != nil {
		log.Printf("⚠️ Request history disabled: %v", err)
		return &Monitor{}
	}

	m := &Monitor{
		database: database,
		queue:    make(chan models.RequestRecord, queueSize),
		done:     make(chan struct{}),
	}
	go m.drain()
	return m
}

// Enabled reports whether records are being persisted.
func (m *Monitor) Enabled() bool {
	return m != nil && m.database != nil
}

// Record enqueues one request record. Never blocks: when the queue is full
// the record is dropped and counted.
func (m *Monitor) Record(rec models.RequestRecord) {
	if !m.Enabled() {
		return
	}
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	if rec.Timestamp == 0 {
		rec.Timestamp = time.Now().UnixMilli()
	}
	if len(rec.Error) > maxErrorSnippet {
		rec.Error = rec.Error[:maxErrorSnippet]
	}

	select {
	case m.queue <- rec:
	default:
		if n := m.dropped.Add(1); n%100 == 1 {
			log.Printf("⚠️ History queue full, %d record(s) dropped so far", n)
		}
	}
}

// Recent returns the newest records, capped at 500.
func (m *Monitor) Recent(limit int) ([]models.RequestRecord, error) {
	if !m.Enabled() {
		return []models.RequestRecord{}, nil
	}
	if limit <= 0 {
		limit = 50
	}
	if limit > 500 {
		limit = 500
	}
	var records []models.RequestRecord
	err := m.database.Order("timestamp DESC").Limit(limit).Find(&records).Error
	return records, err
}

// Dropped reports how many records the bounded queue rejected.
func (m *Monitor) Dropped() int64 {
	return m.dropped.Load()
}

// Close stops the writer after flushing queued records.
func (m *Monitor) Close() {
	if !m.Enabled() {
		return
	}
	close(m.queue)
	select {
	case <-m.done:
	case <-time.After(5 * time.Second):
		log.Printf("⚠️ History writer did not flush in time")
	}
}

func (m *Monitor) drain() {
	defer close(m.done)
	for rec := range m.queue {
		if err := m.database.WithContext(context.Background()).Create(&rec).Error; err != nil {
			log.Printf("⚠️ Failed to save history record: %v", err)
		}
	}
}
