// Package models holds the gorm row types persisted by the history monitor.
package models

// RequestRecord is one proxied request. Bodies are never stored; only a
// bounded error snippet survives for diagnosis.
type RequestRecord struct {
	ID            string `gorm:"primaryKey" json:"id"`
	Timestamp     int64  `gorm:"index" json:"timestamp"`
	Method        string `json:"method"`
	Path          string `json:"path"`
	Status        int    `json:"status"`
	DurationMs    int64  `json:"duration_ms"`
	Provider      string `gorm:"index" json:"provider,omitempty"`
	ModelInput    string `gorm:"index" json:"model,omitempty"`
	ResolvedModel string `json:"resolved_model,omitempty"`
	Region        string `json:"region,omitempty"`
	Error         string `json:"error,omitempty"`
}
