package storage

import (
	"errors"
	"time"
)

var ErrDisabled = errors.New("storage disabled")

// Config configures storage.
//
// Driver values:
//   - "memory": in-process only
//   - "file":   jsonl + snapshot files
//   - "sqlite": SQLite database file
//
// If Driver is empty or "none", storage is disabled.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// ContentRecord is the persisted form of a tracked content state.
// Keep it compact and schema-stable.
type ContentRecord struct {
	ID          string            `json:"id"`
	Type        string            `json:"type"`
	Phase       string            `json:"phase,omitempty"`
	FirstSeen   time.Time         `json:"first_seen"`
	LastUpdated time.Time         `json:"last_updated"`
	PublishedAt time.Time         `json:"published_at,omitempty"`
	Announced   bool              `json:"announced"`
	Source      string            `json:"source,omitempty"`
	URL         string            `json:"url,omitempty"`
	Title       string            `json:"title,omitempty"`
	Meta        map[string]string `json:"meta,omitempty"`
}

// FingerprintMeta records where and when a fingerprint was first seen.
type FingerprintMeta struct {
	At     time.Time `json:"at"`
	Source string    `json:"source,omitempty"`
}

// AnnounceEntry records one delivery outcome (audit trail).
type AnnounceEntry struct {
	At        time.Time `json:"at"`
	ContentID string    `json:"content_id"`
	ChatID    int64     `json:"chat_id"`
	ThreadID  int       `json:"thread_id,omitempty"`
	Outcome   string    `json:"outcome"` // "sent" | "failed"
	Error     string    `json:"error,omitempty"`
	Attempts  int       `json:"attempts"`
	TookMS    int64     `json:"took_ms"`
}
