// Package source defines the detection collaborator contracts. The push
// listener, the scraper, and the API fallback poller all produce Items and
// funnel them through the same pipeline.
package source

import (
	"context"
	"time"

	"herald/internal/dedup"
)

// Item is one detected content candidate (input contract).
type Item struct {
	ID          string
	Type        dedup.ContentType
	Source      string
	PublishedAt time.Time
	DetectedAt  time.Time
	Title       string
	URL         string
	Meta        map[string]string
}

// Fetcher is implemented by detection collaborators that can be polled
// (typically the API-based fallback path).
type Fetcher interface {
	// Name tags items and log lines.
	Name() string
	// Fetch returns current candidates. The pipeline downstream decides
	// freshness and uniqueness; Fetch may freely return items seen before.
	Fetch(ctx context.Context) ([]Item, error)
}

// Sink receives detected items; wired to the pipeline's Ingest.
type Sink func(ctx context.Context, it Item)
