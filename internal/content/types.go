package content

import (
	"errors"
	"time"

	"herald/internal/dedup"
)

var (
	// ErrEmptyID rejects malformed input synchronously; never retried.
	ErrEmptyID = errors.New("content id is empty")
	// ErrUnknownID means the id was never added to the tracker.
	ErrUnknownID = errors.New("unknown content id")
)

// State is the authoritative in-memory record for one content id.
//
// Phase is an opaque lifecycle tag supplied and transitioned by the caller
// (e.g. scheduled -> live -> ended); the tracker does not enforce a
// transition graph on it. The tracker owns only Announced and the freshness
// gate.
type State struct {
	ID          string
	Type        dedup.ContentType
	Phase       string
	FirstSeen   time.Time
	LastUpdated time.Time
	PublishedAt time.Time
	Announced   bool // monotonic false -> true (except full Reset)
	Source      string
	URL         string
	Title       string
	Meta        map[string]string
}

// Patch is a partial update; nil/zero fields are left untouched.
type Patch struct {
	Type        dedup.ContentType
	Phase       string
	PublishedAt time.Time
	Source      string
	URL         string
	Title       string
	Meta        map[string]string
}

// Stats aggregates tracked content for operator visibility.
type Stats struct {
	Total       int
	Announced   int
	Unannounced int
	ByPhase     map[string]int
	ByType      map[string]int
	BySource    map[string]int
}

// Config bounds content freshness.
type Config struct {
	// MaxAge is the maximum content age for announcement eligibility.
	MaxAge time.Duration
}

// startGracePeriod is the fixed window after process start during which
// content published slightly before start is still eligible.
const startGracePeriod = 5 * time.Minute

// DefaultMaxAge applies when the config leaves MaxAge unset.
const DefaultMaxAge = 6 * time.Hour

func dedupContentType(s string) dedup.ContentType {
	switch dedup.ContentType(s) {
	case dedup.ContentVideo, dedup.ContentLivestream, dedup.ContentPost:
		return dedup.ContentType(s)
	default:
		return dedup.ContentUnknown
	}
}
