package dedup

import (
	"context"
	"sync"
	"time"

	"herald/internal/storage"
	logx "herald/pkg/logx"
)

// Config bounds the detector's memory.
type Config struct {
	// MaxEntries caps each seen cache (identity and fingerprint separately).
	MaxEntries int
}

// Stats is a point-in-time snapshot of the detector.
type Stats struct {
	IdentityEntries      int
	FingerprintEntries   int
	IdentityEvictions    uint64
	FingerprintEvictions uint64
	Hits                 uint64
}

// Detector is the fast source-agnostic duplicate gate. All detection paths
// funnel through one instance so duplicates arriving from independent paths
// collide here.
//
// Persistence is best-effort: fingerprint writes never block or gate the
// in-memory decision.
type Detector struct {
	mu  sync.Mutex
	cfg Config
	log logx.Logger

	store storage.Store // may be nil

	ids  *seenCache
	fps  *seenCache
	hits uint64
}

func New(cfg Config, store storage.Store, log logx.Logger) *Detector {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Detector{
		cfg:   cfg,
		log:   log,
		store: store,
		ids:   newSeenCache(cfg.MaxEntries),
		fps:   newSeenCache(cfg.MaxEntries),
	}
}

// Seen reports whether the identity key (content id or normalized URL) has
// been observed before.
func (d *Detector) Seen(key string) bool {
	if key == "" {
		return false
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.ids.has(key) {
		d.hits++
		return true
	}
	return false
}

// MarkSeen records the identity key.
func (d *Detector) MarkSeen(key string, meta Meta) {
	if key == "" {
		return
	}
	if meta.At.IsZero() {
		meta.At = time.Now()
	}
	d.mu.Lock()
	d.ids.add(key, meta)
	d.mu.Unlock()
}

// SeenFingerprint reports whether the fingerprint has been observed, checking
// memory first and falling back to the store (best-effort, bounded wait) for
// cross-restart hits.
func (d *Detector) SeenFingerprint(ctx context.Context, fp string) bool {
	if fp == "" {
		return false
	}
	d.mu.Lock()
	if d.fps.has(fp) {
		d.hits++
		d.mu.Unlock()
		return true
	}
	st := d.store
	d.mu.Unlock()

	if st == nil {
		return false
	}
	if ctx == nil {
		ctx = context.Background()
	}
	cctx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()
	ok, err := st.HasFingerprint(cctx, fp)
	if err != nil {
		d.log.Debug("fingerprint lookup failed", logx.Err(err))
		return false
	}
	if ok {
		// Cache the hit so the next check stays in memory.
		d.mu.Lock()
		d.fps.add(fp, Meta{At: time.Now()})
		d.hits++
		d.mu.Unlock()
	}
	return ok
}

// MarkFingerprint records the fingerprint in memory and persists it
// asynchronously.
func (d *Detector) MarkFingerprint(fp string, meta Meta) {
	if fp == "" {
		return
	}
	if meta.At.IsZero() {
		meta.At = time.Now()
	}
	d.mu.Lock()
	d.fps.add(fp, meta)
	st := d.store
	d.mu.Unlock()

	if st == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := st.PutFingerprint(ctx, fp, storage.FingerprintMeta{At: meta.At, Source: meta.Source}); err != nil {
			d.log.Debug("fingerprint persist failed", logx.Err(err))
		}
	}()
}

func (d *Detector) Stats() Stats {
	d.mu.Lock()
	defer d.mu.Unlock()
	return Stats{
		IdentityEntries:      d.ids.len(),
		FingerprintEntries:   d.fps.len(),
		IdentityEvictions:    d.ids.evictions,
		FingerprintEvictions: d.fps.evictions,
		Hits:                 d.hits,
	}
}

// Reset clears both caches. Persisted fingerprints are untouched.
func (d *Detector) Reset() {
	d.mu.Lock()
	d.ids.reset()
	d.fps.reset()
	d.hits = 0
	d.mu.Unlock()
}
