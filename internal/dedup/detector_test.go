package dedup

import (
	"context"
	"fmt"
	"testing"
	"time"

	"herald/internal/storage"
	logx "herald/pkg/logx"
)

func TestDetectorSeenRoundTrip(t *testing.T) {
	d := New(Config{MaxEntries: 100}, nil, logx.Nop())

	if d.Seen("a") {
		t.Fatalf("unexpected hit on empty detector")
	}
	d.MarkSeen("a", Meta{At: time.Now(), Source: "test"})
	if !d.Seen("a") {
		t.Fatalf("expected hit after MarkSeen")
	}

	st := d.Stats()
	if st.IdentityEntries != 1 {
		t.Fatalf("expected 1 identity entry, got %d", st.IdentityEntries)
	}
	if st.Hits != 1 {
		t.Fatalf("expected 1 hit, got %d", st.Hits)
	}
}

func TestDetectorFIFOEviction(t *testing.T) {
	d := New(Config{MaxEntries: 3}, nil, logx.Nop())
	meta := Meta{At: time.Now()}

	for i := 0; i < 3; i++ {
		d.MarkSeen(fmt.Sprintf("k%d", i), meta)
	}
	// A hit must not refresh k0's slot.
	if !d.Seen("k0") {
		t.Fatalf("k0 should still be present")
	}
	d.MarkSeen("k3", meta)

	if d.Seen("k0") {
		t.Fatalf("k0 should have been evicted first (FIFO)")
	}
	if !d.Seen("k1") || !d.Seen("k2") || !d.Seen("k3") {
		t.Fatalf("younger entries must survive eviction")
	}
	if ev := d.Stats().IdentityEvictions; ev != 1 {
		t.Fatalf("expected 1 eviction, got %d", ev)
	}
}

func TestDetectorRemarkKeepsSlot(t *testing.T) {
	d := New(Config{MaxEntries: 2}, nil, logx.Nop())
	meta := Meta{At: time.Now()}

	d.MarkSeen("a", meta)
	d.MarkSeen("b", meta)
	d.MarkSeen("a", meta) // re-mark, no new slot
	d.MarkSeen("c", meta) // evicts "a" (oldest insertion)

	if d.Seen("a") {
		t.Fatalf("re-marking must not refresh the eviction slot")
	}
	if !d.Seen("b") || !d.Seen("c") {
		t.Fatalf("expected b and c present")
	}
}

func TestDetectorFingerprintStoreFallback(t *testing.T) {
	st := storage.NewMemory()
	ctx := context.Background()

	if err := st.PutFingerprint(ctx, "vid1:title:123", storage.FingerprintMeta{At: time.Now()}); err != nil {
		t.Fatalf("PutFingerprint: %v", err)
	}

	d := New(Config{MaxEntries: 10}, st, logx.Nop())
	if !d.SeenFingerprint(ctx, "vid1:title:123") {
		t.Fatalf("expected store-backed fingerprint hit")
	}
	// Second lookup is served from memory.
	if !d.SeenFingerprint(ctx, "vid1:title:123") {
		t.Fatalf("expected cached fingerprint hit")
	}
	if d.SeenFingerprint(ctx, "other") {
		t.Fatalf("unexpected fingerprint hit")
	}
}

func TestDetectorReset(t *testing.T) {
	d := New(Config{MaxEntries: 10}, nil, logx.Nop())
	d.MarkSeen("a", Meta{})
	d.MarkFingerprint("fp", Meta{})
	d.Reset()

	if d.Seen("a") {
		t.Fatalf("expected empty after reset")
	}
	st := d.Stats()
	if st.IdentityEntries != 0 || st.FingerprintEntries != 0 {
		t.Fatalf("expected zero entries after reset, got %+v", st)
	}
}
