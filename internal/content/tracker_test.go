package content

import (
	"context"
	"errors"
	"testing"
	"time"

	"herald/internal/dedup"
	logx "herald/pkg/logx"
)

func newTestTracker(maxAge time.Duration) *Tracker {
	return New(Config{MaxAge: maxAge}, nil, logx.Nop())
}

func TestAddAndGet(t *testing.T) {
	tr := newTestTracker(0)

	if err := tr.Add("", State{}); !errors.Is(err, ErrEmptyID) {
		t.Fatalf("expected ErrEmptyID, got %v", err)
	}
	if err := tr.Add("vid1", State{Type: dedup.ContentVideo, Title: "hello"}); err != nil {
		t.Fatalf("Add: %v", err)
	}

	st, ok := tr.Get("vid1")
	if !ok {
		t.Fatalf("expected tracked state")
	}
	if st.Title != "hello" || st.FirstSeen.IsZero() || st.Announced {
		t.Fatalf("unexpected state: %+v", st)
	}
}

func TestUpdateUnknownID(t *testing.T) {
	tr := newTestTracker(0)
	if err := tr.Update("nope", Patch{Title: "x"}); !errors.Is(err, ErrUnknownID) {
		t.Fatalf("expected ErrUnknownID, got %v", err)
	}
	if err := tr.MarkAnnounced("nope"); !errors.Is(err, ErrUnknownID) {
		t.Fatalf("expected ErrUnknownID, got %v", err)
	}
}

func TestUpdateMergesPatch(t *testing.T) {
	tr := newTestTracker(0)
	if err := tr.Add("vid1", State{Title: "old", Source: "scraper"}); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := tr.Update("vid1", Patch{Phase: "live", Meta: map[string]string{"k": "v"}}); err != nil {
		t.Fatalf("Update: %v", err)
	}

	st, _ := tr.Get("vid1")
	if st.Title != "old" {
		t.Fatalf("unset patch field must not clobber, got %q", st.Title)
	}
	if st.Phase != "live" || st.Meta["k"] != "v" {
		t.Fatalf("patch not applied: %+v", st)
	}
}

func TestIsNewTrackedFollowsAnnounced(t *testing.T) {
	tr := newTestTracker(0)
	if err := tr.Add("vid1", State{}); err != nil {
		t.Fatalf("Add: %v", err)
	}

	now := time.Now()
	// Tracked and unannounced: always new, even with a missing publish time.
	if !tr.IsNew("vid1", time.Time{}, now) {
		t.Fatalf("tracked unannounced content must be new")
	}
	if err := tr.MarkAnnounced("vid1"); err != nil {
		t.Fatalf("MarkAnnounced: %v", err)
	}
	if tr.IsNew("vid1", now, now) {
		t.Fatalf("announced content must not be new")
	}
}

func TestIsNewFailsClosedOnMissingPublishTime(t *testing.T) {
	tr := newTestTracker(0)
	if tr.IsNew("vid1", time.Time{}, time.Now()) {
		t.Fatalf("missing publish time must be treated as old")
	}
}

func TestIsNewAfterProcessStart(t *testing.T) {
	tr := newTestTracker(time.Hour)
	now := time.Now()

	// Published after start: accepted regardless of age limit.
	if !tr.IsNew("vid1", now.Add(time.Second), now.Add(2*time.Hour)) {
		t.Fatalf("content published after start must be new")
	}
}

func TestIsNewStartGraceAgeBoundary(t *testing.T) {
	maxAge := time.Hour
	tr := newTestTracker(maxAge)
	detected := time.Now()

	// Published before start, detected inside the grace window.
	// Age exactly at the limit is still acceptable.
	if !tr.IsNew("a", detected.Add(-maxAge), detected) {
		t.Fatalf("age == maxAge must be acceptable")
	}
	// One step past the limit is not.
	if tr.IsNew("b", detected.Add(-maxAge-time.Millisecond), detected) {
		t.Fatalf("age > maxAge must be rejected")
	}
}

func TestIsNewOutsideStartGrace(t *testing.T) {
	tr := newTestTracker(6 * time.Hour)
	// Fresh content detected long after start: the grace path is closed and
	// the publish time predates process start.
	detected := time.Now().Add(10 * time.Minute)
	published := time.Now().Add(-time.Minute)
	if tr.IsNew("vid1", published, detected) {
		t.Fatalf("pre-start content outside the grace window must be rejected")
	}
}

func TestCleanupRemovesStaleRecords(t *testing.T) {
	tr := newTestTracker(0)
	if err := tr.Add("old", State{}); err != nil {
		t.Fatalf("Add: %v", err)
	}
	time.Sleep(10 * time.Millisecond)
	if err := tr.Add("fresh", State{}); err != nil {
		t.Fatalf("Add: %v", err)
	}

	// Override: cutoff is 2×2ms ago, so only "old" (10ms) is past it.
	removed := tr.Cleanup(context.Background(), 2*time.Millisecond)
	if removed != 1 {
		t.Fatalf("expected 1 removed, got %d", removed)
	}
	if _, ok := tr.Get("old"); ok {
		t.Fatalf("old record should be gone")
	}
	if _, ok := tr.Get("fresh"); !ok {
		t.Fatalf("fresh record should survive")
	}
}

func TestStats(t *testing.T) {
	tr := newTestTracker(0)
	_ = tr.Add("a", State{Type: dedup.ContentVideo, Source: "api"})
	_ = tr.Add("b", State{Type: dedup.ContentLivestream, Phase: "live", Source: "api"})
	_ = tr.MarkAnnounced("a")

	s := tr.Stats()
	if s.Total != 2 || s.Announced != 1 || s.Unannounced != 1 {
		t.Fatalf("unexpected counts: %+v", s)
	}
	if s.ByType["video"] != 1 || s.ByType["livestream"] != 1 {
		t.Fatalf("unexpected type counts: %+v", s.ByType)
	}
	if s.BySource["api"] != 2 || s.ByPhase["live"] != 1 {
		t.Fatalf("unexpected source/phase counts: %+v", s)
	}
}

func TestResetUnannounces(t *testing.T) {
	tr := newTestTracker(0)
	_ = tr.Add("a", State{})
	_ = tr.MarkAnnounced("a")
	tr.Reset()

	if _, ok := tr.Get("a"); ok {
		t.Fatalf("expected empty tracker after reset")
	}
	if s := tr.Stats(); s.Total != 0 {
		t.Fatalf("expected zero stats after reset, got %+v", s)
	}
}
