package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"herald/internal/channel"
	"herald/internal/content"
	"herald/internal/dedup"
	"herald/internal/delivery"
	"herald/internal/source"
	logx "herald/pkg/logx"
)

func newTestPipeline(t *testing.T, sender channel.Sender) (*Pipeline, *delivery.Queue) {
	t.Helper()
	det := dedup.New(dedup.Config{MaxEntries: 1000}, nil, logx.Nop())
	tracker := content.New(content.Config{MaxAge: 6 * time.Hour}, nil, logx.Nop())
	q := delivery.New(delivery.Config{
		BaseDelay:       time.Millisecond,
		BurstAllowance:  100,
		BurstWindow:     time.Minute,
		MaxRetries:      1,
		ShutdownTimeout: time.Second,
	}, sender, logx.Nop(), nil, nil)
	q.Start(context.Background())
	t.Cleanup(func() { q.Stop(context.Background()) })

	return New(Config{Target: channel.Target{ChatID: 42}}, det, tracker, q, nil, logx.Nop()), q
}

func waitSettled(t *testing.T, r *delivery.Receipt) error {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return r.Wait(ctx)
}

func TestIngestAnnouncesOnce(t *testing.T) {
	sender := channel.NewMemory()
	p, _ := newTestPipeline(t, sender)
	ctx := context.Background()
	now := time.Now()

	it := source.Item{
		ID:          "vid1",
		Source:      "websocket",
		PublishedAt: now,
		DetectedAt:  now,
		Title:       "First Stream",
		URL:         "https://www.youtube.com/live/vid1",
	}
	res, err := p.Ingest(ctx, it)
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if res.Decision != DecisionQueued {
		t.Fatalf("expected queued, got %s", res.Decision)
	}
	if err := waitSettled(t, res.Receipt); err != nil {
		t.Fatalf("delivery failed: %v", err)
	}

	// The same item arriving from an independent detection path.
	it2 := it
	it2.Source = "scraper"
	res2, err := p.Ingest(ctx, it2)
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if res2.Decision != DecisionDuplicate {
		t.Fatalf("expected duplicate, got %s", res2.Decision)
	}

	if got := len(sender.Sent()); got != 1 {
		t.Fatalf("expected exactly one announcement, got %d", got)
	}
}

func TestIngestMirrorURLCollides(t *testing.T) {
	sender := channel.NewMemory()
	p, _ := newTestPipeline(t, sender)
	ctx := context.Background()
	now := time.Now()

	res, err := p.Ingest(ctx, source.Item{
		ID:          "post-a",
		Source:      "api",
		PublishedAt: now,
		Title:       "announcement",
		URL:         "https://twitter.com/creator/status/555",
	})
	if err != nil || res.Decision != DecisionQueued {
		t.Fatalf("first ingest: %s %v", res.Decision, err)
	}

	// Same post detected under a different id through a mirror front-end.
	res2, err := p.Ingest(ctx, source.Item{
		ID:          "post-a-mirror",
		Source:      "scraper",
		PublishedAt: now,
		Title:       "announcement",
		URL:         "https://vxtwitter.com/creator/status/555",
	})
	if err != nil {
		t.Fatalf("second ingest: %v", err)
	}
	if res2.Decision != DecisionDuplicate {
		t.Fatalf("expected mirror URL to collide, got %s", res2.Decision)
	}
}

func TestIngestMarksAnnouncedOnDelivery(t *testing.T) {
	sender := channel.NewMemory()
	p, _ := newTestPipeline(t, sender)
	ctx := context.Background()
	now := time.Now()

	res, err := p.Ingest(ctx, source.Item{
		ID:          "vid1",
		Source:      "api",
		PublishedAt: now,
		Title:       "t",
		URL:         "https://www.youtube.com/watch?v=vid1",
	})
	if err != nil || res.Decision != DecisionQueued {
		t.Fatalf("ingest: %s %v", res.Decision, err)
	}
	if err := waitSettled(t, res.Receipt); err != nil {
		t.Fatalf("delivery failed: %v", err)
	}

	st, ok := p.tracker.Get("vid1")
	if !ok {
		t.Fatalf("content not tracked")
	}
	if !st.Announced {
		t.Fatalf("expected announced after successful delivery")
	}
}

func TestIngestRejectsStale(t *testing.T) {
	sender := channel.NewMemory()
	p, _ := newTestPipeline(t, sender)
	ctx := context.Background()

	// Missing publish time fails closed.
	res, err := p.Ingest(ctx, source.Item{ID: "old1", Source: "api", Title: "t"})
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if res.Decision != DecisionStale {
		t.Fatalf("expected stale, got %s", res.Decision)
	}

	// A stale item is remembered; the next sighting is a duplicate, not
	// another freshness evaluation.
	res2, _ := p.Ingest(ctx, source.Item{ID: "old1", Source: "scraper", Title: "t"})
	if res2.Decision != DecisionDuplicate {
		t.Fatalf("expected duplicate on re-detection, got %s", res2.Decision)
	}
	if got := len(sender.Sent()); got != 0 {
		t.Fatalf("stale content must not announce, got %d sends", got)
	}
}

func TestIngestRejectsEmptyID(t *testing.T) {
	sender := channel.NewMemory()
	p, _ := newTestPipeline(t, sender)

	res, err := p.Ingest(context.Background(), source.Item{ID: "   "})
	if !errors.Is(err, content.ErrEmptyID) {
		t.Fatalf("expected ErrEmptyID, got %v", err)
	}
	if res.Decision != DecisionInvalid {
		t.Fatalf("expected invalid, got %s", res.Decision)
	}
}

func TestIngestFingerprintCollision(t *testing.T) {
	// A tiny identity cache forces eviction so the second sighting reaches
	// the fingerprint check instead of short-circuiting on the id.
	sender := channel.NewMemory()
	det := dedup.New(dedup.Config{MaxEntries: 2}, nil, logx.Nop())
	tracker := content.New(content.Config{MaxAge: 6 * time.Hour}, nil, logx.Nop())
	q := delivery.New(delivery.Config{
		BaseDelay:       time.Millisecond,
		BurstAllowance:  100,
		ShutdownTimeout: time.Second,
	}, sender, logx.Nop(), nil, nil)
	q.Start(context.Background())
	t.Cleanup(func() { q.Stop(context.Background()) })
	p := New(Config{Target: channel.Target{ChatID: 42}}, det, tracker, q, nil, logx.Nop())

	ctx := context.Background()
	at := time.Now().Truncate(time.Minute)

	res, err := p.Ingest(ctx, source.Item{
		ID:          "vid1",
		Source:      "api",
		PublishedAt: at,
		Title:       "Big Reveal!",
		URL:         "https://www.youtube.com/watch?v=vid1",
	})
	if err != nil || res.Decision != DecisionQueued {
		t.Fatalf("ingest: %s %v", res.Decision, err)
	}

	// Unrelated traffic evicts vid1's identity keys (id + URL). Untitled
	// items carry no fingerprint, so vid1's fingerprint survives.
	for _, id := range []string{"other1", "other2"} {
		if _, err := p.Ingest(ctx, source.Item{ID: id, Source: "api", PublishedAt: at}); err != nil {
			t.Fatalf("ingest %s: %v", id, err)
		}
	}

	// Same content, same publish minute, trivially rewritten title, new URL:
	// only the fingerprint can catch this now.
	res2, err := p.Ingest(ctx, source.Item{
		ID:          "vid1",
		Source:      "scraper",
		PublishedAt: at.Add(5 * time.Second),
		Title:       "big reveal",
		URL:         "https://youtu.be/vid1-alt",
	})
	if err != nil {
		t.Fatalf("second ingest: %v", err)
	}
	if res2.Decision != DecisionDuplicate {
		t.Fatalf("expected duplicate, got %s", res2.Decision)
	}
}

func TestPriorityForOrdering(t *testing.T) {
	if priorityFor(dedup.ContentLivestream) <= priorityFor(dedup.ContentVideo) {
		t.Fatalf("livestream must outrank video")
	}
	if priorityFor(dedup.ContentVideo) <= priorityFor(dedup.ContentPost) {
		t.Fatalf("video must outrank post")
	}
	if priorityFor(dedup.ContentPost) <= priorityFor(dedup.ContentUnknown) {
		t.Fatalf("post must outrank unknown")
	}
}

func TestFormatAnnouncement(t *testing.T) {
	it := source.Item{ID: "vid1", Title: "Hello"}
	got := formatAnnouncement(it, dedup.ContentLivestream, "https://www.youtube.com/live/vid1")
	want := "🔴 LIVE: Hello\nhttps://www.youtube.com/live/vid1"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}

	// Missing title falls back to the id; no URL means no second line.
	got = formatAnnouncement(source.Item{ID: "p1"}, dedup.ContentPost, "")
	if got != "📝 p1" {
		t.Fatalf("got %q", got)
	}
}
