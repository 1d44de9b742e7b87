package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	logx "herald/pkg/logx"
)

func TestOpenDisabled(t *testing.T) {
	for _, driver := range []string{"", "none"} {
		st, err := Open(Config{Driver: driver}, logx.Nop())
		if err != nil {
			t.Fatalf("Open(%q): %v", driver, err)
		}
		if st != nil {
			t.Fatalf("Open(%q) should return nil store", driver)
		}
	}
	if _, err := Open(Config{Driver: "redis"}, logx.Nop()); err == nil {
		t.Fatalf("expected unknown driver error")
	}
}

func TestFileStoreSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "herald.db")
	ctx := context.Background()

	st, err := Open(Config{Driver: "file", Path: path}, logx.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	now := time.Now().Round(time.Millisecond)
	rec := ContentRecord{
		ID:          "vid1",
		Type:        "video",
		FirstSeen:   now,
		LastUpdated: now,
		PublishedAt: now.Add(-time.Minute),
		Announced:   true,
		Source:      "api",
		URL:         "https://www.youtube.com/watch?v=vid1",
		Title:       "hello",
		Meta:        map[string]string{"k": "v"},
	}
	if err := st.PutContentState(ctx, rec); err != nil {
		t.Fatalf("PutContentState: %v", err)
	}
	if err := st.PutContentState(ctx, ContentRecord{ID: "vid2", LastUpdated: now}); err != nil {
		t.Fatalf("PutContentState: %v", err)
	}
	if err := st.RemoveContentStates(ctx, []string{"vid2"}); err != nil {
		t.Fatalf("RemoveContentStates: %v", err)
	}
	if err := st.PutFingerprint(ctx, "vid1:hello:123", FingerprintMeta{At: now, Source: "api"}); err != nil {
		t.Fatalf("PutFingerprint: %v", err)
	}
	if err := st.AppendAnnounce(ctx, AnnounceEntry{At: now, ContentID: "vid1", ChatID: 42, Outcome: "sent", Attempts: 1}); err != nil {
		t.Fatalf("AppendAnnounce: %v", err)
	}
	if err := st.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	// Journal replay restores state across a restart.
	st2, err := Open(Config{Driver: "file", Path: path}, logx.Nop())
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer st2.Close()

	got, ok, err := st2.GetContentState(ctx, "vid1")
	if err != nil || !ok {
		t.Fatalf("GetContentState: ok=%v err=%v", ok, err)
	}
	if !got.Announced || got.Title != "hello" || got.Meta["k"] != "v" {
		t.Fatalf("record corrupted across reopen: %+v", got)
	}
	if _, ok, _ := st2.GetContentState(ctx, "vid2"); ok {
		t.Fatalf("deleted record came back")
	}

	all, err := st2.AllContentStates(ctx)
	if err != nil || len(all) != 1 {
		t.Fatalf("AllContentStates: %d %v", len(all), err)
	}

	has, err := st2.HasFingerprint(ctx, "vid1:hello:123")
	if err != nil || !has {
		t.Fatalf("HasFingerprint: %v %v", has, err)
	}
	if has, _ := st2.HasFingerprint(ctx, "other"); has {
		t.Fatalf("unexpected fingerprint hit")
	}
}

func TestFileStoreClear(t *testing.T) {
	path := filepath.Join(t.TempDir(), "herald.db")
	ctx := context.Background()

	st, err := Open(Config{Driver: "file", Path: path}, logx.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer st.Close()

	_ = st.PutContentState(ctx, ContentRecord{ID: "a"})
	_ = st.PutContentState(ctx, ContentRecord{ID: "b"})
	if err := st.ClearContentStates(ctx); err != nil {
		t.Fatalf("ClearContentStates: %v", err)
	}
	all, err := st.AllContentStates(ctx)
	if err != nil || len(all) != 0 {
		t.Fatalf("expected empty after clear: %d %v", len(all), err)
	}
}

func TestMemoryStoreRoundTrip(t *testing.T) {
	st := NewMemory()
	ctx := context.Background()

	if err := st.PutContentState(ctx, ContentRecord{ID: "a", Title: "t"}); err != nil {
		t.Fatalf("PutContentState: %v", err)
	}
	got, ok, err := st.GetContentState(ctx, "a")
	if err != nil || !ok || got.Title != "t" {
		t.Fatalf("GetContentState: %+v %v %v", got, ok, err)
	}
	if err := st.RemoveContentStates(ctx, []string{"a"}); err != nil {
		t.Fatalf("RemoveContentStates: %v", err)
	}
	if _, ok, _ := st.GetContentState(ctx, "a"); ok {
		t.Fatalf("record not removed")
	}

	if err := st.PutFingerprint(ctx, "fp", FingerprintMeta{At: time.Now()}); err != nil {
		t.Fatalf("PutFingerprint: %v", err)
	}
	if has, _ := st.HasFingerprint(ctx, "fp"); !has {
		t.Fatalf("fingerprint missing")
	}
	if err := st.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}
