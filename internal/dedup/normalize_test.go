package dedup

import (
	"testing"
	"time"
)

func TestNormalizeURLMirrors(t *testing.T) {
	variants := []string{
		"https://twitter.com/creator/status/123",
		"https://mobile.twitter.com/creator/status/123",
		"https://fxtwitter.com/creator/status/123?s=20",
		"https://vxtwitter.com/creator/status/123?utm_source=share",
		"http://nitter.net/creator/status/123/",
	}
	want := "https://x.com/creator/status/123"
	for _, v := range variants {
		if got := NormalizeURL(v); got != want {
			t.Fatalf("NormalizeURL(%q) = %q, want %q", v, got, want)
		}
	}
}

func TestNormalizeURLYouTube(t *testing.T) {
	variants := []string{
		"https://youtu.be/dQw4w9WgXcQ",
		"https://youtu.be/dQw4w9WgXcQ?si=abc123",
		"https://m.youtube.com/watch?v=dQw4w9WgXcQ",
		"https://youtube.com/watch?v=dQw4w9WgXcQ&feature=share",
		"https://www.youtube.com/watch?v=dQw4w9WgXcQ&utm_campaign=x",
	}
	want := "https://www.youtube.com/watch?v=dQw4w9WgXcQ"
	for _, v := range variants {
		if got := NormalizeURL(v); got != want {
			t.Fatalf("NormalizeURL(%q) = %q, want %q", v, got, want)
		}
	}
}

func TestNormalizeURLKeepsIdentifyingQuery(t *testing.T) {
	got := NormalizeURL("https://www.youtube.com/watch?v=abc&list=PL1")
	want := "https://www.youtube.com/watch?list=PL1&v=abc"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestNormalizeURLUnparseable(t *testing.T) {
	if got := NormalizeURL("  not a url  "); got != "not a url" {
		t.Fatalf("expected trimmed passthrough, got %q", got)
	}
	if got := NormalizeURL(""); got != "" {
		t.Fatalf("expected empty, got %q", got)
	}
}

func TestContentTypeOf(t *testing.T) {
	cases := []struct {
		url  string
		want ContentType
	}{
		{"https://www.youtube.com/watch?v=abc", ContentVideo},
		{"https://www.youtube.com/shorts/abc", ContentVideo},
		{"https://www.youtube.com/live/abc", ContentLivestream},
		{"https://x.com/creator/status/123", ContentPost},
		{"https://instagram.com/p/abc", ContentPost},
		{"https://example.com/about", ContentUnknown},
		{"", ContentUnknown},
	}
	for _, c := range cases {
		if got := ContentTypeOf(c.url); got != c.want {
			t.Fatalf("ContentTypeOf(%q) = %q, want %q", c.url, got, c.want)
		}
	}
}

func TestFingerprintDeterministic(t *testing.T) {
	at := time.Date(2026, 3, 1, 12, 30, 45, 0, time.UTC)

	a, ok := Fingerprint("vid1", "My First Video!", at)
	if !ok {
		t.Fatalf("expected ok")
	}
	// Same minute, trivially rewritten title.
	b, ok := Fingerprint("vid1", "my  first   VIDEO", at.Add(10*time.Second))
	if !ok {
		t.Fatalf("expected ok")
	}
	if a != b {
		t.Fatalf("fingerprints differ: %q vs %q", a, b)
	}

	// Different minute changes identity.
	c, _ := Fingerprint("vid1", "My First Video!", at.Add(time.Minute))
	if a == c {
		t.Fatalf("expected different fingerprint across minutes")
	}
}

func TestFingerprintMissingFields(t *testing.T) {
	at := time.Now()
	if _, ok := Fingerprint("", "title", at); ok {
		t.Fatalf("expected not ok for empty id")
	}
	if _, ok := Fingerprint("id", "   ", at); ok {
		t.Fatalf("expected not ok for blank title")
	}
	if _, ok := Fingerprint("id", "title", time.Time{}); ok {
		t.Fatalf("expected not ok for zero time")
	}
}
