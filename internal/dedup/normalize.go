package dedup

import (
	"net/url"
	"strconv"
	"strings"
	"time"
	"unicode"
)

// ContentType is the closed set of kinds the detector classifies URLs into.
type ContentType string

const (
	ContentVideo      ContentType = "video"
	ContentLivestream ContentType = "livestream"
	ContentPost       ContentType = "post"
	ContentUnknown    ContentType = "unknown"
)

// mirrorHosts maps alternate front-ends to one canonical host so the same
// item posted through different mirrors still collides.
var mirrorHosts = map[string]string{
	"twitter.com":        "x.com",
	"www.twitter.com":    "x.com",
	"mobile.twitter.com": "x.com",
	"m.twitter.com":      "x.com",
	"nitter.net":         "x.com",
	"fxtwitter.com":      "x.com",
	"vxtwitter.com":      "x.com",
	"fixupx.com":         "x.com",
	"www.x.com":          "x.com",

	"youtube.com":   "www.youtube.com",
	"m.youtube.com": "www.youtube.com",
}

// strippedParams are query parameters that never identify content.
var strippedParams = map[string]bool{
	"si": true, "s": true, "t": true,
	"ref_src": true, "ref_url": true,
	"feature": true, "igshid": true, "fbclid": true,
}

// NormalizeURL canonicalizes raw so mirror-domain variants of the same item
// map to one identical string. Unparseable input is returned trimmed.
func NormalizeURL(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return raw
	}

	host := strings.ToLower(u.Hostname())
	if canonical, ok := mirrorHosts[host]; ok {
		host = canonical
	}

	path := u.Path
	query := url.Values{}

	// youtu.be short links carry the video id as the path.
	if host == "youtu.be" {
		host = "www.youtube.com"
		if id := strings.Trim(u.Path, "/"); id != "" {
			path = "/watch"
			query.Set("v", id)
		}
	}

	for k, vs := range u.Query() {
		lk := strings.ToLower(k)
		if strippedParams[lk] || strings.HasPrefix(lk, "utm_") {
			continue
		}
		for _, v := range vs {
			query.Add(k, v)
		}
	}

	path = strings.TrimSuffix(path, "/")

	out := "https://" + host + path
	if enc := query.Encode(); enc != "" {
		out += "?" + enc
	}
	return out
}

// ContentTypeOf classifies a URL by path pattern. Unmatched URLs are unknown.
func ContentTypeOf(raw string) ContentType {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return ContentUnknown
	}
	path := strings.ToLower(u.Path)

	switch {
	case strings.Contains(path, "/live"):
		return ContentLivestream
	case strings.Contains(path, "/watch"), strings.Contains(path, "/shorts/"), strings.Contains(path, "/video"):
		return ContentVideo
	case strings.Contains(path, "/status/"), strings.Contains(path, "/post"), strings.Contains(path, "/p/"):
		return ContentPost
	default:
		return ContentUnknown
	}
}

// Fingerprint derives the content-based identity string
// "id:normalizedTitle:unixMinute". It reports ok=false when title or
// publishedAt is missing; identity-based dedup still applies then.
func Fingerprint(id, title string, publishedAt time.Time) (string, bool) {
	id = strings.TrimSpace(id)
	norm := normalizeTitle(title)
	if id == "" || norm == "" || publishedAt.IsZero() {
		return "", false
	}
	minute := publishedAt.Unix() / 60
	return id + ":" + norm + ":" + strconv.FormatInt(minute, 10), true
}

// normalizeTitle lower-cases, strips punctuation, and collapses whitespace
// so trivial rewrites collide.
func normalizeTitle(title string) string {
	title = strings.ToLower(strings.TrimSpace(title))
	if title == "" {
		return ""
	}
	var b strings.Builder
	b.Grow(len(title))
	space := false
	for _, r := range title {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			if space && b.Len() > 0 {
				b.WriteByte(' ')
			}
			space = false
			b.WriteRune(r)
		case unicode.IsSpace(r):
			space = true
		default:
			// punctuation: dropped, but acts as a word break
			space = true
		}
	}
	return b.String()
}
