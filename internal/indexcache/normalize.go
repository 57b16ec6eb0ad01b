package indexcache

import (
	"net/url"
	"strings"
	"unicode"
)

// NormalizeURL reduces a URL to host+path for duplicate lookup.
// The host is lower-cased and loses a leading "www."; trailing slashes are
// dropped from the path. Scheme, query and fragment are ignored on purpose,
// so https://www.example.com/page/?id=1 becomes example.com/page. The path
// keeps its written form: neither escaped nor unescaped.
func NormalizeURL(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}

	u, err := url.Parse(raw)
	if err != nil {
		return strings.ToLower(raw)
	}

	host := strings.TrimPrefix(strings.ToLower(u.Host), "www.")
	path := strings.TrimRight(writtenPath(raw, u), "/")
	return host + path
}

// writtenPath returns the path of u as it appears in raw. url.URL only
// offers the decoded Path and a re-escaped form, and RawPath stays empty for
// non-ASCII input such as /wiki/양자_컴퓨터.
func writtenPath(raw string, u *url.URL) string {
	if u.Host == "" {
		return u.Path
	}
	if i := strings.IndexAny(raw, "?#"); i >= 0 {
		raw = raw[:i]
	}
	_, rest, _ := strings.Cut(raw, "//")
	if i := strings.IndexByte(rest, '/'); i >= 0 {
		return rest[i:]
	}
	return ""
}

// NormalizeTitle lower-cases text, strips punctuation and collapses whitespace.
// "OpenAI Releases GPT-5!" becomes "openai releases gpt5".
func NormalizeTitle(text string) string {
	var b strings.Builder
	b.Grow(len(text))
	for _, r := range strings.ToLower(text) {
		if unicode.IsLetter(r) || unicode.IsNumber(r) || r == '_' || unicode.IsSpace(r) {
			b.WriteRune(r)
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}
