package crawler

import (
	"net"
	"net/url"
	"regexp"
	"strings"
)

var (
	repeatedSlashes = regexp.MustCompile(`/{2,}`)

	// trackingParams are dropped during canonicalization; utm_* is handled by prefix.
	trackingParams = map[string]struct{}{
		"fbclid":  {},
		"gclid":   {},
		"msclkid": {},
		"chash":   {},
		"type":    {},
	}
	trackingPrefixes = []string{"utm_", "tx_bafzacookiebar_pi1["}
)

// Canonicalize normalizes a URL into the form used as the system-wide dedup key.
// It never fails: input that does not parse as an absolute URL is returned trimmed
// and stripped of wrapping quotes.
func Canonicalize(raw string) string {
	s := stripQuotes(strings.TrimSpace(raw))
	u, err := url.Parse(s)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return strings.Trim(strings.TrimSpace(raw), `"'`)
	}

	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = canonicalHost(u.Scheme, u.Hostname(), u.Port())
	u.Fragment = ""
	u.RawFragment = ""

	u.RawQuery = canonicalQuery(u.RawQuery)
	u.ForceQuery = false

	p := repeatedSlashes.ReplaceAllString(normalizeEscapes(u.EscapedPath()), "/")
	if len(p) > 1 && strings.HasSuffix(p, "/") {
		p = strings.TrimSuffix(p, "/")
	}
	if p == "" {
		p = "/"
	}
	if unescaped, err := url.PathUnescape(p); err == nil {
		u.Path = unescaped
		u.RawPath = p
	}
	return u.String()
}

// normalizeEscapes decodes percent-encoded unreserved characters (ALPHA, DIGIT, "-", ".",
// "_", "~") and upper-cases the hex digits of the escapes that remain.
func normalizeEscapes(p string) string {
	if !strings.Contains(p, "%") {
		return p
	}
	var b strings.Builder
	b.Grow(len(p))
	for i := 0; i < len(p); i++ {
		if p[i] != '%' || i+2 >= len(p) || !isHex(p[i+1]) || !isHex(p[i+2]) {
			b.WriteByte(p[i])
			continue
		}
		c := unhex(p[i+1])<<4 | unhex(p[i+2])
		if isUnreserved(c) {
			b.WriteByte(c)
		} else {
			b.WriteByte('%')
			b.WriteString(strings.ToUpper(p[i+1 : i+3]))
		}
		i += 2
	}
	return b.String()
}

func isUnreserved(c byte) bool {
	switch {
	case 'a' <= c && c <= 'z', 'A' <= c && c <= 'Z', '0' <= c && c <= '9':
		return true
	}
	return c == '-' || c == '.' || c == '_' || c == '~'
}

func isHex(c byte) bool {
	return ('0' <= c && c <= '9') || ('a' <= c && c <= 'f') || ('A' <= c && c <= 'F')
}

func unhex(c byte) byte {
	switch {
	case '0' <= c && c <= '9':
		return c - '0'
	case 'a' <= c && c <= 'f':
		return c - 'a' + 10
	}
	return c - 'A' + 10
}

// SameOrigin reports whether both URLs share scheme and host (including port).
func SameOrigin(a, b *url.URL) bool {
	if a == nil || b == nil {
		return false
	}
	return strings.EqualFold(a.Scheme, b.Scheme) && strings.EqualFold(a.Host, b.Host)
}

func stripQuotes(s string) string {
	if len(s) < 2 {
		return s
	}
	first, last := s[0], s[len(s)-1]
	if (first == '"' && last == '"') || (first == '\'' && last == '\'') {
		return s[1 : len(s)-1]
	}
	return s
}

func canonicalHost(scheme, hostname, port string) string {
	hostname = strings.ToLower(hostname)
	if (scheme == "http" && port == "80") || (scheme == "https" && port == "443") {
		port = ""
	}
	if port != "" {
		return net.JoinHostPort(hostname, port)
	}
	if strings.Contains(hostname, ":") {
		return "[" + hostname + "]"
	}
	return hostname
}

func canonicalQuery(rawQuery string) string {
	if rawQuery == "" {
		return ""
	}
	values, _ := url.ParseQuery(rawQuery)
	kept := url.Values{}
	for key, vals := range values {
		if isTrackingParam(key) {
			continue
		}
		for _, v := range vals {
			if v == "" {
				continue
			}
			kept.Add(key, v)
		}
	}
	// Encode sorts by key.
	return kept.Encode()
}

func isTrackingParam(key string) bool {
	lower := strings.ToLower(key)
	if _, ok := trackingParams[lower]; ok {
		return true
	}
	for _, prefix := range trackingPrefixes {
		if strings.HasPrefix(lower, prefix) {
			return true
		}
	}
	return false
}
