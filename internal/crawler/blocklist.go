package crawler

import (
	"net/url"
	"path"
	"strings"
)

var (
	defaultBlockedTerms = []string{
		"login", "register", "anmeldung", "passwort",
		"impressum", "datenschutz", "agb", "privacy",
		"gebaerdensprache", "leichte-sprache", "presse", "kontakt",
		"javascript:", "mailto:", "tel:",
	}
	defaultBlockedHosts = []string{
		"*.facebook.com", "*.twitter.com", "x.com", "*.instagram.com",
		"*.linkedin.com", "*.xing.com", "*.youtube.com", "*.tiktok.com",
	}
	defaultBlockedExtensions = []string{
		".pdf", ".jpg", ".jpeg", ".png", ".gif", ".svg", ".webp",
		".zip", ".doc", ".docx", ".xls", ".xlsx", ".ppt", ".pptx",
		".mp3", ".mp4", ".css", ".js",
	}
	defaultTrackingMarkers = []string{"utm_", "fbclid=", "gclid=", "sharer", "share="}
)

// LinkBlocklist rejects noise and administrative links discovered on a page.
type LinkBlocklist struct {
	terms      []string
	hosts      *domainPatternBlocklist
	extensions []string
	tracking   []string
}

// NewLinkBlocklist builds the default blocklist plus any extra terms.
func NewLinkBlocklist(extraTerms ...string) *LinkBlocklist {
	terms := append([]string(nil), defaultBlockedTerms...)
	for _, term := range extraTerms {
		if t := strings.TrimSpace(strings.ToLower(term)); t != "" {
			terms = append(terms, t)
		}
	}
	return &LinkBlocklist{
		terms:      terms,
		hosts:      newDomainPatternBlocklist(defaultBlockedHosts),
		extensions: defaultBlockedExtensions,
		tracking:   defaultTrackingMarkers,
	}
}

// IsBlocked reports whether the absolute link should be dropped.
func (b *LinkBlocklist) IsBlocked(u *url.URL) bool {
	if u == nil {
		return true
	}
	full := strings.ToLower(u.String())
	for _, term := range b.terms {
		if strings.Contains(full, term) {
			return true
		}
	}
	if b.hosts.IsBlocked(u.Hostname()) {
		return true
	}
	ext := strings.ToLower(path.Ext(u.Path))
	for _, blocked := range b.extensions {
		if ext == blocked {
			return true
		}
	}
	query := strings.ToLower(u.RawQuery)
	for _, marker := range b.tracking {
		if strings.Contains(query, marker) {
			return true
		}
	}
	return false
}

// domainPatternBlocklist stores exact hosts and suffix wildcards.
type domainPatternBlocklist struct {
	exact    map[string]struct{}
	suffixes []string
}

func newDomainPatternBlocklist(patterns []string) *domainPatternBlocklist {
	matcher := &domainPatternBlocklist{
		exact: make(map[string]struct{}),
	}
	for _, raw := range patterns {
		value := strings.TrimSpace(strings.ToLower(raw))
		if value == "" {
			continue
		}
		switch {
		case strings.HasPrefix(value, "*."):
			matcher.addSuffix(strings.TrimPrefix(value, "*."))
		case strings.HasPrefix(value, "."):
			matcher.addSuffix(strings.TrimPrefix(value, "."))
		default:
			matcher.exact[value] = struct{}{}
		}
	}
	if len(matcher.exact) == 0 && len(matcher.suffixes) == 0 {
		return nil
	}
	return matcher
}

func (b *domainPatternBlocklist) addSuffix(suffix string) {
	if suffix == "" {
		return
	}
	for _, existing := range b.suffixes {
		if existing == suffix {
			return
		}
	}
	b.suffixes = append(b.suffixes, suffix)
}

func (b *domainPatternBlocklist) IsBlocked(host string) bool {
	if b == nil {
		return false
	}
	host = strings.TrimSpace(strings.ToLower(host))
	if host == "" {
		return false
	}
	if _, exact := b.exact[host]; exact {
		return true
	}
	for _, suffix := range b.suffixes {
		if host == suffix || strings.HasSuffix(host, "."+suffix) {
			return true
		}
	}
	return false
}
