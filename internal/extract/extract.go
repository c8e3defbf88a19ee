// Package extract turns fetched HTML into the crawler's page signal bundle.
package extract

import (
	"bytes"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/jobscout-crawler/internal/crawler"
)

const noiseSelectors = "script, style, noscript, nav, footer, header, .cookie-banner, .menu"

var (
	emailPattern      = regexp.MustCompile(`(?i)[A-Z0-9._%+-]+(?:\s?\[at\]\s?|\s?\(at\)\s?|@)[A-Z0-9.-]+\.[A-Z]{2,}`)
	obfuscatedAt      = regexp.MustCompile(`(?i)\[at\]|\(at\)`)
	whitespace        = regexp.MustCompile(`\s+`)
	applicationForm   = regexp.MustCompile(`(?i)upload|datei|cv|lebenslauf|resume|bewerb|apply|senden`)
	nextAnchorPattern = regexp.MustCompile(`(?i)^(next|weiter|nächste|naechste|more|mehr|suivant|siguiente|load more|show more)(\s|$)`)
	nextAnchorSymbols = map[string]struct{}{"»": {}, "›": {}, ">": {}, ">>": {}, "→": {}}
)

// Extractor produces PageSignals from HTML. It is safe for concurrent use.
type Extractor struct {
	blocklist *crawler.LinkBlocklist
}

// New returns an Extractor using the provided blocklist, or the default one when nil.
func New(blocklist *crawler.LinkBlocklist) *Extractor {
	if blocklist == nil {
		blocklist = crawler.NewLinkBlocklist()
	}
	return &Extractor{blocklist: blocklist}
}

// Extract parses html and collects text, emails, form presence, same-origin links,
// the pagination link and embedded JobPosting metadata. baseURL must be absolute.
func (e *Extractor) Extract(html []byte, baseURL string) (crawler.PageSignals, error) {
	base, err := url.Parse(strings.TrimSpace(baseURL))
	if err != nil {
		return crawler.PageSignals{}, fmt.Errorf("parse base url: %w", err)
	}
	if base.Scheme == "" || base.Host == "" {
		return crawler.PageSignals{}, fmt.Errorf("base url %q must be absolute", baseURL)
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(html))
	if err != nil {
		return crawler.PageSignals{}, fmt.Errorf("parse html: %w", err)
	}

	// Structured data, title and pagination live in elements the noise pass removes.
	structured := parseStructuredJob(doc)
	title := pageTitle(doc)
	next := e.nextLink(doc, base)

	doc.Find(noiseSelectors).Remove()

	text := collapse(doc.Find("body").Text())
	if text == "" {
		text = collapse(doc.Text())
	}

	return crawler.PageSignals{
		URL:           baseURL,
		Title:         title,
		Text:          text,
		Emails:        extractEmails(doc, text),
		HasForm:       hasApplicationForm(doc),
		Links:         e.links(doc, base),
		NextLink:      next,
		StructuredJob: structured,
		HTML:          html,
	}, nil
}

// NormalizeEmail rewrites an obfuscated match into a plain lower-case address.
func NormalizeEmail(raw string) string {
	s := obfuscatedAt.ReplaceAllString(raw, "@")
	s = whitespace.ReplaceAllString(s, "")
	return strings.ToLower(s)
}

func extractEmails(doc *goquery.Document, text string) []string {
	seen := make(map[string]struct{})
	var emails []string
	add := func(raw string) {
		email := NormalizeEmail(raw)
		if email == "" || !strings.Contains(email, "@") {
			return
		}
		if _, ok := seen[email]; ok {
			return
		}
		seen[email] = struct{}{}
		emails = append(emails, email)
	}
	for _, match := range emailPattern.FindAllString(text, -1) {
		add(match)
	}
	doc.Find(`a[href^="mailto:"]`).Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		addr := strings.TrimPrefix(href, "mailto:")
		if i := strings.IndexByte(addr, '?'); i >= 0 {
			addr = addr[:i]
		}
		if decoded, err := url.PathUnescape(addr); err == nil {
			addr = decoded
		}
		if emailPattern.MatchString(addr) {
			add(addr)
		}
	})
	return emails
}

func hasApplicationForm(doc *goquery.Document) bool {
	found := false
	doc.Find("form").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		markup, err := goquery.OuterHtml(s)
		if err != nil {
			markup = s.Text()
		}
		if applicationForm.MatchString(markup) {
			found = true
			return false
		}
		return true
	})
	return found
}

func (e *Extractor) links(doc *goquery.Document, base *url.URL) []string {
	seen := make(map[string]struct{})
	var links []string
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		abs, ok := e.resolve(base, href)
		if !ok {
			return
		}
		if _, dup := seen[abs]; dup {
			return
		}
		seen[abs] = struct{}{}
		links = append(links, abs)
	})
	return links
}

// resolve returns the absolute same-origin form of href, or false when it should be dropped.
func (e *Extractor) resolve(base *url.URL, href string) (string, bool) {
	href = strings.TrimSpace(href)
	if href == "" || strings.HasPrefix(href, "#") {
		return "", false
	}
	ref, err := url.Parse(href)
	if err != nil {
		return "", false
	}
	abs := base.ResolveReference(ref)
	abs.Fragment = ""
	abs.RawFragment = ""
	if abs.Scheme != "http" && abs.Scheme != "https" {
		return "", false
	}
	if !crawler.SameOrigin(abs, base) {
		return "", false
	}
	if e.blocklist.IsBlocked(abs) {
		return "", false
	}
	return abs.String(), true
}

func (e *Extractor) nextLink(doc *goquery.Document, base *url.URL) string {
	var next string
	doc.Find(`link[rel~="next"], a[rel~="next"]`).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		href, _ := s.Attr("href")
		if abs, ok := e.resolve(base, href); ok {
			next = abs
			return false
		}
		return true
	})
	if next != "" {
		return next
	}
	doc.Find("a[href]").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if !isNextText(s.Text()) && !isNextText(s.AttrOr("aria-label", "")) {
			return true
		}
		href, _ := s.Attr("href")
		if abs, ok := e.resolve(base, href); ok {
			next = abs
			return false
		}
		return true
	})
	return next
}

func isNextText(text string) bool {
	t := strings.ToLower(collapse(text))
	if t == "" {
		return false
	}
	if _, ok := nextAnchorSymbols[t]; ok {
		return true
	}
	return nextAnchorPattern.MatchString(t)
}

func pageTitle(doc *goquery.Document) string {
	if title := collapse(doc.Find("title").First().Text()); title != "" {
		return title
	}
	return collapse(doc.Find("h1").First().Text())
}

func collapse(s string) string {
	return strings.TrimSpace(whitespace.ReplaceAllString(s, " "))
}
