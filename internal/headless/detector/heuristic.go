// Package detector decides when a fast-path page should be re-fetched in a browser.
package detector

import (
	"bytes"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/jobscout-crawler/internal/crawler"
)

// Defaults for the promotion rules.
const (
	DefaultMinLinks            = 5
	DefaultBodyLengthThreshold = 2048
	shellTextThreshold         = 200
)

// spaMountSelectors match the mount points client-side frameworks render into.
const spaMountSelectors = `#__next, #root, #app, [data-reactroot], [ng-version], [ng-app], [data-v-app], #___gatsby`

// Heuristic implements a handful of rule-based promotions.
type Heuristic struct {
	MinLinks            int
	BodyLengthThreshold int
}

var _ crawler.HeadlessDetector = (*Heuristic)(nil)

// NewHeuristic creates a new detector. Zero values select the defaults.
func NewHeuristic(minLinks, bodyThreshold int) *Heuristic {
	if minLinks <= 0 {
		minLinks = DefaultMinLinks
	}
	if bodyThreshold <= 0 {
		bodyThreshold = DefaultBodyLengthThreshold
	}
	return &Heuristic{MinLinks: minLinks, BodyLengthThreshold: bodyThreshold}
}

// ShouldPromote decides whether a rendered fetch is required. It fires on pages with
// too few usable links, script-dominated small documents and empty SPA shells.
func (h *Heuristic) ShouldPromote(resp crawler.FetchResponse, page crawler.PageSignals) bool {
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return false
	}
	body := resp.Body
	if len(bytes.TrimSpace(body)) == 0 {
		return true
	}
	if len(page.Links) < h.MinLinks {
		return true
	}
	if len(body) < h.BodyLengthThreshold && scriptDensityHigh(body) {
		return true
	}
	return isSPAShell(body)
}

// isSPAShell reports a framework mount point with almost no server-rendered text.
func isSPAShell(body []byte) bool {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return false
	}
	if doc.Find(spaMountSelectors).Length() == 0 {
		return false
	}
	doc.Find("script, style, noscript").Remove()
	text := strings.Join(strings.Fields(doc.Find("body").Text()), " ")
	return len(text) < shellTextThreshold
}

func scriptDensityHigh(body []byte) bool {
	lower := strings.ToLower(string(body))
	total := len(lower)
	if total == 0 {
		return false
	}

	const (
		openTag  = "<script"
		closeTag = "</script>"
	)
	scriptCoverage := 0
	searchPos := 0

	for {
		relativeStart := strings.Index(lower[searchPos:], openTag)
		if relativeStart == -1 {
			break
		}
		start := searchPos + relativeStart

		tagClose := strings.IndexByte(lower[start:], '>')
		if tagClose == -1 {
			// Treat the rest of the document as part of the malformed script.
			scriptCoverage += total - start
			break
		}
		contentStart := start + tagClose + 1

		relativeEnd := strings.Index(lower[contentStart:], closeTag)
		var nextSearch int
		if relativeEnd == -1 {
			nextSearch = total
		} else {
			nextSearch = contentStart + relativeEnd + len(closeTag)
		}

		scriptCoverage += nextSearch - start
		searchPos = nextSearch
	}

	if scriptCoverage == 0 {
		return false
	}
	return scriptCoverage*100/total >= 25
}
