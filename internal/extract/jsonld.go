package extract

import (
	"encoding/json"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/jobscout-crawler/internal/crawler"
)

// parseStructuredJob returns the first JobPosting found in the page's JSON-LD blocks.
func parseStructuredJob(doc *goquery.Document) *crawler.StructuredJob {
	var found *crawler.StructuredJob
	doc.Find(`script[type="application/ld+json"]`).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		var payload any
		if err := json.Unmarshal([]byte(strings.TrimSpace(s.Text())), &payload); err != nil {
			return true
		}
		if node := findJobPosting(payload); node != nil {
			found = toStructuredJob(node)
			return false
		}
		return true
	})
	return found
}

func findJobPosting(v any) map[string]any {
	switch node := v.(type) {
	case []any:
		for _, item := range node {
			if found := findJobPosting(item); found != nil {
				return found
			}
		}
	case map[string]any:
		if isJobPosting(node["@type"]) {
			return node
		}
		if graph, ok := node["@graph"]; ok {
			return findJobPosting(graph)
		}
	}
	return nil
}

func isJobPosting(t any) bool {
	switch v := t.(type) {
	case string:
		return strings.EqualFold(v, "JobPosting")
	case []any:
		for _, item := range v {
			if s, ok := item.(string); ok && strings.EqualFold(s, "JobPosting") {
				return true
			}
		}
	}
	return false
}

func toStructuredJob(node map[string]any) *crawler.StructuredJob {
	job := &crawler.StructuredJob{
		Title:        collapse(stringField(node["title"])),
		Organization: organizationName(node["hiringOrganization"]),
		Location:     locationText(node["jobLocation"]),
		Description:  stripHTML(stringField(node["description"])),
		DatePosted:   strings.TrimSpace(stringField(node["datePosted"])),
		ValidThrough: strings.TrimSpace(stringField(node["validThrough"])),
		ApplyURL:     strings.TrimSpace(stringField(node["url"])),
	}
	if job.ApplyURL == "" {
		job.ApplyURL = strings.TrimSpace(stringField(node["applyUrl"]))
	}
	return job
}

func organizationName(v any) string {
	switch org := v.(type) {
	case string:
		return collapse(org)
	case map[string]any:
		return collapse(stringField(org["name"]))
	case []any:
		for _, item := range org {
			if name := organizationName(item); name != "" {
				return name
			}
		}
	}
	return ""
}

func locationText(v any) string {
	switch loc := v.(type) {
	case string:
		return collapse(loc)
	case []any:
		var parts []string
		for _, item := range loc {
			if text := locationText(item); text != "" {
				parts = append(parts, text)
			}
		}
		return strings.Join(parts, "; ")
	case map[string]any:
		if addr, ok := loc["address"]; ok {
			return addressText(addr)
		}
		return addressText(loc)
	}
	return ""
}

func addressText(v any) string {
	switch addr := v.(type) {
	case string:
		return collapse(addr)
	case map[string]any:
		var parts []string
		for _, key := range []string{"addressLocality", "addressRegion", "addressCountry"} {
			value := addr[key]
			if country, ok := value.(map[string]any); ok {
				value = country["name"]
			}
			if s := collapse(stringField(value)); s != "" {
				parts = append(parts, s)
			}
		}
		return strings.Join(parts, ", ")
	}
	return ""
}

func stringField(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case json.Number:
		return s.String()
	case float64:
		b, _ := json.Marshal(s)
		return string(b)
	}
	return ""
}

func stripHTML(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	if !strings.Contains(raw, "<") {
		return collapse(raw)
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(raw))
	if err != nil {
		return collapse(raw)
	}
	return collapse(doc.Text())
}
