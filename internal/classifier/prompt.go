package classifier

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

const (
	maxPromptText  = 12000
	maxPromptLinks = 100
)

const responseFormat = `RESPONSE FORMAT
Answer with exactly one JSON object and nothing else:
- {"write_result": {"data": {"field": "value"}}} to save the extracted record.
- {"crawl_page": {"url": "https://..."}} to inspect one more page before deciding.
- {"decision": "FOLLOW", "targets": ["url1", "url2"], "reason": "..."} for listing pages.
- {"decision": "REJECT", "reason": "..."} when nothing relevant is present.`

// SystemPrompt returns the classifier instruction. A non-empty schema switches the
// classifier to generic extraction of exactly those fields.
func SystemPrompt(schema map[string]string) string {
	if len(schema) > 0 {
		keys := make([]string, 0, len(schema))
		for key := range schema {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		var fields strings.Builder
		for _, key := range keys {
			fmt.Fprintf(&fields, "- %s: %s\n", key, schema[key])
		}
		return `ROLE
You are a precise data extraction engine. Analyse the page content and extract the requested
information based STRICTLY on the schema below.

EXTRACTION SCHEMA
` + fields.String() + `
RULES
1. If the page contains data matching the schema, answer with write_result and the extracted fields.
2. If it is a listing page linking to individual items, answer with FOLLOW and the detail URLs relevant to the schema.
3. If the page contains none of the requested information, answer with REJECT.

NEVER
- Invent data. Leave a field empty when it is not on the page.
- Add fields that are not in the schema.

` + responseFormat
	}
	return `ROLE
You are a STRICT extraction engine for a crawler of volunteer positions (FSJ/BFD) and jobs
in the environmental sector.

RULES (IN PRIORITY ORDER)
1. DETAIL PAGE (URL with an id, or a single clear posting):
   - Find the job title (title), organization (organization), location (location) and contact email (email).
   - Answer with write_result.
   - An email written as "name [at] domain.de" is VALID.
2. LISTING PAGE (several postings visible):
   - Select the most relevant posting URLs and answer with FOLLOW.
3. NO RELEVANT POSTING OR EMAIL:
   - Answer with REJECT.

NEVER
- Invent emails that are not on the page.

` + responseFormat
}

// PagePrompt renders the user message describing one page.
func PagePrompt(req PageRequest) string {
	var b strings.Builder
	fmt.Fprintf(&b, "URL: %s\n", req.URL)
	if req.Title != "" {
		fmt.Fprintf(&b, "Title: %s\n", req.Title)
	}
	fmt.Fprintf(&b, "Heuristic score: %d (%s)\n", req.Score.Score, strings.Join(req.Score.Reasons, ", "))
	if len(req.Emails) > 0 {
		fmt.Fprintf(&b, "Emails found: %s\n", strings.Join(req.Emails, ", "))
	}
	if req.StructuredJob != nil {
		if raw, err := json.Marshal(req.StructuredJob); err == nil {
			fmt.Fprintf(&b, "Structured data (JSON-LD JobPosting): %s\n", raw)
		}
	}
	links := req.Links
	if len(links) > maxPromptLinks {
		links = links[:maxPromptLinks]
	}
	if len(links) > 0 {
		b.WriteString("Candidate links:\n")
		for _, link := range links {
			fmt.Fprintf(&b, "- %s\n", link)
		}
	}
	b.WriteString("\nPage text:\n")
	b.WriteString(truncateRunes(req.Text, maxPromptText))
	return b.String()
}

// LinkSelectionPrompt returns the system and user messages for a link batch.
func LinkSelectionPrompt(sourceURL string, urls []string) (string, string) {
	system := `You are a recruiting expert.
Select ONLY:
1. Individual job postings (job details).
2. Job posting lists (job listings).
Answer only with JSON: {"valid_urls": []}`
	payload, _ := json.Marshal(urls)
	return system, fmt.Sprintf("Source: %s\nURLs: %s", sourceURL, payload)
}

func truncateRunes(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit])
}
