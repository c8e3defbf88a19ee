// Package classifier defines the contract with the page and link classification service
// and decodes its responses.
package classifier

import (
	"context"

	"github.com/JakeFAU/jobscout-crawler/internal/crawler"
)

// ActionKind tags the classifier's answer for a page.
type ActionKind string

// Known action kinds. ActionNone means the classifier chose nothing.
const (
	ActionNone        ActionKind = ""
	ActionWriteResult ActionKind = "write_result"
	ActionCrawlPage   ActionKind = "crawl_page"
	ActionFollow      ActionKind = "FOLLOW"
	ActionReject      ActionKind = "REJECT"
	ActionStop        ActionKind = "STOP"
)

// Action is the decoded classifier response.
type Action struct {
	Kind    ActionKind
	Data    map[string]string
	URL     string
	Targets []string
	Reason  string
}

// PageRequest carries everything the classifier sees about a page.
type PageRequest struct {
	URL           string
	Title         string
	Text          string
	Emails        []string
	Links         []string
	Score         crawler.Score
	Schema        map[string]string
	StructuredJob *crawler.StructuredJob
}

// NewPageRequest builds a request from extracted signals.
func NewPageRequest(page crawler.PageSignals, links []string, score crawler.Score, schema map[string]string) PageRequest {
	return PageRequest{
		URL:           page.URL,
		Title:         page.Title,
		Text:          page.Text,
		Emails:        page.Emails,
		Links:         links,
		Score:         score,
		Schema:        schema,
		StructuredJob: page.StructuredJob,
	}
}

// Classifier decides what to do with a page and which links are worth visiting.
type Classifier interface {
	ClassifyPage(ctx context.Context, req PageRequest) (Action, error)
	SelectLinks(ctx context.Context, sourceURL string, urls []string) ([]string, error)
}
