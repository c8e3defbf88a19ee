package crawler

import (
	"net/http"
	"time"
)

// Default job bounds. Configuration applies DefaultMaxDepth; a job's MaxDepth of 0 is a
// seed-only crawl.
const (
	DefaultMaxDepth   = 2
	DefaultChildLimit = 20
)

// CrawlJob is one unit of frontier work: a URL at a depth for a named source.
type CrawlJob struct {
	URL        string            `json:"url"`
	Depth      int               `json:"depth"`
	Source     string            `json:"source"`
	MaxDepth   int               `json:"max_depth"`
	ChildLimit int               `json:"child_limit"`
	Schema     map[string]string `json:"schema,omitempty"`
}

// Child derives the job for a discovered link one level deeper. The schema is propagated.
func (j CrawlJob) Child(url string) CrawlJob {
	return CrawlJob{
		URL:        url,
		Depth:      j.Depth + 1,
		Source:     j.Source,
		MaxDepth:   j.MaxDepth,
		ChildLimit: j.ChildLimit,
		Schema:     j.Schema,
	}
}

// CanDescend reports whether children of this job may still be enqueued.
func (j CrawlJob) CanDescend() bool {
	return j.Depth < j.MaxDepth
}

// WithDefaults fills an unset child limit and clamps negative bounds. MaxDepth is kept as
// given, so 0 crawls only the seed page.
func (j CrawlJob) WithDefaults() CrawlJob {
	if j.MaxDepth < 0 {
		j.MaxDepth = 0
	}
	if j.ChildLimit <= 0 {
		j.ChildLimit = DefaultChildLimit
	}
	if j.Depth < 0 {
		j.Depth = 0
	}
	return j
}

// QueueItem wraps a job with its idempotency key and retry bookkeeping.
type QueueItem struct {
	Key       string   `json:"key"`
	Job       CrawlJob `json:"job"`
	Attempt   int      `json:"attempt"`
	Submitted int64    `json:"submitted"`
}

// QueueStats reports job-state counts for introspection.
type QueueStats struct {
	Active    int64 `json:"active"`
	Waiting   int64 `json:"waiting"`
	Delayed   int64 `json:"delayed"`
	Completed int64 `json:"completed"`
	Failed    int64 `json:"failed"`
}

// StructuredJob is the JobPosting metadata embedded in a page, when present.
type StructuredJob struct {
	Title        string `json:"title,omitempty"`
	Organization string `json:"organization,omitempty"`
	Location     string `json:"location,omitempty"`
	Description  string `json:"description,omitempty"`
	DatePosted   string `json:"date_posted,omitempty"`
	ValidThrough string `json:"valid_through,omitempty"`
	ApplyURL     string `json:"apply_url,omitempty"`
}

// PageSignals is the signal bundle extracted from one fetched page.
type PageSignals struct {
	URL           string         `json:"url"`
	Title         string         `json:"title,omitempty"`
	Text          string         `json:"text"`
	Emails        []string       `json:"emails"`
	HasForm       bool           `json:"has_form"`
	Links         []string       `json:"links"`
	NextLink      string         `json:"next_link,omitempty"`
	StructuredJob *StructuredJob `json:"structured_job,omitempty"`
	Rendered      bool           `json:"rendered"`
	HTML          []byte         `json:"-"`
}

// FirstEmail returns the first extracted email or "".
func (p PageSignals) FirstEmail() string {
	if len(p.Emails) == 0 {
		return ""
	}
	return p.Emails[0]
}

// Score is the deterministic relevance score of a page.
type Score struct {
	Score   int      `json:"score"`
	Reasons []string `json:"reasons"`
}

// DecisionKind enumerates the terminal and intermediate decisions.
type DecisionKind string

// Decision kinds produced by the decision state machine.
const (
	DecisionCrawl  DecisionKind = "CRAWL"
	DecisionFollow DecisionKind = "FOLLOW"
	DecisionReject DecisionKind = "REJECT"
	DecisionDone   DecisionKind = "DONE"
	DecisionStop   DecisionKind = "STOP"
)

// Decision is the tagged outcome of one analyze step.
type Decision struct {
	Kind    DecisionKind
	Targets []string
	Reason  string
}

// ResultRecord is the persisted, accepted extraction for a canonical URL.
type ResultRecord struct {
	URL          string            `json:"url"`
	Title        string            `json:"title,omitempty"`
	Organization string            `json:"organization,omitempty"`
	Location     string            `json:"location,omitempty"`
	Description  string            `json:"description,omitempty"`
	Email        string            `json:"email,omitempty"`
	DatePosted   string            `json:"date_posted,omitempty"`
	ValidThrough string            `json:"valid_through,omitempty"`
	ApplyURL     string            `json:"apply_url,omitempty"`
	Extra        map[string]string `json:"extra,omitempty"`
	Score        int               `json:"score"`
	Reasons      []string          `json:"reasons,omitempty"`
	Source       string            `json:"source,omitempty"`
	ExtractedAt  time.Time         `json:"extracted_at"`
	UpdatedAt    time.Time         `json:"updated_at"`
}

// Site is a configured scan target.
type Site struct {
	Name   string            `json:"name" validate:"required"`
	URL    string            `json:"url" validate:"required,url"`
	Schema map[string]string `json:"schema,omitempty"`
}

// FetchRequest captures everything needed to fetch a URL.
type FetchRequest struct {
	URL     string
	Headers http.Header
}

// FetchResponse is the result returned by a Fetcher implementation.
type FetchResponse struct {
	URL          string
	StatusCode   int
	Headers      http.Header
	Body         []byte
	Duration     time.Duration
	UsedHeadless bool
}

// ResultEvent is published after a record is accepted.
type ResultEvent struct {
	ID        string    `json:"id"`
	RunID     string    `json:"run_id"`
	URL       string    `json:"url"`
	Source    string    `json:"source"`
	Title     string    `json:"title,omitempty"`
	Score     int       `json:"score"`
	BlobURI   string    `json:"blob_uri,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}
