// Package decision runs the per-page classify cycle: classify, optionally inspect
// more pages, then settle on follow, accept, reject or stop.
package decision

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/jobscout-crawler/internal/classifier"
	"github.com/JakeFAU/jobscout-crawler/internal/crawler"
	"github.com/JakeFAU/jobscout-crawler/internal/metrics"
	"github.com/JakeFAU/jobscout-crawler/internal/scoring"
)

var errInvalidTarget = errors.New("invalid crawl target")

// DefaultMaxCrawls caps extra page fetches requested by the classifier per job.
const DefaultMaxCrawls = 3

// Input is the analyzed page handed to the machine.
type Input struct {
	Job   crawler.CrawlJob
	Page  crawler.PageSignals
	Score crawler.Score
	// Links are the page's filtered links, the fallback for FOLLOW.
	Links []string
}

// Outcome is the machine's settled decision.
type Outcome struct {
	Decision crawler.Decision
	// Record is set for DONE.
	Record *crawler.ResultRecord
	// Page is the most recently analyzed page.
	Page crawler.PageSignals
	// Discovered holds links collected from pages fetched during CRAWL steps.
	Discovered []string
	Crawls     int
}

// Machine implements the decision cycle.
type Machine struct {
	classifier classifier.Classifier
	fetcher    crawler.PageFetcher
	clock      crawler.Clock
	maxCrawls  int
	logger     *zap.Logger
}

// New builds a Machine. maxCrawls <= 0 selects DefaultMaxCrawls.
func New(c classifier.Classifier, fetcher crawler.PageFetcher, clock crawler.Clock, maxCrawls int, logger *zap.Logger) *Machine {
	if maxCrawls <= 0 {
		maxCrawls = DefaultMaxCrawls
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Machine{
		classifier: c,
		fetcher:    fetcher,
		clock:      clock,
		maxCrawls:  maxCrawls,
		logger:     logger,
	}
}

// Run classifies in.Page until a terminal decision is reached. Only classifier
// transport failures are returned as errors.
func (m *Machine) Run(ctx context.Context, in Input) (Outcome, error) {
	out := Outcome{Page: in.Page}
	score := in.Score
	links := in.Links

	for {
		req := classifier.NewPageRequest(out.Page, links, score, in.Job.Schema)
		action, err := m.classifier.ClassifyPage(ctx, req)
		if err != nil {
			if errors.Is(err, classifier.ErrMalformedResponse) {
				metrics.ObserveClassifierFailure("classify_page", "malformed")
				return m.settle(out, crawler.Decision{
					Kind:   crawler.DecisionReject,
					Reason: "unusable classifier response: " + err.Error(),
				}), nil
			}
			metrics.ObserveClassifierFailure("classify_page", "transport")
			return Outcome{}, fmt.Errorf("classify %s: %w", out.Page.URL, err)
		}

		switch action.Kind {
		case classifier.ActionWriteResult:
			record := m.buildRecord(in.Job, out.Page, score, action.Data)
			out.Record = &record
			return m.settle(out, crawler.Decision{Kind: crawler.DecisionDone}), nil

		case classifier.ActionCrawlPage:
			if out.Crawls >= m.maxCrawls {
				return m.settle(out, crawler.Decision{
					Kind:    crawler.DecisionFollow,
					Targets: in.Links,
					Reason:  "crawl limit reached",
				}), nil
			}
			target := resolveTarget(out.Page.URL, action.URL)
			out.Crawls++
			var next crawler.PageSignals
			err := errInvalidTarget
			if target != "" {
				next, err = m.fetcher.Fetch(ctx, target)
			}
			if err != nil {
				m.logger.Debug("crawl step fetch failed",
					zap.String("url", out.Page.URL),
					zap.String("target", target),
					zap.Error(err),
				)
				return m.settle(out, crawler.Decision{
					Kind:    crawler.DecisionFollow,
					Targets: in.Links,
					Reason:  "crawl target unavailable",
				}), nil
			}
			out.Discovered = appendUnique(out.Discovered, next.Links...)
			out.Page = next
			score = scoring.Compute(next)
			links = next.Links

		case classifier.ActionFollow:
			targets := resolveTargets(out.Page.URL, action.Targets)
			if len(targets) == 0 {
				targets = in.Links
			}
			return m.settle(out, crawler.Decision{
				Kind:    crawler.DecisionFollow,
				Targets: targets,
				Reason:  action.Reason,
			}), nil

		case classifier.ActionReject:
			return m.settle(out, crawler.Decision{Kind: crawler.DecisionReject, Reason: action.Reason}), nil

		default:
			reason := action.Reason
			if reason == "" {
				reason = "no action chosen by the classifier"
			}
			return m.settle(out, crawler.Decision{Kind: crawler.DecisionStop, Reason: reason}), nil
		}
	}
}

func (m *Machine) settle(out Outcome, d crawler.Decision) Outcome {
	out.Decision = d
	metrics.ObserveDecision(string(d.Kind))
	return out
}

// buildRecord merges classifier fields, JSON-LD data (which wins) and the page's first email.
func (m *Machine) buildRecord(job crawler.CrawlJob, page crawler.PageSignals, score crawler.Score, data map[string]string) crawler.ResultRecord {
	now := m.clock.Now().UTC()
	rec := crawler.ResultRecord{
		URL:         crawler.Canonicalize(page.URL),
		Score:       score.Score,
		Reasons:     append([]string(nil), score.Reasons...),
		Source:      job.Source,
		ExtractedAt: now,
		UpdatedAt:   now,
	}
	for key, value := range data {
		switch normalizeKey(key) {
		case "title":
			rec.Title = value
		case "organization", "company", "organisation":
			rec.Organization = value
		case "location":
			rec.Location = value
		case "description":
			rec.Description = value
		case "email":
			rec.Email = strings.ToLower(value)
		case "dateposted":
			rec.DatePosted = value
		case "validthrough":
			rec.ValidThrough = value
		case "applyurl":
			rec.ApplyURL = value
		case "url":
		default:
			if rec.Extra == nil {
				rec.Extra = make(map[string]string)
			}
			rec.Extra[key] = value
		}
	}
	if sj := page.StructuredJob; sj != nil {
		overlay(&rec.Title, sj.Title)
		overlay(&rec.Organization, sj.Organization)
		overlay(&rec.Location, sj.Location)
		overlay(&rec.Description, sj.Description)
		overlay(&rec.DatePosted, sj.DatePosted)
		overlay(&rec.ValidThrough, sj.ValidThrough)
		overlay(&rec.ApplyURL, sj.ApplyURL)
	}
	if rec.Title == "" {
		rec.Title = page.Title
	}
	overlay(&rec.Email, page.FirstEmail())
	return rec
}

func normalizeKey(key string) string {
	k := strings.ToLower(strings.TrimSpace(key))
	k = strings.ReplaceAll(k, "_", "")
	return strings.ReplaceAll(k, "-", "")
}

func overlay(dst *string, value string) {
	if v := strings.TrimSpace(value); v != "" {
		*dst = v
	}
}

func resolveTarget(base, target string) string {
	target = strings.TrimSpace(target)
	if target == "" {
		return ""
	}
	ref, err := url.Parse(target)
	if err != nil {
		return ""
	}
	if b, err := url.Parse(base); err == nil {
		ref = b.ResolveReference(ref)
	}
	if ref.Scheme != "http" && ref.Scheme != "https" {
		return ""
	}
	return crawler.Canonicalize(ref.String())
}

func resolveTargets(base string, targets []string) []string {
	out := make([]string, 0, len(targets))
	for _, t := range targets {
		if resolved := resolveTarget(base, t); resolved != "" {
			out = appendUnique(out, resolved)
		}
	}
	return out
}

func appendUnique(dst []string, values ...string) []string {
	seen := make(map[string]struct{}, len(dst)+len(values))
	for _, v := range dst {
		seen[v] = struct{}{}
	}
	for _, v := range values {
		if _, ok := seen[v]; ok || v == "" {
			continue
		}
		seen[v] = struct{}{}
		dst = append(dst, v)
	}
	return dst
}
