// Package linkfilter narrows a page's outgoing links to the ones worth crawling.
package linkfilter

import (
	"context"
	"errors"
	"regexp"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/jobscout-crawler/internal/classifier"
	"github.com/JakeFAU/jobscout-crawler/internal/crawler"
	"github.com/JakeFAU/jobscout-crawler/internal/metrics"
)

// Defaults for batching and the error fallback.
const (
	DefaultBatchSize     = 50
	DefaultFallbackLimit = 10
)

var (
	noisePattern = regexp.MustCompile(`(?i)\.(png|jpg|jpeg|gif|svg|pdf|zip|docx|css|js)$`)
	adminPattern = regexp.MustCompile(`(?i)(login|register|password|cart|checkout|my-account|impressum|datenschutz|privacy|cookies|contact|kontakt|presse|help|faq|social|facebook|twitter|linkedin|instagram|google)`)
)

// Selector picks relevant urls out of a batch. classifier.Classifier satisfies it.
type Selector interface {
	SelectLinks(ctx context.Context, sourceURL string, urls []string) ([]string, error)
}

// Filter pre-filters links locally and asks the selector to rank the rest.
type Filter struct {
	selector      Selector
	batchSize     int
	fallbackLimit int
	logger        *zap.Logger
}

var _ crawler.LinkFilter = (*Filter)(nil)

// Option configures a Filter.
type Option func(*Filter)

// WithBatchSize overrides the number of links sent per selector call.
func WithBatchSize(n int) Option {
	return func(f *Filter) {
		if n > 0 {
			f.batchSize = n
		}
	}
}

// WithFallbackLimit overrides how many pre-filtered links survive a selector error.
func WithFallbackLimit(n int) Option {
	return func(f *Filter) {
		if n > 0 {
			f.fallbackLimit = n
		}
	}
}

// New builds a Filter. A nil selector keeps every pre-filtered link.
func New(selector Selector, logger *zap.Logger, opts ...Option) *Filter {
	if logger == nil {
		logger = zap.NewNop()
	}
	f := &Filter{
		selector:      selector,
		batchSize:     DefaultBatchSize,
		fallbackLimit: DefaultFallbackLimit,
		logger:        logger,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// FilterAndRank returns the links to follow from sourceURL. The canonical next link,
// when present, always comes first.
func (f *Filter) FilterAndRank(ctx context.Context, sourceURL string, links []string, next string) []string {
	pre := PreFilter(links)
	selected := f.rank(ctx, sourceURL, pre)
	if next == "" {
		return selected
	}
	return prependUnique(crawler.Canonicalize(next), selected)
}

func (f *Filter) rank(ctx context.Context, sourceURL string, pre []string) []string {
	if len(pre) == 0 {
		return []string{}
	}
	if f.selector == nil {
		return pre
	}

	batches := chunk(pre, f.batchSize)
	results := make([][]string, len(batches))
	g, gctx := errgroup.WithContext(ctx)
	for i, batch := range batches {
		g.Go(func() error {
			picked, err := f.selector.SelectLinks(gctx, sourceURL, batch)
			if err != nil {
				return err
			}
			results[i] = intersect(batch, picked)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		reason := "selector_error"
		if errors.Is(err, classifier.ErrMalformedResponse) {
			reason = "malformed_selection"
		}
		metrics.ObserveLinkFilterFallback(reason)
		metrics.ObserveClassifierFailure("select_links", reason)
		f.logger.Warn("link selection failed; keeping first pre-filtered links",
			zap.String("url", sourceURL),
			zap.Int("candidates", len(pre)),
			zap.Error(err),
		)
		return head(pre, f.fallbackLimit)
	}

	var selected []string
	for _, picked := range results {
		selected = append(selected, picked...)
	}
	selected = dedupe(selected)
	if len(selected) > 0 {
		return selected
	}

	metrics.ObserveLinkFilterFallback("empty_selection")
	listings := make([]string, 0, len(pre))
	for _, link := range pre {
		if crawler.LooksLikeListing(link) {
			listings = append(listings, link)
		}
	}
	f.logger.Debug("empty link selection; using listing patterns",
		zap.String("url", sourceURL),
		zap.Int("kept", len(listings)),
	)
	return listings
}

// PreFilter dedupes links and drops assets and administrative pages.
func PreFilter(links []string) []string {
	out := make([]string, 0, len(links))
	for _, link := range dedupe(links) {
		if noisePattern.MatchString(link) || adminPattern.MatchString(link) {
			continue
		}
		out = append(out, link)
	}
	return out
}

// intersect keeps the picked urls that were part of the batch, in pick order.
func intersect(batch, picked []string) []string {
	allowed := make(map[string]struct{}, len(batch))
	for _, link := range batch {
		allowed[link] = struct{}{}
	}
	out := make([]string, 0, len(picked))
	for _, link := range picked {
		if _, ok := allowed[link]; ok {
			out = append(out, link)
		}
	}
	return out
}

func chunk(links []string, size int) [][]string {
	var batches [][]string
	for start := 0; start < len(links); start += size {
		end := min(start+size, len(links))
		batches = append(batches, links[start:end])
	}
	return batches
}

func dedupe(links []string) []string {
	seen := make(map[string]struct{}, len(links))
	out := make([]string, 0, len(links))
	for _, link := range links {
		if link == "" {
			continue
		}
		if _, ok := seen[link]; ok {
			continue
		}
		seen[link] = struct{}{}
		out = append(out, link)
	}
	return out
}

func head(links []string, n int) []string {
	if len(links) <= n {
		return append([]string(nil), links...)
	}
	return append([]string(nil), links[:n]...)
}

func prependUnique(first string, links []string) []string {
	out := make([]string, 0, len(links)+1)
	out = append(out, first)
	for _, link := range links {
		if link != first && crawler.Canonicalize(link) != first {
			out = append(out, link)
		}
	}
	return out
}
