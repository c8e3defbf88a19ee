// Package fetcher turns a URL into page signals using a fast HTTP path and a
// rendering fallback.
package fetcher

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/jobscout-crawler/internal/crawler"
	"github.com/JakeFAU/jobscout-crawler/internal/metrics"
)

// Extractor converts fetched HTML into page signals.
type Extractor interface {
	Extract(html []byte, baseURL string) (crawler.PageSignals, error)
}

// HostLimiter paces requests per host.
type HostLimiter interface {
	Wait(ctx context.Context, rawURL string) error
}

// PageFetcher implements crawler.PageFetcher.
type PageFetcher struct {
	fast      crawler.Fetcher
	render    crawler.Fetcher
	detector  crawler.HeadlessDetector
	extractor Extractor
	limiter   HostLimiter
	logger    *zap.Logger
}

var _ crawler.PageFetcher = (*PageFetcher)(nil)

// New wires the strategies. render, detector and limiter may be nil.
func New(
	fast crawler.Fetcher,
	render crawler.Fetcher,
	detector crawler.HeadlessDetector,
	extractor Extractor,
	limiter HostLimiter,
	logger *zap.Logger,
) *PageFetcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PageFetcher{
		fast:      fast,
		render:    render,
		detector:  detector,
		extractor: extractor,
		limiter:   limiter,
		logger:    logger,
	}
}

// Fetch returns the signals for rawURL. The rendered result wins when the fast path
// failed or looked incomplete; a usable fast result survives a render failure.
func (f *PageFetcher) Fetch(ctx context.Context, rawURL string) (crawler.PageSignals, error) {
	if f.limiter != nil {
		if err := f.limiter.Wait(ctx, rawURL); err != nil {
			return crawler.PageSignals{}, fmt.Errorf("politeness wait: %w", err)
		}
	}
	request := crawler.FetchRequest{URL: rawURL}

	fastResp, fastErr := f.fast.Fetch(ctx, request)
	var (
		fastPage crawler.PageSignals
		usable   bool
	)
	if fastErr == nil {
		fastPage, fastErr = f.extract(fastResp, rawURL)
		usable = fastErr == nil
	}
	observe(rawURL, metrics.StrategyFast, fastResp, fastErr)

	promote := fastErr != nil || (f.detector != nil && f.detector.ShouldPromote(fastResp, fastPage))
	if !promote || f.render == nil {
		if usable {
			return fastPage, nil
		}
		return crawler.PageSignals{}, fmt.Errorf("fetch %s: %w", rawURL, fastErr)
	}

	f.logger.Debug("promoting to rendered fetch",
		zap.String("url", rawURL),
		zap.Bool("fast_usable", usable),
		zap.Int("fast_links", len(fastPage.Links)),
		zap.NamedError("fast_error", fastErr),
	)
	renderResp, renderErr := f.render.Fetch(ctx, request)
	var rendered crawler.PageSignals
	if renderErr == nil {
		rendered, renderErr = f.extract(renderResp, rawURL)
	}
	observe(rawURL, metrics.StrategyRendered, renderResp, renderErr)
	if renderErr == nil {
		rendered.Rendered = true
		return rendered, nil
	}

	if usable {
		f.logger.Warn("render failed; keeping fast-path page",
			zap.String("url", rawURL),
			zap.Error(renderErr),
		)
		return fastPage, nil
	}
	return crawler.PageSignals{}, fmt.Errorf("fetch %s: %w", rawURL, errors.Join(fastErr, renderErr))
}

func (f *PageFetcher) extract(resp crawler.FetchResponse, rawURL string) (crawler.PageSignals, error) {
	base := resp.URL
	if base == "" {
		base = rawURL
	}
	page, err := f.extractor.Extract(resp.Body, base)
	if err != nil {
		return crawler.PageSignals{}, fmt.Errorf("extract: %w", err)
	}
	page.URL = rawURL
	return page, nil
}

func observe(rawURL, strategy string, resp crawler.FetchResponse, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	metrics.ObservePage(rawURL, strategy, status, len(resp.Body))
}
