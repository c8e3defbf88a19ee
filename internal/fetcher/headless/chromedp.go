// Package headless contains fetchers that execute JavaScript via browsers.
package headless

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"

	"github.com/JakeFAU/jobscout-crawler/internal/crawler"
)

// Defaults for rendering.
const (
	DefaultNavigationTimeout = 45 * time.Second
	DefaultScrollSteps       = 8
	DefaultScrollDelay       = 400 * time.Millisecond
)

// PageRunner lends a prepared browser tab. *browser.Pool implements it.
type PageRunner interface {
	WithRenderedPage(ctx context.Context, fn func(pageCtx context.Context) error) error
}

// Config controls the behavior of the headless fetcher.
type Config struct {
	NavigationTimeout time.Duration
	ScrollSteps       int
	ScrollDelay       time.Duration
}

type renderFunc func(ctx context.Context, request crawler.FetchRequest) (html string, finalURL string, err error)

// Fetcher implements crawler.Fetcher by rendering pages in a pooled headless Chrome tab.
type Fetcher struct {
	cfg    Config
	pool   PageRunner
	render renderFunc
	listen func(ctx context.Context, fn func(ev any))
}

var _ crawler.Fetcher = (*Fetcher)(nil)

// NewChromedp creates a headless fetcher backed by the pool.
func NewChromedp(cfg Config, pool PageRunner) (*Fetcher, error) {
	if pool == nil {
		return nil, fmt.Errorf("headless fetcher requires a page pool")
	}
	if cfg.ScrollSteps < 0 {
		return nil, fmt.Errorf("scroll steps must be >= 0")
	}
	if cfg.NavigationTimeout <= 0 {
		cfg.NavigationTimeout = DefaultNavigationTimeout
	}
	if cfg.ScrollDelay <= 0 {
		cfg.ScrollDelay = DefaultScrollDelay
	}
	f := &Fetcher{cfg: cfg, pool: pool, listen: chromedp.ListenTarget}
	f.render = f.renderPage
	return f, nil
}

// Fetch navigates with a headless browser, scrolls to trigger lazy content and
// returns the fully rendered DOM.
func (f *Fetcher) Fetch(ctx context.Context, request crawler.FetchRequest) (crawler.FetchResponse, error) {
	var resp crawler.FetchResponse
	err := f.pool.WithRenderedPage(ctx, func(pageCtx context.Context) error {
		taskCtx, cancel := context.WithTimeout(pageCtx, f.navTimeout())
		defer cancel()

		meta := newResponseMeta()
		f.listen(taskCtx, meta.captureEvent)

		start := time.Now()
		html, finalURL, err := f.render(taskCtx, request)
		if err != nil {
			return err
		}

		status, headers, responseURL := meta.snapshotWithFallbacks(request.URL, finalURL)
		if headers == nil {
			headers = http.Header{}
		}
		resp = crawler.FetchResponse{
			URL:          responseURL,
			StatusCode:   status,
			Headers:      headers,
			Body:         []byte(html),
			Duration:     time.Since(start),
			UsedHeadless: true,
		}
		return nil
	})
	if err != nil {
		return crawler.FetchResponse{}, fmt.Errorf("render %s: %w", request.URL, err)
	}
	if resp.StatusCode >= 400 {
		return crawler.FetchResponse{}, fmt.Errorf("render %s: unexpected status %d", request.URL, resp.StatusCode)
	}
	return resp, nil
}

func (f *Fetcher) renderPage(ctx context.Context, request crawler.FetchRequest) (string, string, error) {
	navigate := func() error {
		return chromedp.Run(ctx,
			networkSetupAction(request.Headers),
			chromedp.Navigate(request.URL),
			chromedp.WaitReady("body", chromedp.ByQuery),
		)
	}
	if err := retryOnLostContext(navigate); err != nil {
		return "", "", err
	}

	var (
		html     string
		finalURL string
		scrollY  float64
	)
	actions := make([]chromedp.Action, 0, 2*f.cfg.ScrollSteps+2)
	for range f.cfg.ScrollSteps {
		actions = append(actions,
			chromedp.Evaluate(`window.scrollBy(0, window.innerHeight); window.scrollY`, &scrollY),
			chromedp.Sleep(f.cfg.ScrollDelay),
		)
	}
	actions = append(actions,
		chromedp.Location(&finalURL),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	)
	if err := chromedp.Run(ctx, actions...); err != nil {
		return "", "", fmt.Errorf("chromedp run: %w", err)
	}
	return html, finalURL, nil
}

// retryOnLostContext retries nav once when the page's execution context vanished
// mid-navigation, which happens on client-side redirects.
func retryOnLostContext(nav func() error) error {
	err := nav()
	if err == nil {
		return nil
	}
	if !isLostContext(err) {
		return fmt.Errorf("navigate: %w", err)
	}
	if err = nav(); err != nil {
		if isLostContext(err) {
			return crawler.Transient("navigate", err)
		}
		return fmt.Errorf("navigate: %w", err)
	}
	return nil
}

func isLostContext(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "context was destroyed") || strings.Contains(msg, "cannot find context")
}

func networkSetupAction(headers http.Header) chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		if err := network.Enable().Do(ctx); err != nil {
			return fmt.Errorf("enable network domain: %w", err)
		}
		if len(headers) > 0 {
			if err := network.SetExtraHTTPHeaders(toNetworkHeaders(headers)).Do(ctx); err != nil {
				return fmt.Errorf("set extra headers: %w", err)
			}
		}
		return nil
	})
}

type responseMeta struct {
	mu      sync.RWMutex
	status  int
	headers http.Header
	url     string
}

func newResponseMeta() *responseMeta {
	return &responseMeta{
		headers: http.Header{},
	}
}

func (m *responseMeta) capture(event *network.EventResponseReceived) {
	if event.Type != network.ResourceTypeDocument || event.Response == nil {
		return
	}
	headers := http.Header{}
	for key, value := range event.Response.Headers {
		switch v := value.(type) {
		case string:
			headers.Add(key, v)
		case []string:
			for _, entry := range v {
				headers.Add(key, entry)
			}
		case []interface{}:
			for _, entry := range v {
				headers.Add(key, fmt.Sprint(entry))
			}
		default:
			headers.Add(key, fmt.Sprint(v))
		}
	}
	m.mu.Lock()
	// The first document response is the page itself; later ones are frames.
	if m.url == "" {
		m.status = int(event.Response.Status)
		m.headers = headers
		m.url = event.Response.URL
	}
	m.mu.Unlock()
}

func (m *responseMeta) snapshot() (int, http.Header, string) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.status, cloneHeader(m.headers), m.url
}

func (m *responseMeta) captureEvent(ev any) {
	if resp, ok := ev.(*network.EventResponseReceived); ok {
		m.capture(resp)
	}
}

func (m *responseMeta) snapshotWithFallbacks(requestURL, finalURL string) (int, http.Header, string) {
	status, headers, url := m.snapshot()
	switch {
	case finalURL != "":
		url = finalURL
	case url != "":
	default:
		url = requestURL
	}

	if status == 0 {
		status = http.StatusOK
	}
	return status, headers, url
}

func (f *Fetcher) navTimeout() time.Duration {
	if f.cfg.NavigationTimeout > 0 {
		return f.cfg.NavigationTimeout
	}
	return DefaultNavigationTimeout
}

func cloneHeader(src http.Header) http.Header {
	if src == nil {
		return nil
	}
	dst := make(http.Header, len(src))
	for k, values := range src {
		for _, v := range values {
			dst.Add(k, v)
		}
	}
	return dst
}

func toNetworkHeaders(h http.Header) network.Headers {
	headers := network.Headers{}
	for key, values := range h {
		if len(values) == 0 {
			continue
		}
		if len(values) == 1 {
			headers[key] = values[0]
		} else {
			headers[key] = append([]string(nil), values...)
		}
	}
	return headers
}
