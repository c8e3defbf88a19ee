// Package browser owns the shared headless Chrome instance and hands out tabs
// under a bounded-concurrency gate.
package browser

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/JakeFAU/jobscout-crawler/internal/metrics"
)

// DefaultMaxPages caps concurrently open tabs.
const DefaultMaxPages = 3

// DefaultUserAgent is presented by rendered pages instead of HeadlessChrome.
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 " +
	"(KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"

const stealthScript = `Object.defineProperty(navigator, 'webdriver', {get: () => undefined});
window.chrome = window.chrome || {runtime: {}};
Object.defineProperty(navigator, 'languages', {get: () => ['de-DE', 'de', 'en-US', 'en']});`

// ErrPoolClosed is returned after Close.
var ErrPoolClosed = errors.New("browser pool closed")

// Config controls the pool.
type Config struct {
	MaxPages  int
	UserAgent string
	Headful   bool
	ExecPath  string
}

type (
	launcher   func(parent context.Context) (context.Context, context.CancelFunc, error)
	pageOpener func(browserCtx context.Context) (context.Context, context.CancelFunc)
	pagePrep   func(pageCtx context.Context) error
)

// Pool lends tabs of one lazily started browser. The browser is restarted when
// its context is found dead.
type Pool struct {
	cfg    Config
	sem    *semaphore.Weighted
	active atomic.Int64
	logger *zap.Logger

	launch  launcher
	open    pageOpener
	prepare pagePrep

	mu         sync.Mutex
	browserCtx context.Context
	cancel     context.CancelFunc
	launches   int
	closed     bool
}

// New builds a chromedp-backed pool. Chrome is not started until the first page is requested.
func New(cfg Config, logger *zap.Logger) *Pool {
	cfg = withDefaults(cfg)
	return newPool(cfg, logger, chromeLauncher(cfg), openTab, stealth(cfg.UserAgent))
}

func newPool(cfg Config, logger *zap.Logger, launch launcher, open pageOpener, prepare pagePrep) *Pool {
	cfg = withDefaults(cfg)
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pool{
		cfg:     cfg,
		sem:     semaphore.NewWeighted(int64(cfg.MaxPages)),
		logger:  logger,
		launch:  launch,
		open:    open,
		prepare: prepare,
	}
}

func withDefaults(cfg Config) Config {
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = DefaultMaxPages
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultUserAgent
	}
	return cfg
}

// WithRenderedPage runs fn with a fresh, prepared tab. The tab is closed and the slot
// released when fn returns, fails, panics, or ctx is canceled.
func (p *Pool) WithRenderedPage(ctx context.Context, fn func(pageCtx context.Context) error) error {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return fmt.Errorf("acquire render slot: %w", err)
	}
	defer p.sem.Release(1)

	metrics.SetBrowserPagesInUse(p.active.Add(1))
	defer func() { metrics.SetBrowserPagesInUse(p.active.Add(-1)) }()

	browserCtx, err := p.ensureBrowser()
	if err != nil {
		return err
	}

	pageCtx, closePage := p.open(browserCtx)
	defer closePage()
	stop := context.AfterFunc(ctx, closePage)
	defer stop()

	if err := p.prepare(pageCtx); err != nil {
		return fmt.Errorf("prepare page: %w", err)
	}
	return fn(pageCtx)
}

// Active reports how many tabs are currently lent out.
func (p *Pool) Active() int64 {
	return p.active.Load()
}

// Launches reports how many times the browser was started.
func (p *Pool) Launches() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.launches
}

// Close shuts the browser down. Later calls to WithRenderedPage fail with ErrPoolClosed.
func (p *Pool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	if p.cancel != nil {
		p.cancel()
		p.cancel = nil
	}
	p.browserCtx = nil
	return nil
}

func (p *Pool) ensureBrowser() (context.Context, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil, ErrPoolClosed
	}
	if p.browserCtx != nil && p.browserCtx.Err() == nil {
		return p.browserCtx, nil
	}
	if p.browserCtx != nil {
		p.logger.Warn("browser context lost; restarting", zap.Int("launches", p.launches))
		p.cancel()
		p.browserCtx, p.cancel = nil, nil
	}
	browserCtx, cancel, err := p.launch(context.Background())
	if err != nil {
		return nil, fmt.Errorf("launch browser: %w", err)
	}
	p.browserCtx, p.cancel = browserCtx, cancel
	p.launches++
	p.logger.Info("browser started", zap.Int("launches", p.launches), zap.Int("max_pages", p.cfg.MaxPages))
	return browserCtx, nil
}

func chromeLauncher(cfg Config) launcher {
	return func(parent context.Context) (context.Context, context.CancelFunc, error) {
		opts := append(chromedp.DefaultExecAllocatorOptions[:],
			chromedp.Flag("no-sandbox", true),
			chromedp.Flag("disable-gpu", true),
			chromedp.Flag("disable-dev-shm-usage", true),
			chromedp.Flag("disable-blink-features", "AutomationControlled"),
			chromedp.Flag("hide-scrollbars", true),
			chromedp.Flag("enable-automation", false),
			chromedp.UserAgent(cfg.UserAgent),
		)
		if cfg.Headful {
			opts = append(opts, chromedp.Flag("headless", false))
		} else {
			opts = append(opts, chromedp.Flag("headless", "new"))
		}
		if cfg.ExecPath != "" {
			opts = append(opts, chromedp.ExecPath(cfg.ExecPath))
		}
		allocCtx, allocCancel := chromedp.NewExecAllocator(parent, opts...)
		browserCtx, browserCancel := chromedp.NewContext(allocCtx)
		cancel := func() {
			browserCancel()
			allocCancel()
		}
		// The first Run on the browser context starts Chrome.
		if err := chromedp.Run(browserCtx); err != nil {
			cancel()
			return nil, nil, fmt.Errorf("start chrome: %w", err)
		}
		return browserCtx, cancel, nil
	}
}

func openTab(browserCtx context.Context) (context.Context, context.CancelFunc) {
	return chromedp.NewContext(browserCtx)
}

func stealth(userAgent string) pagePrep {
	return func(pageCtx context.Context) error {
		return chromedp.Run(pageCtx, chromedp.ActionFunc(func(ctx context.Context) error {
			if _, err := page.AddScriptToEvaluateOnNewDocument(stealthScript).Do(ctx); err != nil {
				return fmt.Errorf("mask webdriver: %w", err)
			}
			if err := emulation.SetUserAgentOverride(userAgent).
				WithAcceptLanguage("de-DE,de;q=0.9,en;q=0.8").
				Do(ctx); err != nil {
				return fmt.Errorf("set user-agent: %w", err)
			}
			return nil
		}))
	}
}
