// Package app builds the crawler's long-lived services from configuration and runs them.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/storage"
	"go.uber.org/zap"

	"github.com/JakeFAU/jobscout-crawler/internal/api"
	"github.com/JakeFAU/jobscout-crawler/internal/browser"
	"github.com/JakeFAU/jobscout-crawler/internal/config"
	"github.com/JakeFAU/jobscout-crawler/internal/crawler"
	"github.com/JakeFAU/jobscout-crawler/internal/dispatcher"
	"github.com/JakeFAU/jobscout-crawler/internal/telemetry"
)

const (
	shutdownTimeout  = 10 * time.Second
	idlePollInterval = time.Second
	// idlePolls is how many consecutive idle stats reads end a crawl.
	idlePolls = 3
)

// App contains the application's dependencies.
type App struct {
	cfg    config.Config
	logger *zap.Logger
	runID  string

	queue     crawler.Queue
	results   crawler.ResultStore
	sites     *config.Sites
	dispatch  *dispatcher.Dispatcher
	apiServer *api.Server

	closeQueue      func() error
	closeResults    func()
	closeClassifier func() error
	browserPool     *browser.Pool
	pubsubClient    *pubsub.Client
	closePublisher  func() error
	storage         *storage.Client
	telemetry       *telemetry.Providers
}

// Queue exposes the configured frontier.
func (a *App) Queue() crawler.Queue {
	return a.queue
}

// Results exposes the configured result store.
func (a *App) Results() crawler.ResultStore {
	return a.results
}

// Dispatcher exposes the worker pool and job submission.
func (a *App) Dispatcher() *dispatcher.Dispatcher {
	return a.dispatch
}

// Handler returns the HTTP API.
func (a *App) Handler() http.Handler {
	return a.apiServer.Handler()
}

// RunID identifies this process's crawl run.
func (a *App) RunID() string {
	return a.runID
}

// SeedSites enqueues a depth-0 job per configured site when the sites file is enabled.
func (a *App) SeedSites(ctx context.Context) error {
	if !a.cfg.Crawler.EnqueueSites || a.sites == nil {
		return nil
	}
	sites, err := a.sites.Load()
	if err != nil {
		return err
	}
	added, err := a.dispatch.SeedSites(ctx, sites, dispatcher.Bounds{
		MaxDepth:   a.cfg.Crawler.MaxDepth,
		ChildLimit: a.cfg.Crawler.ChildLimit,
	})
	if err != nil {
		return err
	}
	a.logger.Info("sites enqueued",
		zap.String("path", a.sites.Path()),
		zap.Int("sites", len(sites)),
		zap.Int("added", added),
	)
	return nil
}

// SubmitSite enqueues a depth-0 scan of site using the configured job bounds. With save set
// the site is also stored in the sites file.
func (a *App) SubmitSite(ctx context.Context, site crawler.Site, save bool) (crawler.QueueItem, bool, error) {
	if err := config.ValidateSite(site); err != nil {
		return crawler.QueueItem{}, false, err
	}
	if save {
		if a.sites == nil {
			return crawler.QueueItem{}, false, errors.New("sites file not configured")
		}
		if err := a.sites.Upsert(site); err != nil {
			return crawler.QueueItem{}, false, err
		}
	}
	return a.dispatch.Submit(ctx, crawler.CrawlJob{
		URL:        site.URL,
		Source:     site.Name,
		MaxDepth:   a.cfg.Crawler.MaxDepth,
		ChildLimit: a.cfg.Crawler.ChildLimit,
		Schema:     site.Schema,
	})
}

// Serve seeds the sites, starts the worker pool and the HTTP server, and blocks until the
// context is canceled or the server fails.
func (a *App) Serve(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if err := a.SeedSites(ctx); err != nil {
		return err
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		a.dispatch.Run(ctx)
	}()

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.Server.Port),
		Handler:           a.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	serveErr := make(chan error, 1)
	go func() {
		a.logger.Info("http server started", zap.Int("port", a.cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	var runErr error
	select {
	case <-ctx.Done():
	case err, ok := <-serveErr:
		if ok {
			runErr = fmt.Errorf("http server: %w", err)
		}
	}
	a.logger.Info("shutdown initiated")
	cancel()

	shutdownCtx, stop := context.WithTimeout(context.Background(), shutdownTimeout)
	defer stop()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("server shutdown error", zap.Error(err))
	}
	<-done
	return runErr
}

// Crawl seeds the sites and runs the worker pool until the queue has been idle for a few
// polls or the context is canceled.
func (a *App) Crawl(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if err := a.SeedSites(ctx); err != nil {
		return err
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		a.dispatch.Run(ctx)
	}()

	err := a.waitIdle(ctx)
	cancel()
	<-done
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	stats, statsErr := a.queue.Stats(context.WithoutCancel(ctx))
	if statsErr == nil {
		a.logger.Info("crawl finished",
			zap.String("run_id", a.runID),
			zap.Int64("completed", stats.Completed),
			zap.Int64("failed", stats.Failed),
		)
	}
	return nil
}

func (a *App) waitIdle(ctx context.Context) error {
	ticker := time.NewTicker(idlePollInterval)
	defer ticker.Stop()
	idle := 0
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
		stats, err := a.queue.Stats(ctx)
		if err != nil {
			return fmt.Errorf("queue stats: %w", err)
		}
		if stats.Active == 0 && stats.Waiting == 0 && stats.Delayed == 0 {
			idle++
		} else {
			idle = 0
		}
		if idle >= idlePolls {
			return nil
		}
	}
}

// Close gracefully shuts down the application.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	if a.closeQueue != nil {
		if err := a.closeQueue(); err != nil {
			errs = append(errs, fmt.Errorf("close queue: %w", err))
		}
	}
	a.closeInfrastructure(&errs)
	a.closeObservability(ctx, &errs)
	a.logger.Info("shutdown complete")
	return errors.Join(errs...)
}

func (a *App) closeInfrastructure(errs *[]error) {
	if a.browserPool != nil {
		if err := a.browserPool.Close(); err != nil {
			a.logger.Warn("browser pool close failed", zap.Error(err))
		}
	}
	if a.closeClassifier != nil {
		if err := a.closeClassifier(); err != nil {
			a.logger.Warn("classifier close failed", zap.Error(err))
		}
	}
	if a.closePublisher != nil {
		if err := a.closePublisher(); err != nil {
			*errs = append(*errs, fmt.Errorf("close publisher: %w", err))
		}
	}
	if a.pubsubClient != nil {
		if err := a.pubsubClient.Close(); err != nil {
			a.logger.Warn("pubsub client close failed", zap.Error(err))
		}
	}
	if a.storage != nil {
		if err := a.storage.Close(); err != nil {
			a.logger.Warn("gcs client close failed", zap.Error(err))
		}
	}
	if a.closeResults != nil {
		a.closeResults()
	}
}

func (a *App) closeObservability(ctx context.Context, errs *[]error) {
	if err := a.telemetry.Shutdown(ctx); err != nil {
		*errs = append(*errs, err)
	}
	// Sync on a console sink may return EINVAL.
	_ = a.logger.Sync()
}
