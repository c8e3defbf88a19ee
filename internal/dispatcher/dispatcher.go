// Package dispatcher manages worker fan-out over the crawl queue and seeds new runs.
package dispatcher

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/JakeFAU/jobscout-crawler/internal/crawler"
)

// Runner is one queue consumer.
type Runner interface {
	Run(ctx context.Context)
}

// Bounds are the job limits applied to seeded sites.
type Bounds struct {
	MaxDepth   int
	ChildLimit int
}

// Dispatcher fans out queue work to a pool of workers.
type Dispatcher struct {
	queue   crawler.Queue
	workers []Runner
	hasher  crawler.Hasher
	clock   crawler.Clock
	logger  *zap.Logger
}

// New creates a Dispatcher.
func New(queue crawler.Queue, workers []Runner, hasher crawler.Hasher, clock crawler.Clock, logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{
		queue:   queue,
		workers: workers,
		hasher:  hasher,
		clock:   clock,
		logger:  logger,
	}
}

// Run starts all workers and blocks until the context finishes and every worker returns.
func (d *Dispatcher) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for _, w := range d.workers {
		wg.Add(1)
		go func(r Runner) {
			defer wg.Done()
			r.Run(ctx)
		}(w)
	}
	d.logger.Info("workers started", zap.Int("workers", len(d.workers)))
	wg.Wait()
	d.logger.Info("workers stopped")
}

// Enqueue proxies to the underlying queue.
func (d *Dispatcher) Enqueue(ctx context.Context, item crawler.QueueItem) (bool, error) {
	added, err := d.queue.Enqueue(ctx, item)
	if err != nil {
		return false, fmt.Errorf("queue enqueue: %w", err)
	}
	return added, nil
}

// Submit canonicalizes the job, derives its key and enqueues it.
func (d *Dispatcher) Submit(ctx context.Context, job crawler.CrawlJob) (crawler.QueueItem, bool, error) {
	item, err := crawler.NewQueueItem(d.hasher, d.clock, job.WithDefaults())
	if err != nil {
		return crawler.QueueItem{}, false, err
	}
	added, err := d.Enqueue(ctx, item)
	if err != nil {
		return crawler.QueueItem{}, false, err
	}
	return item, added, nil
}

// SeedSites enqueues a depth-0 job per site and returns how many were new.
func (d *Dispatcher) SeedSites(ctx context.Context, sites []crawler.Site, bounds Bounds) (int, error) {
	added := 0
	for _, site := range sites {
		item, ok, err := d.Submit(ctx, crawler.CrawlJob{
			URL:        site.URL,
			Source:     site.Name,
			MaxDepth:   bounds.MaxDepth,
			ChildLimit: bounds.ChildLimit,
			Schema:     site.Schema,
		})
		if err != nil {
			return added, fmt.Errorf("seed site %q: %w", site.Name, err)
		}
		if ok {
			added++
		}
		d.logger.Info("site seeded",
			zap.String("source", site.Name),
			zap.String("url", item.Job.URL),
			zap.Bool("added", ok),
		)
	}
	return added, nil
}
