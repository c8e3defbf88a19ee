// Package worker implements the crawl scheduler loop: one job in, one page analyzed,
// children and accepted results out.
package worker

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/JakeFAU/jobscout-crawler/internal/crawler"
	"github.com/JakeFAU/jobscout-crawler/internal/decision"
	"github.com/JakeFAU/jobscout-crawler/internal/logging"
	"github.com/JakeFAU/jobscout-crawler/internal/metrics"
	"github.com/JakeFAU/jobscout-crawler/internal/scoring"
)

const snapshotContentType = "text/html; charset=utf-8"

var tracer = otel.Tracer("github.com/JakeFAU/jobscout-crawler/internal/worker")

// Job outcomes reported to metrics.
const (
	outcomeSkipped = "skipped"
	outcomeNoPage  = "no_page"
	outcomeRetried = "retried"
	outcomeDropped = "dropped"
)

// Decider runs the decision cycle for an analyzed page.
type Decider interface {
	Run(ctx context.Context, in decision.Input) (decision.Outcome, error)
}

// Hasher derives job keys and snapshot object paths.
type Hasher interface {
	crawler.Hasher
	SnapshotPath(html []byte) (digest, objectPath string)
}

// EventIDs derives deterministic result event IDs.
type EventIDs interface {
	EventID(runID, canonicalURL string) string
}

// Limiter gates job starts across all workers.
type Limiter interface {
	Wait(ctx context.Context) error
}

// Deps are the collaborators a Worker needs. Blobs, Publisher and Limiter are optional.
type Deps struct {
	Queue     crawler.Queue
	Fetcher   crawler.PageFetcher
	Filter    crawler.LinkFilter
	Decider   Decider
	Results   crawler.ResultStore
	Blobs     crawler.BlobStore
	Publisher crawler.Publisher
	Hasher    Hasher
	Clock     crawler.Clock
	IDs       EventIDs
	Visited   *crawler.VisitTracker
	Limiter   Limiter
}

// Config controls Worker behavior.
type Config struct {
	RunID string
	Topic string
	// JobTimeout bounds a single job; zero disables the bound.
	JobTimeout time.Duration
	// IdleBackoff is the pause after a failed dequeue.
	IdleBackoff time.Duration
}

// Worker consumes queue items and executes the crawl pipeline.
type Worker struct {
	deps   Deps
	cfg    Config
	logger *zap.Logger
}

// New constructs a Worker.
func New(deps Deps, cfg Config, logger *zap.Logger) *Worker {
	if logger == nil {
		logger = zap.NewNop()
	}
	if deps.Visited == nil {
		deps.Visited = crawler.NewVisitTracker()
	}
	if cfg.IdleBackoff <= 0 {
		cfg.IdleBackoff = time.Second
	}
	return &Worker{
		deps:   deps,
		cfg:    cfg,
		logger: logger,
	}
}

// Run blocks, consuming queue items until the context finishes or the queue closes.
func (w *Worker) Run(ctx context.Context) {
	for {
		item, err := w.deps.Queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, crawler.ErrQueueClosed) {
				return
			}
			w.logger.Error("queue dequeue failed", zap.Error(err))
			select {
			case <-ctx.Done():
				return
			case <-time.After(w.cfg.IdleBackoff):
			}
			continue
		}
		w.logger.Debug("dequeued job", zap.String("job_key", item.Key))
		metrics.IncActiveWorkers()
		w.Process(ctx, item)
		metrics.DecActiveWorkers()
	}
}

// Process runs one job to completion and acknowledges it on the queue.
func (w *Worker) Process(ctx context.Context, item crawler.QueueItem) {
	logger := w.logger.With(logging.JobFields(item)...)
	ctx, span := tracer.Start(ctx, "crawl.job")
	defer span.End()
	span.SetAttributes(
		attribute.String("job.key", item.Key),
		attribute.String("job.url", item.Job.URL),
		attribute.String("job.source", item.Job.Source),
		attribute.Int("job.depth", item.Job.Depth),
		attribute.Int("job.attempt", item.Attempt),
	)
	// Acknowledgements must land even while the run is shutting down.
	ackCtx := context.WithoutCancel(ctx)

	jobCtx := ctx
	if w.cfg.JobTimeout > 0 {
		var cancel context.CancelFunc
		jobCtx, cancel = context.WithTimeout(ctx, w.cfg.JobTimeout)
		defer cancel()
	}

	outcome, err := w.handle(jobCtx, logger, item)
	span.SetAttributes(attribute.String("job.outcome", outcome))
	if err == nil {
		if cerr := w.deps.Queue.Complete(ackCtx, item); cerr != nil {
			logger.Error("queue complete failed", zap.Error(cerr))
		}
		metrics.ObserveJob(outcome)
		return
	}

	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	w.deps.Visited.Forget(item.Key)
	retried, ferr := w.deps.Queue.Fail(ackCtx, item, err)
	if ferr != nil {
		logger.Error("queue fail failed", zap.Error(ferr), zap.NamedError("cause", err))
		metrics.ObserveJob(outcomeDropped)
		return
	}
	if retried {
		logger.Warn("job failed, retry scheduled", zap.Error(err))
		metrics.ObserveJob(outcomeRetried)
		return
	}
	logger.Error("job dropped", zap.Error(err))
	metrics.ObserveJob(outcomeDropped)
}

func (w *Worker) handle(ctx context.Context, logger *zap.Logger, item crawler.QueueItem) (string, error) {
	if w.deps.Limiter != nil {
		if err := w.deps.Limiter.Wait(ctx); err != nil {
			return "", fmt.Errorf("job rate limit: %w", err)
		}
	}

	job := item.Job.WithDefaults()
	job.URL = crawler.Canonicalize(job.URL)
	if !w.deps.Visited.MarkIfNew(item.Key) {
		logger.Debug("already visited in this run")
		return outcomeSkipped, nil
	}

	page, err := w.deps.Fetcher.Fetch(ctx, job.URL)
	if err != nil {
		logger.Info("no page", zap.Error(err))
		return outcomeNoPage, nil
	}

	links := w.deps.Filter.FilterAndRank(ctx, job.URL, page.Links, page.NextLink)
	if job.CanDescend() {
		w.enqueueChildren(ctx, logger, job, head(links, job.ChildLimit))
	}

	score := scoring.Compute(page)
	out, err := w.deps.Decider.Run(ctx, decision.Input{
		Job:   job,
		Page:  page,
		Score: score,
		Links: links,
	})
	if err != nil {
		return "", err
	}
	if job.CanDescend() && len(out.Discovered) > 0 {
		w.enqueueChildren(ctx, logger, job, head(out.Discovered, job.ChildLimit))
	}

	d := out.Decision
	switch d.Kind {
	case crawler.DecisionFollow:
		if !job.CanDescend() {
			logger.Info("follow ignored at max depth", zap.Int("targets", len(d.Targets)))
			break
		}
		w.enqueueChildren(ctx, logger, job, head(d.Targets, job.ChildLimit))
	case crawler.DecisionDone:
		if err := w.accept(ctx, logger, out); err != nil {
			return "", err
		}
	case crawler.DecisionReject:
		logger.Info("page rejected", zap.String("reason", d.Reason), zap.Int("score", score.Score))
	default:
		logger.Info("crawl stopped", zap.String("reason", d.Reason))
	}
	return strings.ToLower(string(d.Kind)), nil
}

func (w *Worker) accept(ctx context.Context, logger *zap.Logger, out decision.Outcome) error {
	if out.Record == nil {
		return errors.New("accepted page without a record")
	}
	rec, err := w.deps.Results.Upsert(ctx, *out.Record)
	if err != nil {
		metrics.ObserveResultStored("error")
		return fmt.Errorf("upsert result: %w", err)
	}
	metrics.ObserveResultStored("stored")
	logger.Info("result stored", zap.String("title", rec.Title), zap.Int("score", rec.Score))

	blobURI := w.archive(ctx, logger, out.Page)

	if w.deps.Publisher == nil {
		return nil
	}
	event := crawler.ResultEvent{
		ID:        w.deps.IDs.EventID(w.cfg.RunID, rec.URL),
		RunID:     w.cfg.RunID,
		URL:       rec.URL,
		Source:    rec.Source,
		Title:     rec.Title,
		Score:     rec.Score,
		BlobURI:   blobURI,
		Timestamp: w.deps.Clock.Now().UTC(),
	}
	msgID, err := w.deps.Publisher.Publish(ctx, w.cfg.Topic, event)
	if err != nil {
		return fmt.Errorf("publish result event: %w", err)
	}
	logger.Debug("result event published", zap.String("message_id", msgID))
	return nil
}

// archive stores the accepted page's HTML. Failures are logged and yield an empty URI.
func (w *Worker) archive(ctx context.Context, logger *zap.Logger, page crawler.PageSignals) string {
	if w.deps.Blobs == nil || len(page.HTML) == 0 {
		return ""
	}
	digest, path := w.deps.Hasher.SnapshotPath(page.HTML)
	uri, err := w.deps.Blobs.PutObject(ctx, path, snapshotContentType, bytes.NewReader(page.HTML))
	if err != nil {
		logger.Warn("snapshot archive failed", zap.String("digest", digest), zap.Error(err))
		return ""
	}
	return uri
}

func (w *Worker) enqueueChildren(ctx context.Context, logger *zap.Logger, parent crawler.CrawlJob, urls []string) {
	if len(urls) == 0 {
		return
	}
	accepted, duplicates := 0, 0
	for _, u := range urls {
		item, err := crawler.NewQueueItem(w.deps.Hasher, w.deps.Clock, parent.Child(u))
		if err != nil {
			logger.Warn("child key failed", zap.String("child", u), zap.Error(err))
			continue
		}
		added, err := w.deps.Queue.Enqueue(ctx, item)
		if err != nil {
			logger.Warn("child enqueue failed", zap.String("child", u), zap.Error(err))
			continue
		}
		if added {
			accepted++
		} else {
			duplicates++
		}
	}
	metrics.ObserveChildren(accepted, duplicates)
	logger.Info("children enqueued",
		zap.Int("accepted", accepted),
		zap.Int("duplicates", duplicates),
		zap.Int("child_depth", parent.Depth+1),
	)
}

func head(links []string, n int) []string {
	if n <= 0 || len(links) <= n {
		return links
	}
	return links[:n]
}
