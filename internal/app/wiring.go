package app

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/storage"
	"go.uber.org/zap"

	"github.com/JakeFAU/jobscout-crawler/internal/api"
	"github.com/JakeFAU/jobscout-crawler/internal/browser"
	"github.com/JakeFAU/jobscout-crawler/internal/classifier"
	"github.com/JakeFAU/jobscout-crawler/internal/classifier/gemini"
	"github.com/JakeFAU/jobscout-crawler/internal/classifier/heuristic"
	"github.com/JakeFAU/jobscout-crawler/internal/clock/system"
	"github.com/JakeFAU/jobscout-crawler/internal/config"
	"github.com/JakeFAU/jobscout-crawler/internal/crawler"
	"github.com/JakeFAU/jobscout-crawler/internal/decision"
	"github.com/JakeFAU/jobscout-crawler/internal/dispatcher"
	"github.com/JakeFAU/jobscout-crawler/internal/extract"
	"github.com/JakeFAU/jobscout-crawler/internal/fetcher"
	collyfetcher "github.com/JakeFAU/jobscout-crawler/internal/fetcher/colly"
	headlessfetcher "github.com/JakeFAU/jobscout-crawler/internal/fetcher/headless"
	"github.com/JakeFAU/jobscout-crawler/internal/hash/sha256"
	"github.com/JakeFAU/jobscout-crawler/internal/headless/detector"
	"github.com/JakeFAU/jobscout-crawler/internal/id/uuid"
	"github.com/JakeFAU/jobscout-crawler/internal/linkfilter"
	"github.com/JakeFAU/jobscout-crawler/internal/metrics"
	"github.com/JakeFAU/jobscout-crawler/internal/policy/ratelimit"
	kafkapublisher "github.com/JakeFAU/jobscout-crawler/internal/publisher/kafka"
	memorypublisher "github.com/JakeFAU/jobscout-crawler/internal/publisher/memory"
	gcppublisher "github.com/JakeFAU/jobscout-crawler/internal/publisher/pubsub"
	queueMemory "github.com/JakeFAU/jobscout-crawler/internal/queue/memory"
	redisqueue "github.com/JakeFAU/jobscout-crawler/internal/queue/redis"
	filestore "github.com/JakeFAU/jobscout-crawler/internal/storage/file"
	gcsstorage "github.com/JakeFAU/jobscout-crawler/internal/storage/gcs"
	localstorage "github.com/JakeFAU/jobscout-crawler/internal/storage/local"
	memoryStorage "github.com/JakeFAU/jobscout-crawler/internal/storage/memory"
	pgstore "github.com/JakeFAU/jobscout-crawler/internal/storage/postgres"
	"github.com/JakeFAU/jobscout-crawler/internal/telemetry"
	"github.com/JakeFAU/jobscout-crawler/internal/worker"
)

func seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}

// Build creates the application's dependencies. Close must be called on success.
func Build(ctx context.Context, cfg config.Config, logger *zap.Logger) (_ *App, err error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	metrics.Init()

	ids := uuid.New()
	runID, err := ids.NewID()
	if err != nil {
		return nil, fmt.Errorf("run id: %w", err)
	}
	app := &App{cfg: cfg, logger: logger.With(zap.String("run_id", runID)), runID: runID}
	defer func() {
		if err != nil {
			_ = app.Close(context.WithoutCancel(ctx))
		}
	}()

	if cfg.Telemetry.Enabled {
		app.telemetry, err = telemetry.Init(ctx, telemetry.Config{
			ServiceName: cfg.Telemetry.ServiceName,
			ProjectID:   cfg.Telemetry.ProjectID,
		})
		if err != nil {
			return nil, fmt.Errorf("telemetry init failed: %w", err)
		}
	}

	clock := system.New()
	hasher := sha256.New()
	policy := crawler.NewExponentialRetryPolicy(
		cfg.Crawler.MaxAttempts,
		seconds(cfg.Crawler.BackoffSeconds),
		seconds(cfg.Crawler.MaxBackoffSeconds),
	)

	app.logger.Info("building application dependencies")
	if err = setupQueue(ctx, app, policy); err != nil {
		return nil, err
	}
	if err = setupResults(ctx, app, clock); err != nil {
		return nil, err
	}
	blobs, err := setupSnapshots(ctx, app)
	if err != nil {
		return nil, err
	}
	publisher, err := setupPublisher(ctx, app, clock)
	if err != nil {
		return nil, err
	}
	cls, err := setupClassifier(ctx, app)
	if err != nil {
		return nil, err
	}
	pageFetcher, err := setupFetcher(app)
	if err != nil {
		return nil, err
	}

	filter := linkfilter.New(cls, app.logger.Named("linkfilter"),
		linkfilter.WithBatchSize(cfg.Classifier.BatchSize),
		linkfilter.WithFallbackLimit(cfg.Classifier.FallbackLimit),
	)
	machine := decision.New(cls, pageFetcher, clock, cfg.Crawler.MaxCrawls, app.logger.Named("decision"))
	limiter := ratelimit.NewGlobal(cfg.Crawler.RatePerSecond, cfg.Crawler.RateBurst)
	visited := crawler.NewVisitTracker()

	workerCfg := worker.Config{
		RunID:      runID,
		Topic:      cfg.Events.Topic,
		JobTimeout: cfg.JobTimeout(),
	}
	app.logger.Info("worker config",
		zap.Int("workers", cfg.Crawler.Workers),
		zap.Float64("rate_per_second", cfg.Crawler.RatePerSecond),
		zap.Int("max_depth", cfg.Crawler.MaxDepth),
		zap.Int("child_limit", cfg.Crawler.ChildLimit),
		zap.Duration("job_timeout", workerCfg.JobTimeout),
	)
	runners := make([]dispatcher.Runner, 0, cfg.Crawler.Workers)
	for i := 0; i < cfg.Crawler.Workers; i++ {
		runners = append(runners, worker.New(worker.Deps{
			Queue:     app.queue,
			Fetcher:   pageFetcher,
			Filter:    filter,
			Decider:   machine,
			Results:   app.results,
			Blobs:     blobs,
			Publisher: publisher,
			Hasher:    hasher,
			Clock:     clock,
			IDs:       ids,
			Visited:   visited,
			Limiter:   limiter,
		}, workerCfg, app.logger.Named("worker").With(zap.Int("index", i))))
	}
	app.dispatch = dispatcher.New(app.queue, runners, hasher, clock, app.logger.Named("dispatcher"))

	if cfg.Crawler.SitesFile != "" {
		app.sites = config.NewSites(cfg.Crawler.SitesFile, clock, app.logger.Named("sites"))
	}
	deps := api.Deps{
		Submitter: app.dispatch,
		Queue:     app.queue,
		Results:   app.results,
	}
	if app.sites != nil {
		deps.Sites = app.sites
	}
	app.apiServer = api.NewServer(deps, api.Options{
		AuthEnabled:    cfg.Auth.Enabled,
		APIKey:         cfg.Auth.APIKey,
		RequestTimeout: cfg.RequestTimeout(),
		MaxDepth:       cfg.Crawler.MaxDepth,
		ChildLimit:     cfg.Crawler.ChildLimit,
	}, app.logger.Named("api"))

	return app, nil
}

func setupQueue(ctx context.Context, app *App, policy crawler.RetryPolicy) error {
	switch app.cfg.Queue.Backend {
	case "redis":
		rc := app.cfg.Queue.Redis
		q, err := redisqueue.New(ctx, redisqueue.Config{
			Addr:     rc.Addr,
			Password: rc.Password,
			DB:       rc.DB,
			Prefix:   rc.Prefix,
			KeyTTL:   seconds(rc.KeyTTLSeconds),
			LeaseTTL: 2 * app.cfg.JobTimeout(),
		}, policy, app.logger.Named("queue"))
		if err != nil {
			return fmt.Errorf("redis queue init failed: %w", err)
		}
		app.queue = q
		app.closeQueue = q.Close
		app.logger.Info("using redis queue", zap.String("addr", rc.Addr), zap.String("prefix", rc.Prefix))
	default:
		q := queueMemory.NewQueue(app.cfg.Queue.Capacity, policy)
		app.queue = q
		app.closeQueue = func() error {
			q.Close()
			return nil
		}
		app.logger.Info("using in-memory queue", zap.Int("capacity", app.cfg.Queue.Capacity))
	}
	return nil
}

func setupResults(ctx context.Context, app *App, clock crawler.Clock) error {
	switch app.cfg.Results.Backend {
	case "postgres":
		pc := app.cfg.Results.Postgres
		store, err := pgstore.New(ctx, pgstore.Config{
			DSN:      pc.DSN,
			Table:    pc.Table,
			MaxConns: pc.MaxConns,
		}, clock)
		if err != nil {
			return fmt.Errorf("postgres result store init failed: %w", err)
		}
		app.results = store
		app.closeResults = store.Close
		if pc.MigrateOnStart {
			if err := store.EnsureSchema(ctx); err != nil {
				return fmt.Errorf("postgres schema: %w", err)
			}
		}
		app.logger.Info("using postgres result store", zap.String("table", pc.Table))
	case "memory":
		app.results = memoryStorage.NewResultStore(clock)
		app.logger.Info("using in-memory result store")
	default:
		store, err := filestore.New(app.cfg.Results.Path, clock, app.logger.Named("results"))
		if err != nil {
			return fmt.Errorf("file result store init failed: %w", err)
		}
		app.results = store
		app.logger.Info("using file result store", zap.String("path", app.cfg.Results.Path))
	}
	return nil
}

func setupSnapshots(ctx context.Context, app *App) (crawler.BlobStore, error) {
	sc := app.cfg.Snapshots
	switch sc.Backend {
	case "gcs":
		client, err := storage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("gcs client init failed: %w", err)
		}
		app.storage = client
		store, err := gcsstorage.New(client, gcsstorage.Config{Bucket: sc.Bucket, Prefix: sc.Prefix})
		if err != nil {
			return nil, fmt.Errorf("gcs blob store init failed: %w", err)
		}
		app.logger.Info("archiving snapshots to GCS", zap.String("bucket", sc.Bucket))
		return store, nil
	case "local":
		store, err := localstorage.New(localstorage.Config{BaseDir: sc.BaseDir})
		if err != nil {
			return nil, fmt.Errorf("local blob store init failed: %w", err)
		}
		app.logger.Info("archiving snapshots locally", zap.String("path", sc.BaseDir))
		return store, nil
	case "memory":
		app.logger.Info("archiving snapshots in memory")
		return memoryStorage.NewBlobStore(), nil
	default:
		app.logger.Info("snapshot archiving disabled")
		return nil, nil
	}
}

func setupPublisher(ctx context.Context, app *App, clock crawler.Clock) (crawler.Publisher, error) {
	ec := app.cfg.Events
	switch ec.Backend {
	case "pubsub":
		client, err := pubsub.NewClient(ctx, ec.ProjectID)
		if err != nil {
			return nil, fmt.Errorf("pubsub client init failed: %w", err)
		}
		app.pubsubClient = client
		pub, err := gcppublisher.New(ctx, client, ec.Topic)
		if err != nil {
			return nil, fmt.Errorf("pubsub publisher init failed: %w", err)
		}
		app.closePublisher = func() error {
			pub.Stop()
			return nil
		}
		app.logger.Info("Pub/Sub publisher initialized",
			zap.String("project", ec.ProjectID),
			zap.String("topic", ec.Topic),
		)
		return pub, nil
	case "kafka":
		pub, err := kafkapublisher.New(kafkapublisher.Config{Brokers: ec.Brokers, Topic: ec.Topic}, clock)
		if err != nil {
			return nil, fmt.Errorf("kafka publisher init failed: %w", err)
		}
		app.closePublisher = pub.Close
		app.logger.Info("Kafka publisher initialized", zap.Strings("brokers", ec.Brokers), zap.String("topic", ec.Topic))
		return pub, nil
	case "memory":
		app.logger.Info("using in-memory publisher")
		return memorypublisher.New(), nil
	default:
		app.logger.Info("result events disabled")
		return nil, nil
	}
}

func setupClassifier(ctx context.Context, app *App) (classifier.Classifier, error) {
	cc := app.cfg.Classifier
	var cls classifier.Classifier
	switch cc.Provider {
	case "gemini":
		client, err := gemini.New(ctx, cc.APIKey, cc.Model, cc.Temperature, app.logger.Named("gemini"))
		if err != nil {
			return nil, fmt.Errorf("gemini classifier init failed: %w", err)
		}
		app.closeClassifier = client.Close
		cls = client
		app.logger.Info("using gemini classifier", zap.String("model", cc.Model))
	default:
		cls = heuristic.New()
		app.logger.Info("using heuristic classifier")
	}
	return classifier.WithTimeout(cls, seconds(cc.TimeoutSeconds)), nil
}

func setupFetcher(app *App) (*fetcher.PageFetcher, error) {
	cfg := app.cfg
	fast := collyfetcher.New(collyfetcher.Config{
		UserAgent: cfg.Crawler.UserAgent,
		Timeout:   seconds(cfg.HTTP.TimeoutSeconds),
	})

	var (
		render crawler.Fetcher
		detect crawler.HeadlessDetector
	)
	if cfg.Headless.Enabled {
		app.browserPool = browser.New(browser.Config{
			MaxPages:  cfg.Headless.MaxPages,
			UserAgent: cfg.Crawler.UserAgent,
			Headful:   cfg.Headless.Headful,
			ExecPath:  cfg.Headless.ExecPath,
		}, app.logger.Named("browser"))
		headless, err := headlessfetcher.NewChromedp(headlessfetcher.Config{
			NavigationTimeout: seconds(cfg.Headless.NavTimeoutSeconds),
			ScrollSteps:       cfg.Headless.ScrollSteps,
			ScrollDelay:       time.Duration(cfg.Headless.ScrollDelayMs) * time.Millisecond,
		}, app.browserPool)
		if err != nil {
			return nil, fmt.Errorf("headless fetcher init failed: %w", err)
		}
		render = headless
		detect = detector.NewHeuristic(cfg.Headless.MinLinks, cfg.Headless.BodyThreshold)
		app.logger.Info("using headless fallback", zap.Int("max_pages", cfg.Headless.MaxPages))
	}

	hostLimiter := ratelimit.New(ratelimit.Config{
		DefaultRPS:   cfg.Crawler.HostRatePerSecond,
		DefaultBurst: cfg.Crawler.HostBurst,
	})
	extractor := extract.New(crawler.NewLinkBlocklist(cfg.Crawler.ExtraBlocklist...))
	return fetcher.New(fast, render, detect, extractor, hostLimiter, app.logger.Named("fetcher")), nil
}
