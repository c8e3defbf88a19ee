package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/jobscout-crawler/internal/app"
	"github.com/JakeFAU/jobscout-crawler/internal/config"
	"github.com/JakeFAU/jobscout-crawler/internal/crawler"
	"github.com/JakeFAU/jobscout-crawler/internal/logging"
)

// appKeyType is the key for storing the App in the context.
type appKeyType string

const appKey appKeyType = "app"

// App defines the application surface the commands use, so tests can inject a fake.
type App interface {
	Serve(ctx context.Context) error
	Crawl(ctx context.Context) error
	SubmitSite(ctx context.Context, site crawler.Site, save bool) (crawler.QueueItem, bool, error)
	Queue() crawler.Queue
	Close(ctx context.Context) error
}

// newApp is the application factory. It's a variable so tests can replace it.
var newApp = func(ctx context.Context, cfg config.Config, logger *zap.Logger) (App, error) {
	return app.Build(ctx, cfg, logger)
}

// newRootCmd creates and configures the root command.
func newRootCmd() *cobra.Command {
	var cfgFile string
	cmd := &cobra.Command{
		Use:   "jobscout",
		Short: "A bounded crawler that finds job postings on organization websites.",
		Long: `jobscout crawls the career pages of configured organizations, asks a
classifier which links lead to job postings and stores every accepted posting.
It runs either as a long-lived HTTP service or as a one-shot crawl.`,
		SilenceUsage: true,

		// Builds the application after flags are parsed and before the subcommand runs.
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
				return fmt.Errorf("load .env: %w", err)
			}
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return err
			}
			logger, err := logging.New(cfg.Logging.Development, cfg.Logging.Level)
			if err != nil {
				return err
			}
			zap.ReplaceGlobals(logger)

			appInstance, err := newApp(cmd.Context(), cfg, logger)
			if err != nil {
				return fmt.Errorf("failed to initialize application services: %w", err)
			}
			cmd.SetContext(context.WithValue(cmd.Context(), appKey, appInstance))
			return nil
		},

		// Shuts services down once the subcommand returns.
		PersistentPostRunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return nil
			}
			return appInstance.Close(context.WithoutCancel(cmd.Context()))
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (YAML); JOBSCOUT_* env vars override it")

	cmd.AddCommand(newServeCmd(), newCrawlCmd(), newEnqueueCmd(), newStatsCmd())
	return cmd
}

func resolveApp(ctx context.Context) (App, error) {
	appInstance, ok := ctx.Value(appKey).(App)
	if !ok || appInstance == nil {
		return nil, errors.New("application services not initialized")
	}
	return appInstance, nil
}

// Execute is the main entry point.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		zap.L().Error("command execution failed", zap.Error(err))
		stop()
		os.Exit(1)
	}
}
