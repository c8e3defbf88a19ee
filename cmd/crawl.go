// Package cmd defines and implements the CLI commands for the jobscout executable.
package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/jobscout-crawler/internal/crawler"
)

// newCrawlCmd creates the 'crawl' subcommand, a one-shot run over the configured sites.
func newCrawlCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "crawl",
		Short: "Crawl the configured sites once and exit",
		Long: `Seeds a depth-0 job for every entry in the sites file and runs the worker
pool until the queue stays idle, then prints the final queue counts.`,
		Args: cobra.NoArgs,
		RunE: runCrawlCommand,
	}
}

func runCrawlCommand(cmd *cobra.Command, _ []string) error {
	appInstance, err := resolveApp(cmd.Context())
	if err != nil {
		return err
	}
	if err := appInstance.Crawl(cmd.Context()); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("run crawler: %w", err)
	}
	zap.L().Info("crawl command finished")
	return printStats(cmd, appInstance)
}

// newServeCmd creates the 'serve' subcommand that runs the HTTP API and worker pool.
func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the worker pool",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			return appInstance.Serve(cmd.Context())
		},
	}
}

// newEnqueueCmd creates the 'enqueue' subcommand that submits one site scan.
func newEnqueueCmd() *cobra.Command {
	var (
		site   crawler.Site
		schema map[string]string
		save   bool
	)
	cmd := &cobra.Command{
		Use:   "enqueue",
		Short: "Submit a scan of one site to the queue",
		Long: `Adds a depth-0 job for the given site. With a shared queue backend such as
Redis, a running 'serve' process picks it up.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			if len(schema) > 0 {
				site.Schema = schema
			}
			item, added, err := appInstance.SubmitSite(cmd.Context(), site, save)
			if err != nil {
				return fmt.Errorf("enqueue %s: %w", site.Name, err)
			}
			return writeJSON(cmd, map[string]any{
				"job_key": item.Key,
				"url":     item.Job.URL,
				"added":   added,
				"saved":   save,
			})
		},
	}
	cmd.Flags().StringVar(&site.Name, "name", "", "organization name")
	cmd.Flags().StringVar(&site.URL, "url", "", "start URL")
	cmd.Flags().StringToStringVar(&schema, "schema", nil, "extra fields to extract, as field=description")
	cmd.Flags().BoolVar(&save, "save", false, "also store the site in the sites file")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("url")
	return cmd
}

// newStatsCmd creates the 'stats' subcommand that prints the queue counts.
func newStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Print queue statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			return printStats(cmd, appInstance)
		},
	}
}

func printStats(cmd *cobra.Command, appInstance App) error {
	stats, err := appInstance.Queue().Stats(context.WithoutCancel(cmd.Context()))
	if err != nil {
		return fmt.Errorf("queue stats: %w", err)
	}
	return writeJSON(cmd, stats)
}

func writeJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
