package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/pfrederiksen/course-scraper/internal/config"
	"github.com/pfrederiksen/course-scraper/internal/logger"
	"github.com/pfrederiksen/course-scraper/internal/runner"
	"github.com/pfrederiksen/course-scraper/internal/scraper"
	"github.com/pfrederiksen/course-scraper/internal/server"
	"github.com/pfrederiksen/course-scraper/internal/storage"
)

const (
	ExitSuccess = 0
	ExitError   = 1
)

var (
	flagConfig  string
	flagStore   string
	flagVerbose bool
	flagFormat  string
	flagSort    string
)

// NewRootCmd creates the root command and its subcommands
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "course-scraper",
		Short: "Scrape course search results into a deduplicated CSV store",
		Long: `A tool that fetches course search results, extracts one record per course
and merges them into a CSV store keyed by course code. Records already stored
are never overwritten.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&flagConfig, "config", "", "Path to a YAML config file")
	cmd.PersistentFlags().StringVar(&flagStore, "store", "", "CSV store path (overrides config)")
	cmd.PersistentFlags().BoolVar(&flagVerbose, "verbose", false, "Enable verbose logging")

	cmd.AddCommand(newScrapeCmd(), newListCmd(), newDeleteCmd(), newServeCmd())
	return cmd
}

func newScrapeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "scrape <query...>",
		Short: "Fetch results for a query and merge them into the store",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runScrape,
	}
}

func newListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "Print stored courses",
		Args:  cobra.NoArgs,
		RunE:  runList,
	}
	cmd.Flags().StringVar(&flagFormat, "format", "text", "Output format: text or json")
	cmd.Flags().StringVar(&flagSort, "sort", "stored", "Sort order: stored, timestamp or code")
	return cmd
}

func newDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <course-code>",
		Short: "Remove every stored row for a course code",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runDelete,
	}
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API until interrupted",
		Args:  cobra.NoArgs,
		RunE:  runServe,
	}
}

// setup loads configuration, applies flag overrides and installs the logger
func setup() (*config.Config, error) {
	cfg, err := config.Load(flagConfig)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if flagStore != "" {
		cfg.StorePath = flagStore
	}
	if flagVerbose {
		cfg.LogLevel = "debug"
	}

	level := logger.ParseLevel(cfg.LogLevel)
	if cfg.PrettyLog {
		logger.SetDefault(logger.NewPretty(level, os.Stderr))
	} else {
		logger.SetDefault(logger.New(level, os.Stderr))
	}
	return cfg, nil
}

func openStore(cfg *config.Config) (*storage.Store, error) {
	store, err := storage.New(cfg.StorePath)
	if err != nil {
		return nil, fmt.Errorf("initializing storage: %w", err)
	}
	return store, nil
}

func runScrape(cmd *cobra.Command, args []string) error {
	cfg, err := setup()
	if err != nil {
		return err
	}
	store, err := openStore(cfg)
	if err != nil {
		return err
	}

	query := strings.Join(args, " ")
	sc := scraper.New(cfg.ScraperOptions()...)

	if flagVerbose {
		fmt.Fprintf(cmd.ErrOrStderr(), "Fetching %s\n", sc.BuildURL(query))
	}

	start := time.Now()
	report, err := runner.Pipeline(sc, store)(cmd.Context(), query)
	logger.RecordTiming("run.duration", time.Since(start))
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Fetched %d, appended %d, duplicates %d, skipped %d\n",
		report.Fetched, report.Appended, report.Duplicates, report.Skipped)
	return nil
}

func runList(cmd *cobra.Command, args []string) error {
	format := OutputFormat(strings.ToLower(flagFormat))
	if format != FormatText && format != FormatJSON {
		return fmt.Errorf("invalid format: %s (must be 'text' or 'json')", flagFormat)
	}
	order := SortOrder(strings.ToLower(flagSort))
	if !order.valid() {
		return fmt.Errorf("invalid sort: %s (must be 'stored', 'timestamp' or 'code')", flagSort)
	}

	cfg, err := setup()
	if err != nil {
		return err
	}
	store, err := openStore(cfg)
	if err != nil {
		return err
	}

	records, err := store.ReadAll()
	if err != nil {
		return fmt.Errorf("reading store: %w", err)
	}
	sortRecords(records, order)

	result := &OutputResult{
		ListedAt: time.Now().UTC(),
		Store:    store.Path(),
		Count:    len(records),
		Records:  records,
	}
	if err := WriteOutput(cmd.OutOrStdout(), result, format, flagVerbose); err != nil {
		return fmt.Errorf("writing output: %w", err)
	}
	return nil
}

func runDelete(cmd *cobra.Command, args []string) error {
	cfg, err := setup()
	if err != nil {
		return err
	}
	store, err := openStore(cfg)
	if err != nil {
		return err
	}

	code := strings.Join(args, " ")
	if !store.DeleteByKey(code) {
		return fmt.Errorf("deleting %q failed", code)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s\n", code)
	return nil
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := setup()
	if err != nil {
		return err
	}
	store, err := openStore(cfg)
	if err != nil {
		return err
	}

	sc := scraper.New(cfg.ScraperOptions()...)
	pool := runner.New(runner.Pipeline(sc, store), runner.Options{
		Workers:   cfg.Workers,
		QueueSize: cfg.QueueSize,
	})
	srv := server.New(cfg.ListenAddr, server.Deps{
		Store:     store,
		Runs:      pool,
		StartTime: time.Now(),
	})

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	var serveErr error
	select {
	case serveErr = <-errCh:
	case <-ctx.Done():
		logger.Info("Shutdown signal received", nil)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Stop(shutdownCtx); err != nil {
		serveErr = errors.Join(serveErr, fmt.Errorf("stopping server: %w", err))
	}
	if err := pool.Close(shutdownCtx); err != nil {
		serveErr = errors.Join(serveErr, fmt.Errorf("draining runs: %w", err))
	}
	return serveErr
}

// Execute runs the CLI
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(ExitError)
	}
}
