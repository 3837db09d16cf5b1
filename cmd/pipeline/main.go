// Command pipeline is the operator CLI: manual runs, status inspection, and
// feed subscription management.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"sort"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"research-pipeline/internal/config"
	"research-pipeline/internal/domain/entity"
	pgRepo "research-pipeline/internal/infra/adapter/persistence/postgres"
	"research-pipeline/internal/infra/db"
	"research-pipeline/internal/infra/feedsource"
	"research-pipeline/internal/infra/lock"
	"research-pipeline/internal/observability/logging"
	feedsUC "research-pipeline/internal/usecase/feeds"
	"research-pipeline/internal/usecase/pipeline"
)

const usage = `usage: pipeline <command> [flags]

commands:
  run      execute one pipeline run
  status   show pipeline state
  feeds    manage feed subscriptions (add, remove, list, import, export)
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	switch os.Args[1] {
	case "run":
		runCommand(os.Args[2:])
	case "status":
		statusCommand(os.Args[2:])
	case "feeds":
		feedsCommand(os.Args[2:])
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n%s", os.Args[1], usage)
		os.Exit(2)
	}
}

func runCommand(args []string) {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	dryRun := fs.Bool("dry-run", false, "preview candidates without processing or mutating state")
	limit := fs.Int("limit", 0, "cap the number of items processed (0 = unlimited)")
	verbose := fs.Bool("verbose", false, "per-item progress logging")
	force := fs.Bool("force", false, "proceed even when another run holds the lock")
	_ = fs.Parse(args)

	logger := logging.NewTextLogger(*verbose)
	slog.SetDefault(logger)

	env := setup(logger)
	defer env.cleanup()

	result, err := env.pipeline.Run(context.Background(), pipeline.Options{
		DryRun:  *dryRun,
		Limit:   *limit,
		Verbose: *verbose,
		Force:   *force,
	})
	if err != nil {
		var held *lock.ErrLockHeld
		if errors.As(err, &held) {
			fmt.Fprintf(os.Stderr, "another run is in progress (pid %d); use --force to override\n", held.PID)
			os.Exit(1)
		}
		var missing *pipeline.ErrMissingCapability
		if errors.As(err, &missing) {
			fmt.Fprintf(os.Stderr, "cannot run: %v\n", missing)
			os.Exit(1)
		}
		logger.Error("run failed", slog.Any("error", err))
		os.Exit(1)
	}

	if *dryRun {
		fmt.Printf("dry run: %d items would be processed\n", result.Skipped)
		return
	}
	fmt.Printf("processed %d (of which %d retries), failed %d, permanent failures %d\n",
		result.Processed, result.Retried, result.Failed, result.PermanentFailures)
	for _, failure := range result.Failures {
		fmt.Printf("  failed: %s: %s\n", failure.Entry.Title, failure.Message)
	}
}

func statusCommand(args []string) {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	_ = fs.Parse(args)

	logger := logging.NewTextLogger(false)
	slog.SetDefault(logger)

	env := setup(logger)
	defer env.cleanup()

	st, err := env.pipeline.Status(context.Background())
	if err != nil {
		logger.Error("status failed", slog.Any("error", err))
		os.Exit(1)
	}

	if st.LastSuccessfulRun != nil {
		fmt.Printf("last successful run: %s (%s ago)\n",
			st.LastSuccessfulRun.Format(time.RFC3339),
			time.Since(*st.LastSuccessfulRun).Round(time.Minute))
	} else {
		fmt.Println("last successful run: never")
	}
	fmt.Printf("pending new entries:  %d\n", st.PendingNew)
	fmt.Printf("due retries:          %d (queue depth %d)\n", st.DueRetries, st.RetryQueueDepth)
	fmt.Printf("processed total:      %d\n", st.ProcessedTotal)
	if pid, held := lock.New(lockPath()).HolderPID(); held {
		fmt.Printf("run lock:             held by pid %d\n", pid)
	} else {
		fmt.Println("run lock:             free")
	}
	fmt.Println("feeds:")
	for _, cat := range entity.Categories() {
		fmt.Printf("  %-10s %d\n", cat, st.FeedsByCategory[cat])
	}
}

func feedsCommand(args []string) {
	if len(args) < 1 {
		fmt.Fprintln(os.Stderr, "usage: pipeline feeds <add|remove|list|import|export> [flags]")
		os.Exit(2)
	}

	logger := logging.NewTextLogger(false)
	slog.SetDefault(logger)

	env := setup(logger)
	defer env.cleanup()
	ctx := context.Background()

	switch args[0] {
	case "add":
		fs := flag.NewFlagSet("feeds add", flag.ExitOnError)
		title := fs.String("title", "", "feed title (probed from the feed when empty)")
		category := fs.String("category", "", "articles, youtube, or podcasts (auto-detected when empty)")
		_ = fs.Parse(args[1:])
		if fs.NArg() != 1 {
			fmt.Fprintln(os.Stderr, "usage: pipeline feeds add [flags] <url>")
			os.Exit(2)
		}
		feed, err := env.feeds.Subscribe(ctx, fs.Arg(0), *title, *category)
		if err != nil {
			fmt.Fprintf(os.Stderr, "subscribe failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("subscribed %s (%s) as %s\n", feed.URL, feed.Title, feed.Category)

	case "remove":
		if len(args) != 2 {
			fmt.Fprintln(os.Stderr, "usage: pipeline feeds remove <url>")
			os.Exit(2)
		}
		if err := env.feeds.Unsubscribe(ctx, args[1]); err != nil {
			fmt.Fprintf(os.Stderr, "unsubscribe failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("unsubscribed %s\n", args[1])

	case "list":
		fs := flag.NewFlagSet("feeds list", flag.ExitOnError)
		category := fs.String("category", "", "filter by category")
		_ = fs.Parse(args[1:])
		feeds, err := env.feeds.List(ctx, *category)
		if err != nil {
			fmt.Fprintf(os.Stderr, "list failed: %v\n", err)
			os.Exit(1)
		}
		sort.Slice(feeds, func(i, j int) bool {
			if feeds[i].Category != feeds[j].Category {
				return feeds[i].Category < feeds[j].Category
			}
			return feeds[i].URL < feeds[j].URL
		})
		for _, feed := range feeds {
			fmt.Printf("%-10s %-40s %s\n", feed.Category, feed.Title, feed.URL)
		}

	case "import":
		if len(args) != 2 {
			fmt.Fprintln(os.Stderr, "usage: pipeline feeds import <file.opml>")
			os.Exit(2)
		}
		f, err := os.Open(args[1])
		if err != nil {
			fmt.Fprintf(os.Stderr, "import failed: %v\n", err)
			os.Exit(1)
		}
		defer func() { _ = f.Close() }()
		result, err := env.feeds.ImportOPML(ctx, f)
		if err != nil {
			fmt.Fprintf(os.Stderr, "import failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("imported %d feeds, skipped %d\n", result.Added, result.Skipped)

	case "export":
		var out io.Writer = os.Stdout
		if len(args) == 2 {
			f, err := os.Create(args[1])
			if err != nil {
				fmt.Fprintf(os.Stderr, "export failed: %v\n", err)
				os.Exit(1)
			}
			defer func() { _ = f.Close() }()
			out = f
		}
		if err := env.feeds.ExportOPML(ctx, out); err != nil {
			fmt.Fprintf(os.Stderr, "export failed: %v\n", err)
			os.Exit(1)
		}

	default:
		fmt.Fprintf(os.Stderr, "unknown feeds subcommand %q\n", args[0])
		os.Exit(2)
	}
}

// cliEnv bundles the wired services for one CLI invocation.
type cliEnv struct {
	pipeline *pipeline.Service
	feeds    *feedsUC.Service
	cleanup  func()
}

func setup(logger *slog.Logger) *cliEnv {
	database := db.Open()
	if err := db.MigrateUp(database); err != nil {
		logger.Error("migration failed", slog.Any("error", err))
		os.Exit(1)
	}

	fileCfg, err := config.Load(configDir())
	if err != nil {
		logger.Error("failed to load configuration", slog.Any("error", err))
		os.Exit(1)
	}

	httpClient := newHTTPClient()
	rssFetcher := feedsource.NewRSSFetcher(httpClient)

	feedRepo := pgRepo.NewFeedRepo(database)
	processedRepo := pgRepo.NewProcessedRepo(database)
	retryRepo := pgRepo.NewRetryRepo(database)
	runRepo := pgRepo.NewRunRepo(database)

	collector := feedsource.NewCollector(feedRepo, processedRepo, rssFetcher, logger)
	processor := buildProcessor(logger, fileCfg)
	runLock := lock.New(lockPath())

	notifyService, notifyCleanup := buildNotifyService(logger, fileCfg)

	svc := pipeline.NewService(pipeline.Deps{
		Processed:    processedRepo,
		Retries:      retryRepo,
		Runs:         runRepo,
		Feeds:        feedRepo,
		Source:       collector,
		Processor:    processor,
		Lock:         runLock,
		Notifier:     notifyService,
		Logger:       logger,
		BatchSize:    fileCfg.Processing.EvaluateBatchSize,
		BatchTimeout: fileCfg.Processing.EvaluateBatchTimeout,
	})

	feedService := feedsUC.NewService(feedRepo, rssFetcher, logger)

	return &cliEnv{
		pipeline: svc,
		feeds:    feedService,
		cleanup: func() {
			notifyCleanup()
			if err := database.Close(); err != nil {
				logger.Error("failed to close database", slog.Any("error", err))
			}
		},
	}
}

func configDir() string {
	if dir := os.Getenv("PIPELINE_CONFIG_DIR"); dir != "" {
		return dir
	}
	return "config"
}

func lockPath() string {
	if path := os.Getenv("PIPELINE_LOCK_FILE"); path != "" {
		return path
	}
	return "/tmp/research-pipeline.lock"
}

func newHTTPClient() *http.Client {
	return &http.Client{
		Timeout: 30 * time.Second,
		Transport: &http.Transport{
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
		},
	}
}
