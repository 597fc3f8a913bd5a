// Package main is the tanya CLI entry point.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/hyperjump/tanya/internal/cli"
	"github.com/hyperjump/tanya/internal/config"
	"github.com/hyperjump/tanya/internal/indexer"
	"github.com/hyperjump/tanya/internal/models"
	"github.com/hyperjump/tanya/internal/server"
	"github.com/hyperjump/tanya/internal/watcher"
	"github.com/hyperjump/tanya/pkg/utils"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

var version = "dev"

const (
	defaultConfigPath = "/usr/local/etc/tanya/config.yaml"
	defaultServerURL  = "http://localhost:8080"
)

// loadConfig loads config from path. When path is the default, config.yaml in the current directory
// wins if it exists; when neither file exists the config comes from the environment alone.
// Returns the config and the path that was actually loaded ("" when no file was read).
func loadConfig(path string) (*config.Config, string, error) {
	if path == defaultConfigPath {
		if cwd, cwdErr := os.Getwd(); cwdErr == nil {
			fallback := filepath.Join(cwd, "config.yaml")
			if _, statErr := os.Stat(fallback); statErr == nil {
				cfg, loadErr := config.Load(fallback)
				if loadErr != nil {
					return nil, "", loadErr
				}
				return cfg, fallback, nil
			}
		}
		if _, statErr := os.Stat(path); statErr != nil {
			cfg, err := config.Load("")
			if err != nil {
				return nil, "", err
			}
			return cfg, "", nil
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

func main() {
	// .env is optional; real environment variables take precedence.
	_ = godotenv.Load()

	if len(os.Args) < 2 {
		printUsage(os.Stdout)
		os.Exit(1)
	}
	command, args := os.Args[1], os.Args[2:]
	var code int
	switch command {
	case "ingest":
		code = runIngest(args)
	case "serve", "server":
		code = runServe(args)
	case "ask":
		code = runAsk(args)
	case "grep":
		code = runGrep(args)
	case "status":
		code = runStatus(args)
	case "watch":
		code = runWatch(args)
	case "version", "--version", "-v":
		fmt.Printf("tanya version %s\n", version)
	case "help", "--help", "-h":
		printUsage(os.Stdout)
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage(os.Stdout)
		code = 1
	}
	os.Exit(code)
}

// setup loads config and creates the logger shared by every command.
func setup(configPath string, debug bool) (*config.Config, string, *zap.Logger, error) {
	cfg, resolved, err := loadConfig(configPath)
	if err != nil {
		return nil, "", nil, fmt.Errorf("failed to load config: %w", err)
	}
	logger, err := utils.NewLogger(cfg.Debug || debug)
	if err != nil {
		return nil, "", nil, fmt.Errorf("failed to create logger: %w", err)
	}
	logger.Debug("config loaded", zap.String("config_path", resolved))
	return cfg, resolved, logger, nil
}

// exitCode maps a run error to the process status: 1 for configuration problems, 0 otherwise.
// Per-document and per-chunk failures are recorded in the ledger, not reported here.
func exitCode(err error) int {
	if errors.Is(err, models.ErrConfiguration) {
		return 1
	}
	return 0
}

func runIngest(args []string) int {
	fs := flag.NewFlagSet("ingest", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging")
	outputFormat := fs.String("output", "text", "output format: text or json")
	noProgress := fs.Bool("no-progress", false, "disable the progress bar")
	_ = fs.Parse(args)

	format, err := cli.ParseOutputFormat(*outputFormat)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	cfg, _, logger, err := setup(*configPath, *debug)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	defer logger.Sync()

	if err := cfg.ValidateIngest(); err != nil {
		logger.Error("invalid configuration", zap.Error(err))
		return 1
	}

	var extra []indexer.IndexerOption
	progress := &ingestProgress{}
	if !*noProgress && progressEnabled() {
		extra = append(extra, indexer.WithProgress(progress.report))
	}
	components, err := initializeComponents(cfg, logger, extra...)
	if err != nil {
		logger.Error("failed to initialize", zap.String("kind", models.KindOf(err)), zap.Error(err))
		return 1
	}
	defer func() {
		if err := components.Close(); err != nil {
			logger.Warn("close failed", zap.Error(err))
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	docs, err := components.Fetcher.Collect(ctx, cfg.Fetch.WorkDir)
	if err != nil {
		logger.Error("collecting documents failed", zap.String("kind", models.KindOf(err)), zap.Error(err))
		return exitCode(err)
	}
	logger.Info("documents collected", zap.Int("count", len(docs)), zap.String("work_dir", cfg.Fetch.WorkDir))

	stats, err := components.Indexer.Ingest(ctx, docs)
	progress.finish()
	if err != nil {
		logger.Warn("ingestion stopped early", zap.Error(err))
	}
	if werr := cli.WriteIngestStats(os.Stdout, stats, format); werr != nil {
		logger.Error("output failed", zap.Error(werr))
	}
	return exitCode(err)
}

func runServe(args []string) int {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging")
	watch := fs.Bool("watch", false, "ingest files dropped into the watch directories")
	_ = fs.Parse(args)

	cfg, resolvedConfigPath, logger, err := setup(*configPath, *debug)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	defer logger.Sync()

	// Retrieval must work; a missing chat key only disables answer generation.
	if err := cfg.ValidateRetrieval(); err != nil {
		logger.Error("invalid configuration", zap.Error(err))
		return 1
	}
	if err := cfg.ValidateQuery(); err != nil {
		logger.Warn("queries will fail until generation is configured", zap.Error(err))
	}

	components, err := initializeComponents(cfg, logger, indexer.WithSkipUnchanged(true))
	if err != nil {
		logger.Error("failed to initialize", zap.String("kind", models.KindOf(err)), zap.Error(err))
		return 1
	}
	defer func() {
		if err := components.Close(); err != nil {
			logger.Warn("close failed", zap.Error(err))
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	opts := []server.Option{
		server.WithLedger(components.Ledger),
		server.WithVectorStore(components.Store),
		server.WithMetrics(components.Metrics),
		server.WithLogger(logger),
	}
	if components.KeywordIndex != nil {
		opts = append(opts, server.WithKeywordIndex(components.KeywordIndex))
	}
	if *watch {
		w := newDropWatcher(cfg, cfg.Watch.Directories, components, logger)
		if err := w.Start(ctx); err != nil {
			logger.Error("failed to start watcher", zap.Error(err))
			return 1
		}
		defer w.Stop()
		w.SyncExistingFiles()
		opts = append(opts, server.WithWatch(w, resolvedConfigPath))
	}

	srv := server.NewServer(components.Engine, cfg, opts...)
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		logger.Error("server failed", zap.Error(err))
		return 1
	}

	logger.Info("Shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Stop(shutdownCtx); err != nil {
		logger.Warn("shutdown failed", zap.Error(err))
	}
	return 0
}

// newDropWatcher builds a watcher that ingests each settled file, skipping files whose content is unchanged.
func newDropWatcher(cfg *config.Config, roots []string, c *Components, logger *zap.Logger) *watcher.Watcher {
	return watcher.NewWatcher(roots, cfg.Watch.Extensions,
		func(ctx context.Context, path string) {
			stats, err := c.Indexer.IngestFile(ctx, path)
			if err != nil {
				logger.Warn("watch ingest failed", zap.String("path", path), zap.Error(err))
				return
			}
			logger.Info("watch ingest finished",
				zap.String("path", path),
				zap.Int("processed_chunks", stats.ProcessedChunks),
				zap.Int("failed_chunks", stats.FailedChunks),
				zap.Int("skipped_documents", stats.SkippedDocuments))
		},
		watcher.WithLogger(logger),
		watcher.WithRemoveHandler(func(path string) {
			logger.Info("watched file removed; indexed chunks are kept", zap.String("path", path))
		}),
	)
}

// buildQuery joins all positional args with spaces so multi-word questions
// work the same with or without shell quoting.
func buildQuery(args []string) string {
	return strings.TrimSpace(strings.Join(args, " "))
}

// argsReorder moves any flags (and their values) that appear after the positional
// arguments to the front of the slice so that flag.Parse() sees them. Go's flag package
// stops at the first non-flag argument.
func argsReorder(args []string) []string {
	for i, a := range args {
		if len(a) > 0 && a[0] == '-' {
			if i == 0 {
				return args
			}
			reordered := make([]string, 0, len(args))
			reordered = append(reordered, args[i:]...)
			reordered = append(reordered, args[:i]...)
			return reordered
		}
	}
	return args
}

func runAsk(args []string) int {
	return ask(argsReorder(args), os.Stdout, os.Stderr)
}

func ask(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("ask", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", defaultConfigPath, "config file path (direct mode)")
	serverURL := fs.String("server", defaultServerURL, "server URL (empty = query the vector store directly)")
	outputFormat := fs.String("output", "text", "output format: text or json")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	format, err := cli.ParseOutputFormat(*outputFormat)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}
	query := buildQuery(fs.Args())
	if query == "" {
		fmt.Fprintln(stderr, "Usage: tanya ask [flags] <question>")
		return 1
	}

	var answer *models.Answer
	if *serverURL != "" {
		answer, err = askViaHTTP(context.Background(), *serverURL, query)
		if err != nil {
			fmt.Fprintf(stderr, "Ask failed: %v\n", err)
			return 1
		}
	} else {
		cfg, _, logger, err := setup(*configPath, false)
		if err != nil {
			fmt.Fprintln(stderr, err)
			return 1
		}
		defer logger.Sync()
		if err := cfg.ValidateQuery(); err != nil {
			fmt.Fprintln(stderr, err)
			return 1
		}
		components, err := initializeComponents(cfg, logger)
		if err != nil {
			fmt.Fprintf(stderr, "Failed to initialize: %v\n", err)
			return 1
		}
		defer components.Close()
		answer, err = components.Engine.Answer(context.Background(), query)
		if err != nil {
			fmt.Fprintf(stderr, "Ask failed: %s\n", models.KindMessage(err))
			logger.Debug("ask failed", zap.Error(err))
			return 1
		}
	}
	if err := cli.WriteAnswer(stdout, answer, format); err != nil {
		fmt.Fprintf(stderr, "Output failed: %v\n", err)
		return 1
	}
	return 0
}

func runGrep(args []string) int {
	return grep(argsReorder(args), os.Stdout, os.Stderr)
}

func grep(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("grep", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", defaultConfigPath, "config file path (direct mode)")
	serverURL := fs.String("server", defaultServerURL, "server URL (empty = open the keyword index directly)")
	outputFormat := fs.String("output", "text", "output format: text or json")
	limit := fs.Int("limit", 10, "maximum number of chunks")
	fuzzy := fs.Bool("fuzzy", false, "tolerate typos")
	source := fs.String("source", "", "only chunks from this document")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	format, err := cli.ParseOutputFormat(*outputFormat)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}
	query := buildQuery(fs.Args())
	if query == "" {
		fmt.Fprintln(stderr, "Usage: tanya grep [flags] <terms>")
		return 1
	}

	opts := grepOptions{Limit: *limit, Fuzzy: *fuzzy, Source: *source}
	var hits []models.KeywordHit
	if *serverURL != "" {
		hits, err = grepViaHTTP(context.Background(), *serverURL, query, opts)
	} else {
		hits, err = grepDirect(*configPath, query, opts)
	}
	if err != nil {
		fmt.Fprintf(stderr, "Grep failed: %v\n", err)
		return 1
	}
	if err := cli.WriteKeywordHits(stdout, query, hits, format); err != nil {
		fmt.Fprintf(stderr, "Output failed: %v\n", err)
		return 1
	}
	return 0
}

func runStatus(args []string) int {
	return status(args, os.Stdout, os.Stderr)
}

func status(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("status", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", defaultConfigPath, "config file path (direct mode)")
	serverURL := fs.String("server", defaultServerURL, "server URL (empty = read the ledger directly)")
	outputFormat := fs.String("output", "text", "output format: text or json")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	format, err := cli.ParseOutputFormat(*outputFormat)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}

	var st *cli.Status
	if *serverURL != "" {
		st, err = statusViaHTTP(context.Background(), *serverURL)
	} else {
		st, err = statusDirect(*configPath)
	}
	if err != nil {
		fmt.Fprintf(stderr, "Status failed: %v\n", err)
		return 1
	}
	if err := cli.WriteStatus(stdout, st, format); err != nil {
		fmt.Fprintf(stderr, "Output failed: %v\n", err)
		return 1
	}
	return 0
}

// watchRoots picks the directories for `tanya watch`: positional args, else watch.directories, else fetch.work_dir.
func watchRoots(args []string, cfg *config.Config) []string {
	if len(args) > 0 {
		roots := make([]string, 0, len(args))
		for _, a := range args {
			if abs, err := filepath.Abs(a); err == nil {
				a = abs
			}
			roots = append(roots, a)
		}
		return roots
	}
	if len(cfg.Watch.Directories) > 0 {
		return cfg.Watch.Directories
	}
	return []string{cfg.Fetch.WorkDir}
}

func runWatch(args []string) int {
	fs := flag.NewFlagSet("watch", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging")
	_ = fs.Parse(argsReorder(args))

	cfg, _, logger, err := setup(*configPath, *debug)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	defer logger.Sync()

	if err := cfg.ValidateIngest(); err != nil {
		logger.Error("invalid configuration", zap.Error(err))
		return 1
	}
	components, err := initializeComponents(cfg, logger, indexer.WithSkipUnchanged(true))
	if err != nil {
		logger.Error("failed to initialize", zap.String("kind", models.KindOf(err)), zap.Error(err))
		return 1
	}
	defer func() {
		if err := components.Close(); err != nil {
			logger.Warn("close failed", zap.Error(err))
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	roots := watchRoots(fs.Args(), cfg)
	w := newDropWatcher(cfg, roots, components, logger)
	if err := w.Start(ctx); err != nil {
		logger.Error("failed to start watcher", zap.Error(err))
		return 1
	}
	w.SyncExistingFiles()
	logger.Info("watching for documents", zap.Strings("directories", w.Directories()))

	<-ctx.Done()
	logger.Info("Shutting down...")
	w.Stop()
	return 0
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, `tanya - answer questions from a PDF collection

Usage:
  tanya ingest [flags]            Download, extract, chunk, embed and upsert documents
  tanya serve [flags]             Start the HTTP query server
  tanya ask [flags] <question>    Ask a question
  tanya grep [flags] <terms>      Keyword lookup over indexed chunks
  tanya status [flags]            Show ledger, index and configuration status
  tanya watch [flags] [dir...]    Ingest files dropped into directories
  tanya version                   Show version
  tanya help                      Show this help

Common Flags:
  --config string    Config file path (default: /usr/local/etc/tanya/config.yaml, then ./config.yaml).
                     Without a file, configuration comes from the environment and .env.
  --debug            Enable debug logging

Ingest Flags:
  --output string    Summary format: text or json (default: text)
  --no-progress      Disable the progress bar

Serve Flags:
  --watch            Also ingest files dropped into watch.directories

Ask / Grep / Status Flags:
  --server string    Server URL (default: http://localhost:8080). Use --server "" to work directly
                     against the configured stores when no server is running.
  --output string    Output format: text or json (default: text)

Grep Flags:
  --limit int        Maximum number of chunks (default: 10)
  --fuzzy            Tolerate typos
  --source string    Only chunks from this document

Examples:
  tanya ingest
  tanya serve --watch
  tanya ask "When do applications close?"
  tanya ask --server "" what is the eligibility criteria
  tanya grep --fuzzy eligibilty
  tanya status --output json
  tanya watch ./inbox`)
}
