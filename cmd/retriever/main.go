// Package main is the retriever CLI entry point.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/hyperjump/retriever/internal/cache"
	"github.com/hyperjump/retriever/internal/cli"
	"github.com/hyperjump/retriever/internal/config"
	"github.com/hyperjump/retriever/internal/embedding"
	"github.com/hyperjump/retriever/internal/indexer"
	"github.com/hyperjump/retriever/internal/keyword"
	"github.com/hyperjump/retriever/internal/loader"
	"github.com/hyperjump/retriever/internal/models"
	"github.com/hyperjump/retriever/internal/retrieval"
	"github.com/hyperjump/retriever/internal/server"
	"github.com/hyperjump/retriever/internal/watcher"
	"github.com/hyperjump/retriever/pkg/utils"
)

var version = "dev"

const defaultConfigPath = "/usr/local/etc/retriever/config.yaml"

// loadConfig loads config from path. When path is the default, config.yaml in the
// current directory wins if it exists, so running from a project dir uses its config.
// A missing default config is not an error: built-in defaults are used.
// Returns the config and the path that was actually loaded ("" for defaults).
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
		if _, statErr := os.Stat(path); os.IsNotExist(statErr) {
			cfg := &config.Config{}
			config.ApplyDefaults(cfg)
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
	_ = godotenv.Load()

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}
	command := os.Args[1]
	switch command {
	case "index":
		runIndex()
	case "query":
		runQuery()
	case "serve", "server":
		runServe()
	case "status":
		runStatus()
	case "clear-cache":
		runClearCache()
	case "version", "--version", "-v":
		fmt.Printf("retriever version %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

// commonFlags registers the flags every command accepts.
type commonFlags struct {
	configPath *string
	debug      *bool
	output     *string
}

func registerCommon(fs *flag.FlagSet) commonFlags {
	return commonFlags{
		configPath: fs.String("config", defaultConfigPath, "config file path"),
		debug:      fs.Bool("debug", false, "enable debug logging"),
		output:     fs.String("output", "text", "output format: text or json"),
	}
}

// setup loads config, builds the logger, and parses the output format. It exits on failure.
func setup(flags commonFlags) (*config.Config, *zap.Logger, cli.OutputFormat) {
	cfg, resolved, err := loadConfig(*flags.configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	format, err := cli.ParseOutputFormat(*flags.output)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
	debugMode := cfg.Debug || *flags.debug
	logger, err := utils.NewLogger(debugMode)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	logger.Debug("config loaded",
		zap.String("config_path", resolved),
		zap.Bool("debug", debugMode),
		zap.String("cache_path", cfg.Cache.Path))
	return cfg, logger, format
}

func runIndex() {
	fs := flag.NewFlagSet("index", flag.ExitOnError)
	flags := registerCommon(fs)
	_ = fs.Parse(argsReorder(os.Args[2:]))

	if fs.NArg() < 1 {
		fmt.Println("Usage: retriever index [flags] <file-or-directory>...")
		os.Exit(1)
	}
	cfg, logger, format := setup(flags)
	defer logger.Sync()

	components := initializeComponents(cfg, logger)
	defer components.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	docs, err := components.Loader.LoadPaths(ctx, fs.Args())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Loading documents failed: %v\n", err)
		os.Exit(1)
	}
	if len(docs) == 0 {
		fmt.Fprintf(os.Stderr, "No documents found (extensions: %s)\n", strings.Join(cfg.Loader.Extensions, ", "))
		os.Exit(1)
	}
	logger.Info("Documents loaded", zap.Int("documents", len(docs)))

	stats, err := components.Engine.Build(ctx, docs)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Indexing failed: %v\n", err)
		os.Exit(1)
	}
	if err := cli.WriteBuildStats(os.Stdout, stats, format); err != nil {
		fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
		os.Exit(1)
	}
}

// buildQuery joins all positional args with spaces so multi-word queries work the
// same with or without shell quoting.
func buildQuery(args []string) string {
	return strings.TrimSpace(strings.Join(args, " "))
}

// argsReorder moves flags that appear after positional arguments to the front so
// that flag.Parse sees them; the flag package stops at the first non-flag argument.
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

func printQueryUsage(fs *flag.FlagSet) {
	fmt.Fprintf(fs.Output(), "Usage: retriever query [flags] <text>\n\n")
	fmt.Fprintf(fs.Output(), "Query is all remaining arguments joined by spaces.\n\n")
	fs.PrintDefaults()
	fmt.Fprintf(fs.Output(), `
Results come from semantic search when the embedding model is available and from
keyword matching otherwise. Run "retriever index" first to build the index.

Examples:
  retriever query what is the refund policy
  retriever query -k 8 "quarterly revenue"
  retriever query -output json -server http://localhost:8080 onboarding checklist
`)
}

func runQuery() {
	fs := flag.NewFlagSet("query", flag.ExitOnError)
	flags := registerCommon(fs)
	k := fs.Int("k", 0, "number of chunks to return (default from config)")
	serverURL := fs.String("server", "", "server URL; empty queries the local index cache directly")
	fs.Usage = func() { printQueryUsage(fs) }
	_ = fs.Parse(argsReorder(os.Args[2:]))

	req := models.QueryRequest{Query: buildQuery(fs.Args()), K: *k}
	if req.Query == "" {
		printQueryUsage(fs)
		os.Exit(1)
	}
	cfg, logger, format := setup(flags)
	defer logger.Sync()

	if err := req.Validate(cfg.Search.DefaultK, cfg.Search.MaxK); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}

	var response *models.QueryResponse
	var err error
	if *serverURL != "" {
		response, err = queryViaHTTP(*serverURL, &req)
	} else {
		components := initializeComponents(cfg, logger)
		defer components.Close()
		response, err = components.Engine.Search(context.Background(), req.Query, req.K)
	}
	if err != nil {
		if errors.Is(err, retrieval.ErrIndexUnavailable) {
			fmt.Fprintf(os.Stderr, "%v\n", retrieval.ErrIndexUnavailable)
		} else {
			fmt.Fprintf(os.Stderr, "Query failed: %v\n", err)
		}
		os.Exit(1)
	}
	if err := cli.WriteQueryResponse(os.Stdout, response, format); err != nil {
		fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
		os.Exit(1)
	}
}

func queryViaHTTP(serverURL string, req *models.QueryRequest) (*models.QueryResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}
	resp, err := http.Post(strings.TrimRight(serverURL, "/")+"/api/v1/query", "application/json", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusConflict {
		return nil, retrieval.ErrIndexUnavailable
	}
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("server returned %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
	}
	var response models.QueryResponse
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &response, nil
}

func runServe() {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	flags := registerCommon(fs)
	_ = fs.Parse(os.Args[2:])

	cfg, logger, _ := setup(flags)
	defer logger.Sync()

	components := initializeComponents(cfg, logger)
	defer components.Close()

	state := components.Engine.Load()
	logger.Info("Index state", zap.Stringer("state", state), zap.String("cache_path", cfg.Cache.Path))
	if state == retrieval.StateUnavailable {
		logger.Warn("No index loaded; queries fail until an index is built",
			zap.String("hint", "run \"retriever index <paths>\" or POST /api/v1/index"))
	}

	watchCtx, watchCancel := context.WithCancel(context.Background())
	defer watchCancel()
	if cfg.Server.WatchCacheOrDefault() {
		cacheWatch := watcher.NewWatcher(cfg.Cache.Path, func(ev watcher.Event) {
			onCacheChange(logger, components, ev)
		}, watcher.WithLogger(logger))
		if err := cacheWatch.Start(watchCtx); err != nil {
			logger.Warn("Cache watcher not started", zap.Error(err))
		} else {
			defer cacheWatch.Stop()
		}
	}

	srv := server.NewServer(components.Engine, components.Cache, cfg, logger)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down...")
	watchCancel()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Stop(ctx)
}

// onCacheChange logs rewrites of the cache file made by another process. The running
// index is not reloaded.
func onCacheChange(logger *zap.Logger, c *Components, ev watcher.Event) {
	if ev.Removed {
		logger.Info("Index cache removed; the loaded index stays in memory", zap.String("path", ev.Path))
		return
	}
	info, err := c.Cache.Stat()
	if err != nil {
		logger.Debug("Index cache changed but cannot be read", zap.Error(err))
		return
	}
	if !rewrittenExternally(info, c.Engine.Stats()) {
		logger.Debug("Index cache written by this server", zap.String("path", ev.Path))
		return
	}
	logger.Info("Index cache rewritten; restart to load",
		zap.String("path", ev.Path),
		zap.Time("modified_at", info.ModTime))
}

// rewrittenExternally reports whether the cache file is newer than the installed index.
func rewrittenExternally(info cache.Info, stats retrieval.Stats) bool {
	if stats.SavedAt.IsZero() {
		return true
	}
	return info.ModTime.After(stats.SavedAt)
}

func runStatus() {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	flags := registerCommon(fs)
	_ = fs.Parse(os.Args[2:])

	cfg, logger, format := setup(flags)
	defer logger.Sync()

	components := initializeComponents(cfg, logger)
	defer components.Close()

	components.Engine.Load()
	var info *cache.Info
	if i, err := components.Cache.Stat(); err == nil {
		info = &i
	}
	if err := cli.WriteStatus(os.Stdout, statusReport(cfg, components.Engine.Stats(), info), format); err != nil {
		fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
		os.Exit(1)
	}
}

// statusReport flattens engine, cache, and config state for the status command.
func statusReport(cfg *config.Config, stats retrieval.Stats, info *cache.Info) map[string]interface{} {
	report := map[string]interface{}{
		"state":              stats.State.String(),
		"entries":            stats.Entries,
		"embedding_provider": cfg.Embedding.Provider,
		"keyword_engine":     cfg.Keyword.Engine,
		"chunk_size":         cfg.Chunking.ChunkSize,
		"chunk_overlap":      cfg.Chunking.ChunkOverlap,
		"cache_path":         cfg.Cache.Path,
	}
	if stats.Dimensions > 0 {
		report["dimensions"] = stats.Dimensions
	}
	if !stats.SavedAt.IsZero() {
		report["saved_at"] = stats.SavedAt.Format(time.RFC3339)
	}
	if info != nil {
		report["cache_size_bytes"] = info.SizeBytes
		report["cache_modified_at"] = info.ModTime.Format(time.RFC3339)
	}
	return report
}

func runClearCache() {
	fs := flag.NewFlagSet("clear-cache", flag.ExitOnError)
	flags := registerCommon(fs)
	_ = fs.Parse(os.Args[2:])

	cfg, logger, _ := setup(flags)
	defer logger.Sync()

	if err := cache.NewManager(cfg.Cache.Path, logger).Remove(); err != nil {
		fmt.Fprintf(os.Stderr, "Clear cache failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Index cache cleared: %s\n", cfg.Cache.Path)
}

// Components holds initialized services.
type Components struct {
	Cache  *cache.Manager
	Engine *retrieval.Engine
	Loader *loader.Loader
}

func (c *Components) Close() {
	if c.Engine != nil {
		_ = c.Engine.Close()
	}
}

// initializeComponents wires the engine. Nothing expensive happens here: the cache is
// read on first use and the embedding model on first embed.
func initializeComponents(cfg *config.Config, logger *zap.Logger) *Components {
	provider := embedding.NewProvider(embedding.NewFactory(&cfg.Embedding), embedding.WithLogger(logger))
	cacheMgr := cache.NewManager(cfg.Cache.Path, logger)

	opts := []retrieval.Option{
		retrieval.WithLogger(logger),
		retrieval.WithChunker(indexer.NewChunker(cfg.Chunking.ChunkSize, cfg.Chunking.ChunkOverlap)),
		retrieval.WithBatchSize(cfg.Embedding.BatchSize),
	}
	kwFactory, err := keyword.NewFactory(cfg.Keyword.Engine, cfg.Keyword.Fuzziness)
	if err != nil {
		logger.Warn("Keyword engine unavailable, using substring scoring", zap.Error(err))
	} else {
		opts = append(opts, retrieval.WithKeywordSearcher(kwFactory))
	}

	return &Components{
		Cache:  cacheMgr,
		Engine: retrieval.NewEngine(provider, cacheMgr, opts...),
		Loader: loader.New(cfg.Loader.Extensions, loader.WithLogger(logger)),
	}
}

func printUsage() {
	fmt.Println(`retriever - Local document retrieval for question answering

Usage:
  retriever index [flags] <path>...     Build the index from files and directories
  retriever query [flags] <text>        Retrieve the chunks most relevant to a question
  retriever serve [flags]               Start the HTTP server
  retriever status [flags]              Show index and cache status
  retriever clear-cache [flags]         Delete the index cache file
  retriever version                     Show version
  retriever help                        Show this help

Flags (all commands):
  --config string    Config file path (default: /usr/local/etc/retriever/config.yaml)
  --debug            Enable debug logging
  --output string    Output format: text or json (default: text)

Query Flags:
  --k int            Number of chunks to return (default from config, 4)
  --server string    Query a running server instead of the local cache

Environment:
  A .env file in the current directory is loaded on start. The OpenAI provider
  reads its API key from the variable named by embedding.openai.api_key_env.

Examples:
  retriever index ./docs handbook.pdf
  retriever query "how do I request leave"
  retriever query -k 8 -output json quarterly revenue
  retriever serve --config ./config.yaml
  retriever status --output json
  retriever clear-cache`)
}
