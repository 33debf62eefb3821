package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/axelhamil/vinted-ai-assistant-sub000/internal/cache"
	"github.com/axelhamil/vinted-ai-assistant-sub000/internal/config"
	"github.com/axelhamil/vinted-ai-assistant-sub000/internal/llm"
	"github.com/axelhamil/vinted-ai-assistant-sub000/internal/photos"
	"github.com/axelhamil/vinted-ai-assistant-sub000/internal/research"
	"github.com/axelhamil/vinted-ai-assistant-sub000/internal/scheduler"
	"github.com/axelhamil/vinted-ai-assistant-sub000/internal/sources"
	"github.com/axelhamil/vinted-ai-assistant-sub000/internal/storage"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var errUnavailable = errors.New("no source is available")

// stringList collects a repeatable flag.
type stringList []string

func (s *stringList) String() string { return strings.Join(*s, ",") }

func (s *stringList) Set(v string) error {
	*s = append(*s, v)
	return nil
}

type options struct {
	configPath string
	inputPath  string
	check      bool
	input      research.Input
}

func main() {
	var opts options
	var photoRefs stringList
	flag.StringVar(&opts.configPath, "config", "", "Path to a TOML config file")
	flag.StringVar(&opts.inputPath, "input", "", "Read the research input from a JSON file")
	flag.Var(&photoRefs, "photo", "Photo URL or data: URI (repeatable)")
	flag.StringVar(&opts.input.Title, "title", "", "Listing title")
	flag.StringVar(&opts.input.Brand, "brand", "", "Brand, if known")
	flag.Float64Var(&opts.input.Price, "price", 0, "Asking price")
	flag.StringVar(&opts.input.Condition, "condition", "", "Item condition")
	flag.StringVar(&opts.input.Size, "size", "", "Item size")
	flag.BoolVar(&opts.check, "check", false, "Only report source availability")
	flag.Parse()
	opts.input.Photos = photoRefs

	if err := run(opts); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run does all the work so deferred cleanup happens before main exits.
func run(opts options) error {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	zerolog.SetGlobalLevel(cfg.Level())
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.DefaultContextLogger = &log.Logger

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	resultCache := newResultCache(ctx, cfg)
	if rc, ok := resultCache.(*cache.RedisCache); ok {
		defer rc.Close()
	}

	clientOpts := sources.ClientOpts{
		Timeout:  cfg.Fetch.Timeout.Duration,
		Cache:    resultCache,
		CacheTTL: cfg.Fetch.CacheTTL.Duration,
	}
	clients, err := sources.NewClients(cfg.Sources, clientOpts)
	if err != nil {
		return err
	}
	srcs := make([]sources.Source, len(clients))
	for i, c := range clients {
		srcs[i] = c
	}

	if opts.check {
		available := research.AnyAvailable(ctx, srcs)
		fmt.Printf("available: %t\n", available)
		if !available {
			return errUnavailable
		}
		return nil
	}

	if err := cfg.RequireAPIKey(); err != nil {
		return err
	}

	gemini, err := llm.NewGeminiClient(ctx, llm.GeminiConfig{
		APIKey: cfg.Gemini.APIKey,
		Model:  cfg.Gemini.Model,
	})
	if err != nil {
		return err
	}

	featureExtractor := llm.NewFeatureExtractor(gemini, llm.ExtractorOpts{
		Model:     cfg.Gemini.Model,
		WebSearch: cfg.Gemini.WebSearch,
	})
	var extractor llm.Extractor = featureExtractor
	if cfg.Storage.SQLitePath != "" {
		store, err := storage.NewSQLiteStore(cfg.Storage.SQLitePath)
		if err != nil {
			return fmt.Errorf("failed to open feature cache: %w", err)
		}
		defer store.Close()

		ttl := cfg.Storage.FeatureCacheTTL.Duration
		if n, err := store.PurgeFeatureCache(time.Now().Add(-ttl)); err != nil {
			log.Warn().Err(err).Msg("failed to purge feature cache")
		} else if n > 0 {
			log.Info().Int64("purged", n).Msg("purged expired feature cache entries")
		}
		extractor = llm.NewCachedExtractor(featureExtractor, store, ttl)
		log.Info().Str("dbPath", cfg.Storage.SQLitePath).Msg("feature cache initialized")
	}

	svc, err := research.NewService(research.Deps{
		Photos: photos.NewLoader().
			WithTimeout(cfg.Photos.Timeout.Duration).
			WithMaxSize(cfg.Photos.MaxSize),
		Extractor: extractor,
		Verifier: llm.NewMatchVerifier(gemini, llm.VerifierOpts{
			BatchSize:   cfg.Verify.BatchSize,
			Parallelism: cfg.Verify.Parallelism,
			Model:       cfg.Gemini.VerifyModel,
		}),
		Sources: srcs,
		Scheduler: scheduler.New(scheduler.Config{
			MaxConcurrent: cfg.Scheduler.MaxConcurrent,
			MinSpacing:    cfg.Scheduler.MinSpacing.Duration,
			Burst:         cfg.Scheduler.Burst,
		}),
		// Retail lookups use their own retrying client.
		Retail:     research.NewRetailResolver(sources.NewRetailClient(clientOpts)),
		MaxResults: cfg.Fetch.MaxResults,
	})
	if err != nil {
		return err
	}

	in := opts.input
	if opts.inputPath != "" {
		in, err = readInput(opts.inputPath)
		if err != nil {
			return err
		}
	}

	result, err := svc.Research(ctx, in)
	if err != nil {
		return err
	}

	usage := gemini.TotalUsage()
	log.Info().
		Int("llmCalls", usage.Calls).
		Int64("totalTokens", usage.TotalTokens).
		Float64("costUSD", usage.CostUSD).
		Msg("llm usage")

	jsonBytes, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode result: %w", err)
	}
	fmt.Println(string(jsonBytes))
	return nil
}

// newResultCache returns the shared Redis cache when configured, falling
// back to a process-local one.
func newResultCache(ctx context.Context, cfg *config.Config) cache.Cache {
	if cfg.Redis.Addr == "" {
		return cache.NewMemoryCache()
	}
	rc, err := cache.NewRedisCache(ctx, cache.RedisConfig{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
		Expiry:   cfg.Redis.Expiry.Duration,
	})
	if err != nil {
		log.Warn().Err(err).Str("addr", cfg.Redis.Addr).Msg("redis unavailable, using in-memory result cache")
		return cache.NewMemoryCache()
	}
	log.Info().Str("addr", cfg.Redis.Addr).Msg("using redis result cache")
	return rc
}

func readInput(path string) (research.Input, error) {
	var in research.Input
	data, err := os.ReadFile(path)
	if err != nil {
		return in, fmt.Errorf("failed to read input: %w", err)
	}
	if err := json.Unmarshal(data, &in); err != nil {
		return in, fmt.Errorf("failed to parse input %s: %w", path, err)
	}
	return in, nil
}
