// Package research runs the market-price research pipeline: identify the
// item from its photos, search every marketplace, verify which listings
// match and aggregate their prices.
package research

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"time"

	"github.com/axelhamil/vinted-ai-assistant-sub000/internal/llm"
	"github.com/axelhamil/vinted-ai-assistant-sub000/internal/market"
	"github.com/axelhamil/vinted-ai-assistant-sub000/internal/scheduler"
	"github.com/axelhamil/vinted-ai-assistant-sub000/internal/sources"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// DefaultMaxResults is the per-source listing cap.
const DefaultMaxResults = 20

// PhotoLoader resolves photo references into image bytes.
type PhotoLoader interface {
	LoadAll(ctx context.Context, refs []string) []llm.Image
}

// Deps are the collaborators of a Service.
type Deps struct {
	Photos    PhotoLoader
	Extractor llm.Extractor
	Verifier  llm.Verifier
	Sources   []sources.Source
	// Scheduler bounds the source fan-out. Nil uses scheduler defaults.
	Scheduler *scheduler.Scheduler
	// Retail resolves the reference new-item price. Nil skips it.
	Retail     *RetailResolver
	MaxResults int
}

// Service runs research requests.
type Service struct {
	photos     PhotoLoader
	extractor  llm.Extractor
	verifier   llm.Verifier
	sources    []sources.Source
	scheduler  *scheduler.Scheduler
	retail     *RetailResolver
	maxResults int
}

// NewService creates a Service.
func NewService(d Deps) (*Service, error) {
	if d.Photos == nil || d.Extractor == nil || d.Verifier == nil {
		return nil, errors.New("research: photo loader, extractor and verifier are required")
	}
	if len(d.Sources) == 0 {
		return nil, errors.New("research: at least one source is required")
	}

	s := &Service{
		photos:     d.Photos,
		extractor:  d.Extractor,
		verifier:   d.Verifier,
		sources:    d.Sources,
		scheduler:  d.Scheduler,
		retail:     d.Retail,
		maxResults: d.MaxResults,
	}
	if s.scheduler == nil {
		s.scheduler = scheduler.NewDefault()
	}
	if s.maxResults <= 0 {
		s.maxResults = DefaultMaxResults
	}
	return s, nil
}

// Research prices the item described by in. Only invalid input is an
// error; every other failure degrades the result.
func (s *Service) Research(ctx context.Context, in Input) (*Result, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}

	started := time.Now()
	logger := log.With().Str("runID", uuid.New().String()).Logger()
	ctx = logger.WithContext(ctx)
	logger.Info().Str("title", in.Title).Str("brand", in.Brand).Int("photoCount", len(in.Photos)).Msg("research started")

	images := s.photos.LoadAll(ctx, in.Photos)
	if len(images) == 0 {
		logger.Warn().Msg("no photo could be loaded")
	}

	fc := llm.FeatureContext{Title: in.Title, Brand: in.Brand}
	features := s.extractor.Analyze(ctx, images, fc)
	query := strings.TrimSpace(features.SearchQueries.Primary)
	if query == "" {
		query = llm.FallbackQuery(fc)
	}
	logger.Info().Str("query", query).Str("category", features.Category).Msg("item identified")

	listings := s.searchAll(ctx, logger, query)

	verified := s.verifier.Verify(ctx, listings, llm.MatchContext{
		Title:     in.Title,
		Brand:     in.Brand,
		Condition: in.Condition,
		Size:      in.Size,
		Features:  features,
	})
	matched := len(market.FilterConfident(verified))

	estimate, enriched := market.Aggregate(verified, in.Price)
	retail := s.retail.Resolve(ctx, features)

	logger.Info().
		Int("listings", len(listings)).
		Int("matched", matched).
		Float64("average", estimate.Average).
		Str("confidence", string(estimate.Confidence)).
		Bool("retail", retail != nil).
		Dur("elapsed", time.Since(started)).
		Msg("research finished")

	return &Result{
		MarketPrice:           estimate,
		Sources:               enriched,
		RetailPrice:           retail,
		TotalListingsAnalyzed: len(listings),
		MatchedListings:       matched,
		ImageAnalysis:         &features,
	}, nil
}

// searchAll queries every source through the scheduler and flattens the
// results in source order.
func (s *Service) searchAll(ctx context.Context, logger zerolog.Logger, query string) []market.Listing {
	opts := sources.Options{MaxResults: s.maxResults}
	perSource := make([][]market.Listing, len(s.sources))

	var g errgroup.Group
	for i, src := range s.sources {
		g.Go(func() error {
			err := s.scheduler.Do(ctx, func(ctx context.Context) error {
				perSource[i] = src.Search(ctx, query, opts)
				return nil
			})
			if err != nil {
				logger.Warn().Err(err).Str("source", src.Name()).Msg("source search not admitted")
			}
			return nil
		})
	}
	g.Wait()

	var listings []market.Listing
	for i, found := range perSource {
		logger.Debug().Str("source", s.sources[i].Name()).Int("count", len(found)).Msg("source results")
		listings = append(listings, found...)
	}
	if listings == nil {
		listings = []market.Listing{}
	}
	return listings
}

// IsAvailable reports whether at least one source answers.
func (s *Service) IsAvailable(ctx context.Context) bool {
	return AnyAvailable(ctx, s.sources)
}

// AnyAvailable checks every source concurrently and reports whether at
// least one answers. It needs no model access.
func AnyAvailable(ctx context.Context, srcs []sources.Source) bool {
	var available atomic.Bool
	var g errgroup.Group
	for _, src := range srcs {
		g.Go(func() error {
			if src.IsAvailable(ctx) {
				available.Store(true)
			}
			return nil
		})
	}
	g.Wait()
	return available.Load()
}
