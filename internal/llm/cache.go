package llm

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"time"

	"github.com/axelhamil/vinted-ai-assistant-sub000/internal/market"
	"github.com/axelhamil/vinted-ai-assistant-sub000/internal/storage"
	"github.com/rs/zerolog/log"
)

// DefaultFeatureCacheTTL is how long a cached analysis is reused.
const DefaultFeatureCacheTTL = 7 * 24 * time.Hour

type featureAnalyzer interface {
	TryAnalyze(ctx context.Context, images []Image, fc FeatureContext) (market.ImageFeatures, error)
}

// CachedExtractor wraps a FeatureExtractor with SQLite caching. Only real
// model answers are cached; fallbacks never are.
type CachedExtractor struct {
	inner featureAnalyzer
	store storage.FeatureStore
	model string
	ttl   time.Duration
	now   func() time.Time
}

var _ Extractor = (*CachedExtractor)(nil)

// NewCachedExtractor creates a cached extractor. model is part of the cache
// key so switching models does not serve stale answers.
func NewCachedExtractor(inner *FeatureExtractor, store storage.FeatureStore, ttl time.Duration) *CachedExtractor {
	if ttl <= 0 {
		ttl = DefaultFeatureCacheTTL
	}
	return &CachedExtractor{inner: inner, store: store, model: inner.opts.Model, ttl: ttl, now: time.Now}
}

// hashInputs creates a SHA256 hash from image data and context.
// Includes a length prefix for each part to prevent boundary collisions.
func hashInputs(images []Image, fc FeatureContext, model string) string {
	h := sha256.New()
	write := func(b []byte) {
		binary.Write(h, binary.LittleEndian, int64(len(b)))
		h.Write(b)
	}
	for _, img := range images {
		write(img.Data)
	}
	write([]byte(fc.Title))
	write([]byte(fc.Brand))
	write([]byte(model))
	return hex.EncodeToString(h.Sum(nil))
}

// Analyze implements Extractor with caching.
func (c *CachedExtractor) Analyze(ctx context.Context, images []Image, fc FeatureContext) market.ImageFeatures {
	features, err := c.TryAnalyze(ctx, images, fc)
	if err != nil {
		log.Ctx(ctx).Warn().Err(err).Str("title", fc.Title).Msg("feature extraction failed, using fallback")
		return FallbackFeatures(fc)
	}
	return features
}

// TryAnalyze returns cached features when present and fresh, otherwise
// calls the wrapped extractor and stores its answer.
func (c *CachedExtractor) TryAnalyze(ctx context.Context, images []Image, fc FeatureContext) (market.ImageFeatures, error) {
	if len(images) > MaxImages {
		images = images[:MaxImages]
	}
	hash := hashInputs(images, fc, c.model)

	if c.store != nil {
		cached, err := c.store.GetFeatureCache(hash)
		if err != nil {
			log.Ctx(ctx).Warn().Err(err).Msg("failed to check feature cache")
		} else if cached != nil && c.now().Sub(cached.CreatedAt) < c.ttl {
			log.Ctx(ctx).Debug().Str("hash", hash[:16]).Msg("feature cache hit")
			return cached.Features, nil
		}
	}

	features, err := c.inner.TryAnalyze(ctx, images, fc)
	if err != nil {
		return market.ImageFeatures{}, err
	}

	if c.store != nil {
		entry := &storage.FeatureCacheEntry{Features: features, Model: c.model, CreatedAt: c.now()}
		if err := c.store.SetFeatureCache(hash, entry); err != nil {
			log.Ctx(ctx).Warn().Err(err).Msg("failed to cache features")
		} else {
			log.Ctx(ctx).Debug().Str("hash", hash[:16]).Msg("cached features")
		}
	}

	return features, nil
}
