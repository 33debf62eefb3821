package llm

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/axelhamil/vinted-ai-assistant-sub000/internal/market"
	"github.com/rs/zerolog/log"
	"google.golang.org/genai"
)

const (
	// MaxImages caps the photos sent in one extraction call.
	MaxImages = 10

	fallbackCategory     = "item"
	fallbackCondition    = "good condition"
	maxFallbackQueryRune = 100
)

// FeatureContext is the seller-provided text accompanying the photos.
type FeatureContext struct {
	Title string
	Brand string
}

// Extractor turns photos into searchable features. Analyze never fails;
// it degrades to FallbackFeatures.
type Extractor interface {
	Analyze(ctx context.Context, images []Image, fc FeatureContext) market.ImageFeatures
}

// ExtractorOpts configures a FeatureExtractor.
type ExtractorOpts struct {
	Model     string
	WebSearch bool
}

// FeatureExtractor identifies an item from its photos with a Generator.
type FeatureExtractor struct {
	gen  Generator
	opts ExtractorOpts
}

var _ Extractor = (*FeatureExtractor)(nil)

// NewFeatureExtractor creates a FeatureExtractor.
func NewFeatureExtractor(gen Generator, opts ExtractorOpts) *FeatureExtractor {
	return &FeatureExtractor{gen: gen, opts: opts}
}

// Analyze returns the model's features, or FallbackFeatures on any failure.
func (e *FeatureExtractor) Analyze(ctx context.Context, images []Image, fc FeatureContext) market.ImageFeatures {
	features, err := e.TryAnalyze(ctx, images, fc)
	if err != nil {
		log.Ctx(ctx).Warn().Err(err).Str("title", fc.Title).Msg("feature extraction failed, using fallback")
		return FallbackFeatures(fc)
	}
	return features
}

// TryAnalyze is Analyze without the fallback.
func (e *FeatureExtractor) TryAnalyze(ctx context.Context, images []Image, fc FeatureContext) (market.ImageFeatures, error) {
	if len(images) == 0 {
		return market.ImageFeatures{}, fmt.Errorf("no images provided")
	}
	if len(images) > MaxImages {
		images = images[:MaxImages]
	}

	hint := ""
	if e.opts.WebSearch {
		hint = featureSearchHint
	}

	var features market.ImageFeatures
	err := e.gen.GenerateJSON(ctx, Request{
		Op:                "feature extraction",
		Prompt:            formatPrompt(featurePrompt, fc.Title, fc.Brand, hint),
		SystemInstruction: featureSystemInstruction,
		Images:            images,
		Schema:            featureSchema(),
		WebSearch:         e.opts.WebSearch,
		Model:             e.opts.Model,
		Temperature:       genai.Ptr[float32](0.2),
	}, &features)
	if err != nil {
		return market.ImageFeatures{}, err
	}

	return normalizeFeatures(features, fc), nil
}

// FallbackFeatures is the deterministic result used when the model cannot
// be reached or returns garbage.
func FallbackFeatures(fc FeatureContext) market.ImageFeatures {
	return market.ImageFeatures{
		Brand:     strings.TrimSpace(fc.Brand),
		Model:     "",
		Category:  fallbackCategory,
		Colors:    []string{},
		Materials: []string{},
		Patterns:  []string{},
		Condition: fallbackCondition,
		SearchQueries: market.SearchQueries{
			Primary:   FallbackQuery(fc),
			Secondary: []string{},
		},
	}
}

// FallbackQuery is brand and title joined, trimmed and cut to 100 runes.
func FallbackQuery(fc FeatureContext) string {
	q := strings.TrimSpace(fc.Brand + " " + fc.Title)
	if utf8.RuneCountInString(q) > maxFallbackQueryRune {
		q = strings.TrimSpace(string([]rune(q)[:maxFallbackQueryRune]))
	}
	return q
}

func normalizeFeatures(f market.ImageFeatures, fc FeatureContext) market.ImageFeatures {
	f.Brand = strings.TrimSpace(f.Brand)
	f.Model = strings.TrimSpace(f.Model)
	if isUnknown(f.Brand) {
		f.Brand = ""
	}
	if isUnknown(f.Model) {
		f.Model = ""
	}
	f.Category = strings.TrimSpace(f.Category)
	if f.Category == "" {
		f.Category = fallbackCategory
	}
	f.Condition = strings.TrimSpace(f.Condition)
	if f.Condition == "" {
		f.Condition = fallbackCondition
	}

	f.Colors = cleanList(f.Colors)
	f.Materials = cleanList(f.Materials)
	f.Patterns = cleanList(f.Patterns)
	f.SearchQueries.Secondary = cleanList(f.SearchQueries.Secondary)
	f.SearchQueries.Primary = strings.TrimSpace(f.SearchQueries.Primary)
	f.SearchQueries.VisualFeatures = strings.TrimSpace(f.SearchQueries.VisualFeatures)
	if f.SearchQueries.Primary == "" {
		f.SearchQueries.Primary = FallbackQuery(fc)
	}

	if f.EstimatedRetailPrice != nil && *f.EstimatedRetailPrice <= 0 {
		f.EstimatedRetailPrice = nil
	}
	return f
}

func isUnknown(s string) bool {
	switch strings.ToLower(s) {
	case "unknown", "n/a", "none", "null", "inconnu":
		return true
	}
	return false
}

func cleanList(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
