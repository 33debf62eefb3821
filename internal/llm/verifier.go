package llm

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/axelhamil/vinted-ai-assistant-sub000/internal/market"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
	"google.golang.org/genai"
)

const (
	DefaultBatchSize   = 10
	DefaultParallelism = 2

	degradedConfidence = 30
	degradedReason     = "automatic fallback, low confidence"
)

// MatchContext describes the reference item listings are compared to.
type MatchContext struct {
	Title     string
	Brand     string
	Condition string
	Size      string
	Features  market.ImageFeatures
}

// Verifier decides which listings match the reference item.
type Verifier interface {
	Verify(ctx context.Context, listings []market.Listing, mc MatchContext) []market.VerifiedListing
}

// VerifierOpts configures a MatchVerifier.
type VerifierOpts struct {
	BatchSize   int
	Parallelism int
	Model       string
}

// MatchVerifier checks listings against the reference item in batches.
type MatchVerifier struct {
	gen  Generator
	opts VerifierOpts
}

var _ Verifier = (*MatchVerifier)(nil)

// NewMatchVerifier creates a MatchVerifier.
func NewMatchVerifier(gen Generator, opts VerifierOpts) *MatchVerifier {
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}
	if opts.Parallelism <= 0 {
		opts.Parallelism = DefaultParallelism
	}
	return &MatchVerifier{gen: gen, opts: opts}
}

type batchResult struct {
	Index        *int               `json:"index"`
	IsMatch      bool               `json:"isMatch"`
	Confidence   int                `json:"confidence"`
	MatchDetails market.MatchDetails `json:"matchDetails"`
	Reason       string             `json:"reason"`
}

type batchResponse struct {
	Results []batchResult `json:"results"`
}

// DegradedVerification is attached to listings the model could not judge.
func DegradedVerification() market.MatchVerification {
	return market.MatchVerification{
		IsMatch:    true,
		Confidence: degradedConfidence,
		Reason:     degradedReason,
	}
}

// Verify returns every listing with a verification attached, sorted by
// confidence (highest first, stable). Batches that fail, and listings the
// model skipped, get DegradedVerification.
func (v *MatchVerifier) Verify(ctx context.Context, listings []market.Listing, mc MatchContext) []market.VerifiedListing {
	if len(listings) == 0 {
		return []market.VerifiedListing{}
	}

	verdicts := make([]*market.MatchVerification, len(listings))

	g := new(errgroup.Group)
	g.SetLimit(v.opts.Parallelism)
	for start := 0; start < len(listings); start += v.opts.BatchSize {
		end := min(start+v.opts.BatchSize, len(listings))
		g.Go(func() error {
			if err := v.verifyBatch(ctx, listings, start, end, mc, verdicts); err != nil {
				log.Ctx(ctx).Warn().Err(err).Int("from", start).Int("to", end).Msg("match verification batch failed, using fallback")
			}
			return nil
		})
	}
	_ = g.Wait()

	verified := make([]market.VerifiedListing, len(listings))
	degraded := 0
	for i, l := range listings {
		verdict := DegradedVerification()
		if verdicts[i] != nil {
			verdict = *verdicts[i]
		} else {
			degraded++
		}
		score := float64(verdict.Confidence)
		l.RelevanceScore = &score
		verified[i] = market.VerifiedListing{Listing: l, Verification: verdict}
	}

	sort.SliceStable(verified, func(i, j int) bool {
		return verified[i].Verification.Confidence > verified[j].Verification.Confidence
	})

	log.Ctx(ctx).Info().
		Int("listings", len(listings)).
		Int("degraded", degraded).
		Int("matched", len(market.FilterConfident(verified))).
		Msg("verified listings")
	return verified
}

// verifyBatch asks the model about listings[start:end] and stores the
// answers in verdicts. Only indexes inside the batch are accepted, so
// concurrent batches never write the same slot.
func (v *MatchVerifier) verifyBatch(ctx context.Context, listings []market.Listing, start, end int, mc MatchContext, verdicts []*market.MatchVerification) error {
	var resp batchResponse
	err := v.gen.GenerateJSON(ctx, Request{
		Op:                "match verification",
		Prompt:            buildVerifyPrompt(listings, start, end, mc),
		SystemInstruction: verifySystemInstruction,
		Schema:            verifySchema(),
		Model:             v.opts.Model,
		Temperature:       genai.Ptr[float32](0),
	}, &resp)
	if err != nil {
		return err
	}

	accepted := 0
	for _, r := range resp.Results {
		if r.Index == nil {
			continue
		}
		idx := *r.Index
		if idx < start || idx >= end {
			log.Ctx(ctx).Debug().Int("index", idx).Int("from", start).Int("to", end).Msg("ignoring out of range verification index")
			continue
		}
		if verdicts[idx] != nil {
			continue
		}
		verdicts[idx] = &market.MatchVerification{
			IsMatch:      r.IsMatch,
			Confidence:   clampConfidence(r.Confidence),
			MatchDetails: r.MatchDetails,
			Reason:       strings.TrimSpace(r.Reason),
		}
		accepted++
	}

	if accepted < end-start {
		log.Ctx(ctx).Debug().Int("answered", accepted).Int("expected", end-start).Msg("model skipped some listings")
	}
	return nil
}

func buildVerifyPrompt(listings []market.Listing, start, end int, mc MatchContext) string {
	var b strings.Builder
	for i := start; i < end; i++ {
		l := listings[i]
		condition := l.Condition
		if condition == "" {
			condition = "unknown"
		}
		fmt.Fprintf(&b, "%d: %s | %.2f %s | %s | %s\n", i, l.Title, l.Price, l.Currency, condition, l.Source)
	}

	colors := "unknown"
	if len(mc.Features.Colors) > 0 {
		colors = strings.Join(mc.Features.Colors, ", ")
	}
	brand := mc.Features.Brand
	if brand == "" {
		brand = mc.Brand
	}

	return formatPrompt(verifyPrompt,
		mc.Title,
		brand,
		mc.Features.Model,
		mc.Features.Category,
		mc.Condition,
		mc.Size,
		colors,
		mc.Features.SearchQueries.VisualFeatures,
		strings.TrimRight(b.String(), "\n"),
	)
}

func clampConfidence(c int) int {
	return max(0, min(100, c))
}
