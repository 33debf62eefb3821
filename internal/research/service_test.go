package research

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/axelhamil/vinted-ai-assistant-sub000/internal/llm"
	"github.com/axelhamil/vinted-ai-assistant-sub000/internal/market"
	"github.com/axelhamil/vinted-ai-assistant-sub000/internal/scheduler"
	"github.com/axelhamil/vinted-ai-assistant-sub000/internal/sources"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSource struct {
	name      string
	listings  []market.Listing
	available bool

	mu      sync.Mutex
	queries []string
}

func (f *fakeSource) Name() string { return f.name }

func (f *fakeSource) Search(ctx context.Context, query string, opts sources.Options) []market.Listing {
	f.mu.Lock()
	f.queries = append(f.queries, query)
	f.mu.Unlock()
	if opts.MaxResults > 0 && len(f.listings) > opts.MaxResults {
		return f.listings[:opts.MaxResults]
	}
	return f.listings
}

func (f *fakeSource) IsAvailable(ctx context.Context) bool { return f.available }

func (f *fakeSource) SearchURL(query string, opts sources.Options) string {
	return "https://" + f.name + ".test/search?q=" + query
}

func (f *fakeSource) Queries() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.queries...)
}

type fakePhotos struct {
	loaded []llm.Image
}

func (f *fakePhotos) LoadAll(ctx context.Context, refs []string) []llm.Image {
	return f.loaded
}

type fakeExtractor struct {
	features market.ImageFeatures
}

func (f *fakeExtractor) Analyze(ctx context.Context, images []llm.Image, fc llm.FeatureContext) market.ImageFeatures {
	return f.features
}

// fakeVerifier confirms the first `confident` listings it is given.
type fakeVerifier struct {
	confident int
	got       []market.Listing
}

func (f *fakeVerifier) Verify(ctx context.Context, listings []market.Listing, mc llm.MatchContext) []market.VerifiedListing {
	f.got = listings
	out := make([]market.VerifiedListing, len(listings))
	for i, l := range listings {
		v := market.MatchVerification{IsMatch: false, Confidence: 20}
		if i < f.confident {
			v = market.MatchVerification{IsMatch: true, Confidence: 80}
		}
		out[i] = market.VerifiedListing{Listing: l, Verification: v}
	}
	return out
}

type failingGenerator struct{}

func (failingGenerator) GenerateJSON(ctx context.Context, req llm.Request, out any) error {
	return errors.New("model unavailable")
}

func listingsFor(source string, n int, basePrice float64) []market.Listing {
	out := make([]market.Listing, n)
	for i := range out {
		out[i] = market.Listing{
			Source:   source,
			Title:    fmt.Sprintf("%s listing %d", source, i),
			Price:    basePrice + float64(i),
			Currency: "EUR",
			URL:      fmt.Sprintf("https://%s.test/items/%d", source, i),
		}
	}
	return out
}

func sneakerFeatures() market.ImageFeatures {
	return market.ImageFeatures{
		Brand:         "Nike",
		Model:         "Air Max 90",
		Category:      "sneakers",
		Colors:        []string{"white"},
		Materials:     []string{},
		Patterns:      []string{},
		Condition:     "very good",
		SearchQueries: market.SearchQueries{Primary: "Nike Air Max 90", Secondary: []string{}},
	}
}

func validInput() Input {
	return Input{
		Photos:    []string{"https://example.com/1.jpg"},
		Title:     "Air Max 90 T42",
		Brand:     "Nike",
		Price:     100,
		Condition: "very good",
		Size:      "42",
	}
}

func newTestService(t *testing.T, srcs []sources.Source, ex llm.Extractor, v llm.Verifier, retail *RetailResolver) *Service {
	t.Helper()
	s, err := NewService(Deps{
		Photos:    &fakePhotos{loaded: []llm.Image{{Data: []byte{1}, MIMEType: "image/jpeg"}}},
		Extractor: ex,
		Verifier:  v,
		Sources:   srcs,
		Scheduler: scheduler.New(scheduler.Config{MaxConcurrent: 3}),
		Retail:    retail,
	})
	require.NoError(t, err)
	return s
}

func TestResearch_MatchedAndAnalyzedCounts(t *testing.T) {
	vinted := &fakeSource{name: "vinted", listings: listingsFor("vinted", 4, 40)}
	lbc := &fakeSource{name: "leboncoin", listings: listingsFor("leboncoin", 6, 50)}
	ebay := &fakeSource{name: "ebay", listings: nil}
	verifier := &fakeVerifier{confident: 7}

	s := newTestService(t, []sources.Source{vinted, lbc, ebay}, &fakeExtractor{features: sneakerFeatures()}, verifier, nil)

	res, err := s.Research(context.Background(), validInput())
	require.NoError(t, err)

	assert.Equal(t, 10, res.TotalListingsAnalyzed)
	assert.Equal(t, 7, res.MatchedListings)
	require.Len(t, res.Sources, 2)
	assert.Equal(t, "vinted", res.Sources[0].Name)
	assert.Equal(t, 4, res.Sources[0].Count)
	assert.Equal(t, "leboncoin", res.Sources[1].Name)
	assert.Equal(t, 3, res.Sources[1].Count)
	assert.Equal(t, market.ConfidenceMedium, res.MarketPrice.Confidence)
	assert.LessOrEqual(t, res.MarketPrice.Low, res.MarketPrice.Average)
	assert.LessOrEqual(t, res.MarketPrice.Average, res.MarketPrice.High)
	assert.Nil(t, res.RetailPrice)
	require.NotNil(t, res.ImageAnalysis)
	assert.Equal(t, "sneakers", res.ImageAnalysis.Category)

	for _, src := range []*fakeSource{vinted, lbc, ebay} {
		assert.Equal(t, []string{"Nike Air Max 90"}, src.Queries(), src.name)
	}
	assert.Len(t, verifier.got, 10)
}

func TestResearch_NoListingsFallsBackToAskingPrice(t *testing.T) {
	srcs := []sources.Source{
		&fakeSource{name: "vinted"},
		&fakeSource{name: "ebay"},
	}
	s := newTestService(t, srcs, &fakeExtractor{features: sneakerFeatures()}, &fakeVerifier{}, nil)

	res, err := s.Research(context.Background(), validInput())
	require.NoError(t, err)

	assert.Equal(t, 0, res.TotalListingsAnalyzed)
	assert.Equal(t, 0, res.MatchedListings)
	assert.Empty(t, res.Sources)
	assert.NotNil(t, res.Sources)
	assert.Equal(t, market.MarketPriceEstimate{Low: 80, High: 140, Average: 110, Confidence: market.ConfidenceLow}, res.MarketPrice)
}

func TestResearch_ExtractorFailureStillSearches(t *testing.T) {
	vinted := &fakeSource{name: "vinted", listings: listingsFor("vinted", 2, 30)}
	extractor := llm.NewFeatureExtractor(failingGenerator{}, llm.ExtractorOpts{})
	s := newTestService(t, []sources.Source{vinted}, extractor, &fakeVerifier{confident: 2}, nil)

	res, err := s.Research(context.Background(), validInput())
	require.NoError(t, err)

	require.NotNil(t, res.ImageAnalysis)
	assert.Equal(t, "item", res.ImageAnalysis.Category)
	assert.NotEmpty(t, res.ImageAnalysis.SearchQueries.Primary)
	assert.Equal(t, []string{"Nike Air Max 90 T42"}, vinted.Queries())
	assert.Equal(t, 2, res.MatchedListings)
}

func TestResearch_BlankPrimaryUsesFallbackQuery(t *testing.T) {
	vinted := &fakeSource{name: "vinted"}
	features := sneakerFeatures()
	features.SearchQueries.Primary = " "
	s := newTestService(t, []sources.Source{vinted}, &fakeExtractor{features: features}, &fakeVerifier{}, nil)

	_, err := s.Research(context.Background(), validInput())
	require.NoError(t, err)
	assert.Equal(t, []string{"Nike Air Max 90 T42"}, vinted.Queries())
}

func TestResearch_CapsResultsPerSource(t *testing.T) {
	vinted := &fakeSource{name: "vinted", listings: listingsFor("vinted", 30, 10)}
	s := newTestService(t, []sources.Source{vinted}, &fakeExtractor{features: sneakerFeatures()}, &fakeVerifier{}, nil)

	res, err := s.Research(context.Background(), validInput())
	require.NoError(t, err)
	assert.Equal(t, DefaultMaxResults, res.TotalListingsAnalyzed)
}

func TestResearch_CancelledContextStillComposesResult(t *testing.T) {
	vinted := &fakeSource{name: "vinted", listings: listingsFor("vinted", 3, 30)}
	s := newTestService(t, []sources.Source{vinted}, &fakeExtractor{features: sneakerFeatures()}, &fakeVerifier{confident: 3}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := s.Research(ctx, validInput())
	require.NoError(t, err)
	assert.Equal(t, 0, res.TotalListingsAnalyzed)
	assert.Equal(t, market.ConfidenceLow, res.MarketPrice.Confidence)
	assert.Empty(t, vinted.Queries())
}

func TestResearch_InvalidInput(t *testing.T) {
	s := newTestService(t, []sources.Source{&fakeSource{name: "vinted"}}, &fakeExtractor{}, &fakeVerifier{}, nil)

	tests := []struct {
		name   string
		mutate func(in *Input)
	}{
		{"no photos", func(in *Input) { in.Photos = nil }},
		{"blank photo", func(in *Input) { in.Photos = []string{" "} }},
		{"blank title", func(in *Input) { in.Title = "  " }},
		{"negative price", func(in *Input) { in.Price = -1 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := validInput()
			tt.mutate(&in)
			res, err := s.Research(context.Background(), in)
			assert.Nil(t, res)
			assert.ErrorIs(t, err, ErrInvalidInput)
		})
	}
}

func TestNewService_RequiresCollaborators(t *testing.T) {
	_, err := NewService(Deps{})
	assert.Error(t, err)

	_, err = NewService(Deps{Photos: &fakePhotos{}, Extractor: &fakeExtractor{}, Verifier: &fakeVerifier{}})
	assert.Error(t, err)
}

func TestIsAvailable(t *testing.T) {
	down := &fakeSource{name: "vinted"}
	up := &fakeSource{name: "ebay", available: true}

	s := newTestService(t, []sources.Source{down, up}, &fakeExtractor{}, &fakeVerifier{}, nil)
	assert.True(t, s.IsAvailable(context.Background()))

	s = newTestService(t, []sources.Source{down}, &fakeExtractor{}, &fakeVerifier{}, nil)
	assert.False(t, s.IsAvailable(context.Background()))
}

func TestAnyAvailable(t *testing.T) {
	down := &fakeSource{name: "vinted"}
	up := &fakeSource{name: "ebay", available: true}

	assert.True(t, AnyAvailable(context.Background(), []sources.Source{down, up}))
	assert.False(t, AnyAvailable(context.Background(), []sources.Source{down}))
	assert.False(t, AnyAvailable(context.Background(), nil))
}

// logBuffer collects log lines written from concurrent goroutines.
type logBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *logBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *logBuffer) Entries(t *testing.T) []map[string]any {
	t.Helper()
	b.mu.Lock()
	defer b.mu.Unlock()
	var entries []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(b.buf.String()), "\n") {
		if line == "" {
			continue
		}
		var entry map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &entry), line)
		entries = append(entries, entry)
	}
	return entries
}

func captureLogs(t *testing.T) *logBuffer {
	t.Helper()
	prev := log.Logger
	prevLevel := zerolog.GlobalLevel()
	buf := &logBuffer{}
	log.Logger = zerolog.New(buf)
	zerolog.SetGlobalLevel(zerolog.DebugLevel)
	t.Cleanup(func() {
		log.Logger = prev
		zerolog.SetGlobalLevel(prevLevel)
	})
	return buf
}

func TestResearch_TagsComponentLogsWithRunID(t *testing.T) {
	logs := captureLogs(t)

	vinted := &fakeSource{name: "vinted", listings: listingsFor("vinted", 3, 30)}
	extractor := llm.NewFeatureExtractor(failingGenerator{}, llm.ExtractorOpts{})
	verifier := llm.NewMatchVerifier(failingGenerator{}, llm.VerifierOpts{BatchSize: 2})
	s := newTestService(t, []sources.Source{vinted}, extractor, verifier, nil)

	for i := 0; i < 2; i++ {
		_, err := s.Research(context.Background(), validInput())
		require.NoError(t, err)
	}

	entries := logs.Entries(t)
	require.NotEmpty(t, entries)

	runIDs := map[string]int{}
	var messages []string
	for _, entry := range entries {
		id, ok := entry["runID"].(string)
		assert.True(t, ok, "log line without runID: %v", entry)
		runIDs[id]++
		msg, _ := entry["message"].(string)
		messages = append(messages, msg)
	}

	assert.Len(t, runIDs, 2)
	assert.Contains(t, messages, "feature extraction failed, using fallback")
	assert.Contains(t, messages, "match verification batch failed, using fallback")
	assert.Contains(t, messages, "verified listings")
}
