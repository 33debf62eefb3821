package market

import (
	"math"
	"sort"
)

const (
	// MinMatchConfidence is the lowest verifier confidence that lets a
	// matched listing take part in aggregation.
	MinMatchConfidence = 50

	// TrimPercent is the share of prices dropped from each end before the
	// overall average is computed.
	TrimPercent = 10

	// TopListingsPerSource caps the representative listings per source.
	TopListingsPerSource = 3

	// Confidence tier thresholds on the number of matched listings.
	HighConfidenceMinListings   = 10
	MediumConfidenceMinListings = 5
)

// Multipliers applied to the asking price when no listing survives filtering.
const (
	fallbackLowFactor     = 0.8
	fallbackHighFactor    = 1.4
	fallbackAverageFactor = 1.1
)

// IsConfidentMatch reports whether a verified listing is counted as a
// corroborating market data point.
func IsConfidentMatch(v VerifiedListing) bool {
	return v.Verification.IsMatch && v.Verification.Confidence >= MinMatchConfidence
}

// FilterConfident returns the listings that pass IsConfidentMatch, keeping
// their order.
func FilterConfident(verified []VerifiedListing) []VerifiedListing {
	out := make([]VerifiedListing, 0, len(verified))
	for _, v := range verified {
		if IsConfidentMatch(v) {
			out = append(out, v)
		}
	}
	return out
}

// ConfidenceFor maps a matched-listing count to its confidence tier.
func ConfidenceFor(matched int) Confidence {
	switch {
	case matched >= HighConfidenceMinListings:
		return ConfidenceHigh
	case matched >= MediumConfidenceMinListings:
		return ConfidenceMedium
	default:
		return ConfidenceLow
	}
}

// Aggregate turns verified listings into an overall estimate and per-source
// statistics. currentPrice is only used when no listing survives filtering.
func Aggregate(verified []VerifiedListing, currentPrice float64) (MarketPriceEstimate, []EnrichedSource) {
	matched := FilterConfident(verified)
	if len(matched) == 0 {
		return FallbackEstimate(currentPrice), []EnrichedSource{}
	}

	prices := make([]float64, len(matched))
	for i, v := range matched {
		prices[i] = v.Price
	}
	sort.Float64s(prices)

	low := prices[0]
	high := prices[len(prices)-1]
	average := clamp(roundCents(TrimmedMean(prices)), low, high)

	estimate := MarketPriceEstimate{
		Low:        low,
		High:       high,
		Average:    average,
		Confidence: ConfidenceFor(len(matched)),
	}
	return estimate, groupBySource(matched)
}

// FallbackEstimate derives a heuristic band from the asking price alone.
func FallbackEstimate(currentPrice float64) MarketPriceEstimate {
	if currentPrice < 0 {
		currentPrice = 0
	}
	return MarketPriceEstimate{
		Low:        roundCents(currentPrice * fallbackLowFactor),
		High:       roundCents(currentPrice * fallbackHighFactor),
		Average:    roundCents(currentPrice * fallbackAverageFactor),
		Confidence: ConfidenceLow,
	}
}

// TrimWindow returns the half-open index range [lo, hi) kept after trimming
// TrimPercent from each end of n sorted values. It is computed in integer
// arithmetic as [floor(n*0.1), max(ceil(n*0.9), 1)) and never empty for n > 0.
func TrimWindow(n int) (lo, hi int) {
	if n <= 0 {
		return 0, 0
	}
	lo = n * TrimPercent / 100
	keep := 100 - TrimPercent
	hi = (n*keep + 99) / 100
	if hi < 1 {
		hi = 1
	}
	return lo, hi
}

// TrimmedMean averages sorted values after dropping the trimmed tails.
func TrimmedMean(sorted []float64) float64 {
	lo, hi := TrimWindow(len(sorted))
	if hi <= lo {
		return 0
	}
	var sum float64
	for _, p := range sorted[lo:hi] {
		sum += p
	}
	return sum / float64(hi-lo)
}

// Median returns the median of the given prices, 0 for an empty slice.
func Median(prices []float64) float64 {
	if len(prices) == 0 {
		return 0
	}
	sorted := append([]float64(nil), prices...)
	sort.Float64s(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 0 {
		return (sorted[mid-1] + sorted[mid]) / 2
	}
	return sorted[mid]
}

func groupBySource(matched []VerifiedListing) []EnrichedSource {
	groups := make(map[string][]VerifiedListing)
	var order []string
	for _, v := range matched {
		if _, ok := groups[v.Source]; !ok {
			order = append(order, v.Source)
		}
		groups[v.Source] = append(groups[v.Source], v)
	}

	sources := make([]EnrichedSource, 0, len(order))
	for _, name := range order {
		sources = append(sources, enrichSource(name, groups[name]))
	}

	sort.SliceStable(sources, func(i, j int) bool {
		if sources[i].Count != sources[j].Count {
			return sources[i].Count > sources[j].Count
		}
		return sources[i].Name < sources[j].Name
	})
	return sources
}

func enrichSource(name string, listings []VerifiedListing) EnrichedSource {
	var sum float64
	minPrice, maxPrice := listings[0].Price, listings[0].Price
	for _, l := range listings {
		sum += l.Price
		minPrice = math.Min(minPrice, l.Price)
		maxPrice = math.Max(maxPrice, l.Price)
	}

	top := append([]VerifiedListing(nil), listings...)
	sort.SliceStable(top, func(i, j int) bool {
		return top[i].Relevance() > top[j].Relevance()
	})
	if len(top) > TopListingsPerSource {
		top = top[:TopListingsPerSource]
	}

	return EnrichedSource{
		Name:         name,
		AveragePrice: int(math.Round(sum / float64(len(listings)))),
		PriceRange:   PriceRange{Min: minPrice, Max: maxPrice},
		Count:        len(listings),
		TopListings:  top,
	}
}

func roundCents(v float64) float64 {
	return math.Round(v*100) / 100
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
