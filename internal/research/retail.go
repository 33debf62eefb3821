package research

import (
	"context"
	"math"
	"strings"

	"github.com/axelhamil/vinted-ai-assistant-sub000/internal/market"
	"github.com/axelhamil/vinted-ai-assistant-sub000/internal/sources"
	"github.com/rs/zerolog/log"
)

const (
	// newItemQualifier is appended to live retail searches.
	newItemQualifier = " neuf"
	retailMaxResults = 10
)

// RetailResolver finds a reference new-item price on one source.
type RetailResolver struct {
	source sources.Source
}

// NewRetailResolver creates a resolver backed by src. A nil src disables
// retail resolution.
func NewRetailResolver(src sources.Source) *RetailResolver {
	return &RetailResolver{source: src}
}

// Resolve returns the retail price for the identified item, or nil.
// A model estimate with a known brand is trusted as is; otherwise the
// source is searched for new items and the median price is used.
func (r *RetailResolver) Resolve(ctx context.Context, f market.ImageFeatures) *market.RetailPrice {
	if r == nil || r.source == nil {
		return nil
	}

	primary := strings.TrimSpace(f.SearchQueries.Primary)
	brand := strings.TrimSpace(f.Brand)

	if f.EstimatedRetailPrice != nil && *f.EstimatedRetailPrice > 0 && brand != "" {
		query := strings.TrimSpace(brand + " " + primary)
		log.Ctx(ctx).Debug().Str("brand", brand).Float64("price", *f.EstimatedRetailPrice).Msg("using estimated retail price")
		return &market.RetailPrice{
			Price: *f.EstimatedRetailPrice,
			URL:   r.source.SearchURL(query, sources.Options{}),
			Brand: brand,
		}
	}

	if primary == "" {
		return nil
	}

	listings := r.source.Search(ctx, primary+newItemQualifier, sources.Options{MaxResults: retailMaxResults})
	if len(listings) == 0 {
		log.Ctx(ctx).Debug().Str("source", r.source.Name()).Str("query", primary).Msg("no retail listings found")
		return nil
	}

	prices := make([]float64, len(listings))
	for i, l := range listings {
		prices[i] = l.Price
	}

	return &market.RetailPrice{
		Price: math.Round(market.Median(prices)*100) / 100,
		URL:   listings[0].URL,
		Brand: brand,
	}
}
