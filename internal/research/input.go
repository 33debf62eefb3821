package research

import (
	"errors"
	"fmt"
	"strings"

	"github.com/axelhamil/vinted-ai-assistant-sub000/internal/market"
)

// ErrInvalidInput is wrapped by every input validation error.
var ErrInvalidInput = errors.New("invalid research input")

// Input is the item being priced.
type Input struct {
	Photos    []string `json:"photos"` // http(s) URLs or data: URIs
	Title     string   `json:"title"`
	Brand     string   `json:"brand,omitempty"`
	Price     float64  `json:"price"` // asking price, only used when nothing comparable is found
	Condition string   `json:"condition"`
	Size      string   `json:"size,omitempty"`
}

// Validate rejects input the pipeline cannot work with.
func (in Input) Validate() error {
	if len(in.Photos) == 0 {
		return fmt.Errorf("%w: at least one photo is required", ErrInvalidInput)
	}
	for i, p := range in.Photos {
		if strings.TrimSpace(p) == "" {
			return fmt.Errorf("%w: photo %d is empty", ErrInvalidInput, i)
		}
	}
	if strings.TrimSpace(in.Title) == "" {
		return fmt.Errorf("%w: title is required", ErrInvalidInput)
	}
	if in.Price < 0 {
		return fmt.Errorf("%w: price must not be negative, got %g", ErrInvalidInput, in.Price)
	}
	return nil
}

// Result is the outcome of one research run.
type Result struct {
	MarketPrice           market.MarketPriceEstimate `json:"marketPrice"`
	Sources               []market.EnrichedSource    `json:"sources"`
	RetailPrice           *market.RetailPrice        `json:"retailPrice,omitempty"`
	TotalListingsAnalyzed int                        `json:"totalListingsAnalyzed"`
	MatchedListings       int                        `json:"matchedListings"`
	ImageAnalysis         *market.ImageFeatures      `json:"imageAnalysis,omitempty"`
}
