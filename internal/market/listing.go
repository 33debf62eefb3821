// Package market holds the listing and price types shared by the research
// pipeline, along with the pure price parsing and aggregation logic.
package market

// Seller identifies who posted a listing.
type Seller struct {
	Name   string   `json:"name"`
	Rating *float64 `json:"rating,omitempty"`
}

// Listing is a single offer returned by a source's search, normalized to a
// common shape. Price is always > 0; listings without a usable price are
// dropped while parsing.
type Listing struct {
	Source         string   `json:"source"`
	Title          string   `json:"title"`
	Price          float64  `json:"price"`
	Currency       string   `json:"currency"`
	URL            string   `json:"url"`
	ImageURL       string   `json:"imageUrl,omitempty"`
	Condition      string   `json:"condition,omitempty"`
	Seller         *Seller  `json:"seller,omitempty"`
	RelevanceScore *float64 `json:"relevanceScore,omitempty"`
}

// SearchQueries are the query strings the feature extractor proposes for
// marketplace searches, most specific first.
type SearchQueries struct {
	Primary        string   `json:"primary"`
	Secondary      []string `json:"secondary"`
	VisualFeatures string   `json:"visualFeatures"`
}

// ImageFeatures describes the item as identified from its photos.
// Brand and Model are empty when they could not be identified.
type ImageFeatures struct {
	Brand                string        `json:"brand,omitempty"`
	Model                string        `json:"model,omitempty"`
	Category             string        `json:"category"`
	Colors               []string      `json:"colors"`
	Materials            []string      `json:"materials"`
	Patterns             []string      `json:"patterns"`
	Condition            string        `json:"condition"`
	SearchQueries        SearchQueries `json:"searchQueries"`
	EstimatedRetailPrice *float64      `json:"estimatedRetailPrice,omitempty"`
}

// MatchDetails are the individual signals behind a match decision.
type MatchDetails struct {
	BrandMatch     bool `json:"brandMatch"`
	ModelMatch     bool `json:"modelMatch"`
	ConditionMatch bool `json:"conditionMatch"`
	SizeMatch      bool `json:"sizeMatch"`
	ColorMatch     bool `json:"colorMatch"`
}

// MatchVerification is the verifier's judgment of one listing.
type MatchVerification struct {
	IsMatch      bool         `json:"isMatch"`
	Confidence   int          `json:"confidence"` // 0..100
	MatchDetails MatchDetails `json:"matchDetails"`
	Reason       string       `json:"reason"`
}

// VerifiedListing is a listing with its match verification attached.
type VerifiedListing struct {
	Listing
	Verification MatchVerification `json:"verification"`
}

// Relevance returns the listing's relevance score, falling back to the
// verification confidence when no score was attached.
func (v VerifiedListing) Relevance() float64 {
	if v.RelevanceScore != nil {
		return *v.RelevanceScore
	}
	return float64(v.Verification.Confidence)
}

// PriceRange is an inclusive min/max price pair.
type PriceRange struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// EnrichedSource aggregates the matched listings of one source.
type EnrichedSource struct {
	Name         string            `json:"name"`
	AveragePrice int               `json:"averagePrice"`
	PriceRange   PriceRange        `json:"priceRange"`
	Count        int               `json:"count"`
	TopListings  []VerifiedListing `json:"topListings"`
}

// Confidence is a coarse label for how much data backs an estimate.
type Confidence string

const (
	ConfidenceLow    Confidence = "low"
	ConfidenceMedium Confidence = "medium"
	ConfidenceHigh   Confidence = "high"
)

// MarketPriceEstimate is the consolidated resale price estimate.
// Low <= Average <= High always holds.
type MarketPriceEstimate struct {
	Low        float64    `json:"low"`
	High       float64    `json:"high"`
	Average    float64    `json:"average"`
	Confidence Confidence `json:"confidence"`
}

// RetailPrice is a reference new-item price.
type RetailPrice struct {
	Price float64 `json:"price"`
	URL   string  `json:"url"`
	Brand string  `json:"brand"`
}
