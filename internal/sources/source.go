// Package sources searches marketplaces for listings comparable to an
// item. Each marketplace is described by a Definition; a single scraping
// Client drives all of them.
package sources

import (
	"context"

	"github.com/axelhamil/vinted-ai-assistant-sub000/internal/market"
)

// Options narrow a search.
type Options struct {
	MaxResults int
	MinPrice   float64 // 0 means no lower bound
	MaxPrice   float64 // 0 means no upper bound
}

// Source is a searchable marketplace.
type Source interface {
	Name() string
	// Search returns matching listings. It never fails: network and parse
	// errors are logged and yield an empty slice.
	Search(ctx context.Context, query string, opts Options) []market.Listing
	IsAvailable(ctx context.Context) bool
	// SearchURL is the public search page for query, without fetching it.
	SearchURL(query string, opts Options) string
}

// SelectorSet is one strategy for finding listings on a results page.
// Field selectors are evaluated relative to each Item node; an empty
// selector means the Item node itself.
type SelectorSet struct {
	Name string
	Item string

	Title string
	// TitleAttr reads the title from an attribute instead of the text.
	TitleAttr string
	Price     string
	Link      string
	Image     string
	Condition string

	SellerName   string
	SellerRating string
}

// Definition describes how to search and parse one marketplace.
type Definition struct {
	Name     string
	BaseURL  string
	Currency string
	// BuildURL returns the search page URL for query under base.
	BuildURL func(base, query string, opts Options) string
	// Selectors are tried in order; the first whose Item selector matches
	// at least one node is used for the whole page.
	Selectors []SelectorSet
	// IgnoreTitles lists placeholder titles that are not real listings.
	IgnoreTitles []string
}
