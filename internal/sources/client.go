package sources

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/axelhamil/vinted-ai-assistant-sub000/internal/cache"
	"github.com/axelhamil/vinted-ai-assistant-sub000/internal/market"
	"github.com/axelhamil/vinted-ai-assistant-sub000/internal/retry"
	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog/log"
)

const (
	// DefaultFetchTimeout bounds every page fetch and availability check.
	DefaultFetchTimeout = 8 * time.Second

	browserUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36"
	browserAccept    = "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,*/*;q=0.8"
	acceptLanguage   = "fr-FR,fr;q=0.9,en-US;q=0.8,en;q=0.7"
)

// ClientOpts configures a Client. Zero values use the defaults.
type ClientOpts struct {
	// BaseURL overrides the definition's base URL (used by tests).
	BaseURL  string
	Timeout  time.Duration
	Cache    cache.Cache
	CacheTTL time.Duration
	// Retry re-runs live fetches that fail transiently. The zero policy
	// makes a single attempt.
	Retry retry.Policy
}

// Client searches one marketplace described by a Definition.
type Client struct {
	def        Definition
	baseURL    string
	httpClient *resty.Client
	cache      cache.Cache
	cacheTTL   time.Duration
	timeout    time.Duration
	retry      retry.Policy
	now        func() time.Time
}

var _ Source = (*Client)(nil)

// NewClient creates a Client for def.
func NewClient(def Definition, opts ClientOpts) *Client {
	c := &Client{
		def:      def,
		baseURL:  strings.TrimRight(def.BaseURL, "/"),
		cache:    opts.Cache,
		cacheTTL: opts.CacheTTL,
		timeout:  opts.Timeout,
		retry:    opts.Retry,
		now:      time.Now,
	}
	if opts.BaseURL != "" {
		c.baseURL = strings.TrimRight(opts.BaseURL, "/")
	}
	if c.cache == nil {
		c.cache = cache.NewMemoryCache()
	}
	if c.cacheTTL <= 0 {
		c.cacheTTL = cache.DefaultTTL
	}
	if c.timeout <= 0 {
		c.timeout = DefaultFetchTimeout
	}

	c.httpClient = resty.New().
		SetTimeout(c.timeout).
		SetHeaders(map[string]string{
			"User-Agent":      browserUserAgent,
			"Accept":          browserAccept,
			"Accept-Language": acceptLanguage,
			"Referer":         c.baseURL + "/",
		})

	return c
}

// Name returns the source name.
func (c *Client) Name() string {
	return c.def.Name
}

// SearchURL returns the results page URL for query.
func (c *Client) SearchURL(query string, opts Options) string {
	return c.def.BuildURL(c.baseURL, query, opts)
}

// Search returns listings for query, served from cache while fresh.
func (c *Client) Search(ctx context.Context, query string, opts Options) []market.Listing {
	logger := log.Ctx(ctx)
	key := cache.Key(c.def.Name, query, opts.MaxResults, opts.MinPrice, opts.MaxPrice)
	if entry, ok := c.cache.Get(ctx, key); ok && entry.Fresh(c.now(), c.cacheTTL) {
		logger.Debug().Str("source", c.def.Name).Str("query", query).Int("count", len(entry.Listings)).Msg("search cache hit")
		return append([]market.Listing(nil), entry.Listings...)
	}

	listings, err := retry.Do(ctx, c.retry, c.def.Name+" search", func(ctx context.Context) ([]market.Listing, error) {
		return c.fetch(ctx, query, opts)
	})
	if err != nil {
		logger.Warn().Err(err).Str("source", c.def.Name).Str("query", query).Msg("source search failed")
		return []market.Listing{}
	}

	listings = applyOptions(listings, opts)
	c.cache.Put(ctx, key, cache.Entry{Listings: listings, StoredAt: c.now()})

	logger.Info().Str("source", c.def.Name).Str("query", query).Int("count", len(listings)).Msg("source search")
	return listings
}

func (c *Client) fetch(ctx context.Context, query string, opts Options) ([]market.Listing, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	searchURL := c.SearchURL(query, opts)
	res, err := handleError(c.httpClient.R().SetContext(ctx).Get(searchURL))
	if err != nil {
		return nil, err
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(res.Body()))
	if err != nil {
		return nil, fmt.Errorf("failed to parse results page: %w", err)
	}

	base, err := url.Parse(searchURL)
	if err != nil {
		return nil, fmt.Errorf("invalid search url %q: %w", searchURL, err)
	}
	return ParseListings(ctx, doc, c.def, base), nil
}

// IsAvailable checks the source home page with a HEAD request. Any 2xx
// or 3xx answer counts, as does 405 from hosts that refuse HEAD.
func (c *Client) IsAvailable(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	logger := log.Ctx(ctx)
	res, err := c.httpClient.R().SetContext(ctx).Head(c.baseURL + "/")
	if err != nil {
		logger.Debug().Err(err).Str("source", c.def.Name).Msg("availability check failed")
		return false
	}

	code := res.StatusCode()
	available := (code >= 200 && code < 400) || code == http.StatusMethodNotAllowed
	logger.Debug().Str("source", c.def.Name).Int("status", code).Bool("available", available).Msg("availability check")
	return available
}

func applyOptions(listings []market.Listing, opts Options) []market.Listing {
	out := make([]market.Listing, 0, len(listings))
	for _, l := range listings {
		if opts.MinPrice > 0 && l.Price < opts.MinPrice {
			continue
		}
		if opts.MaxPrice > 0 && l.Price > opts.MaxPrice {
			continue
		}
		out = append(out, l)
		if opts.MaxResults > 0 && len(out) == opts.MaxResults {
			break
		}
	}
	return out
}

func handleError(res *resty.Response, err error) (*resty.Response, error) {
	if err != nil {
		return res, err
	}
	if res.IsError() {
		return res, fmt.Errorf("request failed: %s: %w", res.Request.Method, &retry.StatusError{Code: res.StatusCode(), URL: res.Request.URL})
	}
	return res, nil
}
