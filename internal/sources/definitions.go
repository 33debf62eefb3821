package sources

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/axelhamil/vinted-ai-assistant-sub000/internal/retry"
)

// Source names.
const (
	Vinted    = "vinted"
	Leboncoin = "leboncoin"
	Ebay      = "ebay"
	Vestiaire = "vestiaire"
	Amazon    = "amazon"
)

// RetailSource is the source searched for new-goods reference prices.
const RetailSource = Amazon

// Definitions returns every supported marketplace, in fan-out order.
func Definitions() []Definition {
	return []Definition{
		VintedDefinition(),
		LeboncoinDefinition(),
		EbayDefinition(),
		VestiaireDefinition(),
		AmazonDefinition(),
	}
}

// DefinitionByName looks a definition up by source name.
func DefinitionByName(name string) (Definition, bool) {
	for _, d := range Definitions() {
		if d.Name == strings.ToLower(strings.TrimSpace(name)) {
			return d, true
		}
	}
	return Definition{}, false
}

// NewRetailClient creates the client used for retail price lookups. Live
// fetches are retried with retry.DefaultPolicy unless opts sets a policy.
func NewRetailClient(opts ClientOpts) *Client {
	if opts.Retry.MaxAttempts == 0 {
		opts.Retry = retry.DefaultPolicy
	}
	return NewClient(AmazonDefinition(), opts)
}

// NewClients creates a client for each named source. An empty names list
// selects every source.
func NewClients(names []string, opts ClientOpts) ([]*Client, error) {
	if len(names) == 0 {
		var clients []*Client
		for _, d := range Definitions() {
			clients = append(clients, NewClient(d, opts))
		}
		return clients, nil
	}

	clients := make([]*Client, 0, len(names))
	for _, name := range names {
		d, ok := DefinitionByName(name)
		if !ok {
			return nil, fmt.Errorf("unknown source %q", name)
		}
		clients = append(clients, NewClient(d, opts))
	}
	return clients, nil
}

// VintedDefinition describes the Vinted catalog search, sorted by relevance.
func VintedDefinition() Definition {
	return Definition{
		Name:     Vinted,
		BaseURL:  "https://www.vinted.fr",
		Currency: "EUR",
		BuildURL: func(base, query string, opts Options) string {
			q := url.Values{}
			q.Set("search_text", query)
			q.Set("order", "relevance")
			setPrice(q, "price_from", opts.MinPrice)
			setPrice(q, "price_to", opts.MaxPrice)
			return base + "/catalog?" + q.Encode()
		},
		Selectors: []SelectorSet{
			{
				Name:      "grid-item",
				Item:      `div[data-testid="grid-item"]`,
				Title:     `[data-testid$="--description-title"]`,
				Price:     `[data-testid$="--price-text"]`,
				Link:      `a[data-testid$="--overlay-link"]`,
				Image:     "img",
				Condition: `[data-testid$="--description-subtitle"]`,
			},
			{
				Name:      "feed-grid",
				Item:      "div.feed-grid__item",
				Title:     "a[title]",
				TitleAttr: "title",
				Price:     ".title-content h3, .web_ui__Text__subtitle",
				Link:      "a",
				Image:     "img",
			},
		},
	}
}

// LeboncoinDefinition describes the Leboncoin ad search.
func LeboncoinDefinition() Definition {
	return Definition{
		Name:     Leboncoin,
		BaseURL:  "https://www.leboncoin.fr",
		Currency: "EUR",
		BuildURL: func(base, query string, opts Options) string {
			q := url.Values{}
			q.Set("text", query)
			if opts.MinPrice > 0 || opts.MaxPrice > 0 {
				q.Set("price", priceBound(opts.MinPrice, "min")+"-"+priceBound(opts.MaxPrice, "max"))
			}
			return base + "/recherche?" + q.Encode()
		},
		Selectors: []SelectorSet{
			{
				Name:      "aditem",
				Item:      `a[data-qa-id="aditem_container"]`,
				Title:     `[data-qa-id="aditem_title"]`,
				Price:     `[data-qa-id="aditem_price"]`,
				Image:     "img",
				Condition: `[data-qa-id="aditem_criteria"]`,
			},
			{
				Name:  "article",
				Item:  `article[data-test-id="ad"]`,
				Title: "h2, p[title]",
				Price: `[data-test-id="price"]`,
				Link:  "a",
				Image: "img",
			},
		},
	}
}

// EbayDefinition describes the eBay France search.
func EbayDefinition() Definition {
	return Definition{
		Name:     Ebay,
		BaseURL:  "https://www.ebay.fr",
		Currency: "EUR",
		BuildURL: func(base, query string, opts Options) string {
			q := url.Values{}
			q.Set("_nkw", query)
			setPrice(q, "_udlo", opts.MinPrice)
			setPrice(q, "_udhi", opts.MaxPrice)
			return base + "/sch/i.html?" + q.Encode()
		},
		Selectors: []SelectorSet{
			{
				Name:       "s-item",
				Item:       "li.s-item",
				Title:      ".s-item__title",
				Price:      ".s-item__price",
				Link:       "a.s-item__link",
				Image:      ".s-item__image img",
				Condition:  ".SECONDARY_INFO",
				SellerName: ".s-item__seller-info-text",
			},
			{
				Name:      "s-card",
				Item:      "li.s-card",
				Title:     ".s-card__title",
				Price:     ".s-card__price",
				Link:      "a.su-link",
				Image:     "img",
				Condition: ".s-card__subtitle",
			},
		},
		IgnoreTitles: []string{"Shop on eBay", "Achetez sur eBay"},
	}
}

// VestiaireDefinition describes the Vestiaire Collective search.
func VestiaireDefinition() Definition {
	return Definition{
		Name:     Vestiaire,
		BaseURL:  "https://fr.vestiairecollective.com",
		Currency: "EUR",
		BuildURL: func(base, query string, opts Options) string {
			q := url.Values{}
			q.Set("q", query)
			setPrice(q, "priceMin", opts.MinPrice)
			setPrice(q, "priceMax", opts.MaxPrice)
			return base + "/search/?" + q.Encode()
		},
		Selectors: []SelectorSet{
			{
				Name:      "product-card",
				Item:      `div[data-cy="catalog__productCard"]`,
				Title:     `[data-cy="productCard__text"]`,
				Price:     `[data-cy="productCard__price"]`,
				Link:      "a",
				Image:     "img",
				Condition: `[data-cy="productCard__condition"]`,
			},
			{
				Name:      "legacy-card",
				Item:      "div.product-card",
				Title:     "a[title]",
				TitleAttr: "title",
				Price:     ".product-card__price",
				Link:      "a",
				Image:     "img",
			},
		},
	}
}

// AmazonDefinition describes the Amazon France product search. It is the
// retail reference source.
func AmazonDefinition() Definition {
	return Definition{
		Name:     Amazon,
		BaseURL:  "https://www.amazon.fr",
		Currency: "EUR",
		BuildURL: func(base, query string, opts Options) string {
			q := url.Values{}
			q.Set("k", query)
			setPrice(q, "low-price", opts.MinPrice)
			setPrice(q, "high-price", opts.MaxPrice)
			return base + "/s?" + q.Encode()
		},
		Selectors: []SelectorSet{
			{
				Name:  "search-result",
				Item:  `div[data-component-type="s-search-result"]`,
				Title: "h2 span",
				Price: ".a-price .a-offscreen",
				Link:  "a.a-link-normal[href]",
				Image: "img.s-image",
			},
			{
				Name:  "result-item",
				Item:  "div.s-result-item[data-asin]",
				Title: "h2",
				Price: ".a-price-whole",
				Link:  "h2 a, a[href]",
				Image: "img",
			},
		},
	}
}

func setPrice(q url.Values, key string, v float64) {
	if v > 0 {
		q.Set(key, strconv.FormatFloat(v, 'f', -1, 64))
	}
}

func priceBound(v float64, open string) string {
	if v <= 0 {
		return open
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}
