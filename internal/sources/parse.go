package sources

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/axelhamil/vinted-ai-assistant-sub000/internal/market"
	"github.com/rs/zerolog/log"
)

var (
	errNoTitle = errors.New("missing title")
	errNoPrice = errors.New("missing or non-positive price")
	errIgnored = errors.New("placeholder listing")
)

// ParseListings extracts listings from a results page using the first
// selector set of def that matches anything. Items that cannot be parsed
// are skipped.
func ParseListings(ctx context.Context, doc *goquery.Document, def Definition, base *url.URL) []market.Listing {
	logger := log.Ctx(ctx)
	for _, set := range def.Selectors {
		items := doc.Find(set.Item)
		if items.Length() == 0 {
			continue
		}

		listings := make([]market.Listing, 0, items.Length())
		skipped := 0
		items.Each(func(i int, s *goquery.Selection) {
			l, err := parseItem(s, set, def, base)
			if err != nil {
				skipped++
				logger.Debug().Err(err).Str("source", def.Name).Int("index", i).Msg("skipping listing")
				return
			}
			listings = append(listings, l)
		})

		logger.Debug().
			Str("source", def.Name).
			Str("selectorSet", set.Name).
			Int("items", items.Length()).
			Int("parsed", len(listings)).
			Int("skipped", skipped).
			Msg("parsed results page")
		return listings
	}

	logger.Debug().Str("source", def.Name).Msg("no selector set matched")
	return []market.Listing{}
}

func parseItem(s *goquery.Selection, set SelectorSet, def Definition, base *url.URL) (market.Listing, error) {
	title := cleanText(readField(s, set.Title, set.TitleAttr))
	if title == "" {
		return market.Listing{}, errNoTitle
	}
	for _, ignored := range def.IgnoreTitles {
		if strings.EqualFold(title, ignored) {
			return market.Listing{}, errIgnored
		}
	}

	priceText := cleanText(readField(s, set.Price, ""))
	price := market.ParsePrice(priceText)
	if price <= 0 {
		return market.Listing{}, fmt.Errorf("%w: %q", errNoPrice, priceText)
	}

	l := market.Listing{
		Source:    def.Name,
		Title:     title,
		Price:     price,
		Currency:  market.DetectCurrency(priceText, def.Currency),
		URL:       resolveURL(base, readField(s, set.Link, "href")),
		ImageURL:  resolveURL(base, readImage(s, set.Image)),
		Condition: cleanText(readField(s, set.Condition, "")),
	}

	if set.SellerName != "" || set.SellerRating != "" {
		name := cleanText(readField(s, set.SellerName, ""))
		rating, hasRating := market.ParseRating(cleanText(readField(s, set.SellerRating, "")))
		if name != "" || hasRating {
			l.Seller = &market.Seller{Name: name}
			if hasRating {
				l.Seller.Rating = &rating
			}
		}
	}

	return l, nil
}

// readField returns the text, or attribute attr, of the first node
// matching selector under s. An empty selector reads s itself.
func readField(s *goquery.Selection, selector, attr string) string {
	if selector == "" && attr == "" {
		return ""
	}
	node := s
	if selector != "" {
		node = s.Find(selector).First()
		if node.Length() == 0 {
			return ""
		}
	}
	if attr != "" {
		v, _ := node.Attr(attr)
		return v
	}
	return node.Text()
}

func readImage(s *goquery.Selection, selector string) string {
	if selector == "" {
		return ""
	}
	img := s.Find(selector).First()
	if img.Length() == 0 {
		return ""
	}
	for _, attr := range []string{"src", "data-src"} {
		if v, ok := img.Attr(attr); ok && v != "" && !strings.HasPrefix(v, "data:") {
			return v
		}
	}
	if srcset, ok := img.Attr("srcset"); ok {
		if first := strings.Fields(srcset); len(first) > 0 {
			return first[0]
		}
	}
	return ""
}

func resolveURL(base *url.URL, ref string) string {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return ""
	}
	u, err := url.Parse(ref)
	if err != nil {
		return ""
	}
	if base == nil {
		return u.String()
	}
	return base.ResolveReference(u).String()
}

func cleanText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
