package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/axelhamil/vinted-ai-assistant-sub000/internal/sources"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	source := flag.String("source", sources.Vinted, "Source name (vinted, leboncoin, ebay, vestiaire, amazon)")
	query := flag.String("q", "", "Search query")
	rows := flag.Int("rows", 10, "Number of results")
	minPrice := flag.Float64("min-price", 0, "Minimum price")
	maxPrice := flag.Float64("max-price", 0, "Maximum price")
	baseURL := flag.String("base-url", "", "Override the source base URL")
	timeout := flag.Duration("timeout", sources.DefaultFetchTimeout, "Fetch timeout")
	printURL := flag.Bool("url", false, "Print the search URL without fetching")
	check := flag.Bool("check", false, "Check source availability")
	rawJSON := flag.Bool("json", false, "Output raw JSON only")
	debug := flag.Bool("debug", false, "Debug logging")
	flag.Parse()

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.DefaultContextLogger = &log.Logger
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if *debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}

	def, ok := sources.DefinitionByName(*source)
	if !ok {
		fmt.Fprintf(os.Stderr, "Error: unknown source %q\n", *source)
		os.Exit(1)
	}
	client := sources.NewClient(def, sources.ClientOpts{BaseURL: *baseURL, Timeout: *timeout})
	opts := sources.Options{MaxResults: *rows, MinPrice: *minPrice, MaxPrice: *maxPrice}

	if *printURL {
		fmt.Println(client.SearchURL(*query, opts))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if *check {
		fmt.Printf("%s available: %t\n", client.Name(), client.IsAvailable(ctx))
		return
	}

	if *query == "" {
		fmt.Fprintln(os.Stderr, "Error: -q is required")
		os.Exit(1)
	}

	results := client.Search(ctx, *query, opts)

	if *rawJSON {
		jsonBytes, _ := json.MarshalIndent(results, "", "  ")
		fmt.Println(string(jsonBytes))
		return
	}

	fmt.Printf("Found %d results on %s\n%s\n\n", len(results), client.Name(), client.SearchURL(*query, opts))

	for i, l := range results {
		fmt.Printf("%d. %s - %.2f %s\n", i+1, l.Title, l.Price, l.Currency)
		if l.Condition != "" {
			fmt.Printf("   %s\n", l.Condition)
		}
		if l.Seller != nil {
			fmt.Printf("   seller: %s\n", l.Seller.Name)
		}
		fmt.Printf("   %s\n", l.URL)
	}
}
