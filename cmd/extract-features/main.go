package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"github.com/axelhamil/vinted-ai-assistant-sub000/internal/config"
	"github.com/axelhamil/vinted-ai-assistant-sub000/internal/llm"
	"github.com/axelhamil/vinted-ai-assistant-sub000/internal/photos"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	title := flag.String("title", "", "Listing title")
	brand := flag.String("brand", "", "Brand, if known")
	model := flag.String("model", "", "Gemini model (defaults to config)")
	webSearch := flag.Bool("web-search", false, "Let the model use Google Search")
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [flags] <image-path|url|data-uri>...\n\n", os.Args[0])
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nEnvironment variables:\n")
		fmt.Fprintf(os.Stderr, "  GEMINI_API_KEY - Required\n")
	}
	flag.Parse()

	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(1)
	}

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.DefaultContextLogger = &log.Logger

	cfg, err := config.Load("")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.RequireAPIKey(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if *model == "" {
		*model = cfg.Gemini.Model
	}

	ctx := context.Background()
	images, err := loadImages(ctx, flag.Args())
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}

	gemini, err := llm.NewGeminiClient(ctx, llm.GeminiConfig{APIKey: cfg.Gemini.APIKey, Model: *model})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error creating Gemini client: %v\n", err)
		os.Exit(1)
	}

	extractor := llm.NewFeatureExtractor(gemini, llm.ExtractorOpts{Model: *model, WebSearch: *webSearch})
	features, err := extractor.TryAnalyze(ctx, images, llm.FeatureContext{Title: *title, Brand: *brand})
	if err != nil {
		fmt.Printf("Error analyzing images: %v\n", err)
		os.Exit(1)
	}

	jsonBytes, _ := json.MarshalIndent(features, "", "  ")
	fmt.Println(string(jsonBytes))

	usage := gemini.TotalUsage()
	fmt.Printf("\nTokens: %d in, %d out, cost: $%.6f\n", usage.InputTokens, usage.OutputTokens, usage.CostUSD)
}

// loadImages reads local files directly and resolves everything else with
// the photo loader.
func loadImages(ctx context.Context, refs []string) ([]llm.Image, error) {
	loader := photos.NewLoader()
	var images []llm.Image
	for _, ref := range refs {
		if strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://") || strings.HasPrefix(ref, "data:") {
			img, err := loader.Load(ctx, ref)
			if err != nil {
				return nil, fmt.Errorf("failed to load %s: %w", ref, err)
			}
			images = append(images, img)
			continue
		}

		data, err := os.ReadFile(ref)
		if err != nil {
			return nil, fmt.Errorf("failed to read image: %w", err)
		}
		images = append(images, llm.Image{Data: data, MIMEType: getMimeType(ref)})
	}
	return images, nil
}

func getMimeType(path string) string {
	if t := mime.TypeByExtension(strings.ToLower(filepath.Ext(path))); strings.HasPrefix(t, "image/") {
		return t
	}
	return "image/jpeg"
}
