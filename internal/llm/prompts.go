package llm

import (
	"fmt"
	"strings"

	"github.com/lithammer/dedent"
)

func formatPrompt(text string, a ...any) string {
	return fmt.Sprintf(strings.TrimSpace(dedent.Dedent(text)), a...)
}

const featureSystemInstruction = `You identify second-hand items from photos so that comparable listings can be found on resale marketplaces. You answer with JSON only.`

const featurePrompt = `
	Analyze these photos showing the same item for sale on a second-hand marketplace.

	Seller title: %q
	Seller brand: %q

	Identify the item and respond with a JSON object with these fields:
	- brand: brand name if identifiable from the photos or the title, empty string if unknown
	- model: model name or reference if identifiable, empty string if unknown
	- category: short product category (e.g. "sneakers", "handbag", "jacket")
	- colors: main colors
	- materials: visible materials
	- patterns: visible patterns, empty list if plain
	- condition: visible condition ("new with tags", "very good", "good", "fair")
	- searchQueries:
	  - primary: the most specific query for finding this exact item (brand + model + key attribute), 2-8 words
	  - secondary: 2-4 broader alternative queries
	  - visualFeatures: one sentence describing distinctive visual details
	- estimatedRetailPrice: typical new retail price in euros, or null if unknown
	%s
	Respond ONLY with the JSON object, no markdown or other text.`

const featureSearchHint = "Use web search to confirm the model name and its current retail price.\n"

const verifySystemInstruction = `You compare marketplace listings against a reference item and decide which listings are the same product. You are strict about brand and model. You answer with JSON only.`

const verifyPrompt = `
	Reference item:
	- Title: %q
	- Brand: %q
	- Model: %q
	- Category: %q
	- Condition: %q
	- Size: %q
	- Colors: %s
	- Visual features: %q

	Candidate listings (index: title | price | condition | source):
	%s

	For every candidate decide whether it is the same product as the reference item
	(same brand and model; a different size or condition can still be a match, but lowers confidence).

	Respond with a JSON object {"results": [...]} containing one entry per candidate with:
	- index: the candidate index exactly as given
	- isMatch: true if it is the same product
	- confidence: 0-100
	- matchDetails: {"brandMatch", "modelMatch", "conditionMatch", "sizeMatch", "colorMatch"} booleans
	- reason: one short sentence

	Respond ONLY with the JSON object.`
