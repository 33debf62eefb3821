package llm

import "google.golang.org/genai"

func stringList(description string) *genai.Schema {
	return &genai.Schema{
		Type:        genai.TypeArray,
		Description: description,
		Items:       &genai.Schema{Type: genai.TypeString},
	}
}

// featureSchema constrains the feature extraction answer.
func featureSchema() *genai.Schema {
	return &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"brand":     {Type: genai.TypeString, Description: "Brand name, empty string if unknown."},
			"model":     {Type: genai.TypeString, Description: "Model name or reference, empty string if unknown."},
			"category":  {Type: genai.TypeString},
			"colors":    stringList("Main colors."),
			"materials": stringList("Visible materials."),
			"patterns":  stringList("Visible patterns."),
			"condition": {Type: genai.TypeString},
			"searchQueries": {
				Type: genai.TypeObject,
				Properties: map[string]*genai.Schema{
					"primary":        {Type: genai.TypeString, Description: "Most specific search query."},
					"secondary":      stringList("Broader alternative queries."),
					"visualFeatures": {Type: genai.TypeString},
				},
				Required:         []string{"primary", "secondary", "visualFeatures"},
				PropertyOrdering: []string{"primary", "secondary", "visualFeatures"},
			},
			"estimatedRetailPrice": {
				Type:        genai.TypeNumber,
				Description: "Typical new retail price in euros.",
				Nullable:    genai.Ptr(true),
			},
		},
		Required: []string{"brand", "model", "category", "colors", "materials", "patterns", "condition", "searchQueries"},
		PropertyOrdering: []string{
			"brand", "model", "category", "colors", "materials", "patterns",
			"condition", "searchQueries", "estimatedRetailPrice",
		},
	}
}

// verifySchema constrains the batch verification answer.
func verifySchema() *genai.Schema {
	boolean := &genai.Schema{Type: genai.TypeBoolean}
	return &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"results": {
				Type: genai.TypeArray,
				Items: &genai.Schema{
					Type: genai.TypeObject,
					Properties: map[string]*genai.Schema{
						"index":      {Type: genai.TypeInteger},
						"isMatch":    {Type: genai.TypeBoolean},
						"confidence": {Type: genai.TypeInteger, Minimum: genai.Ptr(0.0), Maximum: genai.Ptr(100.0)},
						"matchDetails": {
							Type: genai.TypeObject,
							Properties: map[string]*genai.Schema{
								"brandMatch":     boolean,
								"modelMatch":     boolean,
								"conditionMatch": boolean,
								"sizeMatch":      boolean,
								"colorMatch":     boolean,
							},
							Required: []string{"brandMatch", "modelMatch", "conditionMatch", "sizeMatch", "colorMatch"},
						},
						"reason": {Type: genai.TypeString},
					},
					Required:         []string{"index", "isMatch", "confidence", "matchDetails", "reason"},
					PropertyOrdering: []string{"index", "isMatch", "confidence", "matchDetails", "reason"},
				},
			},
		},
		Required: []string{"results"},
	}
}
