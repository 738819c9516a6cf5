package scraper

import (
	"encoding/json"
	"strings"

	"github.com/ternarybob/domus/internal/durable"
	"github.com/ternarybob/domus/internal/models"
)

// Placeholders for required text fields the model could not find. The
// structured record never carries empty required fields.
const (
	placeholderTitle       = "Untitled listing"
	placeholderLocation    = "Location not stated"
	placeholderDescription = "No description available"
)

// listingExtraction mirrors the JSON object the model is asked to produce.
// Optional numerics are pointers so "not stated on the page" survives as nil.
type listingExtraction struct {
	Title               string   `json:"title"`
	Price               *float64 `json:"price"`
	Location            string   `json:"location"`
	SizeSqm             *float64 `json:"size_sqm"`
	Rooms               *int     `json:"rooms"`
	Bathrooms           *int     `json:"bathrooms"`
	Description         string   `json:"description"`
	Summary             string   `json:"summary"`
	RenovationCondition string   `json:"renovation_condition"`
	Features            []string `json:"features"`
	ListingAge          string   `json:"listing_age"`
}

// listingSchema is the JSON schema constraining model output for both portals.
func listingSchema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"title": map[string]interface{}{
				"type":        "string",
				"description": "Listing headline as shown on the page",
			},
			"price": map[string]interface{}{
				"type":        "number",
				"description": "Asking price in euros, omit if not stated",
			},
			"location": map[string]interface{}{
				"type":        "string",
				"description": "Neighbourhood, street, or area of the property",
			},
			"size_sqm": map[string]interface{}{
				"type":        "number",
				"description": "Surface area in square meters, omit if not stated",
			},
			"rooms": map[string]interface{}{
				"type":        "integer",
				"description": "Number of rooms (locali), omit if not stated",
			},
			"bathrooms": map[string]interface{}{
				"type":        "integer",
				"description": "Number of bathrooms, omit if not stated",
			},
			"description": map[string]interface{}{
				"type":        "string",
				"description": "Full listing description text",
			},
			"summary": map[string]interface{}{
				"type":        "string",
				"description": "Two or three factual sentences about the property, no marketing language",
			},
			"renovation_condition": map[string]interface{}{
				"type":        "string",
				"description": "Condition of the property",
				"enum": []interface{}{
					string(models.ConditionNew),
					string(models.ConditionMinorWorkNeeded),
					string(models.ConditionMajorRenovation),
				},
			},
			"features": map[string]interface{}{
				"type":        "array",
				"description": "Notable features as short phrases (balcony, elevator, garage)",
				"items": map[string]interface{}{
					"type": "string",
				},
			},
			"listing_age": map[string]interface{}{
				"type":        "string",
				"description": "How long the listing has been online, as stated on the page",
			},
		},
		"required": []interface{}{"title", "location", "description", "summary"},
	}
}

// extractionSystemPrompt builds the per-site system instruction.
func extractionSystemPrompt(site *Site) string {
	var b strings.Builder
	b.WriteString("You extract structured data from real estate listing pages. ")
	b.WriteString("You are given the page content as markdown. ")
	b.WriteString("Report only facts present in the content; never invent values. ")
	b.WriteString("Omit optional fields that are not stated on the page. ")
	b.WriteString(site.PromptHint)
	return b.String()
}

// parseExtraction decodes a model response into a listingExtraction,
// tolerating fenced code blocks and surrounding prose. An undecodable
// response is a transient fault so the extraction step retries it.
func parseExtraction(text string) (*listingExtraction, error) {
	cleaned := strings.TrimSpace(text)
	cleaned = strings.TrimPrefix(cleaned, "```json")
	cleaned = strings.TrimPrefix(cleaned, "```")
	cleaned = strings.TrimSuffix(cleaned, "```")
	cleaned = strings.TrimSpace(cleaned)

	start := strings.Index(cleaned, "{")
	end := strings.LastIndex(cleaned, "}")
	if start < 0 || end < start {
		return nil, durable.NewFault(durable.KindTransient, "model response contains no JSON object")
	}

	var extraction listingExtraction
	if err := json.Unmarshal([]byte(cleaned[start:end+1]), &extraction); err != nil {
		return nil, durable.WrapFault(durable.KindTransient, err, "model response is not valid listing JSON")
	}

	applyPlaceholders(&extraction)
	return &extraction, nil
}

// applyPlaceholders fills required text fields the model left empty and
// discards out-of-enum condition values.
func applyPlaceholders(e *listingExtraction) {
	if strings.TrimSpace(e.Title) == "" {
		e.Title = placeholderTitle
	}
	if strings.TrimSpace(e.Location) == "" {
		e.Location = placeholderLocation
	}
	if strings.TrimSpace(e.Description) == "" {
		e.Description = placeholderDescription
	}
	if strings.TrimSpace(e.Summary) == "" {
		e.Summary = e.Description
	}
	if e.RenovationCondition != "" && !models.ValidRenovationCondition(models.RenovationCondition(e.RenovationCondition)) {
		e.RenovationCondition = ""
	}
}
