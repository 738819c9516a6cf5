package scraper

import (
	"testing"

	"github.com/ternarybob/domus/internal/durable"
)

func TestParseExtractionCleanJSON(t *testing.T) {
	text := `{"title":"Trilocale Porta Romana","price":385000,"location":"Porta Romana, Milano","size_sqm":95,"rooms":3,"bathrooms":2,"description":"Appartamento da ristrutturare.","summary":"95 sqm flat with 3 rooms.","renovation_condition":"major-renovation-needed","features":["balcone","ascensore"],"listing_age":"2 weeks"}`

	extraction, err := parseExtraction(text)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if extraction.Title != "Trilocale Porta Romana" {
		t.Errorf("unexpected title %q", extraction.Title)
	}
	if extraction.Price == nil || *extraction.Price != 385000 {
		t.Error("expected price 385000")
	}
	if extraction.Rooms == nil || *extraction.Rooms != 3 {
		t.Error("expected 3 rooms")
	}
	if extraction.RenovationCondition != "major-renovation-needed" {
		t.Errorf("unexpected condition %q", extraction.RenovationCondition)
	}
	if len(extraction.Features) != 2 {
		t.Errorf("expected 2 features, got %d", len(extraction.Features))
	}
}

func TestParseExtractionFencedJSON(t *testing.T) {
	text := "```json\n{\"title\":\"Bilocale\",\"location\":\"Navigli\",\"description\":\"d\",\"summary\":\"s\"}\n```"

	extraction, err := parseExtraction(text)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if extraction.Title != "Bilocale" {
		t.Errorf("unexpected title %q", extraction.Title)
	}
}

func TestParseExtractionSurroundingProse(t *testing.T) {
	text := `Here is the extracted data: {"title":"Attico","location":"Brera","description":"d","summary":"s"} Let me know if you need anything else.`

	extraction, err := parseExtraction(text)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if extraction.Title != "Attico" {
		t.Errorf("unexpected title %q", extraction.Title)
	}
}

func TestParseExtractionNoJSONIsTransient(t *testing.T) {
	_, err := parseExtraction("I could not find any listing data on this page.")
	if !durable.IsKind(err, durable.KindTransient) {
		t.Fatalf("expected transient fault, got %v", err)
	}
}

func TestParseExtractionInvalidJSONIsTransient(t *testing.T) {
	_, err := parseExtraction(`{"title": "broken`)
	if !durable.IsKind(err, durable.KindTransient) {
		t.Fatalf("expected transient fault, got %v", err)
	}
}

func TestParseExtractionPlaceholders(t *testing.T) {
	extraction, err := parseExtraction(`{}`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if extraction.Title != placeholderTitle {
		t.Errorf("expected placeholder title, got %q", extraction.Title)
	}
	if extraction.Location != placeholderLocation {
		t.Errorf("expected placeholder location, got %q", extraction.Location)
	}
	if extraction.Description != placeholderDescription {
		t.Errorf("expected placeholder description, got %q", extraction.Description)
	}
	if extraction.Summary != placeholderDescription {
		t.Errorf("expected summary to fall back to description, got %q", extraction.Summary)
	}

	// Optional numerics stay nil rather than becoming zero values.
	if extraction.Price != nil || extraction.SizeSqm != nil || extraction.Rooms != nil || extraction.Bathrooms != nil {
		t.Error("missing optional numerics must stay nil")
	}
}

func TestParseExtractionDiscardsUnknownCondition(t *testing.T) {
	extraction, err := parseExtraction(`{"title":"t","location":"l","description":"d","summary":"s","renovation_condition":"sparkling"}`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if extraction.RenovationCondition != "" {
		t.Errorf("out-of-enum condition should be discarded, got %q", extraction.RenovationCondition)
	}
}

func TestListingSchemaShape(t *testing.T) {
	schema := listingSchema()

	props, ok := schema["properties"].(map[string]interface{})
	if !ok {
		t.Fatal("schema must carry properties")
	}
	for _, field := range []string{"title", "price", "location", "size_sqm", "rooms", "bathrooms", "description", "summary", "renovation_condition", "features", "listing_age"} {
		if _, exists := props[field]; !exists {
			t.Errorf("schema missing field %q", field)
		}
	}

	condition := props["renovation_condition"].(map[string]interface{})
	enum := condition["enum"].([]interface{})
	if len(enum) != 3 {
		t.Errorf("expected 3 condition enum values, got %d", len(enum))
	}
}
