package llm

import (
	"testing"

	"github.com/ternarybob/domus/internal/common"
	"github.com/ternarybob/domus/internal/interfaces"
	"google.golang.org/genai"
)

func newTestFactory(defaultProvider common.LLMProvider) *ProviderFactory {
	return NewProviderFactory(
		&common.ClaudeConfig{Model: "claude-sonnet-4-20250514"},
		&common.GeminiConfig{Model: "gemini-3-flash-preview"},
		&common.LLMConfig{DefaultProvider: defaultProvider},
		nil,
		common.GetLogger(),
	)
}

func TestDetectProvider(t *testing.T) {
	factory := newTestFactory(common.LLMProviderClaude)

	tests := []struct {
		model    string
		expected ProviderType
	}{
		{"claude-sonnet-4-20250514", ProviderClaude},
		{"claude/claude-sonnet-4-20250514", ProviderClaude},
		{"anthropic/claude-sonnet-4-20250514", ProviderClaude},
		{"gemini-3-flash-preview", ProviderGemini},
		{"gemini/gemini-3-flash-preview", ProviderGemini},
		{"google/gemini-3-flash-preview", ProviderGemini},
		{"", ProviderClaude},
		{"gpt-4", ProviderClaude},
	}

	for _, tt := range tests {
		if got := factory.DetectProvider(tt.model); got != tt.expected {
			t.Errorf("DetectProvider(%q) = %s, want %s", tt.model, got, tt.expected)
		}
	}

	geminiDefault := newTestFactory(common.LLMProviderGemini)
	if got := geminiDefault.DetectProvider(""); got != ProviderGemini {
		t.Errorf("empty model must use configured default, got %s", got)
	}
}

func TestNormalizeModel(t *testing.T) {
	factory := newTestFactory(common.LLMProviderClaude)

	tests := []struct {
		model    string
		expected string
	}{
		{"claude/claude-sonnet-4-20250514", "claude-sonnet-4-20250514"},
		{"gemini/gemini-3-flash-preview", "gemini-3-flash-preview"},
		{"claude-sonnet-4-20250514", "claude-sonnet-4-20250514"},
		{"", ""},
	}

	for _, tt := range tests {
		if got := factory.NormalizeModel(tt.model); got != tt.expected {
			t.Errorf("NormalizeModel(%q) = %q, want %q", tt.model, got, tt.expected)
		}
	}
}

func TestConvertMessages(t *testing.T) {
	rest, system, err := convertMessages([]interfaces.Message{
		{Role: "system", Content: "be brief"},
		{Role: "user", Content: "hello"},
		{Role: "assistant", Content: "hi"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if system != "be brief" {
		t.Errorf("expected system text extracted, got %q", system)
	}
	if len(rest) != 2 {
		t.Errorf("expected 2 non-system messages, got %d", len(rest))
	}

	if _, _, err := convertMessages(nil); err == nil {
		t.Error("expected error for empty messages")
	}
	if _, _, err := convertMessages([]interfaces.Message{{Role: "assistant", Content: "hi"}}); err == nil {
		t.Error("expected error when no user message present")
	}
}

func TestConvertToGenaiSchema(t *testing.T) {
	schema, err := convertToGenaiSchema(map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"title": map[string]interface{}{"type": "string", "description": "listing title"},
			"price": map[string]interface{}{"type": "number"},
			"condition": map[string]interface{}{
				"type": "string",
				"enum": []string{"new", "minor-work-needed"},
			},
			"features": map[string]interface{}{
				"type":  "array",
				"items": map[string]interface{}{"type": "string"},
			},
		},
		"required": []string{"title"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if schema.Type != genai.TypeObject {
		t.Errorf("expected object type, got %v", schema.Type)
	}
	if schema.Properties["title"].Type != genai.TypeString {
		t.Error("expected string title property")
	}
	if schema.Properties["title"].Description != "listing title" {
		t.Error("expected description carried through")
	}
	if len(schema.Properties["condition"].Enum) != 2 {
		t.Errorf("expected 2 enum values, got %d", len(schema.Properties["condition"].Enum))
	}
	if schema.Properties["features"].Items.Type != genai.TypeString {
		t.Error("expected string array items")
	}
	if len(schema.Required) != 1 || schema.Required[0] != "title" {
		t.Errorf("expected required [title], got %v", schema.Required)
	}

	empty, err := convertToGenaiSchema(nil)
	if err != nil || empty != nil {
		t.Error("empty schema map must convert to nil schema")
	}
}
