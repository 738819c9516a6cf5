package interfaces

import (
	"context"
)

// Message represents a single message in a model conversation.
type Message struct {
	// Role identifies the message sender: "user", "assistant", or "system"
	Role string

	// Content contains the text content of the message
	Content string
}

// CompletionRequest is a provider-agnostic content generation request.
type CompletionRequest struct {
	Messages          []Message
	Model             string
	Temperature       float32
	MaxTokens         int
	SystemInstruction string
	// OutputSchema constrains the response to a JSON document matching the
	// schema, for providers that support structured output.
	OutputSchema map[string]interface{}
}

// CompletionResponse is a provider-agnostic content generation response.
type CompletionResponse struct {
	Text     string
	Provider string
	Model    string
}

// ContentGenerator is the capability consumed by extraction and Q&A. The
// production implementation routes to Claude or Gemini; tests substitute
// fakes. Callers must invoke it only from inside a journaled step so that
// replay never issues a second real model call.
type ContentGenerator interface {
	GenerateContent(ctx context.Context, request *CompletionRequest) (*CompletionResponse, error)
}
