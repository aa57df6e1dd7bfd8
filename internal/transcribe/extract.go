package transcribe

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/alkime/echopost/internal/post"
)

// ErrMalformedExtraction marks responses the model returned but that
// could not be parsed into a usable transcription result. Callers use
// it to distinguish a bad response from a failed service call.
var ErrMalformedExtraction = errors.New("malformed extraction response")

// Extractor turns a raw transcript into structured post fields via the
// Anthropic API.
type Extractor struct {
	apiKey string
	model  anthropic.Model
}

// NewExtractor creates a new extraction client.
func NewExtractor(apiKey string) *Extractor {
	return &Extractor{
		apiKey: apiKey,
		model:  anthropic.ModelClaudeSonnet4_5_20250929,
	}
}

// extractionToolInput defines the tool input schema for extraction.
type extractionToolInput struct {
	Transcript string   `json:"transcript"`
	Prompt     string   `json:"prompt"`
	Context    string   `json:"context"`
	Title      string   `json:"title"`
	Tags       []string `json:"tags"`
	Summary    string   `json:"summary"`
	Excerpt    string   `json:"excerpt"`
}

// getExtractionTool returns the tool definition for structured extraction.
func getExtractionTool() anthropic.ToolParam {
	return anthropic.ToolParam{
		Name: "save_transcription",
		Description: anthropic.String(
			"Save the cleaned transcript and the post fields derived from it",
		),
		InputSchema: anthropic.ToolInputSchemaParam{
			Type: "object",
			Properties: map[string]interface{}{
				"transcript": map[string]interface{}{
					"type":        "string",
					"description": "The full cleaned transcript with filler words removed",
				},
				"prompt": map[string]interface{}{
					"type":        "string",
					"description": "The speaker's actual request or question",
				},
				"context": map[string]interface{}{
					"type":        "string",
					"description": "Situational background the speaker gave, empty if none",
				},
				"title": map[string]interface{}{
					"type":        "string",
					"description": "Concise descriptive post title",
				},
				"tags": map[string]interface{}{
					"type": "array",
					"items": map[string]interface{}{
						"type": "string",
					},
					"description": "2-5 lowercase topical tags",
				},
				"summary": map[string]interface{}{
					"type":        "string",
					"description": "One-to-two sentence summary of the request",
				},
				"excerpt": map[string]interface{}{
					"type":        "string",
					"description": "Short excerpt for listing pages, under 160 characters",
				},
			},
			Required: []string{"transcript", "prompt", "title", "tags", "summary", "excerpt"},
		},
	}
}

// parseExtractionToolUse extracts the tool input from response content blocks.
func parseExtractionToolUse(content []anthropic.ContentBlockUnion) (*extractionToolInput, error) {
	for _, block := range content {
		if toolUse, ok := block.AsAny().(anthropic.ToolUseBlock); ok {
			var toolInput extractionToolInput
			inputBytes, err := json.Marshal(toolUse.Input)
			if err != nil {
				return nil, fmt.Errorf("%w: failed to marshal tool input: %v", ErrMalformedExtraction, err)
			}
			if err := json.Unmarshal(inputBytes, &toolInput); err != nil {
				return nil, fmt.Errorf("%w: failed to parse tool input: %v", ErrMalformedExtraction, err)
			}

			return &toolInput, nil
		}
	}

	return nil, fmt.Errorf("%w: no tool use found in Anthropic API response", ErrMalformedExtraction)
}

// Extract sends the raw transcript for cleanup and field extraction.
func (e *Extractor) Extract(ctx context.Context, rawTranscript string) (*post.TranscriptionResult, error) {
	if e.apiKey == "" {
		return nil, errors.New("API key required: set ANTHROPIC_API_KEY")
	}

	client := anthropic.NewClient(option.WithAPIKey(e.apiKey))
	toolDef := getExtractionTool()

	tool := anthropic.ToolUnionParamOfTool(toolDef.InputSchema, toolDef.Name)
	tool.OfTool.Description = toolDef.Description

	params := anthropic.MessageNewParams{
		Model:     e.model,
		MaxTokens: 4096,
		System: []anthropic.TextBlockParam{
			{Text: ExtractionSystemPrompt},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(rawTranscript)),
		},
		Tools:      []anthropic.ToolUnionParam{tool},
		ToolChoice: anthropic.ToolChoiceParamOfTool("save_transcription"),
	}

	resp, err := client.Messages.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("failed to extract post fields via Anthropic API: %w", err)
	}

	if len(resp.Content) == 0 {
		return nil, fmt.Errorf("%w: empty response from Anthropic API", ErrMalformedExtraction)
	}

	toolInput, err := parseExtractionToolUse(resp.Content)
	if err != nil {
		return nil, err
	}

	return &post.TranscriptionResult{
		Transcript: toolInput.Transcript,
		Prompt:     toolInput.Prompt,
		Context:    toolInput.Context,
		Title:      toolInput.Title,
		Tags:       toolInput.Tags,
		Summary:    toolInput.Summary,
		Excerpt:    toolInput.Excerpt,
	}, nil
}
