// Package respond implements the second pipeline stage: generating the
// long-form answer to the prompt extracted from a recording.
package respond

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/alkime/echopost/internal/post"
)

// Stage generates responses via the Anthropic API. Any failure is fatal
// to the item.
type Stage struct {
	apiKey  string
	model   anthropic.Model
	persona string
}

// NewStage creates the response stage. An empty persona selects
// DefaultPersona.
func NewStage(apiKey, persona string) *Stage {
	if strings.TrimSpace(persona) == "" {
		persona = DefaultPersona
	}

	return &Stage{
		apiKey:  apiKey,
		model:   anthropic.ModelClaudeSonnet4_5_20250929,
		persona: persona,
	}
}

// Run generates a response to the extracted prompt, including any
// situational context the speaker gave.
func (s *Stage) Run(ctx context.Context, tr *post.TranscriptionResult) (*post.ResponseResult, error) {
	if s.apiKey == "" {
		return nil, post.NewStageError(post.StageResponse, post.ErrKindService,
			errors.New("API key required: set ANTHROPIC_API_KEY"))
	}

	client := anthropic.NewClient(option.WithAPIKey(s.apiKey))

	params := anthropic.MessageNewParams{
		Model:     s.model,
		MaxTokens: 4096,
		System: []anthropic.TextBlockParam{
			{Text: s.persona},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(buildRequest(tr))),
		},
	}

	resp, err := client.Messages.New(ctx, params)
	if err != nil {
		return nil, post.NewStageError(post.StageResponse, post.ErrKindService,
			fmt.Errorf("failed to generate response via Anthropic API: %w", err))
	}

	text := collectText(resp.Content)
	if strings.TrimSpace(text) == "" {
		return nil, post.NewStageError(post.StageResponse, post.ErrKindParse,
			errors.New("empty response from Anthropic API"))
	}

	return &post.ResponseResult{
		Text:  text,
		Model: string(resp.Model),
		Usage: post.TokenUsage{
			Input:  resp.Usage.InputTokens,
			Output: resp.Usage.OutputTokens,
		},
	}, nil
}

// buildRequest combines the optional context block with the prompt.
func buildRequest(tr *post.TranscriptionResult) string {
	if strings.TrimSpace(tr.Context) == "" {
		return tr.Prompt
	}

	return fmt.Sprintf("Background:\n%s\n\nRequest:\n%s", tr.Context, tr.Prompt)
}

// collectText concatenates the text blocks of a response.
func collectText(blocks []anthropic.ContentBlockUnion) string {
	var b strings.Builder
	for _, block := range blocks {
		if textBlock, ok := block.AsAny().(anthropic.TextBlock); ok {
			b.WriteString(textBlock.Text)
		}
	}

	return b.String()
}
