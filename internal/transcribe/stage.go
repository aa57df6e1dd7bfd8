// Package transcribe implements the first pipeline stage: speech-to-text
// on the recording, then structured extraction of the fields a post
// needs (cleaned transcript, prompt, context, title, tags, summary,
// excerpt).
package transcribe

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/alkime/echopost/internal/post"
)

// transcriber produces a raw transcript from an audio file.
type transcriber interface {
	Transcribe(ctx context.Context, path string) (string, error)
}

// extractor derives structured post fields from a raw transcript.
type extractor interface {
	Extract(ctx context.Context, rawTranscript string) (*post.TranscriptionResult, error)
}

// Stage runs transcription and extraction for one recording. Any
// failure is fatal to the item; parse/validation failures are reported
// distinctly from service failures.
type Stage struct {
	transcriber transcriber
	extractor   extractor
}

// NewStage wires the production Whisper and Anthropic clients.
func NewStage(openaiKey, anthropicKey string) *Stage {
	return &Stage{
		transcriber: NewWhisper(openaiKey),
		extractor:   NewExtractor(anthropicKey),
	}
}

// Run transcribes the audio at path and extracts post fields from it.
func (s *Stage) Run(ctx context.Context, path string) (*post.TranscriptionResult, error) {
	rawTranscript, err := s.transcriber.Transcribe(ctx, path)
	if err != nil {
		return nil, post.NewStageError(post.StageTranscription, post.ErrKindService, err)
	}

	result, err := s.extractor.Extract(ctx, rawTranscript)
	if err != nil {
		kind := post.ErrKindService
		if errors.Is(err, ErrMalformedExtraction) {
			kind = post.ErrKindParse
		}
		return nil, post.NewStageError(post.StageTranscription, kind, err)
	}

	if err := validateResult(result); err != nil {
		return nil, post.NewStageError(post.StageTranscription, post.ErrKindParse, err)
	}

	return result, nil
}

// validateResult checks that every required field is present. Context
// is the only optional field.
func validateResult(result *post.TranscriptionResult) error {
	var missing []string

	for field, value := range map[string]string{
		"transcript": result.Transcript,
		"prompt":     result.Prompt,
		"title":      result.Title,
		"summary":    result.Summary,
		"excerpt":    result.Excerpt,
	} {
		if strings.TrimSpace(value) == "" {
			missing = append(missing, field)
		}
	}
	if len(result.Tags) == 0 {
		missing = append(missing, "tags")
	}

	if len(missing) > 0 {
		// Map iteration order is random; keep messages stable.
		sort.Strings(missing)
		return fmt.Errorf("extraction missing required fields: %s", strings.Join(missing, ", "))
	}

	return nil
}
