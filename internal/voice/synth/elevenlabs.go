package synth

import (
	"context"
	"fmt"
	"os"

	"github.com/alkime/echopost/internal/httpx"
)

const (
	elevenLabsBaseURL = "https://api.elevenlabs.io/v1"
	// Adam, one of ElevenLabs' stock voices.
	defaultElevenLabsVoiceID = "pNInz6obpgDQGcFmaJgB"
	elevenLabsModelID        = "eleven_multilingual_v2"
)

// ElevenLabs synthesizes speech via the ElevenLabs HTTP API.
type ElevenLabs struct {
	apiKey  string
	voiceID string
	client  *httpx.Client
}

// NewElevenLabs creates the ElevenLabs synthesis provider. An empty
// voiceID selects a stock voice.
func NewElevenLabs(apiKey, voiceID string, client *httpx.Client) *ElevenLabs {
	if voiceID == "" {
		voiceID = defaultElevenLabsVoiceID
	}

	return &ElevenLabs{apiKey: apiKey, voiceID: voiceID, client: client}
}

func (e *ElevenLabs) Name() string { return "elevenlabs" }

// Synthesize renders text to MP3 at outPath.
func (e *ElevenLabs) Synthesize(ctx context.Context, text, outPath string) error {
	if e.apiKey == "" {
		return ErrUnavailable
	}

	url := fmt.Sprintf("%s/text-to-speech/%s", elevenLabsBaseURL, e.voiceID)
	payload := map[string]any{
		"text":     text,
		"model_id": elevenLabsModelID,
	}
	headers := map[string]string{
		"xi-api-key": e.apiKey,
		"Accept":     "audio/mpeg",
	}

	data, err := e.client.PostForBytes(ctx, url, headers, payload)
	if err != nil {
		return fmt.Errorf("failed to synthesize speech via ElevenLabs API: %w", err)
	}

	//nolint:gosec // Synthesized audio is served publicly
	if err := os.WriteFile(outPath, data, 0o644); err != nil {
		return fmt.Errorf("failed to write synthesized audio: %w", err)
	}

	return nil
}
