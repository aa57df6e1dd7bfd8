package transcribe

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// Whisper handles Whisper API transcription requests.
type Whisper struct {
	apiKey string
}

// NewWhisper creates a new speech-to-text client.
func NewWhisper(apiKey string) *Whisper {
	return &Whisper{
		apiKey: apiKey,
	}
}

// Transcribe sends the audio file at path to the Whisper API and
// returns the raw transcript.
func (w *Whisper) Transcribe(ctx context.Context, path string) (string, error) {
	if w.apiKey == "" {
		return "", errors.New("API key required: set OPENAI_API_KEY")
	}

	audioFile, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open audio file: %w", err)
	}
	defer audioFile.Close()

	client := openai.NewClient(option.WithAPIKey(w.apiKey))

	params := openai.AudioTranscriptionNewParams{
		File:  audioFile,
		Model: openai.AudioModelWhisper1,
	}

	resp, err := client.Audio.Transcriptions.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("failed to create transcription via Whisper API: %w", err)
	}

	return resp.Text, nil
}
