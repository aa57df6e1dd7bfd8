package synth

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

const defaultVoice = "onyx"

// OpenAI synthesizes speech via the OpenAI TTS API.
type OpenAI struct {
	apiKey string
	voice  string
}

// NewOpenAI creates the OpenAI synthesis provider. An empty voice
// selects the default.
func NewOpenAI(apiKey, voice string) *OpenAI {
	if voice == "" {
		voice = defaultVoice
	}

	return &OpenAI{apiKey: apiKey, voice: voice}
}

func (o *OpenAI) Name() string { return "openai-tts" }

// Synthesize renders text to MP3 at outPath.
func (o *OpenAI) Synthesize(ctx context.Context, text, outPath string) error {
	if o.apiKey == "" {
		return ErrUnavailable
	}

	client := openai.NewClient(option.WithAPIKey(o.apiKey))

	params := openai.AudioSpeechNewParams{
		Model:          openai.SpeechModelTTS1,
		Input:          text,
		Voice:          openai.AudioSpeechNewParamsVoice(o.voice),
		ResponseFormat: openai.AudioSpeechNewParamsResponseFormatMP3,
	}

	resp, err := client.Audio.Speech.New(ctx, params)
	if err != nil {
		return fmt.Errorf("failed to synthesize speech via OpenAI API: %w", err)
	}
	defer resp.Body.Close()

	out, err := os.Create(outPath)
	if err != nil {
		return fmt.Errorf("failed to create audio file: %w", err)
	}

	if _, err := io.Copy(out, resp.Body); err != nil {
		out.Close()
		return fmt.Errorf("failed to write synthesized audio: %w", err)
	}

	return out.Close()
}
