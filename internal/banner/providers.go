package banner

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"strings"

	// Generative providers return JPEG or PNG; register both decoders.
	_ "image/jpeg"
	_ "image/png"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/alkime/echopost/internal/httpx"
)

// OpenAIProvider generates banners via the OpenAI Images API.
type OpenAIProvider struct {
	apiKey string
	client *httpx.Client
}

// NewOpenAIProvider creates the DALL·E provider. The httpx client is
// used to download the image the API links to.
func NewOpenAIProvider(apiKey string, client *httpx.Client) *OpenAIProvider {
	return &OpenAIProvider{apiKey: apiKey, client: client}
}

func (p *OpenAIProvider) Name() string { return "openai-images" }

// Generate requests one wide image and downloads it.
func (p *OpenAIProvider) Generate(ctx context.Context, prompt string) (image.Image, error) {
	if p.apiKey == "" {
		return nil, ErrUnavailable
	}

	client := openai.NewClient(option.WithAPIKey(p.apiKey))

	params := openai.ImageGenerateParams{
		Prompt:         prompt,
		Model:          openai.ImageModelDallE3,
		Size:           openai.ImageGenerateParamsSize1792x1024,
		ResponseFormat: openai.ImageGenerateParamsResponseFormatURL,
		N:              openai.Int(1),
	}

	resp, err := client.Images.Generate(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("failed to generate image via OpenAI API: %w", err)
	}
	if len(resp.Data) == 0 || resp.Data[0].URL == "" {
		return nil, errors.New("OpenAI API returned no image")
	}

	data, err := p.client.GetBytes(ctx, resp.Data[0].URL)
	if err != nil {
		return nil, fmt.Errorf("failed to download generated image: %w", err)
	}

	return decodeImage(data)
}

const stabilityEngine = "stable-diffusion-xl-1024-v1-0"

// StabilityProvider generates banners via the Stability AI HTTP API.
type StabilityProvider struct {
	apiKey string
	client *httpx.Client
}

// NewStabilityProvider creates the Stability provider.
func NewStabilityProvider(apiKey string, client *httpx.Client) *StabilityProvider {
	return &StabilityProvider{apiKey: apiKey, client: client}
}

func (p *StabilityProvider) Name() string { return "stability" }

// Generate requests one wide SDXL image, returned base64-encoded.
func (p *StabilityProvider) Generate(ctx context.Context, prompt string) (image.Image, error) {
	if p.apiKey == "" {
		return nil, ErrUnavailable
	}

	url := fmt.Sprintf("https://api.stability.ai/v1/generation/%s/text-to-image", stabilityEngine)
	payload := map[string]any{
		"text_prompts": []map[string]any{{"text": prompt}},
		// The widest SDXL-supported dimensions near the banner ratio.
		"width":   1344,
		"height":  768,
		"samples": 1,
	}
	headers := map[string]string{
		"Authorization": "Bearer " + p.apiKey,
		"Accept":        "application/json",
	}

	var out struct {
		Artifacts []struct {
			Base64       string `json:"base64"`
			FinishReason string `json:"finishReason"`
		} `json:"artifacts"`
	}
	if err := p.client.PostJSON(ctx, url, headers, payload, &out); err != nil {
		return nil, fmt.Errorf("failed to generate image via Stability API: %w", err)
	}
	if len(out.Artifacts) == 0 {
		return nil, errors.New("Stability API returned no image")
	}

	data, err := base64.StdEncoding.DecodeString(out.Artifacts[0].Base64)
	if err != nil {
		return nil, fmt.Errorf("failed to decode Stability image payload: %w", err)
	}

	return decodeImage(data)
}

// SDWebUIProvider generates banners via a locally hosted Stable
// Diffusion WebUI instance.
type SDWebUIProvider struct {
	baseURL string
	client  *httpx.Client
}

// NewSDWebUIProvider creates the local SD WebUI provider. An empty
// baseURL leaves the provider unconfigured.
func NewSDWebUIProvider(baseURL string, client *httpx.Client) *SDWebUIProvider {
	return &SDWebUIProvider{baseURL: baseURL, client: client}
}

func (p *SDWebUIProvider) Name() string { return "sd-webui" }

// Generate posts a txt2img request and decodes the base64 result.
func (p *SDWebUIProvider) Generate(ctx context.Context, prompt string) (image.Image, error) {
	if p.baseURL == "" {
		return nil, ErrUnavailable
	}

	url := strings.TrimRight(p.baseURL, "/") + "/sdapi/v1/txt2img"
	payload := map[string]any{
		"prompt": prompt,
		// Dimensions must be multiples of 8; this is the banner ratio.
		"width":  1216,
		"height": 640,
		"steps":  30,
	}

	var out struct {
		Images []string `json:"images"`
	}
	if err := p.client.PostJSON(ctx, url, nil, payload, &out); err != nil {
		return nil, fmt.Errorf("failed to generate image via SD WebUI: %w", err)
	}
	if len(out.Images) == 0 {
		return nil, errors.New("SD WebUI returned no image")
	}

	data, err := base64.StdEncoding.DecodeString(out.Images[0])
	if err != nil {
		return nil, fmt.Errorf("failed to decode SD WebUI image payload: %w", err)
	}

	return decodeImage(data)
}

func decodeImage(data []byte) (image.Image, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode generated image: %w", err)
	}

	return img, nil
}
