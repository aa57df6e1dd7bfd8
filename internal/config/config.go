// Package config loads all echopost configuration from the environment.
package config

import (
	"fmt"
	"log"
	"log/slog"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"github.com/alkime/echopost/internal/platform/keyring"
)

const (
	// EnvProduction represents the production environment.
	EnvProduction = "production"
)

// Config holds all application configuration. It is constructed once at
// process start and passed into each stage's constructor; stages never read
// the environment directly.
type Config struct {
	Env      string `envconfig:"ENV" default:"development"`
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`

	// Queue and content store locations
	QueueDir     string `envconfig:"QUEUE_DIR" default:"audio-queue"`
	ContentDir   string `envconfig:"CONTENT_DIR" default:"content/posts"`
	MediaDir     string `envconfig:"MEDIA_DIR" default:"static/media"`
	MediaBaseURL string `envconfig:"MEDIA_BASE_URL" default:"/media"`

	// Provider credentials. Absence of a credential disables that provider
	// and routes the owning stage down its fallback/degrade path.
	OpenAIAPIKey     string `envconfig:"OPENAI_API_KEY"`
	AnthropicAPIKey  string `envconfig:"ANTHROPIC_API_KEY"`
	ElevenLabsAPIKey string `envconfig:"ELEVENLABS_API_KEY"`
	StabilityAPIKey  string `envconfig:"STABILITY_API_KEY"`
	SDWebUIURL       string `envconfig:"SD_WEBUI_URL"`

	// Generation settings
	SynthesisVoice  string `envconfig:"SYNTHESIS_VOICE" default:"onyx"`
	ResponsePersona string `envconfig:"RESPONSE_PERSONA"`

	// Orchestrator pacing
	StageTimeout  time.Duration `envconfig:"STAGE_TIMEOUT" default:"3m"`
	ItemDelay     time.Duration `envconfig:"ITEM_DELAY" default:"15s"`
	WatchDebounce time.Duration `envconfig:"WATCH_DEBOUNCE" default:"2s"`

	// Publication side effects
	GitCommit bool `envconfig:"GIT_COMMIT" default:"false"`
	GitPush   bool `envconfig:"GIT_PUSH" default:"false"`

	// Ingest server settings
	Port        string `envconfig:"PORT" default:"8080"`
	IngestToken string `envconfig:"INGEST_TOKEN"`
	HSTSMaxAge  int    `envconfig:"HSTS_MAX_AGE" default:"31536000"`
	CSPMode     string `envconfig:"CSP_MODE" default:"relaxed"`
}

// Load loads configuration from .env file and environment variables, then
// fills any missing provider credentials from the system keychain.
func Load() (*Config, error) {
	// Try to load .env file (optional for development)
	if err := godotenv.Load(); err != nil {
		// Not an error if file doesn't exist (expected in production)
		if !os.IsNotExist(err) {
			log.Printf("Warning: Error loading .env file: %v", err)
		}
	}

	// Parse environment variables into config struct
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		return nil, fmt.Errorf("failed to process environment variables: %w", err)
	}

	// Environment variables take priority, fallback to keychain
	resolveFromKeychain(&config.OpenAIAPIKey, keyring.OpenAI)
	resolveFromKeychain(&config.AnthropicAPIKey, keyring.Anthropic)
	resolveFromKeychain(&config.ElevenLabsAPIKey, keyring.ElevenLabs)
	resolveFromKeychain(&config.StabilityAPIKey, keyring.Stability)

	return &config, nil
}

// resolveFromKeychain fills dst from the keychain when the environment left
// it empty. Keychain misses are expected on headless hosts and only logged
// at debug level.
func resolveFromKeychain(dst *string, key keyring.APIKey) {
	if *dst != "" {
		return
	}

	secret, err := keyring.Get(key)
	if err != nil {
		slog.Debug("keychain lookup failed", "key", key.DisplayName(), "error", err)
		return
	}

	*dst = secret
}

// BuildCSP constructs Content Security Policy based on mode.
func BuildCSP(mode string) string {
	if mode == "strict" {
		// Production CSP
		return "default-src 'self'; " +
			"style-src 'self' 'unsafe-inline'; " +
			"script-src 'self'; " +
			"img-src 'self' data:; " +
			"media-src 'self'; " +
			"object-src 'none'; " +
			"base-uri 'self'; " +
			"form-action 'self'"
	}

	// Development/relaxed CSP
	return "default-src 'self'; " +
		"style-src 'self' 'unsafe-inline'; " +
		"script-src 'self' 'unsafe-inline'; " +
		"img-src 'self' data:; " +
		"media-src 'self'"
}
