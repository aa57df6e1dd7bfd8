package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/alecthomas/kong"

	"github.com/alkime/echopost/internal/banner"
	"github.com/alkime/echopost/internal/config"
	"github.com/alkime/echopost/internal/httpx"
	"github.com/alkime/echopost/internal/logger"
	"github.com/alkime/echopost/internal/media"
	"github.com/alkime/echopost/internal/pipeline"
	"github.com/alkime/echopost/internal/platform/git"
	"github.com/alkime/echopost/internal/platform/keyring"
	"github.com/alkime/echopost/internal/publish"
	"github.com/alkime/echopost/internal/queue"
	"github.com/alkime/echopost/internal/respond"
	"github.com/alkime/echopost/internal/server"
	"github.com/alkime/echopost/internal/transcribe"
	"github.com/alkime/echopost/internal/voice"
	"github.com/alkime/echopost/internal/voice/synth"
)

// CLI defines the echopost command structure.
type CLI struct {
	// Default command (runs when no subcommand given)
	Run RunCmd `cmd:"" default:"withargs" help:"Process queued recordings into published posts"`

	// Subcommands
	Serve   ServeCmd   `cmd:"" help:"Run the HTTP ingest server"`
	Doctor  DoctorCmd  `cmd:"" help:"Check external tools and provider configuration"`
	Analyze AnalyzeCmd `cmd:"" help:"Report detected silence in a recording"`
	Config  ConfigCmd  `cmd:"" help:"Manage configuration"`
}

// RunCmd processes the queue: one batch sweep by default, continuously
// in watch mode.
type RunCmd struct {
	Watch bool `flag:"" short:"w" help:"Keep running and process recordings as they arrive"`
}

// Run executes the run command.
func (c *RunCmd) Run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	log := logger.Setup(cfg, false)

	p, err := buildPipeline(cfg, log)
	if err != nil {
		return err
	}

	// Ctrl-C finishes the in-flight item, then stops.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if c.Watch {
		return p.Watch(ctx)
	}

	if err := p.ProcessBatch(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	return nil
}

// buildPipeline assembles the five stages from configuration. Missing
// provider credentials configure the owning stage's degrade path, they
// do not fail assembly.
func buildPipeline(cfg *config.Config, log *slog.Logger) (*pipeline.Pipeline, error) {
	q, err := queue.Open(cfg.QueueDir)
	if err != nil {
		return nil, fmt.Errorf("failed to open queue: %w", err)
	}

	store, err := media.NewStore(cfg.MediaDir, cfg.MediaBaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open media store: %w", err)
	}

	httpClient := httpx.New(2 * time.Minute)

	// Speech synthesis fallback chain, in preference order.
	speakers := []synth.Provider{
		synth.NewOpenAI(cfg.OpenAIAPIKey, cfg.SynthesisVoice),
		synth.NewElevenLabs(cfg.ElevenLabsAPIKey, "", httpClient),
	}

	// Banner fallback chain; the stage itself terminates it with the
	// local placeholder.
	illustrators := []banner.Provider{
		banner.NewOpenAIProvider(cfg.OpenAIAPIKey, httpClient),
		banner.NewStabilityProvider(cfg.StabilityAPIKey, httpClient),
		banner.NewSDWebUIProvider(cfg.SDWebUIURL, httpClient),
	}

	var publisher *git.Publisher
	if cfg.GitCommit {
		publisher = git.NewPublisher(".", cfg.GitPush)
	}

	return pipeline.New(
		q,
		transcribe.NewStage(cfg.OpenAIAPIKey, cfg.AnthropicAPIKey),
		respond.NewStage(cfg.AnthropicAPIKey, cfg.ResponsePersona),
		voice.NewStage(voice.NewProcessor(), speakers, store, log),
		banner.NewStage(illustrators, store, log),
		publish.NewStage(cfg.ContentDir, publisher, log),
		pipeline.Options{
			StageTimeout:  cfg.StageTimeout,
			ItemDelay:     cfg.ItemDelay,
			WatchDebounce: cfg.WatchDebounce,
		},
		log,
	), nil
}

// ServeCmd runs the HTTP ingest server.
type ServeCmd struct{}

// Run executes the serve command.
func (c *ServeCmd) Run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	log := logger.Setup(cfg, true)

	log.Info("Starting echopost server",
		"env", cfg.Env,
		"port", cfg.Port,
	)

	q, err := queue.Open(cfg.QueueDir)
	if err != nil {
		return fmt.Errorf("failed to open queue: %w", err)
	}

	return server.Run(server.New(cfg, q, log))
}

// DoctorCmd verifies the external tools and credentials the pipeline
// depends on.
type DoctorCmd struct{}

// Run executes the doctor command.
func (c *DoctorCmd) Run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	ready := true

	if err := voice.NewProcessor().Check(context.Background()); err != nil {
		reportBad("ffmpeg", err.Error())
		ready = false
	} else {
		reportGood("ffmpeg", "ffmpeg and ffprobe found")
	}

	if _, err := queue.Open(cfg.QueueDir); err != nil {
		reportBad("queue", err.Error())
		ready = false
	} else {
		reportGood("queue", cfg.QueueDir)
	}

	if _, err := media.NewStore(cfg.MediaDir, cfg.MediaBaseURL); err != nil {
		reportBad("media", err.Error())
		ready = false
	} else {
		reportGood("media", cfg.MediaDir)
	}

	if cfg.GitCommit {
		if branch, err := git.GetCurrentBranch(); err != nil {
			reportBad("git", "commits enabled but no repository found: "+err.Error())
			ready = false
		} else {
			reportGood("git", "publishing to branch "+branch)
		}
	} else {
		reportSkipped("git", "commits disabled")
	}

	// Credentials are reported by presence only, never by value.
	required := []struct {
		name string
		set  bool
		role string
	}{
		{"openai", cfg.OpenAIAPIKey != "", "transcription, speech, banners"},
		{"anthropic", cfg.AnthropicAPIKey != "", "extraction, responses"},
	}
	for _, cred := range required {
		if cred.set {
			reportGood(cred.name, cred.role)
		} else {
			reportBad(cred.name, "not configured ("+cred.role+")")
			ready = false
		}
	}

	optional := []struct {
		name string
		set  bool
		role string
	}{
		{"elevenlabs", cfg.ElevenLabsAPIKey != "", "fallback speech synthesis"},
		{"stability", cfg.StabilityAPIKey != "", "fallback banner generation"},
		{"sd-webui", cfg.SDWebUIURL != "", "local banner generation"},
	}
	for _, cred := range optional {
		if cred.set {
			reportGood(cred.name, cred.role)
		} else {
			reportSkipped(cred.name, "not configured, "+cred.role+" disabled")
		}
	}

	if !ready {
		return errors.New("environment is not ready; fix the items marked above")
	}

	fmt.Println(styleOK.Render("\nall checks passed"))

	return nil
}

// AnalyzeCmd reports the silence spans ffmpeg detects in a recording,
// for tuning trim thresholds against real material.
type AnalyzeCmd struct {
	File string `arg:"" required:"" help:"Path to audio file"`
}

// Run executes the analyze command.
func (c *AnalyzeCmd) Run() error {
	if _, err := os.Stat(c.File); err != nil {
		return fmt.Errorf("file not found: %w", err)
	}

	proc := voice.NewProcessor()
	ctx := context.Background()

	duration, err := proc.Duration(ctx, c.File)
	if err != nil {
		return fmt.Errorf("failed to measure duration: %w", err)
	}

	spans, err := proc.AnalyzeSilence(ctx, c.File)
	if err != nil {
		return fmt.Errorf("failed to analyze silence: %w", err)
	}

	fmt.Printf("%s %.1fs\n", styleLabel.Render("duration:"), duration)

	if len(spans) == 0 {
		fmt.Println(styleMuted.Render("no silence detected at the configured threshold"))
		return nil
	}

	var total float64
	for _, span := range spans {
		total += span.End - span.Start
		fmt.Println(styleMuted.Render(
			fmt.Sprintf("  %7.2fs - %7.2fs  (%.2fs)", span.Start, span.End, span.End-span.Start),
		))
	}

	fmt.Printf("%s %.1fs of %.1fs would be trimmed\n", styleLabel.Render("silence:"), total, duration)

	return nil
}

// ConfigCmd groups configuration-related subcommands.
type ConfigCmd struct {
	SetKey   SetKeyCmd   `cmd:"" help:"Store an API key in system keychain"`
	ListKeys ListKeysCmd `cmd:"" name:"list-keys" help:"Show which API keys are configured"`
}

// SetKeyCmd stores an API key in the system keychain.
type SetKeyCmd struct {
	Service string `arg:"" enum:"openai,anthropic,elevenlabs,stability" help:"Service name"`
	Secret  string `arg:"" help:"API key value"`
}

// Run executes the set-key command.
func (c *SetKeyCmd) Run() error {
	if strings.TrimSpace(c.Secret) == "" {
		return errors.New("API key cannot be empty")
	}

	apiKey, err := keyring.APIKeyFromServiceName(c.Service)
	if err != nil {
		return fmt.Errorf("invalid service: %w", err)
	}

	if err := keyring.Set(apiKey, c.Secret); err != nil {
		return fmt.Errorf("failed to store API key: %w", err)
	}

	fmt.Printf("%s API key stored in keychain\n", c.Service)

	return nil
}

// ListKeysCmd shows which API keys are configured.
type ListKeysCmd struct{}

// Run executes the list-keys command.
//
//nolint:unparam // error return required by Kong interface
func (c *ListKeysCmd) Run() error {
	allSet := true

	for _, apiKey := range keyring.AllAPIKeys() {
		if keyring.IsSet(apiKey) {
			fmt.Printf("%s: configured\n", apiKey.DisplayName())
		} else {
			fmt.Printf("%s: not set\n", apiKey.DisplayName())
			allSet = false
		}
	}

	if !allSet {
		fmt.Println("\nRun 'echopost config set-key <service> <key>' to configure.")
	}

	return nil
}

func main() {
	// Set up text-based logger for CLI output; subcommands replace it
	// once configuration is loaded
	//nolint:exhaustruct // Using default values for other HandlerOptions fields
	handler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})
	slog.SetDefault(slog.New(handler))

	cli := &CLI{} //nolint:exhaustruct // Kong fills in command fields
	ctx := kong.Parse(cli,
		kong.Name("echopost"),
		kong.Description("Turn voice recordings into published multimedia posts."),
	)
	err := ctx.Run()
	ctx.FatalIfErrorf(err)
}
