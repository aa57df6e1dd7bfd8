// Package voice implements the third pipeline stage: enhancing the
// user's recording and synthesizing spoken audio for the generated
// response. The stage degrades instead of failing; a missing artifact
// never blocks publication.
package voice

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/alkime/echopost/internal/media"
	"github.com/alkime/echopost/internal/post"
	"github.com/alkime/echopost/internal/voice/synth"
)

// processor is the subset of Processor the stage uses.
type processor interface {
	Enhance(ctx context.Context, src, dst string) error
	Normalize(ctx context.Context, src, dst string) error
	Concat(ctx context.Context, parts []string, dst string) error
	Duration(ctx context.Context, path string) (float64, error)
}

// Stage produces the audio assets for one work item.
type Stage struct {
	processor processor
	providers []synth.Provider
	store     *media.Store
	logger    *slog.Logger
}

// NewStage wires the audio stage with its synthesis provider chain, in
// the order the providers should be attempted.
func NewStage(proc *Processor, providers []synth.Provider, store *media.Store, logger *slog.Logger) *Stage {
	return &Stage{
		processor: proc,
		providers: providers,
		store:     store,
		logger:    logger,
	}
}

// Run enhances the recording at itemPath and synthesizes the response
// text, publishing whichever artifacts succeed into the media store
// under the item's stem. It never returns an error; everything that
// goes wrong becomes a degradation reason.
func (s *Stage) Run(ctx context.Context, itemPath, stem string, response *post.ResponseResult) post.AudioAssets {
	var assets post.AudioAssets
	var reasons []string

	tempDir, err := os.MkdirTemp("", "echopost-audio-*")
	if err != nil {
		assets.Degraded = true
		assets.DegradeReason = fmt.Sprintf("failed to create temp workspace: %v", err)
		return assets
	}
	defer os.RemoveAll(tempDir)

	// Step A: enhance the user's original recording.
	enhanced := filepath.Join(tempDir, "prompt.mp3")
	if err := s.processor.Enhance(ctx, itemPath, enhanced); err != nil {
		s.logger.Warn("user audio enhancement failed", "item", stem, "error", err)
		reasons = append(reasons, fmt.Sprintf("user audio enhancement failed: %v", err))
	} else if artifact, err := s.publish(ctx, enhanced, stem+"-prompt.mp3"); err != nil {
		s.logger.Warn("user audio publication failed", "item", stem, "error", err)
		reasons = append(reasons, fmt.Sprintf("user audio publication failed: %v", err))
	} else {
		assets.UserAudio = artifact
	}

	// Step B: synthesize the response text.
	synthesized, err := s.synthesize(ctx, tempDir, response.Text)
	if err != nil {
		s.logger.Warn("response synthesis unavailable", "item", stem, "reason", err)
		reasons = append(reasons, err.Error())
	} else {
		// Step C: match the user recording's loudness.
		normalized := filepath.Join(tempDir, "response.mp3")
		if err := s.processor.Normalize(ctx, synthesized, normalized); err != nil {
			s.logger.Warn("response audio normalization failed", "item", stem, "error", err)
			reasons = append(reasons, fmt.Sprintf("response audio normalization failed: %v", err))
		} else if artifact, err := s.publish(ctx, normalized, stem+"-response.mp3"); err != nil {
			s.logger.Warn("response audio publication failed", "item", stem, "error", err)
			reasons = append(reasons, fmt.Sprintf("response audio publication failed: %v", err))
		} else {
			assets.ResponseAudio = artifact
		}
	}

	if len(reasons) > 0 {
		assets.Degraded = true
		assets.DegradeReason = strings.Join(reasons, "; ")
	}

	return assets
}

// synthesize walks the provider chain until one produces audio for the
// whole response, joining chunked output when necessary. It returns
// the path of the synthesized file inside tempDir.
func (s *Stage) synthesize(ctx context.Context, tempDir, responseText string) (string, error) {
	speech := prepareSpeechText(responseText)
	if speech == "" {
		return "", errors.New("response text has no speakable content")
	}
	chunks := splitForSynthesis(speech, synthesisChunkLimit)

	var lastErr error
	attempted := false
	for _, provider := range s.providers {
		paths, err := s.synthesizeChunks(ctx, provider, tempDir, chunks)
		if errors.Is(err, synth.ErrUnavailable) {
			continue
		}
		attempted = true
		if err != nil {
			s.logger.Warn("synthesis provider failed", "provider", provider.Name(), "error", err)
			lastErr = err
			continue
		}

		if len(paths) == 1 {
			return paths[0], nil
		}
		joined := filepath.Join(tempDir, provider.Name()+"-joined.mp3")
		if err := s.processor.Concat(ctx, paths, joined); err != nil {
			s.logger.Warn("synthesized audio concat failed", "provider", provider.Name(), "error", err)
			lastErr = err
			continue
		}
		return joined, nil
	}

	if !attempted {
		return "", errors.New("no synthesis provider configured")
	}

	return "", fmt.Errorf("all synthesis providers failed: %v", lastErr)
}

func (s *Stage) synthesizeChunks(ctx context.Context, provider synth.Provider, tempDir string, chunks []string) ([]string, error) {
	paths := make([]string, 0, len(chunks))
	for i, chunk := range chunks {
		path := filepath.Join(tempDir, fmt.Sprintf("%s-%03d.mp3", provider.Name(), i))
		if err := provider.Synthesize(ctx, chunk, path); err != nil {
			return nil, err
		}
		paths = append(paths, path)
	}

	return paths, nil
}

// publish copies src into the media store and measures its duration.
// An artifact whose duration cannot be measured is withdrawn so that a
// published artifact always carries a real duration.
func (s *Stage) publish(ctx context.Context, src, name string) (*post.AudioArtifact, error) {
	asset, err := s.store.PutFile(name, src)
	if err != nil {
		return nil, err
	}

	duration, err := s.processor.Duration(ctx, asset.Path)
	if err != nil {
		_ = os.Remove(asset.Path)
		return nil, fmt.Errorf("duration measurement failed: %w", err)
	}

	return &post.AudioArtifact{URL: asset.URL, Path: asset.Path, Duration: duration}, nil
}
