package voice

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alkime/echopost/internal/media"
	"github.com/alkime/echopost/internal/post"
	"github.com/alkime/echopost/internal/voice/synth"
)

// fakeProcessor stands in for ffmpeg in stage tests.
type fakeProcessor struct {
	enhanceErr   error
	normalizeErr error
	concatErr    error
	durationErr  error
	concatCalls  int
}

func (f *fakeProcessor) Enhance(_ context.Context, src, dst string) error {
	if f.enhanceErr != nil {
		return f.enhanceErr
	}
	return os.WriteFile(dst, []byte("enhanced"), 0o644) //nolint:gosec // Test file
}

func (f *fakeProcessor) Normalize(_ context.Context, src, dst string) error {
	if f.normalizeErr != nil {
		return f.normalizeErr
	}
	return os.WriteFile(dst, []byte("normalized"), 0o644) //nolint:gosec // Test file
}

func (f *fakeProcessor) Concat(_ context.Context, parts []string, dst string) error {
	f.concatCalls++
	if f.concatErr != nil {
		return f.concatErr
	}
	return os.WriteFile(dst, []byte(fmt.Sprintf("joined %d parts", len(parts))), 0o644) //nolint:gosec // Test file
}

func (f *fakeProcessor) Duration(_ context.Context, path string) (float64, error) {
	if f.durationErr != nil {
		return 0, f.durationErr
	}
	return 12.5, nil
}

// fakeProvider is a mock synthesis provider.
type fakeProvider struct {
	name  string
	err   error
	calls int
}

func (f *fakeProvider) Name() string { return f.name }

func (f *fakeProvider) Synthesize(_ context.Context, text, outPath string) error {
	f.calls++
	if f.err != nil {
		return f.err
	}
	return os.WriteFile(outPath, []byte("tts:"+text), 0o644) //nolint:gosec // Test file
}

func newTestStage(t *testing.T, proc processor, providers ...synth.Provider) (*Stage, *media.Store) {
	t.Helper()

	store, err := media.NewStore(t.TempDir(), "/media")
	require.NoError(t, err)

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

	return &Stage{processor: proc, providers: providers, store: store, logger: logger}, store
}

func seedRecording(t *testing.T) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "memo.mp3")
	//nolint:gosec // Test file
	require.NoError(t, os.WriteFile(path, []byte("raw audio"), 0o644))

	return path
}

func response(text string) *post.ResponseResult {
	return &post.ResponseResult{Text: text, Model: "test-model"}
}

func TestStageRun_FullSuccess(t *testing.T) {
	t.Setenv("TMPDIR", t.TempDir())

	provider := &fakeProvider{name: "openai-tts"}
	stage, store := newTestStage(t, &fakeProcessor{}, provider)

	assets := stage.Run(context.Background(), seedRecording(t), "memo", response("A short answer."))

	assert.False(t, assets.Degraded)
	assert.Empty(t, assets.DegradeReason)

	require.NotNil(t, assets.UserAudio)
	assert.Equal(t, "/media/memo-prompt.mp3", assets.UserAudio.URL)
	assert.Equal(t, store.Path("memo-prompt.mp3"), assets.UserAudio.Path)
	assert.Equal(t, 12.5, assets.UserAudio.Duration)

	require.NotNil(t, assets.ResponseAudio)
	assert.Equal(t, "/media/memo-response.mp3", assets.ResponseAudio.URL)
	assert.Equal(t, 1, provider.calls)
}

func TestStageRun_NoProviderConfigured(t *testing.T) {
	unavailable := &fakeProvider{name: "openai-tts", err: synth.ErrUnavailable}
	stage, _ := newTestStage(t, &fakeProcessor{}, unavailable)

	assets := stage.Run(context.Background(), seedRecording(t), "memo", response("An answer."))

	require.NotNil(t, assets.UserAudio, "user audio must survive synthesis degradation")
	assert.Nil(t, assets.ResponseAudio)
	assert.True(t, assets.Degraded)
	assert.Contains(t, assets.DegradeReason, "no synthesis provider configured")
}

func TestStageRun_ProviderChainAdvances(t *testing.T) {
	failing := &fakeProvider{name: "openai-tts", err: errors.New("quota exceeded")}
	working := &fakeProvider{name: "elevenlabs"}
	stage, _ := newTestStage(t, &fakeProcessor{}, failing, working)

	assets := stage.Run(context.Background(), seedRecording(t), "memo", response("An answer."))

	assert.False(t, assets.Degraded, "a later provider succeeding is not a degradation")
	require.NotNil(t, assets.ResponseAudio)
	assert.Equal(t, 1, failing.calls)
	assert.Equal(t, 1, working.calls)
}

func TestStageRun_AllProvidersFail(t *testing.T) {
	a := &fakeProvider{name: "openai-tts", err: errors.New("quota exceeded")}
	b := &fakeProvider{name: "elevenlabs", err: errors.New("timeout")}
	stage, _ := newTestStage(t, &fakeProcessor{}, a, b)

	assets := stage.Run(context.Background(), seedRecording(t), "memo", response("An answer."))

	assert.Nil(t, assets.ResponseAudio)
	assert.True(t, assets.Degraded)
	assert.Contains(t, assets.DegradeReason, "all synthesis providers failed")
}

func TestStageRun_EnhancementFailureDegrades(t *testing.T) {
	provider := &fakeProvider{name: "openai-tts"}
	stage, _ := newTestStage(t, &fakeProcessor{enhanceErr: errors.New("corrupt input")}, provider)

	assets := stage.Run(context.Background(), seedRecording(t), "memo", response("An answer."))

	assert.Nil(t, assets.UserAudio)
	require.NotNil(t, assets.ResponseAudio, "response audio must survive enhancement failure")
	assert.True(t, assets.Degraded)
	assert.Contains(t, assets.DegradeReason, "user audio enhancement failed")
}

func TestStageRun_LongResponseIsChunkedAndJoined(t *testing.T) {
	proc := &fakeProcessor{}
	provider := &fakeProvider{name: "openai-tts"}
	stage, _ := newTestStage(t, proc, provider)

	long := strings.Repeat("This is one spoken sentence of the answer. ", 200)
	assets := stage.Run(context.Background(), seedRecording(t), "memo", response(long))

	require.NotNil(t, assets.ResponseAudio)
	assert.Greater(t, provider.calls, 1, "long text should be synthesized in chunks")
	assert.Equal(t, 1, proc.concatCalls)
}

func TestStageRun_DurationFailureWithdrawsArtifact(t *testing.T) {
	provider := &fakeProvider{name: "openai-tts"}
	stage, store := newTestStage(t, &fakeProcessor{durationErr: errors.New("unreadable")}, provider)

	assets := stage.Run(context.Background(), seedRecording(t), "memo", response("An answer."))

	assert.Nil(t, assets.UserAudio)
	assert.Nil(t, assets.ResponseAudio)
	assert.True(t, assets.Degraded)

	// Withdrawn artifacts must not linger in the media store
	entries, err := os.ReadDir(store.Dir())
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestStageRun_CleansTempFiles(t *testing.T) {
	tmp := t.TempDir()
	t.Setenv("TMPDIR", tmp)

	provider := &fakeProvider{name: "openai-tts"}
	stage, _ := newTestStage(t, &fakeProcessor{}, provider)

	stage.Run(context.Background(), seedRecording(t), "memo", response("An answer."))

	leftovers, err := filepath.Glob(filepath.Join(tmp, "echopost-audio-*"))
	require.NoError(t, err)
	assert.Empty(t, leftovers, "temp workspace must be removed on success")
}

func TestStageRun_CleansTempFilesOnDegradation(t *testing.T) {
	tmp := t.TempDir()
	t.Setenv("TMPDIR", tmp)

	failing := &fakeProvider{name: "openai-tts", err: errors.New("quota exceeded")}
	stage, _ := newTestStage(t, &fakeProcessor{enhanceErr: errors.New("corrupt input")}, failing)

	assets := stage.Run(context.Background(), seedRecording(t), "memo", response("An answer."))

	assert.True(t, assets.FullyDegraded())

	leftovers, err := filepath.Glob(filepath.Join(tmp, "echopost-audio-*"))
	require.NoError(t, err)
	assert.Empty(t, leftovers, "temp workspace must be removed on degradation too")
}
