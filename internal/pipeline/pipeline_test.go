package pipeline_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alkime/echopost/internal/pipeline"
	"github.com/alkime/echopost/internal/post"
	"github.com/alkime/echopost/internal/queue"
)

type fakeTranscribe struct {
	result *post.TranscriptionResult
	err    error
	errFor map[string]error
	calls  int
	got    string
}

func (f *fakeTranscribe) Run(_ context.Context, audioPath string) (*post.TranscriptionResult, error) {
	f.calls++
	f.got = audioPath
	if err := f.errFor[filepath.Base(audioPath)]; err != nil {
		return nil, err
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

type fakeRespond struct {
	result *post.ResponseResult
	err    error
	calls  int
}

func (f *fakeRespond) Run(_ context.Context, _ *post.TranscriptionResult) (*post.ResponseResult, error) {
	f.calls++
	return f.result, f.err
}

type fakeAudio struct {
	assets post.AudioAssets
	calls  int
	got    string
}

func (f *fakeAudio) Run(_ context.Context, _, stem string, _ *post.ResponseResult) post.AudioAssets {
	f.calls++
	f.got = stem
	return f.assets
}

type fakeImage struct {
	asset post.ImageAsset
	err   error
	calls int
}

func (f *fakeImage) Run(_ context.Context, _ *post.TranscriptionResult, _ string) (post.ImageAsset, error) {
	f.calls++
	return f.asset, f.err
}

type fakePublish struct {
	doc      *post.Document
	err      error
	calls    int
	gotAudio post.AudioAssets
	gotImage post.ImageAsset
}

func (f *fakePublish) Run(_ context.Context, _ *post.TranscriptionResult, _ *post.ResponseResult,
	audio post.AudioAssets, img post.ImageAsset) (*post.Document, error) {
	f.calls++
	f.gotAudio = audio
	f.gotImage = img
	return f.doc, f.err
}

type harness struct {
	queue      *queue.Queue
	transcribe *fakeTranscribe
	respond    *fakeRespond
	audio      *fakeAudio
	image      *fakeImage
	publish    *fakePublish
	pipeline   *pipeline.Pipeline
}

func newHarness(t *testing.T, opts pipeline.Options) *harness {
	t.Helper()

	q, err := queue.Open(t.TempDir())
	require.NoError(t, err)

	h := &harness{
		queue: q,
		transcribe: &fakeTranscribe{result: &post.TranscriptionResult{
			Transcript: "I keep wondering about home lab backups.",
			Prompt:     "How should I back up my home lab?",
			Title:      "Home Lab Backups",
			Tags:       []string{"homelab", "backups"},
			Summary:    "A question about backup strategy.",
			Excerpt:    "Backup strategy for a small home lab.",
		}},
		respond: &fakeRespond{result: &post.ResponseResult{
			Text:  "Start with the 3-2-1 rule.",
			Model: "test-model",
			Usage: post.TokenUsage{Input: 120, Output: 480},
		}},
		audio: &fakeAudio{assets: post.AudioAssets{
			UserAudio:     &post.AudioArtifact{URL: "/media/memo-prompt.mp3", Duration: 12},
			ResponseAudio: &post.AudioArtifact{URL: "/media/memo-response.mp3", Duration: 95},
		}},
		image:   &fakeImage{asset: post.ImageAsset{URL: "/media/memo-banner.png", Width: 1200, Height: 630}},
		publish: &fakePublish{doc: &post.Document{Slug: "home-lab-backups", Path: "/content/post.md"}},
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h.pipeline = pipeline.New(q, h.transcribe, h.respond, h.audio, h.image, h.publish, opts, logger)

	return h
}

func (h *harness) seed(t *testing.T, name string) queue.Item {
	t.Helper()
	path := filepath.Join(h.queue.Dir(queue.StateIncoming), name)
	//nolint:gosec // Test file
	require.NoError(t, os.WriteFile(path, []byte("audio-bytes"), 0o644))
	return queue.Item{Name: name}
}

func (h *harness) stateOf(t *testing.T, item queue.Item) queue.State {
	t.Helper()
	for _, state := range []queue.State{queue.StateIncoming, queue.StateProcessing, queue.StateProcessed, queue.StateFailed} {
		if _, err := os.Stat(h.queue.Path(item, state)); err == nil {
			return state
		}
	}
	t.Fatalf("item %s not found in any queue directory", item.Name)
	return ""
}

func (h *harness) failureRecord(t *testing.T, item queue.Item) queue.FailureRecord {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(h.queue.Dir(queue.StateFailed), item.Stem()+"-error.log"))
	require.NoError(t, err)

	var record queue.FailureRecord
	require.NoError(t, json.Unmarshal(data, &record))
	return record
}

func TestProcessItemSuccess(t *testing.T) {
	h := newHarness(t, pipeline.Options{})
	item := h.seed(t, "memo.mp3")

	require.NoError(t, h.pipeline.ProcessItem(context.Background(), item))

	assert.Equal(t, queue.StateProcessed, h.stateOf(t, item))
	assert.Equal(t, 1, h.transcribe.calls)
	assert.Equal(t, 1, h.respond.calls)
	assert.Equal(t, 1, h.audio.calls)
	assert.Equal(t, 1, h.image.calls)
	assert.Equal(t, 1, h.publish.calls)

	// Stages see the claimed file and the derived stem.
	assert.Equal(t, h.queue.Path(item, queue.StateProcessing), h.transcribe.got)
	assert.Equal(t, "memo", h.audio.got)

	// Publication receives the upstream artifacts untouched.
	assert.Equal(t, h.audio.assets, h.publish.gotAudio)
	assert.Equal(t, h.image.asset, h.publish.gotImage)
}

func TestProcessItemTranscriptionFailureStopsEarly(t *testing.T) {
	h := newHarness(t, pipeline.Options{})
	h.transcribe.err = post.NewStageError(post.StageTranscription, post.ErrKindService,
		errors.New("transcription service returned status 500"))
	item := h.seed(t, "memo.mp3")

	// A stage failure is terminal for the item but not for the caller.
	require.NoError(t, h.pipeline.ProcessItem(context.Background(), item))

	assert.Equal(t, queue.StateFailed, h.stateOf(t, item))
	assert.Equal(t, 0, h.respond.calls)
	assert.Equal(t, 0, h.audio.calls)
	assert.Equal(t, 0, h.image.calls)
	assert.Equal(t, 0, h.publish.calls)

	record := h.failureRecord(t, item)
	assert.Equal(t, "memo.mp3", record.ItemName)
	assert.Equal(t, post.StageTranscription, record.FailedAtStage)
	assert.Equal(t, "transcription stage failed (service)", record.ErrorMessage)
	assert.Contains(t, record.ErrorDetail, "status 500")

	_, err := time.Parse(time.RFC3339, record.Timestamp)
	assert.NoError(t, err)
}

func TestProcessItemResponseFailure(t *testing.T) {
	h := newHarness(t, pipeline.Options{})
	h.respond.err = post.NewStageError(post.StageResponse, post.ErrKindParse,
		errors.New("model returned empty response text"))
	item := h.seed(t, "memo.mp3")

	require.NoError(t, h.pipeline.ProcessItem(context.Background(), item))

	assert.Equal(t, queue.StateFailed, h.stateOf(t, item))
	assert.Equal(t, 0, h.audio.calls)

	record := h.failureRecord(t, item)
	assert.Equal(t, post.StageResponse, record.FailedAtStage)
	assert.Equal(t, "response stage failed (parse)", record.ErrorMessage)
}

func TestProcessItemDegradedAudioStillPublishes(t *testing.T) {
	h := newHarness(t, pipeline.Options{})
	h.audio.assets = post.AudioAssets{
		UserAudio:     &post.AudioArtifact{URL: "/media/memo-prompt.mp3", Duration: 12},
		Degraded:      true,
		DegradeReason: "all synthesis providers failed",
	}
	item := h.seed(t, "memo.mp3")

	require.NoError(t, h.pipeline.ProcessItem(context.Background(), item))

	assert.Equal(t, queue.StateProcessed, h.stateOf(t, item))
	require.Equal(t, 1, h.publish.calls)
	assert.True(t, h.publish.gotAudio.Degraded)
	assert.Nil(t, h.publish.gotAudio.ResponseAudio)
}

func TestProcessItemPlaceholderBannerStillPublishes(t *testing.T) {
	h := newHarness(t, pipeline.Options{})
	h.image.asset = post.ImageAsset{URL: "/media/memo-banner.png", Placeholder: true}
	item := h.seed(t, "memo.mp3")

	require.NoError(t, h.pipeline.ProcessItem(context.Background(), item))

	assert.Equal(t, queue.StateProcessed, h.stateOf(t, item))
	assert.True(t, h.publish.gotImage.Placeholder)
}

func TestProcessItemPlaceholderPersistFailure(t *testing.T) {
	h := newHarness(t, pipeline.Options{})
	h.image.err = errors.New("failed to persist placeholder banner: disk full")
	item := h.seed(t, "memo.mp3")

	require.NoError(t, h.pipeline.ProcessItem(context.Background(), item))

	assert.Equal(t, queue.StateFailed, h.stateOf(t, item))
	assert.Equal(t, 0, h.publish.calls)

	record := h.failureRecord(t, item)
	assert.Equal(t, post.StageImage, record.FailedAtStage)
	assert.Equal(t, "image stage failed (io)", record.ErrorMessage)
	assert.Contains(t, record.ErrorDetail, "disk full")
}

func TestProcessItemPublicationFailure(t *testing.T) {
	h := newHarness(t, pipeline.Options{})
	h.publish.doc = nil
	h.publish.err = post.NewStageError(post.StagePublication, post.ErrKindIO,
		errors.New("failed to write document"))
	item := h.seed(t, "memo.mp3")

	require.NoError(t, h.pipeline.ProcessItem(context.Background(), item))

	assert.Equal(t, queue.StateFailed, h.stateOf(t, item))

	record := h.failureRecord(t, item)
	assert.Equal(t, post.StagePublication, record.FailedAtStage)
}

func TestProcessItemUntaggedErrorRecordsStageZero(t *testing.T) {
	h := newHarness(t, pipeline.Options{})
	h.transcribe.err = errors.New("unexpected panic recovered")
	item := h.seed(t, "memo.mp3")

	require.NoError(t, h.pipeline.ProcessItem(context.Background(), item))

	record := h.failureRecord(t, item)
	assert.Equal(t, 0, record.FailedAtStage)
	assert.Equal(t, "unexpected panic recovered", record.ErrorMessage)
	assert.Empty(t, record.ErrorDetail)
}

func TestProcessItemClaimFailureIsReturned(t *testing.T) {
	h := newHarness(t, pipeline.Options{})

	err := h.pipeline.ProcessItem(context.Background(), queue.Item{Name: "ghost.mp3"})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to claim ghost.mp3")
	assert.Equal(t, 0, h.transcribe.calls)
}

func TestProcessBatchContinuesPastFailures(t *testing.T) {
	h := newHarness(t, pipeline.Options{})
	h.transcribe.errFor = map[string]error{
		"bad.mp3": post.NewStageError(post.StageTranscription, post.ErrKindService, errors.New("unreachable")),
	}
	bad := h.seed(t, "bad.mp3")
	good := h.seed(t, "good.mp3")

	require.NoError(t, h.pipeline.ProcessBatch(context.Background()))

	assert.Equal(t, queue.StateFailed, h.stateOf(t, bad))
	assert.Equal(t, queue.StateProcessed, h.stateOf(t, good))
	assert.Equal(t, 2, h.transcribe.calls)
	assert.Equal(t, 1, h.publish.calls)
}

func TestProcessBatchAppliesItemDelay(t *testing.T) {
	h := newHarness(t, pipeline.Options{ItemDelay: 30 * time.Millisecond})
	h.seed(t, "a.mp3")
	h.seed(t, "b.mp3")
	h.seed(t, "c.mp3")

	start := time.Now()
	require.NoError(t, h.pipeline.ProcessBatch(context.Background()))

	// Two inter-item gaps for three items; no delay before the first.
	assert.GreaterOrEqual(t, time.Since(start), 60*time.Millisecond)
	assert.Equal(t, 3, h.publish.calls)
}

func TestProcessBatchEmptyQueue(t *testing.T) {
	h := newHarness(t, pipeline.Options{})

	require.NoError(t, h.pipeline.ProcessBatch(context.Background()))

	assert.Equal(t, 0, h.transcribe.calls)
}

func TestProcessBatchStopsOnCancelledContext(t *testing.T) {
	h := newHarness(t, pipeline.Options{ItemDelay: time.Minute})
	h.seed(t, "a.mp3")
	h.seed(t, "b.mp3")

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := h.pipeline.ProcessBatch(ctx)

	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 1, h.transcribe.calls)
}

func TestWatchProcessesDroppedRecording(t *testing.T) {
	h := newHarness(t, pipeline.Options{WatchDebounce: 20 * time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- h.pipeline.Watch(ctx) }()

	// Let the watcher arm before dropping the file.
	time.Sleep(50 * time.Millisecond)
	item := h.seed(t, "dropped.mp3")

	require.Eventually(t, func() bool {
		_, err := os.Stat(h.queue.Path(item, queue.StateProcessed))
		return err == nil
	}, 3*time.Second, 20*time.Millisecond, "dropped recording was never processed")

	cancel()
	require.NoError(t, <-done)
}
