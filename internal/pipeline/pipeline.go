// Package pipeline orchestrates the five stages that turn a queued
// voice recording into a published post. It is the only component that
// sequences stages and interprets their outcomes; the degrade/fail
// policy lives here and in the stage signatures, not scattered across
// stage bodies.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/alkime/echopost/internal/post"
	"github.com/alkime/echopost/internal/queue"
	"github.com/alkime/echopost/pkg/collections"
)

// TranscriptionStage turns a recording into structured post fields.
// Failure is fatal to the item.
type TranscriptionStage interface {
	Run(ctx context.Context, audioPath string) (*post.TranscriptionResult, error)
}

// ResponseStage generates the long-form answer. Failure is fatal to
// the item.
type ResponseStage interface {
	Run(ctx context.Context, tr *post.TranscriptionResult) (*post.ResponseResult, error)
}

// AudioStage produces audio artifacts. It degrades instead of failing,
// which its error-free signature enforces.
type AudioStage interface {
	Run(ctx context.Context, itemPath, stem string, response *post.ResponseResult) post.AudioAssets
}

// ImageStage produces the banner. Its error is reserved for the
// defensive case where even the placeholder could not be persisted.
type ImageStage interface {
	Run(ctx context.Context, tr *post.TranscriptionResult, stem string) (post.ImageAsset, error)
}

// PublicationStage writes the final document. Local write failure is
// fatal to the item.
type PublicationStage interface {
	Run(ctx context.Context, tr *post.TranscriptionResult, response *post.ResponseResult,
		audio post.AudioAssets, img post.ImageAsset) (*post.Document, error)
}

// Options carry the orchestrator's timing configuration.
type Options struct {
	// StageTimeout bounds each external stage call; zero disables the
	// bound.
	StageTimeout time.Duration
	// ItemDelay is the cooperative throttle between batch items.
	ItemDelay time.Duration
	// WatchDebounce is the settle window after a filesystem event.
	WatchDebounce time.Duration
}

// Pipeline carries work items through the stages in order.
type Pipeline struct {
	queue      *queue.Queue
	transcribe TranscriptionStage
	respond    ResponseStage
	audio      AudioStage
	image      ImageStage
	publish    PublicationStage
	opts       Options
	logger     *slog.Logger
}

// New assembles the orchestrator over an opened queue.
func New(
	q *queue.Queue,
	transcribe TranscriptionStage,
	respond ResponseStage,
	audio AudioStage,
	image ImageStage,
	publish PublicationStage,
	opts Options,
	logger *slog.Logger,
) *Pipeline {
	return &Pipeline{
		queue:      q,
		transcribe: transcribe,
		respond:    respond,
		audio:      audio,
		image:      image,
		publish:    publish,
		opts:       opts,
		logger:     logger,
	}
}

// ProcessItem claims one item and carries it through all five stages.
// Stage failures are terminal for the item: they are recorded beside
// it in the failed directory and not returned. The returned error is
// reserved for orchestrator-level faults (claim or terminal moves),
// after which the item stays wherever it physically is.
func (p *Pipeline) ProcessItem(ctx context.Context, item queue.Item) error {
	if err := p.queue.Claim(item); err != nil {
		return fmt.Errorf("failed to claim %s: %w", item.Name, err)
	}
	p.logger.Info("item claimed", "item", item.Name)

	doc, stageErr := p.runStages(ctx, item)
	if stageErr != nil {
		record := failureRecord(item, stageErr)
		p.logger.Error("item failed",
			"item", item.Name,
			"stage", record.FailedAtStage,
			"error", stageErr,
		)
		if err := p.queue.Fail(item, record); err != nil {
			return fmt.Errorf("failed to move %s to failed: %w", item.Name, err)
		}
		return nil
	}

	if err := p.queue.Complete(item); err != nil {
		return fmt.Errorf("failed to move %s to processed: %w", item.Name, err)
	}
	p.logger.Info("item processed", "item", item.Name, "slug", doc.Slug, "path", doc.Path)

	return nil
}

// runStages executes stages 1..5 sequentially, each under its own
// timeout. The first fatal error stops the run; degradable stages
// cannot produce one.
func (p *Pipeline) runStages(ctx context.Context, item queue.Item) (*post.Document, error) {
	itemPath := p.queue.Path(item, queue.StateProcessing)
	stem := item.Stem()

	stageCtx, cancel := p.stageContext(ctx)
	tr, err := p.transcribe.Run(stageCtx, itemPath)
	cancel()
	if err != nil {
		return nil, err
	}
	p.logger.Info("transcription complete", "item", item.Name, "title", tr.Title)

	stageCtx, cancel = p.stageContext(ctx)
	response, err := p.respond.Run(stageCtx, tr)
	cancel()
	if err != nil {
		return nil, err
	}
	p.logger.Info("response generated",
		"item", item.Name,
		"model", response.Model,
		"inputTokens", response.Usage.Input,
		"outputTokens", response.Usage.Output,
	)

	stageCtx, cancel = p.stageContext(ctx)
	audio := p.audio.Run(stageCtx, itemPath, stem, response)
	cancel()
	if audio.Degraded {
		p.logger.Warn("audio degraded", "item", item.Name, "reason", audio.DegradeReason)
	}

	stageCtx, cancel = p.stageContext(ctx)
	img, err := p.image.Run(stageCtx, tr, stem)
	cancel()
	if err != nil {
		return nil, post.NewStageError(post.StageImage, post.ErrKindIO, err)
	}
	if img.Placeholder {
		p.logger.Warn("banner degraded to placeholder", "item", item.Name)
	}

	stageCtx, cancel = p.stageContext(ctx)
	doc, err := p.publish.Run(stageCtx, tr, response, audio, img)
	cancel()
	if err != nil {
		return nil, err
	}

	return doc, nil
}

func (p *Pipeline) stageContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if p.opts.StageTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, p.opts.StageTimeout)
}

// ProcessBatch processes the current queue snapshot sequentially,
// waiting ItemDelay between items as a cooperative throttle on the
// external services. Item failures are recorded, never escalated; the
// returned error is reserved for orchestrator-level faults.
func (p *Pipeline) ProcessBatch(ctx context.Context) error {
	items, err := p.queue.Discover()
	if err != nil {
		return fmt.Errorf("failed to list incoming recordings: %w", err)
	}
	if len(items) == 0 {
		p.logger.Info("queue is empty")
		return nil
	}
	p.logger.Info("processing queue snapshot",
		"count", len(items),
		"items", collections.Apply(items, func(it queue.Item) string { return it.Name }),
	)

	for i, item := range items {
		if i > 0 && p.opts.ItemDelay > 0 {
			select {
			case <-time.After(p.opts.ItemDelay):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		if err := p.ProcessItem(ctx, item); err != nil {
			// The file stays where it physically is; a later sweep or a
			// human picks it up.
			p.logger.Error("item skipped", "item", item.Name, "error", err)
		}
	}

	return nil
}

// Watch sweeps the queue on filesystem events until ctx is cancelled.
// Overlapping sweeps are suppressed inside the queue's watcher.
func (p *Pipeline) Watch(ctx context.Context) error {
	return p.queue.Watch(ctx, p.opts.WatchDebounce, func() {
		if err := p.ProcessBatch(ctx); err != nil && !errors.Is(err, context.Canceled) {
			p.logger.Error("sweep failed", "error", err)
		}
	})
}

// failureRecord converts a fatal stage error into the structured
// record written beside the failed item.
func failureRecord(item queue.Item, err error) queue.FailureRecord {
	record := queue.FailureRecord{
		ItemName:     item.Name,
		Timestamp:    time.Now().UTC().Format(time.RFC3339),
		ErrorMessage: err.Error(),
	}

	var stageErr *post.StageError
	if errors.As(err, &stageErr) {
		record.FailedAtStage = stageErr.Stage
		record.ErrorMessage = fmt.Sprintf("%s stage failed (%s)", stageName(stageErr.Stage), stageErr.Kind)
		record.ErrorDetail = err.Error()
	}

	return record
}

func stageName(stage int) string {
	switch stage {
	case post.StageTranscription:
		return "transcription"
	case post.StageResponse:
		return "response"
	case post.StageAudio:
		return "audio"
	case post.StageImage:
		return "image"
	case post.StagePublication:
		return "publication"
	default:
		return "orchestrator"
	}
}
