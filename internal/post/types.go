// Package post defines the results each pipeline stage produces and the
// downstream stages consume. One value of each type is created per work
// item and is immutable after its producing stage returns.
package post

// TranscriptionResult is the structured extraction produced from one voice
// recording. Prompt is never empty on success; absence of a clear request in
// the recording is a transcription-stage failure, not an empty-string result.
type TranscriptionResult struct {
	// Transcript is the full cleaned transcript, disfluencies removed.
	Transcript string
	// Prompt is the literal question or task extracted from the recording.
	Prompt string
	// Context is situational background separated from the prompt. Often empty.
	Context string
	Title   string
	// Tags is order-preserving and non-empty on success.
	Tags    []string
	Summary string
	Excerpt string
}

// TokenUsage records language-model token consumption for one generation.
type TokenUsage struct {
	Input  int64
	Output int64
}

// ResponseResult is the generated long-form answer. Text is non-empty on
// success; an empty generation fails the work item.
type ResponseResult struct {
	// Text is markdown-formatted body content.
	Text  string
	Model string
	Usage TokenUsage
}

// AudioArtifact is one published audio file.
type AudioArtifact struct {
	// URL is the address the published document references.
	URL string
	// Path is the artifact's location in the local media store, kept so the
	// publication stage can hand it to version control.
	Path string
	// Duration in seconds, measured from the decoded audio.
	Duration float64
}

// AudioAssets is the audio stage's degradable result. Either artifact may be
// absent; a missing ResponseAudio never blocks the pipeline. When Degraded
// is set the reason propagates into the published document's metadata.
type AudioAssets struct {
	UserAudio     *AudioArtifact
	ResponseAudio *AudioArtifact
	Degraded      bool
	DegradeReason string
}

// FullyDegraded reports whether no audio artifact survived at all, which
// suppresses the published document's audio section.
func (a AudioAssets) FullyDegraded() bool {
	return a.UserAudio == nil && a.ResponseAudio == nil
}

// ImageAsset is the banner image reference. The image stage always returns
// one: a generative provider's output, or the local placeholder.
type ImageAsset struct {
	URL  string
	Path string
	// Placeholder marks the locally generated fallback image.
	Placeholder bool
	Width       int
	Height      int
	// SourcePrompt is the descriptive prompt the image was generated from.
	SourcePrompt string
}

// Document identifies the persisted post after publication.
type Document struct {
	Slug string
	// Path is the markdown file's location in the content store.
	Path string
}
