package voice

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
)

// Audio processing parameters tuned for desk recordings of voice.
const (
	silenceThreshold = "-40dB"
	silenceDuration  = "0.5"
	targetLoudness   = "-16"
)

// enhanceFilters is the full chain applied to user recordings: adaptive
// denoising, thinking-pause removal, voice EQ, compression, and
// loudness normalization to the podcast-standard target.
func enhanceFilters() string {
	filters := []string{
		"afftdn=nf=-25",
		fmt.Sprintf(
			"silenceremove=start_periods=1:start_silence=%s:start_threshold=%s:stop_periods=-1:stop_silence=%s:stop_threshold=%s:detection=peak",
			silenceDuration, silenceThreshold, silenceDuration, silenceThreshold,
		),
		"highpass=f=100",
		"lowpass=f=10000",
		"equalizer=f=150:t=q:w=1:g=-3",
		"equalizer=f=200:t=q:w=1:g=-2",
		"equalizer=f=3000:t=q:w=2:g=3",
		"acompressor=threshold=-20dB:ratio=4:attack=5:release=50",
		fmt.Sprintf("loudnorm=I=%s:TP=-1.5:LRA=11", targetLoudness),
	}

	return strings.Join(filters, ",")
}

// normalizeFilters is the reduced chain for synthesized speech, which
// has no recording noise or thinking pauses to remove but must match
// the user recording's loudness.
func normalizeFilters() string {
	return fmt.Sprintf("loudnorm=I=%s:TP=-1.5:LRA=11", targetLoudness)
}

// commandResult is an internal process execution response.
type commandResult struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// commandRunner abstracts process execution for testability.
type commandRunner interface {
	Run(ctx context.Context, name string, args ...string) (commandResult, error)
}

// execRunner executes commands via os/exec.
type execRunner struct{}

func (r *execRunner) Run(ctx context.Context, name string, args ...string) (commandResult, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stdout bytes.Buffer
	var stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	result := commandResult{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		ExitCode: 0,
	}
	if err != nil {
		result.ExitCode = -1
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			result.ExitCode = exitErr.ExitCode()
		}
		return result, err
	}

	return result, nil
}

// Processor runs ffmpeg and ffprobe for audio enhancement and
// inspection.
type Processor struct {
	ffmpegPath  string
	ffprobePath string
	runner      commandRunner
}

// NewProcessor constructs a processor using the ffmpeg and ffprobe
// binaries on PATH.
func NewProcessor() *Processor {
	return &Processor{
		ffmpegPath:  "ffmpeg",
		ffprobePath: "ffprobe",
		runner:      &execRunner{},
	}
}

// Enhance applies the full voice chain to src and writes a 44.1 kHz
// mono 96k MP3 to dst.
func (p *Processor) Enhance(ctx context.Context, src, dst string) error {
	return p.transcode(ctx, src, dst, enhanceFilters())
}

// Normalize applies loudness normalization only, for audio that is
// already clean speech.
func (p *Processor) Normalize(ctx context.Context, src, dst string) error {
	return p.transcode(ctx, src, dst, normalizeFilters())
}

func (p *Processor) transcode(ctx context.Context, src, dst, filters string) error {
	args := []string{
		"-loglevel", "error",
		"-i", src,
		"-af", filters,
		"-ar", "44100",
		"-ac", "1",
		"-c:a", "libmp3lame",
		"-b:a", "96k",
		"-y",
		dst,
	}

	result, err := p.runner.Run(ctx, p.ffmpegPath, args...)
	if err != nil {
		return fmt.Errorf("ffmpeg processing failed: %w (%s)", err, strings.TrimSpace(result.Stderr))
	}

	return nil
}

// Concat joins same-codec audio files into dst without re-encoding.
func (p *Processor) Concat(ctx context.Context, parts []string, dst string) error {
	if len(parts) == 0 {
		return errors.New("no audio parts to concatenate")
	}

	// The concat demuxer reads inputs from a list file.
	listPath := dst + ".list"
	var b strings.Builder
	for _, part := range parts {
		fmt.Fprintf(&b, "file '%s'\n", part)
	}
	//nolint:gosec // Transient list file next to the output
	if err := os.WriteFile(listPath, []byte(b.String()), 0o644); err != nil {
		return fmt.Errorf("failed to write concat list: %w", err)
	}
	defer os.Remove(listPath)

	args := []string{
		"-loglevel", "error",
		"-f", "concat",
		"-safe", "0",
		"-i", listPath,
		"-c", "copy",
		"-y",
		dst,
	}

	result, err := p.runner.Run(ctx, p.ffmpegPath, args...)
	if err != nil {
		return fmt.Errorf("ffmpeg concat failed: %w (%s)", err, strings.TrimSpace(result.Stderr))
	}

	return nil
}

// probeOutput is the subset of ffprobe's JSON output we read.
type probeOutput struct {
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
}

// Duration returns the decoded duration of the audio file in seconds,
// measured by ffprobe rather than estimated from byte size.
func (p *Processor) Duration(ctx context.Context, path string) (float64, error) {
	args := []string{
		"-v", "quiet",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		path,
	}

	result, err := p.runner.Run(ctx, p.ffprobePath, args...)
	if err != nil {
		return 0, fmt.Errorf("ffprobe failed: %w (%s)", err, strings.TrimSpace(result.Stderr))
	}

	var probe probeOutput
	if err := json.Unmarshal([]byte(result.Stdout), &probe); err != nil {
		return 0, fmt.Errorf("failed to parse ffprobe output: %w", err)
	}

	duration, err := strconv.ParseFloat(probe.Format.Duration, 64)
	if err != nil {
		return 0, fmt.Errorf("ffprobe reported no usable duration: %w", err)
	}

	return duration, nil
}

// SilenceSpan is one detected silence period, in seconds from the
// start of the file.
type SilenceSpan struct {
	Start    float64
	End      float64
	Duration float64
}

// AnalyzeSilence runs silence detection over the file and reports the
// spans the enhancement chain would truncate.
func (p *Processor) AnalyzeSilence(ctx context.Context, path string) ([]SilenceSpan, error) {
	args := []string{
		"-i", path,
		"-af", fmt.Sprintf("silencedetect=noise=%s:d=%s", silenceThreshold, silenceDuration),
		"-f", "null",
		"-",
	}

	result, err := p.runner.Run(ctx, p.ffmpegPath, args...)
	if err != nil {
		return nil, fmt.Errorf("ffmpeg silence analysis failed: %w (%s)", err, strings.TrimSpace(result.Stderr))
	}

	// silencedetect reports on stderr.
	return parseSilence(result.Stderr), nil
}

// Check verifies both binaries are installed and runnable.
func (p *Processor) Check(ctx context.Context) error {
	for _, bin := range []string{p.ffmpegPath, p.ffprobePath} {
		if _, err := p.runner.Run(ctx, bin, "-version"); err != nil {
			return fmt.Errorf("%s not available: %w", bin, err)
		}
	}

	return nil
}

// parseSilence extracts silence spans from silencedetect log lines of
// the form:
//
//	[silencedetect @ 0x...] silence_start: 2.10675
//	[silencedetect @ 0x...] silence_end: 3.62317 | silence_duration: 1.51642
func parseSilence(output string) []SilenceSpan {
	var spans []SilenceSpan
	var current SilenceSpan
	var open bool

	for _, line := range strings.Split(output, "\n") {
		if !strings.Contains(line, "silencedetect") {
			continue
		}

		if v, ok := floatAfter(line, "silence_start: "); ok {
			current = SilenceSpan{Start: v}
			open = true
			continue
		}

		if v, ok := floatAfter(line, "silence_end: "); ok && open {
			current.End = v
			if d, ok := floatAfter(line, "silence_duration: "); ok {
				current.Duration = d
			} else {
				current.Duration = current.End - current.Start
			}
			spans = append(spans, current)
			open = false
		}
	}

	return spans
}

// floatAfter parses the float immediately following marker in line.
func floatAfter(line, marker string) (float64, bool) {
	idx := strings.Index(line, marker)
	if idx < 0 {
		return 0, false
	}

	rest := line[idx+len(marker):]
	if cut := strings.IndexAny(rest, " |\t"); cut >= 0 {
		rest = rest[:cut]
	}

	v, err := strconv.ParseFloat(strings.TrimSpace(rest), 64)
	if err != nil {
		return 0, false
	}

	return v, true
}
