package publish

import (
	"bytes"
	"fmt"
	"math"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/alkime/echopost/internal/post"
)

// frontmatter is the published document's metadata block, consumed by
// the static site renderer.
type frontmatter struct {
	Title              string   `yaml:"title"`
	Description        string   `yaml:"description"`
	PubDate            string   `yaml:"pubDate"`
	Tags               []string `yaml:"tags"`
	HeroImage          string   `yaml:"heroImage"`
	AIGenerated        bool     `yaml:"aiGenerated"`
	AIModel            string   `yaml:"aiModel,omitempty"`
	Prompt             string   `yaml:"prompt"`
	Transcript         string   `yaml:"transcript"`
	UserAudioURL       string   `yaml:"userAudioUrl,omitempty"`
	UserAudioDuration  float64  `yaml:"userAudioDuration,omitempty"`
	AIAudioURL         string   `yaml:"aiAudioUrl,omitempty"`
	AIAudioDuration    float64  `yaml:"aiAudioDuration,omitempty"`
	AudioDegraded      bool     `yaml:"audioDegraded,omitempty"`
	AudioDegradeReason string   `yaml:"audioDegradeReason,omitempty"`
}

// disclosureFooter closes every published post. Disclosure of machine
// generation is part of the content contract with readers.
const disclosureFooter = `---

*This post began as a voice recording. The transcript was cleaned up, and the response written, by an AI model; the spoken answer, when present, is synthesized speech.*`

func buildFrontmatter(
	tr *post.TranscriptionResult,
	response *post.ResponseResult,
	audio post.AudioAssets,
	img post.ImageAsset,
	publishedAt time.Time,
) frontmatter {
	fm := frontmatter{
		Title:       tr.Title,
		Description: tr.Excerpt,
		PubDate:     publishedAt.Format(time.RFC3339),
		Tags:        tr.Tags,
		HeroImage:   img.URL,
		AIGenerated: true,
		AIModel:     response.Model,
		Prompt:      tr.Prompt,
		Transcript:  tr.Transcript,
	}

	if audio.UserAudio != nil {
		fm.UserAudioURL = audio.UserAudio.URL
		fm.UserAudioDuration = audio.UserAudio.Duration
	}
	if audio.ResponseAudio != nil {
		fm.AIAudioURL = audio.ResponseAudio.URL
		fm.AIAudioDuration = audio.ResponseAudio.Duration
	}
	if audio.Degraded {
		fm.AudioDegraded = true
		fm.AudioDegradeReason = audio.DegradeReason
	}

	return fm
}

// buildBody assembles the markdown body in its fixed order: the
// blockquoted prompt and summary, optional context, the response,
// optional audio section, and the disclosure footer.
func buildBody(tr *post.TranscriptionResult, response *post.ResponseResult, audio post.AudioAssets) string {
	var b strings.Builder

	fmt.Fprintf(&b, "> %s\n\n", strings.ReplaceAll(tr.Prompt, "\n", "\n> "))
	b.WriteString(tr.Summary)
	b.WriteString("\n\n")

	if strings.TrimSpace(tr.Context) != "" {
		b.WriteString("## Context\n\n")
		b.WriteString(tr.Context)
		b.WriteString("\n\n")
	}

	b.WriteString("## Response\n\n")
	b.WriteString(strings.TrimSpace(response.Text))
	b.WriteString("\n\n")

	if !audio.FullyDegraded() {
		b.WriteString(listenSection(audio))
		b.WriteString("\n")
	}

	b.WriteString(disclosureFooter)
	b.WriteString("\n")

	return b.String()
}

func listenSection(audio post.AudioAssets) string {
	var b strings.Builder

	b.WriteString("## Listen\n\n")
	if audio.UserAudio != nil {
		fmt.Fprintf(&b, "- [The question, as recorded](%s) (%s)\n",
			audio.UserAudio.URL, formatDuration(audio.UserAudio.Duration))
	}
	if audio.ResponseAudio != nil {
		fmt.Fprintf(&b, "- [The response, spoken](%s) (%s)\n",
			audio.ResponseAudio.URL, formatDuration(audio.ResponseAudio.Duration))
	}

	return b.String()
}

func formatDuration(seconds float64) string {
	total := int(math.Round(seconds))
	return fmt.Sprintf("%d:%02d", total/60, total%60)
}

// renderDocument serializes frontmatter and body into the final file.
func renderDocument(fm frontmatter, body string) ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteString("---\n")
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(fm); err != nil {
		return nil, fmt.Errorf("failed to encode frontmatter: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("failed to finalize frontmatter: %w", err)
	}
	buf.WriteString("---\n\n")
	buf.WriteString(body)

	return buf.Bytes(), nil
}
