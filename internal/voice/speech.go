package voice

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// synthesisChunkLimit keeps each TTS request under every provider's
// input cap (OpenAI: 4096 characters).
const synthesisChunkLimit = 4000

var (
	markdownLinkRE = regexp.MustCompile(`\[([^\]]*)\]\([^)]*\)`)
	blankRunRE     = regexp.MustCompile(`\n{3,}`)
	speechReplacer = strings.NewReplacer("**", "", "`", "", "_", " ")
)

// prepareSpeechText strips markdown structure that a voice would read
// aloud verbatim: heading and list markers, emphasis characters, link
// targets, and fenced code blocks entirely.
func prepareSpeechText(markdown string) string {
	var lines []string
	inFence := false

	for _, line := range strings.Split(markdown, "\n") {
		trimmed := strings.TrimSpace(line)

		if strings.HasPrefix(trimmed, "```") {
			inFence = !inFence
			continue
		}
		if inFence {
			continue
		}

		switch {
		case strings.HasPrefix(trimmed, "#"):
			trimmed = strings.TrimSpace(strings.TrimLeft(trimmed, "#"))
		case strings.HasPrefix(trimmed, "- "):
			trimmed = strings.TrimPrefix(trimmed, "- ")
		case strings.HasPrefix(trimmed, "* "):
			trimmed = strings.TrimPrefix(trimmed, "* ")
		case strings.HasPrefix(trimmed, "> "):
			trimmed = strings.TrimPrefix(trimmed, "> ")
		}

		trimmed = markdownLinkRE.ReplaceAllString(trimmed, "$1")
		trimmed = speechReplacer.Replace(trimmed)

		lines = append(lines, trimmed)
	}

	joined := strings.Join(lines, "\n")
	joined = blankRunRE.ReplaceAllString(joined, "\n\n")

	return strings.TrimSpace(joined)
}

// splitForSynthesis breaks text into chunks of at most limit bytes,
// preferring paragraph boundaries, then sentence boundaries, and never
// splitting mid-rune.
func splitForSynthesis(text string, limit int) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	var chunks []string
	remaining := text
	for len(remaining) > limit {
		window := remaining[:limit]

		cut := strings.LastIndex(window, "\n\n")
		if cut < limit/2 {
			if idx := strings.LastIndex(window, ". "); idx >= limit/2 {
				cut = idx + 1
			} else {
				cut = limit
				for cut > 0 && !utf8.RuneStart(remaining[cut]) {
					cut--
				}
			}
		}

		chunk := strings.TrimSpace(remaining[:cut])
		if chunk != "" {
			chunks = append(chunks, chunk)
		}
		remaining = strings.TrimSpace(remaining[cut:])
	}

	if remaining != "" {
		chunks = append(chunks, remaining)
	}

	return chunks
}
