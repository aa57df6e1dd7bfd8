// Package synth provides the text-to-speech providers the audio stage
// tries in order. A provider without a credential reports itself
// unavailable rather than erroring, which advances the chain silently.
package synth

import (
	"context"
	"errors"
)

// ErrUnavailable marks a provider that has no credential configured.
var ErrUnavailable = errors.New("synthesis provider not configured")

// Provider synthesizes one chunk of speech into an MP3 file at outPath.
type Provider interface {
	Name() string
	Synthesize(ctx context.Context, text, outPath string) error
}
