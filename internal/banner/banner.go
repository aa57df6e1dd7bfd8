// Package banner implements the fourth pipeline stage: generating the
// post's banner image. Providers are attempted in a fixed order and the
// chain ends in a local placeholder, so the stage always produces an
// image.
package banner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/png"
	"log/slog"
	"strings"

	xdraw "golang.org/x/image/draw"

	"github.com/alkime/echopost/internal/media"
	"github.com/alkime/echopost/internal/post"
)

// Published banner dimensions, a standard social-card aspect ratio.
const (
	bannerWidth  = 1200
	bannerHeight = 630
)

// ErrUnavailable marks a provider that has no credential or endpoint
// configured.
var ErrUnavailable = errors.New("image provider not configured")

// Provider attempts one banner generation from a descriptive prompt.
type Provider interface {
	Name() string
	Generate(ctx context.Context, prompt string) (image.Image, error)
}

// Stage produces the banner image for one work item.
type Stage struct {
	providers []Provider
	store     *media.Store
	logger    *slog.Logger
}

// NewStage wires the image stage with its provider chain, in the order
// the providers should be attempted.
func NewStage(providers []Provider, store *media.Store, logger *slog.Logger) *Stage {
	return &Stage{
		providers: providers,
		store:     store,
		logger:    logger,
	}
}

// Run generates the banner and writes exactly one image file into the
// media store under the item's stem. Provider failures advance the
// chain; when every provider is exhausted the local placeholder is
// rendered. The returned error is reserved for the defensive case
// where even the placeholder could not be persisted.
func (s *Stage) Run(ctx context.Context, tr *post.TranscriptionResult, stem string) (post.ImageAsset, error) {
	prompt := buildPrompt(tr)

	for _, provider := range s.providers {
		img, err := provider.Generate(ctx, prompt)
		if errors.Is(err, ErrUnavailable) {
			continue
		}
		if err != nil {
			s.logger.Warn("image provider failed", "provider", provider.Name(), "error", err)
			continue
		}

		asset, err := s.publish(img, stem, prompt, false)
		if err != nil {
			s.logger.Warn("banner publication failed", "provider", provider.Name(), "error", err)
			continue
		}

		s.logger.Info("banner generated", "provider", provider.Name(), "item", stem)
		return asset, nil
	}

	asset, err := s.publish(renderPlaceholder(tr.Title), stem, prompt, true)
	if err != nil {
		return post.ImageAsset{}, fmt.Errorf("failed to persist placeholder banner: %w", err)
	}

	s.logger.Info("banner fell back to placeholder", "item", stem)
	return asset, nil
}

// publish fits img to the banner dimensions and writes it to the media
// store as PNG.
func (s *Stage) publish(img image.Image, stem, prompt string, placeholder bool) (post.ImageAsset, error) {
	fitted := fitBanner(img)

	var buf bytes.Buffer
	if err := png.Encode(&buf, fitted); err != nil {
		return post.ImageAsset{}, fmt.Errorf("failed to encode banner: %w", err)
	}

	asset, err := s.store.Put(stem+"-banner.png", buf.Bytes())
	if err != nil {
		return post.ImageAsset{}, err
	}

	return post.ImageAsset{
		URL:          asset.URL,
		Path:         asset.Path,
		Placeholder:  placeholder,
		Width:        bannerWidth,
		Height:       bannerHeight,
		SourcePrompt: prompt,
	}, nil
}

// buildPrompt composes the deterministic banner brief sent to the
// generative providers.
func buildPrompt(tr *post.TranscriptionResult) string {
	return fmt.Sprintf(
		"A wide editorial banner illustration for a blog post titled %q. Topics: %s. %s Modern flat illustration style, muted colors, no text or lettering.",
		tr.Title, strings.Join(tr.Tags, ", "), tr.Summary,
	)
}

// fitBanner center-crops src to the banner aspect ratio and scales it
// to the published dimensions.
func fitBanner(src image.Image) *image.RGBA {
	srcBounds := src.Bounds()
	srcRatio := float64(srcBounds.Dx()) / float64(srcBounds.Dy())
	dstRatio := float64(bannerWidth) / float64(bannerHeight)

	crop := srcBounds
	switch {
	case srcRatio > dstRatio:
		// Too wide: trim the sides.
		newW := int(float64(srcBounds.Dy()) * dstRatio)
		x0 := srcBounds.Min.X + (srcBounds.Dx()-newW)/2
		crop = image.Rect(x0, srcBounds.Min.Y, x0+newW, srcBounds.Max.Y)
	case srcRatio < dstRatio:
		// Too tall: trim top and bottom.
		newH := int(float64(srcBounds.Dx()) / dstRatio)
		y0 := srcBounds.Min.Y + (srcBounds.Dy()-newH)/2
		crop = image.Rect(srcBounds.Min.X, y0, srcBounds.Max.X, y0+newH)
	}

	dst := image.NewRGBA(image.Rect(0, 0, bannerWidth, bannerHeight))
	xdraw.CatmullRom.Scale(dst, dst.Bounds(), src, crop, xdraw.Src, nil)

	return dst
}
