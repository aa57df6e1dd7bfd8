// Package publish implements the fifth pipeline stage: deriving the
// post's identity, assembling the markdown document, and writing it
// into the content store. Version-control publication is a config-gated
// side effect; only local write failures are fatal.
package publish

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/alkime/echopost/internal/platform/git"
	"github.com/alkime/echopost/internal/post"
)

// gitPublisher is the slice of git.Publisher the stage uses.
type gitPublisher interface {
	Publish(ctx context.Context, message string, paths ...string) error
}

// Stage writes published documents into the content directory.
type Stage struct {
	contentDir string
	git        gitPublisher
	logger     *slog.Logger
	now        func() time.Time
}

// NewStage creates the publication stage. A nil publisher disables the
// version-control side effect.
func NewStage(contentDir string, publisher *git.Publisher, logger *slog.Logger) *Stage {
	s := &Stage{
		contentDir: contentDir,
		logger:     logger,
		now:        time.Now,
	}
	if publisher != nil {
		s.git = publisher
	}

	return s
}

// Run assembles and writes the document for one work item, returning
// where it landed.
func (s *Stage) Run(
	ctx context.Context,
	tr *post.TranscriptionResult,
	response *post.ResponseResult,
	audio post.AudioAssets,
	img post.ImageAsset,
) (*post.Document, error) {
	if err := os.MkdirAll(s.contentDir, 0o755); err != nil {
		return nil, post.NewStageError(post.StagePublication, post.ErrKindIO,
			fmt.Errorf("failed to create content directory: %w", err))
	}

	publishedAt := s.now().UTC()
	slug := Slug(tr.Title)
	name := s.documentName(slug, publishedAt)

	fm := buildFrontmatter(tr, response, audio, img, publishedAt)
	body := buildBody(tr, response, audio)

	doc, err := renderDocument(fm, body)
	if err != nil {
		return nil, post.NewStageError(post.StagePublication, post.ErrKindIO, err)
	}

	path := filepath.Join(s.contentDir, name)
	//nolint:gosec // Published content is served publicly
	if err := os.WriteFile(path, doc, 0o644); err != nil {
		return nil, post.NewStageError(post.StagePublication, post.ErrKindIO,
			fmt.Errorf("failed to write document: %w", err))
	}

	s.logger.Info("document published", "slug", slug, "path", path)

	if s.git != nil {
		paths := []string{path}
		if img.Path != "" {
			paths = append(paths, img.Path)
		}
		if audio.UserAudio != nil {
			paths = append(paths, audio.UserAudio.Path)
		}
		if audio.ResponseAudio != nil {
			paths = append(paths, audio.ResponseAudio.Path)
		}

		message := fmt.Sprintf("Add voice post: %s", tr.Title)
		if err := s.git.Publish(ctx, message, paths...); err != nil {
			// The document is already on disk; a version-control
			// failure is recoverable by hand and must not fail the item.
			s.logger.Warn("version control publication failed", "slug", slug, "error", err)
		}
	}

	return &post.Document{Slug: slug, Path: path}, nil
}

// documentName combines the publication timestamp with the slug,
// appending a numeric suffix when the name is already taken.
func (s *Stage) documentName(slug string, publishedAt time.Time) string {
	base := fmt.Sprintf("%s-%s", publishedAt.Format("20060102150405"), slug)

	name := base + ".md"
	for n := 2; ; n++ {
		if _, err := os.Stat(filepath.Join(s.contentDir, name)); os.IsNotExist(err) {
			return name
		}
		name = fmt.Sprintf("%s-%d.md", base, n)
	}
}
