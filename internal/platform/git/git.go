// Package git wraps the git CLI for the publication side effects:
// staging, committing, and pushing freshly written posts and media.
package git

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// commandRunner abstracts git execution for testability.
type commandRunner interface {
	Run(ctx context.Context, dir string, args ...string) (string, error)
}

// execRunner executes git via os/exec.
type execRunner struct{}

func (execRunner) Run(ctx context.Context, dir string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = dir

	output, err := cmd.CombinedOutput()
	return strings.TrimSpace(string(output)), err
}

// Publisher stages and commits published artifacts in a repository,
// optionally pushing to the default remote.
type Publisher struct {
	repoDir string
	push    bool
	runner  commandRunner
}

// NewPublisher returns a publisher operating on the repository at
// repoDir. When push is true, every commit is followed by a push.
func NewPublisher(repoDir string, push bool) *Publisher {
	return &Publisher{repoDir: repoDir, push: push, runner: execRunner{}}
}

// Publish stages paths, commits them with message, and pushes when
// configured. Paths may be absolute or relative to the repository.
func (p *Publisher) Publish(ctx context.Context, message string, paths ...string) error {
	if len(paths) == 0 {
		return nil
	}

	addArgs := append([]string{"add", "--"}, paths...)
	if out, err := p.runner.Run(ctx, p.repoDir, addArgs...); err != nil {
		return fmt.Errorf("failed to stage published files: %w (%s)", err, out)
	}

	if out, err := p.runner.Run(ctx, p.repoDir, "commit", "-m", message); err != nil {
		return fmt.Errorf("failed to commit published files: %w (%s)", err, out)
	}

	if p.push {
		if out, err := p.runner.Run(ctx, p.repoDir, "push"); err != nil {
			return fmt.Errorf("failed to push published files: %w (%s)", err, out)
		}
	}

	return nil
}

// GetCurrentBranch returns the name of the current git branch.
// Returns an error if not in a git repository or if git command fails.
func GetCurrentBranch() (string, error) {
	ctx := context.Background()
	cmd := exec.CommandContext(ctx, "git", "rev-parse", "--abbrev-ref", "HEAD")
	output, err := cmd.Output()
	if err != nil {
		return "", fmt.Errorf("failed to get current git branch: %w", err)
	}

	branch := strings.TrimSpace(string(output))
	if branch == "" {
		return "", fmt.Errorf("git branch name is empty")
	}

	return branch, nil
}
