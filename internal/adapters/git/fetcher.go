package git

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/sirupsen/logrus"

	"github.com/melih/lighthouse-preview/internal/core/domain"
)

// Fetcher implements ports.SourceFetcher. Local directories are used in
// place; git remotes are shallow-cloned into a temporary directory.
type Fetcher struct {
	logger   *logrus.Logger
	progress io.Writer
}

func NewFetcher(logger *logrus.Logger, progress io.Writer) *Fetcher {
	if logger == nil {
		logger = logrus.New()
	}
	return &Fetcher{logger: logger, progress: progress}
}

func (f *Fetcher) Fetch(ctx context.Context, location, ref string) (string, func(), error) {
	noop := func() {}
	if !(domain.ProjectMount{HostPath: location}).IsRemote() {
		info, err := os.Stat(location)
		if err != nil {
			return "", noop, fmt.Errorf("project directory %s: %w", location, err)
		}
		if !info.IsDir() {
			return "", noop, fmt.Errorf("project path %s is not a directory", location)
		}
		return location, noop, nil
	}

	tmpDir, err := os.MkdirTemp("", "lighthouse-preview-src-*")
	if err != nil {
		return "", noop, fmt.Errorf("failed to create temp dir: %w", err)
	}
	cleanup := func() { os.RemoveAll(tmpDir) }

	f.logger.WithFields(logrus.Fields{
		"url": location,
		"ref": ref,
		"dir": tmpDir,
	}).Info("Cloning project")

	opts := &git.CloneOptions{
		URL:      location,
		Progress: f.progress,
		Depth:    1, // Shallow clone for speed
	}
	if ref != "" {
		opts.ReferenceName = plumbing.NewBranchReferenceName(ref)
		opts.SingleBranch = true
	}
	if _, err := git.PlainCloneContext(ctx, tmpDir, false, opts); err != nil {
		cleanup()
		return "", noop, fmt.Errorf("failed to clone repo: %w", err)
	}
	return tmpDir, cleanup, nil
}
