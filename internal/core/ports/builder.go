package ports

import (
	"context"
	"io"
)

// ImageBuildRequest carries a ready build context to the image builder.
type ImageBuildRequest struct {
	Context    io.Reader
	Dockerfile string
	Labels     map[string]string
	NoCache    bool
}

// ImageInfo is the subset of image metadata the bootstrapper inspects.
type ImageInfo struct {
	ID     string
	Labels map[string]string
}

// BuilderService defines operations for building container images from a
// prepared build context.
type BuilderService interface {
	// BuildImage builds an untagged image and returns its ID. A failed step
	// returns a *domain.BuildError.
	BuildImage(ctx context.Context, req ImageBuildRequest) (string, error)
	// TagImage points ref at imageID.
	TagImage(ctx context.Context, imageID, ref string) error
	// FindImage returns the image ref resolves to, or found=false.
	FindImage(ctx context.Context, ref string) (info ImageInfo, found bool, err error)
}

// SourceFetcher resolves a project location into a local directory.
type SourceFetcher interface {
	// Fetch returns the directory to snapshot and a cleanup func that must
	// always be called.
	Fetch(ctx context.Context, location, ref string) (dir string, cleanup func(), err error)
}
