package http

import (
	"context"
	"io"

	"github.com/melih/lighthouse-preview/internal/core/domain"
	"github.com/melih/lighthouse-preview/internal/core/services"
)

// Previewer is the part of the bootstrapper the control API drives.
type Previewer interface {
	Build(ctx context.Context, spec domain.ImageSpec, mount domain.ProjectMount, opts services.BuildOptions) (domain.ImageArtifact, error)
	Artifact(ctx context.Context, tag string) (domain.ImageArtifact, error)
	Run(ctx context.Context, artifact domain.ImageArtifact, binding domain.ServerBinding, opts services.RunOptions) (domain.RunningProcess, error)
	Stop(ctx context.Context, id string) error
	Logs(ctx context.Context, id string, follow bool) (io.ReadCloser, error)
	List(ctx context.Context) ([]domain.Preview, error)
}
