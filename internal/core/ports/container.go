package ports

import (
	"context"
	"io"

	"github.com/melih/lighthouse-preview/internal/core/domain"
)

// RunRequest describes the single container a preview runs as.
type RunRequest struct {
	Name    string
	Image   string
	Binding domain.ServerBinding
	Env     []domain.EnvironmentVariable
	Labels  map[string]string
}

// ContainerService defines the core operations for managing preview
// containers. This interface allows us to switch between Docker, Podman, or
// Kubernetes without changing the business logic.
type ContainerService interface {
	ListContainers(ctx context.Context) ([]domain.Preview, error)
	StartContainer(ctx context.Context, req RunRequest) (string, error)
	StopContainer(ctx context.Context, id string) error
	GetContainerLogs(ctx context.Context, id string, follow bool) (io.ReadCloser, error)
	// WaitContainer blocks until the container stops and returns its exit status.
	WaitContainer(ctx context.Context, id string) (int64, error)
}
