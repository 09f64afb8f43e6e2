package cli

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"

	"github.com/melih/lighthouse-preview/internal/adapters/builder"
	"github.com/melih/lighthouse-preview/internal/adapters/docker"
	"github.com/melih/lighthouse-preview/internal/adapters/git"
	"github.com/melih/lighthouse-preview/internal/config"
	"github.com/melih/lighthouse-preview/internal/core/services"
	"github.com/melih/lighthouse-preview/internal/metrics"
)

// newBootstrapper wires the Docker-backed adapters. progress receives build
// and clone output.
func newBootstrapper(cfg *config.Config, log *logrus.Logger, m *metrics.Metrics, progress io.Writer) (*services.Bootstrapper, error) {
	if progress == nil {
		progress = os.Stderr
	}
	// 1. Initialize Adapters (Infrastructure)
	containers, err := docker.NewAdapter(log, cfg.Server.StopTimeout)
	if err != nil {
		return nil, err
	}
	images, err := builder.NewBuilderAdapter(log, progress)
	if err != nil {
		return nil, err
	}
	fetcher := git.NewFetcher(log, progress)

	// 2. Inject them into the core service
	return services.NewBootstrapper(images, containers, fetcher, log, m), nil
}
