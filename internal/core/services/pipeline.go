package services

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/melih/lighthouse-preview/internal/core/domain"
	"github.com/melih/lighthouse-preview/internal/metrics"
)

// step is one stage of the build pipeline. Steps run strictly in order and
// the first error aborts the pipeline.
type step struct {
	name string
	run  func(ctx context.Context, state *buildState) error
}

// errStop ends a pipeline early without failing it.
var errStop = errors.New("pipeline stopped")

func runPipeline(ctx context.Context, logger *logrus.Logger, m *metrics.Metrics, state *buildState, steps []step) error {
	for _, s := range steps {
		if err := ctx.Err(); err != nil {
			return &domain.BuildError{Step: s.name, Err: err}
		}

		log := logger.WithField("step", s.name)
		log.Debug("Build step started")
		start := time.Now()
		err := s.run(ctx, state)
		m.ObserveStep(s.name, time.Since(start))

		if errors.Is(err, errStop) {
			log.Debug("Build pipeline finished early")
			return nil
		}
		if err != nil {
			var buildErr *domain.BuildError
			if errors.As(err, &buildErr) {
				if buildErr.Step == "" {
					buildErr.Step = s.name
				}
				return buildErr
			}
			return &domain.BuildError{Step: s.name, Err: err}
		}
		log.WithField("elapsed", time.Since(start).Round(time.Millisecond)).Debug("Build step finished")
	}
	return nil
}
