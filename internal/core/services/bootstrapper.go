package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/opencontainers/go-digest"
	"github.com/sirupsen/logrus"

	"github.com/melih/lighthouse-preview/internal/core/domain"
	"github.com/melih/lighthouse-preview/internal/core/ports"
	"github.com/melih/lighthouse-preview/internal/dockerfile"
	"github.com/melih/lighthouse-preview/internal/metrics"
	"github.com/melih/lighthouse-preview/internal/snapshot"
)

// BuildOptions controls a single build.
type BuildOptions struct {
	Tag     string
	NoCache bool
	// Binding is baked into the image's EXPOSE and serve command.
	Binding domain.ServerBinding
}

// RunOptions controls a single run.
type RunOptions struct {
	Name string
	Env  []domain.EnvironmentVariable
}

// Bootstrapper builds preview images and runs them.
type Bootstrapper struct {
	builder    ports.BuilderService
	containers ports.ContainerService
	fetcher    ports.SourceFetcher
	logger     *logrus.Logger
	metrics    *metrics.Metrics
	now        func() time.Time
}

func NewBootstrapper(builder ports.BuilderService, containers ports.ContainerService, fetcher ports.SourceFetcher, logger *logrus.Logger, m *metrics.Metrics) *Bootstrapper {
	if logger == nil {
		logger = logrus.New()
		logger.SetLevel(logrus.InfoLevel)
	}
	return &Bootstrapper{
		builder:    builder,
		containers: containers,
		fetcher:    fetcher,
		logger:     logger,
		metrics:    m,
		now:        time.Now,
	}
}

type buildState struct {
	spec    domain.ImageSpec
	mount   domain.ProjectMount
	opts    BuildOptions
	buildID string

	dir           string
	cleanup       func()
	dockerfile    []byte
	specDigest    digest.Digest
	contentDigest digest.Digest
	buildContext  io.ReadCloser
	imageID       string

	artifact domain.ImageArtifact
}

func (s *buildState) labels() map[string]string {
	return map[string]string{
		domain.LabelManaged:       "true",
		domain.LabelBuildID:       s.buildID,
		domain.LabelSpecDigest:    s.specDigest.String(),
		domain.LabelContentDigest: s.contentDigest.String(),
		domain.LabelPort:          strconv.Itoa(s.opts.Binding.Port),
	}
}

// Build runs the build pipeline. It either returns a fully built, tagged
// artifact or a *domain.BuildError; nothing is tagged on failure.
func (b *Bootstrapper) Build(ctx context.Context, spec domain.ImageSpec, mount domain.ProjectMount, opts BuildOptions) (domain.ImageArtifact, error) {
	state := &buildState{
		spec:    spec.Clone(),
		mount:   mount,
		opts:    opts,
		buildID: uuid.NewString(),
		cleanup: func() {},
	}
	defer func() {
		if state.buildContext != nil {
			state.buildContext.Close()
		}
		state.cleanup()
	}()

	log := b.logger.WithFields(logrus.Fields{
		"build_id": state.buildID,
		"base":     state.spec.BaseRuntime,
		"project":  mount.HostPath,
		"tag":      opts.Tag,
	})
	log.Info("Building preview image")

	err := runPipeline(ctx, b.logger, b.metrics, state, []step{
		{"validate", b.validate},
		{"fetch", b.fetch},
		{"render", b.render},
		{"digest", b.fingerprint},
		{"reuse", b.reuse},
		{"context", b.packContext},
		{"image", b.buildImage},
		{"tag", b.tagImage},
	})
	if err != nil {
		b.metrics.ObserveBuild(metrics.ResultFailure)
		log.WithError(err).Error("Preview build failed")
		return domain.ImageArtifact{}, err
	}

	if state.artifact.Reused {
		b.metrics.ObserveBuild(metrics.ResultReused)
		log.WithField("image_id", state.artifact.ID).Info("Preview image is up to date")
	} else {
		b.metrics.ObserveBuild(metrics.ResultSuccess)
		log.WithField("image_id", state.artifact.ID).Info("Preview image built")
	}
	return state.artifact, nil
}

func (b *Bootstrapper) validate(_ context.Context, s *buildState) error {
	return errors.Join(
		s.spec.Validate(),
		s.mount.Validate(),
		s.opts.Binding.Validate(),
		domain.ValidateTag(s.opts.Tag),
	)
}

func (b *Bootstrapper) fetch(ctx context.Context, s *buildState) error {
	dir, cleanup, err := b.fetcher.Fetch(ctx, s.mount.HostPath, s.mount.Ref)
	if err != nil {
		return err
	}
	s.dir, s.cleanup = dir, cleanup
	return nil
}

func (b *Bootstrapper) render(_ context.Context, s *buildState) error {
	content, err := dockerfile.Render(s.spec, s.mount, s.opts.Binding)
	if err != nil {
		return err
	}
	s.dockerfile = content
	return nil
}

func (b *Bootstrapper) fingerprint(_ context.Context, s *buildState) error {
	s.specDigest = digest.FromBytes(s.dockerfile)
	d, err := snapshot.Digest(s.dir)
	if err != nil {
		return err
	}
	s.contentDigest = d
	return nil
}

// reuse short-circuits when the tag already holds an image built from the
// same Dockerfile and the same project content.
func (b *Bootstrapper) reuse(ctx context.Context, s *buildState) error {
	if s.opts.NoCache {
		return nil
	}
	info, found, err := b.builder.FindImage(ctx, s.opts.Tag)
	if err != nil || !found {
		// A failed lookup falls through to a full build.
		if err != nil {
			b.logger.WithError(err).Debug("Skipping image reuse")
		}
		return nil
	}
	if info.Labels[domain.LabelSpecDigest] != s.specDigest.String() ||
		info.Labels[domain.LabelContentDigest] != s.contentDigest.String() {
		return nil
	}

	buildID := info.Labels[domain.LabelBuildID]
	if buildID == "" {
		buildID = s.buildID
	}
	s.artifact = domain.ImageArtifact{
		ID:            info.ID,
		Tag:           s.opts.Tag,
		BuildID:       buildID,
		SpecDigest:    s.specDigest.String(),
		ContentDigest: s.contentDigest.String(),
		Port:          s.opts.Binding.Port,
		CreatedAt:     b.now(),
		Reused:        true,
	}
	return errStop
}

func (b *Bootstrapper) packContext(_ context.Context, s *buildState) error {
	rc, err := snapshot.BuildContext(s.dir, dockerfile.Name, s.dockerfile)
	if err != nil {
		return err
	}
	s.buildContext = rc
	return nil
}

func (b *Bootstrapper) buildImage(ctx context.Context, s *buildState) error {
	id, err := b.builder.BuildImage(ctx, ports.ImageBuildRequest{
		Context:    s.buildContext,
		Dockerfile: dockerfile.Name,
		Labels:     s.labels(),
		NoCache:    s.opts.NoCache,
	})
	if err != nil {
		return err
	}
	s.imageID = id
	return nil
}

func (b *Bootstrapper) tagImage(ctx context.Context, s *buildState) error {
	if err := b.builder.TagImage(ctx, s.imageID, s.opts.Tag); err != nil {
		return err
	}
	s.artifact = domain.ImageArtifact{
		ID:            s.imageID,
		Tag:           s.opts.Tag,
		BuildID:       s.buildID,
		SpecDigest:    s.specDigest.String(),
		ContentDigest: s.contentDigest.String(),
		Port:          s.opts.Binding.Port,
		CreatedAt:     b.now(),
	}
	return nil
}

// Artifact resolves a previously built preview image by tag.
func (b *Bootstrapper) Artifact(ctx context.Context, tag string) (domain.ImageArtifact, error) {
	info, found, err := b.builder.FindImage(ctx, tag)
	if err != nil {
		return domain.ImageArtifact{}, &domain.RuntimeError{Op: "resolve", Err: err}
	}
	if !found {
		return domain.ImageArtifact{}, &domain.RuntimeError{Op: "resolve", Err: fmt.Errorf("no preview image tagged %s; run build first", tag)}
	}
	port, err := strconv.Atoi(info.Labels[domain.LabelPort])
	if err != nil || port <= 0 {
		return domain.ImageArtifact{}, &domain.RuntimeError{
			Op:  "inspect",
			Err: fmt.Errorf("image %s has no valid %s label (%q); rebuild it", tag, domain.LabelPort, info.Labels[domain.LabelPort]),
		}
	}
	return domain.ImageArtifact{
		ID:            info.ID,
		Tag:           tag,
		BuildID:       info.Labels[domain.LabelBuildID],
		SpecDigest:    info.Labels[domain.LabelSpecDigest],
		ContentDigest: info.Labels[domain.LabelContentDigest],
		Port:          port,
		Reused:        true,
	}, nil
}

// Run starts exactly one preview container serving artifact on binding.
func (b *Bootstrapper) Run(ctx context.Context, artifact domain.ImageArtifact, binding domain.ServerBinding, opts RunOptions) (domain.RunningProcess, error) {
	if err := binding.Validate(); err != nil {
		return domain.RunningProcess{}, &domain.RuntimeError{Op: "run", Err: err}
	}
	if artifact.Port != 0 && artifact.Port != binding.Port {
		return domain.RunningProcess{}, &domain.RuntimeError{
			Op:  "run",
			Err: fmt.Errorf("%w: image serves on port %d, not %d", domain.ErrInvalidSpec, artifact.Port, binding.Port),
		}
	}
	for _, e := range opts.Env {
		if err := e.Validate(); err != nil {
			return domain.RunningProcess{}, &domain.RuntimeError{Op: "run", Err: err}
		}
	}

	name := opts.Name
	if name == "" {
		name = "preview-" + uuid.NewString()[:8]
	}
	labels := map[string]string{}
	if artifact.BuildID != "" {
		labels[domain.LabelBuildID] = artifact.BuildID
	}

	id, err := b.containers.StartContainer(ctx, ports.RunRequest{
		Name:    name,
		Image:   artifact.Ref(),
		Binding: binding,
		Env:     opts.Env,
		Labels:  labels,
	})
	if err != nil {
		b.metrics.ObserveRun(metrics.ResultFailure)
		return domain.RunningProcess{}, &domain.RuntimeError{Op: "start", Err: err}
	}
	b.metrics.ObserveRun(metrics.ResultSuccess)

	proc := domain.RunningProcess{
		ContainerID: id,
		Name:        name,
		Image:       artifact.Ref(),
		Binding:     binding,
		StartedAt:   b.now(),
	}
	b.logger.WithFields(logrus.Fields{
		"container_id": id,
		"name":         name,
		"url":          binding.LocalURL(),
	}).Info("Preview is running")
	return proc, nil
}

// Up builds and then runs a preview.
func (b *Bootstrapper) Up(ctx context.Context, spec domain.ImageSpec, mount domain.ProjectMount, build BuildOptions, run RunOptions) (domain.ImageArtifact, domain.RunningProcess, error) {
	artifact, err := b.Build(ctx, spec, mount, build)
	if err != nil {
		return domain.ImageArtifact{}, domain.RunningProcess{}, err
	}
	proc, err := b.Run(ctx, artifact, build.Binding, run)
	if err != nil {
		return artifact, domain.RunningProcess{}, err
	}
	return artifact, proc, nil
}

// logDrainTimeout bounds how long Attach waits for buffered output once the
// container has exited.
const logDrainTimeout = 5 * time.Second

// Attach streams the preview's logs to out until it exits or ctx is done.
// Cancelling ctx stops the container. A non-zero exit status is returned as
// a *domain.RuntimeError.
func (b *Bootstrapper) Attach(ctx context.Context, proc domain.RunningProcess, out io.Writer) error {
	logs, err := b.containers.GetContainerLogs(ctx, proc.ContainerID, true)
	if err != nil {
		return &domain.RuntimeError{Op: "attach", Err: err}
	}
	copied := make(chan struct{})
	go func() {
		defer close(copied)
		defer logs.Close()
		io.Copy(out, logs)
	}()
	// The last lines (usually the crash message) arrive after the exit.
	drain := func() {
		select {
		case <-copied:
		case <-time.After(logDrainTimeout):
			b.logger.WithField("container_id", proc.ContainerID).Warn("Gave up waiting for the log stream to end")
		}
	}

	code, err := b.containers.WaitContainer(ctx, proc.ContainerID)
	if ctx.Err() != nil {
		b.logger.WithField("container_id", proc.ContainerID).Info("Stopping preview")
		err := b.containers.StopContainer(context.WithoutCancel(ctx), proc.ContainerID)
		drain()
		if err != nil {
			return &domain.RuntimeError{Op: "stop", Err: err}
		}
		return nil
	}
	drain()
	if err != nil {
		return &domain.RuntimeError{Op: "wait", ExitCode: code, Err: err}
	}
	if code != 0 {
		return &domain.RuntimeError{Op: "run", ExitCode: code}
	}
	return nil
}

func (b *Bootstrapper) Stop(ctx context.Context, id string) error {
	return b.containers.StopContainer(ctx, id)
}

func (b *Bootstrapper) Logs(ctx context.Context, id string, follow bool) (io.ReadCloser, error) {
	return b.containers.GetContainerLogs(ctx, id, follow)
}

func (b *Bootstrapper) List(ctx context.Context) ([]domain.Preview, error) {
	return b.containers.ListContainers(ctx)
}
