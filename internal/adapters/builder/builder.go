package builder

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/client"
	"github.com/docker/docker/errdefs"
	"github.com/docker/docker/pkg/jsonmessage"
	"github.com/sirupsen/logrus"

	"github.com/melih/lighthouse-preview/internal/core/domain"
	"github.com/melih/lighthouse-preview/internal/core/ports"
)

// imageAPI is the part of the Docker client the builder uses.
type imageAPI interface {
	ImageBuild(ctx context.Context, buildContext io.Reader, options types.ImageBuildOptions) (types.ImageBuildResponse, error)
	ImageTag(ctx context.Context, source, target string) error
	ImageInspectWithRaw(ctx context.Context, imageID string) (types.ImageInspect, []byte, error)
}

// Adapter implements ports.BuilderService using the Docker Engine API.
type Adapter struct {
	cli      imageAPI
	logger   *logrus.Logger
	progress io.Writer
}

// NewBuilderAdapter creates a builder talking to the Docker daemon from the
// environment.
func NewBuilderAdapter(logger *logrus.Logger, progress io.Writer) (*Adapter, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("failed to create docker client: %w", err)
	}
	return newAdapter(cli, logger, progress), nil
}

func newAdapter(cli imageAPI, logger *logrus.Logger, progress io.Writer) *Adapter {
	if logger == nil {
		logger = logrus.New()
		logger.SetLevel(logrus.InfoLevel)
	}
	if progress == nil {
		progress = io.Discard
	}
	return &Adapter{cli: cli, logger: logger, progress: progress}
}

// BuildImage builds an untagged image from req.Context. The stream is read
// to completion; the first failing Dockerfile step aborts with a
// *domain.BuildError.
func (a *Adapter) BuildImage(ctx context.Context, req ports.ImageBuildRequest) (string, error) {
	resp, err := a.cli.ImageBuild(ctx, req.Context, types.ImageBuildOptions{
		Dockerfile:  req.Dockerfile,
		Labels:      req.Labels,
		NoCache:     req.NoCache,
		Remove:      true, // Remove intermediate containers
		ForceRemove: true, // ...even when a step fails
		PullParent:  req.NoCache,
		Version:     types.BuilderV1,
	})
	if err != nil {
		return "", &domain.BuildError{Step: "image", Err: fmt.Errorf("failed to start image build: %w", err)}
	}
	defer resp.Body.Close()

	return a.readBuildStream(resp.Body)
}

// readBuildStream drains a build response, echoing output to the progress
// writer and tracking the current Dockerfile step.
func (a *Adapter) readBuildStream(body io.Reader) (string, error) {
	var (
		imageID string
		step    string
	)
	dec := json.NewDecoder(body)
	for {
		var msg jsonmessage.JSONMessage
		if err := dec.Decode(&msg); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return "", &domain.BuildError{Step: "image", Detail: step, Err: fmt.Errorf("failed to decode build output: %w", err)}
		}

		if msg.Stream != "" {
			if s, ok := parseStep(msg.Stream); ok {
				step = s
				a.logger.WithField("step", step).Debug("Build step started")
			}
			io.WriteString(a.progress, msg.Stream)
		}
		if msg.Aux != nil {
			var result types.BuildResult
			if err := json.Unmarshal(*msg.Aux, &result); err == nil && result.ID != "" {
				imageID = result.ID
			}
		}
		if msg.Error != nil {
			return "", &domain.BuildError{Step: "image", Detail: step, Code: msg.Error.Code, Err: msg.Error}
		}
		if msg.ErrorMessage != "" {
			return "", &domain.BuildError{Step: "image", Detail: step, Err: errors.New(msg.ErrorMessage)}
		}
	}

	if imageID == "" {
		return "", &domain.BuildError{Step: "image", Detail: step, Err: errors.New("daemon did not report an image ID")}
	}
	return imageID, nil
}

// parseStep extracts "RUN bundle install" from "Step 5/8 : RUN bundle install".
func parseStep(line string) (string, bool) {
	if !strings.HasPrefix(line, "Step ") {
		return "", false
	}
	_, instr, ok := strings.Cut(line, " : ")
	if !ok {
		return "", false
	}
	return strings.TrimSpace(instr), true
}

// TagImage points ref at imageID.
func (a *Adapter) TagImage(ctx context.Context, imageID, ref string) error {
	if err := a.cli.ImageTag(ctx, imageID, ref); err != nil {
		return fmt.Errorf("failed to tag image %s as %s: %w", imageID, ref, err)
	}
	return nil
}

// FindImage inspects ref. A missing image is not an error.
func (a *Adapter) FindImage(ctx context.Context, ref string) (ports.ImageInfo, bool, error) {
	inspect, _, err := a.cli.ImageInspectWithRaw(ctx, ref)
	if err != nil {
		if errdefs.IsNotFound(err) {
			return ports.ImageInfo{}, false, nil
		}
		return ports.ImageInfo{}, false, fmt.Errorf("failed to inspect image %s: %w", ref, err)
	}
	info := ports.ImageInfo{ID: inspect.ID}
	if inspect.Config != nil {
		info.Labels = inspect.Config.Labels
	}
	return info, true, nil
}
