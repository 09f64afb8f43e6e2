package docker

import (
	"context"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"time"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/client"
	"github.com/docker/docker/errdefs"
	"github.com/docker/docker/pkg/stdcopy"
	"github.com/docker/go-connections/nat"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
	"github.com/sirupsen/logrus"

	"github.com/melih/lighthouse-preview/internal/core/domain"
	"github.com/melih/lighthouse-preview/internal/core/ports"
)

// containerAPI is the part of the Docker client the adapter uses.
type containerAPI interface {
	ContainerList(ctx context.Context, options container.ListOptions) ([]types.Container, error)
	ContainerCreate(ctx context.Context, config *container.Config, hostConfig *container.HostConfig, networkingConfig *network.NetworkingConfig, platform *ocispec.Platform, containerName string) (container.CreateResponse, error)
	ContainerStart(ctx context.Context, containerID string, options container.StartOptions) error
	ContainerStop(ctx context.Context, containerID string, options container.StopOptions) error
	ContainerRemove(ctx context.Context, containerID string, options container.RemoveOptions) error
	ContainerLogs(ctx context.Context, containerID string, options container.LogsOptions) (io.ReadCloser, error)
	ContainerWait(ctx context.Context, containerID string, condition container.WaitCondition) (<-chan container.WaitResponse, <-chan error)
}

// Adapter implements ports.ContainerService using Docker SDK
type Adapter struct {
	cli         containerAPI
	logger      *logrus.Logger
	stopTimeout time.Duration
}

// NewAdapter creates a new Docker adapter instance
func NewAdapter(logger *logrus.Logger, stopTimeout time.Duration) (*Adapter, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("failed to create docker client: %w", err)
	}
	return newAdapter(cli, logger, stopTimeout), nil
}

func newAdapter(cli containerAPI, logger *logrus.Logger, stopTimeout time.Duration) *Adapter {
	if logger == nil {
		logger = logrus.New()
		logger.SetLevel(logrus.InfoLevel)
	}
	if stopTimeout <= 0 {
		stopTimeout = 10 * time.Second
	}
	return &Adapter{cli: cli, logger: logger, stopTimeout: stopTimeout}
}

// ListContainers returns preview containers, running or not.
func (a *Adapter) ListContainers(ctx context.Context) ([]domain.Preview, error) {
	containers, err := a.cli.ContainerList(ctx, container.ListOptions{
		All:     true,
		Filters: filters.NewArgs(filters.Arg("label", domain.LabelManaged)),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list containers: %w", err)
	}

	result := make([]domain.Preview, 0, len(containers))
	for _, c := range containers {
		// Use the first name if available, remove slash
		name := ""
		if len(c.Names) > 0 {
			name = c.Names[0][1:]
		}
		id := c.ID
		if len(id) > 12 {
			id = id[:12] // Short ID
		}

		private, _ := strconv.Atoi(c.Labels[domain.LabelPort])
		p := domain.Preview{
			ID:     id,
			Name:   name,
			Image:  c.Image,
			Status: c.Status,
			State:  c.State,
			Port:   private,
		}
		if c.NetworkSettings != nil {
			for _, n := range c.NetworkSettings.Networks {
				if n != nil && n.IPAddress != "" {
					p.IPAddress = n.IPAddress
					break
				}
			}
		}
		for _, port := range c.Ports {
			if port.PublicPort != 0 && (private == 0 || int(port.PrivatePort) == private) {
				p.HostPort = int(port.PublicPort)
				break
			}
		}
		result = append(result, p)
	}
	return result, nil
}

// portConfig exposes binding.Port inside the container and publishes it on
// the host interface.
func portConfig(binding domain.ServerBinding) (nat.PortSet, nat.PortMap, error) {
	port, err := nat.NewPort("tcp", strconv.Itoa(binding.Port))
	if err != nil {
		return nil, nil, err
	}
	exposed := nat.PortSet{port: struct{}{}}
	bindings := nat.PortMap{
		port: []nat.PortBinding{{
			HostIP:   binding.HostInterface,
			HostPort: strconv.Itoa(binding.PublishedPort()),
		}},
	}
	return exposed, bindings, nil
}

// StartContainer creates and starts the preview container. The image is
// expected to exist locally; previews are never pulled.
func (a *Adapter) StartContainer(ctx context.Context, req ports.RunRequest) (string, error) {
	exposed, bindings, err := portConfig(req.Binding)
	if err != nil {
		return "", fmt.Errorf("invalid port binding: %w", err)
	}

	env := make([]string, 0, len(req.Env))
	for _, e := range req.Env {
		env = append(env, e.String())
	}
	labels := map[string]string{
		domain.LabelManaged: "true",
		domain.LabelPort:    strconv.Itoa(req.Binding.Port),
	}
	for k, v := range req.Labels {
		labels[k] = v
	}

	// 1. Clear out an exited preview holding the name
	if req.Name != "" {
		if err := a.removeExited(ctx, req.Name); err != nil {
			return "", err
		}
	}

	// 2. Create Container
	resp, err := a.cli.ContainerCreate(ctx, &container.Config{
		Image:        req.Image,
		Env:          env,
		ExposedPorts: exposed,
		Labels:       labels,
	}, &container.HostConfig{
		PortBindings: bindings,
	}, nil, nil, req.Name)
	if err != nil {
		return "", fmt.Errorf("failed to create container: %w", err)
	}
	for _, w := range resp.Warnings {
		a.logger.WithField("container_id", resp.ID).Warn(w)
	}

	// 3. Start Container
	if err := a.cli.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		// A container that never started (e.g. port already allocated) is useless.
		if rmErr := a.cli.ContainerRemove(context.WithoutCancel(ctx), resp.ID, container.RemoveOptions{Force: true}); rmErr != nil {
			a.logger.WithError(rmErr).WithField("container_id", resp.ID).Warn("Failed to remove container")
		}
		return "", fmt.Errorf("failed to start container: %w", err)
	}

	a.logger.WithFields(logrus.Fields{
		"container_id": resp.ID,
		"name":         req.Name,
		"address":      req.Binding.Address(),
	}).Info("Started preview container")
	return resp.ID, nil
}

// removeExited removes preview containers named name that are no longer
// running, e.g. left behind by a crashed server. A running one is left alone
// so the create fails with a name conflict.
func (a *Adapter) removeExited(ctx context.Context, name string) error {
	stale, err := a.cli.ContainerList(ctx, container.ListOptions{
		All: true,
		Filters: filters.NewArgs(
			filters.Arg("label", domain.LabelManaged),
			filters.Arg("name", "^/"+regexp.QuoteMeta(name)+"$"),
			filters.Arg("status", "created"),
			filters.Arg("status", "exited"),
			filters.Arg("status", "dead"),
		),
	})
	if err != nil {
		return fmt.Errorf("failed to look up container %s: %w", name, err)
	}
	for _, c := range stale {
		if err := a.cli.ContainerRemove(ctx, c.ID, container.RemoveOptions{}); err != nil {
			return fmt.Errorf("failed to remove exited container %s: %w", name, err)
		}
		a.logger.WithFields(logrus.Fields{"container_id": c.ID, "name": name}).Info("Removed exited preview container")
	}
	return nil
}

// StopContainer stops a running container and removes it.
func (a *Adapter) StopContainer(ctx context.Context, id string) error {
	timeout := int(a.stopTimeout.Seconds())
	ctx, cancel := context.WithTimeout(ctx, a.stopTimeout+5*time.Second)
	defer cancel()
	if err := a.cli.ContainerStop(ctx, id, container.StopOptions{Timeout: &timeout}); err != nil {
		return fmt.Errorf("failed to stop container %s: %w", id, err)
	}
	if err := a.cli.ContainerRemove(ctx, id, container.RemoveOptions{}); err != nil && !errdefs.IsNotFound(err) {
		return fmt.Errorf("failed to remove container %s: %w", id, err)
	}
	return nil
}

// GetContainerLogs returns the container's demultiplexed stdout and stderr.
func (a *Adapter) GetContainerLogs(ctx context.Context, id string, follow bool) (io.ReadCloser, error) {
	options := container.LogsOptions{
		ShowStdout: true,
		ShowStderr: true,
		Follow:     follow,
		Timestamps: false,
	}
	raw, err := a.cli.ContainerLogs(ctx, id, options)
	if err != nil {
		return nil, fmt.Errorf("failed to read logs of %s: %w", id, err)
	}

	pr, pw := io.Pipe()
	go func() {
		_, err := stdcopy.StdCopy(pw, pw, raw)
		raw.Close()
		pw.CloseWithError(err)
	}()
	return pr, nil
}

// WaitContainer blocks until the container is no longer running.
func (a *Adapter) WaitContainer(ctx context.Context, id string) (int64, error) {
	statusCh, errCh := a.cli.ContainerWait(ctx, id, container.WaitConditionNotRunning)
	select {
	case err := <-errCh:
		return 0, fmt.Errorf("failed to wait for container %s: %w", id, err)
	case status := <-statusCh:
		if status.Error != nil && status.Error.Message != "" {
			return status.StatusCode, fmt.Errorf("container %s: %s", id, status.Error.Message)
		}
		return status.StatusCode, nil
	}
}
