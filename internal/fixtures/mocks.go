// Package fixtures holds testify mocks of the core ports shared by the
// service and HTTP tests.
package fixtures

import (
	"context"
	"io"

	"github.com/stretchr/testify/mock"

	"github.com/melih/lighthouse-preview/internal/core/domain"
	"github.com/melih/lighthouse-preview/internal/core/ports"
)

// MockBuilder is a mock implementation of ports.BuilderService.
type MockBuilder struct {
	mock.Mock
}

func (m *MockBuilder) BuildImage(ctx context.Context, req ports.ImageBuildRequest) (string, error) {
	args := m.Called(ctx, req)
	return args.String(0), args.Error(1)
}

func (m *MockBuilder) TagImage(ctx context.Context, imageID, ref string) error {
	args := m.Called(ctx, imageID, ref)
	return args.Error(0)
}

func (m *MockBuilder) FindImage(ctx context.Context, ref string) (ports.ImageInfo, bool, error) {
	args := m.Called(ctx, ref)
	return args.Get(0).(ports.ImageInfo), args.Bool(1), args.Error(2)
}

// MockContainers is a mock implementation of ports.ContainerService.
type MockContainers struct {
	mock.Mock
}

func (m *MockContainers) ListContainers(ctx context.Context) ([]domain.Preview, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Preview), args.Error(1)
}

func (m *MockContainers) StartContainer(ctx context.Context, req ports.RunRequest) (string, error) {
	args := m.Called(ctx, req)
	return args.String(0), args.Error(1)
}

func (m *MockContainers) StopContainer(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockContainers) GetContainerLogs(ctx context.Context, id string, follow bool) (io.ReadCloser, error) {
	args := m.Called(ctx, id, follow)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(io.ReadCloser), args.Error(1)
}

func (m *MockContainers) WaitContainer(ctx context.Context, id string) (int64, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(int64), args.Error(1)
}

// StaticFetcher implements ports.SourceFetcher by returning a fixed
// directory, recording whether cleanup ran.
type StaticFetcher struct {
	Dir       string
	Err       error
	CleanedUp bool
}

func (f *StaticFetcher) Fetch(context.Context, string, string) (string, func(), error) {
	if f.Err != nil {
		return "", func() {}, f.Err
	}
	return f.Dir, func() { f.CleanedUp = true }, nil
}
