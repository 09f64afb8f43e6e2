package cli

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/melih/lighthouse-preview/internal/config"
	"github.com/melih/lighthouse-preview/internal/core/domain"
)

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, 0},
		{"plain", errors.New("boom"), 1},
		{"invalid spec", fmt.Errorf("%w: base_runtime is required", domain.ErrInvalidSpec), 1},
		{"build", &domain.BuildError{Step: "image", Detail: "RUN bundle install", Err: errors.New("exit 1")}, 2},
		{"wrapped build", fmt.Errorf("up: %w", &domain.BuildError{Step: "fetch", Err: errors.New("no such dir")}), 2},
		{"container status", &domain.RuntimeError{Op: "run", ExitCode: 137, Err: errors.New("killed")}, 137},
		{"runtime without status", &domain.RuntimeError{Op: "start", Err: errors.New("port in use")}, 3},
		{"status out of range", &domain.RuntimeError{Op: "run", ExitCode: 300, Err: errors.New("odd")}, 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExitCode(tt.err))
		})
	}
}

func TestDescribe(t *testing.T) {
	out := describe(&domain.BuildError{Step: "image", Detail: "RUN apk add nope", Err: errors.New("exit 1")})
	assert.Contains(t, out, "Build failed at image")
	assert.Contains(t, out, "RUN apk add nope")

	out = describe(fmt.Errorf("%w: port is required", domain.ErrInvalidSpec))
	assert.Contains(t, out, "Invalid configuration")
	assert.Contains(t, out, "lighthouse-preview validate")

	out = describe(&domain.RuntimeError{Op: "run", ExitCode: 1, Err: errors.New("jekyll crashed")})
	assert.Contains(t, out, "jekyll crashed")
}

func TestBuildOptions(t *testing.T) {
	cfg := config.Default()

	opts := buildFlags{}.options(cfg)
	assert.Equal(t, cfg.Image.Tag, opts.Tag)
	assert.False(t, opts.NoCache)
	assert.Equal(t, domain.DefaultPort, opts.Binding.Port)

	opts = buildFlags{tag: "blog:dev", noCache: true}.options(cfg)
	assert.Equal(t, "blog:dev", opts.Tag)
	assert.True(t, opts.NoCache)
}

func TestRunOptions(t *testing.T) {
	cfg := config.Default()
	cfg.Env = []string{"JEKYLL_ENV=development"}
	cfg.Server.Name = "preview-blog"

	opts, err := runFlags{env: []string{"LANG=C.UTF-8"}}.options(cfg)
	assert.NoError(t, err)
	assert.Equal(t, "preview-blog", opts.Name)
	assert.Equal(t, []domain.EnvironmentVariable{
		{Name: "JEKYLL_ENV", Value: "development"},
		{Name: "LANG", Value: "C.UTF-8"},
	}, opts.Env)

	opts, err = runFlags{name: "other"}.options(cfg)
	assert.NoError(t, err)
	assert.Equal(t, "other", opts.Name)

	_, err = runFlags{env: []string{"no-equals"}}.options(cfg)
	assert.Error(t, err)
}

func TestRunBinding(t *testing.T) {
	cfg := config.Default()
	artifact := domain.ImageArtifact{Port: 8080}

	b := runFlags{}.binding(cfg, artifact)
	assert.Equal(t, 8080, b.Port)
	assert.Equal(t, 8080, b.HostPort)

	b = runFlags{hostPort: 9000}.binding(cfg, artifact)
	assert.Equal(t, 8080, b.Port)
	assert.Equal(t, 9000, b.HostPort)
}
