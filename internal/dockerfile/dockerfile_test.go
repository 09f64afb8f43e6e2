package dockerfile

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/melih/lighthouse-preview/internal/core/domain"
)

func jekyllSpec() domain.ImageSpec {
	return domain.ImageSpec{
		BaseRuntime:       "ruby:3.1-alpine",
		PackageManager:    domain.PackageManagerAPK,
		SystemPackages:    []string{"build-base", "git"},
		DependencyCommand: "bundle install",
		ServeCommand:      []string{"bundle", "exec", "jekyll", "serve", "--host", "${HOST}", "--port", "${PORT}"},
	}
}

func TestRender(t *testing.T) {
	mount := domain.ProjectMount{HostPath: "./site", ContainerPath: "/app"}

	content, err := Render(jekyllSpec(), mount, domain.DefaultBinding())
	require.NoError(t, err)

	got, err := Instructions(content)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"FROM ruby:3.1-alpine",
		"RUN apk add --no-cache build-base git",
		"WORKDIR /app",
		"COPY . /app",
		"RUN bundle install",
		"EXPOSE 4000",
		`CMD ["bundle","exec","jekyll","serve","--host","0.0.0.0","--port","4000"]`,
	}, got)
}

func TestRenderCommandOrder(t *testing.T) {
	spec := jekyllSpec()
	spec.PackageManager = domain.PackageManagerAPT
	spec.PackageManagerCommands = []string{"apt-get update", "apt-get install -y build-essential"}
	spec.CleanupCommands = []string{"rm -rf /var/lib/apt/lists/*"}
	spec.DependencyCommand = ""

	content, err := Render(spec, domain.ProjectMount{HostPath: ".", ContainerPath: "/srv/jekyll"}, domain.DefaultBinding())
	require.NoError(t, err)

	got, err := Instructions(content)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"FROM ruby:3.1-alpine",
		"RUN apt-get update",
		"RUN apt-get install -y build-essential",
		"RUN rm -rf /var/lib/apt/lists/*",
		"WORKDIR /srv/jekyll",
		"COPY . /srv/jekyll",
		"EXPOSE 4000",
		`CMD ["bundle","exec","jekyll","serve","--host","0.0.0.0","--port","4000"]`,
	}, got)
}

func TestRenderRejectsUnsafeContainerPath(t *testing.T) {
	for _, p := range []string{"/my app", "/srv/\tsite", "/srv/$HOME"} {
		_, err := Render(jekyllSpec(), domain.ProjectMount{HostPath: ".", ContainerPath: p}, domain.DefaultBinding())
		assert.ErrorIs(t, err, domain.ErrInvalidSpec, p)
	}
}

func TestRenderIsDeterministic(t *testing.T) {
	mount := domain.ProjectMount{HostPath: "./site", ContainerPath: "/app"}
	a, err := Render(jekyllSpec(), mount, domain.DefaultBinding())
	require.NoError(t, err)
	b, err := Render(jekyllSpec(), mount, domain.DefaultBinding())
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestRenderFoldsMultilineCommands(t *testing.T) {
	spec := jekyllSpec()
	spec.PackageManagerCommands = []string{"apk add \\\n  build-base"}

	content, err := Render(spec, domain.ProjectMount{HostPath: ".", ContainerPath: "/app"}, domain.DefaultBinding())
	require.NoError(t, err)

	got, err := Instructions(content)
	require.NoError(t, err)
	assert.Equal(t, "RUN apk add    build-base", got[1])
}

func TestServeCommand(t *testing.T) {
	binding := domain.ServerBinding{Port: 8080, HostInterface: "127.0.0.1"}
	got := ServeCommand(jekyllSpec(), binding)
	assert.Equal(t, []string{"bundle", "exec", "jekyll", "serve", "--host", "127.0.0.1", "--port", "8080"}, got)
}
