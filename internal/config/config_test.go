package config

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/melih/lighthouse-preview/internal/core/domain"
)

func loadYAML(t *testing.T, content string) *Config {
	t.Helper()
	v := viper.New()
	v.SetConfigType("yaml")
	require.NoError(t, v.ReadConfig(strings.NewReader(content)))
	cfg, err := Load(v)
	require.NoError(t, err)
	return cfg
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(viper.New())
	require.NoError(t, err)

	assert.Equal(t, "ruby:3.1-alpine", cfg.Image.BaseRuntime)
	assert.Equal(t, domain.DefaultBinding().Port, cfg.Binding().Port)
	assert.Equal(t, "0.0.0.0", cfg.Binding().HostInterface)
	assert.Equal(t, "/app", cfg.ProjectMount().ContainerPath)
	assert.Equal(t, "127.0.0.1:3000", cfg.API.Listen)
	assert.NoError(t, cfg.Validate())
}

func TestLoadOverrides(t *testing.T) {
	cfg := loadYAML(t, `
image:
  tag: blog-preview:dev
  base_runtime: ruby:2.7-slim
  package_manager: apt
  system_packages: [build-essential, git]
  cleanup_commands:
    - rm -rf /var/lib/apt/lists/*
  dependency_command: bundle install --jobs 4
project:
  host_path: ./site
  container_path: /srv/jekyll
server:
  host_port: 14000
  ready_timeout: 30s
env:
  - JEKYLL_ENV=development
  - PAGES_REPO_NWO=melih/blog
`)

	spec := cfg.ImageSpec()
	assert.Equal(t, "ruby:2.7-slim", spec.BaseRuntime)
	assert.Equal(t, []string{
		"apt-get update",
		"apt-get install -y --no-install-recommends build-essential git",
	}, spec.InstallCommands())
	assert.Equal(t, []string{"rm -rf /var/lib/apt/lists/*"}, spec.CleanupCommands)
	assert.Equal(t, "/srv/jekyll", cfg.ProjectMount().ContainerPath)
	assert.Equal(t, 4000, cfg.Binding().Port)
	assert.Equal(t, 14000, cfg.Binding().PublishedPort())
	assert.Equal(t, 30*time.Second, cfg.Server.ReadyTimeout)

	env, err := cfg.Environment()
	require.NoError(t, err)
	assert.Equal(t, []domain.EnvironmentVariable{
		{Name: "JEKYLL_ENV", Value: "development"},
		{Name: "PAGES_REPO_NWO", Value: "melih/blog"},
	}, env)
	assert.NoError(t, cfg.Validate())
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("PREVIEW_SERVER_PORT", "5000")
	t.Setenv("PREVIEW_IMAGE_TAG", "env:tag")
	t.Setenv("PREVIEW_SERVER_READY_TIMEOUT", "45s")

	t.Run("without config file", func(t *testing.T) {
		cfg, err := Load(viper.New())
		require.NoError(t, err)
		assert.Equal(t, 5000, cfg.Server.Port)
		assert.Equal(t, "env:tag", cfg.Image.Tag)
		assert.Equal(t, 45*time.Second, cfg.Server.ReadyTimeout)
		assert.Equal(t, "ruby:3.1-alpine", cfg.Image.BaseRuntime)
	})

	t.Run("over config file", func(t *testing.T) {
		cfg := loadYAML(t, `
image:
  tag: file:tag
  base_runtime: ruby:2.7-slim
`)
		assert.Equal(t, 5000, cfg.Server.Port)
		assert.Equal(t, "env:tag", cfg.Image.Tag)
		assert.Equal(t, "ruby:2.7-slim", cfg.Image.BaseRuntime)
	})
}

func TestValidateReportsEverySection(t *testing.T) {
	cfg := loadYAML(t, `
image:
  base_runtime: ""
project:
  container_path: relative/path
server:
  port: 70000
env:
  - not-an-assignment
`)
	err := cfg.Validate()
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrInvalidSpec)
	for _, want := range []string{"base runtime", "container path", "port 70000", "not-an-assignment"} {
		assert.Contains(t, err.Error(), want)
	}
}

func TestSampleRoundTrip(t *testing.T) {
	content, err := Sample()
	require.NoError(t, err)
	assert.Contains(t, string(content), "ready_timeout: 2m0s")

	v := viper.New()
	v.SetConfigType("yaml")
	require.NoError(t, v.ReadConfig(bytes.NewReader(content)))
	cfg, err := Load(v)
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestWriteSample(t *testing.T) {
	path := filepath.Join(t.TempDir(), DefaultFileName)

	require.NoError(t, WriteSample(path, false))
	assert.Error(t, WriteSample(path, false))
	require.NoError(t, WriteSample(path, true))

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(b), "# lighthouse-preview configuration."))
}
