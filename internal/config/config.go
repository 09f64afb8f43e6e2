package config

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/melih/lighthouse-preview/internal/core/domain"
)

// DefaultFileName is looked up in the working directory when --config is
// not given.
const DefaultFileName = "preview.yml"

// EnvPrefix namespaces environment overrides: server.port is read from
// PREVIEW_SERVER_PORT.
const EnvPrefix = "PREVIEW"

type Config struct {
	Image   ImageConfig   `mapstructure:"image" yaml:"image"`
	Project ProjectConfig `mapstructure:"project" yaml:"project"`
	Server  ServerConfig  `mapstructure:"server" yaml:"server"`
	Env     []string      `mapstructure:"env" yaml:"env,omitempty"`
	API     APIConfig     `mapstructure:"api" yaml:"api"`
	Log     LogConfig     `mapstructure:"log" yaml:"log"`
}

type ImageConfig struct {
	Tag                    string   `mapstructure:"tag" yaml:"tag"`
	BaseRuntime            string   `mapstructure:"base_runtime" yaml:"base_runtime"`
	PackageManager         string   `mapstructure:"package_manager" yaml:"package_manager"`
	SystemPackages         []string `mapstructure:"system_packages" yaml:"system_packages"`
	PackageManagerCommands []string `mapstructure:"package_manager_commands" yaml:"package_manager_commands,omitempty"`
	CleanupCommands        []string `mapstructure:"cleanup_commands" yaml:"cleanup_commands,omitempty"`
	DependencyCommand      string   `mapstructure:"dependency_command" yaml:"dependency_command"`
	ServeCommand           []string `mapstructure:"serve_command" yaml:"serve_command"`
	NoCache                bool     `mapstructure:"no_cache" yaml:"no_cache,omitempty"`
}

type ProjectConfig struct {
	HostPath      string `mapstructure:"host_path" yaml:"host_path"`
	ContainerPath string `mapstructure:"container_path" yaml:"container_path"`
	Ref           string `mapstructure:"ref" yaml:"ref,omitempty"`
}

type ServerConfig struct {
	Port          int    `mapstructure:"port" yaml:"port"`
	HostInterface string `mapstructure:"host_interface" yaml:"host_interface"`
	HostPort      int    `mapstructure:"host_port" yaml:"host_port,omitempty"`
	Name          string `mapstructure:"name" yaml:"name,omitempty"`
	// ReadyTimeout bounds how long run waits for the home page; zero skips the check.
	ReadyTimeout time.Duration `mapstructure:"ready_timeout" yaml:"ready_timeout,omitempty"`
	StopTimeout  time.Duration `mapstructure:"stop_timeout" yaml:"stop_timeout,omitempty"`
}

type APIConfig struct {
	Listen      string `mapstructure:"listen" yaml:"listen"`
	ProxyDomain string `mapstructure:"proxy_domain" yaml:"proxy_domain"`
}

type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"` // text, json
}

// Default returns the configuration of a Jekyll blog preview.
func Default() *Config {
	return &Config{
		Image: ImageConfig{
			Tag:               "lighthouse-preview:latest",
			BaseRuntime:       "ruby:3.1-alpine",
			PackageManager:    domain.PackageManagerAPK,
			SystemPackages:    []string{"build-base", "git"},
			DependencyCommand: "bundle install",
			ServeCommand: []string{
				"bundle", "exec", "jekyll", "serve",
				"--host", "${HOST}", "--port", "${PORT}",
			},
		},
		Project: ProjectConfig{
			HostPath:      ".",
			ContainerPath: domain.DefaultContainerPath,
		},
		Server: ServerConfig{
			Port:          domain.DefaultPort,
			HostInterface: domain.DefaultHostInterface,
			ReadyTimeout:  2 * time.Minute,
			StopTimeout:   10 * time.Second,
		},
		API: APIConfig{
			Listen:      "127.0.0.1:3000",
			ProxyDomain: "localhost",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load unmarshals v over the defaults. Every key can be overridden from the
// environment, whether or not the config file sets it.
func Load(v *viper.Viper) (*Config, error) {
	if err := BindEnv(v); err != nil {
		return nil, err
	}
	cfg := Default()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	return cfg, nil
}

// BindEnv registers an environment variable for every config key. viper only
// consults the environment for keys it already knows, and Load takes its
// defaults from the struct rather than from viper.
func BindEnv(v *viper.Viper) error {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	for _, key := range keys(reflect.TypeOf(Config{}), "") {
		if err := v.BindEnv(key); err != nil {
			return fmt.Errorf("failed to bind %s: %w", key, err)
		}
	}
	return nil
}

// keys lists the dotted mapstructure keys of t.
func keys(t reflect.Type, prefix string) []string {
	var out []string
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		key := f.Tag.Get("mapstructure")
		if key == "" {
			continue
		}
		if prefix != "" {
			key = prefix + "." + key
		}
		if f.Type.Kind() == reflect.Struct {
			out = append(out, keys(f.Type, key)...)
			continue
		}
		out = append(out, key)
	}
	return out
}

// ImageSpec returns the declared image.
func (c *Config) ImageSpec() domain.ImageSpec {
	return domain.ImageSpec{
		BaseRuntime:            c.Image.BaseRuntime,
		PackageManager:         c.Image.PackageManager,
		SystemPackages:         c.Image.SystemPackages,
		PackageManagerCommands: c.Image.PackageManagerCommands,
		CleanupCommands:        c.Image.CleanupCommands,
		DependencyCommand:      c.Image.DependencyCommand,
		ServeCommand:           c.Image.ServeCommand,
	}
}

func (c *Config) ProjectMount() domain.ProjectMount {
	return domain.ProjectMount{
		HostPath:      c.Project.HostPath,
		ContainerPath: c.Project.ContainerPath,
		Ref:           c.Project.Ref,
	}
}

func (c *Config) Binding() domain.ServerBinding {
	return domain.ServerBinding{
		Port:          c.Server.Port,
		HostInterface: c.Server.HostInterface,
		HostPort:      c.Server.HostPort,
	}
}

func (c *Config) Environment() ([]domain.EnvironmentVariable, error) {
	return domain.ParseEnv(c.Env)
}

// Validate checks every section and reports all problems at once.
func (c *Config) Validate() error {
	_, envErr := c.Environment()
	return errors.Join(
		c.ImageSpec().Validate(),
		domain.ValidateTag(c.Image.Tag),
		c.ProjectMount().Validate(),
		c.Binding().Validate(),
		envErr,
	)
}
