package cli

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/melih/lighthouse-preview/internal/config"
	"github.com/melih/lighthouse-preview/internal/core/domain"
	"github.com/melih/lighthouse-preview/internal/logger"
	"github.com/melih/lighthouse-preview/internal/ui"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "lighthouse-preview",
	Short: "Build and run containerized previews of a static site",
	Long: `lighthouse-preview builds an immutable container image from a site
directory (or git repository) and a declared runtime, then serves it on a
fixed port with the content server running inside the container.

Configuration lives in preview.yml; run 'lighthouse-preview init' to create one.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the CLI and returns the process exit status.
func Execute() int {
	err := rootCmd.Execute()
	if err == nil {
		return 0
	}
	fmt.Fprint(os.Stderr, describe(err))
	return ExitCode(err)
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (default: preview.yml)")
	rootCmd.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "text", "log format (text, json)")
	viper.BindPFlag("log.level", rootCmd.PersistentFlags().Lookup("log-level"))
	viper.BindPFlag("log.format", rootCmd.PersistentFlags().Lookup("log-format"))
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName(strings.TrimSuffix(config.DefaultFileName, ".yml"))
		viper.SetConfigType("yml")
		viper.AddConfigPath(".")
	}

	viper.SetEnvPrefix(config.EnvPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			fmt.Fprintf(os.Stderr, "Error reading config: %v\n", err)
		}
	}
}

// loadConfig returns the validated configuration and the logger it asks for.
func loadConfig() (*config.Config, *logrus.Logger, error) {
	cfg, err := config.Load(viper.GetViper())
	if err != nil {
		return nil, nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}
	log, err := logger.New(cfg.Log.Level, cfg.Log.Format, os.Stderr)
	if err != nil {
		return nil, nil, err
	}
	return cfg, log, nil
}

// ExitCode maps an error to a process exit status: 2 for build failures,
// the container's own status (or 3) for runtime failures, 1 otherwise.
func ExitCode(err error) int {
	var buildErr *domain.BuildError
	var runtimeErr *domain.RuntimeError
	switch {
	case err == nil:
		return 0
	case errors.As(err, &buildErr):
		return 2
	case errors.As(err, &runtimeErr):
		if runtimeErr.ExitCode > 0 && runtimeErr.ExitCode < 256 {
			return int(runtimeErr.ExitCode)
		}
		return 3
	default:
		return 1
	}
}

func describe(err error) string {
	var buildErr *domain.BuildError
	var runtimeErr *domain.RuntimeError
	switch {
	case errors.Is(err, domain.ErrInvalidSpec):
		return ui.FormatError("Invalid configuration", err.Error(), "run 'lighthouse-preview validate' to see every problem")
	case errors.As(err, &buildErr):
		hint := "fix the failing step and build again; builds are never retried automatically"
		return ui.FormatError("Build failed at "+buildErr.Step, buildErr.Error(), hint)
	case errors.As(err, &runtimeErr):
		return ui.FormatError("Preview failed", runtimeErr.Error(), "check 'lighthouse-preview logs <id>'")
	default:
		return ui.FormatError("Command failed", err.Error(), "")
	}
}
