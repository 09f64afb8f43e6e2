package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/melih/lighthouse-preview/internal/config"
	"github.com/melih/lighthouse-preview/internal/core/domain"
	"github.com/melih/lighthouse-preview/internal/core/services"
	"github.com/melih/lighthouse-preview/internal/metrics"
	"github.com/melih/lighthouse-preview/internal/ui"
)

type buildFlags struct {
	tag     string
	noCache bool
}

type runFlags struct {
	tag      string
	name     string
	hostPort int
	env      []string
	detach   bool
	noWait   bool
}

var (
	bFlags buildFlags
	rFlags runFlags
)

func (f buildFlags) options(cfg *config.Config) services.BuildOptions {
	opts := services.BuildOptions{
		Tag:     cfg.Image.Tag,
		NoCache: cfg.Image.NoCache || f.noCache,
		Binding: cfg.Binding(),
	}
	if f.tag != "" {
		opts.Tag = f.tag
	}
	return opts
}

func (f runFlags) options(cfg *config.Config) (services.RunOptions, error) {
	env, err := domain.ParseEnv(append(append([]string(nil), cfg.Env...), f.env...))
	if err != nil {
		return services.RunOptions{}, err
	}
	name := cfg.Server.Name
	if f.name != "" {
		name = f.name
	}
	return services.RunOptions{Name: name, Env: env}, nil
}

func (f runFlags) binding(cfg *config.Config, artifact domain.ImageArtifact) domain.ServerBinding {
	binding := cfg.Binding()
	if artifact.Port != 0 {
		binding.Port = artifact.Port
		if cfg.Server.HostPort == 0 {
			binding.HostPort = artifact.Port
		}
	}
	if f.hostPort != 0 {
		binding.HostPort = f.hostPort
	}
	return binding
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

var buildCmd = &cobra.Command{
	Use:   "build",
	Short: "Build the preview image",
	Long: `Install the declared runtime and packages in order, copy the project
into the image and resolve its dependencies. The image is tagged only if
every step succeeds.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, log, err := loadConfig()
		if err != nil {
			return err
		}
		ctx, cancel := signalContext()
		defer cancel()

		b, err := newBootstrapper(cfg, log, metrics.New(), nil)
		if err != nil {
			return err
		}
		artifact, err := b.Build(ctx, cfg.ImageSpec(), cfg.ProjectMount(), bFlags.options(cfg))
		if err != nil {
			return err
		}
		ui.Artifact(artifact)
		return nil
	},
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a built preview image",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, log, err := loadConfig()
		if err != nil {
			return err
		}
		ctx, cancel := signalContext()
		defer cancel()

		b, err := newBootstrapper(cfg, log, metrics.New(), nil)
		if err != nil {
			return err
		}
		tag := cfg.Image.Tag
		if rFlags.tag != "" {
			tag = rFlags.tag
		}
		artifact, err := b.Artifact(ctx, tag)
		if err != nil {
			return err
		}
		return startAndServe(ctx, b, cfg, artifact)
	},
}

var upCmd = &cobra.Command{
	Use:   "up",
	Short: "Build the preview image, then run it",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, log, err := loadConfig()
		if err != nil {
			return err
		}
		ctx, cancel := signalContext()
		defer cancel()

		b, err := newBootstrapper(cfg, log, metrics.New(), nil)
		if err != nil {
			return err
		}
		artifact, err := b.Build(ctx, cfg.ImageSpec(), cfg.ProjectMount(), bFlags.options(cfg))
		if err != nil {
			return err
		}
		ui.Artifact(artifact)
		return startAndServe(ctx, b, cfg, artifact)
	},
}

// startAndServe runs artifact and, unless detached, follows it until it
// exits or the user interrupts.
func startAndServe(ctx context.Context, b *services.Bootstrapper, cfg *config.Config, artifact domain.ImageArtifact) error {
	opts, err := rFlags.options(cfg)
	if err != nil {
		return err
	}
	binding := rFlags.binding(cfg, artifact)
	proc, err := b.Run(ctx, artifact, binding, opts)
	if err != nil {
		return err
	}

	wait := !rFlags.noWait && cfg.Server.ReadyTimeout > 0
	if rFlags.detach {
		if wait {
			if err := services.WaitReady(ctx, binding, time.Second, cfg.Server.ReadyTimeout); err != nil {
				return err
			}
		}
		ui.Success(fmt.Sprintf("Preview %s serving at %s", proc.Name, binding.LocalURL()))
		fmt.Println(proc.ContainerID)
		return nil
	}

	readyCtx, cancelReady := context.WithCancel(ctx)
	defer cancelReady()
	done := make(chan error, 1)
	go func() {
		err := b.Attach(ctx, proc, os.Stdout)
		cancelReady()
		done <- err
	}()

	if wait {
		if err := services.WaitReady(readyCtx, binding, time.Second, cfg.Server.ReadyTimeout); err != nil {
			if readyCtx.Err() == nil {
				ui.Warn(fmt.Sprintf("preview did not become ready: %v", err))
			}
		} else {
			ui.Success(fmt.Sprintf("Preview %s serving at %s (Ctrl+C to stop)", proc.Name, binding.LocalURL()))
		}
	}
	return <-done
}

var stopCmd = &cobra.Command{
	Use:   "stop <id|name>",
	Short: "Stop a running preview",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, log, err := loadConfig()
		if err != nil {
			return err
		}
		b, err := newBootstrapper(cfg, log, nil, io.Discard)
		if err != nil {
			return err
		}
		if err := b.Stop(cmd.Context(), args[0]); err != nil {
			return err
		}
		ui.Success("Stopped " + args[0])
		return nil
	},
}

var followLogs bool

var logsCmd = &cobra.Command{
	Use:   "logs <id|name>",
	Short: "Print a preview's output",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, log, err := loadConfig()
		if err != nil {
			return err
		}
		ctx, cancel := signalContext()
		defer cancel()

		b, err := newBootstrapper(cfg, log, nil, io.Discard)
		if err != nil {
			return err
		}
		logs, err := b.Logs(ctx, args[0], followLogs)
		if err != nil {
			return err
		}
		defer logs.Close()
		_, err = io.Copy(os.Stdout, logs)
		if ctx.Err() != nil {
			return nil
		}
		return err
	},
}

var listCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls", "ps"},
	Short:   "List previews",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, log, err := loadConfig()
		if err != nil {
			return err
		}
		b, err := newBootstrapper(cfg, log, nil, io.Discard)
		if err != nil {
			return err
		}
		previews, err := b.List(cmd.Context())
		if err != nil {
			return err
		}
		ui.Previews(os.Stdout, previews)
		return nil
	},
}

func init() {
	for _, c := range []*cobra.Command{buildCmd, upCmd} {
		c.Flags().StringVarP(&bFlags.tag, "tag", "t", "", "image tag (default from config)")
		c.Flags().BoolVar(&bFlags.noCache, "no-cache", false, "rebuild from scratch, ignoring cached layers and images")
	}
	runCmd.Flags().StringVarP(&rFlags.tag, "tag", "t", "", "image tag to run (default from config)")
	for _, c := range []*cobra.Command{runCmd, upCmd} {
		c.Flags().StringVar(&rFlags.name, "name", "", "container name")
		c.Flags().IntVarP(&rFlags.hostPort, "publish", "p", 0, "host port to publish the server on")
		c.Flags().StringArrayVarP(&rFlags.env, "env", "e", nil, "extra NAME=value passed to the server")
		c.Flags().BoolVarP(&rFlags.detach, "detach", "d", false, "return once the preview is started")
		c.Flags().BoolVar(&rFlags.noWait, "no-wait", false, "do not wait for the home page to answer")
	}
	logsCmd.Flags().BoolVarP(&followLogs, "follow", "f", false, "stream new output")

	rootCmd.AddCommand(buildCmd, runCmd, upCmd, stopCmd, logsCmd, listCmd)
}
