package cli

import (
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/melih/lighthouse-preview/internal/adapters/http"
	"github.com/melih/lighthouse-preview/internal/config"
	"github.com/melih/lighthouse-preview/internal/metrics"
)

const shutdownTimeout = 10 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the preview control API",
	Long: `Expose build, run, stop, logs and list over HTTP, and route
<name>.<proxy_domain> requests to the matching running preview.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, log, err := loadConfig()
		if err != nil {
			return err
		}
		ctx, cancel := signalContext()
		defer cancel()

		// 1. Initialize the core service and its adapters
		m := metrics.New()
		b, err := newBootstrapper(cfg, log, m, nil)
		if err != nil {
			return err
		}

		// 2. Initialize HTTP handlers
		previews := http.NewPreviewHandler(b, cfg, log)
		proxy := http.NewProxyHandler(b, cfg.API.ProxyDomain)

		// 3. Setup Framework (Fiber)
		app := http.NewApp(previews, proxy, m)

		errs := make(chan error, 1)
		go func() {
			log.Infof("Server starting on %s", cfg.API.Listen)
			errs <- app.Listen(cfg.API.Listen)
		}()

		select {
		case err := <-errs:
			return err
		case <-ctx.Done():
		}
		log.Info("Shutting down")
		return app.ShutdownWithTimeout(shutdownTimeout)
	},
}

func init() {
	serveCmd.Flags().String("listen", config.Default().API.Listen, "address for the control API")
	viper.BindPFlag("api.listen", serveCmd.Flags().Lookup("listen"))
	rootCmd.AddCommand(serveCmd)
}
