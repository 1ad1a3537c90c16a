package cmd

import (
	"fmt"
	"io"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/bnema/devproxy/internal/cli/ui/styles"
	"github.com/bnema/devproxy/internal/config"
	"github.com/bnema/devproxy/internal/proxy"
	"github.com/bnema/devproxy/pkg/logger"
)

func newServeCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the proxy",
		Long: `Start the TLS proxy and keep it running until SIGINT or SIGTERM.
Configuration is read from the config file, the environment and flags, in
that order of precedence.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := opts.resolve(cmd.Flags())
			if err != nil {
				return err
			}
			return runServe(cmd, res)
		},
	}
}

func runServe(cmd *cobra.Command, res resolved) error {
	log := logger.GetLogger()
	log.SetLogLevel(res.cfg.LogLevel)
	if res.configFile != "" {
		log.Debug("Using config file", "path", res.configFile)
	}
	if res.envFile != "" {
		log.Debug("Using env file", "path", res.envFile)
	}

	srv, err := proxy.NewServer(res.cfg, proxy.WithLogger(log.WithPrefix("proxy")))
	if err != nil {
		return err
	}
	if err := srv.Start(); err != nil {
		return err
	}

	printBanner(cmd.OutOrStdout(), srv)

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var serveErr error
	select {
	case <-ctx.Done():
		log.Info("Shutting down")
	case serveErr = <-srv.Errors():
	}

	if err := srv.Stop(); err != nil && serveErr == nil {
		return err
	}
	return serveErr
}

func printBanner(w io.Writer, srv *proxy.Server) {
	cfg := srv.Config()
	app, api := srv.Targets()

	rows := []string{
		styles.RenderKeyValue("proxy", cfg.ProxyURL()),
		styles.RenderKeyValue("app", app.String()),
		styles.RenderKeyValue("api", apiLabel(cfg, api.String())),
		styles.RenderKeyValue("routing", styles.Theme.Route.Render("/api/* "+styles.IconArrow+" api, "+styles.IconBullet+" else "+styles.IconArrow+" app")),
	}
	if len(cfg.FallbackRoutes) > 0 {
		rows = append(rows, styles.RenderKeyValue("fallback", fmt.Sprint(cfg.FallbackRoutes)))
	}
	_, _ = fmt.Fprintln(w, styles.RenderBanner("devproxy", rows...))
}

func apiLabel(cfg config.Config, url string) string {
	if cfg.APILocal {
		return url + styles.Theme.Muted.Render(" (local, TLS not verified)")
	}
	return url
}
