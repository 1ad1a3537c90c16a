package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/bnema/devproxy/internal/cli/ui/styles"
	"github.com/bnema/devproxy/internal/config"
	"github.com/bnema/devproxy/internal/proxy"
)

func newCheckCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Validate the configuration and certificates without listening",
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := opts.resolve(cmd.Flags())
			if err != nil {
				return err
			}
			return runCheck(cmd.OutOrStdout(), res, proxy.FileCertificateLoader{})
		},
	}
}

func runCheck(w io.Writer, res resolved, loader proxy.CertificateLoader) error {
	source := res.configFile
	if source == "" {
		source = "environment and flags"
	}
	_, _ = fmt.Fprintln(w, styles.RenderKeyValue("config", source))

	if err := res.cfg.Validate(); err != nil {
		_, _ = fmt.Fprintln(w, styles.RenderCheck(false, err.Error()))
		return err
	}
	_, _ = fmt.Fprintln(w, styles.RenderCheck(true, "configuration is valid"))

	keyPath, certPath := proxy.CertificatePaths(res.cfg.CertsPath, res.cfg.DevDomain)
	if _, err := proxy.LoadKeyPair(loader, res.cfg.CertsPath, res.cfg.DevDomain); err != nil {
		_, _ = fmt.Fprintln(w, styles.RenderCheck(false, err.Error()))
		return err
	}
	_, _ = fmt.Fprintln(w, styles.RenderCheck(true, "key pair loaded"))
	_, _ = fmt.Fprintln(w, styles.RenderKeyValue("key", keyPath))
	_, _ = fmt.Fprintln(w, styles.RenderKeyValue("cert", certPath))

	printTargets(w, res.cfg)
	return nil
}

func printTargets(w io.Writer, cfg config.Config) {
	_, _ = fmt.Fprintln(w, styles.RenderKeyValue("proxy", cfg.ProxyURL()))
	_, _ = fmt.Fprintln(w, styles.RenderKeyValue("app", cfg.AppURL().String()))
	_, _ = fmt.Fprintln(w, styles.RenderKeyValue("api", apiLabel(cfg, cfg.APIURL().String())))
}
