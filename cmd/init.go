package cmd

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/AlecAivazis/survey/v2"
	"github.com/spf13/cobra"

	"github.com/bnema/devproxy/internal/cli/ui/styles"
	"github.com/bnema/devproxy/internal/config"
	"github.com/bnema/devproxy/internal/proxy"
)

// ask is replaced in tests.
var ask = survey.Ask

type initAnswers struct {
	AppPort    string `survey:"appPort"`
	ProxyPort  string `survey:"proxyPort"`
	DevDomain  string `survey:"devDomain"`
	APIBaseURL string `survey:"apiBaseUrl"`
	APILocal   bool   `survey:"apiLocal"`
	CertsPath  string `survey:"certsPath"`
	ShowLogs   bool   `survey:"showLogs"`
}

func newInitCmd() *cobra.Command {
	var (
		output string
		force  bool
	)

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create a config file interactively",
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := os.Stat(output); err == nil && !force {
				return fmt.Errorf("%s already exists, use --force to overwrite", output)
			}

			cfg, err := promptConfig()
			if err != nil {
				return err
			}
			if err := config.WriteFile(output, cfg); err != nil {
				return err
			}

			_, _ = fmt.Fprintln(cmd.OutOrStdout(), styles.RenderCheck(true, "wrote "+output))
			keyPath, certPath := proxy.CertificatePaths(cfg.CertsPath, cfg.DevDomain)
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), styles.Theme.Muted.Render(fmt.Sprintf(
				"generate the certificate with: mkcert -key-file %s -cert-file %s %s", keyPath, certPath, cfg.DevDomain)))
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", config.DefaultFile, "path of the config file to write")
	cmd.Flags().BoolVarP(&force, "force", "f", false, "overwrite an existing file")

	return cmd
}

func promptConfig() (config.Config, error) {
	questions := []*survey.Question{
		{
			Name:     "appPort",
			Prompt:   &survey.Input{Message: "Port of the local app server:", Default: "3000"},
			Validate: validatePort,
		},
		{
			Name:     "proxyPort",
			Prompt:   &survey.Input{Message: "Port the proxy listens on:", Default: "443"},
			Validate: validatePort,
		},
		{
			Name:     "devDomain",
			Prompt:   &survey.Input{Message: "Development domain:", Default: "app.local.dev"},
			Validate: survey.Required,
		},
		{
			Name:     "apiBaseUrl",
			Prompt:   &survey.Input{Message: "API base URL:", Default: "http://localhost:8080"},
			Validate: survey.Required,
		},
		{
			Name:   "apiLocal",
			Prompt: &survey.Confirm{Message: "Does the API run locally?", Default: true},
		},
		{
			Name:     "certsPath",
			Prompt:   &survey.Input{Message: "Certificates directory:", Default: "./certs"},
			Validate: survey.Required,
		},
		{
			Name:   "showLogs",
			Prompt: &survey.Confirm{Message: "Log every proxied request?", Default: true},
		},
	}

	var answers initAnswers
	if err := ask(questions, &answers); err != nil {
		return config.Config{}, fmt.Errorf("prompt failed: %w", err)
	}
	return answers.config()
}

func (a initAnswers) config() (config.Config, error) {
	cfg := config.Default()
	var err error
	if cfg.AppPort, err = strconv.Atoi(a.AppPort); err != nil {
		return cfg, &config.ConfigurationError{Field: "appPort", Reason: "must be an integer"}
	}
	if cfg.ProxyPort, err = strconv.Atoi(a.ProxyPort); err != nil {
		return cfg, &config.ConfigurationError{Field: "proxyPort", Reason: "must be an integer"}
	}
	cfg.DevDomain = a.DevDomain
	cfg.APIBaseURL = a.APIBaseURL
	cfg.APILocal = a.APILocal
	cfg.CertsPath = a.CertsPath
	cfg.ShowLogs = a.ShowLogs
	return cfg, cfg.Validate()
}

func validatePort(ans interface{}) error {
	s, ok := ans.(string)
	if !ok {
		return errors.New("expected a string")
	}
	port, err := strconv.Atoi(s)
	if err != nil || port < 1 || port > 65535 {
		return errors.New("enter a port between 1 and 65535")
	}
	return nil
}
