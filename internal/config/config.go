package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"
)

// DefaultFile is the config file looked up in the working directory when
// no --config flag is given.
const DefaultFile = "devproxy.yml"

// Config is the resolved proxy configuration. It is built once at startup
// and passed by value afterwards.
type Config struct {
	AppPort        int      `yaml:"appPort"`
	ProxyPort      int      `yaml:"proxyPort"`
	DevDomain      string   `yaml:"devDomain"`
	APILocal       bool     `yaml:"apiLocal"`
	APIBaseURL     string   `yaml:"apiBaseUrl"`
	CertsPath      string   `yaml:"certsPath"`
	ShowLogs       bool     `yaml:"showLogs"`
	FallbackRoutes []string `yaml:"fallbackRoutes,omitempty"`
	LogLevel       string   `yaml:"logLevel,omitempty"`
}

// Environment variables, keyed by the yaml name of the field they set.
var envVars = map[string]string{
	"appPort":        "APP_PORT",
	"proxyPort":      "PROXY_PORT",
	"devDomain":      "DEV_DOMAIN",
	"apiLocal":       "API_LOCAL",
	"apiBaseUrl":     "API_BASE_URL",
	"certsPath":      "CERTS_PATH",
	"showLogs":       "SHOW_LOGS",
	"fallbackRoutes": "FALLBACK_ROUTES",
	"logLevel":       "DEVPROXY_LOG_LEVEL",
}

// EnvVar returns the environment variable that sets the given field.
func EnvVar(field string) string {
	return envVars[field]
}

// Default values
var (
	defaultShowLogs = true
	defaultLogLevel = "info"
)

// Default returns a Config holding only the default values.
func Default() Config {
	return Config{
		ShowLogs: defaultShowLogs,
		LogLevel: defaultLogLevel,
	}
}

// ConfigurationError reports a missing or invalid configuration field.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("invalid configuration: %s %s", e.Field, e.Reason)
}

func missing(field string) error {
	return &ConfigurationError{Field: field, Reason: "is required"}
}

// LoadFile merges the yaml file at path into cfg. Fields absent from the
// file keep their current value.
func LoadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

// LoadDefaultFile merges DefaultFile into cfg when it exists and reports
// whether it was found.
func LoadDefaultFile(cfg *Config) (bool, error) {
	if _, err := os.Stat(DefaultFile); errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err := LoadFile(DefaultFile, cfg); err != nil {
		return false, err
	}
	return true, nil
}

// WriteFile stores cfg as yaml at path.
func WriteFile(path string, cfg Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// ApplyEnv overrides cfg with the environment variables found by lookup.
func ApplyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	for field, name := range envVars {
		value, ok := lookup(name)
		if !ok || value == "" {
			continue
		}
		if err := cfg.set(field, value); err != nil {
			return err
		}
	}
	return nil
}

func (c *Config) set(field, value string) error {
	var err error
	switch field {
	case "appPort":
		c.AppPort, err = parsePort(field, value)
	case "proxyPort":
		c.ProxyPort, err = parsePort(field, value)
	case "devDomain":
		c.DevDomain = value
	case "apiLocal":
		c.APILocal, err = parseBool(field, value)
	case "apiBaseUrl":
		c.APIBaseURL = value
	case "certsPath":
		c.CertsPath = value
	case "showLogs":
		c.ShowLogs, err = parseBool(field, value)
	case "fallbackRoutes":
		c.FallbackRoutes = splitList(value)
	case "logLevel":
		c.LogLevel = value
	}
	return err
}

func parsePort(field, value string) (int, error) {
	port, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return 0, &ConfigurationError{Field: field, Reason: fmt.Sprintf("must be an integer, got %q", value)}
	}
	return port, nil
}

func parseBool(field, value string) (bool, error) {
	b, err := strconv.ParseBool(strings.TrimSpace(value))
	if err != nil {
		return false, &ConfigurationError{Field: field, Reason: fmt.Sprintf("must be a boolean, got %q", value)}
	}
	return b, nil
}

func splitList(value string) []string {
	var out []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// Flag names, one per field.
const (
	FlagAppPort       = "app-port"
	FlagProxyPort     = "proxy-port"
	FlagDevDomain     = "dev-domain"
	FlagAPILocal      = "api-local"
	FlagAPIBaseURL    = "api-base-url"
	FlagCertsPath     = "certs-path"
	FlagShowLogs      = "show-logs"
	FlagFallbackRoute = "fallback-route"
	FlagLogLevel      = "log-level"
)

// BindFlags registers one flag per configuration field on fs.
func BindFlags(fs *pflag.FlagSet) {
	fs.Int(FlagAppPort, 0, "port of the local application server")
	fs.Int(FlagProxyPort, 0, "port the TLS proxy listens on")
	fs.String(FlagDevDomain, "", "development domain served by the proxy")
	fs.Bool(FlagAPILocal, false, "the API runs locally (skips TLS verification)")
	fs.String(FlagAPIBaseURL, "", "base URL of the API backend")
	fs.String(FlagCertsPath, "", "directory holding {domain}-key.pem and {domain}.pem")
	fs.Bool(FlagShowLogs, defaultShowLogs, "log every proxied request and response")
	fs.StringArray(FlagFallbackRoute, nil, "client-side route prefix served by the app root document (repeatable)")
	fs.String(FlagLogLevel, defaultLogLevel, "log level (debug, info, warn, error)")
}

// ApplyFlags overrides cfg with every flag explicitly set on fs.
func ApplyFlags(fs *pflag.FlagSet, cfg *Config) error {
	var err error
	fs.Visit(func(f *pflag.Flag) {
		if err != nil {
			return
		}
		switch f.Name {
		case FlagAppPort:
			cfg.AppPort, err = fs.GetInt(f.Name)
		case FlagProxyPort:
			cfg.ProxyPort, err = fs.GetInt(f.Name)
		case FlagDevDomain:
			cfg.DevDomain, err = fs.GetString(f.Name)
		case FlagAPILocal:
			cfg.APILocal, err = fs.GetBool(f.Name)
		case FlagAPIBaseURL:
			cfg.APIBaseURL, err = fs.GetString(f.Name)
		case FlagCertsPath:
			cfg.CertsPath, err = fs.GetString(f.Name)
		case FlagShowLogs:
			cfg.ShowLogs, err = fs.GetBool(f.Name)
		case FlagFallbackRoute:
			cfg.FallbackRoutes, err = fs.GetStringArray(f.Name)
		case FlagLogLevel:
			cfg.LogLevel, err = fs.GetString(f.Name)
		}
	})
	return err
}

// Validate checks the required fields in declaration order and returns the
// first problem found.
func (c Config) Validate() error {
	if c.AppPort == 0 {
		return missing("appPort")
	}
	if err := validPort("appPort", c.AppPort); err != nil {
		return err
	}
	if c.ProxyPort == 0 {
		return missing("proxyPort")
	}
	if err := validPort("proxyPort", c.ProxyPort); err != nil {
		return err
	}
	if strings.TrimSpace(c.DevDomain) == "" {
		return missing("devDomain")
	}
	if strings.TrimSpace(c.APIBaseURL) == "" {
		return missing("apiBaseUrl")
	}
	u, err := url.Parse(c.APIBaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return &ConfigurationError{Field: "apiBaseUrl", Reason: fmt.Sprintf("must be an absolute http(s) URL, got %q", c.APIBaseURL)}
	}
	if strings.TrimSpace(c.CertsPath) == "" {
		return missing("certsPath")
	}
	for _, route := range c.FallbackRoutes {
		if !strings.HasPrefix(route, "/") || strings.HasPrefix(route, "/api/") || route == "/api" {
			return &ConfigurationError{Field: "fallbackRoutes", Reason: fmt.Sprintf("entry %q must start with / and not target /api/", route)}
		}
	}
	return nil
}

func validPort(field string, port int) error {
	if port < 1 || port > 65535 {
		return &ConfigurationError{Field: field, Reason: fmt.Sprintf("must be between 1 and 65535, got %d", port)}
	}
	return nil
}

// AppURL is the base URL of the local application server.
func (c Config) AppURL() *url.URL {
	return &url.URL{Scheme: "http", Host: "localhost:" + strconv.Itoa(c.AppPort)}
}

// APIURL is the parsed API base URL. Call it on a validated config only.
func (c Config) APIURL() *url.URL {
	u, _ := url.Parse(c.APIBaseURL)
	return u
}

// ProxyURL is the public address developers open in the browser.
func (c Config) ProxyURL() string {
	if c.ProxyPort == 443 {
		return "https://" + c.DevDomain
	}
	return fmt.Sprintf("https://%s:%d", c.DevDomain, c.ProxyPort)
}
