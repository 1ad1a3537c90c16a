package cmd

import (
	"bytes"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/AlecAivazis/survey/v2"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bnema/devproxy/internal/config"
	"github.com/bnema/devproxy/internal/proxy"
	"github.com/bnema/devproxy/pkg/version"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func writeKeyPair(t *testing.T, dir, domain string) {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	template := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: domain},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
		DNSNames:     []string{domain},
	}
	der, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	require.NoError(t, err)
	keyDER, err := x509.MarshalECPrivateKey(key)
	require.NoError(t, err)

	keyPath, certPath := proxy.CertificatePaths(dir, domain)
	require.NoError(t, os.WriteFile(keyPath, pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: keyDER}), 0o600))
	require.NoError(t, os.WriteFile(certPath, pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der}), 0o644))
}

func parsedFlags(t *testing.T, args ...string) *pflag.FlagSet {
	t.Helper()
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	config.BindFlags(fs)
	require.NoError(t, fs.Parse(args))
	return fs
}

func noEnv(string) (string, bool) { return "", false }

func TestResolve_Precedence(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)

	writeFile(t, config.DefaultFile, `
appPort: 3000
proxyPort: 8443
devDomain: file.local.dev
apiBaseUrl: https://file.example.com
certsPath: ./certs
showLogs: false
`)
	writeFile(t, ".env", "DEV_DOMAIN=dotenv.local.dev\nAPI_BASE_URL=https://dotenv.example.com\n")

	env := map[string]string{"API_BASE_URL": "https://env.example.com"}
	lookup := func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}

	opts := &rootOptions{}
	res, err := opts.resolveWith(parsedFlags(t, "--app-port", "4000"), lookup)
	require.NoError(t, err)

	assert.Equal(t, config.DefaultFile, res.configFile)
	assert.Equal(t, ".env", res.envFile)
	assert.Equal(t, 4000, res.cfg.AppPort, "flag wins")
	assert.Equal(t, 8443, res.cfg.ProxyPort, "file value kept")
	assert.Equal(t, "dotenv.local.dev", res.cfg.DevDomain, "dotenv overrides file")
	assert.Equal(t, "https://env.example.com", res.cfg.APIBaseURL, "process env wins over dotenv")
	assert.False(t, res.cfg.ShowLogs)
	assert.Equal(t, "info", res.cfg.LogLevel)
}

func TestResolve_ExplicitFiles(t *testing.T) {
	dir := t.TempDir()
	chdir(t, t.TempDir())

	cfgPath := filepath.Join(dir, "custom.yml")
	envPath := filepath.Join(dir, "custom.env")
	writeFile(t, cfgPath, "appPort: 5173\n")
	writeFile(t, envPath, "PROXY_PORT=9443\nFALLBACK_ROUTES=/dashboard, /settings\n")

	opts := &rootOptions{configPath: cfgPath, envFile: envPath}
	res, err := opts.resolveWith(parsedFlags(t), noEnv)
	require.NoError(t, err)

	assert.Equal(t, cfgPath, res.configFile)
	assert.Equal(t, 5173, res.cfg.AppPort)
	assert.Equal(t, 9443, res.cfg.ProxyPort)
	assert.Equal(t, []string{"/dashboard", "/settings"}, res.cfg.FallbackRoutes)
}

func TestResolve_Errors(t *testing.T) {
	chdir(t, t.TempDir())

	_, err := (&rootOptions{configPath: "missing.yml"}).resolveWith(parsedFlags(t), noEnv)
	assert.Error(t, err)

	_, err = (&rootOptions{envFile: "missing.env"}).resolveWith(parsedFlags(t), noEnv)
	assert.ErrorContains(t, err, "missing.env")

	badPort := func(k string) (string, bool) {
		if k == "APP_PORT" {
			return "abc", true
		}
		return "", false
	}
	_, err = (&rootOptions{}).resolveWith(parsedFlags(t), badPort)
	var cfgErr *config.ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "appPort", cfgErr.Field)
}

func validResolved(t *testing.T) resolved {
	t.Helper()
	dir := t.TempDir()
	writeKeyPair(t, dir, "app.local.dev")
	cfg := config.Default()
	cfg.AppPort = 3000
	cfg.ProxyPort = 443
	cfg.DevDomain = "app.local.dev"
	cfg.APIBaseURL = "https://api.example.com"
	cfg.CertsPath = dir
	return resolved{cfg: cfg}
}

func TestRunCheck(t *testing.T) {
	res := validResolved(t)
	var out bytes.Buffer

	require.NoError(t, runCheck(&out, res, proxy.FileCertificateLoader{}))

	assert.Contains(t, out.String(), "configuration is valid")
	assert.Contains(t, out.String(), "key pair loaded")
	assert.Contains(t, out.String(), "https://app.local.dev")
	assert.Contains(t, out.String(), "http://localhost:3000")
	assert.Contains(t, out.String(), "https://api.example.com")
}

func TestRunCheck_MissingCertificate(t *testing.T) {
	res := validResolved(t)
	res.cfg.CertsPath = t.TempDir()
	var out bytes.Buffer

	err := runCheck(&out, res, proxy.FileCertificateLoader{})

	assert.ErrorIs(t, err, proxy.ErrCertificateNotFound)
	assert.Contains(t, out.String(), "app.local.dev-key.pem")
}

func TestRunCheck_InvalidConfig(t *testing.T) {
	res := validResolved(t)
	res.cfg.DevDomain = ""
	var out bytes.Buffer

	err := runCheck(&out, res, proxy.FileCertificateLoader{})

	var cfgErr *config.ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "devDomain", cfgErr.Field)
}

func TestCheckCommand(t *testing.T) {
	certs := t.TempDir()
	writeKeyPair(t, certs, "app.local.dev")
	chdir(t, t.TempDir())

	var out bytes.Buffer
	root := NewRootCmd()
	root.SetOut(&out)
	root.SetArgs([]string{"check",
		"--app-port", "5173",
		"--proxy-port", "8443",
		"--dev-domain", "app.local.dev",
		"--api-base-url", "http://localhost:8080",
		"--api-local",
		"--certs-path", certs,
	})

	require.NoError(t, root.Execute())
	assert.Contains(t, out.String(), "https://app.local.dev:8443")
	assert.Contains(t, out.String(), "TLS not verified")
}

func TestVersionCommand(t *testing.T) {
	var out bytes.Buffer
	root := NewRootCmd()
	root.SetOut(&out)
	root.SetArgs([]string{"version"})

	require.NoError(t, root.Execute())
	assert.Equal(t, version.String()+"\n", out.String())

	out.Reset()
	root = NewRootCmd()
	root.SetOut(&out)
	root.SetArgs([]string{"version", "--short"})
	require.NoError(t, root.Execute())
	assert.Equal(t, version.Version()+"\n", out.String())
}

func TestInitCommand(t *testing.T) {
	original := ask
	t.Cleanup(func() { ask = original })
	ask = func(qs []*survey.Question, response interface{}, opts ...survey.AskOpt) error {
		*response.(*initAnswers) = initAnswers{
			AppPort:    "5173",
			ProxyPort:  "443",
			DevDomain:  "app.local.dev",
			APIBaseURL: "https://api.example.com",
			CertsPath:  "./certs",
			ShowLogs:   true,
		}
		return nil
	}

	path := filepath.Join(t.TempDir(), "devproxy.yml")
	var out bytes.Buffer
	root := NewRootCmd()
	root.SetOut(&out)
	root.SetArgs([]string{"init", "--output", path})
	require.NoError(t, root.Execute())

	cfg := config.Config{}
	require.NoError(t, config.LoadFile(path, &cfg))
	assert.Equal(t, 5173, cfg.AppPort)
	assert.Equal(t, 443, cfg.ProxyPort)
	assert.Equal(t, "https://api.example.com", cfg.APIBaseURL)
	assert.NoError(t, cfg.Validate())
	assert.Contains(t, out.String(), "mkcert")

	// refuses to overwrite without --force
	root = NewRootCmd()
	root.SetOut(&out)
	root.SetArgs([]string{"init", "--output", path})
	assert.ErrorContains(t, root.Execute(), "already exists")
}

func TestInitAnswers_Invalid(t *testing.T) {
	_, err := initAnswers{AppPort: "x", ProxyPort: "443"}.config()
	var cfgErr *config.ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "appPort", cfgErr.Field)

	assert.Error(t, validatePort("70000"))
	assert.NoError(t, validatePort("8443"))
}

// chdir changes the working directory for the duration of the test and
// restores it on cleanup (equivalent of testing.T.Chdir, which needs Go 1.24).
func chdir(t *testing.T, dir string) {
	t.Helper()
	old, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(old) })
}
