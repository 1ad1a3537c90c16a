package proxy

import (
	"bytes"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"net"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/require"
)

// syncBuffer is a bytes.Buffer safe for the concurrent writes of handler
// goroutines.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func newTestLogger() (*log.Logger, *syncBuffer) {
	buf := &syncBuffer{}
	return log.NewWithOptions(buf, log.Options{Level: log.DebugLevel}), buf
}

func mustURL(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	require.NoError(t, err)
	return u
}

// closedAddr returns a loopback address nothing listens on.
func closedAddr(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())
	return addr
}

func freePort(t *testing.T) int {
	t.Helper()
	_, port, err := net.SplitHostPort(closedAddr(t))
	require.NoError(t, err)
	p, err := strconv.Atoi(port)
	require.NoError(t, err)
	return p
}

func portOf(t *testing.T, rawURL string) int {
	t.Helper()
	p, err := strconv.Atoi(mustURL(t, rawURL).Port())
	require.NoError(t, err)
	return p
}

// generateCertificate returns a PEM key and self-signed certificate valid
// for domain, localhost and 127.0.0.1.
func generateCertificate(t *testing.T, domain string) (keyPEM, certPEM []byte) {
	t.Helper()

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	template := &x509.Certificate{
		SerialNumber:          big.NewInt(time.Now().UnixNano()),
		Subject:               pkix.Name{CommonName: domain},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(time.Hour),
		KeyUsage:              x509.KeyUsageDigitalSignature | x509.KeyUsageCertSign,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		BasicConstraintsValid: true,
		IsCA:                  true,
		DNSNames:              []string{domain, "localhost"},
		IPAddresses:           []net.IP{net.ParseIP("127.0.0.1")},
	}

	der, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	require.NoError(t, err)
	keyDER, err := x509.MarshalECPrivateKey(key)
	require.NoError(t, err)

	keyPEM = pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: keyDER})
	certPEM = pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})
	return keyPEM, certPEM
}

// writeCertificates stores a generated pair under a temp dir using the
// {domain}-key.pem / {domain}.pem layout and returns the dir and the
// certificate PEM.
func writeCertificates(t *testing.T, domain string) (string, []byte) {
	t.Helper()
	dir := t.TempDir()
	keyPEM, certPEM := generateCertificate(t, domain)
	require.NoError(t, os.WriteFile(filepath.Join(dir, domain+"-key.pem"), keyPEM, 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, domain+".pem"), certPEM, 0o644))
	return dir, certPEM
}

// roundTripFunc lets a test stand in for the upstream transport.
type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) {
	return f(r)
}

// recordingForwarder records the targets the router hands out.
type recordingForwarder struct {
	mu       sync.Mutex
	targets  []Target
	upgrades []Target
}

func (f *recordingForwarder) Forward(w http.ResponseWriter, r *http.Request, t Target) {
	f.mu.Lock()
	f.targets = append(f.targets, t)
	f.mu.Unlock()
	w.WriteHeader(http.StatusNoContent)
}

func (f *recordingForwarder) ForwardUpgrade(w http.ResponseWriter, r *http.Request, t Target) {
	f.mu.Lock()
	f.upgrades = append(f.upgrades, t)
	f.mu.Unlock()
	w.WriteHeader(http.StatusSwitchingProtocols)
}
