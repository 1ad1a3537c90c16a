package proxy

import (
	"crypto/tls"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// CertificateLoader returns the PEM encoded private key and certificate for
// a domain.
type CertificateLoader interface {
	Load(certsPath, domain string) (key []byte, cert []byte, err error)
}

// FileCertificateLoader reads {domain}-key.pem and {domain}.pem from the
// certificates directory, as written by mkcert.
type FileCertificateLoader struct{}

// CertificatePaths returns the key and certificate paths for domain.
func CertificatePaths(certsPath, domain string) (keyPath, certPath string) {
	keyPath = filepath.Join(certsPath, domain+"-key.pem")
	certPath = filepath.Join(certsPath, domain+".pem")
	return keyPath, certPath
}

// Load checks that both files exist, key first, before reading either so
// the error names the file that is missing.
func (FileCertificateLoader) Load(certsPath, domain string) ([]byte, []byte, error) {
	keyPath, certPath := CertificatePaths(certsPath, domain)

	for _, path := range []string{keyPath, certPath} {
		if _, err := os.Stat(path); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return nil, nil, &CertificateNotFoundError{Path: path}
			}
			return nil, nil, fmt.Errorf("failed to stat %s: %w", path, err)
		}
	}

	key, err := os.ReadFile(keyPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read private key: %w", err)
	}
	cert, err := os.ReadFile(certPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read certificate: %w", err)
	}
	return key, cert, nil
}

// LoadKeyPair loads the files through loader and parses them into a
// tls.Certificate.
func LoadKeyPair(loader CertificateLoader, certsPath, domain string) (tls.Certificate, error) {
	key, cert, err := loader.Load(certsPath, domain)
	if err != nil {
		return tls.Certificate{}, err
	}
	pair, err := tls.X509KeyPair(cert, key)
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("invalid key pair for %s: %w", domain, err)
	}
	return pair, nil
}
