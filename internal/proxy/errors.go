package proxy

import (
	"errors"
	"fmt"
	"io"
	"net"
	"syscall"
)

// ErrCertificateNotFound is matched by every CertificateNotFoundError.
var ErrCertificateNotFound = errors.New("certificate not found")

// CertificateNotFoundError names the key or certificate file that is missing.
type CertificateNotFoundError struct {
	Path string
}

func (e *CertificateNotFoundError) Error() string {
	return fmt.Sprintf("certificate not found: %s", e.Path)
}

func (e *CertificateNotFoundError) Is(target error) bool {
	return target == ErrCertificateNotFound
}

// UpstreamErrorKind separates transport failures from bad upstream replies.
type UpstreamErrorKind int

const (
	UpstreamUnreachable UpstreamErrorKind = iota
	UpstreamProtocolError
)

func (k UpstreamErrorKind) String() string {
	if k == UpstreamProtocolError {
		return "protocol error"
	}
	return "unreachable"
}

// UpstreamError wraps a failure talking to the upstream of a role.
type UpstreamError struct {
	Role Role
	Kind UpstreamErrorKind
	Err  error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("%s upstream %s: %v", e.Role, e.Kind, e.Err)
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}

// newUpstreamError classifies err. Anything that is a network error or a
// closed connection counts as unreachable; the rest are protocol errors
// (malformed status line, bad headers, ...).
func newUpstreamError(role Role, err error) *UpstreamError {
	kind := UpstreamProtocolError
	var netErr net.Error
	var opErr *net.OpError
	if errors.As(err, &netErr) || errors.As(err, &opErr) ||
		errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		kind = UpstreamUnreachable
	}
	return &UpstreamError{Role: role, Kind: kind, Err: err}
}

func isConnRefused(err error) bool {
	return errors.Is(err, syscall.ECONNREFUSED)
}
