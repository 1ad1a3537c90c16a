package proxy

import (
	"crypto/tls"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

// forwarded-by headers the ReverseProxy strips before Rewrite; the proxy
// passes the client's values through unchanged.
var forwardedHeaders = []string{"Forwarded", "X-Forwarded-For", "X-Forwarded-Host", "X-Forwarded-Proto"}

// UpstreamOptions configures an Upstream.
type UpstreamOptions struct {
	// VerifyTLS checks the upstream certificate. Off only for a local API
	// serving a self-signed certificate.
	VerifyTLS bool
	// ShowLogs emits one line per forwarded request and response.
	ShowLogs bool
	// Transform rewrites the outbound request headers.
	Transform HeaderTransform
	Logger    Logger
}

// Upstream forwards requests of one role to its target. It is built once
// and shared by every request; it holds no per-request state.
type Upstream struct {
	role      Role
	target    *url.URL
	verifyTLS bool
	showLogs  bool
	transform HeaderTransform
	transport http.RoundTripper
	dialer    *websocket.Dialer
	log       Logger
}

// NewUpstream creates the forwarder for role. The outbound Host always
// follows target (change-origin).
func NewUpstream(role Role, target *url.URL, opts UpstreamOptions) *Upstream {
	tlsConfig := &tls.Config{
		InsecureSkipVerify: !opts.VerifyTLS,
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.TLSClientConfig = tlsConfig

	log := opts.Logger
	if log == nil {
		log = nopLogger{}
	}

	return &Upstream{
		role:      role,
		target:    target,
		verifyTLS: opts.VerifyTLS,
		showLogs:  opts.ShowLogs,
		transform: opts.Transform,
		transport: transport,
		dialer: &websocket.Dialer{
			Proxy:            transport.Proxy,
			HandshakeTimeout: 45 * time.Second,
			TLSClientConfig:  tlsConfig,
		},
		log: log,
	}
}

// Target is the upstream base URL.
func (u *Upstream) Target() *url.URL {
	return u.target
}

// VerifyTLS reports whether the upstream certificate is checked.
func (u *Upstream) VerifyTLS() bool {
	return u.verifyTLS
}

// Close drops the idle upstream connections.
func (u *Upstream) Close() {
	if t, ok := u.transport.(interface{ CloseIdleConnections() }); ok {
		t.CloseIdleConnections()
	}
}

// Forward streams r to the upstream and the response back to w.
func (u *Upstream) Forward(w http.ResponseWriter, r *http.Request, t Target) {
	u.reverseProxy(r, t).ServeHTTP(w, r)
}

// reverseProxy builds the ReverseProxy for one request. The transport is
// shared, so this only allocates the closures.
func (u *Upstream) reverseProxy(r *http.Request, t Target) *httputil.ReverseProxy {
	uri := r.URL.RequestURI()
	requestID := RequestID(r.Context())

	return &httputil.ReverseProxy{
		Transport:     u.transport,
		FlushInterval: -1,
		Rewrite: func(pr *httputil.ProxyRequest) {
			pr.SetURL(u.target)
			if t.Rewritten {
				pr.Out.URL.Path = joinPath(u.target.Path, t.Path)
				pr.Out.URL.RawPath = ""
				pr.Out.URL.RawQuery = t.RawQuery
			}
			for _, k := range forwardedHeaders {
				if v, ok := pr.In.Header[k]; ok {
					pr.Out.Header[k] = v
				}
			}
			if u.transform != nil {
				u.transform(pr.Out.Header)
			}
			if u.showLogs && u.role == RoleAPI {
				u.log.Info(forwardLine(r.Method, uri, u.target.String()), "request_id", requestID)
			}
		},
		ModifyResponse: func(resp *http.Response) error {
			ResponseHeaders(resp.Header)
			if u.showLogs {
				u.log.Info(responseLine(resp.StatusCode, r.Method, uri), "request_id", requestID)
			}
			return nil
		},
		ErrorHandler: u.handleError,
	}
}

// handleError runs when the upstream could not produce a response.
func (u *Upstream) handleError(w http.ResponseWriter, r *http.Request, err error) {
	if r.Context().Err() != nil {
		// Client went away; nothing left to answer.
		u.log.Debug("Client disconnected before the upstream answered",
			"role", u.role, "path", r.URL.Path, "request_id", RequestID(r.Context()))
		return
	}

	if u.role == RoleApp && isConnRefused(err) {
		u.log.Warn("App server is not accepting connections yet, dropping request",
			"target", u.target.String(), "path", r.URL.Path, "request_id", RequestID(r.Context()))
		panic(http.ErrAbortHandler)
	}

	upErr := newUpstreamError(u.role, err)
	u.log.Error("Proxy error",
		"role", u.role,
		"target", u.target.String(),
		"path", r.URL.Path,
		"kind", upErr.Kind,
		"request_id", RequestID(r.Context()),
		"error", err)

	body := "Bad Gateway: upstream unreachable"
	if upErr.Kind == UpstreamProtocolError {
		body = "Bad Gateway: invalid upstream response"
	}
	http.Error(w, body, http.StatusBadGateway)
}

// joinPath appends path to the target base path with a single slash.
func joinPath(base, path string) string {
	if base == "" || base == "/" {
		return path
	}
	return strings.TrimSuffix(base, "/") + "/" + strings.TrimPrefix(path, "/")
}
