package proxy

import (
	"fmt"
	"net/http"
	"strings"
)

const (
	// CacheControlValue is set on every routed response.
	CacheControlValue = "no-cache, no-store, must-revalidate"

	// EnvironmentHeader marks API traffic coming through the local proxy.
	EnvironmentHeader = "X-App-Environment"
	environmentValue  = "local"
)

// headers the websocket dialer writes itself
var websocketHandshakeHeaders = []string{
	"Upgrade",
	"Connection",
	"Sec-Websocket-Key",
	"Sec-Websocket-Version",
	"Sec-Websocket-Extensions",
	"Sec-Websocket-Protocol",
}

// HeaderTransform rewrites request headers before they leave the proxy.
type HeaderTransform func(h http.Header)

// APIRequestHeaders returns the request transform of the api role. Host is
// never forwarded; the environment marker is added unless the API is local.
func APIRequestHeaders(apiLocal bool) HeaderTransform {
	return func(h http.Header) {
		h.Del("Host")
		if apiLocal {
			h.Del(EnvironmentHeader)
			return
		}
		h.Set(EnvironmentHeader, environmentValue)
	}
}

// AppRequestHeaders returns the request transform of the app role, which
// only drops Host.
func AppRequestHeaders() HeaderTransform {
	return func(h http.Header) {
		h.Del("Host")
	}
}

// SetNoCache applies the routing cache policy to a response header.
func SetNoCache(h http.Header) {
	h.Set("Cache-Control", CacheControlValue)
}

// ResponseHeaders prepares upstream response headers for relay. The
// upstream Cache-Control is dropped so the routing policy is the only value
// the client sees; everything else passes through untouched.
func ResponseHeaders(h http.Header) {
	h.Del("Cache-Control")
}

// websocketRequestHeaders copies the inbound headers the dialer should
// send upstream, then applies transform.
func websocketRequestHeaders(in http.Header, transform HeaderTransform) http.Header {
	out := in.Clone()
	if out == nil {
		out = make(http.Header)
	}
	for _, k := range websocketHandshakeHeaders {
		out.Del(k)
	}
	if transform != nil {
		transform(out)
	}
	return out
}

// forwardLine is the request log line of the api role.
func forwardLine(method, uri, apiBaseURL string) string {
	return fmt.Sprintf("%s %s -> %s%s", method, uri, strings.TrimSuffix(apiBaseURL, "/"), uri)
}

// responseLine is the response log line of both roles.
func responseLine(status int, method, uri string) string {
	return fmt.Sprintf("%d %s %s", status, method, uri)
}
