// Package proxy is the routing and forwarding engine of devproxy: TLS
// listener, per-request role selection, header rewriting, streaming HTTP
// forwarding and WebSocket relay.
package proxy

// Role is the upstream a request is routed to.
type Role int

const (
	RoleApp Role = iota
	RoleAPI
)

func (r Role) String() string {
	if r == RoleAPI {
		return "api"
	}
	return "app"
}

// Target is what the router decided for one request. The inbound request
// is left untouched; the forwarded copy takes its path from the target.
type Target struct {
	Role     Role
	Path     string
	RawQuery string

	// Rewritten is set when Path differs from the inbound path (SPA fallback).
	Rewritten bool
}

// Logger is the logging capability the proxy calls into. A
// *charmbracelet/log.Logger satisfies it.
type Logger interface {
	Debug(msg interface{}, keyvals ...interface{})
	Info(msg interface{}, keyvals ...interface{})
	Warn(msg interface{}, keyvals ...interface{})
	Error(msg interface{}, keyvals ...interface{})
}

type nopLogger struct{}

func (nopLogger) Debug(interface{}, ...interface{}) {}
func (nopLogger) Info(interface{}, ...interface{})  {}
func (nopLogger) Warn(interface{}, ...interface{})  {}
func (nopLogger) Error(interface{}, ...interface{}) {}
