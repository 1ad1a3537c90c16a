package proxy

import (
	"net/http"
	"strings"

	"github.com/gorilla/websocket"
)

const apiPrefix = "/api/"

// Forwarder is the capability the router needs from an upstream.
type Forwarder interface {
	Forward(w http.ResponseWriter, r *http.Request, t Target)
	ForwardUpgrade(w http.ResponseWriter, r *http.Request, t Target)
}

// FallbackPolicy reports whether an app request should be answered with
// the app root document instead of its own path. Nil never falls back.
type FallbackPolicy func(r *http.Request) bool

// PrefixFallback falls back for GET and HEAD requests whose path is one of
// prefixes or lies below one of them.
func PrefixFallback(prefixes []string) FallbackPolicy {
	if len(prefixes) == 0 {
		return nil
	}
	cleaned := make([]string, 0, len(prefixes))
	for _, p := range prefixes {
		cleaned = append(cleaned, strings.TrimSuffix(p, "/"))
	}
	return func(r *http.Request) bool {
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			return false
		}
		path := r.URL.Path
		for _, prefix := range cleaned {
			if prefix == "" {
				continue
			}
			if path == prefix || strings.HasPrefix(path, prefix+"/") {
				return true
			}
		}
		return false
	}
}

// Classify returns RoleAPI for paths under /api/ and RoleApp otherwise.
func Classify(path string) Role {
	if strings.HasPrefix(path, apiPrefix) {
		return RoleAPI
	}
	return RoleApp
}

// Router picks the upstream of every request.
type Router struct {
	app      Forwarder
	api      Forwarder
	fallback FallbackPolicy
	log      Logger
}

// NewRouter binds the app and api forwarders.
func NewRouter(app, api Forwarder, fallback FallbackPolicy, log Logger) *Router {
	if log == nil {
		log = nopLogger{}
	}
	return &Router{app: app, api: api, fallback: fallback, log: log}
}

func (rt *Router) forwarder(role Role) Forwarder {
	if role == RoleAPI {
		return rt.api
	}
	return rt.app
}

// ServeHTTP dispatches websocket upgrades to RouteUpgrade and everything
// else to Route.
func (rt *Router) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if websocket.IsWebSocketUpgrade(r) {
		rt.RouteUpgrade(w, r)
		return
	}
	rt.Route(w, r)
}

// Route forwards r to the upstream of its role. Every routed response
// carries the no-cache policy.
func (rt *Router) Route(w http.ResponseWriter, r *http.Request) {
	SetNoCache(w.Header())

	role := Classify(r.URL.Path)
	if role == RoleApp && rt.fallback != nil && rt.fallback(r) {
		rt.HandleSpaFallback(w, r)
		return
	}

	rt.forwarder(role).Forward(w, r, Target{
		Role:     role,
		Path:     r.URL.Path,
		RawQuery: r.URL.RawQuery,
	})
}

// RouteUpgrade hands a websocket upgrade to the relay of its role.
func (rt *Router) RouteUpgrade(w http.ResponseWriter, r *http.Request) {
	role := Classify(r.URL.Path)
	rt.log.Debug("Routing websocket upgrade", "role", role, "path", r.URL.Path)

	rt.forwarder(role).ForwardUpgrade(w, r, Target{
		Role:     role,
		Path:     r.URL.Path,
		RawQuery: r.URL.RawQuery,
	})
}

// HandleSpaFallback serves the app root document for a client-side route.
func (rt *Router) HandleSpaFallback(w http.ResponseWriter, r *http.Request) {
	SetNoCache(w.Header())
	rt.log.Debug("SPA fallback", "path", r.URL.Path)

	rt.app.Forward(w, r, Target{
		Role:      RoleApp,
		Path:      "/",
		Rewritten: true,
	})
}
