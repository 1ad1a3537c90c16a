package proxy

import (
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"sync"

	"github.com/labstack/echo/v4"

	"github.com/bnema/devproxy/internal/config"
)

// State is the lifecycle state of a Server.
type State int

const (
	StateStopped State = iota
	StateStarting
	StateListening
)

func (s State) String() string {
	switch s {
	case StateStarting:
		return "starting"
	case StateListening:
		return "listening"
	default:
		return "stopped"
	}
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger of the server and its upstreams.
func WithLogger(log Logger) Option {
	return func(s *Server) {
		if log != nil {
			s.log = log
		}
	}
}

// WithCertificateLoader replaces the file based certificate loader.
func WithCertificateLoader(loader CertificateLoader) Option {
	return func(s *Server) {
		if loader != nil {
			s.certs = loader
		}
	}
}

// WithFallbackPolicy overrides the fallback policy built from the
// configured fallback routes.
func WithFallbackPolicy(policy FallbackPolicy) Option {
	return func(s *Server) {
		s.fallback = policy
	}
}

// Server owns the TLS listener and dispatches requests to the router.
type Server struct {
	cfg      config.Config
	certs    CertificateLoader
	fallback FallbackPolicy
	log      Logger

	mu         sync.Mutex
	state      State
	echo       *echo.Echo
	httpServer *http.Server
	listener   net.Listener
	router     *Router
	app        *Upstream
	api        *Upstream
	errs       chan error
}

// NewServer validates cfg and returns a stopped server. Nothing is opened
// until Start.
func NewServer(cfg config.Config, opts ...Option) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	s := &Server{
		cfg:      cfg,
		certs:    FileCertificateLoader{},
		fallback: PrefixFallback(cfg.FallbackRoutes),
		log:      nopLogger{},
		state:    StateStopped,
		errs:     make(chan error, 1),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Config returns the configuration the server was built with.
func (s *Server) Config() config.Config {
	return s.cfg
}

// State returns the current lifecycle state.
func (s *Server) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Addr returns the bound address, or nil when not listening.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Errors delivers a serve loop failure after Start returned.
func (s *Server) Errors() <-chan error {
	return s.errs
}

// Targets returns the resolved app and api base URLs.
func (s *Server) Targets() (app, api *url.URL) {
	return s.cfg.AppURL(), s.cfg.APIURL()
}

// Router returns the router built by Start, nil before.
func (s *Server) Router() *Router {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.router
}

// Start loads the certificate, builds both upstreams and binds the TLS
// listener. Calling it on a started server does nothing.
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateStopped {
		s.log.Debug("Proxy server already started", "state", s.state)
		return nil
	}
	s.state = StateStarting

	if err := s.start(); err != nil {
		s.teardown()
		s.state = StateStopped
		return err
	}

	s.state = StateListening
	s.log.Info("Proxy server listening",
		"address", s.listener.Addr().String(),
		"url", s.cfg.ProxyURL(),
		"app", s.app.Target().String(),
		"api", s.api.Target().String(),
		"api_local", s.cfg.APILocal,
		"api_verify_tls", s.api.VerifyTLS())
	return nil
}

func (s *Server) start() error {
	pair, err := LoadKeyPair(s.certs, s.cfg.CertsPath, s.cfg.DevDomain)
	if err != nil {
		return err
	}

	s.app = NewUpstream(RoleApp, s.cfg.AppURL(), UpstreamOptions{
		VerifyTLS: true,
		ShowLogs:  s.cfg.ShowLogs,
		Transform: AppRequestHeaders(),
		Logger:    s.log,
	})
	s.api = NewUpstream(RoleAPI, s.cfg.APIURL(), UpstreamOptions{
		VerifyTLS: !s.cfg.APILocal,
		ShowLogs:  s.cfg.ShowLogs,
		Transform: APIRequestHeaders(s.cfg.APILocal),
		Logger:    s.log,
	})
	s.router = NewRouter(s.app, s.api, s.fallback, s.log)

	s.echo = echo.New()
	s.echo.HideBanner = true
	s.echo.HidePort = true
	setupMiddleware(s.echo, s.router)

	addr := ":" + strconv.Itoa(s.cfg.ProxyPort)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	tlsConfig := &tls.Config{
		Certificates: []tls.Certificate{pair},
		MinVersion:   tls.VersionTLS12,
		// websocket upgrades need HTTP/1.1 connection hijacking
		NextProtos: []string{"http/1.1"},
	}
	s.listener = tls.NewListener(ln, tlsConfig)
	s.httpServer = &http.Server{
		Handler:   s.echo,
		TLSConfig: tlsConfig,
	}

	go s.serve(s.httpServer, s.listener)
	return nil
}

func (s *Server) serve(srv *http.Server, ln net.Listener) {
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		s.log.Error("Proxy server error", "error", err)
		select {
		case s.errs <- err:
		default:
		}
	}
}

// Stop closes the listener and every open connection without draining.
// Calling it on a stopped server does nothing.
func (s *Server) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateStopped {
		return nil
	}

	s.log.Info("Stopping proxy server")
	err := s.teardown()
	s.state = StateStopped
	return err
}

func (s *Server) teardown() error {
	var err error
	if s.httpServer != nil {
		err = s.httpServer.Close()
	} else if s.listener != nil {
		err = s.listener.Close()
	}
	if s.app != nil {
		s.app.Close()
	}
	if s.api != nil {
		s.api.Close()
	}
	s.httpServer = nil
	s.listener = nil
	s.echo = nil
	return err
}
