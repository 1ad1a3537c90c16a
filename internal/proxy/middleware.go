package proxy

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

type requestIDKey struct{}

// RequestID returns the id assigned to the request by the proxy, or "".
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// setupMiddleware configures the echo instance in front of the router. The
// chain runs as pre-routing middleware ending in the router, so echo's
// method table never answers a request and every verb is forwarded.
func setupMiddleware(e *echo.Echo, router http.Handler) {
	// The proxy is the edge on the developer machine.
	e.IPExtractor = echo.ExtractIPDirect()

	e.Pre(middleware.Recover())
	e.Pre(requestIDMiddleware())
	e.Pre(dispatchMiddleware(router))
}

// dispatchMiddleware hands the request to h and ends the chain.
func dispatchMiddleware(h http.Handler) echo.MiddlewareFunc {
	handler := echo.WrapHandler(h)
	return func(echo.HandlerFunc) echo.HandlerFunc {
		return handler
	}
}

// requestIDMiddleware tags each request with a UUID used to correlate log
// lines. It stays out of the headers so responses are relayed as received.
func requestIDMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			ctx := context.WithValue(req.Context(), requestIDKey{}, uuid.New().String())
			c.SetRequest(req.WithContext(ctx))
			return next(c)
		}
	}
}
