package proxy

import (
	"errors"
	"io"
	"net"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

const controlWriteWait = 20 * time.Second

var upgrader = websocket.Upgrader{
	// The dev server decides which origins it accepts.
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// ForwardUpgrade dials the upstream websocket first, then upgrades the
// client and bridges both connections until one side closes. A failed dial
// aborts the client connection.
func (u *Upstream) ForwardUpgrade(w http.ResponseWriter, r *http.Request, t Target) {
	target := u.websocketURL(t)
	requestID := RequestID(r.Context())

	dialer := *u.dialer
	dialer.Subprotocols = websocket.Subprotocols(r)

	header := websocketRequestHeaders(r.Header, u.transform)
	if u.showLogs && u.role == RoleAPI {
		u.log.Info(forwardLine(r.Method, r.URL.RequestURI(), u.target.String()), "request_id", requestID)
	}

	upstreamConn, resp, err := dialer.DialContext(r.Context(), target.String(), header)
	if err != nil {
		u.upgradeFailed(r, resp, err)
		panic(http.ErrAbortHandler)
	}
	if u.showLogs {
		u.log.Info(responseLine(resp.StatusCode, r.Method, r.URL.RequestURI()), "request_id", requestID)
	}

	var responseHeader http.Header
	if protocol := upstreamConn.Subprotocol(); protocol != "" {
		responseHeader = http.Header{"Sec-Websocket-Protocol": {protocol}}
	}
	clientConn, err := upgrader.Upgrade(w, r, responseHeader)
	if err != nil {
		// Upgrade has already answered the client.
		u.log.Error("Could not upgrade client connection",
			"role", u.role, "path", r.URL.Path, "request_id", requestID, "error", err)
		_ = upstreamConn.Close()
		return
	}

	u.log.Debug("WebSocket bridge open", "role", u.role, "target", target.String(), "request_id", requestID)
	if err := bridgeConn(clientConn, upstreamConn); err != nil {
		u.log.Debug("WebSocket bridge closed with error", "role", u.role, "request_id", requestID, "error", err)
		return
	}
	u.log.Debug("WebSocket bridge closed", "role", u.role, "request_id", requestID)
}

func (u *Upstream) upgradeFailed(r *http.Request, resp *http.Response, err error) {
	keyvals := []interface{}{
		"role", u.role,
		"target", u.target.String(),
		"path", r.URL.Path,
		"request_id", RequestID(r.Context()),
		"error", err,
	}
	if resp != nil {
		keyvals = append(keyvals, "status", resp.StatusCode)
	}

	if u.role == RoleApp && isConnRefused(err) {
		u.log.Warn("App server is not accepting websocket connections yet, closing socket", keyvals...)
		return
	}
	kind := newUpstreamError(u.role, err).Kind
	if errors.Is(err, websocket.ErrBadHandshake) {
		kind = UpstreamProtocolError
	}
	u.log.Error("WebSocket proxy error", append(keyvals, "kind", kind)...)
}

// websocketURL maps the http(s) target onto ws(s).
func (u *Upstream) websocketURL(t Target) *url.URL {
	scheme := "ws"
	if u.target.Scheme == "https" {
		scheme = "wss"
	}
	return &url.URL{
		Scheme:   scheme,
		Host:     u.target.Host,
		Path:     joinPath(u.target.Path, t.Path),
		RawQuery: t.RawQuery,
	}
}

// bridgeConn relays messages and control frames between both connections
// and closes them once either direction stops.
func bridgeConn(conn1 *websocket.Conn, conn2 *websocket.Conn) error {
	conn1.SetPingHandler(forwardControl(websocket.PingMessage, conn2))
	conn2.SetPingHandler(forwardControl(websocket.PingMessage, conn1))

	conn1.SetPongHandler(forwardControl(websocket.PongMessage, conn2))
	conn2.SetPongHandler(forwardControl(websocket.PongMessage, conn1))

	defer func() {
		_ = conn1.Close()
		_ = conn2.Close()
	}()

	kill := make(chan struct{})
	var once sync.Once
	stop := func() { once.Do(func() { close(kill) }) }
	var eSrc, eDest atomic.Value

	go func() {
		if err := copyWsData(conn1, conn2, kill, stop); err != nil {
			eSrc.Store(err)
		}
	}()
	go func() {
		if err := copyWsData(conn2, conn1, kill, stop); err != nil {
			eDest.Store(err)
		}
	}()

	<-kill
	if err, ok := eSrc.Load().(error); ok && err != nil {
		return err
	}
	if err, ok := eDest.Load().(error); ok && err != nil {
		return err
	}
	return nil
}

// copyWsData copies messages from src to dest. A close frame from src is
// passed on to dest before returning.
func copyWsData(dest *websocket.Conn, src *websocket.Conn, kill <-chan struct{}, stop func()) error {
	defer stop()
	for {
		mtype, reader, err := src.NextReader()
		if err != nil {
			var closeErr *websocket.CloseError
			if errors.As(err, &closeErr) {
				forwardClose(dest, closeErr)
			}
			return relayError(err)
		}
		writer, err := dest.NextWriter(mtype)
		if err != nil {
			return relayError(err)
		}
		_, err = io.Copy(writer, reader)
		if closeErr := writer.Close(); err == nil {
			err = closeErr
		}
		if err != nil {
			return relayError(err)
		}

		select {
		case <-kill:
			return nil
		default:
		}
	}
}

// relayError drops the errors an orderly close produces on either side of
// the bridge.
func relayError(err error) error {
	if err == nil || errors.Is(err, websocket.ErrCloseSent) || errors.Is(err, net.ErrClosed) {
		return nil
	}
	var closeErr *websocket.CloseError
	if errors.As(err, &closeErr) && !websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure,
		websocket.CloseGoingAway, websocket.CloseNoStatusReceived, websocket.CloseAbnormalClosure) {
		return nil
	}
	return err
}

func forwardClose(dest *websocket.Conn, closeErr *websocket.CloseError) {
	code := closeErr.Code
	// 1005 and 1006 must not be sent on the wire.
	if code == websocket.CloseNoStatusReceived || code == websocket.CloseAbnormalClosure {
		code = websocket.CloseNormalClosure
	}
	msg := websocket.FormatCloseMessage(code, closeErr.Text)
	_ = dest.WriteControl(websocket.CloseMessage, msg, time.Now().Add(controlWriteWait))
}

func forwardControl(messageType int, dest *websocket.Conn) func(string) error {
	return func(appData string) error {
		return dest.WriteControl(messageType, []byte(appData), time.Now().Add(controlWriteWait))
	}
}
