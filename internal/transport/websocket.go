// ABOUTME: WebSocket transport adapting coder/websocket connections to session.Conn
// ABOUTME: Provides the server-side HTTP handler and a client Dial for terminal clients

package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/coder/websocket"

	"github.com/2389/parley/internal/session"
)

// Defaults applied when Options leaves a field zero.
const (
	DefaultReadLimit    = 32 * 1024
	DefaultWriteTimeout = 10 * time.Second
)

// Options configures accepted and dialed connections.
type Options struct {
	// OriginPatterns lists host patterns allowed to connect cross-origin.
	// Empty means same-origin only.
	OriginPatterns []string

	// ReadLimit caps the size of one inbound frame in bytes.
	ReadLimit int64

	// WriteTimeout bounds a single outbound frame write.
	WriteTimeout time.Duration
}

func (o Options) withDefaults() Options {
	if o.ReadLimit <= 0 {
		o.ReadLimit = DefaultReadLimit
	}
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = DefaultWriteTimeout
	}
	return o
}

// Server runs one connection to completion. *session.Manager implements it.
type Server interface {
	Serve(ctx context.Context, conn session.Conn) error
}

// Handler upgrades HTTP requests to WebSocket sessions.
type Handler struct {
	server Server
	opts   Options
	logger *slog.Logger
}

// NewHandler creates a Handler. Pass nil logger for default.
func NewHandler(server Server, opts Options, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		server: server,
		opts:   opts.withDefaults(),
		logger: logger.With("component", "transport"),
	}
}

// ServeHTTP accepts the upgrade and blocks until the session ends.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: h.opts.OriginPatterns,
	})
	if err != nil {
		// Accept has already written the HTTP error response.
		h.logger.Warn("websocket upgrade failed",
			"remote_addr", r.RemoteAddr,
			"error", err)
		return
	}

	h.logger.Debug("websocket connected", "remote_addr", r.RemoteAddr)

	conn := newConn(ws, h.opts)
	if err := h.server.Serve(r.Context(), conn); err != nil {
		h.logger.Debug("websocket session ended",
			"remote_addr", r.RemoteAddr,
			"error", err)
	}
}

// Conn is a text-frame WebSocket channel.
type Conn struct {
	ws           *websocket.Conn
	writeTimeout time.Duration
}

func newConn(ws *websocket.Conn, opts Options) *Conn {
	ws.SetReadLimit(opts.ReadLimit)
	return &Conn{ws: ws, writeTimeout: opts.WriteTimeout}
}

// Dial connects to a parley server at url, e.g. ws://localhost:8080/ws.
func Dial(ctx context.Context, url string, opts Options) (*Conn, error) {
	opts = opts.withDefaults()

	ws, resp, err := websocket.Dial(ctx, url, nil)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return nil, fmt.Errorf("dialing %s: %w", url, err)
	}
	return newConn(ws, opts), nil
}

// Receive returns the next frame as text. A normal close by the peer is
// reported as io.EOF.
func (c *Conn) Receive(ctx context.Context) (string, error) {
	_, data, err := c.ws.Read(ctx)
	if err != nil {
		switch websocket.CloseStatus(err) {
		case websocket.StatusNormalClosure, websocket.StatusGoingAway:
			return "", io.EOF
		}
		return "", fmt.Errorf("reading frame: %w", err)
	}
	return string(data), nil
}

// Send writes one text frame, bounded by the configured write timeout.
func (c *Conn) Send(ctx context.Context, data []byte) error {
	ctx, cancel := context.WithTimeout(ctx, c.writeTimeout)
	defer cancel()

	if err := c.ws.Write(ctx, websocket.MessageText, data); err != nil {
		return fmt.Errorf("writing frame: %w", err)
	}
	return nil
}

// Close ends the connection with a status derived from cause.
// No reason text is sent for errors.
func (c *Conn) Close(cause error) error {
	if errors.Is(cause, session.ErrChannelFault) {
		return c.ws.CloseNow()
	}
	return c.ws.Close(CloseStatus(cause), "")
}

// CloseStatus maps the error that ended a session to a WebSocket close code.
func CloseStatus(cause error) websocket.StatusCode {
	switch {
	case cause == nil:
		return websocket.StatusNormalClosure
	case errors.Is(cause, context.Canceled), errors.Is(cause, context.DeadlineExceeded):
		return websocket.StatusGoingAway
	case errors.Is(cause, session.ErrMalformedCommand):
		return websocket.StatusPolicyViolation
	case errors.Is(cause, session.ErrCollaboratorUnavailable):
		return websocket.StatusInternalError
	default:
		return websocket.StatusNormalClosure
	}
}

// Compile-time interface check
var _ session.Conn = (*Conn)(nil)
