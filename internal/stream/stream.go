// Package stream serves the live metrics protocol: a client sends a window,
// the server recomputes the series from a fresh dataset and replies with it.
package stream

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"

	"openmetric/internal/core"
	"openmetric/internal/engine"
	"openmetric/internal/log"
	"openmetric/internal/metrics"
	"openmetric/internal/services"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Maximum message size allowed from peer.
	maxMessageSize = 512 * 1024
)

// Computer recomputes the series for a window.
type Computer interface {
	Compute(ctx context.Context, w engine.Window) (services.Result, error)
}

// Conn is the framing the loop needs from a transport.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
	Close() error
}

// Request is an inbound message. Value is a positive month count or "all".
type Request struct {
	Type  string          `json:"type,omitempty"`
	Value json.RawMessage `json:"value,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
}

type pongResponse struct {
	Type string `json:"type"`
}

// Options configures a Handler.
type Options struct {
	// AllowedOrigins lists accepted Origin headers. Empty accepts any origin.
	AllowedOrigins []string
	// IdleTimeout closes connections that send nothing for this long. Zero
	// disables it.
	IdleTimeout time.Duration
	Logger      *log.Logger
}

type Handler struct {
	computer       Computer
	allowedOrigins []string
	idleTimeout    time.Duration
	logger         *log.Logger
	upgrader       websocket.Upgrader
}

func NewHandler(computer Computer, opts Options) *Handler {
	logger := opts.Logger
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	h := &Handler{
		computer:       computer,
		allowedOrigins: opts.AllowedOrigins,
		idleTimeout:    opts.IdleTimeout,
		logger:         logger.WithComponent(log.ComponentStream),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:   1024,
		WriteBufferSize:  1024,
		CheckOrigin:      h.checkOrigin,
		HandshakeTimeout: 10 * time.Second,
	}
	return h
}

// Respond turns one inbound payload into exactly one outbound payload.
// Failures are reported in the payload, never as a Go error, so the session
// survives them.
func (h *Handler) Respond(ctx context.Context, payload []byte) []byte {
	var req Request
	if err := json.Unmarshal(payload, &req); err != nil {
		return h.errorPayload(ctx, fmt.Errorf("%w: request is not valid JSON", core.ErrInvalidRequest))
	}

	if strings.EqualFold(req.Type, "ping") {
		metrics.WSMessages.WithLabelValues("ping").Inc()
		return mustMarshal(pongResponse{Type: "pong"})
	}

	metrics.WSMessages.WithLabelValues("request").Inc()
	w, err := parseValue(req.Value)
	if err != nil {
		return h.errorPayload(ctx, err)
	}

	res, err := h.computer.Compute(ctx, w)
	if err != nil {
		return h.errorPayload(ctx, err)
	}

	out, err := json.Marshal(res.Metrics)
	if err != nil {
		return h.errorPayload(ctx, fmt.Errorf("encode metrics: %w", err))
	}
	metrics.WSMessages.WithLabelValues("response").Inc()
	return out
}

// Serve runs the request loop until the peer disconnects or a protocol
// error occurs. conn is closed on return.
func (h *Handler) Serve(ctx context.Context, conn Conn) {
	defer conn.Close()

	for {
		if h.idleTimeout > 0 {
			conn.SetReadDeadline(time.Now().Add(h.idleTimeout))
		}
		messageType, payload, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.logger.WarnContext(ctx, "Stream closed unexpectedly", log.FieldError, err)
			}
			return
		}
		if messageType != websocket.TextMessage && messageType != websocket.BinaryMessage {
			continue
		}

		reply := h.Respond(ctx, bytes.TrimSpace(payload))

		conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteMessage(websocket.TextMessage, reply); err != nil {
			h.logger.DebugContext(ctx, "Stream write failed", log.FieldError, err)
			return
		}
	}
}

// ServeHTTP upgrades the request and runs the loop on it.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written an HTTP error.
		h.logger.WarnContext(r.Context(), "WebSocket upgrade failed", log.FieldError, err)
		return
	}
	conn.SetReadLimit(maxMessageSize)
	conn.SetPingHandler(func(data string) error {
		metrics.WSMessages.WithLabelValues("ping").Inc()
		if h.idleTimeout > 0 {
			conn.SetReadDeadline(time.Now().Add(h.idleTimeout))
		}
		err := conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(writeWait))
		if errors.Is(err, websocket.ErrCloseSent) {
			return nil
		}
		return err
	})

	metrics.WSConnectionsActive.Inc()
	defer metrics.WSConnectionsActive.Dec()

	h.logger.DebugContext(r.Context(), "Stream opened", log.FieldRemoteAddr, r.RemoteAddr)
	h.Serve(r.Context(), conn)
	h.logger.DebugContext(r.Context(), "Stream closed", log.FieldRemoteAddr, r.RemoteAddr)
}

func (h *Handler) checkOrigin(r *http.Request) bool {
	if len(h.allowedOrigins) == 0 {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" {
		return false
	}
	for _, allowed := range h.allowedOrigins {
		if allowed == "*" || strings.EqualFold(allowed, origin) {
			return true
		}
	}
	h.logger.Warn("WebSocket connection rejected from unauthorized origin", "origin", origin)
	return false
}

func (h *Handler) errorPayload(ctx context.Context, err error) []byte {
	metrics.WSMessages.WithLabelValues("error").Inc()
	if errors.Is(err, core.ErrInvalidRequest) {
		h.logger.DebugContext(ctx, "Rejected stream request", log.FieldError, err)
	} else {
		h.logger.WarnContext(ctx, "Stream request failed", log.FieldError, err)
	}
	return mustMarshal(errorResponse{Error: err.Error()})
}

// parseValue accepts a JSON number, a numeric string or "all".
func parseValue(raw json.RawMessage) (engine.Window, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return engine.Window{}, fmt.Errorf("%w: missing value", core.ErrInvalidRequest)
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if strings.TrimSpace(s) == "" {
			return engine.Window{}, fmt.Errorf("%w: missing value", core.ErrInvalidRequest)
		}
		return engine.ParseWindow(s)
	}

	var n float64
	if err := json.Unmarshal(raw, &n); err != nil {
		return engine.Window{}, fmt.Errorf("%w: value must be a positive integer or \"all\"", core.ErrInvalidRequest)
	}
	if n != math.Trunc(n) {
		return engine.Window{}, fmt.Errorf("%w: value %s is not an integer", core.ErrInvalidRequest, strconv.FormatFloat(n, 'g', -1, 64))
	}
	if n >= math.MaxInt || n < math.MinInt {
		return engine.Window{}, fmt.Errorf("%w: value %s is out of range", core.ErrInvalidRequest, strconv.FormatFloat(n, 'g', -1, 64))
	}
	return engine.Months(int(n))
}

func mustMarshal(v any) []byte {
	b, err := json.Marshal(v)
	if err != nil {
		return []byte(`{"error":"internal encoding error"}`)
	}
	return b
}
