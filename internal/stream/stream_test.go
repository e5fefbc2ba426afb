package stream

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"

	"openmetric/internal/core"
	"openmetric/internal/engine"
	"openmetric/internal/log"
	"openmetric/internal/services"
)

type fakeComputer struct {
	calls   atomic.Int32
	windows []string
	err     error
}

func (f *fakeComputer) Compute(_ context.Context, w engine.Window) (services.Result, error) {
	f.calls.Add(1)
	f.windows = append(f.windows, w.String())
	if f.err != nil {
		return services.Result{}, f.err
	}
	m := core.NewMonthlyMetrics(1)
	m.Append(core.MonthSnapshot{Month: "2024-01", Revenue: 100, BurnRate: 50, Runway: 2, Retention: 1, NetDollarRetention: 1, GrossMargin: 50})
	return services.Result{Dataset: "test", Window: w, Metrics: m}, nil
}

func newTestHandler(c Computer) *Handler {
	return NewHandler(c, Options{Logger: log.New(log.Config{Output: io.Discard})})
}

func decodeError(t *testing.T, payload []byte) string {
	t.Helper()
	var resp errorResponse
	if err := json.Unmarshal(payload, &resp); err != nil {
		t.Fatalf("decode %s: %v", payload, err)
	}
	return resp.Error
}

func TestRespondValidWindows(t *testing.T) {
	cases := []struct {
		payload string
		window  string
	}{
		{`{"value": 3}`, "3"},
		{`{"value": 12}`, "12"},
		{`{"value": 4000}`, "4000"},
		{`{"value": "6"}`, "6"},
		{`{"value": "all"}`, "all"},
		{`{"value": "ALL"}`, "all"},
	}
	for _, tc := range cases {
		t.Run(tc.payload, func(t *testing.T) {
			c := &fakeComputer{}
			out := newTestHandler(c).Respond(context.Background(), []byte(tc.payload))

			var m core.MonthlyMetrics
			if err := json.Unmarshal(out, &m); err != nil {
				t.Fatalf("decode: %v (%s)", err, out)
			}
			if m.Len() != 1 || m.Months[0] != "2024-01" || m.Revenue[0] != 100 {
				t.Fatalf("unexpected metrics %s", out)
			}
			if len(c.windows) != 1 || c.windows[0] != tc.window {
				t.Fatalf("computed windows %v, want [%s]", c.windows, tc.window)
			}
		})
	}
}

func TestRespondInvalidRequests(t *testing.T) {
	cases := []string{
		`not json`,
		`{}`,
		`{"value": null}`,
		`{"value": ""}`,
		`{"value": 0}`,
		`{"value": -2}`,
		`{"value": 2.5}`,
		`{"value": "soon"}`,
		`{"value": true}`,
		`{"value": 1e19}`,
		`{"value": -1e19}`,
	}
	for _, payload := range cases {
		t.Run(payload, func(t *testing.T) {
			c := &fakeComputer{}
			out := newTestHandler(c).Respond(context.Background(), []byte(payload))
			if msg := decodeError(t, out); msg == "" {
				t.Fatalf("expected error payload, got %s", out)
			}
			if c.calls.Load() != 0 {
				t.Fatalf("invalid request must not recompute")
			}
		})
	}
}

func TestRespondComputeFailure(t *testing.T) {
	c := &fakeComputer{err: core.ErrSourceUnavailable}
	out := newTestHandler(c).Respond(context.Background(), []byte(`{"value": 3}`))
	if msg := decodeError(t, out); !strings.Contains(msg, core.ErrSourceUnavailable.Error()) {
		t.Fatalf("unexpected error message %q", msg)
	}
}

func TestRespondApplicationPing(t *testing.T) {
	c := &fakeComputer{}
	out := newTestHandler(c).Respond(context.Background(), []byte(`{"type":"ping"}`))
	if string(out) != `{"type":"pong"}` {
		t.Fatalf("unexpected pong %s", out)
	}
	if c.calls.Load() != 0 {
		t.Fatalf("ping must not recompute")
	}
}

func TestParseValueAcceptsNumericStrings(t *testing.T) {
	w, err := parseValue(json.RawMessage(`" 9 "`))
	if err != nil || w.Months() != 9 {
		t.Fatalf("parseValue = %v, %v", w, err)
	}
	if _, err := parseValue(json.RawMessage(`[1]`)); !errors.Is(err, core.ErrInvalidRequest) {
		t.Fatalf("expected ErrInvalidRequest, got %v", err)
	}
}

func TestParseValueOutOfRange(t *testing.T) {
	for _, raw := range []string{`1e19`, `9223372036854775808`, `-1e300`} {
		_, err := parseValue(json.RawMessage(raw))
		if !errors.Is(err, core.ErrInvalidRequest) || !strings.Contains(err.Error(), "out of range") {
			t.Fatalf("%s: expected out of range error, got %v", raw, err)
		}
	}
	if _, err := parseValue(json.RawMessage(`1.5e3`)); err != nil {
		t.Fatalf("integral exponent form should be accepted: %v", err)
	}
}

func dial(t *testing.T, server *httptest.Server) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	return conn
}

func roundTrip(t *testing.T, conn *websocket.Conn, msg string) []byte {
	t.Helper()
	if err := conn.WriteMessage(websocket.TextMessage, []byte(msg)); err != nil {
		t.Fatalf("write: %v", err)
	}
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, payload, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	return payload
}

func TestServeSessionSurvivesErrors(t *testing.T) {
	c := &fakeComputer{}
	server := httptest.NewServer(newTestHandler(c))
	defer server.Close()

	conn := dial(t, server)
	defer conn.Close()

	if msg := decodeError(t, roundTrip(t, conn, `{"value": "bogus"}`)); msg == "" {
		t.Fatalf("expected an error reply")
	}

	var m core.MonthlyMetrics
	if err := json.Unmarshal(roundTrip(t, conn, `{"value": 3}`), &m); err != nil || m.Len() != 1 {
		t.Fatalf("expected metrics after an error, got %+v, %v", m, err)
	}

	if got := string(roundTrip(t, conn, `{"type":"ping"}`)); got != `{"type":"pong"}` {
		t.Fatalf("unexpected pong %s", got)
	}

	// A second request recomputes again.
	roundTrip(t, conn, `{"value": "all"}`)
	if c.calls.Load() != 2 {
		t.Fatalf("expected 2 recomputes, got %d", c.calls.Load())
	}
}

func TestServeAnswersPingFrames(t *testing.T) {
	server := httptest.NewServer(newTestHandler(&fakeComputer{}))
	defer server.Close()

	conn := dial(t, server)
	defer conn.Close()

	pong := make(chan string, 1)
	conn.SetPongHandler(func(data string) error {
		pong <- data
		return nil
	})
	if err := conn.WriteControl(websocket.PingMessage, []byte("hi"), time.Now().Add(time.Second)); err != nil {
		t.Fatalf("ping: %v", err)
	}

	// Control frames are processed while reading, so drive the reader with a
	// regular request.
	roundTrip(t, conn, `{"type":"ping"}`)
	select {
	case data := <-pong:
		if data != "hi" {
			t.Fatalf("pong payload %q", data)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("no pong received")
	}
}

func TestServeIdleTimeout(t *testing.T) {
	h := NewHandler(&fakeComputer{}, Options{
		IdleTimeout: 50 * time.Millisecond,
		Logger:      log.New(log.Config{Output: io.Discard}),
	})
	server := httptest.NewServer(h)
	defer server.Close()

	conn := dial(t, server)
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Fatalf("expected the server to close an idle connection")
	}
}

func TestCheckOrigin(t *testing.T) {
	h := NewHandler(&fakeComputer{}, Options{
		AllowedOrigins: []string{"https://metrics.example.com"},
		Logger:         log.New(log.Config{Output: io.Discard}),
	})
	cases := []struct {
		origin string
		want   bool
	}{
		{"https://metrics.example.com", true},
		{"https://evil.example.com", false},
		{"", false},
	}
	for _, tc := range cases {
		r := httptest.NewRequest(http.MethodGet, "/metrics_ws", nil)
		if tc.origin != "" {
			r.Header.Set("Origin", tc.origin)
		}
		if got := h.checkOrigin(r); got != tc.want {
			t.Errorf("checkOrigin(%q) = %v, want %v", tc.origin, got, tc.want)
		}
	}

	open := newTestHandler(&fakeComputer{})
	if !open.checkOrigin(httptest.NewRequest(http.MethodGet, "/metrics_ws", nil)) {
		t.Fatalf("empty allow list should accept any origin")
	}
}
