// Package testhelpers provides common utilities shared by the integration
// tests: spinning up a gateway over httptest, minting tokens, and driving
// websocket clients.
package testhelpers

import (
	"encoding/json"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/qumn/echat/internal/auth"
	"github.com/qumn/echat/internal/server"
	"github.com/qumn/echat/internal/store"
)

// JWTSecret signs every token used by the integration suite.
const JWTSecret = "integration-secret"

// StartTestServer runs a gateway backed by the given store on an httptest
// server. The server and gateway are torn down with the test.
func StartTestServer(t *testing.T, messages store.MessageStore, customize func(cfg *server.Config)) (*httptest.Server, *server.Gateway) {
	t.Helper()

	cfg := server.NewConfig()
	cfg.AllowedOrigins = []string{"*"}
	cfg.JWTSecret = JWTSecret
	if customize != nil {
		customize(cfg)
	}

	quiet := slog.New(slog.NewTextHandler(io.Discard, nil))
	gateway := server.NewGateway(*cfg, messages, auth.NewJWTProvider(cfg.JWTSecret), quiet)
	ts := httptest.NewServer(gateway.SetupRoutes())

	t.Cleanup(func() {
		ts.Close()
		_ = gateway.Shutdown(2 * time.Second)
	})
	return ts, gateway
}

// MintToken issues a signed token for the given user.
func MintToken(t *testing.T, uid uint64, username string) string {
	t.Helper()
	token, err := auth.NewJWTProvider(JWTSecret).Issue(auth.Identity{
		UID:      uid,
		Username: username,
		Mail:     username + "@example.com",
	})
	if err != nil {
		t.Fatalf("minting token: %v", err)
	}
	return token
}

// WebSocketURL rewrites an httptest server URL into its /ws endpoint.
func WebSocketURL(ts *httptest.Server) string {
	return "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
}

// DialUser connects a websocket client authenticated as the given user. The
// connection is closed with the test.
func DialUser(t *testing.T, ts *httptest.Server, uid uint64, username string) *websocket.Conn {
	t.Helper()

	header := http.Header{}
	header.Set("Origin", ts.URL)
	header.Set("Authorization", "Bearer "+MintToken(t, uid, username))

	conn, resp, err := websocket.DefaultDialer.Dial(WebSocketURL(ts), header)
	if err != nil {
		status := 0
		if resp != nil {
			status = resp.StatusCode
		}
		t.Fatalf("dialing as uid %d: %v (status %d)", uid, err, status)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

// SendMessage writes one chat message frame.
func SendMessage(t *testing.T, conn *websocket.Conn, msg store.Message) {
	t.Helper()
	payload, err := json.Marshal(msg)
	if err != nil {
		t.Fatalf("marshal message: %v", err)
	}
	if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		t.Fatalf("write frame: %v", err)
	}
}

// ReadMessage reads and decodes the next frame within the timeout.
func ReadMessage(t *testing.T, conn *websocket.Conn, timeout time.Duration) store.Message {
	t.Helper()
	if err := conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		t.Fatalf("set read deadline: %v", err)
	}
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read frame: %v", err)
	}
	var msg store.Message
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("decode frame %s: %v", data, err)
	}
	return msg
}

// ExpectNoMessage asserts that nothing arrives on the connection within the
// timeout.
func ExpectNoMessage(t *testing.T, conn *websocket.Conn, timeout time.Duration) {
	t.Helper()
	if err := conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		t.Fatalf("set read deadline: %v", err)
	}
	_, data, err := conn.ReadMessage()
	if err == nil {
		t.Fatalf("expected no message, received %s", data)
	}
	if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
		return
	}
	if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		return
	}
	t.Fatalf("unexpected error while waiting for absence of message: %v", err)
}

// WaitForConnections blocks until the gateway's registry holds n entries.
func WaitForConnections(t *testing.T, gateway *server.Gateway, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if gateway.Registry().Count() == n {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d connections, have %d", n, gateway.Registry().Count())
}
