package integration

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/gorilla/websocket"

	"github.com/qumn/echat/internal/server"
	"github.com/qumn/echat/internal/store"
	"github.com/qumn/echat/test/testhelpers"
)

// TestUpgradeRequiresAuthentication: the upgrade endpoint rejects requests
// without a valid token before any relay starts.
func TestUpgradeRequiresAuthentication(t *testing.T) {
	ts, _ := testhelpers.StartTestServer(t, store.NewMemoryStore(), nil)

	header := http.Header{}
	header.Set("Origin", ts.URL)

	conn, resp, err := websocket.DefaultDialer.Dial(testhelpers.WebSocketURL(ts), header)
	if err == nil {
		_ = conn.Close()
		t.Fatal("unauthenticated dial succeeded")
	}
	if resp == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("handshake response = %+v, want 401", resp)
	}
	if got := resp.Header.Get("WWW-Authenticate"); got != "Token" {
		t.Errorf("WWW-Authenticate = %q, want Token", got)
	}
}

// TestOriginEnforcement: upgrades from origins outside the allow-list are
// refused during the handshake.
func TestOriginEnforcement(t *testing.T) {
	ts, _ := testhelpers.StartTestServer(t, store.NewMemoryStore(), func(cfg *server.Config) {
		cfg.AllowedOrigins = []string{"http://allowed.example"}
	})

	dial := func(origin string) error {
		header := http.Header{}
		header.Set("Origin", origin)
		header.Set("Authorization", "Bearer "+testhelpers.MintToken(t, 1, "alice"))
		conn, _, err := websocket.DefaultDialer.Dial(testhelpers.WebSocketURL(ts), header)
		if err == nil {
			_ = conn.Close()
		}
		return err
	}

	if err := dial("http://evil.example"); err == nil {
		t.Error("dial from disallowed origin succeeded")
	}
	if err := dial("http://allowed.example"); err != nil {
		t.Errorf("dial from allowed origin failed: %v", err)
	}
}

// TestHealthEndpoint mirrors the plain-text health check.
func TestHealthEndpoint(t *testing.T) {
	ts, _ := testhelpers.StartTestServer(t, store.NewMemoryStore(), nil)

	resp, err := http.Get(ts.URL + "/")
	if err != nil {
		t.Fatalf("GET /: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
}

// TestHistoryEndpoint: direct-message history is scoped to the caller;
// group history is addressed explicitly.
func TestHistoryEndpoint(t *testing.T) {
	messages := store.NewMemoryStore()
	ctx := context.Background()
	seed := []store.Message{
		{SenderUID: 2, ReceiverKind: store.ReceiverUser, ReceiverID: 1, Content: "for alice"},
		{SenderUID: 2, ReceiverKind: store.ReceiverUser, ReceiverID: 3, Content: "for carol"},
		{SenderUID: 1, ReceiverKind: store.ReceiverGroup, ReceiverID: 7, Content: "for the group"},
	}
	for i := range seed {
		if _, err := messages.Create(ctx, &seed[i]); err != nil {
			t.Fatalf("seeding store: %v", err)
		}
	}

	ts, _ := testhelpers.StartTestServer(t, messages, nil)

	fetch := func(query string) []store.Message {
		t.Helper()
		req, err := http.NewRequest(http.MethodGet, ts.URL+"/api/messages/history"+query, nil)
		if err != nil {
			t.Fatalf("building request: %v", err)
		}
		req.Header.Set("Authorization", "Bearer "+testhelpers.MintToken(t, 1, "alice"))

		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatalf("GET history: %v", err)
		}
		defer func() { _ = resp.Body.Close() }()
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("status = %d, want 200", resp.StatusCode)
		}

		var out []store.Message
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			t.Fatalf("decoding history: %v", err)
		}
		return out
	}

	direct := fetch("")
	if len(direct) != 1 || direct[0].Content != "for alice" {
		t.Errorf("direct history = %+v, want only alice's messages", direct)
	}

	group := fetch("?kind=Group&id=7")
	if len(group) != 1 || group[0].Content != "for the group" {
		t.Errorf("group history = %+v", group)
	}
}

// TestHistoryRequiresAuthentication rejects anonymous history reads.
func TestHistoryRequiresAuthentication(t *testing.T) {
	ts, _ := testhelpers.StartTestServer(t, store.NewMemoryStore(), nil)

	resp, err := http.Get(ts.URL + "/api/messages/history")
	if err != nil {
		t.Fatalf("GET history: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", resp.StatusCode)
	}
}
