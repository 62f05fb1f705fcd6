package messaging

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/sudo-init-do/gigmarket/internal/config"
	"github.com/sudo-init-do/gigmarket/internal/httpx"
)

func testRealtime() config.RealtimeConfig {
	return config.RealtimeConfig{
		TypingIdleWindow: 3 * time.Second,
		MessageMaxRunes:  5000,
		SendBuffer:       32,
		PingInterval:     time.Second,
		PongWait:         5 * time.Second,
		MaxMessageBytes:  1 << 16,
		InboundRPS:       100,
		InboundBurst:     100,
	}
}

// newGatewayServer serves /ws with the user taken from ?as=, standing in for
// the JWT middleware.
func newGatewayServer(t *testing.T) (*httptest.Server, *Registry, *memoryStore) {
	t.Helper()
	reg := NewRegistry()
	store := &memoryStore{}
	d := NewDispatcher(DispatcherDeps{Store: store, Pusher: reg})
	tc := NewTypingCoordinator(reg, 3*time.Second, nil)
	gw := NewGateway(reg, d, tc, testRealtime(), nil)

	e := echo.New()
	e.GET("/ws", gw.ServeWS, func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if as := c.QueryParam("as"); as != "" {
				c.Set(httpx.KeyUserID, as)
			}
			return next(c)
		}
	})
	srv := httptest.NewServer(e)
	t.Cleanup(srv.Close)
	return srv, reg, store
}

func dial(t *testing.T, srv *httptest.Server, user string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?as=" + user
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", user, err)
	}
	t.Cleanup(func() { _ = ws.Close() })
	return ws
}

func emit(t *testing.T, ws *websocket.Conn, typ string, data any) {
	t.Helper()
	if err := ws.WriteJSON(map[string]any{"type": typ, "data": data}); err != nil {
		t.Fatalf("write %s: %v", typ, err)
	}
}

// await reads frames until one of type typ arrives and returns its data.
func await(t *testing.T, ws *websocket.Conn, typ string) json.RawMessage {
	t.Helper()
	_ = ws.SetReadDeadline(time.Now().Add(3 * time.Second))
	for {
		var in inboundEvent
		if err := ws.ReadJSON(&in); err != nil {
			t.Fatalf("waiting for %s: %v", typ, err)
		}
		if in.Type == typ {
			return in.Data
		}
	}
}

// awaitOnline waits until ws sees an onlineUsers snapshot of n users.
func awaitOnline(t *testing.T, ws *websocket.Conn, n int) {
	t.Helper()
	for {
		var p OnlineUsersPayload
		if err := json.Unmarshal(await(t, ws, EventOnlineUsers), &p); err != nil {
			t.Fatalf("decode onlineUsers: %v", err)
		}
		if len(p.UserIDs) == n {
			return
		}
	}
}

func TestGatewayRequiresUser(t *testing.T) {
	srv, _, _ := newGatewayServer(t)
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err == nil {
		t.Fatal("dial without a user succeeded")
	}
	if resp == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("resp = %v", resp)
	}
}

func TestGatewayMessageRoundTrip(t *testing.T) {
	srv, reg, store := newGatewayServer(t)
	alice := dial(t, srv, "alice")
	bob := dial(t, srv, "bob")

	emit(t, alice, EventJoinRoom, map[string]string{"userId": "alice"})
	awaitOnline(t, alice, 1)
	emit(t, bob, EventJoinRoom, map[string]string{"userId": "bob"})
	awaitOnline(t, bob, 2)

	emit(t, alice, EventTyping, map[string]string{"receiverId": "bob"})
	var typing TypingPayload
	_ = json.Unmarshal(await(t, bob, EventTyping), &typing)
	if typing.UserID != "alice" {
		t.Fatalf("typing from %q", typing.UserID)
	}

	emit(t, alice, EventSendMessage, map[string]string{"receiverId": "bob", "content": "hello", "clientId": "c-1"})

	var got Message
	if err := json.Unmarshal(await(t, bob, EventReceiveMessage), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.SenderID != "alice" || got.Body != "hello" {
		t.Fatalf("bob received %+v", got)
	}
	var ack MessageSentPayload
	_ = json.Unmarshal(await(t, alice, EventMessageSent), &ack)
	if ack.ClientID != "c-1" || ack.Message.ID != got.ID {
		t.Fatalf("ack = %+v", ack)
	}
	if store.count() != 1 {
		t.Fatalf("stored %d messages", store.count())
	}

	_ = bob.Close()
	awaitOnline(t, alice, 1)
	if reg.Online("bob") {
		t.Fatal("bob still registered after disconnect")
	}
}

func TestGatewayRejectsImpersonation(t *testing.T) {
	srv, _, store := newGatewayServer(t)
	mallory := dial(t, srv, "mallory")

	emit(t, mallory, EventSendMessage, map[string]string{"receiverId": "bob", "content": "early"})
	var p ErrorPayload
	_ = json.Unmarshal(await(t, mallory, EventError), &p)
	if p.Code != httpx.ErrCodeBadRequest {
		t.Fatalf("before join code = %q", p.Code)
	}

	emit(t, mallory, EventJoinRoom, map[string]string{"userId": "alice"})
	_ = json.Unmarshal(await(t, mallory, EventError), &p)
	if p.Code != httpx.ErrCodeForbidden {
		t.Fatalf("join as other code = %q", p.Code)
	}

	emit(t, mallory, EventJoinRoom, map[string]string{"userId": "mallory"})
	awaitOnline(t, mallory, 1)
	emit(t, mallory, EventSendMessage, map[string]string{"senderId": "alice", "receiverId": "bob", "content": "fake", "clientId": "x"})
	_ = json.Unmarshal(await(t, mallory, EventError), &p)
	if p.Code != httpx.ErrCodeForbidden || p.ClientID != "x" {
		t.Fatalf("spoofed sender error = %+v", p)
	}

	emit(t, mallory, EventSendMessage, map[string]string{"receiverId": "bob", "content": "  "})
	_ = json.Unmarshal(await(t, mallory, EventError), &p)
	if p.Code != httpx.ErrCodeValidation {
		t.Fatalf("empty body code = %q", p.Code)
	}
	if store.count() != 0 {
		t.Fatalf("stored %d messages", store.count())
	}
}
