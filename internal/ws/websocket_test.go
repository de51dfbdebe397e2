package ws

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/kiliankoe/kelime/internal/game"
)

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func read(t *testing.T, conn *websocket.Conn, want string) Message {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		var m Message
		if err := conn.ReadJSON(&m); err != nil {
			t.Fatalf("waiting for %s: %v", want, err)
		}
		if m.Type == want {
			return m
		}
		if m.Type == EventError {
			t.Fatalf("waiting for %s, got error %q", want, m.Message)
		}
	}
}

func TestWebSocketEndToEnd(t *testing.T) {
	gin.SetMode(gin.TestMode)
	srv := newTestServer(t)
	r := gin.New()
	srv.MountWebSocket(r)
	ts := httptest.NewServer(r)
	defer ts.Close()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"

	host := dial(t, url)
	if err := host.WriteJSON(map[string]any{
		"type":     EventCreateRoom,
		"roomData": map[string]any{"mode": "sequential", "host": map[string]any{"name": "Ayşe"}},
	}); err != nil {
		t.Fatalf("write: %v", err)
	}
	created := read(t, host, EventRoomCreated)

	guest := dial(t, url)
	if err := guest.WriteJSON(map[string]any{
		"type":     EventJoinRoom,
		"roomCode": created.RoomCode,
		"player":   map[string]any{"name": "Mehmet"},
	}); err != nil {
		t.Fatalf("write: %v", err)
	}
	joined := read(t, guest, EventRoomJoined)
	update := read(t, host, EventRoomUpdate)
	if update.Room.Status != game.StatusPlaying || joined.Room.Status != game.StatusPlaying {
		t.Fatalf("expected both to see a playing room, got %s and %s", update.Room.Status, joined.Room.Status)
	}

	if err := host.WriteJSON(map[string]any{
		"type":     EventSubmitGuess,
		"roomCode": created.RoomCode,
		"playerId": created.PlayerID,
		"guess":    created.Room.Word,
	}); err != nil {
		t.Fatalf("write: %v", err)
	}
	final := read(t, guest, EventRoomUpdate)
	if final.Room.Status != game.StatusFinished || final.Room.WinnerID != created.PlayerID {
		t.Fatalf("expected host to win, got %s %q", final.Room.Status, final.Room.WinnerID)
	}

	// closing the guest socket marks them offline for the host
	_ = guest.Close()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		m := read(t, host, EventRoomUpdate)
		if m.Room.Players[1].Status == game.PresenceDisconnected {
			return
		}
	}
	t.Fatal("host never saw the guest disconnect")
}

func TestWebSocketRejectsOrigin(t *testing.T) {
	gin.SetMode(gin.TestMode)
	srv := newTestServer(t)
	srv.opts.AllowOrigin = func(origin string) bool { return origin == "http://allowed.test" }
	r := gin.New()
	srv.MountWebSocket(r)
	ts := httptest.NewServer(r)
	defer ts.Close()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"

	header := map[string][]string{"Origin": {"http://evil.test"}}
	if _, _, err := websocket.DefaultDialer.Dial(url, header); err == nil {
		t.Fatal("expected the handshake to be refused")
	}
	header["Origin"] = []string{"http://allowed.test"}
	conn, _, err := websocket.DefaultDialer.Dial(url, header)
	if err != nil {
		t.Fatalf("allowed origin refused: %v", err)
	}
	_ = conn.Close()
}
