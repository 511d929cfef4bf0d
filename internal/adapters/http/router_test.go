package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/dkeye/Lobby/internal/app/orch"
	"github.com/dkeye/Lobby/internal/config"
)

type frame struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

func newTestServer(t *testing.T) (*httptest.Server, *orch.Orchestrator) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	o := orch.New(orch.Options{})
	cfg := &config.Config{Mode: "test", Secret: "test-secret", PingPeriod: time.Minute}
	srv := httptest.NewServer(SetupRouter(ctx, cfg, o))
	t.Cleanup(srv.Close)
	return srv, o
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/ws/signal"
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = ws.Close() })
	return ws
}

func readUntil(t *testing.T, ws *websocket.Conn, typ string) frame {
	t.Helper()
	_ = ws.SetReadDeadline(time.Now().Add(3 * time.Second))
	for {
		var f frame
		if err := ws.ReadJSON(&f); err != nil {
			t.Fatalf("waiting for %s: %v", typ, err)
		}
		if f.Type == typ {
			return f
		}
	}
}

func TestSignalRoundTrip(t *testing.T) {
	srv, _ := newTestServer(t)
	host := dial(t, srv)
	guest := dial(t, srv)

	if err := host.WriteJSON(map[string]any{
		"type": "createRoom",
		"data": map[string]any{"roomTitle": "Round trip", "maxPlayers": "4", "nickname": "H"},
	}); err != nil {
		t.Fatal(err)
	}
	var created struct {
		RoomID string `json:"roomId"`
		Room   struct {
			Title      string `json:"title"`
			MaxPlayers int    `json:"maxPlayers"`
		} `json:"room"`
	}
	if err := json.Unmarshal(readUntil(t, host, "roomCreated").Data, &created); err != nil {
		t.Fatal(err)
	}
	if created.Room.Title != "Round trip" || created.Room.MaxPlayers != 4 {
		t.Fatalf("created = %+v", created)
	}

	if err := guest.WriteJSON(map[string]any{
		"type": "joinRoom",
		"data": map[string]any{"roomId": created.RoomID, "nickname": "P"},
	}); err != nil {
		t.Fatal(err)
	}
	readUntil(t, guest, "roomJoined")

	var players struct {
		Players []struct {
			Nickname string `json:"nickname"`
		} `json:"players"`
	}
	if err := json.Unmarshal(readUntil(t, host, "roomUpdate").Data, &players); err != nil {
		t.Fatal(err)
	}
	for len(players.Players) < 2 {
		if err := json.Unmarshal(readUntil(t, host, "roomUpdate").Data, &players); err != nil {
			t.Fatal(err)
		}
	}
	if players.Players[1].Nickname != "P" {
		t.Fatalf("players = %+v", players.Players)
	}

	if err := guest.WriteJSON(map[string]any{"type": "ping"}); err != nil {
		t.Fatal(err)
	}
	readUntil(t, guest, "pong")
}

func TestDisconnectLeavesRoom(t *testing.T) {
	srv, o := newTestServer(t)
	host := dial(t, srv)

	if err := host.WriteJSON(map[string]any{"type": "createRoom", "data": map[string]any{}}); err != nil {
		t.Fatal(err)
	}
	readUntil(t, host, "roomCreated")
	_ = host.Close()

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if o.Stats().Rooms == 0 && o.Stats().Connections == 0 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("stats after disconnect = %+v", o.Stats())
}

func TestRoomsAndHealth(t *testing.T) {
	srv, _ := newTestServer(t)
	ws := dial(t, srv)
	if err := ws.WriteJSON(map[string]any{"type": "createRoom", "data": map[string]any{"roomTitle": "Listed"}}); err != nil {
		t.Fatal(err)
	}
	readUntil(t, ws, "roomCreated")

	resp, err := http.Get(srv.URL + "/api/rooms")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var rooms struct {
		Rooms []struct {
			Title  string `json:"title"`
			Status string `json:"status"`
		} `json:"rooms"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&rooms); err != nil {
		t.Fatal(err)
	}
	if len(rooms.Rooms) != 1 || rooms.Rooms[0].Title != "Listed" || rooms.Rooms[0].Status != "open" {
		t.Fatalf("rooms = %+v", rooms)
	}

	health, err := http.Get(srv.URL + "/healthz")
	if err != nil {
		t.Fatal(err)
	}
	defer health.Body.Close()
	var st struct {
		Status      string `json:"status"`
		Rooms       int    `json:"rooms"`
		Connections int    `json:"connections"`
	}
	if err := json.NewDecoder(health.Body).Decode(&st); err != nil {
		t.Fatal(err)
	}
	if st.Status != "ok" || st.Rooms != 1 || st.Connections != 1 {
		t.Fatalf("health = %+v", st)
	}
	if len(health.Cookies()) == 0 {
		t.Fatal("no session cookie set")
	}
}
