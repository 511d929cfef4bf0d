package orch

import (
	"testing"
	"time"

	"github.com/dkeye/Lobby/internal/app"
	"github.com/dkeye/Lobby/internal/core"
	"github.com/dkeye/Lobby/internal/domain"
)

type racer struct {
	conn domain.ConnID
	sig  *fakeSignal
	id   domain.PlayerID
}

// startRace puts n players into room-test and runs the ready and
// countdown timers to completion.
func startRace(t *testing.T, h *harness, n int) []racer {
	t.Helper()
	racers := make([]racer, n)
	for i := range racers {
		conn, sig := h.connect()
		racers[i] = racer{conn: conn, sig: sig, id: domain.PlayerID(string(rune('a' + i)))}
		h.send(conn, core.EvJoinGame, map[string]any{"roomId": "room-test", "playerId": racers[i].id, "nickname": "P"})
	}
	h.sched.Advance(h.o.Timing.ReadyDelay + h.o.Timing.Countdown)
	s, ok := h.o.Games.Get("room-test")
	if !ok || !s.Racing() {
		t.Fatal("race did not start")
	}
	return racers
}

func carUpdate(id domain.PlayerID, x float64) map[string]any {
	return map[string]any{
		"roomId":     "room-test",
		"playerId":   id,
		"position":   domain.Vec3{X: x, Y: 1, Z: 2},
		"quaternion": domain.IdentityQuat,
		"velocity":   domain.Vec3{X: 3},
	}
}

func TestJoinGameRosterAndArrival(t *testing.T) {
	h := newHarness(t)
	first, firstSig := h.connect()
	second, secondSig := h.connect()

	h.send(first, core.EvJoinGame, map[string]any{"roomId": "room-test", "playerId": "p1", "nickname": "One"})
	var roster map[domain.PlayerID]core.PlayerDTO
	firstSig.last(t, core.EvExistingPlayers, &roster)
	if len(roster) != 1 || roster["p1"].Nickname != "One" {
		t.Fatalf("first roster = %+v", roster)
	}

	h.send(second, core.EvJoinGame, map[string]any{"roomId": "room-test", "playerId": "p2", "nickname": "Two"})
	secondSig.last(t, core.EvExistingPlayers, &roster)
	if len(roster) != 2 {
		t.Fatalf("second roster = %+v", roster)
	}
	if roster["p1"].Position == roster["p2"].Position {
		t.Fatal("players spawned on the same spot")
	}
	if roster["p1"].Color == roster["p2"].Color {
		t.Fatal("players share a colour")
	}

	var arrival core.PlayerDTO
	if !firstSig.last(t, core.EvNewPlayer, &arrival) || arrival.PlayerID != "p2" {
		t.Fatalf("newPlayer = %+v", arrival)
	}
	if secondSig.count(core.EvNewPlayer) != 0 {
		t.Fatal("newcomer told about itself")
	}

	b, ok := h.o.Registry.GameOf(second)
	if !ok || b != (app.GameBinding{RoomID: "room-test", PlayerID: "p2"}) {
		t.Fatalf("binding = %+v", b)
	}
}

func TestCountdownAndGo(t *testing.T) {
	h := newHarness(t)
	a, aSig := h.connect()
	b, bSig := h.connect()
	h.send(a, core.EvJoinGame, map[string]any{"roomId": "room-test", "playerId": "a"})
	h.send(b, core.EvJoinGame, map[string]any{"roomId": "room-test", "playerId": "b"})

	h.sched.Advance(999 * time.Millisecond)
	if aSig.count(core.EvStartCountdown) != 0 {
		t.Fatal("countdown before players were ready")
	}
	h.sched.Advance(time.Millisecond)
	for _, sig := range []*fakeSignal{aSig, bSig} {
		if sig.count(core.EvStartCountdown) != 1 {
			t.Fatalf("startCountdown count = %d", sig.count(core.EvStartCountdown))
		}
	}

	// Updates before the go signal are not relayed.
	h.send(a, core.EvCarUpdate, carUpdate("a", 1))
	if bSig.count(core.EvCarUpdate) != 0 {
		t.Fatal("update relayed during countdown")
	}

	h.sched.Advance(6 * time.Second)
	for _, sig := range []*fakeSignal{aSig, bSig} {
		if sig.count(core.EvGameStart) != 1 {
			t.Fatalf("gameStart count = %d", sig.count(core.EvGameStart))
		}
	}
	s, _ := h.o.Games.Get("room-test")
	for _, p := range s.Players() {
		if p.State() != app.PlayerRacing {
			t.Fatalf("player %s state = %s", p.ID, p.State())
		}
	}
}

func TestSinglePlayerNeverCountsDown(t *testing.T) {
	h := newHarness(t)
	a, sig := h.connect()
	h.send(a, core.EvJoinGame, map[string]any{"roomId": "room-test", "playerId": "a"})
	h.sched.Advance(time.Minute)
	if sig.count(core.EvStartCountdown) != 0 || sig.count(core.EvGameStart) != 0 {
		t.Fatal("lone player started a race")
	}
}

func TestCarUpdateRelay(t *testing.T) {
	h := newHarness(t)
	racers := startRace(t, h, 3)
	a, b, c := racers[0], racers[1], racers[2]

	h.send(a.conn, core.EvCarUpdate, carUpdate(a.id, 42))
	var got carRelay
	for _, r := range []racer{b, c} {
		if !r.sig.last(t, core.EvCarUpdate, &got) {
			t.Fatal("update not relayed")
		}
		if got.PlayerID != a.id || got.Position.X != 42 || got.Velocity.X != 3 {
			t.Fatalf("relay = %+v", got)
		}
	}
	if a.sig.count(core.EvCarUpdate) != 0 {
		t.Fatal("update echoed to sender")
	}

	// b may not move a's car.
	h.send(b.conn, core.EvCarUpdate, carUpdate(a.id, 99))
	if c.sig.count(core.EvCarUpdate) != 1 {
		t.Fatal("foreign update relayed")
	}
	s, _ := h.o.Games.Get("room-test")
	if p, _ := s.Player(a.id); p.Position.X != 42 {
		t.Fatalf("position = %+v", p.Position)
	}

	h.send(a.conn, core.EvCarUpdate, map[string]any{"playerId": a.id})
	var e errorPayload
	if !a.sig.last(t, core.EvError, &e) || e.Error != "bad_payload" {
		t.Fatalf("missing transform reply = %+v", e)
	}
}

func TestCarUpdateRateLimited(t *testing.T) {
	h := newHarness(t)
	h.o.Updates = app.TrustClientPolicy{Limiter: app.NewRateLimiter(1, time.Minute)}
	racers := startRace(t, h, 2)

	h.send(racers[0].conn, core.EvCarUpdate, carUpdate(racers[0].id, 1))
	h.send(racers[0].conn, core.EvCarUpdate, carUpdate(racers[0].id, 2))
	if n := racers[1].sig.count(core.EvCarUpdate); n != 1 {
		t.Fatalf("relayed %d updates, want 1", n)
	}
}

func TestLateJoinerGetsDirectedStart(t *testing.T) {
	h := newHarness(t)
	racers := startRace(t, h, 2)

	late, lateSig := h.connect()
	h.send(late, core.EvJoinGame, map[string]any{"roomId": "room-test", "playerId": "late"})
	h.sched.Advance(time.Second)

	if lateSig.count(core.EvGameStart) != 1 {
		t.Fatal("late joiner got no gameStart")
	}
	for _, r := range racers {
		if r.sig.count(core.EvGameStart) != 1 {
			t.Fatalf("racer %s got %d gameStart", r.id, r.sig.count(core.EvGameStart))
		}
	}
	s, _ := h.o.Games.Get("room-test")
	if p, _ := s.Player("late"); p.State() != app.PlayerRacing {
		t.Fatalf("late state = %s", p.State())
	}
}

func TestGameDisconnect(t *testing.T) {
	h := newHarness(t)
	racers := startRace(t, h, 2)

	h.o.Disconnect(racers[0].conn)
	var left domain.PlayerID
	if !racers[1].sig.last(t, core.EvPlayerLeft, &left) || left != racers[0].id {
		t.Fatalf("playerLeft = %q", left)
	}

	h.o.Disconnect(racers[1].conn)
	if _, ok := h.o.Games.Get("room-test"); ok {
		t.Fatal("empty session kept")
	}
}

func TestDisconnectDuringCountdownStopsTimer(t *testing.T) {
	h := newHarness(t)
	a, _ := h.connect()
	b, _ := h.connect()
	h.send(a, core.EvJoinGame, map[string]any{"roomId": "room-test", "playerId": "a"})
	h.send(b, core.EvJoinGame, map[string]any{"roomId": "room-test", "playerId": "b"})
	h.sched.Advance(time.Second)

	h.o.Disconnect(a)
	h.o.Disconnect(b)
	if h.sched.pending() != 0 {
		t.Fatalf("pending tasks = %d", h.sched.pending())
	}

	// A new session under the same id starts from scratch.
	c, cSig := h.connect()
	h.send(c, core.EvJoinGame, map[string]any{"roomId": "room-test", "playerId": "c"})
	h.sched.Advance(time.Minute)
	if cSig.count(core.EvGameStart) != 0 {
		t.Fatal("stale countdown reached the new session")
	}
}

func TestSweepEvictsIdlePlayers(t *testing.T) {
	h := newHarness(t)
	racers := startRace(t, h, 2)
	active, idle := racers[0], racers[1]

	h.sched.Advance(2 * time.Minute)
	h.send(active.conn, core.EvCarUpdate, carUpdate(active.id, 5))
	h.sched.Advance(4 * time.Minute)
	h.o.Sweep()

	var left domain.PlayerID
	if !active.sig.last(t, core.EvPlayerLeft, &left) || left != idle.id {
		t.Fatalf("playerLeft = %q", left)
	}
	if _, ok := h.o.Registry.GameOf(idle.conn); ok {
		t.Fatal("idle connection still bound")
	}
	s, ok := h.o.Games.Get("room-test")
	if !ok || s.Len() != 1 {
		t.Fatal("active player evicted")
	}

	h.sched.Advance(10 * time.Minute)
	h.o.Sweep()
	if _, ok := h.o.Games.Get("room-test"); ok {
		t.Fatal("session not collected")
	}
}

func TestRejoinReplacesPlayer(t *testing.T) {
	h := newHarness(t)
	old, _ := h.connect()
	h.send(old, core.EvJoinGame, map[string]any{"roomId": "room-test", "playerId": "p"})
	fresh, _ := h.connect()
	h.send(fresh, core.EvJoinGame, map[string]any{"roomId": "room-test", "playerId": "p"})

	if _, ok := h.o.Registry.GameOf(old); ok {
		t.Fatal("old connection still bound")
	}
	s, _ := h.o.Games.Get("room-test")
	if p, _ := s.Player("p"); s.Len() != 1 || p.Conn != fresh {
		t.Fatal("player not replaced")
	}

	// The old connection going away must not remove the new owner.
	h.o.Disconnect(old)
	if _, ok := h.o.Games.Get("room-test"); !ok {
		t.Fatal("session removed by stale connection")
	}
}

func TestCountdownStartsWhenLastUnreadyPlayerLeaves(t *testing.T) {
	h := newHarness(t)
	a, aSig := h.connect()
	b, bSig := h.connect()
	c, _ := h.connect()
	h.send(a, core.EvJoinGame, map[string]any{"roomId": "room-test", "playerId": "a"})
	h.send(b, core.EvJoinGame, map[string]any{"roomId": "room-test", "playerId": "b"})
	h.sched.Advance(500 * time.Millisecond)
	h.send(c, core.EvJoinGame, map[string]any{"roomId": "room-test", "playerId": "c"})

	h.sched.Advance(600 * time.Millisecond)
	if aSig.count(core.EvStartCountdown) != 0 {
		t.Fatal("countdown with an unready player")
	}

	h.o.Disconnect(c)
	for _, sig := range []*fakeSignal{aSig, bSig} {
		if sig.count(core.EvStartCountdown) != 1 {
			t.Fatalf("startCountdown count = %d", sig.count(core.EvStartCountdown))
		}
	}
	h.sched.Advance(time.Minute)
	if aSig.count(core.EvGameStart) != 1 || bSig.count(core.EvGameStart) != 1 {
		t.Fatal("race never started")
	}
}

func TestCountdownStartsWhenUnreadyPlayerIsSwept(t *testing.T) {
	h := newHarness(t)
	a, aSig := h.connect()
	b, _ := h.connect()
	c, _ := h.connect()
	h.send(a, core.EvJoinGame, map[string]any{"roomId": "room-test", "playerId": "a"})
	h.send(b, core.EvJoinGame, map[string]any{"roomId": "room-test", "playerId": "b"})
	h.o.Timing.ReadyDelay = time.Hour
	h.send(c, core.EvJoinGame, map[string]any{"roomId": "room-test", "playerId": "c"})

	h.sched.Advance(time.Second)
	if aSig.count(core.EvStartCountdown) != 0 {
		t.Fatal("countdown with an unready player")
	}

	s, _ := h.o.Games.Get("room-test")
	stale, _ := s.Player("c")
	stale.LastUpdate = h.now().Add(-10 * time.Minute)
	h.o.Sweep()

	var left domain.PlayerID
	if !aSig.last(t, core.EvPlayerLeft, &left) || left != "c" {
		t.Fatalf("playerLeft = %q", left)
	}
	if aSig.count(core.EvStartCountdown) != 1 {
		t.Fatal("sweep did not arm the countdown")
	}
	if s.Phase() != app.SessionCountdown {
		t.Fatalf("phase = %s", s.Phase())
	}
}
