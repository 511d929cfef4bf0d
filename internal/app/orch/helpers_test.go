package orch

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/dkeye/Lobby/internal/app"
	"github.com/dkeye/Lobby/internal/core"
	"github.com/dkeye/Lobby/internal/domain"
)

var errBufferFull = errors.New("buffer full")

type received struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// fakeSignal records every frame it is handed.
type fakeSignal struct {
	mu     sync.Mutex
	frames []received
	full   bool
	closed bool
}

func (f *fakeSignal) TrySend(fr core.Frame) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.full {
		return errBufferFull
	}
	var r received
	if err := json.Unmarshal(fr, &r); err != nil {
		return err
	}
	f.frames = append(f.frames, r)
	return nil
}

func (f *fakeSignal) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
}

func (f *fakeSignal) count(typ string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, r := range f.frames {
		if r.Type == typ {
			n++
		}
	}
	return n
}

// last decodes the most recent frame of type typ into v.
func (f *fakeSignal) last(t *testing.T, typ string, v any) bool {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.frames) - 1; i >= 0; i-- {
		if f.frames[i].Type != typ {
			continue
		}
		if v != nil {
			if err := json.Unmarshal(f.frames[i].Data, v); err != nil {
				t.Fatalf("decode %s: %v", typ, err)
			}
		}
		return true
	}
	return false
}

func (f *fakeSignal) reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.frames = nil
}

type manualTask struct {
	at      time.Duration
	f       func()
	fired   bool
	stopped bool
}

func (t *manualTask) Stop() bool {
	if t.fired || t.stopped {
		return false
	}
	t.stopped = true
	return true
}

// manualScheduler fires tasks only when the test advances its clock.
type manualScheduler struct {
	now   time.Duration
	tasks []*manualTask
}

func (s *manualScheduler) AfterFunc(d time.Duration, f func()) core.Task {
	t := &manualTask{at: s.now + d, f: f}
	s.tasks = append(s.tasks, t)
	return t
}

func (s *manualScheduler) Advance(d time.Duration) {
	target := s.now + d
	for {
		var next *manualTask
		for _, t := range s.tasks {
			if t.fired || t.stopped || t.at > target {
				continue
			}
			if next == nil || t.at < next.at {
				next = t
			}
		}
		if next == nil {
			s.now = target
			return
		}
		s.now = next.at
		next.fired = true
		next.f()
	}
}

func (s *manualScheduler) pending() int {
	n := 0
	for _, t := range s.tasks {
		if !t.fired && !t.stopped {
			n++
		}
	}
	return n
}

type harness struct {
	t     *testing.T
	o     *Orchestrator
	sched *manualScheduler
	epoch time.Time
	conns map[domain.ConnID]*fakeSignal
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		t:     t,
		sched: &manualScheduler{},
		epoch: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		conns: make(map[domain.ConnID]*fakeSignal),
	}
	h.o = New(Options{
		Lobby:     app.NewLobby(app.NewMemoryRoomStore(), app.LobbyLimits{DefaultMaxPlayers: 8, MaxPlayersLimit: 16}),
		Games:     app.NewGames(8, h.now),
		Scheduler: h.sched,
		Timing:    DefaultTiming(),
	})
	return h
}

func (h *harness) now() time.Time { return h.epoch.Add(h.sched.now) }

func (h *harness) connect() (domain.ConnID, *fakeSignal) {
	sig := &fakeSignal{}
	id := h.o.Connect("token", sig, nil)
	h.conns[id] = sig
	return id, sig
}

func (h *harness) send(from domain.ConnID, typ string, data any) {
	h.t.Helper()
	var raw json.RawMessage
	if data != nil {
		b, err := json.Marshal(data)
		if err != nil {
			h.t.Fatalf("marshal %s: %v", typ, err)
		}
		raw = b
	}
	h.o.Handle(core.Command{From: from, Type: typ, Data: raw})
}

func (h *harness) resetAll() {
	for _, s := range h.conns {
		s.reset()
	}
}

// createRoom has from create a room and returns its id.
func (h *harness) createRoom(from domain.ConnID, payload map[string]any) domain.RoomID {
	h.t.Helper()
	h.send(from, core.EvCreateRoom, payload)
	var got roomEnvelope
	if !h.conns[from].last(h.t, core.EvRoomCreated, &got) {
		h.t.Fatalf("no roomCreated for %s", from)
	}
	return got.RoomID
}

func (h *harness) room(id domain.RoomID) *domain.Room {
	h.t.Helper()
	rs, ok := h.o.Lobby.Get(id)
	if !ok {
		h.t.Fatalf("room %s not found", id)
	}
	if err := rs.Room.Validate(); err != nil {
		h.t.Fatalf("invariants: %v", err)
	}
	return rs.Room
}
