package app

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Lobby/internal/core"
	"github.com/dkeye/Lobby/internal/domain"
)

// GameBinding ties a connection to a player slot of a game session.
type GameBinding struct {
	RoomID   domain.RoomID   `json:"roomId"`
	PlayerID domain.PlayerID `json:"playerId"`
}

type connEntry struct {
	Token  string
	Signal core.SignalConnection
	Cancel context.CancelFunc
	Room   domain.RoomID
	Game   *GameBinding
}

// Registry tracks live connections and what each one is attached to.
type Registry struct {
	mu    sync.RWMutex
	conns map[domain.ConnID]*connEntry
}

func NewRegistry() *Registry {
	return &Registry{
		conns: make(map[domain.ConnID]*connEntry),
	}
}

// Connect registers a new connection and returns its id. token is the
// client cookie token, kept for correlation only.
func (r *Registry) Connect(token string, sig core.SignalConnection, cancel context.CancelFunc) domain.ConnID {
	id := domain.ConnID(uuid.NewString())
	r.mu.Lock()
	defer r.mu.Unlock()
	r.conns[id] = &connEntry{Token: token, Signal: sig, Cancel: cancel}
	log.Info().Str("module", "app.registry").Str("sid", string(id)).Str("client", token).Msg("connected")
	return id
}

// Detached is what a connection was attached to when it went away.
type Detached struct {
	Room domain.RoomID
	Game *GameBinding
}

// Disconnect forgets the connection. The caller is responsible for
// cleaning up the room and game it was attached to.
func (r *Registry) Disconnect(id domain.ConnID) (Detached, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.conns[id]
	if !ok {
		return Detached{}, false
	}
	delete(r.conns, id)
	log.Info().Str("module", "app.registry").Str("sid", string(id)).Msg("disconnected")
	return Detached{Room: e.Room, Game: e.Game}, true
}

func (r *Registry) Signal(id domain.ConnID) (core.SignalConnection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if e, ok := r.conns[id]; ok {
		return e.Signal, true
	}
	return nil, false
}

func (r *Registry) RoomOf(id domain.ConnID) (domain.RoomID, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.conns[id]
	if !ok || e.Room == "" {
		return "", false
	}
	return e.Room, true
}

func (r *Registry) SetRoom(id domain.ConnID, room domain.RoomID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.conns[id]
	if !ok {
		return false
	}
	e.Room = room
	log.Debug().Str("module", "app.registry").Str("sid", string(id)).Str("room", string(room)).Msg("updated room")
	return true
}

// ClearRoom drops the room association only if it still points at room.
func (r *Registry) ClearRoom(id domain.ConnID, room domain.RoomID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.conns[id]; ok && e.Room == room {
		e.Room = ""
		log.Debug().Str("module", "app.registry").Str("sid", string(id)).Str("room", string(room)).Msg("removed room association")
	}
}

func (r *Registry) GameOf(id domain.ConnID) (GameBinding, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.conns[id]
	if !ok || e.Game == nil {
		return GameBinding{}, false
	}
	return *e.Game, true
}

func (r *Registry) BindGame(id domain.ConnID, b GameBinding) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.conns[id]
	if !ok {
		return false
	}
	e.Game = &b
	return true
}

// UnbindGame drops the game binding only if it still equals b.
func (r *Registry) UnbindGame(id domain.ConnID, b GameBinding) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.conns[id]; ok && e.Game != nil && *e.Game == b {
		e.Game = nil
	}
}

// All returns every live connection id in a stable order.
func (r *Registry) All() []domain.ConnID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.ConnID, 0, len(r.conns))
	for id := range r.conns {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

func (r *Registry) Cancel(id domain.ConnID) bool {
	r.mu.RLock()
	e, ok := r.conns[id]
	r.mu.RUnlock()
	if !ok {
		return false
	}
	if e.Cancel != nil {
		e.Cancel()
	}
	log.Info().Str("module", "app.registry").Str("sid", string(id)).Msg("canceled session")
	return true
}
