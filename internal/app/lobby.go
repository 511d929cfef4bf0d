package app

import (
	"strings"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Lobby/internal/core"
	"github.com/dkeye/Lobby/internal/domain"
)

type LobbyLimits struct {
	DefaultMaxPlayers int
	MaxPlayersLimit   int
}

// Lobby implements the room operations on top of a core.RoomStore.
// It is not safe for concurrent use; the orchestrator serializes calls.
type Lobby struct {
	store  core.RoomStore
	limits LobbyLimits
	seq    atomic.Uint64
}

func NewLobby(store core.RoomStore, limits LobbyLimits) *Lobby {
	if limits.DefaultMaxPlayers <= 0 {
		limits.DefaultMaxPlayers = domain.DefaultMaxPlayers
	}
	return &Lobby{store: store, limits: limits}
}

func (l *Lobby) newRoomID() domain.RoomID {
	for {
		raw := strings.ReplaceAll(uuid.NewString(), "-", "")
		id := domain.RoomID("room-" + raw[:8])
		if _, taken := l.store.Get(id); !taken {
			return id
		}
	}
}

// CreateRoom never fails: settings are coerced, and the creator becomes
// the only member and the host.
func (l *Lobby) CreateRoom(s domain.Settings, creator domain.ConnID, nickname string) *core.RoomState {
	host := domain.NewMember(creator, nickname, true)
	room := &domain.Room{
		ID:       l.newRoomID(),
		HostID:   creator,
		Members:  []*domain.Member{host},
		Settings: s.Normalize(l.limits.DefaultMaxPlayers, l.limits.MaxPlayersLimit),
	}
	rs := &core.RoomState{
		Room:  room,
		Seq:   l.seq.Add(1),
		Phase: newRoomPhase(room.ID),
	}
	l.store.Put(rs)
	log.Info().Str("module", "app.lobby").Str("room", string(room.ID)).Str("sid", string(creator)).Str("title", room.Title).Msg("room created")
	return rs
}

func (l *Lobby) Get(id domain.RoomID) (*core.RoomState, bool) { return l.store.Get(id) }

func (l *Lobby) List() []*core.RoomState { return l.store.List() }

func (l *Lobby) Len() int { return l.store.Len() }

// JoinRoom checks, in order: existence, password, capacity, duplicate.
func (l *Lobby) JoinRoom(id domain.RoomID, password, nickname string, conn domain.ConnID) (*core.RoomState, error) {
	rs, ok := l.store.Get(id)
	if !ok {
		return nil, domain.ErrRoomNotFound
	}
	r := rs.Room
	if !r.CheckPassword(password) {
		return nil, domain.ErrIncorrectPassword
	}
	if r.IsFull() {
		return nil, domain.ErrRoomFull
	}
	if r.IndexOf(conn) >= 0 {
		return nil, domain.ErrAlreadyInRoom
	}
	r.Members = append(r.Members, domain.NewMember(conn, nickname, false))
	log.Info().Str("module", "app.lobby").Str("room", string(id)).Str("sid", string(conn)).Int("members", len(r.Members)).Msg("member joined")
	return rs, nil
}

// UpdateSettings applies the host's edit. Capacity is not editable.
func (l *Lobby) UpdateSettings(id domain.RoomID, s domain.Settings, requester domain.ConnID) (*core.RoomState, error) {
	rs, ok := l.store.Get(id)
	if !ok {
		return nil, domain.ErrRoomNotFound
	}
	r := rs.Room
	if r.HostID != requester {
		return nil, domain.ErrNotHostSettings
	}
	s.MaxPlayers = r.MaxPlayers
	r.Settings = s.Normalize(l.limits.DefaultMaxPlayers, 0)
	log.Info().Str("module", "app.lobby").Str("room", string(id)).Str("sid", string(requester)).Msg("settings updated")
	return rs, nil
}

// SetReady is a no-op unless conn is a member of the room.
func (l *Lobby) SetReady(id domain.RoomID, conn domain.ConnID, ready bool) (*core.RoomState, bool) {
	rs, ok := l.store.Get(id)
	if !ok {
		return nil, false
	}
	m, ok := rs.Room.Member(conn)
	if !ok {
		return nil, false
	}
	m.IsReady = ready
	log.Debug().Str("module", "app.lobby").Str("room", string(id)).Str("sid", string(conn)).Bool("ready", ready).Msg("ready changed")
	return rs, true
}

// Departure describes the outcome of removing a member.
type Departure struct {
	Room    *core.RoomState
	Removed bool
	Deleted bool
	// NewHost is set when the host left and someone took over.
	NewHost domain.ConnID
}

func (l *Lobby) Leave(id domain.RoomID, conn domain.ConnID) Departure {
	rs, ok := l.store.Get(id)
	if !ok {
		return Departure{}
	}
	return l.remove(rs, conn)
}

// Kick removes target on behalf of the host.
func (l *Lobby) Kick(id domain.RoomID, target, requester domain.ConnID) (Departure, error) {
	rs, ok := l.store.Get(id)
	if !ok {
		return Departure{}, domain.ErrRoomNotFound
	}
	if rs.Room.HostID != requester {
		return Departure{}, domain.ErrNotHostKick
	}
	if rs.Room.IndexOf(target) < 0 {
		return Departure{}, domain.ErrNotInRoom
	}
	log.Info().Str("module", "app.lobby").Str("room", string(id)).Str("sid", string(target)).Str("by", string(requester)).Msg("member kicked")
	return l.remove(rs, target), nil
}

// remove drops conn and restores the room invariants: an empty room is
// deleted, a departed host is replaced by the earliest remaining joiner.
func (l *Lobby) remove(rs *core.RoomState, conn domain.ConnID) Departure {
	r := rs.Room
	i := r.IndexOf(conn)
	if i < 0 {
		return Departure{Room: rs}
	}
	wasHost := r.Members[i].IsHost
	r.Members = append(r.Members[:i], r.Members[i+1:]...)
	d := Departure{Room: rs, Removed: true}

	if len(r.Members) == 0 {
		l.Delete(r.ID)
		d.Deleted = true
		log.Info().Str("module", "app.lobby").Str("room", string(r.ID)).Msg("room deleted, no members left")
		return d
	}
	if wasHost {
		next := r.Members[0]
		next.IsHost = true
		r.HostID = next.ID
		d.NewHost = next.ID
		log.Info().Str("module", "app.lobby").Str("room", string(r.ID)).Str("host", string(next.ID)).Msg("host reassigned")
	}
	log.Info().Str("module", "app.lobby").Str("room", string(r.ID)).Str("sid", string(conn)).Int("members", len(r.Members)).Msg("member left")
	return d
}

// Delete removes the room and cancels anything scheduled against it.
func (l *Lobby) Delete(id domain.RoomID) bool {
	rs, ok := l.store.Get(id)
	if !ok {
		return false
	}
	if rs.SafetyNet != nil {
		rs.SafetyNet.Stop()
		rs.SafetyNet = nil
	}
	if rs.Phase.Can(evRoomDelete) {
		if err := rs.Phase.Event(evRoomDelete); err != nil {
			log.Warn().Err(err).Str("module", "app.lobby").Str("room", string(id)).Msg("phase transition")
		}
	}
	l.store.Delete(id)
	return true
}

// MemberIDs snapshots the members in join order.
func MemberIDs(rs *core.RoomState) []domain.ConnID {
	out := make([]domain.ConnID, 0, len(rs.Room.Members))
	for _, m := range rs.Room.Members {
		out = append(out, m.ID)
	}
	return out
}

// RoomView builds the client-facing snapshot.
func RoomView(rs *core.RoomState) core.RoomDTO {
	r := rs.Room
	players := make([]core.MemberDTO, 0, len(r.Members))
	for _, m := range r.Members {
		players = append(players, core.MemberDTO{
			ID:         m.ID,
			Nickname:   m.Nickname,
			IsReady:    m.IsReady,
			IsHost:     m.IsHost,
			ProfilePic: m.ProfilePic,
		})
	}
	return core.RoomDTO{
		ID:         r.ID,
		Title:      r.Title,
		HostID:     r.HostID,
		Players:    players,
		MaxPlayers: r.MaxPlayers,
		IsPrivate:  r.IsPrivate,
		Mode:       r.Mode,
		Track:      r.Track,
		Status:     Status(rs),
	}
}

func (l *Lobby) Views() []core.RoomDTO {
	list := l.store.List()
	out := make([]core.RoomDTO, 0, len(list))
	for _, rs := range list {
		out = append(out, RoomView(rs))
	}
	return out
}
