package app

import (
	"errors"
	"sort"
	"time"

	"github.com/looplab/fsm"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Lobby/internal/core"
	"github.com/dkeye/Lobby/internal/domain"
)

// Player states.
const (
	PlayerJoining   = "joining"
	PlayerSpawned   = "spawned"
	PlayerReady     = "ready"
	PlayerCountdown = "countdown"
	PlayerRacing    = "racing"
	PlayerRemoved   = "removed"
)

// Session phases.
const (
	SessionWaiting   = "waiting"
	SessionCountdown = "countdown"
	SessionRacing    = "racing"
)

const (
	evSpawn  = "spawn"
	evReady  = "ready"
	evArm    = "arm"
	evGo     = "go"
	evRemove = "remove"
)

var (
	ErrUnknownPlayer = errors.New("unknown player")
	ErrNotRacing     = errors.New("player is not racing")
	ErrForeignPlayer = errors.New("player belongs to another connection")
)

type Player struct {
	domain.PlayerState
	fsm *fsm.FSM
	// ReadyTask flips the player to ready shortly after spawning.
	ReadyTask core.Task
}

func (p *Player) State() string { return p.fsm.Current() }

func (p *Player) View() core.PlayerDTO {
	return core.PlayerDTO{
		PlayerID:   p.ID,
		Nickname:   p.Nickname,
		Position:   p.Position,
		Quaternion: p.Quaternion,
		Velocity:   p.Velocity,
		Color:      p.Color,
	}
}

func (p *Player) step(event string) {
	if !p.fsm.Can(event) {
		return
	}
	if err := p.fsm.Event(event); err != nil {
		log.Warn().Err(err).Str("module", "app.game").Str("player", string(p.ID)).Str("event", event).Msg("player transition")
	}
}

func newPlayerFSM(id domain.PlayerID) *fsm.FSM {
	return fsm.NewFSM(
		PlayerJoining,
		fsm.Events{
			{Name: evSpawn, Src: []string{PlayerJoining}, Dst: PlayerSpawned},
			{Name: evReady, Src: []string{PlayerSpawned}, Dst: PlayerReady},
			{Name: evArm, Src: []string{PlayerReady}, Dst: PlayerCountdown},
			{Name: evGo, Src: []string{PlayerReady, PlayerCountdown}, Dst: PlayerRacing},
			{Name: evRemove, Src: []string{PlayerJoining, PlayerSpawned, PlayerReady, PlayerCountdown, PlayerRacing}, Dst: PlayerRemoved},
		},
		fsm.Callbacks{
			"enter_state": func(e *fsm.Event) {
				log.Debug().Str("module", "app.game").Str("player", string(id)).Str("from", e.Src).Str("to", e.Dst).Msg("player state")
			},
		},
	)
}

// GameSession is the per-room play state, independent of the lobby room.
type GameSession struct {
	RoomID   domain.RoomID
	Capacity int
	players  map[domain.PlayerID]*Player
	phase    *fsm.FSM
	// Countdown fires the go signal once armed.
	Countdown core.Task
}

func newGameSession(id domain.RoomID, capacity int) *GameSession {
	return &GameSession{
		RoomID:   id,
		Capacity: capacity,
		players:  make(map[domain.PlayerID]*Player),
		phase: fsm.NewFSM(
			SessionWaiting,
			fsm.Events{
				{Name: evArm, Src: []string{SessionWaiting}, Dst: SessionCountdown},
				{Name: evGo, Src: []string{SessionCountdown}, Dst: SessionRacing},
			},
			fsm.Callbacks{},
		),
	}
}

func (s *GameSession) Phase() string { return s.phase.Current() }

func (s *GameSession) Racing() bool { return s.phase.Is(SessionRacing) }

func (s *GameSession) Len() int { return len(s.players) }

func (s *GameSession) Player(id domain.PlayerID) (*Player, bool) {
	p, ok := s.players[id]
	return p, ok
}

// Players returns players ordered by spawn slot.
func (s *GameSession) Players() []*Player {
	out := make([]*Player, 0, len(s.players))
	for _, p := range s.players {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Slot < out[j].Slot })
	return out
}

// Roster is the bulk state a newcomer needs.
func (s *GameSession) Roster() map[domain.PlayerID]core.PlayerDTO {
	out := make(map[domain.PlayerID]core.PlayerDTO, len(s.players))
	for id, p := range s.players {
		out[id] = p.View()
	}
	return out
}

// Conns lists the connections of every player except the given one.
func (s *GameSession) Conns(except domain.ConnID) []domain.ConnID {
	out := make([]domain.ConnID, 0, len(s.players))
	for _, p := range s.Players() {
		if p.Conn != except {
			out = append(out, p.Conn)
		}
	}
	return out
}

func (s *GameSession) freeSlot() int {
	used := make(map[int]bool, len(s.players))
	for _, p := range s.players {
		used[p.Slot] = true
	}
	slot := 0
	for used[slot] {
		slot++
	}
	return slot
}

// ShouldArm is true once everyone is ready and there is someone to race.
func (s *GameSession) ShouldArm() bool {
	if !s.phase.Is(SessionWaiting) || len(s.players) <= 1 {
		return false
	}
	for _, p := range s.players {
		if !p.IsReady {
			return false
		}
	}
	return true
}

func (s *GameSession) Arm() {
	if err := s.phase.Event(evArm); err != nil {
		log.Warn().Err(err).Str("module", "app.game").Str("room", string(s.RoomID)).Msg("arm countdown")
		return
	}
	for _, p := range s.players {
		p.step(evArm)
	}
}

func (s *GameSession) Go() {
	if err := s.phase.Event(evGo); err != nil {
		log.Warn().Err(err).Str("module", "app.game").Str("room", string(s.RoomID)).Msg("start race")
		return
	}
	for _, p := range s.players {
		p.step(evGo)
	}
}

func (s *GameSession) stop() {
	if s.Countdown != nil {
		s.Countdown.Stop()
		s.Countdown = nil
	}
	for _, p := range s.players {
		if p.ReadyTask != nil {
			p.ReadyTask.Stop()
		}
	}
}

// Games owns all game sessions. Like Lobby it relies on the caller for
// serialization.
type Games struct {
	sessions        map[domain.RoomID]*GameSession
	defaultCapacity int
	now             func() time.Time
}

func NewGames(defaultCapacity int, now func() time.Time) *Games {
	if defaultCapacity <= 0 {
		defaultCapacity = domain.DefaultMaxPlayers
	}
	if now == nil {
		now = time.Now
	}
	return &Games{
		sessions:        make(map[domain.RoomID]*GameSession),
		defaultCapacity: defaultCapacity,
		now:             now,
	}
}

func (g *Games) Get(id domain.RoomID) (*GameSession, bool) {
	s, ok := g.sessions[id]
	return s, ok
}

func (g *Games) Len() int { return len(g.sessions) }

// Join spawns playerID into the room's session, creating it if needed.
// A player re-joining under the same id replaces the old entry; the
// replaced player is returned so its connection can be unbound.
func (g *Games) Join(id domain.RoomID, playerID domain.PlayerID, nickname string, conn domain.ConnID, capacity int) (*GameSession, *Player, *Player) {
	s, ok := g.sessions[id]
	if !ok {
		if capacity <= 0 {
			capacity = g.defaultCapacity
		}
		s = newGameSession(id, capacity)
		g.sessions[id] = s
		log.Info().Str("module", "app.game").Str("room", string(id)).Int("capacity", capacity).Msg("game session created")
	}

	replaced, had := s.players[playerID]
	if had {
		if replaced.ReadyTask != nil {
			replaced.ReadyTask.Stop()
		}
		replaced.step(evRemove)
		delete(s.players, playerID)
	}

	slot := s.freeSlot()
	p := &Player{
		PlayerState: domain.PlayerState{
			ID:         playerID,
			Conn:       conn,
			Nickname:   domain.NormalizeNickname(nickname),
			Slot:       slot,
			Position:   domain.SpawnPosition(slot, s.Capacity),
			Quaternion: domain.IdentityQuat,
			Color:      domain.PaletteColor(slot),
			LastUpdate: g.now(),
		},
		fsm: newPlayerFSM(playerID),
	}
	p.step(evSpawn)
	s.players[playerID] = p
	log.Info().Str("module", "app.game").Str("room", string(id)).Str("player", string(playerID)).Int("slot", slot).
		Float64("x", p.Position.X).Float64("z", p.Position.Z).Msg("player spawned")

	if !had {
		replaced = nil
	}
	return s, p, replaced
}

// MarkReady flips p to ready if it is still the live entry of its
// session. Players joining an already running race go straight to racing.
func (g *Games) MarkReady(id domain.RoomID, p *Player) (*GameSession, bool) {
	s, ok := g.sessions[id]
	if !ok || s.players[p.ID] != p {
		return nil, false
	}
	p.ReadyTask = nil
	p.IsReady = true
	p.step(evReady)
	if s.Racing() {
		p.step(evGo)
	}
	log.Info().Str("module", "app.game").Str("room", string(id)).Str("player", string(p.ID)).Msg("player ready")
	return s, true
}

// Remove drops the player if it is still owned by conn. An empty session
// is deleted and its timers stopped.
func (g *Games) Remove(id domain.RoomID, playerID domain.PlayerID, conn domain.ConnID) (s *GameSession, removed, deleted bool) {
	s, ok := g.sessions[id]
	if !ok {
		return nil, false, false
	}
	p, ok := s.players[playerID]
	if !ok || p.Conn != conn {
		return s, false, false
	}
	g.drop(s, p)
	return s, true, g.collect(s)
}

func (g *Games) drop(s *GameSession, p *Player) {
	if p.ReadyTask != nil {
		p.ReadyTask.Stop()
		p.ReadyTask = nil
	}
	p.step(evRemove)
	delete(s.players, p.ID)
	log.Info().Str("module", "app.game").Str("room", string(s.RoomID)).Str("player", string(p.ID)).Msg("player left game")
}

func (g *Games) collect(s *GameSession) bool {
	if len(s.players) > 0 {
		return false
	}
	s.stop()
	delete(g.sessions, s.RoomID)
	log.Info().Str("module", "app.game").Str("room", string(s.RoomID)).Msg("game session deleted")
	return true
}

// CarUpdate is a client-reported transform. Velocity is optional.
type CarUpdate struct {
	Position   domain.Vec3
	Quaternion domain.Quat
	Velocity   *domain.Vec3
}

// Racer returns the racing player owned by conn.
func (g *Games) Racer(id domain.RoomID, playerID domain.PlayerID, conn domain.ConnID) (*GameSession, *Player, error) {
	s, ok := g.sessions[id]
	if !ok {
		return nil, nil, ErrUnknownPlayer
	}
	p, ok := s.players[playerID]
	if !ok {
		return nil, nil, ErrUnknownPlayer
	}
	if p.Conn != conn {
		return nil, nil, ErrForeignPlayer
	}
	if p.State() != PlayerRacing {
		return nil, nil, ErrNotRacing
	}
	return s, p, nil
}

// Apply stores an accepted transform.
func (g *Games) Apply(p *Player, u CarUpdate) {
	p.Position = u.Position
	p.Quaternion = u.Quaternion
	if u.Velocity != nil {
		p.Velocity = *u.Velocity
	}
	p.LastUpdate = g.now()
}

// Eviction records a player removed by the idle sweep.
type Eviction struct {
	RoomID     domain.RoomID
	PlayerID   domain.PlayerID
	Conn       domain.ConnID
	Recipients []domain.ConnID
}

// Sweep evicts players idle for longer than idle and garbage-collects
// empty sessions.
func (g *Games) Sweep(idle time.Duration) []Eviction {
	now := g.now()
	var out []Eviction
	ids := make([]domain.RoomID, 0, len(g.sessions))
	for id := range g.sessions {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	for _, id := range ids {
		s := g.sessions[id]
		var stale []*Player
		for _, p := range s.Players() {
			if now.Sub(p.LastUpdate) > idle {
				stale = append(stale, p)
			}
		}
		for _, p := range stale {
			g.drop(s, p)
		}
		for _, p := range stale {
			out = append(out, Eviction{RoomID: id, PlayerID: p.ID, Conn: p.Conn, Recipients: s.Conns("")})
		}
		if len(stale) > 0 {
			log.Info().Str("module", "app.game").Str("room", string(id)).Int("evicted", len(stale)).Msg("removed inactive players")
		}
		g.collect(s)
	}
	return out
}
