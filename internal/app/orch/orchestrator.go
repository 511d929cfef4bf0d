package orch

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/Lobby/internal/app"
	"github.com/dkeye/Lobby/internal/core"
	"github.com/dkeye/Lobby/internal/domain"
)

// Timing holds every delay the orchestrator schedules.
type Timing struct {
	// SafetyNet deletes a starting room whose game never reports back.
	SafetyNet   time.Duration
	ReadyDelay  time.Duration
	Countdown   time.Duration
	SweepEvery  time.Duration
	IdleTimeout time.Duration
}

func DefaultTiming() Timing {
	return Timing{
		SafetyNet:   5 * time.Minute,
		ReadyDelay:  time.Second,
		Countdown:   6 * time.Second,
		SweepEvery:  time.Minute,
		IdleTimeout: 5 * time.Minute,
	}
}

type handlerFunc func(o *Orchestrator, cmd core.Command) ([]core.Outbound, error)

// Orchestrator is the single point where lobby and game state change.
// Commands, disconnects, timers and sweeps all run under mu, one at a time.
type Orchestrator struct {
	mu sync.Mutex

	Registry  *app.Registry
	Lobby     *app.Lobby
	Games     *app.Games
	Policy    app.Policy
	Updates   app.UpdatePolicy
	Scheduler core.Scheduler
	Timing    Timing

	handlers map[string]handlerFunc
}

type Options struct {
	Registry  *app.Registry
	Lobby     *app.Lobby
	Games     *app.Games
	Policy    app.Policy
	Updates   app.UpdatePolicy
	Scheduler core.Scheduler
	Timing    Timing
}

func New(opts Options) *Orchestrator {
	o := &Orchestrator{
		Registry:  opts.Registry,
		Lobby:     opts.Lobby,
		Games:     opts.Games,
		Policy:    opts.Policy,
		Updates:   opts.Updates,
		Scheduler: opts.Scheduler,
		Timing:    opts.Timing,
	}
	if o.Registry == nil {
		o.Registry = app.NewRegistry()
	}
	if o.Lobby == nil {
		o.Lobby = app.NewLobby(app.NewMemoryRoomStore(), app.LobbyLimits{})
	}
	if o.Games == nil {
		o.Games = app.NewGames(0, nil)
	}
	if o.Policy == nil {
		o.Policy = app.SimplePolicy{}
	}
	if o.Updates == nil {
		o.Updates = app.TrustClientPolicy{}
	}
	if o.Scheduler == nil {
		o.Scheduler = core.TimeScheduler{}
	}
	if o.Timing == (Timing{}) {
		o.Timing = DefaultTiming()
	}
	o.handlers = map[string]handlerFunc{
		core.EvCreateRoom:         (*Orchestrator).handleCreateRoom,
		core.EvUpdateRoomSettings: (*Orchestrator).handleUpdateRoomSettings,
		core.EvListRooms:          (*Orchestrator).handleListRooms,
		core.EvJoinRoom:           (*Orchestrator).handleJoinRoom,
		core.EvReady:              (*Orchestrator).handleReady,
		core.EvStartGame:          (*Orchestrator).handleStartGame,
		core.EvLeaveRoom:          (*Orchestrator).handleLeaveRoom,
		core.EvKickPlayer:         (*Orchestrator).handleKickPlayer,
		core.EvJoinGame:           (*Orchestrator).handleJoinGame,
		core.EvCarUpdate:          (*Orchestrator).handleCarUpdate,
		core.EvPing:               (*Orchestrator).handlePing,
		core.EvWhoAmI:             (*Orchestrator).handleWhoAmI,
	}
	return o
}

// Connect registers a transport endpoint and returns its connection id.
func (o *Orchestrator) Connect(token string, sig core.SignalConnection, cancel context.CancelFunc) domain.ConnID {
	return o.Registry.Connect(token, sig, cancel)
}

// Handle runs one inbound command to completion and delivers its output.
func (o *Orchestrator) Handle(cmd core.Command) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if _, ok := o.Registry.Signal(cmd.From); !ok {
		log.Warn().Str("module", "orch").Str("sid", string(cmd.From)).Str("type", cmd.Type).Msg("command from unknown connection")
		return
	}
	h, ok := o.handlers[cmd.Type]
	if !ok {
		log.Warn().Str("module", "orch").Str("sid", string(cmd.From)).Str("type", cmd.Type).Msg("unknown event")
		o.deliver([]core.Outbound{core.ToConn(cmd.From, core.EvError, errorPayload{Error: "unknown_event"})})
		return
	}
	out, err := h(o, cmd)
	if err != nil {
		log.Warn().Err(err).Str("module", "orch").Str("sid", string(cmd.From)).Str("type", cmd.Type).Msg("bad payload")
		out = append(out, core.ToConn(cmd.From, core.EvError, errorPayload{Error: "bad_payload"}))
	}
	o.deliver(out)
}

// Disconnect removes the connection from its game session and lobby room.
func (o *Orchestrator) Disconnect(id domain.ConnID) {
	o.mu.Lock()
	defer o.mu.Unlock()

	det, ok := o.Registry.Disconnect(id)
	if !ok {
		return
	}
	o.Updates.Forget(id)

	var out []core.Outbound
	if det.Game != nil {
		out = append(out, o.leaveGame(id, *det.Game)...)
	}
	if det.Room != "" {
		out = append(out, o.depart(det.Room, id)...)
	}
	o.deliver(out)
}

// Rooms snapshots the lobby for read-only callers such as the HTTP API.
func (o *Orchestrator) Rooms() []core.RoomDTO {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.Lobby.Views()
}

type Stats struct {
	Rooms       int `json:"rooms"`
	Sessions    int `json:"sessions"`
	Connections int `json:"connections"`
}

func (o *Orchestrator) Stats() Stats {
	o.mu.Lock()
	defer o.mu.Unlock()
	return Stats{Rooms: o.Lobby.Len(), Sessions: o.Games.Len(), Connections: o.Registry.Len()}
}

// locked runs fn under the orchestrator lock and delivers what it returns.
// Timer callbacks enter through here.
func (o *Orchestrator) locked(fn func() []core.Outbound) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.deliver(fn())
}
