package orch

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/Lobby/internal/app"
	"github.com/dkeye/Lobby/internal/core"
	"github.com/dkeye/Lobby/internal/domain"
)

var (
	errNoRoom      = errors.New("roomId is required")
	errNoTransform = errors.New("position and quaternion are required")
)

type carRelay struct {
	PlayerID   domain.PlayerID `json:"playerId"`
	Position   domain.Vec3     `json:"position"`
	Quaternion domain.Quat     `json:"quaternion"`
	Velocity   domain.Vec3     `json:"velocity"`
}

func (o *Orchestrator) handleJoinGame(cmd core.Command) ([]core.Outbound, error) {
	var p joinGamePayload
	if err := decode(cmd.Data, &p); err != nil {
		return nil, err
	}
	id := o.resolveRoom(cmd.From, p.RoomID)
	if id == "" {
		return nil, errNoRoom
	}
	if p.PlayerID == "" {
		p.PlayerID = domain.PlayerID(cmd.From)
	}
	capacity := 0
	if rs, ok := o.Lobby.Get(id); ok {
		capacity = rs.Room.MaxPlayers
	}

	var out []core.Outbound
	if prev, ok := o.Registry.GameOf(cmd.From); ok && prev != (app.GameBinding{RoomID: id, PlayerID: p.PlayerID}) {
		out = append(out, o.leaveGame(cmd.From, prev)...)
	}

	s, player, replaced := o.Games.Join(id, p.PlayerID, p.Nickname, cmd.From, capacity)
	binding := app.GameBinding{RoomID: id, PlayerID: p.PlayerID}
	if replaced != nil && replaced.Conn != cmd.From {
		o.Registry.UnbindGame(replaced.Conn, binding)
	}
	o.Registry.BindGame(cmd.From, binding)

	player.ReadyTask = o.Scheduler.AfterFunc(o.Timing.ReadyDelay, func() {
		o.locked(func() []core.Outbound { return o.onPlayerReady(id, player) })
	})

	return append(out,
		core.ToConn(cmd.From, core.EvExistingPlayers, s.Roster()),
		core.ToConns(s.Conns(cmd.From), core.EvNewPlayer, player.View()),
	), nil
}

// onPlayerReady runs after the spawn delay. The last player to become
// ready arms the countdown.
func (o *Orchestrator) onPlayerReady(id domain.RoomID, p *app.Player) []core.Outbound {
	s, ok := o.Games.MarkReady(id, p)
	if !ok {
		return nil
	}
	if s.Racing() {
		return []core.Outbound{core.ToConn(p.Conn, core.EvGameStart, nil)}
	}
	return o.arm(id, s)
}

// arm starts the countdown once every remaining player is ready. It runs
// whenever readiness or membership changes.
func (o *Orchestrator) arm(id domain.RoomID, s *app.GameSession) []core.Outbound {
	if !s.ShouldArm() {
		return nil
	}
	s.Arm()
	s.Countdown = o.Scheduler.AfterFunc(o.Timing.Countdown, func() {
		o.locked(func() []core.Outbound { return o.onCountdownDone(id, s) })
	})
	log.Info().Str("module", "orch").Str("room", string(id)).Int("players", s.Len()).Msg("countdown started")
	return []core.Outbound{core.ToConns(s.Conns(""), core.EvStartCountdown, nil)}
}

func (o *Orchestrator) onCountdownDone(id domain.RoomID, s *app.GameSession) []core.Outbound {
	cur, ok := o.Games.Get(id)
	if !ok || cur != s {
		return nil
	}
	s.Countdown = nil
	s.Go()
	log.Info().Str("module", "orch").Str("room", string(id)).Int("players", s.Len()).Msg("race started")
	return []core.Outbound{core.ToConns(s.Conns(""), core.EvGameStart, nil)}
}

func (o *Orchestrator) handleCarUpdate(cmd core.Command) ([]core.Outbound, error) {
	var p carUpdatePayload
	if err := decode(cmd.Data, &p); err != nil {
		return nil, err
	}
	if p.Position == nil || p.Quaternion == nil {
		return nil, errNoTransform
	}
	id, playerID := p.RoomID, p.PlayerID
	if b, ok := o.Registry.GameOf(cmd.From); ok {
		if id == "" {
			id = b.RoomID
		}
		if playerID == "" {
			playerID = b.PlayerID
		}
	}
	u := app.CarUpdate{Position: *p.Position, Quaternion: *p.Quaternion, Velocity: p.Velocity}

	s, player, err := o.Games.Racer(id, playerID, cmd.From)
	if err != nil {
		log.Debug().Err(err).Str("module", "orch").Str("sid", string(cmd.From)).Str("room", string(id)).Msg("car update ignored")
		return nil, nil
	}
	if !o.Updates.AcceptCarUpdate(cmd.From, player, u) {
		log.Debug().Str("module", "orch").Str("sid", string(cmd.From)).Str("room", string(id)).Msg("car update rejected")
		return nil, nil
	}
	o.Games.Apply(player, u)
	return []core.Outbound{core.ToConns(s.Conns(cmd.From), core.EvCarUpdate, carRelay{
		PlayerID:   player.ID,
		Position:   player.Position,
		Quaternion: player.Quaternion,
		Velocity:   player.Velocity,
	})}, nil
}

// leaveGame removes the player bound to conn and tells the rest of the
// session.
func (o *Orchestrator) leaveGame(conn domain.ConnID, b app.GameBinding) []core.Outbound {
	o.Registry.UnbindGame(conn, b)
	s, removed, deleted := o.Games.Remove(b.RoomID, b.PlayerID, conn)
	if !removed || deleted {
		return nil
	}
	out := []core.Outbound{core.ToConns(s.Conns(""), core.EvPlayerLeft, b.PlayerID)}
	return append(out, o.arm(b.RoomID, s)...)
}

// Sweep evicts idle players and drops empty sessions.
func (o *Orchestrator) Sweep() {
	o.locked(func() []core.Outbound {
		var out []core.Outbound
		var touched []domain.RoomID
		for _, ev := range o.Games.Sweep(o.Timing.IdleTimeout) {
			o.Registry.UnbindGame(ev.Conn, app.GameBinding{RoomID: ev.RoomID, PlayerID: ev.PlayerID})
			if len(ev.Recipients) > 0 {
				out = append(out, core.ToConns(ev.Recipients, core.EvPlayerLeft, ev.PlayerID))
			}
			if len(touched) == 0 || touched[len(touched)-1] != ev.RoomID {
				touched = append(touched, ev.RoomID)
			}
		}
		for _, id := range touched {
			if s, ok := o.Games.Get(id); ok {
				out = append(out, o.arm(id, s)...)
			}
		}
		return out
	})
}

// RunSweeper calls Sweep on every tick until ctx is done.
func (o *Orchestrator) RunSweeper(ctx context.Context) error {
	every := o.Timing.SweepEvery
	if every <= 0 {
		every = DefaultTiming().SweepEvery
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	log.Info().Str("module", "orch").Dur("every", every).Msg("sweeper started")
	for {
		select {
		case <-ctx.Done():
			log.Info().Str("module", "orch").Msg("sweeper stopped")
			return nil
		case <-ticker.C:
			o.Sweep()
		}
	}
}
