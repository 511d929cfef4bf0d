package orch

import (
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Lobby/internal/app"
	"github.com/dkeye/Lobby/internal/core"
	"github.com/dkeye/Lobby/internal/domain"
)

// resolveRoom prefers the room named in the payload and falls back to the
// room the registry has for the sender.
func (o *Orchestrator) resolveRoom(from domain.ConnID, id domain.RoomID) domain.RoomID {
	if id != "" {
		return id
	}
	if cur, ok := o.Registry.RoomOf(from); ok {
		return cur
	}
	return ""
}

func (o *Orchestrator) handleCreateRoom(cmd core.Command) ([]core.Outbound, error) {
	var p createRoomPayload
	if err := decode(cmd.Data, &p); err != nil {
		return nil, err
	}
	var out []core.Outbound
	if cur, ok := o.Registry.RoomOf(cmd.From); ok {
		out = append(out, o.depart(cur, cmd.From)...)
	}
	rs := o.Lobby.CreateRoom(domain.Settings{
		Title:      p.RoomTitle,
		MaxPlayers: int(p.MaxPlayers),
		IsPrivate:  p.IsPrivate,
		Password:   p.Password,
		Mode:       domain.Mode(p.Mode),
		Track:      p.Track,
	}, cmd.From, p.Nickname)
	o.Registry.SetRoom(cmd.From, rs.Room.ID)

	return append(out,
		core.ToConn(cmd.From, core.EvRoomCreated, roomEnvelope{RoomID: rs.Room.ID, Room: app.RoomView(rs)}),
		o.roomUpdate(rs),
		o.roomList(),
	), nil
}

func (o *Orchestrator) handleUpdateRoomSettings(cmd core.Command) ([]core.Outbound, error) {
	var p updateSettingsPayload
	if err := decode(cmd.Data, &p); err != nil {
		return nil, err
	}
	rs, err := o.Lobby.UpdateSettings(o.resolveRoom(cmd.From, p.RoomID), domain.Settings{
		Title:     p.RoomTitle,
		IsPrivate: p.IsPrivate,
		Password:  p.Password,
		Mode:      domain.Mode(p.Mode),
		Track:     p.Track,
	}, cmd.From)
	if err != nil {
		return []core.Outbound{core.ToConn(cmd.From, core.EvUpdateRoomSettingsError, domain.Reason(err))}, nil
	}
	return []core.Outbound{o.roomUpdate(rs), o.roomList()}, nil
}

func (o *Orchestrator) handleListRooms(cmd core.Command) ([]core.Outbound, error) {
	return []core.Outbound{core.ToConn(cmd.From, core.EvRoomListUpdate, o.Lobby.Views())}, nil
}

func (o *Orchestrator) handleJoinRoom(cmd core.Command) ([]core.Outbound, error) {
	var p joinRoomPayload
	if err := decode(cmd.Data, &p); err != nil {
		return nil, err
	}
	rs, err := o.Lobby.JoinRoom(p.RoomID, p.Password, p.Nickname, cmd.From)
	if err != nil {
		log.Info().Str("module", "orch").Str("sid", string(cmd.From)).Str("room", string(p.RoomID)).Str("reason", err.Error()).Msg("join refused")
		return []core.Outbound{core.ToConn(cmd.From, core.EvJoinRoomError, domain.Reason(err))}, nil
	}
	var out []core.Outbound
	if cur, ok := o.Registry.RoomOf(cmd.From); ok && cur != rs.Room.ID {
		out = append(out, o.depart(cur, cmd.From)...)
	}
	o.Registry.SetRoom(cmd.From, rs.Room.ID)

	return append(out,
		core.ToConn(cmd.From, core.EvRoomJoined, roomEnvelope{RoomID: rs.Room.ID, Room: app.RoomView(rs)}),
		o.roomUpdate(rs),
		o.roomList(),
	), nil
}

func (o *Orchestrator) handleReady(cmd core.Command) ([]core.Outbound, error) {
	var p readyPayload
	if err := decode(cmd.Data, &p); err != nil {
		return nil, err
	}
	rs, ok := o.Lobby.SetReady(o.resolveRoom(cmd.From, p.RoomID), cmd.From, p.IsReady)
	if !ok {
		return nil, nil
	}
	return []core.Outbound{o.roomUpdate(rs)}, nil
}

func (o *Orchestrator) handleStartGame(cmd core.Command) ([]core.Outbound, error) {
	ref, err := decodeRoomRef(cmd.Data)
	if err != nil {
		return nil, err
	}
	id := o.resolveRoom(cmd.From, ref)
	rs, err := o.Lobby.StartGame(id, cmd.From)
	if err != nil {
		return []core.Outbound{core.ToConn(cmd.From, core.EvStartGameError, domain.Reason(err))}, nil
	}
	rs.SafetyNet = o.Scheduler.AfterFunc(o.Timing.SafetyNet, func() {
		o.locked(func() []core.Outbound { return o.expireRoom(id, rs) })
	})
	return []core.Outbound{
		core.ToConns(app.MemberIDs(rs), core.EvGameStarting, id),
		o.roomList(),
	}, nil
}

// expireRoom is the safety net for a game that never reported its end.
// It only acts if rs is still the live entry for id.
func (o *Orchestrator) expireRoom(id domain.RoomID, rs *core.RoomState) []core.Outbound {
	cur, ok := o.Lobby.Get(id)
	if !ok || cur != rs {
		log.Debug().Str("module", "orch").Str("room", string(id)).Msg("safety net fired for a deleted room")
		return nil
	}
	rs.SafetyNet = nil
	members := app.MemberIDs(rs)
	o.Lobby.Delete(id)
	for _, m := range members {
		o.Registry.ClearRoom(m, id)
	}
	log.Info().Str("module", "orch").Str("room", string(id)).Msg("room deleted after game")
	return []core.Outbound{
		core.ToConns(members, core.EvGameEnded, id),
		o.roomList(),
	}
}

func (o *Orchestrator) handleLeaveRoom(cmd core.Command) ([]core.Outbound, error) {
	ref, err := decodeRoomRef(cmd.Data)
	if err != nil {
		return nil, err
	}
	return o.depart(o.resolveRoom(cmd.From, ref), cmd.From), nil
}

func (o *Orchestrator) handleKickPlayer(cmd core.Command) ([]core.Outbound, error) {
	var p kickPayload
	if err := decode(cmd.Data, &p); err != nil {
		return nil, err
	}
	id := o.resolveRoom(cmd.From, p.RoomID)
	d, err := o.Lobby.Kick(id, p.PlayerIDToKick, cmd.From)
	if err != nil {
		return []core.Outbound{core.ToConn(cmd.From, core.EvKickPlayerError, domain.Reason(err))}, nil
	}
	o.Registry.ClearRoom(p.PlayerIDToKick, id)
	out := []core.Outbound{core.ToConn(p.PlayerIDToKick, core.EvYouWereKicked, id)}
	return append(out, o.departureEvents(d)...), nil
}

// depart removes conn from the room, runs host succession, and returns
// what the remaining members and the lobby list need to hear.
func (o *Orchestrator) depart(id domain.RoomID, conn domain.ConnID) []core.Outbound {
	if id == "" {
		return nil
	}
	d := o.Lobby.Leave(id, conn)
	if !d.Removed {
		return nil
	}
	o.Registry.ClearRoom(conn, id)
	return o.departureEvents(d)
}

func (o *Orchestrator) departureEvents(d app.Departure) []core.Outbound {
	if d.Deleted {
		return []core.Outbound{o.roomList()}
	}
	return []core.Outbound{o.roomUpdate(d.Room), o.roomList()}
}

func (o *Orchestrator) handlePing(cmd core.Command) ([]core.Outbound, error) {
	return []core.Outbound{core.ToConn(cmd.From, core.EvPong, nil)}, nil
}

func (o *Orchestrator) handleWhoAmI(cmd core.Command) ([]core.Outbound, error) {
	resp := whoamiPayload{ID: cmd.From}
	if id, ok := o.Registry.RoomOf(cmd.From); ok {
		resp.RoomID = id
	}
	if b, ok := o.Registry.GameOf(cmd.From); ok {
		resp.Game = &b
	}
	return []core.Outbound{core.ToConn(cmd.From, core.EvWhoAmI, resp)}, nil
}
