package app

import (
	"github.com/looplab/fsm"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Lobby/internal/core"
	"github.com/dkeye/Lobby/internal/domain"
)

// Stored room phases. Open and full are both PhaseOpen; fullness is derived.
const (
	PhaseOpen     = "open"
	PhaseStarting = "starting"
	PhaseDeleted  = "deleted"

	StatusFull = "full"
)

const (
	evRoomStart  = "start"
	evRoomDelete = "delete"
)

func newRoomPhase(id domain.RoomID) *fsm.FSM {
	return fsm.NewFSM(
		PhaseOpen,
		fsm.Events{
			{Name: evRoomStart, Src: []string{PhaseOpen}, Dst: PhaseStarting},
			{Name: evRoomDelete, Src: []string{PhaseOpen, PhaseStarting}, Dst: PhaseDeleted},
		},
		fsm.Callbacks{
			"enter_state": func(e *fsm.Event) {
				log.Debug().Str("module", "app.lifecycle").Str("room", string(id)).Str("from", e.Src).Str("to", e.Dst).Msg("room phase")
			},
		},
	)
}

// Status is the phase as clients see it: open, full or starting.
func Status(rs *core.RoomState) string {
	if rs.Phase.Is(PhaseStarting) {
		return PhaseStarting
	}
	if rs.Room.IsFull() {
		return StatusFull
	}
	return PhaseOpen
}

// StartGame moves the room into PhaseStarting. Every refusal names the
// reason so the client can act on it.
func (l *Lobby) StartGame(id domain.RoomID, requester domain.ConnID) (*core.RoomState, error) {
	rs, ok := l.store.Get(id)
	if !ok {
		return nil, domain.ErrRoomNotFound
	}
	r := rs.Room
	switch {
	case r.HostID != requester:
		return nil, domain.ErrNotHostStart
	case rs.Phase.Is(PhaseStarting):
		return nil, domain.ErrAlreadyStarting
	case len(r.Members) <= 1:
		return nil, domain.ErrNotEnoughPlayers
	case !r.AllGuestsReady():
		return nil, domain.ErrNotAllReady
	}
	if err := rs.Phase.Event(evRoomStart); err != nil {
		return nil, err
	}
	log.Info().Str("module", "app.lifecycle").Str("room", string(id)).Int("members", len(r.Members)).Msg("game starting")
	return rs, nil
}
