package orch

import (
	"encoding/json"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/Lobby/internal/app"
	"github.com/dkeye/Lobby/internal/core"
	"github.com/dkeye/Lobby/internal/domain"
)

type wireEvent struct {
	Type string `json:"type"`
	Data any    `json:"data,omitempty"`
}

// Encode renders one server event as a wire frame.
func Encode(event string, data any) (core.Frame, error) {
	return json.Marshal(wireEvent{Type: event, Data: data})
}

// deliver fans each event out to its recipients. Sends never block; a full
// buffer is handed to the backpressure policy.
func (o *Orchestrator) deliver(out []core.Outbound) {
	for _, ev := range out {
		frame, err := Encode(ev.Event, ev.Data)
		if err != nil {
			log.Error().Err(err).Str("module", "orch").Str("event", ev.Event).Msg("encode event")
			continue
		}
		recipients := ev.To.Conns
		if ev.To.All {
			recipients = o.Registry.All()
		}
		sent := 0
		for _, id := range recipients {
			if o.send(id, ev.Event, frame) {
				sent++
			}
		}
		log.Debug().Str("module", "orch").Str("event", ev.Event).Int("recipients", len(recipients)).Int("sent_to", sent).Msg("broadcast result")
	}
}

func (o *Orchestrator) send(id domain.ConnID, event string, frame core.Frame) bool {
	sig, ok := o.Registry.Signal(id)
	if !ok {
		return false
	}
	if err := sig.TrySend(frame); err != nil {
		switch o.Policy.OnBackPressure(id, event) {
		case app.Disconnect:
			log.Warn().Err(err).Str("module", "orch").Str("sid", string(id)).Str("event", event).Msg("slow consumer, closing")
			sig.Close()
			o.Registry.Cancel(id)
		case app.DropFrame, app.NoAction:
			log.Debug().Err(err).Str("module", "orch").Str("sid", string(id)).Str("event", event).Msg("frame dropped")
		}
		return false
	}
	return true
}

func (o *Orchestrator) roomList() core.Outbound {
	return core.ToAll(core.EvRoomListUpdate, o.Lobby.Views())
}

func (o *Orchestrator) roomUpdate(rs *core.RoomState) core.Outbound {
	return core.ToConns(app.MemberIDs(rs), core.EvRoomUpdate, app.RoomView(rs))
}
