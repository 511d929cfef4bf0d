package core

import (
	"encoding/json"

	"github.com/dkeye/Lobby/internal/domain"
)

// Client to server events.
const (
	EvCreateRoom         = "createRoom"
	EvUpdateRoomSettings = "updateRoomSettings"
	EvListRooms          = "listRooms"
	EvJoinRoom           = "joinRoom"
	EvReady              = "ready"
	EvStartGame          = "startGame"
	EvLeaveRoom          = "leaveRoom"
	EvKickPlayer         = "kickPlayer"
	EvJoinGame           = "joinGame"
	EvCarUpdate          = "carUpdate"
	EvPing               = "ping"
	EvWhoAmI             = "whoami"
)

// Server to client events.
const (
	EvRoomUpdate              = "roomUpdate"
	EvRoomListUpdate          = "roomListUpdate"
	EvRoomCreated             = "roomCreated"
	EvRoomJoined              = "roomJoined"
	EvJoinRoomError           = "joinRoomError"
	EvUpdateRoomSettingsError = "updateRoomSettingsError"
	EvStartGameError          = "startGameError"
	EvKickPlayerError         = "kickPlayerError"
	EvYouWereKicked           = "youWereKicked"
	EvGameStarting            = "gameStarting"
	EvGameEnded               = "gameEnded"
	EvStartCountdown          = "startCountdown"
	EvGameStart               = "gameStart"
	EvExistingPlayers         = "existingPlayers"
	EvNewPlayer               = "newPlayer"
	EvPlayerLeft              = "playerLeft"
	EvPong                    = "pong"
	EvError                   = "error"
)

// Envelope is the wire frame in both directions.
type Envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// Command is one decoded inbound event.
type Command struct {
	From domain.ConnID
	Type string
	Data json.RawMessage
}

// Target names the recipients of an outbound event. Recipient lists are
// resolved when the event is produced, not when it is delivered.
type Target struct {
	All   bool
	Conns []domain.ConnID
}

// Outbound is one event a handler wants delivered.
type Outbound struct {
	To    Target
	Event string
	Data  any
}

func ToConn(id domain.ConnID, event string, data any) Outbound {
	return Outbound{To: Target{Conns: []domain.ConnID{id}}, Event: event, Data: data}
}

func ToConns(ids []domain.ConnID, event string, data any) Outbound {
	return Outbound{To: Target{Conns: ids}, Event: event, Data: data}
}

func ToAll(event string, data any) Outbound {
	return Outbound{To: Target{All: true}, Event: event, Data: data}
}
