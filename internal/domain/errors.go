package domain

import "errors"

// Rejection is a client-actionable refusal. It never implies a state change.
type Rejection struct {
	Code   string
	Reason string
}

func (r *Rejection) Error() string { return r.Code }

var (
	ErrRoomNotFound      = &Rejection{Code: "room_not_found", Reason: "Room not found."}
	ErrIncorrectPassword = &Rejection{Code: "incorrect_password", Reason: "Incorrect password."}
	ErrRoomFull          = &Rejection{Code: "room_full", Reason: "Room is full."}
	ErrAlreadyInRoom     = &Rejection{Code: "already_in_room", Reason: "You are already in this room."}
	ErrNotInRoom         = &Rejection{Code: "not_in_room", Reason: "Player is not in this room."}

	ErrNotHostSettings = &Rejection{Code: "not_host", Reason: "Only the host can update room settings."}
	ErrNotHostKick     = &Rejection{Code: "not_host", Reason: "Only the host can kick players."}
	ErrNotHostStart    = &Rejection{Code: "not_host", Reason: "Only the host can start the game."}

	ErrNotEnoughPlayers = &Rejection{Code: "not_enough_players", Reason: "Not all players are ready or no players in room. (need at least 2 players)"}
	ErrNotAllReady      = &Rejection{Code: "not_all_ready", Reason: "Not all players are ready or no players in room. (waiting for players to ready up)"}
	ErrAlreadyStarting  = &Rejection{Code: "already_starting", Reason: "The game is already starting."}
)

// IsNotHost matches any of the host-only rejections.
func IsNotHost(err error) bool {
	var r *Rejection
	return errors.As(err, &r) && r.Code == "not_host"
}

// Reason returns the client-facing text for err.
func Reason(err error) string {
	var r *Rejection
	if errors.As(err, &r) {
		return r.Reason
	}
	return "Unexpected error."
}
