package core

import (
	"github.com/looplab/fsm"

	"github.com/dkeye/Lobby/internal/domain"
)

// RoomState is what the store keeps per room: the entity plus the
// bookkeeping the lifecycle needs.
type RoomState struct {
	Room  *domain.Room
	Seq   uint64
	Phase *fsm.FSM
	// SafetyNet is the pending forced-deletion task once the game is starting.
	SafetyNet Task
}

// RoomStore is the authoritative room table. Implementations must be safe
// for concurrent use; callers serialize multi-step mutations themselves.
type RoomStore interface {
	Get(id domain.RoomID) (*RoomState, bool)
	Put(rs *RoomState)
	Delete(id domain.RoomID)
	// List returns rooms in creation order.
	List() []*RoomState
	Len() int
}

// MemberDTO is a read-only view for APIs (no transport fields).
type MemberDTO struct {
	ID         domain.ConnID `json:"id"`
	Nickname   string        `json:"nickname"`
	IsReady    bool          `json:"isReady"`
	IsHost     bool          `json:"isHost"`
	ProfilePic string        `json:"profilePic"`
}

// RoomDTO is the room shape sent to clients. The password never leaves
// the server.
type RoomDTO struct {
	ID         domain.RoomID `json:"id"`
	Title      string        `json:"title"`
	HostID     domain.ConnID `json:"hostId"`
	Players    []MemberDTO   `json:"players"`
	MaxPlayers int           `json:"maxPlayers"`
	IsPrivate  bool          `json:"isPrivate"`
	Mode       domain.Mode   `json:"mode"`
	Track      string        `json:"track"`
	Status     string        `json:"status"`
}

type PlayerDTO struct {
	PlayerID   domain.PlayerID `json:"playerId"`
	Nickname   string          `json:"nickname"`
	Position   domain.Vec3     `json:"position"`
	Quaternion domain.Quat     `json:"quaternion"`
	Velocity   domain.Vec3     `json:"velocity"`
	Color      int             `json:"color"`
}
