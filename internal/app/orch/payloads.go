package orch

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/dkeye/Lobby/internal/app"
	"github.com/dkeye/Lobby/internal/core"
	"github.com/dkeye/Lobby/internal/domain"
)

type createRoomPayload struct {
	RoomTitle  string  `json:"roomTitle"`
	MaxPlayers flexInt `json:"maxPlayers"`
	IsPrivate  bool    `json:"isPrivate"`
	Password   string  `json:"password"`
	Mode       string  `json:"mode"`
	Track      string  `json:"track"`
	Nickname   string  `json:"nickname"`
}

type updateSettingsPayload struct {
	RoomID    domain.RoomID `json:"roomId"`
	RoomTitle string        `json:"roomTitle"`
	IsPrivate bool          `json:"isPrivate"`
	Password  string        `json:"password"`
	Mode      string        `json:"mode"`
	Track     string        `json:"track"`
}

type joinRoomPayload struct {
	RoomID   domain.RoomID `json:"roomId"`
	Password string        `json:"password"`
	Nickname string        `json:"nickname"`
}

type readyPayload struct {
	RoomID  domain.RoomID `json:"roomId"`
	IsReady bool          `json:"isReady"`
}

type kickPayload struct {
	RoomID         domain.RoomID `json:"roomId"`
	PlayerIDToKick domain.ConnID `json:"playerIdToKick"`
}

type joinGamePayload struct {
	RoomID   domain.RoomID   `json:"roomId"`
	PlayerID domain.PlayerID `json:"playerId"`
	Nickname string          `json:"nickname"`
}

type carUpdatePayload struct {
	RoomID     domain.RoomID   `json:"roomId"`
	PlayerID   domain.PlayerID `json:"playerId"`
	Position   *domain.Vec3    `json:"position"`
	Quaternion *domain.Quat    `json:"quaternion"`
	Velocity   *domain.Vec3    `json:"velocity,omitempty"`
}

type roomEnvelope struct {
	RoomID domain.RoomID `json:"roomId"`
	Room   core.RoomDTO  `json:"room"`
}

type errorPayload struct {
	Error string `json:"error"`
}

type whoamiPayload struct {
	ID     domain.ConnID    `json:"id"`
	RoomID domain.RoomID    `json:"roomId,omitempty"`
	Game   *app.GameBinding `json:"game,omitempty"`
}

// flexInt accepts 8 as well as "8"; form inputs often arrive as strings.
type flexInt int

func (f *flexInt) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*f = 0
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		if s == "" {
			*f = 0
			return nil
		}
		n, err := strconv.Atoi(s)
		if err != nil {
			return fmt.Errorf("maxPlayers: %w", err)
		}
		*f = flexInt(n)
		return nil
	}
	var n float64
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*f = flexInt(int(n))
	return nil
}

// decode unmarshals data into v; an absent payload leaves v zeroed.
func decode(data json.RawMessage, v any) error {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	return json.Unmarshal(data, v)
}

// decodeRoomRef accepts either a bare room id string or {"roomId": ...}.
func decodeRoomRef(data json.RawMessage) (domain.RoomID, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return "", nil
	}
	if data[0] == '"' {
		var id string
		if err := json.Unmarshal(data, &id); err != nil {
			return "", err
		}
		return domain.RoomID(id), nil
	}
	var ref struct {
		RoomID domain.RoomID `json:"roomId"`
	}
	if err := json.Unmarshal(data, &ref); err != nil {
		return "", err
	}
	return ref.RoomID, nil
}
