package domain

import "strings"

const (
	MaxNicknameLen    = 20
	DefaultNickname   = "Player"
	DefaultProfilePic = "/assets/default_Profile.png"
)

// Member is one connection's participation in a room.
type Member struct {
	ID         ConnID
	Nickname   string
	IsReady    bool
	IsHost     bool
	ProfilePic string
}

// NewMember avoids raw literals in the lobby and keeps construction obvious.
func NewMember(id ConnID, nickname string, host bool) *Member {
	return &Member{
		ID:         id,
		Nickname:   NormalizeNickname(nickname),
		IsHost:     host,
		ProfilePic: DefaultProfilePic,
	}
}

// NormalizeNickname trims, caps the length and substitutes a default.
// Nicknames are presentation only and need not be unique.
func NormalizeNickname(nickname string) string {
	nickname = strings.TrimSpace(nickname)
	if nickname == "" {
		return DefaultNickname
	}
	if r := []rune(nickname); len(r) > MaxNicknameLen {
		nickname = string(r[:MaxNicknameLen])
	}
	return nickname
}
