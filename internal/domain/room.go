// Package domain contains lobby entities and their normalization rules.
// No transport or scheduling logic here.
package domain

import (
	"fmt"
	"unicode/utf8"
)

type (
	RoomID string
	// ConnID identifies one live transport connection.
	ConnID string
	Mode   string
)

const (
	ModePersonal Mode = "personal"
	ModeTeam     Mode = "team"
)

const (
	MaxTitleLen       = 20
	DefaultTitle      = "My Room"
	TrackUnselected   = "unselected"
	DefaultMaxPlayers = 8
)

// Settings is the host-editable part of a room.
type Settings struct {
	Title      string
	MaxPlayers int
	IsPrivate  bool
	Password   string
	Mode       Mode
	Track      string
}

// Room is a lobby entity. Members keep join order; index 0 is the next host.
type Room struct {
	ID      RoomID
	HostID  ConnID
	Members []*Member
	Settings
}

// TruncateTitle cuts a title to MaxTitleLen characters, not bytes.
func TruncateTitle(title string) string {
	if utf8.RuneCountInString(title) <= MaxTitleLen {
		return title
	}
	return string([]rune(title)[:MaxTitleLen])
}

// ParseMode falls back to personal for anything it does not know.
func ParseMode(s string) Mode {
	if Mode(s) == ModeTeam {
		return ModeTeam
	}
	return ModePersonal
}

// Normalize coerces settings into a valid shape instead of rejecting them.
// maxPlayers <= 0 becomes defaultMax, anything above limit becomes limit.
func (s Settings) Normalize(defaultMax, limit int) Settings {
	s.Title = TruncateTitle(s.Title)
	if s.Title == "" {
		s.Title = DefaultTitle
	}
	if defaultMax <= 0 {
		defaultMax = DefaultMaxPlayers
	}
	if s.MaxPlayers <= 0 {
		s.MaxPlayers = defaultMax
	}
	if limit > 0 && s.MaxPlayers > limit {
		s.MaxPlayers = limit
	}
	s.Mode = ParseMode(string(s.Mode))
	if s.Track == "" {
		s.Track = TrackUnselected
	}
	// password is required iff private
	if s.IsPrivate && s.Password == "" {
		s.IsPrivate = false
	}
	if !s.IsPrivate {
		s.Password = ""
	}
	return s
}

func (r *Room) IndexOf(id ConnID) int {
	for i, m := range r.Members {
		if m.ID == id {
			return i
		}
	}
	return -1
}

func (r *Room) Member(id ConnID) (*Member, bool) {
	if i := r.IndexOf(id); i >= 0 {
		return r.Members[i], true
	}
	return nil, false
}

func (r *Room) IsFull() bool { return len(r.Members) >= r.MaxPlayers }

// CheckPassword is true for public rooms and exact matches on private ones.
func (r *Room) CheckPassword(password string) bool {
	return !r.IsPrivate || r.Password == password
}

// AllGuestsReady reports whether every non-host member is ready.
func (r *Room) AllGuestsReady() bool {
	for _, m := range r.Members {
		if !m.IsHost && !m.IsReady {
			return false
		}
	}
	return true
}

// Validate checks the membership invariants: 1..MaxPlayers members and
// exactly one host, equal to HostID.
func (r *Room) Validate() error {
	if n := len(r.Members); n < 1 || n > r.MaxPlayers {
		return fmt.Errorf("room %s: %d members, capacity %d", r.ID, n, r.MaxPlayers)
	}
	hosts := 0
	for _, m := range r.Members {
		if m.IsHost {
			hosts++
			if m.ID != r.HostID {
				return fmt.Errorf("room %s: member %s flagged host, hostId is %s", r.ID, m.ID, r.HostID)
			}
		}
	}
	if hosts != 1 {
		return fmt.Errorf("room %s: %d hosts", r.ID, hosts)
	}
	return nil
}
