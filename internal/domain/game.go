package domain

import (
	"math"
	"time"
)

type PlayerID string

type Vec3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

type Quat struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
	W float64 `json:"w"`
}

var IdentityQuat = Quat{W: 1}

// CarPalette is indexed by spawn slot.
var CarPalette = []int{0xff0000, 0x00ff00, 0x0000ff, 0xffff00, 0xff00ff, 0x00ffff, 0xffffff, 0x808080}

const (
	SpawnSpacing = 8.0
	SpawnHeight  = 4.0
)

// PlayerState is the transient per-player state of a game session.
type PlayerState struct {
	ID         PlayerID
	Conn       ConnID
	Nickname   string
	Slot       int
	Position   Vec3
	Quaternion Quat
	Velocity   Vec3
	Color      int
	IsReady    bool
	LastUpdate time.Time
}

// SpawnPosition places slot on a grid sized for capacity players.
// The column count depends only on capacity, so distinct slots never share
// a grid cell.
func SpawnPosition(slot, capacity int) Vec3 {
	if capacity < 1 {
		capacity = 1
	}
	cols := int(math.Ceil(math.Sqrt(float64(capacity))))
	rows := int(math.Ceil(float64(capacity) / float64(cols)))
	row, col := slot/cols, slot%cols
	return Vec3{
		X: (float64(col) - float64(cols)/2) * SpawnSpacing,
		Y: SpawnHeight,
		Z: (float64(row) - float64(rows)/2) * SpawnSpacing,
	}
}

func PaletteColor(slot int) int {
	return CarPalette[slot%len(CarPalette)]
}
