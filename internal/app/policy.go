package app

import (
	"github.com/dkeye/Lobby/internal/core"
	"github.com/dkeye/Lobby/internal/domain"
)

type BackpressureAction int

const (
	NoAction BackpressureAction = iota
	DropFrame
	Disconnect
)

// Policy decides what happens to a connection whose send buffer is full.
type Policy interface {
	OnBackPressure(conn domain.ConnID, event string) BackpressureAction
}

// SimplePolicy drops relay traffic for slow clients but disconnects them
// when they miss lobby state, since a missed roomUpdate is never resent.
type SimplePolicy struct{}

func (SimplePolicy) OnBackPressure(_ domain.ConnID, event string) BackpressureAction {
	if event == core.EvCarUpdate {
		return DropFrame
	}
	return Disconnect
}

// UpdatePolicy gates client-reported car transforms before they are stored
// and relayed. The server does not validate physics; this is the hook for
// doing so.
type UpdatePolicy interface {
	AcceptCarUpdate(conn domain.ConnID, p *Player, u CarUpdate) bool
	Forget(conn domain.ConnID)
}

// TrustClientPolicy accepts every transform, subject only to a per
// connection rate limit.
type TrustClientPolicy struct {
	Limiter *RateLimiter
}

func (t TrustClientPolicy) AcceptCarUpdate(conn domain.ConnID, _ *Player, _ CarUpdate) bool {
	if t.Limiter == nil {
		return true
	}
	return t.Limiter.Allow(conn)
}

func (t TrustClientPolicy) Forget(conn domain.ConnID) {
	if t.Limiter != nil {
		t.Limiter.Forget(conn)
	}
}
