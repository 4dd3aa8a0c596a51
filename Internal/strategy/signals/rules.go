package signals

import (
	"github.com/fazecat/vwapsim/Internal/strategy/position"
	"github.com/fazecat/vwapsim/Internal/types"
)

// Rules are the entry/exit predicates the session state machine consults.
// The state machine owns sequencing; implementations only answer yes/no.
type Rules interface {
	// ShouldEnter returns the direction to open, or false to stay flat.
	ShouldEnter(bar types.Bar, vwap float64) (types.Direction, bool)
	// ShouldExit returns the exit reason for an open position, or false to hold.
	ShouldExit(pos *position.Position, bar types.Bar, vwap float64) (types.ExitReason, bool)
}

// VWAPBreakout goes with the side of VWAP the entry bar closes on and
// stops out on the first close back through VWAP. Equality is never a signal.
type VWAPBreakout struct{}

func (VWAPBreakout) ShouldEnter(bar types.Bar, vwap float64) (types.Direction, bool) {
	switch {
	case bar.Close > vwap:
		return types.DirectionLong, true
	case bar.Close < vwap:
		return types.DirectionShort, true
	}
	return types.DirectionNone, false
}

func (VWAPBreakout) ShouldExit(pos *position.Position, bar types.Bar, vwap float64) (types.ExitReason, bool) {
	if pos == nil {
		return "", false
	}
	switch pos.Direction {
	case types.DirectionLong:
		if bar.Close < vwap {
			return types.ExitStop, true
		}
	case types.DirectionShort:
		if bar.Close > vwap {
			return types.ExitStop, true
		}
	}
	return "", false
}
