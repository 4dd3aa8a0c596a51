package signals

import (
	"testing"

	"github.com/fazecat/vwapsim/Internal/strategy/position"
	"github.com/fazecat/vwapsim/Internal/types"
)

func TestVWAPBreakout_ShouldEnter(t *testing.T) {
	tests := []struct {
		name    string
		close   float64
		vwap    float64
		wantDir types.Direction
		wantOK  bool
	}{
		{"close above vwap goes long", 101, 100, types.DirectionLong, true},
		{"close below vwap goes short", 99, 100, types.DirectionShort, true},
		{"close equal to vwap stays flat", 100, 100, types.DirectionNone, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir, ok := VWAPBreakout{}.ShouldEnter(types.Bar{Close: tt.close}, tt.vwap)
			if dir != tt.wantDir || ok != tt.wantOK {
				t.Errorf("ShouldEnter() = %v, %v; want %v, %v", dir, ok, tt.wantDir, tt.wantOK)
			}
		})
	}
}

func TestVWAPBreakout_ShouldExit(t *testing.T) {
	long := &position.Position{Direction: types.DirectionLong, Open: true}
	short := &position.Position{Direction: types.DirectionShort, Open: true}

	tests := []struct {
		name   string
		pos    *position.Position
		close  float64
		vwap   float64
		wantOK bool
	}{
		{"long stops below vwap", long, 99, 100, true},
		{"long holds above vwap", long, 101, 100, false},
		{"long holds at vwap", long, 100, 100, false},
		{"short stops above vwap", short, 101, 100, true},
		{"short holds below vwap", short, 99, 100, false},
		{"short holds at vwap", short, 100, 100, false},
		{"no position never exits", nil, 50, 100, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reason, ok := VWAPBreakout{}.ShouldExit(tt.pos, types.Bar{Close: tt.close}, tt.vwap)
			if ok != tt.wantOK {
				t.Fatalf("ShouldExit() ok = %v, want %v", ok, tt.wantOK)
			}
			if ok && reason != types.ExitStop {
				t.Errorf("reason = %q, want %q", reason, types.ExitStop)
			}
		})
	}
}
