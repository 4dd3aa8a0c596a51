package detection

import (
	"testing"
	"time"

	"github.com/fazecat/vwapsim/Internal/types"
)

func closes(cs ...float64) []types.Bar {
	bars := make([]types.Bar, len(cs))
	for i, c := range cs {
		bars[i] = types.Bar{
			Timestamp: time.Date(2024, 3, 4, 9, 30+i, 0, 0, time.UTC),
			Open:      c, High: c, Low: c, Close: c, Volume: 100,
		}
	}
	return bars
}

func TestClassifySession(t *testing.T) {
	bars := closes(101, 99, 100, 102)
	vwaps := []float64{100, 100, 100, 100}

	labels := ClassifySession(bars, vwaps)
	want := []Bias{BiasNone, BiasAbove, BiasBelow, BiasNeutral}
	if len(labels) != len(want) {
		t.Fatalf("got %d labels, want %d", len(labels), len(want))
	}
	for i := range want {
		if labels[i] != want[i] {
			t.Errorf("label[%d] = %q, want %q", i, labels[i], want[i])
		}
	}
}

func TestClassifySession_Empty(t *testing.T) {
	if got := ClassifySession(nil, nil); len(got) != 0 {
		t.Errorf("expected no labels, got %v", got)
	}
}

func TestSummarizeImbalance(t *testing.T) {
	labels := []Bias{BiasNone, BiasAbove, BiasAbove, BiasAbove, BiasBelow}
	im := SummarizeImbalance("2024-03-04", labels)

	if im.Above != 3 || im.Below != 1 || im.Neutral != 0 {
		t.Fatalf("counts = %+v", im)
	}
	if im.AbovePct != 75 || im.BelowPct != 25 {
		t.Errorf("pcts = %.2f/%.2f, want 75/25", im.AbovePct, im.BelowPct)
	}
	if im.Imbalance != 50 {
		t.Errorf("imbalance = %.2f, want 50", im.Imbalance)
	}
}
