package detection

import "github.com/fazecat/vwapsim/Internal/types"

// Bias labels where the previous bar closed relative to its VWAP.
type Bias string

const (
	BiasNone    Bias = ""
	BiasAbove   Bias = "above"
	BiasBelow   Bias = "below"
	BiasNeutral Bias = "neutral"
)

// ClassifySession labels bar i from bar i-1's close against vwap[i-1].
// The first bar has no prior bar and stays BiasNone. The labels are an
// annotation only; nothing in the simulation reads them back.
func ClassifySession(bars []types.Bar, vwaps []float64) []Bias {
	n := len(bars)
	if len(vwaps) < n {
		n = len(vwaps)
	}
	labels := make([]Bias, n)
	for i := 1; i < n; i++ {
		prevClose := bars[i-1].Close
		prevVWAP := vwaps[i-1]
		switch {
		case prevClose > prevVWAP:
			labels[i] = BiasAbove
		case prevClose < prevVWAP:
			labels[i] = BiasBelow
		default:
			labels[i] = BiasNeutral
		}
	}
	return labels
}

// Imbalance summarizes a session's labels.
type Imbalance struct {
	Date      string  `json:"date"`
	Above     int     `json:"above"`
	Below     int     `json:"below"`
	Neutral   int     `json:"neutral"`
	AbovePct  float64 `json:"above_pct"`
	BelowPct  float64 `json:"below_pct"`
	Imbalance float64 `json:"imbalance"` // AbovePct - BelowPct
}

func SummarizeImbalance(date string, labels []Bias) Imbalance {
	im := Imbalance{Date: date}
	for _, l := range labels {
		switch l {
		case BiasAbove:
			im.Above++
		case BiasBelow:
			im.Below++
		case BiasNeutral:
			im.Neutral++
		}
	}
	total := im.Above + im.Below + im.Neutral
	if total > 0 {
		im.AbovePct = float64(im.Above) / float64(total) * 100
		im.BelowPct = float64(im.Below) / float64(total) * 100
		im.Imbalance = im.AbovePct - im.BelowPct
	}
	return im
}
