package indicators

import (
	"fmt"
	"strings"

	"github.com/fazecat/vwapsim/Internal/types"
)

// PriceProxy selects the per-bar price that gets weighted by volume.
type PriceProxy string

const (
	ProxyTypical PriceProxy = "typical" // (H+L+C)/3
	ProxyClose   PriceProxy = "close"
	ProxyHLCC4   PriceProxy = "hlcc4" // (H+L+C+C)/4
)

func ParsePriceProxy(s string) (PriceProxy, error) {
	switch PriceProxy(strings.ToLower(strings.TrimSpace(s))) {
	case "", ProxyTypical:
		return ProxyTypical, nil
	case ProxyClose:
		return ProxyClose, nil
	case ProxyHLCC4:
		return ProxyHLCC4, nil
	}
	return "", fmt.Errorf("unknown price proxy %q", s)
}

func (p PriceProxy) Price(bar types.Bar) float64 {
	switch p {
	case ProxyClose:
		return bar.Close
	case ProxyHLCC4:
		return (bar.High + bar.Low + bar.Close + bar.Close) / 4.0
	default:
		return (bar.High + bar.Low + bar.Close) / 3.0
	}
}

// VWAP is a session-anchored running volume-weighted average price.
// StartSession must be called at each session boundary; it is never reset implicitly.
type VWAP struct {
	proxy     PriceProxy
	sumPV     float64
	sumVolume int64
	bars      int
}

func NewVWAP(proxy PriceProxy) *VWAP {
	if proxy == "" {
		proxy = ProxyTypical
	}
	return &VWAP{proxy: proxy}
}

func (v *VWAP) StartSession() {
	v.sumPV = 0
	v.sumVolume = 0
	v.bars = 0
}

// Update folds one bar into the running sums and returns the VWAP including it.
// While no volume has traded the bar's own proxy price stands in for the VWAP,
// so a zero-volume opening print does not abort the session.
func (v *VWAP) Update(bar types.Bar) float64 {
	price := v.proxy.Price(bar)
	v.sumPV += price * float64(bar.Volume)
	v.sumVolume += bar.Volume
	v.bars++

	value, err := v.Value()
	if err != nil {
		return price
	}
	return value
}

// Value returns the VWAP as of the last update, or ErrZeroVolume.
func (v *VWAP) Value() (float64, error) {
	if v.sumVolume == 0 {
		return 0, types.ErrZeroVolume
	}
	return v.sumPV / float64(v.sumVolume), nil
}

func (v *VWAP) CumulativeVolume() int64 { return v.sumVolume }

func (v *VWAP) Bars() int { return v.bars }

func (v *VWAP) Proxy() PriceProxy { return v.proxy }
