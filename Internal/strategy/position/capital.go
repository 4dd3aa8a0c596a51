package position

import (
	"github.com/shopspring/decimal"
)

// Capital is the equity ledger for one symbol run. The orchestrator creates
// one per symbol and hands it to that symbol's accountant, nothing else writes it.
type Capital struct {
	initial decimal.Decimal
	equity  decimal.Decimal
	updates int
}

func NewCapital(initial decimal.Decimal) *Capital {
	return &Capital{initial: initial, equity: initial}
}

func (c *Capital) Initial() decimal.Decimal { return c.initial }

func (c *Capital) Equity() decimal.Decimal { return c.equity }

// Updates counts realized P&L applications, one per closed position.
func (c *Capital) Updates() int { return c.updates }

func (c *Capital) apply(pnl decimal.Decimal) decimal.Decimal {
	c.equity = c.equity.Add(pnl)
	c.updates++
	return c.equity
}
