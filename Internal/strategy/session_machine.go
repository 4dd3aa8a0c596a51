package strategy

import (
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/fazecat/vwapsim/Internal/strategy/position"
	"github.com/fazecat/vwapsim/Internal/strategy/signals"
	"github.com/fazecat/vwapsim/Internal/types"
)

type State int

const (
	StateFlat State = iota
	StateLong
	StateShort
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateFlat:
		return "flat"
	case StateLong:
		return "long"
	case StateShort:
		return "short"
	case StateClosed:
		return "closed"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// MachineConfig places the entry instant and the expected bar cadence.
type MachineConfig struct {
	SessionOpen time.Duration // offset from local midnight, 9h30m for US equities
	EntryOffset time.Duration // entry instant = session open + offset
	Cadence     time.Duration // expected spacing between bars
}

func DefaultMachineConfig() MachineConfig {
	return MachineConfig{
		SessionOpen: 9*time.Hour + 30*time.Minute,
		EntryOffset: time.Minute,
		Cadence:     time.Minute,
	}
}

// SessionReport is what one session produced.
type SessionReport struct {
	Symbol     string       `json:"symbol"`
	Date       string       `json:"date"`
	Bars       int          `json:"bars"`
	FinalState State        `json:"final_state"`
	Trade      *types.Trade `json:"trade,omitempty"`
	Skipped    bool         `json:"skipped"`
	SkipReason string       `json:"skip_reason,omitempty"`
	Warnings   []string     `json:"warnings,omitempty"`
}

// Machine runs the flat -> in-position -> closed lifecycle for one symbol,
// one session at a time. Bars must arrive in timestamp order.
type Machine struct {
	symbol string
	rules  signals.Rules
	acct   *position.Accountant
	cfg    MachineConfig
	logger *zap.Logger

	active    bool
	state     State
	pos       *position.Position
	entryAt   time.Time
	entryDone bool
	lastBar   types.Bar
	lastVWAP  float64
	report    SessionReport
}

func NewMachine(symbol string, rules signals.Rules, acct *position.Accountant, cfg MachineConfig, logger *zap.Logger) *Machine {
	if rules == nil {
		rules = signals.VWAPBreakout{}
	}
	if cfg.Cadence <= 0 {
		cfg.Cadence = time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Machine{
		symbol: symbol,
		rules:  rules,
		acct:   acct,
		cfg:    cfg,
		logger: logger.With(zap.String("symbol", symbol)),
	}
}

func (m *Machine) State() State { return m.state }

// EntryInstant is the only bar time at which the current session may open a position.
func (m *Machine) EntryInstant() time.Time { return m.entryAt }

// StartSession opens a new session for the calendar date of day.
func (m *Machine) StartSession(day time.Time) error {
	if m.active {
		return &types.StateError{State: m.state.String(), Event: "start session while a session is active"}
	}
	if m.state == StateLong || m.state == StateShort {
		return &types.StateError{State: m.state.String(), Event: "start session with an open position"}
	}

	y, mo, d := day.Date()
	midnight := time.Date(y, mo, d, 0, 0, 0, 0, day.Location())

	m.active = true
	m.state = StateFlat
	m.pos = nil
	m.entryAt = midnight.Add(m.cfg.SessionOpen + m.cfg.EntryOffset)
	m.entryDone = false
	m.lastBar = types.Bar{}
	m.lastVWAP = 0
	m.report = SessionReport{
		Symbol:     m.symbol,
		Date:       types.SessionDate(midnight),
		FinalState: StateFlat,
	}
	return nil
}

// OnBar evaluates one bar: exit first, then entry.
func (m *Machine) OnBar(bar types.Bar, vwap float64) error {
	if !m.active {
		return &types.StateError{State: m.state.String(), Event: "bar outside a session"}
	}
	if m.report.Bars > 0 {
		if !bar.Timestamp.After(m.lastBar.Timestamp) {
			return &types.StateError{State: m.state.String(), Event: "bar out of timestamp order"}
		}
		if gap := bar.Timestamp.Sub(m.lastBar.Timestamp); gap > m.cfg.Cadence {
			m.warn(fmt.Sprintf("gap of %s between %s and %s",
				gap, m.lastBar.Timestamp.Format("15:04"), bar.Timestamp.Format("15:04")))
		}
	}

	if err := m.evaluateExit(bar, vwap); err != nil {
		return err
	}
	if err := m.evaluateEntry(bar, vwap); err != nil {
		return err
	}

	m.lastBar = bar
	m.lastVWAP = vwap
	m.report.Bars++
	return nil
}

func (m *Machine) evaluateExit(bar types.Bar, vwap float64) error {
	if m.state != StateLong && m.state != StateShort {
		return nil
	}
	reason, ok := m.rules.ShouldExit(m.pos, bar, vwap)
	if !ok {
		return nil
	}
	return m.exit(bar, vwap, reason)
}

func (m *Machine) evaluateEntry(bar types.Bar, vwap float64) error {
	if m.state != StateFlat || m.entryDone {
		return nil
	}
	if bar.Timestamp.Before(m.entryAt) {
		return nil
	}
	m.entryDone = true

	if bar.Timestamp.After(m.entryAt) {
		m.warn(fmt.Sprintf("no bar at entry instant %s; entry voided", m.entryAt.Format("15:04")))
		return nil
	}

	dir, ok := m.rules.ShouldEnter(bar, vwap)
	if !ok {
		m.logger.Debug("no entry signal", zap.Float64("close", bar.Close), zap.Float64("vwap", vwap))
		return nil
	}
	return m.enter(dir, bar, vwap)
}

func (m *Machine) enter(dir types.Direction, bar types.Bar, vwap float64) error {
	if m.state != StateFlat || m.pos != nil {
		return &types.StateError{State: m.state.String(), Event: "entry"}
	}
	pos, err := m.acct.Open(dir, bar, vwap)
	if errors.Is(err, types.ErrInsufficientCapital) {
		m.report.Skipped = true
		m.report.SkipReason = err.Error()
		m.logger.Warn("session skipped", zap.String("date", m.report.Date), zap.Error(err))
		return nil
	}
	if err != nil {
		return err
	}

	m.pos = pos
	if dir == types.DirectionLong {
		m.state = StateLong
	} else {
		m.state = StateShort
	}
	return nil
}

func (m *Machine) exit(bar types.Bar, vwap float64, reason types.ExitReason) error {
	if m.pos == nil {
		return &types.StateError{State: m.state.String(), Event: "exit without a position"}
	}
	trade, err := m.acct.Close(m.pos, bar, vwap, reason)
	if err != nil {
		return err
	}
	m.pos = nil
	m.state = StateClosed
	m.report.Trade = &trade
	return nil
}

// EndSession finalizes the session, liquidating any open position at the
// last bar's close.
func (m *Machine) EndSession() (SessionReport, error) {
	if !m.active {
		return SessionReport{}, &types.StateError{State: m.state.String(), Event: "end session without a session"}
	}
	if m.state == StateLong || m.state == StateShort {
		if err := m.exit(m.lastBar, m.lastVWAP, types.ExitCloseOfDay); err != nil {
			return SessionReport{}, err
		}
	}
	if !m.entryDone && m.report.Bars > 0 {
		m.warn(fmt.Sprintf("session ended before entry instant %s", m.entryAt.Format("15:04")))
	}

	m.active = false
	m.report.FinalState = m.state
	report := m.report
	m.report = SessionReport{}
	return report, nil
}

func (m *Machine) warn(msg string) {
	m.report.Warnings = append(m.report.Warnings, msg)
	m.logger.Warn("data quality", zap.String("date", m.report.Date), zap.String("detail", msg))
}
