package internal

import (
	"sync"

	"github.com/google/uuid"

	"github.com/fazecat/vwapsim/Internal/backtest"
)

// RunStore keeps finished runs in memory, in submission order.
type RunStore struct {
	mu    sync.RWMutex
	runs  map[uuid.UUID]*backtest.Result
	order []uuid.UUID
	limit int
}

// NewRunStore keeps at most limit runs, evicting the oldest. limit <= 0 keeps everything.
func NewRunStore(limit int) *RunStore {
	return &RunStore{runs: make(map[uuid.UUID]*backtest.Result), limit: limit}
}

func (s *RunStore) Put(res *backtest.Result) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.runs[res.RunID]; !exists {
		s.order = append(s.order, res.RunID)
	}
	s.runs[res.RunID] = res
	for s.limit > 0 && len(s.order) > s.limit {
		delete(s.runs, s.order[0])
		s.order = s.order[1:]
	}
}

func (s *RunStore) Get(id uuid.UUID) (*backtest.Result, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	res, ok := s.runs[id]
	return res, ok
}

// List returns runs newest first, optionally filtered by symbol.
func (s *RunStore) List(symbol string) []*backtest.Result {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*backtest.Result, 0, len(s.order))
	for i := len(s.order) - 1; i >= 0; i-- {
		res := s.runs[s.order[i]]
		if symbol == "" || res.Symbol == symbol {
			out = append(out, res)
		}
	}
	return out
}

func (s *RunStore) Delete(id uuid.UUID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.runs[id]; !ok {
		return false
	}
	delete(s.runs, id)
	for i, existing := range s.order {
		if existing == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return true
}
