package internal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fazecat/vwapsim/Internal/backtest"
	datafeed "github.com/fazecat/vwapsim/Internal/database"
	"github.com/fazecat/vwapsim/Internal/strategy/metrics"
	"github.com/fazecat/vwapsim/Internal/types"
)

// maxBodyBytes caps uploaded bar sets; 60 days of 1Min bars for a few symbols fits easily.
const maxBodyBytes = 64 << 20

type API struct {
	Runner     *backtest.Runner
	Store      *RunStore
	JWTManager *JWTManager
	// Source serves requests that name symbols without uploading bars. Optional.
	Source datafeed.BarSource
	// Persist stores every finished run in Postgres.
	Persist bool
	// History reads runs stored by earlier processes; Health checks the
	// store behind it. Both are optional.
	History func(ctx context.Context, symbol string, limit int) ([]datafeed.RunRecord, error)
	Health  func(ctx context.Context) error
	Logger  *zap.Logger
}

func NewRouter(api *API) http.Handler {
	if api.Logger == nil {
		api.Logger = zap.NewNop()
	}
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(RequestLogger(api.Logger))
	r.Use(CorsMiddleware)

	r.Get("/health", api.HandleHealth)

	r.Post("/api/token", api.HandleGenerateToken)

	r.Get("/api/backtest", api.HandleListBacktests)
	r.Get("/api/backtest/stats", api.HandleSymbolStats)
	r.Get("/api/backtest/{id}", api.HandleGetBacktest)
	r.Get("/api/backtest/{id}/trades", api.HandleGetBacktestTrades)
	r.Get("/api/backtest/{id}/equity", api.HandleGetBacktestEquity)

	r.Group(func(r chi.Router) {
		r.Use(JWTAuthMiddleware(api.JWTManager))
		r.Post("/api/backtest", api.HandleRunBacktest)
		r.Delete("/api/backtest/{id}", api.HandleDeleteBacktest)
	})
	return r
}

func (api *API) HandleHealth(w http.ResponseWriter, r *http.Request) {
	status := map[string]string{"status": "healthy", "database": "disabled"}
	if api.Health != nil {
		if err := api.Health(r.Context()); err != nil {
			api.Logger.Warn("database health check failed", zap.Error(err))
			WriteError(w, http.StatusServiceUnavailable, "database unavailable: "+err.Error())
			return
		}
		status["database"] = "ok"
	}
	WriteJSON(w, http.StatusOK, status)
}

type tokenRequest struct {
	UserID string `json:"user_id"`
	Email  string `json:"email"`
}

func (api *API) HandleGenerateToken(w http.ResponseWriter, r *http.Request) {
	var req tokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.UserID == "" {
		WriteError(w, http.StatusBadRequest, "user_id is required")
		return
	}
	token, expires, err := api.JWTManager.GenerateToken(req.UserID, req.Email)
	if err != nil {
		api.Logger.Error("token generation failed", zap.Error(err))
		WriteError(w, http.StatusInternalServerError, "Failed to generate token")
		return
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"token":      token,
		"expires_at": expires,
	})
}

// backtestRequest carries either uploaded bars per symbol or a list of
// symbols to fetch from the configured source.
type backtestRequest struct {
	Bars    map[string][]types.Bar `json:"bars"`
	Symbols []string               `json:"symbols"`
}

type runSummary struct {
	RunID       uuid.UUID       `json:"run_id"`
	Symbol      string          `json:"symbol"`
	Sessions    int             `json:"sessions"`
	Skipped     int             `json:"skipped"`
	FinalEquity string          `json:"final_equity"`
	Summary     metrics.Summary `json:"summary"`
	// Stored marks runs read back from the database; only headline figures are filled.
	Stored bool `json:"stored,omitempty"`
}

func summarize(res *backtest.Result) runSummary {
	return runSummary{
		RunID:       res.RunID,
		Symbol:      res.Symbol,
		Sessions:    len(res.Sessions),
		Skipped:     len(res.Skipped),
		FinalEquity: res.FinalEquity.StringFixed(2),
		Summary:     res.Report.Summary,
	}
}

func (api *API) HandleRunBacktest(w http.ResponseWriter, r *http.Request) {
	var req backtestRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		WriteError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	bars, err := normalizeUploads(req.Bars)
	if err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	if len(bars) == 0 {
		if len(req.Symbols) == 0 {
			WriteError(w, http.StatusBadRequest, "Provide bars or symbols")
			return
		}
		if api.Source == nil {
			WriteError(w, http.StatusBadRequest, "No bar source configured; upload bars instead")
			return
		}
		symbols := make([]string, 0, len(req.Symbols))
		for _, s := range req.Symbols {
			symbols = append(symbols, strings.ToUpper(strings.TrimSpace(s)))
		}
		loaded, err := datafeed.LoadAll(r.Context(), api.Source, symbols)
		if err != nil {
			api.Logger.Warn("bar fetch failed", zap.Error(err))
			WriteError(w, http.StatusBadGateway, "Failed to fetch bars: "+err.Error())
			return
		}
		bars = loaded
	}

	submitter := "anonymous"
	if claims, ok := ClaimsFromContext(r.Context()); ok {
		submitter = claims.UserID
	}
	api.Logger.Info("backtest submitted", zap.String("user_id", submitter), zap.Int("symbols", len(bars)))

	results, err := api.Runner.RunAll(r.Context(), bars)
	if err != nil {
		api.Logger.Error("backtest failed", zap.Error(err))
		status := http.StatusInternalServerError
		var cfgErr *types.ConfigError
		if errors.As(err, &cfgErr) {
			status = http.StatusBadRequest
		}
		WriteError(w, status, err.Error())
		return
	}

	summaries := make([]runSummary, 0, len(results))
	for _, res := range results {
		api.Store.Put(res)
		if api.Persist {
			if err := datafeed.SaveRun(r.Context(), res); err != nil {
				api.Logger.Warn("failed to persist run", zap.Stringer("run_id", res.RunID), zap.Error(err))
			}
		}
		summaries = append(summaries, summarize(res))
	}
	WriteJSON(w, http.StatusCreated, summaries)
}

// normalizeUploads upper-cases symbols and refuses keys that collide
// afterwards, e.g. "qqq" and "QQQ".
func normalizeUploads(in map[string][]types.Bar) (map[string][]types.Bar, error) {
	out := make(map[string][]types.Bar, len(in))
	for raw, b := range in {
		symbol := strings.ToUpper(strings.TrimSpace(raw))
		if symbol == "" {
			return nil, errors.New("empty symbol in bars")
		}
		if _, dup := out[symbol]; dup {
			return nil, fmt.Errorf("symbol %s uploaded more than once", symbol)
		}
		out[symbol] = b
	}
	return out, nil
}

func (api *API) HandleListBacktests(w http.ResponseWriter, r *http.Request) {
	symbol := strings.ToUpper(r.URL.Query().Get("symbol"))
	limitStr := r.URL.Query().Get("limit")

	limit := 50
	if limitStr != "" {
		parsedLimit, err := strconv.Atoi(limitStr)
		if err == nil && parsedLimit > 0 {
			limit = parsedLimit
		}
	}

	runs := api.Store.List(symbol)
	if len(runs) > limit {
		runs = runs[:limit]
	}
	out := make([]runSummary, 0, len(runs))
	seen := make(map[uuid.UUID]bool, len(runs))
	for _, res := range runs {
		out = append(out, summarize(res))
		seen[res.RunID] = true
	}

	if api.History != nil && len(out) < limit {
		stored, err := api.History(r.Context(), symbol, limit)
		if err != nil {
			api.Logger.Error("failed to read run history", zap.Error(err))
			WriteError(w, http.StatusInternalServerError, "Failed to read stored runs")
			return
		}
		for _, rec := range stored {
			if len(out) == limit {
				break
			}
			if !seen[rec.ID] {
				out = append(out, summarizeStored(rec))
			}
		}
	}
	WriteJSON(w, http.StatusOK, out)
}

func summarizeStored(rec datafeed.RunRecord) runSummary {
	s := metrics.Summary{
		TradeCount:    rec.TradeCount,
		WinRate:       rec.WinRate,
		MaxDrawdown:   rec.MaxDrawdown,
		InitialEquity: rec.InitialCapital.InexactFloat64(),
		FinalEquity:   rec.FinalEquity.InexactFloat64(),
	}
	if !rec.InitialCapital.IsZero() {
		s.TotalReturn = rec.FinalEquity.Sub(rec.InitialCapital).Div(rec.InitialCapital).InexactFloat64()
	}
	return runSummary{
		RunID:       rec.ID,
		Symbol:      rec.Symbol,
		FinalEquity: rec.FinalEquity.StringFixed(2),
		Summary:     s,
		Stored:      true,
	}
}

func (api *API) lookup(w http.ResponseWriter, r *http.Request) (*backtest.Result, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		WriteError(w, http.StatusBadRequest, "Invalid run id")
		return nil, false
	}
	res, ok := api.Store.Get(id)
	if !ok {
		WriteError(w, http.StatusNotFound, "Run not found")
		return nil, false
	}
	return res, true
}

func (api *API) HandleGetBacktest(w http.ResponseWriter, r *http.Request) {
	if res, ok := api.lookup(w, r); ok {
		WriteJSON(w, http.StatusOK, res)
	}
}

func (api *API) HandleGetBacktestTrades(w http.ResponseWriter, r *http.Request) {
	res, ok := api.lookup(w, r)
	if !ok {
		return
	}
	trades := res.Trades
	if reason := r.URL.Query().Get("exit_reason"); reason != "" {
		filtered := make([]types.Trade, 0, len(trades))
		for _, t := range trades {
			if string(t.ExitReason) == reason {
				filtered = append(filtered, t)
			}
		}
		trades = filtered
	}
	WriteJSON(w, http.StatusOK, trades)
}

func (api *API) HandleGetBacktestEquity(w http.ResponseWriter, r *http.Request) {
	res, ok := api.lookup(w, r)
	if !ok {
		return
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"equity_curve": res.Report.EquityCurve,
		"drawdowns":    res.Report.Drawdowns,
		"daily":        res.Daily,
	})
}

func (api *API) HandleDeleteBacktest(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		WriteError(w, http.StatusBadRequest, "Invalid run id")
		return
	}
	if !api.Store.Delete(id) {
		WriteError(w, http.StatusNotFound, "Run not found")
		return
	}
	if api.Persist {
		if err := datafeed.DeleteRun(r.Context(), id); err != nil {
			api.Logger.Warn("failed to delete stored run", zap.Stringer("run_id", id), zap.Error(err))
		}
	}
	WriteJSON(w, http.StatusOK, map[string]string{"deleted": id.String()})
}

// HandleSymbolStats rolls up the latest run of every symbol.
func (api *API) HandleSymbolStats(w http.ResponseWriter, r *http.Request) {
	latest := make(map[string]*backtest.Result)
	for _, res := range api.Store.List("") {
		if _, seen := latest[res.Symbol]; !seen {
			latest[res.Symbol] = res
		}
	}
	if len(latest) == 0 {
		WriteJSON(w, http.StatusOK, []metrics.SymbolStats{})
		return
	}

	results := make([]*backtest.Result, 0, len(latest))
	for _, res := range latest {
		results = append(results, res)
	}
	stats := metrics.CalculateSymbolStats(backtest.Combined(results), api.Runner.Config().InitialCapital)

	out := make([]*metrics.SymbolStats, 0, len(latest))
	for symbol := range latest {
		if s, ok := stats[symbol]; ok {
			out = append(out, s)
		} else {
			out = append(out, &metrics.SymbolStats{Symbol: symbol})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	WriteJSON(w, http.StatusOK, out)
}
