package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"tradeledger/internal/app"
	"tradeledger/internal/domain"
	"tradeledger/internal/leaderboard"
	"tradeledger/internal/ports"
)

// errorResponse is the standard error payload for all endpoints.
type errorResponse struct {
	Error string `json:"error"`
}

// successResponse wraps mutation results.
type successResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
}

// traderHeader carries the authenticated trader's identifier. Verification
// happens upstream of this core; a missing header is Unauthorized.
const traderHeader = "X-Trader-ID"

type ledgerHandler struct {
	svc    *app.LedgerService
	logger ports.Logger
}

func newLedgerHandler(svc *app.LedgerService, logger ports.Logger) *ledgerHandler {
	return &ledgerHandler{svc: svc, logger: logger}
}

type leaderboardHandler struct {
	ranker *leaderboard.Ranker
	logger ports.Logger
}

func newLeaderboardHandler(ranker *leaderboard.Ranker, logger ports.Logger) *leaderboardHandler {
	return &leaderboardHandler{ranker: ranker, logger: logger}
}

// --- Ledger endpoints ---

func (h *ledgerHandler) SetInitialBalance(w http.ResponseWriter, r *http.Request) {
	traderID, ok := requireTrader(w, r)
	if !ok {
		return
	}
	var req struct {
		Balance float64 `json:"balance"`
	}
	if !decode(w, r, &req) {
		return
	}
	if err := h.svc.SetInitialBalance(r.Context(), traderID, req.Balance); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, successResponse{Success: true})
}

func (h *ledgerHandler) SetDisplayName(w http.ResponseWriter, r *http.Request) {
	traderID, ok := requireTrader(w, r)
	if !ok {
		return
	}
	var req struct {
		DisplayName string `json:"displayName"`
	}
	if !decode(w, r, &req) {
		return
	}
	if err := h.svc.SetDisplayName(r.Context(), traderID, req.DisplayName); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, successResponse{Success: true})
}

func (h *ledgerHandler) AddTrade(w http.ResponseWriter, r *http.Request) {
	traderID, ok := requireTrader(w, r)
	if !ok {
		return
	}
	var req struct {
		Instrument  string           `json:"instrument"`
		Direction   domain.Direction `json:"direction"`
		MarginUsed  float64          `json:"marginUsed"`
		EntryPrice  float64          `json:"entryPrice"`
		StopLoss    float64          `json:"stopLoss"`
		TakeProfit1 float64          `json:"takeProfit1"`
		TakeProfit2 float64          `json:"takeProfit2"`
		Leverage    float64          `json:"leverage"`
		Note        string           `json:"note"`
	}
	if !decode(w, r, &req) {
		return
	}
	trade, err := h.svc.AddTrade(r.Context(), traderID, app.AddTradeRequest{
		Instrument:  req.Instrument,
		Direction:   req.Direction,
		MarginUsed:  req.MarginUsed,
		EntryPrice:  req.EntryPrice,
		StopLoss:    req.StopLoss,
		TakeProfit1: req.TakeProfit1,
		TakeProfit2: req.TakeProfit2,
		Leverage:    req.Leverage,
		Note:        req.Note,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, successResponse{Success: true, Data: trade})
}

func (h *ledgerHandler) PreviewTrade(w http.ResponseWriter, r *http.Request) {
	traderID, ok := requireTrader(w, r)
	if !ok {
		return
	}
	var req struct {
		Instrument  string           `json:"instrument"`
		Direction   domain.Direction `json:"direction"`
		MarginUsed  float64          `json:"marginUsed"`
		EntryPrice  float64          `json:"entryPrice"`
		StopLoss    float64          `json:"stopLoss"`
		Leverage    float64          `json:"leverage"`
		TargetPrice float64          `json:"targetPrice"`
	}
	if !decode(w, r, &req) {
		return
	}
	res, err := h.svc.PreviewTrade(r.Context(), traderID, app.PreviewTradeRequest{
		Instrument:  req.Instrument,
		Direction:   req.Direction,
		MarginUsed:  req.MarginUsed,
		EntryPrice:  req.EntryPrice,
		StopLoss:    req.StopLoss,
		Leverage:    req.Leverage,
		TargetPrice: req.TargetPrice,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, successResponse{Success: true, Data: res})
}

func (h *ledgerHandler) UpdateTrade(w http.ResponseWriter, r *http.Request) {
	traderID, ok := requireTrader(w, r)
	if !ok {
		return
	}
	var req struct {
		TakeProfit1 *float64 `json:"takeProfit1"`
		TakeProfit2 *float64 `json:"takeProfit2"`
		Note        *string  `json:"note"`
	}
	if !decode(w, r, &req) {
		return
	}
	trade, err := h.svc.UpdateTrade(r.Context(), traderID, mux.Vars(r)["id"], app.UpdateTradeRequest{
		TakeProfit1: req.TakeProfit1,
		TakeProfit2: req.TakeProfit2,
		Note:        req.Note,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, successResponse{Success: true, Data: trade})
}

func (h *ledgerHandler) CloseTrade(w http.ResponseWriter, r *http.Request) {
	traderID, ok := requireTrader(w, r)
	if !ok {
		return
	}
	var req struct {
		ExitPrice float64 `json:"exitPrice"`
	}
	if !decode(w, r, &req) {
		return
	}
	result, err := h.svc.CloseTrade(r.Context(), traderID, mux.Vars(r)["id"], req.ExitPrice)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, successResponse{Success: true, Data: result})
}

func (h *ledgerHandler) DeleteTrade(w http.ResponseWriter, r *http.Request) {
	traderID, ok := requireTrader(w, r)
	if !ok {
		return
	}
	if err := h.svc.DeleteTrade(r.Context(), traderID, mux.Vars(r)["id"]); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, successResponse{Success: true})
}

func (h *ledgerHandler) AddCashFlow(w http.ResponseWriter, r *http.Request) {
	traderID, ok := requireTrader(w, r)
	if !ok {
		return
	}
	var req struct {
		Amount float64             `json:"amount"`
		Type   domain.CashFlowType `json:"type"`
	}
	if !decode(w, r, &req) {
		return
	}
	flow, err := h.svc.AddCashFlow(r.Context(), traderID, req.Amount, req.Type)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, successResponse{Success: true, Data: flow})
}

func (h *ledgerHandler) ResetLedger(w http.ResponseWriter, r *http.Request) {
	traderID, ok := requireTrader(w, r)
	if !ok {
		return
	}
	var req struct {
		InitialBalance float64 `json:"initialBalance"`
	}
	if !decode(w, r, &req) {
		return
	}
	if err := h.svc.ResetLedger(r.Context(), traderID, req.InitialBalance); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, successResponse{Success: true})
}

func (h *ledgerHandler) GetLedger(w http.ResponseWriter, r *http.Request) {
	traderID, ok := requireTrader(w, r)
	if !ok {
		return
	}
	view, err := h.svc.GetLedger(r.Context(), traderID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *ledgerHandler) GetAnalytics(w http.ResponseWriter, r *http.Request) {
	traderID, ok := requireTrader(w, r)
	if !ok {
		return
	}
	snap, err := h.svc.GetAnalytics(r.Context(), traderID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// --- Leaderboard endpoint ---

func (h *leaderboardHandler) GetLeaderboard(w http.ResponseWriter, r *http.Request) {
	board, err := h.ranker.GetBoard(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, board)
}

// --- Helpers ---

func requireTrader(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := r.Header.Get(traderHeader)
	if id == "" {
		writeJSON(w, http.StatusUnauthorized, errorResponse{Error: ports.ErrUnauthorized.Error()})
		return "", false
	}
	return id, true
}

func decode(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "malformed JSON request body"})
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// writeError maps the error taxonomy to HTTP status codes. Messages already
// name the violated rule, so they pass through unchanged.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, ports.ErrValidation):
		status = http.StatusBadRequest
	case errors.Is(err, ports.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, ports.ErrConflict):
		status = http.StatusConflict
	case errors.Is(err, ports.ErrUnauthorized):
		status = http.StatusUnauthorized
	case errors.Is(err, ports.ErrForbidden):
		status = http.StatusForbidden
	case errors.Is(err, ports.ErrServiceUnavailable), errors.Is(err, ports.ErrTimeout):
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, errorResponse{Error: err.Error()})
}
