package app

import (
	"context"
	"fmt"
	"unicode/utf8"

	"tradeledger/internal/analytics"
	"tradeledger/internal/domain"
	"tradeledger/internal/pnl"
	"tradeledger/internal/ports"
)

// LedgerService exposes the ledger core's request/response operations.
// Transport is an external collaborator: every operation takes a context and
// the calling trader's ID (assumed authenticated by the boundary above) and
// returns plain structs. Operations are short-lived and stateless; isolation
// across traders comes from the repository's per-trader namespacing.
type LedgerService struct {
	repo     ports.LedgerRepository
	logger   ports.Logger
	prices   ports.PriceSource // Optional; previews without a probe price need it
	clock    ports.Clock
	ratioCap float64
}

// Config holds construction parameters for the LedgerService.
type Config struct {
	Repo     ports.LedgerRepository
	Logger   ports.Logger
	Prices   ports.PriceSource // May be nil
	Clock    ports.Clock
	RatioCap float64 // Sentinel for capped ratios; 0 means pnl.DefaultRatioCap
}

// NewLedgerService creates a new ledger service instance.
func NewLedgerService(cfg Config) (*LedgerService, error) {
	if cfg.Repo == nil || cfg.Logger == nil || cfg.Clock == nil {
		return nil, fmt.Errorf("missing required dependencies for LedgerService")
	}
	ratioCap := cfg.RatioCap
	if ratioCap == 0 {
		ratioCap = pnl.DefaultRatioCap
	}
	return &LedgerService{
		repo:     cfg.Repo,
		logger:   cfg.Logger,
		prices:   cfg.Prices,
		clock:    cfg.Clock,
		ratioCap: ratioCap,
	}, nil
}

// --- Requests and responses ---

// AddTradeRequest carries the parameters for opening a new trade.
type AddTradeRequest struct {
	Instrument  string
	Direction   domain.Direction
	MarginUsed  float64
	EntryPrice  float64
	StopLoss    float64
	TakeProfit1 float64
	TakeProfit2 float64
	Leverage    float64
	Note        string
}

// UpdateTradeRequest carries the mutable fields of an open trade. Nil
// pointers leave the corresponding field untouched.
type UpdateTradeRequest struct {
	TakeProfit1 *float64
	TakeProfit2 *float64
	Note        *string
}

// CloseTradeResult reports the realized economics of a closed trade.
type CloseTradeResult struct {
	PnlUSD     float64 `json:"pnl"`
	PnlPercent float64 `json:"pnlPercent"`
	RiskReward float64 `json:"riskReward"`
}

// LedgerView is the response of GetLedger: the trader's summary and trades
// ordered by open timestamp ascending.
type LedgerView struct {
	Summary *domain.LedgerSummary `json:"summary"`
	Trades  []*domain.Trade       `json:"trades"`
}

// PreviewTradeRequest carries a what-if probe. When TargetPrice is zero the
// live mark price for the instrument is used instead.
type PreviewTradeRequest struct {
	Instrument  string
	Direction   domain.Direction
	MarginUsed  float64
	EntryPrice  float64
	StopLoss    float64
	Leverage    float64
	TargetPrice float64
}

// --- Operations ---

// SetInitialBalance creates or updates the trader's ledger summary.
// Idempotent: repeated calls with the same balance are harmless.
func (s *LedgerService) SetInitialBalance(ctx context.Context, traderID string, balance float64) error {
	op := "SetInitialBalance"
	if balance <= 0 {
		return fmt.Errorf("%w: initial balance must be positive", ports.ErrValidation)
	}

	summary := &domain.LedgerSummary{
		TraderID:       traderID,
		InitialBalance: balance,
		UpdatedAt:      s.clock.Now(),
	}
	// Preserve an existing display name across balance updates. A failed
	// read must fail the whole call: writing through it would wipe the name.
	existing, err := s.repo.GetSummary(ctx, traderID)
	if err != nil {
		s.logger.Error(ctx, err, op+": failed to read existing summary", map[string]interface{}{"traderID": traderID})
		return err
	}
	if existing != nil {
		summary.DisplayName = existing.DisplayName
	}

	if err := s.repo.UpsertSummary(ctx, summary); err != nil {
		s.logger.Error(ctx, err, op+": failed to upsert summary", map[string]interface{}{"traderID": traderID})
		return err
	}
	s.logger.Info(ctx, op+": initial balance set", map[string]interface{}{"traderID": traderID, "balance": balance})
	return nil
}

// SetDisplayName sets the trader's public leaderboard name. An empty name
// reverts the trader to the anonymized handle.
func (s *LedgerService) SetDisplayName(ctx context.Context, traderID, name string) error {
	op := "SetDisplayName"
	summary, err := s.repo.GetSummary(ctx, traderID)
	if err != nil {
		return err
	}
	if summary == nil {
		return fmt.Errorf("%w: ledger summary does not exist for trader", ports.ErrNotFound)
	}
	summary.DisplayName = name
	summary.UpdatedAt = s.clock.Now()
	if err := s.repo.UpsertSummary(ctx, summary); err != nil {
		s.logger.Error(ctx, err, op+": failed to upsert summary", map[string]interface{}{"traderID": traderID})
		return err
	}
	return nil
}

// AddTrade validates and records a new open trade. The calculator is
// dry-run against the stop level so a trade that could never be closed
// cleanly is rejected before anything is written.
func (s *LedgerService) AddTrade(ctx context.Context, traderID string, req AddTradeRequest) (*domain.Trade, error) {
	op := "AddTrade"
	if err := validateTradeInvariants(req.Direction, req.EntryPrice, req.StopLoss); err != nil {
		return nil, err
	}
	if req.Instrument == "" {
		return nil, fmt.Errorf("%w: instrument must not be empty", ports.ErrValidation)
	}
	if utf8.RuneCountInString(req.Note) > domain.MaxNoteLength {
		return nil, fmt.Errorf("%w: note must be at most %d characters", ports.ErrValidation, domain.MaxNoteLength)
	}
	if req.TakeProfit1 < 0 || req.TakeProfit2 < 0 {
		return nil, fmt.Errorf("%w: take-profit targets must not be negative", ports.ErrValidation)
	}

	// Dry run: probing at the entry price exercises every positivity check
	// the close-time computation will make.
	dry, err := pnl.Compute(pnl.Input{
		Direction:   req.Direction,
		EntryPrice:  req.EntryPrice,
		StopLoss:    req.StopLoss,
		MarginUsed:  req.MarginUsed,
		Leverage:    req.Leverage,
		TargetPrice: req.EntryPrice,
		RatioCap:    s.ratioCap,
	})
	if err != nil {
		return nil, err
	}

	trade := &domain.Trade{
		TraderID:     traderID,
		Instrument:   req.Instrument,
		Direction:    req.Direction,
		EntryPrice:   req.EntryPrice,
		StopLoss:     req.StopLoss,
		TakeProfit1:  req.TakeProfit1,
		TakeProfit2:  req.TakeProfit2,
		MarginUsed:   req.MarginUsed,
		Leverage:     req.Leverage,
		Note:         req.Note,
		Status:       domain.StatusOpen,
		OpenedAt:     s.clock.Now(),
		PositionSize: dry.PositionSize,
	}

	id, err := s.repo.InsertTrade(ctx, trade)
	if err != nil {
		s.logger.Error(ctx, err, op+": failed to insert trade", map[string]interface{}{"traderID": traderID, "instrument": req.Instrument})
		return nil, err
	}
	trade.ID = id
	s.logger.Info(ctx, op+": trade opened", map[string]interface{}{
		"traderID": traderID, "tradeID": id, "instrument": req.Instrument, "direction": req.Direction,
	})
	return trade, nil
}

// UpdateTrade modifies the target prices and note of an open trade. Closed
// trades are immutable.
func (s *LedgerService) UpdateTrade(ctx context.Context, traderID, tradeID string, req UpdateTradeRequest) (*domain.Trade, error) {
	op := "UpdateTrade"
	trade, err := s.repo.FindTrade(ctx, traderID, tradeID)
	if err != nil {
		return nil, err
	}
	if trade == nil {
		return nil, fmt.Errorf("%w: trade %s does not exist", ports.ErrNotFound, tradeID)
	}
	if !trade.IsOpen() {
		return nil, fmt.Errorf("%w: trade %s is closed and can no longer be edited", ports.ErrConflict, tradeID)
	}

	if req.TakeProfit1 != nil {
		if *req.TakeProfit1 < 0 {
			return nil, fmt.Errorf("%w: take-profit targets must not be negative", ports.ErrValidation)
		}
		trade.TakeProfit1 = *req.TakeProfit1
	}
	if req.TakeProfit2 != nil {
		if *req.TakeProfit2 < 0 {
			return nil, fmt.Errorf("%w: take-profit targets must not be negative", ports.ErrValidation)
		}
		trade.TakeProfit2 = *req.TakeProfit2
	}
	if req.Note != nil {
		if utf8.RuneCountInString(*req.Note) > domain.MaxNoteLength {
			return nil, fmt.Errorf("%w: note must be at most %d characters", ports.ErrValidation, domain.MaxNoteLength)
		}
		trade.Note = *req.Note
	}

	if err := s.repo.UpdateTrade(ctx, trade); err != nil {
		s.logger.Error(ctx, err, op+": failed to update trade", map[string]interface{}{"traderID": traderID, "tradeID": tradeID})
		return nil, err
	}
	return trade, nil
}

// CloseTrade is the single terminal mutation of a trade: it fixes the exit
// price, computes the realized economics and flips the status to closed.
// Closing an already-closed trade is rejected, never silently accepted.
func (s *LedgerService) CloseTrade(ctx context.Context, traderID, tradeID string, exitPrice float64) (*CloseTradeResult, error) {
	op := "CloseTrade"
	if exitPrice <= 0 {
		return nil, fmt.Errorf("%w: exitPrice must be positive", ports.ErrValidation)
	}

	trade, err := s.repo.FindTrade(ctx, traderID, tradeID)
	if err != nil {
		return nil, err
	}
	if trade == nil {
		return nil, fmt.Errorf("%w: trade %s does not exist", ports.ErrNotFound, tradeID)
	}
	if !trade.IsOpen() {
		return nil, fmt.Errorf("%w: trade %s is already closed", ports.ErrConflict, tradeID)
	}

	res, err := pnl.Compute(pnl.Input{
		Direction:   trade.Direction,
		EntryPrice:  trade.EntryPrice,
		StopLoss:    trade.StopLoss,
		MarginUsed:  trade.MarginUsed,
		Leverage:    trade.Leverage,
		TargetPrice: exitPrice,
		RatioCap:    s.ratioCap,
	})
	if err != nil {
		return nil, err
	}

	trade.Status = domain.StatusClosed
	trade.ClosedAt = s.clock.Now()
	trade.ExitPrice = exitPrice
	trade.PnlUSD = res.PnlUSD
	trade.PnlPercent = res.PnlPercent
	trade.RiskReward = res.RiskReward

	if err := s.repo.UpdateTrade(ctx, trade); err != nil {
		s.logger.Error(ctx, err, op+": failed to persist closed trade", map[string]interface{}{"traderID": traderID, "tradeID": tradeID})
		return nil, err
	}
	s.logger.Info(ctx, op+": trade closed", map[string]interface{}{
		"traderID": traderID, "tradeID": tradeID, "exitPrice": exitPrice, "pnl": res.PnlUSD,
	})
	return &CloseTradeResult{PnlUSD: res.PnlUSD, PnlPercent: res.PnlPercent, RiskReward: res.RiskReward}, nil
}

// DeleteTrade removes a single trade record, open or closed.
func (s *LedgerService) DeleteTrade(ctx context.Context, traderID, tradeID string) error {
	op := "DeleteTrade"
	if err := s.repo.DeleteTrade(ctx, traderID, tradeID); err != nil {
		s.logger.Error(ctx, err, op+": failed to delete trade", map[string]interface{}{"traderID": traderID, "tradeID": tradeID})
		return err
	}
	s.logger.Info(ctx, op+": trade deleted", map[string]interface{}{"traderID": traderID, "tradeID": tradeID})
	return nil
}

// AddCashFlow records a deposit or withdrawal. The stored amount is signed:
// positive for deposits, negative for withdrawals. Trades are never touched.
func (s *LedgerService) AddCashFlow(ctx context.Context, traderID string, amount float64, flowType domain.CashFlowType) (*domain.CashFlow, error) {
	op := "AddCashFlow"
	if amount <= 0 {
		return nil, fmt.Errorf("%w: amount must be positive", ports.ErrValidation)
	}
	if !flowType.IsValid() {
		return nil, fmt.Errorf("%w: type must be deposit or withdraw", ports.ErrValidation)
	}

	signed := amount
	if flowType == domain.Withdraw {
		signed = -amount
	}
	flow := &domain.CashFlow{
		TraderID:   traderID,
		Type:       flowType,
		Amount:     signed,
		OccurredAt: s.clock.Now(),
	}
	id, err := s.repo.InsertCashFlow(ctx, flow)
	if err != nil {
		s.logger.Error(ctx, err, op+": failed to insert cash flow", map[string]interface{}{"traderID": traderID})
		return nil, err
	}
	flow.ID = id
	s.logger.Info(ctx, op+": cash flow recorded", map[string]interface{}{"traderID": traderID, "type": flowType, "amount": signed})
	return flow, nil
}

// ResetLedger wipes every trade and cash flow for the trader and rewrites
// the summary with the new balance in one atomic batch.
func (s *LedgerService) ResetLedger(ctx context.Context, traderID string, newBalance float64) error {
	op := "ResetLedger"
	if newBalance <= 0 {
		return fmt.Errorf("%w: initial balance must be positive", ports.ErrValidation)
	}

	summary := &domain.LedgerSummary{
		TraderID:       traderID,
		InitialBalance: newBalance,
		UpdatedAt:      s.clock.Now(),
	}
	existing, err := s.repo.GetSummary(ctx, traderID)
	if err != nil {
		s.logger.Error(ctx, err, op+": failed to read existing summary", map[string]interface{}{"traderID": traderID})
		return err
	}
	if existing != nil {
		summary.DisplayName = existing.DisplayName
	}

	if err := s.repo.ResetLedger(ctx, summary); err != nil {
		s.logger.Error(ctx, err, op+": failed to reset ledger", map[string]interface{}{"traderID": traderID})
		return err
	}
	s.logger.Info(ctx, op+": ledger reset", map[string]interface{}{"traderID": traderID, "balance": newBalance})
	return nil
}

// GetLedger returns the trader's summary and trades ordered by open
// timestamp ascending.
func (s *LedgerService) GetLedger(ctx context.Context, traderID string) (*LedgerView, error) {
	events, err := s.repo.FindEvents(ctx, traderID)
	if err != nil {
		return nil, err
	}
	summary, err := s.repo.GetSummary(ctx, traderID)
	if err != nil {
		return nil, err
	}

	trades := make([]*domain.Trade, 0, len(events))
	for _, ev := range events {
		if ev.Type == domain.EventTrade {
			trades = append(trades, ev.Trade)
		}
	}
	return &LedgerView{Summary: summary, Trades: trades}, nil
}

// GetAnalytics recomputes the trader's analytics snapshot from the full
// event stream. No incremental state is kept between calls.
func (s *LedgerService) GetAnalytics(ctx context.Context, traderID string) (*analytics.Snapshot, error) {
	events, err := s.repo.FindEvents(ctx, traderID)
	if err != nil {
		return nil, err
	}
	var initialBalance float64
	if summary, err := s.repo.GetSummary(ctx, traderID); err != nil {
		return nil, err
	} else if summary != nil {
		initialBalance = summary.InitialBalance
	}

	snap := analytics.Compute(events, initialBalance, s.clock.Now(), s.ratioCap)
	return &snap, nil
}

// PreviewTrade runs the calculator for a what-if probe without persisting
// anything. When no probe price is supplied the live mark price is used.
func (s *LedgerService) PreviewTrade(ctx context.Context, traderID string, req PreviewTradeRequest) (*pnl.Result, error) {
	op := "PreviewTrade"
	if err := validateTradeInvariants(req.Direction, req.EntryPrice, req.StopLoss); err != nil {
		return nil, err
	}

	target := req.TargetPrice
	if target == 0 {
		if s.prices == nil {
			return nil, fmt.Errorf("%w: targetPrice is required when no price source is configured", ports.ErrValidation)
		}
		price, err := s.prices.MarkPrice(ctx, req.Instrument)
		if err != nil {
			s.logger.Error(ctx, err, op+": failed to fetch mark price", map[string]interface{}{"instrument": req.Instrument})
			return nil, fmt.Errorf("%w: price lookup for %s failed", ports.ErrServiceUnavailable, req.Instrument)
		}
		target = price
	}

	res, err := pnl.Compute(pnl.Input{
		Direction:   req.Direction,
		EntryPrice:  req.EntryPrice,
		StopLoss:    req.StopLoss,
		MarginUsed:  req.MarginUsed,
		Leverage:    req.Leverage,
		TargetPrice: target,
		RatioCap:    s.ratioCap,
	})
	if err != nil {
		return nil, err
	}
	s.logger.Debug(ctx, op+": preview computed", map[string]interface{}{
		"traderID": traderID, "instrument": req.Instrument, "target": target, "pnl": res.PnlUSD,
	})
	return &res, nil
}

// validateTradeInvariants enforces the direction/stop relationship shared by
// AddTrade and PreviewTrade. Positivity of the remaining fields is checked
// by the calculator.
func validateTradeInvariants(direction domain.Direction, entryPrice, stopLoss float64) error {
	if !direction.IsValid() {
		return fmt.Errorf("%w: direction must be Long or Short", ports.ErrValidation)
	}
	if entryPrice <= 0 {
		return fmt.Errorf("%w: entryPrice must be positive", ports.ErrValidation)
	}
	if stopLoss <= 0 {
		return fmt.Errorf("%w: stopLoss must be positive", ports.ErrValidation)
	}
	switch direction {
	case domain.Long:
		if stopLoss >= entryPrice {
			return fmt.Errorf("%w: stop-loss must be below entry price for a long position", ports.ErrValidation)
		}
	case domain.Short:
		if stopLoss <= entryPrice {
			return fmt.Errorf("%w: stop-loss must be above entry price for a short position", ports.ErrValidation)
		}
	}
	return nil
}
