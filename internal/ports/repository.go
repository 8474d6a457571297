package ports

import (
	"context"

	"tradeledger/internal/domain"
)

// LedgerRepository defines the interface for the per-trader ledger store.
// Every method is namespaced by traderID, so operations on different traders
// never contend. Single-record writes rely on the store's native atomicity;
// ResetLedger must be all-or-nothing.
type LedgerRepository interface {
	// UpsertSummary creates or overwrites the trader's ledger summary.
	UpsertSummary(ctx context.Context, summary *domain.LedgerSummary) error
	// GetSummary retrieves the trader's ledger summary.
	// Returns nil, nil if the trader has no summary yet.
	GetSummary(ctx context.Context, traderID string) (*domain.LedgerSummary, error)

	// InsertTrade saves a new trade and returns its assigned ID.
	InsertTrade(ctx context.Context, trade *domain.Trade) (string, error)
	// UpdateTrade overwrites an existing trade record.
	// Returns ErrNotFound if the trade does not exist for the trader.
	UpdateTrade(ctx context.Context, trade *domain.Trade) error
	// FindTrade retrieves a trade by ID within the trader's ledger.
	// Returns nil, nil if not found.
	FindTrade(ctx context.Context, traderID, tradeID string) (*domain.Trade, error)
	// DeleteTrade removes a single trade record.
	// Returns ErrNotFound if the trade does not exist for the trader.
	DeleteTrade(ctx context.Context, traderID, tradeID string) error

	// InsertCashFlow saves a new cash flow record and returns its ID.
	InsertCashFlow(ctx context.Context, flow *domain.CashFlow) (string, error)

	// FindEvents retrieves the trader's full event stream (trades and cash
	// flows) ordered by timestamp ascending.
	FindEvents(ctx context.Context, traderID string) ([]domain.LedgerEvent, error)
	// FindClosedTrades retrieves the trader's closed trades ordered by close
	// time ascending.
	FindClosedTrades(ctx context.Context, traderID string) ([]*domain.Trade, error)

	// ResetLedger deletes every trade and cash flow for the trader and
	// rewrites the summary in one atomic batch. A mid-batch failure leaves
	// the prior state fully intact.
	ResetLedger(ctx context.Context, summary *domain.LedgerSummary) error

	// ListTraderIDs returns the IDs of all traders holding a summary.
	ListTraderIDs(ctx context.Context) ([]string, error)
}
