package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"tradeledger/internal/domain"
	"tradeledger/internal/ports"

	"github.com/google/uuid"
	"github.com/mattn/go-sqlite3"
)

// Repository implements ports.LedgerRepository using SQLite. Trades and cash
// flows share one ledger_events table discriminated by event_type, so each
// trader's ledger is a single time-ordered stream.
type Repository struct {
	db      *sql.DB
	logger  ports.Logger
	timeout time.Duration
}

// Config holds configuration for the SQLite repository.
type Config struct {
	DBPath  string
	Logger  ports.Logger
	Timeout time.Duration // Per-call deadline; DefaultTimeout if zero
}

// DefaultTimeout bounds every store call so no operation blocks indefinitely.
const DefaultTimeout = 5 * time.Second

// NewRepository creates a new SQLite repository instance.
func NewRepository(cfg Config) (*Repository, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for SQLite repository")
	}
	dbPath := cfg.DBPath
	if dbPath == "" {
		dbPath = "./data/tradeledger.db" // Default path
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	// Create data directory if it doesn't exist
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		err = fmt.Errorf("failed to create data directory '%s': %w", filepath.Dir(dbPath), err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}

	// Open database connection
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000") // WAL mode for better concurrency
	if err != nil {
		err = fmt.Errorf("failed to open database at '%s': %w", dbPath, err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}

	// Test the connection
	if err := db.Ping(); err != nil {
		db.Close()
		err = fmt.Errorf("failed to ping database at '%s': %w", dbPath, err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}

	// Set connection pool settings (important for SQLite)
	db.SetMaxOpenConns(1) // SQLite handles concurrency internally, but Go driver benefits from limiting connections
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	repo := &Repository{db: db, logger: cfg.Logger, timeout: timeout}

	if err := repo.initializeSchema(context.Background()); err != nil {
		db.Close()
		err = fmt.Errorf("failed to initialize database schema: %w", err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}
	cfg.Logger.Info(context.Background(), "Ledger store initialized", map[string]interface{}{"path": dbPath})

	return repo, nil
}

// initializeSchema creates tables if they don't exist.
func (r *Repository) initializeSchema(ctx context.Context) error {
	const schema = `
	CREATE TABLE IF NOT EXISTS ledger_summaries (
		trader_id TEXT PRIMARY KEY,
		initial_balance REAL NOT NULL,
		display_name TEXT NOT NULL DEFAULT '',
		updated_at TIMESTAMP NOT NULL
	);

	CREATE TABLE IF NOT EXISTS ledger_events (
		id TEXT PRIMARY KEY,
		trader_id TEXT NOT NULL,
		event_type TEXT NOT NULL,
		event_time TIMESTAMP NOT NULL,
		-- trade fields (NULL for cash flows)
		instrument TEXT,
		direction TEXT,
		entry_price REAL,
		stop_loss REAL,
		take_profit1 REAL,
		take_profit2 REAL,
		margin_used REAL,
		leverage REAL,
		note TEXT,
		status TEXT,
		closed_at TIMESTAMP DEFAULT NULL,
		exit_price REAL,
		pnl_usd REAL,
		pnl_percent REAL,
		risk_reward REAL,
		position_size REAL,
		-- cash flow fields (NULL for trades)
		flow_type TEXT,
		amount REAL
	);
	CREATE INDEX IF NOT EXISTS idx_ledger_events_trader_time ON ledger_events (trader_id, event_time);
	CREATE INDEX IF NOT EXISTS idx_ledger_events_trader_status ON ledger_events (trader_id, event_type, status);
	`
	_, err := r.db.ExecContext(ctx, schema)
	if err != nil {
		return fmt.Errorf("failed to execute schema initialization: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (r *Repository) Close() error {
	if r.db != nil {
		r.logger.Info(context.Background(), "Closing ledger store")
		return r.db.Close()
	}
	return nil
}

// withDeadline bounds a store call so it cannot block past the configured
// timeout.
func (r *Repository) withDeadline(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, r.timeout)
}

// wrapStoreErr classifies infrastructure failures as retryable
// ServiceUnavailable while leaving already-classified errors untouched.
// Deadline hits and driver busy/locked conditions are transient outages.
func wrapStoreErr(err error, msg string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ports.ErrNotFound) || errors.Is(err, ports.ErrConflict) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) || isTransientSQLiteErr(err) {
		return fmt.Errorf("%w: %s: %v", ports.ErrServiceUnavailable, msg, err)
	}
	return fmt.Errorf("%s: %w", msg, err)
}

// isTransientSQLiteErr reports whether the error is a SQLITE_BUSY or
// SQLITE_LOCKED condition that a retry can clear.
func isTransientSQLiteErr(err error) bool {
	var sqliteErr sqlite3.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	return sqliteErr.Code == sqlite3.ErrBusy || sqliteErr.Code == sqlite3.ErrLocked
}

// --- Summary ---

// UpsertSummary creates or overwrites the trader's ledger summary.
func (r *Repository) UpsertSummary(ctx context.Context, summary *domain.LedgerSummary) error {
	ctx, cancel := r.withDeadline(ctx)
	defer cancel()

	const query = `
	INSERT INTO ledger_summaries (trader_id, initial_balance, display_name, updated_at)
	VALUES (?, ?, ?, ?)
	ON CONFLICT(trader_id) DO UPDATE SET
		initial_balance = excluded.initial_balance,
		display_name = excluded.display_name,
		updated_at = excluded.updated_at`

	_, err := r.db.ExecContext(ctx, query,
		summary.TraderID, summary.InitialBalance, summary.DisplayName, summary.UpdatedAt)
	if err != nil {
		return wrapStoreErr(err, fmt.Sprintf("failed to upsert summary for trader %s", summary.TraderID))
	}
	r.logger.Debug(ctx, "Summary upserted", map[string]interface{}{"traderID": summary.TraderID})
	return nil
}

// GetSummary retrieves the trader's ledger summary, or nil if absent.
func (r *Repository) GetSummary(ctx context.Context, traderID string) (*domain.LedgerSummary, error) {
	ctx, cancel := r.withDeadline(ctx)
	defer cancel()

	const query = `
	SELECT trader_id, initial_balance, display_name, updated_at
	FROM ledger_summaries WHERE trader_id = ?`

	s := &domain.LedgerSummary{}
	err := r.db.QueryRowContext(ctx, query, traderID).Scan(
		&s.TraderID, &s.InitialBalance, &s.DisplayName, &s.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // Not an error, just not found
		}
		return nil, wrapStoreErr(err, fmt.Sprintf("failed to query summary for trader %s", traderID))
	}
	return s, nil
}

// --- Trades ---

// InsertTrade saves a new trade and returns its assigned ID.
func (r *Repository) InsertTrade(ctx context.Context, trade *domain.Trade) (string, error) {
	ctx, cancel := r.withDeadline(ctx)
	defer cancel()

	id := uuid.NewString()
	const query = `
	INSERT INTO ledger_events (id, trader_id, event_type, event_time,
		instrument, direction, entry_price, stop_loss, take_profit1, take_profit2,
		margin_used, leverage, note, status, closed_at, exit_price,
		pnl_usd, pnl_percent, risk_reward, position_size)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := r.db.ExecContext(ctx, query,
		id, trade.TraderID, domain.EventTrade, trade.OpenedAt,
		trade.Instrument, trade.Direction, trade.EntryPrice, trade.StopLoss,
		trade.TakeProfit1, trade.TakeProfit2, trade.MarginUsed, trade.Leverage,
		trade.Note, trade.Status, nullableTime(trade.ClosedAt), trade.ExitPrice,
		trade.PnlUSD, trade.PnlPercent, trade.RiskReward, trade.PositionSize)
	if err != nil {
		return "", wrapStoreErr(err, fmt.Sprintf("failed to insert trade for trader %s", trade.TraderID))
	}
	trade.ID = id
	r.logger.Debug(ctx, "Trade inserted", map[string]interface{}{"tradeID": id, "traderID": trade.TraderID})
	return id, nil
}

// UpdateTrade overwrites an existing trade record within the trader's ledger.
func (r *Repository) UpdateTrade(ctx context.Context, trade *domain.Trade) error {
	ctx, cancel := r.withDeadline(ctx)
	defer cancel()

	const query = `
	UPDATE ledger_events
	SET take_profit1 = ?, take_profit2 = ?, note = ?, status = ?, closed_at = ?,
	    exit_price = ?, pnl_usd = ?, pnl_percent = ?, risk_reward = ?
	WHERE id = ? AND trader_id = ? AND event_type = ?`

	result, err := r.db.ExecContext(ctx, query,
		trade.TakeProfit1, trade.TakeProfit2, trade.Note, trade.Status,
		nullableTime(trade.ClosedAt), trade.ExitPrice,
		trade.PnlUSD, trade.PnlPercent, trade.RiskReward,
		trade.ID, trade.TraderID, domain.EventTrade)
	if err != nil {
		return wrapStoreErr(err, fmt.Sprintf("failed to update trade %s", trade.ID))
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return wrapStoreErr(err, fmt.Sprintf("failed to get rows affected for trade %s", trade.ID))
	}
	if rowsAffected == 0 {
		return fmt.Errorf("trade %s not found for update: %w", trade.ID, ports.ErrNotFound)
	}
	r.logger.Debug(ctx, "Trade updated", map[string]interface{}{"tradeID": trade.ID, "status": trade.Status})
	return nil
}

// FindTrade retrieves a trade by ID within the trader's ledger, or nil.
func (r *Repository) FindTrade(ctx context.Context, traderID, tradeID string) (*domain.Trade, error) {
	ctx, cancel := r.withDeadline(ctx)
	defer cancel()

	query := `SELECT ` + tradeColumns + `
	FROM ledger_events
	WHERE id = ? AND trader_id = ? AND event_type = ?`

	row := r.db.QueryRowContext(ctx, query, tradeID, traderID, domain.EventTrade)
	trade, err := scanTrade(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // Not an error, just not found
		}
		return nil, wrapStoreErr(err, fmt.Sprintf("failed to query trade %s", tradeID))
	}
	trade.TraderID = traderID
	return trade, nil
}

// DeleteTrade removes a single trade record.
func (r *Repository) DeleteTrade(ctx context.Context, traderID, tradeID string) error {
	ctx, cancel := r.withDeadline(ctx)
	defer cancel()

	const query = `DELETE FROM ledger_events WHERE id = ? AND trader_id = ? AND event_type = ?`
	result, err := r.db.ExecContext(ctx, query, tradeID, traderID, domain.EventTrade)
	if err != nil {
		return wrapStoreErr(err, fmt.Sprintf("failed to delete trade %s", tradeID))
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return wrapStoreErr(err, fmt.Sprintf("failed to get rows affected deleting trade %s", tradeID))
	}
	if rowsAffected == 0 {
		return fmt.Errorf("trade %s not found for delete: %w", tradeID, ports.ErrNotFound)
	}
	return nil
}

// --- Cash flows ---

// InsertCashFlow saves a new cash flow record and returns its ID.
func (r *Repository) InsertCashFlow(ctx context.Context, flow *domain.CashFlow) (string, error) {
	ctx, cancel := r.withDeadline(ctx)
	defer cancel()

	id := uuid.NewString()
	const query = `
	INSERT INTO ledger_events (id, trader_id, event_type, event_time, flow_type, amount)
	VALUES (?, ?, ?, ?, ?, ?)`

	_, err := r.db.ExecContext(ctx, query,
		id, flow.TraderID, domain.EventCashFlow, flow.OccurredAt, flow.Type, flow.Amount)
	if err != nil {
		return "", wrapStoreErr(err, fmt.Sprintf("failed to insert cash flow for trader %s", flow.TraderID))
	}
	flow.ID = id
	r.logger.Debug(ctx, "Cash flow inserted", map[string]interface{}{"cashFlowID": id, "traderID": flow.TraderID})
	return id, nil
}

// --- Streams ---

// FindEvents retrieves the trader's full event stream ordered by timestamp
// ascending.
func (r *Repository) FindEvents(ctx context.Context, traderID string) ([]domain.LedgerEvent, error) {
	ctx, cancel := r.withDeadline(ctx)
	defer cancel()

	query := `SELECT event_type, ` + tradeColumns + `, flow_type, amount
	FROM ledger_events
	WHERE trader_id = ?
	ORDER BY event_time ASC`

	rows, err := r.db.QueryContext(ctx, query, traderID)
	if err != nil {
		return nil, wrapStoreErr(err, fmt.Sprintf("failed to query events for trader %s", traderID))
	}
	defer rows.Close()

	events := make([]domain.LedgerEvent, 0)
	for rows.Next() {
		ev, err := scanEvent(rows, traderID)
		if err != nil {
			return nil, wrapStoreErr(err, "failed to scan ledger event")
		}
		events = append(events, ev)
	}
	if err = rows.Err(); err != nil {
		return nil, wrapStoreErr(err, "error iterating ledger event rows")
	}
	return events, nil
}

// FindClosedTrades retrieves the trader's closed trades ordered by close
// time ascending.
func (r *Repository) FindClosedTrades(ctx context.Context, traderID string) ([]*domain.Trade, error) {
	ctx, cancel := r.withDeadline(ctx)
	defer cancel()

	query := `SELECT ` + tradeColumns + `
	FROM ledger_events
	WHERE trader_id = ? AND event_type = ? AND status = ?
	ORDER BY closed_at ASC`

	rows, err := r.db.QueryContext(ctx, query, traderID, domain.EventTrade, domain.StatusClosed)
	if err != nil {
		return nil, wrapStoreErr(err, fmt.Sprintf("failed to query closed trades for trader %s", traderID))
	}
	defer rows.Close()

	trades := make([]*domain.Trade, 0)
	for rows.Next() {
		trade, err := scanTrade(rows)
		if err != nil {
			return nil, wrapStoreErr(err, "failed to scan closed trade")
		}
		trade.TraderID = traderID
		trades = append(trades, trade)
	}
	if err = rows.Err(); err != nil {
		return nil, wrapStoreErr(err, "error iterating closed trade rows")
	}
	return trades, nil
}

// --- Reset ---

// ResetLedger deletes every event for the trader and rewrites the summary in
// one transaction. A mid-batch failure rolls back to the prior state.
func (r *Repository) ResetLedger(ctx context.Context, summary *domain.LedgerSummary) error {
	ctx, cancel := r.withDeadline(ctx)
	defer cancel()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return wrapStoreErr(err, fmt.Sprintf("failed to begin reset transaction for trader %s", summary.TraderID))
	}
	defer tx.Rollback() // No-op after a successful commit

	if _, err := tx.ExecContext(ctx, `DELETE FROM ledger_events WHERE trader_id = ?`, summary.TraderID); err != nil {
		return wrapStoreErr(err, fmt.Sprintf("failed to clear events for trader %s", summary.TraderID))
	}

	const upsert = `
	INSERT INTO ledger_summaries (trader_id, initial_balance, display_name, updated_at)
	VALUES (?, ?, ?, ?)
	ON CONFLICT(trader_id) DO UPDATE SET
		initial_balance = excluded.initial_balance,
		display_name = excluded.display_name,
		updated_at = excluded.updated_at`
	if _, err := tx.ExecContext(ctx, upsert,
		summary.TraderID, summary.InitialBalance, summary.DisplayName, summary.UpdatedAt); err != nil {
		return wrapStoreErr(err, fmt.Sprintf("failed to rewrite summary for trader %s", summary.TraderID))
	}

	if err := tx.Commit(); err != nil {
		return wrapStoreErr(err, fmt.Sprintf("failed to commit reset for trader %s", summary.TraderID))
	}
	r.logger.Info(ctx, "Ledger reset", map[string]interface{}{"traderID": summary.TraderID, "balance": summary.InitialBalance})
	return nil
}

// ListTraderIDs returns the IDs of all traders holding a summary.
func (r *Repository) ListTraderIDs(ctx context.Context) ([]string, error) {
	ctx, cancel := r.withDeadline(ctx)
	defer cancel()

	rows, err := r.db.QueryContext(ctx, `SELECT trader_id FROM ledger_summaries ORDER BY trader_id`)
	if err != nil {
		return nil, wrapStoreErr(err, "failed to list trader IDs")
	}
	defer rows.Close()

	ids := make([]string, 0)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, wrapStoreErr(err, "failed to scan trader ID")
		}
		ids = append(ids, id)
	}
	if err = rows.Err(); err != nil {
		return nil, wrapStoreErr(err, "error iterating trader ID rows")
	}
	return ids, nil
}

// --- Helper scan functions ---

const tradeColumns = `id, instrument, direction, entry_price, stop_loss,
	take_profit1, take_profit2, margin_used, leverage, note, status,
	event_time, closed_at, exit_price, pnl_usd, pnl_percent, risk_reward, position_size`

// nullableTime maps the zero time to NULL so open trades carry no close
// timestamp in the store.
func nullableTime(t time.Time) sql.NullTime {
	if t.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t, Valid: true}
}

// scanner defines an interface compatible with *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...interface{}) error
}

// scanTrade scans the trade column set into a domain.Trade.
func scanTrade(s scanner) (*domain.Trade, error) {
	t := &domain.Trade{}
	var direction, status string
	var closedAt sql.NullTime
	err := s.Scan(
		&t.ID, &t.Instrument, &direction, &t.EntryPrice, &t.StopLoss,
		&t.TakeProfit1, &t.TakeProfit2, &t.MarginUsed, &t.Leverage, &t.Note, &status,
		&t.OpenedAt, &closedAt, &t.ExitPrice, &t.PnlUSD, &t.PnlPercent, &t.RiskReward, &t.PositionSize)
	if err != nil {
		return nil, err // Handle sql.ErrNoRows in the caller
	}
	t.Direction = domain.Direction(direction)
	t.Status = domain.TradeStatus(status)
	if closedAt.Valid {
		t.ClosedAt = closedAt.Time
	}
	return t, nil
}

// scanEvent scans a full event row into the tagged union.
func scanEvent(s scanner, traderID string) (domain.LedgerEvent, error) {
	var (
		eventType string
		id        string
		// trade fields
		instrument, direction, note, status       sql.NullString
		entryPrice, stopLoss, tp1, tp2            sql.NullFloat64
		marginUsed, leverage                      sql.NullFloat64
		exitPrice, pnlUSD, pnlPercent, riskReward sql.NullFloat64
		positionSize                              sql.NullFloat64
		closedAt                                  sql.NullTime
		// cash flow fields
		flowType  sql.NullString
		amount    sql.NullFloat64
		eventTime time.Time
	)

	err := s.Scan(
		&eventType,
		&id, &instrument, &direction, &entryPrice, &stopLoss,
		&tp1, &tp2, &marginUsed, &leverage, &note, &status,
		&eventTime, &closedAt, &exitPrice, &pnlUSD, &pnlPercent, &riskReward, &positionSize,
		&flowType, &amount)
	if err != nil {
		return domain.LedgerEvent{}, err
	}

	switch domain.EventType(eventType) {
	case domain.EventTrade:
		t := &domain.Trade{
			ID:           id,
			TraderID:     traderID,
			Instrument:   instrument.String,
			Direction:    domain.Direction(direction.String),
			EntryPrice:   entryPrice.Float64,
			StopLoss:     stopLoss.Float64,
			TakeProfit1:  tp1.Float64,
			TakeProfit2:  tp2.Float64,
			MarginUsed:   marginUsed.Float64,
			Leverage:     leverage.Float64,
			Note:         note.String,
			Status:       domain.TradeStatus(status.String),
			OpenedAt:     eventTime,
			ExitPrice:    exitPrice.Float64,
			PnlUSD:       pnlUSD.Float64,
			PnlPercent:   pnlPercent.Float64,
			RiskReward:   riskReward.Float64,
			PositionSize: positionSize.Float64,
		}
		if closedAt.Valid {
			t.ClosedAt = closedAt.Time
		}
		return domain.LedgerEvent{Type: domain.EventTrade, Trade: t}, nil
	case domain.EventCashFlow:
		return domain.LedgerEvent{Type: domain.EventCashFlow, CashFlow: &domain.CashFlow{
			ID:         id,
			TraderID:   traderID,
			Type:       domain.CashFlowType(flowType.String),
			Amount:     amount.Float64,
			OccurredAt: eventTime,
		}}, nil
	default:
		return domain.LedgerEvent{}, fmt.Errorf("unknown event type %q in ledger stream", eventType)
	}
}
