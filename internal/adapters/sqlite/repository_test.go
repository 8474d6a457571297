package sqlite

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradeledger/internal/domain"
	"tradeledger/internal/ports"
)

// mockLogger implements ports.Logger for testing
type mockLogger struct{}

func (m *mockLogger) Debug(ctx context.Context, msg string, fields ...map[string]interface{}) {}
func (m *mockLogger) Info(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *mockLogger) Warn(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *mockLogger) Error(ctx context.Context, err error, msg string, fields ...map[string]interface{}) {
}

// setupTestDB creates a temporary database for testing
func setupTestDB(t *testing.T) (*Repository, func()) {
	t.Helper()

	tmpDir, err := os.MkdirTemp("", "trade-ledger-test-*")
	require.NoError(t, err)

	dbPath := filepath.Join(tmpDir, "test.db")
	repo, err := NewRepository(Config{
		DBPath: dbPath,
		Logger: &mockLogger{},
	})
	require.NoError(t, err)

	cleanup := func() {
		repo.Close()
		os.RemoveAll(tmpDir)
	}

	return repo, cleanup
}

var baseTime = time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC)

func sampleTrade(traderID string, openedAt time.Time) *domain.Trade {
	return &domain.Trade{
		TraderID:     traderID,
		Instrument:   "BTCUSDT",
		Direction:    domain.Long,
		EntryPrice:   100.0,
		StopLoss:     95.0,
		TakeProfit1:  110.0,
		MarginUsed:   1000.0,
		Leverage:     10.0,
		Note:         "breakout entry",
		Status:       domain.StatusOpen,
		OpenedAt:     openedAt,
		PositionSize: 10000.0,
	}
}

func TestRepository_SummaryRoundTrip(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	got, err := repo.GetSummary(ctx, "trader-1")
	require.NoError(t, err)
	assert.Nil(t, got, "absent summary is nil, not an error")

	summary := &domain.LedgerSummary{
		TraderID:       "trader-1",
		InitialBalance: 5000.0,
		DisplayName:    "CryptoKing",
		UpdatedAt:      baseTime,
	}
	require.NoError(t, repo.UpsertSummary(ctx, summary))

	got, err = repo.GetSummary(ctx, "trader-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, 5000.0, got.InitialBalance)
	assert.Equal(t, "CryptoKing", got.DisplayName)

	// Upsert overwrites in place.
	summary.InitialBalance = 7500.0
	require.NoError(t, repo.UpsertSummary(ctx, summary))
	got, err = repo.GetSummary(ctx, "trader-1")
	require.NoError(t, err)
	assert.Equal(t, 7500.0, got.InitialBalance)
}

func TestRepository_TradeRoundTrip(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	trade := sampleTrade("trader-1", baseTime)
	id, err := repo.InsertTrade(ctx, trade)
	require.NoError(t, err)
	require.NotEmpty(t, id)

	got, err := repo.FindTrade(ctx, "trader-1", id)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "trader-1", got.TraderID)
	assert.Equal(t, "BTCUSDT", got.Instrument)
	assert.Equal(t, domain.Long, got.Direction)
	assert.Equal(t, 100.0, got.EntryPrice)
	assert.Equal(t, domain.StatusOpen, got.Status)
	assert.Equal(t, "breakout entry", got.Note)
	assert.True(t, got.ClosedAt.IsZero(), "open trade has no close timestamp")

	// Another trader cannot see it.
	invisible, err := repo.FindTrade(ctx, "trader-2", id)
	require.NoError(t, err)
	assert.Nil(t, invisible)

	// Unknown ID is nil, not an error.
	missing, err := repo.FindTrade(ctx, "trader-1", "no-such-id")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestRepository_UpdateTrade(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	trade := sampleTrade("trader-1", baseTime)
	id, err := repo.InsertTrade(ctx, trade)
	require.NoError(t, err)

	trade.Status = domain.StatusClosed
	trade.ClosedAt = baseTime.Add(2 * time.Hour)
	trade.ExitPrice = 105.0
	trade.PnlUSD = 500.0
	trade.PnlPercent = 50.0
	trade.RiskReward = 1.0
	require.NoError(t, repo.UpdateTrade(ctx, trade))

	got, err := repo.FindTrade(ctx, "trader-1", id)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, domain.StatusClosed, got.Status)
	assert.Equal(t, 105.0, got.ExitPrice)
	assert.Equal(t, 500.0, got.PnlUSD)
	assert.False(t, got.ClosedAt.IsZero())

	t.Run("unknown trade is not found", func(t *testing.T) {
		ghost := sampleTrade("trader-1", baseTime)
		ghost.ID = "no-such-id"
		err := repo.UpdateTrade(ctx, ghost)
		assert.ErrorIs(t, err, ports.ErrNotFound)
	})

	t.Run("other trader's trade is not found", func(t *testing.T) {
		stolen := *trade
		stolen.TraderID = "trader-2"
		err := repo.UpdateTrade(ctx, &stolen)
		assert.ErrorIs(t, err, ports.ErrNotFound)
	})
}

func TestRepository_DeleteTrade(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	id, err := repo.InsertTrade(ctx, sampleTrade("trader-1", baseTime))
	require.NoError(t, err)

	require.NoError(t, repo.DeleteTrade(ctx, "trader-1", id))

	got, err := repo.FindTrade(ctx, "trader-1", id)
	require.NoError(t, err)
	assert.Nil(t, got)

	err = repo.DeleteTrade(ctx, "trader-1", id)
	assert.ErrorIs(t, err, ports.ErrNotFound)
}

func TestRepository_FindEvents_Ordering(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	// Insert out of chronological order; the stream must come back sorted.
	_, err := repo.InsertTrade(ctx, sampleTrade("trader-1", baseTime.Add(2*time.Hour)))
	require.NoError(t, err)
	_, err = repo.InsertCashFlow(ctx, &domain.CashFlow{
		TraderID:   "trader-1",
		Type:       domain.Deposit,
		Amount:     100.0,
		OccurredAt: baseTime,
	})
	require.NoError(t, err)
	_, err = repo.InsertCashFlow(ctx, &domain.CashFlow{
		TraderID:   "trader-1",
		Type:       domain.Withdraw,
		Amount:     -50.0,
		OccurredAt: baseTime.Add(4 * time.Hour),
	})
	require.NoError(t, err)

	// A different trader's events stay out of the stream.
	_, err = repo.InsertTrade(ctx, sampleTrade("trader-2", baseTime))
	require.NoError(t, err)

	events, err := repo.FindEvents(ctx, "trader-1")
	require.NoError(t, err)
	require.Len(t, events, 3)

	assert.Equal(t, domain.EventCashFlow, events[0].Type)
	assert.Equal(t, 100.0, events[0].CashFlow.Amount)
	assert.Equal(t, domain.EventTrade, events[1].Type)
	assert.Equal(t, "BTCUSDT", events[1].Trade.Instrument)
	assert.Equal(t, domain.EventCashFlow, events[2].Type)
	assert.Equal(t, -50.0, events[2].CashFlow.Amount)

	for i := 1; i < len(events); i++ {
		assert.False(t, events[i].Timestamp().Before(events[i-1].Timestamp()))
	}
}

func TestRepository_FindClosedTrades(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	// One open trade, two closed in reverse close order.
	_, err := repo.InsertTrade(ctx, sampleTrade("trader-1", baseTime))
	require.NoError(t, err)

	second := sampleTrade("trader-1", baseTime.Add(time.Hour))
	_, err = repo.InsertTrade(ctx, second)
	require.NoError(t, err)
	second.Status = domain.StatusClosed
	second.ClosedAt = baseTime.Add(10 * time.Hour)
	second.PnlUSD = -100.0
	require.NoError(t, repo.UpdateTrade(ctx, second))

	first := sampleTrade("trader-1", baseTime.Add(2*time.Hour))
	_, err = repo.InsertTrade(ctx, first)
	require.NoError(t, err)
	first.Status = domain.StatusClosed
	first.ClosedAt = baseTime.Add(5 * time.Hour)
	first.PnlUSD = 200.0
	require.NoError(t, repo.UpdateTrade(ctx, first))

	trades, err := repo.FindClosedTrades(ctx, "trader-1")
	require.NoError(t, err)
	require.Len(t, trades, 2, "open trades are excluded")
	assert.Equal(t, 200.0, trades[0].PnlUSD, "ordered by close time ascending")
	assert.Equal(t, -100.0, trades[1].PnlUSD)
	assert.Equal(t, "trader-1", trades[0].TraderID)
}

func TestRepository_ResetLedger(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	require.NoError(t, repo.UpsertSummary(ctx, &domain.LedgerSummary{
		TraderID:       "trader-1",
		InitialBalance: 1000.0,
		UpdatedAt:      baseTime,
	}))
	for i := 0; i < 5; i++ {
		_, err := repo.InsertTrade(ctx, sampleTrade("trader-1", baseTime.Add(time.Duration(i)*time.Hour)))
		require.NoError(t, err)
	}
	for i := 0; i < 3; i++ {
		_, err := repo.InsertCashFlow(ctx, &domain.CashFlow{
			TraderID:   "trader-1",
			Type:       domain.Deposit,
			Amount:     100.0,
			OccurredAt: baseTime.Add(time.Duration(i) * time.Minute),
		})
		require.NoError(t, err)
	}
	// Neighboring trader, untouched by the reset.
	otherID, err := repo.InsertTrade(ctx, sampleTrade("trader-2", baseTime))
	require.NoError(t, err)

	require.NoError(t, repo.ResetLedger(ctx, &domain.LedgerSummary{
		TraderID:       "trader-1",
		InitialBalance: 2000.0,
		UpdatedAt:      baseTime.Add(24 * time.Hour),
	}))

	events, err := repo.FindEvents(ctx, "trader-1")
	require.NoError(t, err)
	assert.Empty(t, events)

	summary, err := repo.GetSummary(ctx, "trader-1")
	require.NoError(t, err)
	require.NotNil(t, summary)
	assert.Equal(t, 2000.0, summary.InitialBalance)

	survivor, err := repo.FindTrade(ctx, "trader-2", otherID)
	require.NoError(t, err)
	assert.NotNil(t, survivor, "other traders' ledgers are untouched")
}

func TestRepository_ExpiredDeadlineMapsToServiceUnavailable(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()

	// An already-expired deadline makes every store call fail before touching
	// the database; the caller must see a retryable outage, not a raw error.
	ctx, cancel := context.WithDeadline(context.Background(), time.Now().Add(-time.Second))
	defer cancel()

	_, err := repo.GetSummary(ctx, "trader-1")
	require.Error(t, err)
	assert.ErrorIs(t, err, ports.ErrServiceUnavailable)

	err = repo.UpsertSummary(ctx, &domain.LedgerSummary{
		TraderID:       "trader-1",
		InitialBalance: 1000.0,
		UpdatedAt:      baseTime,
	})
	assert.ErrorIs(t, err, ports.ErrServiceUnavailable)

	_, err = repo.FindEvents(ctx, "trader-1")
	assert.ErrorIs(t, err, ports.ErrServiceUnavailable)
}

func TestWrapStoreErr(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{"deadline exceeded", context.DeadlineExceeded, ports.ErrServiceUnavailable},
		{"database busy", sqlite3.Error{Code: sqlite3.ErrBusy}, ports.ErrServiceUnavailable},
		{"database locked", sqlite3.Error{Code: sqlite3.ErrLocked}, ports.ErrServiceUnavailable},
		{"not found passes through", ports.ErrNotFound, ports.ErrNotFound},
		{"conflict passes through", ports.ErrConflict, ports.ErrConflict},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := wrapStoreErr(tt.err, "test operation")
			assert.ErrorIs(t, got, tt.want)
		})
	}

	t.Run("nil stays nil", func(t *testing.T) {
		assert.NoError(t, wrapStoreErr(nil, "test operation"))
	})

	t.Run("other errors are not misclassified", func(t *testing.T) {
		got := wrapStoreErr(errors.New("constraint violated"), "test operation")
		require.Error(t, got)
		assert.NotErrorIs(t, got, ports.ErrServiceUnavailable)
	})
}

func TestRepository_ListTraderIDs(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	ids, err := repo.ListTraderIDs(ctx)
	require.NoError(t, err)
	assert.Empty(t, ids)

	for _, id := range []string{"bravo", "alpha", "charlie"} {
		require.NoError(t, repo.UpsertSummary(ctx, &domain.LedgerSummary{
			TraderID:       id,
			InitialBalance: 1000.0,
			UpdatedAt:      baseTime,
		}))
	}

	ids, err = repo.ListTraderIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"alpha", "bravo", "charlie"}, ids)
}
