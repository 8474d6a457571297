package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradeledger/internal/app"
	"tradeledger/internal/domain"
	"tradeledger/internal/leaderboard"
	"tradeledger/internal/ports"
)

type nopLogger struct{}

func (nopLogger) Debug(ctx context.Context, msg string, fields ...map[string]interface{}) {}
func (nopLogger) Info(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (nopLogger) Warn(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (nopLogger) Error(ctx context.Context, err error, msg string, fields ...map[string]interface{}) {
}

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

// memRepo is a minimal in-memory store backing the full stack under test.
type memRepo struct {
	summaries map[string]*domain.LedgerSummary
	trades    map[string]*domain.Trade
	flows     map[string]*domain.CashFlow
	nextID    int
}

func newMemRepo() *memRepo {
	return &memRepo{
		summaries: make(map[string]*domain.LedgerSummary),
		trades:    make(map[string]*domain.Trade),
		flows:     make(map[string]*domain.CashFlow),
	}
}

func (m *memRepo) newID() string {
	m.nextID++
	return "id-" + strconv.Itoa(m.nextID)
}

func (m *memRepo) UpsertSummary(ctx context.Context, summary *domain.LedgerSummary) error {
	cp := *summary
	m.summaries[summary.TraderID] = &cp
	return nil
}

func (m *memRepo) GetSummary(ctx context.Context, traderID string) (*domain.LedgerSummary, error) {
	s, ok := m.summaries[traderID]
	if !ok {
		return nil, nil
	}
	cp := *s
	return &cp, nil
}

func (m *memRepo) InsertTrade(ctx context.Context, trade *domain.Trade) (string, error) {
	id := m.newID()
	cp := *trade
	cp.ID = id
	m.trades[id] = &cp
	return id, nil
}

func (m *memRepo) UpdateTrade(ctx context.Context, trade *domain.Trade) error {
	existing, ok := m.trades[trade.ID]
	if !ok || existing.TraderID != trade.TraderID {
		return ports.ErrNotFound
	}
	cp := *trade
	m.trades[trade.ID] = &cp
	return nil
}

func (m *memRepo) FindTrade(ctx context.Context, traderID, tradeID string) (*domain.Trade, error) {
	t, ok := m.trades[tradeID]
	if !ok || t.TraderID != traderID {
		return nil, nil
	}
	cp := *t
	return &cp, nil
}

func (m *memRepo) DeleteTrade(ctx context.Context, traderID, tradeID string) error {
	t, ok := m.trades[tradeID]
	if !ok || t.TraderID != traderID {
		return ports.ErrNotFound
	}
	delete(m.trades, tradeID)
	return nil
}

func (m *memRepo) InsertCashFlow(ctx context.Context, flow *domain.CashFlow) (string, error) {
	id := m.newID()
	cp := *flow
	cp.ID = id
	m.flows[id] = &cp
	return id, nil
}

func (m *memRepo) FindEvents(ctx context.Context, traderID string) ([]domain.LedgerEvent, error) {
	events := make([]domain.LedgerEvent, 0)
	for _, t := range m.trades {
		if t.TraderID == traderID {
			cp := *t
			events = append(events, domain.LedgerEvent{Type: domain.EventTrade, Trade: &cp})
		}
	}
	for _, f := range m.flows {
		if f.TraderID == traderID {
			cp := *f
			events = append(events, domain.LedgerEvent{Type: domain.EventCashFlow, CashFlow: &cp})
		}
	}
	return events, nil
}

func (m *memRepo) FindClosedTrades(ctx context.Context, traderID string) ([]*domain.Trade, error) {
	trades := make([]*domain.Trade, 0)
	for _, t := range m.trades {
		if t.TraderID == traderID && t.Status == domain.StatusClosed {
			cp := *t
			trades = append(trades, &cp)
		}
	}
	return trades, nil
}

func (m *memRepo) ResetLedger(ctx context.Context, summary *domain.LedgerSummary) error {
	for id, t := range m.trades {
		if t.TraderID == summary.TraderID {
			delete(m.trades, id)
		}
	}
	for id, f := range m.flows {
		if f.TraderID == summary.TraderID {
			delete(m.flows, id)
		}
	}
	cp := *summary
	m.summaries[summary.TraderID] = &cp
	return nil
}

func (m *memRepo) ListTraderIDs(ctx context.Context) ([]string, error) {
	ids := make([]string, 0, len(m.summaries))
	for id := range m.summaries {
		ids = append(ids, id)
	}
	return ids, nil
}

func setupServer(t *testing.T) *httptest.Server {
	t.Helper()

	repo := newMemRepo()
	logger := nopLogger{}
	clock := fixedClock{now: time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC)}

	svc, err := app.NewLedgerService(app.Config{Repo: repo, Logger: logger, Clock: clock})
	require.NoError(t, err)
	ranker, err := leaderboard.NewRanker(leaderboard.Config{Repo: repo, Logger: logger, Clock: clock})
	require.NoError(t, err)

	router := SetupRoutes(&Dependencies{Ledger: svc, Ranker: ranker, Logger: logger})
	server := httptest.NewServer(router)
	t.Cleanup(server.Close)
	return server
}

func doRequest(t *testing.T, server *httptest.Server, method, path, traderID string, body interface{}) (*http.Response, map[string]interface{}) {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, server.URL+path, &buf)
	require.NoError(t, err)
	if traderID != "" {
		req.Header.Set("X-Trader-ID", traderID)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var decoded map[string]interface{}
	_ = json.NewDecoder(resp.Body).Decode(&decoded)
	return resp, decoded
}

func TestAPI_MissingTraderHeader(t *testing.T) {
	server := setupServer(t)

	resp, body := doRequest(t, server, http.MethodGet, "/api/v1/ledger", "", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.NotEmpty(t, body["error"])
}

func TestAPI_TradeLifecycle(t *testing.T) {
	server := setupServer(t)

	resp, _ := doRequest(t, server, http.MethodPut, "/api/v1/ledger/balance", "trader-1", map[string]interface{}{"balance": 5000.0})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body := doRequest(t, server, http.MethodPost, "/api/v1/trades", "trader-1", map[string]interface{}{
		"instrument": "BTCUSDT",
		"direction":  "Long",
		"marginUsed": 1000.0,
		"entryPrice": 100.0,
		"stopLoss":   95.0,
		"leverage":   10.0,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	data := body["data"].(map[string]interface{})
	tradeID := data["id"].(string)
	assert.Equal(t, "open", data["status"])
	assert.Equal(t, 10000.0, data["positionSize"])
	assert.NotContains(t, data, "traderID", "owner identity never serializes outward")
	assert.Contains(t, data, "openTimestamp")

	resp, body = doRequest(t, server, http.MethodPost, "/api/v1/trades/"+tradeID+"/close", "trader-1", map[string]interface{}{"exitPrice": 105.0})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	closeData := body["data"].(map[string]interface{})
	assert.Equal(t, 500.0, closeData["pnl"])

	// Second close conflicts.
	resp, _ = doRequest(t, server, http.MethodPost, "/api/v1/trades/"+tradeID+"/close", "trader-1", map[string]interface{}{"exitPrice": 110.0})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp, body = doRequest(t, server, http.MethodGet, "/api/v1/analytics", "trader-1", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 1.0, body["totalTrades"])
	assert.Equal(t, 500.0, body["totalPnl"])
}

func TestAPI_ErrorMapping(t *testing.T) {
	server := setupServer(t)

	t.Run("validation is 400", func(t *testing.T) {
		resp, _ := doRequest(t, server, http.MethodPut, "/api/v1/ledger/balance", "trader-1", map[string]interface{}{"balance": -10.0})
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("unknown trade is 404", func(t *testing.T) {
		resp, _ := doRequest(t, server, http.MethodPost, "/api/v1/trades/no-such-id/close", "trader-1", map[string]interface{}{"exitPrice": 100.0})
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})

	t.Run("malformed body is 400", func(t *testing.T) {
		req, err := http.NewRequest(http.MethodPost, server.URL+"/api/v1/trades", bytes.NewBufferString("{not json"))
		require.NoError(t, err)
		req.Header.Set("X-Trader-ID", "trader-1")
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})
}

func TestAPI_Leaderboard(t *testing.T) {
	server := setupServer(t)

	resp, _ := doRequest(t, server, http.MethodPut, "/api/v1/ledger/balance", "trader-1", map[string]interface{}{"balance": 1000.0})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body := doRequest(t, server, http.MethodPost, "/api/v1/trades", "trader-1", map[string]interface{}{
		"instrument": "ETHUSDT",
		"direction":  "Short",
		"marginUsed": 500.0,
		"entryPrice": 50000.0,
		"stopLoss":   51000.0,
		"leverage":   20.0,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	tradeID := body["data"].(map[string]interface{})["id"].(string)

	resp, _ = doRequest(t, server, http.MethodPost, "/api/v1/trades/"+tradeID+"/close", "trader-1", map[string]interface{}{"exitPrice": 48000.0})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, board := doRequest(t, server, http.MethodGet, "/api/v1/leaderboard", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, "leaderboard is public, no trader header needed")

	winRate := board["winRate"].([]interface{})
	require.Len(t, winRate, 1)
	entry := winRate[0].(map[string]interface{})
	assert.Equal(t, 100.0, entry["metric"])
	assert.Equal(t, leaderboard.AnonymizeTraderID("trader-1"), entry["anonymizedName"])
}

func TestAPI_Health(t *testing.T) {
	server := setupServer(t)
	resp, err := http.Get(server.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
