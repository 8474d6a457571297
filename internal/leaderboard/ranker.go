package leaderboard

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"tradeledger/internal/analytics"
	"tradeledger/internal/domain"
	"tradeledger/internal/ports"
)

// Entry is one anonymized row on a leaderboard list.
type Entry struct {
	DisplayName string  `json:"anonymizedName"`
	Metric      float64 `json:"metric"`
	TradeCount  int     `json:"tradeCount"`
}

// Board holds the three ranked lists, each sorted descending by its metric.
type Board struct {
	WinRate      []Entry   `json:"winRate"`
	AverageRR    []Entry   `json:"averageRR"`
	ProfitFactor []Entry   `json:"profitFactor"`
	GeneratedAt  time.Time `json:"generatedAt"`
}

// Config holds construction parameters for the Ranker.
type Config struct {
	Repo     ports.LedgerRepository
	Logger   ports.Logger
	Clock    ports.Clock
	TTL      time.Duration // Cache lifetime; DefaultTTL if zero
	RatioCap float64       // Sentinel for capped ratios; 0 means pnl default
}

// DefaultTTL is the cache lifetime when none is configured.
const DefaultTTL = time.Hour

// Ranker computes the cross-trader leaderboard and serves it from a
// single-slot TTL cache. Concurrent cache misses are deduplicated through a
// singleflight group so the full-base rescan runs at most once at a time.
type Ranker struct {
	repo     ports.LedgerRepository
	logger   ports.Logger
	clock    ports.Clock
	ttl      time.Duration
	ratioCap float64

	mu        sync.Mutex
	cached    *Board
	expiresAt time.Time
	group     singleflight.Group
}

// NewRanker creates a leaderboard ranker.
func NewRanker(cfg Config) (*Ranker, error) {
	if cfg.Repo == nil || cfg.Logger == nil || cfg.Clock == nil {
		return nil, fmt.Errorf("missing required dependencies for leaderboard Ranker")
	}
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Ranker{
		repo:     cfg.Repo,
		logger:   cfg.Logger,
		clock:    cfg.Clock,
		ttl:      ttl,
		ratioCap: cfg.RatioCap,
	}, nil
}

// GetBoard returns the current leaderboard, recomputing it across all
// traders when the cached copy has expired. A store outage fails the whole
// call; a single trader's read failure is skipped.
func (r *Ranker) GetBoard(ctx context.Context) (*Board, error) {
	now := r.clock.Now()

	r.mu.Lock()
	if r.cached != nil && now.Before(r.expiresAt) {
		board := r.cached
		r.mu.Unlock()
		return board, nil
	}
	r.mu.Unlock()

	v, err, _ := r.group.Do("board", func() (interface{}, error) {
		board, err := r.recompute(ctx)
		if err != nil {
			return nil, err
		}
		r.mu.Lock()
		r.cached = board
		r.expiresAt = board.GeneratedAt.Add(r.ttl)
		r.mu.Unlock()
		return board, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Board), nil
}

// Invalidate drops the cached board so the next request recomputes.
func (r *Ranker) Invalidate() {
	r.mu.Lock()
	r.cached = nil
	r.expiresAt = time.Time{}
	r.mu.Unlock()
}

// recompute rescans every trader's closed-trade history and rebuilds the
// three ranked lists.
func (r *Ranker) recompute(ctx context.Context) (*Board, error) {
	op := "leaderboard.recompute"
	now := r.clock.Now()

	traderIDs, err := r.repo.ListTraderIDs(ctx)
	if err != nil {
		r.logger.Error(ctx, err, op+": failed to list traders")
		return nil, fmt.Errorf("%w: listing traders failed", ports.ErrServiceUnavailable)
	}

	board := &Board{
		WinRate:      make([]Entry, 0, len(traderIDs)),
		AverageRR:    make([]Entry, 0, len(traderIDs)),
		ProfitFactor: make([]Entry, 0, len(traderIDs)),
		GeneratedAt:  now,
	}

	for _, traderID := range traderIDs {
		trades, err := r.repo.FindClosedTrades(ctx, traderID)
		if err != nil {
			// One trader's read failure must not poison the aggregate.
			r.logger.Warn(ctx, op+": skipping trader after read failure", map[string]interface{}{
				"traderID": traderID, "error": err.Error(),
			})
			continue
		}
		if len(trades) == 0 {
			continue
		}

		events := make([]domain.LedgerEvent, 0, len(trades))
		for _, t := range trades {
			events = append(events, domain.LedgerEvent{Type: domain.EventTrade, Trade: t})
		}
		snap := analytics.Compute(events, 0, now, r.ratioCap)

		name := r.displayName(ctx, traderID)
		board.WinRate = append(board.WinRate, Entry{DisplayName: name, Metric: snap.WinRate, TradeCount: snap.TotalTrades})
		board.AverageRR = append(board.AverageRR, Entry{DisplayName: name, Metric: snap.AverageRR, TradeCount: snap.TotalTrades})
		board.ProfitFactor = append(board.ProfitFactor, Entry{DisplayName: name, Metric: snap.ProfitFactor, TradeCount: snap.TotalTrades})
	}

	sortDescending(board.WinRate)
	sortDescending(board.AverageRR)
	sortDescending(board.ProfitFactor)

	r.logger.Info(ctx, op+": leaderboard rebuilt", map[string]interface{}{
		"traders": len(board.WinRate), "generatedAt": now,
	})
	return board, nil
}

// displayName resolves the public name for a trader, falling back to the
// anonymized handle when none is set or the summary cannot be read.
func (r *Ranker) displayName(ctx context.Context, traderID string) string {
	summary, err := r.repo.GetSummary(ctx, traderID)
	if err == nil && summary != nil && summary.DisplayName != "" {
		return summary.DisplayName
	}
	return AnonymizeTraderID(traderID)
}

// AnonymizeTraderID derives a stable, non-reversible pseudonym from a trader
// identifier: a truncated one-way digest with a fixed prefix. The same
// identifier always maps to the same handle.
func AnonymizeTraderID(traderID string) string {
	sum := sha256.Sum256([]byte(traderID))
	return "Trader-" + hex.EncodeToString(sum[:4])
}

func sortDescending(entries []Entry) {
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Metric > entries[j].Metric
	})
}
