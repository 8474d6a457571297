package analytics

import (
	"sort"
	"time"

	"tradeledger/internal/domain"
	"tradeledger/internal/pnl"
)

// Snapshot holds the analytics derived from one trader's ledger. It is
// recomputed from scratch on every query and never persisted.
type Snapshot struct {
	// Trade statistics
	TotalTrades   int     `json:"totalTrades"` // Closed trades only
	WinningTrades int     `json:"winningTrades"`
	LosingTrades  int     `json:"losingTrades"`
	WinRate       float64 `json:"winRate"`      // Winning / total closed trades, in percent
	AverageRR     float64 `json:"averageRR"`    // Mean risk-reward over winning trades
	ProfitFactor  float64 `json:"profitFactor"` // Gross winning PnL / |gross losing PnL|, capped
	GrossProfit   float64 `json:"grossProfit"`  // Sum of positive PnL
	GrossLoss     float64 `json:"grossLoss"`    // Sum of negative PnL (negative or zero)

	// Period PnL, windows anchored to "now"
	TotalPnl          float64 `json:"totalPnl"`
	DailyPnl          float64 `json:"dailyPnl"`
	WeeklyPnl         float64 `json:"weeklyPnl"`
	MonthlyPnl        float64 `json:"monthlyPnl"`
	TotalPnlPercent   float64 `json:"totalPnlPercent"` // Relative to the initial balance
	DailyPnlPercent   float64 `json:"dailyPnlPercent"`
	WeeklyPnlPercent  float64 `json:"weeklyPnlPercent"`
	MonthlyPnlPercent float64 `json:"monthlyPnlPercent"`

	// Balance curve
	MaxDrawdown  float64        `json:"maxDrawdown"` // Maximum peak-to-trough relative decline
	FinalBalance float64        `json:"finalBalance"`
	BalanceCurve []BalancePoint `json:"balanceCurve"`
}

// BalancePoint is one point on the cumulative balance curve.
type BalancePoint struct {
	Time    time.Time `json:"time"`
	Balance float64   `json:"balance"`
}

// Compute folds a trader's full event stream into a Snapshot. Events are
// processed in ascending timestamp order; the curve is seeded at the initial
// balance one day before the first event. ratioCap bounds the profit factor
// when there are winners but no losers (0 means pnl.DefaultRatioCap).
func Compute(events []domain.LedgerEvent, initialBalance float64, now time.Time, ratioCap float64) Snapshot {
	if ratioCap == 0 {
		ratioCap = pnl.DefaultRatioCap
	}

	snap := Snapshot{FinalBalance: initialBalance}

	sorted := make([]domain.LedgerEvent, len(events))
	copy(sorted, events)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Timestamp().Before(sorted[j].Timestamp())
	})

	// Synthetic starting point so the curve has an origin even when the
	// first event already moves the balance.
	start := now.AddDate(0, 0, -1)
	if len(sorted) > 0 {
		start = sorted[0].Timestamp().AddDate(0, 0, -1)
	}
	snap.BalanceCurve = append(snap.BalanceCurve, BalancePoint{Time: start, Balance: initialBalance})

	balance := initialBalance
	peak := initialBalance
	var sumWinnerRR float64

	dayAgo := now.AddDate(0, 0, -1)
	weekAgo := now.AddDate(0, 0, -7)
	monthAgo := now.AddDate(0, -1, 0)

	for _, ev := range sorted {
		delta := ev.BalanceDelta()

		if ev.Type == domain.EventTrade && ev.Trade.Status == domain.StatusClosed {
			t := ev.Trade
			snap.TotalTrades++
			if t.PnlUSD > 0 {
				snap.WinningTrades++
				snap.GrossProfit += t.PnlUSD
				sumWinnerRR += t.RiskReward
			} else {
				snap.LosingTrades++
				snap.GrossLoss += t.PnlUSD
			}

			snap.TotalPnl += t.PnlUSD
			if !t.ClosedAt.Before(dayAgo) {
				snap.DailyPnl += t.PnlUSD
			}
			if !t.ClosedAt.Before(weekAgo) {
				snap.WeeklyPnl += t.PnlUSD
			}
			if !t.ClosedAt.Before(monthAgo) {
				snap.MonthlyPnl += t.PnlUSD
			}
		}

		if delta == 0 && ev.Type == domain.EventTrade {
			// Open trades do not move the curve.
			continue
		}

		balance += delta
		if balance > peak {
			peak = balance
		} else if peak > 0 {
			dd := (peak - balance) / peak
			if dd > snap.MaxDrawdown {
				snap.MaxDrawdown = dd
			}
		}
		snap.BalanceCurve = append(snap.BalanceCurve, BalancePoint{Time: ev.Timestamp(), Balance: balance})
	}
	snap.FinalBalance = balance

	if snap.TotalTrades > 0 {
		snap.WinRate = float64(snap.WinningTrades) / float64(snap.TotalTrades) * 100
	}
	if snap.WinningTrades > 0 {
		snap.AverageRR = sumWinnerRR / float64(snap.WinningTrades)
	}
	switch {
	case snap.TotalTrades == 0:
		snap.ProfitFactor = 0
	case snap.GrossLoss < 0:
		snap.ProfitFactor = snap.GrossProfit / -snap.GrossLoss
	case snap.WinningTrades > 0:
		snap.ProfitFactor = ratioCap
	}

	if initialBalance > 0 {
		snap.TotalPnlPercent = snap.TotalPnl / initialBalance * 100
		snap.DailyPnlPercent = snap.DailyPnl / initialBalance * 100
		snap.WeeklyPnlPercent = snap.WeeklyPnl / initialBalance * 100
		snap.MonthlyPnlPercent = snap.MonthlyPnl / initialBalance * 100
	}

	return snap
}
