package domain

import "time"

// LedgerSummary holds the per-trader account header. It is created on the
// first balance set and overwritten by a reset.
type LedgerSummary struct {
	TraderID       string    `json:"-"`
	InitialBalance float64   `json:"initialBalance"`
	DisplayName    string    `json:"displayName,omitempty"` // Optional public name shown on the leaderboard
	UpdatedAt      time.Time `json:"updatedAt"`
}

// LedgerEvent is the tagged union of the two record variants sharing a
// trader's time-ordered stream. Exactly one of Trade/CashFlow is non-nil,
// matching Type.
type LedgerEvent struct {
	Type     EventType
	Trade    *Trade
	CashFlow *CashFlow
}

// Timestamp returns the time the event entered the stream: the open time for
// trades, the movement time for cash flows.
func (e LedgerEvent) Timestamp() time.Time {
	switch e.Type {
	case EventTrade:
		return e.Trade.OpenedAt
	case EventCashFlow:
		return e.CashFlow.OccurredAt
	}
	return time.Time{}
}

// BalanceDelta returns the event's contribution to the balance curve:
// realized PnL for closed trades, the signed amount for cash flows, and zero
// for trades still open.
func (e LedgerEvent) BalanceDelta() float64 {
	switch e.Type {
	case EventTrade:
		if e.Trade.Status == StatusClosed {
			return e.Trade.PnlUSD
		}
		return 0
	case EventCashFlow:
		return e.CashFlow.Amount
	}
	return 0
}
