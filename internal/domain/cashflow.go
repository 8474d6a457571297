package domain

import "time"

// CashFlow represents a deposit into or withdrawal from a trader's account.
// Amount is signed: positive for deposits, negative for withdrawals.
type CashFlow struct {
	ID         string       `json:"id"`        // Unique identifier (UUID, assigned by the store)
	TraderID   string       `json:"-"`         // Owning trader
	Type       CashFlowType `json:"type"`      // deposit or withdraw
	Amount     float64      `json:"amount"`    // Signed amount in USD
	OccurredAt time.Time    `json:"timestamp"` // Timestamp of the movement
}
