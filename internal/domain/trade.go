package domain

import "time"

// Trade represents a leveraged position recorded in a trader's ledger.
type Trade struct {
	ID          string      `json:"id"`                    // Unique identifier (UUID, assigned by the store)
	TraderID    string      `json:"-"`                     // Owning trader; never serialized outward
	Instrument  string      `json:"instrument"`            // Traded instrument (e.g., "BTCUSDT")
	Direction   Direction   `json:"direction"`             // Long or Short
	EntryPrice  float64     `json:"entryPrice"`            // Price at which the position was entered
	StopLoss    float64     `json:"stopLoss"`              // Stop-loss price level
	TakeProfit1 float64     `json:"takeProfit1,omitempty"` // First target price (0 if unset)
	TakeProfit2 float64     `json:"takeProfit2,omitempty"` // Second target price (0 if unset)
	MarginUsed  float64     `json:"marginUsed"`            // Margin committed to the position, in USD
	Leverage    float64     `json:"leverage"`              // Leverage multiplier
	Note        string      `json:"note,omitempty"`        // Free-form note, at most MaxNoteLength chars
	Status      TradeStatus `json:"status"`                // open or closed
	OpenedAt    time.Time   `json:"openTimestamp"`         // Timestamp when the trade was recorded
	ClosedAt    time.Time   `json:"closeTimestamp"`        // Timestamp of close (zero value while open)

	// Derived fields, written once at close (PositionSize at open).
	ExitPrice    float64 `json:"exitPrice"`    // Price at which the position was exited (0 while open)
	PnlUSD       float64 `json:"pnlUsd"`       // Realized profit and loss in USD
	PnlPercent   float64 `json:"pnlPercent"`   // Return on margin, in percent
	RiskReward   float64 `json:"riskReward"`   // Realized PnL over capital at risk, sentinel-capped
	PositionSize float64 `json:"positionSize"` // MarginUsed x Leverage, fixed at open
}

// IsOpen reports whether the trade is still open.
func (t *Trade) IsOpen() bool {
	return t.Status == StatusOpen
}

// IsWin reports whether the trade closed with a positive PnL.
func (t *Trade) IsWin() bool {
	return t.Status == StatusClosed && t.PnlUSD > 0
}
