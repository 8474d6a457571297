package domain

// Direction represents the side of a leveraged position.
type Direction string

const (
	Long  Direction = "Long"
	Short Direction = "Short"
)

// IsValid reports whether the direction is one of the two known sides.
func (d Direction) IsValid() bool {
	return d == Long || d == Short
}

// TradeStatus represents the lifecycle state of a trade.
type TradeStatus string

const (
	StatusOpen   TradeStatus = "open"
	StatusClosed TradeStatus = "closed"
)

// CashFlowType represents the direction of a cash movement.
type CashFlowType string

const (
	Deposit  CashFlowType = "deposit"
	Withdraw CashFlowType = "withdraw"
)

// IsValid reports whether the cash flow type is known.
func (t CashFlowType) IsValid() bool {
	return t == Deposit || t == Withdraw
}

// EventType discriminates the two record variants that share a trader's
// time-ordered ledger stream.
type EventType string

const (
	EventTrade    EventType = "trade"
	EventCashFlow EventType = "cashflow"
)

// MaxNoteLength is the maximum length of a trade note, in characters.
const MaxNoteLength = 150
