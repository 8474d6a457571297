package ports

import "context"

// PriceSource defines the interface for fetching live prices used by
// what-if trade previews. This abstraction decouples the ledger core from a
// specific exchange implementation.
type PriceSource interface {
	// MarkPrice retrieves the current mark price for an instrument.
	MarkPrice(ctx context.Context, instrument string) (float64, error)
}
