package pnl

import (
	"fmt"
	"math"

	"tradeledger/internal/domain"
	"tradeledger/internal/ports"
)

const (
	// DefaultRatioCap is the named stand-in for an unbounded risk-reward
	// ratio when the risk denominator is effectively zero. Kept finite so
	// comparisons and serialization stay stable; override via Input.RatioCap.
	DefaultRatioCap = 9999.0

	// riskEpsilon is the threshold below which the entry-to-stop distance is
	// treated as zero risk.
	riskEpsilon = 1e-9
)

// Input holds the position parameters for a calculation. TargetPrice is the
// exit price at close time, or a probe price for a what-if preview.
type Input struct {
	Direction   domain.Direction
	EntryPrice  float64
	StopLoss    float64
	MarginUsed  float64
	Leverage    float64
	TargetPrice float64
	RatioCap    float64 // 0 means DefaultRatioCap
}

// Result holds the computed position economics.
type Result struct {
	PnlUSD       float64 // Realized or probed profit and loss in USD
	PnlPercent   float64 // Return on margin, in percent
	RiskUSD      float64 // Capital at risk: entry-to-stop distance in money terms
	RiskReward   float64 // PnlUSD / RiskUSD, capped when RiskUSD ~ 0
	PositionSize float64 // MarginUsed x Leverage
	CoinQuantity float64 // PositionSize / EntryPrice
}

// Compute derives position economics from entry, stop, margin, leverage and
// a target price. Pure and deterministic: identical inputs always yield
// identical results. Used both for pre-open previews and at close time.
func Compute(in Input) (Result, error) {
	if err := validate(in); err != nil {
		return Result{}, err
	}

	cap := in.RatioCap
	if cap == 0 {
		cap = DefaultRatioCap
	}

	positionSize := in.MarginUsed * in.Leverage
	coinQuantity := positionSize / in.EntryPrice

	var pnlUSD float64
	switch in.Direction {
	case domain.Long:
		pnlUSD = (in.TargetPrice - in.EntryPrice) * coinQuantity
	case domain.Short:
		pnlUSD = (in.EntryPrice - in.TargetPrice) * coinQuantity
	}

	// Leverage is already embedded in pnlUSD via the position size, so the
	// percent figure is plain return on margin.
	pnlPercent := pnlUSD / in.MarginUsed * 100

	riskUSD := math.Abs(in.EntryPrice-in.StopLoss) * coinQuantity

	var riskReward float64
	if riskUSD < riskEpsilon {
		if pnlUSD > 0 {
			riskReward = cap
		}
	} else {
		riskReward = pnlUSD / riskUSD
	}

	return Result{
		PnlUSD:       pnlUSD,
		PnlPercent:   pnlPercent,
		RiskUSD:      riskUSD,
		RiskReward:   riskReward,
		PositionSize: positionSize,
		CoinQuantity: coinQuantity,
	}, nil
}

// validate rejects any non-positive required field, naming the field in the
// error so callers need no translation.
func validate(in Input) error {
	if !in.Direction.IsValid() {
		return fmt.Errorf("%w: direction must be Long or Short", ports.ErrValidation)
	}
	if in.EntryPrice <= 0 {
		return fmt.Errorf("%w: entryPrice must be positive", ports.ErrValidation)
	}
	if in.StopLoss <= 0 {
		return fmt.Errorf("%w: stopLoss must be positive", ports.ErrValidation)
	}
	if in.MarginUsed <= 0 {
		return fmt.Errorf("%w: marginUsed must be positive", ports.ErrValidation)
	}
	if in.Leverage <= 0 {
		return fmt.Errorf("%w: leverage must be positive", ports.ErrValidation)
	}
	if in.TargetPrice <= 0 {
		return fmt.Errorf("%w: targetPrice must be positive", ports.ErrValidation)
	}
	return nil
}
