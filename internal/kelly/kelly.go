// Package kelly computes conservative stake suggestions from the Kelly
// criterion: given a trader's subjective belief and the market's current
// price, how much of their balance a fractional-Kelly strategy would
// risk. It is advisory only — the transaction engine never consults it,
// and a suggestion is never clamped against or compared to an actual
// trade.
package kelly

import (
	"fmt"
	"math"

	"github.com/socialpredict/lmsrcore/internal/coreerr"
)

// Suggestion is the result of a Kelly computation.
type Suggestion struct {
	KellyStake   float64 `json:"kellyStake"`
	QuarterKelly float64 `json:"quarterKelly"`
	CurrentProb  float64 `json:"currentProb"`
	Balance      float64 `json:"balance"`
	Edge         float64 `json:"edge"`
}

// Suggest computes a fractional-Kelly stake suggestion for a trader who
// believes the true probability is belief, against a market currently
// priced at marketProb, with the given available balance. kellyFraction
// and maxKellyFraction come from internal/config and bound how
// aggressive the suggestion is; kellyFraction is clamped to
// [0, maxKellyFraction] defensively even though Config.validate already
// enforces this.
//
// edge is the relative improvement the trader believes they have over
// the market price:
//
//	belief > marketProb: edge = (belief - marketProb) / (1 - marketProb)
//	belief <= marketProb: edge = (marketProb - belief) / marketProb
//
// The suggested stake is edge * balance * kellyFraction, clamped to
// [0, balance * kellyFraction].
func Suggest(belief, marketProb, balance, kellyFraction, maxKellyFraction float64) (Suggestion, error) {
	if err := validateInputs(belief, marketProb, balance); err != nil {
		return Suggestion{}, err
	}

	if kellyFraction < 0 {
		kellyFraction = 0
	}
	if kellyFraction > maxKellyFraction {
		kellyFraction = maxKellyFraction
	}

	var edge float64
	if belief > marketProb {
		edge = (belief - marketProb) / (1 - marketProb)
	} else {
		edge = (marketProb - belief) / marketProb
	}

	cap := balance * kellyFraction
	stake := edge * balance * kellyFraction
	if stake < 0 {
		stake = 0
	}
	if stake > cap {
		stake = cap
	}

	return Suggestion{
		KellyStake:   stake,
		QuarterKelly: stake / 4,
		CurrentProb:  marketProb,
		Balance:      balance,
		Edge:         edge,
	}, nil
}

func validateInputs(belief, marketProb, balance float64) error {
	if math.IsNaN(belief) || math.IsInf(belief, 0) || belief <= 0 || belief >= 1 {
		return fmt.Errorf("%w: belief must be in (0,1), got %v", coreerr.ErrInvalidInputs, belief)
	}
	if math.IsNaN(marketProb) || math.IsInf(marketProb, 0) || marketProb <= 0 || marketProb >= 1 {
		return fmt.Errorf("%w: marketProb must be in (0,1), got %v", coreerr.ErrInvalidInputs, marketProb)
	}
	if math.IsNaN(balance) || math.IsInf(balance, 0) || balance < 0 {
		return fmt.Errorf("%w: balance must be non-negative and finite, got %v", coreerr.ErrInvalidInputs, balance)
	}
	return nil
}
