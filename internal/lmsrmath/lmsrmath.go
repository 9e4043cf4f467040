// Package lmsrmath implements the numerically stable core of the
// Logarithmic Market Scoring Rule (LMSR), originally developed by Robin
// Hanson for prediction markets, together with the fixed-point ledger
// conversion that keeps persisted money exact.
//
// LMSR provides:
//   - Bounded loss for the market maker (max loss = b * ln(2) for a binary
//     market)
//   - Always-available liquidity
//   - Price == probability
//
// Every function here is pure and panic-free on validated inputs; callers
// get a typed error (see internal/coreerr) instead of a crash.
//
// Reference: Hanson, R. (2003) "Logarithmic Market Scoring Rules for
// Modular Combinatorial Information Aggregation", George Mason University.
package lmsrmath

import (
	"fmt"
	"math"
	"strings"

	"github.com/socialpredict/lmsrcore/internal/coreerr"
)

// LedgerScale is the number of ledger units per RP (one ledger unit is one
// micro-RP). It is a compile-time constant per spec.
const LedgerScale = 1_000_000

// StakeOverflowGuard bounds stake/b: beyond this, exp(stake/b) would
// overflow float64.
const StakeOverflowGuard = 700.0

// Side selects which outcome quantity a trade acts on.
type Side int

const (
	Yes Side = iota
	No
)

// ParseSide parses "yes"/"no" (case-insensitive) at an API boundary.
func ParseSide(s string) (Side, error) {
	switch strings.ToLower(s) {
	case "yes":
		return Yes, nil
	case "no":
		return No, nil
	default:
		return 0, fmt.Errorf("%w: unknown side %q", coreerr.ErrInvalidInputs, s)
	}
}

func (s Side) String() string {
	if s == Yes {
		return "yes"
	}
	return "no"
}

// logSumExp computes ln(e^a + e^c) via the shift trick, avoiding overflow
// for large a/c while retaining precision near zero:
//
//	m = max(a, c); result = m + ln(e^(a-m) + e^(c-m))
func logSumExp(a, c float64) float64 {
	m := math.Max(a, c)
	if math.IsInf(m, -1) {
		return math.Inf(-1)
	}
	return m + math.Log(math.Exp(a-m)+math.Exp(c-m))
}

// Cost computes the LMSR cost function C(q) = b * logsumexp(qYes/b, qNo/b).
func Cost(qYes, qNo, b float64) float64 {
	a := qYes / b
	c := qNo / b
	return b * logSumExp(a, c)
}

// ProbYes returns the instantaneous YES probability, a numerically stable
// softmax of (qYes/b, qNo/b). The result always lies strictly inside
// (0, 1): when one exponential underflows and the ratio rounds to 0 or 1,
// the nearest representable value inside the interval is returned.
func ProbYes(qYes, qNo, b float64) float64 {
	a := qYes / b
	c := qNo / b
	m := math.Max(a, c)
	ey := math.Exp(a - m)
	en := math.Exp(c - m)
	p := ey / (ey + en)
	if p >= 1 {
		return math.Nextafter(1, 0)
	}
	if p <= 0 {
		return math.SmallestNonzeroFloat64
	}
	return p
}

// ValidateTradeInputs checks the shared preconditions for a trade: b and
// stake must be finite and positive, and stake/b must not overflow exp().
func ValidateTradeInputs(b, stake float64) error {
	if math.IsNaN(b) || math.IsInf(b, 0) || b <= 0 {
		return fmt.Errorf("%w: b must be positive and finite, got %v", coreerr.ErrInvalidInputs, b)
	}
	if math.IsNaN(stake) || math.IsInf(stake, 0) || stake <= 0 {
		return fmt.Errorf("%w: stake must be positive and finite, got %v", coreerr.ErrInvalidInputs, stake)
	}
	if stake/b > StakeOverflowGuard {
		return fmt.Errorf("%w: stake/b = %v exceeds overflow guard", coreerr.ErrStakeTooLarge, stake/b)
	}
	return nil
}

// DeltaQForStake returns the share quantity delta such that buying on side
// with the given stake moves the cost function by exactly stake:
//
//	cost(q_side+delta, q_other, b) - cost(q_side, q_other, b) = stake
//
// Closed form (A = e^(qYes/b), N = e^(qNo/b), E = e^(stake/b)):
//
//	YES: delta = b * ln((E*(A+N) - N) / A)
//	NO:  delta = b * ln((E*(A+N) - A) / N)
func DeltaQForStake(side Side, qYes, qNo, b, stake float64) (float64, error) {
	if err := ValidateTradeInputs(b, stake); err != nil {
		return 0, err
	}

	a := math.Exp(qYes / b)
	n := math.Exp(qNo / b)
	e := math.Exp(stake / b)

	var numerator, denominator float64
	switch side {
	case Yes:
		numerator = e*(a+n) - n
		denominator = a
	case No:
		numerator = e*(a+n) - a
		denominator = n
	}

	if numerator <= 0 || denominator <= 0 {
		return 0, fmt.Errorf("%w: degenerate delta for side %s (numerator=%v denominator=%v)",
			coreerr.ErrInvalidInputs, side, numerator, denominator)
	}

	return b * math.Log(numerator/denominator), nil
}

// ToLedger converts an f64 RP amount to integer ledger units (1 unit =
// 1e-6 RP), rounding half-away-from-zero.
func ToLedger(x float64) (int64, error) {
	if math.IsNaN(x) || math.IsInf(x, 0) {
		return 0, fmt.Errorf("%w: %v", coreerr.ErrNonFinite, x)
	}
	scaled := x * LedgerScale
	if scaled >= 0 {
		return int64(math.Floor(scaled + 0.5)), nil
	}
	return int64(math.Ceil(scaled - 0.5)), nil
}

// FromLedger converts integer ledger units back to an f64 RP amount. Exact
// within float64 range.
func FromLedger(n int64) float64 {
	return float64(n) / LedgerScale
}
