// Package market implements the pure, in-memory LMSR market state machine:
// buy, sell, and the read accessors built on top of internal/lmsrmath. It
// holds no persistence concerns — the transaction engine is responsible for
// loading a Market from storage, mutating it, and writing the result back
// inside a single serializable transaction.
package market

import (
	"fmt"
	"math"

	"github.com/socialpredict/lmsrcore/internal/coreerr"
	"github.com/socialpredict/lmsrcore/internal/lmsrmath"
)

// Market is the LMSR state for one binary event: accumulated share
// quantities q_yes/q_no and the liquidity parameter b. b never mutates
// after construction.
type Market struct {
	QYes float64
	QNo  float64
	B    float64
}

// New constructs a fresh market at q_yes = q_no = 0 with liquidity b.
func New(b float64) (*Market, error) {
	if math.IsNaN(b) || math.IsInf(b, 0) || b <= 0 {
		return nil, fmt.Errorf("%w: b must be positive and finite, got %v", coreerr.ErrInvalidInputs, b)
	}
	return &Market{B: b}, nil
}

// FromState reconstructs a Market from persisted quantities, e.g. after a
// row-locked read inside a transaction.
func FromState(qYes, qNo, b float64) *Market {
	return &Market{QYes: qYes, QNo: qNo, B: b}
}

// Cost returns b * logsumexp(q_yes/b, q_no/b), the LMSR cost function.
func (m *Market) Cost() float64 {
	return lmsrmath.Cost(m.QYes, m.QNo, m.B)
}

// ProbYes returns the current YES probability (market price).
func (m *Market) ProbYes() float64 {
	return lmsrmath.ProbYes(m.QYes, m.QNo, m.B)
}

// Buy executes a buy of the given side with stake_ledger (integer ledger
// units). It returns the shares acquired and the exact cash debit in
// ledger units. The debit, not the requested stake, is authoritative: it
// may differ from stake_ledger by at most one ledger unit due to rounding,
// and the engine must charge the debit, not the stake, to preserve path
// independence and round-trip exactness at the integer level.
func (m *Market) Buy(side lmsrmath.Side, stakeLedger int64) (sharesDelta float64, cashDebitLedger int64, err error) {
	stake := lmsrmath.FromLedger(stakeLedger)
	if stake <= 0 {
		return 0, 0, fmt.Errorf("%w: stake must be positive", coreerr.ErrInvalidInputs)
	}

	preCost := m.Cost()
	delta, err := lmsrmath.DeltaQForStake(side, m.QYes, m.QNo, m.B, stake)
	if err != nil {
		return 0, 0, err
	}

	switch side {
	case lmsrmath.Yes:
		m.QYes += delta
	case lmsrmath.No:
		m.QNo += delta
	}

	postCost := m.Cost()
	debit, err := lmsrmath.ToLedger(postCost - preCost)
	if err != nil {
		return 0, 0, err
	}

	return delta, debit, nil
}

// Sell executes a sell of shares on the given side. It returns the exact
// cash credit in ledger units. Sell only requires shares > 0; callers
// (the transaction engine) must pre-check the requested amount against the
// caller's recorded position — Sell itself only guards against driving the
// market's own quantity negative.
func (m *Market) Sell(side lmsrmath.Side, shares float64) (cashCreditLedger int64, err error) {
	if math.IsNaN(shares) || math.IsInf(shares, 0) || shares <= 0 {
		return 0, fmt.Errorf("%w: shares must be positive and finite", coreerr.ErrInvalidInputs)
	}

	preCost := m.Cost()

	switch side {
	case lmsrmath.Yes:
		if m.QYes-shares < 0 {
			return 0, coreerr.ErrOversell
		}
		m.QYes -= shares
	case lmsrmath.No:
		if m.QNo-shares < 0 {
			return 0, coreerr.ErrOversell
		}
		m.QNo -= shares
	}

	postCost := m.Cost()
	credit, err := lmsrmath.ToLedger(preCost - postCost)
	if err != nil {
		return 0, err
	}
	return credit, nil
}
