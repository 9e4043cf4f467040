package market

import (
	"errors"
	"math"
	"testing"

	"github.com/socialpredict/lmsrcore/internal/coreerr"
	"github.com/socialpredict/lmsrcore/internal/lmsrmath"
)

func TestBuySellRoundTripExactZero(t *testing.T) {
	m, err := New(5000)
	if err != nil {
		t.Fatal(err)
	}
	stakeLedger, _ := lmsrmath.ToLedger(100.0)
	shares, debit, err := m.Buy(lmsrmath.Yes, stakeLedger)
	if err != nil {
		t.Fatal(err)
	}
	credit, err := m.Sell(lmsrmath.Yes, shares)
	if err != nil {
		t.Fatal(err)
	}
	if credit != debit {
		t.Fatalf("round trip should net to zero: debit=%v credit=%v", debit, credit)
	}
	if math.Abs(m.QYes) > 1e-9 || math.Abs(m.QNo) > 1e-9 {
		t.Fatalf("market should return to origin: qYes=%v qNo=%v", m.QYes, m.QNo)
	}
}

func TestPathIndependenceWithinOneLedgerUnit(t *testing.T) {
	b := 5000.0

	runPath := func(stakes []struct {
		side  lmsrmath.Side
		stake float64
	}) int64 {
		m, _ := New(b)
		var totalDebit int64
		for _, s := range stakes {
			ledger, _ := lmsrmath.ToLedger(s.stake)
			_, debit, err := m.Buy(s.side, ledger)
			if err != nil {
				t.Fatal(err)
			}
			totalDebit += debit
		}
		return totalDebit
	}

	// Two different orderings that reach approximately the same (qYes, qNo).
	pathA := runPath([]struct {
		side  lmsrmath.Side
		stake float64
	}{
		{lmsrmath.Yes, 300},
		{lmsrmath.Yes, 200},
		{lmsrmath.No, 150},
		{lmsrmath.No, 150},
	})
	pathB := runPath([]struct {
		side  lmsrmath.Side
		stake float64
	}{
		{lmsrmath.No, 150},
		{lmsrmath.Yes, 300},
		{lmsrmath.No, 150},
		{lmsrmath.Yes, 200},
	})

	diff := pathA - pathB
	if diff < -1 || diff > 1 {
		t.Fatalf("paths should agree within 1 ledger unit, got diff=%v (A=%v B=%v)", diff, pathA, pathB)
	}
}

func TestOversellRejected(t *testing.T) {
	m, _ := New(1000)
	_, err := m.Sell(lmsrmath.Yes, 10)
	if !errors.Is(err, coreerr.ErrOversell) {
		t.Fatalf("expected ErrOversell, got %v", err)
	}
}

func TestBuyDebitWithinOneUnitOfRequestedStake(t *testing.T) {
	m, _ := New(2000)
	stakeLedger, _ := lmsrmath.ToLedger(42.5)
	_, debit, err := m.Buy(lmsrmath.Yes, stakeLedger)
	if err != nil {
		t.Fatal(err)
	}
	diff := debit - stakeLedger
	if diff < -1 || diff > 1 {
		t.Fatalf("debit should be within 1 ledger unit of requested stake: debit=%v stake=%v", debit, stakeLedger)
	}
}

func TestNewRejectsInvalidLiquidity(t *testing.T) {
	for _, b := range []float64{0, -1, math.NaN(), math.Inf(1)} {
		if _, err := New(b); !errors.Is(err, coreerr.ErrInvalidInputs) {
			t.Fatalf("New(%v) expected ErrInvalidInputs, got %v", b, err)
		}
	}
}
