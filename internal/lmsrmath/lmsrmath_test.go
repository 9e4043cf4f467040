package lmsrmath

import (
	"errors"
	"math"
	"testing"

	"github.com/socialpredict/lmsrcore/internal/coreerr"
)

func TestProbYesBounds(t *testing.T) {
	cases := []struct{ qYes, qNo, b float64 }{
		{0, 0, 100},
		{500, 300, 5000},
		{-200, 50, 1000},
		{1e6, 0, 100},
	}
	for _, c := range cases {
		p := ProbYes(c.qYes, c.qNo, c.b)
		if !(p > 0 && p < 1) {
			t.Fatalf("ProbYes(%v,%v,%v) = %v, want in (0,1)", c.qYes, c.qNo, c.b, p)
		}
	}
}

func TestProbYesMonotonicity(t *testing.T) {
	b := 1000.0
	base := ProbYes(0, 0, b)
	up := ProbYes(100, 0, b)
	if up <= base {
		t.Fatalf("increasing qYes should strictly increase prob_yes: base=%v up=%v", base, up)
	}
	down := ProbYes(0, 100, b)
	if down >= base {
		t.Fatalf("increasing qNo should strictly decrease prob_yes: base=%v down=%v", base, down)
	}
}

func TestCostAtOriginIsBLn2(t *testing.T) {
	// C(0,0,b) = b*logsumexp(0,0) = b*ln(2).
	b := 1000.0
	got := Cost(0, 0, b)
	want := b * math.Log(2)
	if math.Abs(got-want) > 1e-9 {
		t.Fatalf("Cost(0,0,%v) = %v, want %v", b, got, want)
	}
}

func TestAMMLossBound(t *testing.T) {
	b := 1000.0
	base := Cost(0, 0, b)
	stakeLedger, _ := ToLedger(10000.0)
	qYes, qNo := 0.0, 0.0
	for i := 0; i < 200; i++ {
		delta, err := DeltaQForStake(Yes, qYes, qNo, b, FromLedger(stakeLedger))
		if err != nil {
			break
		}
		qYes += delta
		p := ProbYes(qYes, qNo, b)
		if p > 0.999999 {
			break
		}
	}
	loss := Cost(qYes, qNo, b) - base
	bound := b*math.Log(2) + 1e-6
	if loss > bound {
		t.Fatalf("AMM loss bound violated: loss=%v bound=%v", loss, bound)
	}
}

func TestDeltaQForStakeOverflowGuard(t *testing.T) {
	b := 100.0
	_, err := DeltaQForStake(Yes, 0, 0, b, 1_000_000)
	if !errors.Is(err, coreerr.ErrStakeTooLarge) {
		t.Fatalf("expected ErrStakeTooLarge, got %v", err)
	}
}

func TestDeltaQForStakeInvalidInputs(t *testing.T) {
	cases := []struct {
		name         string
		b, stake     float64
	}{
		{"zero stake", 100, 0},
		{"negative stake", 100, -5},
		{"zero b", 0, 10},
		{"nan stake", 100, math.NaN()},
		{"inf b", math.Inf(1), 10},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			_, err := DeltaQForStake(Yes, 0, 0, c.b, c.stake)
			if !errors.Is(err, coreerr.ErrInvalidInputs) {
				t.Fatalf("expected ErrInvalidInputs, got %v", err)
			}
		})
	}
}

func TestToLedgerRoundHalfAwayFromZero(t *testing.T) {
	cases := []struct {
		in   float64
		want int64
	}{
		{1.0, 1_000_000},
		{1.0000005, 1_000_001},
		{-1.0000005, -1_000_001},
		{0.5, 500_000},
		{-0.5, -500_000},
	}
	for _, c := range cases {
		got, err := ToLedger(c.in)
		if err != nil {
			t.Fatalf("ToLedger(%v) returned error: %v", c.in, err)
		}
		if got != c.want {
			t.Fatalf("ToLedger(%v) = %v, want %v", c.in, got, c.want)
		}
	}
}

func TestToLedgerNonFinite(t *testing.T) {
	for _, x := range []float64{math.NaN(), math.Inf(1), math.Inf(-1)} {
		if _, err := ToLedger(x); !errors.Is(err, coreerr.ErrNonFinite) {
			t.Fatalf("ToLedger(%v) expected ErrNonFinite, got %v", x, err)
		}
	}
}

func TestFromLedgerExact(t *testing.T) {
	if got := FromLedger(1_500_000); got != 1.5 {
		t.Fatalf("FromLedger(1500000) = %v, want 1.5", got)
	}
}

func TestRoundTripLedgerConversion(t *testing.T) {
	for _, x := range []float64{0, 1, -1, 100.123456, -999.999999} {
		n, err := ToLedger(x)
		if err != nil {
			t.Fatalf("ToLedger(%v): %v", x, err)
		}
		back := FromLedger(n)
		if math.Abs(back-x) > 5e-7 {
			t.Fatalf("round trip drift: %v -> %v -> %v", x, n, back)
		}
	}
}

func TestParseSide(t *testing.T) {
	if s, err := ParseSide("yes"); err != nil || s != Yes {
		t.Fatalf("ParseSide(yes) = %v, %v", s, err)
	}
	if s, err := ParseSide("NO"); err != nil || s != No {
		t.Fatalf("ParseSide(NO) = %v, %v", s, err)
	}
	if _, err := ParseSide("maybe"); !errors.Is(err, coreerr.ErrInvalidInputs) {
		t.Fatalf("expected ErrInvalidInputs for bad side, got %v", err)
	}
}
