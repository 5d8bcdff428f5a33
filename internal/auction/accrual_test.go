package auction

import (
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/alanyoungcy/snipebot/internal/domain"
)

func TestAccrue_CountsDecayWindowOnce(t *testing.T) {
	start := time.Unix(1_700_000_000, 0)
	rate := big.NewInt(10)

	// elapsed 100s, expected decay 300s: the window is capped at elapsed,
	// so total = 10 * (100 + 100).
	acc, err := Accrue(rate, start, start.Add(100*time.Second), 300*time.Second)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if acc.Total.Cmp(big.NewInt(2_000)) != 0 {
		t.Fatalf("total: got %s want 2000", acc.Total)
	}
	if acc.Elapsed != 100 {
		t.Fatalf("elapsed: got %d want 100", acc.Elapsed)
	}

	// elapsed 500s, expected decay 300s: window fully counted,
	// total = 10 * (500 + 300).
	acc, err = Accrue(rate, start, start.Add(500*time.Second), 300*time.Second)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if acc.Total.Cmp(big.NewInt(8_000)) != 0 {
		t.Fatalf("total: got %s want 8000", acc.Total)
	}
}

func TestAccrue_MonotonicInNow(t *testing.T) {
	start := time.Unix(1_700_000_000, 0)
	rate := big.NewInt(37)

	prev := big.NewInt(-1)
	for s := 0; s <= 900; s += 13 {
		acc, err := Accrue(rate, start, start.Add(time.Duration(s)*time.Second), 120*time.Second)
		if err != nil {
			t.Fatalf("s=%d: unexpected error: %v", s, err)
		}
		if acc.Total.Cmp(prev) < 0 {
			t.Fatalf("s=%d: total decreased: %s < %s", s, acc.Total, prev)
		}
		prev = acc.Total
	}
}

func TestAccrue_NowBeforeLeadStartIsCallerError(t *testing.T) {
	start := time.Unix(1_700_000_000, 0)
	_, err := Accrue(big.NewInt(1), start, start.Add(-time.Second), time.Minute)
	if !errors.Is(err, domain.ErrMalformedContext) {
		t.Fatalf("got %v, want ErrMalformedContext", err)
	}
}

func TestAccrue_BigValuesStayExact(t *testing.T) {
	start := time.Unix(1_700_000_000, 0)
	// 1e18 per second for a day exceeds int64; big.Int must carry it.
	rate, _ := new(big.Int).SetString("1000000000000000000", 10)

	acc, err := Accrue(rate, start, start.Add(24*time.Hour), time.Hour)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want, _ := new(big.Int).SetString("90000000000000000000000", 10) // 1e18 * (86400 + 3600)
	if acc.Total.Cmp(want) != 0 {
		t.Fatalf("total: got %s want %s", acc.Total, want)
	}
}
