package money

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
)

func TestPenceRoundTrip(t *testing.T) {
	for _, pence := range []int64{0, 1, 9, 10, 99, 100, 101, 250, 12345, 999999999} {
		back, err := PoundsToPence(PenceToPounds(pence))
		if err != nil {
			t.Fatalf("pence %d: %v", pence, err)
		}
		if back != pence {
			t.Fatalf("round trip changed %d to %d", pence, back)
		}
	}
}

func TestPoundsToPenceRejectsFractionalPence(t *testing.T) {
	if _, err := PoundsToPence(decimal.RequireFromString("1.005")); !errors.Is(err, ErrSubPenny) {
		t.Fatalf("expected ErrSubPenny, got %v", err)
	}
	if _, err := PoundsToPence(decimal.RequireFromString("-1")); !errors.Is(err, ErrNegativeAmount) {
		t.Fatalf("expected ErrNegativeAmount, got %v", err)
	}
}

func TestParseAndFormatPounds(t *testing.T) {
	cases := []struct {
		raw  string
		want int64
	}{
		{raw: "3", want: 300},
		{raw: "£2.50", want: 250},
		{raw: " 0.99 ", want: 99},
	}
	for _, tc := range cases {
		t.Run(tc.raw, func(t *testing.T) {
			got, err := ParsePounds(tc.raw)
			if err != nil {
				t.Fatalf("parse: %v", err)
			}
			if got != tc.want {
				t.Fatalf("expected %d, got %d", tc.want, got)
			}
		})
	}
	if FormatPounds(250) != "£2.50" {
		t.Fatalf("unexpected format %q", FormatPounds(250))
	}
}

func TestLineTotal(t *testing.T) {
	total, err := LineTotal(199, 3)
	if err != nil {
		t.Fatalf("line total: %v", err)
	}
	if total != 597 {
		t.Fatalf("expected 597, got %d", total)
	}
	if _, err := LineTotal(-1, 1); err == nil {
		t.Fatalf("expected error for negative price")
	}
}

func TestSum(t *testing.T) {
	got, err := Sum(100, 250, 0)
	if err != nil || got != 350 {
		t.Fatalf("Sum = %d, %v", got, err)
	}
	if got, err := Sum(); err != nil || got != 0 {
		t.Fatalf("empty Sum = %d, %v", got, err)
	}
	if _, err := Sum(1<<62, 1<<62); err == nil {
		t.Fatalf("expected overflow error")
	}
	if _, err := Sum(1<<62, 1); err == nil {
		t.Fatalf("expected error past the cap")
	}
	if _, err := Sum(5, -1); !errors.Is(err, ErrNegativeAmount) {
		t.Fatalf("negative err = %v", err)
	}
}
