package khalti_test

import (
	"testing"

	"github.com/stagehub-np/backend-stagehub/internal/khalti"
)

func TestToPaisa(t *testing.T) {
	cases := []struct {
		rupees float64
		want   int64
	}{
		{0, 0},
		{1, 100},
		{10.5, 1050},
		{99.99, 9999},
		{0.005, 1},
		{-10.5, -1050},
	}
	for _, tc := range cases {
		if got := khalti.ToPaisa(tc.rupees); got != tc.want {
			t.Errorf("ToPaisa(%v) = %d, want %d", tc.rupees, got, tc.want)
		}
	}
}

func TestToRupees(t *testing.T) {
	if got := khalti.ToRupees(1050); got != 10.5 {
		t.Fatalf("ToRupees(1050) = %v, want 10.5", got)
	}
	if got := khalti.ToRupees(0); got != 0 {
		t.Fatalf("ToRupees(0) = %v, want 0", got)
	}
}

func TestPaisaRoundTrip(t *testing.T) {
	for _, paisa := range []int64{1, 99, 100, 1050, 99999, 1_000_000_01} {
		back := khalti.ToPaisa(khalti.ToRupees(paisa))
		if back != paisa {
			t.Errorf("round trip %d -> %v -> %d", paisa, khalti.ToRupees(paisa), back)
		}
	}
}

func TestFormatAmount(t *testing.T) {
	cases := []struct {
		rupees float64
		want   string
	}{
		{0, "Rs. 0.00"},
		{10.5, "Rs. 10.50"},
		{1234.5, "Rs. 1,234.50"},
		{1000000, "Rs. 1,000,000.00"},
	}
	for _, tc := range cases {
		if got := khalti.FormatAmount(tc.rupees); got != tc.want {
			t.Errorf("FormatAmount(%v) = %q, want %q", tc.rupees, got, tc.want)
		}
	}
}
