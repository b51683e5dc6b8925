package core

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestParseAmount(t *testing.T) {
	cases := []struct {
		in  string
		out string
		ok  bool
	}{
		{"1", "1", true},
		{"1.0", "1", true},
		{"1.23", "1.23", true},
		{"1,23", "1.23", true},
		{"0.0001", "0.0001", true},
		{"0.00005", "0.0001", true}, // half away from zero
		{" 2.50 ", "2.5", true},
		{"-1", "", false},
		{"0", "", false},
		{"abc", "", false},
		{"1.2.3", "", false},
		{"", "", false},
		{"100000000000000", "100000000000000", true},
		{"100000000000000.0001", "", false},
		{"10000000000000000", "", false},
	}
	for _, tc := range cases {
		got, err := ParseAmount(tc.in)
		if tc.ok {
			if err != nil || !got.Equal(decimal.RequireFromString(tc.out)) {
				t.Fatalf("%q expected %s, got %s (err=%v)", tc.in, tc.out, got, err)
			}
		} else if err == nil {
			t.Fatalf("%q expected error", tc.in)
		}
	}
}

func TestParseSignedAmount(t *testing.T) {
	got, err := ParseSignedAmount("-50.5")
	if err != nil || !got.Equal(decimal.RequireFromString("-50.5")) {
		t.Fatalf("got %s, %v", got, err)
	}
	if _, err := ParseSignedAmount("0"); err != ErrZeroAdjustment {
		t.Fatalf("expected ErrZeroAdjustment, got %v", err)
	}
}

func TestParseLimits(t *testing.T) {
	if _, err := ParseAmount("1e16"); err != ErrAmountTooLarge {
		t.Fatalf("expected ErrAmountTooLarge, got %v", err)
	}
	if _, err := ParseSignedAmount("-1000000000000000"); err != ErrAmountTooLarge {
		t.Fatalf("expected ErrAmountTooLarge, got %v", err)
	}
	if _, err := ParseRate("1000000001"); err != ErrRateTooLarge {
		t.Fatalf("expected ErrRateTooLarge, got %v", err)
	}
	if _, err := ParseRate("1000000000"); err != nil {
		t.Fatalf("max rate rejected: %v", err)
	}
	if KindOf(ErrAmountTooLarge) != KindValidation || KindOf(ErrRateTooLarge) != KindValidation {
		t.Fatal("limit errors must be validation errors")
	}
}

func TestBaseAmount(t *testing.T) {
	tests := []struct {
		amount, rate, want string
	}{
		{"100", "17.50", "1750"},
		{"10.1234", "1", "10.1234"},
		{"3.33", "0.052632", "0.1753"},
		{"1", "0.000049", "0"},
	}
	for _, tt := range tests {
		got := BaseAmount(decimal.RequireFromString(tt.amount), decimal.RequireFromString(tt.rate))
		if !got.Equal(decimal.RequireFromString(tt.want)) {
			t.Errorf("BaseAmount(%s, %s) = %s, want %s", tt.amount, tt.rate, got, tt.want)
		}
	}
}

func TestPercentage(t *testing.T) {
	if got := Percentage(decimal.NewFromInt(1), decimal.NewFromInt(3)); !got.Equal(decimal.RequireFromString("33.33")) {
		t.Fatalf("Percentage(1,3) = %s", got)
	}
	if got := Percentage(decimal.NewFromInt(5), decimal.Zero); !got.IsZero() {
		t.Fatalf("Percentage(5,0) = %s, want 0", got)
	}
}
