package services

import (
	"testing"

	"famfinance/internal/core"
)

func TestAdvanceDueDate(t *testing.T) {
	tests := []struct {
		name      string
		date      core.Date
		frequency core.Frequency
		want      core.Date
	}{
		{"daily", core.NewDate(2026, 1, 31), core.Daily, core.NewDate(2026, 2, 1)},
		{"weekly", core.NewDate(2026, 12, 28), core.Weekly, core.NewDate(2027, 1, 4)},
		{"biweekly", core.NewDate(2026, 2, 20), core.Biweekly, core.NewDate(2026, 3, 6)},
		{"monthly mid-month", core.NewDate(2026, 3, 15), core.Monthly, core.NewDate(2026, 4, 15)},
		{"monthly jan 31 non-leap", core.NewDate(2026, 1, 31), core.Monthly, core.NewDate(2026, 2, 28)},
		{"monthly jan 31 leap", core.NewDate(2028, 1, 31), core.Monthly, core.NewDate(2028, 2, 29)},
		{"monthly mar 31", core.NewDate(2026, 3, 31), core.Monthly, core.NewDate(2026, 4, 30)},
		{"monthly december", core.NewDate(2026, 12, 31), core.Monthly, core.NewDate(2027, 1, 31)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := AdvanceDueDate(tt.date, tt.frequency)
			if err != nil {
				t.Fatalf("AdvanceDueDate() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("AdvanceDueDate() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestRevertDueDate(t *testing.T) {
	tests := []struct {
		name      string
		date      core.Date
		frequency core.Frequency
		want      core.Date
	}{
		{"daily", core.NewDate(2026, 3, 1), core.Daily, core.NewDate(2026, 2, 28)},
		{"weekly", core.NewDate(2026, 1, 4), core.Weekly, core.NewDate(2025, 12, 28)},
		{"biweekly", core.NewDate(2026, 3, 6), core.Biweekly, core.NewDate(2026, 2, 20)},
		{"monthly mid-month", core.NewDate(2026, 4, 15), core.Monthly, core.NewDate(2026, 3, 15)},
		{"monthly clamps to 28", core.NewDate(2026, 3, 31), core.Monthly, core.NewDate(2026, 2, 28)},
		{"monthly year boundary", core.NewDate(2026, 1, 30), core.Monthly, core.NewDate(2025, 12, 28)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := RevertDueDate(tt.date, tt.frequency)
			if err != nil {
				t.Fatalf("RevertDueDate() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("RevertDueDate() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestAdvanceTwiceIsStrictlyLater(t *testing.T) {
	frequencies := []core.Frequency{core.Daily, core.Weekly, core.Biweekly, core.Monthly}
	start := core.NewDate(2025, 1, 1)
	for _, f := range frequencies {
		for i := 0; i < 800; i++ {
			d := start.AddDays(i)
			once, _ := AdvanceDueDate(d, f)
			twice, _ := AdvanceDueDate(once, f)
			if !twice.After(d.Time) || !once.After(d.Time) {
				t.Fatalf("%s: advance not strictly increasing from %s (%s, %s)", f, d, once, twice)
			}
		}
	}
}

func TestGetScheduleStrategy_Unknown(t *testing.T) {
	if _, err := GetScheduleStrategy("YEARLY"); err == nil {
		t.Fatalf("expected error for unsupported frequency")
	}
}
