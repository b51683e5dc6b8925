// Package services provides business logic and orchestration services.
//
// This file implements the Strategy Pattern for recurring expense schedules.
// Each frequency (daily, weekly, biweekly, monthly) has its own strategy that
// moves a due date one period forward or back.

package services

import (
	"fmt"
	"time"

	"famfinance/internal/core"
)

// ScheduleStrategy moves a recurring expense due date by one period.
type ScheduleStrategy interface {
	// Advance returns the next due date after d.
	Advance(d core.Date) core.Date
	// Revert returns the due date one period before d.
	Revert(d core.Date) core.Date
}

// FixedDaysSchedule advances by a fixed number of days.
type FixedDaysSchedule struct {
	Days int
}

func (s FixedDaysSchedule) Advance(d core.Date) core.Date {
	return d.AddDays(s.Days)
}

func (s FixedDaysSchedule) Revert(d core.Date) core.Date {
	return d.AddDays(-s.Days)
}

// MonthlySchedule advances by one calendar month.
type MonthlySchedule struct{}

// Advance keeps the day of month, clamped to the last day of the target month.
func (MonthlySchedule) Advance(d core.Date) core.Date {
	return addMonthsClamped(d, 1, daysIn)
}

// Revert goes back one month with the day clamped to 28, so the result is
// valid in every month. It is not an exact inverse for days 29-31.
func (MonthlySchedule) Revert(d core.Date) core.Date {
	return addMonthsClamped(d, -1, func(int, time.Month) int { return 28 })
}

func addMonthsClamped(d core.Date, months int, maxDay func(int, time.Month) int) core.Date {
	year, month := d.Year(), d.Month()+time.Month(months)
	// Normalize through time.Date on the first of the month.
	first := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	day := d.Day()
	if limit := maxDay(first.Year(), first.Month()); day > limit {
		day = limit
	}
	return core.NewDate(first.Year(), int(first.Month()), day)
}

func daysIn(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// scheduleStrategies maps frequencies to their corresponding strategies.
var scheduleStrategies = map[core.Frequency]ScheduleStrategy{
	core.Daily:    FixedDaysSchedule{Days: 1},
	core.Weekly:   FixedDaysSchedule{Days: 7},
	core.Biweekly: FixedDaysSchedule{Days: 14},
	core.Monthly:  MonthlySchedule{},
}

// GetScheduleStrategy returns the strategy for a frequency.
// Returns an error if the frequency is not supported.
func GetScheduleStrategy(frequency core.Frequency) (ScheduleStrategy, error) {
	strategy, ok := scheduleStrategies[frequency]
	if !ok {
		return nil, fmt.Errorf("unknown frequency: %s", frequency)
	}
	return strategy, nil
}

// AdvanceDueDate moves d one period forward.
func AdvanceDueDate(d core.Date, frequency core.Frequency) (core.Date, error) {
	s, err := GetScheduleStrategy(frequency)
	if err != nil {
		return core.Date{}, err
	}
	return s.Advance(d), nil
}

// RevertDueDate moves d one period back.
func RevertDueDate(d core.Date, frequency core.Frequency) (core.Date, error) {
	s, err := GetScheduleStrategy(frequency)
	if err != nil {
		return core.Date{}, err
	}
	return s.Revert(d), nil
}
