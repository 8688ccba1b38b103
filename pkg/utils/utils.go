package utils

import (
	"time"

	"github.com/segyhp/fee-ledger/pkg/money"
)

// StartOfDay truncates t to midnight in UTC.
func StartOfDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// InstallmentDueDate calculates the due date for installment k.
// Installment 1 is due spacingDays after the plan start, installment 2 twice that, etc.
func InstallmentDueDate(planStart time.Time, installment int, spacingDays int) time.Time {
	return StartOfDay(planStart).AddDate(0, 0, installment*spacingDays)
}

// MonthlyDueDate is the first day of the billing month plus the grace offset.
func MonthlyDueDate(period money.Period, graceDays int) time.Time {
	return period.FirstDay().AddDate(0, 0, graceDays)
}

// MonthsToCover returns how many monthly amounts are needed to reach total (ceil division).
func MonthsToCover(total, monthly int64) int {
	if monthly <= 0 || total <= 0 {
		return 0
	}
	n := total / monthly
	if total%monthly != 0 {
		n++
	}
	return int(n)
}

// IsDateOverdue reports whether dueDate has passed at now.
func IsDateOverdue(dueDate, now time.Time) bool {
	return now.After(dueDate)
}

// DaysUntil returns the whole days from now until t; negative when t has passed.
func DaysUntil(t, now time.Time) int {
	return int(StartOfDay(t).Sub(StartOfDay(now)).Hours() / 24)
}
