package utils

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/segyhp/fee-ledger/pkg/money"
)

func TestInstallmentDueDate(t *testing.T) {
	baseDate := time.Date(2026, 1, 1, 15, 30, 0, 0, time.UTC)

	tests := []struct {
		name        string
		startDate   time.Time
		installment int
		spacing     int
		expected    time.Time
	}{
		{
			name:        "first installment",
			startDate:   baseDate,
			installment: 1,
			spacing:     30,
			expected:    time.Date(2026, 1, 31, 0, 0, 0, 0, time.UTC),
		},
		{
			name:        "third installment",
			startDate:   baseDate,
			installment: 3,
			spacing:     30,
			expected:    time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC), // 90 days later
		},
		{
			name:        "weekly spacing",
			startDate:   baseDate,
			installment: 2,
			spacing:     7,
			expected:    time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := InstallmentDueDate(tt.startDate, tt.installment, tt.spacing)
			assert.Equal(t, tt.expected, result)
		})
	}
}

func TestMonthlyDueDate(t *testing.T) {
	tests := []struct {
		name     string
		period   money.Period
		grace    int
		expected time.Time
	}{
		{
			name:     "no grace",
			period:   money.Period{Month: time.March, Year: 2026},
			grace:    0,
			expected: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
		},
		{
			name:     "ten days grace",
			period:   money.Period{Month: time.February, Year: 2026},
			grace:    10,
			expected: time.Date(2026, 2, 11, 0, 0, 0, 0, time.UTC),
		},
		{
			name:     "grace crosses month end",
			period:   money.Period{Month: time.February, Year: 2026},
			grace:    30,
			expected: time.Date(2026, 3, 3, 0, 0, 0, 0, time.UTC),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, MonthlyDueDate(tt.period, tt.grace))
		})
	}
}

func TestMonthsToCover(t *testing.T) {
	assert.Equal(t, 12, MonthsToCover(60000, 5000))
	assert.Equal(t, 13, MonthsToCover(60001, 5000))
	assert.Equal(t, 1, MonthsToCover(100, 5000))
	assert.Equal(t, 0, MonthsToCover(100, 0))
	assert.Equal(t, 0, MonthsToCover(0, 100))
}

func TestIsDateOverdue(t *testing.T) {
	now := time.Date(2026, 6, 10, 12, 0, 0, 0, time.UTC)
	assert.True(t, IsDateOverdue(now.Add(-time.Hour), now))
	assert.False(t, IsDateOverdue(now, now))
	assert.False(t, IsDateOverdue(now.Add(time.Hour), now))
}

func TestDaysUntil(t *testing.T) {
	now := time.Date(2026, 6, 10, 23, 0, 0, 0, time.UTC)
	assert.Equal(t, 3, DaysUntil(time.Date(2026, 6, 13, 1, 0, 0, 0, time.UTC), now))
	assert.Equal(t, 0, DaysUntil(now, now))
	assert.Equal(t, -1, DaysUntil(time.Date(2026, 6, 9, 0, 0, 0, 0, time.UTC), now))
}
