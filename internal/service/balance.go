package service

import (
	"errors"
	"math"
	"time"

	"github.com/segyhp/fee-ledger/internal/domain"
	"github.com/segyhp/fee-ledger/pkg/money"
	"github.com/segyhp/fee-ledger/pkg/utils"
)

// The balance functions are the only place paid and outstanding amounts are
// computed. They never fail: missing data degrades to zero and pending.

// accumulate adds m into total. Overflow saturates and a foreign currency is
// ignored, so aggregation stays total.
func accumulate(total *money.Money, m money.Money) {
	sum, err := total.Add(m)
	switch {
	case err == nil:
		*total = sum
	case errors.Is(err, money.ErrInvalidAmount) && m.Amount > 0:
		total.Amount = math.MaxInt64
	case errors.Is(err, money.ErrInvalidAmount):
		total.Amount = math.MinInt64
	}
}

// EffectiveStatus is the detail status as seen at now. Overdue is never
// stored; a pending detail past its due date reads as overdue.
func EffectiveStatus(detail *domain.FeeDetail, now time.Time) string {
	if detail == nil {
		return domain.DetailStatusPending
	}
	switch detail.Status {
	case domain.DetailStatusPaid, domain.DetailStatusCancelled:
		return detail.Status
	}
	if !detail.DueDate.IsZero() && utils.IsDateOverdue(detail.DueDate, now) {
		return domain.DetailStatusOverdue
	}
	return domain.DetailStatusPending
}

// PaidAmount sums the completed payments recorded against detail.
func PaidAmount(detail *domain.FeeDetail, payments []*domain.PaymentRecord) money.Money {
	if detail == nil {
		return money.Money{}
	}
	cur := detail.Amount.Currency
	amounts := make([]money.Money, 0, len(payments))
	for _, p := range payments {
		if p == nil || p.FeeDetailID != detail.ID || !p.IsCompleted() || p.Amount.Currency != cur {
			continue
		}
		amounts = append(amounts, p.Amount)
	}
	paid, err := money.Sum(cur, amounts...)
	if err != nil {
		// only overflow can fail here
		paid = money.Zero(cur)
		for _, a := range amounts {
			accumulate(&paid, a)
		}
	}
	return paid
}

// DetailBalance derives paid and outstanding for one detail. A cancelled
// detail owes nothing.
func DetailBalance(detail *domain.FeeDetail, payments []*domain.PaymentRecord, now time.Time) domain.DetailBalance {
	if detail == nil {
		return domain.DetailBalance{Status: domain.DetailStatusPending}
	}

	paid := PaidAmount(detail, payments)
	outstanding := money.Zero(detail.Amount.Currency)
	if !detail.IsCancelled() && detail.Amount.Cmp(paid) > 0 {
		if diff, err := detail.Amount.Sub(paid); err == nil {
			outstanding = diff
		}
	}

	return domain.DetailBalance{
		Amount:      detail.Amount,
		Paid:        paid,
		Outstanding: outstanding,
		Status:      EffectiveStatus(detail, now),
	}
}

// PlanTotals aggregates a plan's details. Scheduled counts every detail,
// cancelled ones included, since a cancelled month still occupies its slot.
func PlanTotals(plan *domain.FeePlan, details []*domain.FeeDetail, payments []*domain.PaymentRecord, now time.Time) domain.PlanTotals {
	var cur money.Currency
	var total money.Money
	if plan != nil {
		cur = plan.Currency
		total = plan.TotalAmount
	}

	totals := domain.PlanTotals{
		Total:         total,
		Scheduled:     money.Zero(cur),
		Paid:          money.Zero(cur),
		Outstanding:   money.Zero(cur),
		OverdueAmount: money.Zero(cur),
	}
	if plan == nil {
		return totals
	}

	for _, d := range details {
		if d == nil || d.FeePlanID != plan.ID {
			continue
		}
		accumulate(&totals.Scheduled, d.Amount)
		if d.IsCancelled() {
			continue
		}

		b := DetailBalance(d, payments, now)
		totals.DetailCount++
		accumulate(&totals.Paid, b.Paid)
		accumulate(&totals.Outstanding, b.Outstanding)

		switch b.Status {
		case domain.DetailStatusPaid:
			totals.PaidCount++
		case domain.DetailStatusOverdue:
			totals.OverdueCount++
			accumulate(&totals.OverdueAmount, b.Outstanding)
		}
	}
	return totals
}

// EnrollmentTotals sums the totals of an enrollment's non-cancelled plans.
func EnrollmentTotals(plans []*domain.FeePlanWithSchedule, payments []*domain.PaymentRecord, now time.Time) domain.PlanTotals {
	var out domain.PlanTotals
	first := true
	for _, ps := range plans {
		if ps == nil || ps.Plan == nil || ps.Plan.IsCancelled() {
			continue
		}
		t := PlanTotals(ps.Plan, ps.Details, payments, now)
		if first {
			out = t
			first = false
			continue
		}
		if t.Total.Currency != out.Total.Currency {
			continue
		}
		accumulate(&out.Total, t.Total)
		accumulate(&out.Scheduled, t.Scheduled)
		accumulate(&out.Paid, t.Paid)
		accumulate(&out.Outstanding, t.Outstanding)
		accumulate(&out.OverdueAmount, t.OverdueAmount)
		out.DetailCount += t.DetailCount
		out.PaidCount += t.PaidCount
		out.OverdueCount += t.OverdueCount
	}
	return out
}

// IsPlanComplete reports whether every non-cancelled detail is paid and the
// schedule covers the plan total. A fully cancelled schedule owes nothing and
// is complete.
func IsPlanComplete(plan *domain.FeePlan, details []*domain.FeeDetail) bool {
	if plan == nil {
		return false
	}

	scheduled := money.Zero(plan.TotalAmount.Currency)
	for _, d := range details {
		if d == nil || d.FeePlanID != plan.ID {
			continue
		}
		accumulate(&scheduled, d.Amount)
		if !d.IsCancelled() && !d.IsPaid() {
			return false
		}
	}
	return scheduled.Cmp(plan.TotalAmount) == 0
}

// NextPlanStatus is the status a plan should hold given its details.
func NextPlanStatus(plan *domain.FeePlan, details []*domain.FeeDetail) string {
	if plan == nil {
		return domain.PlanStatusActive
	}
	if plan.IsCancelled() {
		return domain.PlanStatusCancelled
	}
	if IsPlanComplete(plan, details) {
		return domain.PlanStatusCompleted
	}
	return domain.PlanStatusActive
}
