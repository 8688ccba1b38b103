package domain

import (
	"fmt"
	"sort"
	"time"

	"github.com/segyhp/fee-ledger/pkg/money"
)

const (
	FeeTypeMonthly    = "monthly"
	FeeTypeFullCourse = "full_course"

	ScheduleModeEager = "eager"
	ScheduleModeLazy  = "lazy"

	PlanStatusActive    = "active"
	PlanStatusCompleted = "completed"
	PlanStatusCancelled = "cancelled"
)

// FeePlan is the billing arrangement attached to one enrollment.
type FeePlan struct {
	ID                string         `json:"id"`
	EnrollmentID      string         `json:"enrollment_id"`
	FeeType           string         `json:"fee_type"`
	TotalAmount       money.Money    `json:"total_amount"`
	Currency          money.Currency `json:"currency"`
	InstallmentsCount int            `json:"installments_count,omitempty"`
	MonthlyAmount     *money.Money   `json:"monthly_amount,omitempty"`
	ScheduleMode      string         `json:"schedule_mode"`
	Status            string         `json:"status"`
	CreatedBy         string         `json:"created_by"`
	CreatedAt         time.Time      `json:"created_at"`
	UpdatedAt         time.Time      `json:"updated_at"`
}

func (p *FeePlan) IsCancelled() bool {
	return p.Status == PlanStatusCancelled
}

// FeeDetail is one scheduled owed amount: an installment or a billing month.
type FeeDetail struct {
	ID                string        `json:"id"`
	FeePlanID         string        `json:"fee_plan_id"`
	InstallmentNumber int           `json:"installment_number,omitempty"`
	Period            *money.Period `json:"period,omitempty"`
	Amount            money.Money   `json:"amount"`
	DueDate           time.Time     `json:"due_date"`
	Status            string        `json:"status"`
	PaidDate          *time.Time    `json:"paid_date,omitempty"`
	CreatedAt         time.Time     `json:"created_at"`
}

const (
	DetailStatusPending   = "pending"
	DetailStatusPaid      = "paid"
	DetailStatusOverdue   = "overdue"
	DetailStatusCancelled = "cancelled"
)

func (d *FeeDetail) IsCancelled() bool { return d.Status == DetailStatusCancelled }
func (d *FeeDetail) IsPaid() bool      { return d.Status == DetailStatusPaid }

// SequenceLabel is the human readable position of the detail in its plan.
func (d *FeeDetail) SequenceLabel() string {
	if d.Period != nil {
		return d.Period.Label()
	}
	return fmt.Sprintf("Installment %d", d.InstallmentNumber)
}

// SortDetails orders details by installment number or billing month.
func SortDetails(details []*FeeDetail) {
	sort.SliceStable(details, func(i, j int) bool {
		a, b := details[i], details[j]
		if a.Period != nil && b.Period != nil {
			return a.Period.Before(*b.Period)
		}
		return a.InstallmentNumber < b.InstallmentNumber
	})
}

// FeePlanWithSchedule is a plan and its ordered details.
type FeePlanWithSchedule struct {
	Plan    *FeePlan     `json:"plan"`
	Details []*FeeDetail `json:"details"`
}

// CreatePlanRequest carries amounts as decimal strings so no float ever
// touches money. An empty TotalAmount falls back to the course's default
// price, an empty Currency to the course's currency and then the configured
// default.
type CreatePlanRequest struct {
	EnrollmentID      string        `json:"-"`
	FeeType           string        `json:"fee_type" validate:"required,oneof=monthly full_course"`
	TotalAmount       string        `json:"total_amount,omitempty" validate:"omitempty,decimal_gt0"`
	Currency          string        `json:"currency,omitempty" validate:"omitempty,currency"`
	InstallmentsCount int           `json:"installments_count,omitempty" validate:"gte=0,lte=120"`
	MonthlyAmount     string        `json:"monthly_amount,omitempty" validate:"omitempty,decimal_gt0"`
	Months            int           `json:"months,omitempty" validate:"gte=0,lte=240"`
	StartPeriod       *money.Period `json:"start_period,omitempty"`
	ScheduleMode      string        `json:"schedule_mode,omitempty" validate:"omitempty,oneof=eager lazy"`
	RequestedBy       string        `json:"-"`
}

type AddMonthRequest struct {
	FeePlanID   string       `json:"-"`
	Period      money.Period `json:"period"`
	RequestedBy string       `json:"-"`
}
