package domain

import (
	"time"

	"github.com/segyhp/fee-ledger/pkg/money"
)

// DetailBalance is the derived position of one fee detail.
type DetailBalance struct {
	Amount      money.Money `json:"amount"`
	Paid        money.Money `json:"paid"`
	Outstanding money.Money `json:"outstanding"`
	Status      string      `json:"status"`
}

// PlanTotals aggregates the details of a plan. Cancelled details count
// towards neither paid nor outstanding.
type PlanTotals struct {
	Total         money.Money `json:"total"`
	Scheduled     money.Money `json:"scheduled"`
	Paid          money.Money `json:"paid"`
	Outstanding   money.Money `json:"outstanding"`
	OverdueAmount money.Money `json:"overdue_amount"`
	DetailCount   int         `json:"detail_count"`
	PaidCount     int         `json:"paid_count"`
	OverdueCount  int         `json:"overdue_count"`
}

// StatementLine is one fee detail with its derived balance.
type StatementLine struct {
	Detail   *FeeDetail       `json:"detail"`
	Label    string           `json:"label"`
	Balance  DetailBalance    `json:"balance"`
	Payments []*PaymentRecord `json:"payments"`
}

// Statement is the per-enrollment query surface: plan summary, ordered
// details with statuses, and totals.
type Statement struct {
	Enrollment  *Enrollment      `json:"enrollment"`
	Plan        *FeePlan         `json:"fee_plan,omitempty"`
	Lines       []*StatementLine `json:"lines"`
	Totals      *PlanTotals      `json:"totals,omitempty"`
	GeneratedAt time.Time        `json:"generated_at"`
}
