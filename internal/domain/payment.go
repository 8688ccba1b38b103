package domain

import (
	"time"

	"github.com/segyhp/fee-ledger/pkg/money"
)

const (
	PaymentStatusCompleted = "completed"
	PaymentStatusVoided    = "voided"

	PaymentMethodCash         = "cash"
	PaymentMethodBankDeposit  = "bank_deposit"
	PaymentMethodBankTransfer = "bank_transfer"
	PaymentMethodCheque       = "cheque"
	PaymentMethodOnline       = "online"
	PaymentMethodOther        = "other"
)

// PaymentMethods lists the accepted payment methods.
var PaymentMethods = []string{
	PaymentMethodCash,
	PaymentMethodBankDeposit,
	PaymentMethodBankTransfer,
	PaymentMethodCheque,
	PaymentMethodOnline,
	PaymentMethodOther,
}

// PaymentRecord is one payment asserted by an administrator against a fee detail.
type PaymentRecord struct {
	ID             string      `json:"id"`
	FeeDetailID    string      `json:"fee_detail_id"`
	Amount         money.Money `json:"amount"`
	Method         string      `json:"method"`
	Reference      string      `json:"reference,omitempty"`
	IdempotencyKey string      `json:"idempotency_key"`
	RecordedBy     string      `json:"recorded_by"`
	RecordedAt     time.Time   `json:"recorded_at"`
	Status         string      `json:"status"`
	VoidedBy       string      `json:"voided_by,omitempty"`
	VoidedAt       *time.Time  `json:"voided_at,omitempty"`
}

func (p *PaymentRecord) IsCompleted() bool {
	return p.Status == PaymentStatusCompleted
}

type RecordPaymentRequest struct {
	FeeDetailID    string `json:"-"`
	Amount         string `json:"amount" validate:"required,decimal_gt0"`
	Method         string `json:"method" validate:"required,oneof=cash bank_deposit bank_transfer cheque online other"`
	Reference      string `json:"reference,omitempty" validate:"max=128"`
	IdempotencyKey string `json:"idempotency_key" validate:"required,max=128"`
	RecordedBy     string `json:"-"`
}

// RecordPaymentResult is returned for both first recordings and replays.
type RecordPaymentResult struct {
	Payment  *PaymentRecord `json:"payment"`
	Detail   *FeeDetail     `json:"fee_detail"`
	Plan     *FeePlan       `json:"fee_plan"`
	Totals   PlanTotals     `json:"totals"`
	Replayed bool           `json:"replayed"`
}

type VoidPaymentRequest struct {
	PaymentID string `json:"-"`
	VoidedBy  string `json:"-"`
	Reason    string `json:"reason,omitempty" validate:"max=256"`
}
