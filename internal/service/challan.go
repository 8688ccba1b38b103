package service

import (
	"encoding/json"
	"time"

	"github.com/pkg/errors"

	"github.com/segyhp/fee-ledger/internal/domain"
	customError "github.com/segyhp/fee-ledger/pkg/errors"
	"github.com/segyhp/fee-ledger/pkg/money"
)

const voucherDateLayout = "2006-01-02"

// ChallanGenerator turns one fee detail into a deposit voucher. It reads
// nothing but its input: the timestamp and reference are supplied by the
// caller so identical input always renders identical bytes.
type ChallanGenerator struct{}

func NewChallanGenerator() *ChallanGenerator {
	return &ChallanGenerator{}
}

// Generate builds the bank copy and the student copy of the voucher.
func (g *ChallanGenerator) Generate(input *domain.VoucherInput) (*domain.VoucherDocument, error) {
	if err := checkVoucherInput(input); err != nil {
		return nil, err
	}

	enrollment, plan, detail := input.Enrollment, input.Plan, input.Detail

	paid := PaidAmount(detail, input.Payments)
	due := money.Zero(detail.Amount.Currency)
	if !detail.IsCancelled() && detail.Amount.Amount > paid.Amount {
		due.Amount = detail.Amount.Amount - paid.Amount
	}

	var studentName string
	if input.Student != nil {
		studentName = input.Student.FullName
	}

	generatedAt := input.GeneratedAt.UTC().Format(time.RFC3339)
	copyFor := func(label string) domain.VoucherCopy {
		return domain.VoucherCopy{
			CopyLabel:        label,
			Reference:        input.Reference,
			StudentID:        enrollment.StudentID,
			StudentName:      studentName,
			EnrollmentID:     enrollment.ID,
			CourseID:         input.Course.ID,
			CourseTitle:      input.Course.Title,
			FeePlanID:        plan.ID,
			FeeType:          plan.FeeType,
			FeeDetailID:      detail.ID,
			PeriodLabel:      detail.SequenceLabel(),
			DueDate:          detail.DueDate.UTC().Format(voucherDateLayout),
			Amount:           detail.Amount.StringFixed(),
			AmountPaid:       paid.StringFixed(),
			AmountDue:        due.StringFixed(),
			Currency:         string(detail.Amount.Currency),
			Status:           EffectiveStatus(detail, input.GeneratedAt),
			BankInstructions: input.Course.BankInstructions,
			GeneratedAt:      generatedAt,
		}
	}

	return &domain.VoucherDocument{
		Reference:   input.Reference,
		GeneratedAt: generatedAt,
		Copies: []domain.VoucherCopy{
			copyFor(domain.VoucherCopyBank),
			copyFor(domain.VoucherCopyStudent),
		},
	}, nil
}

// Render encodes the document as canonical JSON.
func (g *ChallanGenerator) Render(doc *domain.VoucherDocument) ([]byte, error) {
	if doc == nil {
		return nil, customError.WrapMissingField("voucher")
	}
	out, err := json.Marshal(doc)
	if err != nil {
		return nil, errors.Wrap(err, "render voucher")
	}
	return out, nil
}

func checkVoucherInput(input *domain.VoucherInput) error {
	switch {
	case input == nil || input.Detail == nil:
		return customError.WrapMissingField("fee_detail")
	case input.Plan == nil:
		return customError.WrapMissingField("fee_plan")
	case input.Enrollment == nil:
		return customError.WrapMissingField("enrollment")
	case input.Course == nil:
		return customError.WrapMissingField("course")
	case input.Reference == "":
		return customError.WrapMissingField("reference")
	case input.GeneratedAt.IsZero():
		return customError.WrapMissingField("generated_at")
	}

	if input.Detail.FeePlanID != input.Plan.ID {
		return customError.WrapInconsistentReference("fee_detail_id", input.Detail.ID, "detail does not belong to fee plan "+input.Plan.ID)
	}
	if input.Plan.EnrollmentID != input.Enrollment.ID {
		return customError.WrapInconsistentReference("fee_plan_id", input.Plan.ID, "plan does not belong to enrollment "+input.Enrollment.ID)
	}
	if input.Course.ID != input.Enrollment.CourseID {
		return customError.WrapInconsistentReference("course_id", input.Course.ID, "course does not match enrollment "+input.Enrollment.ID)
	}
	if input.Student != nil && input.Student.ID != input.Enrollment.StudentID {
		return customError.WrapInconsistentReference("student_id", input.Student.ID, "student does not match enrollment "+input.Enrollment.ID)
	}
	return nil
}
