package service

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/segyhp/fee-ledger/internal/domain"
	customError "github.com/segyhp/fee-ledger/pkg/errors"
	"github.com/segyhp/fee-ledger/pkg/money"
)

func voucherInput() *domain.VoucherInput {
	period := money.Period{Month: time.April, Year: 2026}
	return &domain.VoucherInput{
		Enrollment: &domain.Enrollment{ID: "enr-1", StudentID: "stu-1", CourseID: "crs-1", Status: domain.EnrollmentStatusEnrolled},
		Plan:       &domain.FeePlan{ID: "plan-1", EnrollmentID: "enr-1", FeeType: domain.FeeTypeMonthly, Currency: money.PKR, Status: domain.PlanStatusActive},
		Detail: &domain.FeeDetail{
			ID:        "det-1",
			FeePlanID: "plan-1",
			Period:    &period,
			Amount:    money.New(500000, money.PKR),
			DueDate:   time.Date(2026, time.April, 11, 0, 0, 0, 0, time.UTC),
			Status:    domain.DetailStatusPending,
		},
		Course:  &domain.Course{ID: "crs-1", Title: "Tajweed Level 1", DefaultPrice: decimal.NullDecimal{}, BankInstructions: "Meezan Bank, A/C 0102"},
		Student: &domain.Student{ID: "stu-1", FullName: "Bilal Ahmed"},
		Payments: []*domain.PaymentRecord{
			{ID: "p-1", FeeDetailID: "det-1", Amount: money.New(200000, money.PKR), Status: domain.PaymentStatusCompleted},
			{ID: "p-2", FeeDetailID: "det-1", Amount: money.New(100000, money.PKR), Status: domain.PaymentStatusVoided},
		},
		GeneratedAt: time.Date(2026, time.April, 2, 10, 30, 0, 0, time.UTC),
		Reference:   "CH-1",
	}
}

func TestChallanGenerator_Generate(t *testing.T) {
	g := NewChallanGenerator()

	doc, err := g.Generate(voucherInput())

	require.NoError(t, err)
	assert.Equal(t, "CH-1", doc.Reference)
	assert.Equal(t, "2026-04-02T10:30:00Z", doc.GeneratedAt)
	require.Len(t, doc.Copies, 2)
	assert.Equal(t, domain.VoucherCopyBank, doc.Copies[0].CopyLabel)
	assert.Equal(t, domain.VoucherCopyStudent, doc.Copies[1].CopyLabel)

	c := doc.Copies[0]
	assert.Equal(t, "April 2026", c.PeriodLabel)
	assert.Equal(t, "2026-04-11", c.DueDate)
	assert.Equal(t, "5000.00", c.Amount)
	assert.Equal(t, "2000.00", c.AmountPaid)
	assert.Equal(t, "3000.00", c.AmountDue)
	assert.Equal(t, "PKR", c.Currency)
	assert.Equal(t, domain.DetailStatusPending, c.Status)
	assert.Equal(t, "Bilal Ahmed", c.StudentName)
	assert.Equal(t, "Meezan Bank, A/C 0102", c.BankInstructions)

	// the copies differ only by their label
	other := doc.Copies[1]
	other.CopyLabel = c.CopyLabel
	assert.Equal(t, c, other)
}

func TestChallanGenerator_Deterministic(t *testing.T) {
	g := NewChallanGenerator()

	first, err := g.Generate(voucherInput())
	require.NoError(t, err)
	second, err := g.Generate(voucherInput())
	require.NoError(t, err)

	a, err := g.Render(first)
	require.NoError(t, err)
	b, err := g.Render(second)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestChallanGenerator_InstallmentLabelAndOverdue(t *testing.T) {
	input := voucherInput()
	input.Detail.Period = nil
	input.Detail.InstallmentNumber = 2
	input.GeneratedAt = time.Date(2026, time.May, 1, 0, 0, 0, 0, time.UTC)

	doc, err := NewChallanGenerator().Generate(input)

	require.NoError(t, err)
	assert.Equal(t, "Installment 2", doc.Copies[0].PeriodLabel)
	assert.Equal(t, domain.DetailStatusOverdue, doc.Copies[0].Status)
}

func TestChallanGenerator_InputErrors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*domain.VoucherInput)
		code   string
	}{
		{"missing detail", func(in *domain.VoucherInput) { in.Detail = nil }, customError.ErrCodeMissingRequiredField},
		{"missing course", func(in *domain.VoucherInput) { in.Course = nil }, customError.ErrCodeMissingRequiredField},
		{"missing reference", func(in *domain.VoucherInput) { in.Reference = "" }, customError.ErrCodeMissingRequiredField},
		{"missing timestamp", func(in *domain.VoucherInput) { in.GeneratedAt = time.Time{} }, customError.ErrCodeMissingRequiredField},
		{"detail of another plan", func(in *domain.VoucherInput) { in.Detail.FeePlanID = "plan-2" }, customError.ErrCodeMissingRequiredField},
		{"course mismatch", func(in *domain.VoucherInput) { in.Course.ID = "crs-2" }, customError.ErrCodeMissingRequiredField},
		{"student mismatch", func(in *domain.VoucherInput) { in.Student.ID = "stu-2" }, customError.ErrCodeMissingRequiredField},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			input := voucherInput()
			tt.mutate(input)

			doc, err := NewChallanGenerator().Generate(input)

			assert.Nil(t, doc)
			requireCode(t, err, tt.code)
		})
	}
}

func TestVoucherService_GenerateVoucher(t *testing.T) {
	f := newFixture(t)
	plan := f.fullCoursePlan(t, "1000", 3)
	ctx := context.Background()

	_, err := f.pay(ctx, plan.Details[0].ID, "33", "k-1")
	require.NoError(t, err)

	doc, err := f.vouchers.GenerateVoucher(ctx, plan.Details[0].ID)

	require.NoError(t, err)
	assert.Equal(t, "CH-TEST-0001", doc.Reference)
	assert.Equal(t, "2026-03-15T09:00:00Z", doc.GeneratedAt)
	assert.Equal(t, "Practical Go", doc.Copies[0].CourseTitle)
	assert.Equal(t, "Ayesha Khan", doc.Copies[0].StudentName)
	assert.Equal(t, "33.00", doc.Copies[0].AmountPaid)
	assert.Equal(t, "300.00", doc.Copies[0].AmountDue)

	body, err := f.vouchers.Render(doc)
	require.NoError(t, err)
	assert.Contains(t, string(body), `"copy_label":"BANK COPY"`)

	_, err = f.vouchers.GenerateVoucher(ctx, "missing")
	requireCode(t, err, customError.ErrCodeNotFound)
}

func TestSnowflakeReferences(t *testing.T) {
	refs, err := NewSnowflakeReferences(7)
	require.NoError(t, err)

	a, b := refs.NextReference(), refs.NextReference()
	assert.NotEqual(t, a, b)
	assert.Regexp(t, `^CH-\d+$`, a)

	_, err = NewSnowflakeReferences(4096)
	assert.Error(t, err)
}
