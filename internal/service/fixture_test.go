package service

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/segyhp/fee-ledger/internal/config"
	"github.com/segyhp/fee-ledger/internal/domain"
	"github.com/segyhp/fee-ledger/internal/repository"
	"github.com/segyhp/fee-ledger/internal/repository/memory"
	customError "github.com/segyhp/fee-ledger/pkg/errors"
)

var fixedNow = time.Date(2026, time.March, 15, 9, 0, 0, 0, time.UTC)

const (
	testCourseID  = "course-go-101"
	testStudentID = "student-42"
	testAdmin     = "admin-1"
)

type staticReferences string

func (r staticReferences) NextReference() string { return string(r) }

type fixture struct {
	store         *memory.Store
	cfg           *config.Config
	enrollments   repository.EnrollmentRepository
	catalog       repository.CatalogRepository
	feePlanRepo   repository.FeePlanRepository
	paymentRepo   repository.PaymentRepository
	outbox        repository.OutboxRepository
	tx            repository.Transactor
	plans         *FeePlanService
	ledger        *PaymentLedger
	gateway       *EnrollmentGateway
	statements    *StatementService
	vouchers      *VoucherService
	notifications *NotificationService
}

func testConfig() *config.Config {
	return &config.Config{
		Scheduler: config.SchedulerConfig{
			OutboxBatchSize:    50,
			OutboxMaxAttempts:  3,
			OutboxRetryBackoff: time.Minute,
			Timezone:           "UTC",
		},
		Business: config.BusinessConfig{
			DefaultCurrency:        "USD",
			MonthlyGraceDays:       10,
			InstallmentSpacingDays: 30,
			InstallmentRounding:    "1",
			StatementCacheTTL:      time.Minute,
			ReminderLeadDays:       3,
			SnowflakeNode:          1,
		},
	}
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	store := memory.NewStore()
	store.AddCourse(domain.Course{
		ID:               testCourseID,
		Title:            "Practical Go",
		DefaultPrice:     decimal.NewNullDecimal(decimal.RequireFromString("450.00")),
		Currency:         "USD",
		BankInstructions: "Deposit at any branch, account 0001-2345",
	})
	store.AddStudent(domain.Student{ID: testStudentID, FullName: "Ayesha Khan", Email: "ayesha@example.com"})

	f := &fixture{
		store:       store,
		cfg:         testConfig(),
		enrollments: memory.NewEnrollmentRepository(store),
		catalog:     memory.NewCatalogRepository(store),
		feePlanRepo: memory.NewFeePlanRepository(store),
		paymentRepo: memory.NewPaymentRepository(store),
		outbox:      memory.NewOutboxRepository(store),
		tx:          memory.NewTransactor(store),
	}
	f.wire(t)
	return f
}

// wire builds the services over the fixture's repositories with a fixed clock.
func (f *fixture) wire(t *testing.T) {
	t.Helper()
	logger := zap.NewNop()
	clock := func() time.Time { return fixedNow }

	f.plans = NewFeePlanService(f.enrollments, f.catalog, f.feePlanRepo, f.paymentRepo, f.outbox, f.tx, nil, f.cfg, logger)
	f.plans.now = clock
	f.ledger = NewPaymentLedger(f.enrollments, f.feePlanRepo, f.paymentRepo, f.outbox, f.tx, nil, f.cfg, logger)
	f.ledger.now = clock
	f.gateway = NewEnrollmentGateway(f.enrollments, f.catalog, f.plans, f.tx, logger)
	f.gateway.now = clock
	f.statements = NewStatementService(f.enrollments, f.feePlanRepo, f.paymentRepo, nil, logger)
	f.statements.now = clock
	f.vouchers = NewVoucherService(f.enrollments, f.catalog, f.feePlanRepo, f.paymentRepo, staticReferences("CH-TEST-0001"))
	f.vouchers.now = clock
	f.notifications = NewNotificationService(f.outbox, f.feePlanRepo, f.tx, NewLogNotifier(logger), f.cfg, logger)
	f.notifications.now = clock
}

func (f *fixture) enroll(t *testing.T) *domain.Enrollment {
	t.Helper()
	resp, err := f.gateway.Enroll(context.Background(), &domain.EnrollRequest{
		StudentID:   testStudentID,
		CourseID:    testCourseID,
		RequestedBy: testAdmin,
	})
	require.NoError(t, err)
	return resp.Enrollment
}

func (f *fixture) fullCoursePlan(t *testing.T, total string, installments int) *domain.FeePlanWithSchedule {
	t.Helper()
	enrollment := f.enroll(t)
	plan, err := f.plans.CreatePlan(context.Background(), &domain.CreatePlanRequest{
		EnrollmentID:      enrollment.ID,
		FeeType:           domain.FeeTypeFullCourse,
		TotalAmount:       total,
		Currency:          "USD",
		InstallmentsCount: installments,
		RequestedBy:       testAdmin,
	})
	require.NoError(t, err)
	return plan
}

func (f *fixture) pay(ctx context.Context, detailID, amount, key string) (*domain.RecordPaymentResult, error) {
	return f.ledger.RecordPayment(ctx, &domain.RecordPaymentRequest{
		FeeDetailID:    detailID,
		Amount:         amount,
		Method:         domain.PaymentMethodCash,
		IdempotencyKey: key,
		RecordedBy:     testAdmin,
	})
}

func requireCode(t *testing.T, err error, code string) *customError.BusinessError {
	t.Helper()
	require.Error(t, err)
	be, ok := customError.As(err)
	require.True(t, ok, "expected a business error, got %v", err)
	require.Equal(t, code, be.Code)
	return be
}

func minor(amounts []*domain.FeeDetail) []int64 {
	out := make([]int64, 0, len(amounts))
	for _, d := range amounts {
		out = append(out, d.Amount.Amount)
	}
	return out
}
