package memory_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/segyhp/fee-ledger/internal/domain"
	"github.com/segyhp/fee-ledger/internal/repository"
	"github.com/segyhp/fee-ledger/internal/repository/memory"
	"github.com/segyhp/fee-ledger/pkg/money"
)

var created = time.Date(2026, time.March, 1, 8, 0, 0, 0, time.UTC)

func newEnrollment(id string) *domain.Enrollment {
	return &domain.Enrollment{
		ID:         id,
		StudentID:  "student-1",
		CourseID:   "course-1",
		Status:     domain.EnrollmentStatusEnrolled,
		EnrolledAt: created,
	}
}

func newPlan(id, enrollmentID string) *domain.FeePlan {
	return &domain.FeePlan{
		ID:                id,
		EnrollmentID:      enrollmentID,
		FeeType:           domain.FeeTypeFullCourse,
		TotalAmount:       money.New(30000, money.USD),
		Currency:          money.USD,
		InstallmentsCount: 3,
		ScheduleMode:      domain.ScheduleModeEager,
		Status:            domain.PlanStatusActive,
		CreatedBy:         "admin",
		CreatedAt:         created,
		UpdatedAt:         created,
	}
}

func TestTransactor_RollbackRestoresState(t *testing.T) {
	store := memory.NewStore()
	tx := memory.NewTransactor(store)
	enrollments := memory.NewEnrollmentRepository(store)
	ctx := context.Background()

	boom := errors.New("boom")
	err := tx.WithinTransaction(ctx, func(ctx context.Context) error {
		require.NoError(t, enrollments.Create(ctx, newEnrollment("enr-1")))
		return boom
	})
	require.ErrorIs(t, err, boom)

	_, err = enrollments.GetByID(ctx, "enr-1")
	assert.ErrorIs(t, err, repository.ErrNotFound)
	assert.Empty(t, store.Enrollments())
}

func TestTransactor_NestedCallsJoinOuterTransaction(t *testing.T) {
	store := memory.NewStore()
	tx := memory.NewTransactor(store)
	enrollments := memory.NewEnrollmentRepository(store)
	ctx := context.Background()

	err := tx.WithinTransaction(ctx, func(ctx context.Context) error {
		if err := tx.WithinTransaction(ctx, func(ctx context.Context) error {
			return enrollments.Create(ctx, newEnrollment("enr-1"))
		}); err != nil {
			return err
		}
		return errors.New("outer failure")
	})
	require.Error(t, err)

	// the inner write went with the outer rollback
	assert.Empty(t, store.Enrollments())
}

func TestEnrollmentRepository_ActiveUniqueness(t *testing.T) {
	store := memory.NewStore()
	repo := memory.NewEnrollmentRepository(store)
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, newEnrollment("enr-1")))

	err := repo.Create(ctx, newEnrollment("enr-2"))
	assert.ErrorIs(t, err, repository.ErrDuplicate)

	found, err := repo.FindActive(ctx, "student-1", "course-1")
	require.NoError(t, err)
	assert.Equal(t, "enr-1", found.ID)

	// a cancelled enrollment does not block a new one
	cancelled := newEnrollment("enr-3")
	cancelled.StudentID = "student-2"
	cancelled.Status = domain.EnrollmentStatusCancelled
	require.NoError(t, repo.Create(ctx, cancelled))
	require.NoError(t, repo.Create(ctx, func() *domain.Enrollment {
		e := newEnrollment("enr-4")
		e.StudentID = "student-2"
		return e
	}()))
}

func TestFeePlanRepository_DetailUniqueness(t *testing.T) {
	store := memory.NewStore()
	repo := memory.NewFeePlanRepository(store)
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, newPlan("plan-1", "enr-1")))
	assert.ErrorIs(t, repo.Create(ctx, newPlan("plan-2", "enr-1")), repository.ErrDuplicate)

	detail := func(id string, n int) *domain.FeeDetail {
		return &domain.FeeDetail{
			ID:                id,
			FeePlanID:         "plan-1",
			InstallmentNumber: n,
			Amount:            money.New(10000, money.USD),
			DueDate:           created.AddDate(0, n, 0),
			Status:            domain.DetailStatusPending,
			CreatedAt:         created,
		}
	}

	// a batch with a repeated number is rejected as a whole
	err := repo.CreateDetails(ctx, []*domain.FeeDetail{detail("d-1", 1), detail("d-2", 1)})
	assert.ErrorIs(t, err, repository.ErrDuplicate)
	assert.Empty(t, store.FeeDetails("plan-1"))

	require.NoError(t, repo.CreateDetails(ctx, []*domain.FeeDetail{detail("d-3", 3), detail("d-1", 1), detail("d-2", 2)}))

	listed, err := repo.ListDetails(ctx, "plan-1")
	require.NoError(t, err)
	require.Len(t, listed, 3)
	for i, d := range listed {
		assert.Equal(t, i+1, d.InstallmentNumber)
	}
}

func TestPaymentRepository_IdempotencyKeyAndVoid(t *testing.T) {
	store := memory.NewStore()
	repo := memory.NewPaymentRepository(store)
	ctx := context.Background()

	payment := &domain.PaymentRecord{
		ID:             "pay-1",
		FeeDetailID:    "d-1",
		Amount:         money.New(5000, money.USD),
		Method:         "cash",
		IdempotencyKey: "key-1",
		RecordedBy:     "admin",
		RecordedAt:     created,
		Status:         domain.PaymentStatusCompleted,
	}
	require.NoError(t, repo.Create(ctx, payment))

	again := *payment
	again.ID = "pay-2"
	assert.ErrorIs(t, repo.Create(ctx, &again), repository.ErrDuplicate)

	found, err := repo.GetByIdempotencyKey(ctx, "key-1")
	require.NoError(t, err)
	assert.Equal(t, "pay-1", found.ID)

	require.NoError(t, repo.Void(ctx, "pay-1", "auditor", created.Add(time.Hour)))
	voided, err := repo.GetByID(ctx, "pay-1")
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentStatusVoided, voided.Status)
	assert.Equal(t, "auditor", voided.VoidedBy)

	// voiding twice finds no completed record
	assert.ErrorIs(t, repo.Void(ctx, "pay-1", "auditor", created), repository.ErrNotFound)
}

func TestOutboxRepository_ClaimPending(t *testing.T) {
	store := memory.NewStore()
	repo := memory.NewOutboxRepository(store)
	ctx := context.Background()

	for _, id := range []string{"ev-1", "ev-2", "ev-3"} {
		require.NoError(t, repo.Enqueue(ctx, &domain.OutboxEvent{
			ID:          id,
			EventType:   domain.EventPaymentRecorded,
			AggregateID: "pay-" + id,
			Payload:     []byte(`{}`),
			CreatedAt:   created,
		}))
	}

	lease := created.Add(5 * time.Minute)
	claimed, err := repo.ClaimPending(ctx, created, lease, 2)
	require.NoError(t, err)
	require.Len(t, claimed, 2)
	assert.Equal(t, "ev-1", claimed[0].ID)

	// leased events stay out of the next claim
	again, err := repo.ClaimPending(ctx, created, lease, 10)
	require.NoError(t, err)
	require.Len(t, again, 1)
	assert.Equal(t, "ev-3", again[0].ID)

	require.NoError(t, repo.MarkDispatched(ctx, "ev-1", created))
	require.NoError(t, repo.MarkFailed(ctx, "ev-2", "smtp timeout", created.Add(time.Hour)))
	require.NoError(t, repo.MarkDead(ctx, "ev-3", "bad payload", created))

	events := store.OutboxEvents()
	require.Len(t, events, 3)
	assert.NotNil(t, events[0].DispatchedAt)
	assert.Equal(t, 1, events[0].Attempts)
	assert.Nil(t, events[1].DispatchedAt)
	require.NotNil(t, events[1].LastError)
	assert.Equal(t, "smtp timeout", *events[1].LastError)
	assert.Equal(t, created.Add(time.Hour), events[1].NextAttemptAt)
	require.NotNil(t, events[2].DeadAt)

	// only the failed event comes back, and only once its retry time arrives
	none, err := repo.ClaimPending(ctx, created.Add(30*time.Minute), lease, 10)
	require.NoError(t, err)
	assert.Empty(t, none)
	retry, err := repo.ClaimPending(ctx, created.Add(time.Hour), created.Add(2*time.Hour), 10)
	require.NoError(t, err)
	require.Len(t, retry, 1)
	assert.Equal(t, "ev-2", retry[0].ID)

	exists, err := repo.Exists(ctx, domain.EventPaymentRecorded, "pay-ev-2")
	require.NoError(t, err)
	assert.True(t, exists)
	assert.ErrorIs(t, repo.MarkDead(ctx, "ev-missing", "x", created), repository.ErrNotFound)
}
