package mocks

import (
	"context"
	"time"

	"github.com/segyhp/fee-ledger/internal/domain"

	"github.com/stretchr/testify/mock"
)

// Transactor runs fn directly with the caller's context.
type Transactor struct{}

func (Transactor) WithinTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

type MockEnrollmentRepository struct {
	mock.Mock
}

func (m *MockEnrollmentRepository) Create(ctx context.Context, enrollment *domain.Enrollment) error {
	args := m.Called(ctx, enrollment)
	return args.Error(0)
}

func (m *MockEnrollmentRepository) GetByID(ctx context.Context, id string) (*domain.Enrollment, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Enrollment), args.Error(1)
}

func (m *MockEnrollmentRepository) FindActive(ctx context.Context, studentID, courseID string) (*domain.Enrollment, error) {
	args := m.Called(ctx, studentID, courseID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Enrollment), args.Error(1)
}

type MockCatalogRepository struct {
	mock.Mock
}

func (m *MockCatalogRepository) GetCourse(ctx context.Context, id string) (*domain.Course, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Course), args.Error(1)
}

func (m *MockCatalogRepository) GetStudent(ctx context.Context, id string) (*domain.Student, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Student), args.Error(1)
}

type MockFeePlanRepository struct {
	mock.Mock
}

func (m *MockFeePlanRepository) Create(ctx context.Context, plan *domain.FeePlan) error {
	args := m.Called(ctx, plan)
	return args.Error(0)
}

func (m *MockFeePlanRepository) GetByID(ctx context.Context, id string) (*domain.FeePlan, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.FeePlan), args.Error(1)
}

func (m *MockFeePlanRepository) GetByIDForUpdate(ctx context.Context, id string) (*domain.FeePlan, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.FeePlan), args.Error(1)
}

func (m *MockFeePlanRepository) GetActiveByEnrollment(ctx context.Context, enrollmentID string) (*domain.FeePlan, error) {
	args := m.Called(ctx, enrollmentID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.FeePlan), args.Error(1)
}

func (m *MockFeePlanRepository) GetLatestByEnrollment(ctx context.Context, enrollmentID string) (*domain.FeePlan, error) {
	args := m.Called(ctx, enrollmentID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.FeePlan), args.Error(1)
}

func (m *MockFeePlanRepository) UpdateStatus(ctx context.Context, id, status string, updatedAt time.Time) error {
	args := m.Called(ctx, id, status, updatedAt)
	return args.Error(0)
}

func (m *MockFeePlanRepository) CreateDetails(ctx context.Context, details []*domain.FeeDetail) error {
	args := m.Called(ctx, details)
	return args.Error(0)
}

func (m *MockFeePlanRepository) GetDetail(ctx context.Context, id string) (*domain.FeeDetail, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.FeeDetail), args.Error(1)
}

func (m *MockFeePlanRepository) GetDetailForUpdate(ctx context.Context, id string) (*domain.FeeDetail, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.FeeDetail), args.Error(1)
}

func (m *MockFeePlanRepository) ListDetails(ctx context.Context, planID string) ([]*domain.FeeDetail, error) {
	args := m.Called(ctx, planID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.FeeDetail), args.Error(1)
}

func (m *MockFeePlanRepository) UpdateDetailStatus(ctx context.Context, id, status string, paidDate *time.Time) error {
	args := m.Called(ctx, id, status, paidDate)
	return args.Error(0)
}

func (m *MockFeePlanRepository) ListDueDetails(ctx context.Context, from, to time.Time, limit int) ([]*domain.DueReminderCandidate, error) {
	args := m.Called(ctx, from, to, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.DueReminderCandidate), args.Error(1)
}

type MockPaymentRepository struct {
	mock.Mock
}

func (m *MockPaymentRepository) Create(ctx context.Context, payment *domain.PaymentRecord) error {
	args := m.Called(ctx, payment)
	return args.Error(0)
}

func (m *MockPaymentRepository) GetByID(ctx context.Context, id string) (*domain.PaymentRecord, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.PaymentRecord), args.Error(1)
}

func (m *MockPaymentRepository) GetByIdempotencyKey(ctx context.Context, key string) (*domain.PaymentRecord, error) {
	args := m.Called(ctx, key)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.PaymentRecord), args.Error(1)
}

func (m *MockPaymentRepository) ListByDetail(ctx context.Context, detailID string) ([]*domain.PaymentRecord, error) {
	args := m.Called(ctx, detailID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.PaymentRecord), args.Error(1)
}

func (m *MockPaymentRepository) ListByPlan(ctx context.Context, planID string) ([]*domain.PaymentRecord, error) {
	args := m.Called(ctx, planID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.PaymentRecord), args.Error(1)
}

func (m *MockPaymentRepository) Void(ctx context.Context, id, voidedBy string, voidedAt time.Time) error {
	args := m.Called(ctx, id, voidedBy, voidedAt)
	return args.Error(0)
}

type MockOutboxRepository struct {
	mock.Mock
}

func (m *MockOutboxRepository) Enqueue(ctx context.Context, event *domain.OutboxEvent) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

func (m *MockOutboxRepository) ClaimPending(ctx context.Context, now, leaseUntil time.Time, limit int) ([]*domain.OutboxEvent, error) {
	args := m.Called(ctx, now, leaseUntil, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.OutboxEvent), args.Error(1)
}

func (m *MockOutboxRepository) MarkDispatched(ctx context.Context, id string, at time.Time) error {
	args := m.Called(ctx, id, at)
	return args.Error(0)
}

func (m *MockOutboxRepository) MarkFailed(ctx context.Context, id string, reason string, retryAt time.Time) error {
	args := m.Called(ctx, id, reason, retryAt)
	return args.Error(0)
}

func (m *MockOutboxRepository) MarkDead(ctx context.Context, id string, reason string, at time.Time) error {
	args := m.Called(ctx, id, reason, at)
	return args.Error(0)
}

func (m *MockOutboxRepository) Exists(ctx context.Context, eventType, aggregateID string) (bool, error) {
	args := m.Called(ctx, eventType, aggregateID)
	return args.Bool(0), args.Error(1)
}
