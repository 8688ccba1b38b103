package repository

import (
	"context"
	"errors"
	"time"

	"github.com/segyhp/fee-ledger/internal/domain"
)

var (
	// ErrNotFound is returned when a lookup matches no row.
	ErrNotFound = errors.New("record not found")
	// ErrDuplicate is returned when an insert hits a uniqueness constraint.
	ErrDuplicate = errors.New("duplicate record")
)

// Transactor runs fn inside one database transaction. Repository calls made
// with the context handed to fn join that transaction; fn returning an error
// rolls everything back.
type Transactor interface {
	WithinTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// EnrollmentRepository defines the interface for enrollment data operations
type EnrollmentRepository interface {
	// Create stores a new enrollment, ErrDuplicate when the student already
	// holds a non-cancelled enrollment in the course
	Create(ctx context.Context, enrollment *domain.Enrollment) error

	// GetByID retrieves an enrollment by id
	GetByID(ctx context.Context, id string) (*domain.Enrollment, error)

	// FindActive returns the non-cancelled enrollment of a student in a course
	FindActive(ctx context.Context, studentID, courseID string) (*domain.Enrollment, error)
}

// CatalogRepository is the read-only view over courses and students owned by
// the catalog and roster collaborators.
type CatalogRepository interface {
	GetCourse(ctx context.Context, id string) (*domain.Course, error)
	GetStudent(ctx context.Context, id string) (*domain.Student, error)
}

// FeePlanRepository defines the interface for fee plan and fee detail data operations
type FeePlanRepository interface {
	// Create stores a plan, ErrDuplicate when the enrollment already has a
	// non-cancelled plan
	Create(ctx context.Context, plan *domain.FeePlan) error

	GetByID(ctx context.Context, id string) (*domain.FeePlan, error)

	// GetByIDForUpdate locks the plan row for the running transaction
	GetByIDForUpdate(ctx context.Context, id string) (*domain.FeePlan, error)

	// GetActiveByEnrollment returns the non-cancelled plan of an enrollment
	GetActiveByEnrollment(ctx context.Context, enrollmentID string) (*domain.FeePlan, error)

	// GetLatestByEnrollment returns the newest plan of an enrollment in any status
	GetLatestByEnrollment(ctx context.Context, enrollmentID string) (*domain.FeePlan, error)

	UpdateStatus(ctx context.Context, id, status string, updatedAt time.Time) error

	// CreateDetails inserts schedule rows, ErrDuplicate on a repeated
	// installment number or billing month
	CreateDetails(ctx context.Context, details []*domain.FeeDetail) error

	GetDetail(ctx context.Context, id string) (*domain.FeeDetail, error)

	// GetDetailForUpdate locks the detail row for the running transaction
	GetDetailForUpdate(ctx context.Context, id string) (*domain.FeeDetail, error)

	// ListDetails returns the plan's details ordered by sequence
	ListDetails(ctx context.Context, planID string) ([]*domain.FeeDetail, error)

	UpdateDetailStatus(ctx context.Context, id, status string, paidDate *time.Time) error

	// ListDueDetails returns pending details of active plans falling due in
	// [from, to] that have no due reminder for their current due date yet
	ListDueDetails(ctx context.Context, from, to time.Time, limit int) ([]*domain.DueReminderCandidate, error)
}

// PaymentRepository defines the interface for payment data operations
type PaymentRepository interface {
	// Create stores a payment record, ErrDuplicate when the idempotency key exists
	Create(ctx context.Context, payment *domain.PaymentRecord) error

	GetByID(ctx context.Context, id string) (*domain.PaymentRecord, error)

	// GetByIdempotencyKey returns the payment recorded under key
	GetByIdempotencyKey(ctx context.Context, key string) (*domain.PaymentRecord, error)

	// ListByDetail returns a detail's payments oldest first
	ListByDetail(ctx context.Context, detailID string) ([]*domain.PaymentRecord, error)

	// ListByPlan returns every payment against the plan's details oldest first
	ListByPlan(ctx context.Context, planID string) ([]*domain.PaymentRecord, error)

	Void(ctx context.Context, id, voidedBy string, voidedAt time.Time) error
}

// OutboxRepository defines the interface for outbound notification events
type OutboxRepository interface {
	Enqueue(ctx context.Context, event *domain.OutboxEvent) error

	// ClaimPending takes up to limit live events whose next attempt is due at
	// now, oldest attempt first, and pushes their next attempt to leaseUntil so
	// no other dispatcher picks them up while they are being delivered
	ClaimPending(ctx context.Context, now, leaseUntil time.Time, limit int) ([]*domain.OutboxEvent, error)

	MarkDispatched(ctx context.Context, id string, at time.Time) error

	// MarkFailed records a failed attempt and schedules the next one at retryAt
	MarkFailed(ctx context.Context, id string, reason string, retryAt time.Time) error

	// MarkDead records a final failed attempt; the event is never claimed again
	MarkDead(ctx context.Context, id string, reason string, at time.Time) error

	// Exists reports whether an event of the type was already written for the aggregate
	Exists(ctx context.Context, eventType, aggregateID string) (bool, error)
}
