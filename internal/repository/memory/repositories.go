package memory

import (
	"context"
	"sort"
	"time"

	"github.com/segyhp/fee-ledger/internal/domain"
	"github.com/segyhp/fee-ledger/internal/repository"

	"github.com/pkg/errors"
)

func notFound(entity, id string) error {
	return errors.Wrapf(repository.ErrNotFound, "%s %s", entity, id)
}

func duplicate(what string) error {
	return errors.Wrap(repository.ErrDuplicate, what)
}

// ---- catalog

type catalogRepository struct{ s *Store }

func NewCatalogRepository(s *Store) repository.CatalogRepository {
	return &catalogRepository{s: s}
}

func (r *catalogRepository) GetCourse(_ context.Context, id string) (*domain.Course, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	if c, ok := r.s.courses[id]; ok {
		return &c, nil
	}
	return nil, notFound("course", id)
}

func (r *catalogRepository) GetStudent(_ context.Context, id string) (*domain.Student, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	if st, ok := r.s.students[id]; ok {
		return &st, nil
	}
	return nil, notFound("student", id)
}

// ---- enrollments

type enrollmentRepository struct{ s *Store }

func NewEnrollmentRepository(s *Store) repository.EnrollmentRepository {
	return &enrollmentRepository{s: s}
}

func (r *enrollmentRepository) Create(_ context.Context, e *domain.Enrollment) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.enrollments[e.ID]; ok {
		return duplicate("enrollments_pkey")
	}
	for _, existing := range r.s.enrollments {
		if existing.StudentID == e.StudentID && existing.CourseID == e.CourseID && !existing.IsCancelled() && !e.IsCancelled() {
			return duplicate("uq_enrollments_student_course_active")
		}
	}
	r.s.enrollments[e.ID] = *e
	return nil
}

func (r *enrollmentRepository) GetByID(_ context.Context, id string) (*domain.Enrollment, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	if e, ok := r.s.enrollments[id]; ok {
		return &e, nil
	}
	return nil, notFound("enrollment", id)
}

func (r *enrollmentRepository) FindActive(_ context.Context, studentID, courseID string) (*domain.Enrollment, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	for _, e := range r.s.enrollments {
		if e.StudentID == studentID && e.CourseID == courseID && !e.IsCancelled() {
			return &e, nil
		}
	}
	return nil, notFound("enrollment", studentID+"/"+courseID)
}

// ---- fee plans and details

type feePlanRepository struct{ s *Store }

func NewFeePlanRepository(s *Store) repository.FeePlanRepository {
	return &feePlanRepository{s: s}
}

func (r *feePlanRepository) Create(_ context.Context, plan *domain.FeePlan) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.plans[plan.ID]; ok {
		return duplicate("fee_plans_pkey")
	}
	for _, existing := range r.s.plans {
		if existing.EnrollmentID == plan.EnrollmentID && !existing.IsCancelled() && !plan.IsCancelled() {
			return duplicate("uq_fee_plans_enrollment_active")
		}
	}
	r.s.plans[plan.ID] = *plan
	r.s.planOrder = append(r.s.planOrder, plan.ID)
	return nil
}

func (r *feePlanRepository) GetByID(_ context.Context, id string) (*domain.FeePlan, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	if p, ok := r.s.plans[id]; ok {
		return &p, nil
	}
	return nil, notFound("fee plan", id)
}

// GetByIDForUpdate needs no row lock; transactions are already serialized.
func (r *feePlanRepository) GetByIDForUpdate(ctx context.Context, id string) (*domain.FeePlan, error) {
	return r.GetByID(ctx, id)
}

func (r *feePlanRepository) GetActiveByEnrollment(_ context.Context, enrollmentID string) (*domain.FeePlan, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	for _, id := range r.s.planOrder {
		p := r.s.plans[id]
		if p.EnrollmentID == enrollmentID && !p.IsCancelled() {
			return &p, nil
		}
	}
	return nil, notFound("active fee plan for enrollment", enrollmentID)
}

func (r *feePlanRepository) GetLatestByEnrollment(_ context.Context, enrollmentID string) (*domain.FeePlan, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	var latest *domain.FeePlan
	for _, id := range r.s.planOrder {
		p := r.s.plans[id]
		if p.EnrollmentID != enrollmentID {
			continue
		}
		if latest == nil || !p.CreatedAt.Before(latest.CreatedAt) {
			latest = &p
		}
	}
	if latest == nil {
		return nil, notFound("fee plan for enrollment", enrollmentID)
	}
	return latest, nil
}

func (r *feePlanRepository) UpdateStatus(_ context.Context, id, status string, updatedAt time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	p, ok := r.s.plans[id]
	if !ok {
		return notFound("fee plan", id)
	}
	p.Status = status
	p.UpdatedAt = updatedAt
	r.s.plans[id] = p
	return nil
}

func (r *feePlanRepository) CreateDetails(_ context.Context, details []*domain.FeeDetail) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	staged := make(map[string]domain.FeeDetail, len(details))
	for _, d := range details {
		if _, ok := r.s.details[d.ID]; ok {
			return duplicate("fee_details_pkey")
		}
		for _, existing := range r.s.details {
			if clash(existing, *d) {
				return duplicate(detailConstraint(*d))
			}
		}
		for _, other := range staged {
			if clash(other, *d) {
				return duplicate(detailConstraint(*d))
			}
		}
		staged[d.ID] = *d
	}

	for _, d := range details {
		r.s.details[d.ID] = *d
	}
	return nil
}

func clash(a, b domain.FeeDetail) bool {
	if a.FeePlanID != b.FeePlanID {
		return false
	}
	if a.Period != nil && b.Period != nil {
		return *a.Period == *b.Period
	}
	return a.Period == nil && b.Period == nil && a.InstallmentNumber == b.InstallmentNumber
}

func detailConstraint(d domain.FeeDetail) string {
	if d.Period != nil {
		return "uq_fee_details_period"
	}
	return "uq_fee_details_installment"
}

func (r *feePlanRepository) GetDetail(_ context.Context, id string) (*domain.FeeDetail, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	if d, ok := r.s.details[id]; ok {
		return &d, nil
	}
	return nil, notFound("fee detail", id)
}

// GetDetailForUpdate needs no row lock; transactions are already serialized.
func (r *feePlanRepository) GetDetailForUpdate(ctx context.Context, id string) (*domain.FeeDetail, error) {
	return r.GetDetail(ctx, id)
}

func (r *feePlanRepository) ListDetails(_ context.Context, planID string) ([]*domain.FeeDetail, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	return r.s.listDetails(planID), nil
}

func (s *Store) listDetails(planID string) []*domain.FeeDetail {
	out := make([]*domain.FeeDetail, 0)
	for _, d := range s.details {
		if d.FeePlanID == planID {
			d := d
			out = append(out, &d)
		}
	}
	domain.SortDetails(out)
	return out
}

func (r *feePlanRepository) UpdateDetailStatus(_ context.Context, id, status string, paidDate *time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	d, ok := r.s.details[id]
	if !ok {
		return notFound("fee detail", id)
	}
	d.Status = status
	d.PaidDate = paidDate
	r.s.details[id] = d
	return nil
}

func (r *feePlanRepository) ListDueDetails(_ context.Context, from, to time.Time, limit int) ([]*domain.DueReminderCandidate, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	var out []*domain.DueReminderCandidate
	for _, d := range r.s.details {
		if d.Status != domain.DetailStatusPending || d.DueDate.Before(from) || d.DueDate.After(to) {
			continue
		}
		if r.s.hasEvent(domain.EventFeeDueReminder, domain.ReminderAggregateID(d.ID, d.DueDate)) {
			continue
		}
		p, ok := r.s.plans[d.FeePlanID]
		if !ok || p.Status != domain.PlanStatusActive {
			continue
		}
		e, ok := r.s.enrollments[p.EnrollmentID]
		if !ok || e.IsCancelled() {
			continue
		}

		var paid int64
		for _, pr := range r.s.payments {
			if pr.FeeDetailID == d.ID && pr.IsCompleted() {
				paid += pr.Amount.Amount
			}
		}

		d := d
		out = append(out, &domain.DueReminderCandidate{Enrollment: &e, Plan: &p, Detail: &d, Paid: paid})
	}

	sort.Slice(out, func(i, j int) bool {
		a, b := out[i].Detail, out[j].Detail
		if !a.DueDate.Equal(b.DueDate) {
			return a.DueDate.Before(b.DueDate)
		}
		return a.ID < b.ID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// ---- payments

type paymentRepository struct{ s *Store }

func NewPaymentRepository(s *Store) repository.PaymentRepository {
	return &paymentRepository{s: s}
}

func (r *paymentRepository) Create(_ context.Context, p *domain.PaymentRecord) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.payments[p.ID]; ok {
		return duplicate("payment_records_pkey")
	}
	for _, existing := range r.s.payments {
		if existing.IdempotencyKey == p.IdempotencyKey {
			return duplicate("uq_payment_records_idempotency_key")
		}
	}
	r.s.payments[p.ID] = *p
	r.s.paymentOrder = append(r.s.paymentOrder, p.ID)
	return nil
}

func (r *paymentRepository) GetByID(_ context.Context, id string) (*domain.PaymentRecord, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	if p, ok := r.s.payments[id]; ok {
		return &p, nil
	}
	return nil, notFound("payment record", id)
}

func (r *paymentRepository) GetByIdempotencyKey(_ context.Context, key string) (*domain.PaymentRecord, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	for _, p := range r.s.payments {
		if p.IdempotencyKey == key {
			return &p, nil
		}
	}
	return nil, notFound("payment with idempotency key", key)
}

func (r *paymentRepository) ListByDetail(_ context.Context, detailID string) ([]*domain.PaymentRecord, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	out := make([]*domain.PaymentRecord, 0)
	for _, id := range r.s.paymentOrder {
		p := r.s.payments[id]
		if p.FeeDetailID == detailID {
			out = append(out, &p)
		}
	}
	return out, nil
}

func (r *paymentRepository) ListByPlan(_ context.Context, planID string) ([]*domain.PaymentRecord, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	out := make([]*domain.PaymentRecord, 0)
	for _, id := range r.s.paymentOrder {
		p := r.s.payments[id]
		if d, ok := r.s.details[p.FeeDetailID]; ok && d.FeePlanID == planID {
			out = append(out, &p)
		}
	}
	return out, nil
}

func (r *paymentRepository) Void(_ context.Context, id, voidedBy string, voidedAt time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	p, ok := r.s.payments[id]
	if !ok || !p.IsCompleted() {
		return notFound("completed payment record", id)
	}
	p.Status = domain.PaymentStatusVoided
	p.VoidedBy = voidedBy
	p.VoidedAt = &voidedAt
	r.s.payments[id] = p
	return nil
}

// ---- outbox

type outboxRepository struct{ s *Store }

func NewOutboxRepository(s *Store) repository.OutboxRepository {
	return &outboxRepository{s: s}
}

func (r *outboxRepository) Enqueue(_ context.Context, e *domain.OutboxEvent) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.outbox[e.ID]; ok {
		return duplicate("outbox_events_pkey")
	}
	stored := *e
	if stored.NextAttemptAt.IsZero() {
		stored.NextAttemptAt = stored.CreatedAt
	}
	r.s.outbox[e.ID] = stored
	r.s.outboxOrder = append(r.s.outboxOrder, e.ID)
	return nil
}

func (r *outboxRepository) ClaimPending(_ context.Context, now, leaseUntil time.Time, limit int) ([]*domain.OutboxEvent, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	due := make([]*domain.OutboxEvent, 0)
	for _, id := range r.s.outboxOrder {
		e := r.s.outbox[id]
		if e.DispatchedAt != nil || e.DeadAt != nil || e.NextAttemptAt.After(now) {
			continue
		}
		due = append(due, &e)
	}
	sort.SliceStable(due, func(i, j int) bool {
		return due[i].NextAttemptAt.Before(due[j].NextAttemptAt)
	})
	if limit > 0 && len(due) > limit {
		due = due[:limit]
	}

	for _, e := range due {
		e.NextAttemptAt = leaseUntil
		r.s.outbox[e.ID] = *e
	}
	sort.SliceStable(due, func(i, j int) bool {
		return due[i].CreatedAt.Before(due[j].CreatedAt)
	})
	return due, nil
}

func (r *outboxRepository) update(id string, fn func(e *domain.OutboxEvent)) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	e, ok := r.s.outbox[id]
	if !ok {
		return notFound("outbox event", id)
	}
	fn(&e)
	r.s.outbox[id] = e
	return nil
}

func (r *outboxRepository) MarkDispatched(_ context.Context, id string, at time.Time) error {
	return r.update(id, func(e *domain.OutboxEvent) {
		e.Attempts++
		e.DispatchedAt = &at
		e.LastError = nil
	})
}

func (r *outboxRepository) MarkFailed(_ context.Context, id string, reason string, retryAt time.Time) error {
	return r.update(id, func(e *domain.OutboxEvent) {
		e.Attempts++
		e.LastError = &reason
		e.NextAttemptAt = retryAt
	})
}

func (r *outboxRepository) MarkDead(_ context.Context, id string, reason string, at time.Time) error {
	return r.update(id, func(e *domain.OutboxEvent) {
		e.Attempts++
		e.LastError = &reason
		e.DeadAt = &at
	})
}

func (r *outboxRepository) Exists(_ context.Context, eventType, aggregateID string) (bool, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	return r.s.hasEvent(eventType, aggregateID), nil
}

func (s *Store) hasEvent(eventType, aggregateID string) bool {
	for _, e := range s.outbox {
		if e.EventType == eventType && e.AggregateID == aggregateID {
			return true
		}
	}
	return false
}
