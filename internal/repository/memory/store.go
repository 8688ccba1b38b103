// Package memory is an in-process implementation of the repository
// interfaces. Transactions are serialized and roll back by restoring a
// snapshot, which is enough to run the services end to end without Postgres.
package memory

import (
	"context"
	"sync"

	"github.com/segyhp/fee-ledger/internal/domain"
	"github.com/segyhp/fee-ledger/internal/repository"
)

type txKey struct{}

// Store holds every table. The zero value is not usable; call NewStore.
type Store struct {
	txMu sync.Mutex
	mu   sync.RWMutex

	courses     map[string]domain.Course
	students    map[string]domain.Student
	enrollments map[string]domain.Enrollment
	plans       map[string]domain.FeePlan
	details     map[string]domain.FeeDetail
	payments    map[string]domain.PaymentRecord
	outbox      map[string]domain.OutboxEvent

	// insertion order, used where SQL would order by time then id
	planOrder    []string
	paymentOrder []string
	outboxOrder  []string
}

func NewStore() *Store {
	return &Store{
		courses:     make(map[string]domain.Course),
		students:    make(map[string]domain.Student),
		enrollments: make(map[string]domain.Enrollment),
		plans:       make(map[string]domain.FeePlan),
		details:     make(map[string]domain.FeeDetail),
		payments:    make(map[string]domain.PaymentRecord),
		outbox:      make(map[string]domain.OutboxEvent),
	}
}

// AddCourse seeds the read-only catalog.
func (s *Store) AddCourse(c domain.Course) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.courses[c.ID] = c
}

// AddStudent seeds the read-only roster.
func (s *Store) AddStudent(st domain.Student) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.students[st.ID] = st
}

// Enrollments returns every stored enrollment.
func (s *Store) Enrollments() []domain.Enrollment {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Enrollment, 0, len(s.enrollments))
	for _, e := range s.enrollments {
		out = append(out, e)
	}
	return out
}

// PaymentRecords returns every stored payment in insertion order.
func (s *Store) PaymentRecords() []domain.PaymentRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.PaymentRecord, 0, len(s.paymentOrder))
	for _, id := range s.paymentOrder {
		out = append(out, s.payments[id])
	}
	return out
}

// OutboxEvents returns every stored event in insertion order.
func (s *Store) OutboxEvents() []domain.OutboxEvent {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.OutboxEvent, 0, len(s.outboxOrder))
	for _, id := range s.outboxOrder {
		out = append(out, s.outbox[id])
	}
	return out
}

// FeeDetails returns every stored detail of a plan, ordered.
func (s *Store) FeeDetails(planID string) []*domain.FeeDetail {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.listDetails(planID)
}

type snapshot struct {
	enrollments  map[string]domain.Enrollment
	plans        map[string]domain.FeePlan
	details      map[string]domain.FeeDetail
	payments     map[string]domain.PaymentRecord
	outbox       map[string]domain.OutboxEvent
	planOrder    []string
	paymentOrder []string
	outboxOrder  []string
}

func copyMap[V any](in map[string]V) map[string]V {
	out := make(map[string]V, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func (s *Store) snapshot() snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return snapshot{
		enrollments:  copyMap(s.enrollments),
		plans:        copyMap(s.plans),
		details:      copyMap(s.details),
		payments:     copyMap(s.payments),
		outbox:       copyMap(s.outbox),
		planOrder:    append([]string(nil), s.planOrder...),
		paymentOrder: append([]string(nil), s.paymentOrder...),
		outboxOrder:  append([]string(nil), s.outboxOrder...),
	}
}

func (s *Store) restore(snap snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.enrollments = snap.enrollments
	s.plans = snap.plans
	s.details = snap.details
	s.payments = snap.payments
	s.outbox = snap.outbox
	s.planOrder = snap.planOrder
	s.paymentOrder = snap.paymentOrder
	s.outboxOrder = snap.outboxOrder
}

type transactor struct {
	store *Store
}

func NewTransactor(s *Store) repository.Transactor {
	return &transactor{store: s}
}

func (t *transactor) WithinTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if ctx.Value(txKey{}) != nil {
		return fn(ctx)
	}

	t.store.txMu.Lock()
	defer t.store.txMu.Unlock()

	snap := t.store.snapshot()
	if err := fn(context.WithValue(ctx, txKey{}, true)); err != nil {
		t.store.restore(snap)
		return err
	}
	return nil
}
