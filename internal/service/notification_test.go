package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/segyhp/fee-ledger/internal/domain"
	"github.com/segyhp/fee-ledger/pkg/money"
)

type recordingNotifier struct {
	mu     sync.Mutex
	events []*domain.OutboxEvent
	fail   error
}

func (n *recordingNotifier) Notify(_ context.Context, event *domain.OutboxEvent) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.fail != nil {
		return n.fail
	}
	n.events = append(n.events, event)
	return nil
}

func withNotifier(f *fixture, n Notifier) {
	f.notifications.notifier = n
}

func TestDispatchPending_DeliversOnce(t *testing.T) {
	f := newFixture(t)
	plan := f.fullCoursePlan(t, "1000", 3)
	ctx := context.Background()
	_, err := f.pay(ctx, plan.Details[0].ID, "333", "k-1")
	require.NoError(t, err)

	notifier := &recordingNotifier{}
	withNotifier(f, notifier)

	delivered, err := f.notifications.DispatchPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, delivered)
	require.Len(t, notifier.events, 2)
	assert.Equal(t, domain.EventFeePlanAssigned, notifier.events[0].EventType)
	assert.Equal(t, domain.EventPaymentRecorded, notifier.events[1].EventType)

	delivered, err = f.notifications.DispatchPending(ctx)
	require.NoError(t, err)
	assert.Zero(t, delivered)

	for _, e := range f.store.OutboxEvents() {
		require.NotNil(t, e.DispatchedAt)
		assert.Equal(t, 1, e.Attempts)
	}
}

func TestDispatchPending_FailureBacksOff(t *testing.T) {
	f := newFixture(t)
	f.fullCoursePlan(t, "1000", 3)
	ctx := context.Background()

	withNotifier(f, &recordingNotifier{fail: errors.New("smtp unavailable")})
	delivered, err := f.notifications.DispatchPending(ctx)

	require.NoError(t, err)
	assert.Zero(t, delivered)
	events := f.store.OutboxEvents()
	require.Len(t, events, 1)
	assert.Nil(t, events[0].DispatchedAt)
	require.NotNil(t, events[0].LastError)
	assert.Equal(t, "smtp unavailable", *events[0].LastError)
	assert.Equal(t, 1, events[0].Attempts)
	assert.Equal(t, fixedNow.Add(time.Minute), events[0].NextAttemptAt)

	notifier := &recordingNotifier{}
	withNotifier(f, notifier)

	// not due again until the backoff has passed
	delivered, err = f.notifications.DispatchPending(ctx)
	require.NoError(t, err)
	assert.Zero(t, delivered)

	f.notifications.now = func() time.Time { return fixedNow.Add(time.Minute) }
	delivered, err = f.notifications.DispatchPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, delivered)
	assert.Nil(t, f.store.OutboxEvents()[0].LastError)
}

type failingTypeNotifier struct {
	recordingNotifier
	eventType string
}

func (n *failingTypeNotifier) Notify(ctx context.Context, event *domain.OutboxEvent) error {
	if event.EventType == n.eventType {
		return errors.New("template missing")
	}
	return n.recordingNotifier.Notify(ctx, event)
}

func TestDispatchPending_FailingEventDoesNotBlockOthers(t *testing.T) {
	f := newFixture(t)
	f.cfg.Scheduler.OutboxBatchSize = 1
	plan := f.fullCoursePlan(t, "1000", 1)
	ctx := context.Background()
	_, err := f.pay(ctx, plan.Details[0].ID, "100", "k-1")
	require.NoError(t, err)

	notifier := &failingTypeNotifier{eventType: domain.EventFeePlanAssigned}
	withNotifier(f, notifier)
	at := func(d time.Duration) { f.notifications.now = func() time.Time { return fixedNow.Add(d) } }

	// the failing event is older and is claimed first
	delivered, err := f.notifications.DispatchPending(ctx)
	require.NoError(t, err)
	assert.Zero(t, delivered)

	// while it backs off the next event gets through
	delivered, err = f.notifications.DispatchPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, delivered)
	require.Len(t, notifier.events, 1)
	assert.Equal(t, domain.EventPaymentRecorded, notifier.events[0].EventType)

	at(time.Minute)
	_, err = f.notifications.DispatchPending(ctx)
	require.NoError(t, err)
	at(3 * time.Minute)
	_, err = f.notifications.DispatchPending(ctx)
	require.NoError(t, err)

	failed := f.store.OutboxEvents()[0]
	assert.Equal(t, domain.EventFeePlanAssigned, failed.EventType)
	assert.Equal(t, 3, failed.Attempts)
	require.NotNil(t, failed.DeadAt)
	assert.Equal(t, fixedNow.Add(3*time.Minute), *failed.DeadAt)
	assert.Nil(t, failed.DispatchedAt)

	// dead-lettered events are never claimed again
	at(24 * time.Hour)
	delivered, err = f.notifications.DispatchPending(ctx)
	require.NoError(t, err)
	assert.Zero(t, delivered)
	assert.Equal(t, 3, f.store.OutboxEvents()[0].Attempts)
}

func TestRetryDelay(t *testing.T) {
	assert.Equal(t, 30*time.Second, retryDelay(30*time.Second, 1))
	assert.Equal(t, time.Minute, retryDelay(30*time.Second, 2))
	assert.Equal(t, 4*time.Minute, retryDelay(30*time.Second, 4))
	assert.Equal(t, maxRetryDelay, retryDelay(30*time.Second, 40))
}

func TestDispatchPending_LedgerUnaffectedByNotifier(t *testing.T) {
	f := newFixture(t)
	withNotifier(f, &recordingNotifier{fail: errors.New("down")})
	plan := f.fullCoursePlan(t, "1000", 1)

	_, err := f.pay(context.Background(), plan.Details[0].ID, "1000", "k-1")

	require.NoError(t, err)
	assert.Len(t, f.store.PaymentRecords(), 1)
}

func TestEnqueueDueReminders(t *testing.T) {
	f := newFixture(t)
	enrollment := f.enroll(t)
	ctx := context.Background()

	// April 2026 falls due on the 11th
	start := money.Period{Month: time.April, Year: 2026}
	_, err := f.plans.CreatePlan(ctx, &domain.CreatePlanRequest{
		EnrollmentID:  enrollment.ID,
		FeeType:       domain.FeeTypeMonthly,
		TotalAmount:   "100",
		MonthlyAmount: "50",
		StartPeriod:   &start,
		RequestedBy:   testAdmin,
	})
	require.NoError(t, err)

	f.notifications.now = func() time.Time { return time.Date(2026, time.April, 9, 8, 0, 0, 0, time.UTC) }

	count, err := f.notifications.EnqueueDueReminders(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	count, err = f.notifications.EnqueueDueReminders(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)

	var reminders []domain.OutboxEvent
	for _, e := range f.store.OutboxEvents() {
		if e.EventType == domain.EventFeeDueReminder {
			reminders = append(reminders, e)
		}
	}
	require.Len(t, reminders, 1)
	assert.Contains(t, reminders[0].AggregateID, ":2026-04-11")
	assert.Contains(t, string(reminders[0].Payload), `"label":"April 2026"`)
	assert.Contains(t, string(reminders[0].Payload), `"amount_due":"50.00"`)
	assert.Contains(t, string(reminders[0].Payload), `"days_left":2`)
}

func TestEnqueueDueReminders_SkipsPaidDetails(t *testing.T) {
	f := newFixture(t)
	plan := f.fullCoursePlan(t, "1000", 1)
	ctx := context.Background()

	_, err := f.pay(ctx, plan.Details[0].ID, "1000", "k-1")
	require.NoError(t, err)

	// the single installment is due on 2026-04-14
	f.notifications.now = func() time.Time { return time.Date(2026, time.April, 13, 0, 0, 0, 0, time.UTC) }
	count, err := f.notifications.EnqueueDueReminders(ctx)

	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestEnqueueDueReminders_PagesPastBatchSize(t *testing.T) {
	f := newFixture(t)
	f.cfg.Scheduler.OutboxBatchSize = 2
	f.cfg.Business.ReminderLeadDays = 120
	plan := f.fullCoursePlan(t, "900", 3)
	ctx := context.Background()

	count, err := f.notifications.EnqueueDueReminders(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	reminded := map[string]bool{}
	for _, e := range f.store.OutboxEvents() {
		if e.EventType == domain.EventFeeDueReminder {
			reminded[e.AggregateID] = true
		}
	}
	for _, d := range plan.Details {
		assert.True(t, reminded[domain.ReminderAggregateID(d.ID, d.DueDate)], "installment %d", d.InstallmentNumber)
	}

	count, err = f.notifications.EnqueueDueReminders(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestLogNotifier(t *testing.T) {
	n := NewLogNotifier(zap.NewNop())
	assert.NoError(t, n.Notify(context.Background(), &domain.OutboxEvent{ID: "e-1", EventType: domain.EventPaymentRecorded}))
}
