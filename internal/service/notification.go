package service

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/segyhp/fee-ledger/internal/config"
	"github.com/segyhp/fee-ledger/internal/domain"
	"github.com/segyhp/fee-ledger/internal/repository"
	customError "github.com/segyhp/fee-ledger/pkg/errors"
	"github.com/segyhp/fee-ledger/pkg/money"
	"github.com/segyhp/fee-ledger/pkg/utils"
)

// Notifier delivers outbox events to the notification collaborator.
type Notifier interface {
	Notify(ctx context.Context, event *domain.OutboxEvent) error
}

// LogNotifier writes events to the log. It stands in wherever no delivery
// channel is configured.
type LogNotifier struct {
	logger *zap.Logger
}

func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Notify(_ context.Context, event *domain.OutboxEvent) error {
	n.logger.Info("notification",
		zap.String("event_id", event.ID),
		zap.String("event_type", event.EventType),
		zap.String("aggregate_id", event.AggregateID),
		zap.ByteString("payload", event.Payload),
	)
	return nil
}

func newOutboxEvent(eventType, aggregateID string, payload interface{}, at time.Time) (*domain.OutboxEvent, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, errors.Wrapf(err, "encode %s payload", eventType)
	}
	return &domain.OutboxEvent{
		ID:          uuid.New().String(),
		EventType:   eventType,
		AggregateID: aggregateID,
		Payload:     body,
		CreatedAt:   at,
	}, nil
}

// NotificationService drains the outbox and schedules due-date reminders.
// Nothing here can roll back or delay a ledger write.
type NotificationService struct {
	OutboxRepo  repository.OutboxRepository
	FeePlanRepo repository.FeePlanRepository
	tx          repository.Transactor
	notifier    Notifier
	config      *config.Config
	logger      *zap.Logger
	now         func() time.Time
}

func NewNotificationService(
	outboxRepo repository.OutboxRepository,
	feePlanRepo repository.FeePlanRepository,
	tx repository.Transactor,
	notifier Notifier,
	config *config.Config,
	logger *zap.Logger,
) *NotificationService {
	return &NotificationService{
		OutboxRepo:  outboxRepo,
		FeePlanRepo: feePlanRepo,
		tx:          tx,
		notifier:    notifier,
		config:      config,
		logger:      logger,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

const (
	// claimLease keeps a claimed event away from other dispatchers while
	// the notifier runs.
	claimLease    = 5 * time.Minute
	maxRetryDelay = 6 * time.Hour
)

// retryDelay doubles the base backoff per failed attempt.
func retryDelay(base time.Duration, attempts int) time.Duration {
	delay := base
	for i := 1; i < attempts; i++ {
		delay *= 2
		if delay >= maxRetryDelay {
			return maxRetryDelay
		}
	}
	return delay
}

// DispatchPending hands one batch of due events to the notifier and returns
// how many were delivered. A failed event is retried with backoff until it
// reaches the attempt limit, then it is dead-lettered. No row lock is held
// while the notifier runs.
func (s *NotificationService) DispatchPending(ctx context.Context) (int, error) {
	sc := s.config.Scheduler
	now := s.now()

	events, err := s.OutboxRepo.ClaimPending(ctx, now, now.Add(claimLease), sc.OutboxBatchSize)
	if err != nil {
		return 0, customError.WrapDatabaseError(err)
	}

	delivered := 0
	var firstErr error
	for _, event := range events {
		if err := s.deliver(ctx, event); err != nil {
			s.logger.Error("failed to record outbox delivery",
				zap.String("event_id", event.ID),
				zap.Error(err),
			)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		if event.DispatchedAt != nil {
			delivered++
		}
	}
	if firstErr != nil {
		return delivered, customError.WrapDatabaseError(firstErr)
	}
	return delivered, nil
}

func (s *NotificationService) deliver(ctx context.Context, event *domain.OutboxEvent) error {
	nerr := s.notifier.Notify(ctx, event)
	at := s.now()
	if nerr == nil {
		if err := s.OutboxRepo.MarkDispatched(ctx, event.ID, at); err != nil {
			return err
		}
		event.DispatchedAt = &at
		return nil
	}

	attempts := event.Attempts + 1
	fields := []zap.Field{
		zap.String("event_id", event.ID),
		zap.String("event_type", event.EventType),
		zap.Int("attempts", attempts),
		zap.Error(nerr),
	}
	if attempts >= s.config.Scheduler.OutboxMaxAttempts {
		s.logger.Error("notification dead-lettered", fields...)
		return s.OutboxRepo.MarkDead(ctx, event.ID, nerr.Error(), at)
	}
	retryAt := at.Add(retryDelay(s.config.Scheduler.OutboxRetryBackoff, attempts))
	s.logger.Warn("notification delivery failed", append(fields, zap.Time("retry_at", retryAt))...)
	return s.OutboxRepo.MarkFailed(ctx, event.ID, nerr.Error(), retryAt)
}

// EnqueueDueReminders writes one reminder per pending detail falling due
// within the configured lead days. A detail is reminded once per due date.
// Candidates are read in pages until the window is exhausted.
func (s *NotificationService) EnqueueDueReminders(ctx context.Context) (int, error) {
	now := s.now()
	from := utils.StartOfDay(now)
	to := from.AddDate(0, 0, s.config.Business.ReminderLeadDays)
	pageSize := s.config.Scheduler.OutboxBatchSize

	enqueued := 0
	for {
		candidates, err := s.FeePlanRepo.ListDueDetails(ctx, from, to, pageSize)
		if err != nil {
			return enqueued, customError.WrapDatabaseError(err)
		}

		written := 0
		for _, c := range candidates {
			ok, err := s.enqueueReminder(ctx, c, now)
			if err != nil {
				return enqueued, customError.WrapDatabaseError(err)
			}
			if ok {
				written++
			}
		}
		enqueued += written

		// reminded details drop out of the next page
		if len(candidates) < pageSize || written == 0 {
			break
		}
	}

	if enqueued > 0 {
		s.logger.Info("due reminders enqueued", zap.Int("count", enqueued))
	}
	return enqueued, nil
}

func (s *NotificationService) enqueueReminder(ctx context.Context, c *domain.DueReminderCandidate, now time.Time) (bool, error) {
	aggregateID := domain.ReminderAggregateID(c.Detail.ID, c.Detail.DueDate)
	written := false

	err := s.tx.WithinTransaction(ctx, func(ctx context.Context) error {
		exists, err := s.OutboxRepo.Exists(ctx, domain.EventFeeDueReminder, aggregateID)
		if err != nil || exists {
			return err
		}

		due := money.New(c.Detail.Amount.Amount-c.Paid, c.Detail.Amount.Currency)
		event, err := newOutboxEvent(domain.EventFeeDueReminder, aggregateID, domain.FeeDueReminderPayload{
			EnrollmentID: c.Enrollment.ID,
			StudentID:    c.Enrollment.StudentID,
			FeeDetailID:  c.Detail.ID,
			Label:        c.Detail.SequenceLabel(),
			DueDate:      c.Detail.DueDate,
			DaysLeft:     utils.DaysUntil(c.Detail.DueDate, now),
			AmountDue:    due.StringFixed(),
			Currency:     string(due.Currency),
		}, now)
		if err != nil {
			return err
		}
		if err := s.OutboxRepo.Enqueue(ctx, event); err != nil {
			return err
		}
		written = true
		return nil
	})
	return written, err
}
