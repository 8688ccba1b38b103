package service

import (
	"context"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/segyhp/fee-ledger/internal/config"
	"github.com/segyhp/fee-ledger/internal/domain"
	"github.com/segyhp/fee-ledger/internal/repository"
	customError "github.com/segyhp/fee-ledger/pkg/errors"
	"github.com/segyhp/fee-ledger/pkg/money"
)

// errKeyRace marks an insert that lost the idempotency key race to a
// concurrent request; the winner's record is read back after rollback.
var errKeyRace = errors.New("idempotency key taken concurrently")

type PaymentLedger struct {
	EnrollmentRepo repository.EnrollmentRepository
	FeePlanRepo    repository.FeePlanRepository
	PaymentRepo    repository.PaymentRepository
	OutboxRepo     repository.OutboxRepository
	tx             repository.Transactor
	cache          StatementCache
	config         *config.Config
	logger         *zap.Logger
	now            func() time.Time
}

func NewPaymentLedger(
	enrollmentRepo repository.EnrollmentRepository,
	feePlanRepo repository.FeePlanRepository,
	paymentRepo repository.PaymentRepository,
	outboxRepo repository.OutboxRepository,
	tx repository.Transactor,
	cache StatementCache,
	config *config.Config,
	logger *zap.Logger,
) *PaymentLedger {
	if cache == nil {
		cache = NoopStatementCache{}
	}
	return &PaymentLedger{
		EnrollmentRepo: enrollmentRepo,
		FeePlanRepo:    feePlanRepo,
		PaymentRepo:    paymentRepo,
		OutboxRepo:     outboxRepo,
		tx:             tx,
		cache:          cache,
		config:         config,
		logger:         logger,
		now:            func() time.Time { return time.Now().UTC() },
	}
}

// RecordPayment applies one payment to a fee detail. The detail is locked for
// the whole check-and-insert so concurrent payments cannot jointly overpay.
// Replaying an idempotency key returns the first result without writing.
func (l *PaymentLedger) RecordPayment(ctx context.Context, request *domain.RecordPaymentRequest) (*domain.RecordPaymentResult, error) {
	if err := validatePaymentRequest(request); err != nil {
		return nil, err
	}

	if existing, err := l.PaymentRepo.GetByIdempotencyKey(ctx, request.IdempotencyKey); err == nil {
		return l.replay(ctx, existing, request)
	} else if !errors.Is(err, repository.ErrNotFound) {
		return nil, customError.WrapDatabaseError(err)
	}

	current, err := l.FeePlanRepo.GetDetail(ctx, request.FeeDetailID)
	if err != nil {
		return nil, notFoundOr(err, "fee detail", request.FeeDetailID)
	}
	amount, err := money.Parse(request.Amount, current.Amount.Currency)
	if err != nil {
		return nil, customError.WrapInvalidAmount("amount", request.Amount, err.Error())
	}
	if !amount.IsPositive() {
		return nil, customError.WrapInvalidAmount("amount", request.Amount, "must be greater than zero")
	}

	var result *domain.RecordPaymentResult
	var replayOf *domain.PaymentRecord
	err = l.tx.WithinTransaction(ctx, func(ctx context.Context) error {
		plan, detail, err := lockPlanAndDetail(ctx, l.FeePlanRepo, request.FeeDetailID)
		if err != nil {
			return err
		}

		// a request holding the same key may have committed while we waited on the lock
		if existing, err := l.PaymentRepo.GetByIdempotencyKey(ctx, request.IdempotencyKey); err == nil {
			replayOf = existing
			return nil
		} else if !errors.Is(err, repository.ErrNotFound) {
			return err
		}

		if detail.IsCancelled() || plan.IsCancelled() {
			return customError.WrapCancelledDetail(detail.ID)
		}

		payments, err := l.PaymentRepo.ListByDetail(ctx, detail.ID)
		if err != nil {
			return err
		}
		paid := PaidAmount(detail, payments)
		remaining := detail.Amount.Amount - paid.Amount
		if amount.Amount > remaining {
			return customError.WrapOverpayment(detail.ID, amount.StringFixed(), money.New(max(remaining, 0), amount.Currency).StringFixed())
		}

		now := l.now()
		payment := &domain.PaymentRecord{
			ID:             uuid.New().String(),
			FeeDetailID:    detail.ID,
			Amount:         amount,
			Method:         request.Method,
			Reference:      request.Reference,
			IdempotencyKey: request.IdempotencyKey,
			RecordedBy:     request.RecordedBy,
			RecordedAt:     now,
			Status:         domain.PaymentStatusCompleted,
		}
		if err := l.PaymentRepo.Create(ctx, payment); err != nil {
			if errors.Is(err, repository.ErrDuplicate) {
				return errKeyRace
			}
			return err
		}

		if amount.Amount == remaining {
			if err := l.FeePlanRepo.UpdateDetailStatus(ctx, detail.ID, domain.DetailStatusPaid, &now); err != nil {
				return err
			}
			detail.Status = domain.DetailStatusPaid
			detail.PaidDate = &now
		}

		totals, err := l.settlePlan(ctx, plan)
		if err != nil {
			return err
		}

		if err := l.enqueuePaymentEvent(ctx, domain.EventPaymentRecorded, plan, detail, payment, request.RecordedBy); err != nil {
			return err
		}

		result = &domain.RecordPaymentResult{Payment: payment, Detail: detail, Plan: plan, Totals: totals}
		return nil
	})

	if errors.Is(err, errKeyRace) {
		existing, rerr := l.PaymentRepo.GetByIdempotencyKey(ctx, request.IdempotencyKey)
		if rerr != nil {
			return nil, customError.WrapDatabaseError(rerr)
		}
		return l.replay(ctx, existing, request)
	}
	if err != nil {
		return nil, businessOrDatabase(err)
	}
	if replayOf != nil {
		return l.replay(ctx, replayOf, request)
	}

	l.cache.Invalidate(ctx, result.Plan.EnrollmentID)
	l.logger.Info("payment recorded",
		zap.String("payment_id", result.Payment.ID),
		zap.String("fee_detail_id", result.Detail.ID),
		zap.String("amount", result.Payment.Amount.String()),
		zap.String("method", result.Payment.Method),
		zap.String("detail_status", result.Detail.Status),
		zap.String("plan_status", result.Plan.Status),
		zap.String("recorded_by", request.RecordedBy),
	)
	return result, nil
}

func validatePaymentRequest(request *domain.RecordPaymentRequest) error {
	switch {
	case request.FeeDetailID == "":
		return customError.WrapMissingField("fee_detail_id")
	case request.IdempotencyKey == "":
		return customError.WrapMissingField("idempotency_key")
	case request.RecordedBy == "":
		return customError.WrapMissingField("recorded_by")
	case request.Amount == "":
		return customError.WrapMissingField("amount")
	case !slices.Contains(domain.PaymentMethods, request.Method):
		return customError.WrapValidation("method", request.Method, "method must be one of cash, bank_deposit, bank_transfer, cheque, online, other")
	}
	return nil
}

// replay answers a repeated idempotency key with the stored payment. The key
// must have been used for the same detail and amount.
func (l *PaymentLedger) replay(ctx context.Context, existing *domain.PaymentRecord, request *domain.RecordPaymentRequest) (*domain.RecordPaymentResult, error) {
	amount, err := money.Parse(request.Amount, existing.Amount.Currency)
	if err != nil || existing.FeeDetailID != request.FeeDetailID || amount.Amount != existing.Amount.Amount {
		return nil, customError.WrapIdempotencyKeyReused(request.IdempotencyKey)
	}

	detail, err := l.FeePlanRepo.GetDetail(ctx, existing.FeeDetailID)
	if err != nil {
		return nil, customError.WrapDatabaseError(err)
	}
	plan, err := l.FeePlanRepo.GetByID(ctx, detail.FeePlanID)
	if err != nil {
		return nil, customError.WrapDatabaseError(err)
	}
	totals, err := l.planTotals(ctx, plan)
	if err != nil {
		return nil, customError.WrapDatabaseError(err)
	}

	l.logger.Info("payment replayed",
		zap.String("payment_id", existing.ID),
		zap.String("idempotency_key", existing.IdempotencyKey),
	)
	return &domain.RecordPaymentResult{Payment: existing, Detail: detail, Plan: plan, Totals: totals, Replayed: true}, nil
}

// VoidPayment reverses a completed payment. The detail drops back to pending
// and the plan back to active when they no longer qualify as paid.
func (l *PaymentLedger) VoidPayment(ctx context.Context, request *domain.VoidPaymentRequest) (*domain.RecordPaymentResult, error) {
	if request.VoidedBy == "" {
		return nil, customError.WrapMissingField("voided_by")
	}

	target, err := l.PaymentRepo.GetByID(ctx, request.PaymentID)
	if err != nil {
		return nil, notFoundOr(err, "payment", request.PaymentID)
	}

	var result *domain.RecordPaymentResult
	err = l.tx.WithinTransaction(ctx, func(ctx context.Context) error {
		plan, detail, err := lockPlanAndDetail(ctx, l.FeePlanRepo, target.FeeDetailID)
		if err != nil {
			return err
		}

		payment, err := l.PaymentRepo.GetByID(ctx, request.PaymentID)
		if err != nil {
			return err
		}
		if !payment.IsCompleted() {
			return customError.WrapInvalidState("payment", payment.ID, payment.Status, "void")
		}

		now := l.now()
		if err := l.PaymentRepo.Void(ctx, payment.ID, request.VoidedBy, now); err != nil {
			return err
		}
		payment.Status = domain.PaymentStatusVoided
		payment.VoidedBy = request.VoidedBy
		payment.VoidedAt = &now

		if detail.IsPaid() {
			if err := l.FeePlanRepo.UpdateDetailStatus(ctx, detail.ID, domain.DetailStatusPending, nil); err != nil {
				return err
			}
			detail.Status = domain.DetailStatusPending
			detail.PaidDate = nil
		}

		totals, err := l.settlePlan(ctx, plan)
		if err != nil {
			return err
		}

		if err := l.enqueuePaymentEvent(ctx, domain.EventPaymentVoided, plan, detail, payment, request.VoidedBy); err != nil {
			return err
		}

		result = &domain.RecordPaymentResult{Payment: payment, Detail: detail, Plan: plan, Totals: totals}
		return nil
	})
	if err != nil {
		return nil, businessOrDatabase(err)
	}

	l.cache.Invalidate(ctx, result.Plan.EnrollmentID)
	l.logger.Info("payment voided",
		zap.String("payment_id", result.Payment.ID),
		zap.String("fee_detail_id", result.Detail.ID),
		zap.String("amount", result.Payment.Amount.String()),
		zap.String("voided_by", request.VoidedBy),
		zap.String("reason", request.Reason),
	)
	return result, nil
}

// settlePlan stores the plan status implied by its details and returns the
// plan totals after the change.
func (l *PaymentLedger) settlePlan(ctx context.Context, plan *domain.FeePlan) (domain.PlanTotals, error) {
	details, err := l.FeePlanRepo.ListDetails(ctx, plan.ID)
	if err != nil {
		return domain.PlanTotals{}, err
	}

	if next := NextPlanStatus(plan, details); next != plan.Status {
		now := l.now()
		if err := l.FeePlanRepo.UpdateStatus(ctx, plan.ID, next, now); err != nil {
			return domain.PlanTotals{}, err
		}
		plan.Status = next
		plan.UpdatedAt = now
	}

	payments, err := l.PaymentRepo.ListByPlan(ctx, plan.ID)
	if err != nil {
		return domain.PlanTotals{}, err
	}
	return PlanTotals(plan, details, payments, l.now()), nil
}

func (l *PaymentLedger) planTotals(ctx context.Context, plan *domain.FeePlan) (domain.PlanTotals, error) {
	details, err := l.FeePlanRepo.ListDetails(ctx, plan.ID)
	if err != nil {
		return domain.PlanTotals{}, err
	}
	payments, err := l.PaymentRepo.ListByPlan(ctx, plan.ID)
	if err != nil {
		return domain.PlanTotals{}, err
	}
	return PlanTotals(plan, details, payments, l.now()), nil
}

func (l *PaymentLedger) enqueuePaymentEvent(ctx context.Context, eventType string, plan *domain.FeePlan, detail *domain.FeeDetail, payment *domain.PaymentRecord, actor string) error {
	enrollment, err := l.EnrollmentRepo.GetByID(ctx, plan.EnrollmentID)
	if err != nil {
		return err
	}
	event, err := newOutboxEvent(eventType, payment.ID, domain.PaymentPayload{
		EnrollmentID: enrollment.ID,
		StudentID:    enrollment.StudentID,
		FeePlanID:    plan.ID,
		FeeDetailID:  detail.ID,
		PaymentID:    payment.ID,
		Amount:       payment.Amount.StringFixed(),
		Currency:     string(payment.Amount.Currency),
		DetailStatus: detail.Status,
		PlanStatus:   plan.Status,
		Actor:        actor,
	}, l.now())
	if err != nil {
		return err
	}
	return l.OutboxRepo.Enqueue(ctx, event)
}
