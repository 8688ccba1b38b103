package service

import (
	"context"
	"strconv"
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

// maxScheduleLength bounds the number of details one request can create.
const maxScheduleLength = 240

type FeePlanService struct {
	EnrollmentRepo repository.EnrollmentRepository
	CatalogRepo    repository.CatalogRepository
	FeePlanRepo    repository.FeePlanRepository
	PaymentRepo    repository.PaymentRepository
	OutboxRepo     repository.OutboxRepository
	tx             repository.Transactor
	cache          StatementCache
	config         *config.Config
	logger         *zap.Logger
	now            func() time.Time
}

func NewFeePlanService(
	enrollmentRepo repository.EnrollmentRepository,
	catalogRepo repository.CatalogRepository,
	feePlanRepo repository.FeePlanRepository,
	paymentRepo repository.PaymentRepository,
	outboxRepo repository.OutboxRepository,
	tx repository.Transactor,
	cache StatementCache,
	config *config.Config,
	logger *zap.Logger,
) *FeePlanService {
	if cache == nil {
		cache = NoopStatementCache{}
	}
	return &FeePlanService{
		EnrollmentRepo: enrollmentRepo,
		CatalogRepo:    catalogRepo,
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

// CreatePlan attaches a fee plan to an enrollment and writes its schedule.
// The plan, every detail and the assignment event are stored atomically.
func (s *FeePlanService) CreatePlan(ctx context.Context, request *domain.CreatePlanRequest) (*domain.FeePlanWithSchedule, error) {
	if request.RequestedBy == "" {
		return nil, customError.WrapMissingField("requested_by")
	}
	if request.EnrollmentID == "" {
		return nil, customError.WrapMissingField("enrollment_id")
	}

	enrollment, err := s.EnrollmentRepo.GetByID(ctx, request.EnrollmentID)
	if err != nil {
		return nil, notFoundOr(err, "enrollment", request.EnrollmentID)
	}
	if enrollment.IsCancelled() {
		return nil, customError.WrapInvalidState("enrollment", enrollment.ID, enrollment.Status, "attach a fee plan to")
	}

	total, err := s.resolveTotal(ctx, enrollment, request)
	if err != nil {
		return nil, err
	}

	if _, err := s.FeePlanRepo.GetActiveByEnrollment(ctx, enrollment.ID); err == nil {
		return nil, customError.WrapPlanAlreadyExists(enrollment.ID)
	} else if !errors.Is(err, repository.ErrNotFound) {
		return nil, customError.WrapDatabaseError(err)
	}

	now := s.now()
	plan := &domain.FeePlan{
		ID:           uuid.New().String(),
		EnrollmentID: enrollment.ID,
		FeeType:      request.FeeType,
		TotalAmount:  total,
		Currency:     total.Currency,
		ScheduleMode: domain.ScheduleModeEager,
		Status:       domain.PlanStatusActive,
		CreatedBy:    request.RequestedBy,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	var details []*domain.FeeDetail
	switch request.FeeType {
	case domain.FeeTypeMonthly:
		details, err = s.monthlySchedule(plan, request)
	case domain.FeeTypeFullCourse:
		details, err = s.installmentSchedule(plan, request)
	default:
		err = customError.WrapValidation("fee_type", request.FeeType, "fee_type must be monthly or full_course")
	}
	if err != nil {
		return nil, err
	}

	if plan.ScheduleMode == domain.ScheduleModeEager {
		if err := checkScheduleSum(plan, details); err != nil {
			s.logger.Error("generated schedule does not match plan total",
				zap.String("enrollment_id", enrollment.ID),
				zap.String("total", total.String()),
				zap.Error(err),
			)
			return nil, err
		}
	}

	event, err := newOutboxEvent(domain.EventFeePlanAssigned, plan.ID, assignedPayload(enrollment, plan, details), now)
	if err != nil {
		return nil, customError.WrapDatabaseError(err)
	}

	err = s.tx.WithinTransaction(ctx, func(ctx context.Context) error {
		if err := s.FeePlanRepo.Create(ctx, plan); err != nil {
			if errors.Is(err, repository.ErrDuplicate) {
				return customError.WrapPlanAlreadyExists(enrollment.ID)
			}
			return err
		}
		if len(details) > 0 {
			if err := s.FeePlanRepo.CreateDetails(ctx, details); err != nil {
				return err
			}
		}
		return s.OutboxRepo.Enqueue(ctx, event)
	})
	if err != nil {
		return nil, businessOrDatabase(err)
	}

	s.cache.Invalidate(ctx, enrollment.ID)
	s.logger.Info("fee plan created",
		zap.String("fee_plan_id", plan.ID),
		zap.String("enrollment_id", enrollment.ID),
		zap.String("fee_type", plan.FeeType),
		zap.String("schedule_mode", plan.ScheduleMode),
		zap.String("total", total.String()),
		zap.Int("details", len(details)),
		zap.String("requested_by", request.RequestedBy),
	)

	return &domain.FeePlanWithSchedule{Plan: plan, Details: details}, nil
}

// resolveTotal parses the requested total, falling back to the course price.
func (s *FeePlanService) resolveTotal(ctx context.Context, enrollment *domain.Enrollment, request *domain.CreatePlanRequest) (money.Money, error) {
	code := request.Currency
	amount := request.TotalAmount

	if amount == "" || code == "" {
		course, err := s.CatalogRepo.GetCourse(ctx, enrollment.CourseID)
		if err != nil && !errors.Is(err, repository.ErrNotFound) {
			return money.Money{}, customError.WrapDatabaseError(err)
		}
		if course != nil {
			if amount == "" && course.DefaultPrice.Valid {
				amount = course.DefaultPrice.Decimal.String()
			}
			if code == "" {
				code = course.Currency
			}
		}
	}
	if amount == "" {
		return money.Money{}, customError.WrapMissingField("total_amount")
	}
	if code == "" {
		code = string(s.config.GetDefaultCurrency())
	}

	cur, err := money.ParseCurrency(code)
	if err != nil {
		return money.Money{}, customError.WrapUnknownCurrency(code)
	}
	total, err := money.Parse(amount, cur)
	if err != nil {
		return money.Money{}, customError.WrapInvalidAmount("total_amount", amount, err.Error())
	}
	if !total.IsPositive() {
		return money.Money{}, customError.WrapInvalidAmount("total_amount", amount, "must be greater than zero")
	}
	return total, nil
}

func (s *FeePlanService) monthlySchedule(plan *domain.FeePlan, request *domain.CreatePlanRequest) ([]*domain.FeeDetail, error) {
	if request.MonthlyAmount == "" {
		return nil, customError.WrapInvalidSchedule("monthly_amount", "", "monthly_amount is required for monthly plans")
	}
	if request.InstallmentsCount != 0 {
		return nil, customError.WrapInvalidSchedule("installments_count", strconv.Itoa(request.InstallmentsCount), "installments_count applies to full_course plans only")
	}

	monthly, err := money.Parse(request.MonthlyAmount, plan.Currency)
	if err != nil {
		return nil, customError.WrapInvalidAmount("monthly_amount", request.MonthlyAmount, err.Error())
	}
	if !monthly.IsPositive() {
		return nil, customError.WrapInvalidAmount("monthly_amount", request.MonthlyAmount, "must be greater than zero")
	}
	if monthly.Cmp(plan.TotalAmount) > 0 {
		return nil, customError.WrapInvalidAmount("monthly_amount", request.MonthlyAmount, "must not exceed total_amount")
	}
	plan.MonthlyAmount = &monthly

	if request.ScheduleMode == domain.ScheduleModeLazy {
		if request.Months != 0 {
			return nil, customError.WrapInvalidSchedule("months", strconv.Itoa(request.Months), "months is not used when months are added one at a time")
		}
		plan.ScheduleMode = domain.ScheduleModeLazy
		return []*domain.FeeDetail{}, nil
	}

	months := request.Months
	if months == 0 {
		months = utils.MonthsToCover(plan.TotalAmount.Amount, monthly.Amount)
	} else if months < 0 || int64(months)*monthly.Amount != plan.TotalAmount.Amount {
		return nil, customError.WrapInvalidSchedule("months", strconv.Itoa(months), "months times monthly_amount must equal total_amount")
	}
	if months > maxScheduleLength {
		return nil, customError.WrapInvalidSchedule("months", strconv.Itoa(months), "schedule is too long")
	}

	start := money.PeriodOf(plan.CreatedAt)
	if request.StartPeriod != nil {
		if !request.StartPeriod.IsValid() {
			return nil, customError.WrapInvalidSchedule("start_period", request.StartPeriod.String(), "not a valid month")
		}
		start = *request.StartPeriod
	}

	details := make([]*domain.FeeDetail, 0, months)
	for i := 0; i < months; i++ {
		amount := monthly
		if i == months-1 {
			amount = money.New(plan.TotalAmount.Amount-int64(months-1)*monthly.Amount, plan.Currency)
		}
		period := start.Add(i)
		details = append(details, s.newMonthDetail(plan, period, amount))
	}
	return details, nil
}

func (s *FeePlanService) newMonthDetail(plan *domain.FeePlan, period money.Period, amount money.Money) *domain.FeeDetail {
	return &domain.FeeDetail{
		ID:        uuid.New().String(),
		FeePlanID: plan.ID,
		Period:    &period,
		Amount:    amount,
		DueDate:   utils.MonthlyDueDate(period, s.config.Business.MonthlyGraceDays),
		Status:    domain.DetailStatusPending,
		CreatedAt: s.now(),
	}
}

func (s *FeePlanService) installmentSchedule(plan *domain.FeePlan, request *domain.CreatePlanRequest) ([]*domain.FeeDetail, error) {
	n := request.InstallmentsCount
	if n < 1 {
		return nil, customError.WrapInvalidSchedule("installments_count", strconv.Itoa(n), "installments_count must be at least 1")
	}
	if n > maxScheduleLength {
		return nil, customError.WrapInvalidSchedule("installments_count", strconv.Itoa(n), "schedule is too long")
	}
	if request.MonthlyAmount != "" || request.Months != 0 || request.StartPeriod != nil {
		return nil, customError.WrapInvalidSchedule("fee_type", plan.FeeType, "monthly options apply to monthly plans only")
	}
	if request.ScheduleMode == domain.ScheduleModeLazy {
		return nil, customError.WrapInvalidSchedule("schedule_mode", request.ScheduleMode, "installment plans are always scheduled up front")
	}
	plan.InstallmentsCount = n

	parts, err := plan.TotalAmount.Split(n, s.config.GetInstallmentRoundingMinor(plan.Currency))
	if err != nil {
		return nil, customError.WrapInvalidAmount("total_amount", plan.TotalAmount.StringFixed(), "too small for the number of installments")
	}

	details := make([]*domain.FeeDetail, 0, n)
	for k, amount := range parts {
		details = append(details, &domain.FeeDetail{
			ID:                uuid.New().String(),
			FeePlanID:         plan.ID,
			InstallmentNumber: k + 1,
			Amount:            amount,
			DueDate:           utils.InstallmentDueDate(plan.CreatedAt, k+1, s.config.Business.InstallmentSpacingDays),
			Status:            domain.DetailStatusPending,
			CreatedAt:         plan.CreatedAt,
		})
	}
	return details, nil
}

func checkScheduleSum(plan *domain.FeePlan, details []*domain.FeeDetail) error {
	var sum int64
	for _, d := range details {
		if d.Amount.Currency != plan.Currency || !d.Amount.IsPositive() {
			return customError.WrapScheduleInconsistent(d.Amount.String(), plan.TotalAmount.String())
		}
		sum += d.Amount.Amount
	}
	if sum != plan.TotalAmount.Amount {
		return customError.WrapScheduleInconsistent(money.New(sum, plan.Currency).String(), plan.TotalAmount.String())
	}
	return nil
}

// AddMonthlyDetail bills one more month on a monthly plan. The amount is the
// plan's monthly amount, capped at what is left unscheduled.
func (s *FeePlanService) AddMonthlyDetail(ctx context.Context, request *domain.AddMonthRequest) (*domain.FeePlanWithSchedule, error) {
	if request.RequestedBy == "" {
		return nil, customError.WrapMissingField("requested_by")
	}
	if !request.Period.IsValid() {
		return nil, customError.WrapInvalidSchedule("period", request.Period.String(), "not a valid month")
	}

	var result *domain.FeePlanWithSchedule
	var enrollmentID string
	err := s.tx.WithinTransaction(ctx, func(ctx context.Context) error {
		plan, err := s.FeePlanRepo.GetByIDForUpdate(ctx, request.FeePlanID)
		if err != nil {
			return notFoundOr(err, "fee plan", request.FeePlanID)
		}
		enrollmentID = plan.EnrollmentID

		if plan.FeeType != domain.FeeTypeMonthly || plan.MonthlyAmount == nil {
			return customError.WrapInvalidSchedule("fee_type", plan.FeeType, "months can only be added to monthly plans")
		}
		if plan.Status != domain.PlanStatusActive {
			return customError.WrapInvalidState("fee plan", plan.ID, plan.Status, "add a month to")
		}

		details, err := s.FeePlanRepo.ListDetails(ctx, plan.ID)
		if err != nil {
			return err
		}

		var scheduled int64
		for _, d := range details {
			if d.Period != nil && *d.Period == request.Period {
				return customError.WrapPeriodAlreadyScheduled(plan.ID, request.Period.String())
			}
			scheduled += d.Amount.Amount
		}
		remaining := plan.TotalAmount.Amount - scheduled
		if remaining <= 0 {
			return customError.WrapInvalidSchedule("period", request.Period.String(), "the plan total is already fully scheduled")
		}

		amount := *plan.MonthlyAmount
		if amount.Amount > remaining {
			amount = money.New(remaining, plan.Currency)
		}

		detail := s.newMonthDetail(plan, request.Period, amount)
		if err := s.FeePlanRepo.CreateDetails(ctx, []*domain.FeeDetail{detail}); err != nil {
			if errors.Is(err, repository.ErrDuplicate) {
				return customError.WrapPeriodAlreadyScheduled(plan.ID, request.Period.String())
			}
			return err
		}

		details = append(details, detail)
		domain.SortDetails(details)
		result = &domain.FeePlanWithSchedule{Plan: plan, Details: details}

		enrollment, err := s.EnrollmentRepo.GetByID(ctx, plan.EnrollmentID)
		if err != nil {
			return err
		}
		event, err := newOutboxEvent(domain.EventFeePlanAssigned, plan.ID, assignedPayload(enrollment, plan, details), s.now())
		if err != nil {
			return err
		}
		return s.OutboxRepo.Enqueue(ctx, event)
	})
	if err != nil {
		return nil, businessOrDatabase(err)
	}

	s.cache.Invalidate(ctx, enrollmentID)
	s.logger.Info("monthly fee detail added",
		zap.String("fee_plan_id", request.FeePlanID),
		zap.String("period", request.Period.String()),
		zap.String("requested_by", request.RequestedBy),
	)
	return result, nil
}

// CancelPlan cancels a plan and its pending details. Plans with recorded
// payments must have those payments voided first.
func (s *FeePlanService) CancelPlan(ctx context.Context, planID, requestedBy string) (*domain.FeePlanWithSchedule, error) {
	if requestedBy == "" {
		return nil, customError.WrapMissingField("requested_by")
	}

	var result *domain.FeePlanWithSchedule
	var enrollmentID string
	err := s.tx.WithinTransaction(ctx, func(ctx context.Context) error {
		plan, err := s.FeePlanRepo.GetByIDForUpdate(ctx, planID)
		if err != nil {
			return notFoundOr(err, "fee plan", planID)
		}
		enrollmentID = plan.EnrollmentID
		if plan.IsCancelled() {
			return customError.WrapInvalidState("fee plan", plan.ID, plan.Status, "cancel")
		}

		payments, err := s.PaymentRepo.ListByPlan(ctx, plan.ID)
		if err != nil {
			return err
		}
		for _, p := range payments {
			if p.IsCompleted() {
				return customError.WrapInvalidState("fee plan", plan.ID, plan.Status, "cancel a plan with recorded payments on")
			}
		}

		details, err := s.FeePlanRepo.ListDetails(ctx, plan.ID)
		if err != nil {
			return err
		}
		for _, d := range details {
			if d.Status != domain.DetailStatusPending {
				continue
			}
			if err := s.FeePlanRepo.UpdateDetailStatus(ctx, d.ID, domain.DetailStatusCancelled, nil); err != nil {
				return err
			}
			d.Status = domain.DetailStatusCancelled
		}

		now := s.now()
		if err := s.FeePlanRepo.UpdateStatus(ctx, plan.ID, domain.PlanStatusCancelled, now); err != nil {
			return err
		}
		plan.Status = domain.PlanStatusCancelled
		plan.UpdatedAt = now

		enrollment, err := s.EnrollmentRepo.GetByID(ctx, plan.EnrollmentID)
		if err != nil {
			return err
		}
		event, err := newOutboxEvent(domain.EventFeePlanCancelled, plan.ID, domain.FeePlanCancelledPayload{
			EnrollmentID: enrollment.ID,
			StudentID:    enrollment.StudentID,
			FeePlanID:    plan.ID,
			CancelledBy:  requestedBy,
		}, now)
		if err != nil {
			return err
		}
		if err := s.OutboxRepo.Enqueue(ctx, event); err != nil {
			return err
		}

		result = &domain.FeePlanWithSchedule{Plan: plan, Details: details}
		return nil
	})
	if err != nil {
		return nil, businessOrDatabase(err)
	}

	s.cache.Invalidate(ctx, enrollmentID)
	s.logger.Info("fee plan cancelled",
		zap.String("fee_plan_id", planID),
		zap.String("requested_by", requestedBy),
	)
	return result, nil
}

// CancelDetail cancels one pending detail without payments and recomputes
// the plan status.
func (s *FeePlanService) CancelDetail(ctx context.Context, detailID, requestedBy string) (*domain.FeeDetail, error) {
	if requestedBy == "" {
		return nil, customError.WrapMissingField("requested_by")
	}

	var detail *domain.FeeDetail
	var enrollmentID string
	err := s.tx.WithinTransaction(ctx, func(ctx context.Context) error {
		plan, locked, err := s.lockDetail(ctx, detailID)
		if err != nil {
			return err
		}
		detail = locked
		enrollmentID = plan.EnrollmentID

		if detail.Status != domain.DetailStatusPending {
			return customError.WrapInvalidState("fee detail", detail.ID, detail.Status, "cancel")
		}

		payments, err := s.PaymentRepo.ListByDetail(ctx, detail.ID)
		if err != nil {
			return err
		}
		if PaidAmount(detail, payments).IsPositive() {
			return customError.WrapInvalidState("fee detail", detail.ID, detail.Status, "cancel a partly paid")
		}

		if err := s.FeePlanRepo.UpdateDetailStatus(ctx, detail.ID, domain.DetailStatusCancelled, nil); err != nil {
			return err
		}
		detail.Status = domain.DetailStatusCancelled

		return s.syncPlanStatus(ctx, plan)
	})
	if err != nil {
		return nil, businessOrDatabase(err)
	}

	s.cache.Invalidate(ctx, enrollmentID)
	s.logger.Info("fee detail cancelled",
		zap.String("fee_detail_id", detailID),
		zap.String("requested_by", requestedBy),
	)
	return detail, nil
}

// lockDetail locks a detail together with its plan. Locks are always taken
// plan first, then detail.
func (s *FeePlanService) lockDetail(ctx context.Context, detailID string) (*domain.FeePlan, *domain.FeeDetail, error) {
	return lockPlanAndDetail(ctx, s.FeePlanRepo, detailID)
}

func lockPlanAndDetail(ctx context.Context, repo repository.FeePlanRepository, detailID string) (*domain.FeePlan, *domain.FeeDetail, error) {
	unlocked, err := repo.GetDetail(ctx, detailID)
	if err != nil {
		return nil, nil, notFoundOr(err, "fee detail", detailID)
	}
	plan, err := repo.GetByIDForUpdate(ctx, unlocked.FeePlanID)
	if err != nil {
		return nil, nil, notFoundOr(err, "fee plan", unlocked.FeePlanID)
	}
	detail, err := repo.GetDetailForUpdate(ctx, detailID)
	if err != nil {
		return nil, nil, notFoundOr(err, "fee detail", detailID)
	}
	return plan, detail, nil
}

// syncPlanStatus stores the status the plan's details imply.
func (s *FeePlanService) syncPlanStatus(ctx context.Context, plan *domain.FeePlan) error {
	details, err := s.FeePlanRepo.ListDetails(ctx, plan.ID)
	if err != nil {
		return err
	}
	next := NextPlanStatus(plan, details)
	if next == plan.Status {
		return nil
	}
	now := s.now()
	if err := s.FeePlanRepo.UpdateStatus(ctx, plan.ID, next, now); err != nil {
		return err
	}
	plan.Status = next
	plan.UpdatedAt = now
	return nil
}

func assignedPayload(enrollment *domain.Enrollment, plan *domain.FeePlan, details []*domain.FeeDetail) domain.FeePlanAssignedPayload {
	return domain.FeePlanAssignedPayload{
		EnrollmentID: enrollment.ID,
		StudentID:    enrollment.StudentID,
		CourseID:     enrollment.CourseID,
		FeePlanID:    plan.ID,
		FeeType:      plan.FeeType,
		TotalAmount:  plan.TotalAmount.StringFixed(),
		Currency:     string(plan.Currency),
		DetailCount:  len(details),
	}
}

// notFoundOr maps a repository miss to a NotFound business error and
// anything else to a database error.
func notFoundOr(err error, entity, id string) error {
	if errors.Is(err, repository.ErrNotFound) {
		return customError.WrapNotFound(entity, id)
	}
	return customError.WrapDatabaseError(err)
}

// businessOrDatabase passes business errors through and wraps the rest.
func businessOrDatabase(err error) error {
	if _, ok := customError.As(err); ok {
		return err
	}
	return customError.WrapDatabaseError(err)
}
