package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/segyhp/fee-ledger/internal/domain"
	"github.com/segyhp/fee-ledger/internal/repository"
	customError "github.com/segyhp/fee-ledger/pkg/errors"
)

// EnrollmentGateway is the single write path for enrollments.
type EnrollmentGateway struct {
	EnrollmentRepo repository.EnrollmentRepository
	CatalogRepo    repository.CatalogRepository
	feePlans       *FeePlanService
	tx             repository.Transactor
	logger         *zap.Logger
	now            func() time.Time
}

func NewEnrollmentGateway(
	enrollmentRepo repository.EnrollmentRepository,
	catalogRepo repository.CatalogRepository,
	feePlans *FeePlanService,
	tx repository.Transactor,
	logger *zap.Logger,
) *EnrollmentGateway {
	return &EnrollmentGateway{
		EnrollmentRepo: enrollmentRepo,
		CatalogRepo:    catalogRepo,
		feePlans:       feePlans,
		tx:             tx,
		logger:         logger,
		now:            func() time.Time { return time.Now().UTC() },
	}
}

// Enroll creates the enrollment and, when requested, its first fee plan in
// the same transaction. Without an initial plan the course is fee-free until
// a plan is attached.
func (g *EnrollmentGateway) Enroll(ctx context.Context, request *domain.EnrollRequest) (*domain.EnrollResponse, error) {
	if request.StudentID == "" {
		return nil, customError.WrapMissingField("student_id")
	}
	if request.CourseID == "" {
		return nil, customError.WrapMissingField("course_id")
	}
	if request.InitialPlan != nil && request.RequestedBy == "" {
		return nil, customError.WrapMissingField("requested_by")
	}

	if _, err := g.CatalogRepo.GetCourse(ctx, request.CourseID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, customError.WrapCourseNotFound(request.CourseID)
		}
		return nil, customError.WrapDatabaseError(err)
	}

	if _, err := g.EnrollmentRepo.FindActive(ctx, request.StudentID, request.CourseID); err == nil {
		return nil, customError.WrapDuplicateEnrollment(request.StudentID, request.CourseID)
	} else if !errors.Is(err, repository.ErrNotFound) {
		return nil, customError.WrapDatabaseError(err)
	}

	enrollment := &domain.Enrollment{
		ID:         uuid.New().String(),
		StudentID:  request.StudentID,
		CourseID:   request.CourseID,
		Status:     domain.EnrollmentStatusEnrolled,
		EnrolledAt: g.now(),
	}
	response := &domain.EnrollResponse{Enrollment: enrollment}

	err := g.tx.WithinTransaction(ctx, func(ctx context.Context) error {
		if err := g.EnrollmentRepo.Create(ctx, enrollment); err != nil {
			if errors.Is(err, repository.ErrDuplicate) {
				return customError.WrapDuplicateEnrollment(request.StudentID, request.CourseID)
			}
			return err
		}

		if request.InitialPlan == nil {
			return nil
		}
		planRequest := *request.InitialPlan
		planRequest.EnrollmentID = enrollment.ID
		planRequest.RequestedBy = request.RequestedBy

		plan, err := g.feePlans.CreatePlan(ctx, &planRequest)
		if err != nil {
			return err
		}
		response.Plan = plan
		return nil
	})
	if err != nil {
		return nil, businessOrDatabase(err)
	}

	g.logger.Info("student enrolled",
		zap.String("enrollment_id", enrollment.ID),
		zap.String("student_id", enrollment.StudentID),
		zap.String("course_id", enrollment.CourseID),
		zap.Bool("with_fee_plan", response.Plan != nil),
	)
	return response, nil
}

func (g *EnrollmentGateway) GetEnrollment(ctx context.Context, id string) (*domain.Enrollment, error) {
	enrollment, err := g.EnrollmentRepo.GetByID(ctx, id)
	if err != nil {
		return nil, notFoundOr(err, "enrollment", id)
	}
	return enrollment, nil
}
