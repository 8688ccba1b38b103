package service

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/pkg/errors"

	"github.com/segyhp/fee-ledger/internal/domain"
	"github.com/segyhp/fee-ledger/internal/repository"
	customError "github.com/segyhp/fee-ledger/pkg/errors"
)

// ReferenceGenerator hands out voucher reference numbers.
type ReferenceGenerator interface {
	NextReference() string
}

type snowflakeReferences struct {
	node *snowflake.Node
}

// NewSnowflakeReferences issues time-ordered references unique per node.
func NewSnowflakeReferences(nodeID int64) (ReferenceGenerator, error) {
	node, err := snowflake.NewNode(nodeID)
	if err != nil {
		return nil, errors.Wrap(err, "create snowflake node")
	}
	return &snowflakeReferences{node: node}, nil
}

func (r *snowflakeReferences) NextReference() string {
	return "CH-" + r.node.Generate().String()
}

type VoucherService struct {
	EnrollmentRepo repository.EnrollmentRepository
	CatalogRepo    repository.CatalogRepository
	FeePlanRepo    repository.FeePlanRepository
	PaymentRepo    repository.PaymentRepository
	generator      *ChallanGenerator
	references     ReferenceGenerator
	now            func() time.Time
}

func NewVoucherService(
	enrollmentRepo repository.EnrollmentRepository,
	catalogRepo repository.CatalogRepository,
	feePlanRepo repository.FeePlanRepository,
	paymentRepo repository.PaymentRepository,
	references ReferenceGenerator,
) *VoucherService {
	return &VoucherService{
		EnrollmentRepo: enrollmentRepo,
		CatalogRepo:    catalogRepo,
		FeePlanRepo:    feePlanRepo,
		PaymentRepo:    paymentRepo,
		generator:      NewChallanGenerator(),
		references:     references,
		now:            func() time.Time { return time.Now().UTC() },
	}
}

// GenerateVoucher loads everything a voucher shows for one fee detail and
// stamps it with a fresh reference and the current time.
func (s *VoucherService) GenerateVoucher(ctx context.Context, detailID string) (*domain.VoucherDocument, error) {
	detail, err := s.FeePlanRepo.GetDetail(ctx, detailID)
	if err != nil {
		return nil, notFoundOr(err, "fee detail", detailID)
	}
	plan, err := s.FeePlanRepo.GetByID(ctx, detail.FeePlanID)
	if err != nil {
		return nil, notFoundOr(err, "fee plan", detail.FeePlanID)
	}
	enrollment, err := s.EnrollmentRepo.GetByID(ctx, plan.EnrollmentID)
	if err != nil {
		return nil, notFoundOr(err, "enrollment", plan.EnrollmentID)
	}
	course, err := s.CatalogRepo.GetCourse(ctx, enrollment.CourseID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, customError.WrapCourseNotFound(enrollment.CourseID)
		}
		return nil, customError.WrapDatabaseError(err)
	}

	// the roster may not know the student; the voucher then carries the id only
	student, err := s.CatalogRepo.GetStudent(ctx, enrollment.StudentID)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return nil, customError.WrapDatabaseError(err)
	}

	payments, err := s.PaymentRepo.ListByDetail(ctx, detail.ID)
	if err != nil {
		return nil, customError.WrapDatabaseError(err)
	}

	return s.generator.Generate(&domain.VoucherInput{
		Enrollment:  enrollment,
		Plan:        plan,
		Detail:      detail,
		Course:      course,
		Student:     student,
		Payments:    payments,
		GeneratedAt: s.now(),
		Reference:   s.references.NextReference(),
	})
}

// Render encodes a voucher document.
func (s *VoucherService) Render(doc *domain.VoucherDocument) ([]byte, error) {
	return s.generator.Render(doc)
}
