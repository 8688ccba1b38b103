package repository

import (
	"context"

	"github.com/segyhp/fee-ledger/internal/domain"

	"github.com/jmoiron/sqlx"
)

type enrollmentRepository struct {
	db *sqlx.DB
}

func NewEnrollmentRepository(db *sqlx.DB) EnrollmentRepository {
	return &enrollmentRepository{db: db}
}

func (r *enrollmentRepository) Create(ctx context.Context, enrollment *domain.Enrollment) error {
	query := `
		INSERT INTO enrollments (id, student_id, course_id, status, enrolled_at)
		VALUES ($1, $2, $3, $4, $5)
	`

	_, err := executor(ctx, r.db).ExecContext(ctx, query,
		enrollment.ID,
		enrollment.StudentID,
		enrollment.CourseID,
		enrollment.Status,
		enrollment.EnrolledAt,
	)

	return translate(err, "insert enrollment")
}

func (r *enrollmentRepository) GetByID(ctx context.Context, id string) (*domain.Enrollment, error) {
	query := `
		SELECT id, student_id, course_id, status, enrolled_at
		FROM enrollments
		WHERE id = $1
	`

	var enrollment domain.Enrollment
	if err := sqlx.GetContext(ctx, executor(ctx, r.db), &enrollment, query, id); err != nil {
		return nil, translate(err, "get enrollment")
	}

	return &enrollment, nil
}

func (r *enrollmentRepository) FindActive(ctx context.Context, studentID, courseID string) (*domain.Enrollment, error) {
	query := `
		SELECT id, student_id, course_id, status, enrolled_at
		FROM enrollments
		WHERE student_id = $1 AND course_id = $2 AND status <> 'cancelled'
		LIMIT 1
	`

	var enrollment domain.Enrollment
	if err := sqlx.GetContext(ctx, executor(ctx, r.db), &enrollment, query, studentID, courseID); err != nil {
		return nil, translate(err, "find active enrollment")
	}

	return &enrollment, nil
}
