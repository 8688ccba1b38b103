package repository

import (
	"context"

	"github.com/segyhp/fee-ledger/internal/domain"

	"github.com/jmoiron/sqlx"
)

type catalogRepository struct {
	db *sqlx.DB
}

// NewCatalogRepository reads the courses and students tables maintained by
// the catalog and roster. The ledger never writes to them.
func NewCatalogRepository(db *sqlx.DB) CatalogRepository {
	return &catalogRepository{db: db}
}

func (r *catalogRepository) GetCourse(ctx context.Context, id string) (*domain.Course, error) {
	query := `
		SELECT id, title, default_price, COALESCE(currency, '') AS currency,
		       COALESCE(bank_instructions, '') AS bank_instructions
		FROM courses
		WHERE id = $1
	`

	var course domain.Course
	if err := sqlx.GetContext(ctx, executor(ctx, r.db), &course, query, id); err != nil {
		return nil, translate(err, "get course")
	}

	return &course, nil
}

func (r *catalogRepository) GetStudent(ctx context.Context, id string) (*domain.Student, error) {
	query := `
		SELECT id, full_name, COALESCE(email, '') AS email
		FROM students
		WHERE id = $1
	`

	var student domain.Student
	if err := sqlx.GetContext(ctx, executor(ctx, r.db), &student, query, id); err != nil {
		return nil, translate(err, "get student")
	}

	return &student, nil
}
