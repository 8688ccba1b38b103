package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/segyhp/fee-ledger/internal/domain"
	"github.com/segyhp/fee-ledger/pkg/money"

	"github.com/jmoiron/sqlx"
)

// feePlanRow mirrors fee_plans; amounts are BIGINT minor units.
type feePlanRow struct {
	ID                 string        `db:"id"`
	EnrollmentID       string        `db:"enrollment_id"`
	FeeType            string        `db:"fee_type"`
	TotalAmountMinor   int64         `db:"total_amount_minor"`
	Currency           string        `db:"currency"`
	InstallmentsCount  sql.NullInt32 `db:"installments_count"`
	MonthlyAmountMinor sql.NullInt64 `db:"monthly_amount_minor"`
	ScheduleMode       string        `db:"schedule_mode"`
	Status             string        `db:"status"`
	CreatedBy          string        `db:"created_by"`
	CreatedAt          time.Time     `db:"created_at"`
	UpdatedAt          time.Time     `db:"updated_at"`
}

func (row *feePlanRow) toDomain() *domain.FeePlan {
	cur := money.Currency(row.Currency)
	plan := &domain.FeePlan{
		ID:                row.ID,
		EnrollmentID:      row.EnrollmentID,
		FeeType:           row.FeeType,
		TotalAmount:       money.New(row.TotalAmountMinor, cur),
		Currency:          cur,
		InstallmentsCount: int(row.InstallmentsCount.Int32),
		ScheduleMode:      row.ScheduleMode,
		Status:            row.Status,
		CreatedBy:         row.CreatedBy,
		CreatedAt:         row.CreatedAt,
		UpdatedAt:         row.UpdatedAt,
	}
	if row.MonthlyAmountMinor.Valid {
		monthly := money.New(row.MonthlyAmountMinor.Int64, cur)
		plan.MonthlyAmount = &monthly
	}
	return plan
}

// feeDetailRow mirrors fee_details. Exactly one of installment_number and
// the period columns is set.
type feeDetailRow struct {
	ID                string        `db:"id"`
	FeePlanID         string        `db:"fee_plan_id"`
	InstallmentNumber sql.NullInt32 `db:"installment_number"`
	PeriodMonth       sql.NullInt32 `db:"period_month"`
	PeriodYear        sql.NullInt32 `db:"period_year"`
	AmountMinor       int64         `db:"amount_minor"`
	Currency          string        `db:"currency"`
	DueDate           time.Time     `db:"due_date"`
	Status            string        `db:"status"`
	PaidDate          *time.Time    `db:"paid_date"`
	CreatedAt         time.Time     `db:"created_at"`
}

func (row *feeDetailRow) toDomain() *domain.FeeDetail {
	detail := &domain.FeeDetail{
		ID:                row.ID,
		FeePlanID:         row.FeePlanID,
		InstallmentNumber: int(row.InstallmentNumber.Int32),
		Amount:            money.New(row.AmountMinor, money.Currency(row.Currency)),
		DueDate:           row.DueDate.UTC(),
		Status:            row.Status,
		PaidDate:          row.PaidDate,
		CreatedAt:         row.CreatedAt,
	}
	if row.PeriodMonth.Valid && row.PeriodYear.Valid {
		detail.Period = &money.Period{Month: time.Month(row.PeriodMonth.Int32), Year: int(row.PeriodYear.Int32)}
	}
	return detail
}

type feePlanRepository struct {
	db *sqlx.DB
}

func NewFeePlanRepository(db *sqlx.DB) FeePlanRepository {
	return &feePlanRepository{db: db}
}

const feePlanColumns = `id, enrollment_id, fee_type, total_amount_minor, currency, installments_count,
		monthly_amount_minor, schedule_mode, status, created_by, created_at, updated_at`

const feeDetailColumns = `id, fee_plan_id, installment_number, period_month, period_year, amount_minor,
		currency, due_date, status, paid_date, created_at`

func (r *feePlanRepository) Create(ctx context.Context, plan *domain.FeePlan) error {
	query := `
		INSERT INTO fee_plans (` + feePlanColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`

	var installments sql.NullInt32
	if plan.InstallmentsCount > 0 {
		installments = sql.NullInt32{Int32: int32(plan.InstallmentsCount), Valid: true}
	}
	var monthly sql.NullInt64
	if plan.MonthlyAmount != nil {
		monthly = sql.NullInt64{Int64: plan.MonthlyAmount.Amount, Valid: true}
	}

	_, err := executor(ctx, r.db).ExecContext(ctx, query,
		plan.ID,
		plan.EnrollmentID,
		plan.FeeType,
		plan.TotalAmount.Amount,
		string(plan.Currency),
		installments,
		monthly,
		plan.ScheduleMode,
		plan.Status,
		plan.CreatedBy,
		plan.CreatedAt,
		plan.UpdatedAt,
	)

	return translate(err, "insert fee plan")
}

func (r *feePlanRepository) getPlan(ctx context.Context, op, query string, args ...interface{}) (*domain.FeePlan, error) {
	var row feePlanRow
	if err := sqlx.GetContext(ctx, executor(ctx, r.db), &row, query, args...); err != nil {
		return nil, translate(err, op)
	}
	return row.toDomain(), nil
}

func (r *feePlanRepository) GetByID(ctx context.Context, id string) (*domain.FeePlan, error) {
	query := `SELECT ` + feePlanColumns + ` FROM fee_plans WHERE id = $1`
	return r.getPlan(ctx, "get fee plan", query, id)
}

func (r *feePlanRepository) GetByIDForUpdate(ctx context.Context, id string) (*domain.FeePlan, error) {
	query := `SELECT ` + feePlanColumns + ` FROM fee_plans WHERE id = $1 FOR UPDATE`
	return r.getPlan(ctx, "lock fee plan", query, id)
}

func (r *feePlanRepository) GetActiveByEnrollment(ctx context.Context, enrollmentID string) (*domain.FeePlan, error) {
	query := `
		SELECT ` + feePlanColumns + `
		FROM fee_plans
		WHERE enrollment_id = $1 AND status <> 'cancelled'
		LIMIT 1
	`
	return r.getPlan(ctx, "get active fee plan", query, enrollmentID)
}

func (r *feePlanRepository) GetLatestByEnrollment(ctx context.Context, enrollmentID string) (*domain.FeePlan, error) {
	query := `
		SELECT ` + feePlanColumns + `
		FROM fee_plans
		WHERE enrollment_id = $1
		ORDER BY created_at DESC
		LIMIT 1
	`
	return r.getPlan(ctx, "get latest fee plan", query, enrollmentID)
}

func (r *feePlanRepository) UpdateStatus(ctx context.Context, id, status string, updatedAt time.Time) error {
	query := `UPDATE fee_plans SET status = $2, updated_at = $3 WHERE id = $1`

	res, err := executor(ctx, r.db).ExecContext(ctx, query, id, status, updatedAt)
	if err != nil {
		return translate(err, "update fee plan status")
	}
	return requireAffected(res, "update fee plan status")
}

func (r *feePlanRepository) CreateDetails(ctx context.Context, details []*domain.FeeDetail) error {
	query := `
		INSERT INTO fee_details (` + feeDetailColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`

	exec := executor(ctx, r.db)
	for _, d := range details {
		var installment, month, year sql.NullInt32
		if d.Period != nil {
			month = sql.NullInt32{Int32: int32(d.Period.Month), Valid: true}
			year = sql.NullInt32{Int32: int32(d.Period.Year), Valid: true}
		} else {
			installment = sql.NullInt32{Int32: int32(d.InstallmentNumber), Valid: true}
		}

		_, err := exec.ExecContext(ctx, query,
			d.ID,
			d.FeePlanID,
			installment,
			month,
			year,
			d.Amount.Amount,
			string(d.Amount.Currency),
			d.DueDate,
			d.Status,
			d.PaidDate,
			d.CreatedAt,
		)
		if err != nil {
			return translate(err, "insert fee detail")
		}
	}

	return nil
}

func (r *feePlanRepository) getDetail(ctx context.Context, op, query, id string) (*domain.FeeDetail, error) {
	var row feeDetailRow
	if err := sqlx.GetContext(ctx, executor(ctx, r.db), &row, query, id); err != nil {
		return nil, translate(err, op)
	}
	return row.toDomain(), nil
}

func (r *feePlanRepository) GetDetail(ctx context.Context, id string) (*domain.FeeDetail, error) {
	query := `SELECT ` + feeDetailColumns + ` FROM fee_details WHERE id = $1`
	return r.getDetail(ctx, "get fee detail", query, id)
}

func (r *feePlanRepository) GetDetailForUpdate(ctx context.Context, id string) (*domain.FeeDetail, error) {
	query := `SELECT ` + feeDetailColumns + ` FROM fee_details WHERE id = $1 FOR UPDATE`
	return r.getDetail(ctx, "lock fee detail", query, id)
}

func (r *feePlanRepository) ListDetails(ctx context.Context, planID string) ([]*domain.FeeDetail, error) {
	query := `
		SELECT ` + feeDetailColumns + `
		FROM fee_details
		WHERE fee_plan_id = $1
		ORDER BY installment_number NULLS LAST, period_year, period_month
	`

	var rows []feeDetailRow
	if err := sqlx.SelectContext(ctx, executor(ctx, r.db), &rows, query, planID); err != nil {
		return nil, translate(err, "list fee details")
	}

	details := make([]*domain.FeeDetail, 0, len(rows))
	for i := range rows {
		details = append(details, rows[i].toDomain())
	}
	return details, nil
}

func (r *feePlanRepository) UpdateDetailStatus(ctx context.Context, id, status string, paidDate *time.Time) error {
	query := `UPDATE fee_details SET status = $2, paid_date = $3 WHERE id = $1`

	res, err := executor(ctx, r.db).ExecContext(ctx, query, id, status, paidDate)
	if err != nil {
		return translate(err, "update fee detail status")
	}
	return requireAffected(res, "update fee detail status")
}

type dueDetailRow struct {
	feeDetailRow
	Plan       feePlanRow        `db:"plan"`
	Enrollment domain.Enrollment `db:"enrollment"`
	PaidMinor  int64             `db:"paid_minor"`
}

func (r *feePlanRepository) ListDueDetails(ctx context.Context, from, to time.Time, limit int) ([]*domain.DueReminderCandidate, error) {
	query := `
		SELECT d.id, d.fee_plan_id, d.installment_number, d.period_month, d.period_year, d.amount_minor,
		       d.currency, d.due_date, d.status, d.paid_date, d.created_at,
		       p.id AS "plan.id", p.enrollment_id AS "plan.enrollment_id", p.fee_type AS "plan.fee_type",
		       p.total_amount_minor AS "plan.total_amount_minor", p.currency AS "plan.currency",
		       p.installments_count AS "plan.installments_count",
		       p.monthly_amount_minor AS "plan.monthly_amount_minor",
		       p.schedule_mode AS "plan.schedule_mode", p.status AS "plan.status",
		       p.created_by AS "plan.created_by", p.created_at AS "plan.created_at",
		       p.updated_at AS "plan.updated_at",
		       e.id AS "enrollment.id", e.student_id AS "enrollment.student_id",
		       e.course_id AS "enrollment.course_id", e.status AS "enrollment.status",
		       e.enrolled_at AS "enrollment.enrolled_at",
		       COALESCE((
		           SELECT SUM(pr.amount_minor) FROM payment_records pr
		           WHERE pr.fee_detail_id = d.id AND pr.status = 'completed'
		       ), 0)::BIGINT AS paid_minor
		FROM fee_details d
		JOIN fee_plans p ON p.id = d.fee_plan_id
		JOIN enrollments e ON e.id = p.enrollment_id
		WHERE d.status = 'pending'
		  AND p.status = 'active'
		  AND e.status <> 'cancelled'
		  AND d.due_date BETWEEN $1 AND $2
		  AND NOT EXISTS (
		      SELECT 1 FROM outbox_events o
		      WHERE o.event_type = $4
		        AND o.aggregate_id = d.id::text || ':' || to_char(d.due_date, 'YYYY-MM-DD')
		  )
		ORDER BY d.due_date, d.id
		LIMIT $3
	`

	var rows []dueDetailRow
	if err := sqlx.SelectContext(ctx, executor(ctx, r.db), &rows, query, from, to, limit, domain.EventFeeDueReminder); err != nil {
		return nil, translate(err, "list due fee details")
	}

	candidates := make([]*domain.DueReminderCandidate, 0, len(rows))
	for i := range rows {
		enrollment := rows[i].Enrollment
		candidates = append(candidates, &domain.DueReminderCandidate{
			Enrollment: &enrollment,
			Plan:       rows[i].Plan.toDomain(),
			Detail:     rows[i].feeDetailRow.toDomain(),
			Paid:       rows[i].PaidMinor,
		})
	}
	return candidates, nil
}

func requireAffected(res sql.Result, op string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return translate(err, op)
	}
	if n == 0 {
		return translate(sql.ErrNoRows, op)
	}
	return nil
}
