package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/segyhp/fee-ledger/internal/domain"
	"github.com/segyhp/fee-ledger/pkg/money"

	"github.com/jmoiron/sqlx"
)

type paymentRow struct {
	ID             string         `db:"id"`
	FeeDetailID    string         `db:"fee_detail_id"`
	AmountMinor    int64          `db:"amount_minor"`
	Currency       string         `db:"currency"`
	Method         string         `db:"method"`
	Reference      sql.NullString `db:"reference"`
	IdempotencyKey string         `db:"idempotency_key"`
	RecordedBy     string         `db:"recorded_by"`
	RecordedAt     time.Time      `db:"recorded_at"`
	Status         string         `db:"status"`
	VoidedBy       sql.NullString `db:"voided_by"`
	VoidedAt       *time.Time     `db:"voided_at"`
}

func (row *paymentRow) toDomain() *domain.PaymentRecord {
	return &domain.PaymentRecord{
		ID:             row.ID,
		FeeDetailID:    row.FeeDetailID,
		Amount:         money.New(row.AmountMinor, money.Currency(row.Currency)),
		Method:         row.Method,
		Reference:      row.Reference.String,
		IdempotencyKey: row.IdempotencyKey,
		RecordedBy:     row.RecordedBy,
		RecordedAt:     row.RecordedAt,
		Status:         row.Status,
		VoidedBy:       row.VoidedBy.String,
		VoidedAt:       row.VoidedAt,
	}
}

type paymentRepository struct {
	db *sqlx.DB
}

func NewPaymentRepository(db *sqlx.DB) PaymentRepository {
	return &paymentRepository{db: db}
}

const paymentColumns = `id, fee_detail_id, amount_minor, currency, method, reference, idempotency_key,
		recorded_by, recorded_at, status, voided_by, voided_at`

func (r *paymentRepository) Create(ctx context.Context, payment *domain.PaymentRecord) error {
	query := `
		INSERT INTO payment_records (` + paymentColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`

	_, err := executor(ctx, r.db).ExecContext(ctx, query,
		payment.ID,
		payment.FeeDetailID,
		payment.Amount.Amount,
		string(payment.Amount.Currency),
		payment.Method,
		sql.NullString{String: payment.Reference, Valid: payment.Reference != ""},
		payment.IdempotencyKey,
		payment.RecordedBy,
		payment.RecordedAt,
		payment.Status,
		sql.NullString{String: payment.VoidedBy, Valid: payment.VoidedBy != ""},
		payment.VoidedAt,
	)

	return translate(err, "insert payment record")
}

func (r *paymentRepository) get(ctx context.Context, op, query, arg string) (*domain.PaymentRecord, error) {
	var row paymentRow
	if err := sqlx.GetContext(ctx, executor(ctx, r.db), &row, query, arg); err != nil {
		return nil, translate(err, op)
	}
	return row.toDomain(), nil
}

func (r *paymentRepository) GetByID(ctx context.Context, id string) (*domain.PaymentRecord, error) {
	query := `SELECT ` + paymentColumns + ` FROM payment_records WHERE id = $1`
	return r.get(ctx, "get payment record", query, id)
}

func (r *paymentRepository) GetByIdempotencyKey(ctx context.Context, key string) (*domain.PaymentRecord, error) {
	query := `SELECT ` + paymentColumns + ` FROM payment_records WHERE idempotency_key = $1`
	return r.get(ctx, "get payment by idempotency key", query, key)
}

func (r *paymentRepository) list(ctx context.Context, op, query, arg string) ([]*domain.PaymentRecord, error) {
	var rows []paymentRow
	if err := sqlx.SelectContext(ctx, executor(ctx, r.db), &rows, query, arg); err != nil {
		return nil, translate(err, op)
	}

	payments := make([]*domain.PaymentRecord, 0, len(rows))
	for i := range rows {
		payments = append(payments, rows[i].toDomain())
	}
	return payments, nil
}

func (r *paymentRepository) ListByDetail(ctx context.Context, detailID string) ([]*domain.PaymentRecord, error) {
	query := `
		SELECT ` + paymentColumns + `
		FROM payment_records
		WHERE fee_detail_id = $1
		ORDER BY recorded_at, id
	`
	return r.list(ctx, "list payments by detail", query, detailID)
}

func (r *paymentRepository) ListByPlan(ctx context.Context, planID string) ([]*domain.PaymentRecord, error) {
	query := `
		SELECT pr.id, pr.fee_detail_id, pr.amount_minor, pr.currency, pr.method, pr.reference,
		       pr.idempotency_key, pr.recorded_by, pr.recorded_at, pr.status, pr.voided_by, pr.voided_at
		FROM payment_records pr
		JOIN fee_details d ON d.id = pr.fee_detail_id
		WHERE d.fee_plan_id = $1
		ORDER BY pr.recorded_at, pr.id
	`
	return r.list(ctx, "list payments by plan", query, planID)
}

func (r *paymentRepository) Void(ctx context.Context, id, voidedBy string, voidedAt time.Time) error {
	query := `
		UPDATE payment_records
		SET status = 'voided', voided_by = $2, voided_at = $3
		WHERE id = $1 AND status = 'completed'
	`

	res, err := executor(ctx, r.db).ExecContext(ctx, query, id, voidedBy, voidedAt)
	if err != nil {
		return translate(err, "void payment record")
	}
	return requireAffected(res, "void payment record")
}
