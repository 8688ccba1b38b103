package service

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/segyhp/fee-ledger/internal/domain"
	"github.com/segyhp/fee-ledger/internal/repository"
	customError "github.com/segyhp/fee-ledger/pkg/errors"
)

// StatementCache stores rendered statements per enrollment. Entries are
// keyed by a generation that Invalidate bumps, so a statement built before a
// write can never be served after it. Implementations swallow their own
// failures; a cache problem must never fail a request.
type StatementCache interface {
	// Generation returns the enrollment's current generation; false bypasses the cache.
	Generation(ctx context.Context, enrollmentID string) (int64, bool)
	Get(ctx context.Context, enrollmentID string, generation int64) (*domain.Statement, bool)
	Set(ctx context.Context, statement *domain.Statement, generation int64)
	Invalidate(ctx context.Context, enrollmentID string)
}

type NoopStatementCache struct{}

func (NoopStatementCache) Generation(context.Context, string) (int64, bool)             { return 0, false }
func (NoopStatementCache) Get(context.Context, string, int64) (*domain.Statement, bool) { return nil, false }
func (NoopStatementCache) Set(context.Context, *domain.Statement, int64)                {}
func (NoopStatementCache) Invalidate(context.Context, string)                           {}

// generationTTL outlives any statement entry so a generation never resets
// while entries written under it are still readable.
const generationTTL = 24 * time.Hour

type RedisStatementCache struct {
	client *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

func NewRedisStatementCache(client *redis.Client, ttl time.Duration, logger *zap.Logger) *RedisStatementCache {
	return &RedisStatementCache{client: client, ttl: ttl, logger: logger}
}

func statementKey(enrollmentID string, generation int64) string {
	return "fee-ledger:statement:" + enrollmentID + ":" + strconv.FormatInt(generation, 10)
}

func generationKey(enrollmentID string) string {
	return "fee-ledger:statement-gen:" + enrollmentID
}

func (c *RedisStatementCache) Generation(ctx context.Context, enrollmentID string) (int64, bool) {
	gen, err := c.client.Get(ctx, generationKey(enrollmentID)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, true
	}
	if err != nil {
		c.logger.Warn("statement cache generation read failed", zap.String("enrollment_id", enrollmentID), zap.Error(customError.WrapCacheError(err)))
		return 0, false
	}
	return gen, true
}

func (c *RedisStatementCache) Get(ctx context.Context, enrollmentID string, generation int64) (*domain.Statement, bool) {
	raw, err := c.client.Get(ctx, statementKey(enrollmentID, generation)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.Warn("statement cache read failed", zap.String("enrollment_id", enrollmentID), zap.Error(customError.WrapCacheError(err)))
		}
		return nil, false
	}

	var statement domain.Statement
	if err := json.Unmarshal(raw, &statement); err != nil {
		c.logger.Warn("statement cache entry unreadable", zap.String("enrollment_id", enrollmentID), zap.Error(err))
		return nil, false
	}
	return &statement, true
}

func (c *RedisStatementCache) Set(ctx context.Context, statement *domain.Statement, generation int64) {
	raw, err := json.Marshal(statement)
	if err != nil {
		c.logger.Warn("statement cache encode failed", zap.Error(err))
		return
	}
	key := statementKey(statement.Enrollment.ID, generation)
	if err := c.client.Set(ctx, key, raw, c.ttl).Err(); err != nil {
		c.logger.Warn("statement cache write failed", zap.String("enrollment_id", statement.Enrollment.ID), zap.Error(customError.WrapCacheError(err)))
	}
}

// Invalidate moves the enrollment to a new generation. Entries of older
// generations are never read again and expire on their own.
func (c *RedisStatementCache) Invalidate(ctx context.Context, enrollmentID string) {
	key := generationKey(enrollmentID)
	ttl := generationTTL
	if c.ttl*2 > ttl {
		ttl = c.ttl * 2
	}
	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, key)
		pipe.Expire(ctx, key, ttl)
		return nil
	})
	if err != nil {
		c.logger.Warn("statement cache invalidation failed", zap.String("enrollment_id", enrollmentID), zap.Error(customError.WrapCacheError(err)))
	}
}

// StatementService is the per-enrollment query surface.
type StatementService struct {
	EnrollmentRepo repository.EnrollmentRepository
	FeePlanRepo    repository.FeePlanRepository
	PaymentRepo    repository.PaymentRepository
	cache          StatementCache
	logger         *zap.Logger
	now            func() time.Time
}

func NewStatementService(
	enrollmentRepo repository.EnrollmentRepository,
	feePlanRepo repository.FeePlanRepository,
	paymentRepo repository.PaymentRepository,
	cache StatementCache,
	logger *zap.Logger,
) *StatementService {
	if cache == nil {
		cache = NoopStatementCache{}
	}
	return &StatementService{
		EnrollmentRepo: enrollmentRepo,
		FeePlanRepo:    feePlanRepo,
		PaymentRepo:    paymentRepo,
		cache:          cache,
		logger:         logger,
		now:            func() time.Time { return time.Now().UTC() },
	}
}

// GetStatement returns the enrollment's current plan (or its latest cancelled
// one), the ordered details with derived balances, and plan totals. An
// enrollment without any plan yields an empty statement.
func (s *StatementService) GetStatement(ctx context.Context, enrollmentID string) (*domain.Statement, error) {
	generation, cacheable := s.cache.Generation(ctx, enrollmentID)
	if cacheable {
		if cached, ok := s.cache.Get(ctx, enrollmentID, generation); ok {
			return cached, nil
		}
	}

	enrollment, err := s.EnrollmentRepo.GetByID(ctx, enrollmentID)
	if err != nil {
		return nil, notFoundOr(err, "enrollment", enrollmentID)
	}

	now := s.now()
	statement := &domain.Statement{
		Enrollment:  enrollment,
		Lines:       []*domain.StatementLine{},
		GeneratedAt: now,
	}

	plan, err := s.FeePlanRepo.GetActiveByEnrollment(ctx, enrollmentID)
	if errors.Is(err, repository.ErrNotFound) {
		plan, err = s.FeePlanRepo.GetLatestByEnrollment(ctx, enrollmentID)
	}
	if errors.Is(err, repository.ErrNotFound) {
		if cacheable {
			s.cache.Set(ctx, statement, generation)
		}
		return statement, nil
	}
	if err != nil {
		return nil, customError.WrapDatabaseError(err)
	}

	details, err := s.FeePlanRepo.ListDetails(ctx, plan.ID)
	if err != nil {
		return nil, customError.WrapDatabaseError(err)
	}
	payments, err := s.PaymentRepo.ListByPlan(ctx, plan.ID)
	if err != nil {
		return nil, customError.WrapDatabaseError(err)
	}

	byDetail := make(map[string][]*domain.PaymentRecord, len(details))
	for _, p := range payments {
		byDetail[p.FeeDetailID] = append(byDetail[p.FeeDetailID], p)
	}

	for _, d := range details {
		statement.Lines = append(statement.Lines, &domain.StatementLine{
			Detail:   d,
			Label:    d.SequenceLabel(),
			Balance:  DetailBalance(d, byDetail[d.ID], now),
			Payments: append([]*domain.PaymentRecord{}, byDetail[d.ID]...),
		})
	}

	totals := EnrollmentTotals([]*domain.FeePlanWithSchedule{{Plan: plan, Details: details}}, payments, now)
	if plan.IsCancelled() {
		totals = PlanTotals(plan, details, payments, now)
	}
	statement.Plan = plan
	statement.Totals = &totals

	if cacheable {
		s.cache.Set(ctx, statement, generation)
	}
	return statement, nil
}
