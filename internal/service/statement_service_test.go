package service

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/segyhp/fee-ledger/internal/domain"
	customError "github.com/segyhp/fee-ledger/pkg/errors"
)

type fakeStatementCache struct {
	generations map[string]int64
	entries     map[string]*domain.Statement
	invalidated []string
	hits        int
	beforeSet   func()
}

func newFakeStatementCache() *fakeStatementCache {
	return &fakeStatementCache{
		generations: make(map[string]int64),
		entries:     make(map[string]*domain.Statement),
	}
}

func fakeKey(enrollmentID string, generation int64) string {
	return fmt.Sprintf("%s:%d", enrollmentID, generation)
}

func (c *fakeStatementCache) Generation(_ context.Context, enrollmentID string) (int64, bool) {
	return c.generations[enrollmentID], true
}

func (c *fakeStatementCache) Get(_ context.Context, enrollmentID string, generation int64) (*domain.Statement, bool) {
	s, ok := c.entries[fakeKey(enrollmentID, generation)]
	if ok {
		c.hits++
	}
	return s, ok
}

func (c *fakeStatementCache) Set(_ context.Context, statement *domain.Statement, generation int64) {
	if c.beforeSet != nil {
		hook := c.beforeSet
		c.beforeSet = nil
		hook()
	}
	c.entries[fakeKey(statement.Enrollment.ID, generation)] = statement
}

func (c *fakeStatementCache) Invalidate(_ context.Context, enrollmentID string) {
	c.generations[enrollmentID]++
	c.invalidated = append(c.invalidated, enrollmentID)
}

func TestGetStatement_LinesAndTotals(t *testing.T) {
	f := newFixture(t)
	plan := f.fullCoursePlan(t, "1000", 3)
	ctx := context.Background()

	_, err := f.pay(ctx, plan.Details[0].ID, "100", "k-1")
	require.NoError(t, err)

	statement, err := f.statements.GetStatement(ctx, plan.Plan.EnrollmentID)

	require.NoError(t, err)
	assert.Equal(t, plan.Plan.ID, statement.Plan.ID)
	require.Len(t, statement.Lines, 3)
	assert.Equal(t, "Installment 1", statement.Lines[0].Label)
	assert.Equal(t, int64(10000), statement.Lines[0].Balance.Paid.Amount)
	assert.Equal(t, int64(23300), statement.Lines[0].Balance.Outstanding.Amount)
	assert.Len(t, statement.Lines[0].Payments, 1)
	assert.Empty(t, statement.Lines[1].Payments)
	assert.Equal(t, int64(90000), statement.Totals.Outstanding.Amount)
	assert.Equal(t, 3, statement.Totals.DetailCount)
}

func TestGetStatement_OverdueIsDerived(t *testing.T) {
	f := newFixture(t)
	enrollment := f.enroll(t)

	// March 2026 is due on the 11th; the clock reads the 15th
	_, err := f.plans.CreatePlan(context.Background(), &domain.CreatePlanRequest{
		EnrollmentID:  enrollment.ID,
		FeeType:       domain.FeeTypeMonthly,
		TotalAmount:   "150",
		MonthlyAmount: "50",
		RequestedBy:   testAdmin,
	})
	require.NoError(t, err)

	statement, err := f.statements.GetStatement(context.Background(), enrollment.ID)

	require.NoError(t, err)
	require.Len(t, statement.Lines, 3)
	assert.Equal(t, "March 2026", statement.Lines[0].Label)
	assert.Equal(t, domain.DetailStatusOverdue, statement.Lines[0].Balance.Status)
	assert.Equal(t, domain.DetailStatusPending, statement.Lines[0].Detail.Status)
	assert.Equal(t, domain.DetailStatusPending, statement.Lines[1].Balance.Status)
	assert.Equal(t, 1, statement.Totals.OverdueCount)
	assert.Equal(t, int64(5000), statement.Totals.OverdueAmount.Amount)
}

func TestGetStatement_NoPlan(t *testing.T) {
	f := newFixture(t)
	enrollment := f.enroll(t)

	statement, err := f.statements.GetStatement(context.Background(), enrollment.ID)

	require.NoError(t, err)
	assert.Nil(t, statement.Plan)
	assert.Nil(t, statement.Totals)
	assert.NotNil(t, statement.Lines)
	assert.Empty(t, statement.Lines)
}

func TestGetStatement_FallsBackToCancelledPlan(t *testing.T) {
	f := newFixture(t)
	plan := f.fullCoursePlan(t, "1000", 2)

	_, err := f.plans.CancelPlan(context.Background(), plan.Plan.ID, testAdmin)
	require.NoError(t, err)

	statement, err := f.statements.GetStatement(context.Background(), plan.Plan.EnrollmentID)

	require.NoError(t, err)
	require.NotNil(t, statement.Plan)
	assert.Equal(t, domain.PlanStatusCancelled, statement.Plan.Status)
	assert.Equal(t, int64(0), statement.Totals.Outstanding.Amount)
	assert.Equal(t, 0, statement.Totals.DetailCount)
}

func TestGetStatement_UnknownEnrollment(t *testing.T) {
	f := newFixture(t)

	_, err := f.statements.GetStatement(context.Background(), "missing")

	requireCode(t, err, customError.ErrCodeNotFound)
}

func TestGetStatement_CacheHitAndInvalidation(t *testing.T) {
	f := newFixture(t)
	plan := f.fullCoursePlan(t, "1000", 3)
	ctx := context.Background()

	cache := newFakeStatementCache()
	f.statements.cache = cache
	f.ledger.cache = cache

	first, err := f.statements.GetStatement(ctx, plan.Plan.EnrollmentID)
	require.NoError(t, err)
	second, err := f.statements.GetStatement(ctx, plan.Plan.EnrollmentID)
	require.NoError(t, err)
	assert.Same(t, first, second)
	assert.Equal(t, 1, cache.hits)

	_, err = f.pay(ctx, plan.Details[0].ID, "100", "k-1")
	require.NoError(t, err)
	assert.Equal(t, []string{plan.Plan.EnrollmentID}, cache.invalidated)

	third, err := f.statements.GetStatement(ctx, plan.Plan.EnrollmentID)
	require.NoError(t, err)
	assert.Equal(t, int64(10000), third.Totals.Paid.Amount)
}

func TestGetStatement_WriteDuringLoadIsNotServedStale(t *testing.T) {
	f := newFixture(t)
	plan := f.fullCoursePlan(t, "1000", 3)
	ctx := context.Background()

	cache := newFakeStatementCache()
	f.statements.cache = cache
	f.ledger.cache = cache

	// a payment commits after the statement was loaded but before it is cached
	cache.beforeSet = func() {
		_, err := f.pay(ctx, plan.Details[1].ID, "333", "k-race")
		require.NoError(t, err)
	}

	stale, err := f.statements.GetStatement(ctx, plan.Plan.EnrollmentID)
	require.NoError(t, err)
	assert.Zero(t, stale.Totals.Paid.Amount)

	fresh, err := f.statements.GetStatement(ctx, plan.Plan.EnrollmentID)
	require.NoError(t, err)
	assert.Equal(t, int64(33300), fresh.Totals.Paid.Amount)
	assert.Equal(t, int64(66700), fresh.Totals.Outstanding.Amount)
	assert.Zero(t, cache.hits)
}
