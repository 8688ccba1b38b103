package handler_test

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/segyhp/fee-ledger/internal/domain"
)

type MockEnrollmentService struct {
	mock.Mock
}

func (m *MockEnrollmentService) Enroll(ctx context.Context, request *domain.EnrollRequest) (*domain.EnrollResponse, error) {
	args := m.Called(ctx, request)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.EnrollResponse), args.Error(1)
}

func (m *MockEnrollmentService) GetEnrollment(ctx context.Context, id string) (*domain.Enrollment, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Enrollment), args.Error(1)
}

type MockFeePlanService struct {
	mock.Mock
}

func (m *MockFeePlanService) CreatePlan(ctx context.Context, request *domain.CreatePlanRequest) (*domain.FeePlanWithSchedule, error) {
	args := m.Called(ctx, request)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.FeePlanWithSchedule), args.Error(1)
}

func (m *MockFeePlanService) AddMonthlyDetail(ctx context.Context, request *domain.AddMonthRequest) (*domain.FeePlanWithSchedule, error) {
	args := m.Called(ctx, request)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.FeePlanWithSchedule), args.Error(1)
}

func (m *MockFeePlanService) CancelPlan(ctx context.Context, planID, requestedBy string) (*domain.FeePlanWithSchedule, error) {
	args := m.Called(ctx, planID, requestedBy)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.FeePlanWithSchedule), args.Error(1)
}

func (m *MockFeePlanService) CancelDetail(ctx context.Context, detailID, requestedBy string) (*domain.FeeDetail, error) {
	args := m.Called(ctx, detailID, requestedBy)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.FeeDetail), args.Error(1)
}

type MockPaymentService struct {
	mock.Mock
}

func (m *MockPaymentService) RecordPayment(ctx context.Context, request *domain.RecordPaymentRequest) (*domain.RecordPaymentResult, error) {
	args := m.Called(ctx, request)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.RecordPaymentResult), args.Error(1)
}

func (m *MockPaymentService) VoidPayment(ctx context.Context, request *domain.VoidPaymentRequest) (*domain.RecordPaymentResult, error) {
	args := m.Called(ctx, request)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.RecordPaymentResult), args.Error(1)
}

type MockStatementService struct {
	mock.Mock
}

func (m *MockStatementService) GetStatement(ctx context.Context, enrollmentID string) (*domain.Statement, error) {
	args := m.Called(ctx, enrollmentID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Statement), args.Error(1)
}

type MockVoucherService struct {
	mock.Mock
}

func (m *MockVoucherService) GenerateVoucher(ctx context.Context, detailID string) (*domain.VoucherDocument, error) {
	args := m.Called(ctx, detailID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.VoucherDocument), args.Error(1)
}

func (m *MockVoucherService) Render(doc *domain.VoucherDocument) ([]byte, error) {
	args := m.Called(doc)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]byte), args.Error(1)
}
