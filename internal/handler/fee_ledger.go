package handler

import (
	"context"
	"encoding/json"
	"io"
	"net/http"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/segyhp/fee-ledger/internal/domain"
	customError "github.com/segyhp/fee-ledger/pkg/errors"
	"github.com/segyhp/fee-ledger/pkg/response"
)

const (
	userIDHeader         = "X-User-ID"
	idempotencyKeyHeader = "Idempotency-Key"
)

type EnrollmentService interface {
	Enroll(ctx context.Context, request *domain.EnrollRequest) (*domain.EnrollResponse, error)
	GetEnrollment(ctx context.Context, id string) (*domain.Enrollment, error)
}

type FeePlanService interface {
	CreatePlan(ctx context.Context, request *domain.CreatePlanRequest) (*domain.FeePlanWithSchedule, error)
	AddMonthlyDetail(ctx context.Context, request *domain.AddMonthRequest) (*domain.FeePlanWithSchedule, error)
	CancelPlan(ctx context.Context, planID, requestedBy string) (*domain.FeePlanWithSchedule, error)
	CancelDetail(ctx context.Context, detailID, requestedBy string) (*domain.FeeDetail, error)
}

type PaymentService interface {
	RecordPayment(ctx context.Context, request *domain.RecordPaymentRequest) (*domain.RecordPaymentResult, error)
	VoidPayment(ctx context.Context, request *domain.VoidPaymentRequest) (*domain.RecordPaymentResult, error)
}

type StatementService interface {
	GetStatement(ctx context.Context, enrollmentID string) (*domain.Statement, error)
}

type VoucherService interface {
	GenerateVoucher(ctx context.Context, detailID string) (*domain.VoucherDocument, error)
	Render(doc *domain.VoucherDocument) ([]byte, error)
}

type FeeLedgerHandler struct {
	enrollments EnrollmentService
	feePlans    FeePlanService
	payments    PaymentService
	statements  StatementService
	vouchers    VoucherService
	validator   *validator.Validate
	translator  ut.Translator
	logger      *zap.Logger
}

func NewFeeLedgerHandler(
	enrollments EnrollmentService,
	feePlans FeePlanService,
	payments PaymentService,
	statements StatementService,
	vouchers VoucherService,
	logger *zap.Logger,
) *FeeLedgerHandler {
	v, trans := newValidator()
	return &FeeLedgerHandler{
		enrollments: enrollments,
		feePlans:    feePlans,
		payments:    payments,
		statements:  statements,
		vouchers:    vouchers,
		validator:   v,
		translator:  trans,
		logger:      logger,
	}
}

// Register mounts the ledger routes on an /api/v1 subrouter.
func (h *FeeLedgerHandler) Register(api *mux.Router) {
	api.HandleFunc("/enrollments", h.Enroll).Methods(http.MethodPost)
	api.HandleFunc("/enrollments/{id}", h.GetEnrollment).Methods(http.MethodGet)
	api.HandleFunc("/enrollments/{id}/statement", h.GetStatement).Methods(http.MethodGet)
	api.HandleFunc("/enrollments/{id}/fee-plans", h.CreatePlan).Methods(http.MethodPost)

	api.HandleFunc("/fee-plans/{id}/months", h.AddMonth).Methods(http.MethodPost)
	api.HandleFunc("/fee-plans/{id}/cancel", h.CancelPlan).Methods(http.MethodPost)

	api.HandleFunc("/fee-details/{id}/payments", h.RecordPayment).Methods(http.MethodPost)
	api.HandleFunc("/fee-details/{id}/cancel", h.CancelDetail).Methods(http.MethodPost)
	api.HandleFunc("/fee-details/{id}/voucher", h.GetVoucher).Methods(http.MethodGet)

	api.HandleFunc("/payments/{id}/void", h.VoidPayment).Methods(http.MethodPost)
}

func (h *FeeLedgerHandler) Enroll(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	var request domain.EnrollRequest
	if !h.decode(w, r, &request) {
		return
	}
	request.RequestedBy = actor
	if err := h.validateRequest(&request); err != nil {
		response.BusinessError(w, err)
		return
	}

	result, err := h.enrollments.Enroll(r.Context(), &request)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	response.Created(w, result)
}

func (h *FeeLedgerHandler) GetEnrollment(w http.ResponseWriter, r *http.Request) {
	enrollment, err := h.enrollments.GetEnrollment(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		h.fail(w, r, err)
		return
	}
	response.Success(w, enrollment)
}

func (h *FeeLedgerHandler) GetStatement(w http.ResponseWriter, r *http.Request) {
	statement, err := h.statements.GetStatement(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		h.fail(w, r, err)
		return
	}
	response.Success(w, statement)
}

func (h *FeeLedgerHandler) CreatePlan(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	var request domain.CreatePlanRequest
	if !h.decode(w, r, &request) {
		return
	}
	request.EnrollmentID = mux.Vars(r)["id"]
	request.RequestedBy = actor
	if err := h.validateRequest(&request); err != nil {
		response.BusinessError(w, err)
		return
	}

	plan, err := h.feePlans.CreatePlan(r.Context(), &request)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	response.Created(w, plan)
}

func (h *FeeLedgerHandler) AddMonth(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	var request domain.AddMonthRequest
	if !h.decode(w, r, &request) {
		return
	}
	request.FeePlanID = mux.Vars(r)["id"]
	request.RequestedBy = actor

	plan, err := h.feePlans.AddMonthlyDetail(r.Context(), &request)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	response.Created(w, plan)
}

func (h *FeeLedgerHandler) CancelPlan(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	plan, err := h.feePlans.CancelPlan(r.Context(), mux.Vars(r)["id"], actor)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	response.Success(w, plan)
}

func (h *FeeLedgerHandler) RecordPayment(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	var request domain.RecordPaymentRequest
	if !h.decode(w, r, &request) {
		return
	}
	request.FeeDetailID = mux.Vars(r)["id"]
	request.RecordedBy = actor

	if key := r.Header.Get(idempotencyKeyHeader); key != "" {
		if request.IdempotencyKey != "" && request.IdempotencyKey != key {
			response.BusinessError(w, customError.WrapValidation("idempotency_key", request.IdempotencyKey, "idempotency_key does not match the Idempotency-Key header"))
			return
		}
		request.IdempotencyKey = key
	}

	if err := h.validateRequest(&request); err != nil {
		response.BusinessError(w, err)
		return
	}

	result, err := h.payments.RecordPayment(r.Context(), &request)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if result.Replayed {
		response.Success(w, result)
		return
	}
	response.Created(w, result)
}

func (h *FeeLedgerHandler) CancelDetail(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	detail, err := h.feePlans.CancelDetail(r.Context(), mux.Vars(r)["id"], actor)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	response.Success(w, detail)
}

func (h *FeeLedgerHandler) GetVoucher(w http.ResponseWriter, r *http.Request) {
	doc, err := h.vouchers.GenerateVoucher(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		h.fail(w, r, err)
		return
	}
	body, err := h.vouchers.Render(doc)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	response.Success(w, json.RawMessage(body))
}

func (h *FeeLedgerHandler) VoidPayment(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	var request domain.VoidPaymentRequest
	if !h.decode(w, r, &request) {
		return
	}
	request.PaymentID = mux.Vars(r)["id"]
	request.VoidedBy = actor
	if err := h.validateRequest(&request); err != nil {
		response.BusinessError(w, err)
		return
	}

	result, err := h.payments.VoidPayment(r.Context(), &request)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	response.Success(w, result)
}

// decode reads an optional JSON body into dst. An empty body leaves dst
// untouched.
func (h *FeeLedgerHandler) decode(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	if r.Body == nil {
		return true
	}
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		response.BadRequest(w, "Invalid request body", err)
		return false
	}
	return true
}

func (h *FeeLedgerHandler) fail(w http.ResponseWriter, r *http.Request, err error) {
	if customError.KindOf(err) == customError.KindInternal || customError.KindOf(err) == customError.KindConsistency {
		h.logger.Error("request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
	}
	response.BusinessError(w, err)
}

func requireActor(w http.ResponseWriter, r *http.Request) (string, bool) {
	actor := r.Header.Get(userIDHeader)
	if actor == "" {
		response.Unauthorized(w, "X-User-ID header is required")
		return "", false
	}
	return actor, true
}
