package errors

import (
	"errors"
	"fmt"
)

// Kind groups errors by how the caller should react.
type Kind string

const (
	KindValidation  Kind = "validation"
	KindConflict    Kind = "conflict"
	KindNotFound    Kind = "not_found"
	KindConsistency Kind = "consistency"
	KindInternal    Kind = "internal"
)

// Domain errors
var (
	ErrNotFound             = errors.New("not found")
	ErrCourseNotFound       = errors.New("course not found")
	ErrDuplicateEnrollment  = errors.New("duplicate enrollment")
	ErrAlreadyExists        = errors.New("already exists")
	ErrInvalidAmount        = errors.New("invalid amount")
	ErrInvalidSchedule      = errors.New("invalid schedule")
	ErrUnknownCurrency      = errors.New("unknown currency")
	ErrMissingRequiredField = errors.New("missing required field")
	ErrOverpayment          = errors.New("overpayment")
	ErrCancelledDetail      = errors.New("fee detail is cancelled")
	ErrIdempotencyKeyReused = errors.New("idempotency key reused with different payload")
	ErrScheduleInconsistent = errors.New("schedule does not sum to plan total")
	ErrInvalidState         = errors.New("invalid state transition")
)

// BusinessError represents a business logic error
type BusinessError struct {
	Kind    Kind
	Code    string
	Message string
	Field   string
	Value   string
	Err     error
}

func (e *BusinessError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *BusinessError) Unwrap() error {
	return e.Err
}

// NewBusinessError creates a new business error
func NewBusinessError(kind Kind, code, message string, err error) *BusinessError {
	return &BusinessError{
		Kind:    kind,
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// WithField records the offending field and value.
func (e *BusinessError) WithField(field, value string) *BusinessError {
	e.Field = field
	e.Value = value
	return e
}

// Error codes
const (
	ErrCodeNotFound             = "NOT_FOUND"
	ErrCodeCourseNotFound       = "COURSE_NOT_FOUND"
	ErrCodeDuplicateEnrollment  = "DUPLICATE_ENROLLMENT"
	ErrCodeAlreadyExists        = "ALREADY_EXISTS"
	ErrCodeInvalidAmount        = "INVALID_AMOUNT"
	ErrCodeInvalidSchedule      = "INVALID_SCHEDULE"
	ErrCodeUnknownCurrency      = "UNKNOWN_CURRENCY"
	ErrCodeMissingRequiredField = "MISSING_REQUIRED_FIELD"
	ErrCodeValidation           = "VALIDATION_FAILED"
	ErrCodeOverpayment          = "OVERPAYMENT"
	ErrCodeCancelledDetail      = "CANCELLED_DETAIL"
	ErrCodeIdempotencyKeyReused = "IDEMPOTENCY_KEY_REUSED"
	ErrCodeScheduleInconsistent = "SCHEDULE_INCONSISTENT"
	ErrCodeInvalidState         = "INVALID_STATE"
	ErrCodeDatabaseError        = "DATABASE_ERROR"
	ErrCodeCacheError           = "CACHE_ERROR"
)

// KindOf returns the taxonomy kind of err, or KindInternal for anything unclassified.
func KindOf(err error) Kind {
	var be *BusinessError
	if errors.As(err, &be) {
		return be.Kind
	}
	return KindInternal
}

// As is errors.As for BusinessError.
func As(err error) (*BusinessError, bool) {
	var be *BusinessError
	ok := errors.As(err, &be)
	return be, ok
}

// Wrap common errors with business context

func WrapNotFound(entity, id string) *BusinessError {
	return NewBusinessError(
		KindNotFound,
		ErrCodeNotFound,
		fmt.Sprintf("%s with ID %s not found", entity, id),
		ErrNotFound,
	).WithField(entity+"_id", id)
}

func WrapCourseNotFound(courseID string) *BusinessError {
	return NewBusinessError(
		KindNotFound,
		ErrCodeCourseNotFound,
		fmt.Sprintf("Course with ID %s not found", courseID),
		ErrCourseNotFound,
	).WithField("course_id", courseID)
}

func WrapDuplicateEnrollment(studentID, courseID string) *BusinessError {
	return NewBusinessError(
		KindConflict,
		ErrCodeDuplicateEnrollment,
		fmt.Sprintf("Student %s is already enrolled in course %s", studentID, courseID),
		ErrDuplicateEnrollment,
	).WithField("course_id", courseID)
}

func WrapPlanAlreadyExists(enrollmentID string) *BusinessError {
	return NewBusinessError(
		KindConflict,
		ErrCodeAlreadyExists,
		fmt.Sprintf("Enrollment %s already has an active fee plan", enrollmentID),
		ErrAlreadyExists,
	).WithField("enrollment_id", enrollmentID)
}

func WrapPeriodAlreadyScheduled(planID, period string) *BusinessError {
	return NewBusinessError(
		KindConflict,
		ErrCodeAlreadyExists,
		fmt.Sprintf("Fee plan %s already has a fee detail for %s", planID, period),
		ErrAlreadyExists,
	).WithField("period", period)
}

func WrapInvalidAmount(field, amount, reason string) *BusinessError {
	amount = clip(amount)
	return NewBusinessError(
		KindValidation,
		ErrCodeInvalidAmount,
		fmt.Sprintf("Invalid %s %s: %s", field, amount, reason),
		ErrInvalidAmount,
	).WithField(field, amount)
}

func WrapInvalidSchedule(field, value, reason string) *BusinessError {
	return NewBusinessError(
		KindValidation,
		ErrCodeInvalidSchedule,
		fmt.Sprintf("Invalid schedule (%s=%s): %s", field, value, reason),
		ErrInvalidSchedule,
	).WithField(field, value)
}

func WrapUnknownCurrency(code string) *BusinessError {
	return NewBusinessError(
		KindValidation,
		ErrCodeUnknownCurrency,
		fmt.Sprintf("Currency %q is not supported", code),
		ErrUnknownCurrency,
	).WithField("currency", code)
}

func WrapMissingField(field string) *BusinessError {
	return NewBusinessError(
		KindValidation,
		ErrCodeMissingRequiredField,
		fmt.Sprintf("Field %s is required", field),
		ErrMissingRequiredField,
	).WithField(field, "")
}

func WrapInconsistentReference(field, value, reason string) *BusinessError {
	return NewBusinessError(
		KindValidation,
		ErrCodeMissingRequiredField,
		fmt.Sprintf("Inconsistent %s %s: %s", field, value, reason),
		ErrMissingRequiredField,
	).WithField(field, value)
}

func WrapValidation(field, value, reason string) *BusinessError {
	return NewBusinessError(
		KindValidation,
		ErrCodeValidation,
		reason,
		nil,
	).WithField(field, value)
}

func WrapOverpayment(detailID, attempted, remaining string) *BusinessError {
	return NewBusinessError(
		KindConflict,
		ErrCodeOverpayment,
		fmt.Sprintf("Payment of %s exceeds the remaining balance %s of fee detail %s", attempted, remaining, detailID),
		ErrOverpayment,
	).WithField("amount", attempted)
}

func WrapCancelledDetail(detailID string) *BusinessError {
	return NewBusinessError(
		KindConflict,
		ErrCodeCancelledDetail,
		fmt.Sprintf("Fee detail %s is cancelled and accepts no payments", detailID),
		ErrCancelledDetail,
	).WithField("fee_detail_id", detailID)
}

func WrapIdempotencyKeyReused(key string) *BusinessError {
	return NewBusinessError(
		KindConflict,
		ErrCodeIdempotencyKeyReused,
		fmt.Sprintf("Idempotency key %s was already used for a different payment", key),
		ErrIdempotencyKeyReused,
	).WithField("idempotency_key", key)
}

func WrapScheduleInconsistent(scheduled, total string) *BusinessError {
	return NewBusinessError(
		KindConsistency,
		ErrCodeScheduleInconsistent,
		fmt.Sprintf("Scheduled amount %s does not equal plan total %s", scheduled, total),
		ErrScheduleInconsistent,
	).WithField("total_amount", total)
}

func WrapInvalidState(entity, id, status, action string) *BusinessError {
	return NewBusinessError(
		KindConflict,
		ErrCodeInvalidState,
		fmt.Sprintf("Cannot %s %s %s in status %s", action, entity, id, status),
		ErrInvalidState,
	).WithField("status", status)
}

func WrapDatabaseError(err error) *BusinessError {
	return NewBusinessError(
		KindInternal,
		ErrCodeDatabaseError,
		"database operation failed",
		err,
	)
}

func WrapCacheError(err error) *BusinessError {
	return NewBusinessError(
		KindInternal,
		ErrCodeCacheError,
		"Cache operation failed",
		err,
	)
}

// clip shortens echoed user input.
func clip(s string) string {
	const max = 64
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
