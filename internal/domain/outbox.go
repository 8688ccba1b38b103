package domain

import (
	"encoding/json"
	"time"
)

const (
	EventFeePlanAssigned  = "fee_plan.assigned"
	EventFeePlanCancelled = "fee_plan.cancelled"
	EventPaymentRecorded  = "payment.recorded"
	EventPaymentVoided    = "payment.voided"
	EventFeeDueReminder   = "fee_detail.due_reminder"
)

// OutboxEvent is a notification written in the same transaction as the
// financial change and delivered later by the scheduler.
type OutboxEvent struct {
	ID            string          `json:"id" db:"id"`
	EventType     string          `json:"event_type" db:"event_type"`
	AggregateID   string          `json:"aggregate_id" db:"aggregate_id"`
	Payload       json.RawMessage `json:"payload" db:"payload"`
	Attempts      int             `json:"attempts" db:"attempts"`
	LastError     *string         `json:"last_error,omitempty" db:"last_error"`
	CreatedAt     time.Time       `json:"created_at" db:"created_at"`
	NextAttemptAt time.Time       `json:"next_attempt_at" db:"next_attempt_at"`
	DispatchedAt  *time.Time      `json:"dispatched_at,omitempty" db:"dispatched_at"`
	DeadAt        *time.Time      `json:"dead_at,omitempty" db:"dead_at"`
}

// ReminderAggregateID keys a due reminder so a detail is reminded once per due date.
func ReminderAggregateID(detailID string, dueDate time.Time) string {
	return detailID + ":" + dueDate.Format("2006-01-02")
}

type FeePlanAssignedPayload struct {
	EnrollmentID string `json:"enrollment_id"`
	StudentID    string `json:"student_id"`
	CourseID     string `json:"course_id"`
	FeePlanID    string `json:"fee_plan_id"`
	FeeType      string `json:"fee_type"`
	TotalAmount  string `json:"total_amount"`
	Currency     string `json:"currency"`
	DetailCount  int    `json:"detail_count"`
}

type FeePlanCancelledPayload struct {
	EnrollmentID string `json:"enrollment_id"`
	StudentID    string `json:"student_id"`
	FeePlanID    string `json:"fee_plan_id"`
	CancelledBy  string `json:"cancelled_by"`
}

type PaymentPayload struct {
	EnrollmentID string `json:"enrollment_id"`
	StudentID    string `json:"student_id"`
	FeePlanID    string `json:"fee_plan_id"`
	FeeDetailID  string `json:"fee_detail_id"`
	PaymentID    string `json:"payment_id"`
	Amount       string `json:"amount"`
	Currency     string `json:"currency"`
	DetailStatus string `json:"detail_status"`
	PlanStatus   string `json:"plan_status"`
	Actor        string `json:"actor"`
}

type FeeDueReminderPayload struct {
	EnrollmentID string    `json:"enrollment_id"`
	StudentID    string    `json:"student_id"`
	FeeDetailID  string    `json:"fee_detail_id"`
	Label        string    `json:"label"`
	DueDate      time.Time `json:"due_date"`
	DaysLeft     int       `json:"days_left"`
	AmountDue    string    `json:"amount_due"`
	Currency     string    `json:"currency"`
}

// DueReminderCandidate is a pending detail falling due soon, joined with its
// enrollment so the reminder can address the student.
type DueReminderCandidate struct {
	Enrollment *Enrollment
	Plan       *FeePlan
	Detail     *FeeDetail
	Paid       int64
}
