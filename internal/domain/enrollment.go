package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	EnrollmentStatusEnrolled  = "enrolled"
	EnrollmentStatusActive    = "active"
	EnrollmentStatusCompleted = "completed"
	EnrollmentStatusCancelled = "cancelled"
)

// Enrollment binds one student to one course.
type Enrollment struct {
	ID         string    `json:"id" db:"id"`
	StudentID  string    `json:"student_id" db:"student_id"`
	CourseID   string    `json:"course_id" db:"course_id"`
	Status     string    `json:"status" db:"status"`
	EnrolledAt time.Time `json:"enrolled_at" db:"enrolled_at"`
}

func (e *Enrollment) IsCancelled() bool {
	return e.Status == EnrollmentStatusCancelled
}

// Course is the read-only catalog view the ledger needs.
type Course struct {
	ID               string              `json:"id" db:"id"`
	Title            string              `json:"title" db:"title"`
	DefaultPrice     decimal.NullDecimal `json:"default_price,omitempty" db:"default_price"`
	Currency         string              `json:"currency,omitempty" db:"currency"`
	BankInstructions string              `json:"bank_instructions,omitempty" db:"bank_instructions"`
}

// Student is the read-only roster view used on vouchers.
type Student struct {
	ID       string `json:"id" db:"id"`
	FullName string `json:"full_name" db:"full_name"`
	Email    string `json:"email,omitempty" db:"email"`
}

// DTOs for requests and responses

type EnrollRequest struct {
	StudentID   string             `json:"student_id" validate:"required,max=64"`
	CourseID    string             `json:"course_id" validate:"required,max=64"`
	InitialPlan *CreatePlanRequest `json:"fee_plan,omitempty"`
	RequestedBy string             `json:"-"`
}

type EnrollResponse struct {
	Enrollment *Enrollment          `json:"enrollment"`
	Plan       *FeePlanWithSchedule `json:"fee_plan,omitempty"`
}
