package domain

import "time"

const (
	VoucherCopyBank    = "BANK COPY"
	VoucherCopyStudent = "STUDENT COPY"
)

// VoucherInput is everything the challan generator reads. GeneratedAt and
// Reference are injected by the caller.
type VoucherInput struct {
	Enrollment  *Enrollment
	Plan        *FeePlan
	Detail      *FeeDetail
	Course      *Course
	Student     *Student
	Payments    []*PaymentRecord
	GeneratedAt time.Time
	Reference   string
}

// VoucherCopy is one half of a challan. Both halves carry the same data and
// differ only by CopyLabel.
type VoucherCopy struct {
	CopyLabel        string `json:"copy_label"`
	Reference        string `json:"reference"`
	StudentID        string `json:"student_id"`
	StudentName      string `json:"student_name"`
	EnrollmentID     string `json:"enrollment_id"`
	CourseID         string `json:"course_id"`
	CourseTitle      string `json:"course_title"`
	FeePlanID        string `json:"fee_plan_id"`
	FeeType          string `json:"fee_type"`
	FeeDetailID      string `json:"fee_detail_id"`
	PeriodLabel      string `json:"period_label"`
	DueDate          string `json:"due_date"`
	Amount           string `json:"amount"`
	AmountPaid       string `json:"amount_paid"`
	AmountDue        string `json:"amount_due"`
	Currency         string `json:"currency"`
	Status           string `json:"status"`
	BankInstructions string `json:"bank_instructions,omitempty"`
	GeneratedAt      string `json:"generated_at"`
}

// VoucherDocument is the structured challan for one fee detail.
type VoucherDocument struct {
	Reference   string        `json:"reference"`
	GeneratedAt string        `json:"generated_at"`
	Copies      []VoucherCopy `json:"copies"`
}
