/**
 * @description
 * Enrollment records and the payment attempts that back them.
 */
package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Enrollment grants a student access to a course.
type Enrollment struct {
	ID               int64      `json:"id"`
	StudentID        int64      `json:"studentId"`
	CourseID         int64      `json:"courseId"`
	EnrolledAt       time.Time  `json:"enrolledAt"`
	PaymentAttemptID *uuid.UUID `json:"paymentAttemptId,omitempty"`
}

// AttemptStatus tracks a payment attempt through settlement.
type AttemptStatus string

const (
	// AttemptPending is written before the bank is called.
	AttemptPending AttemptStatus = "pending"
	// AttemptCharged means the bank moved the money but no enrollment exists yet.
	AttemptCharged AttemptStatus = "charged"
	// AttemptCompleted means the enrollment was written.
	AttemptCompleted AttemptStatus = "completed"
	// AttemptFailed means the bank definitively rejected the transfer.
	AttemptFailed AttemptStatus = "failed"
	// AttemptRefunded means the charge was reversed by reconciliation.
	AttemptRefunded AttemptStatus = "refunded"
)

// ConfirmedFrom lists the statuses an attempt may leave once the bank has
// confirmed its transfer. A confirmed transfer overrides an earlier failure,
// which a concurrent request may have recorded from a stale rejection.
func ConfirmedFrom(bankTransferID string) []AttemptStatus {
	from := []AttemptStatus{AttemptPending, AttemptCharged}
	if bankTransferID != "" {
		from = append(from, AttemptFailed)
	}
	return from
}

// PaymentAttempt is one charge for one (student, course) pair. Its ID is the
// idempotency key sent to the bank.
type PaymentAttempt struct {
	ID                uuid.UUID       `json:"id"`
	StudentID         int64           `json:"studentId"`
	CourseID          int64           `json:"courseId"`
	Amount            decimal.Decimal `json:"amount"`
	Status            AttemptStatus   `json:"status"`
	BankTransferID    *string         `json:"bankTransferId,omitempty"`
	FailureReason     *string         `json:"failureReason,omitempty"`
	ReconcileAttempts int             `json:"reconcileAttempts"`
	CreatedAt         time.Time       `json:"createdAt"`
	UpdatedAt         time.Time       `json:"updatedAt"`
}

// IdempotencyKey is the key used for the bank charge.
func (a PaymentAttempt) IdempotencyKey() string {
	return a.ID.String()
}

// RefundKey is the key used for the compensating reversal.
func (a PaymentAttempt) RefundKey() string {
	return "refund:" + a.ID.String()
}
