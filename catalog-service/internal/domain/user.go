/**
 * @description
 * Student and instructor identities plus their bank payment profile.
 */
package domain

import (
	"strings"
	"time"
)

// PaymentProfile links a user to a bank account. The secret is required to
// authorize charges and is never serialized.
type PaymentProfile struct {
	Setup         bool   `json:"paymentSetup"`
	BankAccNo     string `json:"bankAccNo,omitempty"`
	BankSecretKey string `json:"-"`
}

// Configured reports whether the profile can be used for a transfer. A set flag
// with a missing account number or secret counts as not configured.
func (p PaymentProfile) Configured() bool {
	return p.Setup && strings.TrimSpace(p.BankAccNo) != "" && p.BankSecretKey != ""
}

// Student is a learner who pays for courses.
type Student struct {
	ID           int64     `json:"id"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"createdAt"`
	PaymentProfile
}

// Instructor publishes courses and receives payouts.
type Instructor struct {
	ID           int64     `json:"id"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"createdAt"`
	PaymentProfile
}
