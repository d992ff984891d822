package domain

import "errors"

var (
	// ErrInvalidInput is wrapped with a field-specific message by validators.
	ErrInvalidInput = errors.New("invalid input")

	ErrStudentNotFound    = errors.New("student not found")
	ErrInstructorNotFound = errors.New("instructor not found")
	ErrCourseNotFound     = errors.New("course not found")
	ErrEnrollmentNotFound = errors.New("enrollment not found")
	ErrAttemptNotFound    = errors.New("payment attempt not found")

	ErrUsernameTaken        = errors.New("username already exists")
	ErrInvalidLogin         = errors.New("invalid username or password")
	ErrForbidden            = errors.New("forbidden")
	ErrRateLimited          = errors.New("too many requests, try again later")
	ErrAlreadyEnrolled      = errors.New("already enrolled in this course")
	ErrEnrollmentInProgress = errors.New("an enrollment payment for this course is already in progress")

	ErrPaymentNotConfigured  = errors.New("payment information not configured")
	ErrInsufficientFunds     = errors.New("insufficient balance")
	ErrPaymentRejected       = errors.New("payment rejected by bank")
	ErrSettlementUnavailable = errors.New("bank service unavailable, try again later")

	// ErrReconciliationRequired means money moved but the enrollment row could
	// not be written; the reconciliation job will finish or refund it.
	ErrReconciliationRequired = errors.New("payment succeeded, enrollment pending")

	// ErrPaymentUnrecorded means money moved but the attempt could not be
	// moved to a state the reconciliation job picks up.
	ErrPaymentUnrecorded = errors.New("payment succeeded but could not be recorded")
)
