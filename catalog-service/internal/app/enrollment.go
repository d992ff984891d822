/**
 * @description
 * The enrollment orchestrator. Enroll charges the student through the bank and
 * records the enrollment only after the bank confirms the transfer.
 *
 * Every charge is backed by a durable payment attempt whose ID doubles as the
 * bank idempotency key. An attempt is inserted before the bank is called, so a
 * timed-out call can be re-sent with the same key and the bank applies it at
 * most once. When the bank succeeds but the enrollment write fails, the attempt
 * stays "charged" for the reconciler to finish or refund.
 */
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/mehedi-4/LMS/catalog-service/internal/domain"
	"github.com/mehedi-4/LMS/catalog-service/internal/store"
	"github.com/mehedi-4/LMS/catalog-service/pkg/bankclient"
)

const (
	enrollmentCreatedRouting      = "enrollment.created"
	reconciliationRequiredRouting = "enrollment.reconciliation_required"
	enrollRateLimitScope          = "enroll"
	enrollRateLimitWindow         = time.Minute
)

// EnrollResult describes a successful enrollment.
type EnrollResult struct {
	Enrollment *domain.Enrollment `json:"enrollment"`
	AttemptID  *uuid.UUID         `json:"attemptId,omitempty"`
	Free       bool               `json:"free"`
}

// EnrollmentService coordinates the catalog store and the bank.
type EnrollmentService struct {
	repo           store.Repository
	bank           BankClient
	publisher      EventPublisher
	limiter        RateLimiter
	limitPerMinute int
	logger         *slog.Logger
}

// NewEnrollmentService creates the orchestrator. A nil limiter or a
// non-positive limit disables rate limiting.
func NewEnrollmentService(repo store.Repository, bank BankClient, publisher EventPublisher, limiter RateLimiter, limitPerMinute int, logger *slog.Logger) *EnrollmentService {
	return &EnrollmentService{
		repo:           repo,
		bank:           bank,
		publisher:      publisher,
		limiter:        limiter,
		limitPerMinute: limitPerMinute,
		logger:         logger,
	}
}

// ListEnrollments returns a student's enrollments.
func (s *EnrollmentService) ListEnrollments(ctx context.Context, studentID int64) ([]domain.Enrollment, error) {
	return s.repo.ListEnrollmentsByStudent(ctx, studentID)
}

// Enroll charges the course price and enrolls the student.
func (s *EnrollmentService) Enroll(ctx context.Context, studentID, courseID int64) (*EnrollResult, error) {
	if err := s.checkRateLimit(ctx, studentID); err != nil {
		return nil, err
	}

	if _, err := s.repo.FindEnrollment(ctx, studentID, courseID); err == nil {
		return nil, domain.ErrAlreadyEnrolled
	} else if !errors.Is(err, domain.ErrEnrollmentNotFound) {
		return nil, err
	}

	course, err := s.repo.FindCourseByID(ctx, courseID)
	if err != nil {
		return nil, err
	}
	student, err := s.repo.FindStudentByID(ctx, studentID)
	if err != nil {
		return nil, err
	}
	if !student.Configured() {
		return nil, domain.ErrPaymentNotConfigured
	}

	if course.Price.IsZero() {
		enrollment, err := s.repo.CreateEnrollment(ctx, studentID, courseID)
		if err != nil {
			return nil, err
		}
		s.publishCreated(ctx, enrollment, nil)
		return &EnrollResult{Enrollment: enrollment, Free: true}, nil
	}

	attempt, err := s.openAttempt(ctx, student, course)
	if err != nil {
		return nil, err
	}

	transferID := ""
	if attempt.BankTransferID != nil {
		transferID = *attempt.BankTransferID
	}
	if attempt.Status != domain.AttemptCharged {
		transferID, err = s.charge(ctx, student, attempt)
		if err != nil {
			return nil, err
		}
	}

	enrollment, err := s.repo.CompleteEnrollment(ctx, *attempt, transferID)
	if err != nil {
		return nil, s.requireReconciliation(ctx, attempt, transferID, err)
	}

	s.publishCreated(ctx, enrollment, attempt)
	return &EnrollResult{Enrollment: enrollment, AttemptID: &attempt.ID}, nil
}

func (s *EnrollmentService) checkRateLimit(ctx context.Context, studentID int64) error {
	if s.limiter == nil || s.limitPerMinute <= 0 {
		return nil
	}
	count, retryAfter, err := s.limiter.ConsumeRateLimit(ctx, enrollRateLimitScope, strconv.FormatInt(studentID, 10), s.limitPerMinute, enrollRateLimitWindow)
	if err != nil {
		s.logger.Warn("enroll rate limiter unavailable; allowing request", "student_id", studentID, "error", err)
		return nil
	}
	if count > s.limitPerMinute {
		return fmt.Errorf("%w: retry after %ds", domain.ErrRateLimited, retryAfter)
	}
	return nil
}

// openAttempt returns the attempt to settle: an existing open one, or a new pending one.
func (s *EnrollmentService) openAttempt(ctx context.Context, student *domain.Student, course *domain.Course) (*domain.PaymentAttempt, error) {
	existing, err := s.repo.FindOpenAttempt(ctx, student.ID, course.ID)
	if err == nil {
		s.logger.Info("resuming open payment attempt", "attempt_id", existing.ID, "status", existing.Status, "student_id", student.ID, "course_id", course.ID)
		return existing, nil
	}
	if !errors.Is(err, domain.ErrAttemptNotFound) {
		return nil, err
	}

	attempt := &domain.PaymentAttempt{
		ID:        uuid.New(),
		StudentID: student.ID,
		CourseID:  course.ID,
		Amount:    course.Price,
		Status:    domain.AttemptPending,
	}
	if err := s.repo.CreateAttempt(ctx, attempt); err != nil {
		return nil, err
	}
	return attempt, nil
}

// charge calls the bank once. Definitive rejections close the attempt; an
// unknown outcome leaves it pending so a retry re-sends the same key.
func (s *EnrollmentService) charge(ctx context.Context, student *domain.Student, attempt *domain.PaymentAttempt) (string, error) {
	result, err := s.bank.Charge(ctx, bankclient.ChargeRequest{
		FromAccountNo:  student.BankAccNo,
		SecretKey:      student.BankSecretKey,
		Amount:         attempt.Amount,
		IdempotencyKey: attempt.IdempotencyKey(),
	})
	if err == nil {
		if result.Replayed {
			s.logger.Info("bank replayed earlier transfer", "attempt_id", attempt.ID, "transfer_id", result.TransferID)
		}
		return result.TransferID, nil
	}

	var apiErr *bankclient.APIError
	if !errors.As(err, &apiErr) || errors.Is(err, bankclient.ErrUnavailable) {
		s.logger.Warn("bank charge outcome unknown; attempt kept pending", "attempt_id", attempt.ID, "error", err)
		return "", fmt.Errorf("%w: %v", domain.ErrSettlementUnavailable, err)
	}

	if markErr := s.repo.MarkAttemptFailed(ctx, attempt.ID, apiErr.Message); markErr != nil {
		s.logger.Error("failed to mark payment attempt failed", "attempt_id", attempt.ID, "error", markErr)
	}
	if apiErr.Code == bankclient.CodeInsufficientFunds {
		return "", domain.ErrInsufficientFunds
	}
	return "", fmt.Errorf("%w: %s", domain.ErrPaymentRejected, apiErr.Message)
}

// requireReconciliation records a settled charge whose enrollment could not be
// written. A store outage leaves the attempt pending, which the reconciler
// resolves against the bank; an attempt in any other state cannot be reached
// by the reconciler and yields ErrPaymentUnrecorded.
func (s *EnrollmentService) requireReconciliation(ctx context.Context, attempt *domain.PaymentAttempt, transferID string, cause error) error {
	event := "reconciliation_required"
	result := domain.ErrReconciliationRequired
	if err := s.repo.MarkAttemptCharged(ctx, attempt.ID, transferID); err != nil {
		if errors.Is(err, domain.ErrAttemptNotFound) {
			event = "payment_unrecorded"
			result = domain.ErrPaymentUnrecorded
		}
		s.logger.Error("failed to mark payment attempt charged", "attempt_id", attempt.ID, "error", err)
	}

	s.logger.Error("payment settled but enrollment write failed",
		"event", event,
		"attempt_id", attempt.ID,
		"student_id", attempt.StudentID,
		"course_id", attempt.CourseID,
		"amount", attempt.Amount.StringFixed(2),
		"bank_transfer_id", transferID,
		"error", cause,
	)
	s.publish(ctx, reconciliationRequiredRouting, reconciliationEvent{
		AttemptID:      attempt.ID.String(),
		StudentID:      attempt.StudentID,
		CourseID:       attempt.CourseID,
		Amount:         attempt.Amount.StringFixed(2),
		BankTransferID: transferID,
		Reason:         cause.Error(),
		Timestamp:      time.Now().UTC(),
	})
	return fmt.Errorf("attempt %s: %w", attempt.ID, result)
}

type enrollmentCreatedEvent struct {
	EnrollmentID int64     `json:"enrollment_id"`
	StudentID    int64     `json:"student_id"`
	CourseID     int64     `json:"course_id"`
	AttemptID    string    `json:"attempt_id,omitempty"`
	Amount       string    `json:"amount"`
	Timestamp    time.Time `json:"timestamp"`
}

type reconciliationEvent struct {
	AttemptID      string    `json:"attempt_id"`
	StudentID      int64     `json:"student_id"`
	CourseID       int64     `json:"course_id"`
	Amount         string    `json:"amount"`
	BankTransferID string    `json:"bank_transfer_id,omitempty"`
	Reason         string    `json:"reason"`
	Timestamp      time.Time `json:"timestamp"`
}

func (s *EnrollmentService) publishCreated(ctx context.Context, enrollment *domain.Enrollment, attempt *domain.PaymentAttempt) {
	publishEnrollmentCreated(ctx, s.publisher, s.logger, enrollment, attempt)
}

func (s *EnrollmentService) publish(ctx context.Context, routingKey string, body interface{}) {
	publishEvent(ctx, s.publisher, s.logger, routingKey, body)
}

func publishEnrollmentCreated(ctx context.Context, publisher EventPublisher, logger *slog.Logger, enrollment *domain.Enrollment, attempt *domain.PaymentAttempt) {
	event := enrollmentCreatedEvent{
		EnrollmentID: enrollment.ID,
		StudentID:    enrollment.StudentID,
		CourseID:     enrollment.CourseID,
		Amount:       "0.00",
		Timestamp:    time.Now().UTC(),
	}
	if attempt != nil {
		event.AttemptID = attempt.ID.String()
		event.Amount = attempt.Amount.StringFixed(2)
	}
	publishEvent(ctx, publisher, logger, enrollmentCreatedRouting, event)
}

func publishEvent(ctx context.Context, publisher EventPublisher, logger *slog.Logger, routingKey string, body interface{}) {
	if publisher == nil {
		return
	}
	if err := publisher.Publish(ctx, eventsExchange, routingKey, body); err != nil {
		logger.Warn("failed to publish event", "routing_key", routingKey, "error", err)
	}
}
