/**
 * @description
 * Reconciliation of payment attempts left open by interrupted enrollments.
 *
 * Stale "pending" attempts are resolved against the bank: if the bank holds a
 * transfer for the attempt key the money moved and the attempt is treated as
 * charged, otherwise it never moved and the attempt fails. "charged" attempts
 * retry the enrollment write and, after the configured number of failures, are
 * refunded through the platform payout endpoint.
 */
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/mehedi-4/LMS/catalog-service/internal/domain"
	"github.com/mehedi-4/LMS/catalog-service/internal/store"
	"github.com/mehedi-4/LMS/catalog-service/pkg/bankclient"
)

const enrollmentRefundedRouting = "enrollment.refunded"

// ReconcileSummary counts what one run did.
type ReconcileSummary struct {
	Scanned   int `json:"scanned"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
	Refunded  int `json:"refunded"`
	Retrying  int `json:"retrying"`
	Errors    int `json:"errors"`
}

// ReconcilerConfig tunes the reconciler.
type ReconcilerConfig struct {
	StaleAfter  time.Duration
	MaxAttempts int
	BatchSize   int
}

// Reconciler resolves open payment attempts.
type Reconciler struct {
	repo      store.Repository
	bank      BankClient
	publisher EventPublisher
	logger    *slog.Logger
	cfg       ReconcilerConfig
	now       func() time.Time
}

// NewReconciler creates a reconciler. Zero config values fall back to defaults.
func NewReconciler(repo store.Repository, bank BankClient, publisher EventPublisher, logger *slog.Logger, cfg ReconcilerConfig) *Reconciler {
	if cfg.StaleAfter <= 0 {
		cfg.StaleAfter = 15 * time.Minute
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 5
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	return &Reconciler{repo: repo, bank: bank, publisher: publisher, logger: logger, cfg: cfg, now: time.Now}
}

// Run processes one batch of reconcilable attempts.
func (r *Reconciler) Run(ctx context.Context) (ReconcileSummary, error) {
	var summary ReconcileSummary

	attempts, err := r.repo.ListReconcilableAttempts(ctx, r.now().Add(-r.cfg.StaleAfter), r.cfg.BatchSize)
	if err != nil {
		return summary, err
	}
	summary.Scanned = len(attempts)

	for i := range attempts {
		attempt := attempts[i]
		if err := r.reconcile(ctx, &attempt, &summary); err != nil {
			summary.Errors++
			r.logger.Error("failed to reconcile payment attempt", "attempt_id", attempt.ID, "status", attempt.Status, "error", err)
		}
	}

	if summary.Scanned > 0 {
		r.logger.Info("reconciliation run finished",
			"scanned", summary.Scanned,
			"completed", summary.Completed,
			"failed", summary.Failed,
			"refunded", summary.Refunded,
			"retrying", summary.Retrying,
			"errors", summary.Errors,
		)
	}
	return summary, nil
}

// RunScheduled is the cron entry point.
func (r *Reconciler) RunScheduled() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	if _, err := r.Run(ctx); err != nil {
		r.logger.Error("reconciliation run failed", "error", err)
	}
}

func (r *Reconciler) reconcile(ctx context.Context, attempt *domain.PaymentAttempt, summary *ReconcileSummary) error {
	if attempt.Status == domain.AttemptPending {
		resolved, err := r.resolvePending(ctx, attempt)
		if err != nil {
			return err
		}
		if !resolved {
			summary.Failed++
			return nil
		}
	}
	return r.settleCharged(ctx, attempt, summary)
}

// resolvePending reports whether the bank applied the attempt's transfer. When
// it did, the attempt is moved to charged in place.
func (r *Reconciler) resolvePending(ctx context.Context, attempt *domain.PaymentAttempt) (bool, error) {
	record, err := r.bank.GetTransfer(ctx, attempt.IdempotencyKey())
	if errors.Is(err, bankclient.ErrNotFound) {
		if err := r.repo.MarkAttemptFailed(ctx, attempt.ID, "no bank transfer recorded for attempt"); err != nil {
			return false, err
		}
		r.logger.Info("stale payment attempt closed; bank never applied it", "attempt_id", attempt.ID)
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("bank lookup failed: %w", err)
	}

	if err := r.repo.MarkAttemptCharged(ctx, attempt.ID, record.TransferID); err != nil {
		return false, err
	}
	attempt.Status = domain.AttemptCharged
	attempt.BankTransferID = &record.TransferID
	return true, nil
}

func (r *Reconciler) settleCharged(ctx context.Context, attempt *domain.PaymentAttempt, summary *ReconcileSummary) error {
	transferID := ""
	if attempt.BankTransferID != nil {
		transferID = *attempt.BankTransferID
	}

	enrollment, writeErr := r.repo.CompleteEnrollment(ctx, *attempt, transferID)
	if writeErr == nil {
		summary.Completed++
		r.logger.Info("reconciled enrollment", "attempt_id", attempt.ID, "enrollment_id", enrollment.ID)
		publishEnrollmentCreated(ctx, r.publisher, r.logger, enrollment, attempt)
		return nil
	}

	tries, err := r.repo.IncrementReconcileAttempts(ctx, attempt.ID)
	if err != nil {
		return err
	}
	if tries < r.cfg.MaxAttempts {
		summary.Retrying++
		r.logger.Warn("enrollment write still failing", "event", "reconciliation_required", "attempt_id", attempt.ID, "tries", tries, "error", writeErr)
		return nil
	}

	if err := r.refund(ctx, attempt); err != nil {
		return err
	}
	summary.Refunded++
	return nil
}

func (r *Reconciler) refund(ctx context.Context, attempt *domain.PaymentAttempt) error {
	student, err := r.repo.FindStudentByID(ctx, attempt.StudentID)
	if err != nil {
		return fmt.Errorf("refund lookup: %w", err)
	}
	if student.BankAccNo == "" {
		return fmt.Errorf("refund for attempt %s: %w", attempt.ID, domain.ErrPaymentNotConfigured)
	}

	result, err := r.bank.Payout(ctx, bankclient.PayoutRequest{
		ToAccountNo:    student.BankAccNo,
		Amount:         attempt.Amount,
		IdempotencyKey: attempt.RefundKey(),
	})
	if err != nil {
		return fmt.Errorf("refund transfer: %w", mapBankTransferError(err))
	}

	if err := r.repo.MarkAttemptRefunded(ctx, attempt.ID, "enrollment could not be written; charge reversed"); err != nil {
		return err
	}

	r.logger.Warn("payment attempt refunded", "attempt_id", attempt.ID, "refund_transfer_id", result.TransferID, "amount", attempt.Amount.StringFixed(2))
	publishEvent(ctx, r.publisher, r.logger, enrollmentRefundedRouting, map[string]interface{}{
		"attempt_id":         attempt.ID.String(),
		"student_id":         attempt.StudentID,
		"course_id":          attempt.CourseID,
		"amount":             attempt.Amount.StringFixed(2),
		"refund_transfer_id": result.TransferID,
		"timestamp":          time.Now().UTC(),
	})
	return nil
}
