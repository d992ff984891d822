package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/mehedi-4/LMS/catalog-service/internal/domain"
	"github.com/shopspring/decimal"
)

const enrollmentColumns = `id, student_id, course_id, enrolled_at, payment_attempt_id`

func scanEnrollment(row pgx.Row) (*domain.Enrollment, error) {
	var e domain.Enrollment
	if err := row.Scan(&e.ID, &e.StudentID, &e.CourseID, &e.EnrolledAt, &e.PaymentAttemptID); err != nil {
		return nil, err
	}
	return &e, nil
}

func (r *PostgresRepository) FindEnrollment(ctx context.Context, studentID, courseID int64) (*domain.Enrollment, error) {
	enrollment, err := scanEnrollment(r.db.QueryRow(ctx,
		`SELECT `+enrollmentColumns+` FROM enrollments WHERE student_id = $1 AND course_id = $2`,
		studentID, courseID,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrEnrollmentNotFound
		}
		return nil, fmt.Errorf("failed to load enrollment: %w", err)
	}
	return enrollment, nil
}

func (r *PostgresRepository) ListEnrollmentsByStudent(ctx context.Context, studentID int64) ([]domain.Enrollment, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+enrollmentColumns+` FROM enrollments WHERE student_id = $1 ORDER BY enrolled_at DESC`,
		studentID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query enrollments: %w", err)
	}
	defer rows.Close()

	enrollments := []domain.Enrollment{}
	for rows.Next() {
		e, err := scanEnrollment(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan enrollment: %w", err)
		}
		enrollments = append(enrollments, *e)
	}
	return enrollments, rows.Err()
}

func (r *PostgresRepository) CreateEnrollment(ctx context.Context, studentID, courseID int64) (*domain.Enrollment, error) {
	enrollment, err := scanEnrollment(r.db.QueryRow(ctx, `
		INSERT INTO enrollments (student_id, course_id)
		VALUES ($1, $2)
		ON CONFLICT (student_id, course_id) DO NOTHING
		RETURNING `+enrollmentColumns,
		studentID, courseID,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrAlreadyEnrolled
		}
		return nil, fmt.Errorf("failed to create enrollment: %w", err)
	}
	return enrollment, nil
}

const attemptColumns = `id, student_id, course_id, amount::text, status, bank_transfer_id, failure_reason, reconcile_attempts, created_at, updated_at`

func scanAttempt(row pgx.Row) (*domain.PaymentAttempt, error) {
	var a domain.PaymentAttempt
	var amount, status string
	if err := row.Scan(&a.ID, &a.StudentID, &a.CourseID, &amount, &status, &a.BankTransferID, &a.FailureReason, &a.ReconcileAttempts, &a.CreatedAt, &a.UpdatedAt); err != nil {
		return nil, err
	}
	parsed, err := decimal.NewFromString(amount)
	if err != nil {
		return nil, fmt.Errorf("failed to parse attempt amount: %w", err)
	}
	a.Amount = parsed
	a.Status = domain.AttemptStatus(status)
	return &a, nil
}

func (r *PostgresRepository) FindOpenAttempt(ctx context.Context, studentID, courseID int64) (*domain.PaymentAttempt, error) {
	attempt, err := scanAttempt(r.db.QueryRow(ctx, `
		SELECT `+attemptColumns+`
		FROM payment_attempts
		WHERE student_id = $1 AND course_id = $2 AND status IN ('pending', 'charged')
	`, studentID, courseID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrAttemptNotFound
		}
		return nil, fmt.Errorf("failed to load open attempt: %w", err)
	}
	return attempt, nil
}

func (r *PostgresRepository) CreateAttempt(ctx context.Context, attempt *domain.PaymentAttempt) error {
	err := r.db.QueryRow(ctx, `
		INSERT INTO payment_attempts (id, student_id, course_id, amount, status)
		VALUES ($1, $2, $3, $4::numeric, $5)
		RETURNING created_at, updated_at
	`, attempt.ID, attempt.StudentID, attempt.CourseID, attempt.Amount.StringFixed(2), string(attempt.Status)).Scan(&attempt.CreatedAt, &attempt.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrEnrollmentInProgress
		}
		return fmt.Errorf("failed to create payment attempt: %w", err)
	}
	return nil
}

type execer interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
}

// transitionAttempt moves an attempt to status when it is currently in one of
// from. Nil bankTransferID or reason leave the stored value untouched.
func transitionAttempt(ctx context.Context, q execer, id uuid.UUID, status domain.AttemptStatus, from []domain.AttemptStatus, bankTransferID, reason *string) error {
	allowed := make([]string, len(from))
	for i, s := range from {
		allowed[i] = string(s)
	}
	tag, err := q.Exec(ctx, `
		UPDATE payment_attempts
		SET status = $2,
		    bank_transfer_id = COALESCE($3, bank_transfer_id),
		    failure_reason = COALESCE($4, failure_reason),
		    updated_at = NOW()
		WHERE id = $1 AND status = ANY($5::text[])
	`, id, string(status), bankTransferID, reason, allowed)
	if err != nil {
		return fmt.Errorf("failed to mark attempt %s %s: %w", id, status, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("attempt %s not in %v: %w", id, from, domain.ErrAttemptNotFound)
	}
	return nil
}

func (r *PostgresRepository) MarkAttemptCharged(ctx context.Context, id uuid.UUID, bankTransferID string) error {
	return transitionAttempt(ctx, r.db, id, domain.AttemptCharged,
		domain.ConfirmedFrom(bankTransferID), optional(bankTransferID), nil)
}

func (r *PostgresRepository) MarkAttemptFailed(ctx context.Context, id uuid.UUID, reason string) error {
	return transitionAttempt(ctx, r.db, id, domain.AttemptFailed,
		[]domain.AttemptStatus{domain.AttemptPending}, nil, optional(reason))
}

func (r *PostgresRepository) MarkAttemptRefunded(ctx context.Context, id uuid.UUID, reason string) error {
	return transitionAttempt(ctx, r.db, id, domain.AttemptRefunded,
		[]domain.AttemptStatus{domain.AttemptCharged}, nil, optional(reason))
}

func (r *PostgresRepository) CompleteEnrollment(ctx context.Context, attempt domain.PaymentAttempt, bankTransferID string) (*domain.Enrollment, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin enrollment transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	enrollment, err := scanEnrollment(tx.QueryRow(ctx, `
		INSERT INTO enrollments (student_id, course_id, payment_attempt_id)
		VALUES ($1, $2, $3)
		ON CONFLICT (student_id, course_id) DO NOTHING
		RETURNING `+enrollmentColumns,
		attempt.StudentID, attempt.CourseID, attempt.ID,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		enrollment, err = scanEnrollment(tx.QueryRow(ctx,
			`SELECT `+enrollmentColumns+` FROM enrollments WHERE student_id = $1 AND course_id = $2`,
			attempt.StudentID, attempt.CourseID,
		))
	}
	if err != nil {
		return nil, fmt.Errorf("failed to write enrollment: %w", err)
	}

	from := domain.ConfirmedFrom(bankTransferID)
	// A concurrent request settling the same attempt may already have written
	// this row and completed the attempt.
	if enrollment.PaymentAttemptID != nil && *enrollment.PaymentAttemptID == attempt.ID {
		from = append(from, domain.AttemptCompleted)
	}
	if err := transitionAttempt(ctx, tx, attempt.ID, domain.AttemptCompleted, from, optional(bankTransferID), nil); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit enrollment: %w", err)
	}
	return enrollment, nil
}

func (r *PostgresRepository) ListReconcilableAttempts(ctx context.Context, staleBefore time.Time, limit int) ([]domain.PaymentAttempt, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.Query(ctx, `
		SELECT `+attemptColumns+`
		FROM payment_attempts
		WHERE status = 'charged'
		   OR (status = 'pending' AND updated_at < $1)
		ORDER BY updated_at ASC
		LIMIT $2
	`, staleBefore, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query reconcilable attempts: %w", err)
	}
	defer rows.Close()

	attempts := []domain.PaymentAttempt{}
	for rows.Next() {
		a, err := scanAttempt(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan attempt: %w", err)
		}
		attempts = append(attempts, *a)
	}
	return attempts, rows.Err()
}

func (r *PostgresRepository) IncrementReconcileAttempts(ctx context.Context, id uuid.UUID) (int, error) {
	var count int
	err := r.db.QueryRow(ctx, `
		UPDATE payment_attempts
		SET reconcile_attempts = reconcile_attempts + 1, updated_at = NOW()
		WHERE id = $1
		RETURNING reconcile_attempts
	`, id).Scan(&count)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, domain.ErrAttemptNotFound
		}
		return 0, fmt.Errorf("failed to increment reconcile attempts: %w", err)
	}
	return count, nil
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
