/**
 * @description
 * Contracts for the catalog and identity store. The orchestrator only sees
 * these interfaces; the pgx implementation lives alongside.
 */
package store

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/mehedi-4/LMS/catalog-service/internal/domain"
)

// UserRepository stores students and instructors.
type UserRepository interface {
	CreateStudent(ctx context.Context, username, passwordHash string) (*domain.Student, error)
	FindStudentByUsername(ctx context.Context, username string) (*domain.Student, error)
	FindStudentByID(ctx context.Context, id int64) (*domain.Student, error)
	UpdateStudentPaymentProfile(ctx context.Context, id int64, bankAccNo, bankSecretKey string) (*domain.Student, error)

	CreateInstructor(ctx context.Context, username, passwordHash string) (*domain.Instructor, error)
	FindInstructorByUsername(ctx context.Context, username string) (*domain.Instructor, error)
	FindInstructorByID(ctx context.Context, id int64) (*domain.Instructor, error)
	UpdateInstructorPaymentProfile(ctx context.Context, id int64, bankAccNo, bankSecretKey string) (*domain.Instructor, error)
}

// CourseRepository stores courses with their lectures and materials.
type CourseRepository interface {
	CreateCourse(ctx context.Context, instructorID int64, course domain.NewCourse) (*domain.Course, error)
	FindCourseByID(ctx context.Context, id int64) (*domain.Course, error)
	ListCourses(ctx context.Context) ([]domain.Course, error)
	ListCoursesByInstructor(ctx context.Context, instructorID int64) ([]domain.Course, error)
}

// EnrollmentRepository stores enrollments and the payment attempts behind them.
type EnrollmentRepository interface {
	FindEnrollment(ctx context.Context, studentID, courseID int64) (*domain.Enrollment, error)
	ListEnrollmentsByStudent(ctx context.Context, studentID int64) ([]domain.Enrollment, error)
	// CreateEnrollment inserts a free enrollment; an existing row yields ErrAlreadyEnrolled.
	CreateEnrollment(ctx context.Context, studentID, courseID int64) (*domain.Enrollment, error)

	FindOpenAttempt(ctx context.Context, studentID, courseID int64) (*domain.PaymentAttempt, error)
	// CreateAttempt inserts a pending attempt; a concurrent open attempt yields ErrEnrollmentInProgress.
	CreateAttempt(ctx context.Context, attempt *domain.PaymentAttempt) error
	MarkAttemptCharged(ctx context.Context, id uuid.UUID, bankTransferID string) error
	MarkAttemptFailed(ctx context.Context, id uuid.UUID, reason string) error
	MarkAttemptRefunded(ctx context.Context, id uuid.UUID, reason string) error
	// CompleteEnrollment writes the enrollment and marks the attempt completed
	// in one transaction.
	CompleteEnrollment(ctx context.Context, attempt domain.PaymentAttempt, bankTransferID string) (*domain.Enrollment, error)

	ListReconcilableAttempts(ctx context.Context, staleBefore time.Time, limit int) ([]domain.PaymentAttempt, error)
	IncrementReconcileAttempts(ctx context.Context, id uuid.UUID) (int, error)
}

// Repository is the full catalog store.
type Repository interface {
	UserRepository
	CourseRepository
	EnrollmentRepository
}
