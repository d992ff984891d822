package app

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mehedi-4/LMS/catalog-service/internal/domain"
	"github.com/mehedi-4/LMS/catalog-service/internal/store"
	"github.com/mehedi-4/LMS/catalog-service/pkg/bankclient"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// memRepo is an in-memory catalog store.
type memRepo struct {
	store.Repository

	mu          sync.Mutex
	students    map[int64]*domain.Student
	instructors map[int64]*domain.Instructor
	courses     map[int64]*domain.Course
	enrollments []domain.Enrollment
	attempts    map[uuid.UUID]*domain.PaymentAttempt
	nextID      int64

	completeErr error
	createErr   error
}

func newMemRepo() *memRepo {
	return &memRepo{
		students:    map[int64]*domain.Student{},
		instructors: map[int64]*domain.Instructor{},
		courses:     map[int64]*domain.Course{},
		attempts:    map[uuid.UUID]*domain.PaymentAttempt{},
	}
}

func (m *memRepo) id() int64 {
	m.nextID++
	return m.nextID
}

func (m *memRepo) addStudent(username string, profile domain.PaymentProfile) *domain.Student {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := &domain.Student{ID: m.id(), Username: username, PaymentProfile: profile}
	m.students[s.ID] = s
	return s
}

func (m *memRepo) addInstructor(username string, profile domain.PaymentProfile) *domain.Instructor {
	m.mu.Lock()
	defer m.mu.Unlock()
	i := &domain.Instructor{ID: m.id(), Username: username, PaymentProfile: profile}
	m.instructors[i.ID] = i
	return i
}

func (m *memRepo) addCourse(price string) *domain.Course {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := &domain.Course{ID: m.id(), Title: "course", Price: decimal.RequireFromString(price)}
	m.courses[c.ID] = c
	return c
}

func (m *memRepo) attemptsFor(studentID, courseID int64) []domain.PaymentAttempt {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []domain.PaymentAttempt{}
	for _, a := range m.attempts {
		if a.StudentID == studentID && a.CourseID == courseID {
			out = append(out, *a)
		}
	}
	return out
}

func (m *memRepo) enrollmentCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.enrollments)
}

func (m *memRepo) CreateStudent(_ context.Context, username, hash string) (*domain.Student, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.students {
		if s.Username == username {
			return nil, domain.ErrUsernameTaken
		}
	}
	s := &domain.Student{ID: m.id(), Username: username, PasswordHash: hash}
	m.students[s.ID] = s
	return s, nil
}

func (m *memRepo) FindStudentByUsername(_ context.Context, username string) (*domain.Student, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.students {
		if s.Username == username {
			cp := *s
			return &cp, nil
		}
	}
	return nil, domain.ErrStudentNotFound
}

func (m *memRepo) FindStudentByID(_ context.Context, id int64) (*domain.Student, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.students[id]
	if !ok {
		return nil, domain.ErrStudentNotFound
	}
	cp := *s
	return &cp, nil
}

func (m *memRepo) UpdateStudentPaymentProfile(_ context.Context, id int64, accNo, secret string) (*domain.Student, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.students[id]
	if !ok {
		return nil, domain.ErrStudentNotFound
	}
	s.PaymentProfile = domain.PaymentProfile{Setup: true, BankAccNo: accNo, BankSecretKey: secret}
	cp := *s
	return &cp, nil
}

func (m *memRepo) CreateInstructor(_ context.Context, username, hash string) (*domain.Instructor, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, i := range m.instructors {
		if i.Username == username {
			return nil, domain.ErrUsernameTaken
		}
	}
	i := &domain.Instructor{ID: m.id(), Username: username, PasswordHash: hash}
	m.instructors[i.ID] = i
	return i, nil
}

func (m *memRepo) FindInstructorByUsername(_ context.Context, username string) (*domain.Instructor, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, i := range m.instructors {
		if i.Username == username {
			cp := *i
			return &cp, nil
		}
	}
	return nil, domain.ErrInstructorNotFound
}

func (m *memRepo) FindInstructorByID(_ context.Context, id int64) (*domain.Instructor, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	i, ok := m.instructors[id]
	if !ok {
		return nil, domain.ErrInstructorNotFound
	}
	cp := *i
	return &cp, nil
}

func (m *memRepo) CreateCourse(_ context.Context, instructorID int64, input domain.NewCourse) (*domain.Course, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := &domain.Course{ID: m.id(), Title: input.Title, Price: input.Price, InstructorID: instructorID}
	for n, l := range input.Lectures {
		c.Lectures = append(c.Lectures, domain.Lecture{ID: m.id(), CourseID: c.ID, LectureNumber: n + 1, Title: l.Title, VideoPath: l.VideoPath})
	}
	m.courses[c.ID] = c
	return c, nil
}

func (m *memRepo) FindCourseByID(_ context.Context, id int64) (*domain.Course, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.courses[id]
	if !ok {
		return nil, domain.ErrCourseNotFound
	}
	cp := *c
	return &cp, nil
}

func (m *memRepo) FindEnrollment(_ context.Context, studentID, courseID int64) (*domain.Enrollment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.enrollments {
		if e.StudentID == studentID && e.CourseID == courseID {
			cp := e
			return &cp, nil
		}
	}
	return nil, domain.ErrEnrollmentNotFound
}

func (m *memRepo) ListEnrollmentsByStudent(_ context.Context, studentID int64) ([]domain.Enrollment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []domain.Enrollment{}
	for _, e := range m.enrollments {
		if e.StudentID == studentID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *memRepo) insertEnrollmentLocked(studentID, courseID int64, attemptID *uuid.UUID) *domain.Enrollment {
	for _, e := range m.enrollments {
		if e.StudentID == studentID && e.CourseID == courseID {
			cp := e
			return &cp
		}
	}
	e := domain.Enrollment{ID: m.id(), StudentID: studentID, CourseID: courseID, EnrolledAt: time.Now(), PaymentAttemptID: attemptID}
	m.enrollments = append(m.enrollments, e)
	return &e
}

func (m *memRepo) CreateEnrollment(_ context.Context, studentID, courseID int64) (*domain.Enrollment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.enrollments {
		if e.StudentID == studentID && e.CourseID == courseID {
			return nil, domain.ErrAlreadyEnrolled
		}
	}
	return m.insertEnrollmentLocked(studentID, courseID, nil), nil
}

func (m *memRepo) FindOpenAttempt(_ context.Context, studentID, courseID int64) (*domain.PaymentAttempt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.attempts {
		if a.StudentID == studentID && a.CourseID == courseID && (a.Status == domain.AttemptPending || a.Status == domain.AttemptCharged) {
			cp := *a
			return &cp, nil
		}
	}
	return nil, domain.ErrAttemptNotFound
}

func (m *memRepo) CreateAttempt(_ context.Context, attempt *domain.PaymentAttempt) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return m.createErr
	}
	for _, a := range m.attempts {
		if a.StudentID == attempt.StudentID && a.CourseID == attempt.CourseID && (a.Status == domain.AttemptPending || a.Status == domain.AttemptCharged) {
			return domain.ErrEnrollmentInProgress
		}
	}
	attempt.CreatedAt = time.Now()
	attempt.UpdatedAt = attempt.CreatedAt
	cp := *attempt
	m.attempts[attempt.ID] = &cp
	return nil
}

func (m *memRepo) transition(id uuid.UUID, to domain.AttemptStatus, from []domain.AttemptStatus, transferID, reason string) error {
	a, ok := m.attempts[id]
	if !ok {
		return domain.ErrAttemptNotFound
	}
	allowed := false
	for _, s := range from {
		if a.Status == s {
			allowed = true
		}
	}
	if !allowed {
		return domain.ErrAttemptNotFound
	}
	a.Status = to
	if transferID != "" {
		a.BankTransferID = &transferID
	}
	if reason != "" {
		a.FailureReason = &reason
	}
	return nil
}

func (m *memRepo) MarkAttemptCharged(_ context.Context, id uuid.UUID, transferID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.transition(id, domain.AttemptCharged, domain.ConfirmedFrom(transferID), transferID, "")
}

func (m *memRepo) MarkAttemptFailed(_ context.Context, id uuid.UUID, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.transition(id, domain.AttemptFailed, []domain.AttemptStatus{domain.AttemptPending}, "", reason)
}

func (m *memRepo) MarkAttemptRefunded(_ context.Context, id uuid.UUID, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.transition(id, domain.AttemptRefunded, []domain.AttemptStatus{domain.AttemptCharged}, "", reason)
}

func (m *memRepo) CompleteEnrollment(_ context.Context, attempt domain.PaymentAttempt, transferID string) (*domain.Enrollment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.completeErr != nil {
		return nil, m.completeErr
	}
	if _, ok := m.attempts[attempt.ID]; !ok {
		return nil, domain.ErrAttemptNotFound
	}
	from := domain.ConfirmedFrom(transferID)
	for _, e := range m.enrollments {
		if e.StudentID == attempt.StudentID && e.CourseID == attempt.CourseID && e.PaymentAttemptID != nil && *e.PaymentAttemptID == attempt.ID {
			from = append(from, domain.AttemptCompleted)
		}
	}
	if err := m.transition(attempt.ID, domain.AttemptCompleted, from, transferID, ""); err != nil {
		return nil, err
	}
	id := attempt.ID
	return m.insertEnrollmentLocked(attempt.StudentID, attempt.CourseID, &id), nil
}

func (m *memRepo) setAttemptStatus(studentID, courseID int64, status domain.AttemptStatus) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.attempts {
		if a.StudentID == studentID && a.CourseID == courseID {
			a.Status = status
		}
	}
}

func (m *memRepo) ListReconcilableAttempts(_ context.Context, staleBefore time.Time, limit int) ([]domain.PaymentAttempt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []domain.PaymentAttempt{}
	for _, a := range m.attempts {
		if a.Status == domain.AttemptCharged || (a.Status == domain.AttemptPending && a.UpdatedAt.Before(staleBefore)) {
			out = append(out, *a)
		}
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (m *memRepo) IncrementReconcileAttempts(_ context.Context, id uuid.UUID) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.attempts[id]
	if !ok {
		return 0, domain.ErrAttemptNotFound
	}
	a.ReconcileAttempts++
	return a.ReconcileAttempts, nil
}

// mockBank is a testify mock of the settlement client.
type mockBank struct {
	mock.Mock
}

func (m *mockBank) Charge(ctx context.Context, req bankclient.ChargeRequest) (*bankclient.TransferResult, error) {
	args := m.Called(ctx, req)
	res, _ := args.Get(0).(*bankclient.TransferResult)
	return res, args.Error(1)
}

func (m *mockBank) Payout(ctx context.Context, req bankclient.PayoutRequest) (*bankclient.TransferResult, error) {
	args := m.Called(ctx, req)
	res, _ := args.Get(0).(*bankclient.TransferResult)
	return res, args.Error(1)
}

func (m *mockBank) GetBalance(ctx context.Context, accountNo string) (decimal.Decimal, error) {
	args := m.Called(ctx, accountNo)
	return args.Get(0).(decimal.Decimal), args.Error(1)
}

func (m *mockBank) GetTransfer(ctx context.Context, key string) (*bankclient.TransferRecord, error) {
	args := m.Called(ctx, key)
	rec, _ := args.Get(0).(*bankclient.TransferRecord)
	return rec, args.Error(1)
}

type recordingPublisher struct {
	mu     sync.Mutex
	routes []string
}

func (p *recordingPublisher) Publish(_ context.Context, _ string, routingKey string, _ interface{}) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.routes = append(p.routes, routingKey)
	return nil
}

func (p *recordingPublisher) published(routingKey string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, r := range p.routes {
		if r == routingKey {
			n++
		}
	}
	return n
}

var errWriteFailed = errors.New("database unavailable")

func configuredProfile(accNo string) domain.PaymentProfile {
	return domain.PaymentProfile{Setup: true, BankAccNo: accNo, BankSecretKey: "secret-" + accNo}
}
