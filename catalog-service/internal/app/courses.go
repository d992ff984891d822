package app

import (
	"context"

	"github.com/mehedi-4/LMS/catalog-service/internal/domain"
	"github.com/mehedi-4/LMS/catalog-service/internal/store"
)

// CourseService publishes and lists courses.
type CourseService struct {
	users   store.UserRepository
	courses store.CourseRepository
}

// NewCourseService creates a new course service.
func NewCourseService(users store.UserRepository, courses store.CourseRepository) *CourseService {
	return &CourseService{users: users, courses: courses}
}

// Upload validates and stores a new course for an instructor.
func (s *CourseService) Upload(ctx context.Context, instructorID int64, course domain.NewCourse) (*domain.Course, error) {
	if err := course.Validate(); err != nil {
		return nil, err
	}
	if _, err := s.users.FindInstructorByID(ctx, instructorID); err != nil {
		return nil, err
	}
	return s.courses.CreateCourse(ctx, instructorID, course)
}

func (s *CourseService) Get(ctx context.Context, courseID int64) (*domain.Course, error) {
	return s.courses.FindCourseByID(ctx, courseID)
}

func (s *CourseService) List(ctx context.Context) ([]domain.Course, error) {
	return s.courses.ListCourses(ctx)
}

func (s *CourseService) ListByInstructor(ctx context.Context, instructorID int64) ([]domain.Course, error) {
	return s.courses.ListCoursesByInstructor(ctx, instructorID)
}
