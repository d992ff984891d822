/**
 * @description
 * Signup and login for students and instructors. Passwords are stored as
 * bcrypt hashes and sessions are stateless HS256 tokens.
 */
package app

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/mehedi-4/LMS/catalog-service/internal/domain"
	"github.com/mehedi-4/LMS/catalog-service/internal/store"
	"golang.org/x/crypto/bcrypt"
)

// StudentSession is returned by student signup and login.
type StudentSession struct {
	Token   string          `json:"token"`
	Student *domain.Student `json:"student"`
}

// InstructorSession is returned by instructor signup and login.
type InstructorSession struct {
	Token      string             `json:"token"`
	Instructor *domain.Instructor `json:"instructor"`
}

// AuthService handles credentials and token issuance.
type AuthService struct {
	users  store.UserRepository
	tokens *TokenIssuer
	cost   int
	dummy  []byte
}

// NewAuthService creates a new auth service.
func NewAuthService(users store.UserRepository, tokens *TokenIssuer, bcryptCost int) *AuthService {
	if bcryptCost < bcrypt.MinCost || bcryptCost > bcrypt.MaxCost {
		bcryptCost = bcrypt.DefaultCost
	}
	dummy, _ := bcrypt.GenerateFromPassword([]byte("catalog-dummy-password"), bcryptCost)
	return &AuthService{users: users, tokens: tokens, cost: bcryptCost, dummy: dummy}
}

func normalizeCredentials(username, password string) (string, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return "", fmt.Errorf("%w: username and password are required", domain.ErrInvalidInput)
	}
	return username, nil
}

func (s *AuthService) hash(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hash), nil
}

// checkPassword compares against the dummy hash when the user does not exist.
func (s *AuthService) checkPassword(hash, password string) bool {
	if hash == "" {
		_ = bcrypt.CompareHashAndPassword(s.dummy, []byte(password))
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// SignupStudent creates a student account and logs it in.
func (s *AuthService) SignupStudent(ctx context.Context, username, password string) (*StudentSession, error) {
	username, err := normalizeCredentials(username, password)
	if err != nil {
		return nil, err
	}
	hash, err := s.hash(password)
	if err != nil {
		return nil, err
	}
	student, err := s.users.CreateStudent(ctx, username, hash)
	if err != nil {
		return nil, err
	}
	token, err := s.tokens.Issue(RoleStudent, student.ID)
	if err != nil {
		return nil, err
	}
	return &StudentSession{Token: token, Student: student}, nil
}

// LoginStudent verifies student credentials.
func (s *AuthService) LoginStudent(ctx context.Context, username, password string) (*StudentSession, error) {
	username, err := normalizeCredentials(username, password)
	if err != nil {
		return nil, err
	}
	student, err := s.users.FindStudentByUsername(ctx, username)
	if err != nil && !errors.Is(err, domain.ErrStudentNotFound) {
		return nil, err
	}
	var hash string
	if student != nil {
		hash = student.PasswordHash
	}
	if !s.checkPassword(hash, password) {
		return nil, domain.ErrInvalidLogin
	}
	token, err := s.tokens.Issue(RoleStudent, student.ID)
	if err != nil {
		return nil, err
	}
	return &StudentSession{Token: token, Student: student}, nil
}

// SignupInstructor creates an instructor account and logs it in.
func (s *AuthService) SignupInstructor(ctx context.Context, username, password string) (*InstructorSession, error) {
	username, err := normalizeCredentials(username, password)
	if err != nil {
		return nil, err
	}
	hash, err := s.hash(password)
	if err != nil {
		return nil, err
	}
	instructor, err := s.users.CreateInstructor(ctx, username, hash)
	if err != nil {
		return nil, err
	}
	token, err := s.tokens.Issue(RoleInstructor, instructor.ID)
	if err != nil {
		return nil, err
	}
	return &InstructorSession{Token: token, Instructor: instructor}, nil
}

// LoginInstructor verifies instructor credentials.
func (s *AuthService) LoginInstructor(ctx context.Context, username, password string) (*InstructorSession, error) {
	username, err := normalizeCredentials(username, password)
	if err != nil {
		return nil, err
	}
	instructor, err := s.users.FindInstructorByUsername(ctx, username)
	if err != nil && !errors.Is(err, domain.ErrInstructorNotFound) {
		return nil, err
	}
	var hash string
	if instructor != nil {
		hash = instructor.PasswordHash
	}
	if !s.checkPassword(hash, password) {
		return nil, domain.ErrInvalidLogin
	}
	token, err := s.tokens.Issue(RoleInstructor, instructor.ID)
	if err != nil {
		return nil, err
	}
	return &InstructorSession{Token: token, Instructor: instructor}, nil
}
