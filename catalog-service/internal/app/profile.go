package app

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/mehedi-4/LMS/catalog-service/internal/domain"
	"github.com/mehedi-4/LMS/catalog-service/internal/store"
	"github.com/mehedi-4/LMS/catalog-service/pkg/bankclient"
	"github.com/shopspring/decimal"
)

// ProfileService manages payment profiles and balance lookups.
type ProfileService struct {
	users store.UserRepository
	bank  BankClient
}

// NewProfileService creates a new profile service.
func NewProfileService(users store.UserRepository, bank BankClient) *ProfileService {
	return &ProfileService{users: users, bank: bank}
}

func validatePaymentInput(bankAccNo, bankSecretKey string) (string, error) {
	bankAccNo = strings.TrimSpace(bankAccNo)
	if bankAccNo == "" || bankSecretKey == "" {
		return "", fmt.Errorf("%w: bank account number and secret key are required", domain.ErrInvalidInput)
	}
	for _, r := range bankAccNo {
		if r < '0' || r > '9' {
			return "", fmt.Errorf("%w: bank account number must contain digits only", domain.ErrInvalidInput)
		}
	}
	return bankAccNo, nil
}

// SetupStudentPayment stores a student's bank account and secret.
func (s *ProfileService) SetupStudentPayment(ctx context.Context, studentID int64, bankAccNo, bankSecretKey string) (*domain.Student, error) {
	bankAccNo, err := validatePaymentInput(bankAccNo, bankSecretKey)
	if err != nil {
		return nil, err
	}
	return s.users.UpdateStudentPaymentProfile(ctx, studentID, bankAccNo, bankSecretKey)
}

// SetupInstructorPayment stores an instructor's bank account and secret.
func (s *ProfileService) SetupInstructorPayment(ctx context.Context, instructorID int64, bankAccNo, bankSecretKey string) (*domain.Instructor, error) {
	bankAccNo, err := validatePaymentInput(bankAccNo, bankSecretKey)
	if err != nil {
		return nil, err
	}
	return s.users.UpdateInstructorPaymentProfile(ctx, instructorID, bankAccNo, bankSecretKey)
}

// StudentBalance reads the student's balance from the bank.
func (s *ProfileService) StudentBalance(ctx context.Context, studentID int64) (decimal.Decimal, error) {
	student, err := s.users.FindStudentByID(ctx, studentID)
	if err != nil {
		return decimal.Zero, err
	}
	if !student.Configured() {
		return decimal.Zero, domain.ErrPaymentNotConfigured
	}

	balance, err := s.bank.GetBalance(ctx, student.BankAccNo)
	switch {
	case err == nil:
		return balance, nil
	case errors.Is(err, bankclient.ErrNotFound):
		return decimal.Zero, fmt.Errorf("%w: bank account %s does not exist", domain.ErrInvalidInput, student.BankAccNo)
	case errors.Is(err, bankclient.ErrUnavailable):
		return decimal.Zero, fmt.Errorf("%w: %v", domain.ErrSettlementUnavailable, err)
	default:
		return decimal.Zero, fmt.Errorf("failed to read balance: %w", err)
	}
}
