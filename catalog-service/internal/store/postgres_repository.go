/**
 * @description
 * PostgreSQL implementation of the catalog store.
 *
 * @dependencies
 * - github.com/jackc/pgx/v5: PostgreSQL driver and connection pool.
 */
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/mehedi-4/LMS/catalog-service/internal/domain"
)

const uniqueViolation = "23505"

// PostgresRepository implements Repository with pgx.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository creates a new repository.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

type userTable struct {
	name     string
	notFound error
}

var (
	studentsTable    = userTable{name: "students", notFound: domain.ErrStudentNotFound}
	instructorsTable = userTable{name: "instructors", notFound: domain.ErrInstructorNotFound}
)

type userRow struct {
	id           int64
	username     string
	passwordHash string
	profile      domain.PaymentProfile
	createdAt    time.Time
}

func (r *PostgresRepository) insertUser(ctx context.Context, t userTable, username, passwordHash string) (*userRow, error) {
	query := fmt.Sprintf(`
		INSERT INTO %s (username, password_hash)
		VALUES ($1, $2)
		RETURNING id, username, password_hash, payment_setup, COALESCE(bank_acc_no, ''), COALESCE(bank_secret_key, ''), created_at
	`, t.name)
	row, err := scanUser(r.db.QueryRow(ctx, query, username, passwordHash))
	if err != nil {
		if isUniqueViolation(err) {
			return nil, domain.ErrUsernameTaken
		}
		return nil, fmt.Errorf("failed to create %s row: %w", t.name, err)
	}
	return row, nil
}

func (r *PostgresRepository) findUser(ctx context.Context, t userTable, column string, value interface{}) (*userRow, error) {
	query := fmt.Sprintf(`
		SELECT id, username, password_hash, payment_setup, COALESCE(bank_acc_no, ''), COALESCE(bank_secret_key, ''), created_at
		FROM %s WHERE %s = $1
	`, t.name, column)
	row, err := scanUser(r.db.QueryRow(ctx, query, value))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, t.notFound
		}
		return nil, fmt.Errorf("failed to load %s row: %w", t.name, err)
	}
	return row, nil
}

func (r *PostgresRepository) updateProfile(ctx context.Context, t userTable, id int64, bankAccNo, bankSecretKey string) (*userRow, error) {
	query := fmt.Sprintf(`
		UPDATE %s
		SET payment_setup = TRUE, bank_acc_no = $2, bank_secret_key = $3
		WHERE id = $1
		RETURNING id, username, password_hash, payment_setup, COALESCE(bank_acc_no, ''), COALESCE(bank_secret_key, ''), created_at
	`, t.name)
	row, err := scanUser(r.db.QueryRow(ctx, query, id, bankAccNo, bankSecretKey))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, t.notFound
		}
		return nil, fmt.Errorf("failed to update %s payment profile: %w", t.name, err)
	}
	return row, nil
}

func scanUser(row pgx.Row) (*userRow, error) {
	var u userRow
	if err := row.Scan(&u.id, &u.username, &u.passwordHash, &u.profile.Setup, &u.profile.BankAccNo, &u.profile.BankSecretKey, &u.createdAt); err != nil {
		return nil, err
	}
	return &u, nil
}

func (u *userRow) student() *domain.Student {
	return &domain.Student{ID: u.id, Username: u.username, PasswordHash: u.passwordHash, CreatedAt: u.createdAt, PaymentProfile: u.profile}
}

func (u *userRow) instructor() *domain.Instructor {
	return &domain.Instructor{ID: u.id, Username: u.username, PasswordHash: u.passwordHash, CreatedAt: u.createdAt, PaymentProfile: u.profile}
}

func (r *PostgresRepository) CreateStudent(ctx context.Context, username, passwordHash string) (*domain.Student, error) {
	row, err := r.insertUser(ctx, studentsTable, username, passwordHash)
	if err != nil {
		return nil, err
	}
	return row.student(), nil
}

func (r *PostgresRepository) FindStudentByUsername(ctx context.Context, username string) (*domain.Student, error) {
	row, err := r.findUser(ctx, studentsTable, "username", username)
	if err != nil {
		return nil, err
	}
	return row.student(), nil
}

func (r *PostgresRepository) FindStudentByID(ctx context.Context, id int64) (*domain.Student, error) {
	row, err := r.findUser(ctx, studentsTable, "id", id)
	if err != nil {
		return nil, err
	}
	return row.student(), nil
}

func (r *PostgresRepository) UpdateStudentPaymentProfile(ctx context.Context, id int64, bankAccNo, bankSecretKey string) (*domain.Student, error) {
	row, err := r.updateProfile(ctx, studentsTable, id, bankAccNo, bankSecretKey)
	if err != nil {
		return nil, err
	}
	return row.student(), nil
}

func (r *PostgresRepository) CreateInstructor(ctx context.Context, username, passwordHash string) (*domain.Instructor, error) {
	row, err := r.insertUser(ctx, instructorsTable, username, passwordHash)
	if err != nil {
		return nil, err
	}
	return row.instructor(), nil
}

func (r *PostgresRepository) FindInstructorByUsername(ctx context.Context, username string) (*domain.Instructor, error) {
	row, err := r.findUser(ctx, instructorsTable, "username", username)
	if err != nil {
		return nil, err
	}
	return row.instructor(), nil
}

func (r *PostgresRepository) FindInstructorByID(ctx context.Context, id int64) (*domain.Instructor, error) {
	row, err := r.findUser(ctx, instructorsTable, "id", id)
	if err != nil {
		return nil, err
	}
	return row.instructor(), nil
}

func (r *PostgresRepository) UpdateInstructorPaymentProfile(ctx context.Context, id int64, bankAccNo, bankSecretKey string) (*domain.Instructor, error) {
	row, err := r.updateProfile(ctx, instructorsTable, id, bankAccNo, bankSecretKey)
	if err != nil {
		return nil, err
	}
	return row.instructor(), nil
}
