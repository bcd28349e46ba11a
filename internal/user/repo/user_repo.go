package repo

import (
	"context"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/ovaphlow/pitchfork/service-library-go/internal/user/entity"
)

// ErrDuplicateEmail is returned by Create when the email is already registered.
var ErrDuplicateEmail = errors.New("duplicate email")

// uniqueViolation is the Postgres SQLSTATE for unique_violation.
const uniqueViolation = "23505"

const userColumns = `id, email, password_hash, name, is_active, is_staff, is_librarian, is_superuser, created_at, updated_at`

// UserRepo provides data access for users table using sqlx.
type UserRepo struct {
	db *sqlx.DB
}

func NewUserRepo(db *sqlx.DB) *UserRepo { return &UserRepo{db: db} }

// Create inserts a new user row and fills in ID and timestamps.
func (r *UserRepo) Create(ctx context.Context, u *entity.User) (int64, error) {
	const q = `INSERT INTO users (email, password_hash, name, is_active, is_staff, is_librarian, is_superuser)
		VALUES (:email, :password_hash, :name, :is_active, :is_staff, :is_librarian, :is_superuser)
		RETURNING id, created_at, updated_at`
	rows, err := r.db.NamedQueryContext(ctx, q, u)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return 0, ErrDuplicateEmail
		}
		return 0, fmt.Errorf("insert user: %w", err)
	}
	defer rows.Close()
	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return 0, fmt.Errorf("insert user: %w", err)
		}
		return 0, errors.New("insert user: no id returned")
	}
	if err := rows.Scan(&u.ID, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return 0, fmt.Errorf("scan user id: %w", err)
	}
	return u.ID, nil
}

// GetByEmail returns a user matched by exact (already normalized) email or sql.ErrNoRows.
func (r *UserRepo) GetByEmail(ctx context.Context, email string) (*entity.User, error) {
	const q = `SELECT ` + userColumns + ` FROM users WHERE email=$1`
	var row entity.User
	if err := r.db.GetContext(ctx, &row, q, email); err != nil {
		return nil, err
	}
	return &row, nil
}

// GetByID fetches a full user row or sql.ErrNoRows.
func (r *UserRepo) GetByID(ctx context.Context, id int64) (*entity.User, error) {
	const q = `SELECT ` + userColumns + ` FROM users WHERE id=$1`
	var row entity.User
	if err := r.db.GetContext(ctx, &row, q, id); err != nil {
		return nil, err
	}
	return &row, nil
}

// SetPrivileges overwrites the role flags of a user.
func (r *UserRepo) SetPrivileges(ctx context.Context, id int64, p entity.Privileges) error {
	const q = `UPDATE users SET is_staff=$2, is_librarian=$3, is_superuser=$4, updated_at=NOW() WHERE id=$1`
	_, err := r.db.ExecContext(ctx, q, id, p.IsStaff, p.IsLibrarian, p.IsSuperuser)
	return err
}

// UpdatePassword replaces the stored password hash.
func (r *UserRepo) UpdatePassword(ctx context.Context, id int64, hash string) error {
	const q = `UPDATE users SET password_hash=$2, updated_at=NOW() WHERE id=$1`
	_, err := r.db.ExecContext(ctx, q, id, hash)
	return err
}
