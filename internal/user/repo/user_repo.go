package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/ovaphlow/pitchfork/service-auth-go/internal/user/entity"
)

// uniqueViolation is the postgres SQLSTATE for a unique constraint failure.
const uniqueViolation = "23505"

const userColumns = `id, name, email, password_hash, COALESCE(refresh_token, '') AS refresh_token, created_at, updated_at`

// UserRepo provides data access for the users table using sqlx.
// Schema lives in internal/migrations.
type UserRepo struct {
	db *sqlx.DB
}

var _ Store = (*UserRepo)(nil)

func NewUserRepo(db *sqlx.DB) *UserRepo { return &UserRepo{db: db} }

// Create inserts a new user row with an empty refresh token.
func (r *UserRepo) Create(ctx context.Context, u *entity.User) error {
	const q = `INSERT INTO users (id, name, email, password_hash, refresh_token)
		VALUES ($1, $2, $3, $4, '') RETURNING created_at, updated_at`
	row := r.db.QueryRowxContext(ctx, q, u.ID, u.Name, u.Email, u.PasswordHash)
	if err := row.Scan(&u.CreatedAt, &u.UpdatedAt); err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return ErrDuplicateEmail
		}
		return fmt.Errorf("insert user: %w", err)
	}
	u.RefreshToken = ""
	return nil
}

// GetByID fetches a user row by primary key.
func (r *UserRepo) GetByID(ctx context.Context, id string) (*entity.User, error) {
	return r.getOne(ctx, `SELECT `+userColumns+` FROM users WHERE id=$1`, id)
}

// GetByEmail returns a user matched by email or ErrNotFound.
func (r *UserRepo) GetByEmail(ctx context.Context, email string) (*entity.User, error) {
	return r.getOne(ctx, `SELECT `+userColumns+` FROM users WHERE email=$1`, email)
}

// GetByRefreshToken returns the user currently holding token.
func (r *UserRepo) GetByRefreshToken(ctx context.Context, token string) (*entity.User, error) {
	if token == "" {
		return nil, ErrNotFound
	}
	return r.getOne(ctx, `SELECT `+userColumns+` FROM users WHERE refresh_token=$1`, token)
}

func (r *UserRepo) getOne(ctx context.Context, q string, arg any) (*entity.User, error) {
	var u entity.User
	if err := r.db.GetContext(ctx, &u, q, arg); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("select user: %w", err)
	}
	return &u, nil
}

// SetRefreshToken overwrites the stored refresh token for userID.
func (r *UserRepo) SetRefreshToken(ctx context.Context, userID, token string) error {
	const q = `UPDATE users SET refresh_token=$2, updated_at=NOW() WHERE id=$1`
	res, err := r.db.ExecContext(ctx, q, userID, token)
	if err != nil {
		return fmt.Errorf("update refresh token: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update refresh token: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// ClearRefreshToken empties the refresh token of any user holding token.
func (r *UserRepo) ClearRefreshToken(ctx context.Context, token string) (int64, error) {
	if token == "" {
		return 0, nil
	}
	const q = `UPDATE users SET refresh_token='', updated_at=NOW() WHERE refresh_token=$1`
	res, err := r.db.ExecContext(ctx, q, token)
	if err != nil {
		return 0, fmt.Errorf("clear refresh token: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("clear refresh token: %w", err)
	}
	return n, nil
}
