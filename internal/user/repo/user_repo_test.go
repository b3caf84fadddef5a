package repo

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ovaphlow/pitchfork/service-auth-go/internal/user/entity"
)

func newRepoWithMock(t *testing.T) (*UserRepo, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return NewUserRepo(sqlx.NewDb(db, "postgres")), mock
}

var userCols = []string{"id", "name", "email", "password_hash", "refresh_token", "created_at", "updated_at"}

func TestUserRepo_Create(t *testing.T) {
	r, mock := newRepoWithMock(t)
	now := time.Now().UTC()

	mock.ExpectQuery(`(?s)^INSERT\s+INTO\s+users\s*\(id,\s*name,\s*email,\s*password_hash,\s*refresh_token\)`).
		WithArgs("u-1", "A", "a@x.com", "hash").
		WillReturnRows(sqlmock.NewRows([]string{"created_at", "updated_at"}).AddRow(now, now))

	u := &entity.User{ID: "u-1", Name: "A", Email: "a@x.com", PasswordHash: "hash"}
	require.NoError(t, r.Create(context.Background(), u))
	assert.Equal(t, now, u.CreatedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUserRepo_Create_UniqueViolation(t *testing.T) {
	r, mock := newRepoWithMock(t)

	mock.ExpectQuery(`INSERT\s+INTO\s+users`).
		WillReturnError(&pq.Error{Code: uniqueViolation})

	err := r.Create(context.Background(), &entity.User{ID: "u-1", Email: "a@x.com"})
	assert.ErrorIs(t, err, ErrDuplicateEmail)
}

func TestUserRepo_Create_DBError(t *testing.T) {
	r, mock := newRepoWithMock(t)

	mock.ExpectQuery(`INSERT\s+INTO\s+users`).WillReturnError(errors.New("db down"))

	err := r.Create(context.Background(), &entity.User{ID: "u-1", Email: "a@x.com"})
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrDuplicateEmail)
	assert.Contains(t, err.Error(), "db down")
}

func TestUserRepo_GetByEmail(t *testing.T) {
	r, mock := newRepoWithMock(t)
	now := time.Now().UTC()

	mock.ExpectQuery(`(?s)^SELECT\s+id,.*FROM\s+users\s+WHERE\s+email=\$1$`).
		WithArgs("a@x.com").
		WillReturnRows(sqlmock.NewRows(userCols).AddRow("u-1", "A", "a@x.com", "hash", "", now, now))

	u, err := r.GetByEmail(context.Background(), "a@x.com")
	require.NoError(t, err)
	assert.Equal(t, "u-1", u.ID)
	assert.Equal(t, "hash", u.PasswordHash)
}

func TestUserRepo_GetByEmail_NotFound(t *testing.T) {
	r, mock := newRepoWithMock(t)

	mock.ExpectQuery(`FROM\s+users\s+WHERE\s+email=\$1`).
		WithArgs("nobody@x.com").
		WillReturnRows(sqlmock.NewRows(userCols))

	_, err := r.GetByEmail(context.Background(), "nobody@x.com")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUserRepo_GetByRefreshToken(t *testing.T) {
	r, mock := newRepoWithMock(t)
	now := time.Now().UTC()

	mock.ExpectQuery(`FROM\s+users\s+WHERE\s+refresh_token=\$1`).
		WithArgs("rt").
		WillReturnRows(sqlmock.NewRows(userCols).AddRow("u-1", "A", "a@x.com", "hash", "rt", now, now))

	u, err := r.GetByRefreshToken(context.Background(), "rt")
	require.NoError(t, err)
	assert.Equal(t, "rt", u.RefreshToken)

	// empty token short-circuits without a query
	_, err = r.GetByRefreshToken(context.Background(), "")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUserRepo_SetRefreshToken(t *testing.T) {
	r, mock := newRepoWithMock(t)

	mock.ExpectExec(`UPDATE\s+users\s+SET\s+refresh_token=\$2`).
		WithArgs("u-1", "rt").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE\s+users\s+SET\s+refresh_token=\$2`).
		WithArgs("ghost", "rt").
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, r.SetRefreshToken(context.Background(), "u-1", "rt"))
	assert.ErrorIs(t, r.SetRefreshToken(context.Background(), "ghost", "rt"), ErrNotFound)
}

func TestUserRepo_ClearRefreshToken(t *testing.T) {
	r, mock := newRepoWithMock(t)

	mock.ExpectExec(`UPDATE\s+users\s+SET\s+refresh_token=''.*WHERE\s+refresh_token=\$1`).
		WithArgs("rt").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`WHERE\s+refresh_token=\$1`).
		WithArgs("unknown").
		WillReturnResult(sqlmock.NewResult(0, 0))

	n, err := r.ClearRefreshToken(context.Background(), "rt")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	n, err = r.ClearRefreshToken(context.Background(), "unknown")
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}
