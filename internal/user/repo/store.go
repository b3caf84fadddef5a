package repo

import (
	"context"
	"errors"

	"github.com/ovaphlow/pitchfork/service-auth-go/internal/user/entity"
)

var (
	ErrNotFound       = errors.New("user not found")
	ErrDuplicateEmail = errors.New("email already registered")
)

// Store is the credential store the session manager depends on. Every
// implementation gives last-writer-wins semantics for single-user updates;
// callers add no locking of their own.
type Store interface {
	// Create inserts a new user. Returns ErrDuplicateEmail when the email is taken.
	Create(ctx context.Context, u *entity.User) error
	GetByID(ctx context.Context, id string) (*entity.User, error)
	GetByEmail(ctx context.Context, email string) (*entity.User, error)
	// GetByRefreshToken finds the user whose stored refresh token equals token.
	// An empty token never matches.
	GetByRefreshToken(ctx context.Context, token string) (*entity.User, error)
	// SetRefreshToken overwrites the user's single refresh-token slot.
	SetRefreshToken(ctx context.Context, userID, token string) error
	// ClearRefreshToken empties the slot of whichever user holds token and
	// reports how many users were affected (0 is not an error).
	ClearRefreshToken(ctx context.Context, token string) (int64, error)
}
