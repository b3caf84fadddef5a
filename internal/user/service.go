package user

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"golang.org/x/crypto/bcrypt"

	"github.com/ovaphlow/pitchfork/service-auth-go/internal/token"
	"github.com/ovaphlow/pitchfork/service-auth-go/internal/user/entity"
	userrepo "github.com/ovaphlow/pitchfork/service-auth-go/internal/user/repo"
	"github.com/ovaphlow/pitchfork/service-auth-go/pkg/utilities"
)

// PasswordHasher defines the one-way hashing primitive (abstract so we can swap to argon2 later).
type PasswordHasher interface {
	Hash(pw string) (string, error)
	Verify(hash, pw string) bool
}

// BcryptHasher implementation.
type BcryptHasher struct{ Cost int }

func (b BcryptHasher) Hash(pw string) (string, error) {
	cost := b.Cost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	h, err := bcrypt.GenerateFromPassword([]byte(pw), cost)
	if err != nil {
		return "", err
	}
	return string(h), nil
}

func (b BcryptHasher) Verify(hash, pw string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(pw)) == nil
}

var (
	ErrValidation         = errors.New("all fields are required")
	ErrConflict           = errors.New("email already registered")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrMissingToken       = errors.New("refresh token not found")
	ErrInvalidToken       = errors.New("invalid or expired refresh token")
	// ErrInternal wraps store and crypto failures; the cause is for logs only.
	ErrInternal = errors.New("internal error")
)

// TokenPair is the result of a successful login or refresh. IssuedRefresh
// reports whether RefreshToken was newly minted and must reach the client;
// on a refresh without rotation it is the presented token.
type TokenPair struct {
	AccessToken   string
	RefreshToken  string
	IssuedRefresh bool
}

// SessionService orchestrates signup, login, refresh and logout. All state
// lives in the store; the service itself holds none between calls.
type SessionService struct {
	store  userrepo.Store
	hasher PasswordHasher
	tokens *token.Service
	// RotateRefresh issues and persists a new refresh token on every refresh.
	RotateRefresh bool

	dummyOnce sync.Once
	dummyHash string
}

func NewSessionService(store userrepo.Store, tokens *token.Service, hasher PasswordHasher) *SessionService {
	if hasher == nil {
		hasher = BcryptHasher{Cost: 12}
	}
	return &SessionService{store: store, hasher: hasher, tokens: tokens}
}

func wrapInternal(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrInternal, op, err)
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Signup registers a new user. It issues no tokens.
func (s *SessionService) Signup(ctx context.Context, name, email, password string) error {
	name = strings.TrimSpace(name)
	email = normalizeEmail(email)
	if name == "" || email == "" || password == "" {
		return ErrValidation
	}

	if _, err := s.store.GetByEmail(ctx, email); err == nil {
		return ErrConflict
	} else if !errors.Is(err, userrepo.ErrNotFound) {
		return wrapInternal("lookup email", err)
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		if errors.Is(err, bcrypt.ErrPasswordTooLong) {
			return ErrValidation
		}
		return wrapInternal("hash password", err)
	}
	u := &entity.User{
		ID:           utilities.NewUserID(),
		Name:         name,
		Email:        email,
		PasswordHash: hash,
	}
	if err := s.store.Create(ctx, u); err != nil {
		// a concurrent signup can win between the lookup and the insert
		if errors.Is(err, userrepo.ErrDuplicateEmail) {
			return ErrConflict
		}
		return wrapInternal("create user", err)
	}
	return nil
}

// Login verifies credentials, mints a token pair and stores the refresh
// token, replacing any earlier session of the same user.
func (s *SessionService) Login(ctx context.Context, email, password string) (*TokenPair, error) {
	email = normalizeEmail(email)
	if email == "" || password == "" {
		return nil, ErrValidation
	}

	u, err := s.store.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, userrepo.ErrNotFound) {
			// spend the same hashing time as a real comparison
			s.hasher.Verify(s.dummy(), password)
			return nil, ErrInvalidCredentials
		}
		return nil, wrapInternal("lookup email", err)
	}
	if !s.hasher.Verify(u.PasswordHash, password) {
		return nil, ErrInvalidCredentials
	}

	access, err := s.tokens.MintAccess(u.Claims())
	if err != nil {
		return nil, wrapInternal("mint access token", err)
	}
	refresh, err := s.tokens.MintRefresh(u.Claims())
	if err != nil {
		return nil, wrapInternal("mint refresh token", err)
	}
	if err := s.store.SetRefreshToken(ctx, u.ID, refresh); err != nil {
		return nil, wrapInternal("store refresh token", err)
	}
	return &TokenPair{AccessToken: access, RefreshToken: refresh, IssuedRefresh: true}, nil
}

// Refresh exchanges a stored, valid refresh token for a new access token.
// The token must both match the stored value and verify.
func (s *SessionService) Refresh(ctx context.Context, presented string) (*TokenPair, error) {
	if presented == "" {
		return nil, ErrMissingToken
	}
	u, err := s.store.GetByRefreshToken(ctx, presented)
	if err != nil {
		if errors.Is(err, userrepo.ErrNotFound) {
			return nil, ErrInvalidToken
		}
		return nil, wrapInternal("lookup refresh token", err)
	}
	if _, err := s.tokens.VerifyRefresh(presented); err != nil {
		return nil, ErrInvalidToken
	}

	access, err := s.tokens.MintAccess(u.Claims())
	if err != nil {
		return nil, wrapInternal("mint access token", err)
	}
	pair := &TokenPair{AccessToken: access, RefreshToken: presented}
	if !s.RotateRefresh {
		return pair, nil
	}

	refresh, err := s.tokens.MintRefresh(u.Claims())
	if err != nil {
		return nil, wrapInternal("mint refresh token", err)
	}
	if err := s.store.SetRefreshToken(ctx, u.ID, refresh); err != nil {
		return nil, wrapInternal("store refresh token", err)
	}
	pair.RefreshToken = refresh
	pair.IssuedRefresh = true
	return pair, nil
}

// Logout clears the stored refresh token of whichever user holds presented.
// Clearing a token nobody holds is not an error.
func (s *SessionService) Logout(ctx context.Context, presented string) error {
	if presented == "" {
		return ErrMissingToken
	}
	if _, err := s.store.ClearRefreshToken(ctx, presented); err != nil {
		return wrapInternal("clear refresh token", err)
	}
	return nil
}

func (s *SessionService) dummy() string {
	s.dummyOnce.Do(func() {
		s.dummyHash, _ = s.hasher.Hash("pitchfork-dummy-password")
	})
	return s.dummyHash
}
