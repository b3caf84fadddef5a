// Package token mints and verifies the signed access and refresh tokens that
// carry a user's identity claims. Access and refresh tokens are signed with
// independent HMAC secrets; a token signed with one secret never verifies
// against the other.
package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/ovaphlow/pitchfork/service-auth-go/internal/user/entity"
	"github.com/ovaphlow/pitchfork/service-auth-go/pkg/utilities"
)

const (
	DefaultAccessTTL  = time.Minute
	DefaultRefreshTTL = 7 * 24 * time.Hour
)

var (
	// ErrInvalid is the single failure kind callers need; every verification
	// error below wraps it.
	ErrInvalid          = errors.New("invalid token")
	ErrExpired          = fmt.Errorf("%w: expired", ErrInvalid)
	ErrInvalidSignature = fmt.Errorf("%w: signature", ErrInvalid)
	ErrMalformed        = fmt.Errorf("%w: malformed", ErrInvalid)

	ErrMissingSecret = errors.New("token: signing secret is empty")
	ErrSharedSecret  = errors.New("token: access and refresh secrets must differ")
)

// Config holds the signing material and lifetimes. It is passed in explicitly;
// the service never reads process environment.
type Config struct {
	AccessSecret  []byte
	RefreshSecret []byte
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	Issuer        string
}

// Claims is the decoded content of a verified token.
type Claims struct {
	entity.Claims
	jwt.RegisteredClaims
}

// Service issues and verifies tokens. It is safe for concurrent use.
type Service struct {
	cfg Config
	now func() time.Time
}

// Option customizes a Service.
type Option func(*Service)

// WithClock replaces the time source used for issuing and verifying.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func NewService(cfg Config, opts ...Option) (*Service, error) {
	if len(cfg.AccessSecret) == 0 || len(cfg.RefreshSecret) == 0 {
		return nil, ErrMissingSecret
	}
	if string(cfg.AccessSecret) == string(cfg.RefreshSecret) {
		return nil, ErrSharedSecret
	}
	if cfg.AccessTTL <= 0 {
		cfg.AccessTTL = DefaultAccessTTL
	}
	if cfg.RefreshTTL <= 0 {
		cfg.RefreshTTL = DefaultRefreshTTL
	}
	s := &Service{cfg: cfg, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *Service) AccessSecret() []byte  { return s.cfg.AccessSecret }
func (s *Service) RefreshSecret() []byte { return s.cfg.RefreshSecret }

// MintAccess signs a short-lived access token.
func (s *Service) MintAccess(c entity.Claims) (string, error) {
	return s.mint(c, s.cfg.AccessSecret, s.cfg.AccessTTL)
}

// MintRefresh signs a long-lived refresh token.
func (s *Service) MintRefresh(c entity.Claims) (string, error) {
	return s.mint(c, s.cfg.RefreshSecret, s.cfg.RefreshTTL)
}

func (s *Service) mint(c entity.Claims, secret []byte, ttl time.Duration) (string, error) {
	now := s.now()
	claims := Claims{
		Claims: c,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.cfg.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			// jti keeps two tokens minted within the same second distinct
			ID: utilities.NewKSUID(),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// VerifyAccess verifies a token against the access secret.
func (s *Service) VerifyAccess(tok string) (*Claims, error) {
	return s.Verify(tok, s.cfg.AccessSecret)
}

// VerifyRefresh verifies a token against the refresh secret.
func (s *Service) VerifyRefresh(tok string) (*Claims, error) {
	return s.Verify(tok, s.cfg.RefreshSecret)
}

// Verify checks signature and expiry. Any failure wraps ErrInvalid.
func (s *Service) Verify(tok string, secret []byte) (*Claims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	}
	if s.cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(s.cfg.Issuer))
	}
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(tok, claims, func(t *jwt.Token) (any, error) {
		return secret, nil
	}, opts...)
	if err != nil {
		return nil, classify(err)
	}
	if !parsed.Valid {
		return nil, ErrInvalid
	}
	return claims, nil
}

func classify(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return fmt.Errorf("%w: %w", ErrExpired, err)
	case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, jwt.ErrTokenUnverifiable):
		return fmt.Errorf("%w: %w", ErrInvalidSignature, err)
	case errors.Is(err, jwt.ErrTokenMalformed):
		return fmt.Errorf("%w: %w", ErrMalformed, err)
	default:
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}
}
