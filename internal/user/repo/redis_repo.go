package repo

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ovaphlow/pitchfork/service-auth-go/internal/user/entity"
)

// maxTxRetries bounds optimistic WATCH retries on a contended user hash.
const maxTxRetries = 4

// RedisRepo stores users as hashes with two secondary index keys:
//
//	<prefix>:user:<id>          hash of user fields
//	<prefix>:email:<email>      -> id
//	<prefix>:refresh:<sha256>   -> id
//
// Refresh tokens are indexed by digest so key length stays bounded.
type RedisRepo struct {
	rdb    redis.UniversalClient
	prefix string
}

var _ Store = (*RedisRepo)(nil)

func NewRedisRepo(rdb redis.UniversalClient, prefix string) *RedisRepo {
	if prefix == "" {
		prefix = "auth"
	}
	return &RedisRepo{rdb: rdb, prefix: prefix}
}

func (r *RedisRepo) userKey(id string) string { return r.prefix + ":user:" + id }

func (r *RedisRepo) emailKey(email string) string { return r.prefix + ":email:" + email }

func (r *RedisRepo) refreshKey(token string) string {
	sum := sha256.Sum256([]byte(token))
	return r.prefix + ":refresh:" + hex.EncodeToString(sum[:])
}

func (r *RedisRepo) Create(ctx context.Context, u *entity.User) error {
	ok, err := r.rdb.SetNX(ctx, r.emailKey(u.Email), u.ID, 0).Result()
	if err != nil {
		return fmt.Errorf("reserve email: %w", err)
	}
	if !ok {
		return ErrDuplicateEmail
	}
	now := time.Now().UTC()
	u.CreatedAt, u.UpdatedAt = now, now
	u.RefreshToken = ""
	err = r.rdb.HSet(ctx, r.userKey(u.ID),
		"id", u.ID,
		"name", u.Name,
		"email", u.Email,
		"password_hash", u.PasswordHash,
		"refresh_token", "",
		"created_at", now.UnixNano(),
		"updated_at", now.UnixNano(),
	).Err()
	if err != nil {
		// release the reservation so the email is not lost
		_ = r.rdb.Del(ctx, r.emailKey(u.Email)).Err()
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (r *RedisRepo) GetByID(ctx context.Context, id string) (*entity.User, error) {
	vals, err := r.rdb.HGetAll(ctx, r.userKey(id)).Result()
	if err != nil {
		return nil, fmt.Errorf("load user: %w", err)
	}
	if len(vals) == 0 {
		return nil, ErrNotFound
	}
	return decodeUser(vals), nil
}

func (r *RedisRepo) GetByEmail(ctx context.Context, email string) (*entity.User, error) {
	id, err := r.rdb.Get(ctx, r.emailKey(email)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("lookup email: %w", err)
	}
	return r.GetByID(ctx, id)
}

func (r *RedisRepo) GetByRefreshToken(ctx context.Context, token string) (*entity.User, error) {
	if token == "" {
		return nil, ErrNotFound
	}
	id, err := r.rdb.Get(ctx, r.refreshKey(token)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("lookup refresh token: %w", err)
	}
	u, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	// the index may briefly outlive an overwrite; the hash is authoritative
	if u.RefreshToken != token {
		return nil, ErrNotFound
	}
	return u, nil
}

func (r *RedisRepo) SetRefreshToken(ctx context.Context, userID, token string) error {
	key := r.userKey(userID)
	for i := 0; i < maxTxRetries; i++ {
		err := r.rdb.Watch(ctx, func(tx *redis.Tx) error {
			old, err := tx.HGet(ctx, key, "refresh_token").Result()
			if err != nil {
				return err
			}
			_, err = tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
				if old != "" {
					p.Del(ctx, r.refreshKey(old))
				}
				p.HSet(ctx, key, "refresh_token", token, "updated_at", time.Now().UTC().UnixNano())
				if token != "" {
					p.Set(ctx, r.refreshKey(token), userID, 0)
				}
				return nil
			})
			return err
		}, key)

		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if errors.Is(err, redis.Nil) {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("update refresh token: %w", err)
		}
		return nil
	}
	return fmt.Errorf("update refresh token: %w", redis.TxFailedErr)
}

// ClearRefreshToken empties the slot of the user holding token. The slot is
// re-read under WATCH so a session stored concurrently is never cleared.
func (r *RedisRepo) ClearRefreshToken(ctx context.Context, token string) (int64, error) {
	if token == "" {
		return 0, nil
	}
	id, err := r.rdb.Get(ctx, r.refreshKey(token)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("lookup refresh token: %w", err)
	}

	key := r.userKey(id)
	for i := 0; i < maxTxRetries; i++ {
		var cleared int64
		err := r.rdb.Watch(ctx, func(tx *redis.Tx) error {
			current, err := tx.HGet(ctx, key, "refresh_token").Result()
			if err != nil && !errors.Is(err, redis.Nil) {
				return err
			}
			if current != token {
				return nil
			}
			_, err = tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
				p.Del(ctx, r.refreshKey(token))
				p.HSet(ctx, key, "refresh_token", "", "updated_at", time.Now().UTC().UnixNano())
				return nil
			})
			if err != nil {
				return err
			}
			cleared = 1
			return nil
		}, key)

		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			return 0, fmt.Errorf("clear refresh token: %w", err)
		}
		return cleared, nil
	}
	return 0, fmt.Errorf("clear refresh token: %w", redis.TxFailedErr)
}

func decodeUser(vals map[string]string) *entity.User {
	return &entity.User{
		ID:           vals["id"],
		Name:         vals["name"],
		Email:        vals["email"],
		PasswordHash: vals["password_hash"],
		RefreshToken: vals["refresh_token"],
		CreatedAt:    unixNano(vals["created_at"]),
		UpdatedAt:    unixNano(vals["updated_at"]),
	}
}

func unixNano(s string) time.Time {
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return time.Time{}
	}
	return time.Unix(0, n).UTC()
}
