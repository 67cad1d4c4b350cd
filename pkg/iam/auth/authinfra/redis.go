package authinfra

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/Abraxas-365/tenantauth/pkg/errx"
	"github.com/Abraxas-365/tenantauth/pkg/iam/auth"
	"github.com/Abraxas-365/tenantauth/pkg/kernel"
	"github.com/redis/go-redis/v9"
)

const (
	redisTokenPrefix     = "refresh:token:"
	redisFamilyPrefix    = "refresh:family:"
	redisPrincipalPrefix = "refresh:principal:"

	maxRevokePasses   = 5
	maxRevokeAttempts = 5
)

// RedisTokenRepository stores refresh tokens as JSON under their hash.
// Records live until they expire, so revoked tokens stay detectable for
// reuse. Family and principal sets index them for bulk revocation.
type RedisTokenRepository struct {
	client *redis.Client
}

func NewRedisTokenRepository(client *redis.Client) *RedisTokenRepository {
	return &RedisTokenRepository{client: client}
}

func tokenKey(hash string) string {
	return redisTokenPrefix + hash
}

func familyKey(familyID string) string {
	return redisFamilyPrefix + familyID
}

func principalKey(kind kernel.PrincipalKind, principalID string) string {
	return redisPrincipalPrefix + kind.String() + ":" + principalID
}

func (r *RedisTokenRepository) Save(ctx context.Context, token *auth.RefreshToken) error {
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		return r.queueInsert(ctx, pipe, token)
	})
	if err != nil {
		return errx.Wrap(err, "failed to store refresh token", errx.TypeInternal)
	}
	return nil
}

func (r *RedisTokenRepository) FindByHash(ctx context.Context, tokenHash string) (*auth.RefreshToken, error) {
	return r.get(ctx, r.client, tokenHash)
}

// Rotate watches the old record; a concurrent writer aborts the transaction
// and the loser observes the token as revoked.
func (r *RedisTokenRepository) Rotate(ctx context.Context, oldHash string, next *auth.RefreshToken, now time.Time) error {
	key := tokenKey(oldHash)

	err := r.client.Watch(ctx, func(tx *redis.Tx) error {
		old, err := r.get(ctx, tx, oldHash)
		if err != nil {
			return err
		}
		if old.IsRevoked() {
			return auth.ErrRefreshTokenRevoked()
		}
		if old.IsExpired(now) {
			return auth.ErrInvalidOrExpiredRefreshToken()
		}

		revokedAt := now
		old.RevokedAt = &revokedAt
		old.ReplacedByID = next.ID

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			if err := r.queueSet(ctx, pipe, old); err != nil {
				return err
			}
			return r.queueInsert(ctx, pipe, next)
		})
		return err
	}, key)

	if errors.Is(err, redis.TxFailedErr) {
		return auth.ErrRefreshTokenRevoked()
	}
	if err != nil {
		var e *errx.Error
		if errx.As(err, &e) {
			return err
		}
		return errx.Wrap(err, "failed to rotate refresh token", errx.TypeInternal)
	}
	return nil
}

func (r *RedisTokenRepository) RevokeFamily(ctx context.Context, familyID string, now time.Time) error {
	return r.revokeSet(ctx, familyKey(familyID), now)
}

func (r *RedisTokenRepository) RevokeAllForPrincipal(ctx context.Context, kind kernel.PrincipalKind, principalID string, now time.Time) error {
	return r.revokeSet(ctx, principalKey(kind, principalID), now)
}

// DeleteExpired prunes index entries whose record already expired. Records
// themselves are removed by their TTL.
func (r *RedisTokenRepository) DeleteExpired(ctx context.Context, _ time.Time) (int64, error) {
	var pruned int64

	for _, pattern := range []string{redisFamilyPrefix + "*", redisPrincipalPrefix + "*"} {
		iter := r.client.Scan(ctx, 0, pattern, 100).Iterator()
		for iter.Next(ctx) {
			setKey := iter.Val()
			hashes, err := r.client.SMembers(ctx, setKey).Result()
			if err != nil {
				return pruned, errx.Wrap(err, "failed to read token index", errx.TypeInternal)
			}
			for _, hash := range hashes {
				exists, err := r.client.Exists(ctx, tokenKey(hash)).Result()
				if err != nil {
					return pruned, errx.Wrap(err, "failed to check token", errx.TypeInternal)
				}
				if exists == 0 {
					r.client.SRem(ctx, setKey, hash)
					pruned++
				}
			}
		}
		if err := iter.Err(); err != nil {
			return pruned, errx.Wrap(err, "failed to scan token indexes", errx.TypeInternal)
		}
	}

	return pruned, nil
}

// revokeSet re-reads the index until a pass finds no new members, so a token
// rotated in while the set was being revoked is revoked too.
func (r *RedisTokenRepository) revokeSet(ctx context.Context, setKey string, now time.Time) error {
	seen := make(map[string]bool)

	for pass := 0; pass < maxRevokePasses; pass++ {
		hashes, err := r.client.SMembers(ctx, setKey).Result()
		if err != nil {
			return errx.Wrap(err, "failed to read token index", errx.TypeInternal)
		}

		fresh := 0
		for _, hash := range hashes {
			if seen[hash] {
				continue
			}
			seen[hash] = true
			fresh++
			if err := r.revokeOne(ctx, hash, now); err != nil {
				return err
			}
		}
		if fresh == 0 {
			return nil
		}
	}
	return nil
}

// revokeOne watches the record like Rotate does. A record rotated meanwhile
// is already revoked and keeps its replacement link.
func (r *RedisTokenRepository) revokeOne(ctx context.Context, hash string, now time.Time) error {
	for attempt := 0; attempt < maxRevokeAttempts; attempt++ {
		err := r.client.Watch(ctx, func(tx *redis.Tx) error {
			token, err := r.get(ctx, tx, hash)
			if err != nil {
				return err
			}
			if token.IsRevoked() {
				return nil
			}

			revokedAt := now
			token.RevokedAt = &revokedAt
			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				return r.queueSet(ctx, pipe, token)
			})
			return err
		}, tokenKey(hash))

		switch {
		case err == nil:
			return nil
		case errors.Is(err, redis.TxFailedErr):
			continue
		case errx.IsCode(err, auth.CodeRefreshTokenNotFound):
			return nil
		default:
			var e *errx.Error
			if errx.As(err, &e) {
				return err
			}
			return errx.Wrap(err, "failed to revoke refresh token", errx.TypeInternal)
		}
	}
	return errx.Wrap(redis.TxFailedErr, "failed to revoke refresh token", errx.TypeInternal)
}

func (r *RedisTokenRepository) get(ctx context.Context, c redis.Cmdable, hash string) (*auth.RefreshToken, error) {
	data, err := c.Get(ctx, tokenKey(hash)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, auth.ErrRefreshTokenNotFound()
		}
		return nil, errx.Wrap(err, "failed to load refresh token", errx.TypeInternal)
	}

	var token auth.RefreshToken
	if err := json.Unmarshal(data, &token); err != nil {
		return nil, errx.Wrap(err, "failed to decode refresh token", errx.TypeInternal)
	}
	// the hash is not serialized
	token.TokenHash = hash
	return &token, nil
}

// queueSet rewrites a record keeping its remaining lifetime
func (r *RedisTokenRepository) queueSet(ctx context.Context, pipe redis.Pipeliner, token *auth.RefreshToken) error {
	data, err := json.Marshal(token)
	if err != nil {
		return err
	}
	pipe.Set(ctx, tokenKey(token.TokenHash), data, ttlUntil(token.ExpiresAt))
	return nil
}

func (r *RedisTokenRepository) queueInsert(ctx context.Context, pipe redis.Pipeliner, token *auth.RefreshToken) error {
	if err := r.queueSet(ctx, pipe, token); err != nil {
		return err
	}

	ttl := ttlUntil(token.ExpiresAt)
	fk := familyKey(token.FamilyID)
	pk := principalKey(token.Kind, token.PrincipalID)

	pipe.SAdd(ctx, fk, token.TokenHash)
	pipe.SAdd(ctx, pk, token.TokenHash)
	// refresh lifetimes are constant, so the newest member expires last
	pipe.Expire(ctx, fk, ttl)
	pipe.Expire(ctx, pk, ttl)
	return nil
}

func ttlUntil(t time.Time) time.Duration {
	ttl := time.Until(t)
	if ttl < time.Second {
		return time.Second
	}
	return ttl
}
