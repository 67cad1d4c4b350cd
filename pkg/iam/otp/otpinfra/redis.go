package otpinfra

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/Abraxas-365/tenantauth/pkg/errx"
	"github.com/Abraxas-365/tenantauth/pkg/iam/otp"
	"github.com/Abraxas-365/tenantauth/pkg/kernel"
	"github.com/redis/go-redis/v9"
)

const redisOTPPrefix = "otp:"

// RedisRepository stores each code as JSON that expires with the code
type RedisRepository struct {
	client *redis.Client
}

func NewRedisRepository(client *redis.Client) *RedisRepository {
	return &RedisRepository{client: client}
}

func (r *RedisRepository) Save(ctx context.Context, code *otp.OTP) error {
	data, err := json.Marshal(code)
	if err != nil {
		return errx.Wrap(err, "failed to encode verification code", errx.TypeInternal)
	}
	key := redisOTPPrefix + codeKey(code.ApplicationID, code.Contact, code.Purpose)
	if err := r.client.Set(ctx, key, data, ttlUntil(code.ExpiresAt)).Err(); err != nil {
		return errx.Wrap(err, "failed to store verification code", errx.TypeInternal)
	}
	return nil
}

func (r *RedisRepository) FindLatest(ctx context.Context, appID kernel.ApplicationID, contact string, purpose otp.Purpose) (*otp.OTP, error) {
	data, err := r.client.Get(ctx, redisOTPPrefix+codeKey(appID, contact, purpose)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, otp.ErrNotFound()
		}
		return nil, errx.Wrap(err, "failed to load verification code", errx.TypeInternal)
	}

	var code otp.OTP
	if err := json.Unmarshal(data, &code); err != nil {
		return nil, errx.Wrap(err, "failed to decode verification code", errx.TypeInternal)
	}
	return &code, nil
}

// Update only rewrites a code that has not expired or been replaced
func (r *RedisRepository) Update(ctx context.Context, code *otp.OTP) error {
	key := redisOTPPrefix + codeKey(code.ApplicationID, code.Contact, code.Purpose)

	err := r.client.Watch(ctx, func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, key).Bytes()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				return otp.ErrNotFound()
			}
			return err
		}
		var current otp.OTP
		if err := json.Unmarshal(data, &current); err != nil {
			return err
		}
		if current.ID != code.ID {
			return otp.ErrNotFound()
		}

		next, err := json.Marshal(code)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, next, ttlUntil(code.ExpiresAt))
			return nil
		})
		return err
	}, key)

	switch {
	case err == nil:
		return nil
	case errx.IsCode(err, otp.CodeNotFound):
		return err
	case errors.Is(err, redis.TxFailedErr):
		return otp.ErrNotFound()
	default:
		return errx.Wrap(err, "failed to update verification code", errx.TypeInternal)
	}
}

func ttlUntil(t time.Time) time.Duration {
	if d := time.Until(t); d > time.Second {
		return d
	}
	return time.Second
}
