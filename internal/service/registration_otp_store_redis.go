package service

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/labrental/instrument-marketplace-api/internal/domain"
	"github.com/labrental/instrument-marketplace-api/internal/observability"
	"github.com/labrental/instrument-marketplace-api/internal/security"
)

var redisRegistrationIncrementScript = redis.NewScript(`
local current = redis.call("HGET", KEYS[1], "attempts")
if not current then
  return -1
end
if tonumber(current) ~= tonumber(ARGV[1]) then
  return 0
end
redis.call("HINCRBY", KEYS[1], "attempts", 1)
return 1
`)

var redisRegistrationVerifyScript = redis.NewScript(`
local fp = redis.call("HGET", KEYS[1], "fingerprint")
if not fp or fp ~= ARGV[1] then
  return 0
end
if redis.call("HGET", KEYS[1], "verified") == "1" then
  return 0
end
redis.call("HSET", KEYS[1], "verified", "1")
return 1
`)

var redisRegistrationConsumeScript = redis.NewScript(`
local fp = redis.call("HGET", KEYS[1], "fingerprint")
if not fp or fp ~= ARGV[1] then
  return 0
end
redis.call("DEL", KEYS[1])
return 1
`)

// RedisRegistrationOTPStore keeps one hash per candidate email so every
// instance of the API sees the same challenge. Keys carry a fingerprint of
// the email rather than the address itself.
type RedisRegistrationOTPStore struct {
	client redis.UniversalClient
	prefix string
	fp     *security.Fingerprinter
}

func NewRedisRegistrationOTPStore(client redis.UniversalClient, prefix string, fp *security.Fingerprinter) *RedisRegistrationOTPStore {
	if prefix == "" {
		prefix = "labrental"
	}
	return &RedisRegistrationOTPStore{client: client, prefix: prefix, fp: fp}
}

func (s *RedisRegistrationOTPStore) Put(ctx context.Context, email string, entry domain.RegistrationOTP, ttl time.Duration) error {
	key := s.key(email)
	_, err := s.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Del(ctx, key)
		p.HSet(ctx, key,
			"email", entry.Email,
			"fingerprint", entry.Fingerprint,
			"expires_at_ms", entry.ExpiresAt.UnixMilli(),
			"requested_at_ms", entry.RequestedAt.UnixMilli(),
			"attempts", entry.Attempts,
			"verified", entry.Verified,
		)
		p.PExpire(ctx, key, ttl)
		return nil
	})
	s.record(ctx, "put", err)
	if err != nil {
		return fmt.Errorf("store registration code: %w", err)
	}
	return nil
}

func (s *RedisRegistrationOTPStore) Get(ctx context.Context, email string) (domain.RegistrationOTP, error) {
	values, err := s.client.HGetAll(ctx, s.key(email)).Result()
	if err != nil {
		s.record(ctx, "get", err)
		return domain.RegistrationOTP{}, fmt.Errorf("load registration code: %w", err)
	}
	if len(values) == 0 {
		observability.RecordRegistrationStoreEvent(ctx, "redis", "get", "miss")
		return domain.RegistrationOTP{}, ErrRegistrationOTPNotFound
	}
	entry, err := decodeRegistrationOTP(values)
	if err != nil {
		s.record(ctx, "get", err)
		return domain.RegistrationOTP{}, err
	}
	observability.RecordRegistrationStoreEvent(ctx, "redis", "get", "hit")
	return entry, nil
}

func (s *RedisRegistrationOTPStore) IncrementAttempts(ctx context.Context, email string, expected int) (bool, error) {
	res, err := redisRegistrationIncrementScript.Run(ctx, s.client, []string{s.key(email)}, expected).Int64()
	if err != nil {
		s.record(ctx, "increment", err)
		return false, fmt.Errorf("increment registration attempts: %w", err)
	}
	switch res {
	case -1:
		return false, ErrRegistrationOTPNotFound
	case 0:
		observability.RecordRegistrationStoreEvent(ctx, "redis", "increment", "conflict")
		return false, nil
	default:
		observability.RecordRegistrationStoreEvent(ctx, "redis", "increment", "success")
		return true, nil
	}
}

func (s *RedisRegistrationOTPStore) MarkVerified(ctx context.Context, email, fingerprint string) (bool, error) {
	res, err := redisRegistrationVerifyScript.Run(ctx, s.client, []string{s.key(email)}, fingerprint).Int64()
	if err != nil {
		s.record(ctx, "verify", err)
		return false, fmt.Errorf("mark registration code verified: %w", err)
	}
	if res == 0 {
		observability.RecordRegistrationStoreEvent(ctx, "redis", "verify", "conflict")
		return false, nil
	}
	observability.RecordRegistrationStoreEvent(ctx, "redis", "verify", "success")
	return true, nil
}

func (s *RedisRegistrationOTPStore) Consume(ctx context.Context, email, fingerprint string) (bool, error) {
	res, err := redisRegistrationConsumeScript.Run(ctx, s.client, []string{s.key(email)}, fingerprint).Int64()
	if err != nil {
		s.record(ctx, "consume", err)
		return false, fmt.Errorf("consume registration code: %w", err)
	}
	if res == 0 {
		observability.RecordRegistrationStoreEvent(ctx, "redis", "consume", "conflict")
		return false, nil
	}
	observability.RecordRegistrationStoreEvent(ctx, "redis", "consume", "success")
	return true, nil
}

func (s *RedisRegistrationOTPStore) Delete(ctx context.Context, email string) error {
	err := s.client.Del(ctx, s.key(email)).Err()
	s.record(ctx, "delete", err)
	return err
}

func (s *RedisRegistrationOTPStore) key(email string) string {
	return fmt.Sprintf("%s:registration_otp:%s", s.prefix, s.fp.Fingerprint(email))
}

func (s *RedisRegistrationOTPStore) record(ctx context.Context, op string, err error) {
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	observability.RecordRegistrationStoreEvent(ctx, "redis", op, outcome)
}

func decodeRegistrationOTP(values map[string]string) (domain.RegistrationOTP, error) {
	expiresMS, err := strconv.ParseInt(values["expires_at_ms"], 10, 64)
	if err != nil {
		return domain.RegistrationOTP{}, fmt.Errorf("decode registration code expiry: %w", err)
	}
	requestedMS, err := strconv.ParseInt(values["requested_at_ms"], 10, 64)
	if err != nil {
		return domain.RegistrationOTP{}, fmt.Errorf("decode registration code request time: %w", err)
	}
	attempts, err := strconv.Atoi(values["attempts"])
	if err != nil {
		return domain.RegistrationOTP{}, fmt.Errorf("decode registration attempts: %w", err)
	}
	return domain.RegistrationOTP{
		Email:       values["email"],
		Fingerprint: values["fingerprint"],
		ExpiresAt:   time.UnixMilli(expiresMS).UTC(),
		RequestedAt: time.UnixMilli(requestedMS).UTC(),
		Attempts:    attempts,
		Verified:    values["verified"] == "1",
	}, nil
}
