package lock

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisLocker implements Locker on a shared Redis instance. It is the only
// safe backend when more than one API process can receive triggers for the
// same lead.
//
// Key layout:
//   - lock:fence:counter        global token mint (INCR)
//   - lock:held:<key>           token of the current holder, PX = ttl
//
// The holder's token doubles as the fence value, so validation is a GET and
// release is a compare-and-delete.
type RedisLocker struct {
	rdb *redis.Client
}

func NewRedisLocker(rdb *redis.Client) *RedisLocker {
	return &RedisLocker{rdb: rdb}
}

const (
	fenceCounterKey = "lock:fence:counter"
	heldKeyPrefix   = "lock:held:"
)

var acquireScript = redis.NewScript(`
-- KEYS[1] = held key
-- KEYS[2] = fence counter key
-- ARGV[1] = ttl_ms
--
-- Returns the minted token on success, 0 when the lock is already held.
if redis.call('EXISTS', KEYS[1]) == 1 then
  return 0
end
local token = redis.call('INCR', KEYS[2])
redis.call('SET', KEYS[1], token, 'PX', ARGV[1])
return token
`)

var releaseScript = redis.NewScript(`
-- KEYS[1] = held key
-- ARGV[1] = caller's token
--
-- Deletes the lock only if the caller still holds it.
if redis.call('GET', KEYS[1]) == ARGV[1] then
  return redis.call('DEL', KEYS[1])
end
return 0
`)

func (l *RedisLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (Lease, bool, error) {
	if key == "" {
		return Lease{}, false, errors.New("lock key is required")
	}
	if ttl <= 0 {
		return Lease{}, false, errors.New("lock ttl must be > 0")
	}

	token, err := acquireScript.Run(ctx, l.rdb, []string{heldKeyPrefix + key, fenceCounterKey}, ttl.Milliseconds()).Int64()
	if err != nil {
		return Lease{}, false, err
	}
	if token == 0 {
		return Lease{}, false, nil
	}
	return Lease{Key: key, Token: token}, true, nil
}

func (l *RedisLocker) Release(ctx context.Context, lease Lease) error {
	_, err := releaseScript.Run(ctx, l.rdb, []string{heldKeyPrefix + lease.Key}, lease.Token).Result()
	return err
}

func (l *RedisLocker) IsValid(ctx context.Context, lease Lease) (bool, error) {
	cur, ok, err := l.CurrentToken(ctx, lease.Key)
	if err != nil {
		return false, err
	}
	return ok && cur == lease.Token, nil
}

func (l *RedisLocker) CurrentToken(ctx context.Context, key string) (int64, bool, error) {
	v, err := l.rdb.Get(ctx, heldKeyPrefix+key).Result()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, false, err
	}
	return n, true, nil
}
