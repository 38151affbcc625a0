package repository

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// compareAndDelete removes KEYS[1] only while it still holds ARGV[1].
var compareAndDelete = redis.NewScript(`
    if redis.call('GET', KEYS[1]) == ARGV[1] then
        return redis.call('DEL', KEYS[1])
    end
    return 0
`)

// RevocationStore is a key-value store with per-key expiry backed by Redis.
// Each write is a single atomic command, so no cross-key transactions exist.
type RevocationStore struct{ RDB *redis.Client }

func NewRevocationStore(rdb *redis.Client) *RevocationStore { return &RevocationStore{RDB: rdb} }

// Set stores value under key for ttl, overwriting any previous value.
func (s *RevocationStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	return s.RDB.Set(ctx, key, value, ttl).Err()
}

// Get returns the value under key.  A missing key is reported through the
// boolean, not as an error.
func (s *RevocationStore) Get(ctx context.Context, key string) (string, bool, error) {
	v, err := s.RDB.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}

// Delete removes key.  Deleting a missing key is not an error.
func (s *RevocationStore) Delete(ctx context.Context, key string) error {
	return s.RDB.Del(ctx, key).Err()
}

// CompareAndDelete deletes key only if it currently holds expected and
// reports whether it did.
func (s *RevocationStore) CompareAndDelete(ctx context.Context, key, expected string) (bool, error) {
	n, err := compareAndDelete.Run(ctx, s.RDB, []string{key}, expected).Int64()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// Ping checks connectivity.
func (s *RevocationStore) Ping(ctx context.Context) error {
	return s.RDB.Ping(ctx).Err()
}
