package redisdedup

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/c360/ledpush/errors"
)

// DefaultKeyPrefix namespaces processed-ID keys.
const DefaultKeyPrefix = "ledpush:processed:"

// Store is a processor.DedupStore on Redis. Each processed ID is a key set
// with SET NX PX, so the first writer wins and Redis expires the record after
// the dedup window.
type Store struct {
	client redis.UniversalClient
	prefix string
	owned  bool
}

// Option configures a Store.
type Option func(*Store) error

// WithKeyPrefix replaces DefaultKeyPrefix.
func WithKeyPrefix(prefix string) Option {
	return func(s *Store) error {
		if prefix == "" {
			return fmt.Errorf("%w: empty key prefix", errors.ErrInvalidConfig)
		}
		s.prefix = prefix
		return nil
	}
}

// New wraps an existing client. Close does not close it.
func New(client redis.UniversalClient, opts ...Option) (*Store, error) {
	if client == nil {
		return nil, errors.WrapInvalid(errors.ErrMissingConfig, "redisdedup", "New", "redis client")
	}
	s := &Store{client: client, prefix: DefaultKeyPrefix}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, errors.WrapInvalid(err, "redisdedup", "New", "apply option")
		}
	}
	return s, nil
}

// Dial connects to the Redis server at addr and pings it.
func Dial(ctx context.Context, addr string, opts ...Option) (*Store, error) {
	if addr == "" {
		return nil, errors.WrapInvalid(errors.ErrMissingConfig, "redisdedup", "Dial", "redis address")
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, errors.WrapTransient(err, "redisdedup", "Dial", "ping")
	}
	s, err := New(client, opts...)
	if err != nil {
		_ = client.Close()
		return nil, err
	}
	s.owned = true
	return s, nil
}

func (s *Store) key(id string) string {
	return s.prefix + id
}

// MarkIfNew implements processor.DedupStore.
func (s *Store) MarkIfNew(ctx context.Context, id string, window time.Duration) (bool, error) {
	ok, err := s.client.SetNX(ctx, s.key(id), "1", window).Result()
	if err != nil {
		return false, errors.WrapTransient(err, "redisdedup", "MarkIfNew", "set processed id")
	}
	return ok, nil
}

// Forget implements processor.DedupStore.
func (s *Store) Forget(ctx context.Context, id string) error {
	if err := s.client.Del(ctx, s.key(id)).Err(); err != nil {
		return errors.WrapTransient(err, "redisdedup", "Forget", "delete processed id")
	}
	return nil
}

// Prune implements processor.DedupStore. Redis expires the keys itself.
func (s *Store) Prune(context.Context) (int, error) {
	return 0, nil
}

// Seen reports whether id is currently recorded.
func (s *Store) Seen(ctx context.Context, id string) (bool, error) {
	n, err := s.client.Exists(ctx, s.key(id)).Result()
	if err != nil {
		return false, errors.WrapTransient(err, "redisdedup", "Seen", "check processed id")
	}
	return n > 0, nil
}

// Close closes the client if Dial created it.
func (s *Store) Close() error {
	if !s.owned {
		return nil
	}
	return s.client.Close()
}
