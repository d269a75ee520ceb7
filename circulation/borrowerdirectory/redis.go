package borrowerdirectory

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
	"github.com/redis/go-redis/v9"

	"github.com/AntonStoeckl/circulation-engine-go/circulation"
)

const defaultRedisPrefix = "circulation:borrower"

var _ circulation.BorrowerDirectory = (*Redis)(nil)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Redis reads borrower records stored as JSON strings under "<prefix>:<borrower id>".
type Redis struct {
	rdb    redis.Cmdable
	prefix string
	ttl    time.Duration
}

// RedisOption configures a Redis directory.
type RedisOption func(*Redis)

// WithRedisPrefix sets the key prefix.
func WithRedisPrefix(prefix string) RedisOption {
	return func(r *Redis) {
		if p := strings.Trim(prefix, ":"); p != "" {
			r.prefix = p
		}
	}
}

// WithRedisTTL sets the expiry used by Put. Zero keeps records forever.
func WithRedisTTL(ttl time.Duration) RedisOption {
	return func(r *Redis) { r.ttl = ttl }
}

// NewRedis creates a directory on top of a go-redis client.
func NewRedis(rdb redis.Cmdable, options ...RedisOption) (*Redis, error) {
	if rdb == nil {
		return nil, circulation.ErrNilDatabaseConnection
	}

	r := &Redis{rdb: rdb, prefix: defaultRedisPrefix}
	for _, option := range options {
		option(r)
	}

	return r, nil
}

func (r *Redis) Get(ctx context.Context, borrowerID uuid.UUID) (circulation.Borrower, error) {
	raw, err := r.rdb.Get(ctx, r.key(borrowerID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return circulation.Borrower{}, circulation.NewNotFoundError(circulation.EntityBorrower, borrowerID)
	}

	if err != nil {
		return circulation.Borrower{}, errors.Join(circulation.ErrDirectoryLookupFailed, err)
	}

	var b circulation.Borrower
	if err = json.Unmarshal(raw, &b); err != nil {
		return circulation.Borrower{}, errors.Join(circulation.ErrDecodingRecordFailed, err)
	}

	// the key is authoritative
	b.ID = borrowerID

	return b, nil
}

// Put writes a borrower record. Intended for seeding and operator tooling.
func (r *Redis) Put(ctx context.Context, b circulation.Borrower) error {
	raw, err := json.Marshal(b)
	if err != nil {
		return err
	}

	return r.rdb.Set(ctx, r.key(b.ID), raw, r.ttl).Err()
}

func (r *Redis) key(borrowerID uuid.UUID) string {
	return r.prefix + ":" + borrowerID.String()
}
