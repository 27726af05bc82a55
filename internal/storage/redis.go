package storage

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// RedisOptions configures a RedisStore.
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
}

// RedisStore keeps slots in one hash per slot, indexed by a set, and preferences in a
// single hash.
//
//	<prefix>:slots          set of slot names
//	<prefix>:slot:<name>    hash {data, updated_at}
//	<prefix>:prefs          hash key -> int
type RedisStore struct {
	rdb    *redis.Client
	prefix string
}

// NewRedisStore connects and pings the server.
func NewRedisStore(ctx context.Context, opts RedisOptions) (*RedisStore, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("ping redis %s: %w", opts.Addr, err)
	}
	prefix := opts.Prefix
	if prefix == "" {
		prefix = "pairs"
	}
	return &RedisStore{rdb: rdb, prefix: prefix}, nil
}

func (r *RedisStore) indexKey() string           { return r.prefix + ":slots" }
func (r *RedisStore) slotKey(name string) string { return r.prefix + ":slot:" + name }
func (r *RedisStore) prefsKey() string           { return r.prefix + ":prefs" }

func (r *RedisStore) SaveSlot(ctx context.Context, name string, data []byte) error {
	if err := checkName(name); err != nil {
		return err
	}
	_, err := r.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, r.slotKey(name), "data", data, "updated_at", time.Now().UTC().Unix())
		pipe.SAdd(ctx, r.indexKey(), name)
		return nil
	})
	if err != nil {
		return fmt.Errorf("save slot %s: %w", name, err)
	}
	log.Debug().Str("slot", name).Int("bytes", len(data)).Msg("slot saved to redis")
	return nil
}

func (r *RedisStore) LoadSlot(ctx context.Context, name string) ([]byte, error) {
	if err := checkName(name); err != nil {
		return nil, err
	}
	data, err := r.rdb.HGet(ctx, r.slotKey(name), "data").Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load slot %s: %w", name, err)
	}
	return data, nil
}

func (r *RedisStore) ListSlots(ctx context.Context) ([]SlotInfo, error) {
	names, err := r.rdb.SMembers(ctx, r.indexKey()).Result()
	if err != nil {
		return nil, err
	}
	sort.Strings(names)

	pipe := r.rdb.Pipeline()
	lens := make([]*redis.IntCmd, len(names))
	stamps := make([]*redis.StringCmd, len(names))
	for i, name := range names {
		lens[i] = pipe.HStrLen(ctx, r.slotKey(name), "data")
		stamps[i] = pipe.HGet(ctx, r.slotKey(name), "updated_at")
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, err
	}

	result := make([]SlotInfo, 0, len(names))
	for i, name := range names {
		ts, err := stamps[i].Int64()
		if errors.Is(err, redis.Nil) {
			// index entry without a slot hash
			continue
		}
		result = append(result, SlotInfo{
			Name:      name,
			Size:      int(lens[i].Val()),
			UpdatedAt: time.Unix(ts, 0).UTC(),
		})
	}
	return result, nil
}

func (r *RedisStore) DeleteSlot(ctx context.Context, name string) error {
	if err := checkName(name); err != nil {
		return err
	}
	_, err := r.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, r.slotKey(name))
		pipe.SRem(ctx, r.indexKey(), name)
		return nil
	})
	return err
}

func (r *RedisStore) GetInt(ctx context.Context, key string) (int, error) {
	v, err := r.rdb.HGet(ctx, r.prefsKey(), key).Int()
	if errors.Is(err, redis.Nil) {
		return 0, ErrNotFound
	}
	return v, err
}

func (r *RedisStore) SetInt(ctx context.Context, key string, value int) error {
	return r.rdb.HSet(ctx, r.prefsKey(), key, value).Err()
}

func (r *RedisStore) Close() error {
	return r.rdb.Close()
}
