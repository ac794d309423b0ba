// Package cache puts a Redis read-through cache in front of student and
// course lookups. Imports resolve the same few references many times, so the
// cache sits between the import pipeline and the store.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/JonMunkholm/gradebook/internal/config"
	"github.com/JonMunkholm/gradebook/internal/core"
	"github.com/JonMunkholm/gradebook/internal/logging"
	goredis "github.com/redis/go-redis/v9"
)

const keyPrefix = "gradebook:"

// Connect opens a Redis client for cfg and verifies it with a ping.
func Connect(ctx context.Context, cfg config.CacheConfig) (*goredis.Client, error) {
	rdb := goredis.NewClient(&goredis.Options{
		Addr:        cfg.RedisAddr,
		Password:    cfg.RedisPassword,
		DB:          cfg.RedisDB,
		DialTimeout: cfg.DialTimeout,
	})

	ctx, cancel := context.WithTimeout(ctx, cfg.DialTimeout)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return rdb, nil
}

// Directory is a core.Directory that caches successful lookups in Redis.
// Misses and not-found answers always go to the backing directory, and a
// Redis failure degrades to an uncached lookup.
type Directory struct {
	rdb     goredis.Cmdable
	backing core.Directory
	ttl     time.Duration
}

var _ core.Directory = (*Directory)(nil)

// NewDirectory wraps backing with a cache whose entries expire after ttl.
func NewDirectory(rdb goredis.Cmdable, backing core.Directory, ttl time.Duration) *Directory {
	return &Directory{rdb: rdb, backing: backing, ttl: ttl}
}

func studentKey(id string) string { return keyPrefix + "student:" + id }
func courseKey(id string) string  { return keyPrefix + "course:" + id }

func (d *Directory) StudentByID(ctx context.Context, id string) (core.Student, error) {
	return readThrough(ctx, d, studentKey(id), func() (core.Student, error) {
		return d.backing.StudentByID(ctx, id)
	})
}

func (d *Directory) CourseByID(ctx context.Context, id string) (core.Course, error) {
	return readThrough(ctx, d, courseKey(id), func() (core.Course, error) {
		return d.backing.CourseByID(ctx, id)
	})
}

func readThrough[T any](ctx context.Context, d *Directory, key string, load func() (T, error)) (T, error) {
	log := logging.FromContext(ctx)

	raw, err := d.rdb.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var v T
		if jsonErr := json.Unmarshal(raw, &v); jsonErr == nil {
			return v, nil
		}
		log.Warn("cache: dropping undecodable entry", "key", key)
		d.rdb.Del(ctx, key)
	case errors.Is(err, goredis.Nil):
		// miss
	default:
		log.Warn("cache: get failed", "key", key, "error", err)
	}

	v, err := load()
	if err != nil {
		return v, err
	}

	if encoded, err := json.Marshal(v); err == nil {
		if err := d.rdb.Set(ctx, key, encoded, d.ttl).Err(); err != nil {
			log.Warn("cache: set failed", "key", key, "error", err)
		}
	}
	return v, nil
}
