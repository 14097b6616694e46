package kvstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/park285/Cheese-RelayChess/internal/obslog"
)

// RedisStore keeps values under prefixed keys and announces every write on a
// companion pub/sub channel so waiters wake without polling.
type RedisStore struct {
	rdb   *redis.Client
	opts  Options
	owned bool
}

func NewRedisStore(rdb *redis.Client, opts Options) *RedisStore {
	return &RedisStore{rdb: rdb, opts: opts}
}

// OpenRedis dials rawURL (redis:// or rediss://) and verifies it with PING.
func OpenRedis(ctx context.Context, rawURL string, opts Options) (*RedisStore, error) {
	ro, err := parseRedisURL(rawURL)
	if err != nil {
		return nil, err
	}
	rdb := redis.NewClient(ro)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, unavailable("ping", ro.Addr, err)
	}
	obslog.L().Info("kvstore_redis_open", zap.String("addr", ro.Addr), zap.Int("db", ro.DB), zap.String("prefix", opts.Prefix))
	return &RedisStore{rdb: rdb, opts: opts, owned: true}, nil
}

func (s *RedisStore) channel(path string) string {
	return s.opts.Prefix + "notify:" + strings.TrimSpace(path)
}

func (s *RedisStore) Get(ctx context.Context, path string) ([]byte, error) {
	raw, err := s.rdb.Get(ctx, s.opts.key(path)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, unavailable("get", path, err)
	}
	return raw, nil
}

func (s *RedisStore) Set(ctx context.Context, path string, value []byte) error {
	_, err := s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.opts.key(path), value, s.opts.TTL)
		pipe.Publish(ctx, s.channel(path), value)
		return nil
	})
	if err != nil {
		return unavailable("set", path, err)
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, path string) error {
	_, err := s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, s.opts.key(path))
		pipe.Publish(ctx, s.channel(path), "")
		return nil
	})
	if err != nil {
		return unavailable("delete", path, err)
	}
	return nil
}

func (s *RedisStore) SetIfAbsent(ctx context.Context, path string, value []byte) (bool, error) {
	ok, err := s.rdb.SetNX(ctx, s.opts.key(path), value, s.opts.TTL).Result()
	if err != nil {
		return false, unavailable("setnx", path, err)
	}
	if ok {
		if err := s.rdb.Publish(ctx, s.channel(path), value).Err(); err != nil {
			return true, unavailable("publish", path, err)
		}
	}
	return ok, nil
}

// CompareAndSwap watches the key so a write by another client between the
// read and the update fails the transaction, which is then retried.
func (s *RedisStore) CompareAndSwap(ctx context.Context, path string, old, value []byte) (bool, error) {
	key := s.opts.key(path)
	for i := 0; i < casAttempts; i++ {
		swapped := false
		err := s.rdb.Watch(ctx, func(tx *redis.Tx) error {
			cur, err := tx.Get(ctx, key).Bytes()
			if err == redis.Nil {
				return nil
			}
			if err != nil {
				return err
			}
			if !bytes.Equal(cur, old) {
				return nil
			}
			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Set(ctx, key, value, s.opts.TTL)
				pipe.Publish(ctx, s.channel(path), value)
				return nil
			})
			swapped = err == nil
			return err
		}, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			return false, unavailable("cas", path, err)
		}
		return swapped, nil
	}
	return false, unavailable("cas", path, errContention)
}

// WaitFor subscribes before the first read so a write landing in between is
// still announced. The subscription reconnects on its own, so a periodic PING
// is what notices a dead server.
func (s *RedisStore) WaitFor(ctx context.Context, path string, expected []byte) ([]byte, error) {
	sub := s.rdb.Subscribe(ctx, s.channel(path))
	defer sub.Close()
	if _, err := sub.Receive(ctx); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, unavailable("subscribe", path, err)
	}

	if v, err := s.Get(ctx, path); err != nil || matches(v, expected) {
		return v, err
	}

	msgs := sub.Channel()
	tick, stop := pollTicker(s.opts.PollInterval)
	defer stop()
	health := time.NewTicker(s.opts.healthInterval())
	defer health.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case _, ok := <-msgs:
			if !ok {
				return nil, unavailable("wait", path, errors.New("subscription closed"))
			}
		case <-tick:
		case <-health.C:
			if err := s.rdb.Ping(ctx).Err(); err != nil {
				if ctx.Err() != nil {
					return nil, ctx.Err()
				}
				return nil, unavailable("ping", path, err)
			}
			continue
		}
		v, err := s.Get(ctx, path)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, err
		}
		if matches(v, expected) {
			return v, nil
		}
	}
}

func (s *RedisStore) Close() error {
	if s == nil || !s.owned {
		return nil
	}
	return s.rdb.Close()
}

func parseRedisURL(raw string) (*redis.Options, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return nil, err
	}
	if u.Scheme != "redis" && u.Scheme != "rediss" {
		return nil, fmt.Errorf("unsupported scheme: %s", u.Scheme)
	}
	db := 0
	if p := strings.TrimPrefix(u.Path, "/"); p != "" {
		n, err := strconv.Atoi(p)
		if err != nil {
			return nil, fmt.Errorf("invalid redis db %q", p)
		}
		db = n
	}
	pass, _ := u.User.Password()
	return &redis.Options{Addr: u.Host, Username: u.User.Username(), Password: pass, DB: db}, nil
}
