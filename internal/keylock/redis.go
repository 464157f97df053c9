package keylock

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"github.com/abhisek/ascend/internal/logger"
)

// RedisClient is the subset of a go-redis client the lock needs.
type RedisClient interface {
	SetNX(ctx context.Context, key string, value any, expiration time.Duration) *goredis.BoolCmd
	goredis.Scripter
}

// RedisOptions configures a Redis lock.
type RedisOptions struct {
	// Prefix is prepended to every key. Default "ascend:lock:".
	Prefix string
	// TTL bounds how long a crashed holder can keep a key. Default 30s.
	TTL time.Duration
	// Renew is how often a live holder extends its key. Default TTL/3.
	Renew time.Duration
	// Poll is the wait between acquisition attempts. Default 25ms.
	Poll time.Duration
}

// releaseScript deletes the key only if it still holds our token.
var releaseScript = goredis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

// renewScript extends the key's TTL only if it still holds our token.
var renewScript = goredis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0`)

// Redis is a Locker backed by SET NX PX. Contention inside one process is
// resolved by a Local first, so each process polls Redis with at most one
// goroutine per key. A held key is renewed until release, so the TTL only
// limits how long a crashed holder blocks others.
type Redis struct {
	client RedisClient
	local  *Local
	opts   RedisOptions
	log    *logger.Logger
}

// NewRedis creates a Redis lock over client.
func NewRedis(client RedisClient, opts RedisOptions, log *logger.Logger) *Redis {
	if opts.Prefix == "" {
		opts.Prefix = "ascend:lock:"
	}
	if opts.TTL <= 0 {
		opts.TTL = 30 * time.Second
	}
	if opts.Renew <= 0 || opts.Renew >= opts.TTL {
		opts.Renew = opts.TTL / 3
	}
	if opts.Poll <= 0 {
		opts.Poll = 25 * time.Millisecond
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Redis{
		client: client,
		local:  NewLocal(),
		opts:   opts,
		log:    log.With("component", "keylock"),
	}
}

// Dial connects to the Redis server at url (redis://host:port/db) and
// verifies it with PING.
func Dial(ctx context.Context, url string) (*goredis.Client, error) {
	opt, err := goredis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	rdb := goredis.NewClient(opt)

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return rdb, nil
}

func (r *Redis) Lock(ctx context.Context, key string) (func(), error) {
	unlockLocal, err := r.local.Lock(ctx, key)
	if err != nil {
		return nil, err
	}

	name := r.opts.Prefix + key
	token := uuid.NewString()
	for {
		ok, err := r.client.SetNX(ctx, name, token, r.opts.TTL).Result()
		if err != nil {
			unlockLocal()
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			return nil, fmt.Errorf("acquire %s: %w", name, err)
		}
		if ok {
			break
		}

		t := time.NewTimer(r.opts.Poll)
		select {
		case <-ctx.Done():
			t.Stop()
			unlockLocal()
			return nil, ctx.Err()
		case <-t.C:
		}
	}

	stop := make(chan struct{})
	done := make(chan struct{})
	go r.keepAlive(name, token, stop, done)

	var once sync.Once
	return func() {
		once.Do(func() {
			close(stop)
			<-done
			r.release(ctx, name, token)
		})
		unlockLocal()
	}, nil
}

// keepAlive extends the key every Renew until stop is closed or the key
// stops carrying token.
func (r *Redis) keepAlive(name, token string, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	t := time.NewTicker(r.opts.Renew)
	defer t.Stop()
	for {
		select {
		case <-stop:
			return
		case <-t.C:
		}

		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		n, err := renewScript.Run(ctx, r.client, []string{name}, token, r.opts.TTL.Milliseconds()).Int64()
		cancel()
		if err != nil && !errors.Is(err, goredis.Nil) {
			r.log.Warn("renew lock failed", "key", name, "error", err)
			continue
		}
		if n == 0 {
			r.log.Warn("lock expired while held", "key", name)
			return
		}
	}
}

// release runs even when the holder's ctx is done.
func (r *Redis) release(ctx context.Context, name, token string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
	defer cancel()
	if err := releaseScript.Run(ctx, r.client, []string{name}, token).Err(); err != nil && !errors.Is(err, goredis.Nil) {
		r.log.Warn("release lock failed; it expires with its ttl", "key", name, "error", err)
	}
}
