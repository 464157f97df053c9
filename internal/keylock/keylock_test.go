package keylock

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

// exercise runs n goroutines that each do a non-atomic read-modify-write
// under the lock and reports the final count.
func exercise(t *testing.T, l Locker, key string, n int) int {
	t.Helper()
	counter := 0
	var g errgroup.Group
	for range n {
		g.Go(func() error {
			unlock, err := l.Lock(context.Background(), key)
			if err != nil {
				return err
			}
			defer unlock()
			v := counter
			time.Sleep(time.Microsecond)
			counter = v + 1
			return nil
		})
	}
	require.NoError(t, g.Wait())
	return counter
}

func TestLocal_Serializes(t *testing.T) {
	l := NewLocal()
	assert.Equal(t, 50, exercise(t, l, "alice/1", 50))
	assert.Zero(t, l.held(), "slots should be released")
}

func TestLocal_IndependentKeys(t *testing.T) {
	l := NewLocal()
	unlockA, err := l.Lock(context.Background(), "a")
	require.NoError(t, err)
	defer unlockA()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	unlockB, err := l.Lock(ctx, "b")
	require.NoError(t, err, "a held key must not block another key")
	unlockB()
}

func TestLocal_ContextCancelWhileWaiting(t *testing.T) {
	l := NewLocal()
	unlock, err := l.Lock(context.Background(), "k")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = l.Lock(ctx, "k")
	require.ErrorIs(t, err, context.DeadlineExceeded)

	unlock()
	unlock() // idempotent
	assert.Zero(t, l.held())

	unlock, err = l.Lock(context.Background(), "k")
	require.NoError(t, err)
	unlock()
}

// fakeRedis implements SET NX and the release and renew scripts over a map.
type fakeRedis struct {
	goredis.Scripter

	mu       sync.Mutex
	vals     map[string]string
	setCalls int
	renewals int
	failSet  error
}

func newFakeRedis() *fakeRedis { return &fakeRedis{vals: make(map[string]string)} }

func (f *fakeRedis) SetNX(_ context.Context, key string, value any, _ time.Duration) *goredis.BoolCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.setCalls++
	if f.failSet != nil {
		return goredis.NewBoolResult(false, f.failSet)
	}
	if _, ok := f.vals[key]; ok {
		return goredis.NewBoolResult(false, nil)
	}
	f.vals[key] = value.(string)
	return goredis.NewBoolResult(true, nil)
}

func (f *fakeRedis) EvalSha(_ context.Context, sha string, keys []string, args ...any) *goredis.Cmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if sha == renewScript.Hash() {
		if f.vals[keys[0]] != args[0] {
			return goredis.NewCmdResult(int64(0), nil)
		}
		f.renewals++
		return goredis.NewCmdResult(int64(1), nil)
	}
	if f.vals[keys[0]] == args[0] {
		delete(f.vals, keys[0])
		return goredis.NewCmdResult(int64(1), nil)
	}
	return goredis.NewCmdResult(int64(0), nil)
}

func (f *fakeRedis) get(key string) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.vals[key]
	return v, ok
}

func (f *fakeRedis) renewCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.renewals
}

func (f *fakeRedis) set(key, val string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.vals[key] = val
}

func TestRedis_Serializes(t *testing.T) {
	rdb := newFakeRedis()
	l := NewRedis(rdb, RedisOptions{Poll: time.Millisecond}, nil)

	assert.Equal(t, 20, exercise(t, l, "bob/2", 20))
	_, held := rdb.get("ascend:lock:bob/2")
	assert.False(t, held, "key should be deleted after release")
}

func TestRedis_WaitsForOtherInstance(t *testing.T) {
	rdb := newFakeRedis()
	rdb.set("ascend:lock:k", "other-instance")
	l := NewRedis(rdb, RedisOptions{Poll: time.Millisecond}, nil)

	go func() {
		time.Sleep(5 * time.Millisecond)
		rdb.EvalSha(context.Background(), "", []string{"ascend:lock:k"}, "other-instance")
	}()

	unlock, err := l.Lock(context.Background(), "k")
	require.NoError(t, err)
	token, _ := rdb.get("ascend:lock:k")
	assert.NotEqual(t, "other-instance", token)
	unlock()
}

func TestRedis_DoesNotReleaseForeignToken(t *testing.T) {
	rdb := newFakeRedis()
	l := NewRedis(rdb, RedisOptions{}, nil)

	unlock, err := l.Lock(context.Background(), "k")
	require.NoError(t, err)
	// TTL expired and another instance took over.
	rdb.set("ascend:lock:k", "someone-else")
	unlock()

	v, ok := rdb.get("ascend:lock:k")
	assert.True(t, ok)
	assert.Equal(t, "someone-else", v)
}

func TestRedis_Errors(t *testing.T) {
	rdb := newFakeRedis()
	rdb.failSet = errors.New("connection refused")
	l := NewRedis(rdb, RedisOptions{}, nil)

	_, err := l.Lock(context.Background(), "k")
	require.ErrorContains(t, err, "connection refused")
	assert.Zero(t, l.local.held(), "local slot must be released on failure")

	rdb.failSet = nil
	rdb.set("ascend:lock:busy", "x")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = l.Lock(ctx, "busy")
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestRedis_RenewsWhileHeld(t *testing.T) {
	rdb := newFakeRedis()
	l := NewRedis(rdb, RedisOptions{TTL: 30 * time.Millisecond, Renew: 2 * time.Millisecond}, nil)

	unlock, err := l.Lock(context.Background(), "slow")
	require.NoError(t, err)
	assert.Eventually(t, func() bool { return rdb.renewCount() >= 3 }, time.Second, time.Millisecond,
		"a holder outliving its ttl keeps the key")
	unlock()

	_, held := rdb.get("ascend:lock:slow")
	assert.False(t, held)
	after := rdb.renewCount()
	time.Sleep(10 * time.Millisecond)
	assert.Equal(t, after, rdb.renewCount(), "renewal stops at release")
}

func TestRedis_StopsRenewingLostKey(t *testing.T) {
	rdb := newFakeRedis()
	l := NewRedis(rdb, RedisOptions{TTL: 30 * time.Millisecond, Renew: 5 * time.Millisecond}, nil)

	unlock, err := l.Lock(context.Background(), "k")
	require.NoError(t, err)
	defer unlock()
	rdb.set("ascend:lock:k", "someone-else")

	time.Sleep(20 * time.Millisecond)
	assert.Zero(t, rdb.renewCount(), "a foreign token is never extended")
}

func TestNewRedis_RenewDefaults(t *testing.T) {
	l := NewRedis(newFakeRedis(), RedisOptions{TTL: 9 * time.Second}, nil)
	assert.Equal(t, 3*time.Second, l.opts.Renew)

	l = NewRedis(newFakeRedis(), RedisOptions{TTL: time.Second, Renew: 2 * time.Second}, nil)
	assert.Equal(t, time.Second/3, l.opts.Renew, "renewing slower than the ttl would let the key lapse")
}
