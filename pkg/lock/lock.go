// Package lock keeps two workers from transcoding the same video at once.
package lock

import (
	"context"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"sync"
	"time"
)

// Locker hands out exclusive, non-blocking claims on a key. ok is false
// when another holder has the key.
type Locker interface {
	TryLock(ctx context.Context, key string) (release func(), ok bool, err error)
}

// Local is an in-process Locker.
type Local struct {
	mu   sync.Mutex
	held map[string]struct{}
}

func NewLocal() *Local {
	return &Local{held: make(map[string]struct{})}
}

func (l *Local) TryLock(_ context.Context, key string) (func(), bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, busy := l.held[key]; busy {
		return nil, false, nil
	}
	l.held[key] = struct{}{}

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			delete(l.held, key)
			l.mu.Unlock()
		})
	}, true, nil
}

var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

var extendScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)

// Redis is a Locker shared by worker processes. A held key is extended
// every third of the TTL until released, so the TTL only bounds how long
// a crashed holder keeps the key.
type Redis struct {
	client *redis.Client
	ttl    time.Duration
	prefix string
}

func NewRedis(client *redis.Client, ttl time.Duration) *Redis {
	if ttl <= 0 {
		ttl = 3 * time.Hour
	}
	return &Redis{client: client, ttl: ttl, prefix: "transcode:lock:"}
}

func (r *Redis) TryLock(ctx context.Context, key string) (func(), bool, error) {
	token := uuid.NewString()
	name := r.prefix + key
	ok, err := r.client.SetNX(ctx, name, token, r.ttl).Result()
	if err != nil || !ok {
		return nil, false, err
	}

	log := zerolog.Ctx(ctx).With().Str("lock", name).Logger()
	stop := keepAlive(log.WithContext(ctx), r.ttl/3, func(ctx context.Context) (bool, error) {
		held, err := extendScript.Run(ctx, r.client, []string{name}, token, r.ttl.Milliseconds()).Int()
		return held == 1, err
	})

	var once sync.Once
	return func() {
		once.Do(func() {
			stop()
			// The caller's context may already be done when releasing.
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = releaseScript.Run(ctx, r.client, []string{name}, token).Err()
		})
	}, true, nil
}

// keepAlive calls extend every interval until the returned stop is called
// or extend reports the claim is gone. It outlives ctx cancellation; only
// stop ends it. stop waits for the loop to exit.
func keepAlive(ctx context.Context, interval time.Duration, extend func(context.Context) (bool, error)) (stop func()) {
	if interval <= 0 {
		interval = time.Second
	}
	log := zerolog.Ctx(ctx)
	ctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	done := make(chan struct{})

	go func() {
		defer close(done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}

			held, err := extend(ctx)
			switch {
			case ctx.Err() != nil:
				return
			case err != nil:
				log.Warn().Err(err).Msg("failed to extend lock")
			case !held:
				log.Error().Msg("lock lost while held")
				return
			}
		}
	}()

	return func() {
		cancel()
		<-done
	}
}
