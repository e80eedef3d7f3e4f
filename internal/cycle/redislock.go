package cycle

import (
	"context"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	logx "dealwatch/pkg/logx"
)

// releaseScript deletes the key only while it still holds our token, so an
// expired holder cannot release a lock someone else acquired since.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0`)

// extendScript pushes the expiry forward while the key still holds our token.
var extendScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0`)

// RedisLocker shares the single-flight guard between processes through a
// SET NX PX key.
type RedisLocker struct {
	client redis.UniversalClient
	key    string
	log    logx.Logger
}

func NewRedisLocker(client redis.UniversalClient, key string, log logx.Logger) *RedisLocker {
	if key == "" {
		key = "dealwatch:cycle"
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &RedisLocker{client: client, key: key, log: log}
}

func (l *RedisLocker) Acquire(ctx context.Context, ttl time.Duration) (func(), error) {
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, l.key, token, ttl).Result()
	if err != nil {
		return nil, errors.Wrapf(err, "redis lock %s", l.key)
	}
	if !ok {
		return nil, ErrLocked
	}

	stop := make(chan struct{})
	renewed := make(chan struct{})
	go func() {
		defer close(renewed)
		l.keepAlive(token, ttl, stop)
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			close(stop)
			<-renewed
			// The cycle context may already be canceled at release time.
			rctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := releaseScript.Run(rctx, l.client, []string{l.key}, token).Err(); err != nil && !errors.Is(err, redis.Nil) {
				l.log.Warn("redis lock release failed", logx.String("key", l.key), logx.Err(err))
			}
		})
	}, nil
}

// keepAlive extends the lock every third of its ttl until stop closes, so a
// cycle that outlives ttl keeps other processes out. It gives up once the
// key no longer holds token.
func (l *RedisLocker) keepAlive(token string, ttl time.Duration, stop <-chan struct{}) {
	t := time.NewTicker(ttl / 3)
	defer t.Stop()
	for {
		select {
		case <-stop:
			return
		case <-t.C:
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		n, err := extendScript.Run(ctx, l.client, []string{l.key}, token, ttl.Milliseconds()).Int()
		cancel()
		switch {
		case err != nil:
			l.log.Warn("redis lock renew failed", logx.String("key", l.key), logx.Err(err))
		case n == 0:
			l.log.Warn("redis lock lost before the cycle finished", logx.String("key", l.key))
			return
		}
	}
}

// RedisOptions configures the shared lock connection.
type RedisOptions struct {
	Addr        string
	Username    string
	Password    string
	DB          int
	DialTimeout time.Duration
	PingTimeout time.Duration
}

// DialRedis connects and pings once; a lock that cannot be reached at
// startup is a configuration error.
func DialRedis(ctx context.Context, opts RedisOptions) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:        opts.Addr,
		Username:    opts.Username,
		Password:    opts.Password,
		DB:          opts.DB,
		DialTimeout: opts.DialTimeout,
	})
	pt := opts.PingTimeout
	if pt <= 0 {
		pt = 3 * time.Second
	}
	pctx, cancel := context.WithTimeout(ctx, pt)
	defer cancel()
	if err := client.Ping(pctx).Err(); err != nil {
		_ = client.Close()
		return nil, errors.Wrapf(err, "redis ping %s", opts.Addr)
	}
	return client, nil
}
