package infra

import (
	"context"
	"strings"
	"time"

	"userdata-gateway/middleware/ratelimit/domain"

	"github.com/redis/go-redis/v9"
)

// hitScript incrementa o contador e, só no primeiro hit da janela, fixa o TTL.
// Retorna {count, pttl}. Rodar como script garante que INCR e PEXPIRE sejam
// uma única operação mesmo com várias réplicas do gateway.
var hitScript = redis.NewScript(`
local c = redis.call("INCR", KEYS[1])
if c == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
local ttl = redis.call("PTTL", KEYS[1])
if ttl < 0 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
  ttl = tonumber(ARGV[1])
end
return {c, ttl}
`)

// RedisWindowStore é a versão compartilhada do WindowStore: a janela de cada
// cliente é uma chave com TTL, então a expiração é feita pelo próprio Redis.
type RedisWindowStore struct {
	rdb    redis.Scripter
	prefix string
	window time.Duration
	now    func() time.Time
}

type RedisWindowOption func(*RedisWindowStore)

func WithWindowPrefix(prefix string) RedisWindowOption {
	return func(s *RedisWindowStore) { s.prefix = strings.Trim(prefix, ":") }
}

func NewRedisWindowStore(rdb redis.Scripter, window time.Duration, opts ...RedisWindowOption) *RedisWindowStore {
	s := &RedisWindowStore{
		rdb:    rdb,
		prefix: "throttle:window",
		window: window,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *RedisWindowStore) Hit(ctx context.Context, key domain.Key) (domain.WindowState, error) {
	res, err := hitScript.Run(ctx, s.rdb, []string{s.prefix + ":" + string(key)}, s.window.Milliseconds()).Int64Slice()
	if err != nil {
		return domain.WindowState{}, err
	}

	now := s.now()
	resetAt := now.Add(time.Duration(res[1]) * time.Millisecond)
	return domain.WindowState{
		Count:   res[0],
		Start:   resetAt.Add(-s.window),
		ResetAt: resetAt,
	}, nil
}
