package infra

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"userdata-gateway/middleware/ratelimit/domain"

	"github.com/redis/go-redis/v9"
)

const fieldDelayMs = "delay_ms"

// RedisStatsStore acumula as decisões do throttle no Redis. Cada série é um
// hash com os mesmos campos (allowed, delayed, denied, delay_ms):
//
//	<prefix>:total                 cumulativo, sem TTL
//	<prefix>:minute:<yyyymmddhhmm>  por minuto, com TTL
//	<prefix>:route:<METHOD path>    por rota, sem TTL
//	<prefix>:key:<cliente>          por cliente (opcional), com TTL
type RedisStatsStore struct {
	rdb redis.Cmdable

	prefix string
	ttl    time.Duration
	bucket string // "minute" (padrão) ou "none"

	trackKeys bool
}

type RedisStatsOption func(*RedisStatsStore)

func WithStatsPrefix(prefix string) RedisStatsOption {
	return func(s *RedisStatsStore) {
		s.prefix = strings.Trim(prefix, ":")
	}
}

func WithStatsTTL(d time.Duration) RedisStatsOption {
	return func(s *RedisStatsStore) { s.ttl = d }
}

func WithStatsBucket(bucket string) RedisStatsOption {
	return func(s *RedisStatsStore) { s.bucket = strings.ToLower(strings.TrimSpace(bucket)) }
}

func WithStatsTrackKeys(track bool) RedisStatsOption {
	return func(s *RedisStatsStore) { s.trackKeys = track }
}

func NewRedisStatsStore(rdb redis.Cmdable, opts ...RedisStatsOption) *RedisStatsStore {
	s := &RedisStatsStore{
		rdb:    rdb,
		prefix: "throttle:stats",
		ttl:    24 * time.Hour,
		bucket: "minute",
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type statsSeries struct {
	key    string
	expire bool
}

// series lista os hashes que um evento incrementa.
func (s *RedisStatsStore) series(ev domain.StatsEvent, at time.Time) []statsSeries {
	out := []statsSeries{{key: s.prefix + ":total"}}

	if s.bucket == "minute" {
		out = append(out, statsSeries{
			key:    fmt.Sprintf("%s:minute:%s", s.prefix, at.UTC().Format("200601021504")),
			expire: true,
		})
	}
	if route := routeOf(ev.Method, ev.Path); route != "" {
		out = append(out, statsSeries{key: s.prefix + ":route:" + route})
	}
	if k := strings.TrimSpace(string(ev.Key)); s.trackKeys && k != "" {
		out = append(out, statsSeries{key: s.prefix + ":key:" + k, expire: true})
	}
	return out
}

func (s *RedisStatsStore) Record(ctx context.Context, ev domain.StatsEvent) error {
	if s == nil || s.rdb == nil {
		return nil
	}

	at := ev.At
	if at.IsZero() {
		at = time.Now()
	}
	outcome := ev.Outcome
	if outcome == "" {
		outcome = domain.OutcomeAllowed
	}

	pipe := s.rdb.Pipeline()
	for _, ser := range s.series(ev, at) {
		pipe.HIncrBy(ctx, ser.key, string(outcome), 1)
		if ev.Delay > 0 {
			pipe.HIncrBy(ctx, ser.key, fieldDelayMs, ev.Delay.Milliseconds())
		}
		if ser.expire && s.ttl > 0 {
			pipe.Expire(ctx, ser.key, s.ttl)
		}
	}
	_, err := pipe.Exec(ctx)
	return err
}

// Total lê a série cumulativa. O segundo retorno é o atraso somado.
func (s *RedisStatsStore) Total(ctx context.Context) (Counters, time.Duration, error) {
	return s.read(ctx, s.prefix+":total")
}

// Route lê a série de uma rota ("POST", "/api/update/times").
func (s *RedisStatsStore) Route(ctx context.Context, method, path string) (Counters, time.Duration, error) {
	return s.read(ctx, s.prefix+":route:"+routeOf(method, path))
}

func (s *RedisStatsStore) read(ctx context.Context, key string) (Counters, time.Duration, error) {
	h, err := s.rdb.HGetAll(ctx, key).Result()
	if err != nil {
		return Counters{}, 0, err
	}

	var c Counters
	var delayMs int64
	for field, dst := range map[string]*int64{
		string(domain.OutcomeAllowed): &c.Allowed,
		string(domain.OutcomeDelayed): &c.Delayed,
		string(domain.OutcomeDenied):  &c.Denied,
		fieldDelayMs:                  &delayMs,
	} {
		raw, ok := h[field]
		if !ok {
			continue
		}
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return Counters{}, 0, fmt.Errorf("stats field %s of %s: %w", field, key, err)
		}
		*dst = n
	}
	return c, time.Duration(delayMs) * time.Millisecond, nil
}

func routeOf(method, path string) string {
	return strings.TrimSpace(strings.TrimSpace(method) + " " + strings.TrimSpace(path))
}
