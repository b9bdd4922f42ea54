package infra

import (
	"bytes"
	"context"
	"encoding/json"
	"net/url"
	"strconv"
	"strings"
	"time"

	"userdata-gateway/userdata/domain"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

// guardedWrite executa ARGV[1] em KEYS[2] só se o registro KEYS[1] existir.
// Retorna 0 quando o usuário não existe.
var guardedWrite = redis.NewScript(`
if redis.call("EXISTS", KEYS[1]) == 0 then
  return 0
end
redis.call(ARGV[1], KEYS[2], unpack(ARGV, 2))
return 1
`)

// RedisStore guarda cada usuário em chaves separadas por grupo:
//
//	<prefix>:{<email>}             hash  email, created_at (marca de existência)
//	<prefix>:{<email>}:settings    hash  chave -> valor JSON
//	<prefix>:{<email>}:statistics  hash  average, averageOf5
//	<prefix>:{<email>}:times       list  RPUSH (append atômico)
//
// <email> vai escapado com url.QueryEscape.
type RedisStore struct {
	rdb    redis.UniversalClient
	prefix string
}

type RedisStoreOption func(*RedisStore)

func WithKeyPrefix(prefix string) RedisStoreOption {
	return func(s *RedisStore) { s.prefix = strings.Trim(prefix, ":") }
}

func NewRedisStore(rdb redis.UniversalClient, opts ...RedisStoreOption) *RedisStore {
	s := &RedisStore{rdb: rdb, prefix: "userdata:user"}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// emailTag escapa o e-mail (sem ":" nem chaves) e o envolve em hash tag, então
// as chaves de um usuário nunca colidem com as de outro e caem no mesmo slot
// do cluster, como o script guardedWrite exige.
func emailTag(email string) string { return "{" + url.QueryEscape(email) + "}" }

func (s *RedisStore) userKey(email string) string { return s.prefix + ":" + emailTag(email) }

func (s *RedisStore) groupKey(email, group string) string {
	return s.userKey(email) + ":" + group
}

func (s *RedisStore) FindUser(ctx context.Context, email string) (domain.UserRecord, error) {
	pipe := s.rdb.Pipeline()
	exists := pipe.Exists(ctx, s.userKey(email))
	settings := pipe.HGetAll(ctx, s.groupKey(email, "settings"))
	stats := pipe.HGetAll(ctx, s.groupKey(email, "statistics"))
	times := pipe.LRange(ctx, s.groupKey(email, "times"), 0, -1)
	if _, err := pipe.Exec(ctx); err != nil {
		return domain.UserRecord{}, errors.WithMessage(err, "redis find user")
	}

	if exists.Val() == 0 {
		return domain.UserRecord{}, domain.ErrUserNotFound
	}

	rec := domain.UserRecord{
		Email:    email,
		Settings: make(map[string]any, len(settings.Val())),
		Times:    make([]int64, 0, len(times.Val())),
	}
	for k, raw := range settings.Val() {
		v, err := decodeSetting(raw)
		if err != nil {
			return domain.UserRecord{}, errors.WithMessagef(err, "decode setting %q", k)
		}
		rec.Settings[k] = v
	}

	var err error
	sv := stats.Val()
	if rec.Statistics.Average, err = parseOptionalInt(sv["average"]); err != nil {
		return domain.UserRecord{}, errors.WithMessage(err, "decode average")
	}
	if rec.Statistics.AverageOf5, err = parseOptionalInt(sv["averageOf5"]); err != nil {
		return domain.UserRecord{}, errors.WithMessage(err, "decode averageOf5")
	}

	for _, raw := range times.Val() {
		t, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return domain.UserRecord{}, errors.WithMessage(err, "decode time")
		}
		rec.Times = append(rec.Times, t)
	}
	return rec, nil
}

func (s *RedisStore) CreateUser(ctx context.Context, email string) error {
	ok, err := s.rdb.HSetNX(ctx, s.userKey(email), "email", email).Result()
	if err != nil {
		return errors.WithMessage(err, "redis create user")
	}
	if !ok {
		return domain.ErrUserExists
	}
	return s.rdb.HSet(ctx, s.userKey(email), "created_at", time.Now().UTC().Unix()).Err()
}

func (s *RedisStore) UpdateSettings(ctx context.Context, email, key string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return errors.WithMessage(err, "encode setting")
	}
	return s.guarded(ctx, email, "settings", "HSET", key, string(raw))
}

func (s *RedisStore) UpdateStatistics(ctx context.Context, email string, stats domain.Statistics) error {
	// um único HSET com os dois campos: substituição em bloco
	return s.guarded(ctx, email, "statistics", "HSET",
		"average", stats.Average,
		"averageOf5", stats.AverageOf5)
}

func (s *RedisStore) AddTime(ctx context.Context, email string, t int64) error {
	return s.guarded(ctx, email, "times", "RPUSH", t)
}

func (s *RedisStore) guarded(ctx context.Context, email, group, cmd string, args ...any) error {
	argv := append([]any{cmd}, args...)
	n, err := guardedWrite.Run(ctx, s.rdb, []string{s.userKey(email), s.groupKey(email, group)}, argv...).Int()
	if err != nil {
		return errors.WithMessagef(err, "redis %s %s", strings.ToLower(cmd), group)
	}
	if n == 0 {
		return domain.ErrUserNotFound
	}
	return nil
}

// decodeSetting devolve string ou int64, os únicos tipos que a validação deixa passar.
func decodeSetting(raw string) (any, error) {
	dec := json.NewDecoder(bytes.NewReader([]byte(raw)))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	if n, ok := v.(json.Number); ok {
		return n.Int64()
	}
	return v, nil
}

func parseOptionalInt(raw string) (int64, error) {
	if raw == "" {
		return 0, nil
	}
	return strconv.ParseInt(raw, 10, 64)
}
