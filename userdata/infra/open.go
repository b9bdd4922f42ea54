package infra

import (
	"context"
	"fmt"
	"io"

	"userdata-gateway/config"
	"userdata-gateway/userdata/domain"

	"github.com/redis/go-redis/v9"
)

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// Open monta o Store escolhido por cfg.Driver. O Closer devolvido libera os
// recursos do próprio store; o cliente Redis é de quem chamou.
func Open(ctx context.Context, cfg config.StoreConfig, rdb redis.UniversalClient) (domain.Store, io.Closer, error) {
	switch cfg.Driver {
	case "", "memory":
		return NewMemoryStore(), nopCloser{}, nil
	case "redis":
		if rdb == nil {
			return nil, nil, fmt.Errorf("store driver redis requires a redis client")
		}
		var opts []RedisStoreOption
		if cfg.KeyPrefix != "" {
			opts = append(opts, WithKeyPrefix(cfg.KeyPrefix))
		}
		return NewRedisStore(rdb, opts...), nopCloser{}, nil
	case "libsql":
		s, err := OpenSQLStore(ctx, cfg)
		if err != nil {
			return nil, nil, err
		}
		return s, s, nil
	default:
		return nil, nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}
