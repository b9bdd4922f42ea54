// Package config carrega a configuração do gateway com viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

const EnvPrefix = "USERDATA"

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.read_header_timeout", 10*time.Second)
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)
	v.SetDefault("server.idle_timeout", 90*time.Second)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)
	v.SetDefault("server.max_body_bytes", 4096)

	// mesmos números do slow-down original: 100 req em 15 min, +100ms por
	// requisição excedente, teto de 2s, bloqueio quando o teto é atingido
	v.SetDefault("throttle.enabled", true)
	v.SetDefault("throttle.backend", "memory")
	v.SetDefault("throttle.window", 15*time.Minute)
	v.SetDefault("throttle.threshold", 100)
	v.SetDefault("throttle.delay_step", 100*time.Millisecond)
	v.SetDefault("throttle.max_delay", 2*time.Second)
	v.SetDefault("throttle.hard_cap", 120)
	v.SetDefault("throttle.key_header", "")
	v.SetDefault("throttle.trust_xff", false)
	v.SetDefault("throttle.add_headers", false)
	v.SetDefault("throttle.max_keys", 100000)
	v.SetDefault("throttle.sweep_every", time.Minute)
	v.SetDefault("throttle.redis_prefix", "throttle:window")

	v.SetDefault("stats.enabled", true)
	v.SetDefault("stats.backend", "memory")
	v.SetDefault("stats.prefix", "throttle:stats")
	v.SetDefault("stats.ttl", 24*time.Hour)
	v.SetDefault("stats.bucket", "minute")
	v.SetDefault("stats.track_keys", false)

	v.SetDefault("concurrency.max", 100)
	v.SetDefault("concurrency.acquire_timeout", 0)

	v.SetDefault("identity.header", "X-Auth-Request-Email")
	v.SetDefault("identity.auto_provision", true)

	v.SetDefault("store.driver", "memory")
	v.SetDefault("store.path", "")
	v.SetDefault("store.url", "")
	v.SetDefault("store.auth_token", "")
	v.SetDefault("store.key_prefix", "userdata:user")
	v.SetDefault("store.timeout", 5*time.Second)

	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}

// Load monta a configuração a partir dos defaults, do arquivo em path
// (opcional) e do ambiente.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.WithMessagef(err, "read config file %s", path)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.WithMessage(err, "decode config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate confere as combinações que o binário não consegue usar.
func (c *Config) Validate() error {
	t := c.Throttle
	if t.Enabled {
		switch {
		case t.Window <= 0:
			return errors.New("throttle.window must be > 0")
		case t.Threshold < 0:
			return errors.New("throttle.threshold must be >= 0")
		case t.DelayStep < 0 || t.MaxDelay < 0:
			return errors.New("throttle.delay_step and throttle.max_delay must be >= 0")
		case t.HardCap > 0 && t.HardCap <= t.Threshold:
			return fmt.Errorf("throttle.hard_cap (%d) must be greater than throttle.threshold (%d)", t.HardCap, t.Threshold)
		}
		if err := oneOf("throttle.backend", t.Backend, "memory", "redis"); err != nil {
			return err
		}
	}
	if c.Stats.Enabled {
		if err := oneOf("stats.backend", c.Stats.Backend, "memory", "redis"); err != nil {
			return err
		}
	}
	if err := oneOf("store.driver", c.Store.Driver, "memory", "redis", "libsql"); err != nil {
		return err
	}
	if c.Store.Driver == "libsql" && strings.TrimSpace(c.Store.Path) == "" && strings.TrimSpace(c.Store.URL) == "" {
		return errors.New("store.path or store.url is required for the libsql driver")
	}
	if c.NeedsRedis() && strings.TrimSpace(c.Redis.Addr) == "" {
		return errors.New("redis.addr is required when a redis backend is selected")
	}
	if c.Concurrency.Max < 0 {
		return errors.New("concurrency.max must be >= 0")
	}
	if c.Server.MaxBodyBytes <= 0 {
		return errors.New("server.max_body_bytes must be > 0")
	}
	if err := oneOf("logging.format", c.Logging.Format, "json", "console"); err != nil {
		return err
	}
	return nil
}

func oneOf(name, value string, allowed ...string) error {
	for _, a := range allowed {
		if value == a {
			return nil
		}
	}
	return fmt.Errorf("%s must be one of %s, got %q", name, strings.Join(allowed, "|"), value)
}
