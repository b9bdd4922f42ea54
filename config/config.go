package config

import "time"

// Config é a configuração completa do gateway.
//
// Camadas, da mais fraca para a mais forte: defaults → arquivo YAML
// (--config) → variáveis de ambiente USERDATA_<SEÇÃO>_<CHAVE>
// (ex.: USERDATA_THROTTLE_HARD_CAP).
type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Throttle    ThrottleConfig    `mapstructure:"throttle"`
	Stats       StatsConfig       `mapstructure:"stats"`
	Concurrency ConcurrencyConfig `mapstructure:"concurrency"`
	Identity    IdentityConfig    `mapstructure:"identity"`
	Store       StoreConfig       `mapstructure:"store"`
	Redis       RedisConfig       `mapstructure:"redis"`
	Logging     LoggingConfig     `mapstructure:"logging"`
}

type ServerConfig struct {
	Addr              string        `mapstructure:"addr"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout"`
	ReadTimeout       time.Duration `mapstructure:"read_timeout"`
	WriteTimeout      time.Duration `mapstructure:"write_timeout"`
	IdleTimeout       time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout"`
	// MaxBodyBytes limita o corpo dos POST /api/update/*.
	MaxBodyBytes int64 `mapstructure:"max_body_bytes"`
}

// ThrottleConfig controla o slow-down de /api.
type ThrottleConfig struct {
	Enabled bool `mapstructure:"enabled"`
	// Backend: "memory" (por processo) ou "redis" (compartilhado entre réplicas).
	Backend   string        `mapstructure:"backend"`
	Window    time.Duration `mapstructure:"window"`
	Threshold int64         `mapstructure:"threshold"`
	DelayStep time.Duration `mapstructure:"delay_step"`
	MaxDelay  time.Duration `mapstructure:"max_delay"`
	HardCap   int64         `mapstructure:"hard_cap"`

	KeyHeader  string `mapstructure:"key_header"`
	TrustXFF   bool   `mapstructure:"trust_xff"`
	AddHeaders bool   `mapstructure:"add_headers"`

	MaxKeys     int           `mapstructure:"max_keys"`
	SweepEvery  time.Duration `mapstructure:"sweep_every"`
	RedisPrefix string        `mapstructure:"redis_prefix"`
}

type StatsConfig struct {
	Enabled   bool          `mapstructure:"enabled"`
	Backend   string        `mapstructure:"backend"`
	Prefix    string        `mapstructure:"prefix"`
	TTL       time.Duration `mapstructure:"ttl"`
	Bucket    string        `mapstructure:"bucket"`
	TrackKeys bool          `mapstructure:"track_keys"`
}

type ConcurrencyConfig struct {
	Max            int           `mapstructure:"max"`
	AcquireTimeout time.Duration `mapstructure:"acquire_timeout"`
}

type IdentityConfig struct {
	// Header preenchido pelo proxy autenticador com o e-mail verificado.
	Header        string `mapstructure:"header"`
	AutoProvision bool   `mapstructure:"auto_provision"`
}

// StoreConfig escolhe o storage dos registros de usuário.
type StoreConfig struct {
	// Driver: "memory", "redis" ou "libsql".
	Driver    string        `mapstructure:"driver"`
	Path      string        `mapstructure:"path"`
	URL       string        `mapstructure:"url"`
	AuthToken string        `mapstructure:"auth_token"`
	KeyPrefix string        `mapstructure:"key_prefix"`
	Timeout   time.Duration `mapstructure:"timeout"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type LoggingConfig struct {
	// Level: debug, info, warn, error
	Level string `mapstructure:"level"`
	// Format: json ou console
	Format string `mapstructure:"format"`
}

// NeedsRedis informa se algum componente configurado usa Redis.
func (c *Config) NeedsRedis() bool {
	return (c.Throttle.Enabled && c.Throttle.Backend == "redis") ||
		(c.Stats.Enabled && c.Stats.Backend == "redis") ||
		c.Store.Driver == "redis"
}
