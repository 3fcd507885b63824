package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const envPrefix = "HIMSOG"

type Config struct {
	Service   ServiceConfig   `mapstructure:"service"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Kafka     KafkaConfig     `mapstructure:"kafka"`
	Redis     RedisConfig     `mapstructure:"redis"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	Auth      AuthConfig      `mapstructure:"auth"`
	OTel      OTelConfig      `mapstructure:"otel"`
	Schedule  ScheduleConfig  `mapstructure:"schedule"`
	Sweep     SweepConfig     `mapstructure:"sweep"`
	Log       LogConfig       `mapstructure:"log"`
	HTTP      HTTPConfig      `mapstructure:"http"`
}

type ServiceConfig struct {
	Name string `mapstructure:"name"`
	Port string `mapstructure:"port"`
}

type DatabaseConfig struct {
	URL      string `mapstructure:"url"`
	MaxConns int32  `mapstructure:"max_conns"`
	MinConns int32  `mapstructure:"min_conns"`
}

type KafkaConfig struct {
	Brokers   string        `mapstructure:"brokers"`
	PollEvery time.Duration `mapstructure:"poll_every"`
	BatchSize int           `mapstructure:"batch_size"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type RateLimitConfig struct {
	Requests int           `mapstructure:"requests"`
	Window   time.Duration `mapstructure:"window"`
	FailOpen bool          `mapstructure:"fail_open"`
	Prefix   string        `mapstructure:"prefix"`
}

type AuthConfig struct {
	HS256Secret string        `mapstructure:"hs256_secret"`
	JWKSURL     string        `mapstructure:"jwks_url"`
	JWKSCache   time.Duration `mapstructure:"jwks_cache"`
	Issuer      string        `mapstructure:"issuer"`
}

type OTelConfig struct {
	Enabled     bool    `mapstructure:"enabled"`
	Endpoint    string  `mapstructure:"endpoint"`
	SampleRatio float64 `mapstructure:"sample_ratio"`
}

type ScheduleConfig struct {
	// UTCOffset is the single provider-local offset, e.g. "+08:00".
	UTCOffset string `mapstructure:"utc_offset"`
}

type SweepConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	Schedule     string        `mapstructure:"schedule"`
	Grace        time.Duration `mapstructure:"grace"`
	BatchSize    int           `mapstructure:"batch_size"`
	AutoComplete bool          `mapstructure:"auto_complete"`
}

type LogConfig struct {
	Level      string `mapstructure:"level"`
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
}

type HTTPConfig struct {
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	BodyLimitBytes int64         `mapstructure:"body_limit_bytes"`
	CORSOrigins    []string      `mapstructure:"cors_origins"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("service.name", "scheduling-service")
	v.SetDefault("service.port", "8083")

	v.SetDefault("database.url", "")
	v.SetDefault("database.max_conns", 10)
	v.SetDefault("database.min_conns", 1)

	v.SetDefault("kafka.brokers", "")
	v.SetDefault("kafka.poll_every", 2*time.Second)
	v.SetDefault("kafka.batch_size", 50)

	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("rate_limit.requests", 60)
	v.SetDefault("rate_limit.window", time.Minute)
	v.SetDefault("rate_limit.fail_open", true)
	v.SetDefault("rate_limit.prefix", "himsog:rl")

	v.SetDefault("auth.hs256_secret", "")
	v.SetDefault("auth.jwks_url", "")
	v.SetDefault("auth.jwks_cache", 5*time.Minute)
	v.SetDefault("auth.issuer", "")

	v.SetDefault("otel.enabled", false)
	v.SetDefault("otel.endpoint", "jaeger:4317")
	v.SetDefault("otel.sample_ratio", 1.0)

	v.SetDefault("schedule.utc_offset", "+08:00")

	v.SetDefault("sweep.enabled", true)
	v.SetDefault("sweep.schedule", "@every 5m")
	v.SetDefault("sweep.grace", 15*time.Minute)
	v.SetDefault("sweep.batch_size", 100)
	v.SetDefault("sweep.auto_complete", false)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.file", "")
	v.SetDefault("log.max_size_mb", 100)
	v.SetDefault("log.max_backups", 5)
	v.SetDefault("log.max_age_days", 14)

	v.SetDefault("http.request_timeout", 10*time.Second)
	v.SetDefault("http.body_limit_bytes", 1<<20)
	v.SetDefault("http.cors_origins", []string{})
}

// Load reads defaults, an optional config file and HIMSOG_* environment
// variables, in that order of precedence (env wins).
func Load(path string) (Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	// AutomaticEnv yields a single string for list keys.
	cfg.HTTP.CORSOrigins = SplitList(strings.Join(cfg.HTTP.CORSOrigins, ","))
	return cfg, nil
}

func (c Config) Validate() error {
	var errs []error
	if c.Database.URL == "" {
		errs = append(errs, errors.New("database.url is required"))
	}
	if err := validPort(c.Service.Port); err != nil {
		errs = append(errs, err)
	}
	if c.Database.MinConns > c.Database.MaxConns {
		errs = append(errs, fmt.Errorf("database.min_conns (%d) exceeds max_conns (%d)", c.Database.MinConns, c.Database.MaxConns))
	}
	if c.Auth.HS256Secret == "" && c.Auth.JWKSURL == "" {
		errs = append(errs, errors.New("one of auth.hs256_secret or auth.jwks_url is required"))
	}
	if c.OTel.SampleRatio < 0 || c.OTel.SampleRatio > 1 {
		errs = append(errs, fmt.Errorf("otel.sample_ratio must be within [0,1] (got %v)", c.OTel.SampleRatio))
	}
	if strings.TrimSpace(c.Schedule.UTCOffset) == "" {
		errs = append(errs, errors.New("schedule.utc_offset is required"))
	}
	if c.Sweep.Enabled && strings.TrimSpace(c.Sweep.Schedule) == "" {
		errs = append(errs, errors.New("sweep.schedule is required when sweep is enabled"))
	}
	if c.Sweep.Grace < 0 {
		errs = append(errs, errors.New("sweep.grace must not be negative"))
	}
	return errors.Join(errs...)
}

func validPort(v string) error {
	p, err := strconv.Atoi(v)
	if err != nil || p < 1 || p > 65535 {
		return fmt.Errorf("service.port must be a valid TCP port (got %q)", v)
	}
	return nil
}

func SplitList(raw string) []string {
	items := strings.Split(raw, ",")
	out := make([]string, 0, len(items))
	for _, item := range items {
		if trimmed := strings.TrimSpace(item); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
