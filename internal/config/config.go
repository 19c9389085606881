package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds runtime configuration for the dashboard.
type Config struct {
	Log       LogConfig       `mapstructure:"log"`
	Server    ServerConfig    `mapstructure:"server"`
	Store     StoreConfig     `mapstructure:"store"`
	Kafka     KafkaConfig     `mapstructure:"kafka"`
	Alerts    AlertsConfig    `mapstructure:"alerts"`
	Series    SeriesConfig    `mapstructure:"series"`
	Dashboard DashboardConfig `mapstructure:"dashboard"`
}

// LogConfig controls the global logger
type LogConfig struct {
	Level string `mapstructure:"level"`
}

// ServerConfig holds HTTP server settings
type ServerConfig struct {
	Addr         string        `mapstructure:"addr"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
	MaxBodySize  int64         `mapstructure:"max_body_size"`
}

// StoreConfig selects and configures the reading store
type StoreConfig struct {
	// Backend: memory or redis
	Backend      string        `mapstructure:"backend"`
	FetchTimeout time.Duration `mapstructure:"fetch_timeout"`
	// Readings kept per user by the memory backend
	MemoryCapacity int         `mapstructure:"memory_capacity"`
	Redis          RedisConfig `mapstructure:"redis"`
}

// RedisConfig holds redis connection settings
type RedisConfig struct {
	Addr      string `mapstructure:"addr"`
	Password  string `mapstructure:"password"`
	DB        int    `mapstructure:"db"`
	KeyPrefix string `mapstructure:"key_prefix"`
}

// KafkaConfig holds settings of the notification topic
type KafkaConfig struct {
	Enabled  bool           `mapstructure:"enabled"`
	Brokers  []string       `mapstructure:"brokers"`
	Topic    string         `mapstructure:"topic"`
	Producer ProducerConfig `mapstructure:"producer"`
}

// ProducerConfig tunes the kafka producer and the notification batcher
type ProducerConfig struct {
	QueueSize    int           `mapstructure:"queue_size"`
	BatchSize    int           `mapstructure:"batch_size"`
	BatchTimeout time.Duration `mapstructure:"batch_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	RequiredAcks int           `mapstructure:"required_acks"`
	Compression  string        `mapstructure:"compression"`
	MaxRetries   int           `mapstructure:"max_retries"`
	RetryBackoff time.Duration `mapstructure:"retry_backoff"`
}

// AlertsConfig holds threshold rules and deadband
type AlertsConfig struct {
	Deadband           time.Duration `mapstructure:"deadband"`
	CriticalWaterLevel float64       `mapstructure:"critical_water_level"`
	LowWaterLevel      float64       `mapstructure:"low_water_level"`
	HumidityMin        float64       `mapstructure:"humidity_min"`
	HumidityMax        float64       `mapstructure:"humidity_max"`
	TemperatureMin     float64       `mapstructure:"temperature_min"`
	TemperatureMax     float64       `mapstructure:"temperature_max"`
	// IANA zone used to format timestamps
	Timezone string `mapstructure:"timezone"`
}

// SeriesConfig holds chart display bounds
type SeriesConfig struct {
	LiveWindow      int `mapstructure:"live_window"`
	DisplayWindow   int `mapstructure:"display_window"`
	MinScalars      int `mapstructure:"min_scalars"`
	DefaultResample int `mapstructure:"default_resample"`
	MaxBuckets      int `mapstructure:"max_buckets"`
}

// DashboardConfig holds live-mode settings
type DashboardConfig struct {
	PollInterval time.Duration `mapstructure:"poll_interval"`
}

// Default returns a sensible default config for local dev.
func Default() *Config {
	return &Config{
		Log: LogConfig{Level: "info"},
		Server: ServerConfig{
			Addr:         ":8080",
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
			IdleTimeout:  60 * time.Second,
			MaxBodySize:  1 << 20,
		},
		Store: StoreConfig{
			Backend:        "memory",
			FetchTimeout:   5 * time.Second,
			MemoryCapacity: 10000,
			Redis: RedisConfig{
				Addr:      "localhost:6379",
				KeyPrefix: "sensor_data:",
			},
		},
		Kafka: KafkaConfig{
			Enabled: false,
			Brokers: []string{"localhost:9092"},
			Topic:   "farm.notifications",
			Producer: ProducerConfig{
				QueueSize:    1000,
				BatchSize:    50,
				BatchTimeout: 100 * time.Millisecond,
				WriteTimeout: 10 * time.Second,
				RequiredAcks: 1,
				Compression:  "snappy",
				MaxRetries:   3,
				RetryBackoff: 100 * time.Millisecond,
			},
		},
		Alerts: AlertsConfig{
			Deadband:           time.Second,
			CriticalWaterLevel: 10,
			LowWaterLevel:      40,
			HumidityMin:        0,
			HumidityMax:        50,
			TemperatureMin:     0,
			TemperatureMax:     30,
			Timezone:           "UTC",
		},
		Series: SeriesConfig{
			LiveWindow:      100,
			DisplayWindow:   1000,
			MinScalars:      50,
			DefaultResample: 25,
			MaxBuckets:      10000,
		},
		Dashboard: DashboardConfig{
			PollInterval: 100 * time.Millisecond,
		},
	}
}

// Load overlays config.yaml from dir (when present) and AGRIBOT_*
// environment variables on Default. A .env.local file in the working
// directory is loaded into the environment first.
func Load(dir string) (*Config, error) {
	_ = godotenv.Load(".env.local")

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(dir)
	v.SetEnvPrefix("agribot")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v, Default())

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// setDefaults registers every default so AutomaticEnv can override it
func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("log.level", d.Log.Level)

	v.SetDefault("server.addr", d.Server.Addr)
	v.SetDefault("server.read_timeout", d.Server.ReadTimeout)
	v.SetDefault("server.write_timeout", d.Server.WriteTimeout)
	v.SetDefault("server.idle_timeout", d.Server.IdleTimeout)
	v.SetDefault("server.max_body_size", d.Server.MaxBodySize)

	v.SetDefault("store.backend", d.Store.Backend)
	v.SetDefault("store.fetch_timeout", d.Store.FetchTimeout)
	v.SetDefault("store.memory_capacity", d.Store.MemoryCapacity)
	v.SetDefault("store.redis.addr", d.Store.Redis.Addr)
	v.SetDefault("store.redis.password", d.Store.Redis.Password)
	v.SetDefault("store.redis.db", d.Store.Redis.DB)
	v.SetDefault("store.redis.key_prefix", d.Store.Redis.KeyPrefix)

	v.SetDefault("kafka.enabled", d.Kafka.Enabled)
	v.SetDefault("kafka.brokers", d.Kafka.Brokers)
	v.SetDefault("kafka.topic", d.Kafka.Topic)
	v.SetDefault("kafka.producer.queue_size", d.Kafka.Producer.QueueSize)
	v.SetDefault("kafka.producer.batch_size", d.Kafka.Producer.BatchSize)
	v.SetDefault("kafka.producer.batch_timeout", d.Kafka.Producer.BatchTimeout)
	v.SetDefault("kafka.producer.write_timeout", d.Kafka.Producer.WriteTimeout)
	v.SetDefault("kafka.producer.required_acks", d.Kafka.Producer.RequiredAcks)
	v.SetDefault("kafka.producer.compression", d.Kafka.Producer.Compression)
	v.SetDefault("kafka.producer.max_retries", d.Kafka.Producer.MaxRetries)
	v.SetDefault("kafka.producer.retry_backoff", d.Kafka.Producer.RetryBackoff)

	v.SetDefault("alerts.deadband", d.Alerts.Deadband)
	v.SetDefault("alerts.critical_water_level", d.Alerts.CriticalWaterLevel)
	v.SetDefault("alerts.low_water_level", d.Alerts.LowWaterLevel)
	v.SetDefault("alerts.humidity_min", d.Alerts.HumidityMin)
	v.SetDefault("alerts.humidity_max", d.Alerts.HumidityMax)
	v.SetDefault("alerts.temperature_min", d.Alerts.TemperatureMin)
	v.SetDefault("alerts.temperature_max", d.Alerts.TemperatureMax)
	v.SetDefault("alerts.timezone", d.Alerts.Timezone)

	v.SetDefault("series.live_window", d.Series.LiveWindow)
	v.SetDefault("series.display_window", d.Series.DisplayWindow)
	v.SetDefault("series.min_scalars", d.Series.MinScalars)
	v.SetDefault("series.default_resample", d.Series.DefaultResample)
	v.SetDefault("series.max_buckets", d.Series.MaxBuckets)

	v.SetDefault("dashboard.poll_interval", d.Dashboard.PollInterval)
}

// Validation errors
var (
	ErrUnknownBackend  = errors.New("unknown store backend")
	ErrInvalidWater    = errors.New("critical water level must not exceed low water level")
	ErrInvalidResample = errors.New("default resample must be within 1-50 seconds")
	ErrNoBrokers       = errors.New("kafka enabled without brokers")
	ErrInvalidTimezone = errors.New("unknown alerts timezone")
)

// Validate checks cross-field constraints
func (c *Config) Validate() error {
	switch c.Store.Backend {
	case "memory", "redis":
	default:
		return fmt.Errorf("%w: %q", ErrUnknownBackend, c.Store.Backend)
	}
	if c.Alerts.CriticalWaterLevel > c.Alerts.LowWaterLevel {
		return ErrInvalidWater
	}
	if c.Series.DefaultResample < 1 || c.Series.DefaultResample > 50 {
		return ErrInvalidResample
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return ErrNoBrokers
	}
	if c.Alerts.Timezone != "" {
		if _, err := time.LoadLocation(c.Alerts.Timezone); err != nil {
			return fmt.Errorf("%w: %q", ErrInvalidTimezone, c.Alerts.Timezone)
		}
	}
	return nil
}

// Location resolves the configured timezone. Validate rejects unknown
// names, so only an empty timezone maps to UTC here.
func (c AlertsConfig) Location() *time.Location {
	if c.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}
