package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

type Config struct {
	HTTP     HTTPConfig     `yaml:"http"`
	Admin    AdminConfig    `yaml:"admin"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	Kafka    KafkaConfig    `yaml:"kafka"`
	Booking  BookingConfig  `yaml:"booking"`
	Worker   WorkerConfig   `yaml:"worker"`
	Log      LogConfig      `yaml:"log"`
}

type HTTPConfig struct {
	Address     string   `yaml:"address"`
	SwaggerDir  string   `yaml:"swagger_dir"`
	CORSOrigins []string `yaml:"cors_origins"`
}

// AdminConfig is the worker's metrics/health listener.
type AdminConfig struct {
	Address string `yaml:"address"`
}

type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Name     string `yaml:"name"`
	SSLMode  string `yaml:"ssl_mode"`
	MaxConns int32  `yaml:"max_conns"`
}

func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s", d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode)
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type KafkaConfig struct {
	Brokers            []string `yaml:"brokers"`
	GroupID            string   `yaml:"group_id"`
	FlightsTopic       string   `yaml:"flights_topic"`
	CartTopic          string   `yaml:"cart_topic"`
	ReservationsTopic  string   `yaml:"reservations_topic"`
	NotificationsTopic string   `yaml:"notifications_topic"`
}

type BookingConfig struct {
	PaymentTimeoutMinutes int `yaml:"payment_timeout_minutes"`
	FanOutConcurrency     int `yaml:"fan_out_concurrency"`
	FlightsCacheTTL       int `yaml:"flights_cache_ttl_seconds"`
	PublishBuffer         int `yaml:"publish_buffer"`
	PublishTimeoutSeconds int `yaml:"publish_timeout_seconds"`
	DedupeTTLMinutes      int `yaml:"dedupe_ttl_minutes"`
}

func (b BookingConfig) PaymentTimeout() time.Duration {
	return time.Duration(b.PaymentTimeoutMinutes) * time.Minute
}

func (b BookingConfig) FlightsCacheTTLDuration() time.Duration {
	return time.Duration(b.FlightsCacheTTL) * time.Second
}

func (b BookingConfig) PublishTimeout() time.Duration {
	return time.Duration(b.PublishTimeoutSeconds) * time.Second
}

func (b BookingConfig) DedupeTTL() time.Duration {
	return time.Duration(b.DedupeTTLMinutes) * time.Minute
}

type WorkerConfig struct {
	TimeoutSweepSeconds int `yaml:"timeout_sweep_seconds"`
	SweepBatchSize      int `yaml:"sweep_batch_size"`
}

func (w WorkerConfig) SweepInterval() time.Duration {
	return time.Duration(w.TimeoutSweepSeconds) * time.Second
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// NewLogger builds the process logger from the log section.
func (l LogConfig) NewLogger() (*logrus.Logger, error) {
	level, err := logrus.ParseLevel(l.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level: %w", err)
	}

	log := logrus.New()
	log.SetLevel(level)
	if l.Format == "json" {
		log.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.RFC3339Nano})
	} else {
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return log, nil
}

func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	return Parse(data)
}

func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.HTTP.Address == "" {
		c.HTTP.Address = ":8080"
	}
	if c.Admin.Address == "" {
		c.Admin.Address = ":9090"
	}
	if c.Database.Port == 0 {
		c.Database.Port = 5432
	}
	if c.Database.SSLMode == "" {
		c.Database.SSLMode = "disable"
	}
	if c.Kafka.GroupID == "" {
		c.Kafka.GroupID = "reservations-service"
	}
	if c.Booking.PaymentTimeoutMinutes == 0 {
		c.Booking.PaymentTimeoutMinutes = 15
	}
	if c.Booking.FanOutConcurrency == 0 {
		c.Booking.FanOutConcurrency = 8
	}
	if c.Booking.FlightsCacheTTL == 0 {
		c.Booking.FlightsCacheTTL = 30
	}
	if c.Booking.PublishBuffer == 0 {
		c.Booking.PublishBuffer = 256
	}
	if c.Booking.PublishTimeoutSeconds == 0 {
		c.Booking.PublishTimeoutSeconds = 5
	}
	if c.Booking.DedupeTTLMinutes == 0 {
		c.Booking.DedupeTTLMinutes = 24 * 60
	}
	if c.Worker.TimeoutSweepSeconds == 0 {
		c.Worker.TimeoutSweepSeconds = 60
	}
	if c.Worker.SweepBatchSize == 0 {
		c.Worker.SweepBatchSize = 100
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
}

func (c *Config) Validate() error {
	var errs []error
	if c.Database.Host == "" {
		errs = append(errs, errors.New("database.host is required"))
	}
	if c.Database.Name == "" {
		errs = append(errs, errors.New("database.name is required"))
	}
	if len(c.Kafka.Brokers) == 0 {
		errs = append(errs, errors.New("kafka.brokers is required"))
	}
	if c.Kafka.ReservationsTopic == "" {
		errs = append(errs, errors.New("kafka.reservations_topic is required"))
	}
	if c.Booking.PaymentTimeoutMinutes < 0 {
		errs = append(errs, errors.New("booking.payment_timeout_minutes must not be negative"))
	}
	if c.Booking.FanOutConcurrency < 0 {
		errs = append(errs, errors.New("booking.fan_out_concurrency must not be negative"))
	}
	if c.Log.Format != "text" && c.Log.Format != "json" {
		errs = append(errs, fmt.Errorf("log.format must be text or json, got %q", c.Log.Format))
	}
	return errors.Join(errs...)
}
