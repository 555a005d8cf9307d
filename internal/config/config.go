// Package config defines service configuration structures and loading hooks.
//
// Conventions:
// - Provide New() to build a Config with defaults.
// - Load layers a YAML file and environment variables over the defaults.
// - Validation failures wrap ErrInvalidConfig.
package config

import (
	"runtime"
	"time"

	"github.com/okian/shiftmetrics/internal/domain/model"
)

// Storage drivers.
const (
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
	DriverBadger   = "badger"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// Addr configures the HTTP listen address, e.g. ":8080".
	Addr string `koanf:"addr"`

	// TailDefault is the length credited to a worker's final state.
	TailDefault time.Duration `koanf:"tail_default"`

	// EventQueueSize bounds the in-memory queue fed by MQTT and Kafka.
	EventQueueSize int `koanf:"queue_size"`

	// WorkerCount sets the number of ingest workers draining the queue.
	WorkerCount int `koanf:"worker_count"`

	// DedupeSize bounds the recent identity-key filter.
	DedupeSize int `koanf:"dedupe_size"`

	Storage StorageConfig `koanf:"storage"`
	Cache   CacheConfig   `koanf:"cache"`
	MQTT    MQTTConfig    `koanf:"mqtt"`
	Kafka   KafkaConfig   `koanf:"kafka"`

	// CORSOrigins lists origins allowed to call the API from a browser.
	CORSOrigins []string `koanf:"cors_origins"`

	Registry RegistryConfig `koanf:"registry"`
}

// StorageConfig selects and configures the event store.
type StorageConfig struct {
	Driver      string `koanf:"driver"`
	PostgresDSN string `koanf:"postgres_dsn"`
	BadgerPath  string `koanf:"badger_path"`
	MaxConns    int    `koanf:"max_conns"`
}

// CacheConfig configures the optional Redis metric cache.
type CacheConfig struct {
	Enabled       bool          `koanf:"enabled"`
	RedisAddr     string        `koanf:"redis_addr"`
	RedisPassword string        `koanf:"redis_password"`
	RedisDB       int           `koanf:"redis_db"`
	TTL           time.Duration `koanf:"ttl"`
}

// MQTTConfig configures the optional MQTT event subscriber.
type MQTTConfig struct {
	Enabled  bool   `koanf:"enabled"`
	Broker   string `koanf:"broker"`
	ClientID string `koanf:"client_id"`
	Topic    string `koanf:"topic"`
	QoS      int    `koanf:"qos"`
	Username string `koanf:"username"`
	Password string `koanf:"password"`
}

// KafkaConfig configures the optional Kafka event consumer.
type KafkaConfig struct {
	Enabled bool     `koanf:"enabled"`
	Brokers []string `koanf:"brokers"`
	Topic   string   `koanf:"topic"`
	GroupID string   `koanf:"group_id"`
}

// RegistryConfig lists the workers and workstations seeded at startup.
type RegistryConfig struct {
	Workers      []model.Worker      `koanf:"workers"`
	Workstations []model.Workstation `koanf:"workstations"`
}

// New creates a Config with defaults.
func New() *Config {
	return &Config{
		LogLevel:       "info",
		Addr:           ":8080",
		TailDefault:    30 * time.Minute,
		EventQueueSize: 10_000,
		WorkerCount:    runtime.NumCPU(),
		DedupeSize:     50_000,
		Storage: StorageConfig{
			Driver:     DriverMemory,
			BadgerPath: "data/events",
			MaxConns:   10,
		},
		Cache: CacheConfig{
			RedisAddr: "localhost:6379",
			TTL:       5 * time.Minute,
		},
		MQTT: MQTTConfig{
			Broker:   "tcp://localhost:1883",
			ClientID: "shiftmetrics",
			Topic:    "factory/events",
			QoS:      1,
		},
		Kafka: KafkaConfig{
			Brokers: []string{"localhost:9092"},
			Topic:   "factory.events",
			GroupID: "shiftmetrics",
		},
		CORSOrigins: []string{"*"},
		Registry:    DefaultRegistry(),
	}
}

// DefaultRegistry returns the six workers and six workstations the factory
// floor starts with.
func DefaultRegistry() RegistryConfig {
	return RegistryConfig{
		Workers: []model.Worker{
			{WorkerID: "W1", Name: "John Smith"},
			{WorkerID: "W2", Name: "Sarah Johnson"},
			{WorkerID: "W3", Name: "Michael Chen"},
			{WorkerID: "W4", Name: "Emily Rodriguez"},
			{WorkerID: "W5", Name: "David Kumar"},
			{WorkerID: "W6", Name: "Lisa Anderson"},
		},
		Workstations: []model.Workstation{
			{StationID: "S1", Name: "Assembly Line A", StationType: "assembly"},
			{StationID: "S2", Name: "Quality Control", StationType: "inspection"},
			{StationID: "S3", Name: "Packaging Station", StationType: "packaging"},
			{StationID: "S4", Name: "Assembly Line B", StationType: "assembly"},
			{StationID: "S5", Name: "Testing Bench", StationType: "testing"},
			{StationID: "S6", Name: "Shipping Prep", StationType: "logistics"},
		},
	}
}
