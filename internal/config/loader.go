package config

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Environment names read by Load.
const (
	EnvPrefix     = "SHIFTMETRICS_"
	EnvConfigPath = EnvPrefix + "CONFIG"
)

var listKeys = map[string]struct{}{
	"cors_origins":  {},
	"kafka.brokers": {},
}

func splitList(v string) []string {
	parts := strings.Split(v, ",")
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Load builds a Config by layering defaults, optional file, and env vars.
// Order of precedence (low -> high):
//  1. defaults (New())
//  2. file (YAML) if SHIFTMETRICS_CONFIG is set
//  3. env (prefix SHIFTMETRICS_, "__" separates nested keys)
//
// A configured registry replaces the default one instead of merging into it.
func Load(ctx context.Context) (*Config, error) {
	k := koanf.New(".")

	if path := os.Getenv(EnvConfigPath); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("%w: read %s: %v", ErrLoadConfig, path, err)
		}
	}

	// SHIFTMETRICS_QUEUE_SIZE -> queue_size, SHIFTMETRICS_STORAGE__DRIVER -> storage.driver.
	// List keys take comma separated values.
	envProvider := env.ProviderWithValue(EnvPrefix, ".", func(key, value string) (string, interface{}) {
		key = strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(key, EnvPrefix)), "__", ".")
		if _, ok := listKeys[key]; ok {
			return key, splitList(value)
		}
		return key, value
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("%w: env: %v", ErrLoadConfig, err)
	}

	cfg := New()
	cfg.Registry = RegistryConfig{}
	if err := k.UnmarshalWithConf("", cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("%w: unmarshal: %v", ErrLoadConfig, err)
	}
	if len(cfg.Registry.Workers) == 0 && len(cfg.Registry.Workstations) == 0 {
		cfg.Registry = DefaultRegistry()
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports the first setting that cannot be served.
func (c *Config) Validate() error {
	switch {
	case c.Addr == "":
		return fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	case c.TailDefault < 0:
		return fmt.Errorf("%w: tail_default must not be negative", ErrInvalidConfig)
	case c.EventQueueSize < 1:
		return fmt.Errorf("%w: queue_size must be positive", ErrInvalidConfig)
	case c.WorkerCount < 0:
		return fmt.Errorf("%w: worker_count must not be negative", ErrInvalidConfig)
	}

	switch c.Storage.Driver {
	case DriverMemory:
	case DriverPostgres:
		if c.Storage.PostgresDSN == "" {
			return fmt.Errorf("%w: storage.postgres_dsn is required for the postgres driver", ErrInvalidConfig)
		}
	case DriverBadger:
		if c.Storage.BadgerPath == "" {
			return fmt.Errorf("%w: storage.badger_path is required for the badger driver", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unknown storage.driver %q", ErrInvalidConfig, c.Storage.Driver)
	}

	if c.Cache.Enabled && c.Cache.RedisAddr == "" {
		return fmt.Errorf("%w: cache.redis_addr is required when the cache is enabled", ErrInvalidConfig)
	}
	if c.MQTT.Enabled && (c.MQTT.Broker == "" || c.MQTT.Topic == "") {
		return fmt.Errorf("%w: mqtt.broker and mqtt.topic are required when mqtt is enabled", ErrInvalidConfig)
	}
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		return fmt.Errorf("%w: mqtt.qos must be 0, 1 or 2", ErrInvalidConfig)
	}
	if c.Kafka.Enabled && (len(c.Kafka.Brokers) == 0 || c.Kafka.Topic == "") {
		return fmt.Errorf("%w: kafka.brokers and kafka.topic are required when kafka is enabled", ErrInvalidConfig)
	}
	return c.validateRegistry()
}

func (c *Config) validateRegistry() error {
	workers := make(map[string]struct{}, len(c.Registry.Workers))
	for _, w := range c.Registry.Workers {
		if w.WorkerID == "" {
			return fmt.Errorf("%w: registry worker without worker_id", ErrInvalidConfig)
		}
		if _, dup := workers[w.WorkerID]; dup {
			return fmt.Errorf("%w: registry worker %s listed twice", ErrInvalidConfig, w.WorkerID)
		}
		workers[w.WorkerID] = struct{}{}
	}
	stations := make(map[string]struct{}, len(c.Registry.Workstations))
	for _, s := range c.Registry.Workstations {
		if s.StationID == "" {
			return fmt.Errorf("%w: registry workstation without station_id", ErrInvalidConfig)
		}
		if _, dup := stations[s.StationID]; dup {
			return fmt.Errorf("%w: registry workstation %s listed twice", ErrInvalidConfig, s.StationID)
		}
		stations[s.StationID] = struct{}{}
	}
	return nil
}
