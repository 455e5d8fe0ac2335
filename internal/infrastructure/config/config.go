package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Node modes.
const (
	// ModeCloud is the central node that owns the authoritative registry.
	ModeCloud = "cloud"

	// ModeEdge is an intermediate node that also reports its sub-fleet upstream.
	ModeEdge = "edge"
)

// Config is the root configuration structure for the RSU fleet core.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Node     NodeConfig     `yaml:"node"`
	Database DatabaseConfig `yaml:"database"`
	MQTT     MQTTConfig     `yaml:"mqtt"`
	Upstream MQTTConfig     `yaml:"upstream"`
	Redis    RedisConfig    `yaml:"redis"`
	InfluxDB InfluxDBConfig `yaml:"influxdb"`
	API      APIConfig      `yaml:"api"`
	Logging  LoggingConfig  `yaml:"logging"`
	Liveness LivenessConfig `yaml:"liveness"`
}

// NodeConfig identifies this process within the cloud/edge hierarchy.
type NodeConfig struct {
	ID       string `yaml:"id"`
	Mode     string `yaml:"mode"`
	Name     string `yaml:"name"`
	IP       string `yaml:"ip"`
	AreaCode string `yaml:"area_code"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	QoS       int                 `yaml:"qos"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTReconnectConfig contains MQTT reconnection settings.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
}

// RedisConfig contains the liveness store connection settings.
// When disabled, an in-process TTL map is used instead.
type RedisConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Host      string `yaml:"host"`
	Port      int    `yaml:"port"`
	Password  string `yaml:"password"`
	DB        int    `yaml:"db"`
	PoolSize  int    `yaml:"pool_size"`
	KeyPrefix string `yaml:"key_prefix"`
}

// InfluxDBConfig contains InfluxDB connection settings for RSU telemetry.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// APIConfig contains operator HTTP API settings.
type APIConfig struct {
	Enabled  bool             `yaml:"enabled"`
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
}

// APITimeoutConfig contains HTTP timeout settings.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// LivenessConfig contains TTL and sweep scheduling settings.
// All values are in seconds.
type LivenessConfig struct {
	// RSUTTL is how long a device stays alive after its last report.
	RSUTTL int `yaml:"rsu_ttl"`

	// EdgeTTL is how long an edge node stays registered after its last heartbeat.
	EdgeTTL int `yaml:"edge_ttl"`

	// SweepInterval is how often online devices are checked against the store.
	SweepInterval int `yaml:"sweep_interval"`

	// EdgeSweepInterval is how often expired edge nodes are removed.
	EdgeSweepInterval int `yaml:"edge_sweep_interval"`

	// HeartbeatInterval is how often this node publishes its own heartbeat.
	HeartbeatInterval int `yaml:"heartbeat_interval"`

	// SyncInterval is how often an edge node pushes its full fleet upstream.
	SyncInterval int `yaml:"sync_interval"`

	// TmpMaxAge removes provisional devices not promoted within this age.
	// Zero disables the cleanup job.
	TmpMaxAge int `yaml:"tmp_max_age"`

	// Workers bounds how many scheduled jobs may run at once.
	Workers int `yaml:"workers"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: RSUFLEET_SECTION_KEY
// For example: RSUFLEET_DATABASE_PATH, RSUFLEET_REDIS_HOST
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Node: NodeConfig{
			ID:   "cloud-001",
			Mode: ModeCloud,
			Name: "cloud",
		},
		Database: DatabaseConfig{
			Path:        "./data/rsufleet.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "rsufleet-core",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
		},
		Upstream: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Port:     1883,
				ClientID: "rsufleet-edge",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
		},
		Redis: RedisConfig{
			Host:      "localhost",
			Port:      6379,
			PoolSize:  10,
			KeyPrefix: "rsufleet:",
		},
		API: APIConfig{
			Enabled: true,
			Host:    "0.0.0.0",
			Port:    8080,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Liveness: LivenessConfig{
			RSUTTL:            30,
			EdgeTTL:           30,
			SweepInterval:     60,
			EdgeSweepInterval: 60,
			HeartbeatInterval: 10,
			SyncInterval:      60,
			Workers:           4,
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: RSUFLEET_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("RSUFLEET_NODE_ID"); v != "" {
		cfg.Node.ID = v
	}
	if v := os.Getenv("RSUFLEET_NODE_MODE"); v != "" {
		cfg.Node.Mode = v
	}

	if v := os.Getenv("RSUFLEET_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	if v := os.Getenv("RSUFLEET_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("RSUFLEET_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("RSUFLEET_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}
	if v := os.Getenv("RSUFLEET_UPSTREAM_HOST"); v != "" {
		cfg.Upstream.Broker.Host = v
	}

	if v := os.Getenv("RSUFLEET_REDIS_HOST"); v != "" {
		cfg.Redis.Host = v
	}
	if v := os.Getenv("RSUFLEET_REDIS_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Redis.Port = port
		}
	}
	if v := os.Getenv("RSUFLEET_REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}

	if v := os.Getenv("RSUFLEET_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	if v := os.Getenv("RSUFLEET_API_HOST"); v != "" {
		cfg.API.Host = v
	}
}

// topicReserved are characters that cannot appear in a single MQTT topic
// level. node.id and node.name are both embedded in topics.
const topicReserved = "/+#\x00"

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []string

	if c.Node.ID == "" {
		errs = append(errs, "node.id is required")
	} else if strings.ContainsAny(c.Node.ID, topicReserved) {
		errs = append(errs, "node.id must not contain /, +, # or NUL")
	}
	switch c.Node.Mode {
	case ModeCloud:
	case ModeEdge:
		if c.Node.Name == "" {
			errs = append(errs, "node.name is required in edge mode")
		} else if strings.ContainsAny(c.Node.Name, topicReserved) {
			errs = append(errs, "node.name must not contain /, +, # or NUL")
		}
		if c.Upstream.Broker.Host == "" {
			errs = append(errs, "upstream.broker.host is required in edge mode")
		}
	default:
		errs = append(errs, "node.mode must be cloud or edge")
	}

	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}

	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}

	if c.Redis.Enabled && (c.Redis.Port < 1 || c.Redis.Port > 65535) {
		errs = append(errs, "redis.port must be between 1 and 65535")
	}

	if c.API.Enabled && (c.API.Port < 1 || c.API.Port > 65535) {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	if c.Liveness.RSUTTL <= 0 || c.Liveness.EdgeTTL <= 0 {
		errs = append(errs, "liveness ttls must be positive")
	}
	if c.Liveness.SweepInterval <= 0 || c.Liveness.EdgeSweepInterval <= 0 || c.Liveness.HeartbeatInterval <= 0 {
		errs = append(errs, "liveness intervals must be positive")
	}
	if c.Liveness.TmpMaxAge < 0 {
		errs = append(errs, "liveness.tmp_max_age cannot be negative")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// IsEdge reports whether this node relays its fleet to an upstream cloud.
func (c *Config) IsEdge() bool {
	return c.Node.Mode == ModeEdge
}

// GetReadTimeout returns the API read timeout as a Duration.
func (c *Config) GetReadTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Read) * time.Second
}

// GetWriteTimeout returns the API write timeout as a Duration.
func (c *Config) GetWriteTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Write) * time.Second
}

// GetIdleTimeout returns the API idle timeout as a Duration.
func (c *Config) GetIdleTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Idle) * time.Second
}

// Seconds converts one of the integer-second liveness settings to a Duration.
func Seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}
