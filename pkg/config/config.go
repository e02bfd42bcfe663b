package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Environment string `yaml:"environment"`
	Server      struct {
		Port            int           `yaml:"port"`
		ReadTimeout     time.Duration `yaml:"read_timeout"`
		WriteTimeout    time.Duration `yaml:"write_timeout"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	} `yaml:"server"`
	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
		Output string `yaml:"output"`
	} `yaml:"log"`
	Catalog struct {
		Path        string   `yaml:"path"`
		Indices     []string `yaml:"indices"`
		MonthsAhead int      `yaml:"months_ahead"`
	} `yaml:"catalog"`
	Feed struct {
		Mode           string        `yaml:"mode"` // "simulator" or "broker"
		WebSocketURL   string        `yaml:"websocket_url"`
		AccessToken    string        `yaml:"access_token"`
		PingInterval   time.Duration `yaml:"ping_interval"`
		ReconnectMin   time.Duration `yaml:"reconnect_min"`
		ReconnectMax   time.Duration `yaml:"reconnect_max"`
		SimTickEvery   time.Duration `yaml:"sim_tick_every"`
		MaxTicksPerSec int           `yaml:"max_ticks_per_sec"`
		BufferSize     int           `yaml:"buffer_size"`
	} `yaml:"feed"`
	Engine struct {
		Intervals           []string `yaml:"intervals"`
		MoversTopN          int      `yaml:"movers_top_n"`
		PCRBullishThreshold float64  `yaml:"pcr_bullish_threshold"`
		Timezone            string   `yaml:"timezone"`
		SessionOpen         string   `yaml:"session_open"`
		SessionClose        string   `yaml:"session_close"`
	} `yaml:"engine"`
	Relay struct {
		Backend string `yaml:"backend"` // "none", "kafka" or "clickhouse"
	} `yaml:"relay"`
	Kafka struct {
		Brokers      []string `yaml:"brokers"`
		Topic        string   `yaml:"topic"`
		RequiredAcks int      `yaml:"required_acks"`
		Compression  string   `yaml:"compression"`
		Producer     struct {
			MaxAttempts  int           `yaml:"max_attempts"`
			Linger       time.Duration `yaml:"linger"`
			BatchBytes   int           `yaml:"batch_bytes"`
			BatchSize    int           `yaml:"batch_size"`
			WriteTimeout time.Duration `yaml:"write_timeout"`
			ReadTimeout  time.Duration `yaml:"read_timeout"`
			Async        bool          `yaml:"async"`
		} `yaml:"producer"`
	} `yaml:"kafka"`
	ClickHouse struct {
		Enabled          bool          `yaml:"enabled"`
		Host             string        `yaml:"host"`
		Port             int           `yaml:"port"`
		Database         string        `yaml:"database"`
		User             string        `yaml:"user"`
		Password         string        `yaml:"password"`
		UseHTTP          bool          `yaml:"use_http"`
		AsyncInsert      bool          `yaml:"async_insert"`
		WaitForAsync     bool          `yaml:"wait_for_async_insert"`
		DialTimeout      time.Duration `yaml:"dial_timeout"`
		ReadTimeout      time.Duration `yaml:"read_timeout"`
		WriteTimeout     time.Duration `yaml:"write_timeout"`
		MaxExecutionTime time.Duration `yaml:"max_execution_time"`
	} `yaml:"clickhouse"`
	Redis struct {
		Enabled  bool   `yaml:"enabled"`
		Host     string `yaml:"host"`
		Port     int    `yaml:"port"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		Prefix   string `yaml:"prefix"`
	} `yaml:"redis"`
	History struct {
		TTL time.Duration `yaml:"ttl"`
	} `yaml:"history"`
}

// Load reads and parses a YAML configuration file.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &c, nil
}

// LoadWithEnv loads config from YAML and overrides with environment variables.
func LoadWithEnv(path string) (*Config, error) {
	c, err := Load(path)
	if err != nil {
		return nil, err
	}

	if v := os.Getenv("FEED_ACCESS_TOKEN"); v != "" {
		c.Feed.AccessToken = v
	}
	if v := os.Getenv("FEED_MODE"); v != "" {
		c.Feed.Mode = v
	}
	if v := os.Getenv("CATALOG_PATH"); v != "" {
		c.Catalog.Path = v
	}
	if v := os.Getenv("INDICES"); v != "" {
		c.Catalog.Indices = strings.Split(v, ",")
	}
	if v := os.Getenv("RELAY_BACKEND"); v != "" {
		c.Relay.Backend = v
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("KAFKA_TOPIC"); v != "" {
		c.Kafka.Topic = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		c.Redis.Password = v
	}
	if v := os.Getenv("CLICKHOUSE_PASSWORD"); v != "" {
		c.ClickHouse.Password = v
	}

	return c, nil
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Environment == "" {
		return fmt.Errorf("environment is required")
	}
	if c.Catalog.Path == "" {
		return fmt.Errorf("catalog.path is required")
	}
	if len(c.Catalog.Indices) == 0 {
		return fmt.Errorf("catalog.indices cannot be empty")
	}
	switch c.Feed.Mode {
	case "simulator", "broker":
	default:
		return fmt.Errorf("feed.mode must be 'simulator' or 'broker', got '%s'", c.Feed.Mode)
	}
	if c.Feed.Mode == "broker" && c.Feed.WebSocketURL == "" {
		return fmt.Errorf("feed.websocket_url is required for broker mode")
	}
	switch c.Relay.Backend {
	case "", "none", "kafka", "clickhouse":
	default:
		return fmt.Errorf("relay.backend must be 'none', 'kafka' or 'clickhouse', got '%s'", c.Relay.Backend)
	}
	if c.Relay.Backend == "kafka" && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka.brokers cannot be empty when relay.backend is kafka")
	}
	if c.Relay.Backend == "clickhouse" && !c.ClickHouse.Enabled {
		return fmt.Errorf("clickhouse.enabled must be true when relay.backend is clickhouse")
	}
	return nil
}

// Timezone resolves the exchange timezone, defaulting to Asia/Kolkata.
func (c *Config) Timezone() *time.Location {
	name := c.Engine.Timezone
	if name == "" {
		name = "Asia/Kolkata"
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return time.FixedZone("IST", 5*3600+1800)
	}
	return loc
}

// EngineIntervals resolves configured intervals, defaulting to all supported.
func (c *Config) EngineIntervals() []string {
	if len(c.Engine.Intervals) == 0 {
		return []string{"15Min", "60Min", "Day"}
	}
	return c.Engine.Intervals
}
