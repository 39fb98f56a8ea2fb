package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Environment string `yaml:"environment" default:"development"`
	Server      struct {
		Port            int           `yaml:"port" default:"8000"`
		ReadTimeout     time.Duration `yaml:"read_timeout" default:"15s"`
		WriteTimeout    time.Duration `yaml:"write_timeout" default:"15s"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout" default:"30s"`
		CORSOrigins     []string      `yaml:"cors_origins"`
	} `yaml:"server"`
	Log struct {
		Level  string `yaml:"level" default:"info"`
		Format string `yaml:"format" default:"json"`
		Output string `yaml:"output" default:"stdout"`
		// aggregated warnings/errors shipped to kafka.log_topic
		Collect       bool          `yaml:"collect"`
		FlushInterval time.Duration `yaml:"flush_interval" default:"30s"`
		FlushCount    int           `yaml:"flush_count" default:"100"`
	} `yaml:"log"`
	Metrics struct {
		Enabled bool   `yaml:"enabled" default:"true"`
		Path    string `yaml:"path" default:"/metrics"`
	} `yaml:"metrics"`
	Engine   EngineConfig `yaml:"engine"`
	Topology struct {
		Source       string        `yaml:"source" default:"config/topology.yaml"`
		FetchTimeout time.Duration `yaml:"fetch_timeout" default:"10s"`
	} `yaml:"topology"`
	Pipeline struct {
		MaxRPS     int `yaml:"max_rps" default:"500"`
		BufferSize int `yaml:"buffer_size" default:"1000"`
		MaxRetries int `yaml:"max_retries" default:"3"`
	} `yaml:"pipeline"`
	RateLimit struct {
		Enabled bool    `yaml:"enabled" default:"true"`
		RPS     float64 `yaml:"rps" default:"50"`
		Burst   int     `yaml:"burst" default:"100"`
	} `yaml:"ratelimit"`
	Kafka struct {
		Enabled       bool     `yaml:"enabled"`
		Brokers       []string `yaml:"brokers"`
		StatusTopic   string   `yaml:"status_topic" default:"train.status"`
		DecisionTopic string   `yaml:"decision_topic" default:"train.decisions"`
		LogTopic      string   `yaml:"log_topic" default:"trainctl.logs"`
		RequiredAcks  int      `yaml:"required_acks" default:"-1"`
		Compression   string   `yaml:"compression" default:"snappy"`
		AutoCreate    bool     `yaml:"auto_create_topics"`
		Producer      struct {
			MaxAttempts  int           `yaml:"max_attempts" default:"10"`
			Linger       time.Duration `yaml:"linger" default:"5ms"`
			BatchBytes   int           `yaml:"batch_bytes" default:"1048576"`
			BatchSize    int           `yaml:"batch_size" default:"100"`
			WriteTimeout time.Duration `yaml:"write_timeout" default:"10s"`
			ReadTimeout  time.Duration `yaml:"read_timeout" default:"10s"`
			Async        bool          `yaml:"async"`
		} `yaml:"producer"`
		Consumer struct {
			GroupID    string        `yaml:"group_id" default:"trainctl"`
			Workers    int           `yaml:"workers" default:"4"`
			BufferSize int           `yaml:"buffer_size" default:"256"`
			RetryMax   int           `yaml:"retry_max" default:"3"`
			BackoffMin time.Duration `yaml:"backoff_min" default:"100ms"`
			BackoffMax time.Duration `yaml:"backoff_max" default:"5s"`
			DLQTopic   string        `yaml:"dlq_topic" default:"train.status.dlq"`
			MinBytes   int           `yaml:"min_bytes" default:"1"`
			MaxBytes   int           `yaml:"max_bytes" default:"10485760"`
		} `yaml:"consumer"`
	} `yaml:"kafka"`
	Redis struct {
		Enabled     bool          `yaml:"enabled"`
		Host        string        `yaml:"host" default:"localhost"`
		Port        int           `yaml:"port" default:"6379"`
		Password    string        `yaml:"password"`
		DB          int           `yaml:"db"`
		Prefix      string        `yaml:"prefix" default:"trainctl"`
		DecisionTTL time.Duration `yaml:"decision_ttl" default:"1m"`
		// mirror accepted train states and warm the store on startup
		Mirror bool `yaml:"mirror"`
	} `yaml:"redis"`
	ClickHouse struct {
		Enabled          bool          `yaml:"enabled"`
		Host             string        `yaml:"host" default:"localhost"`
		Port             int           `yaml:"port" default:"9000"`
		Database         string        `yaml:"database" default:"trainctl"`
		User             string        `yaml:"user" default:"default"`
		Password         string        `yaml:"password"`
		UseHTTP          bool          `yaml:"use_http"`
		AsyncInsert      bool          `yaml:"async_insert"`
		WaitForAsync     bool          `yaml:"wait_for_async_insert"`
		DialTimeout      time.Duration `yaml:"dial_timeout" default:"5s"`
		ReadTimeout      time.Duration `yaml:"read_timeout" default:"10s"`
		WriteTimeout     time.Duration `yaml:"write_timeout" default:"10s"`
		MaxExecutionTime time.Duration `yaml:"max_execution_time" default:"60s"`
		BatchSize        int           `yaml:"batch_size" default:"500"`
		BatchTimeout     time.Duration `yaml:"batch_timeout" default:"1s"`
	} `yaml:"clickhouse"`
}

// EngineConfig tunes conflict detection and decisions.
type EngineConfig struct {
	Horizon             time.Duration `yaml:"horizon" default:"10m"`
	Headway             time.Duration `yaml:"headway" default:"2m"`
	MinGap              time.Duration `yaml:"min_gap" default:"1s"`
	MaxHops             int           `yaml:"max_hops" default:"64"`
	ReduceSpeedMaxDelay time.Duration `yaml:"reduce_speed_max_delay" default:"3m"`
	MinSpeedKmh         float64       `yaml:"min_speed_kmh" default:"10"`
	MinImpact           time.Duration `yaml:"min_impact" default:"6s"`
	// class -> rank, higher wins
	Priorities      map[string]int    `yaml:"priorities"`
	Trains          map[string]string `yaml:"trains"`
	DefaultPriority string            `yaml:"default_priority" default:"normal"`
}

// Default returns a config with every default applied.
func Default() *Config {
	var c Config
	if err := defaults.Set(&c); err != nil {
		panic(fmt.Sprintf("config defaults: %v", err))
	}
	return &c
}

// Load reads and parses a YAML configuration file.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(b)
}

// Parse decodes YAML on top of the defaults and validates the result.
func Parse(b []byte) (*Config, error) {
	c := Default()
	if err := yaml.Unmarshal(b, c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

// LoadWithEnv loads config from YAML and overrides with environment variables.
func LoadWithEnv(path string) (*Config, error) {
	c, err := Load(path)
	if err != nil {
		return nil, err
	}
	if err := c.applyEnv(os.Getenv); err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

func (c *Config) applyEnv(getenv func(string) string) error {
	if v := getenv("TRAINCTL_ENV"); v != "" {
		c.Environment = v
	}
	if v := getenv("TRAINCTL_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("TRAINCTL_PORT: %w", err)
		}
		c.Server.Port = port
	}
	if v := getenv("TRAINCTL_LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := getenv("TRAINCTL_TOPOLOGY"); v != "" {
		c.Topology.Source = v
	}
	if v := getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = strings.Split(v, ",")
		c.Kafka.Enabled = true
	}
	if v := getenv("KAFKA_STATUS_TOPIC"); v != "" {
		c.Kafka.StatusTopic = v
	}
	if v := getenv("REDIS_ADDR"); v != "" {
		host, port, ok := strings.Cut(v, ":")
		c.Redis.Host = host
		if ok {
			p, err := strconv.Atoi(port)
			if err != nil {
				return fmt.Errorf("REDIS_ADDR: %w", err)
			}
			c.Redis.Port = p
		}
		c.Redis.Enabled = true
	}
	if v := getenv("REDIS_PASSWORD"); v != "" {
		c.Redis.Password = v
	}
	if v := getenv("CLICKHOUSE_HOST"); v != "" {
		c.ClickHouse.Host = v
		c.ClickHouse.Enabled = true
	}
	if v := getenv("CLICKHOUSE_PASSWORD"); v != "" {
		c.ClickHouse.Password = v
	}
	return nil
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Environment == "" {
		return fmt.Errorf("environment is required")
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port out of range: %d", c.Server.Port)
	}
	if c.Topology.Source == "" {
		return fmt.Errorf("topology.source is required")
	}
	e := c.Engine
	if e.Horizon <= 0 {
		return fmt.Errorf("engine.horizon must be positive")
	}
	if e.Headway < 0 || e.MinGap <= 0 {
		return fmt.Errorf("engine.headway must be >= 0 and engine.min_gap > 0")
	}
	if e.MinSpeedKmh < 0 || e.ReduceSpeedMaxDelay < 0 || e.MinImpact < 0 {
		return fmt.Errorf("engine thresholds must not be negative")
	}
	for class, rank := range e.Priorities {
		if rank < 0 {
			return fmt.Errorf("engine.priorities.%s: negative rank %d", class, rank)
		}
	}
	if c.Kafka.Enabled {
		if len(c.Kafka.Brokers) == 0 {
			return fmt.Errorf("kafka.brokers cannot be empty when kafka is enabled")
		}
		if c.Kafka.StatusTopic == "" || c.Kafka.DecisionTopic == "" {
			return fmt.Errorf("kafka.status_topic and kafka.decision_topic are required")
		}
	}
	if c.RateLimit.Enabled && (c.RateLimit.RPS <= 0 || c.RateLimit.Burst <= 0) {
		return fmt.Errorf("ratelimit.rps and ratelimit.burst must be positive")
	}
	return nil
}
