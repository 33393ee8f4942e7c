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
	Logging struct {
		Level          string `yaml:"level"`
		Format         string `yaml:"format"` // json or console
		Output         string `yaml:"output"`
		AggregateTopic string `yaml:"aggregate_topic"` // error-log aggregation, empty disables
	} `yaml:"logging"`
	Metrics struct {
		Enabled bool   `yaml:"enabled"`
		Path    string `yaml:"path"`
	} `yaml:"metrics"`
	ClickHouse struct {
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
	Kafka struct {
		Brokers         []string `yaml:"brokers"`
		AlertsTopic     string   `yaml:"alerts_topic"`
		CandidatesTopic string   `yaml:"candidates_topic"`
		RequiredAcks    int      `yaml:"required_acks"`
		Compression     string   `yaml:"compression"`
		Producer        struct {
			MaxAttempts  int           `yaml:"max_attempts"`
			Linger       time.Duration `yaml:"linger"`
			BatchBytes   int           `yaml:"batch_bytes"`
			BatchSize    int           `yaml:"batch_size"`
			WriteTimeout time.Duration `yaml:"write_timeout"`
			ReadTimeout  time.Duration `yaml:"read_timeout"`
			Async        bool          `yaml:"async"`
		} `yaml:"producer"`
		Consumer struct {
			GroupID    string        `yaml:"group_id"`
			Workers    int           `yaml:"workers"`
			BufferSize int           `yaml:"buffer_size"`
			RetryMax   int           `yaml:"retry_max"`
			BackoffMin time.Duration `yaml:"backoff_min"`
			BackoffMax time.Duration `yaml:"backoff_max"`
			DLQTopic   string        `yaml:"dlq_topic"`
			MinBytes   int           `yaml:"min_bytes"`
			MaxBytes   int           `yaml:"max_bytes"`
		} `yaml:"consumer"`
	} `yaml:"kafka"`
	Redis struct {
		Enabled  bool   `yaml:"enabled"`
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
	} `yaml:"redis"`
	Providers []ProviderConfig `yaml:"providers"`
	Exchange  struct {
		WebSocketURL   string        `yaml:"websocket_url"`
		APIKey         string        `yaml:"api_key"`
		Symbols        []string      `yaml:"symbols"`
		ReconnectDelay time.Duration `yaml:"reconnect_delay"`
		PingInterval   time.Duration `yaml:"ping_interval"`
	} `yaml:"exchange"`
	Collection struct {
		CoreCron      string        `yaml:"core_cron"`     // default "@hourly"
		ExtendedCron  string        `yaml:"extended_cron"` // default daily at 06:00
		CycleDeadline time.Duration `yaml:"cycle_deadline"`
		GroupLimit    int           `yaml:"group_limit"` // concurrent fetches per provider group
		CoreSymbols   []string      `yaml:"core_symbols"`
	} `yaml:"collection"`
	Cache struct {
		FastTTL       time.Duration `yaml:"fast_ttl"`
		SlowTTL       time.Duration `yaml:"slow_ttl"`
		SweepInterval time.Duration `yaml:"sweep_interval"`
		MaxEntries    int           `yaml:"max_entries"`
	} `yaml:"cache"`
	Alerts struct {
		DedupWindow     time.Duration `yaml:"dedup_window"`
		Retention       time.Duration `yaml:"retention"`
		MaintenanceCron string        `yaml:"maintenance_cron"`
		PriceMovePct    float64       `yaml:"price_move_pct"`
		SSRLow          float64       `yaml:"ssr_low"`
		SSRHigh         float64       `yaml:"ssr_high"`
	} `yaml:"alerts"`
	Correlation struct {
		Lookback   int      `yaml:"lookback"` // observations per symbol
		PeriodDays int      `yaml:"period_days"`
		MinPoints  int      `yaml:"min_points"`
		Symbols    []string `yaml:"symbols"`
	} `yaml:"correlation"`
	Narrative struct {
		TopK    int     `yaml:"top_k"`
		Damping float64 `yaml:"damping"` // momentum multiplier when avg change is negative
	} `yaml:"narrative"`
}

// ProviderConfig declares one upstream source and its rate-limit class.
type ProviderConfig struct {
	ID          string        `yaml:"id"`
	Group       string        `yaml:"group"`
	BaseURL     string        `yaml:"base_url"`
	APIKey      string        `yaml:"api_key"`
	Priority    int           `yaml:"priority"`
	MaxCalls    int           `yaml:"max_calls"`
	Window      time.Duration `yaml:"window"`
	MinInterval time.Duration `yaml:"min_interval"`
	Timeout     time.Duration `yaml:"timeout"`
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
	c.applyDefaults()

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &c, nil
}

// LoadWithEnv loads config from YAML and overrides with environment variables.
// Secrets are expected through the environment in production.
func LoadWithEnv(path string) (*Config, error) {
	c, err := Load(path)
	if err != nil {
		return nil, err
	}

	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		c.Redis.Addr = v
	}
	if v := os.Getenv("CLICKHOUSE_PASSWORD"); v != "" {
		c.ClickHouse.Password = v
	}
	if v := os.Getenv("EXCHANGE_API_KEY"); v != "" {
		c.Exchange.APIKey = v
	}
	for i := range c.Providers {
		env := "PROVIDER_" + strings.ToUpper(strings.ReplaceAll(c.Providers[i].ID, "-", "_")) + "_API_KEY"
		if v := os.Getenv(env); v != "" {
			c.Providers[i].APIKey = v
		}
	}

	return c, nil
}

func (c *Config) applyDefaults() {
	if c.Collection.CoreCron == "" {
		c.Collection.CoreCron = "@hourly"
	}
	if c.Collection.ExtendedCron == "" {
		c.Collection.ExtendedCron = "0 6 * * *"
	}
	if c.Collection.CycleDeadline <= 0 {
		c.Collection.CycleDeadline = 5 * time.Minute
	}
	if c.Collection.GroupLimit <= 0 {
		c.Collection.GroupLimit = 4
	}
	if c.Cache.FastTTL <= 0 {
		c.Cache.FastTTL = 5 * time.Minute
	}
	if c.Cache.SlowTTL <= 0 {
		c.Cache.SlowTTL = 15 * time.Minute
	}
	if c.Cache.SweepInterval <= 0 {
		c.Cache.SweepInterval = time.Minute
	}
	if c.Cache.MaxEntries <= 0 {
		c.Cache.MaxEntries = 10000
	}
	if c.Alerts.DedupWindow <= 0 {
		c.Alerts.DedupWindow = time.Hour
	}
	if c.Alerts.Retention <= 0 {
		c.Alerts.Retention = 7 * 24 * time.Hour
	}
	if c.Alerts.MaintenanceCron == "" {
		c.Alerts.MaintenanceCron = "0 4 * * *"
	}
	if c.Alerts.PriceMovePct <= 0 {
		c.Alerts.PriceMovePct = 10
	}
	if c.Correlation.Lookback <= 0 {
		c.Correlation.Lookback = 30
	}
	if c.Correlation.PeriodDays <= 0 {
		c.Correlation.PeriodDays = 30
	}
	if c.Correlation.MinPoints <= 0 {
		c.Correlation.MinPoints = 5
	}
	if c.Narrative.TopK <= 0 {
		c.Narrative.TopK = 5
	}
	if c.Narrative.Damping <= 0 || c.Narrative.Damping >= 1 {
		c.Narrative.Damping = 0.3
	}
}

// Validate checks the configuration at startup. A typed error is returned
// instead of terminating the process so alternate entry points and tests
// can handle the failure themselves.
func (c *Config) Validate() error {
	if c.Environment == "" {
		return fmt.Errorf("environment is required")
	}
	if len(c.Providers) == 0 {
		return fmt.Errorf("at least one provider is required")
	}
	seen := make(map[string]bool, len(c.Providers))
	for _, p := range c.Providers {
		if p.ID == "" {
			return fmt.Errorf("provider id is required")
		}
		if seen[p.ID] {
			return fmt.Errorf("duplicate provider id %q", p.ID)
		}
		seen[p.ID] = true
		if p.BaseURL == "" {
			return fmt.Errorf("provider %s: base_url is required", p.ID)
		}
		if p.MaxCalls <= 0 || p.Window <= 0 {
			return fmt.Errorf("provider %s: max_calls and window are required", p.ID)
		}
	}
	if c.ClickHouse.Host == "" {
		return fmt.Errorf("clickhouse.host is required")
	}
	if len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka.brokers cannot be empty")
	}
	if c.Kafka.AlertsTopic == "" {
		return fmt.Errorf("kafka.alerts_topic is required")
	}
	return nil
}
