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
	MarketData struct {
		WebSocketURL         string        `yaml:"websocket_url"`
		APIKey               string        `yaml:"api_key"`
		Symbols              []string      `yaml:"symbols"`
		CacheTTL             time.Duration `yaml:"cache_ttl"`
		MaxReconnectAttempts int           `yaml:"max_reconnect_attempts"`
		ReconnectDelay       time.Duration `yaml:"reconnect_delay"`
		ConnectTimeout       time.Duration `yaml:"connect_timeout"`
		PingInterval         time.Duration `yaml:"ping_interval"`
	} `yaml:"market_data"`
	OrderQueue struct {
		MaxRetries     int           `yaml:"max_retries"`
		ExecuteTimeout time.Duration `yaml:"execute_timeout"`
		RequeueHead    bool          `yaml:"requeue_head"`
		Retry          struct {
			InitialDelay  time.Duration `yaml:"initial_delay"`
			BackoffFactor float64       `yaml:"backoff_factor"`
		} `yaml:"retry"`
	} `yaml:"order_queue"`
	Monitoring struct {
		BufferSize    int           `yaml:"buffer_size"`
		FlushInterval time.Duration `yaml:"flush_interval"`
		FlushRetry    struct {
			MaxAttempts   int           `yaml:"max_attempts"`
			InitialDelay  time.Duration `yaml:"initial_delay"`
			BackoffFactor float64       `yaml:"backoff_factor"`
		} `yaml:"flush_retry"`
	} `yaml:"monitoring"`
	Exchange struct {
		BaseURL string        `yaml:"base_url"`
		APIKey  string        `yaml:"api_key"`
		Timeout time.Duration `yaml:"timeout"`
	} `yaml:"exchange"`
	Alerts struct {
		WebhookURL string        `yaml:"webhook_url"`
		Timeout    time.Duration `yaml:"timeout"`
		Kafka      struct {
			Brokers     []string      `yaml:"brokers"`
			Topic       string        `yaml:"topic"`
			DLQTopic    string        `yaml:"dlq_topic"`
			GroupID     string        `yaml:"group_id"`
			Compression string        `yaml:"compression"`
			Workers     int           `yaml:"workers"`
			RetryMax    int           `yaml:"retry_max"`
			BackoffMin  time.Duration `yaml:"backoff_min"`
			BackoffMax  time.Duration `yaml:"backoff_max"`
		} `yaml:"kafka"`
	} `yaml:"alerts"`
	Redis struct {
		Addr      string `yaml:"addr"`
		Password  string `yaml:"password"`
		DB        int    `yaml:"db"`
		KeyPrefix string `yaml:"key_prefix"`
	} `yaml:"redis"`
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
func LoadWithEnv(path string) (*Config, error) {
	c, err := Load(path)
	if err != nil {
		return nil, err
	}

	if v := os.Getenv("MARKET_API_KEY"); v != "" {
		c.MarketData.APIKey = v
	}
	if v := os.Getenv("EXCHANGE_API_KEY"); v != "" {
		c.Exchange.APIKey = v
	}
	if v := os.Getenv("SYMBOLS"); v != "" {
		c.MarketData.Symbols = strings.Split(v, ",")
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		c.Redis.Addr = v
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		c.Alerts.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("ALERT_WEBHOOK_URL"); v != "" {
		c.Alerts.WebhookURL = v
	}

	return c, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Port <= 0 {
		c.Server.Port = 8080
	}
	if c.Server.ReadTimeout <= 0 {
		c.Server.ReadTimeout = 10 * time.Second
	}
	if c.Server.WriteTimeout <= 0 {
		c.Server.WriteTimeout = 10 * time.Second
	}
	if c.Server.ShutdownTimeout <= 0 {
		c.Server.ShutdownTimeout = 15 * time.Second
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "json"
	}
	if c.Log.Output == "" {
		c.Log.Output = "stdout"
	}
	if c.MarketData.CacheTTL <= 0 {
		c.MarketData.CacheTTL = 30 * time.Second
	}
	if c.MarketData.MaxReconnectAttempts <= 0 {
		c.MarketData.MaxReconnectAttempts = 5
	}
	if c.MarketData.ReconnectDelay <= 0 {
		c.MarketData.ReconnectDelay = 2 * time.Second
	}
	if c.MarketData.ConnectTimeout <= 0 {
		c.MarketData.ConnectTimeout = 10 * time.Second
	}
	if c.MarketData.PingInterval <= 0 {
		c.MarketData.PingInterval = 20 * time.Second
	}
	if c.OrderQueue.MaxRetries <= 0 {
		c.OrderQueue.MaxRetries = 3
	}
	if c.OrderQueue.ExecuteTimeout <= 0 {
		c.OrderQueue.ExecuteTimeout = 15 * time.Second
	}
	if c.OrderQueue.Retry.InitialDelay <= 0 {
		c.OrderQueue.Retry.InitialDelay = 1 * time.Second
	}
	if c.OrderQueue.Retry.BackoffFactor <= 1 {
		c.OrderQueue.Retry.BackoffFactor = 2.0
	}
	if c.Monitoring.BufferSize <= 0 {
		c.Monitoring.BufferSize = 100
	}
	if c.Monitoring.FlushInterval <= 0 {
		c.Monitoring.FlushInterval = 10 * time.Second
	}
	if c.Redis.KeyPrefix == "" {
		c.Redis.KeyPrefix = "tradeops"
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Environment == "" {
		return fmt.Errorf("environment is required")
	}
	if c.MarketData.WebSocketURL == "" {
		return fmt.Errorf("market_data.websocket_url is required")
	}
	if len(c.MarketData.Symbols) == 0 {
		return fmt.Errorf("market_data.symbols cannot be empty")
	}
	if c.Exchange.BaseURL == "" {
		return fmt.Errorf("exchange.base_url is required")
	}
	if c.Redis.Addr == "" {
		return fmt.Errorf("redis.addr is required")
	}
	if c.ClickHouse.Host == "" {
		return fmt.Errorf("clickhouse.host is required")
	}
	if len(c.Alerts.Kafka.Brokers) > 0 && c.Alerts.Kafka.Topic == "" {
		return fmt.Errorf("alerts.kafka.topic is required when brokers are set")
	}
	return nil
}
