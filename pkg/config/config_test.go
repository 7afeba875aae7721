package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

const minimalYAML = `
environment: test
market_data:
  websocket_url: wss://stream.example.com/ws
  symbols: [BTC-USD]
exchange:
  base_url: https://api.example.com
redis:
  addr: localhost:6379
clickhouse:
  host: localhost
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	c, err := Load(writeConfig(t, minimalYAML))
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if c.Server.Port != 8080 {
		t.Fatalf("server port = %d, want default 8080", c.Server.Port)
	}
	if c.MarketData.CacheTTL != 30*time.Second {
		t.Fatalf("cache ttl = %v, want default 30s", c.MarketData.CacheTTL)
	}
	if c.OrderQueue.MaxRetries != 3 {
		t.Fatalf("max retries = %d, want default 3", c.OrderQueue.MaxRetries)
	}
	if c.OrderQueue.Retry.InitialDelay != time.Second || c.OrderQueue.Retry.BackoffFactor != 2.0 {
		t.Fatalf("retry defaults = %v / %v", c.OrderQueue.Retry.InitialDelay, c.OrderQueue.Retry.BackoffFactor)
	}
	if c.Monitoring.BufferSize != 100 || c.Monitoring.FlushInterval != 10*time.Second {
		t.Fatalf("monitoring defaults = %d / %v", c.Monitoring.BufferSize, c.Monitoring.FlushInterval)
	}
	if c.Redis.KeyPrefix != "tradeops" {
		t.Fatalf("key prefix = %q", c.Redis.KeyPrefix)
	}
}

func TestLoadRejectsMissingRequired(t *testing.T) {
	cases := map[string]string{
		"no environment": `
market_data: {websocket_url: wss://x, symbols: [BTC-USD]}
exchange: {base_url: https://x}
redis: {addr: localhost:6379}
clickhouse: {host: localhost}
`,
		"no symbols": `
environment: test
market_data: {websocket_url: wss://x}
exchange: {base_url: https://x}
redis: {addr: localhost:6379}
clickhouse: {host: localhost}
`,
		"brokers without topic": minimalYAML + `
alerts:
  kafka:
    brokers: [localhost:9092]
`,
	}
	for name, body := range cases {
		if _, err := Load(writeConfig(t, body)); err == nil {
			t.Fatalf("%s: expected validation error", name)
		}
	}
}

func TestLoadWithEnvOverrides(t *testing.T) {
	t.Setenv("MARKET_API_KEY", "k-123")
	t.Setenv("SYMBOLS", "ETH-USD,SOL-USD")

	c, err := LoadWithEnv(writeConfig(t, minimalYAML))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if c.MarketData.APIKey != "k-123" {
		t.Fatalf("api key = %q", c.MarketData.APIKey)
	}
	if len(c.MarketData.Symbols) != 2 || c.MarketData.Symbols[0] != "ETH-USD" {
		t.Fatalf("symbols = %v", c.MarketData.Symbols)
	}
}

func TestDurationParsing(t *testing.T) {
	c, err := Load(writeConfig(t, minimalYAML+`
order_queue:
  execute_timeout: 2s
  retry:
    initial_delay: 250ms
`))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if c.OrderQueue.ExecuteTimeout != 2*time.Second {
		t.Fatalf("execute timeout = %v", c.OrderQueue.ExecuteTimeout)
	}
	if c.OrderQueue.Retry.InitialDelay != 250*time.Millisecond {
		t.Fatalf("initial delay = %v", c.OrderQueue.Retry.InitialDelay)
	}
}
