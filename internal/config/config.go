// Package config defines configuration for the BitMEX realtime/REST client.
// Config is loaded from a YAML file (default: configs/config.yaml) with
// sensitive fields overridable via BITMEX_* environment variables.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	mainnetWSURL   = "wss://www.bitmex.com/realtime"
	mainnetRestURL = "https://www.bitmex.com/api/v1"
	testnetWSURL   = "wss://testnet.bitmex.com/realtime"
	testnetRestURL = "https://testnet.bitmex.com/api/v1"
)

// Config is the top-level configuration. Maps directly to the YAML file structure.
type Config struct {
	IsTest    bool            `mapstructure:"is_test"`
	API       APIConfig       `mapstructure:"api"`
	Transport TransportConfig `mapstructure:"transport"`
	Rest      RestConfig      `mapstructure:"rest"`
	Symbols   SymbolsConfig   `mapstructure:"symbols"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// APIConfig holds BitMEX credentials. ApiKey/ApiSecret fall back to
// BITMEX_API_KEY/BITMEX_API_SECRET when unset, per the module's external
// interfaces.
type APIConfig struct {
	ApiKey      string `mapstructure:"api_key"`
	ApiSecret   string `mapstructure:"api_secret"`
	AuthSkewSec int    `mapstructure:"auth_expires_skew_sec"`
}

// TransportConfig tunes the WebSocket transport's keepalive, reconnect, and
// send-buffer behavior.
//
//   - PingInterval/PongTimeout: keepalive cadence and read-deadline budget.
//   - ReconnectBaseDelay/ReconnectMaxDelay: exponential backoff bounds.
//   - ReconnectMaxAttempts: 0 means unlimited.
//   - SendBufferLimit: outbound frames held while the socket is not open
//     or, for private channels, not yet authenticated.
//   - AuthTimeout: how long an authKeyExpires request waits before failing.
type TransportConfig struct {
	PingInterval         time.Duration `mapstructure:"ping_interval"`
	PongTimeout          time.Duration `mapstructure:"pong_timeout"`
	ReconnectBaseDelay   time.Duration `mapstructure:"reconnect_base_delay"`
	ReconnectMaxDelay    time.Duration `mapstructure:"reconnect_max_delay"`
	ReconnectMaxAttempts int           `mapstructure:"reconnect_max_attempts"`
	SendBufferLimit      int           `mapstructure:"send_buffer_limit"`
	AuthTimeout          time.Duration `mapstructure:"auth_timeout"`
}

// RestConfig tunes the signed REST client and the placement engine's
// timeout budgets.
type RestConfig struct {
	Timeout          time.Duration `mapstructure:"timeout"`
	PlaceTimeout     time.Duration `mapstructure:"place_timeout"`
	ReconcileTimeout time.Duration `mapstructure:"reconcile_timeout"`
}

// SymbolsConfig toggles the unified-symbol alias layer.
type SymbolsConfig struct {
	MappingEnabled bool `mapstructure:"mapping_enabled"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load reads config from a YAML file with env var overrides.
// Sensitive fields use env vars: BITMEX_API_KEY, BITMEX_API_SECRET.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetEnvPrefix("BITMEX")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	applyDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

func applyDefaults(v *viper.Viper) {
	v.SetDefault("api.auth_expires_skew_sec", 60)
	v.SetDefault("transport.ping_interval", 25*time.Second)
	v.SetDefault("transport.pong_timeout", 15*time.Second)
	v.SetDefault("transport.reconnect_base_delay", 500*time.Millisecond)
	v.SetDefault("transport.reconnect_max_delay", 30*time.Second)
	v.SetDefault("transport.reconnect_max_attempts", 0)
	v.SetDefault("transport.send_buffer_limit", 1000)
	v.SetDefault("transport.auth_timeout", 10*time.Second)
	v.SetDefault("rest.timeout", 10*time.Second)
	v.SetDefault("rest.place_timeout", 5*time.Second)
	v.SetDefault("rest.reconcile_timeout", 5*time.Second)
	v.SetDefault("symbols.mapping_enabled", true)
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}

// applyEnvOverrides applies the explicit BITMEX_API_KEY/BITMEX_API_SECRET
// fallback the module's external interfaces name directly, taking
// precedence over whatever the YAML file or viper's automatic env binding
// produced.
func applyEnvOverrides(cfg *Config) {
	if key := os.Getenv("BITMEX_API_KEY"); key != "" {
		cfg.API.ApiKey = key
	}
	if secret := os.Getenv("BITMEX_API_SECRET"); secret != "" {
		cfg.API.ApiSecret = secret
	}
	if os.Getenv("BITMEX_IS_TEST") == "true" || os.Getenv("BITMEX_IS_TEST") == "1" {
		cfg.IsTest = true
	}
}

// WSURL returns the realtime WebSocket endpoint for the configured
// network.
func (c *Config) WSURL() string {
	if c.IsTest {
		return testnetWSURL
	}
	return mainnetWSURL
}

// RestBaseURL returns the signed REST base URL for the configured network.
func (c *Config) RestBaseURL() string {
	if c.IsTest {
		return testnetRestURL
	}
	return mainnetRestURL
}

// Validate checks all required fields and value ranges.
func (c *Config) Validate() error {
	if c.API.AuthSkewSec < 0 {
		return fmt.Errorf("api.auth_expires_skew_sec must be >= 0")
	}
	if c.Transport.PingInterval <= 0 {
		return fmt.Errorf("transport.ping_interval must be > 0")
	}
	if c.Transport.PongTimeout <= 0 {
		return fmt.Errorf("transport.pong_timeout must be > 0")
	}
	if c.Transport.ReconnectBaseDelay <= 0 {
		return fmt.Errorf("transport.reconnect_base_delay must be > 0")
	}
	if c.Transport.ReconnectMaxDelay < c.Transport.ReconnectBaseDelay {
		return fmt.Errorf("transport.reconnect_max_delay must be >= reconnect_base_delay")
	}
	if c.Transport.SendBufferLimit <= 0 {
		return fmt.Errorf("transport.send_buffer_limit must be > 0")
	}
	if c.Rest.Timeout <= 0 {
		return fmt.Errorf("rest.timeout must be > 0")
	}
	if (c.API.ApiKey == "") != (c.API.ApiSecret == "") {
		return fmt.Errorf("api.api_key and api.api_secret must be set together")
	}
	return nil
}
