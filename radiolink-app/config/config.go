package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	apisrv "github.com/compose-network/radiolink/server/api"
	"github.com/compose-network/radiolink/x/codec"
	"github.com/compose-network/radiolink/x/events"
	"github.com/compose-network/radiolink/x/modem"
	"github.com/compose-network/radiolink/x/poller"
	"github.com/compose-network/radiolink/x/transport/tcp"
	"github.com/compose-network/radiolink/x/vendor"
)

// EnvPrefix namespaces environment overrides, e.g. RADIOLINK_MODEM_ADDR.
const EnvPrefix = "RADIOLINK"

// Config holds the complete application configuration
type Config struct {
	Modem     ModemConfig       `mapstructure:"modem"     yaml:"modem"`
	Transport tcp.TimeoutConfig `mapstructure:"transport" yaml:"transport"`
	API       APIServerConfig   `mapstructure:"api"       yaml:"api"`
	Metrics   MetricsConfig     `mapstructure:"metrics"   yaml:"metrics"`
	Log       LogConfig         `mapstructure:"log"       yaml:"log"`
	Simulator SimulatorConfig   `mapstructure:"simulator" yaml:"simulator"`
}

// ModemConfig holds the modem link and client configuration
type ModemConfig struct {
	Network        string        `mapstructure:"network"         yaml:"network"`
	Addr           string        `mapstructure:"addr"            yaml:"addr"`
	Variants       []string      `mapstructure:"variants"        yaml:"variants"`
	TeardownPolicy string        `mapstructure:"teardown_policy" yaml:"teardown_policy"`
	BufferPolicy   string        `mapstructure:"buffer_policy"   yaml:"buffer_policy"`
	ReplayCodes    []int32       `mapstructure:"replay_codes"    yaml:"replay_codes"`
	RequestTimeout time.Duration `mapstructure:"request_timeout" yaml:"request_timeout"`
	MaxFrameSize   int           `mapstructure:"max_frame_size"  yaml:"max_frame_size"`
	MaxHistory     int           `mapstructure:"max_history"     yaml:"max_history"`
	ReconnectMin   time.Duration `mapstructure:"reconnect_min"   yaml:"reconnect_min"`
	ReconnectMax   time.Duration `mapstructure:"reconnect_max"   yaml:"reconnect_max"`
	Limits         codec.Limits  `mapstructure:"limits"          yaml:"limits"`
	// Poll lists requests issued on a fixed cadence while attached.
	Poll []poller.Target `mapstructure:"poll" yaml:"poll"`
}

// APIServerConfig holds HTTP API server configuration
type APIServerConfig struct {
	Enabled           bool          `mapstructure:"enabled"             yaml:"enabled"`
	ListenAddr        string        `mapstructure:"listen_addr"         yaml:"listen_addr"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout" yaml:"read_header_timeout"`
	ReadTimeout       time.Duration `mapstructure:"read_timeout"        yaml:"read_timeout"`
	WriteTimeout      time.Duration `mapstructure:"write_timeout"       yaml:"write_timeout"`
	IdleTimeout       time.Duration `mapstructure:"idle_timeout"        yaml:"idle_timeout"`
	MaxHeaderBytes    int           `mapstructure:"max_header_bytes"    yaml:"max_header_bytes"`
	CORS              bool          `mapstructure:"cors"                yaml:"cors"`
}

// MetricsConfig holds metrics configuration
type MetricsConfig struct {
	Enabled         bool          `mapstructure:"enabled"          yaml:"enabled"`
	Path            string        `mapstructure:"path"             yaml:"path"`
	RuntimeInterval time.Duration `mapstructure:"runtime_interval" yaml:"runtime_interval"`
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string `mapstructure:"level"  yaml:"level"`
	Pretty bool   `mapstructure:"pretty" yaml:"pretty"`
}

// SimulatorConfig holds the `simulate` subcommand configuration
type SimulatorConfig struct {
	ListenAddr string `mapstructure:"listen_addr" yaml:"listen_addr"`
	Script     string `mapstructure:"script"      yaml:"script"`
}

// Load loads configuration from file and environment. An empty path uses
// defaults and environment only.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", configPath, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// setDefaults mirrors Default so env-only overrides bind every key.
func setDefaults(v *viper.Viper) {
	d := Default()

	v.SetDefault("modem.network", d.Modem.Network)
	v.SetDefault("modem.addr", d.Modem.Addr)
	v.SetDefault("modem.variants", d.Modem.Variants)
	v.SetDefault("modem.teardown_policy", d.Modem.TeardownPolicy)
	v.SetDefault("modem.buffer_policy", d.Modem.BufferPolicy)
	v.SetDefault("modem.replay_codes", d.Modem.ReplayCodes)
	v.SetDefault("modem.request_timeout", d.Modem.RequestTimeout)
	v.SetDefault("modem.max_frame_size", d.Modem.MaxFrameSize)
	v.SetDefault("modem.max_history", d.Modem.MaxHistory)
	v.SetDefault("modem.reconnect_min", d.Modem.ReconnectMin)
	v.SetDefault("modem.reconnect_max", d.Modem.ReconnectMax)
	v.SetDefault("modem.limits.max_field_bytes", d.Modem.Limits.MaxFieldBytes)
	v.SetDefault("modem.limits.max_array_len", d.Modem.Limits.MaxArrayLen)
	v.SetDefault("modem.poll", d.Modem.Poll)

	v.SetDefault("transport.dial", d.Transport.Dial)
	v.SetDefault("transport.read", d.Transport.Read)
	v.SetDefault("transport.write", d.Transport.Write)

	v.SetDefault("api.enabled", d.API.Enabled)
	v.SetDefault("api.listen_addr", d.API.ListenAddr)
	v.SetDefault("api.read_header_timeout", d.API.ReadHeaderTimeout)
	v.SetDefault("api.read_timeout", d.API.ReadTimeout)
	v.SetDefault("api.write_timeout", d.API.WriteTimeout)
	v.SetDefault("api.idle_timeout", d.API.IdleTimeout)
	v.SetDefault("api.max_header_bytes", d.API.MaxHeaderBytes)
	v.SetDefault("api.cors", d.API.CORS)

	v.SetDefault("metrics.enabled", d.Metrics.Enabled)
	v.SetDefault("metrics.path", d.Metrics.Path)
	v.SetDefault("metrics.runtime_interval", d.Metrics.RuntimeInterval)

	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.pretty", d.Log.Pretty)

	v.SetDefault("simulator.listen_addr", d.Simulator.ListenAddr)
	v.SetDefault("simulator.script", d.Simulator.Script)
}

// Validate validates the configuration
func (c *Config) Validate() error {
	return errors.Join(
		c.validateModem(),
		c.validateTransport(),
		c.validateAPI(),
		c.validateMetrics(),
	)
}

func (c *Config) validateModem() error {
	if strings.TrimSpace(c.Modem.Addr) == "" {
		return fmt.Errorf("modem.addr is required")
	}
	if c.Modem.Network != "tcp" && c.Modem.Network != "unix" {
		return fmt.Errorf("modem.network must be tcp or unix, got %q", c.Modem.Network)
	}
	if _, _, err := vendor.BuildChain(c.Modem.Variants...); err != nil {
		return fmt.Errorf("modem.variants: %w", err)
	}
	if _, err := modem.ParseTeardownPolicy(c.Modem.TeardownPolicy); err != nil {
		return fmt.Errorf("modem.teardown_policy: %w", err)
	}
	if _, err := events.ParsePolicy(c.Modem.BufferPolicy); err != nil {
		return fmt.Errorf("modem.buffer_policy: %w", err)
	}
	if c.Modem.RequestTimeout < 0 {
		return fmt.Errorf("modem.request_timeout must not be negative")
	}
	if c.Modem.MaxFrameSize <= 0 {
		return fmt.Errorf("modem.max_frame_size must be positive, got %d", c.Modem.MaxFrameSize)
	}
	if c.Modem.ReconnectMin <= 0 || c.Modem.ReconnectMax < c.Modem.ReconnectMin {
		return fmt.Errorf("modem.reconnect_min must be positive and not above modem.reconnect_max")
	}
	for i, t := range c.Modem.Poll {
		if t.Code <= 0 {
			return fmt.Errorf("modem.poll[%d]: code must be positive, got %d", i, t.Code)
		}
		if t.Interval <= 0 {
			return fmt.Errorf("modem.poll[%d]: interval must be positive", i)
		}
		if t.Strings != nil && t.Ints != nil {
			return fmt.Errorf("modem.poll[%d]: set strings or ints, not both", i)
		}
	}
	return nil
}

func (c *Config) validateTransport() error {
	if c.Transport.Dial <= 0 {
		return fmt.Errorf("transport.dial must be positive")
	}
	if c.Transport.Read < 0 || c.Transport.Write < 0 {
		return fmt.Errorf("transport timeouts must not be negative")
	}
	return nil
}

func (c *Config) validateAPI() error {
	if !c.API.Enabled {
		return nil
	}
	if strings.TrimSpace(c.API.ListenAddr) == "" {
		return fmt.Errorf("api.listen_addr is required when the API is enabled")
	}
	if err := c.API.Server().Validate(); err != nil {
		return fmt.Errorf("api: %w", err)
	}
	return nil
}

// Server converts the section into the HTTP server's own config.
func (a APIServerConfig) Server() apisrv.Config {
	return apisrv.Config{
		ListenAddr:        a.ListenAddr,
		ReadHeaderTimeout: a.ReadHeaderTimeout,
		ReadTimeout:       a.ReadTimeout,
		WriteTimeout:      a.WriteTimeout,
		IdleTimeout:       a.IdleTimeout,
		ShutdownTimeout:   apisrv.DefaultConfig().ShutdownTimeout,
		MaxHeaderBytes:    a.MaxHeaderBytes,
		CORS:              a.CORS,
	}
}

func (c *Config) validateMetrics() error {
	if !c.Metrics.Enabled {
		return nil
	}
	if !strings.HasPrefix(c.Metrics.Path, "/") {
		return fmt.Errorf("metrics.path must start with /, got %q", c.Metrics.Path)
	}
	if !c.API.Enabled {
		return fmt.Errorf("metrics are served by the API; enable api or disable metrics")
	}
	return nil
}

// Default returns default configuration
func Default() *Config {
	return &Config{
		Modem: ModemConfig{
			Network:        "tcp",
			Addr:           "127.0.0.1:5037",
			Variants:       []string{},
			TeardownPolicy: modem.RetainOnTeardown.String(),
			BufferPolicy:   events.BufferLatest.String(),
			ReplayCodes:    []int32{},
			RequestTimeout: 30 * time.Second,
			MaxFrameSize:   codec.DefaultMaxFrameSize,
			MaxHistory:     256,
			ReconnectMin:   500 * time.Millisecond,
			ReconnectMax:   30 * time.Second,
			Limits:         codec.DefaultLimits(),
			Poll:           []poller.Target{},
		},
		Transport: tcp.DefaultTimeoutConfig(),
		API: APIServerConfig{
			Enabled:           true,
			ListenAddr:        "127.0.0.1:8089",
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       15 * time.Second,
			WriteTimeout:      60 * time.Second,
			IdleTimeout:       120 * time.Second,
			MaxHeaderBytes:    1 << 20,
		},
		Metrics: MetricsConfig{
			Enabled:         true,
			Path:            "/metrics",
			RuntimeInterval: 15 * time.Second,
		},
		Log: LogConfig{
			Level:  "info",
			Pretty: false,
		},
		Simulator: SimulatorConfig{
			ListenAddr: "127.0.0.1:5037",
		},
	}
}
