package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/compose-network/radiolink/x/poller"
)

func TestDefault_Validates(t *testing.T) {
	t.Parallel()

	require.NoError(t, Default().Validate())
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
modem:
  addr: 10.0.0.2:5037
  variants: [siminfo, oemhook]
  teardown_policy: clear
  buffer_policy: all
  request_timeout: 5s
  replay_codes: [1009]
  poll:
    - code: 19
      interval: 30s
    - code: 139
      ints: [7]
      interval: 1m
      timeout: 5s
transport:
  write: 2s
log:
  level: debug
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "10.0.0.2:5037", cfg.Modem.Addr)
	assert.Equal(t, []string{"siminfo", "oemhook"}, cfg.Modem.Variants)
	assert.Equal(t, "clear", cfg.Modem.TeardownPolicy)
	assert.Equal(t, "all", cfg.Modem.BufferPolicy)
	assert.Equal(t, 5*time.Second, cfg.Modem.RequestTimeout)
	assert.Equal(t, []int32{1009}, cfg.Modem.ReplayCodes)
	require.Len(t, cfg.Modem.Poll, 2)
	assert.Equal(t, int32(19), cfg.Modem.Poll[0].Code)
	assert.Equal(t, 30*time.Second, cfg.Modem.Poll[0].Interval)
	assert.Equal(t, []int32{7}, cfg.Modem.Poll[1].Ints)
	assert.Equal(t, 5*time.Second, cfg.Modem.Poll[1].Timeout)
	assert.Equal(t, 2*time.Second, cfg.Transport.Write)
	assert.Equal(t, "debug", cfg.Log.Level)

	// Untouched keys keep their defaults.
	assert.Equal(t, Default().Transport.Dial, cfg.Transport.Dial)
	assert.Equal(t, Default().Modem.Limits, cfg.Modem.Limits)
	assert.Equal(t, "/metrics", cfg.Metrics.Path)
}

func TestLoad_NoFile(t *testing.T) {
	t.Parallel()

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default().Modem.Addr, cfg.Modem.Addr)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	t.Parallel()

	for name, mutate := range map[string]func(*Config){
		"empty addr":       func(c *Config) { c.Modem.Addr = "" },
		"bad network":      func(c *Config) { c.Modem.Network = "udp" },
		"unknown variant":  func(c *Config) { c.Modem.Variants = []string{"nope"} },
		"bad teardown":     func(c *Config) { c.Modem.TeardownPolicy = "sometimes" },
		"bad buffer":       func(c *Config) { c.Modem.BufferPolicy = "first" },
		"zero frame size":  func(c *Config) { c.Modem.MaxFrameSize = 0 },
		"backoff inverted": func(c *Config) { c.Modem.ReconnectMax = time.Millisecond },
		"zero dial":        func(c *Config) { c.Transport.Dial = 0 },
		"poll no interval": func(c *Config) { c.Modem.Poll = []poller.Target{{Code: 19}} },
		"poll both kinds": func(c *Config) {
			c.Modem.Poll = []poller.Target{{Code: 19, Interval: time.Second, Strings: []string{}, Ints: []int32{}}}
		},
		"metrics no api":   func(c *Config) { c.API.Enabled = false },
		"metrics path":     func(c *Config) { c.Metrics.Path = "metrics" },
		"api bad addr":     func(c *Config) { c.API.ListenAddr = "localhost" },
		"api neg timeout":  func(c *Config) { c.API.ReadTimeout = -time.Second },
	} {
		cfg := Default()
		mutate(cfg)
		assert.Error(t, cfg.Validate(), name)
	}
}
