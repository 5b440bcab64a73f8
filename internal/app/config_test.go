package app

import (
	"bytes"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("DEVICE_ID", "kiosk-1")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, "kiosk-1", cfg.DeviceID)
	assert.Equal(t, 24*time.Hour, cfg.SessionTTL)
	assert.Equal(t, 5*time.Second, cfg.SessionGuardWait)
	assert.Equal(t, "cylinderhub:", cfg.KVPrefix)
	assert.Equal(t, "*/30 * * * *", cfg.SweepCron)
	assert.False(t, cfg.IsProduction())
}

func TestConfigValidate(t *testing.T) {
	valid := Config{DeviceID: "kiosk-1", SessionTTL: time.Hour, SessionGuardWait: time.Second}
	require.NoError(t, valid.Validate())

	cases := map[string]func(*Config){
		"blank device":    func(c *Config) { c.DeviceID = "  " },
		"glob in device":  func(c *Config) { c.DeviceID = "kiosk*" },
		"zero ttl":        func(c *Config) { c.SessionTTL = 0 },
		"zero guard wait": func(c *Config) { c.SessionGuardWait = 0 },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := valid
			mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestLoggerLevelAndDevice(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&Config{LogFormat: "json", LogLevel: "warn", DeviceID: "kiosk-1"}, &buf)

	logger.Info("hidden")
	logger.Warn("shown", slog.String("k", "v"))

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, `"msg":"shown"`)
	assert.Contains(t, out, `"device":"kiosk-1"`)
	assert.Equal(t, slog.LevelInfo, parseLevel(nil))
	assert.Equal(t, slog.LevelDebug, parseLevel(&Config{LogLevel: "DEBUG"}))
}
