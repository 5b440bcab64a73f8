package db

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigAppliesOptions(t *testing.T) {
	cfg, err := Config("postgres://u:p@localhost:5432/console?sslmode=disable",
		WithMaxConns(6),
		WithConnLifetime(time.Hour),
	)
	require.NoError(t, err)
	assert.EqualValues(t, 6, cfg.MaxConns)
	assert.Equal(t, time.Hour, cfg.MaxConnLifetime)
	assert.Equal(t, "console", cfg.ConnConfig.Database)
}

func TestConfigZeroOptionsKeepDefaults(t *testing.T) {
	base, err := Config("postgres://u:p@localhost:5432/console")
	require.NoError(t, err)
	cfg, err := Config("postgres://u:p@localhost:5432/console", WithMaxConns(0), WithConnLifetime(0))
	require.NoError(t, err)
	assert.Equal(t, base.MaxConns, cfg.MaxConns)
	assert.Equal(t, base.MaxConnLifetime, cfg.MaxConnLifetime)
}

func TestConfigRejectsBadDSN(t *testing.T) {
	_, err := Config("postgres://%zz")
	assert.ErrorContains(t, err, "platform/db: parse config")
}
