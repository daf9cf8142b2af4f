package app

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-pos/internal/money"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("TAX_TYPE", "")
	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.AppAddr)
	assert.Equal(t, 12*time.Hour, cfg.CartTTL)
	assert.Equal(t, LockBackendMemory, cfg.LockBackend)
	assert.Equal(t, money.TaxExclusive, cfg.DefaultTaxType())
	assert.Equal(t, "10", cfg.LoyaltyAmountPerPoint.String())
	assert.False(t, cfg.IsProduction())
}

func TestLoadConfigOverrides(t *testing.T) {
	t.Setenv("TAX_TYPE", "inclusive")
	t.Setenv("LOCK_BACKEND", "redis")
	t.Setenv("LOYALTY_AMOUNT_PER_POINT", "2.5")
	t.Setenv("APP_ENV", "production")
	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, money.TaxInclusive, cfg.DefaultTaxType())
	assert.Equal(t, LockBackendRedis, cfg.LockBackend)
	assert.Equal(t, "2.5", cfg.LoyaltyAmountPerPoint.String())
	assert.True(t, cfg.IsProduction())
}

func TestLoadConfigRejectsInvalidValues(t *testing.T) {
	t.Setenv("LOCK_BACKEND", "etcd")
	_, err := LoadConfig()
	require.ErrorContains(t, err, "LOCK_BACKEND")

	t.Setenv("LOCK_BACKEND", "memory")
	t.Setenv("TAX_TYPE", "vat")
	_, err = LoadConfig()
	require.ErrorIs(t, err, money.ErrUnknownType)
}
