package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaultsWithoutFile(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "storefront", cfg.Server.Name)
	assert.Equal(t, 8080, cfg.Gateway.Port)
	assert.Equal(t, "0.10", cfg.Pricing.TaxRate)
	assert.Equal(t, 7*24*time.Hour, cfg.Pricing.CartTTL)
	assert.Equal(t, "audit_logs", cfg.MongoDB.AuditCollection)
	assert.Equal(t, []string{"stdout"}, cfg.Log.OutputPaths)
	assert.False(t, cfg.Redis.Enabled)
}

func TestLoadFileAndEnvOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
gateway:
  port: 9000
pricing:
  tax_rate: "0.2"
  shipping: "4.99"
mongodb:
  uri: mongodb://db:27017
redis:
  enabled: true
  addr: cache:6379
locking:
  lock_ttl: 3s
mysql:
  username: shop
  password: secret
  host: sql
  port: 3307
  database: ledger
`), 0o600))
	t.Setenv("STOREFRONT_MONGODB_URI", "mongodb://override:27017")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9000, cfg.Gateway.Port)
	assert.Equal(t, "0.2", cfg.Pricing.TaxRate)
	assert.Equal(t, "4.99", cfg.Pricing.Shipping)
	assert.Equal(t, "mongodb://override:27017", cfg.MongoDB.URI)
	assert.True(t, cfg.Redis.Enabled)
	assert.Equal(t, "cache:6379", cfg.Redis.Addr)
	assert.Equal(t, 3*time.Second, cfg.Locking.LockTTL)
	assert.Equal(t, "shop:secret@tcp(sql:3307)/ledger?charset=utf8mb4&parseTime=True&loc=UTC", cfg.MySQL.DSN())
	assert.Equal(t, "0.0.0.0:9000", cfg.Gateway.Addr())
}

func TestLoadRejectsMalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("gateway: [unclosed"), 0o600))
	_, err := Load(path)
	assert.Error(t, err)
}
