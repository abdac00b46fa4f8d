package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_DefaultsAndEnv(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")
	t.Setenv("SERVER_PORT", "")
	t.Setenv("MONGO_DB", "")
	t.Setenv("STORE", "memory")
	t.Setenv("PM_INTERVAL", "15m")
	t.Setenv("MQTT_QOS", "2")
	t.Setenv("MONGO_TRANSACTIONS", "")

	cfg, err := LoadConfig(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, "memory", cfg.Store.Driver)
	assert.Equal(t, "test-secret", cfg.JWT.Secret)
	assert.Equal(t, 24*time.Hour, cfg.JWT.Expiration)
	assert.Equal(t, 15*time.Minute, cfg.PM.Interval)
	assert.Equal(t, 5*time.Minute, cfg.PM.LockTTL)
	assert.Equal(t, 2, cfg.MQTT.QoS)
	assert.Equal(t, "cmms", cfg.Mongo.DBName)
	assert.True(t, cfg.Mongo.Transactions)
}

func TestLoadConfig_File(t *testing.T) {
	dir := t.TempDir()
	yaml := []byte(`
server:
  port: "9090"
jwt:
  secret: from-file
mongo:
  dbName: plant
  transactions: true
`)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), yaml, 0o600))
	t.Setenv("SERVER_PORT", "7070")
	t.Setenv("JWT_SECRET", "")
	t.Setenv("MONGO_DB", "")
	t.Setenv("MONGO_TRANSACTIONS", "")

	cfg, err := LoadConfig(dir)
	require.NoError(t, err)
	assert.Equal(t, "7070", cfg.Server.Port, "environment wins over the file")
	assert.Equal(t, "from-file", cfg.JWT.Secret)
	assert.Equal(t, "plant", cfg.Mongo.DBName)
	assert.True(t, cfg.Mongo.Transactions)
}

func TestValidate(t *testing.T) {
	valid := Config{JWT: JWTConfig{Secret: "s"}, Store: StoreConfig{Driver: "mongo"}}
	assert.NoError(t, valid.Validate())

	noSecret := valid
	noSecret.JWT.Secret = ""
	assert.Error(t, noSecret.Validate())

	badStore := valid
	badStore.Store.Driver = "postgres"
	assert.Error(t, badStore.Validate())

	badQoS := valid
	badQoS.MQTT.QoS = 3
	assert.Error(t, badQoS.Validate())
}
