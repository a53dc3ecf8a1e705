package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	assert.Equal(t, "8000", cfg.HTTPPort)
	assert.Equal(t, "fleet_backend", cfg.DBName)
	assert.Equal(t, int32(15), cfg.DBMaxConns)
	assert.Equal(t, 2*time.Second, cfg.InferTimeout)
	assert.Equal(t, 64, cfg.SubscriberBuffer)
	assert.Empty(t, cfg.ValidAPIKeys)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("HTTP_PORT", "9999")
	t.Setenv("ML_INFER_TIMEOUT_MS", "500")
	t.Setenv("VALID_API_KEYS", "key-a,key-b")
	t.Setenv("DB_MAX_CONNS", "not-a-number")

	cfg := Load()

	assert.Equal(t, "9999", cfg.HTTPPort)
	assert.Equal(t, 500*time.Millisecond, cfg.InferTimeout)
	assert.Equal(t, []string{"key-a", "key-b"}, cfg.ValidAPIKeys)
	// unparsable ints fall back to the default
	assert.Equal(t, int32(15), cfg.DBMaxConns)
}
