package auth

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"fleet-backend/internal/config"
)

type fakeLookup struct {
	keys  map[string]string
	err   error
	calls int
}

func (f *fakeLookup) GetAPIKey(_ context.Context, apiKey string) (string, error) {
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	return f.keys[apiKey], nil
}

func testConfig(staticKeys ...string) *config.Config {
	return &config.Config{ValidAPIKeys: staticKeys, AuthCacheTTLSeconds: 300}
}

func TestValidateStaticKey(t *testing.T) {
	a := NewAuthenticator(testConfig("static-key"), nil)

	assert.True(t, a.Validate(context.Background(), "static-key"))
	assert.False(t, a.Validate(context.Background(), "unknown"))
}

func TestValidateLookupAndCache(t *testing.T) {
	lookup := &fakeLookup{keys: map[string]string{"device-key": "fleet_a"}}
	a := NewAuthenticator(testConfig(), lookup)

	assert.True(t, a.Validate(context.Background(), "device-key"))
	assert.True(t, a.Validate(context.Background(), "device-key"))
	assert.Equal(t, 1, lookup.calls, "second hit must come from the local cache")
}

func TestValidateLookupFailureDenies(t *testing.T) {
	lookup := &fakeLookup{err: errors.New("redis down")}
	a := NewAuthenticator(testConfig(), lookup)

	assert.False(t, a.Validate(context.Background(), "device-key"))
}
