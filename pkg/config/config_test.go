package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("TICKETBRIDGE_AUTHORITY_URL", "https://authority.example.com")
	t.Setenv("TICKETBRIDGE_APP_ID", "my-app")
	t.Setenv("TICKETBRIDGE_APP_KEY", "super-secret")
}

func TestLoadDefaults(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "https://authority.example.com", cfg.AuthorityURL)
	assert.Equal(t, "my-app", cfg.AppID)
	assert.Equal(t, "sha256", cfg.AppAlgorithm)
	assert.Equal(t, 30*time.Second, cfg.RequestTimeout)
	assert.Equal(t, 10*time.Second, cfg.TicketBuffer)
	assert.Equal(t, 5*time.Minute, cfg.RetryInterval)
	assert.True(t, cfg.AllowAssertions)
	assert.True(t, cfg.AllowVouchers)
	assert.True(t, cfg.AllowBearer)
	assert.False(t, cfg.SignRSVP)
	assert.Equal(t, ":8080", cfg.Address)
	assert.Empty(t, cfg.RedisAddr)
}

func TestLoadOverrides(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("TICKETBRIDGE_TICKET_BUFFER", "30s")
	t.Setenv("TICKETBRIDGE_RETRY_INTERVAL", "1m")
	t.Setenv("TICKETBRIDGE_ALLOW_BEARER", "false")
	t.Setenv("TICKETBRIDGE_REDIS_ADDR", "localhost:6379")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 30*time.Second, cfg.TicketBuffer)
	assert.Equal(t, time.Minute, cfg.RetryInterval)
	assert.False(t, cfg.AllowBearer)
	assert.Equal(t, "localhost:6379", cfg.RedisAddr)
}

func TestLoadMissingRequired(t *testing.T) {
	tests := []struct {
		name  string
		unset string
	}{
		{"missing authority URL", "TICKETBRIDGE_AUTHORITY_URL"},
		{"missing app id", "TICKETBRIDGE_APP_ID"},
		{"missing app key", "TICKETBRIDGE_APP_KEY"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setRequiredEnv(t)
			t.Setenv(tt.unset, "")

			_, err := Load()
			require.Error(t, err)
		})
	}
}

func TestLoadRejectsInvalidURL(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("TICKETBRIDGE_AUTHORITY_URL", "not a url")

	_, err := Load()
	require.Error(t, err)
}

func TestAppCredential(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := Load()
	require.NoError(t, err)

	cred := cfg.AppCredential()
	assert.Equal(t, "my-app", cred.ID)
	assert.Equal(t, "super-secret", cred.Key)
	assert.Equal(t, "sha256", cred.Algorithm)
}
