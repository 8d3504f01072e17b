package app

import (
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequired(t *testing.T) {
	t.Setenv("SESSION_SECRET", "session")
	t.Setenv("CSRF_SECRET", "csrf")
	t.Setenv("SUPABASE_URL", "https://project.supabase.co")
	t.Setenv("SUPABASE_ANON_KEY", "anon")
	t.Setenv("SUPABASE_JWT_SECRET", "jwt")
	t.Setenv("GOTENBERG_URL", "")
}

func TestLoadConfigDefaults(t *testing.T) {
	setRequired(t)
	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, 500*time.Millisecond, cfg.SearchDebounce)
	assert.Equal(t, 8*time.Second, cfg.StatusPollInterval)
	assert.Equal(t, "http://localhost:3000", cfg.BackendURL)
	assert.Empty(t, cfg.GotenbergURL)
	assert.False(t, cfg.LegacyContacts)
	assert.False(t, cfg.IsProduction())
	assert.Equal(t, slog.LevelInfo, cfg.Level())
}

func TestLoadConfigOverrides(t *testing.T) {
	setRequired(t)
	t.Setenv("SEARCH_DEBOUNCE", "0s")
	t.Setenv("LEGACY_CONTACTS", "true")
	t.Setenv("APP_ENV", "production")
	t.Setenv("LOG_LEVEL", "debug")
	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Zero(t, cfg.SearchDebounce)
	assert.True(t, cfg.LegacyContacts)
	assert.True(t, cfg.IsProduction())
	assert.Equal(t, slog.LevelDebug, cfg.Level())
}

func TestLoadConfigRejectsFastPolling(t *testing.T) {
	setRequired(t)
	t.Setenv("STATUS_POLL_INTERVAL", "100ms")
	_, err := LoadConfig()
	assert.Error(t, err)
}

func TestLoadConfigRequiresSupabase(t *testing.T) {
	setRequired(t)
	t.Setenv("SUPABASE_JWT_SECRET", "")
	_, err := LoadConfig()
	assert.Error(t, err)
}
