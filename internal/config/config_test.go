package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "development", cfg.Environment)
	assert.Equal(t, 7, cfg.Auth.DefaultSessionDays)
	assert.Equal(t, 48*time.Hour, cfg.Security.HostSessionTTL)
	assert.Equal(t, 14*24*time.Hour, cfg.Security.RememberMeTTL)
	assert.Equal(t, "/connexion", cfg.Guard.LoginPath)
	assert.Contains(t, cfg.Guard.ProtectedSlugs, "espace-membre")
	assert.Contains(t, cfg.Galette.BureauGroups, "bureau")
	assert.False(t, cfg.ExternalAuthAvailable())
}

func TestLoadEnvOverride(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("LEMUR_ENVIRONMENT", "production")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "production", cfg.Environment)
}
