package app

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	_ "github.com/foamcrew/foamcrew/internal/testing/guard"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("TOKEN_SECRET", "test-secret")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	require.Equal(t, ":8080", cfg.AppAddr)
	require.Equal(t, "/media", cfg.MediaBaseURL)
	require.Equal(t, 8760*time.Hour, cfg.MaterialLogRetention)
	require.False(t, cfg.IsProduction())
}

func TestLoadConfigRequiresTokenSecret(t *testing.T) {
	t.Setenv("TOKEN_SECRET", "")

	_, err := LoadConfig()
	require.Error(t, err)
}

func TestIsProduction(t *testing.T) {
	t.Setenv("TOKEN_SECRET", "test-secret")
	t.Setenv("APP_ENV", "production")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	require.True(t, cfg.IsProduction())
}

func TestInTestMode(t *testing.T) {
	RefreshTestMode()
	require.True(t, InTestMode(), "guard import must enable test mode")
}
