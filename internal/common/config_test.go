package common

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_ServerSettings(t *testing.T) {
	t.Setenv("COOKIE_SECURE", "")
	t.Setenv("HEALTH_CHECK_INTERVAL", "")
	cfg := LoadConfig()
	assert.False(t, cfg.Server.CookieSecure)
	assert.Equal(t, 15*time.Second, cfg.Server.HealthInterval)

	t.Setenv("COOKIE_SECURE", "true")
	t.Setenv("HEALTH_CHECK_INTERVAL", "2s")
	cfg = LoadConfig()
	assert.True(t, cfg.Server.CookieSecure)
	assert.Equal(t, 2*time.Second, cfg.Server.HealthInterval)

	t.Setenv("COOKIE_SECURE", "maybe")
	assert.False(t, LoadConfig().Server.CookieSecure)
}

func TestValidate_DigitalThreshold(t *testing.T) {
	t.Setenv("DB_DRIVER", "sqlite")
	t.Setenv("DB_URL", "file::memory:")
	t.Setenv("CONVERSATION_STORE", "memory")

	t.Setenv("OCR_MIN_DIGITAL_CHARS", "30")
	require.NoError(t, LoadConfig().Validate())

	cfg := LoadConfig()
	cfg.OCR.MinDigitalChars = 0
	err := cfg.Validate()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidInput)
}
