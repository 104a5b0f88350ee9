package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chatbook/platform/services/booking-service/internal/booking"
)

func noDotenv(t *testing.T) string {
	return filepath.Join(t.TempDir(), "absent.env")
}

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://booking@localhost/booking")

	cfg, err := loadConfig(noDotenv(t))
	require.NoError(t, err)
	assert.Equal(t, "8083", cfg.Port)
	assert.True(t, cfg.EnforceHours)
	assert.Equal(t, "booking-service", cfg.Config.ServiceName)

	opts := cfg.bookingOptions()
	assert.Equal(t, 15*time.Minute, opts.DefaultStep)
	assert.Equal(t, booking.ScopeBusiness, opts.Scope)
}

func TestLoadConfigOverrides(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://booking@localhost/booking")
	t.Setenv("BOOKING_CONFLICT_SCOPE", "staff")
	t.Setenv("BOOKING_SLOT_STEP_MINUTES", "10")
	t.Setenv("BOOKING_ENFORCE_HOURS", "false")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://*.chatbook.app,https://example.com")

	cfg, err := loadConfig(noDotenv(t))
	require.NoError(t, err)
	assert.Equal(t, []string{"https://*.chatbook.app", "https://example.com"}, cfg.CORSAllowedOrigins)

	opts := cfg.bookingOptions()
	assert.Equal(t, booking.ScopeStaff, opts.Scope)
	assert.Equal(t, 10*time.Minute, opts.DefaultStep)
	assert.False(t, opts.EnforceHours)
}

func TestLoadConfigRejectsBadValues(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://booking@localhost/booking")

	t.Setenv("BOOKING_CONFLICT_SCOPE", "room")
	_, err := loadConfig(noDotenv(t))
	assert.Error(t, err)

	t.Setenv("BOOKING_CONFLICT_SCOPE", "business")
	t.Setenv("PORT", "99999")
	_, err = loadConfig(noDotenv(t))
	assert.Error(t, err)
}

func TestLoadConfigRequiresDatabase(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	require.NoError(t, os.Unsetenv("DATABASE_URL"))

	_, err := loadConfig(noDotenv(t))
	assert.Error(t, err)
}
