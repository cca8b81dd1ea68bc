package core

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewConfig(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		t.Setenv("ENV", "test")
		conf, err := NewConfig()
		require.NoError(t, err)

		assert.Equal(t, "TEST", conf.Env)
		assert.True(t, conf.TestMode)
		assert.False(t, conf.Debug)
		assert.Equal(t, ":3001", conf.Server.Addr())
		assert.Contains(t, conf.Server.AllowedOrigins, "http://localhost:5173")
		assert.Equal(t, StorageFile, conf.Storage.Backend)
		assert.Equal(t, "config", conf.Storage.DataDir)
		assert.Equal(t, "v22.0", conf.WhatsApp.APIVersion)
		assert.Equal(t, 30*time.Second, conf.WhatsApp.Timeout)
		assert.Equal(t, "07:00", conf.Notifications.Time)
		assert.False(t, conf.Notifications.Enabled)
		assert.False(t, conf.Auth.Enabled())
		assert.Equal(t, 7*24*time.Hour, conf.Auth.JWTExpirationDelta)
	})

	t.Run("environment", func(t *testing.T) {
		t.Setenv("ENV", "prod")
		t.Setenv("PORT", "8080")
		t.Setenv("AZURE_STORAGE_CONNECTION_STRING", "DefaultEndpointsProtocol=https;AccountName=x")
		t.Setenv("WHATSAPP_NOTIFICATIONS_ENABLED", "true")
		t.Setenv("NOTIFICATION_TIME", "06:30")
		t.Setenv("NOTIFY_EMAILS", " a@example.com, ,b@example.com ")
		t.Setenv("ADMIN_PASSWORD_HASH", "$2a$10$hash")

		conf, err := NewConfig()
		require.NoError(t, err)
		assert.Equal(t, "PROD", conf.Env)
		assert.False(t, conf.Debug)
		assert.Equal(t, "8080", conf.Server.Port)
		assert.Equal(t, StorageAzure, conf.Storage.Backend, "a connection string selects azure")
		assert.True(t, conf.Notifications.Enabled)
		assert.Equal(t, "06:30", conf.Notifications.Time)
		assert.Equal(t, []string{"a@example.com", "b@example.com"}, conf.Notifications.Emails)
		assert.True(t, conf.Auth.Enabled())
	})

	t.Run("explicit backend", func(t *testing.T) {
		t.Setenv("ENV", "test")
		t.Setenv("AZURE_STORAGE_CONNECTION_STRING", "DefaultEndpointsProtocol=https;AccountName=x")
		t.Setenv("STORAGE_BACKEND", " Database ")
		conf, err := NewConfig()
		require.NoError(t, err)
		assert.Equal(t, StorageDatabase, conf.Storage.Backend)
	})
}

func TestNotificationsConfig_Location(t *testing.T) {
	assert.Equal(t, "Europe/Oslo", NotificationsConfig{Timezone: "Europe/Oslo"}.Location().String())
	assert.Equal(t, time.UTC, NotificationsConfig{Timezone: "Mars/Olympus"}.Location())
}
