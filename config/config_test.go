package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	for _, key := range []string{"PORT", "NOTIFY_MODE", "OUTBOUND_TIMEOUT_SEC", "DATABASE_URL", "BREVO_API_KEY", "RATE_LIMIT_PER_MINUTE", "TRUSTED_PROXIES"} {
		t.Setenv(key, "")
	}

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, 15*time.Second, cfg.Server.OutboundTimeout())
	assert.Equal(t, NotifyInline, cfg.Notify.Mode)
	assert.Empty(t, cfg.Database.URL)
	assert.Empty(t, cfg.Brevo.APIKey, "missing credentials do not fail Load")
	assert.Equal(t, 10, cfg.RateLimit.PerMinute)
	assert.Nil(t, cfg.Server.TrustedProxies, "no proxy is trusted by default")
}

func TestLoad_FromEnv(t *testing.T) {
	t.Setenv("PORT", "9000")
	t.Setenv("OUTBOUND_TIMEOUT_SEC", "5")
	t.Setenv("NOTIFY_MODE", "QUEUE")
	t.Setenv("NOTIFY_WORKERS", "8")
	t.Setenv("BREVO_API_KEY", "xkeysib-1")
	t.Setenv("BREVO_LIST_ID", "7")
	t.Setenv("ZOOM_MEETING_ID", "85746065")
	t.Setenv("REDIS_DB", "not-a-number")
	t.Setenv("TRUSTED_PROXIES", " 10.0.0.0/8 , ,127.0.0.1")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "9000", cfg.Server.Port)
	assert.Equal(t, 5*time.Second, cfg.Server.OutboundTimeout())
	assert.Equal(t, NotifyQueue, cfg.Notify.Mode)
	assert.Equal(t, 8, cfg.Notify.Workers)
	assert.Equal(t, "xkeysib-1", cfg.Brevo.APIKey)
	assert.Equal(t, "7", cfg.Brevo.ListID)
	assert.Equal(t, "85746065", cfg.Zoom.MeetingID)
	assert.Equal(t, 0, cfg.Redis.DB, "unparsable ints fall back")
	assert.Equal(t, []string{"10.0.0.0/8", "127.0.0.1"}, cfg.Server.TrustedProxies)
}

func TestLoad_UnknownNotifyModeFallsBackToInline(t *testing.T) {
	t.Setenv("NOTIFY_MODE", "carrier-pigeon")
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, NotifyInline, cfg.Notify.Mode)
}
