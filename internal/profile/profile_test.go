package profile

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProfileDefaults(t *testing.T) {
	profile := &Profile{}
	profile.FromEnv()

	assert.Equal(t, "https://nominatim.openstreetmap.org", profile.NominatimURL)
	assert.Equal(t, 10*time.Second, profile.GeocodeTimeout)
	assert.Equal(t, 1.0, profile.GeocodeRPS)
	assert.Equal(t, 30*time.Minute, profile.CacheTTL)
	assert.Equal(t, 512, profile.CacheCapacity)
	assert.Equal(t, "@every 10m", profile.CacheSweepSpec)
	assert.Equal(t, 100, profile.TriggerCeiling)
	assert.Equal(t, CeilingPolicyEvict, profile.CeilingPolicy)
	assert.Equal(t, 3, profile.RegisterAttempts)
	assert.Equal(t, 30*time.Minute, profile.Cooldown)
	assert.Equal(t, 5*time.Minute, profile.PositionMaxWait)
	assert.Equal(t, 20, profile.SavedPlaceLimit)
	assert.Empty(t, profile.WebhookURL)
	assert.Zero(t, profile.TelegramChatID)
}

func TestProfileFromEnv(t *testing.T) {
	tests := []struct {
		name     string
		envVar   string
		envValue string
		check    func(t *testing.T, p *Profile)
	}{
		{
			name:     "cooldown duration",
			envVar:   "GEOMINDER_COOLDOWN",
			envValue: "45m",
			check:    func(t *testing.T, p *Profile) { assert.Equal(t, 45*time.Minute, p.Cooldown) },
		},
		{
			name:     "invalid duration falls back",
			envVar:   "GEOMINDER_CACHE_TTL",
			envValue: "half an hour",
			check:    func(t *testing.T, p *Profile) { assert.Equal(t, 30*time.Minute, p.CacheTTL) },
		},
		{
			name:     "deny policy",
			envVar:   "GEOMINDER_CEILING_POLICY",
			envValue: "DENY",
			check:    func(t *testing.T, p *Profile) { assert.Equal(t, CeilingPolicyDeny, p.CeilingPolicy) },
		},
		{
			name:     "unknown policy falls back to evict",
			envVar:   "GEOMINDER_CEILING_POLICY",
			envValue: "random",
			check:    func(t *testing.T, p *Profile) { assert.Equal(t, CeilingPolicyEvict, p.CeilingPolicy) },
		},
		{
			name:     "telegram chat id",
			envVar:   "GEOMINDER_TELEGRAM_CHAT_ID",
			envValue: "-100123",
			check:    func(t *testing.T, p *Profile) { assert.Equal(t, int64(-100123), p.TelegramChatID) },
		},
		{
			name:     "smtp recipients",
			envVar:   "GEOMINDER_SMTP_TO",
			envValue: "me@example.com, ,you@example.com",
			check: func(t *testing.T, p *Profile) {
				assert.Equal(t, []string{"me@example.com", "you@example.com"}, p.SMTPTo)
			},
		},
		{
			name:     "geocode rate",
			envVar:   "GEOMINDER_GEOCODE_RPS",
			envValue: "0.5",
			check:    func(t *testing.T, p *Profile) { assert.Equal(t, 0.5, p.GeocodeRPS) },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.envVar, tt.envValue)
			p := &Profile{}
			p.FromEnv()
			tt.check(t, p)
		})
	}
}

func TestProfileValidate(t *testing.T) {
	valid := func() *Profile {
		p := &Profile{}
		p.FromEnv()
		return p
	}

	t.Run("sqlite DSN derived from data dir", func(t *testing.T) {
		p := valid()
		p.Mode = "dev"
		p.Data = t.TempDir()
		require.NoError(t, p.Validate())
		assert.Equal(t, "sqlite", p.Driver)
		assert.Contains(t, p.DSN, "geominder_dev.db")
	})

	t.Run("unknown mode becomes demo", func(t *testing.T) {
		p := valid()
		p.Mode = "staging"
		p.Driver = "memory"
		require.NoError(t, p.Validate())
		assert.Equal(t, "demo", p.Mode)
	})

	t.Run("postgres requires DSN", func(t *testing.T) {
		p := valid()
		p.Driver = "postgres"
		assert.Error(t, p.Validate())
	})

	t.Run("unsupported driver", func(t *testing.T) {
		p := valid()
		p.Driver = "mysql"
		assert.Error(t, p.Validate())
	})

	t.Run("non-positive ceiling", func(t *testing.T) {
		p := valid()
		p.Driver = "memory"
		p.TriggerCeiling = 0
		assert.Error(t, p.Validate())
	})

	t.Run("missing data dir", func(t *testing.T) {
		p := valid()
		p.Mode = "dev"
		p.Data = "/nonexistent/geominder/data"
		assert.Error(t, p.Validate())
	})
}
